package epub

import (
	"fmt"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// titleTags are consulted in order when sniffing a chapter title.
var titleTags = []string{"h1", "h2", "h3", "h4", "title"}

// Chapters returns the reading order. A non-empty NCX table of contents
// replaces the spine entirely; otherwise each spine item backed by an XHTML
// manifest item becomes a chapter. Order numbers are dense from 1.
func (s *Session) Chapters() []Chapter {
	opf, err := s.loadOPF()
	if err != nil {
		s.log.Warn("chapters unavailable", zap.Error(err))
		return nil
	}

	if chapters := s.ncxChapters(opf); len(chapters) > 0 {
		return chapters
	}

	xhtml := opf.xhtmlItems()

	var chapters []Chapter
	for _, ref := range opf.Spine {
		href, ok := xhtml[ref.IDRef]
		if !ok {
			continue
		}
		orderNum := len(chapters) + 1
		title := s.sniffTitle(href)
		if title == "" {
			title = fmt.Sprintf("Chapter %d", orderNum)
		}
		chapters = append(chapters, Chapter{
			Title:    title,
			Href:     href,
			OrderNum: orderNum,
		})
	}

	return chapters
}

// ncxChapters reads the NCX named by the spine toc attribute. Hrefs are
// re-expressed relative to the package base when the NCX lives elsewhere.
func (s *Session) ncxChapters(opf *OPF) []Chapter {
	if opf.TocID == "" {
		return nil
	}
	item, ok := opf.Manifest[opf.TocID]
	if !ok || item.Href == "" {
		s.log.Debug("spine toc does not name a manifest item", zap.String("toc", opf.TocID))
		return nil
	}

	name, ok := s.lookup(s.packageRel(item.Href))
	if !ok {
		s.log.Debug("ncx file missing", zap.String("href", item.Href))
		return nil
	}
	p, err := s.Path(name)
	if err != nil {
		return nil
	}

	chapters := ExtractFromNCX(p)
	if len(chapters) == 0 {
		s.log.Debug("ncx yielded no chapters, using spine", zap.String("href", item.Href))
		return nil
	}

	if dir := path.Dir(item.Href); dir != "." {
		for i := range chapters {
			chapters[i].Href = path.Join(dir, chapters[i].Href)
		}
	}
	return chapters
}

func (s *Session) sniffTitle(href string) string {
	markup, _, err := s.readChapter(href)
	if err != nil {
		s.log.Debug("title sniffing skipped", zap.String("href", href), zap.Error(err))
		return ""
	}
	doc, err := parseChapter(markup)
	if err != nil {
		return ""
	}
	return SniffTitle(doc)
}

// SniffTitle returns the first non-empty text of h1, h2, h3, h4 or title
// (in that priority), then of the first element whose class or id mentions
// "title". It returns "" when nothing matches.
func SniffTitle(doc *goquery.Document) string {
	for _, tag := range titleTags {
		if title := firstText(doc.Find(tag)); title != "" {
			return title
		}
	}

	return firstText(doc.Find("[class], [id]").FilterFunction(func(_ int, sel *goquery.Selection) bool {
		class, _ := sel.Attr("class")
		id, _ := sel.Attr("id")
		return strings.Contains(strings.ToLower(class), "title") ||
			strings.Contains(strings.ToLower(id), "title")
	}))
}

func firstText(sel *goquery.Selection) string {
	var text string
	sel.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text = strings.TrimSpace(s.Text())
		return text == ""
	})
	return text
}
