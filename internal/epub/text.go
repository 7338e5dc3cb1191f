package epub

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Plain text placeholders.
const (
	textUnavailable = "Chapter content unavailable"
	textUnreadable  = "Unable to read chapter content"
	textEmpty       = "Unable to extract chapter content"
)

// blockSelector lists the elements whose text becomes a paragraph.
const blockSelector = "p, h1, h2, h3, h4, h5, h6"

// PlainText returns the chapter at href (package-relative) as paragraphs
// separated by blank lines. It never fails; see Content.Placeholder.
func (s *Session) PlainText(href string) Content {
	markup, enc, err := s.readChapter(href)
	if err != nil {
		s.logPlaceholder("text", href, err)
		if errors.Is(err, ErrUndecodable) {
			return placeholder(textUnreadable+": "+err.Error(), err)
		}
		return placeholder(textUnavailable, err)
	}

	text, err := ExtractText(markup)
	if err != nil {
		s.logPlaceholder("text", href, err)
		return placeholder(textEmpty, err)
	}

	return Content{Body: text, Encoding: enc}
}

// ExtractText linearizes decoded chapter markup. Within <body>, script and
// style are dropped and the trimmed text of each p/h1-h6 becomes a paragraph.
// When that yields nothing, or there is no <body>, every non-blank text line
// becomes a paragraph instead.
func ExtractText(markup string) (string, error) {
	doc, err := parseChapter(markup)
	if err != nil {
		return "", fmt.Errorf("failed to parse chapter: %w", err)
	}

	var paragraphs []string
	if hasElement(markup, "body") {
		body := doc.Find("body").First()
		body.Find("script, style").Remove()
		body.Find(blockSelector).Each(func(_ int, sel *goquery.Selection) {
			if text := strings.TrimSpace(sel.Text()); text != "" {
				paragraphs = append(paragraphs, text)
			}
		})
		if len(paragraphs) == 0 {
			paragraphs = textLines(body)
		}
	} else {
		doc.Find("script, style").Remove()
		paragraphs = textLines(doc.Selection)
	}

	if len(paragraphs) == 0 {
		return "", ErrNoText
	}
	return strings.Join(paragraphs, "\n\n"), nil
}

// textLines joins all text nodes with newlines and returns the non-blank
// trimmed lines.
func textLines(sel *goquery.Selection) []string {
	var parts []string
	for _, n := range sel.Nodes {
		collectText(n, &parts)
	}

	var lines []string
	for _, line := range strings.Split(strings.Join(parts, "\n"), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func collectText(n *html.Node, parts *[]string) {
	if n.Type == html.TextNode {
		*parts = append(*parts, n.Data)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, parts)
	}
}
