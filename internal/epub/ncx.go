package epub

import (
	"fmt"
	"os"
	"strings"
)

// ncxDocument is the subset of an NCX file the engine reads.
type ncxDocument struct {
	NavMap struct {
		NavPoints []ncxNavPoint `xml:"navPoint"`
	} `xml:"navMap"`
}

type ncxNavPoint struct {
	Labels   []ncxNavLabel `xml:"navLabel"`
	Contents []ncxContent  `xml:"content"`
	Children []ncxNavPoint `xml:"navPoint"`
}

type ncxNavLabel struct {
	Text []string `xml:"text"`
}

type ncxContent struct {
	Src string `xml:"src,attr"`
}

// ParseNCX returns one chapter per top-level navPoint, in document order.
// Nested navPoints are not chapters. NavPoints without a label text or a
// content src are skipped and do not consume an order number.
func ParseNCX(content []byte) ([]Chapter, error) {
	var doc ncxDocument
	if err := decodeXML(content, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse NCX: %w", err)
	}

	var chapters []Chapter
	for _, np := range doc.NavMap.NavPoints {
		label, ok := np.firstLabel()
		if !ok {
			continue
		}
		title := strings.TrimSpace(label)
		if title == "" {
			continue
		}

		src, ok := np.firstSrc()
		if !ok {
			continue
		}
		href, _ := splitFragment(strings.TrimSpace(src))
		if href == "" {
			continue
		}

		chapters = append(chapters, Chapter{
			Title:    title,
			Href:     normalizePath(href),
			OrderNum: len(chapters) + 1,
		})
	}

	return chapters, nil
}

// ExtractFromNCX reads the NCX file at path. Any failure yields an empty list.
func ExtractFromNCX(path string) []Chapter {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	chapters, err := ParseNCX(data)
	if err != nil {
		return nil
	}
	return chapters
}

// firstLabel returns the first navLabel/text below np, own labels first.
func (np ncxNavPoint) firstLabel() (string, bool) {
	for _, l := range np.Labels {
		if len(l.Text) > 0 {
			return l.Text[0], true
		}
	}
	for _, child := range np.Children {
		if text, ok := child.firstLabel(); ok {
			return text, true
		}
	}
	return "", false
}

// firstSrc returns the src of the first content element below np.
func (np ncxNavPoint) firstSrc() (string, bool) {
	if len(np.Contents) > 0 {
		return np.Contents[0].Src, true
	}
	for _, child := range np.Children {
		if src, ok := child.firstSrc(); ok {
			return src, true
		}
	}
	return "", false
}

// splitFragment splits a source path into the path and fragment identifier.
func splitFragment(src string) (path, fragment string) {
	if src == "" {
		return "", ""
	}
	parts := strings.SplitN(src, "#", 2)
	path = parts[0]
	if len(parts) == 2 {
		fragment = parts[1]
	}
	return path, fragment
}
