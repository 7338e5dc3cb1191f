package epub

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// Content is a derived chapter artifact. When Placeholder is set, Body holds
// human-readable fallback text and Err the reason real content is missing.
type Content struct {
	Body        string `json:"body" yaml:"body"`
	Placeholder bool   `json:"placeholder,omitempty" yaml:"placeholder,omitempty"`
	Encoding    string `json:"encoding,omitempty" yaml:"encoding,omitempty"` // decoder that produced Body; empty for placeholders
	Err         error  `json:"-" yaml:"-"`
}

func (c Content) String() string {
	return c.Body
}

func placeholder(body string, err error) Content {
	return Content{Body: body, Placeholder: true, Err: err}
}

// xmlDeclRe matches a leading XML declaration, which the HTML parser would
// otherwise keep as a bogus comment.
var xmlDeclRe = regexp.MustCompile(`^\s*<\?xml[^>]*\?>`)

// readChapter reads and decodes a package-relative chapter file.
func (s *Session) readChapter(href string) (text, encoding string, err error) {
	data, err := s.readFile(s.packageRel(href))
	if err != nil {
		return "", "", err
	}
	return s.opts.Decoder.Decode(data)
}

// voidElements never take an end tag in HTML.
var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "keygen": true, "link": true,
	"meta": true, "param": true, "source": true, "track": true, "wbr": true,
}

// parseChapter builds a goquery document from decoded chapter markup.
func parseChapter(markup string) (*goquery.Document, error) {
	markup = expandSelfClosing(xmlDeclRe.ReplaceAllString(markup, ""))
	return goquery.NewDocumentFromReader(strings.NewReader(markup))
}

// expandSelfClosing rewrites XHTML self-closing tags of non-void elements
// (<title/>, <script src="x"/>, <a id="x"/>) as start/end pairs. The HTML
// parser ignores the slash, so <title/> would otherwise swallow the rest of
// the document as raw text.
func expandSelfClosing(markup string) string {
	if !strings.Contains(markup, "/>") {
		return markup
	}

	var b strings.Builder
	b.Grow(len(markup) + 64)
	z := html.NewTokenizer(strings.NewReader(markup))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return b.String()
		}
		raw := z.Raw()
		if tt != html.SelfClosingTagToken {
			b.Write(raw)
			continue
		}
		z.NextIsNotRawText()
		name, _ := z.TagName()
		if voidElements[string(name)] {
			b.Write(raw)
			continue
		}
		open := bytes.TrimRight(bytes.TrimSuffix(raw, []byte("/>")), " \t\r\n")
		b.Write(open)
		b.WriteString("></")
		b.Write(name)
		b.WriteString(">")
	}
}

// hasElement reports whether the raw markup contains a start tag named tag.
// The HTML parser synthesizes html/head/body, so presence is decided on the
// token stream instead of the tree.
func hasElement(markup, tag string) bool {
	z := html.NewTokenizer(strings.NewReader(markup))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return false
		case html.SelfClosingTagToken:
			z.NextIsNotRawText()
			if name, _ := z.TagName(); string(name) == tag {
				return true
			}
		case html.StartTagToken:
			if name, _ := z.TagName(); string(name) == tag {
				return true
			}
		}
	}
}

func (s *Session) logPlaceholder(kind, href string, err error) {
	s.log.Warn("chapter degraded to placeholder",
		zap.String("artifact", kind),
		zap.String("href", href),
		zap.Error(err))
}
