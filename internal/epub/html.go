package epub

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

// HTML placeholders.
const (
	htmlUnavailable = "<h1>Chapter content unavailable</h1><p>Chapter file not found</p>"
	htmlUnreadable  = "<h1>Unable to read chapter content</h1><p>Encoding error: %s</p>"
	htmlBroken      = "<h1>Error processing chapter HTML</h1><p>%s</p>"
)

// readerStylesheet is appended to every normalized chapter.
const readerStylesheet = `
body {
  font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Oxygen, Ubuntu, Cantarell, 'Open Sans', 'Helvetica Neue', sans-serif;
  line-height: 1.6;
  color: #333;
  max-width: 100%;
  margin: 0 auto;
  padding: 20px;
}
img {
  max-width: 100%;
  height: auto;
}
h1, h2, h3, h4, h5, h6 {
  margin-top: 1em;
  margin-bottom: 0.5em;
}
p {
  margin-bottom: 1em;
}
`

// passthroughPrefixes mark references that are left untouched.
var passthroughPrefixes = []string{"http://", "https://", "data:"}

// HTMLOptions controls NormalizeHTML.
type HTMLOptions struct {
	ResourcePrefix string
	// Sanitizer, when set, filters the body's inner HTML.
	Sanitizer *bluemonday.Policy
}

// ReaderHTML returns the chapter at href (package-relative) as a
// self-contained HTML document. It never fails; see Content.Placeholder.
func (s *Session) ReaderHTML(href string) Content {
	markup, enc, err := s.readChapter(href)
	if err != nil {
		s.logPlaceholder("html", href, err)
		if errors.Is(err, ErrUndecodable) {
			return placeholder(fmt.Sprintf(htmlUnreadable, html.EscapeString(err.Error())), err)
		}
		return placeholder(htmlUnavailable, err)
	}

	opts := HTMLOptions{ResourcePrefix: s.opts.ResourcePrefix}
	if s.opts.Sanitize {
		opts.Sanitizer = NewReaderPolicy()
	}

	out, err := NormalizeHTML(markup, href, opts)
	if err != nil {
		s.logPlaceholder("html", href, err)
		return placeholder(fmt.Sprintf(htmlBroken, html.EscapeString(err.Error())), err)
	}

	return Content{Body: out, Encoding: enc}
}

// NormalizeHTML rewrites relative image and stylesheet references of the
// chapter at href to resource endpoint links and appends the reader
// stylesheet. Missing html/head/body elements are synthesized by the parser.
func NormalizeHTML(markup, href string, opts HTMLOptions) (string, error) {
	doc, err := parseChapter(markup)
	if err != nil {
		return "", fmt.Errorf("failed to parse chapter: %w", err)
	}

	prefix := opts.ResourcePrefix
	if prefix == "" {
		prefix = DefaultResourcePrefix
	}
	baseDir := path.Dir(href)

	doc.Find("img[src]").Each(func(_ int, sel *goquery.Selection) {
		src, _ := sel.Attr("src")
		if link, ok := resourceLink(prefix, baseDir, src); ok {
			sel.SetAttr("src", link)
		}
	})

	doc.Find("link[href]").Each(func(_ int, sel *goquery.Selection) {
		if !isStylesheet(sel) {
			return
		}
		ref, _ := sel.Attr("href")
		if link, ok := resourceLink(prefix, baseDir, ref); ok {
			sel.SetAttr("href", link)
		}
	})

	if opts.Sanitizer != nil {
		body := doc.Find("body").First()
		inner, err := body.Html()
		if err != nil {
			return "", fmt.Errorf("failed to render body: %w", err)
		}
		body.SetHtml(opts.Sanitizer.Sanitize(inner))
	}

	doc.Find("head").First().AppendHtml("<style>" + readerStylesheet + "</style>")

	out, err := doc.Html()
	if err != nil {
		return "", fmt.Errorf("failed to generate HTML: %w", err)
	}
	return out, nil
}

// NewReaderPolicy returns the sanitizer policy for reader HTML bodies:
// user-generated-content rules plus class attributes.
func NewReaderPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class").Globally()
	return p
}

// resourceLink resolves ref against baseDir and prefixes the resource
// endpoint. Absolute http(s) and data URIs are not rewritten.
func resourceLink(prefix, baseDir, ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", false
	}
	lower := strings.ToLower(ref)
	for _, p := range passthroughPrefixes {
		if strings.HasPrefix(lower, p) {
			return "", false
		}
	}
	return prefix + path.Join(baseDir, ref), true
}

func isStylesheet(sel *goquery.Selection) bool {
	rel, _ := sel.Attr("rel")
	for _, v := range strings.Fields(rel) {
		if strings.EqualFold(v, "stylesheet") {
			return true
		}
	}
	return false
}
