package epub

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/simplifiedchinese"
)

// DefaultFallbackEncodings are tried, in order, when content is not UTF-8:
// a regional multibyte encoding, then a single-byte one.
var DefaultFallbackEncodings = []string{"GBK", "ISO-8859-1"}

type namedEncoding struct {
	name string
	enc  encoding.Encoding
}

// Decoder converts chapter bytes to text. UTF-8 is always tried first,
// then each fallback encoding; the first that decodes cleanly wins.
type Decoder struct {
	fallbacks []namedEncoding
}

// NewDecoder builds a Decoder from IANA encoding labels.
func NewDecoder(labels ...string) (*Decoder, error) {
	d := &Decoder{}
	for _, label := range labels {
		label = strings.TrimSpace(label)
		if label == "" {
			continue
		}
		enc, err := ianaindex.IANA.Encoding(label)
		if err != nil {
			return nil, fmt.Errorf("unknown encoding %q: %w", label, err)
		}
		if enc == nil {
			return nil, fmt.Errorf("unsupported encoding %q", label)
		}
		name, err := ianaindex.IANA.Name(enc)
		if err != nil || name == "" {
			name = label
		}
		d.fallbacks = append(d.fallbacks, namedEncoding{name: name, enc: enc})
	}
	return d, nil
}

// NewDefaultDecoder returns a Decoder for DefaultFallbackEncodings.
func NewDefaultDecoder() *Decoder {
	return &Decoder{fallbacks: []namedEncoding{
		{name: "GBK", enc: simplifiedchinese.GBK},
		{name: "ISO-8859-1", enc: charmap.ISO8859_1},
	}}
}

// Encodings lists the fallback encoding names in trial order.
func (d *Decoder) Encodings() []string {
	names := make([]string, 0, len(d.fallbacks))
	for _, fb := range d.fallbacks {
		names = append(names, fb.name)
	}
	return names
}

// Decode returns the text and the name of the encoding that produced it.
// A fallback is rejected when its output contains replacement characters.
func (d *Decoder) Decode(data []byte) (string, string, error) {
	if utf8.Valid(data) {
		return string(bytes.TrimPrefix(data, utf8BOM)), "UTF-8", nil
	}

	for _, fb := range d.fallbacks {
		out, err := fb.enc.NewDecoder().Bytes(data)
		if err != nil {
			continue
		}
		if bytes.ContainsRune(out, utf8.RuneError) {
			continue
		}
		return string(out), fb.name, nil
	}

	tried := append([]string{"UTF-8"}, d.Encodings()...)
	return "", "", fmt.Errorf("%w: tried %s", ErrUndecodable, strings.Join(tried, ", "))
}
