package epub

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/html/charset"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// container.xml structure
type container struct {
	Rootfiles struct {
		Rootfile []struct {
			FullPath  string `xml:"full-path,attr"`
			MediaType string `xml:"media-type,attr"`
		} `xml:"rootfile"`
	} `xml:"rootfiles"`
}

// parseContainer returns the package document path named by the first
// rootfile. Additional renditions are ignored.
func parseContainer(content []byte) (string, error) {
	var c container
	if err := decodeXML(content, &c); err != nil {
		return "", fmt.Errorf("failed to parse container.xml: %w", err)
	}

	if len(c.Rootfiles.Rootfile) == 0 {
		return "", errors.New("container.xml declares no rootfile")
	}

	fullPath := normalizePath(strings.TrimSpace(c.Rootfiles.Rootfile[0].FullPath))
	if fullPath == "" {
		return "", errors.New("first rootfile has no full-path")
	}

	return fullPath, nil
}

// decodeXML decodes best-effort: non-strict, HTML entities allowed and
// non-UTF-8 declarations converted.
func decodeXML(content []byte, v any) error {
	d := xml.NewDecoder(bytes.NewReader(bytes.TrimPrefix(content, utf8BOM)))
	d.Strict = false
	d.AutoClose = xml.HTMLAutoClose
	d.Entity = xml.HTMLEntity
	d.CharsetReader = charset.NewReaderLabel
	return d.Decode(v)
}
