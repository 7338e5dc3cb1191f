package epub

import (
	"encoding/xml"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// opfPackage represents the OPF XML structure
type opfPackage struct {
	XMLName  xml.Name    `xml:"package"`
	Version  string      `xml:"version,attr"`
	Metadata opfMetadata `xml:"metadata"`
	Manifest opfManifest `xml:"manifest"`
	Spine    opfSpine    `xml:"spine"`
}

// opfMetadata represents the metadata section.
// Dublin Core elements are matched by local name so that packages binding
// dc to a nonstandard namespace URI still resolve.
type opfMetadata struct {
	Title   []string  `xml:"title"`
	Creator []string  `xml:"creator"`
	Meta    []opfMeta `xml:"meta"`
}

// opfMeta represents a meta element (EPUB 2.0 and 3.0)
type opfMeta struct {
	Name    string `xml:"name,attr"`
	Content string `xml:"content,attr"`
}

// opfManifest represents the manifest section
type opfManifest struct {
	Items []opfManifestItem `xml:"item"`
}

// opfManifestItem represents an item in the manifest
type opfManifestItem struct {
	ID         string `xml:"id,attr"`
	Href       string `xml:"href,attr"`
	MediaType  string `xml:"media-type,attr"`
	Properties string `xml:"properties,attr"`
}

// opfSpine represents the spine section
type opfSpine struct {
	Toc      string       `xml:"toc,attr"`
	ItemRefs []opfItemRef `xml:"itemref"`
}

// opfItemRef represents an itemref in the spine
type opfItemRef struct {
	IDRef  string `xml:"idref,attr"`
	Linear string `xml:"linear,attr"`
}

// ParseOPF parses package document content. Manifest hrefs are kept
// relative to the package document's directory.
func ParseOPF(content []byte) (*OPF, error) {
	var pkg opfPackage
	if err := decodeXML(content, &pkg); err != nil {
		return nil, fmt.Errorf("failed to parse OPF XML: %w", err)
	}

	opf := &OPF{
		Manifest: make(map[string]ManifestItem),
		TocID:    strings.TrimSpace(pkg.Spine.Toc),
	}

	opf.Metadata = parseMetadata(&pkg.Metadata)

	for _, item := range pkg.Manifest.Items {
		id := strings.TrimSpace(item.ID)
		if id == "" {
			continue
		}
		manifestItem := ManifestItem{
			ID:         id,
			Href:       normalizePath(strings.TrimSpace(item.Href)),
			MediaType:  strings.TrimSpace(item.MediaType),
			Properties: strings.Fields(item.Properties),
		}
		if _, dup := opf.Manifest[id]; !dup {
			opf.ManifestOrder = append(opf.ManifestOrder, id)
		}
		opf.Manifest[id] = manifestItem
	}

	for _, itemRef := range pkg.Spine.ItemRefs {
		opf.Spine = append(opf.Spine, SpineItem{
			IDRef:  strings.TrimSpace(itemRef.IDRef),
			Linear: itemRef.Linear != "no",
		})
	}

	return opf, nil
}

// parseMetadata keeps the first title and creator and the first cover meta.
func parseMetadata(meta *opfMetadata) opfSummary {
	var md opfSummary

	if len(meta.Title) > 0 {
		md.Title = strings.TrimSpace(meta.Title[0])
	}
	if len(meta.Creator) > 0 {
		md.Creator = strings.TrimSpace(meta.Creator[0])
	}

	for _, m := range meta.Meta {
		if m.Name == "cover" {
			md.CoverID = strings.TrimSpace(m.Content)
			break
		}
	}

	return md
}

// loadOPF reads and parses the package document. Nothing is cached; every
// call sees the workspace as it is.
func (s *Session) loadOPF() (*OPF, error) {
	data, err := s.readEntry(s.packagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read OPF: %w", err)
	}
	return ParseOPF(data)
}

// xhtmlItems maps manifest ids to hrefs for chapter candidates.
func (opf *OPF) xhtmlItems() map[string]string {
	items := make(map[string]string)
	for id, item := range opf.Manifest {
		if item.MediaType == xhtmlMediaType && item.Href != "" {
			items[id] = item.Href
		}
	}
	return items
}

// Metadata returns title, author and cover path. It never fails: missing
// or empty fields fall back to DefaultTitle and DefaultAuthor.
func (s *Session) Metadata() Metadata {
	md := Metadata{
		Title:  DefaultTitle,
		Author: DefaultAuthor,
	}

	opf, err := s.loadOPF()
	if err != nil {
		s.log.Warn("metadata unavailable, using defaults", zap.Error(err))
		return md
	}

	if opf.Metadata.Title != "" {
		md.Title = opf.Metadata.Title
	}
	if opf.Metadata.Creator != "" {
		md.Author = opf.Metadata.Creator
	}
	if cover := s.detectCover(opf); cover != nil {
		md.CoverPath = cover.Path
	}

	return md
}
