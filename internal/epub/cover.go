package epub

import (
	"slices"
	"strings"

	"go.uber.org/zap"
)

// CoverInfo holds information about the detected cover image.
type CoverInfo struct {
	ManifestID      string
	Href            string // relative to the package base directory
	Path            string // workspace-relative
	MediaType       string
	DetectionMethod string // "meta", "properties", "filename"
}

// DetectCover finds the cover image in the manifest. Methods are tried in
// priority order:
//  1. meta name="cover" whose content is a manifest id (EPUB 2.0)
//  2. properties containing "cover-image" (EPUB 3.0)
//  3. image item whose id or href contains "cover", case-insensitive
//
// Returns nil if no cover image is found.
func (opf *OPF) DetectCover() *CoverInfo {
	if opf.Metadata.CoverID != "" {
		if item, ok := opf.Manifest[opf.Metadata.CoverID]; ok && item.Href != "" {
			return newCoverInfo(item, "meta")
		}
	}

	for _, id := range opf.ManifestOrder {
		item := opf.Manifest[id]
		if item.Href != "" && slices.Contains(item.Properties, "cover-image") {
			return newCoverInfo(item, "properties")
		}
	}

	for _, id := range opf.ManifestOrder {
		item := opf.Manifest[id]
		if item.Href == "" || !strings.HasPrefix(item.MediaType, "image/") {
			continue
		}
		if strings.Contains(strings.ToLower(item.ID), "cover") ||
			strings.Contains(strings.ToLower(item.Href), "cover") {
			return newCoverInfo(item, "filename")
		}
	}

	return nil
}

func newCoverInfo(item ManifestItem, method string) *CoverInfo {
	return &CoverInfo{
		ManifestID:      item.ID,
		Href:            item.Href,
		MediaType:       item.MediaType,
		DetectionMethod: method,
	}
}

// CoverInfo resolves the cover image, or returns nil. It never fails.
func (s *Session) CoverInfo() *CoverInfo {
	opf, err := s.loadOPF()
	if err != nil {
		s.log.Warn("cover lookup skipped", zap.Error(err))
		return nil
	}
	return s.detectCover(opf)
}

// ResolveCover returns the workspace-relative cover path.
func (s *Session) ResolveCover() (string, bool) {
	if c := s.CoverInfo(); c != nil {
		return c.Path, true
	}
	return "", false
}

func (s *Session) detectCover(opf *OPF) *CoverInfo {
	c := opf.DetectCover()
	if c == nil {
		return nil
	}
	c.Path = s.packageRel(c.Href)
	s.log.Debug("cover detected",
		zap.String("path", c.Path),
		zap.String("method", c.DetectionMethod))
	return c
}
