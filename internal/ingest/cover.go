package ingest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/yuanying/epubkit/internal/epub"
)

// ErrNoCover is returned when the book declares no usable cover image.
var ErrNoCover = errors.New("no cover image")

// SaveCover writes the book's cover into dir as <uuid>.jpg and returns the
// file name. Covers in other formats are converted to JPEG.
func SaveCover(s *epub.Session, dir string, opts CoverOptions) (string, error) {
	rel, ok := s.ResolveCover()
	if !ok {
		return "", ErrNoCover
	}

	src, err := s.Path(rel)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoCover, err)
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read %s: %v", ErrNoCover, rel, err)
	}

	out, err := newCoverEncoder(opts).Encode(data)
	if err != nil {
		return "", fmt.Errorf("failed to encode cover %s: %w", rel, err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create cover directory: %w", err)
	}

	name := uuid.NewString() + ".jpg"
	if err := os.WriteFile(filepath.Join(dir, name), out, 0o644); err != nil {
		return "", fmt.Errorf("failed to write cover: %w", err)
	}

	return name, nil
}
