package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
)

const (
	defaultCoverJPEGQuality = 90
	defaultMaxPixels        = 100 * 1000 * 1000 // 100 megapixels
)

// ErrUnsupportedImage is returned for data that is not a decodable raster image.
var ErrUnsupportedImage = errors.New("unsupported cover image")

// CoverOptions controls how covers are stored.
type CoverOptions struct {
	// JPEGQuality for re-encoded covers (1-100). Zero uses 90.
	JPEGQuality int
	// MaxWidth downscales wider covers. Zero keeps the original width.
	MaxWidth int
}

// coverEncoder turns cover images of any supported format into JPEG.
type coverEncoder struct {
	MaxWidth    int
	JPEGQuality int
	MaxPixels   int // total pixel count limit for decode (width * height)
}

func newCoverEncoder(opts CoverOptions) *coverEncoder {
	quality := opts.JPEGQuality
	if quality <= 0 {
		quality = defaultCoverJPEGQuality
	}
	if quality > 100 {
		quality = 100
	}

	maxWidth := opts.MaxWidth
	if maxWidth < 0 {
		maxWidth = 0
	}

	return &coverEncoder{
		MaxWidth:    maxWidth,
		JPEGQuality: quality,
		MaxPixels:   defaultMaxPixels,
	}
}

// Encode returns JPEG bytes for input. JPEG input that needs no resizing is
// returned unchanged.
func (e *coverEncoder) Encode(input []byte) ([]byte, error) {
	mt := mimetype.Detect(input)
	if !strings.HasPrefix(mt.String(), "image/") {
		return nil, fmt.Errorf("%w: detected %s", ErrUnsupportedImage, mt.String())
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(input))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnsupportedImage, mt.String(), err)
	}
	pixels := uint64(cfg.Width) * uint64(cfg.Height)
	if e.MaxPixels > 0 && pixels > uint64(e.MaxPixels) {
		return nil, fmt.Errorf("%w: image too large to decode: %dx%d", ErrUnsupportedImage, cfg.Width, cfg.Height)
	}

	needsResize := e.MaxWidth > 0 && cfg.Width > e.MaxWidth
	if mt.Is("image/jpeg") && !needsResize {
		return input, nil
	}

	src, err := imaging.Decode(bytes.NewReader(input), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}

	processed := flatten(src)
	if needsResize {
		processed = imaging.Resize(processed, e.MaxWidth, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, processed, imaging.JPEG, imaging.JPEGQuality(e.JPEGQuality)); err != nil {
		return nil, fmt.Errorf("jpeg encode failed: %w", err)
	}
	return buf.Bytes(), nil
}

// flatten composites images with transparency onto white, since JPEG has
// no alpha channel.
func flatten(img image.Image) image.Image {
	if !hasAlpha(img) {
		return img
	}
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}

// hasAlpha reports whether any pixel is not fully opaque. Standard image
// types answer through Opaque, which scans Pix directly or knows the model
// has no alpha (YCbCr, Gray).
func hasAlpha(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return !o.Opaque()
	}

	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			_, _, _, a := img.At(x, y).RGBA()
			if a < 0xFFFF {
				return true
			}
		}
	}
	return false
}
