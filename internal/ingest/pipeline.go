// Package ingest turns an uploaded EPUB into the book and chapter records
// the storage layer persists.
package ingest

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yuanying/epubkit/internal/epub"
)

// Options holds options for the ingest pipeline.
type Options struct {
	Session epub.Options
	// CoverDir receives extracted covers. Empty skips cover extraction.
	CoverDir string
	Cover    CoverOptions
	// SkipText and SkipHTML leave the corresponding record fields nil.
	SkipText bool
	SkipHTML bool
	Logger   *zap.Logger
}

// Pipeline orchestrates EPUB ingestion.
type Pipeline struct {
	Options Options
	log     *zap.Logger
}

// NewPipeline creates a new ingest pipeline.
func NewPipeline(opts Options) *Pipeline {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Session.Logger == nil {
		opts.Session.Logger = opts.Logger
	}
	return &Pipeline{Options: opts, log: opts.Logger}
}

// Run opens the EPUB at path and derives its records. Only structural
// archive errors fail; cover and chapter problems degrade.
func (p *Pipeline) Run(path string) (*Book, error) {
	s, err := epub.Open(path, p.Options.Session)
	if err != nil {
		return nil, fmt.Errorf("failed to open EPUB: %w", err)
	}
	defer s.Close()

	md := s.Metadata()
	book := &Book{
		ID:         uuid.NewString(),
		Title:      md.Title,
		Author:     md.Author,
		SourcePath: path,
	}

	book.CoverFile = p.saveCover(s)

	for _, ch := range s.Chapters() {
		rec := ChapterRecord{
			BookID:   book.ID,
			OrderNum: ch.OrderNum,
			Title:    ch.Title,
			Href:     ch.Href,
		}
		if !p.Options.SkipText {
			text := s.PlainText(ch.Href)
			rec.Text = &text
		}
		if !p.Options.SkipHTML {
			html := s.ReaderHTML(ch.Href)
			rec.HTML = &html
		}
		book.Chapters = append(book.Chapters, rec)
	}

	p.log.Info("ingested book",
		zap.String("id", book.ID),
		zap.String("title", book.Title),
		zap.String("source", path),
		zap.Int("chapters", len(book.Chapters)),
		zap.Int("placeholders", book.Placeholders()),
		zap.Bool("cover", book.CoverFile != ""))

	return book, nil
}

func (p *Pipeline) saveCover(s *epub.Session) string {
	if p.Options.CoverDir == "" {
		return ""
	}
	name, err := SaveCover(s, p.Options.CoverDir, p.Options.Cover)
	switch {
	case errors.Is(err, ErrNoCover):
		p.log.Debug("book has no cover", zap.Error(err))
		return ""
	case err != nil:
		p.log.Warn("failed to save cover", zap.Error(err))
		return ""
	}
	return name
}
