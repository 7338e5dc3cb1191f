package ingest

import "github.com/yuanying/epubkit/internal/epub"

// Book is the ingested form of one EPUB, shaped for the storage layer.
type Book struct {
	ID         string          `json:"id" yaml:"id"`
	Title      string          `json:"title" yaml:"title"`
	Author     string          `json:"author" yaml:"author"`
	CoverFile  string          `json:"coverFile,omitempty" yaml:"coverFile,omitempty"` // file name inside the cover dir
	SourcePath string          `json:"sourcePath" yaml:"sourcePath"`
	Chapters   []ChapterRecord `json:"chapters" yaml:"chapters"`
}

// ChapterRecord is keyed by (BookID, OrderNum). Text and HTML stay nil
// until populated.
type ChapterRecord struct {
	BookID   string        `json:"bookId" yaml:"bookId"`
	OrderNum int           `json:"orderNum" yaml:"orderNum"`
	Title    string        `json:"title" yaml:"title"`
	Href     string        `json:"href" yaml:"href"`
	Text     *epub.Content `json:"text,omitempty" yaml:"text,omitempty"`
	HTML     *epub.Content `json:"html,omitempty" yaml:"html,omitempty"`
}

// Placeholders counts the populated artifacts that degraded to placeholders.
func (b *Book) Placeholders() int {
	n := 0
	for _, ch := range b.Chapters {
		if ch.Text != nil && ch.Text.Placeholder {
			n++
		}
		if ch.HTML != nil && ch.HTML.Placeholder {
			n++
		}
	}
	return n
}
