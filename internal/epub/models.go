package epub

// Default metadata values used when the package document omits them.
const (
	DefaultTitle  = "Unknown Title"
	DefaultAuthor = "Unknown Author"
)

// xhtmlMediaType is the only manifest media type treated as a chapter candidate.
const xhtmlMediaType = "application/xhtml+xml"

// OPF represents the parsed Open Package Format document
type OPF struct {
	Metadata      opfSummary
	Manifest      map[string]ManifestItem // id -> item
	ManifestOrder []string                // ids in document order
	Spine         []SpineItem
	TocID         string // spine toc attribute
}

// opfSummary holds the metadata fields the engine consumes.
type opfSummary struct {
	Title   string
	Creator string
	CoverID string // EPUB 2.0 cover image manifest item ID (from meta name="cover")
}

// Metadata is the normalized book metadata.
// CoverPath is workspace-relative and empty when no cover was found.
type Metadata struct {
	Title     string `json:"title" yaml:"title"`
	Author    string `json:"author" yaml:"author"`
	CoverPath string `json:"coverPath,omitempty" yaml:"coverPath,omitempty"`
}

// ManifestItem represents an item in the manifest.
// Href is relative to the package document's directory.
type ManifestItem struct {
	ID         string
	Href       string
	MediaType  string
	Properties []string
}

// SpineItem represents an item reference in the spine
type SpineItem struct {
	IDRef  string
	Linear bool
}

// Chapter is one entry of the reading order.
// Href is relative to the package base directory and OrderNum starts at 1.
type Chapter struct {
	Title    string `json:"title" yaml:"title"`
	Href     string `json:"href" yaml:"href"`
	OrderNum int    `json:"orderNum" yaml:"orderNum"`
}
