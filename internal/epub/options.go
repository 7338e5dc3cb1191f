package epub

import "go.uber.org/zap"

const (
	// DefaultResourcePrefix is the endpoint marker prepended to rewritten resource links.
	DefaultResourcePrefix = "/api/books/resource/"

	// defaultMaxEntrySize guards against zip bombs. Defaults to 256 MB.
	defaultMaxEntrySize int64 = 256 * 1024 * 1024
)

// Options configures a Session. The zero value is usable.
type Options struct {
	// ScratchDir is the parent of per-session workspaces. Empty uses os.TempDir.
	ScratchDir string
	// ResourcePrefix is prepended to rewritten img/stylesheet references.
	ResourcePrefix string
	// Decoder decodes chapter files. Nil uses NewDefaultDecoder.
	Decoder *Decoder
	// Sanitize runs reader HTML bodies through an HTML sanitizer.
	Sanitize bool
	// MaxEntrySize limits the decompressed size of a single archive entry.
	MaxEntrySize int64
	Logger       *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.ResourcePrefix == "" {
		o.ResourcePrefix = DefaultResourcePrefix
	}
	if o.Decoder == nil {
		o.Decoder = NewDefaultDecoder()
	}
	if o.MaxEntrySize <= 0 {
		o.MaxEntrySize = defaultMaxEntrySize
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}
