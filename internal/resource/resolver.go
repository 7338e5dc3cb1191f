// Package resource serves images and stylesheets referenced by normalized
// chapter HTML straight out of the EPUB archives of a library directory.
package resource

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"
	"github.com/klauspost/compress/zip"
	"go.uber.org/zap"
)

const (
	// DefaultArchiveGlob selects the archives searched for resources.
	DefaultArchiveGlob = "**/*.epub"
	// DefaultMaxEntrySize caps the decompressed size of an extracted entry.
	DefaultMaxEntrySize int64 = 256 << 20
)

var (
	ErrInvalidPath = errors.New("invalid resource path")
	ErrNotFound    = errors.New("resource not found")
	ErrTooLarge    = errors.New("resource too large")
)

// Config configures a Resolver.
type Config struct {
	// LibraryDir holds the uploaded EPUB files.
	LibraryDir string
	// CacheDir receives extracted entries. Empty uses a directory below os.TempDir.
	CacheDir string
	// ArchiveGlob is a doublestar pattern relative to LibraryDir.
	ArchiveGlob string
	// MaxEntrySize is the largest entry extracted, in bytes. Zero uses DefaultMaxEntrySize.
	MaxEntrySize int64
	Logger       *zap.Logger
}

// Resource is an archive entry extracted to disk.
type Resource struct {
	Path        string // extracted file
	Archive     string // source EPUB
	Entry       string // zip entry name
	ContentType string
}

// Resolver maps resource endpoint paths to archive entries.
type Resolver struct {
	cfg Config
	log *zap.Logger
}

// NewResolver returns a Resolver for cfg.
func NewResolver(cfg Config) *Resolver {
	if cfg.ArchiveGlob == "" {
		cfg.ArchiveGlob = DefaultArchiveGlob
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = filepath.Join(os.TempDir(), "epub-resources")
	}
	if cfg.MaxEntrySize <= 0 {
		cfg.MaxEntrySize = DefaultMaxEntrySize
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Resolver{cfg: cfg, log: cfg.Logger}
}

// Resolve finds the first archive (in lexical order) holding an entry whose
// name ends with relPath and extracts it into the cache. Paths containing
// ".." are rejected before the filesystem is touched.
func (r *Resolver) Resolve(relPath string) (*Resource, error) {
	if strings.Contains(relPath, "..") {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPath, relPath)
	}
	rel := strings.TrimLeft(strings.ReplaceAll(relPath, "\\", "/"), "/")
	if rel == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}

	archives, err := r.archives()
	if err != nil {
		return nil, err
	}

	for _, archive := range archives {
		res, err := r.lookupIn(archive, rel)
		if errors.Is(err, ErrTooLarge) {
			return nil, err
		}
		if err != nil {
			r.log.Warn("skipping unreadable archive", zap.String("archive", archive), zap.Error(err))
			continue
		}
		if res != nil {
			return res, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrNotFound, relPath)
}

// archives lists the library files matching the archive glob, sorted.
func (r *Resolver) archives() ([]string, error) {
	root := r.cfg.LibraryDir
	if _, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("%w: library unavailable: %v", ErrNotFound, err)
	}

	var (
		mu    sync.Mutex
		found []string
	)
	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return nil
		}
		ok, err := doublestar.Match(r.cfg.ArchiveGlob, filepath.ToSlash(rel))
		if err != nil {
			return fmt.Errorf("bad archive glob %q: %w", r.cfg.ArchiveGlob, err)
		}
		if ok {
			mu.Lock()
			found = append(found, p)
			mu.Unlock()
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan library: %w", err)
	}

	sort.Strings(found)
	return found, nil
}

// lookupIn returns nil, nil when archive has no matching entry.
func (r *Resolver) lookupIn(archive, rel string) (*Resource, error) {
	zr, err := zip.OpenReader(archive)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !matchesSuffix(f.Name, rel) {
			continue
		}
		dest, err := r.extract(archive, f)
		if err != nil {
			return nil, err
		}
		r.log.Debug("resource resolved",
			zap.String("path", rel),
			zap.String("archive", archive),
			zap.String("entry", f.Name))
		return &Resource{
			Path:        dest,
			Archive:     archive,
			Entry:       f.Name,
			ContentType: ContentType(f.Name),
		}, nil
	}

	return nil, nil
}

// matchesSuffix reports whether entry ends with rel on a path boundary.
func matchesSuffix(entry, rel string) bool {
	entry = strings.ReplaceAll(entry, "\\", "/")
	return entry == rel || strings.HasSuffix(entry, "/"+rel)
}

// extract copies f to CacheDir/<archive base>/<entry>. An existing file of
// the same size is reused.
func (r *Resolver) extract(archive string, f *zip.File) (string, error) {
	base := strings.TrimSuffix(filepath.Base(archive), filepath.Ext(archive))
	dir := filepath.Join(r.cfg.CacheDir, base)
	entry := strings.TrimLeft(path.Clean("/"+strings.ReplaceAll(f.Name, "\\", "/")), "/")
	dest := filepath.Join(dir, filepath.FromSlash(entry))
	if !strings.HasPrefix(dest, filepath.Clean(dir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: unsafe entry %s", ErrInvalidPath, f.Name)
	}

	limit := r.cfg.MaxEntrySize
	if f.UncompressedSize64 > uint64(limit) {
		return "", fmt.Errorf("%w: %s is %d bytes (max %d)", ErrTooLarge, f.Name, f.UncompressedSize64, limit)
	}

	if info, err := os.Stat(dest); err == nil && uint64(info.Size()) == f.UncompressedSize64 {
		return dest, nil
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("failed to create cache directory: %w", err)
	}

	rc, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".extract-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	// Read one byte past the limit to catch forged size headers.
	n, err := io.Copy(tmp, io.LimitReader(rc, limit+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("failed to extract %s: %w", f.Name, err)
	}
	if n > limit {
		return "", fmt.Errorf("%w: %s exceeds %d bytes when decompressed", ErrTooLarge, f.Name, limit)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", fmt.Errorf("failed to move %s into cache: %w", f.Name, err)
	}

	return dest, nil
}
