package epub

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	"go.uber.org/zap"
)

// Session is a scoped handle over one opened EPUB. It owns a workspace
// directory holding the extracted archive; Close deletes it.
//
// A Session is not safe for concurrent use by multiple goroutines.
type Session struct {
	source      string
	workspace   string
	packagePath string
	baseDir     string
	files       map[string]bool   // extracted entry names
	folded      map[string]string // lower-case name -> entry name
	opts        Options
	log         *zap.Logger
	closed      bool
}

// Open opens the EPUB at path and extracts it into a fresh workspace.
func Open(path string, opts Options) (*Session, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, newArchiveError(KindNotAContainer, path, err)
	}
	defer zr.Close()

	return newSession(&zr.Reader, path, opts)
}

// NewSession opens an EPUB from r, which must hold size bytes.
// The caller keeps ownership of r.
func NewSession(r io.ReaderAt, size int64, opts Options) (*Session, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, newArchiveError(KindNotAContainer, "", err)
	}

	return newSession(zr, "", opts)
}

func newSession(zr *zip.Reader, source string, opts Options) (_ *Session, err error) {
	opts = opts.withDefaults()

	workspace, err := os.MkdirTemp(opts.ScratchDir, "epub-")
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}

	s := &Session{
		source:    source,
		workspace: workspace,
		files:     make(map[string]bool),
		folded:    make(map[string]string),
		opts:      opts,
		log:       opts.Logger.With(zap.String("workspace", workspace)),
	}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	if err := s.extractAll(zr); err != nil {
		return nil, err
	}

	containerPath, ok := s.lookup("META-INF/container.xml")
	if !ok {
		return nil, newArchiveError(KindMissingContainer, source, nil)
	}
	data, err := s.readEntry(containerPath)
	if err != nil {
		return nil, newArchiveError(KindMissingContainer, source, err)
	}

	opfPath, err := parseContainer(data)
	if err != nil {
		return nil, newArchiveError(KindMissingRootfile, source, err)
	}

	actual, ok := s.lookup(opfPath)
	if !ok {
		return nil, newArchiveError(KindInvalidPackage, source, fmt.Errorf("%w: %s", ErrFileNotFound, opfPath))
	}
	s.packagePath = actual
	s.baseDir = path.Dir(actual)

	if _, err := s.loadOPF(); err != nil {
		return nil, newArchiveError(KindInvalidPackage, source, err)
	}

	s.log.Debug("opened epub",
		zap.String("source", source),
		zap.String("package", s.packagePath),
		zap.Int("files", len(s.files)))

	return s, nil
}

// Close deletes the workspace. It is safe to call more than once.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if err := os.RemoveAll(s.workspace); err != nil {
		return fmt.Errorf("failed to remove workspace: %w", err)
	}
	return nil
}

// Workspace returns the directory holding the extracted archive.
func (s *Session) Workspace() string {
	return s.workspace
}

// PackagePath returns the workspace-relative path of the package document.
func (s *Session) PackagePath() string {
	return s.packagePath
}

// BaseDir returns the workspace-relative directory of the package document
// ("." when it sits at the archive root). Manifest hrefs are relative to it.
func (s *Session) BaseDir() string {
	return s.baseDir
}

// Path returns the filesystem path of a workspace-relative path.
func (s *Session) Path(rel string) (string, error) {
	cleaned := path.Clean(normalizePath(rel))
	if path.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %s", ErrPathEscape, rel)
	}
	return filepath.Join(s.workspace, filepath.FromSlash(cleaned)), nil
}

// packageRel converts a package-relative href to a workspace-relative path.
func (s *Session) packageRel(href string) string {
	return path.Join(s.baseDir, href)
}

// extractAll writes every archive entry below the workspace.
func (s *Session) extractAll(zr *zip.Reader) error {
	root := filepath.Clean(s.workspace) + string(os.PathSeparator)

	for _, f := range zr.File {
		name := strings.TrimLeft(normalizePath(f.Name), "/")
		if name == "" {
			continue
		}

		dest := filepath.Join(s.workspace, filepath.FromSlash(name))
		if !strings.HasPrefix(dest, root) {
			s.log.Warn("skipping unsafe archive entry", zap.String("entry", f.Name))
			continue
		}

		if f.FileInfo().IsDir() || strings.HasSuffix(name, "/") {
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", name, err)
			}
			continue
		}

		if err := s.extractFile(f, dest); err != nil {
			return err
		}

		name = path.Clean(name)
		s.files[name] = true
		s.folded[strings.ToLower(name)] = name
	}

	return nil
}

func (s *Session) extractFile(f *zip.File, dest string) error {
	limit := s.opts.MaxEntrySize
	if f.UncompressedSize64 > uint64(limit) {
		return fmt.Errorf("archive entry %s too large: %d bytes (max %d)", f.Name, f.UncompressedSize64, limit)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", f.Name, err)
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to open archive entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}

	// Read one byte past the limit to catch forged size headers.
	n, err := io.Copy(out, io.LimitReader(rc, limit+1))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to extract %s: %w", f.Name, err)
	}
	if n > limit {
		return fmt.Errorf("archive entry %s decompressed size exceeds limit (%d bytes)", f.Name, limit)
	}

	return nil
}

// lookup finds an extracted entry by workspace-relative name, first exactly,
// then case-insensitively.
func (s *Session) lookup(name string) (string, bool) {
	name = path.Clean(normalizePath(name))
	if s.files[name] {
		return name, true
	}
	actual, ok := s.folded[strings.ToLower(name)]
	return actual, ok
}

// readEntry reads an extracted entry by its exact workspace-relative name.
func (s *Session) readEntry(name string) ([]byte, error) {
	p, err := s.Path(name)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(p)
}

// readFile reads a workspace-relative path, tolerating percent-encoded
// hrefs and case mismatches.
func (s *Session) readFile(rel string) ([]byte, error) {
	name, ok := s.lookup(rel)
	if !ok {
		if unescaped, err := url.PathUnescape(rel); err == nil && unescaped != rel {
			name, ok = s.lookup(unescaped)
		}
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, rel)
	}

	data, err := s.readEntry(name)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", rel, err)
	}
	return data, nil
}

// exists reports whether a workspace-relative path names an extracted file.
func (s *Session) exists(rel string) bool {
	_, ok := s.lookup(rel)
	return ok
}

// normalizePath normalizes archive paths (forward slashes, no ./ prefix)
func normalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	for strings.HasPrefix(p, "./") {
		p = strings.TrimPrefix(p, "./")
	}
	return p
}
