package epub

import (
	"errors"
	"fmt"
)

// ErrorKind classifies structural failures that abort a session.
type ErrorKind int

const (
	// KindNotAContainer means the byte stream is not a zip archive.
	KindNotAContainer ErrorKind = iota + 1
	// KindMissingContainer means META-INF/container.xml is absent.
	KindMissingContainer
	// KindMissingRootfile means container.xml names no usable rootfile.
	KindMissingRootfile
	// KindInvalidPackage means the package document is missing or unparsable.
	KindInvalidPackage
)

var (
	ErrNotAContainer    = errors.New("not a zip container")
	ErrMissingContainer = errors.New("META-INF/container.xml not found")
	ErrMissingRootfile  = errors.New("no rootfile found in container.xml")
	ErrInvalidPackage   = errors.New("package document is missing or invalid")
)

// Content derivation failures. They never escape a Session method; they are
// reported through Content.Err.
var (
	ErrFileNotFound = errors.New("file not found in workspace")
	ErrPathEscape   = errors.New("path escapes workspace")
	ErrUndecodable  = errors.New("content could not be decoded")
	ErrNoText       = errors.New("no text could be extracted")
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotAContainer:
		return "NotAContainer"
	case KindMissingContainer:
		return "MissingContainer"
	case KindMissingRootfile:
		return "MissingRootfile"
	case KindInvalidPackage:
		return "InvalidPackage"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindNotAContainer:
		return ErrNotAContainer
	case KindMissingContainer:
		return ErrMissingContainer
	case KindMissingRootfile:
		return ErrMissingRootfile
	case KindInvalidPackage:
		return ErrInvalidPackage
	default:
		return nil
	}
}

// ArchiveError reports a structural failure while opening an EPUB.
// errors.Is matches it against the sentinel of its Kind.
type ArchiveError struct {
	Kind ErrorKind
	Path string
	Err  error
}

func (e *ArchiveError) Error() string {
	msg := e.Kind.String()
	if sentinel := e.Kind.sentinel(); sentinel != nil {
		msg = sentinel.Error()
	}
	if e.Path != "" {
		msg = e.Path + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ArchiveError) Unwrap() error {
	return e.Err
}

func (e *ArchiveError) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

func newArchiveError(kind ErrorKind, path string, err error) *ArchiveError {
	return &ArchiveError{Kind: kind, Path: path, Err: err}
}
