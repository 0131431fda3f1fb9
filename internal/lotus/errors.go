package lotus

import (
	"errors"
	"fmt"
)

var (
	// ErrNotPage is matched by every *PageClassificationError.
	ErrNotPage = errors.New("not a lotus page")
	// ErrNotMedia is matched by every *MediaClassificationError.
	ErrNotMedia = errors.New("not a usable media file")
	// ErrUnresolvedReference is matched by every *UnresolvedReferenceError.
	ErrUnresolvedReference = errors.New("unresolved reference")
)

// PageClassificationError reports that a document is not a recognizable logbook page.
// Callers recover by trying the next classifier or skipping the file.
type PageClassificationError struct {
	Path   string
	Reason string
	Err    error
}

func (e *PageClassificationError) Error() string {
	msg := fmt.Sprintf("%s: not a page: %s", e.Path, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PageClassificationError) Unwrap() error { return e.Err }

func (e *PageClassificationError) Is(target error) bool { return target == ErrNotPage }

// MediaClassificationError reports that a path cannot be used as media.
type MediaClassificationError struct {
	Path   string
	Reason string
	Err    error
}

func (e *MediaClassificationError) Error() string {
	msg := fmt.Sprintf("%s: not media: %s", e.Path, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MediaClassificationError) Unwrap() error { return e.Err }

func (e *MediaClassificationError) Is(target error) bool { return target == ErrNotMedia }

// UnresolvedReferenceError reports a cross-reference or media key that cannot be mapped.
// It is fatal: the archive or the corpus is inconsistent.
type UnresolvedReferenceError struct {
	// Page is the source path or archive key of the referencing page.
	Page string
	// Key is the content hash or path that could not be resolved.
	Key    string
	Target string
}

func (e *UnresolvedReferenceError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("%s: unresolved reference %s -> %s", e.Page, e.Key, e.Target)
	}
	return fmt.Sprintf("%s: unresolved reference %s", e.Page, e.Key)
}

func (e *UnresolvedReferenceError) Is(target error) bool { return target == ErrUnresolvedReference }

func notPage(path, reason string, err error) error {
	return &PageClassificationError{Path: path, Reason: reason, Err: err}
}

func notMedia(path, reason string, err error) error {
	return &MediaClassificationError{Path: path, Reason: reason, Err: err}
}
