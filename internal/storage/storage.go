// Package storage keeps avatar blobs in a pluggable object store.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Sentinel errors to help callers distinguish failure reasons.
var (
	ErrInvalidObject = errors.New("storage: invalid object")
	ErrInvalidKey    = errors.New("storage: invalid key")
	ErrNotFound      = errors.New("storage: object not found")
)

// Object is the payload handed to a backend on upload.
type Object struct {
	Key         string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// DownloadResult bundles the stream returned by a backend and some metadata.
// Callers must close Reader.
type DownloadResult struct {
	Reader      io.ReadCloser
	ContentType string
	Size        int64
}

// Storage describes the operations every backend supports.
type Storage interface {
	Upload(ctx context.Context, obj *Object) error
	Download(ctx context.Context, key string) (*DownloadResult, error)
	Delete(ctx context.Context, key string) error
}

// ValidateObject performs a light validation of the input object before delegating to providers.
func ValidateObject(obj *Object) error {
	if obj == nil || obj.Reader == nil {
		return fmt.Errorf("%w: missing data stream", ErrInvalidObject)
	}
	if err := ValidateKey(obj.Key); err != nil {
		return err
	}
	return nil
}

// ValidateKey accepts flat object names only. Separators and dot segments
// are rejected so a key can never escape its container or directory.
func ValidateKey(key string) error {
	switch {
	case key == "", key == ".", key == "..":
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	case strings.ContainsAny(key, `/\`), strings.Contains(key, ".."):
		return fmt.Errorf("%w: path traversal in %q", ErrInvalidKey, key)
	case strings.ContainsRune(key, 0):
		return fmt.Errorf("%w: NUL byte", ErrInvalidKey)
	}
	return nil
}
