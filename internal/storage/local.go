package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
)

// LocalStorage implements the Storage interface by persisting files on disk.
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates basePath if needed.
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("local storage: mkdir failed: %w", err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

func (s *LocalStorage) Upload(ctx context.Context, obj *Object) error {
	if err := ValidateObject(obj); err != nil {
		return err
	}

	// Write to a temp file first so a failed copy never leaves a partial object
	tmp, err := os.CreateTemp(s.basePath, ".upload-*")
	if err != nil {
		return fmt.Errorf("local storage: create file failed: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, obj.Reader); err != nil {
		tmp.Close()
		return fmt.Errorf("local storage: write failed: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("local storage: close failed: %w", err)
	}

	if err := os.Rename(tmp.Name(), filepath.Join(s.basePath, obj.Key)); err != nil {
		return fmt.Errorf("local storage: rename failed: %w", err)
	}
	return nil
}

func (s *LocalStorage) Download(ctx context.Context, key string) (*DownloadResult, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	fullPath := filepath.Join(s.basePath, key)
	handle, err := os.Open(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("local storage: open failed: %w", err)
	}

	info, err := handle.Stat()
	if err != nil {
		handle.Close()
		return nil, fmt.Errorf("local storage: stat failed: %w", err)
	}

	mtype, err := mimetype.DetectReader(handle)
	if err != nil {
		handle.Close()
		return nil, fmt.Errorf("local storage: sniff failed: %w", err)
	}
	if _, err := handle.Seek(0, io.SeekStart); err != nil {
		handle.Close()
		return nil, fmt.Errorf("local storage: seek failed: %w", err)
	}

	return &DownloadResult{
		Reader:      handle,
		Size:        info.Size(),
		ContentType: mtype.String(),
	}, nil
}

func (s *LocalStorage) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	fullPath := filepath.Join(s.basePath, key)
	if err := os.Remove(fullPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("local storage: delete failed: %w", err)
	}
	return nil
}
