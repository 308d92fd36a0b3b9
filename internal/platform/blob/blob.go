// Package blob abstracts the object store holding uploaded source documents.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrNotFound is returned when the requested key does not exist.
var ErrNotFound = errors.New("blob: object not found")

type Store interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Upload(ctx context.Context, key string, r io.Reader, contentType string) error
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}

// Download copies key from store into localPath, creating parent directories.
// A partially written file is removed on failure.
func Download(ctx context.Context, store Store, key, localPath string) (err error) {
	rc, err := store.Open(ctx, key)
	if err != nil {
		return fmt.Errorf("open %s: %w", key, err)
	}
	defer rc.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return err
	}
	f, err := os.Create(localPath)
	if err != nil {
		return err
	}
	defer func() {
		cerr := f.Close()
		if err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(localPath)
		}
	}()
	if _, err = io.Copy(f, rc); err != nil {
		return fmt.Errorf("copy %s: %w", key, err)
	}
	return nil
}
