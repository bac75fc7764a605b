package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// linkFile publishes a finished temp file. Swapped in tests to simulate mounts without hard links.
var linkFile = os.Link

// fsStorage keeps blobs as files in one flat directory.
type fsStorage struct {
	baseDir string
}

// NewFS creates a filesystem-backed store rooted at baseDir, creating the directory if absent.
func NewFS(baseDir string) (Storage, error) {
	if baseDir == "" {
		return nil, errors.New("storage directory is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &fsStorage{baseDir: baseDir}, nil
}

// Put streams r into a temp file, syncs it, then hard-links it into place so a key never
// points at a partially written blob and an existing blob is never replaced. Where hard links
// are unsupported the key is reserved with O_EXCL and the temp file renamed over the reservation.
func (s *fsStorage) Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error) {
	if !validKey(key) {
		return ObjectInfo{}, ErrInvalidKey
	}
	if err := ctx.Err(); err != nil {
		return ObjectInfo{}, err
	}

	tmp, err := os.CreateTemp(s.baseDir, ".upload-*")
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	n, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return ObjectInfo{}, fmt.Errorf("write file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return ObjectInfo{}, fmt.Errorf("sync file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return ObjectInfo{}, fmt.Errorf("close file: %w", err)
	}
	if opt.Size > 0 && n != opt.Size {
		return ObjectInfo{}, fmt.Errorf("short write: got %d bytes, want %d", n, opt.Size)
	}

	if err := s.publish(tmpName, key); err != nil {
		return ObjectInfo{}, fmt.Errorf("publish file: %w", err)
	}

	info, err := os.Stat(s.Locate(key))
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("stat file: %w", err)
	}
	return ObjectInfo{
		Key:          key,
		Size:         n,
		ContentType:  opt.ContentType,
		LastModified: info.ModTime(),
		Metadata:     opt.Metadata,
	}, nil
}

func (s *fsStorage) publish(tmpName, key string) error {
	dst := s.Locate(key)
	err := linkFile(tmpName, dst)
	if err == nil || errors.Is(err, fs.ErrExist) {
		return err
	}

	reserved, rerr := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if rerr != nil {
		return rerr
	}
	reserved.Close()
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(dst)
		return err
	}
	return nil
}

// Get opens the blob stored under key.
func (s *fsStorage) Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	if !validKey(key) {
		return nil, ObjectInfo{}, ErrInvalidKey
	}
	f, err := os.Open(s.Locate(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ObjectInfo{}, ErrObjectNotFound
	} else if err != nil {
		return nil, ObjectInfo{}, fmt.Errorf("open file: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, ObjectInfo{}, fmt.Errorf("stat file: %w", err)
	}
	return f, ObjectInfo{Key: key, Size: st.Size(), LastModified: st.ModTime()}, nil
}

// Delete removes the blob stored under key.
func (s *fsStorage) Delete(ctx context.Context, key string) error {
	if !validKey(key) {
		return ErrInvalidKey
	}
	if err := os.Remove(s.Locate(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

// Locate returns the on-disk path for key.
func (s *fsStorage) Locate(key string) string {
	return filepath.Join(s.baseDir, key)
}
