// Package storage is the content store: uploaded bytes are persisted as blobs under
// collision-resistant keys and read back by key. Blobs are written once and never renamed
// or overwritten.
package storage

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// ErrObjectNotFound is returned when no blob exists under a key.
var ErrObjectNotFound = errors.New("object not found")

// ErrInvalidKey is returned for keys that could escape the flat key space.
var ErrInvalidKey = errors.New("invalid storage key")

// maxOriginalNameLen bounds the original-name suffix so keys fit the 255 char filename column.
const maxOriginalNameLen = 200

// PutObjectOptions define optional parameters for uploading objects.
// Size should be the exact number of bytes if known; if unknown, set to -1 and the implementation
// will buffer/chunk as supported by the backend.
// ContentType and Metadata are optional.
type PutObjectOptions struct {
	Size        int64
	ContentType string
	Metadata    map[string]string
}

// ObjectInfo contains basic information about an object in storage.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
	Metadata     map[string]string
}

// Storage is a blob store addressed by flat keys.
// Implementations are safe for concurrent use; distinct keys never contend.
type Storage interface {
	// Put writes the full stream under key before returning.
	Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error)
	// Get retrieves an object's content as a streaming reader alongside its info.
	// It returns ErrObjectNotFound when the blob is absent.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	// Delete removes an object by key. Removing a missing object is not an error.
	Delete(ctx context.Context, key string) error
	// Locate resolves a key to the blob's location without checking that it exists.
	Locate(key string) string
}

// NewKey derives a unique storage key from a 128-bit random identifier and the original file name.
func NewKey(originalName string) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "") + "_" + sanitizeName(originalName)
}

// Save stores r under a fresh key derived from originalName and returns the stored object's info.
func Save(ctx context.Context, s Storage, originalName string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error) {
	if r == nil {
		return ObjectInfo{}, errors.New("reader is nil")
	}
	return s.Put(ctx, NewKey(originalName), r, opt)
}

func sanitizeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	if name == "." || name == "/" || name == ".." || name == "" {
		return "file"
	}
	if len(name) > maxOriginalNameLen {
		// Keep the tail (extension) and cut on a rune boundary so keys stay valid UTF-8.
		cut := len(name) - maxOriginalNameLen
		for cut < len(name) && !utf8.RuneStart(name[cut]) {
			cut++
		}
		name = name[cut:]
	}
	return name
}

func validKey(key string) bool {
	if key == "" || key == "." || key == ".." {
		return false
	}
	return !strings.ContainsAny(key, "/\\\x00")
}
