package storage

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Bucket persists uploaded objects on disk under a base directory and
// resolves their public URLs. Keys are generated so that no two uploads
// race on the same name; from the workflows' perspective the bucket is
// append-only.
type Bucket struct {
	baseDir       string
	publicBaseURL string
}

// NewBucket ensures the base directory exists and returns a handle.
func NewBucket(baseDir, publicBaseURL string) (*Bucket, error) {
	if baseDir == "" {
		baseDir = "./uploads"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create uploads directory: %w", err)
	}
	return &Bucket{
		baseDir:       baseDir,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}, nil
}

// UniqueKey derives a collision-free object key from the original file
// name, prefixing a timestamp and a short random suffix.
func (b *Bucket) UniqueKey(filename string) string {
	base := filepath.Base(filename)
	base = strings.ReplaceAll(base, " ", "_")
	buf := make([]byte, 4)
	suffix := fmt.Sprintf("%d", time.Now().UnixNano())
	if _, err := rand.Read(buf); err == nil {
		suffix = hex.EncodeToString(buf)
	}
	return fmt.Sprintf("%d-%s-%s", time.Now().UTC().Unix(), suffix, base)
}

// SaveStream copies from reader into the object identified by key.
func (b *Bucket) SaveStream(key string, r io.Reader) error {
	path := b.resolve(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("prepare upload directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create upload file: %w", err)
	}
	defer file.Close() //nolint:errcheck
	if _, err := io.Copy(file, r); err != nil {
		return fmt.Errorf("write upload stream: %w", err)
	}
	return nil
}

// Save writes the given bytes under key.
func (b *Bucket) Save(key string, data []byte) error {
	path := b.resolve(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("prepare upload directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write upload file: %w", err)
	}
	return nil
}

// Open returns a read-only handle for the stored object.
func (b *Bucket) Open(key string) (*os.File, error) {
	file, err := os.Open(b.resolve(key))
	if err != nil {
		return nil, fmt.Errorf("open upload file: %w", err)
	}
	return file, nil
}

// Delete removes a stored object if present.
func (b *Bucket) Delete(key string) error {
	if err := os.Remove(b.resolve(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete upload file: %w", err)
	}
	return nil
}

// PublicURL returns the publicly resolvable URL for an object key.
func (b *Bucket) PublicURL(key string) string {
	return b.publicBaseURL + "/" + key
}

// Dir exposes the base directory, used to mount the static file route.
func (b *Bucket) Dir() string {
	return b.baseDir
}

func (b *Bucket) resolve(key string) string {
	return filepath.Join(b.baseDir, filepath.Clean("/"+key))
}
