package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// FileStore keeps each entry as <dir>/<h[:2]>/<h>.md plus a <h>.meta JSON
// sidecar, where h is the hex MD5 of the key.
type FileStore struct {
	dir string
	now nowFunc
}

// NewFileStore returns a store rooted at dir. The directory is created on
// first write.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir, now: time.Now}
}

// paths returns the body and sidecar paths for key.
func (s *FileStore) paths(key string) (body, meta string) {
	sum := md5.Sum([]byte(key))
	hash := hex.EncodeToString(sum[:])
	base := filepath.Join(s.dir, hash[:2], hash)
	return base + ".md", base + ".meta"
}

func (s *FileStore) Get(_ context.Context, key string) (string, error) {
	bodyPath, metaPath := s.paths(key)

	rawMeta, err := os.ReadFile(metaPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrCacheMiss
		}
		return "", fmt.Errorf("read cache meta: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(rawMeta, &entry); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	if entry.Expired(s.now()) {
		_ = os.Remove(bodyPath)
		_ = os.Remove(metaPath)
		return "", ErrCacheMiss
	}

	body, err := os.ReadFile(bodyPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrCacheMiss
		}
		return "", fmt.Errorf("read cache body: %w", err)
	}
	return string(body), nil
}

func (s *FileStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	bodyPath, metaPath := s.paths(key)

	if err := os.MkdirAll(filepath.Dir(bodyPath), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	entry := NewEntry(value, ttl, s.now())
	meta, err := json.Marshal(Entry{CreatedAt: entry.CreatedAt, TTL: entry.TTL, Size: entry.Size})
	if err != nil {
		return fmt.Errorf("marshal cache meta: %w", err)
	}

	// Body before meta: a readable meta file implies a complete body.
	if err := writeAtomic(bodyPath, []byte(value)); err != nil {
		return fmt.Errorf("write cache body: %w", err)
	}
	if err := writeAtomic(metaPath, meta); err != nil {
		return fmt.Errorf("write cache meta: %w", err)
	}
	return nil
}

func (s *FileStore) Delete(_ context.Context, key string) error {
	bodyPath, metaPath := s.paths(key)

	var errs []error
	for _, p := range []string{metaPath, bodyPath} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("delete cache files: %w", err)
	}
	return nil
}

// Flush removes every shard directory under the root.
func (s *FileStore) Flush(context.Context) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read cache dir: %w", err)
	}

	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(s.dir, e.Name())); err != nil {
			return fmt.Errorf("flush cache dir: %w", err)
		}
	}
	return nil
}

// Available reports whether the root directory exists or can be created.
func (s *FileStore) Available(context.Context) bool {
	return os.MkdirAll(s.dir, 0o755) == nil
}

func (s *FileStore) Name() string { return "file" }

// Dir returns the root directory.
func (s *FileStore) Dir() string { return s.dir }

// writeAtomic writes to a uniquely named temp file in the same directory and
// renames it over path.
func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp." + uuid.NewString()
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
