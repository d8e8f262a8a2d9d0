package kv

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const lockFilename = ".lock"

// File stores each key as <dir>/<key>.json.
type File struct {
	dir string

	// mu orders writers in this process; flock on a shared descriptor
	// does not.
	mu   sync.Mutex
	lock *os.File
}

// OpenFile opens a file backend rooted at dir, creating it if needed.
func OpenFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	lock, err := os.OpenFile(filepath.Join(dir, lockFilename), os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}
	return &File{dir: dir, lock: lock}, nil
}

// Dir returns the root directory.
func (f *File) Dir() string {
	return f.dir
}

// PathFor returns the file holding key.
func (f *File) PathFor(key string) string {
	return filepath.Join(f.dir, key+".json")
}

// Get implements Backend.
func (f *File) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.PathFor(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return data, nil
}

// Put implements Backend. Writers in other processes are excluded for the
// duration of the write.
func (f *File) Put(ctx context.Context, key string, value []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return f.withLock(func() error {
		return WriteFileAtomic(f.PathFor(key), value, false)
	})
}

// Delete implements Backend.
func (f *File) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return f.withLock(func() error {
		err := os.Remove(f.PathFor(key))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to delete %s: %w", key, err)
		}
		return nil
	})
}

// Update implements Backend under the directory lock.
func (f *File) Update(ctx context.Context, key string, fn func(old []byte) ([]byte, error)) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return f.withLock(func() error {
		old, err := os.ReadFile(f.PathFor(key))
		switch {
		case errors.Is(err, fs.ErrNotExist):
			old = nil
		case err != nil:
			return fmt.Errorf("failed to read %s: %w", key, err)
		}
		value, err := fn(old)
		if err != nil {
			return err
		}
		return WriteFileAtomic(f.PathFor(key), value, false)
	})
}

// Close releases the lock file.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lock == nil {
		return nil
	}
	err := f.lock.Close()
	f.lock = nil
	if err != nil {
		return fmt.Errorf("failed to close lock file: %w", err)
	}
	return nil
}

func (f *File) withLock(fn func() error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lock == nil {
		return fmt.Errorf("file backend is closed")
	}
	if err := lockFile(f.lock); err != nil {
		return fmt.Errorf("failed to lock data directory: %w", err)
	}
	defer func() { _ = unlockFile(f.lock) }()
	return fn()
}

// WriteFileAtomic writes data to a temp file next to path and renames it
// over path, so readers see either the old or the new content. With backup
// set, an existing file is first copied to path.backup.<timestamp>.
func WriteFileAtomic(path string, data []byte, backup bool) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if backup {
		prev, err := os.ReadFile(path)
		switch {
		case err == nil:
			backupPath := path + ".backup." + time.Now().Format("20060102-150405")
			if err := os.WriteFile(backupPath, prev, 0600); err != nil {
				return fmt.Errorf("failed to create backup: %w", err)
			}
		case !errors.Is(err, fs.ErrNotExist):
			return fmt.Errorf("failed to read existing file for backup: %w", err)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err = os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
