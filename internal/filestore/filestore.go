// Package filestore provides read-modify-write access to JSON documents on
// disk guarded by an advisory lock that is shared across processes.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

var ErrLockTimeout = errors.New("file lock timeout")

// Locker serializes access to files through <path>.lock.
type Locker struct {
	retries int
	backoff time.Duration
}

// NewLocker creates a Locker that makes at most retries+1 attempts to take a
// lock, sleeping backoff*attempt between them.
func NewLocker(retries int, backoff time.Duration) *Locker {
	if retries < 0 {
		retries = 0
	}
	return &Locker{retries: retries, backoff: backoff}
}

// WithLockedFile takes an exclusive lock on path, hands the current content
// to fn (nil if the file does not exist) and atomically replaces the file
// with whatever fn returns. A nil result leaves the file untouched.
func (l *Locker) WithLockedFile(ctx context.Context, path string, fn func(data []byte) ([]byte, error)) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	lock := flock.New(path + ".lock")
	if err := l.acquire(ctx, lock.TryLock); err != nil {
		return fmt.Errorf("lock %s: %w", path, err)
	}
	defer lock.Unlock()

	data, err := readFile(path)
	if err != nil {
		return err
	}

	out, err := fn(data)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}

	return writeAtomic(path, out)
}

// ReadLocked reads path under a shared lock.
func (l *Locker) ReadLocked(ctx context.Context, path string) ([]byte, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create dir: %w", err)
	}

	lock := flock.New(path + ".lock")
	if err := l.acquire(ctx, lock.TryRLock); err != nil {
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	defer lock.Unlock()

	return readFile(path)
}

func (l *Locker) acquire(ctx context.Context, try func() (bool, error)) error {
	for attempt := 0; ; attempt++ {
		ok, err := try()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if attempt >= l.retries {
			return ErrLockTimeout
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.backoff * time.Duration(attempt+1)):
		}
	}
}

// Update runs a JSON read-modify-write of the document at path. A missing
// file decodes as the zero value of T.
func Update[T any](ctx context.Context, l *Locker, path string, fn func(doc *T) error) error {
	return l.WithLockedFile(ctx, path, func(data []byte) ([]byte, error) {
		var doc T
		if len(data) > 0 {
			if err := json.Unmarshal(data, &doc); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		}

		if err := fn(&doc); err != nil {
			return nil, err
		}

		out, err := json.MarshalIndent(&doc, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", path, err)
		}
		return out, nil
	})
}

// Read decodes the document at path under a shared lock.
func Read[T any](ctx context.Context, l *Locker, path string) (T, error) {
	var doc T
	data, err := l.ReadLocked(ctx, path)
	if err != nil {
		return doc, err
	}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
