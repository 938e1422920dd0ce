package checkpoint

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Key identifies one stored checkpoint blob: the CLI uses the module
// path (FileStore keeps only its base name; --checkpoint names the
// directory), an embedder any tag it chooses.
type Key string

// Store persists and retrieves encoded checkpoint blobs, the same
// Get/Add/Delete shape as internal/compilationcache.Cache, repurposed
// here from caching compiled code to storing checkpoint snapshots.
type Store interface {
	// Get returns the stored content for key, or ok=false if absent.
	// content.Close() is the caller's responsibility.
	Get(key Key) (content io.ReadCloser, ok bool, err error)
	// Add stores content under key, overwriting any prior entry.
	Add(key Key, content io.Reader) error
	// Delete removes key's entry; a no-op if absent.
	Delete(key Key) error
}

// FileStore persists each key as one file under dir, grounded on
// compilationcache's fileCache (path-join + os.Create/Open/Remove,
// one RWMutex serializing Add/Delete against concurrent Get), minus
// fileCache's content-addressed hex filename scheme: checkpoint keys
// are already caller-chosen identifiers, not cache-computed hashes.
type FileStore struct {
	dir   string
	dirOk bool
	mu    sync.RWMutex
}

// NewFileStore returns a Store that persists entries as files under
// dir, creating dir on first Add if it does not yet exist.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (fs *FileStore) path(key Key) string {
	return filepath.Join(fs.dir, filepath.Base(string(key)))
}

type fileReadCloser struct {
	*os.File
	fs *FileStore
}

func (f *fileReadCloser) Close() error {
	defer f.fs.mu.RUnlock()
	return f.File.Close()
}

func (fs *FileStore) Get(key Key) (content io.ReadCloser, ok bool, err error) {
	fs.mu.RLock()
	unlock := fs.mu.RUnlock
	defer func() {
		if unlock != nil {
			unlock()
		}
	}()

	f, err := os.Open(fs.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	} else if err != nil {
		return nil, false, err
	}
	// Unlock is deferred to fileReadCloser.Close instead.
	unlock = nil
	return &fileReadCloser{File: f, fs: fs}, true, nil
}

func (fs *FileStore) Add(key Key, content io.Reader) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := fs.requireDir(); err != nil {
		return err
	}
	file, err := os.Create(fs.path(key))
	if err != nil {
		return err
	}
	defer file.Close()
	_, err = io.Copy(file, content)
	return err
}

func (fs *FileStore) Delete(key Key) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	err := os.Remove(fs.path(key))
	if errors.Is(err, os.ErrNotExist) {
		err = nil
	}
	return err
}

func (fs *FileStore) requireDir() error {
	if fs.dirOk {
		return nil
	}
	if s, err := os.Stat(fs.dir); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(fs.dir, 0o700); err != nil {
			return fmt.Errorf("checkpoint: couldn't create dir %s: %w", fs.dir, err)
		}
	} else if err != nil {
		return fmt.Errorf("checkpoint: couldn't open dir %s: %w", fs.dir, err)
	} else if !s.IsDir() {
		return fmt.Errorf("checkpoint: expected dir at %s", fs.dir)
	}
	fs.dirOk = true
	return nil
}
