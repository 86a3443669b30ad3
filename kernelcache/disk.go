package kernelcache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// diskSchemaVersion is stored in every entry; entries written with a
// different schema are treated as misses.
const diskSchemaVersion uint16 = 2

// diskStore keeps one msgpack file per entry under dir.
type diskStore struct {
	mu  sync.RWMutex
	dir string
}

func openDiskStore(dir string) (*diskStore, error) {
	if err := os.MkdirAll(filepath.Join(dir, "kernels"), 0o755); err != nil {
		return nil, fmt.Errorf("kernelcache: %w", err)
	}
	return &diskStore{dir: dir}, nil
}

func (d *diskStore) pathFor(key string) string {
	return filepath.Join(d.dir, "kernels", key+".mp")
}

// put writes e atomically: the entry is encoded into a temporary file in
// the same directory and renamed into place.
func (d *diskStore) put(e *Entry) (err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	p := d.pathFor(e.Key)
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(f.Name())
		}
	}()

	stored := *e
	stored.Schema = diskSchemaVersion
	if err = msgpack.NewEncoder(f).Encode(&stored); err != nil {
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), p)
}

// get reads the entry for key. A missing file or a stale schema is a
// miss, not an error.
func (d *diskStore) get(key string) (*Entry, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	f, err := os.Open(d.pathFor(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer f.Close()

	var e Entry
	if err := msgpack.NewDecoder(f).Decode(&e); err != nil {
		return nil, false, fmt.Errorf("kernelcache: %s: %w", key, err)
	}
	if e.Schema != diskSchemaVersion || e.Key != key {
		return nil, false, nil
	}
	return &e, true, nil
}

// dropAll removes every stored entry.
func (d *diskStore) dropAll() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	kernels := filepath.Join(d.dir, "kernels")
	if err := os.RemoveAll(kernels); err != nil {
		return err
	}
	return os.MkdirAll(kernels, 0o755)
}
