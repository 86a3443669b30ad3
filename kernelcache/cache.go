// Package kernelcache caches compiled kernels by IR fingerprint.
//
// A producer that offloads the same callable many times compiles it once:
// concurrent lookups of one fingerprint share a single compilation, hot
// kernels stay in an in-memory LRU, and an optional directory keeps them
// across processes.
package kernelcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/gogpu/parallax/ir"
	"github.com/gogpu/parallax/spirv"
)

// DefaultCapacity is the in-memory entry limit used when Options.Capacity
// is not positive.
const DefaultCapacity = 256

// Entry is a cached kernel.
type Entry struct {
	Schema      uint16          `msgpack:"schema"`
	Key         string          `msgpack:"key"`
	Fingerprint string          `msgpack:"fingerprint"`
	Name        string          `msgpack:"name"`
	SPIRV       []byte          `msgpack:"spirv"`
	ABI         spirv.KernelABI `msgpack:"abi"`

	// Unsupported holds the fallback reports of the compilation that
	// produced SPIRV. Cache hits return them unchanged.
	Unsupported []*spirv.Error `msgpack:"unsupported,omitempty"`
}

// Options configures a Cache.
type Options struct {
	// Capacity bounds the in-memory LRU.
	Capacity int

	// Dir enables the disk store when non-empty.
	Dir string

	// SPIRV are the generator options every kernel is compiled with.
	// They are part of the cache key.
	SPIRV spirv.Options
}

// Stats are cumulative cache counters.
type Stats struct {
	Hits      uint64
	DiskHits  uint64
	Misses    uint64
	Compiles  uint64
	Evictions uint64
}

// Cache is safe for concurrent use.
type Cache struct {
	opts    Options
	salt    string
	mem     *lru
	disk    *diskStore
	group   singleflight.Group
	compile func(*ir.Module, spirv.Options) (*spirv.Result, error)

	hits      atomic.Uint64
	diskHits  atomic.Uint64
	misses    atomic.Uint64
	compiles  atomic.Uint64
	evictions atomic.Uint64
}

// New creates a cache. When opts.Dir is set the directory is created if
// needed.
func New(opts Options) (*Cache, error) {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.SPIRV.EntryPoint == "" {
		opts.SPIRV.EntryPoint = spirv.DefaultEntryPoint
	}
	c := &Cache{
		opts:    opts,
		salt:    optionsSalt(opts.SPIRV),
		mem:     newLRU(opts.Capacity),
		compile: spirv.Compile,
	}
	if opts.Dir != "" {
		d, err := openDiskStore(opts.Dir)
		if err != nil {
			return nil, err
		}
		c.disk = d
	}
	return c, nil
}

// optionsSalt distinguishes kernels of the same module compiled with
// different generator options.
func optionsSalt(o spirv.Options) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%t|%t|%t|%s|%v", o.Version, o.Debug, o.Validation, o.FailOnUnsupported, o.EntryPoint, o.Capabilities)
	return hex.EncodeToString(h.Sum(nil))[:12]
}

// Key returns the cache key of m under the cache's options.
func (c *Cache) Key(m *ir.Module) (key, fingerprint string, err error) {
	fingerprint, err = ir.Fingerprint(m)
	if err != nil {
		return "", "", err
	}
	return fingerprint + "-" + c.salt, fingerprint, nil
}

// Get returns the kernel for m, compiling it at most once per key no
// matter how many goroutines ask concurrently. Cancelling ctx abandons
// the wait but not a compilation other callers share.
func (c *Cache) Get(ctx context.Context, m *ir.Module) (*Entry, error) {
	if m == nil {
		return nil, errors.New("kernelcache: nil module")
	}
	key, fp, err := c.Key(m)
	if err != nil {
		return nil, err
	}
	if e, ok := c.mem.get(key); ok {
		c.hits.Add(1)
		slogger().Debug("kernelcache: hit", "module", m.Name, "key", key)
		return e, nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		return c.load(key, fp, m)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*Entry), nil
	}
}

// load runs once per key among concurrent callers.
func (c *Cache) load(key, fp string, m *ir.Module) (*Entry, error) {
	if e, ok := c.mem.get(key); ok {
		c.hits.Add(1)
		return e, nil
	}
	if c.disk != nil {
		e, ok, err := c.disk.get(key)
		if err != nil {
			slogger().Warn("kernelcache: disk read failed", "key", key, "err", err)
		}
		if ok {
			c.diskHits.Add(1)
			c.store(key, e)
			slogger().Debug("kernelcache: disk hit", "module", m.Name, "key", key)
			return e, nil
		}
	}

	c.misses.Add(1)
	result, err := c.compile(m, c.opts.SPIRV)
	if err != nil {
		return nil, fmt.Errorf("kernelcache: %s: %w", m.Name, err)
	}
	c.compiles.Add(1)
	e := &Entry{
		Schema:      diskSchemaVersion,
		Key:         key,
		Fingerprint: fp,
		Name:        m.Name,
		SPIRV:       result.Binary,
		ABI:         result.ABI,
		Unsupported: result.Unsupported,
	}
	c.store(key, e)
	if c.disk != nil {
		if err := c.disk.put(e); err != nil {
			slogger().Warn("kernelcache: disk write failed", "key", key, "err", err)
		}
	}
	slogger().Debug("kernelcache: compiled", "module", m.Name, "key", key, "bytes", len(e.SPIRV))
	return e, nil
}

func (c *Cache) store(key string, e *Entry) {
	if n := c.mem.put(key, e); n > 0 {
		c.evictions.Add(uint64(n))
		slogger().Debug("kernelcache: evicted", "count", n)
	}
}

// Len returns the number of in-memory entries.
func (c *Cache) Len() int { return c.mem.len() }

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		DiskHits:  c.diskHits.Load(),
		Misses:    c.misses.Load(),
		Compiles:  c.compiles.Load(),
		Evictions: c.evictions.Load(),
	}
}

// Purge drops every entry from memory and disk.
func (c *Cache) Purge() error {
	c.mem.clear()
	if c.disk != nil {
		return c.disk.dropAll()
	}
	return nil
}
