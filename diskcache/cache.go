package diskcache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"os"
	"strconv"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	platformerrors "github.com/jmgilman/go/errors"

	"github.com/IvanBrykalov/imgcache/cache"
)

// InternalVersion is the on-disk format version. Bumping it invalidates
// every existing cache directory.
const InternalVersion = 1

const valueCount = 2

// entry is the bookkeeping for one hashed key. Guarded by Cache.mu.
type entry struct {
	hash     string
	lengths  [valueCount]int64
	readable bool // has a committed value
	editor   *Editor
	readers  int  // open snapshots
	doomed   bool // removed while pinned; files go away on the last Close
	elem     *list.Element
}

func (e *entry) size() int64 { return e.lengths[0] + e.lengths[1] }

// Cache is a journaled LRU disk cache. A single mutex guards the index,
// the LRU order, the size and the journal; per-key exclusivity comes from
// editor and snapshot pins.
type Cache struct {
	mu      sync.Mutex
	fs      billy.Filesystem
	log     *slog.Logger
	metrics cache.Metrics

	appVersion int
	maxSize    int64
	size       int64

	entries map[string]*entry
	lru     *list.List // front = MRU, values are *entry
	// doomed holds dropped entries whose files open snapshots still read.
	// Their hash takes no new editor until the last snapshot closes.
	doomed map[string]*entry

	journal   billy.File
	redundant int

	degraded bool
	closed   bool
}

// Open opens (or creates) a disk cache. Configuration mistakes are returned
// as errors; an unusable directory yields a degraded cache and a nil error.
func Open(opt Options) (*Cache, error) {
	if opt.MaxSize <= 0 {
		return nil, platformerrors.New(platformerrors.CodeInvalidConfig, "disk cache max size must be positive")
	}
	if opt.FS == nil && opt.Dir == "" {
		return nil, platformerrors.New(platformerrors.CodeInvalidConfig, "disk cache needs a directory or filesystem")
	}
	if opt.AppVersion <= 0 {
		opt.AppVersion = 1
	}
	if opt.Metrics == nil {
		opt.Metrics = cache.NoopMetrics{}
	}
	lg := opt.Logger
	if lg == nil {
		lg = slog.Default()
	}
	name := opt.Name
	if name == "" {
		name = "disk"
	}

	c := &Cache{
		fs:         opt.FS,
		log:        lg.With(slog.String("cache", name)),
		metrics:    opt.Metrics,
		appVersion: opt.AppVersion,
		maxSize:    opt.MaxSize,
		entries:    make(map[string]*entry),
		lru:        list.New(),
		doomed:     make(map[string]*entry),
	}

	if c.fs == nil {
		if err := osfs.Default.MkdirAll(opt.Dir, 0o755); err != nil {
			c.degrade("create directory", err)
			return c, nil
		}
		c.fs = osfs.New(opt.Dir)
	}

	if err := c.load(); err != nil {
		c.degrade("open", err)
		return c, nil
	}
	c.mu.Lock()
	c.trimLocked(c.maxSize)
	c.mu.Unlock()
	c.log.Debug("disk cache opened",
		slog.Int("entries", len(c.entries)), slog.Int64("size", c.size))
	return c, nil
}

// HashKey maps a cache key to its on-disk file stem.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func cleanPath(hash string, i int) string { return hash + "." + strconv.Itoa(i) }
func dirtyPath(hash string, i int) string { return cleanPath(hash, i) + ".tmp" }

// FS returns the filesystem holding the cache files. Paths returned by
// editors and snapshots are relative to it. Nil in degraded mode.
func (c *Cache) FS() billy.Filesystem {
	if c.Degraded() {
		return nil
	}
	return c.fs
}

// Degraded reports whether the cache fell back to no-op mode.
func (c *Cache) Degraded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.degraded
}

// OpenEditor starts a write for key. It returns nil when another editor is
// open for key, when a snapshot of key (or of a removed value of key) is
// still open, or when the cache is closed or degraded.
func (c *Cache) OpenEditor(key string) *Editor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.openEditorLocked(key)
}

func (c *Cache) openEditorLocked(key string) *Editor {
	if c.closed || c.degraded {
		return nil
	}
	h := HashKey(key)
	if c.doomed[h] != nil {
		return nil
	}
	e := c.entries[h]
	if e != nil && (e.editor != nil || e.readers > 0) {
		return nil
	}
	if e == nil {
		e = &entry{hash: h}
		c.entries[h] = e
	}
	if !c.appendLocked(recDirty, h) {
		if !e.readable {
			delete(c.entries, h)
		}
		return nil
	}
	ed := &Editor{c: c, e: e, key: key}
	e.editor = ed
	return ed
}

// OpenSnapshot returns a read lease on key's committed value, or nil. A
// value being replaced by an open editor reads as absent.
func (c *Cache) OpenSnapshot(key string) *Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.degraded {
		return nil
	}
	h := HashKey(key)
	e := c.entries[h]
	if e == nil || !e.readable || e.editor != nil {
		c.metrics.Miss()
		return nil
	}
	e.readers++
	c.lru.MoveToFront(e.elem)
	c.appendLocked(recRead, h)
	c.metrics.Hit()
	return &Snapshot{c: c, e: e, key: key, lengths: e.lengths}
}

// Exist reports whether key has a committed value.
func (c *Cache) Exist(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.degraded {
		return false
	}
	e := c.entries[HashKey(key)]
	return e != nil && e.readable
}

// Remove deletes key's committed value. A pinned entry disappears at once
// but its files survive until the last snapshot closes.
func (c *Cache) Remove(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.degraded {
		return false
	}
	e := c.entries[HashKey(key)]
	if e == nil || !e.readable {
		return false
	}
	c.dropLocked(e)
	c.metrics.Size(c.lenLocked(), c.size)
	return true
}

// Clear removes every committed entry. Pinned entries follow Remove rules;
// writes in progress are left to finish.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.degraded {
		return
	}
	for el := c.lru.Back(); el != nil; {
		prev := el.Prev()
		c.dropLocked(el.Value.(*entry))
		c.metrics.Evict(cache.EvictClear)
		el = prev
	}
	c.metrics.Size(c.lenLocked(), c.size)
}

// Size returns the bytes held by committed entries.
func (c *Cache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

func (c *Cache) MaxSize() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxSize
}

// SetMaxSize changes the budget and evicts down to it.
func (c *Cache) SetMaxSize(n int64) {
	if n <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maxSize = n
	c.trimLocked(n)
}

// Len returns the number of committed entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lenLocked()
}

// Close releases the journal. Open editors fail on Commit afterwards.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.journal != nil {
		err := c.journal.Close()
		c.journal = nil
		if err != nil {
			return ioError(err, "close journal", journalFile)
		}
	}
	return nil
}

// -------------------- internals (mu held) --------------------

func (c *Cache) lenLocked() int { return c.lru.Len() }

// dropLocked forgets e's committed value and deletes its files unless a
// snapshot still reads them.
func (c *Cache) dropLocked(e *entry) {
	if e.elem != nil {
		c.lru.Remove(e.elem)
		e.elem = nil
	}
	if e.readable {
		c.size -= e.size()
		e.readable = false
	}
	e.lengths = [valueCount]int64{}
	c.appendLocked(recRemove, e.hash)
	if e.editor == nil {
		delete(c.entries, e.hash)
	}
	if e.readers > 0 {
		e.doomed = true
		c.doomed[e.hash] = e
		return
	}
	c.deleteFiles(e.hash, false)
}

// trimLocked evicts least recently used entries that nobody reads or
// writes until size <= target.
func (c *Cache) trimLocked(target int64) {
	for el := c.lru.Back(); el != nil && c.size > target; {
		prev := el.Prev()
		e := el.Value.(*entry)
		if e.readers == 0 && e.editor == nil {
			c.dropLocked(e)
			c.metrics.Evict(cache.EvictCapacity)
		}
		el = prev
	}
	c.metrics.Size(c.lenLocked(), c.size)
}

// deleteFiles removes an entry's files; dirty ones too when withDirty.
func (c *Cache) deleteFiles(hash string, withDirty bool) {
	for i := 0; i < valueCount; i++ {
		c.removeFile(cleanPath(hash, i))
		if withDirty {
			c.removeFile(dirtyPath(hash, i))
		}
	}
}

func (c *Cache) removeFile(path string) {
	if err := c.fs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		c.log.Warn("remove cache file", slog.String("path", path), slog.Any("error", err))
	}
}

// degrade switches the cache to no-op mode.
func (c *Cache) degrade(op string, err error) {
	c.log.Warn("disk cache unusable, continuing without it",
		slog.String("op", op), slog.Any("error", err))
	c.degraded = true
	if c.journal != nil {
		_ = c.journal.Close()
		c.journal = nil
	}
	c.entries = make(map[string]*entry)
	c.doomed = make(map[string]*entry)
	c.lru.Init()
	c.size = 0
}
