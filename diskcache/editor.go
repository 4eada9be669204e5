package diskcache

import (
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

// Editor is the write lease on one key. Files are written to temporary
// paths and published by Commit; Abort leaves any prior value intact.
// An Editor is not safe for concurrent use.
type Editor struct {
	c     *Cache
	e     *entry
	key   string
	files []billy.File
	done  bool
}

// Key returns the key being written.
func (ed *Editor) Key() string { return ed.key }

// DataPath is the temporary path of the data file, relative to Cache.FS.
func (ed *Editor) DataPath() string { return dirtyPath(ed.e.hash, 0) }

// MetadataPath is the temporary path of the metadata file.
func (ed *Editor) MetadataPath() string { return dirtyPath(ed.e.hash, 1) }

// Create opens file i (0 data, 1 metadata) for writing, truncating it.
// Files created here are closed by Commit or Abort.
func (ed *Editor) Create(i int) (billy.File, error) {
	if i < 0 || i >= valueCount {
		return nil, ErrInvalidIndex
	}
	if ed.done {
		return nil, ErrEditorDone
	}
	path := dirtyPath(ed.e.hash, i)
	f, err := ed.c.fs.Create(path)
	if err != nil {
		return nil, ioError(err, "create", path)
	}
	ed.files = append(ed.files, f)
	return f, nil
}

// Write stores data as file i in one call.
func (ed *Editor) Write(i int, data []byte) error {
	if i < 0 || i >= valueCount {
		return ErrInvalidIndex
	}
	if ed.done {
		return ErrEditorDone
	}
	path := dirtyPath(ed.e.hash, i)
	if err := util.WriteFile(ed.c.fs, path, data, 0o644); err != nil {
		return ioError(err, "write", path)
	}
	return nil
}

// WriteFrom streams r into file i.
func (ed *Editor) WriteFrom(i int, r io.Reader) (int64, error) {
	f, err := ed.Create(i)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, r)
	if err != nil {
		return n, ioError(err, "write", f.Name())
	}
	return n, nil
}

// Commit publishes the written files as key's value, replacing any prior
// value, and evicts least recently used entries over budget. The data
// file is required. Any failure aborts the edit.
func (ed *Editor) Commit() error {
	if ed.done {
		return ErrEditorDone
	}
	ed.done = true
	cerr := ed.closeFiles()

	c := ed.c
	c.mu.Lock()
	defer c.mu.Unlock()

	e := ed.e
	e.editor = nil
	if c.closed || c.degraded {
		c.discardDirty(e)
		if c.closed {
			return ErrClosed
		}
		return ioError(errors.New("cache degraded"), "commit", ed.key)
	}
	if cerr != nil {
		c.abortLocked(e)
		return cerr
	}

	var lengths [valueCount]int64
	if _, err := c.fs.Stat(dirtyPath(e.hash, 0)); err != nil {
		c.abortLocked(e)
		if errors.Is(err, os.ErrNotExist) {
			return ErrNoData
		}
		return ioError(err, "stat", dirtyPath(e.hash, 0))
	}
	for i := 0; i < valueCount; i++ {
		dirty, clean := dirtyPath(e.hash, i), cleanPath(e.hash, i)
		fi, err := c.fs.Stat(dirty)
		if errors.Is(err, os.ErrNotExist) {
			// No sidecar this time: the old one must not linger.
			c.removeFile(clean)
			continue
		}
		if err == nil {
			err = c.fs.Rename(dirty, clean)
		}
		if err != nil {
			// Clean files may be half replaced: the old value is gone too.
			c.discardDirty(e)
			c.dropLocked(e)
			c.removeIdle(e)
			return ioError(err, "publish", clean)
		}
		lengths[i] = fi.Size()
	}

	if e.readable {
		c.size -= e.size()
	}
	e.lengths = lengths
	e.readable = true
	c.size += e.size()
	if e.elem == nil {
		e.elem = c.lru.PushFront(e)
	} else {
		c.lru.MoveToFront(e.elem)
	}
	c.appendLocked(recClean, e.hash, lengths[0], lengths[1])
	c.trimLocked(c.maxSize)
	return nil
}

// Abort discards the written files. Calling it after Commit is a no-op
// returning ErrEditorDone, so `defer ed.Abort()` is safe.
func (ed *Editor) Abort() error {
	if ed.done {
		return ErrEditorDone
	}
	ed.done = true
	_ = ed.closeFiles()

	c := ed.c
	c.mu.Lock()
	defer c.mu.Unlock()
	ed.e.editor = nil
	if c.closed || c.degraded {
		c.discardDirty(ed.e)
		return nil
	}
	c.abortLocked(ed.e)
	return nil
}

func (ed *Editor) closeFiles() error {
	var first error
	for _, f := range ed.files {
		if err := f.Close(); err != nil && first == nil {
			first = ioError(err, "close", f.Name())
		}
	}
	ed.files = nil
	return first
}

// abortLocked discards dirty files and restores the journal state: the
// prior value stays readable, a fresh entry disappears.
func (c *Cache) abortLocked(e *entry) {
	c.discardDirty(e)
	if e.readable {
		c.appendLocked(recClean, e.hash, e.lengths[0], e.lengths[1])
		return
	}
	c.appendLocked(recRemove, e.hash)
	c.removeIdle(e)
}

// removeIdle forgets an unreadable entry nobody holds.
func (c *Cache) removeIdle(e *entry) {
	if !e.readable && e.editor == nil && c.entries[e.hash] == e {
		delete(c.entries, e.hash)
	}
}

func (c *Cache) discardDirty(e *entry) {
	for i := 0; i < valueCount; i++ {
		path := dirtyPath(e.hash, i)
		if err := c.fs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			c.log.Warn("remove dirty file", slog.String("path", path), slog.Any("error", err))
		}
	}
}
