package diskcache

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/go-git/go-billy/v5/util"
)

const (
	journalFile = "journal"
	journalTmp  = "journal.tmp"
	magic       = "imgcache.diskcache"

	// compactThreshold is the number of redundant records that triggers a
	// journal rebuild (when they also outnumber live entries).
	compactThreshold = 2000
)

const (
	recDirty  = "DIRTY"
	recClean  = "CLEAN"
	recRemove = "REMOVE"
	recRead   = "READ"
)

var errVersionMismatch = errors.New("diskcache: journal header mismatch")

// header renders the journal header for this cache.
func (c *Cache) header() string {
	return magic + "\n" +
		strconv.Itoa(InternalVersion) + "\n" +
		strconv.Itoa(c.appVersion) + "\n" +
		strconv.Itoa(valueCount) + "\n" +
		"\n"
}

// load replays the journal, reconciles it with the files on disk and
// rewrites a compact journal.
func (c *Cache) load() error {
	data, err := util.ReadFile(c.fs, journalFile)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// fresh directory; stray files are swept below
	case err != nil:
		return ioError(err, "read journal", journalFile)
	default:
		if err := c.replay(string(data)); err != nil {
			if !errors.Is(err, errVersionMismatch) {
				return err
			}
			c.log.Info("disk cache version changed, discarding entries",
				slog.Int("appVersion", c.appVersion), slog.Int("internalVersion", InternalVersion))
			c.entries = make(map[string]*entry)
			c.lru.Init()
			if err := c.discardAll(); err != nil {
				return err
			}
		}
	}

	c.verify()
	if err := c.sweepOrphans(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rebuildLocked()
}

// replay applies journal records to the in-memory index. A malformed
// record ends replay: it can only be a torn final append.
func (c *Cache) replay(journal string) error {
	lines := strings.Split(journal, "\n")
	want := strings.Split(c.header(), "\n")
	if len(lines) < len(want) {
		return errVersionMismatch
	}
	for i := 0; i < len(want)-1; i++ {
		if lines[i] != want[i] {
			return errVersionMismatch
		}
	}

	body := lines[len(want)-1:]
	// The last element is whatever follows the final newline: empty for a
	// clean journal, a torn record otherwise.
	body = body[:len(body)-1]

	records := 0
	for _, line := range body {
		if !c.applyRecord(line) {
			c.log.Warn("ignoring corrupt journal tail", slog.String("record", line))
			break
		}
		records++
	}
	c.redundant = records - len(c.entries)
	return nil
}

// applyRecord reports false for a malformed line.
func (c *Cache) applyRecord(line string) bool {
	f := strings.Fields(line)
	if len(f) < 2 || len(f[1]) != 64 {
		return false
	}
	op, h := f[0], f[1]
	e := c.entries[h]

	switch op {
	case recDirty:
		if len(f) != 2 {
			return false
		}
		if e == nil {
			e = &entry{hash: h}
			c.entries[h] = e
		}
		// Marker until a CLEAN arrives.
		e.editor = &Editor{}
	case recClean:
		if len(f) != 2+valueCount {
			return false
		}
		var lengths [valueCount]int64
		for i := range lengths {
			n, err := strconv.ParseInt(f[2+i], 10, 64)
			if err != nil || n < 0 {
				return false
			}
			lengths[i] = n
		}
		if e == nil {
			e = &entry{hash: h}
			c.entries[h] = e
		}
		e.editor = nil
		e.readable = true
		e.lengths = lengths
		if e.elem == nil {
			e.elem = c.lru.PushFront(e)
		} else {
			c.lru.MoveToFront(e.elem)
		}
	case recRemove:
		if len(f) != 2 {
			return false
		}
		if e != nil {
			if e.elem != nil {
				c.lru.Remove(e.elem)
			}
			delete(c.entries, h)
		}
	case recRead:
		if len(f) != 2 {
			return false
		}
		if e != nil && e.elem != nil {
			c.lru.MoveToFront(e.elem)
		}
	default:
		return false
	}
	return true
}

// verify drops interrupted writes and entries whose files do not match the
// journal, then computes the total size.
func (c *Cache) verify() {
	c.size = 0
	for h, e := range c.entries {
		ok := e.editor == nil && e.readable && c.filesMatch(e)
		if !ok {
			if e.editor != nil {
				c.log.Debug("dropping interrupted write", slog.String("hash", h))
			} else {
				c.log.Warn("dropping entry with missing or truncated files", slog.String("hash", h))
			}
			c.deleteFiles(h, true)
			if e.elem != nil {
				c.lru.Remove(e.elem)
			}
			delete(c.entries, h)
			continue
		}
		c.size += e.size()
	}
}

func (c *Cache) filesMatch(e *entry) bool {
	for i := 0; i < valueCount; i++ {
		fi, err := c.fs.Stat(cleanPath(e.hash, i))
		if err != nil {
			// A zero-length sidecar may be absent.
			if i > 0 && e.lengths[i] == 0 && errors.Is(err, os.ErrNotExist) {
				continue
			}
			return false
		}
		if fi.Size() != e.lengths[i] {
			return false
		}
	}
	return true
}

// sweepOrphans deletes files the index does not account for.
func (c *Cache) sweepOrphans() error {
	infos, err := c.fs.ReadDir(".")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return ioError(err, "list directory", ".")
	}
	for _, fi := range infos {
		name := fi.Name()
		if fi.IsDir() || name == journalFile {
			continue
		}
		if name == journalTmp || strings.HasSuffix(name, ".tmp") {
			c.removeFile(name)
			continue
		}
		hash, _, ok := strings.Cut(name, ".")
		if !ok || c.entries[hash] == nil {
			c.removeFile(name)
		}
	}
	return nil
}

// discardAll removes every file in the cache directory.
func (c *Cache) discardAll() error {
	infos, err := c.fs.ReadDir(".")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return ioError(err, "list directory", ".")
	}
	for _, fi := range infos {
		if fi.IsDir() {
			continue
		}
		if err := c.fs.Remove(fi.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
			return ioError(err, "remove", fi.Name())
		}
	}
	return nil
}

// rebuildLocked writes a compact journal (oldest entry first) to a
// temporary file, renames it over the journal and reopens it for append.
func (c *Cache) rebuildLocked() error {
	if c.journal != nil {
		_ = c.journal.Close()
		c.journal = nil
	}

	var b strings.Builder
	b.WriteString(c.header())
	for el := c.lru.Back(); el != nil; el = el.Prev() {
		e := el.Value.(*entry)
		fmt.Fprintf(&b, "%s %s %d %d\n", recClean, e.hash, e.lengths[0], e.lengths[1])
	}
	// Edits in flight must survive the rebuild so their CLEAN is not orphaned.
	for h, e := range c.entries {
		if e.editor != nil {
			fmt.Fprintf(&b, "%s %s\n", recDirty, h)
		}
	}

	if err := util.WriteFile(c.fs, journalTmp, []byte(b.String()), 0o644); err != nil {
		return ioError(err, "write journal", journalTmp)
	}
	if err := c.fs.Rename(journalTmp, journalFile); err != nil {
		return ioError(err, "rename journal", journalFile)
	}
	f, err := c.fs.OpenFile(journalFile, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return ioError(err, "open journal", journalFile)
	}
	c.journal = f
	c.redundant = 0
	return nil
}

// appendLocked writes one record. A write failure degrades the cache and
// reports false.
func (c *Cache) appendLocked(op, hash string, lengths ...int64) bool {
	if c.journal == nil {
		return false
	}
	var b strings.Builder
	b.WriteString(op)
	b.WriteByte(' ')
	b.WriteString(hash)
	for _, n := range lengths {
		b.WriteByte(' ')
		b.WriteString(strconv.FormatInt(n, 10))
	}
	b.WriteByte('\n')
	if _, err := c.journal.Write([]byte(b.String())); err != nil {
		c.degrade("append journal", ioError(err, "append journal", journalFile))
		return false
	}

	if op != recClean {
		c.redundant++
	}
	if c.redundant >= compactThreshold && c.redundant >= len(c.entries) {
		if err := c.rebuildLocked(); err != nil {
			c.degrade("compact journal", err)
			return false
		}
	}
	return true
}
