package diskcache

import (
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

// Snapshot is a read lease on one committed value. While it is open the
// entry is neither evicted nor deleted. A Snapshot is not safe for
// concurrent use.
type Snapshot struct {
	c       *Cache
	e       *entry
	key     string
	lengths [valueCount]int64
	closed  bool
}

// Key returns the key this snapshot reads.
func (s *Snapshot) Key() string { return s.key }

// DataPath is the committed data path, relative to Cache.FS.
func (s *Snapshot) DataPath() string { return cleanPath(s.e.hash, 0) }

// MetadataPath is the committed metadata path. The file may be absent
// when Length(1) is zero.
func (s *Snapshot) MetadataPath() string { return cleanPath(s.e.hash, 1) }

// Length returns the size of file i as of the snapshot.
func (s *Snapshot) Length(i int) int64 {
	if i < 0 || i >= valueCount {
		return 0
	}
	return s.lengths[i]
}

// Open opens file i for reading.
func (s *Snapshot) Open(i int) (billy.File, error) {
	if i < 0 || i >= valueCount {
		return nil, ErrInvalidIndex
	}
	path := cleanPath(s.e.hash, i)
	f, err := s.c.fs.Open(path)
	if err != nil {
		return nil, ioError(err, "open", path)
	}
	return f, nil
}

// ReadAll returns the content of file i. An absent empty sidecar reads as nil.
func (s *Snapshot) ReadAll(i int) ([]byte, error) {
	if i < 0 || i >= valueCount {
		return nil, ErrInvalidIndex
	}
	if s.lengths[i] == 0 {
		return nil, nil
	}
	path := cleanPath(s.e.hash, i)
	b, err := util.ReadFile(s.c.fs, path)
	if err != nil {
		return nil, ioError(err, "read", path)
	}
	return b, nil
}

// Close releases the lease. A removal deferred by this lease completes
// when the last lease closes.
func (s *Snapshot) Close() error {
	c := s.c
	c.mu.Lock()
	defer c.mu.Unlock()
	s.closeLocked()
	return nil
}

func (s *Snapshot) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	e := s.e
	e.readers--
	if e.readers > 0 || !e.doomed {
		return
	}
	e.doomed = false
	if s.c.doomed[e.hash] == e {
		delete(s.c.doomed, e.hash)
	}
	if !s.c.degraded {
		s.c.deleteFiles(e.hash, false)
	}
}

// CloseAndOpenEditor releases the lease and opens an editor for the same
// key in one step, so no other writer can slip in between. It returns nil
// under the same conditions as OpenEditor.
func (s *Snapshot) CloseAndOpenEditor() *Editor {
	c := s.c
	c.mu.Lock()
	defer c.mu.Unlock()
	s.closeLocked()
	return c.openEditorLocked(s.key)
}
