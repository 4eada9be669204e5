// Package diskcache is a persistent, content-addressed LRU cache on a
// go-billy filesystem.
//
// Each entry holds two files: data (index 0) and an optional metadata
// sidecar (index 1). Files are named after the SHA-256 of the key, so any
// string is a valid key. Writes go through an Editor and become visible
// atomically on Commit; reads go through a Snapshot, which pins the entry
// against eviction and removal until it is closed.
//
// Layout
//
//	journal            header + append-only operation log
//	journal.tmp        compacted journal being written
//	<sha256>.0         committed data
//	<sha256>.1         committed metadata
//	<sha256>.<i>.tmp   in-progress edit
//
// The journal header stamps the format (InternalVersion) and the caller's
// AppVersion. A mismatch on Open discards every entry. Replay drops entries
// whose last record is DIRTY (a write that never committed) and entries
// whose files do not match the recorded lengths, so a crash mid-write never
// exposes a partial entry.
//
// A directory that cannot be used puts the cache in degraded mode: every
// operation becomes a harmless no-op reporting "absent".
package diskcache
