package cache

import (
	"testing"
)

// Fuzz a Put/Get/Remove sequence with arbitrary keys and sizes.
// Guards against panics and checks the size bookkeeping invariants.
func FuzzCache_PutGetRemove(f *testing.F) {
	f.Add("", uint16(0), uint16(0))
	f.Add("a", uint16(1), uint16(2))
	f.Add("αβγ", uint16(700), uint16(100))
	f.Add("emoji🙂", uint16(1024), uint16(1024))

	f.Fuzz(func(t *testing.T, k string, s1, s2 uint16) {
		const limit = 1 << 12
		if len(k) > limit {
			k = k[:limit]
		}

		c := New(imgOptions(1024))
		t.Cleanup(func() { _ = c.Close() })

		v1 := newImg("v1", int64(s1))
		st := c.Put(k, v1)
		if int64(s1) > c.ValueLimit() {
			if st != PutTooLarge || c.Exist(k) || c.Size() != 0 {
				t.Fatalf("oversized put must be rejected cleanly: %v", st)
			}
			return
		}
		if st != PutOK {
			t.Fatalf("put: %v", st)
		}
		if got, ok := c.Get(k); !ok || got != v1 {
			t.Fatalf("after Put/Get: want v1, got %v ok=%v", got, ok)
		}
		if st := c.Put(k, v1); st != PutExists {
			t.Fatalf("re-put of equal value: %v", st)
		}

		v2 := newImg("v2", int64(s2))
		if c.Put(k, v2) == PutOK && c.Size() > c.MaxSize() {
			t.Fatalf("size %d above budget %d", c.Size(), c.MaxSize())
		}

		c.Remove(k)
		if c.Exist(k) || c.Size() != 0 || c.Len() != 0 {
			t.Fatalf("cache must be empty after Remove: size=%d len=%d", c.Size(), c.Len())
		}
	})
}
