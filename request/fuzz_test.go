package request

import (
	"strings"
	"testing"
)

// Same inputs must always produce the same key, a different URI must
// never collide with the original one, and splitting a transformation key
// at its commas must change the key.
func FuzzKey(f *testing.F) {
	f.Add("https://example.com/a.png", 100, 200, "Circle")
	f.Add("", 0, 0, "")
	f.Add("file:///tmp/x.jpg?x=1", -1, 5, "αβγ")
	f.Add("u", 1, 1, "A,B")

	f.Fuzz(func(t *testing.T, uri string, w, h int, tk string) {
		build := func(u string) *Request {
			r := New(u)
			if tk != "" {
				r.Transformations = []Transformation{namedTransformation(tk)}
			}
			return r
		}
		size := Size{Width: w, Height: h}
		k1 := Key(build(uri), size)
		k2 := Key(build(uri), size)
		if k1 != k2 {
			t.Fatalf("non-deterministic key: %q vs %q", k1, k2)
		}
		if other := Key(build(uri+"#"), size); other == k1 {
			t.Fatalf("uri change did not change key %q", k1)
		}
		if parts := strings.Split(tk, ","); len(parts) > 1 {
			r := New(uri)
			for _, p := range parts {
				r.Transformations = append(r.Transformations, namedTransformation(p))
			}
			if split := Key(r, size); split == k1 {
				t.Fatalf("split transformations collide: %q", k1)
			}
		}
	})
}
