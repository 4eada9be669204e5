package util

import "testing"

func TestParallelismDefaults(t *testing.T) {
	t.Parallel()

	if n := NetworkParallelism(); n < 4 || n > 64 {
		t.Fatalf("network parallelism out of range: %d", n)
	}
	if n := DecodeParallelism(); n < 1 || n > 8 {
		t.Fatalf("decode parallelism out of range: %d", n)
	}
	if n := Parallelism(3, DecodeParallelism); n != 3 {
		t.Fatalf("explicit value must win, got %d", n)
	}
	if n := Parallelism(0, func() int { return 7 }); n != 7 {
		t.Fatalf("default must be used for zero, got %d", n)
	}
}
