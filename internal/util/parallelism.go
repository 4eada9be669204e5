package util

import "runtime"

// NetworkParallelism picks the default ceiling for concurrent fetches.
// Fetches are I/O bound, so the ceiling is a multiple of the CPU count,
// clamped to [4..64].
func NetworkParallelism() int {
	return clamp(4*procs(), 4, 64)
}

// DecodeParallelism picks the default ceiling for concurrent decodes.
// Decoding is CPU bound and memory hungry: one slot per CPU, clamped to [1..8].
func DecodeParallelism() int {
	return clamp(procs(), 1, 8)
}

// Parallelism returns n when positive, otherwise def().
func Parallelism(n int, def func() int) int {
	if n > 0 {
		return n
	}
	return def()
}

func procs() int {
	p := runtime.GOMAXPROCS(0)
	if p < 1 {
		p = 1
	}
	return p
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
