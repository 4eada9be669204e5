package cache

// TrimLevel is a memory-pressure signal from the host process.
type TrimLevel int

const (
	// TrimBackground keeps three quarters of the budget.
	TrimBackground TrimLevel = iota
	// TrimModerate halves the cache.
	TrimModerate
	// TrimComplete empties the cache of every unpinned entry.
	TrimComplete
)

func (l TrimLevel) String() string {
	switch l {
	case TrimBackground:
		return "background"
	case TrimModerate:
		return "moderate"
	case TrimComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// TrimToLevel shrinks c in response to memory pressure. Pinned entries
// survive every level.
func TrimToLevel[K comparable, V comparable](c Cache[K, V], level TrimLevel) {
	switch level {
	case TrimBackground:
		c.Trim(c.MaxSize() * 3 / 4)
	case TrimModerate:
		c.Trim(c.Size() / 2)
	case TrimComplete:
		c.Trim(0)
	}
}
