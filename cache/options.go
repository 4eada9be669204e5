package cache

import (
	"context"
	"log/slog"

	"github.com/IvanBrykalov/imgcache/policy"
)

// EvictReason explains why an entry was removed.
type EvictReason int

const (
	// EvictCapacity: removed to bring the cache back under MaxSize.
	EvictCapacity EvictReason = iota
	// EvictTrim: removed by an explicit Trim (memory pressure).
	EvictTrim
	// EvictClear: removed by Clear or Close.
	EvictClear
	// EvictPolicy: removed by a policy-specific decision.
	EvictPolicy
	// EvictReplaced: the value was replaced by a Put for the same key.
	EvictReplaced
)

func (r EvictReason) String() string {
	switch r {
	case EvictCapacity:
		return "capacity"
	case EvictTrim:
		return "trim"
	case EvictClear:
		return "clear"
	case EvictPolicy:
		return "policy"
	case EvictReplaced:
		return "replaced"
	default:
		return "unknown"
	}
}

// Metrics exposes cache-level observability hooks.
// A NoopMetrics implementation is provided and used by default.
// The disk caches report through the same interface.
type Metrics interface {
	Hit()
	Miss()
	Evict(reason EvictReason)
	Size(entries int, bytes int64)
}

// DefaultValueLimitRatio is the share of MaxSize a single value may take
// when neither Options.ValueLimit nor Options.ValueLimitRatio is set.
const DefaultValueLimitRatio = 0.8

// Options configures the cache behavior. Zero values are safe except MaxSize;
// defaults are applied in New():
//   - ValueLimit <= 0 => ValueLimitRatio (or DefaultValueLimitRatio) of MaxSize
//   - nil Cost        => every value costs 1
//   - nil Policy      => LRU
//   - nil Metrics     => NoopMetrics
type Options[K comparable, V comparable] struct {
	// MaxSize is the total cost budget (bytes for image values).
	MaxSize int64

	// ValueLimit caps the cost of a single value. Larger values are rejected
	// by Put so one huge image cannot flush the whole cache.
	ValueLimit int64

	// ValueLimitRatio derives the cap from MaxSize when ValueLimit is unset,
	// and keeps following it across SetMaxSize. Values outside (0, 1] mean
	// DefaultValueLimitRatio.
	ValueLimitRatio float64

	// Cost returns the size of v. Negative results are treated as zero.
	Cost func(v V) int64

	// Pinned reports whether v is in use by a consumer. Pinned entries are
	// never evicted by capacity or Trim; the cache may then exceed MaxSize.
	Pinned func(v V) bool

	// Policy is a pluggable eviction policy (LRU/2Q); nil => LRU.
	Policy policy.Policy[K, V]

	// Loader fetches a value on cache miss. Used by GetOrLoad.
	Loader func(ctx context.Context, k K) (V, error)

	// OnEvict is called under the cache lock; keep callbacks lightweight.
	OnEvict func(k K, v V, reason EvictReason)
	Metrics Metrics

	// Logger receives debug events (rejections, soft-limit overflow).
	Logger *slog.Logger
}
