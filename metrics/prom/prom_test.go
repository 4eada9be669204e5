package prom

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/imgcache/cache"
	"github.com/IvanBrykalov/imgcache/executor"
	"github.com/IvanBrykalov/imgcache/pipeline"
)

func TestAdapter_ExportsCacheMetrics(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	a := New(reg, "imgcache", "memory", nil)

	a.Hit()
	a.Hit()
	a.Miss()
	a.Evict(cache.EvictCapacity)
	a.Evict(cache.EvictTrim)
	a.Evict(cache.EvictCapacity)
	a.Size(3, 4096)

	assert.Equal(t, 2.0, testutil.ToFloat64(a.hits))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.misses))
	assert.Equal(t, 2.0, testutil.ToFloat64(a.evicts.WithLabelValues(cache.EvictCapacity.String())))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.evicts.WithLabelValues(cache.EvictTrim.String())))
	assert.Equal(t, 3.0, testutil.ToFloat64(a.entries))
	assert.Equal(t, 4096.0, testutil.ToFloat64(a.sizeBytes))

	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
}

func TestNewTiers_SkipsDisabledTiers(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	tiers := NewTiers(reg, "imgcache", true, false)
	require.NotNil(t, tiers.Memory)
	require.NotNil(t, tiers.Result)
	require.Nil(t, tiers.Download)

	tiers.Result.Hit()
	n, err := testutil.GatherAndCount(reg, "imgcache_result_hits_total", "imgcache_download_hits_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestAdapter_WiredIntoCache(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	a := New(reg, "imgcache", "memory", prometheus.Labels{"instance": "test"})

	c := cache.New[string, int](cache.Options[string, int]{MaxSize: 2, Metrics: a})
	c.Put("a", 1)
	c.Put("b", 2)
	c.Get("a")
	c.Get("zzz")
	c.Put("c", 3) // evicts b

	expected := `
# HELP imgcache_memory_entries Images held by this tier
# TYPE imgcache_memory_entries gauge
imgcache_memory_entries{instance="test"} 2
# HELP imgcache_memory_hits_total Lookups served by this tier
# TYPE imgcache_memory_hits_total counter
imgcache_memory_hits_total{instance="test"} 1
# HELP imgcache_memory_misses_total Lookups this tier could not serve
# TYPE imgcache_memory_misses_total counter
imgcache_memory_misses_total{instance="test"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"imgcache_memory_entries", "imgcache_memory_hits_total", "imgcache_memory_misses_total"))
}

func TestRequests(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	r := NewRequests(reg, "imgcache", nil)

	r.Observe(executor.Success, pipeline.MemoryCache, time.Millisecond)
	r.Observe(executor.Success, pipeline.MemoryCache, time.Millisecond)
	r.Observe(executor.Success, pipeline.Network, 50*time.Millisecond)
	r.Observe(executor.Failure, pipeline.Network, time.Second)
	r.Coalesced()

	assert.Equal(t, 2.0, testutil.ToFloat64(r.total.WithLabelValues("success", "MEMORY_CACHE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.total.WithLabelValues("success", "NETWORK")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.total.WithLabelValues("failure", "none")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.coalesced))
	assert.Equal(t, 2, testutil.CollectAndCount(r.duration))
}
