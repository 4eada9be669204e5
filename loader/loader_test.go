package loader

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	platformerrors "github.com/jmgilman/go/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/imgcache/cache"
	"github.com/IvanBrykalov/imgcache/config"
	"github.com/IvanBrykalov/imgcache/executor"
	"github.com/IvanBrykalov/imgcache/internal/logging"
	"github.com/IvanBrykalov/imgcache/pipeline"
	"github.com/IvanBrykalov/imgcache/request"
)

const mb = 1 << 20

// memFetcher serves a small PNG for mem:// URIs. When block is set it
// waits for cancellation instead.
type memFetcher struct {
	data    []byte
	block   bool
	started chan struct{}
	calls   atomic.Int32
}

func newMemFetcher(t *testing.T) *memFetcher {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 8))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	img.Set(1, 1, color.RGBA{R: 0x10, A: 0xff})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return &memFetcher{data: buf.Bytes(), started: make(chan struct{}, 16)}
}

func (m *memFetcher) Create(rc *pipeline.RequestContext) pipeline.Fetcher {
	if !strings.HasPrefix(rc.Request.URI, "mem://") {
		return nil
	}
	return m
}

func (m *memFetcher) Fetch(ctx context.Context) (pipeline.FetchResult, error) {
	m.calls.Add(1)
	m.started <- struct{}{}
	if m.block {
		<-ctx.Done()
		return pipeline.FetchResult{}, ctx.Err()
	}
	return pipeline.FetchResult{Source: pipeline.BytesSource(m.data), DataFrom: pipeline.Local, MimeType: "image/png"}, nil
}

func testConfig() config.Config {
	cfg := config.DefaultConfig()
	cfg.Memory.MaxSize = 4 * mb
	cfg.ResultCache.MaxSize = 4 * mb
	cfg.DownloadCache.MaxSize = 4 * mb
	return cfg
}

func newLoader(t *testing.T, cfg config.Config, opts ...Option) (*Loader, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	opts = append([]Option{
		WithLogger(logging.Discard()),
		WithRegisterer(reg),
		WithFilesystem(memfs.New()),
	}, opts...)
	l, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Shutdown(context.Background()) })
	return l, reg
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Memory.MaxSize = 0
	_, err := New(cfg, WithLogger(logging.Discard()), WithRegisterer(prometheus.NewRegistry()))
	require.Error(t, err)
	require.Equal(t, platformerrors.CodeInvalidConfig, platformerrors.GetCode(err))
}

func TestNew_RejectsSecondTerminal(t *testing.T) {
	_, err := New(testConfig(),
		WithLogger(logging.Discard()),
		WithRegisterer(prometheus.NewRegistry()),
		WithFilesystem(memfs.New()),
		WithInterceptor(&pipeline.EngineInterceptor{}))
	require.Error(t, err)
	require.ErrorIs(t, err, pipeline.ErrDuplicateTerminal)
}

func TestLoader_StandardStages(t *testing.T) {
	l, _ := newLoader(t, testConfig())
	var keys []string
	for _, ic := range l.Pipeline().Interceptors() {
		keys = append(keys, ic.Key())
	}
	require.Equal(t, []string{"MemoryCache", "Depth", "ResultCache", "Fetch", "Engine"}, keys)
}

func TestLoader_ExecuteThenMemoryHit(t *testing.T) {
	f := newMemFetcher(t)
	l, reg := newLoader(t, testConfig(), WithFetcher(f))
	ctx := context.Background()

	first, err := l.Execute(ctx, request.New("mem://a"), nil)
	require.NoError(t, err)
	require.Equal(t, pipeline.Local, first.DataFrom)
	require.Equal(t, 16, first.Value.Info.Width)

	second, err := l.Execute(ctx, request.New("mem://a"), nil)
	require.NoError(t, err)
	require.Equal(t, pipeline.MemoryCache, second.DataFrom)
	require.Same(t, first.Value, second.Value)
	require.EqualValues(t, 1, f.calls.Load())
	require.Equal(t, 1, l.MemoryCache().Len())

	require.Equal(t, 1.0, requestCount(t, reg, "success", "LOCAL"))
	require.Equal(t, 1.0, requestCount(t, reg, "success", "MEMORY_CACHE"))
	n, err := testutil.GatherAndCount(reg, "imgcache_memory_hits_total")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

// requestCount reads one series of the request counter.
func requestCount(t *testing.T, reg *prometheus.Registry, outcome, from string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != "imgcache_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["outcome"] == outcome && labels["from"] == from {
				return m.GetCounter().GetValue()
			}
		}
	}
	t.Fatalf("no series outcome=%s from=%s", outcome, from)
	return 0
}

func TestLoader_TransformedResultSurvivesMemoryTrim(t *testing.T) {
	f := newMemFetcher(t)
	l, _ := newLoader(t, testConfig(), WithFetcher(f))
	ctx := context.Background()
	req := request.New("mem://r")
	req.SizeResolver = request.FixedSize(8, 4)

	_, err := l.Execute(ctx, req, nil)
	require.NoError(t, err)
	require.Equal(t, 1, l.ResultCache().Len())

	l.TrimMemory(cache.TrimComplete)
	require.Zero(t, l.MemoryCache().Len())

	data, err := l.Execute(ctx, req, nil)
	require.NoError(t, err)
	require.Equal(t, pipeline.ResultCache, data.DataFrom)
	require.Equal(t, 8, data.Value.Info.Width)
	require.EqualValues(t, 1, f.calls.Load())
}

func TestLoader_DisabledTiers(t *testing.T) {
	cfg := testConfig()
	cfg.ResultCache.Enabled = false
	cfg.DownloadCache.Enabled = false
	cfg.Memory.Policy = "2q"
	l, _ := newLoader(t, cfg, WithFetcher(newMemFetcher(t)))

	require.Nil(t, l.ResultCache())
	require.Nil(t, l.DownloadCache())
	_, err := l.Execute(context.Background(), request.New("mem://x"), nil)
	require.NoError(t, err)
}

func TestLoader_ApplyConfig(t *testing.T) {
	l, _ := newLoader(t, testConfig())

	cfg := testConfig()
	cfg.Memory.MaxSize = 2 * mb
	cfg.ResultCache.MaxSize = 1 * mb
	require.NoError(t, l.ApplyConfig(cfg))
	require.EqualValues(t, 2*mb, l.MemoryCache().MaxSize())
	require.EqualValues(t, 2*mb*8/10, l.MemoryCache().ValueLimit())
	require.EqualValues(t, 1*mb, l.ResultCache().MaxSize())
	require.Equal(t, cfg, l.Config())

	bad := cfg
	bad.Memory.ValueLimitRatio = 2
	require.Error(t, l.ApplyConfig(bad))
	require.EqualValues(t, 2*mb, l.MemoryCache().MaxSize())
}

func TestLoader_WatchAppliesFileChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "imgcache.yaml")
	require.NoError(t, os.WriteFile(path, []byte("memory:\n  maxSize: 3145728\n"), 0o644))

	l, _ := newLoader(t, testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	w, err := l.Watch(ctx, config.NewLoader("IMGCACHELOADERTEST", path))
	require.NoError(t, err)
	t.Cleanup(w.Stop)

	require.NoError(t, os.WriteFile(path, []byte("memory:\n  maxSize: 1048576\n"), 0o644))
	require.Eventually(t, func() bool {
		return l.MemoryCache().MaxSize() == 1*mb
	}, 2*time.Second, 10*time.Millisecond)
}

func TestLoader_ShutdownCancelsRunning(t *testing.T) {
	f := newMemFetcher(t)
	f.block = true
	l, _ := newLoader(t, testConfig(), WithFetcher(f))

	errc := make(chan error, 1)
	go func() {
		_, err := l.Execute(context.Background(), request.New("mem://slow"), nil)
		errc <- err
	}()
	<-f.started

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, l.Shutdown(ctx))

	err := <-errc
	require.True(t, executor.IsCanceled(err), "got %v", err)

	_, err = l.Execute(context.Background(), request.New("mem://late"), nil)
	require.ErrorIs(t, err, ErrClosed)
	require.NoError(t, l.Shutdown(ctx))
}

func TestLoader_EnqueueAfterShutdownIsCanceled(t *testing.T) {
	l, _ := newLoader(t, testConfig(), WithFetcher(newMemFetcher(t)))
	require.NoError(t, l.Shutdown(context.Background()))

	var canceled atomic.Bool
	j := l.Enqueue(context.Background(), request.New("mem://late"), executor.TargetFuncs{
		Cancel: func(*request.Request) { canceled.Store(true) },
	})
	_, err := j.Wait(context.Background())
	require.True(t, errors.Is(err, context.Canceled), "got %v", err)
	require.True(t, canceled.Load())
}

func TestLoader_EnqueueDeliversThroughDispatcher(t *testing.T) {
	var delivered atomic.Int32
	l, _ := newLoader(t, testConfig(),
		WithFetcher(newMemFetcher(t)),
		WithDeliver(func(fn func()) {
			delivered.Add(1)
			fn()
		}))

	done := make(chan pipeline.DataFrom, 1)
	j := l.Enqueue(context.Background(), request.New("mem://q"), executor.TargetFuncs{
		Success: func(_ *request.Request, d pipeline.ImageData) { done <- d.DataFrom },
	})
	_, err := j.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, pipeline.Local, <-done)
	require.Positive(t, delivered.Load())
}
