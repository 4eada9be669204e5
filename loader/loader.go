// Package loader assembles caches, pipeline and executor into a ready to
// use image loader.
package loader

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"
	platformerrors "github.com/jmgilman/go/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/IvanBrykalov/imgcache/cache"
	"github.com/IvanBrykalov/imgcache/config"
	"github.com/IvanBrykalov/imgcache/decode"
	"github.com/IvanBrykalov/imgcache/diskcache"
	"github.com/IvanBrykalov/imgcache/executor"
	"github.com/IvanBrykalov/imgcache/fetch"
	"github.com/IvanBrykalov/imgcache/internal/logging"
	"github.com/IvanBrykalov/imgcache/internal/util"
	pmet "github.com/IvanBrykalov/imgcache/metrics/prom"
	"github.com/IvanBrykalov/imgcache/pipeline"
	"github.com/IvanBrykalov/imgcache/policy"
	"github.com/IvanBrykalov/imgcache/policy/lru"
	"github.com/IvanBrykalov/imgcache/policy/twoq"
	"github.com/IvanBrykalov/imgcache/request"
)

// ErrClosed is returned by Execute and Watch after Shutdown.
var ErrClosed = errors.New("loader: closed")

// twoQEntryBytes is the typical decoded image size used to turn the byte
// budget into 2Q queue lengths.
const twoQEntryBytes = 256 << 10

// Loader is the assembled image loader. Safe for concurrent use.
type Loader struct {
	log      *slog.Logger
	memory   pipeline.ImageCache
	result   *diskcache.Cache
	download *diskcache.Cache
	pipe     *pipeline.Pipeline
	exec     *executor.Executor

	// base is cancelled by Shutdown; every run is bound to it.
	base     context.Context
	stop     context.CancelFunc
	inflight sync.WaitGroup

	mu       sync.Mutex
	closed   bool
	cfg      config.Config
	watchers []*config.Watcher
}

// New validates cfg and builds a Loader from it.
func New(cfg config.Config, opts ...Option) (*Loader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	lg := o.logger
	if lg == nil {
		var err error
		if lg, err = logging.New(cfg.Logging); err != nil {
			return nil, platformerrors.Wrap(err, platformerrors.CodeInvalidConfig, "build logger")
		}
	}

	var (
		memMetrics, resMetrics, dlMetrics cache.Metrics
		reqMetrics                        executor.Metrics
	)
	if cfg.Metrics.Enabled {
		reg := o.registerer
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		tiers := pmet.NewTiers(reg, cfg.Metrics.Namespace, cfg.ResultCache.Enabled, cfg.DownloadCache.Enabled)
		memMetrics, resMetrics, dlMetrics = tiers.Memory, tiers.Result, tiers.Download
		reqMetrics = pmet.NewRequests(reg, cfg.Metrics.Namespace, nil)
	}

	l := &Loader{log: lg, cfg: cfg}
	l.base, l.stop = context.WithCancel(context.Background())

	l.memory = pipeline.NewMemoryCache(cache.Options[string, *pipeline.ImageValue]{
		MaxSize:         cfg.Memory.MaxSize,
		ValueLimitRatio: cfg.Memory.ValueLimitRatio,
		Policy:          memoryPolicy(cfg.Memory),
		Metrics:         memMetrics,
		Logger:          lg,
	})

	var err error
	if l.result, err = openDisk(cfg.ResultCache, o.fs, "result", resMetrics, lg); err != nil {
		_ = l.closeCaches()
		return nil, err
	}
	if l.download, err = openDisk(cfg.DownloadCache, o.fs, "download", dlMetrics, lg); err != nil {
		_ = l.closeCaches()
		return nil, err
	}

	netPool := pipeline.NewPool(util.Parallelism(cfg.Executor.NetworkParallelism, util.NetworkParallelism))
	decodePool := pipeline.NewPool(util.Parallelism(cfg.Executor.DecodeParallelism, util.DecodeParallelism))

	fetchers := append([]pipeline.FetcherFactory(nil), o.fetchers...)
	fetchers = append(fetchers,
		&fetch.HTTP{
			Client:    &http.Client{Timeout: time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second},
			Cache:     l.download,
			UserAgent: cfg.HTTP.UserAgent,
			Logger:    lg,
		},
		&fetch.File{},
		fetch.Data{},
	)
	decoders := append([]pipeline.DecoderFactory(nil), o.decoders...)
	decoders = append(decoders, decode.Factory{MaxPixels: cfg.Decode.MaxPixels})

	l.pipe = pipeline.New(lg)
	stages := []pipeline.Interceptor{
		&pipeline.MemoryCacheInterceptor{Cache: l.memory},
		pipeline.DepthInterceptor{},
		&pipeline.ResultCacheInterceptor{Cache: l.result, Pool: decodePool},
		&pipeline.FetchInterceptor{Factories: fetchers, Pool: netPool},
		&pipeline.EngineInterceptor{Decoders: decoders, Pool: decodePool},
	}
	for _, ic := range append(stages, o.interceptors...) {
		if err := l.pipe.Register(ic); err != nil {
			_ = l.closeCaches()
			return nil, platformerrors.Wrap(err, platformerrors.CodeInvalidConfig, "register interceptor "+ic.Key())
		}
	}

	if l.exec, err = executor.New(executor.Options{
		Pipeline: l.pipe,
		Deliver:  o.deliver,
		Metrics:  reqMetrics,
		Logger:   lg,
	}); err != nil {
		_ = l.closeCaches()
		return nil, err
	}

	lg.Info("image loader ready",
		slog.Int64("memoryMaxSize", cfg.Memory.MaxSize),
		slog.String("memoryPolicy", policyName(cfg.Memory.Policy)),
		slog.Bool("resultCache", l.result != nil),
		slog.Bool("downloadCache", l.download != nil),
		slog.Int("networkParallelism", netPool.Size()),
		slog.Int("decodeParallelism", decodePool.Size()))
	return l, nil
}

func policyName(p string) string {
	if p == "" {
		return "lru"
	}
	return strings.ToLower(p)
}

func memoryPolicy(mc config.MemoryConfig) policy.Policy[string, *pipeline.ImageValue] {
	if policyName(mc.Policy) != "2q" {
		return lru.New[string, *pipeline.ImageValue]()
	}
	entries := int(mc.MaxSize / twoQEntryBytes)
	return twoq.New[string, *pipeline.ImageValue](entries/4, entries/2)
}

func openDisk(dc config.DiskConfig, root billy.Filesystem, name string, m cache.Metrics, lg *slog.Logger) (*diskcache.Cache, error) {
	if !dc.Enabled {
		return nil, nil
	}
	opt := diskcache.Options{
		Dir:        dc.Dir,
		MaxSize:    dc.MaxSize,
		AppVersion: dc.AppVersion,
		Name:       name,
		Logger:     lg,
		Metrics:    m,
	}
	if root != nil {
		fs, err := root.Chroot(name)
		if err != nil {
			return nil, platformerrors.Wrap(err, platformerrors.CodeInvalidConfig, "chroot "+name+" cache")
		}
		opt.FS = fs
	}
	return diskcache.Open(opt)
}

// Execute loads req and blocks until it finishes. target may be nil.
func (l *Loader) Execute(ctx context.Context, req *request.Request, target executor.Target) (pipeline.ImageData, error) {
	if !l.track() {
		return pipeline.ImageData{}, ErrClosed
	}
	defer l.inflight.Done()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer context.AfterFunc(l.base, cancel)()
	return l.exec.Execute(ctx, req, target)
}

// Enqueue starts req in the background. After Shutdown the job ends as
// cancelled.
func (l *Loader) Enqueue(ctx context.Context, req *request.Request, target executor.Target) *executor.Job {
	ctx, cancel := context.WithCancel(ctx)
	if !l.track() {
		cancel()
		return l.exec.Enqueue(ctx, req, target)
	}
	unbind := context.AfterFunc(l.base, cancel)
	j := l.exec.Enqueue(ctx, req, target)
	go func() {
		defer l.inflight.Done()
		<-j.Done()
		unbind()
		cancel()
	}()
	return j
}

// track registers a run unless the loader is shut down.
func (l *Loader) track() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.inflight.Add(1)
	return true
}

// MemoryCache returns the decoded-image tier.
func (l *Loader) MemoryCache() pipeline.ImageCache { return l.memory }

// ResultCache returns the transformed-result disk tier, nil when disabled.
func (l *Loader) ResultCache() *diskcache.Cache { return l.result }

// DownloadCache returns the raw-download disk tier, nil when disabled.
func (l *Loader) DownloadCache() *diskcache.Cache { return l.download }

// Pipeline returns the assembled pipeline.
func (l *Loader) Pipeline() *pipeline.Pipeline { return l.pipe }

// Executor returns the request executor.
func (l *Loader) Executor() *executor.Executor { return l.exec }

// Config returns the configuration currently in effect.
func (l *Loader) Config() config.Config {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cfg
}

// TrimMemory shrinks the memory tier in response to memory pressure.
func (l *Loader) TrimMemory(level cache.TrimLevel) {
	before := l.memory.Size()
	cache.TrimToLevel(l.memory, level)
	l.log.Debug("memory trimmed",
		slog.String("level", level.String()),
		slog.Int64("before", before), slog.Int64("after", l.memory.Size()))
}

// ApplyConfig applies the cache budgets of cfg to the running loader.
// Settings that shape construction (policy, directories, pools, fetchers)
// take effect on the next New and are only logged here.
func (l *Loader) ApplyConfig(cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	prev := l.cfg

	l.memory.SetMaxSize(cfg.Memory.MaxSize)
	if l.result != nil {
		l.result.SetMaxSize(cfg.ResultCache.MaxSize)
	}
	if l.download != nil {
		l.download.SetMaxSize(cfg.DownloadCache.MaxSize)
	}

	var restart []string
	if policyName(prev.Memory.Policy) != policyName(cfg.Memory.Policy) {
		restart = append(restart, "memory.policy")
	}
	if prev.Memory.ValueLimitRatio != cfg.Memory.ValueLimitRatio {
		restart = append(restart, "memory.valueLimitRatio")
	}
	if prev.ResultCache.Enabled != cfg.ResultCache.Enabled || prev.ResultCache.Dir != cfg.ResultCache.Dir {
		restart = append(restart, "resultCache")
	}
	if prev.DownloadCache.Enabled != cfg.DownloadCache.Enabled || prev.DownloadCache.Dir != cfg.DownloadCache.Dir {
		restart = append(restart, "downloadCache")
	}
	if prev.Executor != cfg.Executor {
		restart = append(restart, "executor")
	}
	if prev.HTTP != cfg.HTTP {
		restart = append(restart, "http")
	}
	if len(restart) > 0 {
		l.log.Warn("configuration change needs a restart", slog.Any("keys", restart))
	}

	l.cfg = cfg
	l.log.Info("configuration applied",
		slog.Int64("memoryMaxSize", cfg.Memory.MaxSize),
		slog.Int64("resultMaxSize", cfg.ResultCache.MaxSize),
		slog.Int64("downloadMaxSize", cfg.DownloadCache.MaxSize))
	return nil
}

// Watch applies every configuration snapshot cl reports until ctx ends or
// Shutdown runs.
func (l *Loader) Watch(ctx context.Context, cl *config.Loader) (*config.Watcher, error) {
	w, err := cl.Watch(ctx,
		func(cfg config.Config) {
			if err := l.ApplyConfig(cfg); err != nil {
				l.log.Warn("rejected configuration", slog.Any("error", err))
			}
		},
		func(err error) {
			l.log.Warn("configuration reload failed", slog.Any("error", err))
		})
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		w.Stop()
		return nil, ErrClosed
	}
	l.watchers = append(l.watchers, w)
	l.mu.Unlock()
	return w, nil
}

// Shutdown cancels running requests, waits for them until ctx ends and
// closes every cache. Calling it again is a no-op.
func (l *Loader) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	watchers := l.watchers
	l.watchers = nil
	l.mu.Unlock()
	l.stop()

	for _, w := range watchers {
		w.Stop()
	}

	done := make(chan struct{})
	go func() {
		l.inflight.Wait()
		close(done)
	}()
	var waitErr error
	select {
	case <-done:
	case <-ctx.Done():
		waitErr = ctx.Err()
		l.log.Warn("shutdown did not drain running requests", slog.Any("error", waitErr))
	}
	return errors.Join(waitErr, l.closeCaches())
}

func (l *Loader) closeCaches() error {
	var errs []error
	if l.memory != nil {
		errs = append(errs, l.memory.Close())
	}
	if l.result != nil {
		errs = append(errs, l.result.Close())
	}
	if l.download != nil {
		errs = append(errs, l.download.Close())
	}
	return errors.Join(errs...)
}
