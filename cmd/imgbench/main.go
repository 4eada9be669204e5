// Command imgbench runs a synthetic image workload through the loader and
// exposes optional pprof/Prometheus endpoints.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/imgcache/config"
	"github.com/IvanBrykalov/imgcache/loader"
	"github.com/IvanBrykalov/imgcache/pipeline"
	"github.com/IvanBrykalov/imgcache/request"
)

// synthetic serves pre-encoded PNGs for bench://N URIs.
type synthetic struct {
	images [][]byte
	delay  time.Duration
}

func newSynthetic(variants int, delay time.Duration) (*synthetic, error) {
	s := &synthetic{delay: delay}
	for i := 0; i < variants; i++ {
		w, h := 128+64*i, 96+48*i
		img := image.NewNRGBA(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				img.SetNRGBA(x, y, color.NRGBA{R: uint8(x + i), G: uint8(y), B: uint8(x ^ y), A: 0xff})
			}
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, err
		}
		s.images = append(s.images, buf.Bytes())
	}
	return s, nil
}

func (s *synthetic) Create(rc *pipeline.RequestContext) pipeline.Fetcher {
	id, ok := strings.CutPrefix(rc.Request.URI, "bench://")
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(id)
	if err != nil {
		return nil
	}
	return fetcherFunc(func(ctx context.Context) (pipeline.FetchResult, error) {
		if s.delay > 0 {
			t := time.NewTimer(s.delay)
			defer t.Stop()
			select {
			case <-t.C:
			case <-ctx.Done():
				return pipeline.FetchResult{}, ctx.Err()
			}
		}
		return pipeline.FetchResult{
			Source:   pipeline.BytesSource(s.images[n%len(s.images)]),
			DataFrom: pipeline.Network,
			MimeType: "image/png",
		}, nil
	})
}

type fetcherFunc func(ctx context.Context) (pipeline.FetchResult, error)

func (f fetcherFunc) Fetch(ctx context.Context) (pipeline.FetchResult, error) { return f(ctx) }

func main() {
	// ---- Flags ----
	var (
		memMB  = flag.Int64("mem", 64, "memory cache budget (MiB)")
		diskMB = flag.Int64("disk", 128, "result cache budget (MiB); 0 disables it")
		dir    = flag.String("dir", "", "result cache directory (default: temp dir)")
		policy = flag.String("policy", "lru", "eviction policy: lru | 2q")
		cfgArg = flag.String("config", "", "optional config file (yaml/json/toml), watched for changes")

		workers  = flag.Int("workers", 2*runtime.GOMAXPROCS(0), "number of worker goroutines")
		duration = flag.Duration("duration", 10*time.Second, "benchmark duration")
		latency  = flag.Duration("latency", 2*time.Millisecond, "simulated fetch latency")
		variants = flag.Int("variants", 4, "distinct source image sizes")

		keys  = flag.Int("keys", 10_000, "keyspace size")
		zipfS = flag.Float64("zipf_s", 1.1, "Zipf s > 1 (skew)")
		zipfV = flag.Float64("zipf_v", 1.0, "Zipf v")
		seed  = flag.Int64("seed", time.Now().UnixNano(), "random seed")

		pprofAddr   = flag.String("pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
		metricsAddr = flag.String("http", ":8080", "serve Prometheus metrics at addr")
	)
	flag.Parse()

	// ---- Config ----
	cfg := config.DefaultConfig()
	var cl *config.Loader
	if *cfgArg != "" {
		cl = config.NewLoader(config.DefaultEnvPrefix, *cfgArg)
		loaded, err := cl.Load(context.Background())
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		cfg = loaded
	}
	cfg.Memory.MaxSize = *memMB << 20
	cfg.Memory.Policy = *policy
	cfg.DownloadCache.Enabled = false
	cfg.ResultCache.Enabled = *diskMB > 0
	if cfg.ResultCache.Enabled {
		cfg.ResultCache.MaxSize = *diskMB << 20
		cfg.ResultCache.Dir = *dir
		if cfg.ResultCache.Dir == "" {
			tmp, err := os.MkdirTemp("", "imgbench-")
			if err != nil {
				log.Fatalf("temp dir: %v", err)
			}
			defer func() { _ = os.RemoveAll(tmp) }()
			cfg.ResultCache.Dir = tmp
		}
	}
	cfg.Logging.Format = "text"
	cfg.Logging.Level = "warn"

	// ---- pprof server (on DefaultServeMux) ----
	if *pprofAddr != "" {
		go func() {
			log.Printf("pprof: serving at %s", *pprofAddr)
			log.Println(http.ListenAndServe(*pprofAddr, nil))
		}()
	}

	// ---- Prometheus metrics (on DefaultServeMux) ----
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		log.Printf("metrics: serving at %s", *metricsAddr)
		log.Println(http.ListenAndServe(*metricsAddr, nil))
	}()

	// ---- Build loader ----
	src, err := newSynthetic(max(1, *variants), *latency)
	if err != nil {
		log.Fatalf("synthetic images: %v", err)
	}
	l, err := loader.New(cfg, loader.WithFetcher(src))
	if err != nil {
		log.Fatalf("loader: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.Shutdown(ctx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()
	if cl != nil {
		if _, err := l.Watch(ctx, cl); err != nil {
			log.Printf("config watch disabled: %v", err)
		}
	}

	// ---- Snapshot flags for goroutines ----
	keysMax := uint64(max(2, *keys) - 1)
	seedBase := *seed
	zipfSVal := *zipfS
	zipfVVal := *zipfV
	workersN := max(1, *workers)
	sizes := []request.Size{request.OriginSize, {Width: 64, Height: 64}, {Width: 100, Height: 75}}

	// ---- Load generation ----
	var total, failed atomic.Uint64
	var byFrom [int(pipeline.DownloadCache) + 1]atomic.Uint64

	start := time.Now()
	var g errgroup.Group
	for w := 0; w < workersN; w++ {
		id := w
		g.Go(func() error {
			// Each worker gets its own RNG + Zipf (rand.Rand is NOT goroutine-safe).
			r := rand.New(rand.NewSource(seedBase + int64(id)*9973))
			z := rand.NewZipf(r, zipfSVal, zipfVVal, keysMax)

			for ctx.Err() == nil {
				n := z.Uint64()
				req := request.New("bench://" + strconv.FormatUint(n, 10))
				if sz := sizes[n%uint64(len(sizes))]; !sz.IsOrigin() {
					req.SizeResolver = request.FixedSize(sz.Width, sz.Height)
				}
				data, err := l.Execute(ctx, req, nil)
				total.Add(1)
				switch {
				case err == nil:
					byFrom[data.DataFrom].Add(1)
				case ctx.Err() == nil:
					failed.Add(1)
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	elapsed := time.Since(start)

	// ---- Report ----
	ops := total.Load()
	fmt.Printf("policy=%s mem=%dMiB disk=%dMiB workers=%d keys=%d dur=%v seed=%d\n",
		*policy, *memMB, *diskMB, workersN, *keys, elapsed, seedBase)
	fmt.Printf("requests=%d (%.0f req/s)  failed=%d\n",
		ops, float64(ops)/elapsed.Seconds(), failed.Load())
	for from := pipeline.Local; from <= pipeline.DownloadCache; from++ {
		if n := byFrom[from].Load(); n > 0 {
			fmt.Printf("  %-14s %d (%.2f%%)\n", from, n, float64(n)/float64(ops)*100)
		}
	}
	st := l.MemoryCache().Stats()
	fmt.Printf("memory: entries=%d size=%d/%d hits=%d misses=%d evictions=%d\n",
		st.Entries, st.Size, st.MaxSize, st.Hits, st.Misses, st.Evictions)
	if rc := l.ResultCache(); rc != nil {
		fmt.Printf("result: entries=%d size=%d/%d\n", rc.Len(), rc.Size(), rc.MaxSize())
	}
}
