package pipeline

import (
	"context"
	"log/slog"

	"github.com/IvanBrykalov/imgcache/cache"
	"github.com/IvanBrykalov/imgcache/request"
)

// ImageCache is the memory tier: decoded images keyed by request key.
type ImageCache = cache.Cache[string, *ImageValue]

// NewMemoryCache returns a memory tier sized in bytes. Values in use are
// never evicted. Cost and Pinned in opt are replaced.
func NewMemoryCache(opt cache.Options[string, *ImageValue]) ImageCache {
	opt.Cost = func(v *ImageValue) int64 { return v.Size() }
	opt.Pinned = func(v *ImageValue) bool { return v.InUse() }
	return cache.New(opt)
}

// MemoryCacheInterceptor serves hits from the memory tier and stores
// fresh results on the way back.
type MemoryCacheInterceptor struct {
	Cache ImageCache
}

func (*MemoryCacheInterceptor) Key() string     { return "MemoryCache" }
func (*MemoryCacheInterceptor) SortWeight() int { return 10 }

func (m *MemoryCacheInterceptor) Intercept(ctx context.Context, chain Chain) (ImageData, error) {
	req, rc := chain.Request(), chain.RequestContext()
	pol, key := req.MemoryCachePolicy, rc.MemoryKey
	if m.Cache != nil && pol.ReadEnabled() {
		if v, ok := m.Cache.Get(key); ok {
			return ImageData{Value: v, DataFrom: MemoryCache}, nil
		}
	}

	data, err := chain.Proceed(ctx, req)
	if err != nil {
		return ImageData{}, err
	}
	if m.Cache != nil && pol.WriteEnabled() && data.Value != nil {
		if st := m.Cache.Put(key, data.Value); st != cache.PutOK && st != cache.PutExists {
			rc.Logger.Debug("memory cache rejected result",
				slog.String("status", st.String()), slog.Int64("size", data.Value.Size()))
		}
	}
	return data, nil
}

// DepthInterceptor stops MEMORY-depth requests that missed the memory tier.
type DepthInterceptor struct{}

func (DepthInterceptor) Key() string     { return "Depth" }
func (DepthInterceptor) SortWeight() int { return 20 }

func (DepthInterceptor) Intercept(ctx context.Context, chain Chain) (ImageData, error) {
	req := chain.Request()
	if req.Depth == request.Memory {
		return ImageData{}, DepthError(req.Depth, "loading past the memory cache")
	}
	return chain.Proceed(ctx, req)
}
