package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/IvanBrykalov/imgcache/request"
)

// FetchInterceptor picks a fetcher for the request, runs it on Pool and
// hands the raw data to the terminal stage.
type FetchInterceptor struct {
	Factories []FetcherFactory
	Pool      *Pool
}

func (*FetchInterceptor) Key() string     { return "Fetch" }
func (*FetchInterceptor) SortWeight() int { return 80 }

func (f *FetchInterceptor) Intercept(ctx context.Context, chain Chain) (ImageData, error) {
	req, rc := chain.Request(), chain.RequestContext()
	var fetcher Fetcher
	for _, fac := range f.Factories {
		if fetcher = fac.Create(rc); fetcher != nil {
			break
		}
	}
	if fetcher == nil {
		return ImageData{}, noFetcherError(req.URI)
	}
	if req.Depth == request.Local && needsNetwork(fetcher) {
		return ImageData{}, DepthError(req.Depth, "network fetch")
	}

	var res FetchResult
	err := f.Pool.Do(ctx, func(ctx context.Context) error {
		var err error
		res, err = fetcher.Fetch(ctx)
		return err
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ImageData{}, ctxErr
		}
		if errors.Is(err, ErrDepthExceeded) {
			return ImageData{}, err
		}
		return ImageData{}, FetchError(req.URI, err)
	}
	rc.Logger.Debug("fetched", slog.String("from", res.DataFrom.String()), slog.String("mimeType", res.MimeType))
	rc.Fetch = &res
	return chain.Proceed(ctx, req)
}

// needsNetwork reports whether running f would reach the network.
func needsNetwork(f Fetcher) bool {
	nf, ok := f.(NetworkFetcher)
	if !ok || !nf.IsNetwork() {
		return false
	}
	if c, ok := f.(CachedFetcher); ok && c.Cached() {
		return false
	}
	return true
}
