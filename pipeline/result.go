package pipeline

import (
	"bufio"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"log/slog"

	"github.com/IvanBrykalov/imgcache/diskcache"
	"github.com/IvanBrykalov/imgcache/request"
)

// resultMeta is the JSON sidecar stored next to an encoded result.
type resultMeta struct {
	Info         request.ImageInfo `json:"info"`
	Resize       request.Resize    `json:"resize"`
	Transformeds []string          `json:"transformeds,omitempty"`
	Extras       map[string]string `json:"extras,omitempty"`
}

// ResultCacheInterceptor serves transformed results from the disk tier and
// stores new ones. Untransformed results are not stored: decoding the
// source again costs the same as decoding the cached copy.
type ResultCacheInterceptor struct {
	Cache *diskcache.Cache
	// Pool bounds decoding of cached results; nil means unbounded.
	Pool *Pool
}

func (*ResultCacheInterceptor) Key() string     { return "ResultCache" }
func (*ResultCacheInterceptor) SortWeight() int { return 50 }

func (r *ResultCacheInterceptor) Intercept(ctx context.Context, chain Chain) (ImageData, error) {
	req, rc := chain.Request(), chain.RequestContext()
	pol, key := req.ResultCachePolicy, rc.ResultKey
	if r.Cache != nil && pol.ReadEnabled() {
		v, err := r.read(ctx, rc, key)
		if err != nil {
			return ImageData{}, err
		}
		if v != nil {
			return ImageData{Value: v, DataFrom: ResultCache}, nil
		}
	}

	data, err := chain.Proceed(ctx, req)
	if err != nil {
		return ImageData{}, err
	}
	if r.Cache != nil && pol.WriteEnabled() && data.Value != nil &&
		data.Value.Transformed() && data.DataFrom != ResultCache {
		r.write(ctx, rc, key, data.Value)
	}
	return data, nil
}

// read returns nil on a miss. Unreadable entries are removed and count as
// a miss; only cancellation is an error.
func (r *ResultCacheInterceptor) read(ctx context.Context, rc *RequestContext, key string) (*ImageValue, error) {
	snap := r.Cache.OpenSnapshot(key)
	if snap == nil {
		return nil, nil
	}
	var v *ImageValue
	err := r.Pool.Do(ctx, func(ctx context.Context) error {
		defer snap.Close()
		var meta resultMeta
		raw, err := snap.ReadAll(1)
		if err == nil {
			err = json.Unmarshal(raw, &meta)
		}
		if err != nil {
			return err
		}
		f, err := snap.Open(0)
		if err != nil {
			return err
		}
		defer f.Close()
		img, err := png.Decode(bufio.NewReader(f))
		if err != nil {
			return err
		}
		v = NewImageValue(img, meta.Info, meta.Resize, meta.Transformeds, meta.Extras)
		return nil
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		rc.Logger.Warn("dropping unreadable result cache entry", slog.Any("error", err))
		r.Cache.Remove(key)
		return nil, nil
	}
	return v, nil
}

// write stores v under the result key. Failures are logged; the caller's
// result is unaffected. A cancelled request aborts the edit.
func (r *ResultCacheInterceptor) write(ctx context.Context, rc *RequestContext, key string, v *ImageValue) {
	ed := r.Cache.OpenEditor(key)
	if ed == nil {
		return
	}
	defer ed.Abort()

	meta, err := json.Marshal(resultMeta{
		Info:         v.Info,
		Resize:       v.Resize,
		Transformeds: v.Transformeds,
		Extras:       v.Extras,
	})
	if err == nil {
		err = ed.Write(1, meta)
	}
	if err == nil {
		err = encodePNG(ctx, ed, v.Image)
	}
	if err == nil {
		if err = ctx.Err(); err == nil {
			err = ed.Commit()
		}
	}
	if err != nil && ctx.Err() == nil {
		rc.Logger.Warn("result cache write failed", slog.Any("error", err))
	}
}

func encodePNG(ctx context.Context, ed *diskcache.Editor, img image.Image) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := ed.Create(0)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := png.Encode(w, img); err != nil {
		return err
	}
	return w.Flush()
}
