package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-git/go-billy/v5"

	"github.com/IvanBrykalov/imgcache/diskcache"
	"github.com/IvanBrykalov/imgcache/pipeline"
)

// DefaultUserAgent is sent when HTTP.UserAgent is empty.
const DefaultUserAgent = "imgcache/1"

// StatusError reports a non-200 response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch: unexpected status %d for %s", e.Code, e.URL)
}

// HTTP fetches http and https URIs. When Cache is set, downloads go
// through it according to the request's download cache policy.
type HTTP struct {
	Client    *http.Client
	Cache     *diskcache.Cache
	UserAgent string
	Logger    *slog.Logger
}

// Create implements pipeline.FetcherFactory.
func (h *HTTP) Create(rc *pipeline.RequestContext) pipeline.Fetcher {
	uri := rc.Request.URI
	if !strings.HasPrefix(uri, "http://") && !strings.HasPrefix(uri, "https://") {
		return nil
	}
	return &httpFetcher{h: h, rc: rc}
}

type httpFetcher struct {
	h  *HTTP
	rc *pipeline.RequestContext
}

func (*httpFetcher) IsNetwork() bool { return true }

// Cached reports whether the download cache can serve the request.
func (f *httpFetcher) Cached() bool {
	return f.h.Cache != nil &&
		f.rc.Request.DownloadCachePolicy.ReadEnabled() &&
		f.h.Cache.Exist(f.rc.DownloadKey)
}

func (f *httpFetcher) Fetch(ctx context.Context) (pipeline.FetchResult, error) {
	c, key, pol := f.h.Cache, f.rc.DownloadKey, f.rc.Request.DownloadCachePolicy
	if c != nil && pol.ReadEnabled() {
		if res, ok := cachedResult(c, key); ok {
			return res, nil
		}
	}

	resp, err := f.get(ctx)
	if err != nil {
		return pipeline.FetchResult{}, err
	}
	defer resp.Body.Close()
	mime := resp.Header.Get("Content-Type")

	if c != nil && pol.WriteEnabled() {
		if ed := c.OpenEditor(key); ed != nil {
			return f.store(ctx, ed, resp.Body, mime)
		}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return pipeline.FetchResult{}, err
	}
	return pipeline.FetchResult{Source: pipeline.BytesSource(data), DataFrom: pipeline.Network, MimeType: mime}, nil
}

func (f *httpFetcher) get(ctx context.Context) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.rc.Request.URI, nil)
	if err != nil {
		return nil, err
	}
	ua := f.h.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	req.Header.Set("User-Agent", ua)

	client := f.h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		resp.Body.Close()
		return nil, &StatusError{URL: f.rc.Request.URI, Code: resp.StatusCode}
	}
	return resp, nil
}

// store streams body into the download cache while keeping a copy for
// the caller, so the result survives an immediate eviction. A failed or
// cancelled download aborts the edit.
func (f *httpFetcher) store(ctx context.Context, ed *diskcache.Editor, body io.Reader, mime string) (pipeline.FetchResult, error) {
	defer ed.Abort()
	var buf bytes.Buffer
	if _, err := ed.WriteFrom(0, io.TeeReader(body, &buf)); err != nil {
		return pipeline.FetchResult{}, err
	}
	if err := ed.Write(1, []byte(mime)); err != nil {
		return pipeline.FetchResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return pipeline.FetchResult{}, err
	}
	if err := ed.Commit(); err != nil {
		return pipeline.FetchResult{}, err
	}
	return pipeline.FetchResult{Source: pipeline.BytesSource(buf.Bytes()), DataFrom: pipeline.Network, MimeType: mime}, nil
}

// cachedResult reads the MIME type of a cached download and returns a
// source backed by the cache entry.
func cachedResult(c *diskcache.Cache, key string) (pipeline.FetchResult, bool) {
	snap := c.OpenSnapshot(key)
	if snap == nil {
		return pipeline.FetchResult{}, false
	}
	defer snap.Close()
	mime, err := snap.ReadAll(1)
	if err != nil {
		return pipeline.FetchResult{}, false
	}
	return pipeline.FetchResult{
		Source:   &cacheSource{c: c, key: key},
		DataFrom: pipeline.DownloadCache,
		MimeType: string(mime),
	}, true
}

// cacheSource opens a snapshot per read; the entry stays pinned until
// the reader is closed.
type cacheSource struct {
	c   *diskcache.Cache
	key string
}

func (s *cacheSource) Open() (io.ReadCloser, error) {
	snap := s.c.OpenSnapshot(s.key)
	if snap == nil {
		return nil, fmt.Errorf("fetch: cached download %s is gone", s.key)
	}
	f, err := snap.Open(0)
	if err != nil {
		snap.Close()
		return nil, err
	}
	return &snapshotReader{File: f, snap: snap}, nil
}

type snapshotReader struct {
	billy.File
	snap *diskcache.Snapshot
}

func (r *snapshotReader) Close() error {
	err := r.File.Close()
	r.snap.Close()
	return err
}
