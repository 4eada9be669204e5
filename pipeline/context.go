package pipeline

import (
	"context"
	"log/slog"
	"strings"

	"github.com/IvanBrykalov/imgcache/request"
)

// RequestContext is the per-execution state shared by all interceptors.
// The size is resolved once; keys follow the current request.
type RequestContext struct {
	Request *request.Request
	Size    request.Size

	MemoryKey   string
	ResultKey   string
	DownloadKey string

	// Fetch is set by the fetch stage for the terminal stage to decode.
	Fetch *FetchResult

	Logger *slog.Logger
}

// NewRequestContext resolves req's size and derives its cache keys.
func NewRequestContext(ctx context.Context, req *request.Request, lg *slog.Logger) (*RequestContext, error) {
	size, err := req.ResolveSize(ctx)
	if err != nil {
		return nil, err
	}
	if lg == nil {
		lg = slog.Default()
	}
	rc := &RequestContext{Size: size, Logger: lg.With(slog.String("uri", req.URI))}
	rc.setRequest(req)
	return rc, nil
}

func (rc *RequestContext) setRequest(req *request.Request) {
	rc.Request = req
	rc.MemoryKey = request.Key(req, rc.Size)
	rc.ResultKey = request.ResultKey(req, rc.Size)
	rc.DownloadKey = request.DownloadKey(req)
}

// Resize is the resize instruction for the current request.
func (rc *RequestContext) Resize() request.Resize { return rc.Request.Resize(rc.Size) }

// ExecutionKey identifies executions that may share one pipeline run:
// same resolved key, same depth, same cache policies.
func (rc *RequestContext) ExecutionKey() string {
	r := rc.Request
	return strings.Join([]string{
		rc.MemoryKey,
		rc.ResultKey,
		r.Depth.String(),
		r.MemoryCachePolicy.String(),
		r.ResultCachePolicy.String(),
		r.DownloadCachePolicy.String(),
	}, "|")
}
