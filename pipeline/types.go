package pipeline

import (
	"bytes"
	"context"
	"image"
	"io"
	"sync/atomic"

	"github.com/IvanBrykalov/imgcache/request"
)

// DataFrom tags the tier that produced a result.
type DataFrom int

const (
	Local DataFrom = iota
	Network
	Memory
	MemoryCache
	ResultCache
	DownloadCache
)

func (d DataFrom) String() string {
	switch d {
	case Local:
		return "LOCAL"
	case Network:
		return "NETWORK"
	case Memory:
		return "MEMORY"
	case MemoryCache:
		return "MEMORY_CACHE"
	case ResultCache:
		return "RESULT_CACHE"
	case DownloadCache:
		return "DOWNLOAD_CACHE"
	default:
		return "UNKNOWN"
	}
}

// ImageValue is a decoded image shared between the memory cache and its
// consumers. Consumers that display it call Acquire and Release; the
// memory cache never evicts a value in use. The image must not be mutated.
type ImageValue struct {
	Image        image.Image
	Info         request.ImageInfo
	Resize       request.Resize
	Transformeds []string
	Extras       map[string]string

	size int64
	refs atomic.Int32
}

// NewImageValue wraps a decoded image. Its size is width*height*4 bytes.
func NewImageValue(img image.Image, info request.ImageInfo, resize request.Resize, transformeds []string, extras map[string]string) *ImageValue {
	b := img.Bounds()
	return &ImageValue{
		Image:        img,
		Info:         info,
		Resize:       resize,
		Transformeds: transformeds,
		Extras:       extras,
		size:         int64(b.Dx()) * int64(b.Dy()) * 4,
	}
}

// Size returns the value's memory footprint in bytes.
func (v *ImageValue) Size() int64 { return v.size }

// Transformed reports whether the image differs from the decoded source.
func (v *ImageValue) Transformed() bool { return len(v.Transformeds) > 0 }

// Acquire pins the value while a consumer displays it.
func (v *ImageValue) Acquire() { v.refs.Add(1) }

// Release undoes one Acquire.
func (v *ImageValue) Release() {
	if v.refs.Add(-1) < 0 {
		v.refs.Store(0)
	}
}

// InUse reports whether any consumer holds the value.
func (v *ImageValue) InUse() bool { return v.refs.Load() > 0 }

// ImageData is the result of a pipeline run.
type ImageData struct {
	Value    *ImageValue
	DataFrom DataFrom
}

// DataSource yields the raw bytes of a fetched image.
type DataSource interface {
	Open() (io.ReadCloser, error)
}

// BytesSource serves an in-memory payload.
type BytesSource []byte

func (b BytesSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b)), nil
}

// FetchResult is a fetcher's output.
type FetchResult struct {
	Source   DataSource
	DataFrom DataFrom
	MimeType string
}

// Fetcher produces the raw data for one request.
type Fetcher interface {
	Fetch(ctx context.Context) (FetchResult, error)
}

// NetworkFetcher marks fetchers that reach the network; LOCAL depth
// forbids them.
type NetworkFetcher interface {
	Fetcher
	IsNetwork() bool
}

// CachedFetcher is implemented by network fetchers that can serve from a
// local copy. Cached reports whether that copy exists, in which case
// LOCAL depth allows the fetch.
type CachedFetcher interface {
	Fetcher
	Cached() bool
}

// FetcherFactory returns a fetcher for rc, or nil when it cannot handle
// the request. The first non-nil fetcher wins.
type FetcherFactory interface {
	Create(rc *RequestContext) Fetcher
}

// DecodeResult is a decoder's output.
type DecodeResult struct {
	Image        image.Image
	Info         request.ImageInfo
	Transformeds []string
	Extras       map[string]string
}

// Decoder turns fetched data into an image.
type Decoder interface {
	Decode(ctx context.Context) (DecodeResult, error)
}

// DecoderFactory returns a decoder for the fetched data, or nil.
type DecoderFactory interface {
	Create(rc *RequestContext, fr FetchResult) Decoder
}
