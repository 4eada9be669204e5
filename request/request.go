// Package request describes an image request: what to load, how to size it,
// which cache tiers it may touch and how far down the pipeline it may travel.
//
// Zero values are safe: an empty Request loads its URI at origin size with
// every cache tier enabled and no depth restriction.
package request

import (
	"context"
	"image"
)

// CachePolicy controls read/write access to one cache tier.
type CachePolicy int

const (
	// Enabled allows both reads and writes.
	Enabled CachePolicy = iota
	// ReadOnly serves hits but never stores new results.
	ReadOnly
	// WriteOnly stores results but never serves hits.
	WriteOnly
	// Disabled bypasses the tier entirely.
	Disabled
)

// ReadEnabled reports whether the tier may serve a cached value.
func (p CachePolicy) ReadEnabled() bool { return p == Enabled || p == ReadOnly }

// WriteEnabled reports whether the tier may store a fresh value.
func (p CachePolicy) WriteEnabled() bool { return p == Enabled || p == WriteOnly }

func (p CachePolicy) String() string {
	switch p {
	case Enabled:
		return "ENABLED"
	case ReadOnly:
		return "READ_ONLY"
	case WriteOnly:
		return "WRITE_ONLY"
	case Disabled:
		return "DISABLED"
	default:
		return "UNKNOWN"
	}
}

// Depth limits how far down the pipeline a request may go.
type Depth int

const (
	// Network permits every stage including remote fetches.
	Network Depth = iota
	// Local permits caches and local sources but no network fetch.
	Local
	// Memory permits the memory cache only.
	Memory
)

func (d Depth) String() string {
	switch d {
	case Network:
		return "NETWORK"
	case Local:
		return "LOCAL"
	case Memory:
		return "MEMORY"
	default:
		return "UNKNOWN"
	}
}

// ImageInfo is the metadata of a decoded image.
type ImageInfo struct {
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	MimeType string `json:"mimeType"`
}

// Transformation post-processes a decoded (and resized) image.
// Key must be stable: it is part of the cache key.
type Transformation interface {
	Key() string
	Transform(ctx context.Context, img image.Image) (image.Image, error)
}

// Request is an immutable description of one image load.
// Callers should not mutate a Request once it has been handed to the pipeline.
type Request struct {
	// URI identifies the source (http(s)://, file://, data:, or a custom scheme).
	URI string

	// SizeResolver yields the target size; nil means origin size.
	SizeResolver SizeResolver
	Precision    Precision
	Scale        Scale

	// Transformations are applied in order after resizing.
	Transformations []Transformation

	// Parameters carries extra request data; only parameters with a
	// non-empty cache key participate in the cache key.
	Parameters *Parameters

	MemoryCachePolicy   CachePolicy
	ResultCachePolicy   CachePolicy
	DownloadCachePolicy CachePolicy
	Depth               Depth

	// ResultCacheKey overrides the derived key for the result (disk) cache.
	ResultCacheKey string

	// CacheKeyMapper, when set, replaces key derivation entirely for the
	// memory and result cache tiers.
	CacheKeyMapper func(r *Request, size Size) string

	// Lifecycle gates the start of execution; nil means always started.
	Lifecycle LifecycleResolver
}

// New returns a request for uri with default policies.
func New(uri string) *Request {
	return &Request{URI: uri}
}

// Clone returns a shallow copy with an independent transformation slice.
// Interceptors use it to derive a modified request for Chain.Proceed.
func (r *Request) Clone() *Request {
	c := *r
	if r.Transformations != nil {
		c.Transformations = append([]Transformation(nil), r.Transformations...)
	}
	if r.Parameters != nil {
		c.Parameters = r.Parameters.Clone()
	}
	return &c
}

// ResolveSize runs the size resolver, falling back to OriginSize.
func (r *Request) ResolveSize(ctx context.Context) (Size, error) {
	if r.SizeResolver == nil {
		return OriginSize, nil
	}
	return r.SizeResolver.Size(ctx)
}

// Resize combines a resolved size with the request's precision and scale.
func (r *Request) Resize(size Size) Resize {
	return Resize{Size: size, Precision: r.Precision, Scale: r.Scale}
}
