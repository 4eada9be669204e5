package request

import "strings"

// Key derives the cache key for r at the resolved size.
//
// Layout (fixed order, empty segments omitted):
//
//	<uri>?_size=WxH&_precision=P&_scale=S&_transformations=[k1,k2]&_parameters={a:x,b:y}
//
// Transformation keys and parameter names and values are percent-escaped
// wherever they contain a separator, so distinct lists never share a key.
// Key must only be called with a size returned by the request's
// SizeResolver; an unresolved size must never reach a persisted key.
func Key(r *Request, size Size) string {
	if r.CacheKeyMapper != nil {
		return r.CacheKeyMapper(r, size)
	}
	var b strings.Builder
	b.Grow(len(r.URI) + 64)
	b.WriteString(r.URI)

	sep := byte('?')
	if strings.IndexByte(r.URI, '?') >= 0 {
		sep = '&'
	}
	add := func(name, value string) {
		b.WriteByte(sep)
		sep = '&'
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(value)
	}

	add("_size", size.String())
	add("_precision", r.Precision.String())
	add("_scale", r.Scale.String())
	if len(r.Transformations) > 0 {
		keys := TransformationKeys(r.Transformations)
		for i, k := range keys {
			keys[i] = escapeSegment(k)
		}
		add("_transformations", "["+strings.Join(keys, ",")+"]")
	}
	if params := r.Parameters.cacheKeys(); len(params) > 0 {
		add("_parameters", "{"+strings.Join(params, ",")+"}")
	}
	return b.String()
}

// segmentEscaper percent-encodes the characters that delimit key segments.
// Encoding '%' itself keeps the mapping reversible.
var segmentEscaper = strings.NewReplacer(
	"%", "%25",
	"&", "%26",
	",", "%2C",
	":", "%3A",
	"[", "%5B",
	"]", "%5D",
	"{", "%7B",
	"}", "%7D",
)

func escapeSegment(s string) string { return segmentEscaper.Replace(s) }

// ResultKey is the key for the result (disk) cache: the explicit override
// when present, the derived key otherwise.
func ResultKey(r *Request, size Size) string {
	if r.ResultCacheKey != "" {
		return r.ResultCacheKey
	}
	return Key(r, size)
}

// DownloadKey is the key for raw downloaded bytes; it depends on the URI only.
func DownloadKey(r *Request) string { return r.URI }

// TransformationKeys returns the keys of ts in order.
func TransformationKeys(ts []Transformation) []string {
	keys := make([]string, len(ts))
	for i, t := range ts {
		keys[i] = t.Key()
	}
	return keys
}
