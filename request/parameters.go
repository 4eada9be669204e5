package request

import "sort"

// Parameter is a single request parameter. An empty CacheKey marks the
// parameter as cache-key-exempt.
type Parameter struct {
	Value    any
	CacheKey string
}

// Parameters is an insertion-ordered parameter set.
type Parameters struct {
	keys   []string
	values map[string]Parameter
}

// NewParameters returns an empty set.
func NewParameters() *Parameters {
	return &Parameters{values: make(map[string]Parameter)}
}

// Set adds or replaces a parameter. Pass an empty cacheKey for annotation-only
// data that must not affect caching.
func (p *Parameters) Set(key string, value any, cacheKey string) *Parameters {
	if _, ok := p.values[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.values[key] = Parameter{Value: value, CacheKey: cacheKey}
	return p
}

// Get returns the parameter value for key.
func (p *Parameters) Get(key string) (any, bool) {
	if p == nil {
		return nil, false
	}
	v, ok := p.values[key]
	return v.Value, ok
}

// Len returns the number of parameters.
func (p *Parameters) Len() int {
	if p == nil {
		return 0
	}
	return len(p.keys)
}

// Clone returns an independent copy.
func (p *Parameters) Clone() *Parameters {
	if p == nil {
		return nil
	}
	c := &Parameters{
		keys:   append([]string(nil), p.keys...),
		values: make(map[string]Parameter, len(p.values)),
	}
	for k, v := range p.values {
		c.values[k] = v
	}
	return c
}

// cacheKeys returns escaped key:cacheKey pairs of the cache-relevant
// parameters, sorted by key so insertion order never affects the fingerprint.
func (p *Parameters) cacheKeys() []string {
	if p == nil {
		return nil
	}
	names := make([]string, 0, len(p.keys))
	for _, k := range p.keys {
		if p.values[k].CacheKey != "" {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	out := make([]string, len(names))
	for i, k := range names {
		out[i] = escapeSegment(k) + ":" + escapeSegment(p.values[k].CacheKey)
	}
	return out
}
