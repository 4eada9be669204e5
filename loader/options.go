package loader

import (
	"log/slog"

	"github.com/go-git/go-billy/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/IvanBrykalov/imgcache/pipeline"
)

// Option customizes a Loader built by New.
type Option func(*options)

type options struct {
	logger       *slog.Logger
	registerer   prometheus.Registerer
	fs           billy.Filesystem
	fetchers     []pipeline.FetcherFactory
	decoders     []pipeline.DecoderFactory
	interceptors []pipeline.Interceptor
	deliver      func(func())
}

// WithLogger replaces the logger built from the logging configuration.
func WithLogger(lg *slog.Logger) Option {
	return func(o *options) { o.logger = lg }
}

// WithRegisterer registers metrics with reg instead of the default registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithFilesystem roots both disk caches in fs ("result" and "download"
// subdirectories) instead of the configured directories.
func WithFilesystem(fs billy.Filesystem) Option {
	return func(o *options) { o.fs = fs }
}

// WithFetcher adds a fetcher factory. Added factories are tried before the
// built-in http, file and data fetchers, in the order given.
func WithFetcher(f pipeline.FetcherFactory) Option {
	return func(o *options) { o.fetchers = append(o.fetchers, f) }
}

// WithDecoder adds a decoder factory, tried before the built-in decoder.
func WithDecoder(d pipeline.DecoderFactory) Option {
	return func(o *options) { o.decoders = append(o.decoders, d) }
}

// WithInterceptor registers an extra pipeline stage.
func WithInterceptor(ic pipeline.Interceptor) Option {
	return func(o *options) { o.interceptors = append(o.interceptors, ic) }
}

// WithDeliver sets the dispatcher that runs target callbacks.
func WithDeliver(fn func(func())) Option {
	return func(o *options) { o.deliver = fn }
}
