// Package fetch provides the default fetchers: http(s) with an optional
// download disk cache, local files and data: URIs.
//
// Each type is a pipeline.FetcherFactory; register them in the fetch
// stage in priority order.
package fetch
