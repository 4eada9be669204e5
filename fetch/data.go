package fetch

import (
	"context"
	"encoding/base64"
	"errors"
	"net/url"
	"strings"

	"github.com/IvanBrykalov/imgcache/pipeline"
)

var errMalformedDataURI = errors.New("fetch: malformed data uri")

// Data serves RFC 2397 data: URIs.
type Data struct{}

// Create implements pipeline.FetcherFactory.
func (Data) Create(rc *pipeline.RequestContext) pipeline.Fetcher {
	if !strings.HasPrefix(rc.Request.URI, "data:") {
		return nil
	}
	return dataFetcher(rc.Request.URI)
}

type dataFetcher string

func (d dataFetcher) Fetch(context.Context) (pipeline.FetchResult, error) {
	mediaType, payload, err := ParseDataURI(string(d))
	if err != nil {
		return pipeline.FetchResult{}, err
	}
	return pipeline.FetchResult{
		Source:   pipeline.BytesSource(payload),
		DataFrom: pipeline.Memory,
		MimeType: mediaType,
	}, nil
}

// ParseDataURI returns the media type (without parameters) and decoded
// payload of a data: URI.
func ParseDataURI(uri string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, errMalformedDataURI
	}
	header, body, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, errMalformedDataURI
	}
	params := strings.Split(header, ";")
	mediaType := params[0]
	if mediaType == "" {
		mediaType = "text/plain"
	}
	if params[len(params)-1] == "base64" {
		payload, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			// Unpadded payloads are common in hand-written URIs.
			payload, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(body, "="))
		}
		if err != nil {
			return "", nil, errors.Join(errMalformedDataURI, err)
		}
		return mediaType, payload, nil
	}
	payload, err := url.PathUnescape(body)
	if err != nil {
		return "", nil, errors.Join(errMalformedDataURI, err)
	}
	return mediaType, []byte(payload), nil
}
