package pipeline

import (
	"errors"
	"fmt"

	platformerrors "github.com/jmgilman/go/errors"

	"github.com/IvanBrykalov/imgcache/request"
)

var (
	// ErrDepthExceeded means the request's depth forbids reaching the
	// stage that would serve it.
	ErrDepthExceeded = errors.New("pipeline: request depth exceeded")
	// ErrNoFetcher means no fetcher factory accepted the request.
	ErrNoFetcher = errors.New("pipeline: no fetcher for uri")
	// ErrNoDecoder means no decoder factory accepted the fetched data.
	ErrNoDecoder = errors.New("pipeline: no decoder for data")
	// ErrFetch wraps fetcher failures.
	ErrFetch = errors.New("pipeline: fetch failed")
	// ErrDecode wraps decoder failures.
	ErrDecode = errors.New("pipeline: decode failed")
	// ErrTransform wraps transformation failures.
	ErrTransform = errors.New("pipeline: transformation failed")

	// ErrInvalidWeight rejects a sort weight outside 0..100.
	ErrInvalidWeight = errors.New("pipeline: sort weight must be within 0..100")
	// ErrDuplicateTerminal rejects a second interceptor with weight 100.
	ErrDuplicateTerminal = errors.New("pipeline: terminal interceptor already registered")
	// ErrNoTerminal means the chain has no terminal interceptor, or an
	// interceptor proceeded past it.
	ErrNoTerminal = errors.New("pipeline: no terminal interceptor")
)

// DepthError reports that depth forbids stage.
func DepthError(depth request.Depth, stage string) error {
	return platformerrors.WrapWithContext(ErrDepthExceeded, platformerrors.CodeForbidden,
		"request depth forbids "+stage, map[string]interface{}{"depth": depth.String()})
}

// FetchError classifies a fetcher failure.
func FetchError(uri string, err error) error {
	return platformerrors.WrapWithContext(fmt.Errorf("%w: %w", ErrFetch, err), platformerrors.CodeNetwork,
		"fetch failed", map[string]interface{}{"uri": uri})
}

// DecodeError classifies malformed or unsupported image data.
func DecodeError(uri string, err error) error {
	return platformerrors.WrapWithContext(fmt.Errorf("%w: %w", ErrDecode, err), platformerrors.CodeInvalidInput,
		"decode failed", map[string]interface{}{"uri": uri})
}

func transformError(uri, key string, err error) error {
	return platformerrors.WrapWithContext(fmt.Errorf("%w: %w", ErrTransform, err), platformerrors.CodeExecutionFailed,
		"transformation failed", map[string]interface{}{"uri": uri, "transformation": key})
}

func noFetcherError(uri string) error {
	return platformerrors.WrapWithContext(ErrNoFetcher, platformerrors.CodeInvalidInput,
		"unsupported uri", map[string]interface{}{"uri": uri})
}

func noDecoderError(uri, mime string) error {
	return platformerrors.WrapWithContext(ErrNoDecoder, platformerrors.CodeInvalidInput,
		"unsupported image data", map[string]interface{}{"uri": uri, "mimeType": mime})
}
