// Package decode is the default decoder: every format registered with the
// image package (png, jpeg, gif from the standard library, webp and bmp
// from golang.org/x/image).
package decode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/IvanBrykalov/imgcache/pipeline"
	"github.com/IvanBrykalov/imgcache/request"
)

// DefaultMaxPixels caps decoded images at 64 megapixels.
const DefaultMaxPixels = 64 << 20

// ErrTooLarge rejects images over Factory.MaxPixels.
var ErrTooLarge = errors.New("decode: image exceeds pixel limit")

// Factory implements pipeline.DecoderFactory for all registered formats.
type Factory struct {
	// MaxPixels bounds width*height; zero means DefaultMaxPixels.
	MaxPixels int64
}

// Create implements pipeline.DecoderFactory. Format detection happens at
// decode time, so Factory accepts any data and belongs last in the list.
func (f Factory) Create(rc *pipeline.RequestContext, fr pipeline.FetchResult) pipeline.Decoder {
	limit := f.MaxPixels
	if limit <= 0 {
		limit = DefaultMaxPixels
	}
	return &decoder{uri: rc.Request.URI, fr: fr, maxPixels: limit}
}

type decoder struct {
	uri       string
	fr        pipeline.FetchResult
	maxPixels int64
}

func (d *decoder) Decode(ctx context.Context) (pipeline.DecodeResult, error) {
	data, err := readAll(d.fr.Source)
	if err != nil {
		return pipeline.DecodeResult{}, pipeline.FetchError(d.uri, err)
	}
	if err := ctx.Err(); err != nil {
		return pipeline.DecodeResult{}, err
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return pipeline.DecodeResult{}, pipeline.DecodeError(d.uri, err)
	}
	if int64(cfg.Width)*int64(cfg.Height) > d.maxPixels {
		return pipeline.DecodeResult{}, pipeline.DecodeError(d.uri,
			fmt.Errorf("%w: %dx%d", ErrTooLarge, cfg.Width, cfg.Height))
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return pipeline.DecodeResult{}, pipeline.DecodeError(d.uri, err)
	}
	return pipeline.DecodeResult{
		Image: img,
		Info: request.ImageInfo{
			Width:    cfg.Width,
			Height:   cfg.Height,
			MimeType: "image/" + format,
		},
	}, nil
}

func readAll(src pipeline.DataSource) ([]byte, error) {
	if b, ok := src.(pipeline.BytesSource); ok {
		return b, nil
	}
	rc, err := src.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
