package decode

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"

	"github.com/IvanBrykalov/imgcache/pipeline"
	"github.com/IvanBrykalov/imgcache/request"
)

func sample() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 40; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 6), G: uint8(y * 12), B: 0x40, A: 0xff})
		}
	}
	return img
}

func decodeBytes(t *testing.T, f Factory, data []byte) (pipeline.DecodeResult, error) {
	t.Helper()
	rc, err := pipeline.NewRequestContext(context.Background(), request.New("test://img"), nil)
	require.NoError(t, err)
	dec := f.Create(rc, pipeline.FetchResult{Source: pipeline.BytesSource(data)})
	require.NotNil(t, dec)
	return dec.Decode(context.Background())
}

func TestDecode_Formats(t *testing.T) {
	t.Parallel()

	encoders := map[string]func(w io.Writer, img image.Image) error{
		"image/png":  png.Encode,
		"image/jpeg": func(w io.Writer, img image.Image) error { return jpeg.Encode(w, img, nil) },
		"image/gif":  func(w io.Writer, img image.Image) error { return gif.Encode(w, img, nil) },
		"image/bmp":  bmp.Encode,
	}
	for mime, enc := range encoders {
		t.Run(mime, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, enc(&buf, sample()))
			res, err := decodeBytes(t, Factory{}, buf.Bytes())
			require.NoError(t, err)
			assert.Equal(t, request.ImageInfo{Width: 40, Height: 20, MimeType: mime}, res.Info)
			assert.Equal(t, image.Rect(0, 0, 40, 20), res.Image.Bounds())
		})
	}
}

func TestDecode_Malformed(t *testing.T) {
	t.Parallel()
	_, err := decodeBytes(t, Factory{}, []byte("definitely not an image"))
	require.ErrorIs(t, err, pipeline.ErrDecode)
}

func TestDecode_PixelLimit(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, sample()))

	_, err := decodeBytes(t, Factory{MaxPixels: 40*20 - 1}, buf.Bytes())
	require.ErrorIs(t, err, ErrTooLarge)
	require.ErrorIs(t, err, pipeline.ErrDecode)

	_, err = decodeBytes(t, Factory{MaxPixels: 40 * 20}, buf.Bytes())
	require.NoError(t, err)
}

type brokenSource struct{}

func (brokenSource) Open() (io.ReadCloser, error) { return nil, io.ErrUnexpectedEOF }

func TestDecode_SourceFailureIsFetchError(t *testing.T) {
	t.Parallel()
	rc, err := pipeline.NewRequestContext(context.Background(), request.New("test://img"), nil)
	require.NoError(t, err)
	_, err = Factory{}.Create(rc, pipeline.FetchResult{Source: brokenSource{}}).Decode(context.Background())
	require.ErrorIs(t, err, pipeline.ErrFetch)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}
