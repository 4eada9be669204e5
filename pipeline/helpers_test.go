package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/imgcache/cache"
	"github.com/IvanBrykalov/imgcache/diskcache"
	"github.com/IvanBrykalov/imgcache/request"
)

const mb = 1 << 20

func pngBytes(t testing.TB, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 0x80, A: 0xff})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// stubFetcher serves a fixed payload for URIs with its scheme.
type stubFetcher struct {
	scheme  string
	data    []byte
	from    DataFrom
	network bool
	cached  bool
	err     error
	calls   atomic.Int32
}

func (s *stubFetcher) Create(rc *RequestContext) Fetcher {
	if !strings.HasPrefix(rc.Request.URI, s.scheme+"://") {
		return nil
	}
	return s
}

func (s *stubFetcher) Fetch(ctx context.Context) (FetchResult, error) {
	s.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return FetchResult{}, err
	}
	if s.err != nil {
		return FetchResult{}, s.err
	}
	return FetchResult{Source: BytesSource(s.data), DataFrom: s.from, MimeType: "image/png"}, nil
}

func (s *stubFetcher) IsNetwork() bool { return s.network }
func (s *stubFetcher) Cached() bool    { return s.cached }

// pngDecoders decodes PNG payloads.
type pngDecoders struct{ calls atomic.Int32 }

func (d *pngDecoders) Create(_ *RequestContext, fr FetchResult) Decoder {
	if fr.MimeType != "image/png" {
		return nil
	}
	return decoderFunc(func(ctx context.Context) (DecodeResult, error) {
		d.calls.Add(1)
		rc, err := fr.Source.Open()
		if err != nil {
			return DecodeResult{}, err
		}
		defer rc.Close()
		img, err := png.Decode(rc)
		if err != nil {
			return DecodeResult{}, err
		}
		b := img.Bounds()
		return DecodeResult{Image: img, Info: request.ImageInfo{Width: b.Dx(), Height: b.Dy(), MimeType: fr.MimeType}}, nil
	})
}

type decoderFunc func(ctx context.Context) (DecodeResult, error)

func (f decoderFunc) Decode(ctx context.Context) (DecodeResult, error) { return f(ctx) }

// invert is a transformation that flips every color channel.
type invert struct{}

func (invert) Key() string { return "Invert" }
func (invert) Transform(_ context.Context, img image.Image) (image.Image, error) {
	b := img.Bounds()
	out := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, a := img.At(x, y).RGBA()
			out.Set(x, y, color.RGBA{R: 255 - uint8(r>>8), G: 255 - uint8(g>>8), B: 255 - uint8(bl>>8), A: uint8(a >> 8)})
		}
	}
	return out, nil
}

type failing struct{}

func (failing) Key() string { return "Failing" }
func (failing) Transform(context.Context, image.Image) (image.Image, error) {
	return nil, errors.New("boom")
}

type fixture struct {
	pipe     *Pipeline
	memory   ImageCache
	disk     *diskcache.Cache
	fetcher  *stubFetcher
	decoders *pngDecoders
}

func newFixture(t *testing.T, disk *diskcache.Cache) *fixture {
	t.Helper()
	if disk == nil {
		var err error
		disk, err = diskcache.Open(diskcache.Options{FS: memfs.New(), MaxSize: 64 * mb})
		require.NoError(t, err)
	}
	f := &fixture{
		memory:   NewMemoryCache(cache.Options[string, *ImageValue]{MaxSize: 64 * mb}),
		disk:     disk,
		fetcher:  &stubFetcher{scheme: "test", data: pngBytes(t, 40, 20), from: Local},
		decoders: &pngDecoders{},
	}
	f.pipe = New(nil).MustRegister(
		&MemoryCacheInterceptor{Cache: f.memory},
		DepthInterceptor{},
		&ResultCacheInterceptor{Cache: disk},
		&FetchInterceptor{Factories: []FetcherFactory{f.fetcher}},
		&EngineInterceptor{Decoders: []DecoderFactory{f.decoders}},
	)
	return f
}
