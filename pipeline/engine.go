package pipeline

import (
	"context"
	"errors"
	"log/slog"
)

// EngineInterceptor is the terminal stage: it decodes the fetched data,
// resizes it to the resolved size and applies the transformations.
type EngineInterceptor struct {
	Decoders []DecoderFactory
	Pool     *Pool
}

func (*EngineInterceptor) Key() string     { return "Engine" }
func (*EngineInterceptor) SortWeight() int { return TerminalWeight }

func (e *EngineInterceptor) Intercept(ctx context.Context, chain Chain) (ImageData, error) {
	req, rc := chain.Request(), chain.RequestContext()
	if rc.Fetch == nil {
		return ImageData{}, noFetcherError(req.URI)
	}
	fr := *rc.Fetch

	var dec Decoder
	for _, fac := range e.Decoders {
		if dec = fac.Create(rc, fr); dec != nil {
			break
		}
	}
	if dec == nil {
		return ImageData{}, noDecoderError(req.URI, fr.MimeType)
	}

	var value *ImageValue
	err := e.Pool.Do(ctx, func(ctx context.Context) error {
		res, err := dec.Decode(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, ErrDecode) && !errors.Is(err, ErrFetch) {
				err = DecodeError(req.URI, err)
			}
			return err
		}
		if res.Image == nil {
			return DecodeError(req.URI, errors.New("decoder returned no image"))
		}

		img := res.Image
		transformeds := append([]string(nil), res.Transformeds...)
		resize := rc.Resize()
		if out, ok := ApplyResize(img, resize); ok {
			img = out
			transformeds = append(transformeds, resize.Key())
		}
		for _, t := range req.Transformations {
			if err := ctx.Err(); err != nil {
				return err
			}
			out, err := t.Transform(ctx, img)
			if err != nil {
				return transformError(req.URI, t.Key(), err)
			}
			img = out
			transformeds = append(transformeds, t.Key())
		}
		value = NewImageValue(img, res.Info, resize, transformeds, res.Extras)
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ImageData{}, ctxErr
		}
		return ImageData{}, err
	}
	rc.Logger.Debug("decoded",
		slog.Int("width", value.Image.Bounds().Dx()), slog.Int("height", value.Image.Bounds().Dy()),
		slog.Int("transformations", len(value.Transformeds)))
	return ImageData{Value: value, DataFrom: fr.DataFrom}, nil
}
