package request

import (
	"context"
	"strconv"
)

// Size is a pixel size. The zero value is OriginSize.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// OriginSize means "keep the source dimensions".
var OriginSize = Size{}

// IsOrigin reports whether s requests no resizing.
func (s Size) IsOrigin() bool { return s.Width <= 0 || s.Height <= 0 }

func (s Size) String() string {
	return strconv.Itoa(s.Width) + "x" + strconv.Itoa(s.Height)
}

// SizeResolver produces the target size. Implementations may block until
// layout completes; they must honor ctx cancellation.
type SizeResolver interface {
	Size(ctx context.Context) (Size, error)
}

// SizeResolverFunc adapts a function to SizeResolver.
type SizeResolverFunc func(ctx context.Context) (Size, error)

// Size implements SizeResolver.
func (f SizeResolverFunc) Size(ctx context.Context) (Size, error) { return f(ctx) }

// FixedSize returns a resolver that always yields s.
func FixedSize(width, height int) SizeResolver {
	s := Size{Width: width, Height: height}
	return SizeResolverFunc(func(context.Context) (Size, error) { return s, nil })
}

// Precision decides how strictly the output must match the target size.
type Precision int

const (
	// LessPixels keeps the aspect ratio and only guarantees the pixel
	// count does not exceed the target's.
	LessPixels Precision = iota
	// SameAspectRatio crops to the target aspect ratio, then scales down.
	SameAspectRatio
	// Exactly crops and scales to the exact target size.
	Exactly
)

func (p Precision) String() string {
	switch p {
	case LessPixels:
		return "LESS_PIXELS"
	case SameAspectRatio:
		return "SAME_ASPECT_RATIO"
	case Exactly:
		return "EXACTLY"
	default:
		return "UNKNOWN"
	}
}

// Scale positions the crop window when precision requires cropping.
type Scale int

const (
	CenterCrop Scale = iota
	StartCrop
	EndCrop
	// Fill stretches the whole source into the target without cropping.
	Fill
)

func (s Scale) String() string {
	switch s {
	case CenterCrop:
		return "CENTER_CROP"
	case StartCrop:
		return "START_CROP"
	case EndCrop:
		return "END_CROP"
	case Fill:
		return "FILL"
	default:
		return "UNKNOWN"
	}
}

// Resize is the fully resolved resize instruction.
type Resize struct {
	Size      Size      `json:"size"`
	Precision Precision `json:"precision"`
	Scale     Scale     `json:"scale"`
}

// Key renders the resize in the stable form used by cache keys.
func (r Resize) Key() string {
	return "Resize(" + r.Size.String() + "," + r.Precision.String() + "," + r.Scale.String() + ")"
}
