package pipeline

import (
	"image"
	"math"

	"golang.org/x/image/draw"

	"github.com/IvanBrykalov/imgcache/request"
)

// ComputeResize returns the source window to sample (relative to the
// image origin) and the output size for resizing an image of size src.
func ComputeResize(src image.Point, r request.Resize) (image.Rectangle, image.Point) {
	full := image.Rect(0, 0, src.X, src.Y)
	if r.Size.IsOrigin() || src.X <= 0 || src.Y <= 0 {
		return full, src
	}
	tw, th := r.Size.Width, r.Size.Height

	switch r.Precision {
	case request.LessPixels:
		have, want := float64(src.X)*float64(src.Y), float64(tw)*float64(th)
		if have <= want {
			return full, src
		}
		f := math.Sqrt(want / have)
		return full, image.Pt(max(1, int(float64(src.X)*f)), max(1, int(float64(src.Y)*f)))

	case request.SameAspectRatio, request.Exactly:
		if r.Scale == request.Fill {
			if r.Precision == request.SameAspectRatio && src.X <= tw && src.Y <= th {
				return full, src
			}
			return full, image.Pt(tw, th)
		}
		crop := cropWindow(src, tw, th, r.Scale)
		if r.Precision == request.SameAspectRatio && crop.Dx() <= tw {
			return crop, crop.Size()
		}
		return crop, image.Pt(tw, th)
	}
	return full, src
}

// cropWindow fits the target aspect ratio inside src, placed by scale.
func cropWindow(src image.Point, tw, th int, scale request.Scale) image.Rectangle {
	cw, ch := src.X, src.Y
	if src.X*th > src.Y*tw {
		cw = max(1, int(math.Round(float64(src.Y)*float64(tw)/float64(th))))
	} else {
		ch = max(1, int(math.Round(float64(src.X)*float64(th)/float64(tw))))
	}
	var x, y int
	switch scale {
	case request.StartCrop:
	case request.EndCrop:
		x, y = src.X-cw, src.Y-ch
	default:
		x, y = (src.X-cw)/2, (src.Y-ch)/2
	}
	return image.Rect(x, y, x+cw, y+ch)
}

// ApplyResize resizes img per r. It reports false and returns img as is
// when no resampling is needed.
func ApplyResize(img image.Image, r request.Resize) (image.Image, bool) {
	b := img.Bounds()
	crop, size := ComputeResize(b.Size(), r)
	if crop == image.Rect(0, 0, b.Dx(), b.Dy()) && size == b.Size() {
		return img, false
	}
	dst := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, crop.Add(b.Min), draw.Src, nil)
	return dst, true
}
