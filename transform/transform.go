// Package transform holds stock post-processing steps for requests.
package transform

import (
	"context"
	"image"
	"image/color"
	"strconv"

	"golang.org/x/image/draw"

	"github.com/IvanBrykalov/imgcache/request"
)

var (
	_ request.Transformation = Rotate(0)
	_ request.Transformation = Grayscale{}
	_ request.Transformation = CircleCrop{}
)

// Rotate turns the image clockwise by a multiple of 90 degrees.
type Rotate int

func (r Rotate) Key() string { return "Rotate(" + strconv.Itoa(r.degrees()) + ")" }

func (r Rotate) degrees() int { return ((int(r)%360 + 360) % 360) / 90 * 90 }

func (r Rotate) Transform(_ context.Context, img image.Image) (image.Image, error) {
	deg := r.degrees()
	if deg == 0 {
		return img, nil
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	var out *image.RGBA
	if deg == 180 {
		out = image.NewRGBA(image.Rect(0, 0, w, h))
	} else {
		out = image.NewRGBA(image.Rect(0, 0, h, w))
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := img.At(b.Min.X+x, b.Min.Y+y)
			switch deg {
			case 90:
				out.Set(h-1-y, x, c)
			case 180:
				out.Set(w-1-x, h-1-y, c)
			case 270:
				out.Set(y, w-1-x, c)
			}
		}
	}
	return out, nil
}

// Grayscale drops color information.
type Grayscale struct{}

func (Grayscale) Key() string { return "Grayscale" }

func (Grayscale) Transform(_ context.Context, img image.Image) (image.Image, error) {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out, nil
}

// CircleCrop keeps the centered circle inscribed in the image and makes
// the corners transparent.
type CircleCrop struct{}

func (CircleCrop) Key() string { return "CircleCrop" }

func (CircleCrop) Transform(_ context.Context, img image.Image) (image.Image, error) {
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.DrawMask(out, out.Bounds(), img, b.Min, circle{size: out.Bounds().Size()}, image.Point{}, draw.Over)
	return out, nil
}

// circle is an alpha mask of the inscribed circle.
type circle struct{ size image.Point }

func (c circle) ColorModel() color.Model { return color.Alpha16Model }
func (c circle) Bounds() image.Rectangle { return image.Rectangle{Max: c.size} }

func (c circle) At(x, y int) color.Color {
	r := float64(min(c.size.X, c.size.Y)) / 2
	dx := float64(x) + 0.5 - float64(c.size.X)/2
	dy := float64(y) + 0.5 - float64(c.size.Y)/2
	if dx*dx+dy*dy <= r*r {
		return color.Alpha16{A: 0xffff}
	}
	return color.Alpha16{}
}
