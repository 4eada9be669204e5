package transform

import (
	"context"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	red  = color.RGBA{R: 0xff, A: 0xff}
	blue = color.RGBA{B: 0xff, A: 0xff}
)

// marked is 4x2 with a red top-left pixel and blue elsewhere.
func marked() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 4, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, blue)
		}
	}
	img.Set(0, 0, red)
	return img
}

func TestRotate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	cases := []struct {
		r      Rotate
		key    string
		bounds image.Rectangle
		red    image.Point
	}{
		{90, "Rotate(90)", image.Rect(0, 0, 2, 4), image.Pt(1, 0)},
		{180, "Rotate(180)", image.Rect(0, 0, 4, 2), image.Pt(3, 1)},
		{270, "Rotate(270)", image.Rect(0, 0, 2, 4), image.Pt(0, 3)},
		{-90, "Rotate(270)", image.Rect(0, 0, 2, 4), image.Pt(0, 3)},
		{450, "Rotate(90)", image.Rect(0, 0, 2, 4), image.Pt(1, 0)},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.key, tc.r.Key())
		out, err := tc.r.Transform(ctx, marked())
		require.NoError(t, err)
		assert.Equal(t, tc.bounds, out.Bounds(), tc.key)
		assert.Equal(t, red, color.RGBAModel.Convert(out.At(tc.red.X, tc.red.Y)), tc.key)
	}

	src := marked()
	out, err := Rotate(360).Transform(ctx, src)
	require.NoError(t, err)
	assert.Same(t, src, out.(*image.RGBA))
	assert.Equal(t, "Rotate(0)", Rotate(360).Key())
}

func TestGrayscale(t *testing.T) {
	t.Parallel()
	out, err := Grayscale{}.Transform(context.Background(), marked().SubImage(image.Rect(1, 0, 3, 2)))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 2, 2), out.Bounds())
	assert.IsType(t, &image.Gray{}, out)
}

func TestCircleCrop(t *testing.T) {
	t.Parallel()
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			img.Set(x, y, blue)
		}
	}
	out, err := CircleCrop{}.Transform(context.Background(), img)
	require.NoError(t, err)
	_, _, _, a := out.At(0, 0).RGBA()
	assert.Zero(t, a, "corner must be transparent")
	_, _, _, a = out.At(5, 5).RGBA()
	assert.EqualValues(t, 0xffff, a, "center must be opaque")
}
