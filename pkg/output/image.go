package output

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"

	"golang.org/x/image/tiff"
	"gonum.org/v1/plot/palette"
)

// planeRange finds the finite minimum and maximum of a plane. A plane with no
// finite values reports (0, 0).
func planeRange(data []float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if lo > hi {
		return 0, 0
	}
	return lo, hi
}

// Colormap renders a plane through a heat palette. Values are normalized to
// the finite range of the plane; NaN pixels come out black.
func Colormap(data []float64, res int) *image.RGBA {
	colors := palette.Heat(256, 1).Colors()
	lo, hi := planeRange(data)
	span := hi - lo
	img := image.NewRGBA(image.Rect(0, 0, res, res))
	for v := 0; v < res; v++ {
		for u := 0; u < res; u++ {
			x := data[v*res+u]
			if math.IsNaN(x) {
				img.Set(u, res-1-v, color.Black)
				continue
			}
			t := 0.0
			if span > 0 {
				t = (x - lo) / span
			}
			idx := int(t * 255)
			if idx < 0 {
				idx = 0
			}
			if idx > 255 {
				idx = 255
			}
			img.Set(u, res-1-v, colors[idx])
		}
	}
	return img
}

// WritePNG writes the colormapped plane as a PNG preview.
func WritePNG(path string, data []float64, res int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("output: %w", err)
	}
	defer f.Close()
	if err := png.Encode(f, Colormap(data, res)); err != nil {
		return fmt.Errorf("output: encoding png: %w", err)
	}
	return nil
}

// Gray16 renders a plane as 16-bit grayscale, normalized to its finite range.
// NaN pixels map to zero.
func Gray16(data []float64, res int) *image.Gray16 {
	lo, hi := planeRange(data)
	span := hi - lo
	img := image.NewGray16(image.Rect(0, 0, res, res))
	for v := 0; v < res; v++ {
		for u := 0; u < res; u++ {
			x := data[v*res+u]
			if math.IsNaN(x) {
				continue
			}
			t := 0.0
			if span > 0 {
				t = (x - lo) / span
			}
			img.SetGray16(u, res-1-v, color.Gray16{Y: uint16(t * 65535)})
		}
	}
	return img
}

// WriteTIFF writes the plane as a deflate-compressed 16-bit grayscale TIFF.
func WriteTIFF(path string, data []float64, res int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("output: %w", err)
	}
	defer f.Close()
	opts := &tiff.Options{Compression: tiff.Deflate, Predictor: true}
	if err := tiff.Encode(f, Gray16(data, res), opts); err != nil {
		return fmt.Errorf("output: encoding tiff: %w", err)
	}
	return nil
}
