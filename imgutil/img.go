package imgutil

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/tiff"
	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	ts "github.com/sugarme/gotch/tensor"
	"golang.org/x/image/draw"
)

// ErrUnsupportedFormat is returned for image files with an unknown extension.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// ReadImage reads image from file.
func ReadImage(filename string) (image.Image, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".png", ".jpg", ".jpeg", ".bmp", ".gif":
		return imaging.Open(filename)
	case ".tiff", ".tif":
		f, err := os.Open(filename)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return tiff.Decode(f)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// Save writes img to file; the format is picked from the extension.
func Save(img image.Image, filename string) error {
	return imaging.Save(img, filename)
}

// Resize resizes img to w x h with Lanczos resampling.
func Resize(img image.Image, w, h int) *image.NRGBA {
	return imaging.Resize(img, w, h, imaging.Lanczos)
}

// ResizeMask resizes a mask with nearest neighbour so no new values are introduced.
func ResizeMask(mask image.Image, w, h int) image.Image {
	return resize.Resize(uint(w), uint(h), mask, resize.NearestNeighbor)
}

// FitSize rounds w and h down to the nearest multiple of factor, keeping at
// least factor pixels in each dimension.
func FitSize(w, h, factor int) (int, int) {
	fit := func(v int) int {
		v = v / factor * factor
		if v < factor {
			return factor
		}
		return v
	}

	return fit(w), fit(h)
}

// ToTensor converts img to a float tensor of shape [1 3 H W] with values in [0, 1].
func ToTensor(img image.Image) (*ts.Tensor, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	plane := w * h
	data := make([]float32, 3*plane)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			i := y*w + x
			data[i] = float32(c.R) / 255
			data[plane+i] = float32(c.G) / 255
			data[2*plane+i] = float32(c.B) / 255
		}
	}

	return ts.NewTensorFromData(data, []int64{1, 3, int64(h), int64(w)})
}

// RGBToGray converts a RGB (...x3xHxW) to grayscale image (...xHxW).
// ref. https://github.com/pytorch/vision/blob/master/torchvision/transforms/functional_tensor.py#L196-L234
// (0.2989 * r + 0.587 * g + 0.114 * b)
func RGBToGray(x *ts.Tensor) (*ts.Tensor, error) {
	size := x.MustSize()
	if len(size) < 3 {
		return nil, fmt.Errorf("expected at least 3D tensor, got %d dimensions", len(size))
	}

	chanSize := size[len(size)-3]
	if chanSize != 3 {
		return nil, fmt.Errorf("expected 3 RGB channels, got %d", chanSize)
	}

	channels := x.MustUnbind(-3, false)
	r := channels[0].MustMul1(ts.FloatScalar(0.2989), true)
	g := channels[1].MustMul1(ts.FloatScalar(0.587), true)
	b := channels[2].MustMul1(ts.FloatScalar(0.114), true)

	rg := r.MustAdd(g, true)
	g.MustDrop()
	gray := rg.MustAdd(b, true)
	b.MustDrop()

	return gray, nil
}

// MaskTensor converts a mask image to a float tensor of shape [1 1 H W]
// with values in [0, 1]. Colour masks are converted with luminosity weights.
func MaskTensor(img image.Image) (*ts.Tensor, error) {
	rgb, err := ToTensor(img)
	if err != nil {
		return nil, err
	}
	gray, err := RGBToGray(rgb)
	rgb.MustDrop()
	if err != nil {
		return nil, err
	}

	return gray.MustUnsqueeze(1, true), nil
}

// MaskToImage converts a single mask tensor with values in [0, 1] to a
// grayscale image. Accepted shapes are [H W], [1 H W] and [1 1 H W].
func MaskToImage(mask *ts.Tensor) (*image.Gray, error) {
	size := mask.MustSize()
	if len(size) < 2 {
		return nil, fmt.Errorf("expected mask with at least 2 dimensions, got %v", size)
	}
	for _, d := range size[:len(size)-2] {
		if d != 1 {
			return nil, fmt.Errorf("expected a single mask, got shape %v", size)
		}
	}
	h, w := int(size[len(size)-2]), int(size[len(size)-1])

	vals := mask.Float64Values()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i, v := range vals {
		if v < 0 {
			v = 0
		}
		if v > 1 {
			v = 1
		}
		img.Pix[(i/w)*img.Stride+i%w] = uint8(v*255 + 0.5)
	}

	return img, nil
}

// Overlay blends mask onto img in the given colour. opacity scales the mask
// intensity: 255 paints fully masked pixels with c, 64 gives 25% opacity.
func Overlay(img, mask image.Image, c color.Color, opacity uint8) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)

	mb := mask.Bounds()
	alpha := image.NewAlpha(dst.Bounds())
	for y := 0; y < b.Dy() && y < mb.Dy(); y++ {
		for x := 0; x < b.Dx() && x < mb.Dx(); x++ {
			g := color.GrayModel.Convert(mask.At(mb.Min.X+x, mb.Min.Y+y)).(color.Gray)
			alpha.Pix[y*alpha.Stride+x] = uint8(uint16(g.Y) * uint16(opacity) / 255)
		}
	}

	draw.DrawMask(dst, dst.Bounds(), image.NewUniform(c), image.Point{}, alpha, image.Point{}, draw.Over)

	return dst
}
