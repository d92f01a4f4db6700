package main

import (
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"

	"github.com/sugarme/unet/dataset"
	"github.com/sugarme/unet/imgutil"
	"github.com/sugarme/unet/unet"
)

func testNet(t *testing.T, maps int64) *unet.UNet {
	cfg := unet.DefaultConfig()
	cfg.Filters = []int64{4, 8}
	cfg.Maps = maps

	vs := nn.NewVarStore(gotch.CPU)
	net, err := unet.New(vs.Root(), cfg)
	require.NoError(t, err)
	return net
}

func testImage(w, h int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 8), G: uint8(y * 8), B: 128, A: 255})
		}
	}
	return img
}

func TestPredictImage(t *testing.T) {
	net := testNet(t, 2)

	masks, err := predictImage(net, testImage(22, 18), 0.5)
	require.NoError(t, err)
	require.Len(t, masks, 2)
	for _, m := range masks {
		assert.Equal(t, 22, m.Bounds().Dx())
		assert.Equal(t, 18, m.Bounds().Dy())
	}
}

func TestEvalSample(t *testing.T) {
	net := testNet(t, 1)
	dir := t.TempDir()

	imgPath := filepath.Join(dir, "img.png")
	maskPath := filepath.Join(dir, "mask.png")
	require.NoError(t, imgutil.Save(testImage(16, 16), imgPath))
	require.NoError(t, imgutil.Save(image.NewGray(image.Rect(0, 0, 16, 16)), maskPath))

	score, err := evalSample(net, dataset.Sample{Image: imgPath, Mask: maskPath}, 0.5)
	require.NoError(t, err)
	assert.Equal(t, imgPath, score.Image)
	assert.True(t, score.Dice >= 0 && score.Dice <= 1)
	assert.True(t, score.IoU >= 0 && score.IoU <= score.Dice+1e-9)

	_, err = evalSample(net, dataset.Sample{Image: filepath.Join(dir, "none.png"), Mask: maskPath}, 0.5)
	assert.Error(t, err)
}
