package main

import (
	"fmt"
	"image"
	"image/color"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/unet/imgutil"
	"github.com/sugarme/unet/unet"
)

var (
	imagePath   string
	outPath     string
	overlayPath string
	weightsPath string
	threshold   float64
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Predict a segmentation mask for an image",
	RunE: func(cmd *cobra.Command, args []string) error {
		vs := nn.NewVarStore(device())
		net, err := buildModel(vs, weightsPath)
		if err != nil {
			return err
		}

		img, err := imgutil.ReadImage(imagePath)
		if err != nil {
			return err
		}

		masks, err := predictImage(net, img, threshold)
		if err != nil {
			return err
		}

		for i, m := range masks {
			name := outPath
			if len(masks) > 1 {
				ext := filepath.Ext(outPath)
				name = fmt.Sprintf("%v_%d%v", strings.TrimSuffix(outPath, ext), i, ext)
			}
			if err := imgutil.Save(m, name); err != nil {
				return err
			}
			logger.Info("mask saved", "path", name)
		}

		if overlayPath != "" {
			overlay := imgutil.Overlay(img, masks[0], color.RGBA{R: 255, A: 255}, 96)
			if err := imgutil.Save(overlay, overlayPath); err != nil {
				return err
			}
			logger.Info("overlay saved", "path", overlayPath)
		}

		return nil
	},
}

// modelInput resizes img so that it fits the model and converts it to a tensor on device.
func modelInput(net *unet.UNet, img image.Image) (*ts.Tensor, error) {
	factor := 1 << uint(net.Config().Depth())
	b := img.Bounds()
	w, h := imgutil.FitSize(b.Dx(), b.Dy(), factor)

	x, err := imgutil.ToTensor(imgutil.Resize(img, w, h))
	if err != nil {
		return nil, err
	}

	return x.MustTo(device(), true), nil
}

// predictImage returns one binary mask per output map, at the original image size.
func predictImage(net *unet.UNet, img image.Image, threshold float64) ([]image.Image, error) {
	x, err := modelInput(net, img)
	if err != nil {
		return nil, err
	}
	defer x.MustDrop()

	mask, err := net.Predict(x, threshold)
	if err != nil {
		return nil, err
	}
	mask = mask.MustTo(gotch.CPU, true)
	defer mask.MustDrop()

	b := img.Bounds()
	maps := net.Config().Maps
	out := make([]image.Image, 0, maps)
	for i := int64(0); i < maps; i++ {
		m := mask.MustNarrow(1, i, 1, false)
		gray, err := imgutil.MaskToImage(m)
		m.MustDrop()
		if err != nil {
			return nil, err
		}
		out = append(out, imgutil.ResizeMask(gray, b.Dx(), b.Dy()))
	}

	return out, nil
}

func init() {
	predictCmd.Flags().StringVar(&imagePath, "image", "", "input image (png, jpeg, tiff)")
	predictCmd.Flags().StringVar(&outPath, "out", "mask.png", "output mask file")
	predictCmd.Flags().StringVar(&overlayPath, "overlay", "", "optional output file of the mask drawn over the image")
	predictCmd.Flags().StringVar(&weightsPath, "weights", "", "model weights file")
	predictCmd.Flags().Float64Var(&threshold, "threshold", 0.5, "probability threshold")
	_ = predictCmd.MarkFlagRequired("image")
	rootCmd.AddCommand(predictCmd)
}
