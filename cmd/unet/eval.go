package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/unet/dataset"
	"github.com/sugarme/unet/imgutil"
	"github.com/sugarme/unet/metric"
	"github.com/sugarme/unet/unet"
)

var (
	manifestPath  string
	reportPath    string
	histogramPath string
)

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Evaluate predicted masks against ground truth listed in a CSV manifest",
	RunE: func(cmd *cobra.Command, args []string) error {
		samples, err := dataset.ReadManifest(manifestPath)
		if err != nil {
			return err
		}

		vs := nn.NewVarStore(device())
		net, err := buildModel(vs, weightsPath)
		if err != nil {
			return err
		}

		scores := make([]dataset.Score, 0, len(samples))
		for _, s := range samples {
			score, err := evalSample(net, s, threshold)
			if err != nil {
				return fmt.Errorf("%v: %w", s.Image, err)
			}
			scores = append(scores, score)
		}

		dice, iou := dataset.Mean(scores)
		fmt.Printf("samples: %d\tdice: %6.4f\tiou: %6.4f\n", len(scores), dice, iou)

		if reportPath != "" {
			if err := dataset.WriteReport(reportPath, scores); err != nil {
				return err
			}
			logger.Info("report saved", "path", reportPath)
		}
		if histogramPath != "" {
			values := make([]float64, len(scores))
			for i, s := range scores {
				values[i] = s.Dice
			}
			if err := dataset.PlotHistogram(histogramPath, values, "Dice", 10); err != nil {
				return err
			}
			logger.Info("histogram saved", "path", histogramPath)
		}

		return nil
	},
}

// evalSample scores the first output map of the model against the sample mask.
func evalSample(net *unet.UNet, s dataset.Sample, threshold float64) (dataset.Score, error) {
	img, err := imgutil.ReadImage(s.Image)
	if err != nil {
		return dataset.Score{}, err
	}
	maskImg, err := imgutil.ReadImage(s.Mask)
	if err != nil {
		return dataset.Score{}, err
	}

	x, err := modelInput(net, img)
	if err != nil {
		return dataset.Score{}, err
	}
	defer x.MustDrop()
	size := x.MustSize()
	h, w := int(size[2]), int(size[3])

	target, err := imgutil.MaskTensor(imgutil.ResizeMask(maskImg, w, h))
	if err != nil {
		return dataset.Score{}, err
	}
	defer target.MustDrop()

	var probs *ts.Tensor
	ts.NoGrad(func() {
		out := net.ForwardT(x, false)
		probs = out.MustNarrow(1, 0, 1, true).MustTo(gotch.CPU, true)
	})
	defer probs.MustDrop()

	pred := probs.MustGt(ts.FloatScalar(threshold), false).MustTotype(gotch.Float, true)
	defer pred.MustDrop()

	loss := metric.BCELoss(probs, target)
	logger.Debug("sample evaluated", "image", s.Image, "bce", loss.Float64Values()[0])
	loss.MustDrop()

	return dataset.Score{
		Image: s.Image,
		Dice:  metric.DiceCoeff(pred, target),
		IoU:   metric.IoU(pred, target),
	}, nil
}

func init() {
	evalCmd.Flags().StringVar(&manifestPath, "manifest", "", "CSV file with 'image' and 'mask' columns")
	evalCmd.Flags().StringVar(&weightsPath, "weights", "", "model weights file")
	evalCmd.Flags().Float64Var(&threshold, "threshold", 0.5, "probability threshold")
	evalCmd.Flags().StringVar(&reportPath, "report", "", "optional CSV report of per-sample scores")
	evalCmd.Flags().StringVar(&histogramPath, "histogram", "", "optional Dice histogram image")
	_ = evalCmd.MarkFlagRequired("manifest")
	rootCmd.AddCommand(evalCmd)
}
