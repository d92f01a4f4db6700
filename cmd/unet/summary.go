package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/unet/unet"
)

var (
	checkForward bool
	checkSize    int64
	checkBatch   int64
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print model variables and parameter count",
	RunE: func(cmd *cobra.Command, args []string) error {
		vs := nn.NewVarStore(device())
		net, err := buildModel(vs, "")
		if err != nil {
			return err
		}

		if err := unet.WriteSummary(os.Stdout, vs); err != nil {
			return err
		}
		if !checkForward {
			return nil
		}

		return runCheck(net)
	},
}

// runCheck forwards a random batch through the model and reports the output shape.
func runCheck(net *unet.UNet) error {
	cfg := net.Config()
	shape := []int64{checkBatch, cfg.InChannels, checkSize, checkSize}
	if err := cfg.CheckInput(shape); err != nil {
		return err
	}

	image := ts.MustRand(shape, gotch.Float, device())
	defer image.MustDrop()

	start := time.Now()
	ts.NoGrad(func() {
		out := net.ForwardT(image, false)
		fmt.Printf("input: %v\toutput: %v\n", image.MustSize(), out.MustSize())
		out.MustDrop()
	})
	logger.Info("forward pass done", "elapsed", time.Since(start))

	return nil
}

func init() {
	summaryCmd.Flags().BoolVar(&checkForward, "check", false, "run a forward pass on a random input")
	summaryCmd.Flags().Int64Var(&checkSize, "size", 256, "height and width of the random input")
	summaryCmd.Flags().Int64Var(&checkBatch, "batch", 1, "batch size of the random input")
	rootCmd.AddCommand(summaryCmd)
}
