package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"

	"github.com/sugarme/unet/unet"
)

// flag variables
var (
	cuda       bool
	logLevel   string
	configPath string
)

var logger = slog.New(slog.NewTextHandler(os.Stderr, nil))

var rootCmd = &cobra.Command{
	Use:   "unet",
	Short: "U-Net image segmentation",
	Long:  `unet builds a U-Net segmentation model, predicts masks for images and evaluates predictions against ground-truth masks.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var level slog.Level
		if err := level.UnmarshalText([]byte(logLevel)); err != nil {
			return fmt.Errorf("invalid log level %q: %w", logLevel, err)
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		return nil
	},
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&cuda, "cuda", false, "use CUDA if available")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML model config (default: 4-stage RGB UNet with one output map)")
}

func device() gotch.Device {
	if cuda {
		return gotch.NewCuda().CudaIfAvailable()
	}
	return gotch.CPU
}

// buildModel creates the model from --config, optionally loading weights.
func buildModel(vs *nn.VarStore, weights string) (*unet.UNet, error) {
	cfg := unet.DefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = unet.LoadConfig(configPath); err != nil {
			return nil, err
		}
	}

	net, err := unet.New(vs.Root(), cfg)
	if err != nil {
		return nil, err
	}
	logger.Debug("model built", "filters", cfg.Filters, "maps", cfg.Maps, "attention", cfg.Attention, "upsampling", cfg.Upsampling)

	if weights == "" {
		logger.Warn("no weights given, using randomly initialized model")
		return net, nil
	}
	if err := vs.Load(weights); err != nil {
		return nil, fmt.Errorf("load weights %q: %w", weights, err)
	}
	logger.Info("weights loaded", "path", weights)

	return net, nil
}
