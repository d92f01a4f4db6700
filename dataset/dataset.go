package dataset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// ErrManifest is returned when a manifest file cannot be used.
var ErrManifest = errors.New("invalid manifest")

// Sample is an image and its ground-truth mask.
type Sample struct {
	Image string
	Mask  string
}

// ReadManifest reads a CSV file with `image` and `mask` columns.
// Relative paths are resolved against the manifest directory.
func ReadManifest(filename string) ([]Sample, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	df := dataframe.ReadCSV(f,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
	)
	if df.Err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifest, df.Err)
	}

	cols := make(map[string]bool)
	for _, n := range df.Names() {
		cols[n] = true
	}
	if !cols["image"] || !cols["mask"] {
		return nil, fmt.Errorf("%w: expected columns 'image' and 'mask', got %v", ErrManifest, df.Names())
	}

	dir := filepath.Dir(filename)
	images := df.Col("image").Records()
	masks := df.Col("mask").Records()
	samples := make([]Sample, len(images))
	for i := range images {
		samples[i] = Sample{
			Image: resolve(dir, images[i]),
			Mask:  resolve(dir, masks[i]),
		}
	}

	return samples, nil
}

func resolve(dir, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

// Score is the evaluation result of one sample.
type Score struct {
	Image string
	Dice  float64
	IoU   float64
}

// Mean returns the average Dice and IoU of scores.
func Mean(scores []Score) (dice, iou float64) {
	if len(scores) == 0 {
		return 0, 0
	}
	for _, s := range scores {
		dice += s.Dice
		iou += s.IoU
	}
	n := float64(len(scores))

	return dice / n, iou / n
}

// WriteReport writes scores as CSV with `image,dice,iou` columns.
func WriteReport(filename string, scores []Score) error {
	images := make([]string, len(scores))
	dices := make([]float64, len(scores))
	ious := make([]float64, len(scores))
	for i, s := range scores {
		images[i] = s.Image
		dices[i] = s.Dice
		ious[i] = s.IoU
	}

	df := dataframe.New(
		series.New(images, series.String, "image"),
		series.New(dices, series.Float, "dice"),
		series.New(ious, series.Float, "iou"),
	)
	if df.Err != nil {
		return df.Err
	}

	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := df.WriteCSV(f); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}

// PlotHistogram saves a histogram of values to filename (png, svg, pdf...).
func PlotHistogram(filename string, values []float64, title string, bins int) error {
	if len(values) == 0 {
		return errors.New("no values to plot")
	}

	p, err := plot.New()
	if err != nil {
		return err
	}
	p.Title.Text = title

	v := make(plotter.Values, len(values))
	copy(v, values)

	h, err := plotter.NewHist(v, bins)
	if err != nil {
		return err
	}
	p.Add(h)

	return p.Save(4*vg.Inch, 4*vg.Inch, filename)
}
