package dataset_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sugarme/unet/dataset"
)

func TestReadManifest(t *testing.T) {
	dir := t.TempDir()
	manifest := filepath.Join(dir, "valid.csv")
	content := "image,mask\nimage/001.png,mask/001.png\n/data/002.tif,/data/002_mask.png\n"
	require.NoError(t, os.WriteFile(manifest, []byte(content), 0o644))

	samples, err := dataset.ReadManifest(manifest)
	require.NoError(t, err)
	require.Len(t, samples, 2)

	assert.Equal(t, filepath.Join(dir, "image/001.png"), samples[0].Image)
	assert.Equal(t, filepath.Join(dir, "mask/001.png"), samples[0].Mask)
	assert.Equal(t, "/data/002.tif", samples[1].Image)
}

func TestReadManifestMissingColumn(t *testing.T) {
	manifest := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(manifest, []byte("file,label\na.png,b.png\n"), 0o644))

	_, err := dataset.ReadManifest(manifest)
	assert.ErrorIs(t, err, dataset.ErrManifest)

	_, err = dataset.ReadManifest(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

func TestWriteReport(t *testing.T) {
	scores := []dataset.Score{
		{Image: "a.png", Dice: 0.5, IoU: 0.25},
		{Image: "b.png", Dice: 1, IoU: 1},
	}

	dice, iou := dataset.Mean(scores)
	assert.InDelta(t, 0.75, dice, 1e-9)
	assert.InDelta(t, 0.625, iou, 1e-9)

	report := filepath.Join(t.TempDir(), "report.csv")
	require.NoError(t, dataset.WriteReport(report, scores))

	data, err := os.ReadFile(report)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "image,dice,iou", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "a.png,0.5"))
}

func TestPlotHistogram(t *testing.T) {
	out := filepath.Join(t.TempDir(), "dice.png")
	require.NoError(t, dataset.PlotHistogram(out, []float64{0.1, 0.5, 0.7, 0.9, 0.95}, "Dice", 5))

	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.True(t, info.Size() > 0)

	assert.Error(t, dataset.PlotHistogram(out, nil, "Dice", 5))
}

func TestMeanEmpty(t *testing.T) {
	dice, iou := dataset.Mean(nil)
	assert.Zero(t, dice)
	assert.Zero(t, iou)
}
