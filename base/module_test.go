package base_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/unet/base"
)

func TestSCSE(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	m := base.NewSCSE(vs.Root(), 8)

	x := ts.MustRand([]int64{2, 8, 6, 6}, gotch.Float, gotch.CPU)
	defer x.MustDrop()

	out := m.ForwardT(x, false)
	defer out.MustDrop()
	assert.Equal(t, x.MustSize(), out.MustSize())

	// Both gates are sigmoids, so the output is bounded by 2x.
	xs := x.Float64Values()
	for i, v := range out.Float64Values() {
		require.True(t, v >= 0 && v <= 2*xs[i]+1e-6)
	}
}

func TestAttention(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)

	tests := []struct {
		name     string
		module   []ts.ModuleT
		identity bool
	}{
		{"none", nil, true},
		{"nil", []ts.ModuleT{nil}, true},
		{"identity", []ts.ModuleT{&base.Identity{}}, true},
		{"scse", []ts.ModuleT{base.NewSCSE(vs.Root(), 16)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attn, err := base.NewAttention(tt.module...)
			require.NoError(t, err)
			assert.Equal(t, tt.identity, attn.IsIdentity())
		})
	}
}

func TestAttentionUnsupported(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	seq := nn.SeqT()
	seq.Add(base.Conv2d(vs.Root().Sub("c"), 4, 4, 1, 0, 1))

	attn, err := base.NewAttention(seq)
	assert.ErrorIs(t, err, base.ErrUnsupportedAttention)
	assert.Nil(t, attn)
}

func TestConvRelu(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	conv := base.ConvRelu(vs.Root().Sub("c"), 3, 5, 3, 1, 1)

	x := ts.MustRand([]int64{1, 3, 7, 9}, gotch.Float, gotch.CPU)
	defer x.MustDrop()

	out := conv.ForwardT(x, false)
	defer out.MustDrop()
	assert.Equal(t, []int64{1, 5, 7, 9}, out.MustSize())

	_, ok := vs.Variables()["c.weight"]
	assert.True(t, ok)
}

func TestConvTranspose2d(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	up := base.ConvTranspose2d(vs.Root(), 8, 4, 2, 2)

	x := ts.MustRand([]int64{1, 8, 5, 3}, gotch.Float, gotch.CPU)
	defer x.MustDrop()

	out := up.Forward(x)
	defer out.MustDrop()
	assert.Equal(t, []int64{1, 4, 10, 6}, out.MustSize())
}

func TestMaxPool2d(t *testing.T) {
	x := ts.MustOfSlice([]float32{
		1, 2, 3, 4,
		5, 6, 7, 8,
		9, 1, 2, 3,
		4, 5, 6, 0,
	}).MustView([]int64{1, 1, 4, 4}, true)
	defer x.MustDrop()

	out := base.MaxPool2d(2, 2).ForwardT(x, false)
	defer out.MustDrop()

	assert.Equal(t, []int64{1, 1, 2, 2}, out.MustSize())
	assert.Equal(t, []float64{6, 8, 9, 6}, out.Float64Values())
}

func TestUpsample(t *testing.T) {
	x := ts.MustRand([]int64{1, 2, 3, 3}, gotch.Float, gotch.CPU)
	defer x.MustDrop()
	ref := ts.MustRand([]int64{1, 1, 6, 5}, gotch.Float, gotch.CPU)
	defer ref.MustDrop()

	out := base.Upsample(x, ref)
	defer out.MustDrop()
	assert.Equal(t, []int64{1, 2, 6, 5}, out.MustSize())
}

func TestUpsampleSameSize(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	conv := base.Conv2d(vs.Root(), 2, 2, 1, 0, 1)

	x := ts.MustRand([]int64{1, 2, 4, 4}, gotch.Float, gotch.CPU)
	defer x.MustDrop()
	feat := conv.Forward(x)
	defer feat.MustDrop()
	require.True(t, feat.MustRequiresGrad())

	out := base.Upsample(feat, feat)
	defer out.MustDrop()

	// gradients still flow back to conv.
	assert.True(t, out.MustRequiresGrad())
	assert.Equal(t, feat.MustSize(), out.MustSize())
	assert.InDeltaSlice(t, feat.Float64Values(), out.Float64Values(), 1e-6)
}

func TestHeNormalApprox(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	conv := base.Conv2dHe(vs.Root(), 64, 64, 3, 1, 1)

	vals := conv.Ws.Float64Values()
	var sum, sq float64
	for _, v := range vals {
		sum += v
		sq += v * v
	}
	n := float64(len(vals))
	mean := sum / n
	std := math.Sqrt(sq/n - mean*mean)

	assert.InDelta(t, 0.0, mean, 0.01)
	assert.InDelta(t, math.Sqrt(2.0/(64*9)), std, 0.005)
}

func TestSegmentationHead(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	head := base.NewSegmentationHead(vs.Root(), 4, 2, 1, base.Sigmoid())

	x := ts.MustRand([]int64{1, 4, 3, 3}, gotch.Float, gotch.CPU)
	defer x.MustDrop()

	probs := head.ForwardT(x, false)
	defer probs.MustDrop()
	assert.Equal(t, []int64{1, 2, 3, 3}, probs.MustSize())
	for _, v := range probs.Float64Values() {
		require.True(t, v > 0 && v < 1)
	}

	plain := base.NewSegmentationHead(vs.Root().Sub("plain"), 4, 2, 3)
	logits := plain.ForwardT(x, false)
	defer logits.MustDrop()
	assert.Equal(t, []int64{1, 2, 3, 3}, logits.MustSize())
}
