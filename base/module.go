package base

import (
	"errors"
	"fmt"

	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"
)

// ErrUnsupportedAttention is returned by NewAttention for modules other than
// *SCSE and *Identity.
var ErrUnsupportedAttention = errors.New("unsupported attention module")

// Identity is a ts.ModuleT placeholder.
// It forwards the input tensor as such, detached from the graph.
type Identity struct{}

// ForwardT implement ts.ModuleT for Identity struct.
func (i *Identity) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	return x.MustDetach(false)
}

// SCSE is concurrent spatial and channel squeeze and excitement module.
// Ref. https://arxiv.org/abs/1808.08127
type SCSE struct {
	cSE *nn.SequentialT
	sSE *nn.SequentialT
}

// ForwardT implement ts.ModuleT for SCSE struct.
func (m *SCSE) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	cse := m.cSE.ForwardT(x, train)
	sse := m.sSE.ForwardT(x, train)
	cmul := x.MustMul(cse, false)
	smul := x.MustMul(sse, false)
	res := cmul.MustAdd(smul, false)

	cse.MustDrop()
	sse.MustDrop()
	cmul.MustDrop()
	smul.MustDrop()

	return res
}

// NewSCSE creates new SCSE.
func NewSCSE(p *nn.Path, cIn int64, reductionOpt ...int64) *SCSE {
	var reduction int64 = 16
	if len(reductionOpt) > 0 {
		reduction = reductionOpt[0]
	}
	// narrow stages would otherwise squeeze to zero channels.
	cMid := cIn / reduction
	if cMid < 1 {
		cMid = 1
	}

	// Channel squeeze excite
	chanSeq := nn.SeqT()
	chanSeq.AddFn(nn.NewFunc(func(xs *ts.Tensor) *ts.Tensor {
		return xs.MustAdaptiveAvgPool2d([]int64{1, 1}, false)
	}))
	chanSeq.Add(Conv2d(p.Sub("sqzconv1"), cIn, cMid, 1, 0, 1))
	chanSeq.AddFn(nn.NewFunc(func(xs *ts.Tensor) *ts.Tensor {
		return xs.MustRelu(false)
	}))
	chanSeq.Add(Conv2d(p.Sub("sqzconv2"), cMid, cIn, 1, 0, 1))
	chanSeq.AddFn(nn.NewFunc(func(xs *ts.Tensor) *ts.Tensor {
		return xs.MustSigmoid(false)
	}))

	// Spatial squeeze excite
	spatSeq := nn.SeqT()
	spatSeq.Add(Conv2d(p.Sub("spatconv"), cIn, 1, 1, 0, 1))
	spatSeq.AddFn(nn.NewFunc(func(xs *ts.Tensor) *ts.Tensor {
		return xs.MustSigmoid(false)
	}))

	return &SCSE{
		cSE: chanSeq,
		sSE: spatSeq,
	}
}

// Attention wraps an optional attention module. Without one it acts as Identity.
type Attention struct {
	attn ts.ModuleT
}

func (a *Attention) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	return a.attn.ForwardT(x, train)
}

// IsIdentity reports whether the attention is a pass-through.
func (a *Attention) IsIdentity() bool {
	_, ok := a.attn.(*Identity)
	return ok
}

// NewAttention creates a new Attention. Without a module (or with nil) it is
// an Identity. Accepted modules are *SCSE and *Identity.
func NewAttention(moduleOpt ...ts.ModuleT) (*Attention, error) {
	if len(moduleOpt) == 0 || moduleOpt[0] == nil {
		return &Attention{&Identity{}}, nil
	}

	switch m := moduleOpt[0].(type) {
	case *SCSE:
		if m == nil {
			return &Attention{&Identity{}}, nil
		}
		return &Attention{m}, nil
	case *Identity:
		return &Attention{&Identity{}}, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedAttention, m)
	}
}

// Conv2d creates Conv2D module.
func Conv2d(p *nn.Path, cIn, cOut, ksize, padding, stride int64) *nn.Conv2D {
	config := nn.DefaultConv2DConfig()
	config.Stride = []int64{stride, stride}
	config.Padding = []int64{padding, padding}

	return nn.NewConv2D(p, cIn, cOut, ksize, config)
}

// Conv2dNoBias creates Conv2D with no bias.
func Conv2dNoBias(p *nn.Path, cIn, cOut, ksize, padding, stride int64) *nn.Conv2D {
	config := nn.DefaultConv2DConfig()
	config.Bias = false
	config.Stride = []int64{stride, stride}
	config.Padding = []int64{padding, padding}

	return nn.NewConv2D(p, cIn, cOut, ksize, config)
}

// Conv2dHe creates a Conv2D with bias and He-normal weight initialization.
func Conv2dHe(p *nn.Path, cIn, cOut, ksize, padding, stride int64) *nn.Conv2D {
	config := nn.DefaultConv2DConfig()
	config.Stride = []int64{stride, stride}
	config.Padding = []int64{padding, padding}
	config.WsInit = HeNormalApprox(cIn * ksize * ksize)
	config.BsInit = nn.NewConstInit(0.0)

	return nn.NewConv2D(p, cIn, cOut, ksize, config)
}

// Conv2dGlorot creates a Conv2D with bias and Glorot-uniform weight initialization.
func Conv2dGlorot(p *nn.Path, cIn, cOut, ksize, padding, stride int64) *nn.Conv2D {
	config := nn.DefaultConv2DConfig()
	config.Stride = []int64{stride, stride}
	config.Padding = []int64{padding, padding}
	config.WsInit = GlorotUniform(cIn*ksize*ksize, cOut*ksize*ksize)
	config.BsInit = nn.NewConstInit(0.0)

	return nn.NewConv2D(p, cIn, cOut, ksize, config)
}

// Conv2dRelu creates a SequentialT composing of Conv2D No bias and a ReLU activation.
func Conv2dRelu(p *nn.Path, cIn, cOut, ksize, padding, stride int64) *nn.SequentialT {
	bnConfig := nn.DefaultBatchNormConfig()
	bnConfig.Eps = 0.001
	seq := nn.SeqT()
	seq.Add(Conv2dNoBias(p.Sub("conv"), cIn, cOut, ksize, padding, stride))
	seq.Add(nn.BatchNorm2D(p.Sub("bn"), cOut, bnConfig))
	seq.AddFn(nn.NewFunc(func(xs *ts.Tensor) *ts.Tensor {
		return xs.MustRelu(false)
	}))

	return seq
}

// ConvRelu creates a SequentialT of a He-initialized Conv2D with bias followed by ReLU.
// Weights live directly under p so the variable names are `<p>.weight` and `<p>.bias`.
func ConvRelu(p *nn.Path, cIn, cOut, ksize, padding, stride int64) *nn.SequentialT {
	seq := nn.SeqT()
	seq.Add(Conv2dHe(p, cIn, cOut, ksize, padding, stride))
	seq.AddFn(nn.NewFunc(func(xs *ts.Tensor) *ts.Tensor {
		return xs.MustRelu(false)
	}))

	return seq
}

// ConvTranspose2d creates a transposed convolution with square kernel and stride,
// Glorot-uniform weights and zero bias. With ksize == stride it exactly
// multiplies the spatial size by stride.
func ConvTranspose2d(p *nn.Path, cIn, cOut, ksize, stride int64) *nn.ConvTranspose2D {
	config := nn.DefaultConvTranspose2DConfig()
	config.Stride = []int64{stride, stride}
	config.Padding = []int64{0, 0}
	config.WsInit = GlorotUniform(cOut*ksize*ksize, cIn*ksize*ksize)
	config.BsInit = nn.NewConstInit(0.0)

	return nn.NewConvTranspose2D(p, cIn, cOut, []int64{ksize, ksize}, config)
}

// MaxPool2d creates a max pooling func with square kernel, given stride and no padding.
func MaxPool2d(ksize, stride int64) nn.Func {
	return nn.NewFunc(func(xs *ts.Tensor) *ts.Tensor {
		// ceil=false: odd trailing rows/columns are dropped.
		return xs.MustMaxPool2d([]int64{ksize, ksize}, []int64{stride, stride}, []int64{0, 0}, []int64{1, 1}, false, false)
	})
}

// Upsample resizes x to the spatial size of ref using `bilinear` interpolation.
// x, ref should be in shape: [BatchSize CHW]
// The result always stays in x's autograd graph; with equal sizes the values
// are unchanged (align_corners=false maps each pixel onto itself).
func Upsample(x, ref *ts.Tensor) *ts.Tensor {
	refSize := ref.MustSize()

	return x.MustUpsampleBilinear2d(refSize[2:], false, nil, nil, false)
}
