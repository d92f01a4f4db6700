package base

import (
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"
)

// SegmentationHead is a per-pixel classifier: a convolution to the number of
// output maps followed by an optional activation.
type SegmentationHead struct {
	Conv       *nn.Conv2D
	Activation nn.Func
	hasAct     bool
}

// ForwardT implements ts.ModuleT for SegmentationHead. The activation is applied.
func (h *SegmentationHead) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	logit := h.Conv.ForwardT(x, train)
	if !h.hasAct {
		return logit
	}
	out := h.Activation.ForwardT(logit, train)
	logit.MustDrop()

	return out
}

// Logits forwards through the convolution only.
func (h *SegmentationHead) Logits(x *ts.Tensor, train bool) *ts.Tensor {
	return h.Conv.ForwardT(x, train)
}

// Sigmoid is an element-wise sigmoid activation.
func Sigmoid() nn.Func {
	return nn.NewFunc(func(xs *ts.Tensor) *ts.Tensor {
		return xs.MustSigmoid(false)
	})
}

// NewSegmentationHead creates new SegmentationHead with `same` padding.
// actOpt is an optional activation applied after the convolution.
func NewSegmentationHead(p *nn.Path, cIn, cOut, ksize int64, actOpt ...nn.Func) *SegmentationHead {
	head := &SegmentationHead{
		Conv: Conv2dGlorot(p, cIn, cOut, ksize, ksize/2, 1),
	}
	if len(actOpt) > 0 {
		head.Activation = actOpt[0]
		head.hasAct = true
	}

	return head
}
