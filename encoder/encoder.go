package encoder

import (
	ts "github.com/sugarme/gotch/tensor"
)

// Encoder is encoder interface for a image segmentation model.
//
// ForwardAll returns the feature maps of every stage, shallowest first.
// The last element is the deepest output that feeds the model bottleneck;
// the preceding ones are the skip connections consumed by the decoder.
type Encoder interface {
	ForwardAll(x *ts.Tensor, train bool) []*ts.Tensor
}

// Drop frees all feature tensors returned by ForwardAll.
func Drop(features []*ts.Tensor) {
	for _, f := range features {
		f.MustDrop()
	}
}
