package unet

import (
	"fmt"

	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/unet/base"
	"github.com/sugarme/unet/encoder"
)

// Encoder is the contracting path of UNet: a stack of DownsampleBlocks.
type Encoder struct {
	Blocks []*DownsampleBlock
}

// ForwardAll implements encoder.Encoder for Encoder.
// It returns the skip connection of each block, shallowest first, followed
// by the pooled output of the last block.
func (e *Encoder) ForwardAll(x *ts.Tensor, train bool) []*ts.Tensor {
	features := make([]*ts.Tensor, 0, len(e.Blocks)+1)
	out := x
	for i, block := range e.Blocks {
		skip, down := block.ForwardDown(out, train)
		if i > 0 {
			out.MustDrop()
		}
		features = append(features, skip)
		out = down
	}

	return append(features, out)
}

// NewEncoder creates the encoder stack.
func NewEncoder(p *nn.Path, cfg Config) *Encoder {
	blocks := make([]*DownsampleBlock, len(cfg.Filters))
	cIn := cfg.InChannels
	for i, f := range cfg.Filters {
		blocks[i] = NewDownsampleBlock(p.Sub(fmt.Sprint(i)), cIn, f, cfg.NumConvs, cfg.BatchNorm)
		cIn = f
	}

	return &Encoder{Blocks: blocks}
}

// UNet is a UNET model struct
// Ref: https://arxiv.org/abs/1505.04597
type UNet struct {
	config  Config
	encoder encoder.Encoder
	bridge  *nn.SequentialT
	decoder []*UpsampleBlock
	segHead *base.SegmentationHead
}

// New creates a UNet from cfg with its variables under p.
//
// Variable layout:
//
//	down.<i>.convs.<j>.{weight,bias}
//	bridge.<j>.{weight,bias}
//	up.<i>.up.{weight,bias}
//	up.<i>.convs.<j>.{weight,bias}
//	logit.{weight,bias}
func New(p *nn.Path, cfg Config) (*UNet, error) {
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	enc := NewEncoder(p.Sub("down"), cfg)

	// Bridge is a pair of convolutions with twice the deepest filter count.
	last := cfg.Filters[len(cfg.Filters)-1]
	bridge := convStack(p.Sub("bridge"), last, cfg.BridgeFilters(), 2, cfg.BatchNorm)

	depth := cfg.Depth()
	decoder := make([]*UpsampleBlock, depth)
	cIn := cfg.BridgeFilters()
	for i := 0; i < depth; i++ {
		f := cfg.Filters[depth-1-i]
		block, err := NewUpsampleBlock(p.Sub("up").Sub(fmt.Sprint(i)), cIn, f, cfg.NumConvs, cfg)
		if err != nil {
			return nil, err
		}
		decoder[i] = block
		cIn = f
	}

	head := base.NewSegmentationHead(p.Sub("logit"), cfg.Filters[0], cfg.Maps, 1, base.Sigmoid())

	return &UNet{
		config:  cfg,
		encoder: enc,
		bridge:  bridge,
		decoder: decoder,
		segHead: head,
	}, nil
}

// DefaultUNet creates UNet with DefaultConfig values.
func DefaultUNet(p *nn.Path) *UNet {
	net, err := New(p, DefaultConfig())
	if err != nil {
		// DefaultConfig is always valid.
		panic(err)
	}

	return net
}

// Config returns the model configuration.
func (n *UNet) Config() Config {
	return n.config
}

// decode runs encoder, bridge and decoder and returns the last decoder output.
func (n *UNet) decode(x *ts.Tensor, train bool) *ts.Tensor {
	// E.g. filters [64 128 256 512], x [B 3 256 256]
	// features: [B 64 256 256] [B 128 128 128] [B 256 64 64] [B 512 32 32] + [B 512 16 16]
	features := n.encoder.ForwardAll(x, train)
	depth := len(n.decoder)

	out := n.bridge.ForwardT(features[depth], train) // [B 1024 16 16]
	for i, block := range n.decoder {
		connect := features[depth-1-i]
		next := block.ForwardSkip(connect, out, train)
		out.MustDrop()
		out = next
	}

	encoder.Drop(features)

	return out // [B 64 256 256]
}

// ForwardT implements ts.ModuleT for UNet struct.
// It returns per-pixel probabilities of shape [B maps H W].
func (n *UNet) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	out := n.decode(x, train)
	probs := n.segHead.ForwardT(out, train)
	out.MustDrop()

	return probs
}

// ForwardLogits is ForwardT without the final sigmoid.
func (n *UNet) ForwardLogits(x *ts.Tensor, train bool) *ts.Tensor {
	out := n.decode(x, train)
	logits := n.segHead.Logits(out, train)
	out.MustDrop()

	return logits
}

// Predict runs inference without gradient tracking and thresholds the
// probabilities into a binary float mask of shape [B maps H W].
func (n *UNet) Predict(x *ts.Tensor, threshold float64) (*ts.Tensor, error) {
	if err := n.config.CheckInput(x.MustSize()); err != nil {
		return nil, err
	}

	var mask *ts.Tensor
	ts.NoGrad(func() {
		probs := n.ForwardT(x, false)
		mask = probs.MustGt(ts.FloatScalar(threshold), true).MustTotype(gotch.Float, true)
	})

	return mask, nil
}
