package unet

import (
	"fmt"

	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/unet/base"
)

// convStack creates numConvs 3x3 `same` convolutions with ReLU activation.
// The first one maps cIn to cOut channels, the rest keep cOut.
func convStack(p *nn.Path, cIn, cOut int64, numConvs int, batchNorm bool) *nn.SequentialT {
	seq := nn.SeqT()
	c := cIn
	for i := 0; i < numConvs; i++ {
		path := p.Sub(fmt.Sprint(i))
		if batchNorm {
			seq.Add(base.Conv2dRelu(path, c, cOut, 3, 1, 1))
		} else {
			seq.Add(base.ConvRelu(path, c, cOut, 3, 1, 1))
		}
		c = cOut
	}

	return seq
}

// DownsampleBlock is an encoder stage: sequential convolutions followed by
// a 2x2 max pooling with stride 2.
type DownsampleBlock struct {
	Convs *nn.SequentialT
	Pool  nn.Func
}

// NewDownsampleBlock creates a DownsampleBlock.
func NewDownsampleBlock(p *nn.Path, cIn, filters int64, numConvs int, batchNorm bool) *DownsampleBlock {
	return &DownsampleBlock{
		Convs: convStack(p.Sub("convs"), cIn, filters, numConvs, batchNorm),
		Pool:  base.MaxPool2d(2, 2),
	}
}

// ForwardDown forwards x through the block and returns both the pre-pooled
// feature map (skip connection) and the pooled output (next stage input).
//
// x: [B C H W] => skip [B F H W], down [B F H/2 W/2]
func (b *DownsampleBlock) ForwardDown(x *ts.Tensor, train bool) (skip, down *ts.Tensor) {
	skip = b.Convs.ForwardT(x, train)
	down = b.Pool.ForwardT(skip, train)

	return skip, down
}

// ForwardT implements ts.ModuleT for DownsampleBlock. It returns the pooled output only.
func (b *DownsampleBlock) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	skip, down := b.ForwardDown(x, train)
	skip.MustDrop()

	return down
}

// upsampler doubles spatial resolution of x to match ref.
type upsampler interface {
	upsample(x, ref *ts.Tensor) *ts.Tensor
}

// transposeUp is a learned 2x2 stride-2 transposed convolution.
type transposeUp struct {
	conv *nn.ConvTranspose2D
}

func (u *transposeUp) upsample(x, ref *ts.Tensor) *ts.Tensor {
	return u.conv.Forward(x)
}

// bilinearUp resizes to ref with bilinear interpolation, then projects
// channels with a 1x1 convolution.
type bilinearUp struct {
	proj *nn.Conv2D
}

func (u *bilinearUp) upsample(x, ref *ts.Tensor) *ts.Tensor {
	xUp := base.Upsample(x, ref)
	out := u.proj.Forward(xUp)
	xUp.MustDrop()

	return out
}

// UpsampleBlock is a decoder stage: upsampling, concatenation with the skip
// connection, then sequential convolutions.
type UpsampleBlock struct {
	Up    upsampler
	Attn1 *base.Attention
	Convs *nn.SequentialT
	Attn2 *base.Attention
}

// NewUpsampleBlock creates an UpsampleBlock taking cIn channels from the
// stage below and a skip connection of `filters` channels.
func NewUpsampleBlock(p *nn.Path, cIn, filters int64, numConvs int, cfg Config) (*UpsampleBlock, error) {
	var up upsampler
	switch cfg.Upsampling {
	case UpsampleBilinear:
		up = &bilinearUp{proj: base.Conv2dGlorot(p.Sub("up"), cIn, filters, 1, 0, 1)}
	default:
		up = &transposeUp{conv: base.ConvTranspose2d(p.Sub("up"), cIn, filters, 2, 2)}
	}

	// skip (filters) + upsampled (filters)
	cCat := filters * 2
	var m1, m2 ts.ModuleT
	if cfg.Attention == AttentionSCSE {
		m1 = base.NewSCSE(p.Sub("attn1"), cCat)
		m2 = base.NewSCSE(p.Sub("attn2"), filters)
	}
	attn1, err := base.NewAttention(m1)
	if err != nil {
		return nil, err
	}
	attn2, err := base.NewAttention(m2)
	if err != nil {
		return nil, err
	}

	return &UpsampleBlock{
		Up:    up,
		Attn1: attn1,
		Convs: convStack(p.Sub("convs"), cCat, filters, numConvs, cfg.BatchNorm),
		Attn2: attn2,
	}, nil
}

// ForwardSkip upsamples x, concatenates it after the skip connection along
// the channel axis and forwards through the convolutions.
//
// connect: [B F 2H 2W], x: [B C H W] => [B F 2H 2W]
func (b *UpsampleBlock) ForwardSkip(connect, x *ts.Tensor, train bool) *ts.Tensor {
	xUp := b.Up.upsample(x, connect)
	cat := ts.MustCat([]ts.Tensor{*connect, *xUp}, 1)
	xUp.MustDrop()

	// Identity attention detaches, so it is skipped to keep the graph intact.
	if !b.Attn1.IsIdentity() {
		attn1 := b.Attn1.ForwardT(cat, train)
		cat.MustDrop()
		cat = attn1
	}
	conv := b.Convs.ForwardT(cat, train)
	cat.MustDrop()
	if b.Attn2.IsIdentity() {
		return conv
	}
	res := b.Attn2.ForwardT(conv, train)
	conv.MustDrop()

	return res
}
