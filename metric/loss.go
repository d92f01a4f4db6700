package metric

import (
	"github.com/sugarme/gotch"
	ts "github.com/sugarme/gotch/tensor"
)

// BCEWithLogitsLoss is binary cross entropy with logits, averaged over all elements.
func BCEWithLogitsLoss(logit, mask *ts.Tensor) *ts.Tensor {
	logitR := logit.MustReshape([]int64{-1}, false)
	maskR := mask.MustReshape([]int64{-1}, false).MustTotype(logit.DType(), true)

	// NOTE: reduction: none = 0; mean = 1; sum = 2. Default=mean
	// ref. https://pytorch.org/docs/master/nn.functional.html#torch.nn.functional.binary_cross_entropy_with_logits
	loss := logitR.MustBinaryCrossEntropyWithLogits(maskR, ts.NewTensor(), ts.NewTensor(), 1, true)
	maskR.MustDrop()

	return loss
}

// BCELoss is binary cross entropy on probabilities, averaged over all elements.
// Probabilities are clipped to [1e-6, 1] before taking the log.
func BCELoss(probability, mask *ts.Tensor) *ts.Tensor {
	p := probability.MustReshape([]int64{-1}, false)
	t := mask.MustReshape([]int64{-1}, false)

	// 1-p
	p1 := p.MustMul1(ts.FloatScalar(-1), false).MustAdd1(ts.FloatScalar(1), true)
	// 1-t
	t1 := t.MustMul1(ts.FloatScalar(-1), false).MustAdd1(ts.FloatScalar(1), true)

	logp := p.MustClip(ts.FloatScalar(1e-6), ts.FloatScalar(1), true).MustLog(true)
	logn := p1.MustClip(ts.FloatScalar(1e-6), ts.FloatScalar(1), true).MustLog(true)

	// t * logp
	tlogp := t.MustMul(logp, true)
	logp.MustDrop()
	// (1-t)*logn
	t1logn := t1.MustMul(logn, true)
	logn.MustDrop()

	loss := tlogp.MustAdd(t1logn, true)
	t1logn.MustDrop()

	return loss.MustMean(gotch.Double, true).MustMul1(ts.FloatScalar(-1), true)
}

// SoftDiceLoss is 1 - soft Dice coefficient computed per image over the
// last two dimensions and averaged.
//
// Ref. https://gist.github.com/jeremyjordan/9ea3032a32909f71dd2ab35fe3bacc08
func SoftDiceLoss(x, y *ts.Tensor) *ts.Tensor {
	dims := []int64{-2, -1}
	smooth := 1.0

	xyMul := x.MustMul(y, false)
	tp := xyMul.MustSum1(dims, false, gotch.Double, true)

	// x * (1-y)
	y1 := y.MustMul1(ts.FloatScalar(-1), false).MustAdd1(ts.FloatScalar(1), true)
	xy1Mul := y1.MustMul(x, true)
	fp := xy1Mul.MustSum1(dims, false, gotch.Double, true)

	// (1-x) * y
	x1 := x.MustMul1(ts.FloatScalar(-1), false).MustAdd1(ts.FloatScalar(1), true)
	x1yMul := x1.MustMul(y, true)
	fn := x1yMul.MustSum1(dims, false, gotch.Double, true)

	numerator := tp.MustMul1(ts.FloatScalar(2.0), false).MustAdd1(ts.FloatScalar(smooth), true)
	denominator := numerator.MustAdd(fp, false).MustAdd(fn, true)

	dc := numerator.MustDiv(denominator, true)

	tp.MustDrop()
	fp.MustDrop()
	fn.MustDrop()
	denominator.MustDrop()

	mean := dc.MustMean(gotch.Double, true)

	return mean.MustMul1(ts.FloatScalar(-1), true).MustAdd1(ts.FloatScalar(1), true)
}

// DiceBCELoss combines weighted BCE and soft Dice losses on probabilities.
// Ref. https://www.kaggle.com/finlay/pytorch-fcn-resnet50-in-20-minute
func DiceBCELoss(probability, mask *ts.Tensor) *ts.Tensor {
	bce := BCELoss(probability, mask).MustMul1(ts.FloatScalar(0.8), true)
	dice := SoftDiceLoss(probability, mask).MustMul1(ts.FloatScalar(0.2), true)

	loss := bce.MustAdd(dice, true)
	dice.MustDrop()

	return loss
}
