package metric

import (
	"math"

	"github.com/sugarme/gotch"
	ts "github.com/sugarme/gotch/tensor"
)

// smooth keeps scores defined when both prediction and target are empty.
const smooth = 1e-6

// binarize flattens x and thresholds it at 0.5 into a Double tensor of 0/1.
func binarize(x *ts.Tensor) *ts.Tensor {
	flat := x.MustReshape([]int64{-1}, false)
	return flat.MustGt(ts.FloatScalar(0.5), true).MustTotype(gotch.Double, true)
}

// binarizeBatch reshapes x to [B, -1] and thresholds it at 0.5.
func binarizeBatch(x *ts.Tensor) *ts.Tensor {
	bsize := x.MustSize()[0]
	flat := x.MustReshape([]int64{bsize, -1}, false)
	return flat.MustGt(ts.FloatScalar(0.5), true).MustTotype(gotch.Double, true)
}

func scalar(x *ts.Tensor) float64 {
	v := x.Float64Values()[0]
	x.MustDrop()
	return v
}

// overlap returns intersection and the sum of positives of pred and target.
func overlap(pred, target *ts.Tensor) (inter, psum, tsum float64) {
	p := binarize(pred)
	t := binarize(target)
	pt := p.MustMul(t, false)

	inter = scalar(pt.MustSum(gotch.Double, true))
	psum = scalar(p.MustSum(gotch.Double, true))
	tsum = scalar(t.MustSum(gotch.Double, true))

	return inter, psum, tsum
}

// DiceCoeff calculates Dice coefficient (F1 score) between binary
// prediction and target. Values are thresholded at 0.5.
//
// Ref. https://en.wikipedia.org/wiki/S%C3%B8rensen%E2%80%93Dice_coefficient
func DiceCoeff(pred, target *ts.Tensor) float64 {
	inter, psum, tsum := overlap(pred, target)
	return (2*inter + smooth) / (psum + tsum + smooth)
}

// IoU calculates intersection over union between binary prediction and target.
func IoU(pred, target *ts.Tensor) float64 {
	inter, psum, tsum := overlap(pred, target)
	return (inter + smooth) / (psum + tsum - inter + smooth)
}

// DiceCoeffBatch calculates mean Dice coefficient over a batch.
// prob and mask share the batch dimension; [B 1 H W] and [B H W] are both accepted.
func DiceCoeffBatch(prob, mask *ts.Tensor) float64 {
	p := binarizeBatch(prob)
	t := binarizeBatch(mask)
	dims := []int64{1}

	pt := p.MustMul(t, false)
	inter := pt.MustSum1(dims, false, gotch.Double, true)
	psum := p.MustSum1(dims, false, gotch.Double, true)
	tsum := t.MustSum1(dims, false, gotch.Double, true)

	// (2*inter + smooth) / (psum + tsum + smooth)
	num := inter.MustMul1(ts.FloatScalar(2), true).MustAdd1(ts.FloatScalar(smooth), true)
	den := psum.MustAdd(tsum, true).MustAdd1(ts.FloatScalar(smooth), true)
	tsum.MustDrop()
	dice := num.MustDiv(den, true)
	den.MustDrop()

	return scalar(dice.MustMean(gotch.Double, true))
}

// JaccardIndex calculates mean IoU over nclasses for class-index
// prediction and target (values in [0, nclasses)). Classes absent from
// both prediction and target are skipped.
func JaccardIndex(pred, target *ts.Tensor, nclasses int64) float64 {
	pvals := pred.Float64Values()
	tvals := target.Float64Values()

	inter := make([]float64, nclasses)
	union := make([]float64, nclasses)
	for i := range pvals {
		pc := int64(math.Round(pvals[i]))
		tc := int64(math.Round(tvals[i]))
		if pc == tc {
			if pc >= 0 && pc < nclasses {
				inter[pc]++
				union[pc]++
			}
			continue
		}
		if pc >= 0 && pc < nclasses {
			union[pc]++
		}
		if tc >= 0 && tc < nclasses {
			union[tc]++
		}
	}

	var sum float64
	var n int
	for c := int64(0); c < nclasses; c++ {
		if union[c] == 0 {
			continue
		}
		sum += inter[c] / union[c]
		n++
	}
	if n == 0 {
		return 1
	}

	return sum / float64(n)
}

// Accuracy calculates true positive rate (sensitivity) and true negative
// rate (specificity). Values are thresholded at 0.5.
func Accuracy(input, target *ts.Tensor) (tp, tn float64) {
	p := binarize(input)
	t := binarize(target)

	pt := p.MustMul(t, false)
	overlap := scalar(pt.MustSum(gotch.Double, true))
	tSum := scalar(t.MustSum(gotch.Double, false))

	// 1-p, 1-t
	p1 := p.MustMul1(ts.FloatScalar(-1), true).MustAdd1(ts.FloatScalar(1), true)
	t1 := t.MustMul1(ts.FloatScalar(-1), true).MustAdd1(ts.FloatScalar(1), true)
	pt1 := p1.MustMul(t1, true)
	negOverlap := scalar(pt1.MustSum(gotch.Double, true))
	t1Sum := scalar(t1.MustSum(gotch.Double, true))

	tp = (overlap + smooth) / (tSum + smooth)
	tn = (negOverlap + smooth) / (t1Sum + smooth)

	return tp, tn
}
