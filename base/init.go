package base

import (
	"math"

	"github.com/sugarme/gotch/nn"
)

// HeNormalApprox returns an untruncated normal initializer with zero mean and
// standard deviation sqrt(2/fanIn), so the weight variance is exactly 2/fanIn.
// Keras `he_normal` draws from a truncated normal with the same variance;
// the two differ only in the tails beyond 2 standard deviations.
// Ref. https://arxiv.org/abs/1502.01852
func HeNormalApprox(fanIn int64) nn.Init {
	return nn.NewRandnInit(0.0, math.Sqrt(2.0/float64(fanIn)))
}

// GlorotUniform returns a uniform initializer over [-limit, limit] where
// limit = sqrt(6/(fanIn+fanOut)).
// Ref. http://proceedings.mlr.press/v9/glorot10a/glorot10a.pdf
func GlorotUniform(fanIn, fanOut int64) nn.Init {
	limit := math.Sqrt(6.0 / float64(fanIn+fanOut))
	return nn.NewUniformInit(-limit, limit)
}
