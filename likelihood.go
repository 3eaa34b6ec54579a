package qtbirds

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

//MessageLogLike will reduce an evolved likelihood message to its scalar
//log-likelihood contribution: the log of the sum of its components. A sum
//that is zero or negative yields -Inf rather than an error, so that a
//particle whose parameter draw is incompatible with the data stays
//representable and can be discarded by resampling.
func MessageLogLike(msg *mat.VecDense) float64 {
	sum := floats.Sum(vecData(msg))
	if sum <= 0 {
		return math.Inf(-1)
	}
	return math.Log(sum)
}

//SiteLogLike will sum the per-site contributions of a merged message
//sequence
func SiteLogLike(msgs []*mat.VecDense) (ll float64) {
	for _, m := range msgs {
		ll += MessageLogLike(m)
	}
	return
}

//TwigLogLike will return the total log-likelihood term of one merge: the
//summed per-site contributions plus the character contribution
func TwigLogLike(msgs []*mat.VecDense, charMsg *mat.VecDense) float64 {
	return SiteLogLike(msgs) + MessageLogLike(charMsg)
}
