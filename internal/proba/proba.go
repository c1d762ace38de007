// Package proba turns ranked evaluation deficits into a probability
// distribution and draws a move rank from it.
package proba

import (
	"errors"
	"math"
)

// ErrNegativeTemperature is returned for K < 0.
var ErrNegativeTemperature = errors.New("proba: temperature must not be negative")

// Round4 rounds x to 4 decimal places.
func Round4(x float64) float64 {
	return math.Round(x*1e4) / 1e4
}

// Distribution computes P(i) = 10^(d(i)/K) / sum_j 10^(d(j)/K) and its running
// sum F(i) over the deficits in the order given. Both are rounded to 4
// decimal places; F accumulates the rounded P values.
//
// K = 0 is treated as the K->0+ limit: the mass is split evenly over the
// candidates with the largest deficit.
func Distribution(deficits []float64, k float64) (p, f []float64, err error) {
	if k < 0 || math.IsNaN(k) {
		return nil, nil, ErrNegativeTemperature
	}
	if len(deficits) == 0 {
		return nil, nil, nil
	}

	top := deficits[0]
	for _, d := range deficits[1:] {
		if d > top {
			top = d
		}
	}

	weights := make([]float64, len(deficits))
	var sum float64
	for i, d := range deficits {
		switch {
		case k == 0 && d == top:
			weights[i] = 1
		case k == 0:
			weights[i] = 0
		default:
			// Shifting by the largest deficit leaves the ratios unchanged
			// and keeps 10^x finite.
			weights[i] = math.Pow(10, (d-top)/k)
		}
		sum += weights[i]
	}

	p = make([]float64, len(deficits))
	f = make([]float64, len(deficits))
	var cum float64
	for i, w := range weights {
		p[i] = Round4(w / sum)
		cum += p[i]
		f[i] = Round4(cum)
	}
	return p, f, nil
}
