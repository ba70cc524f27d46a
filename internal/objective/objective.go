package objective

import (
	"math"

	"tonebar/internal/geometry"
	"tonebar/internal/model"
	"tonebar/internal/pitch"
)

// FailedFitness is assigned to candidates whose frequencies cannot be computed.
const FailedFitness = 1e10

// TuningError is the weighted mean squared relative frequency error in
// percent. Mode 0 is weighted by f1Priority, every other mode by 1. It is
// +Inf when no mode can be compared.
func TuningError(computed, target []float64, f1Priority float64) float64 {
	if f1Priority < 1 {
		f1Priority = 1
	}
	n := min(len(computed), len(target))
	sum, weights := 0.0, 0.0
	for i := 0; i < n; i++ {
		if target[i] <= 0 {
			continue
		}
		w := 1.0
		if i == 0 {
			w = f1Priority
		}
		rel := (computed[i] - target[i]) / target[i]
		sum += w * rel * rel
		weights += w
	}
	if weights == 0 {
		return math.Inf(1)
	}
	return 100 * sum / weights
}

// FrequencyErrorCents is the signed pitch error of f against target.
func FrequencyErrorCents(f, target float64) float64 {
	return pitch.Cents(f, target)
}

// CentsErrors compares mode by mode over the shorter of the two slices.
func CentsErrors(computed, target []float64) []float64 {
	n := min(len(computed), len(target))
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = FrequencyErrorCents(computed[i], target[i])
	}
	return out
}

// VolumePenalty is the share of the half-bar side profile removed by the
// cuts, in percent. Bands are walked from the center outwards and each band
// takes the thinnest covering cut, matching GenerateElementHeights.
func VolumePenalty(cuts []model.Cut, l, h0 float64) float64 {
	if len(cuts) == 0 || l <= 0 || h0 <= 0 {
		return 0
	}
	bands := geometry.VisibleProfile(cuts, h0)
	half := l / 2
	removed, inner := 0.0, 0.0
	for i := len(bands) - 1; i >= 0; i-- {
		outer := math.Min(bands[i].Lambda, half)
		if outer > inner {
			removed += (outer - inner) * (h0 - bands[i].H)
			inner = outer
		}
	}
	return clampPercent(100 * removed / (half * h0))
}

// RoughnessPenalty sums the thickness steps of the visible profile, from h0
// into the outermost cut and then between bands, normalized by count*h0.
func RoughnessPenalty(cuts []model.Cut, h0 float64) float64 {
	if len(cuts) == 0 || h0 <= 0 {
		return 0
	}
	bands := geometry.VisibleProfile(cuts, h0)
	total := 0.0
	prev := h0
	for _, b := range bands {
		total += math.Abs(prev - b.H)
		prev = b.H
	}
	return clampPercent(100 * total / (float64(len(cuts)) * h0))
}

// CombinedObjective blends tuning error and penalty; alpha=0 ignores the penalty.
func CombinedObjective(tuningError, penalty, alpha float64) float64 {
	return (1-alpha)*tuningError + alpha*penalty
}

func clampPercent(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
