package geometry

import (
	"math"
	"sort"

	"tonebar/internal/model"
)

// GenesToCuts splits a flat gene vector into clamped cuts. When
// lengthAdjust is set an odd trailing gene is the adjustment and is dropped
// before pairing; an even vector carries none. An odd vector without
// lengthAdjust is malformed and decodes to a uniform bar.
func GenesToCuts(genes []float64, bar model.BarParameters, lengthAdjust bool) []model.Cut {
	pairs := genes
	if lengthAdjust && len(pairs)%2 == 1 {
		pairs = pairs[:len(pairs)-1]
	}
	if len(pairs) == 0 || len(pairs)%2 != 0 {
		return nil
	}
	half := bar.L / 2
	cuts := make([]model.Cut, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		cuts = append(cuts, model.Cut{
			Lambda: clamp(pairs[i], 0, half),
			H:      clamp(pairs[i+1], bar.HMin, bar.H0),
		})
	}
	return cuts
}

// LengthAdjust returns the trailing adjustment gene clamped to
// [-maxExtend, maxTrim], or zero when the vector carries none.
func LengthAdjust(genes []float64, lengthAdjust bool, maxTrim, maxExtend float64) float64 {
	if !lengthAdjust || len(genes)%2 == 0 {
		return 0
	}
	return clamp(genes[len(genes)-1], -maxExtend, maxTrim)
}

// EffectiveLength applies an adjustment to both ends of the bar.
func EffectiveLength(l, adjust float64) float64 {
	return l - 2*adjust
}

// Decode converts a flat vector into its tagged form.
func Decode(genes []float64, bar model.BarParameters, lengthAdjust bool, maxTrim, maxExtend float64) model.Geometry {
	g := model.Geometry{Cuts: GenesToCuts(genes, bar, lengthAdjust)}
	if lengthAdjust && len(genes)%2 == 1 {
		adj := LengthAdjust(genes, lengthAdjust, maxTrim, maxExtend)
		g.LengthAdjust = &adj
	}
	return g
}

// Encode flattens a geometry back to the gene vector layout.
func Encode(g model.Geometry) []float64 {
	n := 2 * len(g.Cuts)
	if g.LengthAdjust != nil {
		n++
	}
	out := make([]float64, 0, n)
	for _, c := range g.Cuts {
		out = append(out, c.Lambda, c.H)
	}
	if g.LengthAdjust != nil {
		out = append(out, *g.LengthAdjust)
	}
	return out
}

// SortCutsDescending returns a copy of cuts ordered by lambda, outermost first.
func SortCutsDescending(cuts []model.Cut) []model.Cut {
	sorted := append([]model.Cut(nil), cuts...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Lambda > sorted[j].Lambda
	})
	return sorted
}

// GenerateElementHeights samples the thickness at the midpoint of each of ne
// equal elements over [0, l]. Where cuts overlap the thinnest one wins.
func GenerateElementHeights(cuts []model.Cut, l, h0 float64, ne int) []float64 {
	return GenerateElementHeightsInto(make([]float64, ne), cuts, l, h0)
}

// GenerateElementHeightsInto fills dst in place; len(dst) is the element count.
func GenerateElementHeightsInto(dst []float64, cuts []model.Cut, l, h0 float64) []float64 {
	ne := len(dst)
	if ne == 0 {
		return dst
	}
	sorted := SortCutsDescending(cuts)
	le := l / float64(ne)
	center := l / 2
	for i := range dst {
		x := (float64(i) + 0.5) * le
		d := math.Abs(x - center)
		h := h0
		for _, c := range sorted {
			// sorted outermost first: once a cut stops covering, inner ones can't either
			if c.Lambda < d {
				break
			}
			if c.H < h {
				h = c.H
			}
		}
		dst[i] = h
	}
	return dst
}

// VisibleProfile walks the cuts from the outside in and returns the
// thickness band each distinct lambda produces, outermost first. Equal
// lambdas merge into one band.
func VisibleProfile(cuts []model.Cut, h0 float64) []model.Cut {
	sorted := SortCutsDescending(cuts)
	bands := make([]model.Cut, 0, len(sorted))
	running := h0
	for _, c := range sorted {
		if c.H < running {
			running = c.H
		}
		if n := len(bands); n > 0 && bands[n-1].Lambda == c.Lambda {
			bands[n-1].H = running
			continue
		}
		bands = append(bands, model.Cut{Lambda: c.Lambda, H: running})
	}
	return bands
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
