package evo

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"tonebar/internal/model"
)

// widthSlack absorbs round-off so Repair is idempotent on its own output.
const widthSlack = 1e-12

// Bounds holds the feasible box for every gene of a cut layout and the band
// width limits that Repair enforces between neighbouring cuts.
//
// The innermost cut spans [-lambda, lambda], so its width is 2*lambda; every
// other band is lambda[i]-lambda[i-1] wide on each side of the bar.
type Bounds struct {
	NumCuts      int
	LengthAdjust bool
	Half         float64
	HLow, HHigh  float64
	MinWidth     float64
	MaxWidth     float64
	AdjustLow    float64
	AdjustHigh   float64
}

// NewBounds derives gene limits from the bar and the cut constraints.
func NewBounds(bar model.BarParameters, params model.EAParameters, numCuts int) (Bounds, error) {
	if err := bar.Validate(); err != nil {
		return Bounds{}, err
	}
	if numCuts < 0 {
		return Bounds{}, fmt.Errorf("number of cuts must be >= 0")
	}
	if params.MinCutWidth < 0 || params.MaxCutWidth < 0 || params.MinCutDepth < 0 || params.MaxCutDepth < 0 {
		return Bounds{}, fmt.Errorf("cut width and depth limits must be >= 0")
	}
	if params.MaxCutWidth > 0 && params.MinCutWidth > params.MaxCutWidth {
		return Bounds{}, fmt.Errorf("min cut width exceeds max cut width")
	}
	if params.MaxCutDepth > 0 && params.MinCutDepth > params.MaxCutDepth {
		return Bounds{}, fmt.Errorf("min cut depth exceeds max cut depth")
	}
	if params.MaxLengthTrim < 0 || params.MaxLengthExtend < 0 {
		return Bounds{}, fmt.Errorf("length trim and extend must be >= 0")
	}
	if params.MaxLengthTrim >= bar.L/2 {
		return Bounds{}, fmt.Errorf("max length trim must be < half the bar length")
	}
	if numCuts > 0 && params.MinCutWidth > 0 {
		need := params.MinCutWidth/2 + float64(numCuts-1)*params.MinCutWidth
		if need > bar.L/2 {
			return Bounds{}, fmt.Errorf("%d cuts of min width %g need %g m of the %g m half bar", numCuts, params.MinCutWidth, need, bar.L/2)
		}
	}

	b := Bounds{
		NumCuts:      numCuts,
		LengthAdjust: params.LengthAdjustEnabled(),
		Half:         bar.L / 2,
		HLow:         bar.HMin,
		HHigh:        bar.H0,
		MinWidth:     params.MinCutWidth,
		MaxWidth:     params.MaxCutWidth,
		AdjustLow:    -params.MaxLengthExtend,
		AdjustHigh:   params.MaxLengthTrim,
	}
	if params.MaxCutDepth > 0 {
		b.HLow = math.Max(bar.HMin, bar.H0-params.MaxCutDepth)
	}
	if params.MinCutDepth > 0 {
		b.HHigh = math.Max(b.HLow, bar.H0-params.MinCutDepth)
	}
	return b, nil
}

// GeneCount is the length of a gene vector under these bounds.
func (b Bounds) GeneCount() int {
	n := 2 * b.NumCuts
	if b.LengthAdjust {
		n++
	}
	return n
}

// Span is the width of the feasible interval of gene i; mutation steps are
// scaled by it.
func (b Bounds) Span(i int) float64 {
	switch {
	case b.LengthAdjust && i == 2*b.NumCuts:
		return b.AdjustHigh - b.AdjustLow
	case i%2 == 0:
		return b.Half
	default:
		return b.HHigh - b.HLow
	}
}

// Random draws a feasible gene vector.
func (b Bounds) Random(rng *rand.Rand) []float64 {
	genes := make([]float64, b.GeneCount())
	for c := 0; c < b.NumCuts; c++ {
		genes[2*c] = rng.Float64() * b.Half
		genes[2*c+1] = b.HLow + rng.Float64()*(b.HHigh-b.HLow)
	}
	if b.LengthAdjust {
		genes[2*b.NumCuts] = b.AdjustLow + rng.Float64()*(b.AdjustHigh-b.AdjustLow)
	}
	b.Repair(genes, nil)
	return genes
}

// Repair clamps genes into the box, orders cut pairs by ascending lambda and
// enforces band widths. sigmas, when non-nil, are permuted with their genes.
func (b Bounds) Repair(genes, sigmas []float64) {
	if len(genes) != b.GeneCount() {
		return
	}
	for c := 0; c < b.NumCuts; c++ {
		genes[2*c] = clampFinite(genes[2*c], 0, b.Half)
		genes[2*c+1] = clampFinite(genes[2*c+1], b.HLow, b.HHigh)
	}
	if b.LengthAdjust {
		i := 2 * b.NumCuts
		genes[i] = clampFinite(genes[i], b.AdjustLow, b.AdjustHigh)
	}
	if b.NumCuts > 1 {
		sort.Sort(cutPairs{genes: genes, sigmas: sigmas, n: b.NumCuts})
	}

	n := b.NumCuts
	prev := 0.0
	for c := 0; c < n; c++ {
		lambda := genes[2*c]
		scale := 1.0
		if c == 0 {
			// innermost band straddles the center
			scale = 2
		}
		width := scale * (lambda - prev)
		if b.MinWidth > 0 && width < b.MinWidth-widthSlack {
			lambda = prev + b.MinWidth/scale
		}
		if b.MaxWidth > 0 && width > b.MaxWidth+widthSlack {
			lambda = prev + b.MaxWidth/scale
		}
		genes[2*c] = lambda
		prev = lambda
	}

	// Widening can push outer cuts past the bar end. Walking back from the
	// outside, cap each cut so every band outside it still fits at MinWidth.
	// Lowering a cut this way never widens a band beyond MaxWidth.
	next := math.Inf(1)
	for c := n - 1; c >= 0; c-- {
		upper := math.Min(b.Half-float64(n-1-c)*b.MinWidth, next-b.MinWidth)
		if genes[2*c] > upper+widthSlack {
			genes[2*c] = math.Max(0, upper)
		}
		genes[2*c] = math.Min(genes[2*c], b.Half)
		next = genes[2*c]
	}
}

// Clamp only boxes genes; it does not reorder.
func (b Bounds) Clamp(genes []float64) {
	for i := range genes {
		switch {
		case b.LengthAdjust && i == 2*b.NumCuts:
			genes[i] = clampFinite(genes[i], b.AdjustLow, b.AdjustHigh)
		case i%2 == 0:
			genes[i] = clampFinite(genes[i], 0, b.Half)
		default:
			genes[i] = clampFinite(genes[i], b.HLow, b.HHigh)
		}
	}
}

type cutPairs struct {
	genes  []float64
	sigmas []float64
	n      int
}

func (p cutPairs) Len() int { return p.n }

func (p cutPairs) Less(i, j int) bool { return p.genes[2*i] < p.genes[2*j] }

func (p cutPairs) Swap(i, j int) {
	p.genes[2*i], p.genes[2*j] = p.genes[2*j], p.genes[2*i]
	p.genes[2*i+1], p.genes[2*j+1] = p.genes[2*j+1], p.genes[2*i+1]
	if len(p.sigmas) == len(p.genes) {
		p.sigmas[2*i], p.sigmas[2*j] = p.sigmas[2*j], p.sigmas[2*i]
		p.sigmas[2*i+1], p.sigmas[2*j+1] = p.sigmas[2*j+1], p.sigmas[2*i+1]
	}
}

func clampFinite(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
