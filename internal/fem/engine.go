package fem

import (
	"errors"
	"fmt"

	"tonebar/internal/geometry"
	"tonebar/internal/model"
)

var ErrInvalidInput = errors.New("invalid frequency input")

// Options configures one frequency computation.
type Options struct {
	NumModes    int
	NumElements int
	// LengthAdjust marks a trailing length gene; MaxTrim/MaxExtend bound it.
	LengthAdjust bool
	MaxTrim      float64
	MaxExtend    float64
}

// ComputeFrequencies maps genes on a bar of the given material to its first
// NumModes elastic frequencies.
func ComputeFrequencies(genes []float64, bar model.BarParameters, material model.Material, opts Options) ([]float64, error) {
	return NewWorkspace().ComputeFrequencies(genes, bar, material, opts)
}

// ComputeFrequencies is the allocation-reusing form used by fitness workers.
func (w *Workspace) ComputeFrequencies(genes []float64, bar model.BarParameters, material model.Material, opts Options) ([]float64, error) {
	if err := bar.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if err := material.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if opts.NumElements <= 0 {
		return nil, fmt.Errorf("%w: element count must be > 0", ErrInvalidInput)
	}
	if opts.NumModes <= 0 {
		return nil, fmt.Errorf("%w: mode count must be > 0", ErrInvalidInput)
	}

	cuts := geometry.GenesToCuts(genes, bar, opts.LengthAdjust)
	adjust := geometry.LengthAdjust(genes, opts.LengthAdjust, opts.MaxTrim, opts.MaxExtend)
	length := geometry.EffectiveLength(bar.L, adjust)
	if length <= 0 {
		return nil, fmt.Errorf("%w: effective length %g", ErrInvalidInput, length)
	}

	heights := geometry.GenerateElementHeightsInto(w.elementHeights(opts.NumElements), cuts, length, bar.H0)
	le := length / float64(opts.NumElements)
	g := assembleInto(w, heights, le, bar.B, material.E, material.Rho, material.Nu)
	freqs, err := Solve(g.K, g.M, opts.NumModes)
	if err != nil {
		return nil, fmt.Errorf("solve %d-element bar: %w", opts.NumElements, err)
	}
	return freqs, nil
}
