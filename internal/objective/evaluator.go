package objective

import (
	"math"

	"tonebar/internal/fem"
	"tonebar/internal/geometry"
	"tonebar/internal/model"
)

// Problem is everything fitness evaluation needs besides the genes.
type Problem struct {
	Bar           model.BarParameters
	Material      model.Material
	Targets       []float64
	PenaltyType   model.PenaltyType
	PenaltyWeight float64
	F1Priority    float64
	NumElements   int
	MaxTrim       float64
	MaxExtend     float64
}

func (p Problem) LengthAdjustEnabled() bool {
	return p.MaxTrim > 0 || p.MaxExtend > 0
}

func (p Problem) FEMOptions() fem.Options {
	return fem.Options{
		NumModes:     len(p.Targets),
		NumElements:  p.NumElements,
		LengthAdjust: p.LengthAdjustEnabled(),
		MaxTrim:      p.MaxTrim,
		MaxExtend:    p.MaxExtend,
	}
}

// Score is the outcome of evaluating one gene vector.
type Score struct {
	Fitness     float64
	TuningError float64
	Penalty     float64
	Frequencies []float64
	Err         error
}

// Evaluator scores gene vectors. It never fails: solver errors map to
// FailedFitness so one bad candidate cannot abort a run.
type Evaluator struct {
	Problem Problem
}

// Evaluate uses ws as scratch; ws must not be shared by concurrent callers.
// A nil ws allocates.
func (e Evaluator) Evaluate(genes []float64, ws *fem.Workspace) Score {
	if ws == nil {
		ws = fem.NewWorkspace()
	}
	p := e.Problem
	freqs, err := ws.ComputeFrequencies(genes, p.Bar, p.Material, p.FEMOptions())
	if err != nil {
		return Score{Fitness: FailedFitness, TuningError: math.Inf(1), Err: err}
	}
	tuning := TuningError(freqs, p.Targets, p.F1Priority)
	if math.IsInf(tuning, 0) || math.IsNaN(tuning) {
		return Score{Fitness: FailedFitness, TuningError: math.Inf(1), Frequencies: freqs}
	}
	penalty := e.Penalty(genes)
	return Score{
		Fitness:     CombinedObjective(tuning, penalty, p.PenaltyWeight),
		TuningError: tuning,
		Penalty:     penalty,
		Frequencies: freqs,
	}
}

// Penalty is the manufacturability term selected by the problem's penalty type.
func (e Evaluator) Penalty(genes []float64) float64 {
	p := e.Problem
	if p.PenaltyType == model.PenaltyNone || p.PenaltyType == "" {
		return 0
	}
	cuts := geometry.GenesToCuts(genes, p.Bar, p.LengthAdjustEnabled())
	adjust := geometry.LengthAdjust(genes, p.LengthAdjustEnabled(), p.MaxTrim, p.MaxExtend)
	length := geometry.EffectiveLength(p.Bar.L, adjust)
	switch p.PenaltyType {
	case model.PenaltyVolume:
		return VolumePenalty(cuts, length, p.Bar.H0)
	case model.PenaltyRoughness:
		return RoughnessPenalty(cuts, p.Bar.H0)
	case model.PenaltyCombined:
		return 0.5 * (VolumePenalty(cuts, length, p.Bar.H0) + RoughnessPenalty(cuts, p.Bar.H0))
	default:
		return 0
	}
}
