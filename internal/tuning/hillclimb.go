package tuning

import (
	"context"
	"errors"
	"math"
	"math/rand"
)

const (
	CandidateSelectBestSoFar = "best_so_far"
	CandidateSelectOriginal  = "original"
	CandidateSelectDynamic   = "dynamic"
	CandidateSelectDynamicRd = "dynamic_random"
	CandidateSelectRecent    = "recent"
	CandidateSelectAll       = "all"
	CandidateSelectAllRandom = "all_random"
)

// HillClimber refines a gene vector by repeated local perturbation, keeping
// a candidate only when it lowers the fitness by more than MinImprovement.
// It draws from Rand without locking and is not safe for concurrent use.
type HillClimber struct {
	Rand *rand.Rand
	// Box is optional; without it candidates are left unconstrained and
	// perturbations are scaled by 1.
	Box Box
	// Steps is the number of single-gene perturbations per candidate.
	Steps int
	// StepSize is the perturbation spread as a fraction of a gene's span.
	StepSize float64
	// AnnealingFactor shrinks the spread geometrically over the steps of one
	// candidate. Zero means 1.
	AnnealingFactor    float64
	MinImprovement     float64
	CandidateSelection string

	goal    float64
	hasGoal bool
}

func (h *HillClimber) Name() string {
	return "hillclimb"
}

// SetGoalFitness stops tuning once a fitness at or below goal is found.
func (h *HillClimber) SetGoalFitness(goal float64) {
	h.goal = goal
	h.hasGoal = true
}

func (h *HillClimber) Tune(ctx context.Context, genes []float64, attempts int, fitness FitnessFn) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if h == nil || h.Rand == nil {
		return Result{}, errors.New("random source is required")
	}
	if fitness == nil {
		return Result{}, errors.New("fitness function is required")
	}
	if h.Steps <= 0 {
		return Result{}, errors.New("steps must be > 0")
	}
	if h.StepSize <= 0 {
		return Result{}, errors.New("step size must be > 0")
	}
	if h.AnnealingFactor < 0 || h.AnnealingFactor > 1 {
		return Result{}, errors.New("annealing factor must be in [0, 1]")
	}
	if h.MinImprovement < 0 {
		return Result{}, errors.New("min improvement must be >= 0")
	}
	if !ValidCandidateSelection(h.CandidateSelection) {
		return Result{}, errors.New("unsupported candidate selection")
	}

	original := clone(genes)
	best := clone(genes)
	bestFitness, err := fitness(ctx, best)
	if err != nil {
		return Result{}, err
	}
	report := TuneReport{AttemptsPlanned: max(attempts, 0), CandidateEvaluations: 1}
	if attempts <= 0 || len(genes) == 0 || h.reached(bestFitness) {
		report.GoalReached = h.reached(bestFitness)
		return Result{Genes: best, Fitness: bestFitness, Report: report}, nil
	}

	annealing := h.AnnealingFactor
	if annealing == 0 {
		annealing = 1
	}
	recent := clone(best)

	for a := 0; a < attempts; a++ {
		bases, err := h.candidateBases(best, original, recent)
		if err != nil {
			return Result{}, err
		}
		localBest := clone(best)
		localBestFitness := bestFitness
		for _, base := range bases {
			candidate, err := h.perturb(ctx, base, annealing)
			if err != nil {
				return Result{}, err
			}
			f, err := fitness(ctx, candidate)
			if err != nil {
				return Result{}, err
			}
			report.CandidateEvaluations++
			if f < localBestFitness-h.MinImprovement {
				localBest = candidate
				localBestFitness = f
				report.AcceptedCandidates++
			} else {
				report.RejectedCandidates++
			}
		}
		report.AttemptsExecuted++
		recent = clone(localBest)
		if localBestFitness < bestFitness-h.MinImprovement {
			best = localBest
			bestFitness = localBestFitness
		}
		if h.reached(bestFitness) {
			report.GoalReached = true
			break
		}
	}
	return Result{Genes: best, Fitness: bestFitness, Report: report}, nil
}

func (h *HillClimber) reached(f float64) bool {
	return h.hasGoal && f <= h.goal
}

// ValidCandidateSelection reports whether mode names a supported selection;
// empty is best_so_far.
func ValidCandidateSelection(mode string) bool {
	switch mode {
	case "", CandidateSelectBestSoFar, CandidateSelectOriginal, CandidateSelectRecent,
		CandidateSelectDynamic, CandidateSelectDynamicRd, CandidateSelectAll, CandidateSelectAllRandom:
		return true
	default:
		return false
	}
}

// candidateBases picks the vectors perturbed in one attempt.
func (h *HillClimber) candidateBases(best, original, recent []float64) ([][]float64, error) {
	var pool [][]float64
	random := false
	switch h.CandidateSelection {
	case "", CandidateSelectBestSoFar:
		pool = [][]float64{best}
	case CandidateSelectOriginal:
		pool = [][]float64{original}
	case CandidateSelectRecent:
		pool = [][]float64{recent}
	case CandidateSelectDynamic, CandidateSelectDynamicRd:
		pool = [][]float64{best, original}
		random = h.CandidateSelection == CandidateSelectDynamicRd
	case CandidateSelectAll, CandidateSelectAllRandom:
		pool = [][]float64{best, original, recent}
		random = h.CandidateSelection == CandidateSelectAllRandom
	default:
		return nil, errors.New("unsupported candidate selection")
	}
	if random {
		pool = h.randomSubset(pool)
	}
	out := make([][]float64, len(pool))
	for i := range pool {
		out[i] = clone(pool[i])
	}
	return out, nil
}

// randomSubset keeps each base with probability 1/sqrt(n) and never returns
// an empty pool.
func (h *HillClimber) randomSubset(pool [][]float64) [][]float64 {
	if len(pool) <= 1 {
		return pool
	}
	p := 1 / math.Sqrt(float64(len(pool)))
	chosen := make([][]float64, 0, len(pool))
	for i := range pool {
		if h.Rand.Float64() < p {
			chosen = append(chosen, pool[i])
		}
	}
	if len(chosen) > 0 {
		return chosen
	}
	return [][]float64{pool[h.Rand.Intn(len(pool))]}
}

func (h *HillClimber) perturb(ctx context.Context, base []float64, annealing float64) ([]float64, error) {
	candidate := clone(base)
	for s := 0; s < h.Steps; s++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		idx := h.Rand.Intn(len(candidate))
		span := 1.0
		if h.Box != nil {
			span = h.Box.Span(idx)
		}
		spread := h.StepSize * span * math.Pow(annealing, float64(s))
		candidate[idx] += (h.Rand.Float64()*2 - 1) * spread
	}
	if h.Box != nil {
		h.Box.Repair(candidate, nil)
	}
	return candidate, nil
}

func clone(genes []float64) []float64 {
	return append([]float64(nil), genes...)
}
