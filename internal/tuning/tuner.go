package tuning

import "context"

// FitnessFn scores a gene vector. Lower is better.
type FitnessFn func(ctx context.Context, genes []float64) (float64, error)

// Box is the feasible region a tuner keeps candidates inside.
type Box interface {
	// Span is the width of gene i's interval; perturbations scale with it.
	Span(i int) float64
	// Repair moves genes back into the region in place.
	Repair(genes, sigmas []float64)
}

type TuneReport struct {
	AttemptsPlanned      int  `json:"attempts_planned"`
	AttemptsExecuted     int  `json:"attempts_executed"`
	CandidateEvaluations int  `json:"candidate_evaluations"`
	AcceptedCandidates   int  `json:"accepted_candidates"`
	RejectedCandidates   int  `json:"rejected_candidates"`
	GoalReached          bool `json:"goal_reached"`
}

type Result struct {
	Genes   []float64
	Fitness float64
	Report  TuneReport
}
