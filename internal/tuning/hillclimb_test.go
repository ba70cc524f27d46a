package tuning

import (
	"context"
	"math"
	"math/rand"
	"testing"
)

// unitBox confines every gene to [0, 1].
type unitBox struct{}

func (unitBox) Span(int) float64 { return 1 }

func (unitBox) Repair(genes, _ []float64) {
	for i, g := range genes {
		genes[i] = math.Max(0, math.Min(1, g))
	}
}

func bowl(_ context.Context, genes []float64) (float64, error) {
	sum := 0.0
	for _, g := range genes {
		d := g - 0.3
		sum += d * d
	}
	return sum, nil
}

func TestHillClimberImprovesFitness(t *testing.T) {
	start := []float64{0.9, 0.1, 0.8}
	h := &HillClimber{Rand: rand.New(rand.NewSource(1)), Box: unitBox{}, Steps: 2, StepSize: 0.2}

	before, _ := bowl(context.Background(), start)
	res, err := h.Tune(context.Background(), start, 60, bowl)
	if err != nil {
		t.Fatalf("tune: %v", err)
	}
	if res.Fitness >= before {
		t.Fatalf("expected tuned fitness < baseline: before=%f after=%f", before, res.Fitness)
	}
	if start[0] != 0.9 {
		t.Fatal("input genes must not be modified")
	}
	for _, g := range res.Genes {
		if g < 0 || g > 1 {
			t.Fatalf("candidate escaped the box: %v", res.Genes)
		}
	}
	r := res.Report
	if r.AttemptsExecuted != 60 || r.CandidateEvaluations != 61 || r.AcceptedCandidates+r.RejectedCandidates != 60 {
		t.Fatalf("unexpected report: %+v", r)
	}
	if r.AcceptedCandidates == 0 {
		t.Fatal("expected accepted candidates")
	}
}

func TestHillClimberInputValidation(t *testing.T) {
	genes := []float64{0.5}
	rng := rand.New(rand.NewSource(1))
	cases := map[string]*HillClimber{
		"no rand":   {Steps: 1, StepSize: 0.1},
		"no steps":  {Rand: rng, StepSize: 0.1},
		"no step":   {Rand: rng, Steps: 1},
		"annealing": {Rand: rng, Steps: 1, StepSize: 0.1, AnnealingFactor: 1.5},
		"improve":   {Rand: rng, Steps: 1, StepSize: 0.1, MinImprovement: -1},
		"selection": {Rand: rng, Steps: 1, StepSize: 0.1, CandidateSelection: "lastgen"},
	}
	for name, h := range cases {
		if _, err := h.Tune(context.Background(), genes, 1, bowl); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
	h := &HillClimber{Rand: rng, Steps: 1, StepSize: 0.1}
	if _, err := h.Tune(context.Background(), genes, 1, nil); err == nil {
		t.Fatal("expected missing fitness error")
	}
}

func TestHillClimberAttemptsZeroReturnsClone(t *testing.T) {
	h := &HillClimber{Rand: rand.New(rand.NewSource(1)), Steps: 1, StepSize: 0.1}
	genes := []float64{0.7, 0.2}
	res, err := h.Tune(context.Background(), genes, 0, bowl)
	if err != nil {
		t.Fatalf("tune: %v", err)
	}
	res.Genes[0] = 0
	if genes[0] != 0.7 {
		t.Fatal("expected a copy of the input genes")
	}
	if res.Report.AttemptsExecuted != 0 || res.Report.CandidateEvaluations != 1 {
		t.Fatalf("unexpected report: %+v", res.Report)
	}
}

func TestHillClimberStopsEarlyWhenGoalReached(t *testing.T) {
	h := &HillClimber{Rand: rand.New(rand.NewSource(3)), Box: unitBox{}, Steps: 1, StepSize: 0.3}
	h.SetGoalFitness(0.05)
	res, err := h.Tune(context.Background(), []float64{0.8}, 500, bowl)
	if err != nil {
		t.Fatalf("tune: %v", err)
	}
	if !res.Report.GoalReached || res.Fitness > 0.05 {
		t.Fatalf("expected goal reached: %+v fitness=%f", res.Report, res.Fitness)
	}
	if res.Report.AttemptsExecuted >= 500 {
		t.Fatalf("expected early stop, executed %d attempts", res.Report.AttemptsExecuted)
	}
}

func TestHillClimberMinImprovementBlocksSmallGains(t *testing.T) {
	h := &HillClimber{Rand: rand.New(rand.NewSource(1)), Box: unitBox{}, Steps: 1, StepSize: 0.01, MinImprovement: 10}
	res, err := h.Tune(context.Background(), []float64{0.9}, 20, bowl)
	if err != nil {
		t.Fatalf("tune: %v", err)
	}
	if res.Genes[0] != 0.9 || res.Report.AcceptedCandidates != 0 {
		t.Fatalf("expected no accepted candidate: %+v", res)
	}
}

func TestHillClimberSelectionModes(t *testing.T) {
	for _, mode := range []string{
		CandidateSelectBestSoFar,
		CandidateSelectOriginal,
		CandidateSelectRecent,
		CandidateSelectDynamic,
		CandidateSelectDynamicRd,
		CandidateSelectAll,
		CandidateSelectAllRandom,
	} {
		h := &HillClimber{Rand: rand.New(rand.NewSource(5)), Box: unitBox{}, Steps: 2, StepSize: 0.2, CandidateSelection: mode}
		res, err := h.Tune(context.Background(), []float64{0.9, 0.9}, 30, bowl)
		if err != nil {
			t.Fatalf("%s: %v", mode, err)
		}
		if res.Report.CandidateEvaluations < 31 {
			t.Fatalf("%s: every attempt evaluates at least one candidate: %+v", mode, res.Report)
		}
		if res.Fitness > 0.73 {
			t.Fatalf("%s: fitness must never get worse: %f", mode, res.Fitness)
		}
	}
}

func TestHillClimberHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h := &HillClimber{Rand: rand.New(rand.NewSource(1)), Steps: 1, StepSize: 0.1}
	if _, err := h.Tune(ctx, []float64{0.5}, 10, bowl); err == nil {
		t.Fatal("expected context error")
	}
}
