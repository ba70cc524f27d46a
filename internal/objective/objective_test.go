package objective

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tonebar/internal/model"
)

func TestTuningError(t *testing.T) {
	assert.Equal(t, 0.0, TuningError([]float64{100, 400, 1000}, []float64{100, 400, 1000}, 1))
	// 10% high on mode 0 only: 100 * 0.01 / 3
	assert.InDelta(t, 1.0/3.0, TuningError([]float64{110, 400, 1000}, []float64{100, 400, 1000}, 1), 1e-12)
	// f1 priority 2 doubles mode 0's weight: 100 * 2*0.01 / 4
	assert.InDelta(t, 0.5, TuningError([]float64{110, 400, 1000}, []float64{100, 400, 1000}, 2), 1e-12)
	// only the overlapping modes count
	assert.Equal(t, 0.0, TuningError([]float64{100}, []float64{100, 400}, 1))
	assert.True(t, math.IsInf(TuningError(nil, []float64{100}, 1), 1))
	assert.True(t, math.IsInf(TuningError([]float64{1}, []float64{0}, 1), 1))
}

func TestFrequencyErrorCents(t *testing.T) {
	assert.Equal(t, 0.0, FrequencyErrorCents(175, 175))
	assert.InDelta(t, 1200, FrequencyErrorCents(350, 175), 1e-9)
	assert.Len(t, CentsErrors([]float64{1, 2, 3}, []float64{1, 2}), 2)
}

func TestPenaltiesEmptyCuts(t *testing.T) {
	assert.Equal(t, 0.0, VolumePenalty(nil, 0.35, 0.01))
	assert.Equal(t, 0.0, RoughnessPenalty(nil, 0.01))
}

func TestVolumePenaltyKnownValues(t *testing.T) {
	assert.InDelta(t, 25, VolumePenalty([]model.Cut{{Lambda: 0.25, H: 0.005}}, 1, 0.01), 1e-9)
	assert.InDelta(t, 100, VolumePenalty([]model.Cut{{Lambda: 0.5, H: 0}}, 1, 0.01), 1e-9)
	// nested: band [0,0.1] at 0.006, band (0.1,0.2] at 0.008
	nested := []model.Cut{{Lambda: 0.2, H: 0.008}, {Lambda: 0.1, H: 0.006}}
	want := 100 * (0.1*0.004 + 0.1*0.002) / (0.5 * 0.01)
	assert.InDelta(t, want, VolumePenalty(nested, 1, 0.01), 1e-9)
}

func TestVolumePenaltyNonNestedUsesVisibleProfile(t *testing.T) {
	// the inner shallow cut is hidden by the deeper wide cut
	cuts := []model.Cut{{Lambda: 0.1, H: 0.009}, {Lambda: 0.2, H: 0.005}}
	assert.InDelta(t, VolumePenalty([]model.Cut{{Lambda: 0.2, H: 0.005}}, 1, 0.01), VolumePenalty(cuts, 1, 0.01), 1e-12)
}

func TestRoughnessPenaltyKnownValues(t *testing.T) {
	assert.InDelta(t, 50, RoughnessPenalty([]model.Cut{{Lambda: 0.1, H: 0.005}}, 0.01), 1e-9)
	nested := []model.Cut{{Lambda: 0.1, H: 0.008}, {Lambda: 0.05, H: 0.006}}
	assert.InDelta(t, 20, RoughnessPenalty(nested, 0.01), 1e-9)
	nonNested := []model.Cut{{Lambda: 0.1, H: 0.006}, {Lambda: 0.05, H: 0.009}}
	assert.InDelta(t, 20, RoughnessPenalty(nonNested, 0.01), 1e-9)
	// equal lambdas form one band
	same := []model.Cut{{Lambda: 0.1, H: 0.006}, {Lambda: 0.1, H: 0.008}}
	assert.InDelta(t, 20, RoughnessPenalty(same, 0.01), 1e-9)
}

func TestPenaltiesBoundedForRandomCuts(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	bar := model.BarParameters{L: 0.35, B: 0.05, H0: 0.01, HMin: 0.002}
	for trial := 0; trial < 200; trial++ {
		cuts := make([]model.Cut, 1+rng.Intn(5))
		for i := range cuts {
			cuts[i] = model.Cut{
				Lambda: rng.Float64() * bar.L / 2,
				H:      bar.HMin + rng.Float64()*(bar.H0-bar.HMin),
			}
		}
		v := VolumePenalty(cuts, bar.L, bar.H0)
		r := RoughnessPenalty(cuts, bar.H0)
		require.True(t, v >= 0 && v <= 100, "volume %v", v)
		require.True(t, r >= 0 && r <= 100, "roughness %v", r)
	}
}

func TestCombinedObjective(t *testing.T) {
	assert.Equal(t, 4.0, CombinedObjective(4, 50, 0))
	assert.Equal(t, 50.0, CombinedObjective(4, 50, 1))
	assert.InDelta(t, 8.6, CombinedObjective(4, 50, 0.1), 1e-12)
}

func TestEvaluatorScoresAndPenalizesFailures(t *testing.T) {
	problem := Problem{
		Bar:           model.BarParameters{L: 0.35, B: 0.05, H0: 0.01, HMin: 0.002},
		Material:      model.Material{Name: "aluminum", E: 68.9e9, Rho: 2700, Nu: 0.33},
		Targets:       []float64{175, 700, 1750},
		PenaltyType:   model.PenaltyVolume,
		PenaltyWeight: 0.1,
		F1Priority:    1,
		NumElements:   30,
	}
	ev := Evaluator{Problem: problem}
	score := ev.Evaluate([]float64{0.08, 0.004, 0.03, 0.003}, nil)
	require.NoError(t, score.Err)
	assert.Len(t, score.Frequencies, 3)
	assert.Greater(t, score.Penalty, 0.0)
	assert.InDelta(t, CombinedObjective(score.TuningError, score.Penalty, 0.1), score.Fitness, 1e-12)

	problem.Bar.HMin = problem.Bar.H0
	failed := Evaluator{Problem: problem}.Evaluate([]float64{0.08, 0.004}, nil)
	assert.Error(t, failed.Err)
	assert.Equal(t, FailedFitness, failed.Fitness)
	assert.True(t, math.IsInf(failed.TuningError, 1))
}
