package storage

import (
	"math"

	"tonebar/internal/model"
)

func sampleRun(id, createdAt string) model.RunRecord {
	return model.RunRecord{
		VersionedRecord: model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion},
		ID:              id,
		CreatedAtUTC:    createdAt,
		Bar:             model.BarParameters{L: 0.35, B: 0.05, H0: 0.01, HMin: 0.002},
		Material:        model.Material{Name: "aluminum", E: 68.9e9, Rho: 2700, Nu: 0.33, Category: "metal"},
		Targets:         []float64{175, 700, 1750},
		NumCuts:         2,
		PenaltyType:     model.PenaltyVolume,
		PenaltyWeight:   0.1,
		Parameters:      model.DefaultEAParameters(),
		Result: model.OptimizationResult{
			Best:                model.Individual{Genes: []float64{0.03, 0.006, 0.09, 0.008}, Fitness: 1.5, TuningError: 1.2, Evaluated: true},
			Cuts:                []model.Cut{{Lambda: 0.09, H: 0.008}, {Lambda: 0.03, H: 0.006}},
			ComputedFrequencies: []float64{176, 702, 1740},
			TargetFrequencies:   []float64{175, 700, 1750},
			TuningError:         1.2,
			CentsErrors:         []float64{9.9, 4.9, -9.9},
			Generations:         12,
			EffectiveLength:     0.35,
			StopReason:          model.StopMaxGenerations,
			BestByGeneration:    []float64{3, 2, 1.5},
		},
		ElapsedSeconds: 1.25,
	}
}

func failedRun(id string) model.RunRecord {
	run := sampleRun(id, "2026-01-01T00:00:00Z")
	run.Result.TuningError = math.Inf(1)
	run.Result.Best.TuningError = math.Inf(1)
	run.Result.Best.Sigmas = []float64{0.1, 0.1, 0.1, 0.1}
	return run
}
