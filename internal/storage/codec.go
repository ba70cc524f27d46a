package storage

import (
	"encoding/json"
	"errors"
	"math"

	"tonebar/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// JSON has no encoding for NaN or Inf. Failed evaluations carry +Inf tuning
// errors and unevaluated individuals carry NaN fitness, so both are mapped
// onto finite markers before encoding and restored after decoding.
const (
	posInfMarker = math.MaxFloat64
	negInfMarker = -math.MaxFloat64
)

func toFinite(v float64) float64 {
	switch {
	case math.IsInf(v, 1):
		return posInfMarker
	case math.IsInf(v, -1):
		return negInfMarker
	case math.IsNaN(v):
		// NaN has no marker; it only ever means "not evaluated"
		return 0
	}
	return v
}

func fromFinite(v float64) float64 {
	switch v {
	case posInfMarker:
		return math.Inf(1)
	case negInfMarker:
		return math.Inf(-1)
	}
	return v
}

func mapSlice(values []float64, fn func(float64) float64) []float64 {
	if values == nil {
		return nil
	}
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = fn(v)
	}
	return out
}

func mapIndividual(ind model.Individual, fn func(float64) float64) model.Individual {
	ind.Genes = mapSlice(ind.Genes, fn)
	ind.Sigmas = mapSlice(ind.Sigmas, fn)
	ind.Fitness = fn(ind.Fitness)
	ind.TuningError = fn(ind.TuningError)
	return ind
}

func mapRun(run model.RunRecord, fn func(float64) float64) model.RunRecord {
	r := run.Result
	r.Best = mapIndividual(r.Best, fn)
	r.ComputedFrequencies = mapSlice(r.ComputedFrequencies, fn)
	r.TargetFrequencies = mapSlice(r.TargetFrequencies, fn)
	r.CentsErrors = mapSlice(r.CentsErrors, fn)
	r.BestByGeneration = mapSlice(r.BestByGeneration, fn)
	r.TuningError = fn(r.TuningError)
	run.Result = r
	run.Targets = mapSlice(run.Targets, fn)
	return run
}

func EncodeRun(run model.RunRecord) ([]byte, error) {
	return json.Marshal(mapRun(run, toFinite))
}

func DecodeRun(data []byte) (model.RunRecord, error) {
	var run model.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return model.RunRecord{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.RunRecord{}, err
	}
	return mapRun(run, fromFinite), nil
}

func EncodeGenerationDiagnostics(diagnostics []model.GenerationDiagnostics) ([]byte, error) {
	out := make([]model.GenerationDiagnostics, len(diagnostics))
	for i, d := range diagnostics {
		out[i] = mapDiagnostics(d, toFinite)
	}
	return json.Marshal(out)
}

func DecodeGenerationDiagnostics(data []byte) ([]model.GenerationDiagnostics, error) {
	var diagnostics []model.GenerationDiagnostics
	if err := json.Unmarshal(data, &diagnostics); err != nil {
		return nil, err
	}
	for i := range diagnostics {
		diagnostics[i] = mapDiagnostics(diagnostics[i], fromFinite)
	}
	return diagnostics, nil
}

func mapDiagnostics(d model.GenerationDiagnostics, fn func(float64) float64) model.GenerationDiagnostics {
	d.BestFitness = fn(d.BestFitness)
	d.MeanFitness = fn(d.MeanFitness)
	d.WorstFitness = fn(d.WorstFitness)
	d.StdDevFitness = fn(d.StdDevFitness)
	d.BestTuningError = fn(d.BestTuningError)
	return d
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
