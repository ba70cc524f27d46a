package model

import (
	"errors"
	"fmt"
	"math"
)

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

var ErrInvalidBar = errors.New("invalid bar parameters")

// Material is borrowed, read-only reference data for a solver call.
type Material struct {
	Name     string  `json:"name" yaml:"name"`
	E        float64 `json:"e" yaml:"e"`
	Rho      float64 `json:"rho" yaml:"rho"`
	Nu       float64 `json:"nu" yaml:"nu"`
	Category string  `json:"category" yaml:"category"`
}

func (m Material) Validate() error {
	if m.E <= 0 || m.Rho <= 0 {
		return fmt.Errorf("material %q: modulus and density must be > 0", m.Name)
	}
	if m.Nu <= -1 || m.Nu >= 0.5 {
		return fmt.Errorf("material %q: poisson ratio must be in (-1, 0.5)", m.Name)
	}
	return nil
}

// BarParameters describes the blank bar. Lengths are in meters.
type BarParameters struct {
	L    float64 `json:"length" yaml:"length"`
	B    float64 `json:"width" yaml:"width"`
	H0   float64 `json:"thickness" yaml:"thickness"`
	HMin float64 `json:"min_thickness" yaml:"min_thickness"`
}

func (b BarParameters) Validate() error {
	if b.L <= 0 {
		return fmt.Errorf("%w: length must be > 0", ErrInvalidBar)
	}
	if b.B <= 0 {
		return fmt.Errorf("%w: width must be > 0", ErrInvalidBar)
	}
	if b.HMin <= 0 || b.H0 <= b.HMin {
		return fmt.Errorf("%w: require thickness > min thickness > 0", ErrInvalidBar)
	}
	return nil
}

// Cut is a symmetric undercut: thickness H from the bar center out to Lambda
// on both sides.
type Cut struct {
	Lambda float64 `json:"lambda" yaml:"lambda"`
	H      float64 `json:"h" yaml:"h"`
}

// Geometry is the tagged form of a gene vector.
type Geometry struct {
	Cuts         []Cut    `json:"cuts" yaml:"cuts"`
	LengthAdjust *float64 `json:"length_adjust,omitempty" yaml:"length_adjust,omitempty"`
}

type Individual struct {
	Genes       []float64 `json:"genes"`
	Sigmas      []float64 `json:"sigmas,omitempty"`
	Fitness     float64   `json:"fitness"`
	TuningError float64   `json:"tuning_error"`
	Evaluated   bool      `json:"evaluated"`
}

func NewIndividual(genes []float64) Individual {
	return Individual{
		Genes:       append([]float64(nil), genes...),
		Fitness:     math.NaN(),
		TuningError: math.NaN(),
	}
}

// Clone returns a deep copy; step sizes are never shared between individuals.
func (ind Individual) Clone() Individual {
	out := ind
	out.Genes = append([]float64(nil), ind.Genes...)
	if ind.Sigmas != nil {
		out.Sigmas = append([]float64(nil), ind.Sigmas...)
	}
	return out
}

type PenaltyType string

const (
	PenaltyNone      PenaltyType = "none"
	PenaltyVolume    PenaltyType = "volume"
	PenaltyRoughness PenaltyType = "roughness"
	PenaltyCombined  PenaltyType = "combined"
)

func ParsePenaltyType(s string) (PenaltyType, error) {
	switch PenaltyType(s) {
	case "", PenaltyNone:
		return PenaltyNone, nil
	case PenaltyVolume, PenaltyRoughness, PenaltyCombined:
		return PenaltyType(s), nil
	default:
		return "", fmt.Errorf("unsupported penalty type: %s", s)
	}
}

type EAParameters struct {
	PopulationSize    int     `json:"population_size" yaml:"population_size"`
	ElitismPercent    float64 `json:"elitism_percent" yaml:"elitism_percent"`
	CrossoverPercent  float64 `json:"crossover_percent" yaml:"crossover_percent"`
	MutationPercent   float64 `json:"mutation_percent" yaml:"mutation_percent"`
	MutationStrength  float64 `json:"mutation_strength" yaml:"mutation_strength"`
	MaxGenerations    int     `json:"max_generations" yaml:"max_generations"`
	TargetError       float64 `json:"target_error" yaml:"target_error"`
	NumElements       int     `json:"num_elements" yaml:"num_elements"`
	F1Priority        float64 `json:"f1_priority" yaml:"f1_priority"`
	MinCutWidth       float64 `json:"min_cut_width" yaml:"min_cut_width"`
	MaxCutWidth       float64 `json:"max_cut_width" yaml:"max_cut_width"`
	MinCutDepth       float64 `json:"min_cut_depth" yaml:"min_cut_depth"`
	MaxCutDepth       float64 `json:"max_cut_depth" yaml:"max_cut_depth"`
	MaxLengthTrim     float64 `json:"max_length_trim" yaml:"max_length_trim"`
	MaxLengthExtend   float64 `json:"max_length_extend" yaml:"max_length_extend"`
	MaxCores          int     `json:"max_cores" yaml:"max_cores"`
	Selection         string  `json:"selection" yaml:"selection"`
	SelectionPressure float64 `json:"selection_pressure" yaml:"selection_pressure"`
	TournamentSize    int     `json:"tournament_size" yaml:"tournament_size"`
	SelfAdaptive      bool    `json:"self_adaptive" yaml:"self_adaptive"`
	// RefineAttempts bounds the hill climb applied to the final best when a
	// run ends on its generation limit. Zero disables it.
	RefineAttempts int `json:"refine_attempts" yaml:"refine_attempts"`
	// RefineSelection picks which vectors each attempt perturbs; empty means
	// best_so_far.
	RefineSelection      string  `json:"refine_selection" yaml:"refine_selection"`
	RefineMinImprovement float64 `json:"refine_min_improvement" yaml:"refine_min_improvement"`
	Seed                 int64   `json:"seed" yaml:"seed"`
}

func DefaultEAParameters() EAParameters {
	return EAParameters{
		PopulationSize:    50,
		ElitismPercent:    10,
		CrossoverPercent:  30,
		MutationPercent:   60,
		MutationStrength:  0.1,
		MaxGenerations:    100,
		TargetError:       0.01,
		NumElements:       60,
		F1Priority:        1,
		Selection:         "tournament",
		SelectionPressure: 1.7,
		TournamentSize:    3,
		Seed:              1,
	}
}

// LengthAdjustEnabled reports whether the gene vector carries a trailing
// length adjustment gene.
func (p EAParameters) LengthAdjustEnabled() bool {
	return p.MaxLengthTrim > 0 || p.MaxLengthExtend > 0
}

func (p EAParameters) GeneCount(numCuts int) int {
	n := 2 * numCuts
	if p.LengthAdjustEnabled() {
		n++
	}
	return n
}

type StopReason string

const (
	StopConverged      StopReason = "converged"
	StopMaxGenerations StopReason = "max_generations"
	StopCancelled      StopReason = "cancelled"
)

type ProgressUpdate struct {
	Generation          int        `json:"generation"`
	BestFitness         float64    `json:"best_fitness"`
	AverageFitness      float64    `json:"average_fitness"`
	Best                Individual `json:"best"`
	ComputedFrequencies []float64  `json:"computed_frequencies"`
	CentsErrors         []float64  `json:"cents_errors"`
	LengthTrim          float64    `json:"length_trim"`
}

type OptimizationResult struct {
	Best                Individual `json:"best" yaml:"best"`
	Cuts                []Cut      `json:"cuts" yaml:"cuts"`
	LengthAdjust        float64    `json:"length_adjust" yaml:"length_adjust"`
	ComputedFrequencies []float64  `json:"computed_frequencies" yaml:"computed_frequencies"`
	TargetFrequencies   []float64  `json:"target_frequencies" yaml:"target_frequencies"`
	TuningError         float64    `json:"tuning_error" yaml:"tuning_error"`
	CentsErrors         []float64  `json:"cents_errors" yaml:"cents_errors"`
	VolumePercent       float64    `json:"volume_percent" yaml:"volume_percent"`
	RoughnessPercent    float64    `json:"roughness_percent" yaml:"roughness_percent"`
	Generations         int        `json:"generations" yaml:"generations"`
	EffectiveLength     float64    `json:"effective_length" yaml:"effective_length"`
	StopReason          StopReason `json:"stop_reason" yaml:"stop_reason"`
	BestByGeneration    []float64  `json:"best_by_generation" yaml:"best_by_generation"`
}

type GenerationDiagnostics struct {
	Generation      int     `json:"generation"`
	BestFitness     float64 `json:"best_fitness"`
	MeanFitness     float64 `json:"mean_fitness"`
	WorstFitness    float64 `json:"worst_fitness"`
	StdDevFitness   float64 `json:"stddev_fitness"`
	BestTuningError float64 `json:"best_tuning_error"`
	FailedCount     int     `json:"failed_count"`
}

// RunRecord is the persisted summary of one optimization run.
type RunRecord struct {
	VersionedRecord
	ID             string             `json:"id"`
	CreatedAtUTC   string             `json:"created_at_utc"`
	Bar            BarParameters      `json:"bar"`
	Material       Material           `json:"material"`
	Targets        []float64          `json:"targets"`
	NumCuts        int                `json:"num_cuts"`
	PenaltyType    PenaltyType        `json:"penalty_type"`
	PenaltyWeight  float64            `json:"penalty_weight"`
	Parameters     EAParameters       `json:"parameters"`
	Result         OptimizationResult `json:"result"`
	ElapsedSeconds float64            `json:"elapsed_seconds"`
}

type LengthResult struct {
	Note         string  `json:"note,omitempty"`
	Target       float64 `json:"target"`
	Length       float64 `json:"length"`
	ComputedFreq float64 `json:"computed_freq"`
	Iterations   int     `json:"iterations"`
	ErrorCents   float64 `json:"error_cents"`
}
