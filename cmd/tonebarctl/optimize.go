package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"tonebar/internal/model"
	"tonebar/internal/tuning"
	"tonebar/pkg/tonebar"
)

var optimizeKeys = map[string]string{
	"optimize.targets":                "targets",
	"optimize.preset":                 "preset",
	"optimize.fundamental":            "fundamental",
	"optimize.num_cuts":               "num-cuts",
	"optimize.penalty_type":           "penalty",
	"optimize.penalty_weight":         "penalty-weight",
	"optimize.population_size":        "population",
	"optimize.max_generations":        "generations",
	"optimize.elitism_percent":        "elitism",
	"optimize.crossover_percent":      "crossover",
	"optimize.mutation_percent":       "mutation",
	"optimize.mutation_strength":      "mutation-strength",
	"optimize.target_error":           "target-error",
	"optimize.num_elements":           "elements",
	"optimize.f1_priority":            "f1-priority",
	"optimize.min_cut_width":          "min-cut-width",
	"optimize.max_cut_width":          "max-cut-width",
	"optimize.min_cut_depth":          "min-cut-depth",
	"optimize.max_cut_depth":          "max-cut-depth",
	"optimize.max_length_trim":        "max-trim",
	"optimize.max_length_extend":      "max-extend",
	"optimize.max_cores":              "workers",
	"optimize.selection":              "selection",
	"optimize.selection_pressure":     "pressure",
	"optimize.tournament_size":        "tournament-size",
	"optimize.self_adaptive":          "self-adaptive",
	"optimize.refine_attempts":        "refine",
	"optimize.refine_selection":       "refine-selection",
	"optimize.refine_min_improvement": "refine-min-improvement",
	"optimize.seed":                   "seed",
	"optimize.seed_codes":             "seed-code",
}

func newOptimizeCmd(a *app) *cobra.Command {
	var (
		runID string
		quiet bool
	)
	keys := mergeKeys(barKeys, optimizeKeys)
	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Search undercut geometry that tunes a bar to its target partials",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.bindFlags(cmd, keys)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := a.optimizeRequest()
			if err != nil {
				return err
			}
			req.RunID = runID

			return a.withClient(cmd.Context(), func(client *tonebar.Client) error {
				started := time.Now()
				onProgress := func(u model.ProgressUpdate) {
					if quiet {
						return
					}
					fmt.Fprintf(a.out, "gen %4d  best %.5f  mean %.5f\n", u.Generation, u.BestFitness, u.AverageFitness)
				}
				summary, err := client.RunEvolutionaryAlgorithm(cmd.Context(), req, onProgress, nil)
				if err != nil {
					return err
				}
				printResult(a, summary, time.Since(started))
				return nil
			})
		},
	}

	defaults := model.DefaultEAParameters()
	addBarFlags(cmd)
	f := cmd.Flags()
	f.StringVar(&runID, "run-id", "", "run id (default: generated)")
	f.BoolVar(&quiet, "quiet", false, "suppress per-generation progress")
	f.StringSlice("targets", nil, "target frequencies in Hz, lowest mode first")
	f.String("preset", "", "tuning ratio preset used with --fundamental")
	f.Float64("fundamental", 0, "fundamental frequency for --preset (Hz)")
	f.Int("num-cuts", 2, "number of undercuts")
	f.String("penalty", string(model.PenaltyNone), "penalty: none|volume|roughness|combined")
	f.Float64("penalty-weight", 0, "penalty weight in [0, 1]")
	f.Int("population", defaults.PopulationSize, "population size")
	f.Int("generations", defaults.MaxGenerations, "maximum generations")
	f.Float64("elitism", defaults.ElitismPercent, "elitism percent")
	f.Float64("crossover", defaults.CrossoverPercent, "crossover percent")
	f.Float64("mutation", defaults.MutationPercent, "mutation percent")
	f.Float64("mutation-strength", defaults.MutationStrength, "mutation strength as a fraction of each gene's range")
	f.Float64("target-error", defaults.TargetError, "stop once tuning error falls to this value")
	f.Int("elements", defaults.NumElements, "number of finite elements")
	f.Float64("f1-priority", defaults.F1Priority, "weight of the fundamental's error")
	f.Float64("min-cut-width", 0, "minimum band width (m)")
	f.Float64("max-cut-width", 0, "maximum band width (m), 0 for none")
	f.Float64("min-cut-depth", 0, "minimum cut depth (m)")
	f.Float64("max-cut-depth", 0, "maximum cut depth (m), 0 for none")
	f.Float64("max-trim", 0, "maximum length trim per end (m)")
	f.Float64("max-extend", 0, "maximum length extension per end (m)")
	f.Int("workers", 0, "evaluation workers, 0 for all cores")
	f.String("selection", defaults.Selection, "selection: roulette|tournament|rank")
	f.Float64("pressure", defaults.SelectionPressure, "rank selection pressure in [1, 2]")
	f.Int("tournament-size", defaults.TournamentSize, "tournament size")
	f.Bool("self-adaptive", false, "evolve per-gene mutation step sizes")
	f.Int("refine", 0, "hill-climb attempts on the final best, 0 to skip")
	f.String("refine-selection", tuning.CandidateSelectBestSoFar, "vectors each refine attempt perturbs: best_so_far|original|recent|dynamic|dynamic_random|all|all_random")
	f.Float64("refine-min-improvement", 0, "fitness drop a refine candidate needs to be kept")
	f.Int64("seed", defaults.Seed, "random seed")
	f.StringSlice("seed-code", nil, "gene codes injected into the first generation")
	return cmd
}

func (a *app) optimizeRequest() (tonebar.OptimizeRequest, error) {
	var targets []float64
	for _, raw := range a.v.GetStringSlice("optimize.targets") {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return tonebar.OptimizeRequest{}, fmt.Errorf("target %q: %w", raw, err)
		}
		targets = append(targets, f)
	}
	if len(targets) == 0 && a.v.GetString("optimize.preset") == "" {
		return tonebar.OptimizeRequest{}, errors.New("optimize requires --targets or --preset with --fundamental")
	}

	return tonebar.OptimizeRequest{
		Bar:           a.bar(),
		MaterialName:  a.v.GetString("material"),
		Targets:       targets,
		Preset:        a.v.GetString("optimize.preset"),
		Fundamental:   a.v.GetFloat64("optimize.fundamental"),
		NumCuts:       a.v.GetInt("optimize.num_cuts"),
		PenaltyType:   model.PenaltyType(a.v.GetString("optimize.penalty_type")),
		PenaltyWeight: a.v.GetFloat64("optimize.penalty_weight"),
		SeedCodes:     a.v.GetStringSlice("optimize.seed_codes"),
		Params: model.EAParameters{
			PopulationSize:       a.v.GetInt("optimize.population_size"),
			ElitismPercent:       a.v.GetFloat64("optimize.elitism_percent"),
			CrossoverPercent:     a.v.GetFloat64("optimize.crossover_percent"),
			MutationPercent:      a.v.GetFloat64("optimize.mutation_percent"),
			MutationStrength:     a.v.GetFloat64("optimize.mutation_strength"),
			MaxGenerations:       a.v.GetInt("optimize.max_generations"),
			TargetError:          a.v.GetFloat64("optimize.target_error"),
			NumElements:          a.v.GetInt("optimize.num_elements"),
			F1Priority:           a.v.GetFloat64("optimize.f1_priority"),
			MinCutWidth:          a.v.GetFloat64("optimize.min_cut_width"),
			MaxCutWidth:          a.v.GetFloat64("optimize.max_cut_width"),
			MinCutDepth:          a.v.GetFloat64("optimize.min_cut_depth"),
			MaxCutDepth:          a.v.GetFloat64("optimize.max_cut_depth"),
			MaxLengthTrim:        a.v.GetFloat64("optimize.max_length_trim"),
			MaxLengthExtend:      a.v.GetFloat64("optimize.max_length_extend"),
			MaxCores:             a.v.GetInt("optimize.max_cores"),
			Selection:            a.v.GetString("optimize.selection"),
			SelectionPressure:    a.v.GetFloat64("optimize.selection_pressure"),
			TournamentSize:       a.v.GetInt("optimize.tournament_size"),
			SelfAdaptive:         a.v.GetBool("optimize.self_adaptive"),
			RefineAttempts:       a.v.GetInt("optimize.refine_attempts"),
			RefineSelection:      a.v.GetString("optimize.refine_selection"),
			RefineMinImprovement: a.v.GetFloat64("optimize.refine_min_improvement"),
			Seed:                 a.v.GetInt64("optimize.seed"),
		},
	}, nil
}

func printResult(a *app, s tonebar.RunSummary, elapsed time.Duration) {
	r := s.Result
	fmt.Fprintf(a.out, "run %s: %s after %s generations in %s\n",
		s.RunID, r.StopReason, humanize.Comma(int64(r.Generations)), elapsed.Round(time.Millisecond))
	fmt.Fprintf(a.out, "tuning error %.4f  volume removed %.1f%%  roughness %.1f%%\n",
		r.TuningError, r.VolumePercent, r.RoughnessPercent)
	for i, c := range r.Cuts {
		fmt.Fprintf(a.out, "cut %d  lambda %8.2f mm  h %6.2f mm\n", i+1, c.Lambda*1000, c.H*1000)
	}
	if r.LengthAdjust != 0 {
		fmt.Fprintf(a.out, "length adjust %+.2f mm per end, effective length %.2f mm\n", r.LengthAdjust*1000, r.EffectiveLength*1000)
	}
	printFrequencies(a, r.ComputedFrequencies, r.TargetFrequencies)
	if s.ArtifactsDir != "" {
		fmt.Fprintf(a.out, "artifacts %s\n", s.ArtifactsDir)
	}
}
