package evo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"runtime"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/time/rate"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"tonebar/internal/fem"
	"tonebar/internal/geometry"
	"tonebar/internal/model"
	"tonebar/internal/objective"
	"tonebar/internal/tuning"
)

var ErrInvalidParameters = errors.New("invalid optimizer parameters")

const defaultRefineStep = 0.05

// ScoredIndividual is a population slot after evaluation.
type ScoredIndividual struct {
	Individual  model.Individual
	Frequencies []float64
	Penalty     float64
}

func (s ScoredIndividual) clone() ScoredIndividual {
	return ScoredIndividual{
		Individual:  s.Individual.Clone(),
		Frequencies: append([]float64(nil), s.Frequencies...),
		Penalty:     s.Penalty,
	}
}

type RunResult struct {
	Result          model.OptimizationResult
	Diagnostics     []model.GenerationDiagnostics
	FinalPopulation []ScoredIndividual
}

type Config struct {
	Problem objective.Problem
	NumCuts int
	Params  model.EAParameters
	// Seeds are injected into the initial population before random fill.
	Seeds [][]float64
	// Progress is called once per generation, before termination checks.
	Progress func(model.ProgressUpdate)
	// Cancelled is polled at generation boundaries.
	Cancelled func() bool
	Logger    logrus.FieldLogger
}

type Optimizer struct {
	cfg       Config
	rng       *rand.Rand
	bounds    Bounds
	selector  Selector
	mutation  Operator
	crossover Crossover
	evaluator objective.Evaluator
	workers   int
	arena     []*fem.Workspace
	logLimit  *rate.Limiter
}

func NewOptimizer(cfg Config) (*Optimizer, error) {
	p := cfg.Params
	if err := cfg.Problem.Bar.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Problem.Material.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParameters, err)
	}
	if len(cfg.Problem.Targets) == 0 {
		return nil, fmt.Errorf("%w: at least one target frequency is required", ErrInvalidParameters)
	}
	for i, f := range cfg.Problem.Targets {
		if !(f > 0) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("%w: target frequency %d must be > 0", ErrInvalidParameters, i)
		}
	}
	if p.PopulationSize < 2 {
		return nil, fmt.Errorf("%w: population size must be >= 2", ErrInvalidParameters)
	}
	if p.ElitismPercent < 0 || p.CrossoverPercent < 0 || p.MutationPercent < 0 {
		return nil, fmt.Errorf("%w: operator percentages must be >= 0", ErrInvalidParameters)
	}
	if math.Abs(p.ElitismPercent+p.CrossoverPercent+p.MutationPercent-100) > 1e-6 {
		return nil, fmt.Errorf("%w: elitism, crossover and mutation percentages must sum to 100", ErrInvalidParameters)
	}
	if p.MaxGenerations <= 0 {
		return nil, fmt.Errorf("%w: max generations must be > 0", ErrInvalidParameters)
	}
	if p.NumElements <= 0 {
		return nil, fmt.Errorf("%w: number of elements must be > 0", ErrInvalidParameters)
	}
	if p.MutationStrength < 0 {
		return nil, fmt.Errorf("%w: mutation strength must be >= 0", ErrInvalidParameters)
	}
	if p.TargetError < 0 {
		return nil, fmt.Errorf("%w: target error must be >= 0", ErrInvalidParameters)
	}
	if p.F1Priority == 0 {
		p.F1Priority = 1
	}
	if p.F1Priority < 1 {
		return nil, fmt.Errorf("%w: f1 priority must be >= 1", ErrInvalidParameters)
	}
	if p.MaxCores < 0 {
		return nil, fmt.Errorf("%w: max cores must be >= 0", ErrInvalidParameters)
	}
	if p.RefineAttempts < 0 {
		return nil, fmt.Errorf("%w: refine attempts must be >= 0", ErrInvalidParameters)
	}
	if !tuning.ValidCandidateSelection(p.RefineSelection) {
		return nil, fmt.Errorf("%w: unsupported refine selection: %s", ErrInvalidParameters, p.RefineSelection)
	}
	if p.RefineMinImprovement < 0 {
		return nil, fmt.Errorf("%w: refine min improvement must be >= 0", ErrInvalidParameters)
	}
	if p.Selection == "rank" {
		if p.SelectionPressure == 0 {
			p.SelectionPressure = model.DefaultEAParameters().SelectionPressure
		}
		if !(p.SelectionPressure >= 1 && p.SelectionPressure <= 2) {
			return nil, fmt.Errorf("%w: rank selection pressure must be in [1, 2]", ErrInvalidParameters)
		}
	}

	bounds, err := NewBounds(cfg.Problem.Bar, p, cfg.NumCuts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParameters, err)
	}
	if bounds.GeneCount() == 0 {
		return nil, fmt.Errorf("%w: nothing to optimize without cuts or length adjustment", ErrInvalidParameters)
	}
	for i, seed := range cfg.Seeds {
		if len(seed) != bounds.GeneCount() {
			return nil, fmt.Errorf("%w: seed %d has %d genes, want %d", ErrInvalidParameters, i, len(seed), bounds.GeneCount())
		}
	}
	selector, err := NewSelector(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParameters, err)
	}

	cfg.Params = p
	cfg.Problem.F1Priority = p.F1Priority
	cfg.Problem.NumElements = p.NumElements
	cfg.Problem.MaxTrim = p.MaxLengthTrim
	cfg.Problem.MaxExtend = p.MaxLengthExtend
	if cfg.Logger == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		cfg.Logger = discard
	}
	if cfg.Cancelled == nil {
		cfg.Cancelled = func() bool { return false }
	}

	workers := runtime.NumCPU()
	if p.MaxCores > 0 && p.MaxCores < workers {
		workers = p.MaxCores
	}
	arena := make([]*fem.Workspace, p.PopulationSize)
	for i := range arena {
		arena[i] = fem.NewWorkspace()
	}

	rng := rand.New(rand.NewSource(p.Seed))
	return &Optimizer{
		cfg:       cfg,
		rng:       rng,
		bounds:    bounds,
		selector:  selector,
		mutation:  &GaussianMutation{Rand: rng, Bounds: bounds, Strength: p.MutationStrength, SelfAdaptive: p.SelfAdaptive},
		crossover: &BlendCrossover{Rand: rng, Bounds: bounds},
		evaluator: objective.Evaluator{Problem: cfg.Problem},
		workers:   workers,
		arena:     arena,
		logLimit:  rate.NewLimiter(rate.Every(time.Second), 1),
	}, nil
}

// Bounds exposes the gene limits in use.
func (o *Optimizer) Bounds() Bounds {
	return o.bounds
}

// Run evolves until the best tuning error reaches the target, the
// generation limit is hit, or cancellation is observed. Cancellation is a
// stop reason, not an error.
func (o *Optimizer) Run(ctx context.Context) (RunResult, error) {
	p := o.cfg.Params
	log := o.cfg.Logger.WithFields(logrus.Fields{
		"population":  p.PopulationSize,
		"generations": p.MaxGenerations,
		"genes":       o.bounds.GeneCount(),
		"workers":     o.workers,
		"selection":   o.selector.Name(),
	})
	log.Info("optimization started")

	population := o.initialPopulation()
	bestHistory := make([]float64, 0, p.MaxGenerations)
	diagnostics := make([]model.GenerationDiagnostics, 0, p.MaxGenerations)

	for gen := 1; ; gen++ {
		o.evaluatePopulation(population)
		sort.SliceStable(population, func(i, j int) bool {
			return population[i].Individual.Fitness < population[j].Individual.Fitness
		})
		best := population[0]
		bestHistory = append(bestHistory, best.Individual.Fitness)
		diag := summarizeGeneration(population, gen)
		diagnostics = append(diagnostics, diag)

		if o.cfg.Progress != nil {
			o.cfg.Progress(o.progress(gen, best, diag))
		}
		entry := log.WithFields(logrus.Fields{
			"generation":   gen,
			"best":         best.Individual.Fitness,
			"tuning_error": best.Individual.TuningError,
		})
		if o.logLimit.Allow() {
			entry.Info("generation complete")
		} else {
			entry.Debug("generation complete")
		}

		var reason model.StopReason
		switch {
		case best.Individual.TuningError <= p.TargetError:
			reason = model.StopConverged
		case gen >= p.MaxGenerations:
			reason = model.StopMaxGenerations
		case ctx.Err() != nil || o.cfg.Cancelled():
			reason = model.StopCancelled
		}
		if reason != "" {
			if reason == model.StopMaxGenerations && p.RefineAttempts > 0 {
				if refined, ok := o.refine(ctx, best, log); ok {
					best = refined
					population[0] = refined
				}
			}
			result := o.buildResult(best, gen, reason, bestHistory)
			log.WithFields(logrus.Fields{
				"generation":   gen,
				"stop_reason":  reason,
				"tuning_error": result.TuningError,
			}).Info("optimization finished")
			final := make([]ScoredIndividual, len(population))
			for i := range population {
				final[i] = population[i].clone()
			}
			return RunResult{Result: result, Diagnostics: diagnostics, FinalPopulation: final}, nil
		}

		next, err := o.nextGeneration(ctx, population)
		if err != nil {
			if ctx.Err() != nil {
				result := o.buildResult(best, gen, model.StopCancelled, bestHistory)
				return RunResult{Result: result, Diagnostics: diagnostics}, nil
			}
			return RunResult{}, err
		}
		population = next
	}
}

// refine polishes the final best with a bounded hill climb. The per-generation
// history is left as evolved; only the returned best can improve.
func (o *Optimizer) refine(ctx context.Context, best ScoredIndividual, log logrus.FieldLogger) (ScoredIndividual, bool) {
	climber := o.newRefiner()
	ws := o.arena[0]
	res, err := climber.Tune(ctx, best.Individual.Genes, o.cfg.Params.RefineAttempts, func(_ context.Context, genes []float64) (float64, error) {
		return o.evaluator.Evaluate(genes, ws).Fitness, nil
	})
	if err != nil {
		log.WithError(err).Warn("refinement skipped")
		return best, false
	}
	if !(res.Fitness < best.Individual.Fitness) {
		return best, false
	}

	score := o.evaluator.Evaluate(res.Genes, ws)
	ind := best.Individual.Clone()
	ind.Genes = res.Genes
	ind.Fitness = score.Fitness
	ind.TuningError = score.TuningError
	ind.Evaluated = true
	log.WithFields(logrus.Fields{
		"tuner":        climber.Name(),
		"before":       best.Individual.Fitness,
		"after":        score.Fitness,
		"accepted":     res.Report.AcceptedCandidates,
		"candidates":   res.Report.CandidateEvaluations,
		"goal_reached": res.Report.GoalReached,
	}).Info("refinement improved best")
	return ScoredIndividual{Individual: ind, Frequencies: score.Frequencies, Penalty: score.Penalty}, true
}

// newRefiner configures the hill climb from the run parameters. Without a
// penalty the fitness is the tuning error, so the run's target error doubles
// as the climb's goal.
func (o *Optimizer) newRefiner() *tuning.HillClimber {
	p := o.cfg.Params
	step := p.MutationStrength
	if step <= 0 {
		step = defaultRefineStep
	}
	climber := &tuning.HillClimber{
		Rand:               o.rng,
		Box:                o.bounds,
		Steps:              2,
		StepSize:           step,
		AnnealingFactor:    0.5,
		MinImprovement:     p.RefineMinImprovement,
		CandidateSelection: p.RefineSelection,
	}
	if o.cfg.Problem.PenaltyWeight == 0 && p.TargetError > 0 {
		climber.SetGoalFitness(p.TargetError)
	}
	return climber
}

func (o *Optimizer) initialPopulation() []ScoredIndividual {
	p := o.cfg.Params
	population := make([]ScoredIndividual, 0, p.PopulationSize)
	for _, seed := range o.cfg.Seeds {
		if len(population) == p.PopulationSize {
			break
		}
		population = append(population, ScoredIndividual{Individual: o.newIndividual(seed)})
	}
	for len(population) < p.PopulationSize {
		population = append(population, ScoredIndividual{Individual: o.newIndividual(o.bounds.Random(o.rng))})
	}
	return population
}

func (o *Optimizer) newIndividual(genes []float64) model.Individual {
	ind := model.NewIndividual(genes)
	if o.cfg.Params.SelfAdaptive {
		ind.Sigmas = make([]float64, len(genes))
		for i := range ind.Sigmas {
			ind.Sigmas[i] = o.cfg.Params.MutationStrength
		}
	}
	o.bounds.Repair(ind.Genes, ind.Sigmas)
	return ind
}

// evaluatePopulation scores every slot not already carrying a fitness. Each
// slot owns its workspace, so workers never share scratch memory.
func (o *Optimizer) evaluatePopulation(population []ScoredIndividual) {
	p := pool.New().WithMaxGoroutines(o.workers)
	for i := range population {
		if population[i].Individual.Evaluated {
			continue
		}
		i := i
		p.Go(func() {
			score := o.evaluator.Evaluate(population[i].Individual.Genes, o.arena[i])
			population[i].Individual.Fitness = score.Fitness
			population[i].Individual.TuningError = score.TuningError
			population[i].Individual.Evaluated = true
			population[i].Frequencies = score.Frequencies
			population[i].Penalty = score.Penalty
		})
	}
	p.Wait()
}

// operatorCounts splits the population into elite, crossover and mutation
// offspring counts.
func operatorCounts(p model.EAParameters) (elite, crossover, mutation int) {
	n := p.PopulationSize
	elite = int(math.Ceil(float64(n) * p.ElitismPercent / 100))
	if p.ElitismPercent > 0 && elite < 1 {
		elite = 1
	}
	elite = min(elite, n)
	crossover = int(math.Round(float64(n) * p.CrossoverPercent / 100))
	crossover = min(crossover, n-elite)
	mutation = n - elite - crossover
	return elite, crossover, mutation
}

func (o *Optimizer) nextGeneration(ctx context.Context, ranked []ScoredIndividual) ([]ScoredIndividual, error) {
	eliteCount, crossoverCount, _ := operatorCounts(o.cfg.Params)
	next := make([]ScoredIndividual, 0, o.cfg.Params.PopulationSize)

	for i := 0; i < eliteCount; i++ {
		next = append(next, ranked[i].clone())
	}
	for i := 0; i < crossoverCount; i++ {
		a, b, err := PickPair(o.rng, o.selector, ranked)
		if err != nil {
			return nil, err
		}
		child, err := o.crossover.Cross(ctx, ranked[a].Individual, ranked[b].Individual)
		if err != nil {
			return nil, fmt.Errorf("%s crossover: %w", o.crossover.Name(), err)
		}
		next = append(next, ScoredIndividual{Individual: child})
	}
	for len(next) < o.cfg.Params.PopulationSize {
		parent, err := o.selector.PickParent(o.rng, ranked)
		if err != nil {
			return nil, err
		}
		child, err := o.mutation.Apply(ctx, ranked[parent].Individual)
		if err != nil {
			return nil, fmt.Errorf("%s mutation: %w", o.mutation.Name(), err)
		}
		next = append(next, ScoredIndividual{Individual: child})
	}
	return next, nil
}

func (o *Optimizer) progress(gen int, best ScoredIndividual, diag model.GenerationDiagnostics) model.ProgressUpdate {
	pr := o.cfg.Problem
	return model.ProgressUpdate{
		Generation:          gen,
		BestFitness:         best.Individual.Fitness,
		AverageFitness:      diag.MeanFitness,
		Best:                best.Individual.Clone(),
		ComputedFrequencies: append([]float64(nil), best.Frequencies...),
		CentsErrors:         objective.CentsErrors(best.Frequencies, pr.Targets),
		LengthTrim:          geometry.LengthAdjust(best.Individual.Genes, o.bounds.LengthAdjust, pr.MaxTrim, pr.MaxExtend),
	}
}

func (o *Optimizer) buildResult(best ScoredIndividual, gen int, reason model.StopReason, history []float64) model.OptimizationResult {
	pr := o.cfg.Problem
	genes := best.Individual.Genes
	cuts := geometry.SortCutsDescending(geometry.GenesToCuts(genes, pr.Bar, o.bounds.LengthAdjust))
	adjust := geometry.LengthAdjust(genes, o.bounds.LengthAdjust, pr.MaxTrim, pr.MaxExtend)
	length := geometry.EffectiveLength(pr.Bar.L, adjust)
	return model.OptimizationResult{
		Best:                best.Individual.Clone(),
		Cuts:                cuts,
		LengthAdjust:        adjust,
		ComputedFrequencies: append([]float64(nil), best.Frequencies...),
		TargetFrequencies:   append([]float64(nil), pr.Targets...),
		TuningError:         best.Individual.TuningError,
		CentsErrors:         objective.CentsErrors(best.Frequencies, pr.Targets),
		VolumePercent:       objective.VolumePenalty(cuts, length, pr.Bar.H0),
		RoughnessPercent:    objective.RoughnessPenalty(cuts, pr.Bar.H0),
		Generations:         gen,
		EffectiveLength:     length,
		StopReason:          reason,
		BestByGeneration:    append([]float64(nil), history...),
	}
}

// summarizeGeneration expects population sorted best first. Failed slots are
// counted but left out of the mean and spread so one sentinel does not
// swamp them.
func summarizeGeneration(population []ScoredIndividual, generation int) model.GenerationDiagnostics {
	diag := model.GenerationDiagnostics{Generation: generation}
	if len(population) == 0 {
		return diag
	}
	diag.BestFitness = population[0].Individual.Fitness
	diag.BestTuningError = population[0].Individual.TuningError

	fitness := make([]float64, 0, len(population))
	for _, item := range population {
		if item.Individual.Fitness >= objective.FailedFitness {
			diag.FailedCount++
			continue
		}
		fitness = append(fitness, item.Individual.Fitness)
	}
	if len(fitness) == 0 {
		diag.MeanFitness = objective.FailedFitness
		diag.WorstFitness = objective.FailedFitness
		return diag
	}
	diag.WorstFitness = floats.Max(fitness)
	if len(fitness) == 1 {
		diag.MeanFitness = fitness[0]
		return diag
	}
	diag.MeanFitness, diag.StdDevFitness = stat.MeanStdDev(fitness, nil)
	return diag
}
