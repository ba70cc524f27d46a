package tonebar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"tonebar/internal/catalog"
	"tonebar/internal/fem"
	"tonebar/internal/genecode"
	"tonebar/internal/geometry"
	"tonebar/internal/lengthfinder"
	"tonebar/internal/model"
	"tonebar/internal/pitch"
	"tonebar/internal/platform"
	"tonebar/internal/stats"
	"tonebar/internal/storage"
)

const (
	defaultArtifactsDir = "runs"
	defaultExportsDir   = "exports"
	defaultDBPath       = "tonebar.db"
	defaultNumModes     = 3
	defaultNumElements  = 60
)

type Options struct {
	// StoreKind is memory, sqlite or postgres.
	StoreKind string
	// DSN is the sqlite file or the postgres connection string.
	DSN          string
	ArtifactsDir string
	ExportsDir   string
	// SkipArtifacts disables writing run artifacts after each optimization.
	SkipArtifacts bool
	Logger        logrus.FieldLogger
}

type Client struct {
	store    storage.Store
	workshop *platform.Workshop
	log      logrus.FieldLogger

	artifactsDir  string
	exportsDir    string
	skipArtifacts bool
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = "memory"
	}
	dsn := opts.DSN
	if dsn == "" && storeKind == "sqlite" {
		dsn = defaultDBPath
	}
	artifactsDir := opts.ArtifactsDir
	if artifactsDir == "" {
		artifactsDir = defaultArtifactsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	log := opts.Logger
	if log == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		log = discard
	}

	store, err := storage.NewStore(storeKind, dsn)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:         store,
		workshop:      platform.NewWorkshop(platform.Config{Store: store, Logger: log}),
		log:           log,
		artifactsDir:  artifactsDir,
		exportsDir:    exportsDir,
		skipArtifacts: opts.SkipArtifacts,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	return c.workshop.Init(ctx)
}

// FrequencyRequest describes a bar to analyse. Material may be given by
// MaterialName from the built-in catalog instead.
type FrequencyRequest struct {
	Bar          model.BarParameters
	Material     model.Material
	MaterialName string
	Geometry     model.Geometry
	NumModes     int
	NumElements  int
	MaxTrim      float64
	MaxExtend    float64
}

// ComputeFrequencies returns the first NumModes elastic frequencies in Hz.
func (c *Client) ComputeFrequencies(req FrequencyRequest) ([]float64, error) {
	material, err := resolveMaterial(req.Material, req.MaterialName)
	if err != nil {
		return nil, err
	}
	if req.NumModes <= 0 {
		req.NumModes = defaultNumModes
	}
	if req.NumElements <= 0 {
		req.NumElements = defaultNumElements
	}
	lengthAdjust := req.Geometry.LengthAdjust != nil
	if lengthAdjust && req.MaxTrim == 0 && req.MaxExtend == 0 {
		// no explicit limits: honour the requested adjustment within the bar
		req.MaxTrim = req.Bar.L / 2
		req.MaxExtend = req.Bar.L
	}
	return fem.ComputeFrequencies(geometry.Encode(req.Geometry), req.Bar, material, fem.Options{
		NumModes:     req.NumModes,
		NumElements:  req.NumElements,
		LengthAdjust: lengthAdjust,
		MaxTrim:      req.MaxTrim,
		MaxExtend:    req.MaxExtend,
	})
}

// LengthRequest is a length search for a uniform bar.
type LengthRequest struct {
	lengthfinder.Request
	MaterialName string
}

func (c *Client) FindOptimalLength(req LengthRequest) (model.LengthResult, error) {
	material, err := resolveMaterial(req.Material, req.MaterialName)
	if err != nil {
		return model.LengthResult{}, err
	}
	req.Material = material
	return lengthfinder.FindOptimalLength(req.Request)
}

// FindLengthsForNotes resolves note names such as "A4" or "C#5" and searches
// a length for each in order.
func (c *Client) FindLengthsForNotes(notes []string, req LengthRequest, progress lengthfinder.ProgressFunc) ([]model.LengthResult, error) {
	material, err := resolveMaterial(req.Material, req.MaterialName)
	if err != nil {
		return nil, err
	}
	req.Material = material
	targets := make([]lengthfinder.NoteTarget, 0, len(notes))
	for _, name := range notes {
		f, err := pitch.NoteFrequency(name)
		if err != nil {
			return nil, err
		}
		targets = append(targets, lengthfinder.NoteTarget{Name: name, Frequency: f})
	}
	return lengthfinder.FindLengthsForNotes(targets, req.Request, progress)
}

// OptimizeRequest describes one undercut search. Targets may be given
// directly, or as a preset name with a fundamental.
type OptimizeRequest struct {
	RunID         string
	Bar           model.BarParameters
	Material      model.Material
	MaterialName  string
	Targets       []float64
	Preset        string
	Fundamental   float64
	NumCuts       int
	PenaltyType   model.PenaltyType
	PenaltyWeight float64
	// Params left as the zero value selects model.DefaultEAParameters.
	Params model.EAParameters
	Seeds  [][]float64
	// SeedCodes are gene codes as printed in run summaries.
	SeedCodes []string
}

type RunSummary struct {
	RunID        string
	ArtifactsDir string
	Result       model.OptimizationResult
}

// RunEvolutionaryAlgorithm blocks until the search stops. onProgress and
// cancelled run on the calling goroutine's side of the run; a true from
// cancelled stops the search at the next generation boundary.
func (c *Client) RunEvolutionaryAlgorithm(
	ctx context.Context,
	req OptimizeRequest,
	onProgress func(model.ProgressUpdate),
	cancelled func() bool,
) (RunSummary, error) {
	platformReq, err := c.optimizationRequest(req)
	if err != nil {
		return RunSummary{}, err
	}
	if platformReq.RunID == "" {
		platformReq.RunID = uuid.NewString()
	}
	if err := c.workshop.Init(ctx); err != nil {
		return RunSummary{}, err
	}

	result, err := c.workshop.RunSync(ctx, platformReq, onProgress, cancelled)
	if err != nil {
		return RunSummary{}, err
	}
	summary := RunSummary{RunID: platformReq.RunID, Result: result}
	if c.skipArtifacts {
		return summary, nil
	}

	dir, err := c.writeArtifacts(context.WithoutCancel(ctx), c.artifactsDir, platformReq.RunID)
	if err != nil {
		return RunSummary{}, err
	}
	summary.ArtifactsDir = dir
	return summary, nil
}

func (c *Client) optimizationRequest(req OptimizeRequest) (platform.OptimizationRequest, error) {
	material, err := resolveMaterial(req.Material, req.MaterialName)
	if err != nil {
		return platform.OptimizationRequest{}, err
	}
	targets := append([]float64(nil), req.Targets...)
	if len(targets) == 0 && req.Preset != "" {
		ratios, err := catalog.TuningPreset(req.Preset)
		if err != nil {
			return platform.OptimizationRequest{}, err
		}
		if req.Fundamental <= 0 {
			return platform.OptimizationRequest{}, errors.New("preset targets require a fundamental frequency")
		}
		targets = catalog.TargetFrequencies(req.Fundamental, ratios)
	}
	if len(targets) == 0 {
		return platform.OptimizationRequest{}, errors.New("target frequencies or a preset are required")
	}

	params := req.Params
	if params == (model.EAParameters{}) {
		params = model.DefaultEAParameters()
	}
	applyParamDefaults(&params)

	seeds := make([][]float64, 0, len(req.Seeds)+len(req.SeedCodes))
	for _, s := range req.Seeds {
		seeds = append(seeds, append([]float64(nil), s...))
	}
	for i, code := range req.SeedCodes {
		genes, err := genecode.Decode(code)
		if err != nil {
			return platform.OptimizationRequest{}, fmt.Errorf("seed code %d: %w", i, err)
		}
		seeds = append(seeds, genes)
	}

	return platform.OptimizationRequest{
		RunID:         req.RunID,
		Bar:           req.Bar,
		Material:      material,
		Targets:       targets,
		NumCuts:       req.NumCuts,
		PenaltyType:   req.PenaltyType,
		PenaltyWeight: req.PenaltyWeight,
		Params:        params,
		Seeds:         seeds,
	}, nil
}

func applyParamDefaults(p *model.EAParameters) {
	defaults := model.DefaultEAParameters()
	if p.PopulationSize <= 0 {
		p.PopulationSize = defaults.PopulationSize
	}
	if p.ElitismPercent == 0 && p.CrossoverPercent == 0 && p.MutationPercent == 0 {
		p.ElitismPercent = defaults.ElitismPercent
		p.CrossoverPercent = defaults.CrossoverPercent
		p.MutationPercent = defaults.MutationPercent
	}
	if p.MaxGenerations <= 0 {
		p.MaxGenerations = defaults.MaxGenerations
	}
	if p.NumElements <= 0 {
		p.NumElements = defaults.NumElements
	}
	if p.F1Priority == 0 {
		p.F1Priority = defaults.F1Priority
	}
	if p.Selection == "" {
		p.Selection = defaults.Selection
	}
	if p.SelectionPressure == 0 {
		p.SelectionPressure = defaults.SelectionPressure
	}
	if p.TournamentSize <= 0 {
		p.TournamentSize = defaults.TournamentSize
	}
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID          string
	CreatedAtUTC   string
	Material       string
	NumCuts        int
	Generations    int
	StopReason     model.StopReason
	TuningError    float64
	ElapsedSeconds float64
}

// Runs lists stored runs, newest first.
func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}
	if err := c.workshop.Init(ctx); err != nil {
		return nil, err
	}
	runs, err := c.workshop.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	if len(runs) > req.Limit {
		runs = runs[:req.Limit]
	}
	out := make([]RunItem, 0, len(runs))
	for _, r := range runs {
		out = append(out, RunItem{
			RunID:          r.ID,
			CreatedAtUTC:   r.CreatedAtUTC,
			Material:       r.Material.Name,
			NumCuts:        r.NumCuts,
			Generations:    r.Result.Generations,
			StopReason:     r.Result.StopReason,
			TuningError:    r.Result.TuningError,
			ElapsedSeconds: r.ElapsedSeconds,
		})
	}
	return out, nil
}

// GetRun loads one stored run.
func (c *Client) GetRun(ctx context.Context, runID string) (model.RunRecord, error) {
	if err := c.workshop.Init(ctx); err != nil {
		return model.RunRecord{}, err
	}
	run, ok, err := c.workshop.GetRun(ctx, runID)
	if err != nil {
		return model.RunRecord{}, err
	}
	if !ok {
		return model.RunRecord{}, fmt.Errorf("%w: %s", platform.ErrRunNotFound, runID)
	}
	return run, nil
}

func (c *Client) DeleteRun(ctx context.Context, runID string) error {
	if err := c.workshop.Init(ctx); err != nil {
		return err
	}
	ok, err := c.workshop.DeleteRun(ctx, runID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", platform.ErrRunNotFound, runID)
	}
	return nil
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

// Export writes the artifacts of a stored run into OutDir and records it in
// that directory's run index.
func (c *Client) Export(ctx context.Context, req ExportRequest) (ExportSummary, error) {
	if req.RunID != "" && req.Latest {
		return ExportSummary{}, errors.New("use either run id or latest")
	}
	if req.RunID == "" && !req.Latest {
		return ExportSummary{}, errors.New("export requires run id or latest")
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}

	runID := req.RunID
	if req.Latest {
		items, err := c.Runs(ctx, RunsRequest{Limit: 1})
		if err != nil {
			return ExportSummary{}, err
		}
		if len(items) == 0 {
			return ExportSummary{}, errors.New("no runs available to export")
		}
		runID = items[0].RunID
	}

	dir, err := c.writeArtifacts(ctx, req.OutDir, runID)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(dir)}, nil
}

// ArtifactIndex lists the runs recorded in the artifacts directory.
func (c *Client) ArtifactIndex() ([]stats.RunIndexEntry, error) {
	return stats.ListRunIndex(c.artifactsDir)
}

func (c *Client) writeArtifacts(ctx context.Context, baseDir, runID string) (string, error) {
	run, err := c.GetRun(ctx, runID)
	if err != nil {
		return "", err
	}
	diagnostics, _, err := c.workshop.Diagnostics(ctx, runID)
	if err != nil {
		return "", err
	}
	dir, err := stats.WriteRunArtifacts(baseDir, stats.RunArtifacts{Run: run, Diagnostics: diagnostics})
	if err != nil {
		return "", err
	}
	if err := stats.AppendRunIndex(baseDir, stats.IndexEntry(run)); err != nil {
		return "", err
	}
	return dir, nil
}

// Materials lists the built-in material catalog.
func Materials() []model.Material {
	return catalog.Materials()
}

// Presets lists the built-in tuning ratio presets.
func Presets() []string {
	return catalog.TuningPresetNames()
}

func resolveMaterial(m model.Material, name string) (model.Material, error) {
	if name == "" {
		if m.Name == "" && m.E == 0 {
			return model.Material{}, errors.New("material or material name is required")
		}
		return m, nil
	}
	return catalog.Material(name)
}
