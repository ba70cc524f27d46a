package platform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"tonebar/internal/evo"
	"tonebar/internal/model"
	"tonebar/internal/objective"
	"tonebar/internal/storage"
)

// createdAtLayout is fixed width so stored timestamps sort as strings.
const createdAtLayout = "2006-01-02T15:04:05.000000000Z"

const progressBuffer = 64

var (
	ErrNotInitialized = errors.New("workshop is not initialized")
	ErrRunNotFound    = errors.New("run not found")
)

type Config struct {
	Store  storage.Store
	Logger logrus.FieldLogger
	// Now is overridable for tests.
	Now func() time.Time
}

// OptimizationRequest describes one undercut search.
type OptimizationRequest struct {
	RunID         string
	Bar           model.BarParameters
	Material      model.Material
	Targets       []float64
	NumCuts       int
	PenaltyType   model.PenaltyType
	PenaltyWeight float64
	Params        model.EAParameters
	Seeds         [][]float64
}

// Run is a handle on an optimization executing in its own goroutine.
// Progress delivers value snapshots and is closed when the run ends.
type Run struct {
	ID       string
	Progress <-chan model.ProgressUpdate

	cancelled atomic.Bool
	done      chan struct{}

	result      model.OptimizationResult
	diagnostics []model.GenerationDiagnostics
	err         error
}

// Cancel asks the optimizer to stop at its next generation boundary.
func (r *Run) Cancel() {
	r.cancelled.Store(true)
}

// Done is closed once the result is available.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the run finishes or ctx is done.
func (r *Run) Wait(ctx context.Context) (model.OptimizationResult, error) {
	select {
	case <-r.done:
		return r.result, r.err
	case <-ctx.Done():
		return model.OptimizationResult{}, ctx.Err()
	}
}

func (r *Run) Diagnostics() []model.GenerationDiagnostics {
	select {
	case <-r.done:
		return append([]model.GenerationDiagnostics(nil), r.diagnostics...)
	default:
		return nil
	}
}

// Workshop coordinates optimization runs and persists their outcomes.
type Workshop struct {
	store storage.Store
	log   logrus.FieldLogger
	now   func() time.Time

	mu      sync.RWMutex
	started bool
	runs    map[string]*Run
}

func NewWorkshop(cfg Config) *Workshop {
	log := cfg.Logger
	if log == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		log = discard
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Workshop{
		store: cfg.Store,
		log:   log,
		now:   now,
		runs:  make(map[string]*Run),
	}
}

func (w *Workshop) Init(ctx context.Context) error {
	if w.store == nil {
		return fmt.Errorf("store is required")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	if err := w.store.Init(ctx); err != nil {
		return err
	}
	w.started = true
	return nil
}

func (w *Workshop) Started() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.started
}

// StartRun validates the request, launches the optimizer in its own
// goroutine and returns immediately. Progress snapshots that the caller does
// not drain are dropped oldest first.
func (w *Workshop) StartRun(ctx context.Context, req OptimizationRequest) (*Run, error) {
	return w.start(ctx, req, false)
}

// RunSync runs to completion. onProgress and cancelled are both invoked on
// the calling side, never from the optimizer goroutine; cancelled is polled
// after every progress update.
func (w *Workshop) RunSync(
	ctx context.Context,
	req OptimizationRequest,
	onProgress func(model.ProgressUpdate),
	cancelled func() bool,
) (model.OptimizationResult, error) {
	run, err := w.start(ctx, req, true)
	if err != nil {
		return model.OptimizationResult{}, err
	}

	var g errgroup.Group
	g.Go(func() error {
		for update := range run.Progress {
			if onProgress != nil {
				onProgress(update)
			}
			if cancelled != nil && cancelled() {
				run.Cancel()
			}
		}
		return nil
	})
	g.Go(func() error {
		// the optimizer observes ctx itself and stops as cancelled
		<-run.done
		return run.err
	})
	if err := g.Wait(); err != nil {
		return model.OptimizationResult{}, err
	}
	return run.result, nil
}

func (w *Workshop) start(ctx context.Context, req OptimizationRequest, blockingProgress bool) (*Run, error) {
	if !w.Started() {
		return nil, ErrNotInitialized
	}
	penalty, err := model.ParsePenaltyType(string(req.PenaltyType))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", evo.ErrInvalidParameters, err)
	}
	if req.PenaltyWeight < 0 || req.PenaltyWeight > 1 {
		return nil, fmt.Errorf("%w: penalty weight must be in [0, 1]", evo.ErrInvalidParameters)
	}
	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	// an unbuffered channel keeps a blocking consumer at most one generation
	// behind the optimizer
	buffer := progressBuffer
	if blockingProgress {
		buffer = 0
	}
	progress := make(chan model.ProgressUpdate, buffer)
	run := &Run{
		ID:       runID,
		Progress: progress,
		done:     make(chan struct{}),
	}

	optimizer, err := evo.NewOptimizer(evo.Config{
		Problem: objective.Problem{
			Bar:           req.Bar,
			Material:      req.Material,
			Targets:       append([]float64(nil), req.Targets...),
			PenaltyType:   penalty,
			PenaltyWeight: req.PenaltyWeight,
		},
		NumCuts: req.NumCuts,
		Params:  req.Params,
		Seeds:   req.Seeds,
		Progress: func(update model.ProgressUpdate) {
			publish(progress, update, blockingProgress)
		},
		Cancelled: run.cancelled.Load,
		Logger:    w.log.WithField("run_id", runID),
	})
	if err != nil {
		return nil, err
	}
	if err := w.registerRun(run); err != nil {
		return nil, err
	}

	createdAt := w.now().UTC()
	log := w.log.WithFields(logrus.Fields{"run_id": runID, "material": req.Material.Name, "cuts": req.NumCuts})
	log.Info("run started")

	go func() {
		defer close(run.done)
		defer w.unregisterRun(runID)
		defer close(progress)

		started := time.Now()
		res, err := optimizer.Run(ctx)
		run.result = res.Result
		run.diagnostics = res.Diagnostics
		run.err = err
		if err != nil {
			log.WithError(err).Error("run failed")
			return
		}

		record := model.RunRecord{
			VersionedRecord: model.VersionedRecord{SchemaVersion: storage.CurrentSchemaVersion, CodecVersion: storage.CurrentCodecVersion},
			ID:              runID,
			CreatedAtUTC:    createdAt.Format(createdAtLayout),
			Bar:             req.Bar,
			Material:        req.Material,
			Targets:         append([]float64(nil), req.Targets...),
			NumCuts:         req.NumCuts,
			PenaltyType:     penalty,
			PenaltyWeight:   req.PenaltyWeight,
			Parameters:      req.Params,
			Result:          res.Result,
			ElapsedSeconds:  time.Since(started).Seconds(),
		}
		// persistence outlives a cancelled caller context
		persistCtx := context.WithoutCancel(ctx)
		if err := w.store.SaveRun(persistCtx, record); err != nil {
			run.err = fmt.Errorf("save run %s: %w", runID, err)
			log.WithError(err).Error("run not persisted")
			return
		}
		if err := w.store.SaveGenerationDiagnostics(persistCtx, runID, res.Diagnostics); err != nil {
			run.err = fmt.Errorf("save diagnostics %s: %w", runID, err)
			log.WithError(err).Error("diagnostics not persisted")
			return
		}
		log.WithFields(logrus.Fields{
			"generations":  res.Result.Generations,
			"stop_reason":  res.Result.StopReason,
			"tuning_error": res.Result.TuningError,
		}).Info("run finished")
	}()
	return run, nil
}

// publish never blocks the optimizer unless blocking is set; a full buffer
// sheds its oldest snapshot.
func publish(ch chan model.ProgressUpdate, update model.ProgressUpdate, blocking bool) {
	if blocking {
		ch <- update
		return
	}
	for {
		select {
		case ch <- update:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// Cancel flags a running optimization for cancellation.
func (w *Workshop) Cancel(runID string) error {
	w.mu.RLock()
	run, ok := w.runs[runID]
	w.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	run.Cancel()
	return nil
}

// Wait returns the result of a run, from memory while it is active and from
// the store once it has finished.
func (w *Workshop) Wait(ctx context.Context, runID string) (model.OptimizationResult, error) {
	w.mu.RLock()
	run, ok := w.runs[runID]
	w.mu.RUnlock()
	if ok {
		return run.Wait(ctx)
	}
	record, found, err := w.GetRun(ctx, runID)
	if err != nil {
		return model.OptimizationResult{}, err
	}
	if !found {
		return model.OptimizationResult{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return record.Result, nil
}

// ActiveRuns lists the ids of runs still executing.
func (w *Workshop) ActiveRuns() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	ids := make([]string, 0, len(w.runs))
	for id := range w.runs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (w *Workshop) GetRun(ctx context.Context, runID string) (model.RunRecord, bool, error) {
	if !w.Started() {
		return model.RunRecord{}, false, ErrNotInitialized
	}
	return w.store.GetRun(ctx, runID)
}

func (w *Workshop) ListRuns(ctx context.Context) ([]model.RunRecord, error) {
	if !w.Started() {
		return nil, ErrNotInitialized
	}
	return w.store.ListRuns(ctx)
}

func (w *Workshop) DeleteRun(ctx context.Context, runID string) (bool, error) {
	if !w.Started() {
		return false, ErrNotInitialized
	}
	return w.store.DeleteRun(ctx, runID)
}

func (w *Workshop) Diagnostics(ctx context.Context, runID string) ([]model.GenerationDiagnostics, bool, error) {
	if !w.Started() {
		return nil, false, ErrNotInitialized
	}
	return w.store.GetGenerationDiagnostics(ctx, runID)
}

func (w *Workshop) registerRun(run *Run) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, exists := w.runs[run.ID]; exists {
		return fmt.Errorf("run already active: %s", run.ID)
	}
	w.runs[run.ID] = run
	return nil
}

func (w *Workshop) unregisterRun(runID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.runs, runID)
}
