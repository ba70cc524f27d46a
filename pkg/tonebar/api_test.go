package tonebar

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"tonebar/internal/genecode"
	"tonebar/internal/lengthfinder"
	"tonebar/internal/model"
	"tonebar/internal/platform"
	"tonebar/internal/stats"
)

var testBar = model.BarParameters{L: 0.35, B: 0.05, H0: 0.01, HMin: 0.002}

func newTestClient(t *testing.T) (*Client, string) {
	t.Helper()
	base := t.TempDir()
	client, err := New(Options{
		StoreKind:    "memory",
		ArtifactsDir: filepath.Join(base, "runs"),
		ExportsDir:   filepath.Join(base, "exports"),
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client, base
}

func smallParams() model.EAParameters {
	params := model.DefaultEAParameters()
	params.PopulationSize = 8
	params.MaxGenerations = 3
	params.NumElements = 30
	params.TargetError = 0
	params.MaxCores = 2
	params.Seed = 7
	return params
}

func lengthRequest() lengthfinder.Request {
	return lengthfinder.Request{
		Width:       0.05,
		Thickness:   0.01,
		MinLength:   0.05,
		MaxLength:   1,
		NumElements: 30,
	}
}

func TestClientComputeFrequencies(t *testing.T) {
	client, _ := newTestClient(t)

	uniform, err := client.ComputeFrequencies(FrequencyRequest{Bar: testBar, MaterialName: "aluminum"})
	if err != nil {
		t.Fatalf("uniform bar: %v", err)
	}
	if len(uniform) != defaultNumModes {
		t.Fatalf("expected %d modes, got %v", defaultNumModes, uniform)
	}
	for i := 1; i < len(uniform); i++ {
		if uniform[i] <= uniform[i-1] {
			t.Fatalf("frequencies must ascend: %v", uniform)
		}
	}

	cut, err := client.ComputeFrequencies(FrequencyRequest{
		Bar:          testBar,
		MaterialName: "aluminum",
		Geometry:     model.Geometry{Cuts: []model.Cut{{Lambda: 0.1, H: 0.005}}},
	})
	if err != nil {
		t.Fatalf("undercut bar: %v", err)
	}
	if cut[0] >= uniform[0] {
		t.Fatalf("a central undercut must lower the fundamental: %v vs %v", cut[0], uniform[0])
	}

	if _, err := client.ComputeFrequencies(FrequencyRequest{Bar: testBar}); err == nil {
		t.Fatal("expected missing material error")
	}
	if _, err := client.ComputeFrequencies(FrequencyRequest{Bar: testBar, MaterialName: "unobtainium"}); err == nil {
		t.Fatal("expected unknown material error")
	}
}

func TestClientFindLengthsForNotes(t *testing.T) {
	client, _ := newTestClient(t)

	var seen []string
	results, err := client.FindLengthsForNotes([]string{"A4", "A5"}, LengthRequest{
		MaterialName: "aluminum",
		Request:      lengthRequest(),
	}, func(note string, index, total int) {
		if total != 2 {
			t.Fatalf("unexpected total %d", total)
		}
		seen = append(seen, note)
	})
	if err != nil {
		t.Fatalf("find lengths: %v", err)
	}
	if len(results) != 2 || len(seen) != 2 {
		t.Fatalf("unexpected results %+v progress %v", results, seen)
	}
	if results[1].Length >= results[0].Length {
		t.Fatalf("the octave must be shorter: %+v", results)
	}
	if results[0].Note != "A4" {
		t.Fatalf("expected note names on results: %+v", results[0])
	}

	if _, err := client.FindLengthsForNotes([]string{"H9"}, LengthRequest{MaterialName: "aluminum", Request: lengthRequest()}, nil); err == nil {
		t.Fatal("expected note parse error")
	}
}

func TestClientRunRunsAndExport(t *testing.T) {
	client, base := newTestClient(t)
	ctx := context.Background()

	var updates int
	summary, err := client.RunEvolutionaryAlgorithm(ctx, OptimizeRequest{
		Bar:          testBar,
		MaterialName: "aluminum",
		Preset:       "marimba",
		Fundamental:  175,
		NumCuts:      2,
		Params:       smallParams(),
	}, func(model.ProgressUpdate) { updates++ }, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.RunID == "" {
		t.Fatal("expected run id")
	}
	if updates != 3 || summary.Result.Generations != 3 {
		t.Fatalf("expected 3 generations of progress, got %d updates %d generations", updates, summary.Result.Generations)
	}
	if len(summary.Result.TargetFrequencies) != 3 || summary.Result.TargetFrequencies[1] != 700 {
		t.Fatalf("unexpected preset targets: %v", summary.Result.TargetFrequencies)
	}
	if _, err := os.Stat(filepath.Join(summary.ArtifactsDir, "summary.yaml")); err != nil {
		t.Fatalf("expected run artifacts: %v", err)
	}

	index, err := client.ArtifactIndex()
	if err != nil {
		t.Fatalf("artifact index: %v", err)
	}
	if len(index) != 1 || index[0].RunID != summary.RunID {
		t.Fatalf("unexpected artifact index: %+v", index)
	}

	runs, err := client.Runs(ctx, RunsRequest{Limit: 5})
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != summary.RunID || runs[0].Material != "aluminum" {
		t.Fatalf("expected latest run %s in runs list: %+v", summary.RunID, runs)
	}

	exported, err := client.Export(ctx, ExportRequest{Latest: true})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if exported.RunID != summary.RunID {
		t.Fatalf("unexpected exported run: %+v", exported)
	}
	wantDir := filepath.Join(base, "exports", summary.RunID)
	if exported.Directory != wantDir {
		t.Fatalf("expected export dir %s, got %s", wantDir, exported.Directory)
	}
	exportedSummary, ok, err := stats.ReadRunSummary(filepath.Join(base, "exports"), summary.RunID)
	if err != nil || !ok {
		t.Fatalf("read exported summary: ok=%v err=%v", ok, err)
	}

	// a gene code from a summary seeds a follow-up run
	genes, err := genecode.Decode(exportedSummary.GeneCode)
	if err != nil {
		t.Fatalf("decode gene code: %v", err)
	}
	if len(genes) != 4 {
		t.Fatalf("expected 4 genes for 2 cuts, got %v", genes)
	}
	followUp, err := client.RunEvolutionaryAlgorithm(ctx, OptimizeRequest{
		Bar:          testBar,
		MaterialName: "aluminum",
		Targets:      []float64{175, 700, 1750},
		NumCuts:      2,
		Params:       smallParams(),
		SeedCodes:    []string{exportedSummary.GeneCode},
	}, nil, nil)
	if err != nil {
		t.Fatalf("seeded run: %v", err)
	}
	if followUp.Result.TuningError > summary.Result.TuningError+1e-9 {
		t.Fatalf("a seeded run keeps its elite seed: %v > %v", followUp.Result.TuningError, summary.Result.TuningError)
	}

	if err := client.DeleteRun(ctx, summary.RunID); err != nil {
		t.Fatalf("delete run: %v", err)
	}
	if _, err := client.GetRun(ctx, summary.RunID); !errors.Is(err, platform.ErrRunNotFound) {
		t.Fatalf("expected run not found after delete, got %v", err)
	}
}

func TestClientRunCancelled(t *testing.T) {
	client, _ := newTestClient(t)
	params := smallParams()
	params.MaxGenerations = 50

	generations := 0
	summary, err := client.RunEvolutionaryAlgorithm(context.Background(), OptimizeRequest{
		Bar:          testBar,
		MaterialName: "aluminum",
		Targets:      []float64{175, 700},
		NumCuts:      1,
		Params:       params,
	}, func(u model.ProgressUpdate) { generations = u.Generation }, func() bool { return generations >= 2 })
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Result.StopReason != model.StopCancelled {
		t.Fatalf("expected cancelled stop reason, got %s", summary.Result.StopReason)
	}
	if summary.Result.Generations > 3 {
		t.Fatalf("cancellation must take effect within one generation, ran %d", summary.Result.Generations)
	}
}

func TestClientOptimizeValidation(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	cases := map[string]OptimizeRequest{
		"no targets":        {Bar: testBar, MaterialName: "aluminum", NumCuts: 1},
		"preset no root":    {Bar: testBar, MaterialName: "aluminum", Preset: "marimba", NumCuts: 1},
		"unknown preset":    {Bar: testBar, MaterialName: "aluminum", Preset: "kazoo", Fundamental: 200, NumCuts: 1},
		"bad seed code":     {Bar: testBar, MaterialName: "aluminum", Targets: []float64{200}, NumCuts: 1, SeedCodes: []string{"!!"}},
		"bad penalty type":  {Bar: testBar, MaterialName: "aluminum", Targets: []float64{200}, NumCuts: 1, PenaltyType: "mass"},
		"no material":       {Bar: testBar, Targets: []float64{200}, NumCuts: 1},
		"bad penalty range": {Bar: testBar, MaterialName: "aluminum", Targets: []float64{200}, NumCuts: 1, PenaltyWeight: 2},
	}
	for name, req := range cases {
		req.Params = smallParams()
		if _, err := client.RunEvolutionaryAlgorithm(ctx, req, nil, nil); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestClientExportValidation(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	if _, err := client.Export(ctx, ExportRequest{RunID: "a", Latest: true}); err == nil {
		t.Fatal("expected run id and latest conflict")
	}
	if _, err := client.Export(ctx, ExportRequest{}); err == nil {
		t.Fatal("expected missing run id error")
	}
	if _, err := client.Export(ctx, ExportRequest{Latest: true}); err == nil {
		t.Fatal("expected no runs error")
	}
	if _, err := client.Export(ctx, ExportRequest{RunID: "missing"}); !errors.Is(err, platform.ErrRunNotFound) {
		t.Fatalf("expected run not found, got %v", err)
	}
}

func TestCatalogListings(t *testing.T) {
	if len(Materials()) == 0 || len(Presets()) == 0 {
		t.Fatal("expected built-in materials and presets")
	}
}
