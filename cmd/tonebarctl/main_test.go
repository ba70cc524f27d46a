package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tonebar/internal/stats"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs(append(args, "--env-file", ""))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func optimizeArgs(artifactsDir string, extra ...string) []string {
	args := []string{
		"optimize",
		"--store", "memory",
		"--artifacts-dir", artifactsDir,
		"--material", "aluminum",
		"--thickness", "0.01",
		"--num-cuts", "2",
		"--elements", "30",
		"--target-error", "0",
		"--workers", "2",
		"--quiet",
	}
	return append(args, extra...)
}

func TestMaterialsCommand(t *testing.T) {
	out, err := execute(t, "materials")
	if err != nil {
		t.Fatalf("materials: %v", err)
	}
	if !strings.Contains(out, "aluminum") || !strings.Contains(out, "GPa") || !strings.Contains(out, "preset marimba") {
		t.Fatalf("unexpected materials output:\n%s", out)
	}
}

func TestFreqsCommand(t *testing.T) {
	out, err := execute(t, "freqs", "--material", "aluminum", "--thickness", "0.01", "--cuts", "0.1:0.006", "--elements", "60")
	if err != nil {
		t.Fatalf("freqs: %v", err)
	}
	for _, mode := range []string{"f1 ", "f2 ", "f3 "} {
		if !strings.Contains(out, mode) {
			t.Fatalf("expected %q in output:\n%s", mode, out)
		}
	}

	if _, err := execute(t, "freqs", "--cuts", "0.1-0.006"); err == nil {
		t.Fatal("expected malformed cut error")
	}
	if _, err := execute(t, "freqs", "--cuts", "0.1:0.006", "--gene-code", "tbAQ"); err == nil {
		t.Fatal("expected cuts and gene code conflict")
	}
}

func TestLengthCommand(t *testing.T) {
	out, err := execute(t, "length", "--note", "A4", "--material", "aluminum", "--thickness", "0.01")
	if err != nil {
		t.Fatalf("length: %v", err)
	}
	if !strings.HasPrefix(out, "A4") || !strings.Contains(out, " mm") {
		t.Fatalf("unexpected length output:\n%s", out)
	}

	if _, err := execute(t, "length", "--note", "A4", "--freq", "440"); err == nil {
		t.Fatal("expected note and freq conflict")
	}
}

func TestLengthsCommandXLSXAndCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lengths.xlsx")
	out, err := execute(t, "lengths", "--from", "A4", "--to", "C5", "--material", "aluminum", "--thickness", "0.01", "--xlsx", path)
	if err != nil {
		t.Fatalf("lengths xlsx: %v", err)
	}
	if !strings.Contains(out, "wrote 4 notes") {
		t.Fatalf("unexpected output: %s", out)
	}
	rows, err := stats.ReadLengthTable(path)
	if err != nil {
		t.Fatalf("read workbook: %v", err)
	}
	if len(rows) != 4 || rows[0].Note != "A4" || rows[3].Note != "C5" {
		t.Fatalf("unexpected workbook rows: %+v", rows)
	}

	out, err = execute(t, "lengths", "--notes", "A4,A5", "--material", "aluminum", "--thickness", "0.01")
	if err != nil {
		t.Fatalf("lengths csv: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[0], "Note,") || !strings.HasPrefix(lines[2], "A5,") {
		t.Fatalf("unexpected csv output:\n%s", out)
	}

	if _, err := execute(t, "lengths", "--from", "A4"); err == nil {
		t.Fatal("expected missing range end error")
	}
}

func TestOptimizeCommandWritesArtifacts(t *testing.T) {
	artifactsDir := t.TempDir()
	out, err := execute(t, optimizeArgs(artifactsDir,
		"--run-id", "cli-run",
		"--targets", "175,700,1750",
		"--population", "8",
		"--generations", "3",
		"--refine", "3",
		"--refine-selection", "all_random",
		"--refine-min-improvement", "0.001",
	)...)
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if !strings.Contains(out, "run cli-run: max_generations after 3 generations") {
		t.Fatalf("unexpected optimize output:\n%s", out)
	}
	if !strings.Contains(out, "cut 2") || !strings.Contains(out, "target") {
		t.Fatalf("expected cuts and target deviations:\n%s", out)
	}
	if _, err := os.Stat(filepath.Join(artifactsDir, "cli-run", "summary.yaml")); err != nil {
		t.Fatalf("expected summary artifact: %v", err)
	}

	out, err = execute(t, "runs", "--index", "--artifacts-dir", artifactsDir)
	if err != nil {
		t.Fatalf("runs --index: %v", err)
	}
	if !strings.Contains(out, "cli-run") || !strings.Contains(out, "aluminum") {
		t.Fatalf("expected run in artifact index:\n%s", out)
	}
}

func TestOptimizeCommandReadsConfigAndEnv(t *testing.T) {
	dir := t.TempDir()
	config := filepath.Join(dir, "tonebar.yaml")
	data := []byte(`optimize:
  targets: [175, 700]
  population_size: 6
  max_generations: 2
log_level: warn
`)
	if err := os.WriteFile(config, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	out, err := execute(t, optimizeArgs(filepath.Join(dir, "runs"), "--config", config, "--run-id", "from-config")...)
	if err != nil {
		t.Fatalf("optimize from config: %v", err)
	}
	if !strings.Contains(out, "run from-config: max_generations after 2 generations") {
		t.Fatalf("config values not applied:\n%s", out)
	}

	t.Setenv("TONEBAR_OPTIMIZE_MAX_GENERATIONS", "1")
	out, err = execute(t, optimizeArgs(filepath.Join(dir, "runs"), "--config", config, "--run-id", "from-env")...)
	if err != nil {
		t.Fatalf("optimize from env: %v", err)
	}
	if !strings.Contains(out, "after 1 generations") {
		t.Fatalf("environment must override the config file:\n%s", out)
	}

	// an explicit flag beats both
	out, err = execute(t, optimizeArgs(filepath.Join(dir, "runs"), "--config", config, "--run-id", "from-flag", "--generations", "3")...)
	if err != nil {
		t.Fatalf("optimize with flag: %v", err)
	}
	if !strings.Contains(out, "after 3 generations") {
		t.Fatalf("flag must override environment:\n%s", out)
	}
}

func TestOptimizeCommandValidation(t *testing.T) {
	if _, err := execute(t, optimizeArgs(t.TempDir())...); err == nil {
		t.Fatal("expected missing targets error")
	}
	if _, err := execute(t, optimizeArgs(t.TempDir(), "--targets", "abc")...); err == nil {
		t.Fatal("expected malformed target error")
	}
	if _, err := execute(t, optimizeArgs(t.TempDir(), "--targets", "175", "--log-level", "loud")...); err == nil {
		t.Fatal("expected invalid log level error")
	}
	if _, err := execute(t, optimizeArgs(t.TempDir(), "--targets", "175", "--refine-selection", "lastgen")...); err == nil {
		t.Fatal("expected unsupported refine selection error")
	}
	if _, err := execute(t, "optimize", "--config", filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected missing explicit config error")
	}
}

func TestRunsAndExportOnEmptyStore(t *testing.T) {
	out, err := execute(t, "runs", "--store", "memory")
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if strings.TrimSpace(out) != "no runs" {
		t.Fatalf("unexpected runs output: %q", out)
	}
	if _, err := execute(t, "export", "--store", "memory", "--latest", "--exports-dir", t.TempDir()); err == nil {
		t.Fatal("expected export error without runs")
	}
	if _, err := execute(t, "export", "--store", "memory"); err == nil {
		t.Fatal("expected export to require a run id or latest")
	}
}
