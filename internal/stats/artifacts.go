package stats

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"

	"tonebar/internal/genecode"
	"tonebar/internal/model"
	"tonebar/internal/storage"
)

const runIndexFile = "run_index.json"

type RunArtifacts struct {
	Run         model.RunRecord
	Diagnostics []model.GenerationDiagnostics
}

// RunSummary is the human-facing YAML view of a run.
type RunSummary struct {
	RunID               string              `yaml:"run_id"`
	CreatedAtUTC        string              `yaml:"created_at_utc"`
	Material            string              `yaml:"material"`
	Bar                 model.BarParameters `yaml:"bar"`
	Targets             []float64           `yaml:"targets"`
	NumCuts             int                 `yaml:"num_cuts"`
	PenaltyType         model.PenaltyType   `yaml:"penalty_type"`
	PenaltyWeight       float64             `yaml:"penalty_weight"`
	Generations         int                 `yaml:"generations"`
	StopReason          model.StopReason    `yaml:"stop_reason"`
	TuningError         float64             `yaml:"tuning_error"`
	VolumePercent       float64             `yaml:"volume_percent"`
	RoughnessPercent    float64             `yaml:"roughness_percent"`
	LengthAdjust        float64             `yaml:"length_adjust"`
	EffectiveLength     float64             `yaml:"effective_length"`
	Cuts                []model.Cut         `yaml:"cuts"`
	ComputedFrequencies []float64           `yaml:"computed_frequencies"`
	CentsErrors         []float64           `yaml:"cents_errors"`
	GeneCode            string              `yaml:"gene_code"`
	ElapsedSeconds      float64             `yaml:"elapsed_seconds"`
}

type RunIndexEntry struct {
	RunID        string           `json:"run_id"`
	Material     string           `json:"material"`
	NumCuts      int              `json:"num_cuts"`
	Generations  int              `json:"generations"`
	StopReason   model.StopReason `json:"stop_reason"`
	TuningError  float64          `json:"tuning_error"`
	CreatedAtUTC string           `json:"created_at_utc"`
}

func Summarize(run model.RunRecord) (RunSummary, error) {
	code, err := genecode.Encode(run.Result.Best.Genes)
	if err != nil {
		return RunSummary{}, err
	}
	r := run.Result
	return RunSummary{
		RunID:               run.ID,
		CreatedAtUTC:        run.CreatedAtUTC,
		Material:            run.Material.Name,
		Bar:                 run.Bar,
		Targets:             run.Targets,
		NumCuts:             run.NumCuts,
		PenaltyType:         run.PenaltyType,
		PenaltyWeight:       run.PenaltyWeight,
		Generations:         r.Generations,
		StopReason:          r.StopReason,
		TuningError:         r.TuningError,
		VolumePercent:       r.VolumePercent,
		RoughnessPercent:    r.RoughnessPercent,
		LengthAdjust:        r.LengthAdjust,
		EffectiveLength:     r.EffectiveLength,
		Cuts:                r.Cuts,
		ComputedFrequencies: r.ComputedFrequencies,
		CentsErrors:         r.CentsErrors,
		GeneCode:            code,
		ElapsedSeconds:      run.ElapsedSeconds,
	}, nil
}

// WriteRunArtifacts lays a run out under baseDir/<run id>: the full record
// as JSON, a YAML summary, and CSV tables for cuts and fitness history.
func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	run := artifacts.Run
	if run.ID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, run.ID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	payload, err := storage.EncodeRun(run)
	if err != nil {
		return "", err
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, payload, "", "  "); err != nil {
		return "", err
	}
	pretty.WriteByte('\n')
	if err := os.WriteFile(filepath.Join(runDir, "run.json"), pretty.Bytes(), 0o644); err != nil {
		return "", err
	}

	summary, err := Summarize(run)
	if err != nil {
		return "", err
	}
	if err := writeYAML(filepath.Join(runDir, "summary.yaml"), summary); err != nil {
		return "", err
	}
	if err := writeCutsCSV(filepath.Join(runDir, "cuts.csv"), run.Result); err != nil {
		return "", err
	}
	if err := writeHistoryCSV(filepath.Join(runDir, "fitness_history.csv"), run.Result.BestByGeneration, artifacts.Diagnostics); err != nil {
		return "", err
	}
	return runDir, nil
}

func ReadRunSummary(baseDir, runID string) (RunSummary, bool, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runID, "summary.yaml"))
	if err != nil {
		if os.IsNotExist(err) {
			return RunSummary{}, false, nil
		}
		return RunSummary{}, false, err
	}
	var summary RunSummary
	if err := yaml.Unmarshal(data, &summary); err != nil {
		return RunSummary{}, false, err
	}
	return summary, true, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

func IndexEntry(run model.RunRecord) RunIndexEntry {
	return RunIndexEntry{
		RunID:        run.ID,
		Material:     run.Material.Name,
		NumCuts:      run.NumCuts,
		Generations:  run.Result.Generations,
		StopReason:   run.Result.StopReason,
		TuningError:  finiteOr(run.Result.TuningError, -1),
		CreatedAtUTC: run.CreatedAtUTC,
	}
}

func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	path := filepath.Join(baseDir, runIndexFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Prefer later appended entries for equal timestamps.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

func writeCutsCSV(path string, result model.OptimizationResult) error {
	rows := [][]string{{"cut", "lambda_m", "h_m"}}
	for i, c := range result.Cuts {
		rows = append(rows, []string{strconv.Itoa(i + 1), formatFloat(c.Lambda), formatFloat(c.H)})
	}
	return writeCSV(path, rows)
}

func writeHistoryCSV(path string, best []float64, diagnostics []model.GenerationDiagnostics) error {
	rows := [][]string{{"generation", "best_fitness", "mean_fitness", "worst_fitness", "stddev_fitness", "best_tuning_error", "failed"}}
	for i, b := range best {
		row := []string{strconv.Itoa(i + 1), formatFloat(b), "", "", "", "", ""}
		if i < len(diagnostics) {
			d := diagnostics[i]
			row[2] = formatFloat(d.MeanFitness)
			row[3] = formatFloat(d.WorstFitness)
			row[4] = formatFloat(d.StdDevFitness)
			row[5] = formatFloat(d.BestTuningError)
			row[6] = strconv.Itoa(d.FailedCount)
		}
		rows = append(rows, row)
	}
	return writeCSV(path, rows)
}

func writeCSV(path string, rows [][]string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.WriteAll(rows); err != nil {
		return err
	}
	return file.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func writeYAML(path string, value any) error {
	data, err := yaml.Marshal(value)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
