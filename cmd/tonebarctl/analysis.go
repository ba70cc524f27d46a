package main

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"tonebar/internal/genecode"
	"tonebar/internal/geometry"
	"tonebar/internal/lengthfinder"
	"tonebar/internal/model"
	"tonebar/internal/pitch"
	"tonebar/internal/stats"
	"tonebar/pkg/tonebar"
)

var barKeys = map[string]string{
	"material":          "material",
	"bar.length":        "length",
	"bar.width":         "width",
	"bar.thickness":     "thickness",
	"bar.min_thickness": "min-thickness",
}

func addBarFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("material", "rosewood", "material name from the catalog")
	f.Float64("length", 0.35, "bar length (m)")
	f.Float64("width", 0.05, "bar width (m)")
	f.Float64("thickness", 0.02, "blank thickness (m)")
	f.Float64("min-thickness", 0.002, "thinnest allowed section (m)")
}

func (a *app) bar() model.BarParameters {
	return model.BarParameters{
		L:    a.v.GetFloat64("bar.length"),
		B:    a.v.GetFloat64("bar.width"),
		H0:   a.v.GetFloat64("bar.thickness"),
		HMin: a.v.GetFloat64("bar.min_thickness"),
	}
}

func mergeKeys(maps ...map[string]string) map[string]string {
	out := make(map[string]string)
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

func newMaterialsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "materials",
		Short: "List built-in materials and tuning presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, m := range tonebar.Materials() {
				fmt.Fprintf(a.out, "%-11s %-9s E=%-10s rho=%s kg/m3 nu=%.2f\n",
					m.Name, m.Category, humanize.SIWithDigits(m.E, 1, "Pa"), humanize.Commaf(m.Rho), m.Nu)
			}
			fmt.Fprintln(a.out)
			for _, name := range tonebar.Presets() {
				fmt.Fprintf(a.out, "preset %s\n", name)
			}
			return nil
		},
	}
}

func newFreqsCmd(a *app) *cobra.Command {
	var (
		cuts     []string
		geneCode string
	)
	keys := mergeKeys(barKeys, map[string]string{
		"freqs.modes":    "modes",
		"freqs.elements": "elements",
	})
	cmd := &cobra.Command{
		Use:   "freqs",
		Short: "Compute the modal frequencies of a bar",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.bindFlags(cmd, keys)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			bar := a.bar()
			var g model.Geometry
			switch {
			case geneCode != "" && len(cuts) > 0:
				return fmt.Errorf("use either --cuts or --gene-code")
			case geneCode != "":
				genes, err := genecode.Decode(geneCode)
				if err != nil {
					return err
				}
				g = geometry.Decode(genes, bar, len(genes)%2 == 1, math.Inf(1), math.Inf(1))
			default:
				parsed, err := parseCuts(cuts)
				if err != nil {
					return err
				}
				g.Cuts = parsed
			}

			client, err := a.client()
			if err != nil {
				return err
			}
			defer func() {
				_ = client.Close()
			}()
			freqs, err := client.ComputeFrequencies(tonebar.FrequencyRequest{
				Bar:          bar,
				MaterialName: a.v.GetString("material"),
				Geometry:     g,
				NumModes:     a.v.GetInt("freqs.modes"),
				NumElements:  a.v.GetInt("freqs.elements"),
			})
			if err != nil {
				return err
			}
			printFrequencies(a, freqs, nil)
			return nil
		},
	}
	addBarFlags(cmd)
	cmd.Flags().StringSliceVar(&cuts, "cuts", nil, "undercuts as lambda:h pairs in meters, e.g. 0.1:0.012,0.05:0.008")
	cmd.Flags().StringVar(&geneCode, "gene-code", "", "gene code from a run summary")
	cmd.Flags().Int("modes", 3, "number of modes")
	cmd.Flags().Int("elements", 150, "number of finite elements")
	return cmd
}

func parseCuts(raw []string) ([]model.Cut, error) {
	out := make([]model.Cut, 0, len(raw))
	for _, item := range raw {
		lambda, h, ok := strings.Cut(item, ":")
		if !ok {
			return nil, fmt.Errorf("cut %q: want lambda:h", item)
		}
		l, err := strconv.ParseFloat(strings.TrimSpace(lambda), 64)
		if err != nil {
			return nil, fmt.Errorf("cut %q: %w", item, err)
		}
		t, err := strconv.ParseFloat(strings.TrimSpace(h), 64)
		if err != nil {
			return nil, fmt.Errorf("cut %q: %w", item, err)
		}
		out = append(out, model.Cut{Lambda: l, H: t})
	}
	return out, nil
}

// printFrequencies writes one line per mode with its nearest note. When
// targets are given the deviation is measured against them instead.
func printFrequencies(a *app, freqs, targets []float64) {
	for i, f := range freqs {
		note, cents := pitch.NoteName(f)
		if i < len(targets) && targets[i] > 0 {
			fmt.Fprintf(a.out, "f%d %12s  target %12s  %+7.2f cents\n",
				i+1, humanize.SIWithDigits(f, 2, "Hz"), humanize.SIWithDigits(targets[i], 2, "Hz"), pitch.Cents(f, targets[i]))
			continue
		}
		fmt.Fprintf(a.out, "f%d %12s  %-4s %+7.2f cents\n", i+1, humanize.SIWithDigits(f, 2, "Hz"), note, cents)
	}
}

var lengthKeys = map[string]string{
	"material":               "material",
	"bar.width":              "width",
	"bar.thickness":          "thickness",
	"length.min":             "min-length",
	"length.max":             "max-length",
	"length.tolerance_cents": "tolerance",
	"length.elements":        "elements",
}

func addLengthFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("material", "rosewood", "material name from the catalog")
	f.Float64("width", 0.05, "bar width (m)")
	f.Float64("thickness", 0.02, "bar thickness (m)")
	f.Float64("min-length", 0.05, "shortest length searched (m)")
	f.Float64("max-length", 2, "longest length searched (m)")
	f.Float64("tolerance", 0.1, "tolerance in cents")
	f.Int("elements", 60, "number of finite elements")
}

func (a *app) lengthRequest() tonebar.LengthRequest {
	return tonebar.LengthRequest{
		MaterialName: a.v.GetString("material"),
		Request: lengthfinder.Request{
			Width:          a.v.GetFloat64("bar.width"),
			Thickness:      a.v.GetFloat64("bar.thickness"),
			MinLength:      a.v.GetFloat64("length.min"),
			MaxLength:      a.v.GetFloat64("length.max"),
			ToleranceCents: a.v.GetFloat64("length.tolerance_cents"),
			NumElements:    a.v.GetInt("length.elements"),
		},
	}
}

func newLengthCmd(a *app) *cobra.Command {
	var (
		note string
		freq float64
	)
	cmd := &cobra.Command{
		Use:   "length",
		Short: "Find the uniform bar length for one note or frequency",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.bindFlags(cmd, lengthKeys)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (note == "") == (freq <= 0) {
				return fmt.Errorf("length requires exactly one of --note or --freq")
			}
			req := a.lengthRequest()
			req.TargetFreq = freq
			if note != "" {
				f, err := pitch.NoteFrequency(note)
				if err != nil {
					return err
				}
				req.TargetFreq = f
			}

			client, err := a.client()
			if err != nil {
				return err
			}
			defer func() {
				_ = client.Close()
			}()
			res, err := client.FindOptimalLength(req)
			if err != nil {
				return err
			}
			res.Note = note
			printLength(a, res)
			return nil
		},
	}
	addLengthFlags(cmd)
	cmd.Flags().StringVar(&note, "note", "", "target note, e.g. A4 or C#5")
	cmd.Flags().Float64Var(&freq, "freq", 0, "target frequency (Hz)")
	return cmd
}

func printLength(a *app, r model.LengthResult) {
	label := r.Note
	if label == "" {
		label = humanize.SIWithDigits(r.Target, 2, "Hz")
	}
	fmt.Fprintf(a.out, "%-8s length %8.2f mm  f1 %10.3f Hz  %+6.2f cents  (%d iterations)\n",
		label, r.Length*1000, r.ComputedFreq, r.ErrorCents, r.Iterations)
}

func newLengthsCmd(a *app) *cobra.Command {
	var (
		from, to string
		notes    []string
		xlsxPath string
	)
	cmd := &cobra.Command{
		Use:   "lengths",
		Short: "Find uniform bar lengths for a note range",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.bindFlags(cmd, lengthKeys)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			names := notes
			if len(names) == 0 {
				if from == "" || to == "" {
					return fmt.Errorf("lengths requires --notes or both --from and --to")
				}
				var err error
				if names, err = pitch.NoteRange(from, to); err != nil {
					return err
				}
			}

			client, err := a.client()
			if err != nil {
				return err
			}
			defer func() {
				_ = client.Close()
			}()
			results, err := client.FindLengthsForNotes(names, a.lengthRequest(), func(note string, index, total int) {
				a.log.WithField("note", note).Debugf("searching %d/%d", index+1, total)
			})
			if err != nil {
				return err
			}

			if xlsxPath != "" {
				if err := stats.WriteLengthTable(xlsxPath, results); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "wrote %d notes to %s\n", len(results), xlsxPath)
				return nil
			}
			return stats.WriteLengthTableCSV(a.out, results)
		},
	}
	addLengthFlags(cmd)
	cmd.Flags().StringVar(&from, "from", "", "first note of the range")
	cmd.Flags().StringVar(&to, "to", "", "last note of the range")
	cmd.Flags().StringSliceVar(&notes, "notes", nil, "explicit note list instead of a range")
	cmd.Flags().StringVar(&xlsxPath, "xlsx", "", "write an xlsx workbook instead of CSV to stdout")
	return cmd
}

// sortedKeys keeps flag binding order stable for error messages.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
