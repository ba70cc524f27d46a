package catalog

import (
	"fmt"
	"sort"
	"strings"

	"tonebar/internal/model"
)

var materials = map[string]model.Material{
	"aluminum":   {Name: "aluminum", E: 68.9e9, Rho: 2700, Nu: 0.33, Category: "metal"},
	"brass":      {Name: "brass", E: 100e9, Rho: 8500, Nu: 0.34, Category: "metal"},
	"bronze":     {Name: "bronze", E: 110e9, Rho: 8800, Nu: 0.34, Category: "metal"},
	"steel":      {Name: "steel", E: 200e9, Rho: 7850, Nu: 0.29, Category: "metal"},
	"rosewood":   {Name: "rosewood", E: 20e9, Rho: 1050, Nu: 0.3, Category: "wood"},
	"padauk":     {Name: "padauk", E: 11.7e9, Rho: 745, Nu: 0.3, Category: "wood"},
	"bubinga":    {Name: "bubinga", E: 18.4e9, Rho: 890, Nu: 0.3, Category: "wood"},
	"maple":      {Name: "maple", E: 12.6e9, Rho: 705, Nu: 0.3, Category: "wood"},
	"fiberglass": {Name: "fiberglass", E: 40e9, Rho: 1900, Nu: 0.25, Category: "synthetic"},
}

// Tuning presets are modal frequency ratios relative to the fundamental.
var tuningPresets = map[string][]float64{
	"marimba":      {1, 4, 10},
	"xylophone":    {1, 3, 6},
	"vibraphone":   {1, 4, 10},
	"glockenspiel": {1, 2.76, 5.40},
	"octave":       {1, 2, 4},
}

func Material(name string) (model.Material, error) {
	m, ok := materials[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return model.Material{}, fmt.Errorf("unknown material: %s", name)
	}
	return m, nil
}

// Materials lists the presets sorted by name.
func Materials() []model.Material {
	out := make([]model.Material, 0, len(materials))
	for _, m := range materials {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func TuningPreset(name string) ([]float64, error) {
	ratios, ok := tuningPresets[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown tuning preset: %s", name)
	}
	return append([]float64(nil), ratios...), nil
}

func TuningPresetNames() []string {
	names := make([]string, 0, len(tuningPresets))
	for name := range tuningPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TargetFrequencies scales ratios by the fundamental.
func TargetFrequencies(fundamental float64, ratios []float64) []float64 {
	out := make([]float64, len(ratios))
	for i, r := range ratios {
		out[i] = fundamental * r
	}
	return out
}
