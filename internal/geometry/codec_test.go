package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tonebar/internal/model"
)

var testBar = model.BarParameters{L: 0.35, B: 0.05, H0: 0.01, HMin: 0.002}

func TestGenesToCutsClampsAndKeepsOrder(t *testing.T) {
	cuts := GenesToCuts([]float64{0.05, 0.008, 0.5, 0.0001, -1, 0.02}, testBar, false)
	require.Len(t, cuts, 3)
	assert.Equal(t, model.Cut{Lambda: 0.05, H: 0.008}, cuts[0])
	assert.Equal(t, model.Cut{Lambda: 0.175, H: 0.002}, cuts[1])
	assert.Equal(t, model.Cut{Lambda: 0, H: 0.01}, cuts[2])
}

func TestGenesToCutsDegenerateInput(t *testing.T) {
	assert.Empty(t, GenesToCuts(nil, testBar, false))
	assert.Empty(t, GenesToCuts([]float64{0.1, 0.005, 0.2}, testBar, false))
	assert.Empty(t, GenesToCuts([]float64{0.003}, testBar, true))
}

func TestGenesToCutsEvenVectorWithAdjustEnabled(t *testing.T) {
	genes := []float64{0.05, 0.006, 0.1, 0.008}
	cuts := GenesToCuts(genes, testBar, true)
	require.Len(t, cuts, 2)
	assert.Equal(t, model.Cut{Lambda: 0.05, H: 0.006}, cuts[0])
	assert.Equal(t, model.Cut{Lambda: 0.1, H: 0.008}, cuts[1])
	assert.Zero(t, LengthAdjust(genes, true, 0.01, 0.01))

	g := Decode(genes, testBar, true, 0.01, 0.01)
	assert.Nil(t, g.LengthAdjust)
	assert.Equal(t, cuts, g.Cuts)
	assert.Equal(t, genes, Encode(g))
}

func TestGenesToCutsDropsTrailingAdjustGene(t *testing.T) {
	genes := []float64{0.1, 0.005, 0.003}
	cuts := GenesToCuts(genes, testBar, true)
	require.Len(t, cuts, 1)
	assert.InDelta(t, 0.003, LengthAdjust(genes, true, 0.01, 0.01), 1e-15)
	assert.InDelta(t, 0.002, LengthAdjust(genes, true, 0.002, 0.01), 1e-15)
	assert.InDelta(t, -0.001, LengthAdjust([]float64{-0.004}, true, 0.01, 0.001), 1e-15)
	assert.InDelta(t, 0.35-0.006, EffectiveLength(0.35, 0.003), 1e-15)
}

func TestDecodeEncodeRoundTrip(t *testing.T) {
	genes := []float64{0.1, 0.005, 0.03, 0.004, -0.002}
	g := Decode(genes, testBar, true, 0.01, 0.01)
	require.NotNil(t, g.LengthAdjust)
	assert.Equal(t, genes, Encode(g))

	plain := Decode([]float64{0.1, 0.005}, testBar, false, 0, 0)
	assert.Nil(t, plain.LengthAdjust)
	assert.Equal(t, []float64{0.1, 0.005}, Encode(plain))
}

func TestGenerateElementHeightsUniform(t *testing.T) {
	heights := GenerateElementHeights(nil, 0.35, 0.01, 10)
	require.Len(t, heights, 10)
	for _, h := range heights {
		assert.Equal(t, 0.01, h)
	}
}

func TestGenerateElementHeightsDeepestCoveringCutWins(t *testing.T) {
	cuts := []model.Cut{
		{Lambda: 0.1, H: 0.006},
		{Lambda: 0.2, H: 0.008},
		{Lambda: 0.3, H: 0.009},
	}
	// l=1, 10 elements: midpoints at 0.05, 0.15, ... distances 0.45, 0.35, 0.25, 0.15, 0.05
	heights := GenerateElementHeights(cuts, 1, 0.01, 10)
	assert.Equal(t, []float64{0.01, 0.01, 0.009, 0.008, 0.006, 0.006, 0.008, 0.009, 0.01, 0.01}, heights)
}

func TestGenerateElementHeightsNonNestedCuts(t *testing.T) {
	// a deep wide cut hides a shallower narrow one
	cuts := []model.Cut{
		{Lambda: 0.1, H: 0.009},
		{Lambda: 0.3, H: 0.005},
	}
	heights := GenerateElementHeights(cuts, 1, 0.01, 10)
	assert.Equal(t, []float64{0.01, 0.01, 0.005, 0.005, 0.005, 0.005, 0.005, 0.005, 0.01, 0.01}, heights)
}

func TestVisibleProfileRunningMinimum(t *testing.T) {
	bands := VisibleProfile([]model.Cut{
		{Lambda: 0.1, H: 0.009},
		{Lambda: 0.3, H: 0.005},
		{Lambda: 0.3, H: 0.007},
		{Lambda: 0.2, H: 0.004},
	}, 0.01)
	assert.Equal(t, []model.Cut{
		{Lambda: 0.3, H: 0.005},
		{Lambda: 0.2, H: 0.004},
		{Lambda: 0.1, H: 0.004},
	}, bands)
}
