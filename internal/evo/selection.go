package evo

import (
	"fmt"
	"math"
	"math/rand"

	"tonebar/internal/model"
)

// pairRetries bounds how often PickPair redraws to avoid selfing.
const pairRetries = 10

// Selector chooses a parent index from a population ranked best (lowest
// fitness) first.
type Selector interface {
	Name() string
	PickParent(rng *rand.Rand, ranked []ScoredIndividual) (int, error)
}

// NewSelector resolves a selection strategy by name.
func NewSelector(params model.EAParameters) (Selector, error) {
	switch params.Selection {
	case "", "tournament":
		return TournamentSelector{Size: params.TournamentSize}, nil
	case "roulette":
		return RouletteSelector{}, nil
	case "rank":
		return RankSelector{Pressure: params.SelectionPressure}, nil
	default:
		return nil, fmt.Errorf("unsupported selection strategy: %s", params.Selection)
	}
}

// PickPair draws two parents, redrawing the second up to pairRetries times
// while it repeats the first. A duplicate is accepted after that.
func PickPair(rng *rand.Rand, sel Selector, ranked []ScoredIndividual) (int, int, error) {
	a, err := sel.PickParent(rng, ranked)
	if err != nil {
		return 0, 0, err
	}
	b, err := sel.PickParent(rng, ranked)
	if err != nil {
		return 0, 0, err
	}
	for tries := 0; b == a && tries < pairRetries && len(ranked) > 1; tries++ {
		if b, err = sel.PickParent(rng, ranked); err != nil {
			return 0, 0, err
		}
	}
	return a, b, nil
}

func checkPick(rng *rand.Rand, ranked []ScoredIndividual) error {
	if rng == nil {
		return fmt.Errorf("random source is required")
	}
	if len(ranked) == 0 {
		return fmt.Errorf("cannot select from an empty population")
	}
	return nil
}

// RouletteSelector samples with probability proportional to 1/fitness.
// When no individual has a usable fitness it falls back to a uniform draw.
type RouletteSelector struct{}

func (RouletteSelector) Name() string {
	return "roulette"
}

func (RouletteSelector) PickParent(rng *rand.Rand, ranked []ScoredIndividual) (int, error) {
	if err := checkPick(rng, ranked); err != nil {
		return 0, err
	}
	weights := make([]float64, len(ranked))
	total := 0.0
	for i, item := range ranked {
		f := item.Individual.Fitness
		if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
			continue
		}
		weights[i] = 1 / math.Max(f, 1e-12)
		total += weights[i]
	}
	if total <= 0 || math.IsInf(total, 0) {
		return rng.Intn(len(ranked)), nil
	}
	return sampleCumulative(rng, weights, total), nil
}

// TournamentSelector returns the fittest of Size uniform draws.
type TournamentSelector struct {
	Size int
}

func (TournamentSelector) Name() string {
	return "tournament"
}

func (s TournamentSelector) PickParent(rng *rand.Rand, ranked []ScoredIndividual) (int, error) {
	if err := checkPick(rng, ranked); err != nil {
		return 0, err
	}
	size := s.Size
	if size <= 0 {
		size = 3
	}
	best := rng.Intn(len(ranked))
	for i := 1; i < size; i++ {
		candidate := rng.Intn(len(ranked))
		if ranked[candidate].Individual.Fitness < ranked[best].Individual.Fitness {
			best = candidate
		}
	}
	return best, nil
}

// RankSelector is linear ranking with selection pressure s in [1, 2]:
//
//	p(rank) = (2-s)/n + 2(s-1)(n-1-rank)/(n(n-1))
//
// rank 0 is the best individual.
type RankSelector struct {
	Pressure float64
}

func (RankSelector) Name() string {
	return "rank"
}

func (s RankSelector) PickParent(rng *rand.Rand, ranked []ScoredIndividual) (int, error) {
	if err := checkPick(rng, ranked); err != nil {
		return 0, err
	}
	n := len(ranked)
	if n == 1 {
		return 0, nil
	}
	weights := RankProbabilities(n, s.Pressure)
	return sampleCumulative(rng, weights, 1), nil
}

// RankProbabilities returns the linear ranking distribution for n ranks.
func RankProbabilities(n int, pressure float64) []float64 {
	if pressure < 1 || pressure > 2 || math.IsNaN(pressure) {
		pressure = math.Min(2, math.Max(1, pressure))
		if math.IsNaN(pressure) {
			pressure = 1.5
		}
	}
	out := make([]float64, n)
	if n == 1 {
		out[0] = 1
		return out
	}
	nf := float64(n)
	for rank := range out {
		out[rank] = (2-pressure)/nf + 2*(pressure-1)*float64(n-1-rank)/(nf*(nf-1))
	}
	return out
}

func sampleCumulative(rng *rand.Rand, weights []float64, total float64) int {
	r := rng.Float64() * total
	acc := 0.0
	for i, w := range weights {
		acc += w
		if r < acc {
			return i
		}
	}
	// round-off can leave r just past the last edge
	for i := len(weights) - 1; i >= 0; i-- {
		if weights[i] > 0 {
			return i
		}
	}
	return len(weights) - 1
}
