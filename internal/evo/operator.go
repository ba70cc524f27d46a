package evo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"

	"tonebar/internal/model"
)

var ErrGeneMismatch = errors.New("gene vectors differ in length")

const (
	minSigma = 1e-4
	maxSigma = 1.0
)

// Operator produces a mutated offspring from one parent.
type Operator interface {
	Name() string
	Apply(ctx context.Context, parent model.Individual) (model.Individual, error)
}

// Crossover produces one offspring from two parents.
type Crossover interface {
	Name() string
	Cross(ctx context.Context, a, b model.Individual) (model.Individual, error)
}

// GaussianMutation adds N(0, (Strength*span)^2) noise to every gene. With
// SelfAdaptive set each gene carries its own step size, which is perturbed
// log-normally before use.
type GaussianMutation struct {
	Rand         *rand.Rand
	Bounds       Bounds
	Strength     float64
	SelfAdaptive bool
}

func (o *GaussianMutation) Name() string {
	if o.SelfAdaptive {
		return "self_adaptive_gaussian"
	}
	return "gaussian"
}

func (o *GaussianMutation) Apply(ctx context.Context, parent model.Individual) (model.Individual, error) {
	if err := ctx.Err(); err != nil {
		return model.Individual{}, err
	}
	if o.Rand == nil {
		return model.Individual{}, fmt.Errorf("random source is required")
	}
	if len(parent.Genes) != o.Bounds.GeneCount() {
		return model.Individual{}, fmt.Errorf("%w: got=%d want=%d", ErrGeneMismatch, len(parent.Genes), o.Bounds.GeneCount())
	}

	child := model.NewIndividual(parent.Genes)
	n := len(child.Genes)
	if o.SelfAdaptive {
		child.Sigmas = make([]float64, n)
		if len(parent.Sigmas) == n {
			copy(child.Sigmas, parent.Sigmas)
		} else {
			for i := range child.Sigmas {
				child.Sigmas[i] = o.Strength
			}
		}
		tauGlobal := 1 / math.Sqrt(2*float64(n))
		tauLocal := 1 / math.Sqrt(2*math.Sqrt(float64(n)))
		global := tauGlobal * o.Rand.NormFloat64()
		for i := range child.Sigmas {
			s := child.Sigmas[i] * math.Exp(global+tauLocal*o.Rand.NormFloat64())
			child.Sigmas[i] = math.Max(minSigma, math.Min(maxSigma, s))
		}
	}
	for i := range child.Genes {
		step := o.Strength
		if o.SelfAdaptive {
			step = child.Sigmas[i]
		}
		child.Genes[i] += step * o.Bounds.Span(i) * o.Rand.NormFloat64()
	}
	o.Bounds.Repair(child.Genes, child.Sigmas)
	return child, nil
}

// BlendCrossover mixes each gene as alpha*a + (1-alpha)*b with a fresh
// uniform alpha per gene. Step sizes, when both parents carry them, are
// averaged.
type BlendCrossover struct {
	Rand   *rand.Rand
	Bounds Bounds
}

func (o *BlendCrossover) Name() string {
	return "blend"
}

func (o *BlendCrossover) Cross(ctx context.Context, a, b model.Individual) (model.Individual, error) {
	if err := ctx.Err(); err != nil {
		return model.Individual{}, err
	}
	if o.Rand == nil {
		return model.Individual{}, fmt.Errorf("random source is required")
	}
	if len(a.Genes) != len(b.Genes) {
		return model.Individual{}, fmt.Errorf("%w: %d vs %d", ErrGeneMismatch, len(a.Genes), len(b.Genes))
	}

	child := model.NewIndividual(a.Genes)
	for i := range child.Genes {
		alpha := o.Rand.Float64()
		child.Genes[i] = alpha*a.Genes[i] + (1-alpha)*b.Genes[i]
	}
	if len(a.Sigmas) == len(a.Genes) && len(b.Sigmas) == len(b.Genes) {
		child.Sigmas = make([]float64, len(a.Sigmas))
		for i := range child.Sigmas {
			child.Sigmas[i] = 0.5 * (a.Sigmas[i] + b.Sigmas[i])
		}
	}
	o.Bounds.Repair(child.Genes, child.Sigmas)
	return child, nil
}
