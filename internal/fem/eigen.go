package fem

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

const (
	// RigidBodyThreshold is the absolute eigenvalue floor below which a mode
	// is treated as rigid-body motion.
	RigidBodyThreshold = 1e-4

	// relative floors against the largest eigenvalue; round-off in the
	// reduction scales with it
	rigidBodyRelative = 1e-12
	negativeRelative  = 1e-6
)

var massRegularization = []float64{1e-10, 1e-6}

var ErrSingularMass = errors.New("mass matrix is singular")

// EigenvalueError reports a decomposition whose output cannot be a set of
// physical frequencies.
type EigenvalueError struct {
	Reason string
	Index  int
	Value  float64
}

func (e *EigenvalueError) Error() string {
	return fmt.Sprintf("eigenvalue failure: %s (index=%d value=%g)", e.Reason, e.Index, e.Value)
}

// Solve returns up to numModes ascending elastic natural frequencies in Hz
// for K*phi = lambda*M*phi. Fewer are returned when the mesh carries fewer
// elastic modes.
func Solve(k, m *mat.SymDense, numModes int) ([]float64, error) {
	n := k.SymmetricDim()
	if m.SymmetricDim() != n {
		return nil, fmt.Errorf("matrix size mismatch: K=%d M=%d", n, m.SymmetricDim())
	}
	if numModes <= 0 || n == 0 {
		return nil, nil
	}

	chol, err := factorizeMass(m)
	if err != nil {
		return nil, err
	}
	var l, linv mat.TriDense
	chol.LTo(&l)
	if err := linv.InverseTri(&l); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingularMass, err)
	}

	// A = L^-1 K L^-T shares its spectrum with M^-1 K
	var tmp, a mat.Dense
	tmp.Mul(&linv, k)
	a.Mul(&tmp, linv.T())
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, 0.5*(a.At(i, j)+a.At(j, i)))
		}
	}

	var es mat.EigenSym
	if ok := es.Factorize(sym, false); !ok {
		return nil, &EigenvalueError{Reason: "symmetric eigen decomposition did not converge", Index: -1, Value: math.NaN()}
	}
	values := es.Values(nil)
	sort.Float64s(values)

	lambdaMax := math.Abs(values[len(values)-1])
	threshold := math.Max(RigidBodyThreshold, rigidBodyRelative*lambdaMax)
	for i, v := range values {
		if math.IsNaN(v) {
			return nil, &EigenvalueError{Reason: "NaN eigenvalue", Index: i, Value: v}
		}
		if v < -negativeRelative*lambdaMax {
			return nil, &EigenvalueError{Reason: "negative eigenvalue", Index: i, Value: v}
		}
	}

	freqs := make([]float64, 0, numModes)
	for _, v := range values {
		if v < threshold {
			continue
		}
		freqs = append(freqs, math.Sqrt(math.Max(0, v))/(2*math.Pi))
		if len(freqs) == numModes {
			break
		}
	}
	if err := ValidateFrequencies(freqs); err != nil {
		return nil, err
	}
	return freqs, nil
}

// ValidateFrequencies rejects negative, non-finite, or descending values.
func ValidateFrequencies(freqs []float64) error {
	for i, f := range freqs {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return &EigenvalueError{Reason: "non-finite frequency", Index: i, Value: f}
		}
		if f < 0 {
			return &EigenvalueError{Reason: "negative frequency", Index: i, Value: f}
		}
		if i > 0 && f < freqs[i-1] {
			return &EigenvalueError{Reason: "non-monotonic frequencies", Index: i, Value: f}
		}
	}
	return nil
}

func factorizeMass(m *mat.SymDense) (*mat.Cholesky, error) {
	n := m.SymmetricDim()
	scale := 0.0
	for i := 0; i < n; i++ {
		scale = math.Max(scale, math.Abs(m.At(i, i)))
	}
	if scale == 0 {
		return nil, ErrSingularMass
	}
	reg := mat.NewSymDense(n, nil)
	for _, eps := range massRegularization {
		reg.CopySym(m)
		for i := 0; i < n; i++ {
			reg.SetSym(i, i, reg.At(i, i)+eps*scale)
		}
		var chol mat.Cholesky
		if ok := chol.Factorize(reg); ok {
			return &chol, nil
		}
	}
	return nil, ErrSingularMass
}
