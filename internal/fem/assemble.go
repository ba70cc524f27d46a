package fem

import (
	"gonum.org/v1/gonum/mat"
)

// GlobalMatrices holds the free-free system for one evaluation.
// DOF order interleaves deflection and rotation per node: [y0, phi0, y1, phi1, ...].
type GlobalMatrices struct {
	K      *mat.SymDense
	M      *mat.SymDense
	NumDOF int
}

// Workspace is the scratch owned by a single evaluation. It is reused across
// calls but must never be shared by concurrent evaluations.
type Workspace struct {
	heights []float64
	global  GlobalMatrices
}

func NewWorkspace() *Workspace {
	return &Workspace{}
}

func (w *Workspace) elementHeights(ne int) []float64 {
	if cap(w.heights) < ne {
		w.heights = make([]float64, ne)
	}
	w.heights = w.heights[:ne]
	return w.heights
}

func (w *Workspace) matrices(ndof int) GlobalMatrices {
	if w.global.NumDOF != ndof {
		w.global = GlobalMatrices{
			K:      mat.NewSymDense(ndof, nil),
			M:      mat.NewSymDense(ndof, nil),
			NumDOF: ndof,
		}
		return w.global
	}
	zeroSym(w.global.K)
	zeroSym(w.global.M)
	return w.global
}

// Assemble scatters every element into fresh global matrices. No boundary
// conditions are applied, so the two rigid-body modes stay in the system.
func Assemble(heights []float64, le, b, e, rho, nu float64) GlobalMatrices {
	return assembleInto(NewWorkspace(), heights, le, b, e, rho, nu)
}

func assembleInto(ws *Workspace, heights []float64, le, b, e, rho, nu float64) GlobalMatrices {
	ndof := 2 * (len(heights) + 1)
	g := ws.matrices(ndof)
	for el, h := range heights {
		ke, me := ElementMatrices(h, le, b, e, rho, nu)
		base := 2 * el
		for a := 0; a < 4; a++ {
			for c := a; c < 4; c++ {
				i, j := base+a, base+c
				g.K.SetSym(i, j, g.K.At(i, j)+ke[a][c])
				g.M.SetSym(i, j, g.M.At(i, j)+me[a][c])
			}
		}
	}
	return g
}

func zeroSym(s *mat.SymDense) {
	raw := s.RawSymmetric()
	for i := range raw.Data {
		raw.Data[i] = 0
	}
}
