package lengthfinder

import (
	"errors"
	"fmt"
	"math"

	"tonebar/internal/fem"
	"tonebar/internal/model"
	"tonebar/internal/pitch"
)

// minBracket stops the bisection once the search interval is below 0.01 mm.
const minBracket = 1e-5

var ErrInvalidRequest = errors.New("invalid length search request")

type Request struct {
	TargetFreq     float64
	Width          float64
	Thickness      float64
	Material       model.Material
	MinLength      float64
	MaxLength      float64
	ToleranceCents float64
	MaxIterations  int
	NumElements    int
}

func (r *Request) applyDefaults() {
	if r.ToleranceCents <= 0 {
		r.ToleranceCents = 0.1
	}
	if r.MaxIterations <= 0 {
		r.MaxIterations = 60
	}
	if r.NumElements <= 0 {
		r.NumElements = 60
	}
}

func (r Request) validate() error {
	if r.TargetFreq <= 0 {
		return fmt.Errorf("%w: target frequency must be > 0", ErrInvalidRequest)
	}
	if r.MinLength <= 0 || r.MaxLength <= r.MinLength {
		return fmt.Errorf("%w: require 0 < min length < max length", ErrInvalidRequest)
	}
	if r.Width <= 0 || r.Thickness <= 0 {
		return fmt.Errorf("%w: width and thickness must be > 0", ErrInvalidRequest)
	}
	return nil
}

// NoteTarget pairs a display name with its fundamental.
type NoteTarget struct {
	Name      string
	Frequency float64
}

// ProgressFunc is called before each note's search.
type ProgressFunc func(note string, index, total int)

// FindOptimalLength bisects the length of a uniform bar until its
// fundamental matches the target. The fundamental falls monotonically with
// length, so a target outside [f(max), f(min)] returns the nearer bound.
func FindOptimalLength(req Request) (model.LengthResult, error) {
	req.applyDefaults()
	if err := req.validate(); err != nil {
		return model.LengthResult{}, err
	}
	ws := fem.NewWorkspace()
	fundamental := func(length float64) (float64, error) {
		bar := model.BarParameters{L: length, B: req.Width, H0: req.Thickness, HMin: req.Thickness / 2}
		freqs, err := ws.ComputeFrequencies(nil, bar, req.Material, fem.Options{NumModes: 1, NumElements: req.NumElements})
		if err != nil {
			return 0, err
		}
		if len(freqs) == 0 {
			return 0, fmt.Errorf("no elastic mode at length %g", length)
		}
		return freqs[0], nil
	}

	fMin, err := fundamental(req.MinLength)
	if err != nil {
		return model.LengthResult{}, fmt.Errorf("evaluate min length: %w", err)
	}
	fMax, err := fundamental(req.MaxLength)
	if err != nil {
		return model.LengthResult{}, fmt.Errorf("evaluate max length: %w", err)
	}
	if req.TargetFreq >= fMin {
		return boundResult(req, req.MinLength, fMin), nil
	}
	if req.TargetFreq <= fMax {
		return boundResult(req, req.MaxLength, fMax), nil
	}

	lo, hi := req.MinLength, req.MaxLength
	best := model.LengthResult{Target: req.TargetFreq, ErrorCents: math.Inf(1)}
	for iter := 1; iter <= req.MaxIterations; iter++ {
		mid := 0.5 * (lo + hi)
		f, err := fundamental(mid)
		if err != nil {
			return model.LengthResult{}, fmt.Errorf("evaluate length %g: %w", mid, err)
		}
		cents := pitch.Cents(f, req.TargetFreq)
		best.Iterations = iter
		if math.Abs(cents) < math.Abs(best.ErrorCents) {
			best.Length = mid
			best.ComputedFreq = f
			best.ErrorCents = cents
		}
		if math.Abs(cents) <= req.ToleranceCents {
			break
		}
		if f > req.TargetFreq {
			lo = mid
		} else {
			hi = mid
		}
		if hi-lo < minBracket {
			break
		}
	}
	return best, nil
}

// FindLengthsForNotes runs an independent search per note in order.
func FindLengthsForNotes(notes []NoteTarget, req Request, progress ProgressFunc) ([]model.LengthResult, error) {
	out := make([]model.LengthResult, 0, len(notes))
	for i, note := range notes {
		if progress != nil {
			progress(note.Name, i, len(notes))
		}
		noteReq := req
		noteReq.TargetFreq = note.Frequency
		res, err := FindOptimalLength(noteReq)
		if err != nil {
			return out, fmt.Errorf("note %s: %w", note.Name, err)
		}
		res.Note = note.Name
		out = append(out, res)
	}
	return out, nil
}

func boundResult(req Request, length, f float64) model.LengthResult {
	return model.LengthResult{
		Target:       req.TargetFreq,
		Length:       length,
		ComputedFreq: f,
		Iterations:   1,
		ErrorCents:   pitch.Cents(f, req.TargetFreq),
	}
}
