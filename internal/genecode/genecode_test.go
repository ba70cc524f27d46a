package genecode

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

func TestEncodeDecodeExactRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	inputs := [][]float64{
		nil,
		{0.1, 0.005, -0.002},
		{math.SmallestNonzeroFloat64, math.MaxFloat64, -0.0, 1.0 / 3.0},
	}
	random := make([]float64, 41)
	for i := range random {
		random[i] = rng.NormFloat64() * math.Pow(10, float64(rng.Intn(20)-10))
	}
	inputs = append(inputs, random)

	for _, genes := range inputs {
		code, err := Encode(genes)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		decoded, err := Decode(code)
		if err != nil {
			t.Fatalf("decode %q: %v", code, err)
		}
		if len(decoded) != len(genes) {
			t.Fatalf("length mismatch: got=%d want=%d", len(decoded), len(genes))
		}
		for i := range genes {
			if math.Float64bits(decoded[i]) != math.Float64bits(genes[i]) {
				t.Fatalf("gene %d: got=%v want=%v", i, decoded[i], genes[i])
			}
		}
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	good, _ := Encode([]float64{1, 2})
	for _, code := range []string{"", "xx", "tb!!", "tbAQ", good[:len(good)-2]} {
		if _, err := Decode(code); !errors.Is(err, ErrMalformed) {
			t.Fatalf("code %q: expected ErrMalformed, got %v", code, err)
		}
	}
}
