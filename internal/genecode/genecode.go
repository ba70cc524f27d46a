package genecode

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
)

const (
	Version  = 1
	prefix   = "tb"
	maxGenes = math.MaxUint16
)

var ErrMalformed = errors.New("malformed gene code")

// Encode packs a version byte, a big-endian gene count and each gene's IEEE
// 754 bits into a URL-safe text code.
func Encode(genes []float64) (string, error) {
	if len(genes) > maxGenes {
		return "", fmt.Errorf("too many genes: %d", len(genes))
	}
	buf := make([]byte, 3+8*len(genes))
	buf[0] = Version
	binary.BigEndian.PutUint16(buf[1:3], uint16(len(genes)))
	for i, g := range genes {
		binary.BigEndian.PutUint64(buf[3+8*i:], math.Float64bits(g))
	}
	return prefix + base64.RawURLEncoding.EncodeToString(buf), nil
}

func Decode(code string) ([]float64, error) {
	code = strings.TrimSpace(code)
	if !strings.HasPrefix(code, prefix) {
		return nil, fmt.Errorf("%w: missing prefix", ErrMalformed)
	}
	buf, err := base64.RawURLEncoding.DecodeString(code[len(prefix):])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(buf) < 3 {
		return nil, fmt.Errorf("%w: truncated header", ErrMalformed)
	}
	if buf[0] != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrMalformed, buf[0])
	}
	n := int(binary.BigEndian.Uint16(buf[1:3]))
	if len(buf) != 3+8*n {
		return nil, fmt.Errorf("%w: want %d genes, payload has %d bytes", ErrMalformed, n, len(buf)-3)
	}
	genes := make([]float64, n)
	for i := range genes {
		genes[i] = math.Float64frombits(binary.BigEndian.Uint64(buf[3+8*i:]))
	}
	return genes, nil
}
