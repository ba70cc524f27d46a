package pitch

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ReferenceA4 is the equal-temperament reference (MIDI note 69).
const ReferenceA4 = 440.0

var (
	sharpNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}
	semitoneOf = map[byte]int{'C': 0, 'D': 2, 'E': 4, 'F': 5, 'G': 7, 'A': 9, 'B': 11}
)

// Cents is the pitch distance 1200*log2(f/target).
func Cents(f, target float64) float64 {
	return 1200 * math.Log2(f/target)
}

// MIDIFrequency returns the equal-temperament frequency of a MIDI note.
func MIDIFrequency(midi int) float64 {
	return ReferenceA4 * math.Pow(2, float64(midi-69)/12)
}

// ParseNote accepts names like "A4", "C#5", "Bb3" and returns the MIDI number.
func ParseNote(name string) (int, error) {
	s := strings.TrimSpace(name)
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid note name: %q", name)
	}
	base, ok := semitoneOf[strings.ToUpper(s[:1])[0]]
	if !ok {
		return 0, fmt.Errorf("invalid note letter: %q", name)
	}
	rest := s[1:]
	switch {
	case strings.HasPrefix(rest, "#"):
		base++
		rest = rest[1:]
	case strings.HasPrefix(rest, "b"):
		base--
		rest = rest[1:]
	}
	octave, err := strconv.Atoi(rest)
	if err != nil {
		return 0, fmt.Errorf("invalid note octave: %q", name)
	}
	return (octave+1)*12 + base, nil
}

func NoteFrequency(name string) (float64, error) {
	midi, err := ParseNote(name)
	if err != nil {
		return 0, err
	}
	return MIDIFrequency(midi), nil
}

// NoteName returns the nearest sharp-spelled note name and the offset in cents.
func NoteName(f float64) (string, float64) {
	if f <= 0 {
		return "", math.NaN()
	}
	exact := 69 + 12*math.Log2(f/ReferenceA4)
	midi := int(math.Round(exact))
	octave := int(math.Floor(float64(midi)/12)) - 1
	idx := ((midi % 12) + 12) % 12
	return sharpNames[idx] + strconv.Itoa(octave), (exact - float64(midi)) * 100
}

// NoteRange lists every semitone from start to end inclusive.
func NoteRange(start, end string) ([]string, error) {
	lo, err := ParseNote(start)
	if err != nil {
		return nil, err
	}
	hi, err := ParseNote(end)
	if err != nil {
		return nil, err
	}
	if hi < lo {
		return nil, fmt.Errorf("note range %s..%s is descending", start, end)
	}
	out := make([]string, 0, hi-lo+1)
	for m := lo; m <= hi; m++ {
		name, _ := NoteName(MIDIFrequency(m))
		out = append(out, name)
	}
	return out, nil
}
