package pitch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCentsIdentityAndOctave(t *testing.T) {
	for _, f := range []float64{27.5, 175, 440, 1234.5} {
		assert.Equal(t, 0.0, Cents(f, f))
		assert.InDelta(t, 1200, Cents(2*f, f), 1e-9)
		assert.InDelta(t, -1200, Cents(f, 2*f), 1e-9)
	}
}

func TestParseNote(t *testing.T) {
	cases := map[string]int{"A4": 69, "C4": 60, "C#4": 61, "Db4": 61, "B3": 59, "C-1": 0, "a5": 81}
	for name, want := range cases {
		got, err := ParseNote(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
	for _, bad := range []string{"", "H4", "A", "C#x"} {
		_, err := ParseNote(bad)
		assert.Error(t, err, bad)
	}
}

func TestNoteFrequencyAndName(t *testing.T) {
	f, err := NoteFrequency("F3")
	require.NoError(t, err)
	assert.InDelta(t, 174.614, f, 1e-3)

	name, cents := NoteName(175)
	assert.Equal(t, "F3", name)
	assert.InDelta(t, 3.82, cents, 0.01)
}

func TestNoteRange(t *testing.T) {
	notes, err := NoteRange("C4", "E4")
	require.NoError(t, err)
	assert.Equal(t, []string{"C4", "C#4", "D4", "D#4", "E4"}, notes)

	_, err = NoteRange("E4", "C4")
	assert.Error(t, err)
}
