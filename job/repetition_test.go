package job

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRepetitionVariants(t *testing.T) {
	tests := []struct {
		name  string
		mode  string
		value string
		want  Repetition
	}{
		{"every integer", "every", `6`, Every(6)},
		{"every numeric string", "every", `"12"`, Every(12)},
		{"at single integer", "at", `8`, At(8)},
		{"at delimited string", "at", `"8, 16"`, At(8, 16)},
		{"at explicit list", "at", `[16, 8]`, At(8, 16)},
		{"at duplicate hours", "at", `[8, 8, 16]`, At(8, 16)},
		{"unknown mode", "weekly", `3`, Repetition{Mode: "weekly"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRepetition(tt.mode, json.RawMessage(tt.value))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRepetitionRejectsGarbage(t *testing.T) {
	_, err := ParseRepetition("every", json.RawMessage(`"six"`))
	assert.Error(t, err)

	_, err = ParseRepetition("at", json.RawMessage(`"8;16"`))
	assert.Error(t, err)

	_, err = ParseRepetition("at", json.RawMessage(`{"hour": 8}`))
	assert.Error(t, err)
}

func TestHourSetDropsOutOfRange(t *testing.T) {
	got, err := ParseRepetition("at", json.RawMessage(`[-1, 8, 24, 16]`))
	require.NoError(t, err)
	assert.Equal(t, []int{8, 16}, got.Hours)
}

func TestValueJSONCanonicalForm(t *testing.T) {
	v, err := Every(6).valueJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `6`, string(v))

	v, err = At(16, 8).valueJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `[8,16]`, string(v))
}
