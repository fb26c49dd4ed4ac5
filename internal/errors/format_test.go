package errors

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatForCLI_IncludesHintAndCode(t *testing.T) {
	// Given: an error with a suggestion
	err := UnknownSeed(99)

	// When: formatting for the CLI
	out := FormatForCLI(err)

	// Then: message, hint and code are present
	assert.Contains(t, out, "Error: seed 99 is not a concept in the graph")
	assert.Contains(t, out, "Hint: use 'conceptrank lookup'")
	assert.Contains(t, out, "Code: ERR_403_UNKNOWN_SEED")
	assert.Empty(t, FormatForCLI(nil))
}

func TestFormatForCLI_WrapsPlainErrors(t *testing.T) {
	out := FormatForCLI(errors.New("boom"))
	assert.Contains(t, out, "Code: ERR_504_INTERNAL")
}

func TestFormatJSON_RoundTripsFields(t *testing.T) {
	// Given: a corrupt cache error with a cause
	err := CorruptCache("adjacency.bin", errors.New("checksum mismatch"))

	// When: encoding to JSON
	data, jerr := FormatJSON(err)
	require.NoError(t, jerr)

	// Then: fields are preserved
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, ErrCodeCorruptCache, decoded["code"])
	assert.Equal(t, "IO", decoded["category"])
	assert.Equal(t, "FATAL", decoded["severity"])
	assert.Equal(t, "checksum mismatch", decoded["cause"])
}

func TestLogAttrs(t *testing.T) {
	attrs := LogAttrs(DegenerateRow(3))
	assert.Contains(t, attrs, "error_code")
	assert.Contains(t, attrs, ErrCodeDegenerateRow)
	assert.Contains(t, attrs, "detail_row")

	assert.Equal(t, []any{"error", "x"}, LogAttrs(errors.New("x")))
	assert.Nil(t, LogAttrs(nil))
}
