package middleware

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCorrelationID(t *testing.T) {
	for _, id := range []string{
		"abc-123",
		"a",
		"UUID-like-0b5c1e",
		"sonde-ñandú-7", // anything the ingest side accepts must pass here too
		strings.Repeat("a", 128),
	} {
		assert.NoError(t, ValidateCorrelationID(id), id)
	}

	for name, id := range map[string]string{
		"empty":        "",
		"space":        "a b",
		"tab":          "a\tb",
		"newline":      "a\nb",
		"control char": "a\x00b",
		"too long":     strings.Repeat("a", 129),
	} {
		require.Error(t, ValidateCorrelationID(id), name)
	}
}

func TestParsePagination(t *testing.T) {
	offset, limit := ParsePagination("", "")
	assert.Equal(t, 0, offset)
	assert.Equal(t, 20, limit)

	offset, limit = ParsePagination("5", "50")
	assert.Equal(t, 5, offset)
	assert.Equal(t, 50, limit)

	offset, limit = ParsePagination("-3", "1000")
	assert.Equal(t, 0, offset)
	assert.Equal(t, 100, limit)
}
