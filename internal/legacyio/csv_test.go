package legacyio

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCSV(t *testing.T) {
	t.Parallel()

	input := `id,domain,model_name,raw_response,latency_ms
1,site1.com,gpt-4o,answer one,120
2,site2.com,claude-3.5,answer two,95
`

	rows, err := ReadCSV(context.Background(), strings.NewReader(input), "")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "1", rows[0]["id"])
	assert.Equal(t, "site1.com", rows[0]["domain"])
	assert.Equal(t, "120", rows[0]["latency_ms"], "csv values stay strings for the mapper to coerce")
	assert.Equal(t, "claude-3.5", rows[1]["model_name"])
}

func TestReadCSVRaggedRows(t *testing.T) {
	t.Parallel()

	input := "id,domain,raw_response\n1,short.com\n2,full.com,complete answer\n"

	rows, err := ReadCSV(context.Background(), strings.NewReader(input), "")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	_, hasRaw := rows[0]["raw_response"]
	assert.False(t, hasRaw, "short rows leave trailing columns absent")
	assert.Equal(t, "complete answer", rows[1]["raw_response"])
}

func TestReadCSVLatin1(t *testing.T) {
	t.Parallel()

	// "café.com" with a latin-1 encoded é (0xE9).
	input := append([]byte("domain\ncaf"), 0xE9)
	input = append(input, []byte(".com\n")...)

	rows, err := ReadCSV(context.Background(), bytes.NewReader(input), "latin1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "café.com", rows[0]["domain"])
}

func TestReadCSVUnsupportedCharset(t *testing.T) {
	t.Parallel()

	_, err := ReadCSV(context.Background(), strings.NewReader("a\n1\n"), "no-such-charset")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported charset")
}

func TestReadCSVEmpty(t *testing.T) {
	t.Parallel()

	rows, err := ReadCSV(context.Background(), strings.NewReader(""), "")
	require.NoError(t, err)
	assert.Empty(t, rows)
}
