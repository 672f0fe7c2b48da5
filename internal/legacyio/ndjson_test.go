package legacyio

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadNDJSON(t *testing.T) {
	t.Parallel()

	input := `{"id": 1, "domain": "site1.com", "raw_response": "answer one"}

{"id": 2, "domain": "site2.com", "latency_ms": 120}
`

	rows, err := ReadNDJSON(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, rows, 2, "blank lines are skipped")

	assert.Equal(t, float64(1), rows[0]["id"])
	assert.Equal(t, "site1.com", rows[0]["domain"])
	assert.Equal(t, float64(120), rows[1]["latency_ms"])
}

func TestReadNDJSONMalformedLinesSkipped(t *testing.T) {
	t.Parallel()

	input := `{"id": 1, "domain": "good.com"}
{not valid json
{"id": 2, "domain": "also-good.com"}
`

	rows, err := ReadNDJSON(context.Background(), strings.NewReader(input))
	require.NoError(t, err, "a malformed line must not abort the export")
	require.Len(t, rows, 2)
	assert.Equal(t, "good.com", rows[0]["domain"])
	assert.Equal(t, "also-good.com", rows[1]["domain"])
}

func TestReadNDJSONEmpty(t *testing.T) {
	t.Parallel()

	rows, err := ReadNDJSON(context.Background(), strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestReadNDJSONCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ReadNDJSON(ctx, strings.NewReader(`{"id": 1}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cancelled")
}

func TestNDJSONReaderInterface(t *testing.T) {
	t.Parallel()

	var r Reader = &NDJSONReader{R: strings.NewReader(`{"id": 1}`)}
	rows, err := r.Read(context.Background())
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
