package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/beargallbladder/domain-runner-sub003/internal/model"
	"github.com/beargallbladder/domain-runner-sub003/internal/store"
)

func TestFormatTotals(t *testing.T) {
	var buf bytes.Buffer
	formatTotals(&buf, store.Totals{
		RawRecords:        1200,
		NormalizedRecords: 1180,
		ProvenanceEntries: 900,
		Manifests:         4,
		Events:            31,
		DLQEntries:        7,
	})
	out := buf.String()

	assert.Contains(t, out, "Raw records:")
	assert.Contains(t, out, "1200")
	assert.Contains(t, out, "Dead letter queue:")
	assert.Contains(t, out, "7")
}

func TestFormatEvents(t *testing.T) {
	events := []model.Event{
		{
			ID:        "ev-1",
			Type:      model.EventManifestClosed,
			Timestamp: time.Date(2026, 8, 23, 14, 5, 0, 0, time.UTC),
			Payload:   map[string]any{"run_id": "0123456789abcdef"},
		},
		{
			ID:        "ev-2",
			Type:      model.EventDriftAlert,
			Timestamp: time.Date(2026, 8, 23, 14, 6, 0, 0, time.UTC),
			Payload:   map[string]any{"domain": "example.com"},
		},
	}

	var buf bytes.Buffer
	formatEvents(&buf, events)
	out := buf.String()

	assert.Contains(t, out, "TYPE")
	assert.Contains(t, out, model.EventManifestClosed)
	assert.Contains(t, out, "01234567")
	assert.NotContains(t, out, "0123456789abcdef")
	assert.Contains(t, out, model.EventDriftAlert)
	assert.Contains(t, out, "2026-08-23 14:05:00")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "01234567", truncateID("0123456789abcdef"))
	assert.Equal(t, "short", truncateID("short"))
}
