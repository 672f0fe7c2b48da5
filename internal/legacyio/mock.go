package legacyio

import (
	"context"
	"fmt"
	"time"
)

// MockReader serves a fixed row set through the Reader interface, for
// tests and dry-run drills.
type MockReader struct {
	Rows []map[string]any
}

func (m *MockReader) Read(ctx context.Context) ([]map[string]any, error) {
	return append([]map[string]any(nil), m.Rows...), nil
}

var mockModels = []string{"gpt-4o", "claude-3.5", "mistral-7b"}

// MockBatch builds n deterministic synthetic legacy rows, one per
// minute, cycling through a small model set. Useful for backfill drills
// without a real export.
func MockBatch(n int) []map[string]any {
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	rows := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, map[string]any{
			"id":           i + 1,
			"timestamp":    base.Add(time.Duration(i) * time.Minute).Format(time.RFC3339),
			"model_name":   mockModels[i%len(mockModels)],
			"domain":       fmt.Sprintf("domain%03d.com", i),
			"prompt_text":  "What does this company do?",
			"raw_response": fmt.Sprintf(`{"answer": "Synthetic answer %d", "confidence": 0.8}`, i),
			"latency_ms":   100 + i,
		})
	}
	return rows
}
