package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beargallbladder/domain-runner-sub003/internal/model"
	"github.com/beargallbladder/domain-runner-sub003/internal/resilience"
)

func TestSQLite_DLQ_EnqueueAndDequeue(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	entry := resilience.DLQEntry{
		ID:           "dlq-1",
		RunID:        "run-2025-03-01T14",
		Combo:        model.Combo{Domain: "acme.com", PromptID: "p-brand", Model: "gpt-4o"},
		Error:        "503 Service Unavailable",
		ErrorType:    "transient",
		RetryCount:   0,
		MaxRetries:   3,
		NextRetryAt:  time.Now().Add(-1 * time.Minute), // already past → eligible
		CreatedAt:    time.Now(),
		LastFailedAt: time.Now(),
	}
	require.NoError(t, st.EnqueueDLQ(ctx, entry))

	entries, err := st.DequeueDLQ(ctx, resilience.DLQFilter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "dlq-1", entries[0].ID)
	assert.Equal(t, "run-2025-03-01T14", entries[0].RunID)
	assert.Equal(t, "acme.com", entries[0].Combo.Domain)
	assert.Equal(t, "p-brand", entries[0].Combo.PromptID)
	assert.Equal(t, "gpt-4o", entries[0].Combo.Model)
	assert.Equal(t, "transient", entries[0].ErrorType)
	assert.Equal(t, 0, entries[0].RetryCount)
}

func TestSQLite_DLQ_DequeueFiltersErrorType(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	// Enqueue transient and permanent entries.
	transient := resilience.DLQEntry{
		ID:           "dlq-t",
		RunID:        "run-1",
		Combo:        model.Combo{Domain: "t.com", PromptID: "p-brand", Model: "gpt-4o"},
		Error:        "timeout",
		ErrorType:    "transient",
		MaxRetries:   3,
		NextRetryAt:  time.Now().Add(-1 * time.Minute),
		CreatedAt:    time.Now(),
		LastFailedAt: time.Now(),
	}
	permanent := resilience.DLQEntry{
		ID:           "dlq-p",
		RunID:        "run-1",
		Combo:        model.Combo{Domain: "p.com", PromptID: "p-brand", Model: "gpt-4o"},
		Error:        "invalid api key",
		ErrorType:    "permanent",
		MaxRetries:   3,
		NextRetryAt:  time.Now().Add(-1 * time.Minute),
		CreatedAt:    time.Now(),
		LastFailedAt: time.Now(),
	}
	require.NoError(t, st.EnqueueDLQ(ctx, transient))
	require.NoError(t, st.EnqueueDLQ(ctx, permanent))

	// Query transient only.
	entries, err := st.DequeueDLQ(ctx, resilience.DLQFilter{ErrorType: "transient"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "dlq-t", entries[0].ID)
}

func TestSQLite_DLQ_DequeueFiltersRunID(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	for _, e := range []resilience.DLQEntry{
		{
			ID:           "dlq-r1",
			RunID:        "run-1",
			Combo:        model.Combo{Domain: "a.com", PromptID: "p-brand", Model: "gpt-4o"},
			Error:        "timeout",
			ErrorType:    "transient",
			MaxRetries:   3,
			NextRetryAt:  time.Now().Add(-1 * time.Minute),
			CreatedAt:    time.Now(),
			LastFailedAt: time.Now(),
		},
		{
			ID:           "dlq-r2",
			RunID:        "run-2",
			Combo:        model.Combo{Domain: "b.com", PromptID: "p-brand", Model: "gpt-4o"},
			Error:        "timeout",
			ErrorType:    "transient",
			MaxRetries:   3,
			NextRetryAt:  time.Now().Add(-1 * time.Minute),
			CreatedAt:    time.Now(),
			LastFailedAt: time.Now(),
		},
	} {
		require.NoError(t, st.EnqueueDLQ(ctx, e))
	}

	entries, err := st.DequeueDLQ(ctx, resilience.DLQFilter{RunID: "run-2"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "dlq-r2", entries[0].ID)
}

func TestSQLite_DLQ_DequeueRespectsNextRetryAt(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	// Entry with future next_retry_at — should NOT be dequeued.
	entry := resilience.DLQEntry{
		ID:           "dlq-future",
		RunID:        "run-1",
		Combo:        model.Combo{Domain: "future.com", PromptID: "p-brand", Model: "gpt-4o"},
		Error:        "timeout",
		ErrorType:    "transient",
		MaxRetries:   3,
		NextRetryAt:  time.Now().Add(1 * time.Hour), // future
		CreatedAt:    time.Now(),
		LastFailedAt: time.Now(),
	}
	require.NoError(t, st.EnqueueDLQ(ctx, entry))

	entries, err := st.DequeueDLQ(ctx, resilience.DLQFilter{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSQLite_DLQ_DequeueRespectsMaxRetries(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	// Entry that has exhausted retries.
	entry := resilience.DLQEntry{
		ID:           "dlq-exhausted",
		RunID:        "run-1",
		Combo:        model.Combo{Domain: "exhausted.com", PromptID: "p-brand", Model: "gpt-4o"},
		Error:        "always fails",
		ErrorType:    "transient",
		RetryCount:   3,
		MaxRetries:   3,
		NextRetryAt:  time.Now().Add(-1 * time.Minute),
		CreatedAt:    time.Now(),
		LastFailedAt: time.Now(),
	}
	require.NoError(t, st.EnqueueDLQ(ctx, entry))

	entries, err := st.DequeueDLQ(ctx, resilience.DLQFilter{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSQLite_DLQ_IncrementRetry(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	entry := resilience.DLQEntry{
		ID:           "dlq-inc",
		RunID:        "run-1",
		Combo:        model.Combo{Domain: "inc.com", PromptID: "p-brand", Model: "gpt-4o"},
		Error:        "first error",
		ErrorType:    "transient",
		MaxRetries:   5,
		NextRetryAt:  time.Now().Add(-1 * time.Minute),
		CreatedAt:    time.Now(),
		LastFailedAt: time.Now(),
	}
	require.NoError(t, st.EnqueueDLQ(ctx, entry))

	// Increment retry.
	nextRetry := time.Now().Add(5 * time.Minute)
	require.NoError(t, st.IncrementDLQRetry(ctx, "dlq-inc", nextRetry, "second error"))

	// Dequeue should return nothing (next_retry_at is in future).
	entries, err := st.DequeueDLQ(ctx, resilience.DLQFilter{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, entries, "entry should not be eligible yet")
}

func TestSQLite_DLQ_IncrementRetry_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	err := st.IncrementDLQRetry(ctx, "nonexistent", time.Now(), "error")
	assert.Error(t, err)
}

func TestSQLite_DLQ_Remove(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	entry := resilience.DLQEntry{
		ID:           "dlq-rm",
		RunID:        "run-1",
		Combo:        model.Combo{Domain: "rm.com", PromptID: "p-brand", Model: "gpt-4o"},
		Error:        "error",
		ErrorType:    "transient",
		MaxRetries:   3,
		NextRetryAt:  time.Now().Add(-1 * time.Minute),
		CreatedAt:    time.Now(),
		LastFailedAt: time.Now(),
	}
	require.NoError(t, st.EnqueueDLQ(ctx, entry))

	// Verify it's there.
	count, err := st.CountDLQ(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Remove it.
	require.NoError(t, st.RemoveDLQ(ctx, "dlq-rm"))

	count, err = st.CountDLQ(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestSQLite_DLQ_Count(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	// Initially empty.
	count, err := st.CountDLQ(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// Add entries.
	for i := 0; i < 3; i++ {
		entry := resilience.DLQEntry{
			ID:           "dlq-count-" + string(rune('a'+i)),
			RunID:        "run-1",
			Combo:        model.Combo{Domain: "count.com", PromptID: "p-brand", Model: "gpt-4o"},
			Error:        "error",
			ErrorType:    "transient",
			MaxRetries:   3,
			NextRetryAt:  time.Now(),
			CreatedAt:    time.Now(),
			LastFailedAt: time.Now(),
		}
		require.NoError(t, st.EnqueueDLQ(ctx, entry))
	}

	count, err = st.CountDLQ(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestSQLite_DLQ_EnqueueReplace(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	entry := resilience.DLQEntry{
		ID:           "dlq-replace",
		RunID:        "run-1",
		Combo:        model.Combo{Domain: "replace.com", PromptID: "p-brand", Model: "gpt-4o"},
		Error:        "first error",
		ErrorType:    "transient",
		MaxRetries:   3,
		NextRetryAt:  time.Now().Add(-1 * time.Minute),
		CreatedAt:    time.Now(),
		LastFailedAt: time.Now(),
	}
	require.NoError(t, st.EnqueueDLQ(ctx, entry))

	// Re-enqueue with same ID but updated error.
	entry.Error = "second error"
	require.NoError(t, st.EnqueueDLQ(ctx, entry))

	// Should still be one entry.
	count, err := st.CountDLQ(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	entries, err := st.DequeueDLQ(ctx, resilience.DLQFilter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "second error", entries[0].Error)
}

func TestSQLite_DLQ_DequeueOrdersByNextRetry(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	now := time.Now()
	// Enqueue entries with different next_retry_at times.
	for i, id := range []string{"dlq-c", "dlq-a", "dlq-b"} {
		entry := resilience.DLQEntry{
			ID:           id,
			RunID:        "run-1",
			Combo:        model.Combo{Domain: id + ".com", PromptID: "p-brand", Model: "gpt-4o"},
			Error:        "error",
			ErrorType:    "transient",
			MaxRetries:   3,
			NextRetryAt:  now.Add(time.Duration(-3+i) * time.Minute),
			CreatedAt:    now,
			LastFailedAt: now,
		}
		require.NoError(t, st.EnqueueDLQ(ctx, entry))
	}

	entries, err := st.DequeueDLQ(ctx, resilience.DLQFilter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	// Should be ordered by next_retry_at ascending.
	assert.Equal(t, "dlq-c", entries[0].ID) // earliest
	assert.Equal(t, "dlq-a", entries[1].ID)
	assert.Equal(t, "dlq-b", entries[2].ID)
}
