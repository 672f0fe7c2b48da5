package resilience

import (
	"strings"
	"time"

	"github.com/beargallbladder/domain-runner-sub003/internal/model"
)

// DLQEntry is a failed (domain, prompt, model) combination parked for a
// later gap-fill pass.
type DLQEntry struct {
	ID           string      `json:"id"`
	RunID        string      `json:"run_id"`
	Combo        model.Combo `json:"combo"`
	Error        string      `json:"error"`
	ErrorType    string      `json:"error_type"` // "transient" or "permanent"
	RetryCount   int         `json:"retry_count"`
	MaxRetries   int         `json:"max_retries"`
	NextRetryAt  time.Time   `json:"next_retry_at"`
	CreatedAt    time.Time   `json:"created_at"`
	LastFailedAt time.Time   `json:"last_failed_at"`
}

// DLQFilter specifies criteria for querying the dead letter queue.
type DLQFilter struct {
	RunID     string `json:"run_id,omitempty"`
	ErrorType string `json:"error_type,omitempty"` // "transient", "permanent", or "" for all
	Limit     int    `json:"limit,omitempty"`
}

// CanRetry returns true if this entry hasn't exceeded its max retry count.
func (e *DLQEntry) CanRetry() bool {
	return e.RetryCount < e.MaxRetries
}

// ClassifyError categorizes an error as "transient" or "permanent".
func ClassifyError(err error) string {
	if IsTransient(err) {
		return "transient"
	}
	return "permanent"
}

// ClassifyReason categorizes a stored failure reason string the same way
// ClassifyError treats live errors. Manifest observations carry reasons as
// text, so gap-fill entries built from a closed run only have the message.
func ClassifyReason(reason string) string {
	if reason == "" {
		return "permanent"
	}
	lower := strings.ToLower(reason)
	if strings.Contains(lower, "timeout") || strings.Contains(lower, "429") ||
		strings.Contains(lower, "rate limit") || strings.Contains(lower, "unavailable") {
		return "transient"
	}
	return "permanent"
}
