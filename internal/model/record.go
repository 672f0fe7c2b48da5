package model

// Raw record outcome statuses assigned by the runner and the mapper.
const (
	StatusSuccess = "success"
	StatusTimeout = "timeout"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Normalized record validity classes.
const (
	NormValid     = "valid"
	NormMalformed = "malformed"
	NormEmpty     = "empty"
)

// RawRecord is one attempted model invocation. Immutable once written.
// The ID is content-addressed, so repeating the same combination within
// the same minute bucket reproduces the same record identity.
type RawRecord struct {
	ID        string `json:"id"`
	Domain    string `json:"domain"`
	PromptID  string `json:"prompt_id"`
	Model     string `json:"model"`
	Timestamp string `json:"ts_iso"`
	Raw       string `json:"raw"`
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
	Attempt   int    `json:"attempt"`
}

// NormalizedRecord is derived 1:1 from a RawRecord via RawRef.
// Confidence is nil when the payload carried none.
type NormalizedRecord struct {
	ID         string   `json:"id"`
	Domain     string   `json:"domain"`
	PromptID   string   `json:"prompt_id"`
	Model      string   `json:"model"`
	Timestamp  string   `json:"ts_iso"`
	Answer     string   `json:"answer"`
	Confidence *float64 `json:"confidence"`
	Citations  []string `json:"citations"`
	Status     string   `json:"normalized_status"`
	RawRef     string   `json:"raw_ref"`
}
