// Package store persists pipeline output: immutable record tables,
// append-only provenance and event logs, manifest state, checkpoints,
// and the dead letter queue. Three drivers share one interface: an
// in-memory store for tests and dry runs, SQLite for single-node use,
// and Postgres for shared deployments.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/beargallbladder/domain-runner-sub003/internal/config"
	"github.com/beargallbladder/domain-runner-sub003/internal/model"
	"github.com/beargallbladder/domain-runner-sub003/internal/resilience"
)

// RecordFilter specifies criteria for listing records.
type RecordFilter struct {
	Domain string `json:"domain,omitempty"`
	Model  string `json:"model,omitempty"`
	Status string `json:"status,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// EventFilter specifies criteria for listing events.
type EventFilter struct {
	Type  string `json:"type,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// Totals summarizes table sizes for status reporting.
type Totals struct {
	RawRecords        int64 `json:"raw_records"`
	NormalizedRecords int64 `json:"normalized_records"`
	ProvenanceEntries int64 `json:"provenance_entries"`
	Manifests         int64 `json:"manifests"`
	Events            int64 `json:"events"`
	DLQEntries        int64 `json:"dlq_entries"`
}

// Store defines the persistence interface for the query pipeline.
// Record saves are insert-ignore: a record whose content-addressed id
// already exists is left untouched, and the returned count covers only
// rows actually written. Get methods return (nil, nil) when the row
// does not exist.
type Store interface {
	// Records
	SaveRawRecords(ctx context.Context, recs []model.RawRecord) (int, error)
	SaveNormalizedRecords(ctx context.Context, recs []model.NormalizedRecord) (int, error)
	GetRawRecord(ctx context.Context, id string) (*model.RawRecord, error)
	GetNormalizedRecord(ctx context.Context, id string) (*model.NormalizedRecord, error)
	ListRawRecords(ctx context.Context, filter RecordFilter) ([]model.RawRecord, error)
	ListNormalizedRecords(ctx context.Context, filter RecordFilter) ([]model.NormalizedRecord, error)

	// Provenance (append-only)
	AppendProvenance(ctx context.Context, entries []model.ProvenanceEntry) error
	ListProvenance(ctx context.Context, legacyKey string, limit int) ([]model.ProvenanceEntry, error)

	// Manifests
	SaveManifest(ctx context.Context, m model.Manifest) error
	GetManifest(ctx context.Context, runID string) (*model.Manifest, error)

	// Events (append-only)
	AppendEvents(ctx context.Context, events []model.Event) error
	ListEvents(ctx context.Context, filter EventFilter) ([]model.Event, error)

	// Checkpoints
	SaveCheckpoint(ctx context.Context, runID string, data []byte) error
	LoadCheckpoint(ctx context.Context, runID string) ([]byte, error)
	DeleteCheckpoint(ctx context.Context, runID string) error

	// Dead letter queue
	EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error
	DequeueDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error)
	IncrementDLQRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error
	RemoveDLQ(ctx context.Context, id string) error
	CountDLQ(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Stats(ctx context.Context) (Totals, error)
	Ping(ctx context.Context) error
	Close() error
}

// New selects and migrates a store driver from configuration.
func New(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite":
		st, err := NewSQLite(cfg.Path)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			st.Close() //nolint:errcheck
			return nil, err
		}
		return st, nil
	case "postgres":
		st, err := NewPostgres(ctx, cfg.DatabaseURL, &PoolConfig{MaxConns: cfg.MaxConns, MinConns: cfg.MinConns})
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			st.Close() //nolint:errcheck
			return nil, err
		}
		return st, nil
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
