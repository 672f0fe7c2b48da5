package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/beargallbladder/domain-runner-sub003/internal/db"
	"github.com/beargallbladder/domain-runner-sub003/internal/model"
	"github.com/beargallbladder/domain-runner-sub003/internal/resilience"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"get_raw_record":        `SELECT id, domain, prompt_id, model, ts_iso, raw, status, latency_ms, attempt FROM raw_records WHERE id = $1`,
	"get_normalized_record": `SELECT id, domain, prompt_id, model, ts_iso, answer, confidence, citations, normalized_status, raw_ref FROM normalized_records WHERE id = $1`,
	"get_manifest":          `SELECT manifest FROM manifests WHERE run_id = $1`,
	"save_manifest":         `INSERT INTO manifests (run_id, manifest, updated_at) VALUES ($1, $2, $3) ON CONFLICT (run_id) DO UPDATE SET manifest = $2, updated_at = $3`,
	"count_dlq":             `SELECT COUNT(*) FROM dead_letter_queue`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS raw_records (
	id         TEXT PRIMARY KEY,
	domain     TEXT NOT NULL,
	prompt_id  TEXT NOT NULL,
	model      TEXT NOT NULL,
	ts_iso     TEXT NOT NULL,
	raw        TEXT NOT NULL,
	status     TEXT NOT NULL,
	latency_ms BIGINT NOT NULL DEFAULT 0,
	attempt    INTEGER NOT NULL DEFAULT 1,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS normalized_records (
	id                TEXT PRIMARY KEY,
	domain            TEXT NOT NULL,
	prompt_id         TEXT NOT NULL,
	model             TEXT NOT NULL,
	ts_iso            TEXT NOT NULL,
	answer            TEXT NOT NULL,
	confidence        DOUBLE PRECISION,
	citations         JSONB NOT NULL DEFAULT '[]'::jsonb,
	normalized_status TEXT NOT NULL,
	raw_ref           TEXT NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS provenance (
	id                 BIGSERIAL PRIMARY KEY,
	legacy_source_id   TEXT NOT NULL,
	legacy_primary_key TEXT NOT NULL,
	new_id_raw         TEXT NOT NULL DEFAULT '',
	new_id_norm        TEXT NOT NULL DEFAULT '',
	ingested_at        TIMESTAMPTZ NOT NULL,
	mapping_version    TEXT NOT NULL,
	checksum           TEXT NOT NULL,
	status             TEXT NOT NULL,
	reason             TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS manifests (
	run_id     TEXT PRIMARY KEY,
	manifest   JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
	seq       BIGSERIAL,
	id        TEXT PRIMARY KEY,
	type      TEXT NOT NULL,
	timestamp TIMESTAMPTZ NOT NULL,
	payload   JSONB NOT NULL DEFAULT '{}'::jsonb
);

CREATE TABLE IF NOT EXISTS checkpoints (
	run_id     TEXT PRIMARY KEY,
	data       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS dead_letter_queue (
	id             TEXT PRIMARY KEY,
	run_id         TEXT NOT NULL,
	combo          JSONB NOT NULL,
	error          TEXT NOT NULL,
	error_type     TEXT NOT NULL DEFAULT 'transient',
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 3,
	next_retry_at  TIMESTAMPTZ NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_failed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_raw_records_domain ON raw_records(domain);
CREATE INDEX IF NOT EXISTS idx_raw_records_status ON raw_records(status);
CREATE INDEX IF NOT EXISTS idx_normalized_records_status ON normalized_records(normalized_status);
CREATE INDEX IF NOT EXISTS idx_provenance_legacy_key ON provenance(legacy_primary_key);
CREATE INDEX IF NOT EXISTS idx_events_type ON events(type);
CREATE INDEX IF NOT EXISTS idx_events_seq ON events(seq);
CREATE INDEX IF NOT EXISTS idx_dlq_error_type ON dead_letter_queue(error_type);
CREATE INDEX IF NOT EXISTS idx_dlq_next_retry ON dead_letter_queue(next_retry_at);
CREATE INDEX IF NOT EXISTS idx_dlq_run_id ON dead_letter_queue(run_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveRawRecords(ctx context.Context, recs []model.RawRecord) (int, error) {
	rows := make([][]any, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, []any{r.ID, r.Domain, r.PromptID, r.Model, r.Timestamp, r.Raw, r.Status, r.LatencyMS, r.Attempt})
	}

	n, err := db.BulkInsertIgnore(ctx, s.pool, db.InsertConfig{
		Table:        "raw_records",
		Columns:      []string{"id", "domain", "prompt_id", "model", "ts_iso", "raw", "status", "latency_ms", "attempt"},
		ConflictKeys: []string{"id"},
	}, rows)
	return int(n), err
}

func (s *PostgresStore) SaveNormalizedRecords(ctx context.Context, recs []model.NormalizedRecord) (int, error) {
	rows := make([][]any, 0, len(recs))
	for _, r := range recs {
		citationsJSON, err := json.Marshal(r.Citations)
		if err != nil {
			return 0, eris.Wrap(err, "postgres: marshal citations")
		}
		rows = append(rows, []any{r.ID, r.Domain, r.PromptID, r.Model, r.Timestamp, r.Answer, r.Confidence, citationsJSON, r.Status, r.RawRef})
	}

	n, err := db.BulkInsertIgnore(ctx, s.pool, db.InsertConfig{
		Table:        "normalized_records",
		Columns:      []string{"id", "domain", "prompt_id", "model", "ts_iso", "answer", "confidence", "citations", "normalized_status", "raw_ref"},
		ConflictKeys: []string{"id"},
	}, rows)
	return int(n), err
}

func (s *PostgresStore) GetRawRecord(ctx context.Context, id string) (*model.RawRecord, error) {
	var r model.RawRecord
	err := s.pool.QueryRow(ctx,
		`SELECT id, domain, prompt_id, model, ts_iso, raw, status, latency_ms, attempt FROM raw_records WHERE id = $1`,
		id,
	).Scan(&r.ID, &r.Domain, &r.PromptID, &r.Model, &r.Timestamp, &r.Raw, &r.Status, &r.LatencyMS, &r.Attempt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get raw record %s", id)
	}
	return &r, nil
}

func (s *PostgresStore) GetNormalizedRecord(ctx context.Context, id string) (*model.NormalizedRecord, error) {
	var r model.NormalizedRecord
	var citationsJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, domain, prompt_id, model, ts_iso, answer, confidence, citations, normalized_status, raw_ref FROM normalized_records WHERE id = $1`,
		id,
	).Scan(&r.ID, &r.Domain, &r.PromptID, &r.Model, &r.Timestamp, &r.Answer, &r.Confidence, &citationsJSON, &r.Status, &r.RawRef)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get normalized record %s", id)
	}
	if err := json.Unmarshal(citationsJSON, &r.Citations); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal citations")
	}
	return &r, nil
}

func (s *PostgresStore) ListRawRecords(ctx context.Context, filter RecordFilter) ([]model.RawRecord, error) {
	query := `SELECT id, domain, prompt_id, model, ts_iso, raw, status, latency_ms, attempt FROM raw_records WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Domain != "" {
		query += fmt.Sprintf(` AND domain = $%d`, argIdx)
		args = append(args, filter.Domain)
		argIdx++
	}
	if filter.Model != "" {
		query += fmt.Sprintf(` AND model = $%d`, argIdx)
		args = append(args, filter.Model)
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, filter.Status)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list raw records")
	}
	defer rows.Close()

	var out []model.RawRecord
	for rows.Next() {
		var r model.RawRecord
		if err := rows.Scan(&r.ID, &r.Domain, &r.PromptID, &r.Model, &r.Timestamp, &r.Raw, &r.Status, &r.LatencyMS, &r.Attempt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan raw record")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list raw records iterate")
}

func (s *PostgresStore) ListNormalizedRecords(ctx context.Context, filter RecordFilter) ([]model.NormalizedRecord, error) {
	query := `SELECT id, domain, prompt_id, model, ts_iso, answer, confidence, citations, normalized_status, raw_ref FROM normalized_records WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Domain != "" {
		query += fmt.Sprintf(` AND domain = $%d`, argIdx)
		args = append(args, filter.Domain)
		argIdx++
	}
	if filter.Model != "" {
		query += fmt.Sprintf(` AND model = $%d`, argIdx)
		args = append(args, filter.Model)
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND normalized_status = $%d`, argIdx)
		args = append(args, filter.Status)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list normalized records")
	}
	defer rows.Close()

	var out []model.NormalizedRecord
	for rows.Next() {
		var r model.NormalizedRecord
		var citationsJSON []byte
		if err := rows.Scan(&r.ID, &r.Domain, &r.PromptID, &r.Model, &r.Timestamp, &r.Answer, &r.Confidence, &citationsJSON, &r.Status, &r.RawRef); err != nil {
			return nil, eris.Wrap(err, "postgres: scan normalized record")
		}
		if err := json.Unmarshal(citationsJSON, &r.Citations); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal citations")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list normalized records iterate")
}

func (s *PostgresStore) AppendProvenance(ctx context.Context, entries []model.ProvenanceEntry) error {
	rows := make([][]any, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []any{e.LegacySourceID, e.LegacyKey, e.NewIDRaw, e.NewIDNorm, e.IngestedAt.UTC(), e.MappingVersion, e.Checksum, e.Status, e.Reason})
	}

	_, err := db.CopyFrom(ctx, s.pool, "provenance",
		[]string{"legacy_source_id", "legacy_primary_key", "new_id_raw", "new_id_norm", "ingested_at", "mapping_version", "checksum", "status", "reason"},
		rows)
	return err
}

func (s *PostgresStore) ListProvenance(ctx context.Context, legacyKey string, limit int) ([]model.ProvenanceEntry, error) {
	query := `SELECT legacy_source_id, legacy_primary_key, new_id_raw, new_id_norm, ingested_at, mapping_version, checksum, status, reason
	          FROM provenance WHERE true`
	args := []any{}
	argIdx := 1

	if legacyKey != "" {
		query += fmt.Sprintf(` AND legacy_primary_key = $%d`, argIdx)
		args = append(args, legacyKey)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY id ASC LIMIT $%d`, argIdx)
	args = append(args, listLimit(limit))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list provenance")
	}
	defer rows.Close()

	var out []model.ProvenanceEntry
	for rows.Next() {
		var e model.ProvenanceEntry
		if err := rows.Scan(&e.LegacySourceID, &e.LegacyKey, &e.NewIDRaw, &e.NewIDNorm, &e.IngestedAt, &e.MappingVersion, &e.Checksum, &e.Status, &e.Reason); err != nil {
			return nil, eris.Wrap(err, "postgres: scan provenance")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list provenance iterate")
}

func (s *PostgresStore) SaveManifest(ctx context.Context, m model.Manifest) error {
	manifestJSON, err := json.Marshal(m)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal manifest")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO manifests (run_id, manifest, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (run_id) DO UPDATE SET manifest = $2, updated_at = $3`,
		m.RunID, manifestJSON, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: save manifest %s", m.RunID)
}

func (s *PostgresStore) GetManifest(ctx context.Context, runID string) (*model.Manifest, error) {
	var manifestJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT manifest FROM manifests WHERE run_id = $1`,
		runID,
	).Scan(&manifestJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get manifest %s", runID)
	}

	var m model.Manifest
	if err := json.Unmarshal(manifestJSON, &m); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal manifest")
	}
	return &m, nil
}

func (s *PostgresStore) AppendEvents(ctx context.Context, events []model.Event) error {
	rows := make([][]any, 0, len(events))
	for _, e := range events {
		payloadJSON, err := json.Marshal(e.Payload)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal event payload")
		}
		rows = append(rows, []any{e.ID, e.Type, e.Timestamp.UTC(), payloadJSON})
	}

	_, err := db.CopyFrom(ctx, s.pool, "events", []string{"id", "type", "timestamp", "payload"}, rows)
	return err
}

func (s *PostgresStore) ListEvents(ctx context.Context, filter EventFilter) ([]model.Event, error) {
	query := `SELECT id, type, timestamp, payload FROM events WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Type != "" {
		query += fmt.Sprintf(` AND type = $%d`, argIdx)
		args = append(args, filter.Type)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY seq DESC LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list events")
	}
	defer rows.Close()

	var out []model.Event
	for rows.Next() {
		var e model.Event
		var payloadJSON []byte
		if err := rows.Scan(&e.ID, &e.Type, &e.Timestamp, &payloadJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan event")
		}
		if err := json.Unmarshal(payloadJSON, &e.Payload); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal event payload")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list events iterate")
}

func (s *PostgresStore) SaveCheckpoint(ctx context.Context, runID string, data []byte) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO checkpoints (run_id, data, created_at) VALUES ($1, $2, $3)
		 ON CONFLICT (run_id) DO UPDATE SET data = $2, created_at = $3`,
		runID, data, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: save checkpoint %s", runID)
}

func (s *PostgresStore) LoadCheckpoint(ctx context.Context, runID string) ([]byte, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM checkpoints WHERE run_id = $1`,
		runID,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: load checkpoint %s", runID)
	}
	return data, nil
}

func (s *PostgresStore) DeleteCheckpoint(ctx context.Context, runID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM checkpoints WHERE run_id = $1`, runID)
	return eris.Wrapf(err, "postgres: delete checkpoint %s", runID)
}

// Dead letter queue methods

func (s *PostgresStore) EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error {
	comboJSON, err := json.Marshal(entry.Combo)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal dlq combo")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO dead_letter_queue
		 (id, run_id, combo, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO UPDATE SET
		   error = $4, error_type = $5, retry_count = $6,
		   next_retry_at = $8, last_failed_at = $10`,
		entry.ID, entry.RunID, comboJSON, entry.Error, entry.ErrorType,
		entry.RetryCount, entry.MaxRetries,
		entry.NextRetryAt, entry.CreatedAt, entry.LastFailedAt,
	)
	return eris.Wrap(err, "postgres: enqueue dlq")
}

func (s *PostgresStore) DequeueDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	query := `SELECT id, run_id, combo, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at
	          FROM dead_letter_queue
	          WHERE next_retry_at <= now() AND retry_count < max_retries`
	args := []any{}
	argIdx := 1

	if filter.RunID != "" {
		query += fmt.Sprintf(` AND run_id = $%d`, argIdx)
		args = append(args, filter.RunID)
		argIdx++
	}
	if filter.ErrorType != "" {
		query += fmt.Sprintf(` AND error_type = $%d`, argIdx)
		args = append(args, filter.ErrorType)
		argIdx++
	}

	query += fmt.Sprintf(` ORDER BY next_retry_at ASC LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: dequeue dlq")
	}
	defer rows.Close()

	var entries []resilience.DLQEntry
	for rows.Next() {
		var e resilience.DLQEntry
		var comboJSON []byte
		if err := rows.Scan(&e.ID, &e.RunID, &comboJSON, &e.Error, &e.ErrorType,
			&e.RetryCount, &e.MaxRetries,
			&e.NextRetryAt, &e.CreatedAt, &e.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan dlq entry")
		}
		if err := json.Unmarshal(comboJSON, &e.Combo); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal dlq combo")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: dequeue dlq iterate")
}

func (s *PostgresStore) IncrementDLQRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE dead_letter_queue
		 SET retry_count = retry_count + 1, next_retry_at = $1, error = $2, last_failed_at = now()
		 WHERE id = $3`,
		nextRetryAt, lastErr, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: increment dlq retry %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("dlq_entry not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) RemoveDLQ(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM dead_letter_queue WHERE id = $1`, id)
	return eris.Wrap(err, "postgres: remove dlq")
}

func (s *PostgresStore) CountDLQ(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM dead_letter_queue`).Scan(&count)
	return count, eris.Wrap(err, "postgres: count dlq")
}

func (s *PostgresStore) Stats(ctx context.Context) (Totals, error) {
	var t Totals
	for _, c := range []struct {
		table string
		dest  *int64
	}{
		{"raw_records", &t.RawRecords},
		{"normalized_records", &t.NormalizedRecords},
		{"provenance", &t.ProvenanceEntries},
		{"manifests", &t.Manifests},
		{"events", &t.Events},
		{"dead_letter_queue", &t.DLQEntries},
	} {
		if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM `+c.table).Scan(c.dest); err != nil {
			return Totals{}, eris.Wrapf(err, "postgres: count %s", c.table)
		}
	}
	return t, nil
}
