package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/beargallbladder/domain-runner-sub003/internal/model"
	"github.com/beargallbladder/domain-runner-sub003/internal/resilience"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS raw_records (
	id         TEXT PRIMARY KEY,
	domain     TEXT NOT NULL,
	prompt_id  TEXT NOT NULL,
	model      TEXT NOT NULL,
	ts_iso     TEXT NOT NULL,
	raw        TEXT NOT NULL,
	status     TEXT NOT NULL,
	latency_ms INTEGER NOT NULL DEFAULT 0,
	attempt    INTEGER NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS normalized_records (
	id                TEXT PRIMARY KEY,
	domain            TEXT NOT NULL,
	prompt_id         TEXT NOT NULL,
	model             TEXT NOT NULL,
	ts_iso            TEXT NOT NULL,
	answer            TEXT NOT NULL,
	confidence        REAL,
	citations         TEXT NOT NULL DEFAULT '[]',
	normalized_status TEXT NOT NULL,
	raw_ref           TEXT NOT NULL,
	created_at        DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS provenance (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	legacy_source_id   TEXT NOT NULL,
	legacy_primary_key TEXT NOT NULL,
	new_id_raw         TEXT,
	new_id_norm        TEXT,
	ingested_at        DATETIME NOT NULL,
	mapping_version    TEXT NOT NULL,
	checksum           TEXT NOT NULL,
	status             TEXT NOT NULL,
	reason             TEXT
);

CREATE TABLE IF NOT EXISTS manifests (
	run_id     TEXT PRIMARY KEY,
	manifest   TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
	id        TEXT PRIMARY KEY,
	type      TEXT NOT NULL,
	timestamp DATETIME NOT NULL,
	payload   TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS checkpoints (
	run_id     TEXT PRIMARY KEY,
	data       TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS dead_letter_queue (
	id             TEXT PRIMARY KEY,
	run_id         TEXT NOT NULL,
	combo          TEXT NOT NULL,
	error          TEXT NOT NULL,
	error_type     TEXT NOT NULL DEFAULT 'transient',
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 3,
	next_retry_at  DATETIME NOT NULL,
	created_at     DATETIME NOT NULL,
	last_failed_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_raw_records_domain ON raw_records(domain);
CREATE INDEX IF NOT EXISTS idx_raw_records_status ON raw_records(status);
CREATE INDEX IF NOT EXISTS idx_normalized_records_status ON normalized_records(normalized_status);
CREATE INDEX IF NOT EXISTS idx_provenance_legacy_key ON provenance(legacy_primary_key);
CREATE INDEX IF NOT EXISTS idx_events_type ON events(type);
CREATE INDEX IF NOT EXISTS idx_dlq_error_type ON dead_letter_queue(error_type);
CREATE INDEX IF NOT EXISTS idx_dlq_next_retry ON dead_letter_queue(next_retry_at);
CREATE INDEX IF NOT EXISTS idx_dlq_run_id ON dead_letter_queue(run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveRawRecords(ctx context.Context, recs []model.RawRecord) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin save raw")
	}
	defer tx.Rollback() //nolint:errcheck

	written := 0
	for _, r := range recs {
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO raw_records (id, domain, prompt_id, model, ts_iso, raw, status, latency_ms, attempt)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.Domain, r.PromptID, r.Model, r.Timestamp, r.Raw, r.Status, r.LatencyMS, r.Attempt,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert raw record %s", r.ID)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: rows affected")
		}
		written += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit save raw")
	}
	return written, nil
}

func (s *SQLiteStore) SaveNormalizedRecords(ctx context.Context, recs []model.NormalizedRecord) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin save normalized")
	}
	defer tx.Rollback() //nolint:errcheck

	written := 0
	for _, r := range recs {
		citationsJSON, err := json.Marshal(r.Citations)
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: marshal citations")
		}
		var confidence any
		if r.Confidence != nil {
			confidence = *r.Confidence
		}
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO normalized_records
			 (id, domain, prompt_id, model, ts_iso, answer, confidence, citations, normalized_status, raw_ref)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.Domain, r.PromptID, r.Model, r.Timestamp, r.Answer, confidence, string(citationsJSON), r.Status, r.RawRef,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert normalized record %s", r.ID)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: rows affected")
		}
		written += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit save normalized")
	}
	return written, nil
}

func (s *SQLiteStore) GetRawRecord(ctx context.Context, id string) (*model.RawRecord, error) {
	var r model.RawRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT id, domain, prompt_id, model, ts_iso, raw, status, latency_ms, attempt
		 FROM raw_records WHERE id = ?`,
		id,
	).Scan(&r.ID, &r.Domain, &r.PromptID, &r.Model, &r.Timestamp, &r.Raw, &r.Status, &r.LatencyMS, &r.Attempt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get raw record %s", id)
	}
	return &r, nil
}

func (s *SQLiteStore) GetNormalizedRecord(ctx context.Context, id string) (*model.NormalizedRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, domain, prompt_id, model, ts_iso, answer, confidence, citations, normalized_status, raw_ref
		 FROM normalized_records WHERE id = ?`,
		id,
	)
	rec, err := scanNormalized(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get normalized record %s", id)
	}
	return rec, nil
}

func (s *SQLiteStore) ListRawRecords(ctx context.Context, filter RecordFilter) ([]model.RawRecord, error) {
	query := `SELECT id, domain, prompt_id, model, ts_iso, raw, status, latency_ms, attempt FROM raw_records WHERE 1=1`
	var args []any

	if filter.Domain != "" {
		query += ` AND domain = ?`
		args = append(args, filter.Domain)
	}
	if filter.Model != "" {
		query += ` AND model = ?`
		args = append(args, filter.Model)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY rowid DESC LIMIT ?`
	args = append(args, listLimit(filter.Limit))
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list raw records")
	}
	defer rows.Close()

	var out []model.RawRecord
	for rows.Next() {
		var r model.RawRecord
		if err := rows.Scan(&r.ID, &r.Domain, &r.PromptID, &r.Model, &r.Timestamp, &r.Raw, &r.Status, &r.LatencyMS, &r.Attempt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan raw record")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list raw records iterate")
}

func (s *SQLiteStore) ListNormalizedRecords(ctx context.Context, filter RecordFilter) ([]model.NormalizedRecord, error) {
	query := `SELECT id, domain, prompt_id, model, ts_iso, answer, confidence, citations, normalized_status, raw_ref
	          FROM normalized_records WHERE 1=1`
	var args []any

	if filter.Domain != "" {
		query += ` AND domain = ?`
		args = append(args, filter.Domain)
	}
	if filter.Model != "" {
		query += ` AND model = ?`
		args = append(args, filter.Model)
	}
	if filter.Status != "" {
		query += ` AND normalized_status = ?`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY rowid DESC LIMIT ?`
	args = append(args, listLimit(filter.Limit))
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list normalized records")
	}
	defer rows.Close()

	var out []model.NormalizedRecord
	for rows.Next() {
		rec, err := scanNormalized(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan normalized record")
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list normalized records iterate")
}

func (s *SQLiteStore) AppendProvenance(ctx context.Context, entries []model.ProvenanceEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin append provenance")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, e := range entries {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO provenance
			 (legacy_source_id, legacy_primary_key, new_id_raw, new_id_norm, ingested_at, mapping_version, checksum, status, reason)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.LegacySourceID, e.LegacyKey, e.NewIDRaw, e.NewIDNorm, e.IngestedAt.UTC(), e.MappingVersion, e.Checksum, e.Status, e.Reason,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert provenance for %s", e.LegacyKey)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit append provenance")
}

func (s *SQLiteStore) ListProvenance(ctx context.Context, legacyKey string, limit int) ([]model.ProvenanceEntry, error) {
	query := `SELECT legacy_source_id, legacy_primary_key, new_id_raw, new_id_norm, ingested_at, mapping_version, checksum, status, reason
	          FROM provenance WHERE 1=1`
	var args []any

	if legacyKey != "" {
		query += ` AND legacy_primary_key = ?`
		args = append(args, legacyKey)
	}
	query += ` ORDER BY id ASC LIMIT ?`
	args = append(args, listLimit(limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list provenance")
	}
	defer rows.Close()

	var out []model.ProvenanceEntry
	for rows.Next() {
		var e model.ProvenanceEntry
		var newIDRaw, newIDNorm, reason sql.NullString
		if err := rows.Scan(&e.LegacySourceID, &e.LegacyKey, &newIDRaw, &newIDNorm, &e.IngestedAt, &e.MappingVersion, &e.Checksum, &e.Status, &reason); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan provenance")
		}
		e.NewIDRaw = newIDRaw.String
		e.NewIDNorm = newIDNorm.String
		e.Reason = reason.String
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list provenance iterate")
}

func (s *SQLiteStore) SaveManifest(ctx context.Context, m model.Manifest) error {
	manifestJSON, err := json.Marshal(m)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal manifest")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO manifests (run_id, manifest, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (run_id) DO UPDATE SET manifest = excluded.manifest, updated_at = excluded.updated_at`,
		m.RunID, string(manifestJSON), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: save manifest %s", m.RunID)
}

func (s *SQLiteStore) GetManifest(ctx context.Context, runID string) (*model.Manifest, error) {
	var manifestJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT manifest FROM manifests WHERE run_id = ?`,
		runID,
	).Scan(&manifestJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get manifest %s", runID)
	}

	var m model.Manifest
	if err := json.Unmarshal([]byte(manifestJSON), &m); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal manifest")
	}
	return &m, nil
}

func (s *SQLiteStore) AppendEvents(ctx context.Context, events []model.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin append events")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, e := range events {
		payloadJSON, err := json.Marshal(e.Payload)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal event payload")
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO events (id, type, timestamp, payload) VALUES (?, ?, ?, ?)`,
			e.ID, e.Type, e.Timestamp.UTC(), string(payloadJSON),
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert event %s", e.ID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit append events")
}

func (s *SQLiteStore) ListEvents(ctx context.Context, filter EventFilter) ([]model.Event, error) {
	query := `SELECT id, type, timestamp, payload FROM events WHERE 1=1`
	var args []any

	if filter.Type != "" {
		query += ` AND type = ?`
		args = append(args, filter.Type)
	}
	query += ` ORDER BY rowid DESC LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list events")
	}
	defer rows.Close()

	var out []model.Event
	for rows.Next() {
		var e model.Event
		var payloadJSON string
		if err := rows.Scan(&e.ID, &e.Type, &e.Timestamp, &payloadJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan event")
		}
		if err := json.Unmarshal([]byte(payloadJSON), &e.Payload); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal event payload")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list events iterate")
}

func (s *SQLiteStore) SaveCheckpoint(ctx context.Context, runID string, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (run_id, data, created_at) VALUES (?, ?, ?)
		 ON CONFLICT (run_id) DO UPDATE SET data = excluded.data, created_at = excluded.created_at`,
		runID, string(data), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: save checkpoint %s", runID)
}

func (s *SQLiteStore) LoadCheckpoint(ctx context.Context, runID string) ([]byte, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM checkpoints WHERE run_id = ?`,
		runID,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load checkpoint %s", runID)
	}
	return []byte(data), nil
}

func (s *SQLiteStore) DeleteCheckpoint(ctx context.Context, runID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE run_id = ?`, runID)
	return eris.Wrapf(err, "sqlite: delete checkpoint %s", runID)
}

func (s *SQLiteStore) EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error {
	comboJSON, err := json.Marshal(entry.Combo)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal dlq combo")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO dead_letter_queue
		 (id, run_id, combo, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   error = excluded.error, error_type = excluded.error_type, retry_count = excluded.retry_count,
		   next_retry_at = excluded.next_retry_at, last_failed_at = excluded.last_failed_at`,
		entry.ID, entry.RunID, string(comboJSON), entry.Error, entry.ErrorType,
		entry.RetryCount, entry.MaxRetries, entry.NextRetryAt.UTC(), entry.CreatedAt.UTC(), entry.LastFailedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: enqueue dlq")
}

func (s *SQLiteStore) DequeueDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	query := `SELECT id, run_id, combo, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at
	          FROM dead_letter_queue
	          WHERE next_retry_at <= ? AND retry_count < max_retries`
	args := []any{time.Now().UTC()}

	if filter.RunID != "" {
		query += ` AND run_id = ?`
		args = append(args, filter.RunID)
	}
	if filter.ErrorType != "" {
		query += ` AND error_type = ?`
		args = append(args, filter.ErrorType)
	}
	query += ` ORDER BY next_retry_at ASC LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: dequeue dlq")
	}
	defer rows.Close()

	var entries []resilience.DLQEntry
	for rows.Next() {
		var e resilience.DLQEntry
		var comboJSON string
		if err := rows.Scan(&e.ID, &e.RunID, &comboJSON, &e.Error, &e.ErrorType,
			&e.RetryCount, &e.MaxRetries, &e.NextRetryAt, &e.CreatedAt, &e.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan dlq entry")
		}
		if err := json.Unmarshal([]byte(comboJSON), &e.Combo); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal dlq combo")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: dequeue dlq iterate")
}

func (s *SQLiteStore) IncrementDLQRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE dead_letter_queue
		 SET retry_count = retry_count + 1, next_retry_at = ?, error = ?, last_failed_at = ?
		 WHERE id = ?`,
		nextRetryAt.UTC(), lastErr, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: increment dlq retry %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("dlq_entry not found: %s", id)
	}
	return nil
}

func (s *SQLiteStore) RemoveDLQ(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM dead_letter_queue WHERE id = ?`, id)
	return eris.Wrap(err, "sqlite: remove dlq")
}

func (s *SQLiteStore) CountDLQ(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dead_letter_queue`).Scan(&count)
	return count, eris.Wrap(err, "sqlite: count dlq")
}

func (s *SQLiteStore) Stats(ctx context.Context) (Totals, error) {
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
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+c.table).Scan(c.dest); err != nil {
			return Totals{}, eris.Wrapf(err, "sqlite: count %s", c.table)
		}
	}
	return t, nil
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanNormalized(row scannable) (*model.NormalizedRecord, error) {
	var r model.NormalizedRecord
	var confidence sql.NullFloat64
	var citationsJSON string

	err := row.Scan(&r.ID, &r.Domain, &r.PromptID, &r.Model, &r.Timestamp, &r.Answer, &confidence, &citationsJSON, &r.Status, &r.RawRef)
	if err != nil {
		return nil, err
	}

	if confidence.Valid {
		v := confidence.Float64
		r.Confidence = &v
	}
	if err := json.Unmarshal([]byte(citationsJSON), &r.Citations); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal citations")
	}
	return &r, nil
}
