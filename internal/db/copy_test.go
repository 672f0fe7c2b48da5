package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFrom_EmptyRows(t *testing.T) {
	n, err := CopyFrom(context.TODO(), nil, "provenance", []string{"legacy_source_id", "legacy_primary_key"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyFrom_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"events"}, []string{"id", "type", "payload"}).WillReturnResult(3)

	rows := [][]any{
		{"e1", "manifest.opened", "{}"},
		{"e2", "aggregation.ready", "{}"},
		{"e3", "manifest.closed", "{}"},
	}
	n, err := CopyFrom(context.Background(), mock, "events", []string{"id", "type", "payload"}, rows)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"events"}, []string{"id", "type"}).WillReturnError(fmt.Errorf("copy failed"))

	rows := [][]any{{"e1", "drift.alert"}}
	_, err = CopyFrom(context.Background(), mock, "events", []string{"id", "type"}, rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO events")
	assert.NoError(t, mock.ExpectationsWereMet())
}
