package store

import (
	"context"
	"fmt"

	lenserrors "github.com/Aman-CERP/chatlens/internal/errors"
	"github.com/Aman-CERP/chatlens/internal/telemetry"
)

// maxZeroResultRows bounds the zero_result_queries table.
const maxZeroResultRows = 500

// QueryStatsStore persists query telemetry in the shared database.
// It implements telemetry.Store.
type QueryStatsStore struct {
	db *DB
}

// NewQueryStatsStore returns the query statistics tables of db.
func NewQueryStatsStore(db *DB) *QueryStatsStore {
	return &QueryStatsStore{db: db}
}

// AddQueryCounts adds counts to the stored totals for date.
func (q *QueryStatsStore) AddQueryCounts(ctx context.Context, date string, counts map[string]int64) error {
	if q.db.isClosed() {
		return errClosed()
	}

	tx, err := q.db.db.BeginTx(ctx, nil)
	if err != nil {
		return lenserrors.New(lenserrors.ErrCodeStorageWrite, "failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	for key, n := range counts {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO query_counts (date, key, count) VALUES (?, ?, ?)
			ON CONFLICT(date, key) DO UPDATE SET count = query_counts.count + excluded.count`,
			date, key, n); err != nil {
			return lenserrors.New(lenserrors.ErrCodeStorageWrite, "failed to save query counts", err).
				WithDetail("key", key)
		}
	}

	if err := tx.Commit(); err != nil {
		return lenserrors.New(lenserrors.ErrCodeStorageWrite, "failed to save query counts", err)
	}
	return nil
}

// AddZeroResultQueries appends queries that found nothing, keeping only the
// newest rows.
func (q *QueryStatsStore) AddZeroResultQueries(ctx context.Context, events []telemetry.QueryEvent) error {
	if q.db.isClosed() {
		return errClosed()
	}

	tx, err := q.db.db.BeginTx(ctx, nil)
	if err != nil {
		return lenserrors.New(lenserrors.ErrCodeStorageWrite, "failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, e := range events {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO zero_result_queries (query, type, created_at) VALUES (?, ?, ?)`,
			e.Query, string(e.Type), e.Timestamp.Unix()); err != nil {
			return lenserrors.New(lenserrors.ErrCodeStorageWrite, "failed to save zero-result query", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM zero_result_queries
		WHERE seq <= (SELECT COALESCE(MAX(seq), 0) FROM zero_result_queries) - ?`,
		maxZeroResultRows); err != nil {
		return lenserrors.New(lenserrors.ErrCodeStorageWrite, "failed to trim zero-result queries", err)
	}

	if err := tx.Commit(); err != nil {
		return lenserrors.New(lenserrors.ErrCodeStorageWrite, "failed to save zero-result queries", err)
	}
	return nil
}

// QueryCounts sums stored counts per key over the inclusive date range
// (YYYY-MM-DD).
func (q *QueryStatsStore) QueryCounts(ctx context.Context, from, to string) (map[string]int64, error) {
	if q.db.isClosed() {
		return nil, errClosed()
	}

	rows, err := q.db.db.QueryContext(ctx, `
		SELECT key, SUM(count) FROM query_counts
		WHERE date >= ? AND date <= ?
		GROUP BY key`, from, to)
	if err != nil {
		return nil, lenserrors.New(lenserrors.ErrCodeStorageRead, "failed to read query counts", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var (
			key string
			n   int64
		)
		if err := rows.Scan(&key, &n); err != nil {
			return nil, lenserrors.New(lenserrors.ErrCodeStorageRead, "failed to read query counts", err)
		}
		out[key] = n
	}
	if err := rows.Err(); err != nil {
		return nil, lenserrors.New(lenserrors.ErrCodeStorageRead, "failed to read query counts", err)
	}
	return out, nil
}

// RecentZeroResultQueries returns up to limit zero-result queries, newest first.
func (q *QueryStatsStore) RecentZeroResultQueries(ctx context.Context, limit int) ([]string, error) {
	if q.db.isClosed() {
		return nil, errClosed()
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	rows, err := q.db.db.QueryContext(ctx,
		`SELECT query FROM zero_result_queries ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, lenserrors.New(lenserrors.ErrCodeStorageRead, "failed to read zero-result queries", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var query string
		if err := rows.Scan(&query); err != nil {
			return nil, lenserrors.New(lenserrors.ErrCodeStorageRead, "failed to read zero-result queries", err)
		}
		out = append(out, query)
	}
	if err := rows.Err(); err != nil {
		return nil, lenserrors.New(lenserrors.ErrCodeStorageRead, "failed to read zero-result queries", err)
	}
	return out, nil
}

var _ telemetry.Store = (*QueryStatsStore)(nil)
