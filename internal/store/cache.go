package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"

	lenserrors "github.com/Aman-CERP/chatlens/internal/errors"
)

// SQLiteCache implements EmbeddingCache on the embeddings table.
// Writes are synchronous and transactional: an entry is either fully
// committed when Put returns or absent.
type SQLiteCache struct {
	db *DB

	// mu serializes writers so the first batch can pin the dimension.
	mu   sync.Mutex
	dims int
}

// Verify interface implementation at compile time
var _ EmbeddingCache = (*SQLiteCache)(nil)

// NewSQLiteCache opens the embedding cache stored in db.
func NewSQLiteCache(db *DB) (*SQLiteCache, error) {
	c := &SQLiteCache{db: db}

	value, ok, err := c.Meta(context.Background(), MetaKeyDimensions)
	if err != nil {
		return nil, err
	}
	if ok {
		dims, err := strconv.Atoi(value)
		if err != nil || dims <= 0 {
			return nil, lenserrors.New(lenserrors.ErrCodeStorageCorrupt,
				fmt.Sprintf("invalid cached dimension %q", value), err)
		}
		c.dims = dims
	}

	return c, nil
}

// Get returns the vector for id.
func (c *SQLiteCache) Get(ctx context.Context, id string) ([]float32, bool, error) {
	if c.db.isClosed() {
		return nil, false, errClosed()
	}

	var blob []byte
	err := c.db.db.QueryRowContext(ctx, `SELECT vector FROM embeddings WHERE id = ?`, id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, lenserrors.New(lenserrors.ErrCodeStorageRead, "failed to read embedding", err).
			WithDetail("id", id)
	}

	vec, err := decodeVector(blob)
	if err != nil {
		return nil, false, lenserrors.New(lenserrors.ErrCodeStorageCorrupt, "failed to decode embedding", err).
			WithDetail("id", id)
	}
	return vec, true, nil
}

// Put persists a single entry. An existing id is left untouched.
func (c *SQLiteCache) Put(ctx context.Context, e CachedEmbedding) (bool, error) {
	n, err := c.PutBatch(ctx, []CachedEmbedding{e})
	return n == 1, err
}

// PutBatch persists entries in one transaction. Entries whose id is already
// cached are dropped. A vector whose length differs from the cache dimension
// fails the whole batch with a dimension mismatch; nothing is written.
func (c *SQLiteCache) PutBatch(ctx context.Context, entries []CachedEmbedding) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	if c.db.isClosed() {
		return 0, errClosed()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	dims := c.dims
	if dims == 0 {
		dims = len(entries[0].Vector)
	}
	for _, e := range entries {
		if e.ID == "" {
			return 0, lenserrors.ValidationError("embedding id must not be empty", nil)
		}
		if !e.Kind.Valid() {
			return 0, lenserrors.ValidationError(fmt.Sprintf("unknown embedding kind %q", e.Kind), nil).
				WithDetail("id", e.ID)
		}
		if len(e.Vector) == 0 || len(e.Vector) != dims {
			return 0, lenserrors.DimensionMismatch(dims, len(e.Vector)).WithDetail("id", e.ID)
		}
	}

	tx, err := c.db.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, lenserrors.New(lenserrors.ErrCodeStorageWrite, "failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO embeddings (id, kind, conversation_id, dims, vector) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, lenserrors.New(lenserrors.ErrCodeStorageWrite, "failed to prepare insert", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, e := range entries {
		res, err := stmt.ExecContext(ctx, e.ID, string(e.Kind), e.ConversationID, len(e.Vector), encodeVector(e.Vector))
		if err != nil {
			return 0, lenserrors.New(lenserrors.ErrCodeStorageWrite, "failed to write embedding", err).
				WithDetail("id", e.ID)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if c.dims == 0 && inserted > 0 {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)`,
			MetaKeyDimensions, strconv.Itoa(dims)); err != nil {
			return 0, lenserrors.New(lenserrors.ErrCodeStorageWrite, "failed to record dimension", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, lenserrors.New(lenserrors.ErrCodeStorageWrite, "failed to commit embeddings", err)
	}

	if inserted > 0 {
		c.dims = dims
	}
	return inserted, nil
}

// All returns every cached entry in insertion order.
func (c *SQLiteCache) All(ctx context.Context) ([]CachedEmbedding, error) {
	if c.db.isClosed() {
		return nil, errClosed()
	}

	rows, err := c.db.db.QueryContext(ctx,
		`SELECT id, kind, conversation_id, vector FROM embeddings ORDER BY seq`)
	if err != nil {
		return nil, lenserrors.New(lenserrors.ErrCodeStorageRead, "failed to scan embeddings", err)
	}
	defer rows.Close()

	dims := c.Dimensions()
	var out []CachedEmbedding
	for rows.Next() {
		var (
			e    CachedEmbedding
			kind string
			blob []byte
		)
		if err := rows.Scan(&e.ID, &kind, &e.ConversationID, &blob); err != nil {
			return nil, lenserrors.New(lenserrors.ErrCodeStorageRead, "failed to read embedding row", err)
		}
		e.Kind = Kind(kind)
		e.Vector, err = decodeVector(blob)
		if err != nil || len(e.Vector) != dims {
			return nil, lenserrors.New(lenserrors.ErrCodeStorageCorrupt, "embedding row has wrong shape", err).
				WithDetail("id", e.ID)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, lenserrors.New(lenserrors.ErrCodeStorageRead, "failed to scan embeddings", err)
	}

	return out, nil
}

// ContainsIDs returns the set of cached ids.
func (c *SQLiteCache) ContainsIDs(ctx context.Context) (map[string]struct{}, error) {
	if c.db.isClosed() {
		return nil, errClosed()
	}

	rows, err := c.db.db.QueryContext(ctx, `SELECT id FROM embeddings`)
	if err != nil {
		return nil, lenserrors.New(lenserrors.ErrCodeStorageRead, "failed to list embedding ids", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, lenserrors.New(lenserrors.ErrCodeStorageRead, "failed to read embedding id", err)
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, lenserrors.New(lenserrors.ErrCodeStorageRead, "failed to list embedding ids", err)
	}
	return ids, nil
}

// Dimensions returns the fixed dimension, or 0 while the cache is empty.
func (c *SQLiteCache) Dimensions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dims
}

// Count returns the number of cached entries.
func (c *SQLiteCache) Count(ctx context.Context) (int, error) {
	if c.db.isClosed() {
		return 0, errClosed()
	}

	var n int
	if err := c.db.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings`).Scan(&n); err != nil {
		return 0, lenserrors.New(lenserrors.ErrCodeStorageRead, "failed to count embeddings", err)
	}
	return n, nil
}

// Meta returns a cache metadata value.
func (c *SQLiteCache) Meta(ctx context.Context, key string) (string, bool, error) {
	if c.db.isClosed() {
		return "", false, errClosed()
	}

	var value string
	err := c.db.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, lenserrors.New(lenserrors.ErrCodeStorageRead, "failed to read cache metadata", err).
			WithDetail("key", key)
	}
	return value, true, nil
}

// SetMeta stores a cache metadata value.
func (c *SQLiteCache) SetMeta(ctx context.Context, key, value string) error {
	if c.db.isClosed() {
		return errClosed()
	}

	if _, err := c.db.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)`, key, value); err != nil {
		return lenserrors.New(lenserrors.ErrCodeStorageWrite, "failed to write cache metadata", err).
			WithDetail("key", key)
	}
	return nil
}

// Reset deletes every embedding and the pinned dimension/model. This is the
// only way entries ever leave the cache.
func (c *SQLiteCache) Reset(ctx context.Context) error {
	if c.db.isClosed() {
		return errClosed()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.db.BeginTx(ctx, nil)
	if err != nil {
		return lenserrors.New(lenserrors.ErrCodeStorageWrite, "failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, q := range []string{`DELETE FROM embeddings`, `DELETE FROM meta`} {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return lenserrors.New(lenserrors.ErrCodeStorageWrite, "failed to reset embedding cache", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return lenserrors.New(lenserrors.ErrCodeStorageWrite, "failed to reset embedding cache", err)
	}

	c.dims = 0
	return nil
}

// encodeVector packs a vector as little-endian float32s.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

// decodeVector is the inverse of encodeVector.
func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
