package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	lenserrors "github.com/Aman-CERP/chatlens/internal/errors"
)

// FavoritesStore persists the set of favorite conversation ids.
type FavoritesStore struct {
	db *DB
}

// NewFavoritesStore returns the favorites table of db.
func NewFavoritesStore(db *DB) *FavoritesStore {
	return &FavoritesStore{db: db}
}

// Toggle flips the favorite flag of a conversation and returns the new state.
func (f *FavoritesStore) Toggle(ctx context.Context, conversationID string) (bool, error) {
	if f.db.isClosed() {
		return false, errClosed()
	}

	tx, err := f.db.db.BeginTx(ctx, nil)
	if err != nil {
		return false, lenserrors.New(lenserrors.ErrCodeStorageWrite, "failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existing string
	err = tx.QueryRowContext(ctx,
		`SELECT conversation_id FROM favorites WHERE conversation_id = ?`, conversationID).Scan(&existing)

	var now bool
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx,
			`INSERT INTO favorites (conversation_id, created_at) VALUES (?, ?)`,
			conversationID, time.Now().Unix())
		now = true
	case err == nil:
		_, err = tx.ExecContext(ctx, `DELETE FROM favorites WHERE conversation_id = ?`, conversationID)
		now = false
	}
	if err != nil {
		return false, lenserrors.New(lenserrors.ErrCodeStorageWrite, "failed to toggle favorite", err).
			WithDetail("conversation_id", conversationID)
	}

	if err := tx.Commit(); err != nil {
		return false, lenserrors.New(lenserrors.ErrCodeStorageWrite, "failed to toggle favorite", err)
	}
	return now, nil
}

// IsFavorite reports whether a conversation is marked favorite.
func (f *FavoritesStore) IsFavorite(ctx context.Context, conversationID string) (bool, error) {
	if f.db.isClosed() {
		return false, errClosed()
	}

	var n int
	if err := f.db.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM favorites WHERE conversation_id = ?`, conversationID).Scan(&n); err != nil {
		return false, lenserrors.New(lenserrors.ErrCodeStorageRead, "failed to read favorite", err)
	}
	return n > 0, nil
}

// All returns the set of favorite conversation ids.
func (f *FavoritesStore) All(ctx context.Context) (map[string]bool, error) {
	if f.db.isClosed() {
		return nil, errClosed()
	}

	rows, err := f.db.db.QueryContext(ctx, `SELECT conversation_id FROM favorites`)
	if err != nil {
		return nil, lenserrors.New(lenserrors.ErrCodeStorageRead, "failed to list favorites", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, lenserrors.New(lenserrors.ErrCodeStorageRead, "failed to read favorite", err)
		}
		out[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, lenserrors.New(lenserrors.ErrCodeStorageRead, "failed to list favorites", err)
	}
	return out, nil
}
