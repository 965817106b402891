package sync

import (
	"database/sql"
	"time"

	"github.com/tanklog/tanklog/internal/store"
)

// Checkpoints persists reconcile bookkeeping in the sync_state table.
// Values are diagnostics only; nothing in the replay logic depends on them.
type Checkpoints struct {
	db *store.DB
}

// NewCheckpoints creates a checkpoint store.
func NewCheckpoints(db *store.DB) *Checkpoints {
	return &Checkpoints{db: db}
}

// Set upserts a checkpoint value.
func (c *Checkpoints) Set(key, value string) error {
	now := time.Now().UnixMilli()
	_, err := c.db.Exec(`
		INSERT INTO sync_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, now)
	return err
}

// Get retrieves a checkpoint value, or "" if it was never set.
func (c *Checkpoints) Get(key string) (string, error) {
	var value string
	err := c.db.QueryRow(`SELECT value FROM sync_state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}
