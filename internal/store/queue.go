package store

import "time"

// Enqueue appends a deferred remote mutation to the sync queue and assigns
// its id. Insertion order is the replay order.
func (db *DB) Enqueue(e *QueueEntry) error {
	e.EnqueuedAt = time.Now().UnixMilli()
	res, err := db.Exec(`
		INSERT INTO sync_queue (owner_id, kind, local_id, remote_id, payload, enqueued_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.OwnerID, string(e.Kind), e.LocalID, e.RemoteID, e.Payload, e.EnqueuedAt)
	if err != nil {
		return storageErr("enqueue", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return storageErr("enqueue", err)
	}
	e.ID = id
	return nil
}

// PendingQueue returns the owner's queue entries in insertion order.
func (db *DB) PendingQueue(ownerID int64) ([]QueueEntry, error) {
	rows, err := db.Query(`
		SELECT id, owner_id, kind, local_id, remote_id, payload, enqueued_at
		FROM sync_queue WHERE owner_id = ? ORDER BY id ASC`, ownerID)
	if err != nil {
		return nil, storageErr("read queue", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []QueueEntry
	for rows.Next() {
		var e QueueEntry
		var kind string
		if err := rows.Scan(&e.ID, &e.OwnerID, &kind, &e.LocalID, &e.RemoteID, &e.Payload, &e.EnqueuedAt); err != nil {
			return nil, storageErr("scan queue entry", err)
		}
		e.Kind = QueueKind(kind)
		entries = append(entries, e)
	}
	return entries, storageErr("read queue", rows.Err())
}

// RemoveQueueEntry deletes one entry after its replay succeeded.
func (db *DB) RemoveQueueEntry(id int64) error {
	_, err := db.Exec(`DELETE FROM sync_queue WHERE id = ?`, id)
	return storageErr("remove queue entry", err)
}

// ClearQueue drops all of the owner's pending entries (sign-out path).
func (db *DB) ClearQueue(ownerID int64) error {
	_, err := db.Exec(`DELETE FROM sync_queue WHERE owner_id = ?`, ownerID)
	return storageErr("clear queue", err)
}
