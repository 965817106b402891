package store

import (
	"database/sql"
	"time"
)

// EnsureOwner maps a remote owner identity to a locally-generated owner id,
// creating the mapping on first sight. The empty remote id denotes the
// signed-out local-only owner. The mapping survives sign-out so remote ids
// stay stable across sessions.
func (db *DB) EnsureOwner(remoteID string) (int64, error) {
	var id int64
	err := db.QueryRow(`SELECT id FROM owners WHERE remote_id = ?`, remoteID).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, storageErr("lookup owner", err)
	}

	res, err := db.Exec(`INSERT INTO owners (remote_id, created_at) VALUES (?, ?)`,
		remoteID, time.Now().UnixMilli())
	if err != nil {
		return 0, storageErr("create owner", err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, storageErr("create owner", err)
	}
	return id, nil
}

// OwnerRemoteID returns the remote identity mapped to a local owner id,
// or "" for the local-only owner.
func (db *DB) OwnerRemoteID(ownerID int64) (string, error) {
	var remoteID string
	err := db.QueryRow(`SELECT remote_id FROM owners WHERE id = ?`, ownerID).Scan(&remoteID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", storageErr("lookup owner", err)
	}
	return remoteID, nil
}
