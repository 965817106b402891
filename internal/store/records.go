package store

import (
	"database/sql"
	"time"
)

const recordColumns = `id, owner_id, remote_id, date, amount_paid, odometer, fuel_filled, station, synced_at`

func scanRecord(row interface{ Scan(...any) error }) (*FuelRecord, error) {
	var r FuelRecord
	err := row.Scan(&r.ID, &r.OwnerID, &r.RemoteID, &r.Date, &r.AmountPaid,
		&r.Odometer, &r.FuelFilled, &r.Station, &r.SyncedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListByOwner returns all records for the given local owner. Ordering is by
// date then odometer for display stability; callers must not rely on it.
func (db *DB) ListByOwner(ownerID int64) ([]FuelRecord, error) {
	rows, err := db.Query(`SELECT `+recordColumns+` FROM fuel_records WHERE owner_id = ? ORDER BY date ASC, odometer ASC`, ownerID)
	if err != nil {
		return nil, storageErr("list records", err)
	}
	defer func() { _ = rows.Close() }()

	var records []FuelRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, storageErr("scan record", err)
		}
		records = append(records, *r)
	}
	return records, storageErr("list records", rows.Err())
}

// Insert stores a new record and assigns its local id. Durable on return.
func (db *DB) Insert(r *FuelRecord) (int64, error) {
	now := time.Now().UnixMilli()
	res, err := db.Exec(`
		INSERT INTO fuel_records (owner_id, remote_id, date, amount_paid, odometer, fuel_filled, station, synced_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.OwnerID, r.RemoteID, r.Date, r.AmountPaid, r.Odometer, r.FuelFilled, r.Station, r.SyncedAt, now, now)
	if err != nil {
		return 0, storageErr("insert record", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, storageErr("insert record", err)
	}
	r.ID = id
	return id, nil
}

// Put upserts a record under its existing local id, replacing all fields.
func (db *DB) Put(r *FuelRecord) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO fuel_records (id, owner_id, remote_id, date, amount_paid, odometer, fuel_filled, station, synced_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			remote_id = excluded.remote_id,
			date = excluded.date,
			amount_paid = excluded.amount_paid,
			odometer = excluded.odometer,
			fuel_filled = excluded.fuel_filled,
			station = excluded.station,
			synced_at = excluded.synced_at,
			updated_at = excluded.updated_at`,
		r.ID, r.OwnerID, r.RemoteID, r.Date, r.AmountPaid, r.Odometer, r.FuelFilled, r.Station, r.SyncedAt, now, now)
	return storageErr("put record", err)
}

// GetByID returns a single record, or nil if it does not exist.
func (db *DB) GetByID(id int64) (*FuelRecord, error) {
	r, err := scanRecord(db.QueryRow(`SELECT `+recordColumns+` FROM fuel_records WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get record", err)
	}
	return r, nil
}

// GetByRemoteID returns the owner's record carrying the given remote id, or nil.
func (db *DB) GetByRemoteID(ownerID int64, remoteID string) (*FuelRecord, error) {
	if remoteID == "" {
		return nil, nil
	}
	r, err := scanRecord(db.QueryRow(`SELECT `+recordColumns+` FROM fuel_records WHERE owner_id = ? AND remote_id = ?`, ownerID, remoteID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get record by remote id", err)
	}
	return r, nil
}

// DeleteByID removes a record. Missing ids are not an error.
func (db *DB) DeleteByID(id int64) error {
	_, err := db.Exec(`DELETE FROM fuel_records WHERE id = ?`, id)
	return storageErr("delete record", err)
}

// DeleteAllByOwner removes every record for the given local owner.
func (db *DB) DeleteAllByOwner(ownerID int64) error {
	_, err := db.Exec(`DELETE FROM fuel_records WHERE owner_id = ?`, ownerID)
	return storageErr("delete records", err)
}
