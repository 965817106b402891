package sync

import (
	"strconv"
	"strings"

	"github.com/tanklog/tanklog/internal/remote"
	"github.com/tanklog/tanklog/internal/store"
)

// toDraft maps local domain fields onto a remote insert/update body. A draft
// always goes out with is_deleted=false; the server stamps synced_at itself.
func toDraft(f store.RecordFields, ownerRemoteID string) remote.Draft {
	return remote.Draft{
		OwnerID:    ownerRemoteID,
		Date:       f.Date,
		AmountPaid: f.AmountPaid,
		Odometer:   f.Odometer,
		FuelFilled: f.FuelFilled,
		Station:    f.Station,
		IsDeleted:  false,
	}
}

// toLocal maps a remote row onto a fresh local record for the given owner.
func toLocal(row remote.Record, ownerLocalID int64) store.FuelRecord {
	return store.FuelRecord{
		OwnerID:    ownerLocalID,
		RemoteID:   row.ID,
		Date:       row.Date,
		AmountPaid: row.AmountPaid,
		Odometer:   row.Odometer,
		FuelFilled: row.FuelFilled,
		Station:    row.Station,
		SyncedAt:   row.SyncedAt.UnixMilli(),
	}
}

// applyRemote overwrites a local record with a remote row's field values and
// stamps the remote identity. Remote wins on every domain field.
func applyRemote(rec *store.FuelRecord, row remote.Record) {
	rec.RemoteID = row.ID
	rec.Date = row.Date
	rec.AmountPaid = row.AmountPaid
	rec.Odometer = row.Odometer
	rec.FuelFilled = row.FuelFilled
	rec.Station = row.Station
	rec.SyncedAt = row.SyncedAt.UnixMilli()
}

// identityKey builds the heuristic cross-store identity of a record from its
// domain fields. It is consulted only while a record has no remote id: two
// genuinely distinct fills with identical date, amount, odometer and volume
// collide, which is an accepted limitation of the matching scheme.
func identityKey(f store.RecordFields) string {
	return strings.Join([]string{
		f.Date,
		strconv.FormatFloat(f.AmountPaid, 'f', -1, 64),
		strconv.FormatFloat(f.Odometer, 'f', -1, 64),
		strconv.FormatFloat(f.FuelFilled, 'f', -1, 64),
	}, "|")
}

// remoteIdentityKey is identityKey over a remote row's domain fields.
func remoteIdentityKey(row remote.Record) string {
	return identityKey(store.RecordFields{
		Date:       row.Date,
		AmountPaid: row.AmountPaid,
		Odometer:   row.Odometer,
		FuelFilled: row.FuelFilled,
	})
}
