package model

import (
	"context"
	"sync"
	"time"

	"github.com/tanklog/tanklog/internal/stats"
	"github.com/tanklog/tanklog/internal/store"
	intsync "github.com/tanklog/tanklog/internal/sync"
)

// ViewModel caches engine state for the UI and signals refreshes.
type ViewModel struct {
	mu sync.RWMutex

	engine        *intsync.Engine
	db            *store.DB
	ownerLocalID  int64
	ownerRemoteID string

	records []store.FuelRecord
	summary stats.Summary
	months  []stats.MonthTotal
	queued  int

	flashMsg string
	flashExp time.Time

	refreshCh chan struct{}
}

// NewViewModel creates a view model bound to one owner.
func NewViewModel(engine *intsync.Engine, db *store.DB, ownerLocalID int64, ownerRemoteID string) *ViewModel {
	return &ViewModel{
		engine:        engine,
		db:            db,
		ownerLocalID:  ownerLocalID,
		ownerRemoteID: ownerRemoteID,
		refreshCh:     make(chan struct{}, 1),
	}
}

// RefreshCh returns the channel that signals UI refresh.
func (vm *ViewModel) RefreshCh() <-chan struct{} {
	return vm.refreshCh
}

func (vm *ViewModel) signalRefresh() {
	select {
	case vm.refreshCh <- struct{}{}:
	default:
	}
}

// Load fetches the record list and derived state.
func (vm *ViewModel) Load(ctx context.Context) error {
	records, err := vm.engine.List(ctx, vm.ownerLocalID, vm.ownerRemoteID)
	if err != nil {
		return err
	}
	pending, err := vm.db.PendingQueue(vm.ownerLocalID)
	if err != nil {
		return err
	}

	vm.mu.Lock()
	vm.records = records
	vm.summary = stats.Summarize(records)
	vm.months = stats.ByMonth(records)
	vm.queued = len(pending)
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// Add records a fill-up through the engine and reloads.
func (vm *ViewModel) Add(ctx context.Context, fields store.RecordFields) error {
	if _, err := vm.engine.Create(ctx, fields, vm.ownerLocalID, vm.ownerRemoteID); err != nil {
		return err
	}
	return vm.Load(ctx)
}

// Remove deletes a fill-up through the engine and reloads.
func (vm *ViewModel) Remove(ctx context.Context, rec store.FuelRecord) error {
	if err := vm.engine.Delete(ctx, vm.ownerLocalID, rec.ID, rec.RemoteID, vm.ownerRemoteID); err != nil {
		return err
	}
	return vm.Load(ctx)
}

// Records returns the cached record list.
func (vm *ViewModel) Records() []store.FuelRecord {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.records
}

// Summary returns the cached overall metrics.
func (vm *ViewModel) Summary() stats.Summary {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.summary
}

// Months returns the cached per-month totals.
func (vm *ViewModel) Months() []stats.MonthTotal {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.months
}

// Queued returns the number of changes waiting for the remote.
func (vm *ViewModel) Queued() int {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.queued
}

// SetFlash stores a transient notification message.
func (vm *ViewModel) SetFlash(msg string, d time.Duration) {
	vm.mu.Lock()
	vm.flashMsg = msg
	vm.flashExp = time.Now().Add(d)
	vm.mu.Unlock()
	vm.signalRefresh()
}

// Flash returns the current flash message, or empty if expired.
func (vm *ViewModel) Flash() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	if time.Now().After(vm.flashExp) {
		return ""
	}
	return vm.flashMsg
}
