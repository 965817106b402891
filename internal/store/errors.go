package store

import "fmt"

// StorageError marks a local-persistence fault (quota, corruption, busy
// database). Unlike remote failures these are caller-visible: the sync
// engine propagates them instead of queueing.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}
