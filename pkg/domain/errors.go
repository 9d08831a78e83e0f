package domain

import (
	"errors"
	"fmt"
)

// ErrSessionNotFound is returned when a session does not exist or has passed
// its idle timeout. Callers cannot distinguish the two cases.
var ErrSessionNotFound = errors.New("session not found")

// ErrCapacityExceeded is returned when a user is at the configured maximum
// number of concurrent sessions. It is never retried automatically.
var ErrCapacityExceeded = errors.New("session capacity exceeded")

// ErrLockNotAcquired is returned when lock acquisition exhausts its retry
// budget. It signals a retryable "busy" condition to the caller.
var ErrLockNotAcquired = errors.New("lock not acquired")

// StorageError wraps a backend failure with the operation and key involved.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError wraps err with storage operation context.
func NewStorageError(op, key string, err error) *StorageError {
	return &StorageError{Op: op, Key: key, Err: err}
}
