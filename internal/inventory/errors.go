package inventory

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound means the referenced inventory record does not exist.
	ErrNotFound = errors.New("inventory record not found")
	// ErrInvalidState means a mutation would leave negative counters or reserved above stock.
	ErrInvalidState = errors.New("invalid inventory state")
	// ErrInsufficientStock means a reservation asked for more than is available.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrNoOpAdjustment means the computed delta is zero; nothing was written.
	ErrNoOpAdjustment = errors.New("adjustment does not change stock")
	// ErrConcurrentModification means a write lost a race on the record.
	ErrConcurrentModification = errors.New("inventory record modified concurrently")
	ErrInvalidInput           = errors.New("invalid input")

	ErrReservationNotFound = errors.New("reservation not found")
	// ErrReservationSettled is returned by the store when a reservation is no longer active.
	ErrReservationSettled = errors.New("reservation already settled")
	ErrSyncInProgress     = errors.New("catalog sync already in progress")
)

// ItemError is the failure of one entry in a batch.
type ItemError struct {
	Index int
	Err   error
}

func (e ItemError) Error() string {
	return fmt.Sprintf("item %d: %v", e.Index, e.Err)
}

func (e ItemError) Unwrap() error {
	return e.Err
}

// BatchError reports the items of a bulk operation that failed. The other items were applied.
type BatchError struct {
	Total  int
	Failed []ItemError
}

func (e *BatchError) Error() string {
	msgs := make([]string, 0, len(e.Failed))
	for _, f := range e.Failed {
		msgs = append(msgs, f.Error())
	}
	return fmt.Sprintf("partial batch failure: %d of %d items failed: %s", len(e.Failed), e.Total, strings.Join(msgs, "; "))
}

// Unwrap exposes the item errors to errors.Is and errors.As.
func (e *BatchError) Unwrap() []error {
	errs := make([]error, len(e.Failed))
	for i, f := range e.Failed {
		errs[i] = f
	}
	return errs
}
