package batch

import (
	"errors"
	"fmt"
)

var (
	// ErrDiscoveryEmpty: a model root yielded zero matching dump files.
	ErrDiscoveryEmpty = errors.New("no work items found")

	// ErrTimeout: the batch deadline expired with items outstanding.
	ErrTimeout = errors.New("batch timeout exceeded")

	// ErrStoreBusy: the summary store is locked by another writer.
	ErrStoreBusy = errors.New("summary store locked by another writer")

	// ErrStoreOrderingViolation: an append would break the strict
	// time-ascending invariant of the store.
	ErrStoreOrderingViolation = errors.New("append would violate time ordering")

	// ErrUnknownOperation: no registered operation under the given key.
	ErrUnknownOperation = errors.New("unknown operation")
)

// ItemError is a work-function failure carrying a distinguishable exit
// code. Item failures are always recovered and recorded; they never
// abort sibling items.
type ItemError struct {
	Code   int
	Reason string
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("item failed (code %d): %s", e.Code, e.Reason)
}

// ExitCode extracts the item exit code from err, or fallback when err
// carries none.
func ExitCode(err error, fallback int) int {
	var ie *ItemError
	if errors.As(err, &ie) && ie.Code != 0 {
		return ie.Code
	}
	return fallback
}
