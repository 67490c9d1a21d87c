package domain

import "errors"

// Errors shared by the batch, packing and reverse job flows
var (
	ErrBatchNotFound          = errors.New("batch not found")
	ErrReverseJobNotFound     = errors.New("reverse job not found")
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrActiveBatchExists      = errors.New("order already has an active batch in progress")
	ErrPackingNotAllowed      = errors.New("packing requires a printing or in_production batch")
	ErrPackingNotComplete     = errors.New("packing not complete")
	ErrExportNotReady         = errors.New("batch export is not generated yet")
	ErrLeaseHeld              = errors.New("lease is held by another worker")
	ErrLeaseLost              = errors.New("lease lost to another worker")
	ErrConcurrentModification = errors.New("concurrent modification, reload and retry")
	ErrAlreadyPrepared        = errors.New("code already prepared")

	// ErrTransientStore marks store failures worth retrying: network errors,
	// timeouts and write conflicts. No state changed.
	ErrTransientStore = errors.New("transient store error")
)

// IsTransient reports whether err is a retryable store failure
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientStore)
}
