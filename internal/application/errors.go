package application

import (
	stderrors "errors"

	"github.com/wms-platform/qrbatch-service/internal/domain"
	"github.com/wms-platform/qrbatch-service/pkg/errors"
	"github.com/wms-platform/qrbatch-service/pkg/resilience"
)

var validationErrors = []error{
	domain.ErrInvalidQuantity,
	domain.ErrInvalidBuffer,
	domain.ErrInvalidUnitsPerCase,
	domain.ErrOrderRequired,
	domain.ErrRequesterRequired,
	domain.ErrBatchRequired,
	domain.ErrOrderMismatch,
	domain.ErrInvalidCaseNumber,
}

var conflictErrors = []error{
	domain.ErrActiveBatchExists,
	domain.ErrInvalidTransition,
	domain.ErrPackingNotAllowed,
	domain.ErrPackingNotComplete,
	domain.ErrExportNotReady,
	domain.ErrConcurrentModification,
	domain.ErrLeaseHeld,
	domain.ErrLeaseLost,
}

// toAppError maps domain and store failures onto HTTP-facing errors
func toAppError(err error) *errors.AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := errors.AsAppError(err); ok {
		return appErr
	}

	switch {
	case stderrors.Is(err, domain.ErrBatchNotFound):
		return errors.ErrNotFound("batch").Wrap(err)
	case stderrors.Is(err, domain.ErrReverseJobNotFound):
		return errors.ErrNotFound("reverse job").Wrap(err)
	case domain.IsTransient(err):
		return errors.ErrServiceUnavailable("code store").Wrap(err)
	case stderrors.Is(err, resilience.ErrCircuitOpen):
		return errors.ErrServiceUnavailable("file store").Wrap(err)
	}
	for _, target := range validationErrors {
		if stderrors.Is(err, target) {
			return errors.ErrValidation(err.Error()).Wrap(err)
		}
	}
	for _, target := range conflictErrors {
		if stderrors.Is(err, target) {
			return errors.ErrConflict(err.Error()).Wrap(err)
		}
	}
	return errors.ErrInternal("").Wrap(err)
}
