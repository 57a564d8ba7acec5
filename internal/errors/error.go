package errors

import "github.com/pkg/errors"

var (
	// request errors
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrInvalidPlan  = errors.New("invalid plan")

	// execution errors
	ErrAlreadyExecuted  = errors.New("action already executed")
	ErrUndoNotAvailable = errors.New("undo not available")

	// provider errors
	ErrProviderUnavailable = errors.New("mail provider unavailable")
	ErrProviderRejected    = errors.New("mail provider rejected request")

	// storage errors
	ErrStorageFailure = errors.New("storage failure")
)

// Kind returns the short name of the sentinel wrapped by err, or "internal".
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidPlan):
		return "invalid_plan"
	case errors.Is(err, ErrAlreadyExecuted):
		return "already_executed"
	case errors.Is(err, ErrUndoNotAvailable):
		return "undo_not_available"
	case errors.Is(err, ErrProviderUnavailable):
		return "provider_unavailable"
	case errors.Is(err, ErrProviderRejected):
		return "provider_rejected"
	case errors.Is(err, ErrStorageFailure):
		return "storage_failure"
	default:
		return "internal"
	}
}

// Storage wraps a repository error as a StorageFailure.
func Storage(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(ErrStorageFailure, "%s: %v", msg, err)
}

// IsTransient reports whether err is worth retrying against the provider.
func IsTransient(err error) bool {
	return errors.Is(err, ErrProviderUnavailable)
}
