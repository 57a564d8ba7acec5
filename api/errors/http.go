package errors

import (
	"net/http"

	"github.com/pkg/errors"

	mailerrors "github.com/customeros/mailclean/internal/errors"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// StatusCode maps a domain error to its HTTP status.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, mailerrors.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, mailerrors.ErrNotFound), errors.Is(err, mailerrors.ErrInvalidPlan):
		return http.StatusNotFound
	case errors.Is(err, mailerrors.ErrAlreadyExecuted), errors.Is(err, mailerrors.ErrUndoNotAvailable):
		return http.StatusConflict
	case errors.Is(err, mailerrors.ErrProviderRejected):
		return http.StatusBadGateway
	case errors.Is(err, mailerrors.ErrProviderUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// NewErrorResponse hides the detail of unclassified errors.
func NewErrorResponse(err error) ErrorResponse {
	kind := mailerrors.Kind(err)
	if kind == "internal" {
		return ErrorResponse{Error: "internal error", Kind: kind}
	}
	return ErrorResponse{Error: err.Error(), Kind: kind}
}
