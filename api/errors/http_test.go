package errors

import (
	"context"
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	mailerrors "github.com/customeros/mailclean/internal/errors"
)

func TestStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid input", errors.Wrap(mailerrors.ErrInvalidInput, "bad action"), http.StatusBadRequest},
		{"not found", errors.Wrap(mailerrors.ErrNotFound, "sender"), http.StatusNotFound},
		{"invalid plan", mailerrors.ErrInvalidPlan, http.StatusNotFound},
		{"already executed", mailerrors.ErrAlreadyExecuted, http.StatusConflict},
		{"undo not available", mailerrors.ErrUndoNotAvailable, http.StatusConflict},
		{"provider rejected", mailerrors.ErrProviderRejected, http.StatusBadGateway},
		{"provider unavailable", mailerrors.ErrProviderUnavailable, http.StatusServiceUnavailable},
		{"storage", mailerrors.Storage(errors.New("db down"), "append"), http.StatusInternalServerError},
		{"unknown", context.Canceled, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusCode(tt.err))
		})
	}
}

func TestNewErrorResponse(t *testing.T) {
	resp := NewErrorResponse(errors.Wrap(mailerrors.ErrAlreadyExecuted, "news@shop.com/unsubscribe"))
	assert.Equal(t, "already_executed", resp.Kind)
	assert.Contains(t, resp.Error, "news@shop.com")

	resp = NewErrorResponse(errors.New("pq: password authentication failed"))
	assert.Equal(t, ErrorResponse{Error: "internal error", Kind: "internal"}, resp)
}

func TestMultiErrors(t *testing.T) {
	errs := NewMultiErrors()
	assert.False(t, errs.HasErrors())

	errs.Add("target_email", "is required", nil)
	errs.Add("action_type", "must be unsubscribe or delete", nil)

	assert.True(t, errs.HasErrors())
	assert.Equal(t, "action_type: must be unsubscribe or delete | target_email: is required", errs.Error())
	assert.True(t, errors.Is(errs, mailerrors.ErrInvalidInput))
	assert.Equal(t, http.StatusBadRequest, StatusCode(errs))
}
