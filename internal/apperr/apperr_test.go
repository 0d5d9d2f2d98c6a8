package apperr_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"gigmarket/internal/apperr"

	"github.com/stretchr/testify/require"
)

func TestKindOfWrapped(t *testing.T) {
	err := fmt.Errorf("accept bid: %w", apperr.Conflict("task %d has already been accepted", 7))
	require.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	require.Equal(t, http.StatusConflict, apperr.KindOf(err).Status())
	require.True(t, apperr.Is(err, apperr.KindConflict))
	require.Contains(t, err.Error(), "task 7 has already been accepted")
}

func TestUnknownErrorIsInternal(t *testing.T) {
	err := errors.New("boom")
	require.Equal(t, apperr.KindInternal, apperr.KindOf(err))
	require.Equal(t, http.StatusInternalServerError, apperr.KindOf(err).Status())
	require.False(t, apperr.Is(nil, apperr.KindInternal))
}

func TestStatuses(t *testing.T) {
	require.Equal(t, http.StatusBadRequest, apperr.Validation("x").Kind.Status())
	require.Equal(t, http.StatusForbidden, apperr.Forbidden("x").Kind.Status())
	require.Equal(t, http.StatusNotFound, apperr.NotFound("bid").Kind.Status())
	require.Equal(t, "bid not found", apperr.NotFound("bid").Error())

	inv := apperr.Invalid(map[string]string{"amount": "must be greater than zero"})
	require.Equal(t, apperr.KindValidation, inv.Kind)
	require.Equal(t, "must be greater than zero", inv.Fields["amount"])
}

func TestInternalUnwraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := apperr.Internal("failed to load task", cause)
	require.ErrorIs(t, err, cause)
	require.Equal(t, "failed to load task: connection refused", err.Error())
}
