package dto

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"session-service/internal/apperrors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{apperrors.ErrNotOwner, http.StatusForbidden},
		{apperrors.InvalidTransition("x"), http.StatusConflict},
		{apperrors.ErrNoMoreBlocks, http.StatusConflict},
		{apperrors.NotAccepting("paused"), http.StatusConflict},
		{apperrors.Validation("bad"), http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", apperrors.NotFound("gone")), http.StatusNotFound},
		{apperrors.ErrUnauthorized, http.StatusUnauthorized},
		{errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, StatusFor(tt.err), tt.err.Error())
	}
}

func TestAppError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("typed error carries its code", func(t *testing.T) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		AppError(c, apperrors.NotAccepting("session is PAUSED"))

		assert.Equal(t, http.StatusConflict, w.Code)
		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "SESSION_NOT_ACCEPTING_RESPONSES", resp.Code)
		assert.Equal(t, "session is PAUSED", resp.Message)
	})

	t.Run("internal error is not described", func(t *testing.T) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		AppError(c, errors.New("pq: connection refused"))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "connection refused")
		assert.Len(t, c.Errors, 1)
	})
}
