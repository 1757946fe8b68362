package dto

import (
	"net/http"

	"session-service/internal/apperrors"

	"github.com/gin-gonic/gin"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

func JsonError(c *gin.Context, status int, message ...string) {
	msg := ""
	if len(message) > 0 {
		msg = message[0]
	}

	c.JSON(status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: msg,
	})
}

// StatusFor maps an engine error to its HTTP status.
func StatusFor(err error) int {
	switch apperrors.CodeOf(err) {
	case apperrors.CodeNotOwner:
		return http.StatusForbidden
	case apperrors.CodeInvalidTransition,
		apperrors.CodeNoMoreBlocks,
		apperrors.CodeSessionNotAcceptingResponses:
		return http.StatusConflict
	case apperrors.CodeValidation:
		return http.StatusBadRequest
	case apperrors.CodeNotFound:
		return http.StatusNotFound
	case apperrors.CodeUnauthorized:
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

// AppError writes err as an error body. Internal failures are not described
// to the caller.
func AppError(c *gin.Context, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		JsonError(c, status)
		return
	}
	c.JSON(status, ErrorResponse{
		Error:   http.StatusText(status),
		Code:    string(apperrors.CodeOf(err)),
		Message: err.Error(),
	})
}
