package middleware

import (
	"net/http"

	"session-service/internal/dto"
	"session-service/pkg/logger"

	"github.com/gin-gonic/gin"
)

func ErrorHandler(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Error("panic recovered", "path", c.Request.URL.Path, "panic", err)
				dto.JsonError(c, http.StatusInternalServerError)
				c.Abort()
			}
		}()

		c.Next()

		if len(c.Errors) > 0 {
			err := c.Errors.Last()
			log.Error("request error", "method", c.Request.Method, "path", c.Request.URL.Path, "error", err.Err)

			if c.Writer.Written() {
				return
			}
			statusCode := c.Writer.Status()
			if statusCode == http.StatusOK {
				statusCode = http.StatusInternalServerError
			}
			dto.JsonError(c, statusCode)
		}
	}
}
