package middleware

import (
	"net/http"

	"session-service/internal/identity"

	"github.com/gin-gonic/gin"
)

const (
	ParticipantHeader = "X-Participant-Token"
	ParticipantCookie = "participant_token"

	participantKey = "participant_token"

	participantCookieMaxAge = 60 * 60 * 24 * 30
)

// ParticipantToken resolves the anonymous participant token from the header
// or cookie. A new token is issued when neither is present and echoed back in
// both.
func ParticipantToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader(ParticipantHeader)
		if token == "" {
			if cookie, err := c.Cookie(ParticipantCookie); err == nil {
				token = cookie
			}
		}

		if token == "" {
			token = identity.NewToken()
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(ParticipantCookie, token, participantCookieMaxAge, "/", "", false, true)
		}
		c.Header(ParticipantHeader, token)

		c.Set(participantKey, token)
		c.Next()
	}
}

func Participant(c *gin.Context) string {
	return c.GetString(participantKey)
}
