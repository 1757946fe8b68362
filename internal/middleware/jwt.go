package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"session-service/internal/dto"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const userIDKey = "user_id"

type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// ParseToken validates an HS256 access token and returns its claims.
func ParseToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.UserID == "" {
		return nil, errors.New("token has no user id")
	}
	return claims, nil
}

// JWTAuth authenticates the session owner. Browsers cannot set headers on a
// websocket handshake, so the token is also accepted as the access_token
// query parameter.
func JWTAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("access_token")

		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				dto.JsonError(c, http.StatusUnauthorized, "Invalid authorization header format")
				c.Abort()
				return
			}
			token = parts[1]
		}

		if token == "" {
			dto.JsonError(c, http.StatusUnauthorized, "Authorization header is required")
			c.Abort()
			return
		}

		claims, err := ParseToken(token, secret)
		if err != nil {
			dto.JsonError(c, http.StatusUnauthorized, "Invalid or expired token")
			c.Abort()
			return
		}

		c.Set(userIDKey, claims.UserID)
		c.Next()
	}
}

// UserID returns the authenticated owner id set by JWTAuth.
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}
