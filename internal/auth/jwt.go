// internal/auth/jwt.go

// Package auth resolves the calling user from an HS256 bearer token.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	userKey         = "userID"
	anonymousKey    = "anonymous"
	AnonymousPrefix = "anonymous-"
)

var (
	ErrMissingToken = errors.New("authorization header required")
	ErrInvalidToken = errors.New("invalid token")
)

type Options struct {
	Secret []byte
	// AllowAnonymous lets requests without a token through with a generated
	// one-off user id. Tokens that are present must still be valid.
	AllowAnonymous bool
}

// Middleware stores the caller's user id in the gin context.
func Middleware(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			if !opts.AllowAnonymous {
				abort(c, ErrMissingToken.Error())
				return
			}
			c.Set(userKey, AnonymousPrefix+uuid.NewString())
			c.Set(anonymousKey, true)
			c.Next()
			return
		}

		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			abort(c, ErrMissingToken.Error())
			return
		}

		userID, err := ParseToken(opts.Secret, strings.TrimSpace(tokenString))
		if err != nil {
			abort(c, err.Error())
			return
		}

		c.Set(userKey, userID)
		c.Next()
	}
}

// RequireUser rejects callers that were let through anonymously.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := UserID(c); !ok || IsAnonymous(c) {
			abort(c, ErrMissingToken.Error())
			return
		}
		c.Next()
	}
}

func UserID(c *gin.Context) (string, bool) {
	id := c.GetString(userKey)
	return id, id != ""
}

func IsAnonymous(c *gin.Context) bool {
	return c.GetBool(anonymousKey)
}

// ParseToken validates an HS256 token and returns its user id, read from the
// "sub" claim or, failing that, "userId".
func ParseToken(secret []byte, tokenString string) (string, error) {
	if len(secret) == 0 {
		return "", fmt.Errorf("%w: no signing secret configured", ErrInvalidToken)
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("%w: invalid claims", ErrInvalidToken)
	}

	if sub, _ := claims.GetSubject(); sub != "" {
		return sub, nil
	}
	switch id := claims["userId"].(type) {
	case string:
		if id != "" {
			return id, nil
		}
	case float64:
		return fmt.Sprintf("%.0f", id), nil
	}
	return "", fmt.Errorf("%w: user claim missing", ErrInvalidToken)
}

// IssueToken signs a token for userID. ttl <= 0 issues a token without expiry.
func IssueToken(secret []byte, userID string, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("no signing secret configured")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:  userID,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func abort(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error": gin.H{
			"code":    "UNAUTHORIZED",
			"message": message,
		},
	})
}
