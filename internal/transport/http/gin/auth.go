package httpgin

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	ctxUserID    = "user_id"
	ctxRequestID = "request_id"
)

var errNoUser = errors.New("token carries no user id")

// Auth verifies an HS256 bearer token and stores the caller's user id in
// the context. The id is read from the "id" claim, falling back to "sub".
func Auth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "missing bearer token"})
			return
		}

		tok, err := jwt.Parse(strings.TrimSpace(raw), func(t *jwt.Token) (any, error) {
			return secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !tok.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid token"})
			return
		}

		claims, ok := tok.Claims.(jwt.MapClaims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid claims"})
			return
		}

		uid, err := claimUserID(claims)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid claims"})
			return
		}

		c.Set(ctxUserID, uid)
		c.Next()
	}
}

func claimUserID(claims jwt.MapClaims) (int64, error) {
	for _, name := range []string{"id", "sub"} {
		switch v := claims[name].(type) {
		case float64:
			if v > 0 && v == float64(int64(v)) {
				return int64(v), nil
			}
		case string:
			if id, err := strconv.ParseInt(v, 10, 64); err == nil && id > 0 {
				return id, nil
			}
		case nil:
			continue
		}
	}

	return 0, errNoUser
}

func userID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(ctxUserID)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

// mustUserID is for handlers behind Auth.
func mustUserID(c *gin.Context) int64 {
	id, ok := userID(c)
	if !ok {
		panic(fmt.Sprintf("%s handler mounted without auth", c.FullPath()))
	}
	return id
}
