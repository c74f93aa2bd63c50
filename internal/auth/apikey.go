package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const headerName = "X-API-Key"

// APIKeyMiddleware accepts any of keys from the X-API-Key header or an
// "Authorization: Bearer" token. With no keys, authentication is disabled.
func APIKeyMiddleware(keys []string) gin.HandlerFunc {
	var allowed [][]byte
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			allowed = append(allowed, []byte(k))
		}
	}

	return func(c *gin.Context) {
		if len(allowed) == 0 {
			c.Next()
			return
		}

		provided := c.GetHeader(headerName)
		if provided == "" {
			if token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer "); ok {
				provided = strings.TrimSpace(token)
			}
		}
		if provided == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing API key",
				"code":  "unauthorized",
			})
			return
		}

		if !matches(allowed, []byte(provided)) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "invalid API key",
				"code":  "forbidden",
			})
			return
		}

		c.Next()
	}
}

// matches compares against every key so timing does not reveal which one matched.
func matches(allowed [][]byte, provided []byte) bool {
	ok := 0
	for _, k := range allowed {
		ok |= subtle.ConstantTimeCompare(provided, k)
	}
	return ok == 1
}
