package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/sitegrade/models"
)

// Context keys set by Identity.
const (
	IdentifierKey    = "identifier"
	AuthenticatedKey = "authenticated"
)

// identifierHashLen is the number of hex characters of the key digest kept
// in an authenticated identifier.
const identifierHashLen = 16

// Identity resolves who is calling and stores it on the gin context.
//
// Supports two header styles:
//
//	X-API-Key: <key>
//	Authorization: Bearer <key>
//
// A known key makes the caller authenticated as "user:<digest>". An unknown
// key is rejected with 401. No key at all makes the caller anonymous,
// identified as "ip:<client IP>".
func Identity(apiKeys []string) gin.HandlerFunc {
	keySet := make(map[string]struct{}, len(apiKeys))
	for _, k := range apiKeys {
		if k != "" {
			keySet[k] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		key := extractAPIKey(c)
		if key == "" {
			c.Set(IdentifierKey, "ip:"+c.ClientIP())
			c.Set(AuthenticatedKey, false)
			c.Next()
			return
		}

		if _, valid := keySet[key]; !valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.AnalyzeResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeUnauthorized,
					Message: "invalid API key",
				},
			})
			return
		}

		c.Set(IdentifierKey, userIdentifier(key))
		c.Set(AuthenticatedKey, true)
		c.Next()
	}
}

// Caller returns the identity stored by Identity. Without the middleware the
// caller is anonymous and identified by client IP.
func Caller(c *gin.Context) (identifier string, authenticated bool) {
	identifier = c.GetString(IdentifierKey)
	if identifier == "" {
		identifier = "ip:" + c.ClientIP()
	}
	return identifier, c.GetBool(AuthenticatedKey)
}

func userIdentifier(key string) string {
	sum := sha256.Sum256([]byte(key))
	return "user:" + hex.EncodeToString(sum[:])[:identifierHashLen]
}

// extractAPIKey tries X-API-Key first, then Authorization: Bearer.
func extractAPIKey(c *gin.Context) string {
	if key := c.GetHeader("X-API-Key"); key != "" {
		return key
	}
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}
