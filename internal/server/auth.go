package server

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware gates the inbound surface with a configurable list of accepted proxy
// tokens, per spec §6: when tokens is empty the surface is unauthenticated. Acceptable
// forms are "Authorization: Bearer <token>", "x-api-key: <token>" (Anthropic's header),
// "x-goog-api-key: <token>" (Gemini's header) and a "key" query parameter.
func AuthMiddleware(tokens []string) gin.HandlerFunc {
	if len(tokens) == 0 {
		return func(c *gin.Context) { c.Next() }
	}
	allowed := make(map[string][]byte, len(tokens))
	for _, t := range tokens {
		allowed[t] = []byte(t)
	}
	return func(c *gin.Context) {
		provided := bearerToken(c.Request)
		if provided == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing API key"})
			return
		}
		for _, want := range allowed {
			if subtle.ConstantTimeCompare(want, []byte(provided)) == 1 {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
	}
}

func bearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if key := r.Header.Get("x-api-key"); key != "" {
		return key
	}
	if key := r.Header.Get("x-goog-api-key"); key != "" {
		return key
	}
	return r.URL.Query().Get("key")
}
