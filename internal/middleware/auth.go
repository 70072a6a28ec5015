package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
)

type contextKey string

const (
	ClientKey      contextKey = "client"
	requestInfoKey contextKey = "request_info"
)

// requestInfo is planted by Logging so that handlers further down the chain
// can report back who the caller was.
type requestInfo struct{ client string }

// public paths skip auth and rate limiting
var publicPaths = map[string]bool{
	"/health": true,
	"/ready":  true,
	"/live":   true,
}

// BearerAuth requires "Authorization: Bearer <token>". An empty token turns
// the check off, which is how the local companion server runs by default.
func BearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPaths[r.URL.Path] || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			auth := r.Header.Get("Authorization")
			if auth == "" {
				http.Error(w, "missing Authorization header", http.StatusUnauthorized)
				return
			}
			given := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
			if given == "" {
				http.Error(w, "invalid Authorization header format", http.StatusUnauthorized)
				return
			}
			// constant-time comparison
			if subtle.ConstantTimeCompare([]byte(given), []byte(token)) != 1 {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			if info, ok := r.Context().Value(requestInfoKey).(*requestInfo); ok {
				info.client = "token"
			}
			ctx := context.WithValue(r.Context(), ClientKey, "token")
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetClientFromContext returns who authenticated the request, "" if nobody.
func GetClientFromContext(ctx context.Context) string {
	if c, ok := ctx.Value(ClientKey).(string); ok {
		return c
	}
	if info, ok := ctx.Value(requestInfoKey).(*requestInfo); ok {
		return info.client
	}
	return ""
}
