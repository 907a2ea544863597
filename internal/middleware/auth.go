// Package middleware provides HTTP middleware for authentication, request
// identification and rate limiting.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"delegated-groups/internal/service"
)

type callerKey struct{}

// WithCaller stores the authenticated caller in the context.
func WithCaller(ctx context.Context, caller service.CallerIdentity) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFromContext extracts the authenticated caller from the context.
func CallerFromContext(ctx context.Context) (service.CallerIdentity, bool) {
	caller, ok := ctx.Value(callerKey{}).(service.CallerIdentity)
	return caller, ok
}

// AuthMiddleware validates an HS256 Bearer token and stores the caller
// identity from its claims. The subject claim carries the directory
// username; an email claim is optional but used first for owner matching.
func AuthMiddleware(jwtSecret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				writeUnauthorized(w, "missing Bearer token")
				return
			}
			tokenStr := strings.TrimPrefix(auth, "Bearer ")
			token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
				return jwtSecret, nil
			}, jwt.WithValidMethods([]string{"HS256"}))
			if err != nil || !token.Valid {
				writeUnauthorized(w, "invalid token")
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				writeUnauthorized(w, "invalid token claims")
				return
			}
			caller := service.CallerIdentity{}
			if sub, ok := claims["sub"].(string); ok {
				caller.Username = sub
			}
			if email, ok := claims["email"].(string); ok {
				caller.Email = email
			}
			if caller.Username == "" && caller.Email == "" {
				writeUnauthorized(w, "token carries no identity")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"code":    401,
		"message": "unauthorized: " + message,
	})
}
