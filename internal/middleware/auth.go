package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/xelth-com/eckrentgo/internal/utils"
)

type contextKey string

const (
	UserContextKey  contextKey = "user"
	ActorContextKey contextKey = "actor"
)

// Auth verifies bearer JWTs signed with secret and puts the claims and the
// acting party id into the request context. Websocket clients, which cannot
// set headers, may pass the token as ?token=.
func Auth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(r)
			if !ok {
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			claims, err := utils.ValidateToken(tokenString, secret)
			if err != nil {
				http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
				return
			}
			actor, err := utils.ActorFromClaims(claims)
			if err != nil {
				http.Error(w, "Token carries no user id", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, claims)
			ctx = context.WithValue(ctx, ActorContextKey, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if t := r.URL.Query().Get("token"); t != "" {
			return t, true
		}
		return "", false
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// ActorFromContext returns the acting party id set by Auth
func ActorFromContext(ctx context.Context) string {
	actor, _ := ctx.Value(ActorContextKey).(string)
	return actor
}

// ClaimsFromContext returns the token claims set by Auth
func ClaimsFromContext(ctx context.Context) jwt.MapClaims {
	claims, _ := ctx.Value(UserContextKey).(jwt.MapClaims)
	return claims
}
