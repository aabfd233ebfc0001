package middleware

import (
	"crypto/rsa"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tverlabs/timekeep/internal"
	"github.com/tverlabs/timekeep/pkg/logger"
)

// Claims is the token payload the API trusts. There is no user store behind
// it; the issuer vouches for tenant membership and permissions.
type Claims struct {
	TenantID    string   `json:"tenant_id"`
	Permissions []string `json:"permissions"`
	jwt.RegisteredClaims
}

// BearerAuth validates the RS256 bearer token and injects the resulting
// actor into the request context.
func BearerAuth(publicKey *rsa.PublicKey, lg *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearer(r)
			if token == "" {
				unauthorized(w, "missing authorization token")
				return
			}

			claims := &Claims{}
			parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
				}
				return publicKey, nil
			})
			if err != nil || !parsed.Valid {
				lg.Warn("token validation failed", "error", err)
				unauthorized(w, "invalid token")
				return
			}
			if claims.Subject == "" || claims.TenantID == "" {
				lg.Warn("token missing subject or tenant claim")
				unauthorized(w, "invalid token")
				return
			}

			actor := &internal.Actor{
				UserID:      claims.Subject,
				TenantID:    claims.TenantID,
				Permissions: claims.Permissions,
			}

			ctx := internal.ContextWithActor(r.Context(), actor)
			ctx = logger.With(ctx, "user_id", actor.UserID, "tenant_id", actor.TenantID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractBearer(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	fmt.Fprintf(w, `{"code": 401, "message": %q}`, message)
}
