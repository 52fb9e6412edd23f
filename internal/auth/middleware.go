package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

type contextKey string

const claimsKey contextKey = "admin_claims"

// ExtractToken reads the Authorization header, falling back to the token
// query parameter browsers must use for websocket upgrades.
func ExtractToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

func (s *TokenService) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ExtractToken(r)
		if token == "" {
			respondError(w, http.StatusUnauthorized, "Authorization required")
			return
		}

		claims, err := s.Verify(token)
		switch {
		case errors.Is(err, ErrForbidden):
			respondError(w, http.StatusForbidden, "Admin access required")
			return
		case errors.Is(err, ErrExpiredToken):
			respondError(w, http.StatusUnauthorized, "Token has expired")
			return
		case err != nil:
			respondError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	})
}

func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*Claims)
	return claims, ok
}

func respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "message": message})
}
