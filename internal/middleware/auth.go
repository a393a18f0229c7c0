package middleware

import (
	"net/http"
	"strings"

	"github.com/cadenza-app/cadenza/internal/auth"
	"github.com/cadenza-app/cadenza/internal/identity"
)

// RequireAuth resolves the bearer token through the identity provider and
// populates AuthContext. Token issuance is the identity service's business;
// this only verifies.
func RequireAuth(provider identity.Provider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if !strings.HasPrefix(h, "Bearer ") {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			id, err := provider.CurrentUser(strings.TrimPrefix(h, "Bearer "))
			if err != nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := auth.WithAuth(r.Context(), auth.AuthContext{
				UserID: id.UserID,
				Role:   id.Role,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin checks that the authenticated user has the admin role.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.IsAdmin(r.Context()) {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireArtist checks that the authenticated user may manage catalog
// entries.
func RequireArtist(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.IsArtist(r.Context()) {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
