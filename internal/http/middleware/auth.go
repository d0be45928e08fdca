package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/wolfman30/physio-quota-tracker/internal/tenancy"
)

type contextKey string

const claimsKey contextKey = "staffClaims"

// RoleAdmin may act on any clinic.
const RoleAdmin = "admin"

// StaffClaims are the claims carried by a clinic staff or admin token.
type StaffClaims struct {
	ClinicID string `json:"clinic_id,omitempty"`
	Role     string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// IsAdmin reports whether the token grants cross-clinic access.
func (c StaffClaims) IsAdmin() bool {
	return strings.EqualFold(c.Role, RoleAdmin)
}

// StaffJWT enforces an HMAC-signed JWT on API endpoints.
func StaffJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				http.Error(w, `{"error": "auth disabled"}`, http.StatusUnauthorized)
				return
			}
			auth := r.Header.Get("Authorization")
			if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
				http.Error(w, `{"error": "missing authorization header"}`, http.StatusUnauthorized)
				return
			}
			tokenString := strings.TrimPrefix(auth, "Bearer ")
			claims := StaffClaims{}
			token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				http.Error(w, `{"error": "invalid token"}`, http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext returns staff JWT claims if present.
func ClaimsFromContext(ctx context.Context) (StaffClaims, bool) {
	claims, ok := ctx.Value(claimsKey).(StaffClaims)
	return claims, ok
}

// RequireClinicAccess scopes a request to the {clinicID} route parameter. Staff
// tokens must name that clinic; admin tokens may name any.
func RequireClinicAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clinicID := strings.TrimSpace(chi.URLParam(r, "clinicID"))
		if clinicID == "" {
			http.Error(w, `{"error": "missing clinicID"}`, http.StatusBadRequest)
			return
		}
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
			return
		}
		if !claims.IsAdmin() && claims.ClinicID != clinicID {
			http.Error(w, `{"error": "forbidden"}`, http.StatusForbidden)
			return
		}
		ctx := tenancy.WithClinicID(r.Context(), clinicID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
