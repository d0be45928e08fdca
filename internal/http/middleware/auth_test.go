package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/wolfman30/physio-quota-tracker/internal/tenancy"
)

func TestStaffJWTMissingSecret(t *testing.T) {
	mw := StaffJWT("")
	req := httptest.NewRequest(http.MethodGet, "/api/v1/clinics/c1/cases", nil)
	rec := httptest.NewRecorder()

	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
}

func TestStaffJWTMissingHeader(t *testing.T) {
	mw := StaffJWT("secret")
	req := httptest.NewRequest(http.MethodGet, "/api/v1/clinics/c1/cases", nil)
	rec := httptest.NewRecorder()

	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
}

func TestStaffJWTInvalidToken(t *testing.T) {
	mw := StaffJWT("secret")
	req := httptest.NewRequest(http.MethodGet, "/api/v1/clinics/c1/cases", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "wrong", "c1", ""))
	rec := httptest.NewRecorder()

	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
}

func TestStaffJWTValidToken(t *testing.T) {
	mw := StaffJWT("secret")
	req := httptest.NewRequest(http.MethodGet, "/api/v1/clinics/c1/cases", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "secret", "c1", ""))
	rec := httptest.NewRecorder()

	called := false
	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			t.Fatalf("expected claims in context")
		}
		if claims.ClinicID != "c1" {
			t.Fatalf("expected clinic c1, got %q", claims.ClinicID)
		}
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)

	if !called {
		t.Fatalf("expected handler to be called")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
}

func TestRequireClinicAccess(t *testing.T) {
	r := chi.NewRouter()
	r.Use(StaffJWT("secret"))
	r.With(RequireClinicAccess).Get("/api/v1/clinics/{clinicID}/cases", func(w http.ResponseWriter, r *http.Request) {
		if id, ok := tenancy.ClinicIDFromContext(r.Context()); !ok || id == "" {
			t.Fatalf("expected clinic id in context")
		}
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name     string
		clinicID string
		role     string
		want     int
	}{
		{"own clinic", "c1", "", http.StatusOK},
		{"other clinic", "c2", "", http.StatusForbidden},
		{"admin any clinic", "", RoleAdmin, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/clinics/c1/cases", nil)
			req.Header.Set("Authorization", "Bearer "+signedToken(t, "secret", tt.clinicID, tt.role))
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("expected status %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func signedToken(t *testing.T, secret, clinicID, role string) string {
	t.Helper()
	claims := StaffClaims{
		ClinicID: clinicID,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "staff-user",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}
