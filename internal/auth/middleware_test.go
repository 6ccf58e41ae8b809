package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sharedmail/backend/internal/models"
)

func stubValidator(email string, err error) TokenValidator {
	return func(string) (string, error) { return email, err }
}

func TestValidateToken(t *testing.T) {
	t.Run("empty token rejected", func(t *testing.T) {
		if _, err := ValidateToken(""); err == nil {
			t.Error("Expected error for empty token")
		}
		if _, err := ValidateToken("email:"); err == nil {
			t.Error("Expected error for bare email prefix")
		}
	})

	t.Run("test mode extracts email", func(t *testing.T) {
		t.Setenv("SHAREDMAIL_TEST_MODE", "true")
		email, err := ValidateToken("email:agent@example.com")
		if err != nil {
			t.Fatalf("ValidateToken failed: %v", err)
		}
		if email != "agent@example.com" {
			t.Errorf("Expected extracted email, got %q", email)
		}
	})
}

func TestRequireAuthHeaderParsing(t *testing.T) {
	// The profile lookup runs only after header parsing succeeds, so a
	// nil pool is safe for the rejection cases.
	m := NewMiddleware(nil, stubValidator("agent@example.com", nil))
	handler := m.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Handler should not be reached")
	}))

	cases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic Zm9v"},
		{"bearer without token", "Bearer"},
		{"bearer with blank token", "Bearer   "},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if c.header != "" {
				req.Header.Set("Authorization", c.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("Expected 401, got %d", rec.Code)
			}
		})
	}
}

func TestGetProfileFromContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	if _, ok := GetProfileFromContext(req.Context()); ok {
		t.Error("Expected no profile on a bare context")
	}

	profile := &models.Profile{ID: "p1", Email: "agent@example.com", Role: models.RoleAgent}
	ctx := context.WithValue(req.Context(), ProfileKey, profile)

	got, ok := GetProfileFromContext(ctx)
	if !ok || got.Email != "agent@example.com" {
		t.Errorf("Expected stored profile back, got %+v ok=%v", got, ok)
	}
}
