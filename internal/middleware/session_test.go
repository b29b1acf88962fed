package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/shalteor/bplog/internal/db"
	"github.com/shalteor/bplog/internal/models"
)

type stubUsers struct {
	users map[int64]*models.User
	err   error
}

func (s *stubUsers) GetUser(_ context.Context, id int64) (*models.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	u, ok := s.users[id]
	if !ok {
		return nil, db.ErrUserNotFound
	}
	return u, nil
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookieName {
			return c
		}
	}
	return nil
}

func TestGenerateToken(t *testing.T) {
	config := NewSessionConfig("test-secret", time.Hour, nil)

	token, err := config.GenerateToken(123)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	if token == "" {
		t.Error("generated token is empty")
	}
}

func TestValidateToken(t *testing.T) {
	config := NewSessionConfig("test-secret", time.Hour, nil)

	token, err := config.GenerateToken(123)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	claims, err := config.ValidateToken(token)
	if err != nil {
		t.Fatalf("failed to validate token: %v", err)
	}
	if claims.UserID != 123 {
		t.Errorf("expected user ID 123, got %d", claims.UserID)
	}
	if claims.ID == "" {
		t.Error("expected token id to be set")
	}
}

func TestTokensAreUnique(t *testing.T) {
	config := NewSessionConfig("test-secret", time.Hour, nil)

	a, _ := config.GenerateToken(1)
	b, _ := config.GenerateToken(1)
	if a == b {
		t.Error("expected distinct tokens for separate sessions")
	}
}

func TestValidateTokenInvalid(t *testing.T) {
	config := NewSessionConfig("test-secret", time.Hour, nil)

	tests := []struct {
		name  string
		token string
	}{
		{"invalid format", "invalid-token"},
		{"empty", ""},
		{"wrong signature", "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.eyJ1c2VyX2lkIjoxMjN9.invalid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := config.ValidateToken(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestValidateTokenWrongSecret(t *testing.T) {
	token, err := NewSessionConfig("secret1", time.Hour, nil).GenerateToken(123)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	if _, err := NewSessionConfig("secret2", time.Hour, nil).ValidateToken(token); err == nil {
		t.Error("expected error when validating token with wrong secret")
	}
}

func TestValidateTokenExpired(t *testing.T) {
	config := NewSessionConfig("test-secret", time.Hour, nil)
	config.Expiration = -1 * time.Hour

	token, err := config.GenerateToken(123)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	if _, err := config.ValidateToken(token); err == nil {
		t.Error("expected error for expired token")
	}
}

func TestValidateTokenWrongAlgorithm(t *testing.T) {
	config := NewSessionConfig("test-secret", time.Hour, nil)

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{UserID: 1})
	signed, err := token.SignedString(config.Secret)
	if err != nil {
		t.Fatalf("failed to sign: %v", err)
	}
	if _, err := config.ValidateToken(signed); err == nil {
		t.Error("expected error for unexpected signing method")
	}
}

func TestSetAndClearSession(t *testing.T) {
	config := NewSessionConfig("test-secret", 2*time.Hour, nil)

	rec := httptest.NewRecorder()
	if err := config.SetSession(rec, 7); err != nil {
		t.Fatalf("failed to set session: %v", err)
	}

	c := sessionCookie(t, rec)
	if c == nil {
		t.Fatal("session cookie not set")
	}
	if !c.HttpOnly {
		t.Error("session cookie must be HttpOnly")
	}
	if c.MaxAge != 7200 {
		t.Errorf("expected max age 7200, got %d", c.MaxAge)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(c)
	userID, err := config.SessionUserID(req)
	if err != nil || userID != 7 {
		t.Errorf("expected user 7, got %d (%v)", userID, err)
	}

	rec = httptest.NewRecorder()
	config.ClearSession(rec)
	if c := sessionCookie(t, rec); c == nil || c.MaxAge >= 0 {
		t.Error("expected expired session cookie")
	}
}

func TestRequireAuth(t *testing.T) {
	config := NewSessionConfig("test-secret", time.Hour, nil)
	users := &stubUsers{users: map[int64]*models.User{5: {ID: 5, Username: "ann"}}}

	handler := config.RequireAuth(users)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := GetUserIDFromContext(r.Context())
		if err != nil {
			t.Errorf("failed to get user ID from context: %v", err)
		}
		if userID != 5 {
			t.Errorf("expected user ID 5, got %d", userID)
		}
		if u, ok := GetUserFromContext(r.Context()); !ok || u.Username != "ann" {
			t.Error("expected user in context")
		}
		w.WriteHeader(http.StatusOK)
	}))

	token, _ := config.GenerateToken(5)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: token})
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
}

func TestRequireAuthRedirects(t *testing.T) {
	config := NewSessionConfig("test-secret", time.Hour, nil)
	users := &stubUsers{users: map[int64]*models.User{}}

	validForDeleted, _ := config.GenerateToken(99)

	tests := []struct {
		name        string
		cookie      *http.Cookie
		wantCleared bool
	}{
		{"no cookie", nil, false},
		{"garbage cookie", &http.Cookie{Name: SessionCookieName, Value: "junk"}, true},
		{"deleted user", &http.Cookie{Name: SessionCookieName, Value: validForDeleted}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := config.RequireAuth(users)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Error("handler should not be called")
			}))

			req := httptest.NewRequest(http.MethodGet, "/plot", nil)
			if tt.cookie != nil {
				req.AddCookie(tt.cookie)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusSeeOther {
				t.Fatalf("expected status 303, got %d", rec.Code)
			}
			if loc := rec.Header().Get("Location"); loc != LoginPath {
				t.Errorf("expected redirect to %s, got %s", LoginPath, loc)
			}

			var flash bool
			for _, c := range rec.Result().Cookies() {
				if c.Name == FlashCookieName {
					flash = true
				}
			}
			if !flash {
				t.Error("expected flash message")
			}
			if cleared := sessionCookie(t, rec) != nil; cleared != tt.wantCleared {
				t.Errorf("session cleared = %v, want %v", cleared, tt.wantCleared)
			}
		})
	}
}

func TestRequireAuthLookupError(t *testing.T) {
	config := NewSessionConfig("test-secret", time.Hour, nil)
	users := &stubUsers{err: errors.New("db down")}

	handler := config.RequireAuth(users)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	}))

	token, _ := config.GenerateToken(1)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: token})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", rec.Code)
	}
}

func TestGetUserIDFromContextMissing(t *testing.T) {
	if _, err := GetUserIDFromContext(context.Background()); err == nil {
		t.Error("expected error for empty context")
	}
}
