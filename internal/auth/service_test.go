package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func jwtService() *Service {
	return NewService(ModeJWT, "test-secret", time.Hour)
}

func TestHashAndCheckPassword(t *testing.T) {
	s := jwtService()
	hash, err := s.HashPassword("hunter2")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "hunter2" {
		t.Fatal("password stored in the clear")
	}
	if !s.CheckPassword(hash, "hunter2") {
		t.Error("correct password rejected")
	}
	if s.CheckPassword(hash, "wrong") {
		t.Error("wrong password accepted")
	}
}

func TestIssueAndValidateToken(t *testing.T) {
	s := jwtService()
	token, err := s.IssueToken("alice")
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	claims, err := s.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.Username != "alice" {
		t.Errorf("Username = %q, want alice", claims.Username)
	}
}

func TestValidateToken_Expired(t *testing.T) {
	s := jwtService()
	issued := time.Now().Add(-2 * time.Hour)
	s.now = func() time.Time { return issued }
	token, err := s.IssueToken("alice")
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	s.now = time.Now // clock jumps past expiry
	if _, err := s.ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("got %v, want ErrInvalidToken", err)
	}
}

func TestValidateToken_WrongSecret(t *testing.T) {
	token, err := jwtService().IssueToken("alice")
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	other := NewService(ModeJWT, "different-secret", time.Hour)
	if _, err := other.ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("got %v, want ErrInvalidToken", err)
	}
}

func TestMiddleware_RejectsMissingToken(t *testing.T) {
	s := jwtService()
	h := s.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler reached without a token")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/alerts", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestMiddleware_AcceptsValidToken(t *testing.T) {
	s := jwtService()
	token, _ := s.IssueToken("alice")

	var seen string
	h := s.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = Username(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if seen != "alice" {
		t.Errorf("context username = %q, want alice", seen)
	}
}

func TestMiddleware_DisabledPassesThrough(t *testing.T) {
	s := NewService("none", "", time.Hour)
	reached := false
	h := s.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if !reached {
		t.Error("disabled auth must pass requests through")
	}
}
