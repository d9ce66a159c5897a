package auth

import (
	"errors"
	"testing"
	"time"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	hash, err := HashPassword("hunter22")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	return NewService("secret", time.Hour, "admin", hash)
}

func TestLogin(t *testing.T) {
	s := newTestService(t)

	token, err := s.Login("admin", "hunter22")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	claims, err := s.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.Username != "admin" || !claims.IsAdmin {
		t.Errorf("claims = %+v", claims)
	}
}

func TestLoginRejects(t *testing.T) {
	s := newTestService(t)

	tests := []struct{ user, pass string }{
		{"admin", "wrong"},
		{"root", "hunter22"},
		{"", ""},
	}
	for _, tt := range tests {
		if _, err := s.Login(tt.user, tt.pass); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("Login(%q, %q) err = %v, want ErrInvalidCredentials", tt.user, tt.pass, err)
		}
	}
}

func TestLoginDisabled(t *testing.T) {
	s := NewService("secret", time.Hour, "admin", "")
	if _, err := s.Login("admin", "anything"); !errors.Is(err, ErrLoginDisabled) {
		t.Errorf("err = %v, want ErrLoginDisabled", err)
	}
}

func TestValidateTokenRejects(t *testing.T) {
	s := newTestService(t)
	other := NewService("other-secret", time.Hour, "admin", "")

	foreign, err := other.GenerateToken("admin", true)
	if err != nil {
		t.Fatal(err)
	}
	expired, err := NewService("secret", -time.Minute, "admin", "").GenerateToken("admin", true)
	if err != nil {
		t.Fatal(err)
	}

	for name, token := range map[string]string{
		"garbage": "not-a-token",
		"foreign": foreign,
		"expired": expired,
	} {
		if _, err := s.ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("%s: err = %v, want ErrInvalidToken", name, err)
		}
	}
}

func TestRandomSecretWhenEmpty(t *testing.T) {
	a := NewService("", time.Hour, "admin", "")
	b := NewService("", time.Hour, "admin", "")

	token, err := a.GenerateToken("admin", true)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.ValidateToken(token); err == nil {
		t.Error("two services with generated secrets accepted each other's tokens")
	}
}
