package main

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/example/dispatch-client/internal/config"
	"github.com/example/dispatch-client/internal/session"
)

type fakeAuth struct {
	token string
	calls int
}

func (f *fakeAuth) Login(context.Context, session.Role, string, string) (string, error) {
	f.calls++
	return f.token, nil
}

func signed(t *testing.T, role session.Role) string {
	t.Helper()
	claims := session.Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u-7",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("k"))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestOpenSessionSignsInWithCredentials(t *testing.T) {
	cfg := config.ClientConfig{
		TokenFile:     filepath.Join(t.TempDir(), "token"),
		LoginEmail:    "d@example.test",
		LoginPassword: "pw",
		LoginRole:     "driver",
	}
	auth := &fakeAuth{token: signed(t, session.RoleDriver)}

	s := newSession(cfg)
	if err := openSession(context.Background(), cfg, s, auth); err != nil {
		t.Fatal(err)
	}
	if s.Role() != session.RoleDriver || auth.calls != 1 {
		t.Fatalf("unexpected session role %q after %d logins", s.Role(), auth.calls)
	}

	// the token persisted by the first sign in is reused
	again := newSession(cfg)
	if err := openSession(context.Background(), cfg, again, auth); err != nil {
		t.Fatal(err)
	}
	if auth.calls != 1 || !again.Authenticated() {
		t.Fatalf("expected restore without a second login, got %d calls", auth.calls)
	}
}

func TestOpenSessionPrefersConfiguredToken(t *testing.T) {
	cfg := config.ClientConfig{
		Token:         signed(t, session.RoleUser),
		LoginEmail:    "d@example.test",
		LoginPassword: "pw",
		LoginRole:     "driver",
	}
	auth := &fakeAuth{token: signed(t, session.RoleDriver)}
	s := newSession(cfg)
	if err := openSession(context.Background(), cfg, s, auth); err != nil {
		t.Fatal(err)
	}
	if s.Role() != session.RoleUser || auth.calls != 0 {
		t.Fatalf("configured token should win, role %q, %d logins", s.Role(), auth.calls)
	}
}

func TestOpenSessionWithoutCredentials(t *testing.T) {
	cfg := config.ClientConfig{}
	err := openSession(context.Background(), cfg, newSession(cfg), &fakeAuth{})
	if !errors.Is(err, session.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}
