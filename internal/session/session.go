package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Role string

const (
	RoleUser   Role = "user"
	RoleDriver Role = "driver"
	RoleAdmin  Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleDriver, RoleAdmin:
		return true
	}
	return false
}

var (
	ErrUnauthenticated = errors.New("not authenticated")
	ErrForbidden       = errors.New("role not permitted")
	ErrInvalidToken    = errors.New("invalid token")
	ErrUnknownRole     = errors.New("unknown role")
)

// Claims is what the backend puts in the access token.
type Claims struct {
	UserID string `json:"user_id,omitempty"`
	Role   Role   `json:"role"`
	jwt.RegisteredClaims
}

// ID prefers the explicit user_id claim and falls back to sub.
func (c *Claims) ID() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.Subject
}

// Session holds the credential for one signed-in identity and derives the
// dashboard role from it. Safe for concurrent use.
type Session struct {
	mu     sync.RWMutex
	token  string
	claims *Claims

	secret []byte
	store  TokenStore
	now    func() time.Time
}

type Option func(*Session)

// WithSecret enables HS256 signature verification. Without it tokens are
// decoded unverified; the backend remains the authority on every request.
func WithSecret(secret string) Option {
	return func(s *Session) {
		if secret != "" {
			s.secret = []byte(secret)
		}
	}
}

func WithStore(store TokenStore) Option {
	return func(s *Session) { s.store = store }
}

func New(opts ...Option) *Session {
	s := &Session{now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Restore signs in from the token store, if one is configured and holds a token.
func (s *Session) Restore() error {
	if s.store == nil {
		return nil
	}
	token, err := s.store.Load()
	if err != nil {
		return err
	}
	if token == "" {
		return nil
	}
	claims, err := s.parse(token)
	if err != nil {
		return err
	}
	s.set(token, claims)
	return nil
}

// Login replaces the current credential and persists it.
func (s *Session) Login(token string) error {
	claims, err := s.parse(token)
	if err != nil {
		return err
	}
	if s.store != nil {
		if err := s.store.Save(token); err != nil {
			return fmt.Errorf("persist token: %w", err)
		}
	}
	s.set(token, claims)
	return nil
}

// Authenticator exchanges account credentials for an access token.
type Authenticator interface {
	Login(ctx context.Context, role Role, email, password string) (string, error)
}

// SignIn logs in with credentials and adopts the returned token. The token
// must carry the role that was asked for.
func (s *Session) SignIn(ctx context.Context, auth Authenticator, role Role, email, password string) error {
	if !role.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	token, err := auth.Login(ctx, role, email, password)
	if err != nil {
		return fmt.Errorf("sign in as %s: %w", role, err)
	}
	claims, err := s.parse(token)
	if err != nil {
		return err
	}
	if claims.Role != role {
		return fmt.Errorf("%w: signed in as %q, token says %q", ErrForbidden, role, claims.Role)
	}
	return s.Login(token)
}

func (s *Session) Logout() error {
	s.set("", nil)
	if s.store != nil {
		return s.store.Clear()
	}
	return nil
}

func (s *Session) set(token string, claims *Claims) {
	s.mu.Lock()
	s.token, s.claims = token, claims
	s.mu.Unlock()
}

func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Role is empty when signed out.
func (s *Session) Role() Role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.claims == nil {
		return ""
	}
	return s.claims.Role
}

func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.claims == nil {
		return ""
	}
	return s.claims.ID()
}

// Authenticated is false once the token has expired.
func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" || s.claims == nil {
		return false
	}
	if exp := s.claims.ExpiresAt; exp != nil && s.now().After(exp.Time) {
		return false
	}
	return true
}

// Gate decides whether a dashboard for the required role may mount.
func (s *Session) Gate(required Role) error {
	if !s.Authenticated() {
		return ErrUnauthenticated
	}
	if required != "" && s.Role() != required {
		return fmt.Errorf("%w: have %q, need %q", ErrForbidden, s.Role(), required)
	}
	return nil
}

func (s *Session) parse(token string) (*Claims, error) {
	claims := &Claims{}
	if len(s.secret) == 0 {
		if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
	} else {
		_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return s.secret, nil
		}, jwt.WithTimeFunc(s.now))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
	}
	if !claims.Role.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, claims.Role)
	}
	return claims, nil
}
