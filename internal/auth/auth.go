// Package auth guards the admin surface: a single bcrypt-hashed admin
// password, expiring session tokens, and per-client login rate limits.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
)

// Defaults applied by NewManager for zero config values.
const (
	DefaultSessionTTL = 12 * time.Hour
	DefaultLoginEvery = 2 * time.Second
	DefaultLoginBurst = 5
	limiterCacheSize  = 1024
)

var (
	// ErrInvalidCredentials is returned for a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrRateLimited is returned when a client logs in too often.
	ErrRateLimited = errors.New("too many login attempts")
	// ErrNoSession is returned by Authorize without a live session.
	ErrNoSession = errors.New("no valid session")
	// ErrNotConfigured is returned by Login when no password hash is set.
	ErrNotConfigured = errors.New("admin login not configured")
)

// Config configures a Manager.
type Config struct {
	PasswordHash string        `yaml:"password_hash"`
	SessionTTL   time.Duration `yaml:"session_ttl"`
	LoginEvery   time.Duration `yaml:"login_every"`
	LoginBurst   int           `yaml:"login_burst"`
}

// Session is an issued admin session.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Manager issues and checks admin sessions.
type Manager struct {
	hash     []byte
	ttl      time.Duration
	every    time.Duration
	burst    int
	now      func() time.Time
	limiters *lru.Cache[string, *rate.Limiter]

	mu       sync.Mutex
	sessions map[string]time.Time
}

// HashPassword returns the bcrypt hash stored in configuration.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// NewManager validates cfg and returns a manager. An empty hash is allowed;
// every login then fails with ErrNotConfigured.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.PasswordHash != "" {
		if _, err := bcrypt.Cost([]byte(cfg.PasswordHash)); err != nil {
			return nil, fmt.Errorf("invalid password hash: %w", err)
		}
	}
	limiters, err := lru.New[string, *rate.Limiter](limiterCacheSize)
	if err != nil {
		return nil, err
	}
	m := &Manager{
		hash:     []byte(cfg.PasswordHash),
		ttl:      cfg.SessionTTL,
		every:    cfg.LoginEvery,
		burst:    cfg.LoginBurst,
		now:      func() time.Time { return time.Now().UTC() },
		limiters: limiters,
		sessions: make(map[string]time.Time),
	}
	if m.ttl <= 0 {
		m.ttl = DefaultSessionTTL
	}
	if m.every <= 0 {
		m.every = DefaultLoginEvery
	}
	if m.burst <= 0 {
		m.burst = DefaultLoginBurst
	}
	return m, nil
}

// SetNowFunc overrides the clock used for session expiry.
func (m *Manager) SetNowFunc(fn func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if fn != nil {
		m.now = fn
	}
}

// TTL returns the session lifetime.
func (m *Manager) TTL() time.Duration { return m.ttl }

func (m *Manager) limiter(client string) *rate.Limiter {
	if l, ok := m.limiters.Get(client); ok {
		return l
	}
	l := rate.NewLimiter(rate.Every(m.every), m.burst)
	m.limiters.Add(client, l)
	return l
}

// Login checks password for client (typically the remote IP) and issues a
// session. Attempts count against the client's rate limit whether or not
// they succeed.
func (m *Manager) Login(_ context.Context, client, password string) (Session, error) {
	if !m.limiter(client).Allow() {
		return Session{}, ErrRateLimited
	}
	if len(m.hash) == 0 {
		return Session{}, ErrNotConfigured
	}
	if err := bcrypt.CompareHashAndPassword(m.hash, []byte(password)); err != nil {
		return Session{}, ErrInvalidCredentials
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeLocked()
	s := Session{Token: uuid.NewString(), ExpiresAt: m.now().Add(m.ttl)}
	m.sessions[s.Token] = s.ExpiresAt
	return s, nil
}

// Logout ends a session. Unknown tokens are ignored.
func (m *Manager) Logout(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
}

// Valid reports whether token names a live session.
func (m *Manager) Valid(token string) bool {
	if token == "" {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	expires, ok := m.sessions[token]
	if !ok {
		return false
	}
	if !m.now().Before(expires) {
		delete(m.sessions, token)
		return false
	}
	return true
}

// Authorize accepts contexts carrying a live session token.
func (m *Manager) Authorize(ctx context.Context) error {
	if !m.Valid(TokenFrom(ctx)) {
		return ErrNoSession
	}
	return nil
}

func (m *Manager) purgeLocked() {
	now := m.now()
	for token, expires := range m.sessions {
		if !now.Before(expires) {
			delete(m.sessions, token)
		}
	}
}

type tokenKey struct{}

// WithToken attaches a session token to ctx.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFrom returns the session token attached to ctx, if any.
func TokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}
