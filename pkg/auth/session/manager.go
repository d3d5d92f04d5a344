package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/kiosk-backend/pkg/config"
	"github.com/angelmondragon/kiosk-backend/pkg/enums"
	"github.com/angelmondragon/kiosk-backend/pkg/logger"
	redisclient "github.com/angelmondragon/kiosk-backend/pkg/redis"
	"github.com/google/uuid"
	redislib "github.com/redis/go-redis/v9"
)

// ErrNoSession is returned when the token resolves to no cached session and
// the identity-provider fallback could not establish one.
var ErrNoSession = errors.New("no session for token")

// Session is the cached profile a bearer token resolves to.
type Session struct {
	PersonID uuid.UUID        `json:"person_id"`
	OrgGuid  string           `json:"org_guid"`
	Role     enums.MemberRole `json:"role"`
	Name     string           `json:"name,omitempty"`
}

type sessionStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

type sessionKeyer interface {
	SessionKey(token string) string
}

// Registrar is the upstream identity-provider surface used when the cache
// misses: a one-shot register/refresh round trip bounded by a timeout.
type Registrar interface {
	RegisterSession(ctx context.Context, token string, timeout time.Duration) (*Session, error)
}

// Checker exposes the read-only surface needed by middleware.
type Checker interface {
	HasSession(ctx context.Context, token string) (bool, error)
}

// Resolver exposes the lookup surface the socket handler depends on.
type Resolver interface {
	Lookup(ctx context.Context, token string) (*Session, error)
}

// Manager resolves bearer tokens to sessions through the Redis cache with
// an identity-provider fallback.
type Manager struct {
	store     sessionStore
	keyer     sessionKeyer
	registrar Registrar
	ttl       time.Duration
	timeout   time.Duration
	attempts  int
	wait      time.Duration
	logg      *logger.Logger
}

// NewManager constructs a session manager backed by Redis.
func NewManager(client *redisclient.Client, registrar Registrar, jwtCfg config.JWTConfig, idCfg config.IdentityConfig, logg *logger.Logger) (*Manager, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	ttl := jwtCfg.SessionTTL()
	if ttl <= 0 {
		return nil, fmt.Errorf("session ttl must be positive")
	}
	return &Manager{
		store:     client,
		keyer:     client,
		registrar: registrar,
		ttl:       ttl,
		timeout:   idCfg.RequestTimeout,
		attempts:  idCfg.RetryAttempts,
		wait:      idCfg.RetryWait,
		logg:      logg,
	}, nil
}

// Store caches the session for the given token with the configured TTL.
func (m *Manager) Store(ctx context.Context, token string, sess *Session) error {
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("token is required")
	}
	if sess == nil {
		return fmt.Errorf("session is required")
	}
	encoded, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	return m.store.Set(ctx, m.keyer.SessionKey(token), string(encoded), m.ttl)
}

// Lookup resolves the token to a session. On a cache miss it attempts one
// bounded register round trip against the identity provider, then re-checks
// the cache path by storing the fresh session.
func (m *Manager) Lookup(ctx context.Context, token string) (*Session, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrNoSession
	}

	key := m.keyer.SessionKey(token)
	raw, err := m.store.Get(ctx, key)
	if err == nil {
		return decodeSession(raw)
	}
	if !errors.Is(err, redislib.Nil) {
		return nil, fmt.Errorf("session cache lookup: %w", err)
	}
	if m.registrar == nil {
		return nil, ErrNoSession
	}

	sess, err := m.register(ctx, token)
	if err != nil {
		if m.logg != nil {
			m.logg.Warn(m.logg.WithField(ctx, "reason", err.Error()), "identity fallback failed")
		}
		return nil, ErrNoSession
	}

	if err := m.Store(ctx, token, sess); err != nil && m.logg != nil {
		m.logg.Error(ctx, "caching registered session failed", err)
	}
	return sess, nil
}

// register performs the fallback round trip with a bounded, fixed-wait
// retry. Not an open-ended loop: attempts is small and configured.
func (m *Manager) register(ctx context.Context, token string) (*Session, error) {
	var lastErr error
	for attempt := 0; attempt <= m.attempts; attempt++ {
		sess, err := m.registrar.RegisterSession(ctx, token, m.timeout)
		if err == nil {
			return sess, nil
		}
		lastErr = err
		if attempt < m.attempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(m.wait):
			}
		}
	}
	return nil, lastErr
}

// HasSession reports whether the token currently resolves to a cached session.
func (m *Manager) HasSession(ctx context.Context, token string) (bool, error) {
	if strings.TrimSpace(token) == "" {
		return false, fmt.Errorf("token is required")
	}
	if _, err := m.store.Get(ctx, m.keyer.SessionKey(token)); err != nil {
		if errors.Is(err, redislib.Nil) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Revoke deletes the cached session for the token.
func (m *Manager) Revoke(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("token is required")
	}
	return m.store.Del(ctx, m.keyer.SessionKey(token))
}

func decodeSession(raw string) (*Session, error) {
	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	return &sess, nil
}
