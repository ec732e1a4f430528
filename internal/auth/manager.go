package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/duyngulam/fubabus-mobile/internal/api"
)

// API is the slice of the backend client the manager needs. *api.Client
// satisfies it.
type API interface {
	Login(ctx context.Context, emailOrPhone, password string) (api.LoginResponse, error)
	SetToken(token string)
}

// Manager owns the sign-in lifecycle: authenticating, caching the session,
// installing the bearer token on the API client, and tearing everything down
// on sign-out.
type Manager struct {
	api   API
	cache *Cache
	log   zerolog.Logger

	// OnSignOut runs after the session is cleared. The composition root
	// uses it to stop any active trip.
	OnSignOut func()

	mu      sync.RWMutex
	session *Session
}

func NewManager(a API, cache *Cache, log zerolog.Logger) *Manager {
	return &Manager{
		api:   a,
		cache: cache,
		log:   log.With().Str("component", "auth").Logger(),
	}
}

func (m *Manager) SignIn(ctx context.Context, emailOrPhone, password string) (Session, error) {
	res, err := m.api.Login(ctx, emailOrPhone, password)
	if err != nil {
		return Session{}, fmt.Errorf("sign in: %w", err)
	}

	s := Session{
		Token:        res.Token,
		RefreshToken: res.RefreshToken,
		DriverID:     res.User.ID,
		Name:         res.User.Name,
		Role:         res.User.Role,
	}
	if claims, err := ParseClaims(res.Token); err == nil {
		if s.DriverID == 0 {
			s.DriverID = claims.UserID
		}
		if s.Role == "" {
			s.Role = claims.Role
		}
		if claims.ExpiresAt != nil {
			s.ExpiresAt = claims.ExpiresAt.Time
		}
	}
	if s.ExpiresAt.IsZero() && res.ExpiresIn > 0 {
		s.ExpiresAt = time.Now().Add(time.Duration(res.ExpiresIn) * time.Second)
	}

	m.install(s)
	if err := m.cache.Save(ctx, s); err != nil {
		// A failed cache write only costs the next restart a re-login.
		m.log.Warn().Err(err).Msg("session cache write failed")
	}
	m.log.Info().Int64("driver_id", s.DriverID).Str("role", s.Role).Msg("signed in")
	return s, nil
}

// Restore resumes a cached session. The bool reports whether a usable
// session was found; an expired one is discarded.
func (m *Manager) Restore(ctx context.Context) (Session, bool, error) {
	s, ok, err := m.cache.Load(ctx)
	if err != nil || !ok {
		return Session{}, false, err
	}
	if s.Expired() {
		m.log.Info().Msg("cached session expired, discarding")
		_ = m.cache.Clear(ctx)
		return Session{}, false, nil
	}
	m.install(s)
	m.log.Info().Int64("driver_id", s.DriverID).Msg("session restored")
	return s, true, nil
}

func (m *Manager) SignOut(ctx context.Context) {
	m.mu.Lock()
	m.session = nil
	m.mu.Unlock()

	m.api.SetToken("")
	if err := m.cache.Clear(ctx); err != nil {
		m.log.Warn().Err(err).Msg("session cache clear failed")
	}
	m.log.Info().Msg("signed out")

	if m.OnSignOut != nil {
		m.OnSignOut()
	}
}

// Session returns the current session, if any.
func (m *Manager) Session() (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return Session{}, false
	}
	return *m.session, true
}

func (m *Manager) install(s Session) {
	m.mu.Lock()
	m.session = &s
	m.mu.Unlock()
	m.api.SetToken(s.Token)
}
