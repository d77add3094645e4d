package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ManagerConfig holds the cookie settings.
type ManagerConfig struct {
	CookieName string
	TTL        time.Duration
	Secure     bool // set the Secure attribute; enable behind HTTPS
}

// Manager binds a Store to HTTP cookies.
type Manager struct {
	store  Store
	cfg    ManagerConfig
	logger *slog.Logger
}

func NewManager(store Store, cfg ManagerConfig, logger *slog.Logger) *Manager {
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	return &Manager{store: store, cfg: cfg, logger: logger}
}

// Load reads the request's session. A missing, expired or invalid cookie
// gives an empty session; only store failures are errors.
func (m *Manager) Load(r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(m.cfg.CookieName)
	if err != nil || cookie.Value == "" {
		return &Session{}, nil
	}

	data, err := m.store.Load(r.Context(), cookie.Value)
	if errors.Is(err, ErrNotFound) {
		m.logger.Debug("discarding session cookie", slog.String("reason", err.Error()))
		return &Session{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}

	return &Session{token: cookie.Value, data: data}, nil
}

// Save persists s and writes its cookie. Non-empty sessions are re-saved on
// every call, which is what makes the expiry sliding.
func (m *Manager) Save(ctx context.Context, w http.ResponseWriter, s *Session) error {
	if s.previous != "" {
		if err := m.store.Delete(ctx, s.previous); err != nil {
			return fmt.Errorf("revoking session: %w", err)
		}
		s.previous = ""
	}

	if s.data.empty() {
		if s.dirty {
			m.setCookie(w, &http.Cookie{Name: m.cfg.CookieName, Value: "", MaxAge: -1})
			s.dirty = false
		}
		return nil
	}

	token, err := m.store.Save(ctx, s.token, s.data, m.cfg.TTL)
	if err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	s.token = token
	s.dirty = false

	m.setCookie(w, &http.Cookie{
		Name:   m.cfg.CookieName,
		Value:  token,
		MaxAge: int(m.cfg.TTL.Seconds()),
	})
	return nil
}

// setCookie replaces any Set-Cookie for the session cookie already queued on
// w, so saving twice in one request sends a single cookie.
func (m *Manager) setCookie(w http.ResponseWriter, c *http.Cookie) {
	c.Path = "/"
	c.HttpOnly = true
	c.Secure = m.cfg.Secure
	c.SameSite = http.SameSiteLaxMode

	header := w.Header()
	prefix := m.cfg.CookieName + "="
	var kept []string
	for _, v := range header.Values("Set-Cookie") {
		if !strings.HasPrefix(v, prefix) {
			kept = append(kept, v)
		}
	}
	header.Del("Set-Cookie")
	for _, v := range kept {
		header.Add("Set-Cookie", v)
	}
	http.SetCookie(w, c)
}
