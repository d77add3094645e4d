// Package session keeps per-client state between requests: the logged-in
// user id and a cached snapshot of that user.
//
// A Store persists Data under an opaque token. Two stores exist:
//   - CookieStore: the token IS the data, an HS256-signed JWT held by the client
//   - RedisStore: the token is a random key, the data lives in Redis
//
// The Manager moves tokens in and out of the HTTP cookie and applies the
// sliding expiry: every response re-saves the session for another TTL.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/sakif/reservations/internal/model"
)

const (
	DefaultTTL        = time.Hour
	DefaultCookieName = "session_reservations"
)

// ErrNotFound means the token is unknown, expired or fails verification.
// Callers treat it as an empty session.
var ErrNotFound = errors.New("session: not found")

// Data is what a session remembers.
type Data struct {
	UserID string      `json:"user_id,omitempty"`
	User   *model.User `json:"user,omitempty"`
}

func (d Data) empty() bool {
	return d.UserID == "" && d.User == nil
}

type Store interface {
	// Load returns the data for token, or ErrNotFound.
	Load(ctx context.Context, token string) (Data, error)
	// Save stores data for ttl and returns the token the client should hold.
	// An empty token asks the store to issue a new one.
	Save(ctx context.Context, token string, data Data, ttl time.Duration) (string, error)
	Delete(ctx context.Context, token string) error
}

// Session is the request-scoped handle on Data. It is not safe for
// concurrent use; one request owns it.
type Session struct {
	token    string
	previous string // token to delete on the next save, after a renew or clear
	data     Data
	dirty    bool
}

func (s *Session) UserID() string {
	return s.data.UserID
}

// CachedUser returns the stored user snapshot, or nil.
func (s *Session) CachedUser() *model.User {
	return s.data.User
}

// CacheUser stores a snapshot of u so later requests skip the user lookup.
func (s *Session) CacheUser(u *model.User) {
	snapshot := *u
	s.data.User = &snapshot
	s.data.UserID = u.ID
	s.dirty = true
}

// Login binds the session to u under a fresh token.
func (s *Session) Login(u *model.User) {
	s.renew()
	s.CacheUser(u)
}

// Clear forgets the user. The old token is revoked on save.
func (s *Session) Clear() {
	s.renew()
	s.data = Data{}
	s.dirty = true
}

func (s *Session) renew() {
	if s.token != "" && s.previous == "" {
		s.previous = s.token
	}
	s.token = ""
}

type ctxKey struct{}

// NewContext returns a copy of ctx carrying s.
func NewContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the request's session. It never returns nil: requests
// that bypassed the session middleware get a throwaway empty session.
func FromContext(ctx context.Context) *Session {
	if s, ok := ctx.Value(ctxKey{}).(*Session); ok {
		return s
	}
	return &Session{}
}
