// Package auth resolves who is making a request and guards routes that need
// a logged-in user or a staff member.
//
// REQUEST FLOW:
//
//	Identify      → load session, resolve user once, save session, put user in ctx
//	RequireLogin  → 401 unless a user was resolved
//	RequireStaff  → 401 unless the resolved user has the staff flag
//
// Handlers read the user with ViewerFromContext. It is resolved exactly once
// per request and never changed afterwards.
package auth

import (
	"log/slog"
	"net/http"

	"github.com/sakif/reservations/internal/apperror"
	"github.com/sakif/reservations/internal/session"
)

// ErrorWriter renders an error response. The handler package provides it so
// middleware failures share the API's error format.
type ErrorWriter func(w http.ResponseWriter, err error)

type Middleware struct {
	sessions *session.Manager
	resolver *Resolver
	fail     ErrorWriter
	logger   *slog.Logger
}

func NewMiddleware(sessions *session.Manager, resolver *Resolver, fail ErrorWriter, logger *slog.Logger) *Middleware {
	return &Middleware{sessions: sessions, resolver: resolver, fail: fail, logger: logger}
}

// Identify must run before any handler that reads the viewer or session.
//
// The session is saved BEFORE the handler runs: once the handler writes the
// body, headers (and so Set-Cookie) can no longer change. Handlers that alter
// the session (login, logout) save it again themselves.
func (m *Middleware) Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		sess, err := m.sessions.Load(r)
		if err != nil {
			m.logger.Error("loading session", slog.String("error", err.Error()))
			m.fail(w, apperror.StorageFailure("loading session", err))
			return
		}

		viewer, err := m.resolver.Resolve(ctx, sess)
		if err != nil {
			m.logger.Error("resolving viewer", slog.String("error", err.Error()))
			m.fail(w, err)
			return
		}

		if err := m.sessions.Save(ctx, w, sess); err != nil {
			m.logger.Error("saving session", slog.String("error", err.Error()))
			m.fail(w, apperror.StorageFailure("saving session", err))
			return
		}

		ctx = session.NewContext(ctx, sess)
		ctx = WithViewer(ctx, viewer)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireLogin rejects anonymous requests with 401 not_authenticated.
func (m *Middleware) RequireLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := ViewerFromContext(r.Context()); !ok {
			m.fail(w, apperror.NotAuthenticated())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireStaff rejects anonymous requests (not_authenticated) and non-staff
// users (not_authorized). Both are 401.
func (m *Middleware) RequireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		viewer, ok := ViewerFromContext(r.Context())
		if !ok {
			m.fail(w, apperror.NotAuthenticated())
			return
		}
		if !viewer.IsStaff() {
			m.fail(w, apperror.NotAuthorized())
			return
		}
		next.ServeHTTP(w, r)
	})
}
