package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/reservations/internal/apperror"
	"github.com/sakif/reservations/internal/auth"
	"github.com/sakif/reservations/internal/service"
	"github.com/sakif/reservations/internal/session"
)

// AccountHandler serves signup, email login, logout, the current session and
// the data reset endpoint.
//
// Login and logout change the session after the auth middleware has already
// saved it, so they save it again. Manager.Save replaces the earlier
// Set-Cookie, and the client receives only the final one.
type AccountHandler struct {
	accounts          *service.AccountService
	sessions          *session.Manager
	initializeEnabled bool
	logger            *slog.Logger
}

func NewAccountHandler(accounts *service.AccountService, sessions *session.Manager, initializeEnabled bool, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		accounts:          accounts,
		sessions:          sessions,
		initializeEnabled: initializeEnabled,
		logger:            logger,
	}
}

// HandleInitialize wipes all data and recreates the seed staff user.
//
// HTTP: POST /initialize
// Returns 404 unless enabled in config.
func (h *AccountHandler) HandleInitialize(w http.ResponseWriter, r *http.Request) {
	if !h.initializeEnabled {
		WriteError(w, apperror.NotFound("route", r.URL.Path))
		return
	}
	if err := h.accounts.Initialize(r.Context()); err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"language": "go"})
}

// HandleSession returns the logged-in user, or null.
//
// HTTP: GET /api/session
func (h *AccountHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	viewer, _ := auth.ViewerFromContext(r.Context())
	writeJSON(w, http.StatusOK, viewer)
}

// HandleSignup registers a user. It does not log them in.
//
// HTTP: POST /api/signup
// REQUEST: {"email": "...", "nickname": "..."} (JSON or form)
func (h *AccountHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	p, err := readParams(w, r)
	if err != nil {
		WriteError(w, err)
		return
	}

	user, err := h.accounts.Signup(r.Context(), p.str("email"), p.str("nickname"))
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleLogin binds the session to the user owning the given email.
//
// HTTP: POST /api/login
// REQUEST: {"email": "..."}
func (h *AccountHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	p, err := readParams(w, r)
	if err != nil {
		WriteError(w, err)
		return
	}

	sess := session.FromContext(r.Context())
	user, err := h.accounts.Login(r.Context(), p.str("email"))
	if apperror.IsKind(err, apperror.KindLoginFailed) {
		// A failed attempt also logs out whoever held this session.
		sess.Clear()
		if saveErr := h.sessions.Save(r.Context(), w, sess); saveErr != nil {
			h.logger.Error("clearing session", slog.String("error", saveErr.Error()))
		}
	}
	if err != nil {
		WriteError(w, err)
		return
	}

	sess.Login(user)
	if err := h.sessions.Save(r.Context(), w, sess); err != nil {
		WriteError(w, apperror.StorageFailure("saving session", err))
		return
	}

	h.logger.Info("user logged in", slog.String("user_id", user.ID))
	writeJSON(w, http.StatusOK, user)
}

// HandleLogout clears the session and revokes its token.
//
// HTTP: POST /api/logout
func (h *AccountHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	sess.Clear()
	if err := h.sessions.Save(r.Context(), w, sess); err != nil {
		WriteError(w, apperror.StorageFailure("clearing session", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
