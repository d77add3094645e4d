package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/sakif/reservations/internal/apperror"
	"github.com/sakif/reservations/internal/model"
	"github.com/sakif/reservations/internal/session"
)

// UserLookup is the slice of the user repository the resolver needs.
type UserLookup interface {
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

// Resolver turns a session into the current user.
type Resolver struct {
	users  UserLookup
	logger *slog.Logger
}

func NewResolver(users UserLookup, logger *slog.Logger) *Resolver {
	return &Resolver{users: users, logger: logger}
}

// Resolve returns the session's user, or nil for an anonymous session.
//
// RESOLUTION ORDER:
//  1. cached snapshot in the session → returned as is
//  2. stored user id → loaded, cached into the session (so the caller must
//     save the session), returned
//  3. nothing → anonymous
//
// A stored id whose user row is gone resolves to anonymous. The snapshot is
// never refreshed, so a cached user can lag behind its row until logout.
func (r *Resolver) Resolve(ctx context.Context, s *session.Session) (*model.User, error) {
	if cached := s.CachedUser(); cached != nil {
		u := *cached
		return &u, nil
	}

	id := s.UserID()
	if id == "" {
		return nil, nil
	}

	u, err := r.users.GetUserByID(ctx, id)
	if errors.Is(err, apperror.ErrNotFound) {
		r.logger.Info("session refers to missing user", slog.String("user_id", id))
		return nil, nil
	}
	if err != nil {
		return nil, apperror.StorageFailure("resolving session user", err)
	}

	s.CacheUser(u)
	return u, nil
}
