package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/reservations/internal/apperror"
	"github.com/sakif/reservations/internal/idgen"
	"github.com/sakif/reservations/internal/model"
	"github.com/sakif/reservations/internal/repository"
)

const (
	MaxEmailLength    = 255
	MaxNicknameLength = 120
)

// SeedUser is the staff account created by bootstrap and Initialize.
type SeedUser struct {
	Email    string
	Nickname string
}

// AccountStore is what AccountService needs from storage.
type AccountStore interface {
	repository.Transactor
	repository.UserRepository
}

// AccountService handles signup, email-only login and data resets.
//
// There is no password: knowing an email is enough to log in as its owner.
// Session handling stays in the HTTP layer; this service only answers
// "which user is this".
type AccountService struct {
	store  AccountStore
	ids    *idgen.Generator
	seed   SeedUser
	logger *slog.Logger
}

func NewAccountService(store AccountStore, ids *idgen.Generator, seed SeedUser, logger *slog.Logger) *AccountService {
	return &AccountService{store: store, ids: ids, seed: seed, logger: logger}
}

// Signup registers a regular (non-staff) user.
func (s *AccountService) Signup(ctx context.Context, email, nickname string) (*model.User, error) {
	email = strings.TrimSpace(email)
	nickname = strings.TrimSpace(nickname)

	if email == "" {
		return nil, apperror.ValidationFailed("email", "email is required")
	}
	if utf8.RuneCountInString(email) > MaxEmailLength {
		return nil, apperror.ValidationFailed("email",
			fmt.Sprintf("email must be %d characters or less", MaxEmailLength))
	}
	if utf8.RuneCountInString(nickname) > MaxNicknameLength {
		return nil, apperror.ValidationFailed("nickname",
			fmt.Sprintf("nickname must be %d characters or less", MaxNicknameLength))
	}

	user := &model.User{Email: email, Nickname: nickname}
	if err := s.insertUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperror.Conflict("user", email)
		}
		s.logger.Error("signup failed", slog.String("error", err.Error()))
		return nil, fmt.Errorf("signing up: %w", asAppError("inserting user", err))
	}

	s.logger.Info("user signed up", slog.String("id", user.ID))
	return user, nil
}

// Login looks the user up by email. Unknown emails get login_failed (403).
func (s *AccountService) Login(ctx context.Context, email string) (*model.User, error) {
	user, err := s.store.GetUserByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, apperror.Forbidden(apperror.KindLoginFailed, "login failed")
	}
	if err != nil {
		return nil, apperror.StorageFailure("looking up user", err)
	}
	return user, nil
}

// Initialize wipes all reservations, schedules and users, then recreates the
// seed staff user, all in one transaction.
func (s *AccountService) Initialize(ctx context.Context) error {
	err := s.store.WithinTx(ctx, func(tx repository.WriteTx) error {
		if err := tx.Truncate(ctx); err != nil {
			return err
		}
		return s.insertSeed(ctx, tx)
	})
	if err != nil {
		s.logger.Error("initialize failed", slog.String("error", err.Error()))
		return asAppError("initializing", err)
	}

	s.logger.Warn("all data reset", slog.String("seed_email", s.seed.Email))
	return nil
}

// EnsureSeed creates the seed staff user unless a user with its email exists.
// Run once at startup.
func (s *AccountService) EnsureSeed(ctx context.Context) error {
	_, err := s.store.GetUserByEmail(ctx, s.seed.Email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return fmt.Errorf("looking up seed user: %w", err)
	}

	err = s.store.WithinTx(ctx, func(tx repository.WriteTx) error {
		return s.insertSeed(ctx, tx)
	})
	// A concurrent instance may have won the race; that is fine.
	if err != nil && !errors.Is(err, repository.ErrDuplicate) {
		return fmt.Errorf("creating seed user: %w", err)
	}

	s.logger.Info("seed staff user ensured", slog.String("email", s.seed.Email))
	return nil
}

func (s *AccountService) insertSeed(ctx context.Context, tx repository.WriteTx) error {
	id, err := s.ids.Generate(ctx, tx, repository.TableUsers)
	if err != nil {
		return err
	}
	return tx.InsertUser(ctx, &model.User{
		ID:       id,
		Email:    s.seed.Email,
		Nickname: s.seed.Nickname,
		Staff:    true,
	})
}

func (s *AccountService) insertUser(ctx context.Context, user *model.User) error {
	return s.store.WithinTx(ctx, func(tx repository.WriteTx) error {
		id, err := s.ids.Generate(ctx, tx, repository.TableUsers)
		if err != nil {
			return err
		}
		user.ID = id
		return tx.InsertUser(ctx, user)
	})
}
