// Package apperror defines the error taxonomy shared by the service and HTTP layers.
//
// Every failure the API reports carries two things:
//   - a class sentinel (ErrNotFound, ErrForbidden, ...) that the handler maps to a status code
//   - a Kind, the machine-readable name returned to clients ("capacity_full", ...)
//
// Services build errors with the constructors below. Handlers never inspect messages.
package apperror

import (
	"errors"
	"fmt"
)

// Class sentinels. Match with errors.Is.
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("validation error")
	ErrConflict        = errors.New("conflict")
	ErrForbidden       = errors.New("forbidden")
	ErrTooManyRequests = errors.New("too many requests")
	ErrInternal        = errors.New("internal error")
)

// Kind is the stable, client-visible name of a failure.
type Kind string

const (
	KindNotAuthenticated             Kind = "not_authenticated"
	KindNotAuthorized                Kind = "not_authorized"
	KindScheduleNotFound             Kind = "schedule_not_found"
	KindUserNotFound                 Kind = "user_not_found"
	KindAlreadyReserved              Kind = "already_reserved"
	KindCapacityFull                 Kind = "capacity_full"
	KindIdentifierCollisionExhausted Kind = "identifier_collision_exhausted"
	KindStorageFailure               Kind = "storage_failure"
	KindLoginFailed                  Kind = "login_failed"
	KindValidation                   Kind = "validation_error"
	KindConflict                     Kind = "conflict"
	KindNotFound                     Kind = "not_found"
	KindRateLimited                  Kind = "rate_limited"
)

// InternalMessage is the only text clients ever see for an internal failure.
const InternalMessage = "An internal error occurred"

type AppError struct {
	Err     error  // class sentinel
	Kind    Kind   // client-visible kind
	Message string // human-readable message
	Field   string // optional: field causing the error
	Cause   error  // optional: underlying error, logged but never returned to clients
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap exposes both the class sentinel and the cause, so errors.Is works for
// apperror.ErrInternal as well as for context.DeadlineExceeded underneath it.
func (e *AppError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

// KindOf returns the Kind of the first AppError in err's chain.
// Errors outside the taxonomy are storage failures.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindStorageFailure
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Kind == kind
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Kind:    KindNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

// ScheduleNotFound is returned by direct schedule lookups (HTTP 404).
// The booking engine reports a missing schedule through Rejected instead.
func ScheduleNotFound(id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Kind:    KindScheduleNotFound,
		Message: fmt.Sprintf("schedule not found with id %s", id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Kind:    KindValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Kind:    KindConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(kind Kind, message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Kind:    kind,
		Message: message,
	}
}

// Rejected is a business-rule refusal from the booking engine (403).
func Rejected(kind Kind) *AppError {
	return Forbidden(kind, rejectionMessages[kind])
}

var rejectionMessages = map[Kind]string{
	KindScheduleNotFound: "schedule not found",
	KindUserNotFound:     "user not found",
	KindAlreadyReserved:  "already taken",
	KindCapacityFull:     "capacity is already full",
}

func NotAuthenticated() *AppError {
	return &AppError{
		Err:     ErrUnauthenticated,
		Kind:    KindNotAuthenticated,
		Message: "login required",
	}
}

// NotAuthorized is returned when a logged-in user lacks the staff flag.
// It shares the 401 status of NotAuthenticated.
func NotAuthorized() *AppError {
	return &AppError{
		Err:     ErrUnauthenticated,
		Kind:    KindNotAuthorized,
		Message: "staff privileges required",
	}
}

func RateLimited() *AppError {
	return &AppError{
		Err:     ErrTooManyRequests,
		Kind:    KindRateLimited,
		Message: "too many requests, slow down",
	}
}

// StorageFailure wraps an unexpected storage or infrastructure error.
func StorageFailure(op string, cause error) *AppError {
	return &AppError{
		Err:     ErrInternal,
		Kind:    KindStorageFailure,
		Message: op,
		Cause:   cause,
	}
}

func IdentifierCollisionExhausted(table string, attempts int) *AppError {
	return &AppError{
		Err:     ErrInternal,
		Kind:    KindIdentifierCollisionExhausted,
		Message: fmt.Sprintf("no free identifier for %s after %d attempts", table, attempts),
	}
}
