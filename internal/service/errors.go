package service

import (
	"errors"

	"github.com/sakif/reservations/internal/apperror"
)

// asAppError leaves taxonomy errors alone and wraps everything else as a
// storage failure, so handlers never see a raw driver error.
func asAppError(op string, err error) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperror.StorageFailure(op, err)
}
