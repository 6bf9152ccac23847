package builtin

import apperrors "github.com/ianzepp/monk-api/pkg/errors"

func validationError(field, message string) *apperrors.Error {
	return apperrors.New(apperrors.KindValidation, "VALIDATION_ERROR", message).WithField(field, message)
}
