package application

import (
	"context"
	"errors"

	"github.com/pharmacy-platform/pharmacy-service/internal/domain"
	apperrors "github.com/pharmacy-platform/pharmacy-service/pkg/errors"
	"github.com/pharmacy-platform/pharmacy-service/pkg/resilience"
)

// toAppError maps domain and infrastructure errors to AppErrors. resource
// and id name the entity the caller asked for.
func toAppError(err error, resource, id string) *apperrors.AppError {
	if appErr, ok := apperrors.AsAppError(err); ok {
		return appErr
	}

	if invalid, ok := domain.IsInvalidOrder(err); ok {
		return apperrors.ErrInvalidOrder(invalid.Field, invalid.Reason)
	}

	var missing *domain.MissingFieldError
	switch {
	case errors.Is(err, domain.ErrMedicineNotFound), errors.Is(err, domain.ErrOrderNotFound):
		return apperrors.ErrNotFoundWithID(resource, id)
	case errors.Is(err, domain.ErrDuplicateKey):
		return apperrors.ErrDuplicateKey(resource, id)
	case errors.Is(err, domain.ErrConcurrentStatusChange):
		return apperrors.ErrConflict("order status was changed by another request, reload and retry").
			WithDetail("id", id).Wrap(err)
	case errors.Is(err, domain.ErrOrderLocked):
		return apperrors.ErrConflict("order is being updated by another request").
			WithDetail("id", id).Wrap(err)
	case errors.As(err, &missing):
		return apperrors.ErrValidationWithFields(missing.Error(), map[string]string{missing.Field: "required"})
	case errors.Is(err, domain.ErrNegativeQuantity),
		errors.Is(err, domain.ErrInvalidDirection),
		errors.Is(err, domain.ErrInvalidStatus):
		return apperrors.ErrValidation(err.Error())
	case errors.Is(err, resilience.ErrCircuitOpen):
		return apperrors.ErrServiceUnavailable("database").Wrap(err)
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.ErrTimeout(resource + " request").Wrap(err)
	default:
		return apperrors.ErrInternal("").Wrap(err)
	}
}
