package command

import (
	stderrors "errors"

	"github.com/go-playground/validator/v10"

	"marketplace-settlement/internal/domain/aggregate"
	"marketplace-settlement/internal/domain/repository"
	"marketplace-settlement/pkg/errors"
)

var validate = validator.New()

// validateCommand runs struct tag validation and converts failures into a ValidationError
func validateCommand(cmd interface{}) error {
	if err := validate.Struct(cmd); err != nil {
		return errors.NewValidationError(err.Error()).WithCause(err)
	}
	return nil
}

// toApplicationError classifies domain and repository errors for callers
func toApplicationError(err error, resource string) error {
	if err == nil {
		return nil
	}
	if _, ok := errors.AsApplicationError(err); ok {
		return err
	}
	switch {
	case stderrors.Is(err, aggregate.ErrInvalidTransition):
		return errors.NewInvalidStateTransitionError(err.Error()).WithCause(err)
	case stderrors.Is(err, aggregate.ErrInsufficientFunds):
		return errors.NewInsufficientBalanceError(err.Error()).WithCause(err)
	case stderrors.Is(err, aggregate.ErrCurrencyMismatch), stderrors.Is(err, aggregate.ErrInvalidRate):
		return errors.NewValidationError(err.Error()).WithCause(err)
	case stderrors.Is(err, repository.ErrNotFound):
		return errors.NewNotFoundError(resource).WithCause(err)
	case stderrors.Is(err, repository.ErrTransactionConflict), stderrors.Is(err, repository.ErrDuplicate):
		return errors.NewConflictError(err.Error()).WithCause(err)
	}
	return errors.NewInternalError(err.Error()).WithCause(err)
}
