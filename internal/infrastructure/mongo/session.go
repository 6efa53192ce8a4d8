package mongo

import (
	"context"
	stderrors "errors"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"

	"marketplace-settlement/internal/domain/repository"
)

const transientTransactionLabel = "TransientTransactionError"

// sessionRepository carries the session shared by every repository of one unit of work
type sessionRepository struct {
	session mongo.Session
}

// SetTransaction implements TransactionalRepository
func (r *sessionRepository) SetTransaction(tx interface{}) {
	session, _ := tx.(mongo.Session)
	r.session = session
}

// GetTransaction implements TransactionalRepository
func (r *sessionRepository) GetTransaction() interface{} {
	return r.session
}

// IsTransactional implements TransactionalRepository
func (r *sessionRepository) IsTransactional() bool {
	return r.session != nil
}

// getContext binds operations to the active session
func (r *sessionRepository) getContext(ctx context.Context) context.Context {
	if r.session != nil {
		return mongo.NewSessionContext(ctx, r.session)
	}
	return ctx
}

// mapError translates driver errors into repository sentinels
func mapError(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	msg := fmt.Sprintf(format, args...)
	switch {
	case stderrors.Is(err, mongo.ErrNoDocuments):
		return fmt.Errorf("%s: %w", msg, repository.ErrNotFound)
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%s: %w", msg, repository.ErrDuplicate)
	case isTransient(err):
		return fmt.Errorf("%s: %w: %v", msg, repository.ErrTransactionConflict, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func isTransient(err error) bool {
	var se mongo.ServerError
	return stderrors.As(err, &se) && se.HasErrorLabel(transientTransactionLabel)
}
