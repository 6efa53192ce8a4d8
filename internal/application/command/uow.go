package command

import (
	"context"
	stderrors "errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"marketplace-settlement/internal/domain/event"
	"marketplace-settlement/internal/domain/repository"
)

// Serialization conflicts are retried with jittered exponential backoff
const (
	maxTransactionAttempts = 10
	conflictBackoffBase    = 5 * time.Millisecond
	conflictBackoffMax     = 250 * time.Millisecond
)

// EventPublisher is where committed domain events go
type EventPublisher interface {
	Publish(ctx context.Context, event event.DomainEvent) error
}

// eventSource is implemented by every aggregate that raises events
type eventSource interface {
	GetUncommittedEvents() []event.DomainEvent
	MarkEventsAsCommitted()
}

// txScope is a unit of work plus the events captured while it is open
type txScope struct {
	repository.UnitOfWork
	events []event.DomainEvent
}

func (s *txScope) collect(sources ...eventSource) {
	for _, src := range sources {
		s.events = append(s.events, src.GetUncommittedEvents()...)
		src.MarkEventsAsCommitted()
	}
}

// runInUnitOfWork runs fn inside a fresh transaction and returns the captured events once the
// commit succeeded. Serialization conflicts restart fn from Begin.
func runInUnitOfWork(ctx context.Context, factory repository.UnitOfWorkFactory, fn func(scope *txScope) error) ([]event.DomainEvent, error) {
	var err error
	for attempt := 1; attempt <= maxTransactionAttempts; attempt++ {
		var events []event.DomainEvent
		events, err = runOnce(ctx, factory, fn)
		if err == nil {
			return events, nil
		}
		if !stderrors.Is(err, repository.ErrTransactionConflict) || ctx.Err() != nil {
			return nil, err
		}
		if attempt == maxTransactionAttempts {
			break
		}
		timer := time.NewTimer(conflictBackoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, err
		case <-timer.C:
		}
	}
	return nil, err
}

// conflictBackoff picks a wait in [d/2, d) where d doubles per attempt up to conflictBackoffMax
func conflictBackoff(attempt int) time.Duration {
	d := conflictBackoffBase << (attempt - 1)
	if d > conflictBackoffMax || d <= 0 {
		d = conflictBackoffMax
	}
	return d/2 + rand.N(d/2)
}

func runOnce(ctx context.Context, factory repository.UnitOfWorkFactory, fn func(scope *txScope) error) ([]event.DomainEvent, error) {
	uow := factory.CreateUnitOfWork()
	defer uow.Close()

	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	scope := &txScope{UnitOfWork: uow}
	if err := fn(scope); err != nil {
		uow.Rollback(ctx)
		return nil, err
	}

	if err := uow.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return scope.events, nil
}

// publishEvents hands committed events to the publisher. Failures are logged, the state change
// already happened.
func publishEvents(ctx context.Context, publisher EventPublisher, logger *zap.Logger, events []event.DomainEvent) {
	if publisher == nil {
		return
	}
	for _, evt := range events {
		if err := publisher.Publish(ctx, evt); err != nil {
			logger.Warn("failed to publish event",
				zap.String("event_type", evt.EventType()),
				zap.String("aggregate_id", evt.AggregateID()),
				zap.Error(err),
			)
		}
	}
}
