package kafka

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"marketplace-settlement/internal/application/command"
	"marketplace-settlement/internal/application/query"
	"marketplace-settlement/internal/application/services"
	"marketplace-settlement/pkg/errors"
)

// Order event types carried on the order topic
const (
	EventOrderCaptured = "order.captured"
	EventOrderCanceled = "order.canceled"
)

// OrderEnvelope wraps every order event on the wire
type OrderEnvelope struct {
	EventType  string          `json:"event_type" validate:"required"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload" validate:"required"`
}

// OrderHandler applies order lifecycle events
type OrderHandler interface {
	Captured(ctx context.Context, cmd *command.ComputeAndRecordCommission) ([]*query.CommissionLineReadModel, error)
	Canceled(ctx context.Context, evt *services.OrderCanceled) ([]*query.PayoutReadModel, error)
}

// messageReader is the subset of *kafka.Reader the listener needs
type messageReader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// errPoison marks a message that can never be processed
var errPoison = stderrors.New("poison message")

// OrderListener consumes order events and drives commission accrual and reversal
type OrderListener struct {
	reader       messageReader
	handler      OrderHandler
	validate     *validator.Validate
	logger       *zap.Logger
	retryBackoff time.Duration
}

// NewOrderListener creates a consumer group reader on the order topic
func NewOrderListener(brokers []string, groupID, topic string, handler OrderHandler, logger *zap.Logger) (*OrderListener, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("order listener requires at least one broker")
	}
	if groupID == "" || topic == "" {
		return nil, fmt.Errorf("order listener requires group id and topic")
	}
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  brokers,
		GroupID:  groupID,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  500 * time.Millisecond,
	})
	return newOrderListener(reader, handler, logger), nil
}

func newOrderListener(reader messageReader, handler OrderHandler, logger *zap.Logger) *OrderListener {
	return &OrderListener{
		reader:       reader,
		handler:      handler,
		validate:     validator.New(),
		logger:       logger.Named("order-listener"),
		retryBackoff: time.Second,
	}
}

// Run consumes until ctx is canceled. The offset of a message is committed only after it was
// applied or found to be unprocessable; a failing message is retried in place.
func (l *OrderListener) Run(ctx context.Context) error {
	l.logger.Info("order listener started")
	for {
		msg, err := l.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch order event: %w", err)
		}

		if err := l.processWithRetry(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if err := l.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("commit order event offset %d: %w", msg.Offset, err)
		}
	}
}

// Close releases the underlying reader
func (l *OrderListener) Close() error {
	return l.reader.Close()
}

func (l *OrderListener) processWithRetry(ctx context.Context, msg kafkago.Message) error {
	backoff := l.retryBackoff
	for attempt := 1; ; attempt++ {
		err := l.handle(ctx, msg.Value)
		if err == nil {
			return nil
		}
		if stderrors.Is(err, errPoison) {
			l.logger.Error("skipping unprocessable order event",
				zap.Int64("offset", msg.Offset),
				zap.Int("partition", msg.Partition),
				zap.Error(err))
			return nil
		}

		l.logger.Warn("order event processing failed, retrying",
			zap.Int64("offset", msg.Offset),
			zap.Int("attempt", attempt),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (l *OrderListener) handle(ctx context.Context, value []byte) error {
	var envelope OrderEnvelope
	if err := json.Unmarshal(value, &envelope); err != nil {
		return fmt.Errorf("%w: decode envelope: %v", errPoison, err)
	}
	if err := l.validate.Struct(&envelope); err != nil {
		return fmt.Errorf("%w: %v", errPoison, err)
	}

	switch envelope.EventType {
	case EventOrderCaptured:
		var cmd command.ComputeAndRecordCommission
		if err := json.Unmarshal(envelope.Payload, &cmd); err != nil {
			return fmt.Errorf("%w: decode %s: %v", errPoison, envelope.EventType, err)
		}
		lines, err := l.handler.Captured(ctx, &cmd)
		if err != nil {
			return classify(err)
		}
		l.logger.Info("order captured",
			zap.String("order_id", cmd.OrderID),
			zap.Int("commission_lines", len(lines)))
	case EventOrderCanceled:
		var evt services.OrderCanceled
		if err := json.Unmarshal(envelope.Payload, &evt); err != nil {
			return fmt.Errorf("%w: decode %s: %v", errPoison, envelope.EventType, err)
		}
		if err := l.validate.Struct(&evt); err != nil {
			return fmt.Errorf("%w: %v", errPoison, err)
		}
		payouts, err := l.handler.Canceled(ctx, &evt)
		if err != nil {
			return classify(err)
		}
		l.logger.Info("order canceled",
			zap.String("order_id", evt.OrderID),
			zap.Int("payouts_reversed", len(payouts)))
	default:
		l.logger.Debug("ignoring order event", zap.String("event_type", envelope.EventType))
	}
	return nil
}

// classify separates errors a redelivery cannot fix from transient ones
func classify(err error) error {
	for _, code := range []string{
		errors.CodeValidation,
		errors.CodeDuplicateCommission,
		errors.CodeInvalidStateTransition,
	} {
		if errors.IsCode(err, code) {
			return fmt.Errorf("%w: %v", errPoison, err)
		}
	}
	return err
}
