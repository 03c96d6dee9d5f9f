package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/authflow/internal/core/domain"
	"github.com/arklim/authflow/internal/core/port"
	"github.com/arklim/authflow/internal/infra/logger"
)

// StubPublisher logs events instead of sending them to Kafka. Used when
// kafka.enabled is false.
type StubPublisher struct {
	logger *zap.Logger
}

func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType string, at time.Time, fields ...zap.Field) {
	if at.IsZero() {
		at = time.Now()
	}
	p.logger.Info("stub event published", append([]zap.Field{
		zap.String("event_type", eventType),
		zap.Time("timestamp", at.UTC()),
	}, fields...)...)
}

func (p *StubPublisher) PublishUserRegistered(_ context.Context, event domain.UserRegisteredEvent) error {
	p.logEvent(EventUserRegistered, event.RegisteredAt,
		zap.String("user_id", event.UserID),
		zap.String("username", event.Username),
		zap.String("role", string(event.Role)),
	)
	return nil
}

func (p *StubPublisher) PublishPasswordReset(_ context.Context, event domain.PasswordResetEvent) error {
	p.logEvent(EventPasswordReset, event.ResetAt, logger.Email(event.Email))
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
