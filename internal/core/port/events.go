package port

import (
	"context"

	"github.com/arklim/authflow/internal/core/domain"
)

// EventPublisher publishes domain events to the message bus.
type EventPublisher interface {
	PublishUserRegistered(ctx context.Context, event domain.UserRegisteredEvent) error
	PublishPasswordReset(ctx context.Context, event domain.PasswordResetEvent) error
}

// MailDispatcher delivers a templated email.
type MailDispatcher interface {
	Send(ctx context.Context, to string, template string, data map[string]any) error
}
