package ports

import (
	"context"

	"github.com/medoxie/wristband/core"
)

// EventPublisher publishes session lifecycle events to notify other
// instances. Publishing is best effort and never fails the operation that
// triggered it.
type EventPublisher interface {
	PublishSessionEvent(ctx context.Context, event core.SessionEvent) error
}
