package notify

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
)

// Service fans a notification out to every registered channel
type Service struct {
	registry *Registry
	now      func() time.Time
}

// NewService creates a notification service over the registry
func NewService(registry *Registry) *Service {
	return &Service{
		registry: registry,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Notify is fire-and-forget: channel failures are logged and the remaining
// channels still get the message
func (s *Service) Notify(ctx context.Context, kind, target, message string, data map[string]interface{}) {
	msg := Message{
		ID:        uuid.New().String(),
		Kind:      kind,
		Target:    target,
		Message:   message,
		Data:      data,
		CreatedAt: s.now(),
	}
	for _, ch := range s.registry.List() {
		if err := ch.Deliver(ctx, msg); err != nil {
			log.Printf("⚠️ Notification %s via %s to %s failed: %v", kind, ch.Code(), target, err)
		}
	}
}
