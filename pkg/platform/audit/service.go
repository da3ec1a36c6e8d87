package audit

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
)

// Service stamps and appends audit events.
type Service struct {
	store Store
	log   *log.Logger
}

func NewService(store Store, logger *log.Logger) *Service {
	return &Service{store: store, log: logger}
}

// Record stamps the event and appends it. Callers running inside a database
// transaction should propagate the returned error so the transaction rolls
// back together with the event; callers outside one may log and continue.
func (s *Service) Record(ctx context.Context, event Event) error {
	if s == nil || s.store == nil {
		return nil
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	return s.store.Append(ctx, event)
}

// RecordAsync appends outside any transactional boundary and logs failures
// instead of surfacing them. Used for events that must not fail the
// operation they describe.
func (s *Service) RecordAsync(ctx context.Context, event Event) {
	if err := s.Record(ctx, event); err != nil && s.log != nil {
		s.log.Printf("audit: append %s failed: %v", event.Action, err)
	}
}
