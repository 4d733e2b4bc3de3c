package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/campustest/testgate/internal/config"
	"github.com/campustest/testgate/internal/model"
)

// EventService records advisory session events: lifecycle marks from the
// session engine and anti-cheating observations reported by the UI (tab
// blur, context-menu suppression). These are best-effort signals surfaced
// to reviewers, not enforced proctoring: the UI behaviors they describe
// can be bypassed trivially and must never be treated as a security
// boundary.
//
// Events go onto a Redis list; a worker batches them into Postgres.
type EventService struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewEventService creates a new EventService.
func NewEventService(rdb *redis.Client, log zerolog.Logger) *EventService {
	return &EventService{
		rdb: rdb,
		log: log.With().Str("component", "event_service").Logger(),
	}
}

// Record queues one event for persistence.
func (s *EventService) Record(ctx context.Context, ev model.SessionEvent) error {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now()
	}

	payload, err := json.Marshal(map[string]interface{}{
		"student_id":  ev.StudentID,
		"test_id":     ev.TestID,
		"type":        ev.Type,
		"payload":     ev.Payload,
		"occurred_at": ev.OccurredAt.Unix(),
	})
	if err != nil {
		return fmt.Errorf("encode event payload: %w", err)
	}

	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistEventsQueue, payload).Err(); err != nil {
		return fmt.Errorf("enqueue event: %w", err)
	}
	return nil
}
