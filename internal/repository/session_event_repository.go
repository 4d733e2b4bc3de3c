package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campustest/testgate/internal/model"
)

// SessionEventRepository handles the proctoring/lifecycle event log. This
// is the only thing the gateway stores in Postgres: answers and results
// stay with the remote test service.
type SessionEventRepository struct {
	pool *pgxpool.Pool
}

// NewSessionEventRepository creates a new SessionEventRepository.
func NewSessionEventRepository(pool *pgxpool.Pool) *SessionEventRepository {
	return &SessionEventRepository{pool: pool}
}

// Insert writes a single event.
func (r *SessionEventRepository) Insert(ctx context.Context, ev *model.SessionEvent) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO session_events (student_id, test_id, event_type, payload, occurred_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		ev.StudentID, ev.TestID, ev.Type, ev.Payload, ev.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert session event: %w", err)
	}
	return nil
}

// BulkInsert writes a batch of events in one round trip.
func (r *SessionEventRepository) BulkInsert(ctx context.Context, events []*model.SessionEvent) error {
	if len(events) == 0 {
		return nil
	}

	studentIDs := make([]string, len(events))
	testIDs := make([]string, len(events))
	types := make([]string, len(events))
	payloads := make([]string, len(events))
	occurredAts := make([]int64, len(events))

	for i, ev := range events {
		studentIDs[i] = ev.StudentID
		testIDs[i] = ev.TestID
		types[i] = ev.Type
		payloads[i] = ev.Payload
		occurredAts[i] = ev.OccurredAt.Unix()
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO session_events (student_id, test_id, event_type, payload, occurred_at)
		 SELECT u.student_id, u.test_id, u.event_type, u.payload, to_timestamp(u.occurred_at)
		 FROM UNNEST(
			$1::text[],
			$2::text[],
			$3::text[],
			$4::text[],
			$5::bigint[]
		 ) AS u (student_id, test_id, event_type, payload, occurred_at)`,
		studentIDs, testIDs, types, payloads, occurredAts,
	)
	if err != nil {
		return fmt.Errorf("bulk insert session events: %w", err)
	}
	return nil
}

// ListByTest returns a student's events for one test, oldest first.
func (r *SessionEventRepository) ListByTest(ctx context.Context, testID, studentID string) ([]model.SessionEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, student_id, test_id, event_type, payload, occurred_at
		 FROM session_events
		 WHERE test_id = $1 AND student_id = $2
		 ORDER BY occurred_at ASC`, testID, studentID,
	)
	if err != nil {
		return nil, fmt.Errorf("list session events: %w", err)
	}
	defer rows.Close()

	var events []model.SessionEvent
	for rows.Next() {
		var ev model.SessionEvent
		if err := rows.Scan(&ev.ID, &ev.StudentID, &ev.TestID, &ev.Type, &ev.Payload, &ev.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan session event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
