package session

import (
	"context"

	"github.com/campustest/testgate/internal/model"
)

// TestService is the remote collaborator that owns question content, answer
// records and scoring. Implementations live outside this package; the
// session only depends on the operation contracts.
type TestService interface {
	// StartAttempt establishes the server-side attempt record. Idempotent.
	StartAttempt(ctx context.Context, testID string) error
	// ListAssignedQuestions returns the ordered question references the
	// student must answer, with their prior-submission status.
	ListAssignedQuestions(ctx context.Context, testID string) ([]model.QuestionRef, error)
	// FetchQuestion returns full question content for one reference.
	FetchQuestion(ctx context.Context, testID, questionID string) (*model.Question, error)
	// FetchRestorationState returns server-recorded partial submissions.
	FetchRestorationState(ctx context.Context, testID string) ([]model.RestoredAnswer, error)
	// UpsertAnswer creates or replaces one question's answer. Idempotent,
	// last write wins.
	UpsertAnswer(ctx context.Context, testID string, up model.AnswerUpsert) error
	// SubmitFinal requests authoritative scoring of the whole attempt. Safe
	// to call again after a failure; it reads current server-side answer
	// records rather than consuming a payload.
	SubmitFinal(ctx context.Context, testID string) (*model.FinalResult, error)
}

// Snapshot is the durable local copy of an attempt's in-progress work,
// written on every mutation and read once at load.
type Snapshot struct {
	Answers map[string]model.Answer `json:"answers"`
	Index   int                     `json:"index"`
	Seen    []string                `json:"seen"`
}

// SnapshotStore persists one Snapshot per student+test attempt.
type SnapshotStore interface {
	Save(ctx context.Context, studentID, testID string, snap Snapshot) error
	// Load returns (nil, nil) when no snapshot exists.
	Load(ctx context.Context, studentID, testID string) (*Snapshot, error)
	Delete(ctx context.Context, studentID, testID string) error
}

// EventSink records advisory session events (lifecycle marks, proctoring
// observations). Failures are the sink's problem; the session never blocks
// on it.
type EventSink interface {
	Record(ctx context.Context, ev model.SessionEvent) error
}
