package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/campustest/testgate/internal/model"
)

// ServiceFactory binds a TestService to one student's upstream credential.
// The gateway talks to the test service with the student's own token, so
// every session gets its own bound client.
type ServiceFactory func(token string) TestService

// Manager is the registry of live sessions, one per student+test attempt.
// Starting an attempt that is already live returns the existing session, so
// a page reload re-attaches instead of double-initializing.
type Manager struct {
	factory ServiceFactory
	store   SnapshotStore
	events  EventSink
	log     zerolog.Logger

	// SyncInterval overrides the per-session remote sync cadence when
	// non-zero. Set once before the first Start.
	SyncInterval time.Duration

	// Detach receives an evicted session's unsaved current answer for
	// best-effort delivery, typically the beacon queue. It must not block.
	// Nil disables the handoff. Set once before the first Start.
	Detach func(studentID, testID, upstreamToken string, up model.AnswerUpsert)

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates an empty session registry.
func NewManager(factory ServiceFactory, store SnapshotStore, events EventSink, log zerolog.Logger) *Manager {
	return &Manager{
		factory:  factory,
		store:    store,
		events:   events,
		log:      log.With().Str("component", "session_manager").Logger(),
		sessions: make(map[string]*Session),
	}
}

func sessionKey(studentID, testID string) string {
	return studentID + "/" + testID
}

// Start returns the live session for this student+test, creating and
// initializing one when none exists. The upstream token is the student's
// test-service credential; duration is captured by the caller before
// entering the session.
func (m *Manager) Start(ctx context.Context, studentID, testID, upstreamToken string, duration time.Duration) (*Session, error) {
	key := sessionKey(studentID, testID)

	m.mu.Lock()
	if existing, ok := m.sessions[key]; ok {
		m.mu.Unlock()
		return existing, nil
	}
	m.mu.Unlock()

	cfg := Config{
		StudentID:     studentID,
		TestID:        testID,
		UpstreamToken: upstreamToken,
		Duration:      duration,
		SyncInterval:  m.SyncInterval,
	}
	sess := New(cfg, m.factory(upstreamToken), m.store, m.events, m.log)

	if err := sess.Start(ctx); err != nil {
		return nil, fmt.Errorf("start session %s: %w", key, err)
	}

	m.mu.Lock()
	if existing, ok := m.sessions[key]; ok {
		// Lost a concurrent start race; keep the first one.
		m.mu.Unlock()
		sess.Close()
		return existing, nil
	}
	m.sessions[key] = sess
	m.mu.Unlock()

	m.log.Info().Str("student_id", studentID).Str("test_id", testID).Msg("Session started")
	return sess, nil
}

// Get returns the live session, or nil when none exists.
func (m *Manager) Get(studentID, testID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[sessionKey(studentID, testID)]
}

// Evict closes and removes a session, typically once it has completed and
// its result was delivered, or when a student abandons the attempt. The
// server-side partial answers persist independently.
func (m *Manager) Evict(studentID, testID string) {
	key := sessionKey(studentID, testID)

	m.mu.Lock()
	sess, ok := m.sessions[key]
	if ok {
		delete(m.sessions, key)
	}
	m.mu.Unlock()

	if ok {
		// Hand the unsaved current answer to the beacon path before the
		// session goroutine stops accepting commands.
		if m.Detach != nil {
			if up, pending := sess.PendingUpsert(); pending {
				m.Detach(studentID, testID, sess.cfg.UpstreamToken, up)
			}
		}
		sess.Close()
		m.log.Info().Str("student_id", studentID).Str("test_id", testID).Msg("Session evicted")
	}
}

// CloseAll tears down every live session. Used on shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, sess := range m.sessions {
		sess.Close()
		delete(m.sessions, key)
	}
}
