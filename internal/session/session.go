package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/campustest/testgate/internal/model"
)

// Lifecycle and command errors.
var (
	ErrNoQuestions        = errors.New("no questions could be loaded")
	ErrNotRunning         = errors.New("session is not running")
	ErrAlreadyCompleted   = errors.New("session is already completed")
	ErrNotConfirming      = errors.New("session is not awaiting confirmation")
	ErrSubmissionInFlight = errors.New("a submission is already in flight")
	ErrIndexOutOfRange    = errors.New("question index out of range")
	ErrSessionClosed      = errors.New("session closed")
)

// Config carries everything a session needs up front, so nothing is read
// from ambient state mid-attempt.
type Config struct {
	StudentID string
	TestID    string
	// UpstreamToken is the student's test-service credential. The session
	// itself never reads it; it rides along so a detach can hand the
	// pending answer to the beacon queue under the right identity.
	UpstreamToken string
	// Duration is the declared test duration, captured before entering the
	// session. The countdown starts at its whole-second value.
	Duration time.Duration
	// SyncInterval is the periodic remote sync cadence. Zero means the
	// 30-second default.
	SyncInterval time.Duration
	// CallTimeout bounds each awaited test-service call. Zero means 10s.
	CallTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.SyncInterval <= 0 {
		c.SyncInterval = 30 * time.Second
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 10 * time.Second
	}
	return c
}

// Session owns the lifecycle of one timed test attempt for one student:
// question acquisition, answer capture, persistence, countdown and final
// submission. All state is owned by a single goroutine; external calls are
// funneled through a command channel, so mutations never race.
type Session struct {
	cfg    Config
	svc    TestService
	store  SnapshotStore
	events EventSink
	log    zerolog.Logger

	cmds chan func()
	done chan struct{}
	once sync.Once

	subMu sync.Mutex
	subs  map[chan Event]struct{}

	// Everything below is owned by the run loop (and by Start before the
	// loop exists).
	questions      []model.Question
	sheet          *AnswerSheet
	seen           map[string]bool
	index          int
	remaining      int
	state          model.SessionState
	timedOut       bool
	submitInFlight bool
	result         *model.FinalResult
}

// New constructs an unstarted session. Call Start to run the
// initialization protocol and begin the countdown.
func New(cfg Config, svc TestService, store SnapshotStore, events EventSink, log zerolog.Logger) *Session {
	cfg = cfg.withDefaults()
	return &Session{
		cfg:    cfg,
		svc:    svc,
		store:  store,
		events: events,
		log: log.With().
			Str("component", "session").
			Str("student_id", cfg.StudentID).
			Str("test_id", cfg.TestID).
			Logger(),
		cmds: make(chan func()),
		done: make(chan struct{}),
		subs: make(map[chan Event]struct{}),
		seen: make(map[string]bool),
	}
}

// Start runs the initialization protocol: attempt registration, sequential
// question loading (failures skip the question), countdown setup, answer
// pre-population, snapshot restoration, then server restoration filling only
// the gaps the snapshot left. Restoration failures never block the load.
// Returns ErrNoQuestions when not a single question could be loaded; the
// session must not be used afterwards.
func (s *Session) Start(ctx context.Context) error {
	if err := s.svc.StartAttempt(ctx, s.cfg.TestID); err != nil {
		return fmt.Errorf("start attempt: %w", err)
	}

	refs, err := s.svc.ListAssignedQuestions(ctx, s.cfg.TestID)
	if err != nil {
		return fmt.Errorf("list assigned questions: %w", err)
	}

	for _, ref := range refs {
		q, err := s.svc.FetchQuestion(ctx, s.cfg.TestID, ref.QuestionID)
		if err != nil {
			// Degraded load: continue with fewer questions.
			s.log.Warn().Err(err).Str("question_id", ref.QuestionID).Msg("Question fetch failed, skipping")
			continue
		}
		s.questions = append(s.questions, *q)
	}

	if len(s.questions) == 0 {
		return ErrNoQuestions
	}

	s.remaining = int(s.cfg.Duration.Seconds())

	ids := make([]string, len(s.questions))
	for i, q := range s.questions {
		ids[i] = q.ID
	}
	s.sheet = NewAnswerSheet(ids)

	s.restoreLocal(ctx)
	s.restoreServer(ctx)

	s.seen[s.questions[s.index].ID] = true
	s.state = model.SessionStateRunning
	s.persistSnapshot()
	s.recordEvent("session_started", "")

	go s.run()
	return nil
}

// restoreLocal merges the durable local snapshot over the empty defaults.
// The snapshot wins over later server restoration so a reload never loses
// keystrokes.
func (s *Session) restoreLocal(ctx context.Context) {
	snap, err := s.store.Load(ctx, s.cfg.StudentID, s.cfg.TestID)
	if err != nil {
		s.log.Warn().Err(err).Msg("Snapshot load failed, starting from defaults")
		return
	}
	if snap == nil {
		return
	}

	for qid, a := range snap.Answers {
		// Unknown ids can appear when the assigned set changed; drop them.
		if err := s.sheet.Restore(qid, a); err != nil {
			s.log.Debug().Str("question_id", qid).Msg("Dropping stale snapshot entry")
		}
	}
	for _, qid := range snap.Seen {
		s.seen[qid] = true
	}
	if snap.Index >= 0 && snap.Index < len(s.questions) {
		s.index = snap.Index
	}
}

// restoreServer overlays server-recorded partial submissions, filling only
// questions the local snapshot left unanswered. A failing restoration
// endpoint is tolerated; the session continues with local/default state.
func (s *Session) restoreServer(ctx context.Context) {
	records, err := s.svc.FetchRestorationState(ctx, s.cfg.TestID)
	if err != nil {
		s.log.Warn().Err(err).Msg("Server restoration unavailable, continuing with local state")
		return
	}

	for _, rec := range records {
		if rec.Status != "answered" {
			continue
		}
		if s.sheet.Answered(rec.QuestionID) {
			continue // local snapshot wins
		}
		if err := s.sheet.Restore(rec.QuestionID, rec.ToAnswer()); err != nil {
			s.log.Debug().Str("question_id", rec.QuestionID).Msg("Dropping restoration for unknown question")
		}
	}
}

// run is the session's event loop: commands, the 1 Hz countdown and the
// periodic remote sync all interleave here, never in parallel.
func (s *Session) run() {
	clock := time.NewTicker(time.Second)
	defer clock.Stop()
	syncTicker := time.NewTicker(s.cfg.SyncInterval)
	defer syncTicker.Stop()

	for {
		select {
		case <-s.done:
			return
		case fn := <-s.cmds:
			fn()
		case <-clock.C:
			s.tick()
		case <-syncTicker.C:
			s.periodicSync()
		}
	}
}

// Close tears the session down. Queued commands may be dropped, and every
// subscriber channel is closed so stream consumers unblock. Idempotent.
func (s *Session) Close() {
	s.once.Do(func() {
		close(s.done)
		s.subMu.Lock()
		for ch := range s.subs {
			delete(s.subs, ch)
			close(ch)
		}
		s.subMu.Unlock()
	})
}

// do executes fn on the session goroutine and waits for it.
func (s *Session) do(fn func()) error {
	ran := make(chan struct{})
	select {
	case s.cmds <- func() { fn(); close(ran) }:
	case <-s.done:
		return ErrSessionClosed
	}
	select {
	case <-ran:
		return nil
	case <-s.done:
		return ErrSessionClosed
	}
}

// ─── Clock ──────────────────────────────────────────────────────────

func (s *Session) tick() {
	// The clock only runs while the student can still act. Once a
	// submission is in progress (or done) the countdown freezes, which also
	// makes the zero-trigger fire exactly once.
	if s.state != model.SessionStateRunning && s.state != model.SessionStateConfirming {
		return
	}

	if s.remaining > 0 {
		s.remaining--
		s.broadcast(Event{Type: EventTick, RemainingSeconds: s.remaining})
	}

	if s.remaining <= 0 {
		s.timedOut = true
		s.log.Info().Msg("Time is up, forcing submission")
		s.broadcast(Event{Type: EventWarning, Message: "Time's up! Submitting your test..."})
		s.recordEvent("timed_out", "")
		s.beginSubmission()
	}
}

// ─── Persistence ────────────────────────────────────────────────────

// persistSnapshot writes the full answer map (plus position and seen set)
// to the durable store. Called after every mutation.
func (s *Session) persistSnapshot() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CallTimeout)
	defer cancel()

	seen := make([]string, 0, len(s.seen))
	for qid := range s.seen {
		seen = append(seen, qid)
	}
	snap := Snapshot{Answers: s.sheet.Entries(), Index: s.index, Seen: seen}
	if err := s.store.Save(ctx, s.cfg.StudentID, s.cfg.TestID, snap); err != nil {
		s.log.Warn().Err(err).Msg("Snapshot save failed")
	}
}

// periodicSync pushes the current question's answer to the test service if
// it is non-empty. It reads whatever the sheet holds at fire time; there is
// no coordination with in-progress edits.
func (s *Session) periodicSync() {
	if s.state != model.SessionStateRunning && s.state != model.SessionStateConfirming {
		return
	}

	q := s.questions[s.index]
	a, _ := s.sheet.Get(q.ID)
	if a.IsEmpty() {
		return
	}

	up := model.BuildUpsert(q.ID, q.Type, a)
	go s.saveRemote(q.ID, up)
}

// saveRemote performs one answer upsert off the session goroutine. Failures
// surface as a transient warning and are not retried.
func (s *Session) saveRemote(questionID string, up model.AnswerUpsert) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CallTimeout)
	defer cancel()

	if err := s.svc.UpsertAnswer(ctx, s.cfg.TestID, up); err != nil {
		s.log.Warn().Err(err).Str("question_id", questionID).Msg("Answer sync failed")
		s.broadcast(Event{Type: EventWarning, QuestionID: questionID, Message: "Failed to save answer"})
		return
	}
	s.broadcast(Event{Type: EventSaved, QuestionID: questionID})
}

// ─── Mutations ──────────────────────────────────────────────────────

// Answer applies one answer mutation to the current attempt.
func (s *Session) Answer(req model.AnswerRequest) error {
	var err error
	if derr := s.do(func() { err = s.applyAnswer(req) }); derr != nil {
		return derr
	}
	return err
}

func (s *Session) applyAnswer(req model.AnswerRequest) error {
	if err := s.requireRunning(); err != nil {
		return err
	}

	var err error
	switch req.Op {
	case "select":
		err = s.sheet.SetSingle(req.QuestionID, req.OptionID)
	case "toggle":
		err = s.sheet.Toggle(req.QuestionID, req.OptionID)
	case "text":
		err = s.sheet.SetText(req.QuestionID, req.Text)
	default:
		err = fmt.Errorf("unknown answer op %q", req.Op)
	}
	if err != nil {
		return err
	}

	s.persistSnapshot()
	return nil
}

func (s *Session) requireRunning() error {
	switch s.state {
	case model.SessionStateRunning:
		return nil
	case model.SessionStateCompleted:
		return ErrAlreadyCompleted
	case model.SessionStateSubmitting:
		return ErrSubmissionInFlight
	default:
		return ErrNotRunning
	}
}

// ─── Navigation ─────────────────────────────────────────────────────

// Next saves the current question's answer (awaited; a failure is returned
// as a warning but does not block the move), marks it seen and advances. On
// the last question it instead begins the submission protocol directly;
// natural completion needs no confirmation step.
func (s *Session) Next() error {
	var err error
	if derr := s.do(func() { err = s.goNext() }); derr != nil {
		return derr
	}
	return err
}

func (s *Session) goNext() error {
	if err := s.requireRunning(); err != nil {
		return err
	}

	q := s.questions[s.index]
	saveErr := s.saveCurrentSync()
	s.seen[q.ID] = true

	if s.index >= len(s.questions)-1 {
		s.beginSubmission()
		return saveErr
	}

	s.index++
	s.persistSnapshot()
	return saveErr
}

// saveCurrentSync upserts the current question's answer and waits for the
// result. Empty answers are not sent.
func (s *Session) saveCurrentSync() error {
	q := s.questions[s.index]
	a, _ := s.sheet.Get(q.ID)
	if a.IsEmpty() {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CallTimeout)
	defer cancel()

	up := model.BuildUpsert(q.ID, q.Type, a)
	if err := s.svc.UpsertAnswer(ctx, s.cfg.TestID, up); err != nil {
		s.log.Warn().Err(err).Str("question_id", q.ID).Msg("Answer save failed")
		s.broadcast(Event{Type: EventWarning, QuestionID: q.ID, Message: "Failed to save answer"})
		return fmt.Errorf("save answer %s: %w", q.ID, err)
	}
	return nil
}

// Previous marks the current question seen and moves back one. No save is
// forced.
func (s *Session) Previous() error {
	var err error
	if derr := s.do(func() { err = s.goPrevious() }); derr != nil {
		return derr
	}
	return err
}

func (s *Session) goPrevious() error {
	if err := s.requireRunning(); err != nil {
		return err
	}
	s.seen[s.questions[s.index].ID] = true
	if s.index > 0 {
		s.index--
	}
	s.persistSnapshot()
	return nil
}

// JumpTo sets the current question directly (navigator grid).
func (s *Session) JumpTo(index int) error {
	var err error
	if derr := s.do(func() { err = s.goJump(index) }); derr != nil {
		return derr
	}
	return err
}

func (s *Session) goJump(index int) error {
	if err := s.requireRunning(); err != nil {
		return err
	}
	if index < 0 || index >= len(s.questions) {
		return ErrIndexOutOfRange
	}
	s.seen[s.questions[index].ID] = true
	s.index = index
	s.persistSnapshot()
	return nil
}

// ─── Submission ─────────────────────────────────────────────────────

// RequestSubmit moves running → confirming. No answer state is sent yet.
func (s *Session) RequestSubmit() error {
	var err error
	if derr := s.do(func() { err = s.requestSubmit() }); derr != nil {
		return derr
	}
	return err
}

func (s *Session) requestSubmit() error {
	switch s.state {
	case model.SessionStateRunning:
		s.state = model.SessionStateConfirming
		s.broadcast(Event{Type: EventState, State: s.state})
		return nil
	case model.SessionStateConfirming:
		return nil
	case model.SessionStateSubmitting:
		return ErrSubmissionInFlight
	default:
		return ErrAlreadyCompleted
	}
}

// CancelSubmit moves confirming → running (the student dismissed the
// confirmation).
func (s *Session) CancelSubmit() error {
	var err error
	if derr := s.do(func() { err = s.cancelSubmit() }); derr != nil {
		return derr
	}
	return err
}

func (s *Session) cancelSubmit() error {
	if s.state != model.SessionStateConfirming {
		return ErrNotConfirming
	}
	s.state = model.SessionStateRunning
	s.broadcast(Event{Type: EventState, State: s.state})
	return nil
}

// ConfirmSubmit moves confirming → submitting and fires the scoring
// request. After a failed submission the session stays in submitting and
// ConfirmSubmit re-attempts it; while a request is in flight further calls
// return ErrSubmissionInFlight.
func (s *Session) ConfirmSubmit() error {
	var err error
	if derr := s.do(func() { err = s.confirmSubmit() }); derr != nil {
		return derr
	}
	return err
}

func (s *Session) confirmSubmit() error {
	switch s.state {
	case model.SessionStateConfirming:
		s.beginSubmission()
		return nil
	case model.SessionStateSubmitting:
		if s.submitInFlight {
			return ErrSubmissionInFlight
		}
		// Re-entry after a failed scoring request.
		s.beginSubmission()
		return nil
	case model.SessionStateCompleted:
		return ErrAlreadyCompleted
	default:
		return ErrNotConfirming
	}
}

// beginSubmission persists the current question's pending answer, computes
// attempted/unattempted from the sheet, then requests final scoring off the
// loop. Exactly one request is in flight at a time.
func (s *Session) beginSubmission() {
	if s.submitInFlight {
		return
	}
	s.state = model.SessionStateSubmitting
	s.submitInFlight = true
	s.broadcast(Event{Type: EventState, State: s.state})

	attempted := s.sheet.AttemptedCount()
	total := s.sheet.Len()

	var pending *model.AnswerUpsert
	q := s.questions[s.index]
	if a, _ := s.sheet.Get(q.ID); !a.IsEmpty() {
		up := model.BuildUpsert(q.ID, q.Type, a)
		pending = &up
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CallTimeout)
		defer cancel()

		if pending != nil {
			if err := s.svc.UpsertAnswer(ctx, s.cfg.TestID, *pending); err != nil {
				// The scoring request reads server-side records, so a failed
				// last save costs at most this one answer. Warn and proceed.
				s.log.Warn().Err(err).Str("question_id", pending.QuestionID).Msg("Final answer save failed")
				s.broadcast(Event{Type: EventWarning, QuestionID: pending.QuestionID, Message: "Failed to save answer"})
			}
		}

		result, err := s.svc.SubmitFinal(ctx, s.cfg.TestID)

		_ = s.do(func() { s.finishSubmission(result, err, attempted, total) })
	}()
}

func (s *Session) finishSubmission(result *model.FinalResult, err error, attempted, total int) {
	s.submitInFlight = false

	if err != nil {
		// Blocking error: remain in submitting, re-enterable by the student.
		s.log.Error().Err(err).Msg("Final submission failed")
		s.broadcast(Event{Type: EventWarning, Message: "Failed to submit final result"})
		s.recordEvent("submission_failed", err.Error())
		return
	}

	result.Attempted = attempted
	result.Unattempted = total - attempted
	s.result = result
	s.state = model.SessionStateCompleted

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CallTimeout)
	defer cancel()
	if derr := s.store.Delete(ctx, s.cfg.StudentID, s.cfg.TestID); derr != nil {
		s.log.Warn().Err(derr).Msg("Snapshot cleanup failed")
	}

	s.recordEvent("session_completed", "")
	s.log.Info().
		Float64("final_score", result.FinalScore).
		Int("attempted", result.Attempted).
		Int("unattempted", result.Unattempted).
		Msg("Session completed")
	s.broadcast(Event{Type: EventCompleted, State: s.state, Result: result})
}

// ─── Views ──────────────────────────────────────────────────────────

// View is a consistent read of the session for the UI.
type View struct {
	State            model.SessionState     `json:"state"`
	TimedOut         bool                   `json:"timed_out"`
	RemainingSeconds int                    `json:"remaining_seconds"`
	CurrentIndex     int                    `json:"current_index"`
	TotalQuestions   int                    `json:"total_questions"`
	Attempted        int                    `json:"attempted"`
	Questions        []model.QuestionStatus `json:"questions"`
	Current          *model.Question        `json:"current_question,omitempty"`
	CurrentAnswer    model.Answer           `json:"current_answer"`
	Result           *model.FinalResult     `json:"result,omitempty"`
}

// State returns a snapshot view of the session.
func (s *Session) State() (View, error) {
	var v View
	if derr := s.do(func() { v = s.view() }); derr != nil {
		return View{}, derr
	}
	return v, nil
}

func (s *Session) view() View {
	statuses := make([]model.QuestionStatus, len(s.questions))
	for i, q := range s.questions {
		statuses[i] = model.QuestionStatus{
			QuestionID: q.ID,
			Seen:       s.seen[q.ID],
			Answered:   s.sheet.Answered(q.ID),
		}
	}

	current := s.questions[s.index]
	answer, _ := s.sheet.Get(current.ID)

	return View{
		State:            s.state,
		TimedOut:         s.timedOut,
		RemainingSeconds: s.remaining,
		CurrentIndex:     s.index,
		TotalQuestions:   len(s.questions),
		Attempted:        s.sheet.AttemptedCount(),
		Questions:        statuses,
		Current:          &current,
		CurrentAnswer:    answer,
		Result:           s.result,
	}
}

// Paper returns the loaded question set (no correctness data is ever
// present; the service strips it for in-progress attempts).
func (s *Session) Paper() ([]model.Question, error) {
	var qs []model.Question
	if derr := s.do(func() {
		qs = make([]model.Question, len(s.questions))
		copy(qs, s.questions)
	}); derr != nil {
		return nil, derr
	}
	return qs, nil
}

// PendingUpsert returns the current question's answer as an upsert payload,
// for the unload-time beacon path. ok is false when the answer is empty or
// the session is no longer running.
func (s *Session) PendingUpsert() (up model.AnswerUpsert, ok bool) {
	_ = s.do(func() {
		if s.state != model.SessionStateRunning && s.state != model.SessionStateConfirming {
			return
		}
		q := s.questions[s.index]
		a, _ := s.sheet.Get(q.ID)
		if a.IsEmpty() {
			return
		}
		up = model.BuildUpsert(q.ID, q.Type, a)
		ok = true
	})
	return up, ok
}

// ─── Subscriptions ──────────────────────────────────────────────────

// Subscribe registers a live event channel. Slow subscribers drop events
// rather than stalling the session. Subscribing to a closed session returns
// an already-closed channel.
func (s *Session) Subscribe() chan Event {
	ch := make(chan Event, 32)
	s.subMu.Lock()
	select {
	case <-s.done:
		close(ch)
	default:
		s.subs[ch] = struct{}{}
	}
	s.subMu.Unlock()
	return ch
}

// Unsubscribe removes and closes a channel returned by Subscribe.
func (s *Session) Unsubscribe(ch chan Event) {
	s.subMu.Lock()
	if _, ok := s.subs[ch]; ok {
		delete(s.subs, ch)
		close(ch)
	}
	s.subMu.Unlock()
}

func (s *Session) broadcast(ev Event) {
	s.subMu.Lock()
	for ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	s.subMu.Unlock()
}

// ─── Event log ──────────────────────────────────────────────────────

func (s *Session) recordEvent(eventType, payload string) {
	if s.events == nil {
		return
	}
	ev := model.SessionEvent{
		StudentID:  s.cfg.StudentID,
		TestID:     s.cfg.TestID,
		Type:       eventType,
		Payload:    payload,
		OccurredAt: time.Now(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CallTimeout)
		defer cancel()
		if err := s.events.Record(ctx, ev); err != nil {
			s.log.Debug().Err(err).Str("event_type", eventType).Msg("Event record failed")
		}
	}()
}
