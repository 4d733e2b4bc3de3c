package session

import (
	"errors"
	"fmt"

	"github.com/campustest/testgate/internal/model"
)

// ErrUnknownQuestion is returned for mutations targeting a question id that
// was not part of the loaded question set.
var ErrUnknownQuestion = errors.New("question does not belong to this session")

// AnswerSheet holds the per-question answer state for one attempt. Entries
// exist for every loaded question from the moment the sheet is built; the
// key set never changes afterwards, only values mutate. The sheet is not
// safe for concurrent use; it is owned by a single session goroutine.
type AnswerSheet struct {
	entries map[string]model.Answer
}

// NewAnswerSheet pre-populates an entry for every question id, all
// unanswered.
func NewAnswerSheet(questionIDs []string) *AnswerSheet {
	entries := make(map[string]model.Answer, len(questionIDs))
	for _, id := range questionIDs {
		entries[id] = model.Answer{}
	}
	return &AnswerSheet{entries: entries}
}

// Get returns the answer for a question and whether the question exists.
func (s *AnswerSheet) Get(questionID string) (model.Answer, bool) {
	a, ok := s.entries[questionID]
	return a, ok
}

// SetSingle records a single-choice selection, replacing any prior value.
// An empty optionID clears the selection.
func (s *AnswerSheet) SetSingle(questionID, optionID string) error {
	if _, ok := s.entries[questionID]; !ok {
		return fmt.Errorf("set single %q: %w", questionID, ErrUnknownQuestion)
	}
	if optionID == "" {
		s.entries[questionID] = model.Answer{}
		return nil
	}
	s.entries[questionID] = model.Answer{OptionID: optionID}
	return nil
}

// Toggle adds or removes one option id from a multi-choice selection,
// leaving unrelated ids untouched.
func (s *AnswerSheet) Toggle(questionID, optionID string) error {
	cur, ok := s.entries[questionID]
	if !ok {
		return fmt.Errorf("toggle %q: %w", questionID, ErrUnknownQuestion)
	}

	ids := make([]string, 0, len(cur.OptionIDs)+1)
	removed := false
	for _, id := range cur.OptionIDs {
		if id == optionID {
			removed = true
			continue
		}
		ids = append(ids, id)
	}
	if !removed {
		ids = append(ids, optionID)
	}

	if len(ids) == 0 {
		s.entries[questionID] = model.Answer{}
		return nil
	}
	s.entries[questionID] = model.Answer{OptionIDs: ids}
	return nil
}

// SetText records a free-text answer, replacing any prior value.
func (s *AnswerSheet) SetText(questionID, text string) error {
	if _, ok := s.entries[questionID]; !ok {
		return fmt.Errorf("set text %q: %w", questionID, ErrUnknownQuestion)
	}
	if text == "" {
		s.entries[questionID] = model.Answer{}
		return nil
	}
	s.entries[questionID] = model.Answer{Text: text}
	return nil
}

// Restore overwrites a question's answer wholesale. Used when merging a
// snapshot or server restoration record over the defaults.
func (s *AnswerSheet) Restore(questionID string, a model.Answer) error {
	if _, ok := s.entries[questionID]; !ok {
		return fmt.Errorf("restore %q: %w", questionID, ErrUnknownQuestion)
	}
	s.entries[questionID] = a
	return nil
}

// Answered reports whether the question has a non-empty answer.
func (s *AnswerSheet) Answered(questionID string) bool {
	a, ok := s.entries[questionID]
	return ok && !a.IsEmpty()
}

// AttemptedCount returns how many questions currently hold a non-empty
// answer.
func (s *AnswerSheet) AttemptedCount() int {
	n := 0
	for _, a := range s.entries {
		if !a.IsEmpty() {
			n++
		}
	}
	return n
}

// Len returns the number of questions on the sheet.
func (s *AnswerSheet) Len() int {
	return len(s.entries)
}

// Entries returns a copy of the answer map for serialization.
func (s *AnswerSheet) Entries() map[string]model.Answer {
	out := make(map[string]model.Answer, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out
}
