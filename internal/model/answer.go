package model

import "strings"

// Answer is the in-memory answer for one question. Exactly one of the three
// fields is semantically active, chosen by the question's type; the others
// stay zero. An all-zero Answer means "unanswered".
type Answer struct {
	OptionID  string   `json:"option_id,omitempty"`
	OptionIDs []string `json:"option_ids,omitempty"`
	Text      string   `json:"text,omitempty"`
}

// IsEmpty reports whether the answer carries no meaningful value.
// Whitespace-only text counts as empty, matching how attempted counts are
// computed at submission time.
func (a Answer) IsEmpty() bool {
	return a.OptionID == "" && len(a.OptionIDs) == 0 && strings.TrimSpace(a.Text) == ""
}

// AnswerUpsert is the wire payload for a single-question answer upsert.
// Exactly one of OptionID/Text is meaningful per the question's type; the
// other is null. OptionID holds a single id for single-choice questions and
// an array of ids for multi-choice ones.
type AnswerUpsert struct {
	QuestionID string      `json:"question_id"`
	OptionID   interface{} `json:"option_id"`
	Text       *string     `json:"text"`
}

// BuildUpsert converts an in-memory answer into its upsert payload for the
// given question type.
func BuildUpsert(questionID string, qt QuestionType, a Answer) AnswerUpsert {
	up := AnswerUpsert{QuestionID: questionID}

	switch qt {
	case QuestionTypeText:
		text := a.Text
		up.Text = &text
	case QuestionTypeMultiChoice:
		ids := a.OptionIDs
		if ids == nil {
			ids = []string{}
		}
		up.OptionID = ids
	default:
		if a.OptionID != "" {
			up.OptionID = a.OptionID
		}
	}

	return up
}

// RestoredAnswer is one server-side answer record returned by the
// restoration endpoint for a question the service marked "answered".
type RestoredAnswer struct {
	QuestionID       string   `json:"question_id"`
	SubmittedOptions []string `json:"submitted_options"`
	SubmittedText    string   `json:"submitted_text,omitempty"`
	Status           string   `json:"status"`
}

// ToAnswer converts a restoration record into an in-memory answer, applying
// the same variant selection the earlier submission used: text if present,
// otherwise single vs multi selection by option count.
func (r RestoredAnswer) ToAnswer() Answer {
	if r.SubmittedText != "" {
		return Answer{Text: r.SubmittedText}
	}
	if len(r.SubmittedOptions) == 1 {
		return Answer{OptionID: r.SubmittedOptions[0]}
	}
	if len(r.SubmittedOptions) > 1 {
		return Answer{OptionIDs: r.SubmittedOptions}
	}
	return Answer{}
}
