package model

// QuestionType enumerates the supported question kinds. Values mirror what
// the remote test service reports.
type QuestionType string

const (
	QuestionTypeSingleChoice QuestionType = "radio"
	QuestionTypeMultiChoice  QuestionType = "multiple_choice"
	QuestionTypeText         QuestionType = "text"
)

// Option is one selectable choice belonging to a question. The correctness
// flag is never exposed while an attempt is in progress, so it has no field
// here.
type Option struct {
	ID    string `json:"id"`
	Text  string `json:"option_text"`
	Image string `json:"option_image,omitempty"`
}

// Question is one test item, immutable for the duration of a session.
type Question struct {
	ID            string       `json:"id"`
	Prompt        string       `json:"name"`
	Type          QuestionType `json:"type"`
	Image         string       `json:"image,omitempty"`
	TotalMarks    float64      `json:"total_marks"`
	NegativeMarks float64      `json:"negative_marks"`
	Options       []Option     `json:"options"`
}

// QuestionRef is a reference to an assigned question plus its server-side
// submission status, as returned by the test service at session load.
type QuestionRef struct {
	QuestionID string `json:"question_id"`
	Status     string `json:"status"`
}

// QuestionStatus is per-question progress reported to the UI for the
// navigator grid.
type QuestionStatus struct {
	QuestionID string `json:"question_id"`
	Seen       bool   `json:"seen"`
	Answered   bool   `json:"answered"`
}
