package model

// FinalResult is the authoritative scored result computed by the test
// service for a completed attempt. Attempted/Unattempted are overlaid by the
// session from its own answer state before the result is shown.
type FinalResult struct {
	TotalQuestions    int     `json:"total_questions"`
	Attempted         int     `json:"attempted"`
	Unattempted       int     `json:"unattempted"`
	Correct           int     `json:"correct"`
	Wrong             int     `json:"wrong"`
	FinalScore        float64 `json:"final_score"`
	FinalResult       string  `json:"final_result"`
	MarksAwarded      float64 `json:"marks_awarded"`
	MarksDeducted     float64 `json:"marks_deducted"`
	TotalMarksAwarded float64 `json:"total_marks_awarded"`
}
