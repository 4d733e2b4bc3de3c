package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"
	ErrTokenExpired  ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden ErrCode = "FORBIDDEN"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Session lifecycle ─────────────────────────────────────────────
	ErrNoSession        ErrCode = "NO_ACTIVE_SESSION"
	ErrSessionCompleted ErrCode = "SESSION_COMPLETED"
	ErrNoQuestions      ErrCode = "NO_QUESTIONS_LOADED"
	ErrNotRunning       ErrCode = "SESSION_NOT_RUNNING"
	ErrNotConfirming    ErrCode = "NOT_AWAITING_CONFIRMATION"
	ErrSubmitInFlight   ErrCode = "SUBMISSION_IN_FLIGHT"
	ErrSubmitFailed     ErrCode = "SUBMISSION_FAILED"
	ErrSaveFailed       ErrCode = "ANSWER_SAVE_FAILED"
	ErrUnknownQuestion  ErrCode = "UNKNOWN_QUESTION"
	ErrIndexOutOfRange  ErrCode = "QUESTION_INDEX_OUT_OF_RANGE"

	// ─── Upstream test service ─────────────────────────────────────────
	ErrTestServiceDown ErrCode = "TEST_SERVICE_UNAVAILABLE"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "An authentication token is required."
	case ErrTokenInvalid:
		return "The authentication token is not valid."
	case ErrTokenExpired:
		return "The authentication token has expired."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "You do not have permission to access this resource."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "The identifier format is not valid."
	case ErrInvalidPayload:
		return "The request payload is not valid."

	// ─── Session lifecycle ─────────────────────────────────────────────
	case ErrNoSession:
		return "There is no active test session for this test."
	case ErrSessionCompleted:
		return "This test session is already completed."
	case ErrNoQuestions:
		return "No questions could be loaded for this test."
	case ErrNotRunning:
		return "The session is not in a running state."
	case ErrNotConfirming:
		return "The session is not awaiting a submission confirmation."
	case ErrSubmitInFlight:
		return "A submission is already in progress."
	case ErrSubmitFailed:
		return "Failed to submit the final result. Please try again."
	case ErrSaveFailed:
		return "Failed to save the answer. Your work is kept locally."
	case ErrUnknownQuestion:
		return "The question does not belong to this test."
	case ErrIndexOutOfRange:
		return "The question index is out of range."

	// ─── Upstream test service ─────────────────────────────────────────
	case ErrTestServiceDown:
		return "The test service is currently unavailable."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "The resource was not found."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
