// Package testsvc is the HTTP client for the remote test service, the
// external collaborator that owns question content, answer records and
// scoring. The gateway never persists authoritative answer data itself; it
// only mirrors it for the duration of a session.
package testsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/campustest/testgate/internal/model"
	"github.com/campustest/testgate/internal/session"
)

// ErrNotFound marks 404 responses so callers can distinguish missing
// resources from transport failures.
var ErrNotFound = errors.New("not found")

// Client talks to the remote test service. It is safe for concurrent use;
// per-student credentials are bound via WithToken.
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

// New creates a Client for the given base URL (e.g.
// "https://api.example.edu/api"). timeout bounds each request end to end.
func New(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		log:     log.With().Str("component", "testsvc").Logger(),
	}
}

// WithToken returns a view of the client bound to one student's credential.
// The returned value implements session.TestService.
func (c *Client) WithToken(token string) *BoundClient {
	return &BoundClient{client: c, token: token}
}

// BoundClient is a Client plus one student's auth token.
type BoundClient struct {
	client *Client
	token  string
}

var _ session.TestService = (*BoundClient)(nil)

// StartAttempt establishes the server-side attempt record. The service
// treats repeated calls for the same attempt as a no-op.
func (b *BoundClient) StartAttempt(ctx context.Context, testID string) error {
	q := url.Values{"test_id": {testID}}
	return b.call(ctx, http.MethodPost, "/testsubmission/startTest", q, nil, nil)
}

// ListAssignedQuestions returns the ordered question references for this
// attempt with their prior-submission status.
func (b *BoundClient) ListAssignedQuestions(ctx context.Context, testID string) ([]model.QuestionRef, error) {
	var out struct {
		Submissions []model.QuestionRef `json:"submissions"`
	}
	q := url.Values{"test_id": {testID}}
	if err := b.call(ctx, http.MethodGet, "/testsubmission/getTestQuestionSubmissions", q, nil, &out); err != nil {
		return nil, fmt.Errorf("list assigned questions: %w", err)
	}
	return out.Submissions, nil
}

// FetchQuestion returns the full content of one question. The service
// strips correctness flags for in-progress attempts.
func (b *BoundClient) FetchQuestion(ctx context.Context, testID, questionID string) (*model.Question, error) {
	var out struct {
		Question model.Question `json:"question"`
	}
	q := url.Values{"test_id": {testID}, "question_id": {questionID}}
	if err := b.call(ctx, http.MethodGet, "/testsubmission/getQuestion", q, nil, &out); err != nil {
		return nil, fmt.Errorf("fetch question %s: %w", questionID, err)
	}
	return &out.Question, nil
}

// FetchRestorationState returns the per-question submission records the
// service holds for this attempt, used to resume on a new device.
func (b *BoundClient) FetchRestorationState(ctx context.Context, testID string) ([]model.RestoredAnswer, error) {
	var out struct {
		Questions []model.RestoredAnswer `json:"questions"`
	}
	q := url.Values{"test_id": {testID}}
	if err := b.call(ctx, http.MethodGet, "/testsubmission/getTestQuestionsWithSubmissions", q, nil, &out); err != nil {
		return nil, fmt.Errorf("fetch restoration state: %w", err)
	}
	return out.Questions, nil
}

// submitBody is the upsert envelope: the service accepts a batch but the
// session always sends exactly one answer per call.
type submitBody struct {
	TestID  string               `json:"test_id"`
	Answers []model.AnswerUpsert `json:"answers"`
}

// UpsertAnswer creates or replaces one question's answer record. Last write
// wins on the server, so retries and reordering are harmless.
func (b *BoundClient) UpsertAnswer(ctx context.Context, testID string, up model.AnswerUpsert) error {
	body := submitBody{TestID: testID, Answers: []model.AnswerUpsert{up}}
	if err := b.call(ctx, http.MethodPost, "/testsubmission/submitTest", nil, body, nil); err != nil {
		return fmt.Errorf("upsert answer %s: %w", up.QuestionID, err)
	}
	return nil
}

// SubmitFinal requests authoritative scoring of the attempt.
func (b *BoundClient) SubmitFinal(ctx context.Context, testID string) (*model.FinalResult, error) {
	var out struct {
		Result model.FinalResult `json:"result"`
	}
	q := url.Values{"test_id": {testID}}
	if err := b.call(ctx, http.MethodGet, "/testsubmission/submitFinalResult", q, nil, &out); err != nil {
		return nil, fmt.Errorf("submit final result: %w", err)
	}
	return &out.Result, nil
}

// call performs one JSON request/response round trip.
func (b *BoundClient) call(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	u := b.client.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("token", b.token)

	res, err := b.client.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s %s: %w", method, path, ErrNotFound)
	}
	if res.StatusCode/100 != 2 {
		return fmt.Errorf("%s %s: %s", method, path, res.Status)
	}

	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
