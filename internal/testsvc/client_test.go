package testsvc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campustest/testgate/internal/model"
)

// fakeTestService is an httptest stand-in for the remote test service.
type fakeTestService struct {
	mu         sync.Mutex
	started    []string
	answers    map[string]model.AnswerUpsert // keyed by question id
	lastToken  string
	failSubmit bool
}

func newFakeTestService() *fakeTestService {
	return &fakeTestService{answers: map[string]model.AnswerUpsert{}}
}

func (f *fakeTestService) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/testsubmission/startTest", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.started = append(f.started, r.URL.Query().Get("test_id"))
		f.lastToken = r.Header.Get("token")
		f.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/testsubmission/getTestQuestionSubmissions", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"submissions": []model.QuestionRef{
				{QuestionID: "q1"}, {QuestionID: "q2"},
			},
		})
	})

	mux.HandleFunc("/testsubmission/getQuestion", func(w http.ResponseWriter, r *http.Request) {
		qid := r.URL.Query().Get("question_id")
		if qid == "missing" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"question": model.Question{ID: qid, Prompt: "What is 2+2?", Type: model.QuestionTypeSingleChoice},
		})
	})

	mux.HandleFunc("/testsubmission/getTestQuestionsWithSubmissions", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"questions": []model.RestoredAnswer{
				{QuestionID: "q1", SubmittedOptions: []string{"o1"}, Status: "answered"},
			},
		})
	})

	mux.HandleFunc("/testsubmission/submitTest", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			TestID  string               `json:"test_id"`
			Answers []model.AnswerUpsert `json:"answers"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.Answers) == 0 {
			http.Error(w, "bad payload", http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		for _, a := range body.Answers {
			f.answers[a.QuestionID] = a // last write wins
		}
		f.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/testsubmission/submitFinalResult", func(w http.ResponseWriter, r *http.Request) {
		if f.failSubmit {
			http.Error(w, "scoring unavailable", http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"result": model.FinalResult{TotalQuestions: 2, Correct: 1, Wrong: 1, FinalScore: 50},
		})
	})

	return mux
}

func newTestClient(t *testing.T, f *fakeTestService) *BoundClient {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	return New(srv.URL, 2*time.Second, zerolog.Nop()).WithToken("tok-123")
}

func TestStartAttemptSendsToken(t *testing.T) {
	f := newFakeTestService()
	c := newTestClient(t, f)

	require.NoError(t, c.StartAttempt(context.Background(), "t1"))

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(t, []string{"t1"}, f.started)
	assert.Equal(t, "tok-123", f.lastToken)
}

func TestListAssignedQuestions(t *testing.T) {
	c := newTestClient(t, newFakeTestService())

	refs, err := c.ListAssignedQuestions(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "q1", refs[0].QuestionID)
}

func TestFetchQuestion(t *testing.T) {
	c := newTestClient(t, newFakeTestService())

	q, err := c.FetchQuestion(context.Background(), "t1", "q1")
	require.NoError(t, err)
	assert.Equal(t, "q1", q.ID)
	assert.Equal(t, model.QuestionTypeSingleChoice, q.Type)
}

func TestFetchQuestionNotFound(t *testing.T) {
	c := newTestClient(t, newFakeTestService())

	_, err := c.FetchQuestion(context.Background(), "t1", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFetchRestorationState(t *testing.T) {
	c := newTestClient(t, newFakeTestService())

	records, err := c.FetchRestorationState(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, []string{"o1"}, records[0].SubmittedOptions)
}

func TestUpsertAnswerLastWriteWins(t *testing.T) {
	f := newFakeTestService()
	c := newTestClient(t, f)
	ctx := context.Background()

	first := model.BuildUpsert("q1", model.QuestionTypeSingleChoice, model.Answer{OptionID: "o1"})
	second := model.BuildUpsert("q1", model.QuestionTypeSingleChoice, model.Answer{OptionID: "o2"})

	require.NoError(t, c.UpsertAnswer(ctx, "t1", first))
	require.NoError(t, c.UpsertAnswer(ctx, "t1", second))
	// Replaying an earlier payload is harmless; the record just reflects
	// whichever write landed last.
	require.NoError(t, c.UpsertAnswer(ctx, "t1", second))

	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.answers, 1)
	assert.Equal(t, "o2", f.answers["q1"].OptionID)
}

func TestSubmitFinal(t *testing.T) {
	c := newTestClient(t, newFakeTestService())

	result, err := c.SubmitFinal(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalQuestions)
	assert.InDelta(t, 50, result.FinalScore, 0.001)
}

func TestSubmitFinalServerError(t *testing.T) {
	f := newFakeTestService()
	f.failSubmit = true
	c := newTestClient(t, f)

	_, err := c.SubmitFinal(context.Background(), "t1")
	assert.Error(t, err)
}
