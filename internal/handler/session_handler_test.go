package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campustest/testgate/internal/config"
	"github.com/campustest/testgate/internal/middleware"
	"github.com/campustest/testgate/internal/model"
	"github.com/campustest/testgate/internal/service"
	"github.com/campustest/testgate/internal/session"
	"github.com/campustest/testgate/internal/snapshot"
	"github.com/campustest/testgate/internal/validator"
)

func init() {
	gin.SetMode(gin.TestMode)
	validator.Setup()
}

// stubTestService is a minimal upstream for handler-level tests.
type stubTestService struct {
	questions []model.Question
	startErr  error
}

func (s *stubTestService) StartAttempt(ctx context.Context, testID string) error { return s.startErr }

func (s *stubTestService) ListAssignedQuestions(ctx context.Context, testID string) ([]model.QuestionRef, error) {
	refs := make([]model.QuestionRef, len(s.questions))
	for i, q := range s.questions {
		refs[i] = model.QuestionRef{QuestionID: q.ID}
	}
	return refs, nil
}

func (s *stubTestService) FetchQuestion(ctx context.Context, testID, questionID string) (*model.Question, error) {
	for _, q := range s.questions {
		if q.ID == questionID {
			q := q
			return &q, nil
		}
	}
	return nil, errors.New("not found")
}

func (s *stubTestService) FetchRestorationState(ctx context.Context, testID string) ([]model.RestoredAnswer, error) {
	return nil, nil
}

func (s *stubTestService) UpsertAnswer(ctx context.Context, testID string, up model.AnswerUpsert) error {
	return nil
}

func (s *stubTestService) SubmitFinal(ctx context.Context, testID string) (*model.FinalResult, error) {
	return &model.FinalResult{TotalQuestions: len(s.questions), FinalScore: 100}, nil
}

type testEnv struct {
	router  *gin.Engine
	auth    *service.AuthService
	manager *session.Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := &config.Config{JWTSecret: "handler-test-secret", JWTExpiry: time.Hour}
	authService := service.NewAuthService(cfg)

	stub := &stubTestService{questions: []model.Question{
		{ID: "q1", Type: model.QuestionTypeSingleChoice, Options: []model.Option{{ID: "o1"}}},
		{ID: "q2", Type: model.QuestionTypeText},
	}}
	manager := session.NewManager(
		func(token string) session.TestService { return stub },
		snapshot.NewMemoryStore(), nil, zerolog.Nop(),
	)
	t.Cleanup(manager.CloseAll)

	h := NewSessionHandler(manager, zerolog.Nop())

	r := gin.New()
	api := r.Group("/api/v1/session", middleware.RequireSessionAuth(authService))
	api.POST("/tests/:test_id/start", h.StartSession)
	api.GET("/tests/:test_id/state", h.GetState)
	api.GET("/tests/:test_id/paper", h.GetPaper)
	api.POST("/tests/:test_id/answer", h.Answer)
	api.POST("/tests/:test_id/navigate", h.Navigate)
	api.POST("/tests/:test_id/submit", h.RequestSubmit)
	api.POST("/tests/:test_id/submit/confirm", h.ConfirmSubmit)
	api.POST("/tests/:test_id/submit/cancel", h.CancelSubmit)
	api.GET("/tests/:test_id/result", h.GetResult)
	api.DELETE("/tests/:test_id", h.EndSession)

	return &testEnv{router: r, auth: authService, manager: manager}
}

func (e *testEnv) token(t *testing.T) string {
	t.Helper()
	token, err := e.auth.GenerateToken("s1", "upstream-tok")
	require.NoError(t, err)
	return token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func dataField(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body struct {
		Data map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Data
}

func errCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error.Code
}

func TestSessionRoutesRejectMissingToken(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/session/tests/t1/state", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "TOKEN_INVALID", errCode(t, w))
}

func TestStartSessionAndReadState(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t)

	w := env.do(t, http.MethodPost, "/api/v1/session/tests/t1/start", token,
		map[string]int{"duration_minutes": 10})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	data := dataField(t, w)
	assert.Equal(t, "running", data["state"])
	assert.EqualValues(t, 2, data["total_questions"])

	w = env.do(t, http.MethodGet, "/api/v1/session/tests/t1/state", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "running", dataField(t, w)["state"])
}

func TestStartSessionValidatesDuration(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/session/tests/t1/start", env.token(t),
		map[string]int{"duration_minutes": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", errCode(t, w))
}

func TestStateWithoutSessionIs404(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/session/tests/t1/state", env.token(t), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NO_ACTIVE_SESSION", errCode(t, w))
}

func TestAnswerFlow(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t)

	w := env.do(t, http.MethodPost, "/api/v1/session/tests/t1/start", token,
		map[string]int{"duration_minutes": 10})
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/session/tests/t1/answer", token,
		map[string]string{"question_id": "q1", "op": "select", "option_id": "o1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 1, dataField(t, w)["attempted"])

	// Unknown question ids are rejected without mutating anything.
	w = env.do(t, http.MethodPost, "/api/v1/session/tests/t1/answer", token,
		map[string]string{"question_id": "ghost", "op": "select", "option_id": "o1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "UNKNOWN_QUESTION", errCode(t, w))
}

func TestNavigateValidation(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t)

	w := env.do(t, http.MethodPost, "/api/v1/session/tests/t1/start", token,
		map[string]int{"duration_minutes": 10})
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/session/tests/t1/navigate", token,
		map[string]string{"op": "sideways"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", errCode(t, w))

	w = env.do(t, http.MethodPost, "/api/v1/session/tests/t1/navigate", token,
		map[string]interface{}{"op": "jump", "index": 5})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "QUESTION_INDEX_OUT_OF_RANGE", errCode(t, w))
}

func TestSubmitLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t)

	w := env.do(t, http.MethodPost, "/api/v1/session/tests/t1/start", token,
		map[string]int{"duration_minutes": 10})
	require.Equal(t, http.StatusCreated, w.Code)

	// Confirm without a pending request is a state conflict.
	w = env.do(t, http.MethodPost, "/api/v1/session/tests/t1/submit/confirm", token, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "NOT_AWAITING_CONFIRMATION", errCode(t, w))

	w = env.do(t, http.MethodPost, "/api/v1/session/tests/t1/submit", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "confirming", dataField(t, w)["state"])

	w = env.do(t, http.MethodPost, "/api/v1/session/tests/t1/submit/cancel", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "running", dataField(t, w)["state"])

	// Request again and go through with it.
	w = env.do(t, http.MethodPost, "/api/v1/session/tests/t1/submit", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do(t, http.MethodPost, "/api/v1/session/tests/t1/submit/confirm", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	require.Eventually(t, func() bool {
		res := env.do(t, http.MethodGet, "/api/v1/session/tests/t1/result", token, nil)
		return res.Code == http.StatusOK
	}, 3*time.Second, 20*time.Millisecond)

	w = env.do(t, http.MethodGet, "/api/v1/session/tests/t1/result", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data model.FinalResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Data.TotalQuestions)
	assert.Equal(t, 2, body.Data.Unattempted)
}

func TestResultBeforeCompletionIs404(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t)

	w := env.do(t, http.MethodPost, "/api/v1/session/tests/t1/start", token,
		map[string]int{"duration_minutes": 10})
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/session/tests/t1/result", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetPaper(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t)

	w := env.do(t, http.MethodPost, "/api/v1/session/tests/t1/start", token,
		map[string]int{"duration_minutes": 10})
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/session/tests/t1/paper", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data struct {
			Questions []model.Question `json:"questions"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data.Questions, 2)
	assert.Equal(t, "q1", body.Data.Questions[0].ID)
}

func TestEndSessionEvictsAndHandsOffPendingAnswer(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t)

	type handoff struct {
		studentID, testID, upstreamToken string
		up                               model.AnswerUpsert
	}
	var got []handoff
	env.manager.Detach = func(studentID, testID, upstreamToken string, up model.AnswerUpsert) {
		got = append(got, handoff{studentID, testID, upstreamToken, up})
	}

	w := env.do(t, http.MethodPost, "/api/v1/session/tests/t1/start", token,
		map[string]int{"duration_minutes": 10})
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/session/tests/t1/answer", token,
		map[string]string{"question_id": "q1", "op": "select", "option_id": "o1"})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodDelete, "/api/v1/session/tests/t1", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "detached", dataField(t, w)["status"])

	// The unsaved current answer went to the beacon path, carrying the
	// student's upstream credential.
	require.Len(t, got, 1)
	assert.Equal(t, "s1", got[0].studentID)
	assert.Equal(t, "t1", got[0].testID)
	assert.Equal(t, "upstream-tok", got[0].upstreamToken)
	assert.Equal(t, "q1", got[0].up.QuestionID)

	// The session is gone; further calls see no active session.
	w = env.do(t, http.MethodGet, "/api/v1/session/tests/t1/state", token, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NO_ACTIVE_SESSION", errCode(t, w))

	w = env.do(t, http.MethodDelete, "/api/v1/session/tests/t1", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
