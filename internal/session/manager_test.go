package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campustest/testgate/internal/model"
)

func newTestManager() (*Manager, *fakeService) {
	svc := newFakeService(threeQuestions()...)
	factory := func(token string) TestService { return svc }
	return NewManager(factory, newMemStore(), nopSink{}, zerolog.Nop()), svc
}

func TestManagerStartIsIdempotent(t *testing.T) {
	m, _ := newTestManager()
	defer m.CloseAll()

	first, err := m.Start(context.Background(), "s1", "t1", "tok", time.Minute)
	require.NoError(t, err)

	second, err := m.Start(context.Background(), "s1", "t1", "tok", time.Minute)
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestManagerConcurrentStartsShareOneSession(t *testing.T) {
	m, _ := newTestManager()
	defer m.CloseAll()

	const n = 8
	sessions := make([]*Session, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			s, err := m.Start(context.Background(), "s1", "t1", "tok", time.Minute)
			require.NoError(t, err)
			sessions[i] = s
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		assert.Same(t, sessions[0], sessions[i])
	}
}

func TestManagerSessionsAreScopedByStudentAndTest(t *testing.T) {
	m, _ := newTestManager()
	defer m.CloseAll()

	a, err := m.Start(context.Background(), "s1", "t1", "tok", time.Minute)
	require.NoError(t, err)
	b, err := m.Start(context.Background(), "s2", "t1", "tok", time.Minute)
	require.NoError(t, err)
	c, err := m.Start(context.Background(), "s1", "t2", "tok", time.Minute)
	require.NoError(t, err)

	assert.NotSame(t, a, b)
	assert.NotSame(t, a, c)

	assert.Same(t, a, m.Get("s1", "t1"))
	assert.Nil(t, m.Get("s3", "t1"))
}

func TestManagerEvictClosesSession(t *testing.T) {
	m, _ := newTestManager()
	defer m.CloseAll()

	sess, err := m.Start(context.Background(), "s1", "t1", "tok", time.Minute)
	require.NoError(t, err)

	m.Evict("s1", "t1")
	assert.Nil(t, m.Get("s1", "t1"))

	_, serr := sess.State()
	assert.ErrorIs(t, serr, ErrSessionClosed)
}

func TestManagerEvictHandsPendingAnswerToDetach(t *testing.T) {
	m, _ := newTestManager()
	defer m.CloseAll()

	type handoff struct {
		studentID, testID, token string
		up                       model.AnswerUpsert
	}
	var got []handoff
	m.Detach = func(studentID, testID, upstreamToken string, up model.AnswerUpsert) {
		got = append(got, handoff{studentID, testID, upstreamToken, up})
	}

	sess, err := m.Start(context.Background(), "s1", "t1", "tok", time.Minute)
	require.NoError(t, err)
	require.NoError(t, sess.Answer(model.AnswerRequest{QuestionID: "q1", Op: "select", OptionID: "o1"}))

	m.Evict("s1", "t1")

	require.Len(t, got, 1)
	assert.Equal(t, "s1", got[0].studentID)
	assert.Equal(t, "t1", got[0].testID)
	assert.Equal(t, "tok", got[0].token)
	assert.Equal(t, "q1", got[0].up.QuestionID)
	assert.Equal(t, "o1", got[0].up.OptionID)
}

func TestManagerEvictWithoutPendingAnswerSkipsDetach(t *testing.T) {
	m, _ := newTestManager()
	defer m.CloseAll()

	calls := 0
	m.Detach = func(string, string, string, model.AnswerUpsert) { calls++ }

	_, err := m.Start(context.Background(), "s1", "t1", "tok", time.Minute)
	require.NoError(t, err)

	m.Evict("s1", "t1")
	assert.Equal(t, 0, calls)
}
