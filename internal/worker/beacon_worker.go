package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/campustest/testgate/internal/config"
	"github.com/campustest/testgate/internal/model"
	"github.com/campustest/testgate/internal/testsvc"
)

// BeaconWorker consumes the beacon queue and delivers unload-time answer
// saves to the test service. The save was fire-and-forget from the
// browser's point of view; the worker gives it one delivery attempt plus a
// single requeue on failure, keeping the "attempted, not confirmed"
// contract without growing an unbounded retry backlog.
type BeaconWorker struct {
	client *testsvc.Client
	rdb    *redis.Client
	log    zerolog.Logger
}

// NewBeaconWorker creates a new BeaconWorker.
func NewBeaconWorker(client *testsvc.Client, rdb *redis.Client, log zerolog.Logger) *BeaconWorker {
	return &BeaconWorker{
		client: client,
		rdb:    rdb,
		log:    log.With().Str("component", "beacon_worker").Logger(),
	}
}

type beaconPayload struct {
	StudentID     string      `json:"student_id"`
	TestID        string      `json:"test_id"`
	UpstreamToken string      `json:"upstream_token"`
	QuestionID    string      `json:"question_id"`
	OptionID      interface{} `json:"option_id"`
	Text          *string     `json:"text"`
	Requeued      bool        `json:"requeued,omitempty"`
}

// Start begins the infinite worker loop. Call in a goroutine.
func (w *BeaconWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			// Drain remaining items before exit.
			w.drain(context.Background())
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *BeaconWorker) processNext(ctx context.Context) {
	// BLPop blocks until an item is available or timeout.
	result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.BeaconQueue).Result()
	if err != nil {
		if err != redis.Nil && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return
	}

	if len(result) < 2 {
		return
	}

	var payload beaconPayload
	if err := json.Unmarshal([]byte(result[1]), &payload); err != nil {
		w.log.Error().Err(err).Msg("Discarding malformed beacon payload")
		return
	}

	if err := w.deliver(ctx, &payload); err != nil {
		if payload.Requeued {
			// Second failure: accept the loss, the contract is best-effort.
			w.log.Warn().Err(err).
				Str("student_id", payload.StudentID).
				Str("test_id", payload.TestID).
				Msg("Beacon delivery failed twice, dropping")
			return
		}
		w.log.Warn().Err(err).
			Str("student_id", payload.StudentID).
			Str("test_id", payload.TestID).
			Msg("Beacon delivery failed, requeueing once")
		payload.Requeued = true
		raw, _ := json.Marshal(payload)
		w.rdb.RPush(ctx, config.WorkerKey.BeaconQueue, raw)
		time.Sleep(2 * time.Second)
	}
}

func (w *BeaconWorker) deliver(ctx context.Context, p *beaconPayload) error {
	up := model.AnswerUpsert{
		QuestionID: p.QuestionID,
		OptionID:   p.OptionID,
		Text:       p.Text,
	}
	return w.client.WithToken(p.UpstreamToken).UpsertAnswer(ctx, p.TestID, up)
}

// drain processes all remaining items in the queue before shutdown.
func (w *BeaconWorker) drain(ctx context.Context) {
	drained := 0
	for {
		result, err := w.rdb.LPop(ctx, config.WorkerKey.BeaconQueue).Result()
		if err != nil {
			break
		}

		var payload beaconPayload
		if err := json.Unmarshal([]byte(result), &payload); err != nil {
			w.log.Error().Err(err).Msg("Drain unmarshal error")
			continue
		}

		if err := w.deliver(ctx, &payload); err != nil {
			w.log.Warn().Err(err).Msg("Drain delivery error, requeueing")
			w.rdb.RPush(ctx, config.WorkerKey.BeaconQueue, result)
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}
