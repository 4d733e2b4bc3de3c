package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/campustest/testgate/internal/config"
	"github.com/campustest/testgate/internal/model"
)

// BeaconService queues unload-time answer saves. The browser's sendBeacon
// fires while the page is being torn down, so the gateway only guarantees
// the save is attempted: the payload goes onto a Redis list and a worker
// delivers it to the test service out of band. This path is deliberately
// separate from the awaited persistence used during navigation.
type BeaconService struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewBeaconService creates a new BeaconService.
func NewBeaconService(rdb *redis.Client, log zerolog.Logger) *BeaconService {
	return &BeaconService{
		rdb: rdb,
		log: log.With().Str("component", "beacon_service").Logger(),
	}
}

// Enqueue pushes one answer save onto the beacon queue. The upstream token
// rides along so the worker can call the test service as the student.
func (s *BeaconService) Enqueue(ctx context.Context, studentID, testID, upstreamToken string, up model.AnswerUpsert) error {
	payload, err := json.Marshal(map[string]interface{}{
		"student_id":     studentID,
		"test_id":        testID,
		"upstream_token": upstreamToken,
		"question_id":    up.QuestionID,
		"option_id":      up.OptionID,
		"text":           up.Text,
	})
	if err != nil {
		return fmt.Errorf("encode beacon payload: %w", err)
	}

	if err := s.rdb.RPush(ctx, config.WorkerKey.BeaconQueue, payload).Err(); err != nil {
		return fmt.Errorf("enqueue beacon: %w", err)
	}
	return nil
}
