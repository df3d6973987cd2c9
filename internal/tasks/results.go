package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Task result statuses.
const (
	StatusPending = "pending"
	StatusSent    = "sent"
)

const (
	resultKeyPrefix  = "task:email:"
	defaultResultTTL = 24 * time.Hour
)

// Result is the recorded outcome of an email job.
type Result struct {
	Status      string    `json:"status"`
	To          string    `json:"to"`
	Subject     string    `json:"subject"`
	CompletedAt time.Time `json:"completed_at"`
}

// ResultStore keeps task outcomes in Redis, keyed by task id. Entries
// expire after the TTL; a missing entry reads as still pending.
type ResultStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewResultStore(rdb *redis.Client) *ResultStore {
	return &ResultStore{rdb: rdb, ttl: defaultResultTTL}
}

// Set records the outcome of a task.
func (s *ResultStore) Set(ctx context.Context, taskID string, result Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, resultKeyPrefix+taskID, data, s.ttl).Err()
}

// Get loads the outcome of a task. found is false when no result has
// been recorded (yet, or anymore).
func (s *ResultStore) Get(ctx context.Context, taskID string) (Result, bool, error) {
	data, err := s.rdb.Get(ctx, resultKeyPrefix+taskID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Result{}, false, nil
		}
		return Result{}, false, err
	}

	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return Result{}, false, err
	}
	return result, true, nil
}
