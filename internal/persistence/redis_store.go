package persistence

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mhersta/conveyor/pkg/api"
)

// RedisStore implements ExecutionStore and DeadLetterSink on top of Redis.
// It uses a simple key structure:
//
//	<prefix>exec:<id>             => JSON-encoded execution
//	<prefix>idx:all               => SET of all execution IDs
//	<prefix>idx:wf:<workflow>     => SET of execution IDs for a workflow
//	<prefix>idx:tenant:<tenant>   => SET of execution IDs for a tenant
//	<prefix>idx:status:<status>   => SET of execution IDs for a status
//	<prefix>idx:retry             => ZSET of failed_pending_retry IDs,
//	                                 scored by NextRetryAt (unix nanos)
//	<prefix>deadletters           => ZSET of dead-lettered IDs, scored by
//	                                 hand-off time
//
// The indexes are best-effort; they are always updated on Create/Update, and
// ListExecutions uses set operations for filtering.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ ExecutionStore = (*RedisStore)(nil)

var _ DeadLetterSink = (*RedisStore)(nil)

// NewRedisStore creates a RedisStore.
// prefix is optional but recommended (e.g. "conveyor:").
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "conveyor:"
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisStore) keyExecution(id string) string { return s.prefix + "exec:" + id }

func (s *RedisStore) keyAll() string { return s.prefix + "idx:all" }

func (s *RedisStore) keyWorkflow(id string) string { return s.prefix + "idx:wf:" + id }

func (s *RedisStore) keyTenant(id string) string { return s.prefix + "idx:tenant:" + id }

func (s *RedisStore) keyStatus(status api.Status) string {
	return s.prefix + "idx:status:" + string(status)
}

func (s *RedisStore) keyRetry() string { return s.prefix + "idx:retry" }

func (s *RedisStore) keyDeadLetters() string { return s.prefix + "deadletters" }

func (s *RedisStore) CreateExecution(ctx context.Context, exec *api.Execution) error {
	return s.write(ctx, exec, "")
}

func (s *RedisStore) UpdateExecution(ctx context.Context, exec *api.Execution) error {
	prev, err := s.GetExecution(ctx, exec.ID)
	if err != nil {
		return err
	}
	return s.write(ctx, exec, prev.Status)
}

// write stores the execution and refreshes the indexes. prevStatus, when
// non-empty, names the status index the ID must be removed from.
func (s *RedisStore) write(ctx context.Context, exec *api.Execution, prevStatus api.Status) error {
	payload, err := EncodeJSON(exec)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.keyExecution(exec.ID), payload, 0)
	pipe.SAdd(ctx, s.keyAll(), exec.ID)
	if exec.WorkflowID != "" {
		pipe.SAdd(ctx, s.keyWorkflow(exec.WorkflowID), exec.ID)
	}
	if exec.TenantID != "" {
		pipe.SAdd(ctx, s.keyTenant(exec.TenantID), exec.ID)
	}
	if prevStatus != "" && prevStatus != exec.Status {
		pipe.SRem(ctx, s.keyStatus(prevStatus), exec.ID)
	}
	pipe.SAdd(ctx, s.keyStatus(exec.Status), exec.ID)

	if exec.Status == api.StatusFailedPendingRetry && exec.NextRetryAt != nil {
		pipe.ZAdd(ctx, s.keyRetry(), redis.Z{
			Score:  float64(exec.NextRetryAt.UnixNano()),
			Member: exec.ID,
		})
	} else {
		pipe.ZRem(ctx, s.keyRetry(), exec.ID)
	}

	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) GetExecution(ctx context.Context, id string) (*api.Execution, error) {
	data, err := s.client.Get(ctx, s.keyExecution(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, api.ErrExecutionNotFound
		}
		return nil, err
	}
	return DecodeJSON[*api.Execution](data)
}

func (s *RedisStore) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*api.Execution, error) {
	keys := []string{s.keyAll()}
	if filter.WorkflowID != "" {
		keys = append(keys, s.keyWorkflow(filter.WorkflowID))
	}
	if filter.TenantID != "" {
		keys = append(keys, s.keyTenant(filter.TenantID))
	}
	if filter.Status != "" {
		keys = append(keys, s.keyStatus(filter.Status))
	}

	ids, err := s.client.SInter(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	out := make([]*api.Execution, 0, len(ids))
	for _, id := range ids {
		exec, err := s.GetExecution(ctx, id)
		if err != nil {
			if errors.Is(err, api.ErrExecutionNotFound) {
				// Stale index entry; skip it.
				continue
			}
			return nil, err
		}
		out = append(out, exec)
	}
	return out, nil
}

func (s *RedisStore) ListDueRetries(ctx context.Context, now time.Time, limit int) ([]*api.Execution, error) {
	opt := &redis.ZRangeBy{
		Min: "-inf",
		Max: formatNanos(now),
	}
	if limit > 0 {
		opt.Count = int64(limit)
	}

	ids, err := s.client.ZRangeByScore(ctx, s.keyRetry(), opt).Result()
	if err != nil {
		return nil, err
	}

	out := make([]*api.Execution, 0, len(ids))
	for _, id := range ids {
		exec, err := s.GetExecution(ctx, id)
		if err != nil {
			if errors.Is(err, api.ErrExecutionNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, exec)
	}
	return out, nil
}

func (s *RedisStore) DeadLetter(ctx context.Context, executionID string) error {
	// ZAddNX keeps the first hand-off time if called twice.
	return s.client.ZAddNX(ctx, s.keyDeadLetters(), redis.Z{
		Score:  float64(time.Now().UnixNano()),
		Member: executionID,
	}).Err()
}

// DeadLetteredIDs returns the execution IDs handed to the sink, oldest first.
func (s *RedisStore) DeadLetteredIDs(ctx context.Context) ([]string, error) {
	return s.client.ZRange(ctx, s.keyDeadLetters(), 0, -1).Result()
}

func formatNanos(t time.Time) string {
	return strconv.FormatInt(t.UnixNano(), 10)
}
