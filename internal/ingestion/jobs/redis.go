package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/studykit-backend/internal/platform/logger"
)

const keyPrefix = "studykit:ingest:job:"

// RedisStore keeps each job as a hash that expires TTL after its last write.
type RedisStore struct {
	log *logger.Logger
	rdb goredis.UniversalClient
	ttl time.Duration
}

func NewRedisStore(log *logger.Logger, rdb goredis.UniversalClient) *RedisStore {
	return &RedisStore{log: log.With("service", "RedisJobStore"), rdb: rdb, ttl: TTL}
}

func (s *RedisStore) Put(ctx context.Context, job *Job) error {
	fields := map[string]any{
		"kind":         string(job.Kind),
		"study_kit_id": job.StudyKitID,
		"status":       string(job.Status),
		"error":        job.Error,
		"result":       string(job.Result),
		"started_at":   job.StartedAt.Format(time.RFC3339Nano),
		"finished_at":  "",
	}
	if job.FinishedAt != nil {
		fields["finished_at"] = job.FinishedAt.Format(time.RFC3339Nano)
	}
	key := keyPrefix + job.ID
	_, err := s.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.HSet(ctx, key, fields)
		p.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis put job %s: %w", job.ID, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Job, error) {
	vals, err := s.rdb.HGetAll(ctx, keyPrefix+id).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get job %s: %w", id, err)
	}
	if len(vals) == 0 {
		return nil, ErrNotFound
	}
	return decodeHash(id, vals), nil
}

func decodeHash(id string, vals map[string]string) *Job {
	j := &Job{
		ID:         id,
		Kind:       Kind(vals["kind"]),
		StudyKitID: vals["study_kit_id"],
		Status:     Status(vals["status"]),
		Error:      vals["error"],
	}
	if r := strings.TrimSpace(vals["result"]); r != "" {
		j.Result = []byte(r)
	}
	if t, err := time.Parse(time.RFC3339Nano, vals["started_at"]); err == nil {
		j.StartedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, vals["finished_at"]); err == nil {
		j.FinishedAt = &t
	}
	return j
}
