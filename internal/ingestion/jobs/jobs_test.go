package jobs

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/studykit-backend/internal/platform/logger"
)

func TestFinish(t *testing.T) {
	t.Parallel()

	ok := New(KindStudyKit, "kit-1")
	if ok.Status != StatusRunning || ok.ID == "" || ok.FinishedAt != nil {
		t.Fatalf("new job=%+v", ok)
	}
	ok.Finish(map[string]int{"newly_processed": 2}, nil)
	if ok.Status != StatusSucceeded || string(ok.Result) != `{"newly_processed":2}` || ok.FinishedAt == nil {
		t.Fatalf("succeeded job=%+v", ok)
	}

	bad := New(KindPending, "")
	bad.Finish(nil, errors.New("db down"))
	if bad.Status != StatusFailed || bad.Error != "db down" || bad.Result != nil {
		t.Fatalf("failed job=%+v", bad)
	}
}

func TestMemoryStoreExpires(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStore()
	s.now = func() time.Time { return now }

	j := New(KindPending, "")
	if err := s.Put(context.Background(), j); err != nil {
		t.Fatalf("Put: %v", err)
	}
	j.Status = StatusFailed
	got, err := s.Get(context.Background(), j.ID)
	if err != nil || got.Status != StatusRunning {
		t.Fatalf("stored job must be a snapshot: %+v %v", got, err)
	}

	now = now.Add(TTL + time.Second)
	if _, err := s.Get(context.Background(), j.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired job err=%v", err)
	}
	if _, err := s.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown job err=%v", err)
	}
}

func TestDecodeHash(t *testing.T) {
	t.Parallel()

	j := decodeHash("id-1", map[string]string{
		"kind":         "study_kit",
		"study_kit_id": "kit-9",
		"status":       "succeeded",
		"result":       `{"failed":0}`,
		"started_at":   "2026-03-01T10:00:00Z",
		"finished_at":  "",
	})
	if j.Kind != KindStudyKit || j.StudyKitID != "kit-9" || j.Status != StatusSucceeded {
		t.Fatalf("job=%+v", j)
	}
	if string(j.Result) != `{"failed":0}` || j.StartedAt.IsZero() || j.FinishedAt != nil {
		t.Fatalf("job=%+v", j)
	}
}

func TestRedisStoreRoundTrip(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	defer rdb.Close()

	ctx := context.Background()
	s := NewRedisStore(logger.Nop(), rdb)
	j := New(KindStudyKit, "kit-r")
	j.Finish(map[string]string{"studyKitId": "kit-r"}, nil)
	if err := s.Put(ctx, j); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := s.Get(ctx, j.ID)
	if err != nil || got.Status != StatusSucceeded || got.StudyKitID != "kit-r" || got.FinishedAt == nil {
		t.Fatalf("Get=%+v err=%v", got, err)
	}
	if ttl := rdb.TTL(ctx, keyPrefix+j.ID).Val(); ttl <= 0 || ttl > TTL {
		t.Fatalf("ttl=%v", ttl)
	}
	if _, err := s.Get(ctx, "missing-"+j.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing err=%v", err)
	}
}
