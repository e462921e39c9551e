package jobs

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	job     Job
	expires time.Time
}

// MemoryStore keeps jobs in process. Used when no redis is configured.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]memoryEntry
	ttl  time.Duration
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: map[string]memoryEntry{}, ttl: TTL, now: time.Now}
}

func (s *MemoryStore) Put(ctx context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for id, e := range s.jobs {
		if now.After(e.expires) {
			delete(s.jobs, id)
		}
	}
	s.jobs[job.ID] = memoryEntry{job: *job, expires: now.Add(s.ttl)}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.jobs[id]
	if !ok || s.now().After(e.expires) {
		return nil, ErrNotFound
	}
	j := e.job
	return &j, nil
}
