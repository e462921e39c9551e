package manager

import (
	"context"
	"errors"
	"strings"

	"github.com/yungbote/studykit-backend/internal/ingestion/jobs"
	"github.com/yungbote/studykit-backend/internal/platform/apierr"
	"github.com/yungbote/studykit-backend/internal/platform/ctxutil"
)

// StartPending records a job and runs IngestPending after the request
// returns. The returned job is a snapshot in the running state.
func (m *Manager) StartPending(ctx context.Context, limit, maxConcurrency int, collection string) (*jobs.Job, error) {
	job := jobs.New(jobs.KindPending, "")
	return m.start(ctx, job, func(bg context.Context) (any, error) {
		return m.IngestPending(bg, limit, maxConcurrency, collection)
	})
}

func (m *Manager) StartStudyKit(ctx context.Context, studyKitID string, maxConcurrency int, collection string) (*jobs.Job, error) {
	studyKitID = strings.TrimSpace(studyKitID)
	if studyKitID == "" {
		return nil, apierr.BadRequest("invalid_request", "studyKitId is required")
	}
	job := jobs.New(jobs.KindStudyKit, studyKitID)
	return m.start(ctx, job, func(bg context.Context) (any, error) {
		return m.IngestStudyKit(bg, studyKitID, maxConcurrency, collection)
	})
}

func (m *Manager) Job(ctx context.Context, id string) (*jobs.Job, error) {
	job, err := m.jobs.Get(ctx, strings.TrimSpace(id))
	if errors.Is(err, jobs.ErrNotFound) {
		return nil, apierr.NotFound("job_not_found", err)
	}
	return job, err
}

// Wait blocks until every background run started by this manager finished.
func (m *Manager) Wait() { m.background.Wait() }

func (m *Manager) start(ctx context.Context, job *jobs.Job, run func(context.Context) (any, error)) (*jobs.Job, error) {
	if err := m.jobs.Put(ctx, job); err != nil {
		return nil, err
	}
	snapshot := *job
	bg := ctxutil.Detach(ctx)
	log := m.log.With(append(ctxutil.LogFields(ctx), "job_id", job.ID, "kind", job.Kind)...)
	log.Info("background ingestion started")

	m.background.Add(1)
	go func() {
		defer m.background.Done()
		result, err := run(bg)
		if result != nil && isNilSummary(result) {
			result = nil
		}
		job.Finish(result, err)
		if err != nil {
			log.Error("background ingestion failed", "error", err)
		} else {
			log.Info("background ingestion finished")
		}
		if perr := m.jobs.Put(bg, job); perr != nil {
			log.Error("background ingestion status not saved", "error", perr)
		}
	}()
	return &snapshot, nil
}

func isNilSummary(v any) bool {
	switch s := v.(type) {
	case *PendingSummary:
		return s == nil
	case *StudyKitSummary:
		return s == nil
	}
	return false
}
