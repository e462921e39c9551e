package sources

import (
	"context"

	"github.com/google/uuid"

	types "github.com/yungbote/studykit-backend/internal/domain"
	"github.com/yungbote/studykit-backend/internal/platform/dbctx"
)

// Store exposes SourceRepo with plain contexts for callers outside the data
// layer (topic extraction, ingestion).
type Store struct {
	repo SourceRepo
}

func NewStore(repo SourceRepo) *Store {
	return &Store{repo: repo}
}

func (s *Store) FetchUnprocessed(ctx context.Context, limit int) ([]*types.Source, error) {
	return s.repo.FetchUnprocessed(dbctx.Of(ctx), limit)
}

func (s *Store) FetchProcessed(ctx context.Context, studyKitID string) ([]*types.Source, error) {
	return s.repo.FetchProcessed(dbctx.Of(ctx), studyKitID)
}

func (s *Store) GetByStudyKit(ctx context.Context, studyKitID string) ([]*types.Source, error) {
	return s.repo.GetByStudyKit(dbctx.Of(ctx), studyKitID)
}

func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*types.Source, error) {
	return s.repo.GetByID(dbctx.Of(ctx), id)
}

func (s *Store) MarkProcessed(ctx context.Context, id uuid.UUID, loaderUsed string) (bool, error) {
	return s.repo.MarkProcessed(dbctx.Of(ctx), id, loaderUsed)
}

func (s *Store) CountByProcessed(ctx context.Context) (int64, int64, error) {
	return s.repo.CountByProcessed(dbctx.Of(ctx))
}
