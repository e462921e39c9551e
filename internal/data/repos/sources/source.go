package sources

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/studykit-backend/internal/domain"
	"github.com/yungbote/studykit-backend/internal/platform/dbctx"
	"github.com/yungbote/studykit-backend/internal/platform/logger"
)

type SourceRepo interface {
	Create(dbc dbctx.Context, sources []*types.Source) ([]*types.Source, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Source, error)
	GetByStudyKit(dbc dbctx.Context, studyKitID string) ([]*types.Source, error)
	FetchUnprocessed(dbc dbctx.Context, limit int) ([]*types.Source, error)
	// FetchProcessed filters by study kit unless studyKitID is empty.
	FetchProcessed(dbc dbctx.Context, studyKitID string) ([]*types.Source, error)
	// MarkProcessed reports whether a row was updated.
	MarkProcessed(dbc dbctx.Context, id uuid.UUID, loaderUsed string) (bool, error)
	CountByProcessed(dbc dbctx.Context) (processed int64, unprocessed int64, err error)
}

type sourceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSourceRepo(db *gorm.DB, baseLog *logger.Logger) SourceRepo {
	repoLog := baseLog.With("repo", "SourceRepo")
	return &sourceRepo{db: db, log: repoLog}
}

func (r *sourceRepo) Create(dbc dbctx.Context, sources []*types.Source) ([]*types.Source, error) {
	if len(sources) == 0 {
		return []*types.Source{}, nil
	}
	if err := dbc.Conn(r.db).Create(&sources).Error; err != nil {
		return nil, err
	}
	return sources, nil
}

func (r *sourceRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Source, error) {
	var out types.Source
	err := dbc.Conn(r.db).Where("id = ?", id).Limit(1).Find(&out).Error
	if err != nil {
		return nil, err
	}
	if out.ID == uuid.Nil {
		return nil, nil
	}
	return &out, nil
}

func (r *sourceRepo) GetByStudyKit(dbc dbctx.Context, studyKitID string) ([]*types.Source, error) {
	results := []*types.Source{}
	if studyKitID == "" {
		return results, nil
	}
	if err := dbc.Conn(r.db).
		Where("study_kit_id = ?", studyKitID).
		Order("created_at ASC, id ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *sourceRepo) FetchUnprocessed(dbc dbctx.Context, limit int) ([]*types.Source, error) {
	results := []*types.Source{}
	q := dbc.Conn(r.db).
		Where("processed = ?", false).
		Order("created_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *sourceRepo) FetchProcessed(dbc dbctx.Context, studyKitID string) ([]*types.Source, error) {
	results := []*types.Source{}
	q := dbc.Conn(r.db).Where("processed = ?", true)
	if studyKitID != "" {
		q = q.Where("study_kit_id = ?", studyKitID)
	}
	if err := q.Order("created_at ASC, id ASC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *sourceRepo) MarkProcessed(dbc dbctx.Context, id uuid.UUID, loaderUsed string) (bool, error) {
	updates := map[string]interface{}{"processed": true}
	if loaderUsed != "" {
		updates["loader_used"] = loaderUsed
	}
	res := dbc.Conn(r.db).
		Model(&types.Source{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *sourceRepo) CountByProcessed(dbc dbctx.Context) (int64, int64, error) {
	var processed, unprocessed int64
	if err := dbc.Conn(r.db).Model(&types.Source{}).Where("processed = ?", true).Count(&processed).Error; err != nil {
		return 0, 0, err
	}
	if err := dbc.Conn(r.db).Model(&types.Source{}).Where("processed = ?", false).Count(&unprocessed).Error; err != nil {
		return 0, 0, err
	}
	return processed, unprocessed, nil
}
