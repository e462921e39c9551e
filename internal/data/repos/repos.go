package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/studykit-backend/internal/data/repos/sources"
	"github.com/yungbote/studykit-backend/internal/platform/logger"
)

type SourceRepo = sources.SourceRepo
type SourceStore = sources.Store

func NewSourceRepo(db *gorm.DB, baseLog *logger.Logger) SourceRepo {
	return sources.NewSourceRepo(db, baseLog)
}

// NewSourceStore adapts a repo to the context-only interface used by the
// ingestion manager and the topic resolver.
func NewSourceStore(repo SourceRepo) *SourceStore { return sources.NewStore(repo) }
