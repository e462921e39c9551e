package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/studykit-backend/internal/data/repos"
	"github.com/yungbote/studykit-backend/internal/platform/logger"
)

type Repos struct {
	Sources repos.SourceRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Sources: repos.NewSourceRepo(db, log),
	}
}
