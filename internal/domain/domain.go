package domain

import (
	"github.com/yungbote/studykit-backend/internal/domain/passages"
	"github.com/yungbote/studykit-backend/internal/domain/sources"
)

type (
	Source         = sources.Source
	ContextPassage = passages.ContextPassage
)

// Models lists every persisted type, in migration order.
func Models() []any {
	return []any{&Source{}}
}
