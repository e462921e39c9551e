package sources

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Source is one uploaded study document belonging to a study kit.
type Source struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	StudyKitID string    `gorm:"column:study_kit_id;index" json:"studyKitId"`

	FileURL  string `gorm:"column:file_url" json:"fileUrl"`
	FileName string `gorm:"column:file_name" json:"fileName"`
	FileType string `gorm:"column:file_type" json:"fileType"`
	FileSize int64  `gorm:"column:file_size" json:"fileSize"`

	Processed  bool           `gorm:"column:processed;not null;default:false;index" json:"processed"`
	LoaderUsed string         `gorm:"column:loader_used" json:"loaderUsed,omitempty"`
	Metadata   datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`

	CreatedAt time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Source) TableName() string { return "source" }

func (s *Source) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
