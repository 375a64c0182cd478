package models

import (
	"time"

	"gorm.io/gorm"
)

// ResearchCategory groups research publications.
type ResearchCategory struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Slug      string    `gorm:"size:191;uniqueIndex;not null" json:"slug"`
	NameEn    string    `gorm:"size:128;not null" json:"name_en"`
	NameAr    string    `gorm:"size:128" json:"name_ar"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Tag is a free keyword attached to research.
type Tag struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	Slug   string `gorm:"size:191;uniqueIndex;not null" json:"slug"`
	NameEn string `gorm:"size:64;not null" json:"name_en"`
	NameAr string `gorm:"size:64" json:"name_ar"`
}

// Research is a bilingual publication with a downloadable file. The two
// counters are only ever advanced by the counter batcher.
type Research struct {
	ID             uint              `gorm:"primaryKey" json:"id"`
	Slug           string            `gorm:"size:191;uniqueIndex;not null" json:"slug"`
	TitleEn        string            `gorm:"size:255;not null" json:"title_en"`
	TitleAr        string            `gorm:"size:255" json:"title_ar"`
	AbstractEn     string            `gorm:"type:text" json:"abstract_en"`
	AbstractAr     string            `gorm:"type:text" json:"abstract_ar"`
	Authors        string            `gorm:"size:512" json:"authors"`
	FileURL        string            `gorm:"size:512" json:"file_url"`
	CategoryID     *uint             `gorm:"index" json:"category_id"`
	Category       *ResearchCategory `gorm:"constraint:OnUpdate:CASCADE,OnDelete:SET NULL;" json:"category,omitempty"`
	Tags           []Tag             `gorm:"many2many:research_tags;" json:"tags,omitempty"`
	IsFeatured     bool              `gorm:"index;default:false" json:"is_featured"`
	Status         Status            `gorm:"size:16;index;not null;default:draft" json:"status"`
	PublishedAt    *time.Time        `gorm:"index" json:"published_at"`
	ViewsCount     int64             `gorm:"not null;default:0" json:"views_count"`
	DownloadsCount int64             `gorm:"not null;default:0" json:"downloads_count"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	DeletedAt      gorm.DeletedAt    `gorm:"index" json:"-"`
}

// TableName keeps the uncountable noun.
func (Research) TableName() string { return "research" }
