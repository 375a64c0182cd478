package models

import (
	"time"

	"gorm.io/gorm"
)

// Page is a bilingual static page such as "about" or "governance".
type Page struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Slug        string         `gorm:"size:191;uniqueIndex;not null" json:"slug"`
	TitleEn     string         `gorm:"size:255;not null" json:"title_en"`
	TitleAr     string         `gorm:"size:255" json:"title_ar"`
	BodyEn      string         `gorm:"type:text" json:"body_en"`
	BodyAr      string         `gorm:"type:text" json:"body_ar"`
	Status      Status         `gorm:"size:16;index;not null;default:draft" json:"status"`
	ShowInMenu  bool           `gorm:"index;default:false" json:"show_in_menu"`
	MenuOrder   int            `gorm:"default:0" json:"menu_order"`
	PublishedAt *time.Time     `json:"published_at"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}
