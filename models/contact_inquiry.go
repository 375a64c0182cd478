package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// InquiryStatus tracks how far staff got with a contact inquiry.
type InquiryStatus string

const (
	InquiryNew        InquiryStatus = "new"
	InquiryInProgress InquiryStatus = "in_progress"
	InquiryResolved   InquiryStatus = "resolved"
	InquiryClosed     InquiryStatus = "closed"
)

var inquiryTransitions = map[InquiryStatus][]InquiryStatus{
	InquiryNew:        {InquiryInProgress, InquiryResolved, InquiryClosed},
	InquiryInProgress: {InquiryResolved, InquiryClosed},
	InquiryResolved:   {InquiryClosed, InquiryInProgress},
}

// CanTransition reports whether an inquiry in status from may move to to.
func (from InquiryStatus) CanTransition(to InquiryStatus) bool {
	for _, s := range inquiryTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ContactInquiry is a message submitted through the public contact form.
type ContactInquiry struct {
	ID        uint          `gorm:"primaryKey" json:"id"`
	Reference string        `gorm:"size:36;uniqueIndex;not null" json:"reference"`
	Name      string        `gorm:"size:128;not null" json:"name"`
	Email     string        `gorm:"size:255;not null" json:"email"`
	Subject   string        `gorm:"size:255" json:"subject"`
	Message   string        `gorm:"type:text;not null" json:"message"`
	Locale    Locale        `gorm:"size:2;default:en" json:"locale"`
	IP        string        `gorm:"size:45" json:"ip"`
	Status    InquiryStatus `gorm:"size:16;index;not null;default:new" json:"status"`
	Notes     string        `gorm:"type:text" json:"notes"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// BeforeCreate assigns the public reference and initial status.
func (c *ContactInquiry) BeforeCreate(tx *gorm.DB) error {
	if c.Reference == "" {
		c.Reference = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = InquiryNew
	}
	return nil
}
