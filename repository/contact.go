package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/cppla/sitecore/models"
)

// ErrInvalidTransition is returned when an inquiry cannot move to the requested status.
var ErrInvalidTransition = errors.New("invalid status transition")

// InquiryPage is one page of contact inquiries.
type InquiryPage struct {
	Items    []models.ContactInquiry `json:"items"`
	Total    int64                   `json:"total"`
	Page     int                     `json:"page"`
	PageSize int                     `json:"page_size"`
}

// ContactRepository stores contact inquiries. Inquiries are staff-only and never cached.
type ContactRepository struct {
	db *gorm.DB
}

func NewContactRepository(db *gorm.DB) *ContactRepository {
	return &ContactRepository{db: db}
}

func (r *ContactRepository) Create(ctx context.Context, in *models.ContactInquiry) error {
	return r.db.WithContext(ctx).Create(in).Error
}

// List pages through inquiries, newest first, optionally filtered by status.
func (r *ContactRepository) List(ctx context.Context, status models.InquiryStatus, page, size int) (InquiryPage, error) {
	if page < 1 {
		page = 1
	}
	size = clampLimit(size, 20, 100)
	out := InquiryPage{Page: page, PageSize: size, Items: []models.ContactInquiry{}}
	q := r.db.WithContext(ctx).Model(&models.ContactInquiry{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Count(&out.Total).Error; err != nil {
		return out, err
	}
	err := q.Order("created_at DESC").Order("id DESC").Offset((page - 1) * size).Limit(size).Find(&out.Items).Error
	return out, err
}

func (r *ContactRepository) Get(ctx context.Context, id uint) (*models.ContactInquiry, error) {
	var in models.ContactInquiry
	if err := r.db.WithContext(ctx).First(&in, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &in, nil
}

// Transition moves an inquiry to status to, appending notes when given. The
// status check and the write happen in one conditional UPDATE.
func (r *ContactRepository) Transition(ctx context.Context, id uint, to models.InquiryStatus, notes string) (*models.ContactInquiry, error) {
	var in models.ContactInquiry
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&in, id).Error; err != nil {
			return notFound(err)
		}
		if !in.Status.CanTransition(to) {
			return ErrInvalidTransition
		}
		updates := map[string]interface{}{"status": to}
		if notes != "" {
			updates["notes"] = notes
		}
		res := tx.Model(&models.ContactInquiry{}).Where("id = ? AND status = ?", id, in.Status).Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInvalidTransition
		}
		in.Status = to
		if notes != "" {
			in.Notes = notes
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &in, nil
}
