package repository

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/sitecore/cache"
	"github.com/cppla/sitecore/cachekeys"
	"github.com/cppla/sitecore/models"
	"github.com/cppla/sitecore/utils"
)

// PageStatistics counts pages per status.
type PageStatistics struct {
	Total     int64 `json:"total"`
	Published int64 `json:"published"`
	Draft     int64 `json:"draft"`
}

// PageRepository reads and writes static pages.
type PageRepository struct {
	base
}

func NewPageRepository(db *gorm.DB, store cache.Store, ttl time.Duration, log *zap.Logger) *PageRepository {
	return &PageRepository{base: newBase(db, store, ttl, log)}
}

func (r *PageRepository) FindByID(ctx context.Context, id uint) (*models.Page, error) {
	key := cachekeys.ByID(cachekeys.Page, id)
	tags := []string{cachekeys.TagEntity(cachekeys.Page, id)}
	return cache.Remember(ctx, r.store, r.log, key, r.ttl, tags, func(ctx context.Context) (*models.Page, error) {
		return r.Get(ctx, id)
	})
}

// Get loads a page bypassing the cache.
func (r *PageRepository) Get(ctx context.Context, id uint) (*models.Page, error) {
	var p models.Page
	if err := r.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (r *PageRepository) FindBySlug(ctx context.Context, slug string) (*models.Page, error) {
	if !canonicalSlug(slug) {
		return nil, ErrNotFound
	}
	key := cachekeys.BySlug(cachekeys.Page, slug)
	tags := []string{cachekeys.TagSlug(cachekeys.Page, slug)}
	return cache.Remember(ctx, r.store, r.log, key, r.ttl, tags, func(ctx context.Context) (*models.Page, error) {
		return r.findSlug(ctx, slug, false)
	})
}

func (r *PageRepository) FindPublishedBySlug(ctx context.Context, slug string) (*models.Page, error) {
	if !canonicalSlug(slug) {
		return nil, ErrNotFound
	}
	key := cachekeys.PublishedBySlug(cachekeys.Page, slug)
	tags := []string{cachekeys.TagSlug(cachekeys.Page, slug)}
	return cache.Remember(ctx, r.store, r.log, key, r.ttl, tags, func(ctx context.Context) (*models.Page, error) {
		return r.findSlug(ctx, slug, true)
	})
}

func (r *PageRepository) findSlug(ctx context.Context, slug string, published bool) (*models.Page, error) {
	q := r.db.WithContext(ctx).Where("slug = ?", slug)
	if published {
		q = q.Where("status = ?", models.StatusPublished)
	}
	var p models.Page
	if err := q.First(&p).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// Published lists every published page by title.
func (r *PageRepository) Published(ctx context.Context) ([]models.Page, error) {
	key := cachekeys.List(cachekeys.Page, "published")
	tags := []string{cachekeys.TagLists(cachekeys.Page)}
	return cache.Remember(ctx, r.store, r.log, key, r.ttl, tags, func(ctx context.Context) ([]models.Page, error) {
		var out []models.Page
		err := r.db.WithContext(ctx).Where("status = ?", models.StatusPublished).Order("title_en").Find(&out).Error
		return out, err
	})
}

// Menu lists published pages flagged for navigation in menu order.
func (r *PageRepository) Menu(ctx context.Context) ([]models.Page, error) {
	key := cachekeys.List(cachekeys.Page, "menu")
	tags := []string{cachekeys.TagLists(cachekeys.Page)}
	return cache.Remember(ctx, r.store, r.log, key, r.ttl, tags, func(ctx context.Context) ([]models.Page, error) {
		var out []models.Page
		err := r.db.WithContext(ctx).
			Select("id", "slug", "title_en", "title_ar", "menu_order", "status", "show_in_menu").
			Where("status = ? AND show_in_menu = ?", models.StatusPublished, true).
			Order("menu_order").Order("id").
			Find(&out).Error
		return out, err
	})
}

func (r *PageRepository) Statistics(ctx context.Context) (PageStatistics, error) {
	key := cachekeys.Statistics(cachekeys.Page)
	tags := []string{cachekeys.TagStatistics(cachekeys.Page)}
	return cache.Remember(ctx, r.store, r.log, key, r.ttl, tags, func(ctx context.Context) (PageStatistics, error) {
		var s PageStatistics
		db := r.db.WithContext(ctx).Model(&models.Page{})
		if err := db.Count(&s.Total).Error; err != nil {
			return s, err
		}
		if err := r.db.WithContext(ctx).Model(&models.Page{}).Where("status = ?", models.StatusPublished).Count(&s.Published).Error; err != nil {
			return s, err
		}
		err := r.db.WithContext(ctx).Model(&models.Page{}).Where("status = ?", models.StatusDraft).Count(&s.Draft).Error
		return s, err
	})
}

// PageInput is the editable part of a page.
type PageInput struct {
	Slug       string
	TitleEn    string
	TitleAr    string
	BodyEn     string
	BodyAr     string
	Status     models.Status
	ShowInMenu bool
	MenuOrder  int
}

func (in PageInput) apply(p *models.Page) {
	p.TitleEn = in.TitleEn
	p.TitleAr = in.TitleAr
	p.BodyEn = utils.Sanitize(in.BodyEn)
	p.BodyAr = utils.Sanitize(in.BodyAr)
	p.ShowInMenu = in.ShowInMenu
	p.MenuOrder = in.MenuOrder
	if in.Status != "" {
		p.Status = in.Status
	}
	p.PublishedAt = models.PublishedStamp(p.Status, p.PublishedAt)
}

func (r *PageRepository) resolveSlug(ctx context.Context, tx *gorm.DB, in PageInput, excludeID uint) (string, error) {
	if in.Slug != "" {
		slug := utils.Slugify(in.Slug)
		taken, err := SlugTaken(ctx, tx, &models.Page{}, slug, excludeID)
		if err != nil {
			return "", err
		}
		if taken {
			return "", ErrSlugTaken
		}
		return slug, nil
	}
	title := in.TitleEn
	if title == "" {
		title = in.TitleAr
	}
	return UniqueSlug(ctx, tx, &models.Page{}, utils.Slugify(title), excludeID)
}

func (r *PageRepository) Create(ctx context.Context, in PageInput) (*models.Page, error) {
	p := &models.Page{Status: models.StatusDraft}
	in.apply(p)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		slug, err := r.resolveSlug(ctx, tx, in, 0)
		if err != nil {
			return err
		}
		p.Slug = slug
		return tx.Create(p).Error
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Update rewrites a page and returns it together with its previous slug.
func (r *PageRepository) Update(ctx context.Context, id uint, in PageInput) (*models.Page, string, error) {
	var p models.Page
	var oldSlug string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&p, id).Error; err != nil {
			return notFound(err)
		}
		oldSlug = p.Slug
		in.apply(&p)
		if in.Slug != "" {
			slug, err := r.resolveSlug(ctx, tx, in, id)
			if err != nil {
				return err
			}
			p.Slug = slug
		}
		return tx.Model(&p).Select("slug", "title_en", "title_ar", "body_en", "body_ar",
			"status", "show_in_menu", "menu_order", "published_at").Updates(&p).Error
	})
	if err != nil {
		return nil, "", err
	}
	return &p, oldSlug, nil
}

func (r *PageRepository) Delete(ctx context.Context, id uint) (*models.Page, error) {
	var p models.Page
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&p, id).Error; err != nil {
			return notFound(err)
		}
		return tx.Delete(&p).Error
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// AdminList returns every page regardless of status, uncached.
func (r *PageRepository) AdminList(ctx context.Context) ([]models.Page, error) {
	var out []models.Page
	err := r.db.WithContext(ctx).Order("updated_at DESC").Find(&out).Error
	return out, err
}
