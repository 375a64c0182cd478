package repository

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/sitecore/cache"
	"github.com/cppla/sitecore/cachekeys"
	"github.com/cppla/sitecore/counter"
	"github.com/cppla/sitecore/models"
	"github.com/cppla/sitecore/utils"
)

var counterColumns = map[counter.Kind]string{
	counter.Views:     "views_count",
	counter.Downloads: "downloads_count",
}

// ResearchPage is one page of published research.
type ResearchPage struct {
	Items    []models.Research `json:"items"`
	Total    int64             `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
}

// CategoryCount is the number of published items in one category.
type CategoryCount struct {
	CategoryID uint   `json:"category_id"`
	NameEn     string `json:"name_en"`
	NameAr     string `json:"name_ar"`
	Count      int64  `json:"count"`
}

// ResearchStatistics aggregates the research catalogue.
type ResearchStatistics struct {
	Total          int64           `json:"total"`
	Published      int64           `json:"published"`
	Featured       int64           `json:"featured"`
	TotalViews     int64           `json:"total_views"`
	TotalDownloads int64           `json:"total_downloads"`
	ByCategory     []CategoryCount `json:"by_category"`
}

// ResearchRepository reads and writes research. It is also the durable side of
// the view/download batcher.
type ResearchRepository struct {
	base
}

var _ counter.Repository = (*ResearchRepository)(nil)

// NewResearchRepository builds a repository caching reads in store for ttl.
func NewResearchRepository(db *gorm.DB, store cache.Store, ttl time.Duration, log *zap.Logger) *ResearchRepository {
	return &ResearchRepository{base: newBase(db, store, ttl, log)}
}

// Exists reports whether a live research row with id exists.
func (r *ResearchRepository) Exists(ctx context.Context, id uint) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Research{}).Where("id = ?", id).Count(&n).Error
	return n > 0, err
}

// IncrementCounter adds amount to the kind's column in one UPDATE so concurrent
// flushes never lose each other's writes.
func (r *ResearchRepository) IncrementCounter(ctx context.Context, id uint, kind counter.Kind, amount int64) error {
	col, ok := counterColumns[kind]
	if !ok {
		return fmt.Errorf("%w: %s", counter.ErrUnknownKind, kind)
	}
	res := r.db.WithContext(ctx).Model(&models.Research{}).
		Where("id = ?", id).
		UpdateColumn(col, gorm.Expr(col+" + ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return counter.ErrNotFound
	}
	return nil
}

// FindByID returns any research row, cached under its id key.
func (r *ResearchRepository) FindByID(ctx context.Context, id uint, rel ...string) (*models.Research, error) {
	rel = relations(rel)
	key := cachekeys.ByID(cachekeys.Research, id, rel...)
	tags := []string{cachekeys.TagEntity(cachekeys.Research, id)}
	return cache.Remember(ctx, r.store, r.log, key, r.ttl, tags, func(ctx context.Context) (*models.Research, error) {
		return r.Get(ctx, id, rel...)
	})
}

// Get loads a row bypassing the cache. Admin edits read through here.
func (r *ResearchRepository) Get(ctx context.Context, id uint, rel ...string) (*models.Research, error) {
	var item models.Research
	if err := preload(r.db.WithContext(ctx), relations(rel)).First(&item, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &item, nil
}

// FindBySlug returns a row in any status.
func (r *ResearchRepository) FindBySlug(ctx context.Context, slug string, rel ...string) (*models.Research, error) {
	if !canonicalSlug(slug) {
		return nil, ErrNotFound
	}
	rel = relations(rel)
	key := cachekeys.BySlug(cachekeys.Research, slug, rel...)
	tags := []string{cachekeys.TagSlug(cachekeys.Research, slug)}
	return cache.Remember(ctx, r.store, r.log, key, r.ttl, tags, func(ctx context.Context) (*models.Research, error) {
		return r.findSlug(ctx, slug, false, rel)
	})
}

// FindPublishedBySlug returns a published row for public detail pages.
func (r *ResearchRepository) FindPublishedBySlug(ctx context.Context, slug string, rel ...string) (*models.Research, error) {
	if !canonicalSlug(slug) {
		return nil, ErrNotFound
	}
	rel = relations(rel)
	key := cachekeys.PublishedBySlug(cachekeys.Research, slug, rel...)
	tags := []string{cachekeys.TagSlug(cachekeys.Research, slug)}
	return cache.Remember(ctx, r.store, r.log, key, r.ttl, tags, func(ctx context.Context) (*models.Research, error) {
		return r.findSlug(ctx, slug, true, rel)
	})
}

func (r *ResearchRepository) findSlug(ctx context.Context, slug string, published bool, rel []string) (*models.Research, error) {
	q := preload(r.db.WithContext(ctx), rel).Where("slug = ?", slug)
	if published {
		q = q.Where("status = ?", models.StatusPublished)
	}
	var item models.Research
	if err := q.First(&item).Error; err != nil {
		return nil, notFound(err)
	}
	return &item, nil
}

func (r *ResearchRepository) published(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Research{}).Where("status = ?", models.StatusPublished)
}

func (r *ResearchRepository) list(ctx context.Context, qualifier, order string, limit int, scope func(*gorm.DB) *gorm.DB) ([]models.Research, error) {
	limit = clampLimit(limit, 6, 50)
	key := cachekeys.List(cachekeys.Research, qualifier, limit)
	tags := []string{cachekeys.TagLists(cachekeys.Research)}
	return cache.Remember(ctx, r.store, r.log, key, r.ttl, tags, func(ctx context.Context) ([]models.Research, error) {
		q := r.published(ctx).Preload(RelCategory)
		if scope != nil {
			q = scope(q)
		}
		var items []models.Research
		err := q.Order(order).Order("id DESC").Limit(limit).Find(&items).Error
		return items, err
	})
}

// Featured lists published research flagged as featured, newest first.
func (r *ResearchRepository) Featured(ctx context.Context, limit int) ([]models.Research, error) {
	return r.list(ctx, "featured", "published_at DESC", limit, func(q *gorm.DB) *gorm.DB {
		return q.Where("is_featured = ?", true)
	})
}

// Popular lists the most viewed published research.
func (r *ResearchRepository) Popular(ctx context.Context, limit int) ([]models.Research, error) {
	return r.list(ctx, "popular", "views_count DESC", limit, nil)
}

// Latest lists the most recently published research.
func (r *ResearchRepository) Latest(ctx context.Context, limit int) ([]models.Research, error) {
	return r.list(ctx, "latest", "published_at DESC", limit, nil)
}

// MostDownloaded lists the most downloaded published research.
func (r *ResearchRepository) MostDownloaded(ctx context.Context, limit int) ([]models.Research, error) {
	return r.list(ctx, "most-downloaded", "downloads_count DESC", limit, nil)
}

// Published pages through published research, optionally narrowed to a category.
func (r *ResearchRepository) Published(ctx context.Context, page, size int, categoryID uint) (ResearchPage, error) {
	if page < 1 {
		page = 1
	}
	size = clampLimit(size, 10, 100)
	key := cachekeys.List(cachekeys.Research, "published", "page="+fmt.Sprint(page), "size="+fmt.Sprint(size), "category="+fmt.Sprint(categoryID))
	tags := []string{cachekeys.TagLists(cachekeys.Research)}
	return cache.Remember(ctx, r.store, r.log, key, r.ttl, tags, func(ctx context.Context) (ResearchPage, error) {
		out := ResearchPage{Page: page, PageSize: size, Items: []models.Research{}}
		q := r.published(ctx)
		if categoryID != 0 {
			q = q.Where("category_id = ?", categoryID)
		}
		if err := q.Count(&out.Total).Error; err != nil {
			return out, err
		}
		err := q.Preload(RelCategory).Order("published_at DESC").Order("id DESC").
			Offset((page - 1) * size).Limit(size).Find(&out.Items).Error
		return out, err
	})
}

// Statistics aggregates counts over the catalogue.
func (r *ResearchRepository) Statistics(ctx context.Context) (ResearchStatistics, error) {
	key := cachekeys.Statistics(cachekeys.Research)
	tags := []string{cachekeys.TagStatistics(cachekeys.Research)}
	return cache.Remember(ctx, r.store, r.log, key, r.ttl, tags, func(ctx context.Context) (ResearchStatistics, error) {
		var s ResearchStatistics
		db := r.db.WithContext(ctx)
		if err := db.Model(&models.Research{}).Count(&s.Total).Error; err != nil {
			return s, err
		}
		if err := r.published(ctx).Count(&s.Published).Error; err != nil {
			return s, err
		}
		if err := r.published(ctx).Where("is_featured = ?", true).Count(&s.Featured).Error; err != nil {
			return s, err
		}
		var sums struct {
			Views     int64
			Downloads int64
		}
		if err := r.published(ctx).
			Select("COALESCE(SUM(views_count), 0) AS views, COALESCE(SUM(downloads_count), 0) AS downloads").
			Scan(&sums).Error; err != nil {
			return s, err
		}
		s.TotalViews, s.TotalDownloads = sums.Views, sums.Downloads

		s.ByCategory = []CategoryCount{}
		err := db.Table("research AS r").
			Select("c.id AS category_id, c.name_en, c.name_ar, COUNT(r.id) AS count").
			Joins("JOIN research_categories AS c ON c.id = r.category_id").
			Where("r.status = ? AND r.deleted_at IS NULL", models.StatusPublished).
			Group("c.id, c.name_en, c.name_ar").
			Order("count DESC").
			Scan(&s.ByCategory).Error
		return s, err
	})
}

// ResearchInput is the editable part of a research row.
type ResearchInput struct {
	Slug       string
	TitleEn    string
	TitleAr    string
	AbstractEn string
	AbstractAr string
	Authors    string
	FileURL    string
	CategoryID *uint
	TagIDs     []uint
	IsFeatured bool
	Status     models.Status
}

func (in ResearchInput) apply(item *models.Research) {
	item.TitleEn = in.TitleEn
	item.TitleAr = in.TitleAr
	item.AbstractEn = utils.Sanitize(in.AbstractEn)
	item.AbstractAr = utils.Sanitize(in.AbstractAr)
	item.Authors = in.Authors
	item.FileURL = in.FileURL
	item.CategoryID = in.CategoryID
	item.IsFeatured = in.IsFeatured
	if in.Status != "" {
		item.Status = in.Status
	}
	item.PublishedAt = models.PublishedStamp(item.Status, item.PublishedAt)
}

func (r *ResearchRepository) resolveSlug(ctx context.Context, tx *gorm.DB, in ResearchInput, excludeID uint) (string, error) {
	if in.Slug != "" {
		slug := utils.Slugify(in.Slug)
		taken, err := SlugTaken(ctx, tx, &models.Research{}, slug, excludeID)
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
	return UniqueSlug(ctx, tx, &models.Research{}, utils.Slugify(title), excludeID)
}

func (r *ResearchRepository) replaceTags(tx *gorm.DB, item *models.Research, ids []uint) error {
	tags := []models.Tag{}
	if ids = utils.UniqueIDs(ids); len(ids) > 0 {
		if err := tx.Where("id IN ?", ids).Find(&tags).Error; err != nil {
			return err
		}
	}
	return tx.Model(item).Association(RelTags).Replace(tags)
}

// Create inserts a research row with its tags.
func (r *ResearchRepository) Create(ctx context.Context, in ResearchInput) (*models.Research, error) {
	item := &models.Research{Status: models.StatusDraft}
	in.apply(item)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		slug, err := r.resolveSlug(ctx, tx, in, 0)
		if err != nil {
			return err
		}
		item.Slug = slug
		if err := tx.Omit(RelTags, RelCategory).Create(item).Error; err != nil {
			return err
		}
		return r.replaceTags(tx, item, in.TagIDs)
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// Update rewrites the editable fields and returns the row with its previous slug.
func (r *ResearchRepository) Update(ctx context.Context, id uint, in ResearchInput) (*models.Research, string, error) {
	var item models.Research
	var oldSlug string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&item, id).Error; err != nil {
			return notFound(err)
		}
		oldSlug = item.Slug
		in.apply(&item)
		if in.Slug != "" || item.Slug == "" {
			slug, err := r.resolveSlug(ctx, tx, in, id)
			if err != nil {
				return err
			}
			item.Slug = slug
		}
		// Counters are owned by the batcher and must not be overwritten here.
		if err := tx.Model(&item).Select("slug", "title_en", "title_ar", "abstract_en", "abstract_ar",
			"authors", "file_url", "category_id", "is_featured", "status", "published_at").
			Updates(&item).Error; err != nil {
			return err
		}
		return r.replaceTags(tx, &item, in.TagIDs)
	})
	if err != nil {
		return nil, "", err
	}
	return &item, oldSlug, nil
}

// Delete soft-deletes a row and returns it so callers can evict by slug.
func (r *ResearchRepository) Delete(ctx context.Context, id uint) (*models.Research, error) {
	var item models.Research
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&item, id).Error; err != nil {
			return notFound(err)
		}
		return tx.Delete(&item).Error
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// AdminList pages through every row regardless of status, uncached.
func (r *ResearchRepository) AdminList(ctx context.Context, page, size int, status models.Status) (ResearchPage, error) {
	if page < 1 {
		page = 1
	}
	size = clampLimit(size, 20, 100)
	out := ResearchPage{Page: page, PageSize: size, Items: []models.Research{}}
	q := r.db.WithContext(ctx).Model(&models.Research{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Count(&out.Total).Error; err != nil {
		return out, err
	}
	err := q.Order("updated_at DESC").Offset((page - 1) * size).Limit(size).Find(&out.Items).Error
	return out, err
}

// CreateCategory inserts a category. A new category has no research yet and the
// category listing is read uncached, so nothing needs invalidating.
func (r *ResearchRepository) CreateCategory(ctx context.Context, c *models.ResearchCategory) error {
	if c.Slug == "" {
		c.Slug = utils.Slugify(c.NameEn)
	}
	slug, err := UniqueSlug(ctx, r.db, &models.ResearchCategory{}, c.Slug, 0)
	if err != nil {
		return err
	}
	c.Slug = slug
	return r.db.WithContext(ctx).Create(c).Error
}

// Categories lists all categories by English name.
func (r *ResearchRepository) Categories(ctx context.Context) ([]models.ResearchCategory, error) {
	var out []models.ResearchCategory
	err := r.db.WithContext(ctx).Order("name_en").Find(&out).Error
	return out, err
}

// CreateTag inserts a tag.
func (r *ResearchRepository) CreateTag(ctx context.Context, t *models.Tag) error {
	if t.Slug == "" {
		t.Slug = utils.Slugify(t.NameEn)
	}
	slug, err := UniqueSlug(ctx, r.db, &models.Tag{}, t.Slug, 0)
	if err != nil {
		return err
	}
	t.Slug = slug
	return r.db.WithContext(ctx).Create(t).Error
}
