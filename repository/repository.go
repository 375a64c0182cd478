// Package repository holds the gorm-backed data access for published content.
// Read methods go through the shared content cache using the cachekeys contract;
// write methods only touch the database, and callers invalidate after commit.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/sitecore/cache"
	"github.com/cppla/sitecore/utils"
)

// ErrNotFound is returned when no live row matches.
var ErrNotFound = errors.New("record not found")

// ErrSlugTaken is returned when an explicit slug collides with another row.
var ErrSlugTaken = errors.New("slug already in use")

// Relations that read methods may preload. Anything else is ignored.
const (
	RelCategory = "Category"
	RelTags     = "Tags"
)

type base struct {
	db    *gorm.DB
	store cache.Store
	ttl   time.Duration
	log   *zap.Logger
}

func newBase(db *gorm.DB, store cache.Store, ttl time.Duration, log *zap.Logger) base {
	if ttl <= 0 {
		ttl = cache.DefaultTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return base{db: db, store: store, ttl: ttl, log: log}
}

// canonicalSlug reports whether slug is spelled exactly as stored slugs are.
// MySQL compares slugs case-insensitively, so any other spelling could load a
// row under a cache key that invalidation never names.
func canonicalSlug(slug string) bool {
	return slug != "" && utils.Slugify(slug) == slug
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// UniqueSlug returns root, or root-2, root-3 ... for the first candidate not used
// by another row of model. Soft-deleted rows still hold their slug.
func UniqueSlug(ctx context.Context, db *gorm.DB, model interface{}, root string, excludeID uint) (string, error) {
	if root == "" {
		root = "item-" + strconv.FormatInt(time.Now().Unix(), 10)
	}
	candidate := root
	for i := 2; i < 1000; i++ {
		var n int64
		q := db.WithContext(ctx).Unscoped().Model(model).Where("slug = ?", candidate)
		if excludeID != 0 {
			q = q.Where("id <> ?", excludeID)
		}
		if err := q.Count(&n).Error; err != nil {
			return "", err
		}
		if n == 0 {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", root, i)
	}
	return "", ErrSlugTaken
}

// SlugTaken reports whether slug belongs to a row other than excludeID.
func SlugTaken(ctx context.Context, db *gorm.DB, model interface{}, slug string, excludeID uint) (bool, error) {
	var n int64
	q := db.WithContext(ctx).Unscoped().Model(model).Where("slug = ?", slug)
	if excludeID != 0 {
		q = q.Where("id <> ?", excludeID)
	}
	if err := q.Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func relations(rel []string) []string {
	out := make([]string, 0, len(rel))
	for _, r := range rel {
		if r == RelCategory || r == RelTags {
			out = append(out, r)
		}
	}
	return out
}

func preload(q *gorm.DB, rel []string) *gorm.DB {
	for _, r := range rel {
		q = q.Preload(r)
	}
	return q
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
