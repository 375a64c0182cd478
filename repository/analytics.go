package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/sitecore/models"
)

// PathCount is the hit total of one path.
type PathCount struct {
	Path  string `json:"path"`
	Count int64  `json:"count"`
}

// Analytics aggregates per-day path hits recorded by the page view middleware.
type Analytics struct {
	db  *gorm.DB
	now func() time.Time
}

func NewAnalytics(db *gorm.DB) *Analytics {
	return &Analytics{db: db, now: time.Now}
}

func (a *Analytics) today() time.Time {
	now := a.now().In(time.Local)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

// Record adds one hit for path today. The upsert keeps concurrent requests from
// colliding on the (date, path) unique index.
func (a *Analytics) Record(ctx context.Context, path string) error {
	return a.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "date"}, {Name: "path"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"count": gorm.Expr("count + 1"), "updated_at": a.now()}),
	}).Create(&models.PageView{Date: a.today(), Path: path, Count: 1}).Error
}

// Today sums every hit recorded today.
func (a *Analytics) Today(ctx context.Context) (int64, error) {
	var n int64
	err := a.db.WithContext(ctx).Model(&models.PageView{}).
		Where("date = ?", a.today()).
		Select("COALESCE(SUM(count), 0)").
		Scan(&n).Error
	return n, err
}

// TopPaths lists the most requested paths over the last days days.
func (a *Analytics) TopPaths(ctx context.Context, days, limit int) ([]PathCount, error) {
	out := []PathCount{}
	since := a.today().AddDate(0, 0, -(days - 1))
	err := a.db.WithContext(ctx).Model(&models.PageView{}).
		Select("path, SUM(count) AS count").
		Where("date >= ?", since).
		Group("path").
		Order("count DESC").
		Limit(clampLimit(limit, 10, 100)).
		Scan(&out).Error
	return out, err
}
