package repository

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/cppla/sitecore/cache"
	"github.com/cppla/sitecore/cachekeys"
	"github.com/cppla/sitecore/models"
)

// HomeSummaryKey caches the landing page payload. It embeds pages and research,
// so the invalidation router must be told it depends on both.
const HomeSummaryKey = "home.summary"

// HomeSummary is everything the landing page renders in one response.
type HomeSummary struct {
	Menu      []models.Page      `json:"menu"`
	Featured  []models.Research  `json:"featured"`
	Latest    []models.Research  `json:"latest"`
	Research  ResearchStatistics `json:"research"`
	Generated time.Time          `json:"generated_at"`
}

// Home composes the landing page from the page and research repositories.
type Home struct {
	pages    *PageRepository
	research *ResearchRepository
	store    cache.Store
	ttl      time.Duration
	log      *zap.Logger
}

func NewHome(pages *PageRepository, research *ResearchRepository) *Home {
	return &Home{pages: pages, research: research, store: research.store, ttl: research.ttl, log: research.log}
}

// Summary returns the cached landing page payload.
func (h *Home) Summary(ctx context.Context) (HomeSummary, error) {
	tags := []string{cachekeys.TagLists(cachekeys.Page), cachekeys.TagLists(cachekeys.Research)}
	return cache.Remember(ctx, h.store, h.log, HomeSummaryKey, h.ttl, tags, func(ctx context.Context) (HomeSummary, error) {
		var s HomeSummary
		var err error
		if s.Menu, err = h.pages.Menu(ctx); err != nil {
			return s, err
		}
		if s.Featured, err = h.research.Featured(ctx, 3); err != nil {
			return s, err
		}
		if s.Latest, err = h.research.Latest(ctx, 5); err != nil {
			return s, err
		}
		if s.Research, err = h.research.Statistics(ctx); err != nil {
			return s, err
		}
		s.Generated = time.Now().UTC()
		return s, nil
	})
}
