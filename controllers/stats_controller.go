package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/cppla/sitecore/repository"
	"github.com/cppla/sitecore/utils"
)

// StatsController exposes catalogue statistics and the landing page summary.
type StatsController struct {
	research  *repository.ResearchRepository
	pages     *repository.PageRepository
	home      *repository.Home
	analytics *repository.Analytics
}

func NewStatsController(research *repository.ResearchRepository, pages *repository.PageRepository, home *repository.Home, analytics *repository.Analytics) *StatsController {
	return &StatsController{research: research, pages: pages, home: home, analytics: analytics}
}

// GetStats returns aggregate counts. Failing sections fall back to zero values
// instead of failing the whole endpoint.
func (s *StatsController) GetStats(ctx *gin.Context) {
	rc := ctx.Request.Context()
	research, err := s.research.Statistics(rc)
	if err != nil {
		_ = ctx.Error(err)
	}
	pages, err := s.pages.Statistics(rc)
	if err != nil {
		_ = ctx.Error(err)
	}
	today, err := s.analytics.Today(rc)
	if err != nil {
		today = 0
	}
	utils.Success(ctx, gin.H{
		"research":    research,
		"pages":       pages,
		"daily_views": today,
	})
}

// TopPaths lists the most requested content over ?days= (default 7).
func (s *StatsController) TopPaths(ctx *gin.Context) {
	days := parseLimit(ctx.Query("days"), 7)
	items, err := s.analytics.TopPaths(ctx.Request.Context(), days, parseLimit(ctx.Query("limit"), 10))
	if err != nil {
		repoError(ctx, err, "analytics")
		return
	}
	utils.Success(ctx, gin.H{"items": items, "days": days})
}

// Home returns the landing page payload.
func (s *StatsController) Home(ctx *gin.Context) {
	summary, err := s.home.Summary(ctx.Request.Context())
	if err != nil {
		repoError(ctx, err, "home")
		return
	}
	utils.Success(ctx, summary)
}
