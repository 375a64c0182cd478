package controllers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cppla/sitecore/counter"
	"github.com/cppla/sitecore/models"
	"github.com/cppla/sitecore/repository"
	"github.com/cppla/sitecore/utils"
)

// ResearchController serves the public research catalogue.
type ResearchController struct {
	repo    *repository.ResearchRepository
	batcher *counter.Batcher
}

func NewResearchController(repo *repository.ResearchRepository, batcher *counter.Batcher) *ResearchController {
	return &ResearchController{repo: repo, batcher: batcher}
}

// List returns a page of published research, optionally filtered by ?category=.
func (r *ResearchController) List(ctx *gin.Context) {
	page, size := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	var categoryID uint
	if c, err := strconv.ParseUint(ctx.Query("category"), 10, 64); err == nil {
		categoryID = uint(c)
	}
	out, err := r.repo.Published(ctx.Request.Context(), page, size, categoryID)
	if err != nil {
		repoError(ctx, err, "research")
		return
	}
	utils.Success(ctx, out)
}

func (r *ResearchController) listing(fetch func(context.Context, int) ([]models.Research, error)) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		items, err := fetch(ctx.Request.Context(), parseLimit(ctx.Query("limit"), 6))
		if err != nil {
			repoError(ctx, err, "research")
			return
		}
		if items == nil {
			items = []models.Research{}
		}
		utils.Success(ctx, gin.H{"items": items})
	}
}

func (r *ResearchController) Featured() gin.HandlerFunc       { return r.listing(r.repo.Featured) }
func (r *ResearchController) Popular() gin.HandlerFunc        { return r.listing(r.repo.Popular) }
func (r *ResearchController) Latest() gin.HandlerFunc         { return r.listing(r.repo.Latest) }
func (r *ResearchController) MostDownloaded() gin.HandlerFunc { return r.listing(r.repo.MostDownloaded) }

// Show returns one published item and counts a view.
func (r *ResearchController) Show(ctx *gin.Context) {
	item, err := r.repo.FindPublishedBySlug(ctx.Request.Context(), ctx.Param("slug"), repository.RelCategory, repository.RelTags)
	if err != nil {
		repoError(ctx, err, "research")
		return
	}
	r.record(ctx, item.ID, counter.Views)
	utils.Success(ctx, gin.H{"research": item, "locale": requestLocale(ctx)})
}

// Download counts a download and redirects to the stored file.
func (r *ResearchController) Download(ctx *gin.Context) {
	item, err := r.repo.FindPublishedBySlug(ctx.Request.Context(), ctx.Param("slug"))
	if err != nil {
		repoError(ctx, err, "research")
		return
	}
	if item.FileURL == "" {
		utils.Error(ctx, http.StatusNotFound, 40410, "no file attached")
		return
	}
	r.record(ctx, item.ID, counter.Downloads)
	ctx.Redirect(http.StatusFound, item.FileURL)
}

// Categories lists research categories.
func (r *ResearchController) Categories(ctx *gin.Context) {
	items, err := r.repo.Categories(ctx.Request.Context())
	if err != nil {
		repoError(ctx, err, "categories")
		return
	}
	utils.Success(ctx, gin.H{"items": items})
}

// record counts an event without failing the request; the batcher logs its own errors.
// The client may hang up mid-flush, so the request's cancellation is dropped.
func (r *ResearchController) record(ctx *gin.Context, id uint, kind counter.Kind) {
	_ = r.batcher.RecordEvent(context.WithoutCancel(ctx.Request.Context()), id, kind)
}
