package controllers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/sitecore/cachekeys"
	"github.com/cppla/sitecore/counter"
	"github.com/cppla/sitecore/invalidation"
	"github.com/cppla/sitecore/models"
	"github.com/cppla/sitecore/repository"
	"github.com/cppla/sitecore/utils"
)

// AdminController holds the staff CRUD endpoints. Every mutation commits first
// and then invalidates, so a reader can never re-cache the old row after eviction.
type AdminController struct {
	research *repository.ResearchRepository
	pages    *repository.PageRepository
	router   *invalidation.Router
	batcher  *counter.Batcher
	log      *zap.Logger
}

func NewAdminController(research *repository.ResearchRepository, pages *repository.PageRepository, router *invalidation.Router, batcher *counter.Batcher, log *zap.Logger) *AdminController {
	if log == nil {
		log = zap.NewNop()
	}
	return &AdminController{research: research, pages: pages, router: router, batcher: batcher, log: log}
}

type researchRequest struct {
	Slug       string `json:"slug" binding:"max=150"`
	TitleEn    string `json:"title_en" binding:"max=255"`
	TitleAr    string `json:"title_ar" binding:"max=255"`
	AbstractEn string `json:"abstract_en"`
	AbstractAr string `json:"abstract_ar"`
	Authors    string `json:"authors" binding:"max=512"`
	FileURL    string `json:"file_url" binding:"omitempty,url,max=512"`
	CategoryID *uint  `json:"category_id"`
	TagIDs     []uint `json:"tag_ids"`
	IsFeatured bool   `json:"is_featured"`
	Status     string `json:"status"`
}

func (req researchRequest) input() repository.ResearchInput {
	return repository.ResearchInput{
		Slug:       req.Slug,
		TitleEn:    utils.PlainText(req.TitleEn),
		TitleAr:    utils.PlainText(req.TitleAr),
		AbstractEn: req.AbstractEn,
		AbstractAr: req.AbstractAr,
		Authors:    utils.PlainText(req.Authors),
		FileURL:    req.FileURL,
		CategoryID: req.CategoryID,
		TagIDs:     req.TagIDs,
		IsFeatured: req.IsFeatured,
		Status:     models.Status(req.Status),
	}
}

func bindContent(ctx *gin.Context, req interface{}, status *string, titleEn, titleAr *string) bool {
	if err := ctx.ShouldBindJSON(req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid request payload")
		return false
	}
	if *status != "" && !models.Status(*status).Valid() {
		utils.Error(ctx, http.StatusBadRequest, 40022, "invalid status")
		return false
	}
	if utils.PlainText(*titleEn) == "" && utils.PlainText(*titleAr) == "" {
		utils.Error(ctx, http.StatusBadRequest, 40021, "a title in at least one language is required")
		return false
	}
	return true
}

// invalidate runs after the write committed and outlives the request.
func (a *AdminController) invalidate(ctx *gin.Context, t cachekeys.EntityType, id uint, slugs ...string) {
	a.router.Invalidate(context.WithoutCancel(ctx.Request.Context()), t, id, slugs...)
}

func (a *AdminController) ListResearch(ctx *gin.Context) {
	page, size := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	out, err := a.research.AdminList(ctx.Request.Context(), page, size, models.Status(ctx.Query("status")))
	if err != nil {
		repoError(ctx, err, "research")
		return
	}
	utils.Success(ctx, out)
}

func (a *AdminController) GetResearch(ctx *gin.Context) {
	id, ok := parseID(ctx)
	if !ok {
		return
	}
	item, err := a.research.Get(ctx.Request.Context(), id, repository.RelCategory, repository.RelTags)
	if err != nil {
		repoError(ctx, err, "research")
		return
	}
	utils.Success(ctx, item)
}

func (a *AdminController) CreateResearch(ctx *gin.Context) {
	var req researchRequest
	if !bindContent(ctx, &req, &req.Status, &req.TitleEn, &req.TitleAr) {
		return
	}
	item, err := a.research.Create(ctx.Request.Context(), req.input())
	if err != nil {
		repoError(ctx, err, "research")
		return
	}
	a.invalidate(ctx, cachekeys.Research, item.ID, item.Slug)
	a.log.Info("research created", zap.Uint("entity_id", item.ID), zap.String("slug", item.Slug), zap.String("by", getUsername(ctx)))
	utils.Created(ctx, item)
}

func (a *AdminController) UpdateResearch(ctx *gin.Context) {
	id, ok := parseID(ctx)
	if !ok {
		return
	}
	var req researchRequest
	if !bindContent(ctx, &req, &req.Status, &req.TitleEn, &req.TitleAr) {
		return
	}
	item, oldSlug, err := a.research.Update(ctx.Request.Context(), id, req.input())
	if err != nil {
		repoError(ctx, err, "research")
		return
	}
	a.invalidate(ctx, cachekeys.Research, item.ID, oldSlug, item.Slug)
	a.log.Info("research updated", zap.Uint("entity_id", item.ID), zap.String("slug", item.Slug), zap.String("by", getUsername(ctx)))
	utils.Success(ctx, item)
}

// DeleteResearch soft-deletes an item, drops its pending counters and evicts it.
func (a *AdminController) DeleteResearch(ctx *gin.Context) {
	id, ok := parseID(ctx)
	if !ok {
		return
	}
	rc := context.WithoutCancel(ctx.Request.Context())
	item, err := a.research.Delete(rc, id)
	if err != nil {
		repoError(ctx, err, "research")
		return
	}
	if err := a.batcher.Discard(rc, id); err != nil {
		a.log.Warn("pending counters not discarded", zap.Uint("entity_id", id), zap.Error(err))
	}
	a.invalidate(ctx, cachekeys.Research, id, item.Slug)
	a.log.Info("research deleted", zap.Uint("entity_id", id), zap.String("by", getUsername(ctx)))
	utils.Success(ctx, gin.H{"id": id})
}

func (a *AdminController) CreateCategory(ctx *gin.Context) {
	var req struct {
		Slug   string `json:"slug" binding:"max=150"`
		NameEn string `json:"name_en" binding:"required,max=128"`
		NameAr string `json:"name_ar" binding:"max=128"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid request payload")
		return
	}
	cat := &models.ResearchCategory{Slug: utils.Slugify(req.Slug), NameEn: utils.PlainText(req.NameEn), NameAr: utils.PlainText(req.NameAr)}
	if err := a.research.CreateCategory(ctx.Request.Context(), cat); err != nil {
		repoError(ctx, err, "category")
		return
	}
	utils.Created(ctx, cat)
}

func (a *AdminController) CreateTag(ctx *gin.Context) {
	var req struct {
		Slug   string `json:"slug" binding:"max=150"`
		NameEn string `json:"name_en" binding:"required,max=64"`
		NameAr string `json:"name_ar" binding:"max=64"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid request payload")
		return
	}
	tag := &models.Tag{Slug: utils.Slugify(req.Slug), NameEn: utils.PlainText(req.NameEn), NameAr: utils.PlainText(req.NameAr)}
	if err := a.research.CreateTag(ctx.Request.Context(), tag); err != nil {
		repoError(ctx, err, "tag")
		return
	}
	utils.Created(ctx, tag)
}

type pageRequest struct {
	Slug       string `json:"slug" binding:"max=150"`
	TitleEn    string `json:"title_en" binding:"max=255"`
	TitleAr    string `json:"title_ar" binding:"max=255"`
	BodyEn     string `json:"body_en"`
	BodyAr     string `json:"body_ar"`
	Status     string `json:"status"`
	ShowInMenu bool   `json:"show_in_menu"`
	MenuOrder  int    `json:"menu_order"`
}

func (req pageRequest) input() repository.PageInput {
	return repository.PageInput{
		Slug:       req.Slug,
		TitleEn:    utils.PlainText(req.TitleEn),
		TitleAr:    utils.PlainText(req.TitleAr),
		BodyEn:     req.BodyEn,
		BodyAr:     req.BodyAr,
		Status:     models.Status(req.Status),
		ShowInMenu: req.ShowInMenu,
		MenuOrder:  req.MenuOrder,
	}
}

func (a *AdminController) ListPages(ctx *gin.Context) {
	items, err := a.pages.AdminList(ctx.Request.Context())
	if err != nil {
		repoError(ctx, err, "pages")
		return
	}
	utils.Success(ctx, gin.H{"items": items})
}

func (a *AdminController) CreatePage(ctx *gin.Context) {
	var req pageRequest
	if !bindContent(ctx, &req, &req.Status, &req.TitleEn, &req.TitleAr) {
		return
	}
	p, err := a.pages.Create(ctx.Request.Context(), req.input())
	if err != nil {
		repoError(ctx, err, "page")
		return
	}
	a.invalidate(ctx, cachekeys.Page, p.ID, p.Slug)
	utils.Created(ctx, p)
}

func (a *AdminController) UpdatePage(ctx *gin.Context) {
	id, ok := parseID(ctx)
	if !ok {
		return
	}
	var req pageRequest
	if !bindContent(ctx, &req, &req.Status, &req.TitleEn, &req.TitleAr) {
		return
	}
	p, oldSlug, err := a.pages.Update(ctx.Request.Context(), id, req.input())
	if err != nil {
		repoError(ctx, err, "page")
		return
	}
	a.invalidate(ctx, cachekeys.Page, p.ID, oldSlug, p.Slug)
	utils.Success(ctx, p)
}

func (a *AdminController) DeletePage(ctx *gin.Context) {
	id, ok := parseID(ctx)
	if !ok {
		return
	}
	p, err := a.pages.Delete(context.WithoutCancel(ctx.Request.Context()), id)
	if err != nil {
		repoError(ctx, err, "page")
		return
	}
	a.invalidate(ctx, cachekeys.Page, id, p.Slug)
	utils.Success(ctx, gin.H{"id": id})
}

// FlushCounters writes every pending view and download count now.
func (a *AdminController) FlushCounters(ctx *gin.Context) {
	res, err := a.batcher.Drain(ctx.Request.Context())
	if err != nil {
		_ = ctx.Error(err)
		utils.Error(ctx, http.StatusServiceUnavailable, 50310, "pending counter store unavailable")
		return
	}
	utils.Success(ctx, res)
}

// CacheInfo reports how the invalidation router evicts on this backend.
func (a *AdminController) CacheInfo(ctx *gin.Context) {
	utils.Success(ctx, gin.H{"strategy": a.router.Strategy().String()})
}
