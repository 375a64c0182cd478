package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/cppla/sitecore/models"
	"github.com/cppla/sitecore/repository"
	"github.com/cppla/sitecore/utils"
)

// PageController serves published static pages.
type PageController struct {
	repo *repository.PageRepository
}

func NewPageController(repo *repository.PageRepository) *PageController {
	return &PageController{repo: repo}
}

func (p *PageController) List(ctx *gin.Context) {
	items, err := p.repo.Published(ctx.Request.Context())
	if err != nil {
		repoError(ctx, err, "pages")
		return
	}
	if items == nil {
		items = []models.Page{}
	}
	utils.Success(ctx, gin.H{"items": items})
}

func (p *PageController) Menu(ctx *gin.Context) {
	items, err := p.repo.Menu(ctx.Request.Context())
	if err != nil {
		repoError(ctx, err, "menu")
		return
	}
	locale := requestLocale(ctx)
	type entry struct {
		Slug  string `json:"slug"`
		Title string `json:"title"`
	}
	out := make([]entry, 0, len(items))
	for _, it := range items {
		out = append(out, entry{Slug: it.Slug, Title: locale.Pick(it.TitleEn, it.TitleAr)})
	}
	utils.Success(ctx, gin.H{"items": out, "locale": locale})
}

func (p *PageController) Show(ctx *gin.Context) {
	page, err := p.repo.FindPublishedBySlug(ctx.Request.Context(), ctx.Param("slug"))
	if err != nil {
		repoError(ctx, err, "page")
		return
	}
	utils.Success(ctx, gin.H{"page": page, "locale": requestLocale(ctx)})
}
