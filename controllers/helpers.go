package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/sitecore/middleware"
	"github.com/cppla/sitecore/models"
	"github.com/cppla/sitecore/repository"
	"github.com/cppla/sitecore/utils"
)

func parsePagination(pageStr, sizeStr string) (int, int) {
	page := 1
	pageSize := 10
	if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
		page = p
	}
	if s, err := strconv.Atoi(sizeStr); err == nil && s > 0 && s <= 100 {
		pageSize = s
	}
	return page, pageSize
}

func parseLimit(raw string, def int) int {
	if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 50 {
		return n
	}
	return def
}

func parseID(ctx *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil || id == 0 {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid id")
		return 0, false
	}
	return uint(id), true
}

// requestLocale reads ?lang= first, then the Accept-Language header.
func requestLocale(ctx *gin.Context) models.Locale {
	if l := ctx.Query("lang"); l != "" {
		return models.ParseLocale(l)
	}
	if strings.HasPrefix(strings.ToLower(ctx.GetHeader("Accept-Language")), "ar") {
		return models.LocaleAR
	}
	return models.LocaleEN
}

func getUsername(ctx *gin.Context) string {
	return ctx.GetString(middleware.ContextUsernameKey)
}

// repoError maps repository errors onto the response envelope.
func repoError(ctx *gin.Context, err error, what string) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		utils.Error(ctx, http.StatusNotFound, 40400, what+" not found")
	case errors.Is(err, repository.ErrSlugTaken):
		utils.Error(ctx, http.StatusConflict, 40901, "slug already in use")
	case errors.Is(err, repository.ErrInvalidTransition):
		utils.Error(ctx, http.StatusConflict, 40902, "invalid status transition")
	default:
		_ = ctx.Error(err)
		utils.Error(ctx, http.StatusInternalServerError, 50000, "failed to load "+what)
	}
}
