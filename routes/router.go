package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/sitecore/cache"
	"github.com/cppla/sitecore/config"
	"github.com/cppla/sitecore/controllers"
	"github.com/cppla/sitecore/counter"
	"github.com/cppla/sitecore/invalidation"
	"github.com/cppla/sitecore/middleware"
	"github.com/cppla/sitecore/repository"
	"github.com/cppla/sitecore/utils"
)

// Deps carries the long-lived services the HTTP layer is built on.
type Deps struct {
	DB      *gorm.DB
	Store   cache.Store
	Router  *invalidation.Router
	Batcher *counter.Batcher
	Redis   *redis.Client
	Mailer  utils.Mailer
	Log     *zap.Logger
}

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(d Deps) *gin.Engine {
	cfg := config.Get()
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}

	r := gin.New()
	gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	if err == nil {
		r.Use(utils.Ginzap(gl, time.RFC3339, true))
		r.Use(utils.RecoveryWithZap(gl, false))
	} else {
		r.Use(gin.Recovery())
	}

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "Accept-Language"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	researchRepo := repository.NewResearchRepository(d.DB, d.Store, ttl, d.Log)
	pageRepo := repository.NewPageRepository(d.DB, d.Store, ttl, d.Log)
	home := repository.NewHome(pageRepo, researchRepo)
	analytics := repository.NewAnalytics(d.DB)

	researchController := controllers.NewResearchController(researchRepo, d.Batcher)
	pageController := controllers.NewPageController(pageRepo)
	statsController := controllers.NewStatsController(researchRepo, pageRepo, home, analytics)
	contactController := controllers.NewContactController(repository.NewContactRepository(d.DB), d.Redis, d.Mailer,
		controllers.ContactOptions{
			Cooldown:       time.Duration(cfg.ContactCooldownSec) * time.Second,
			MaxPerIPPerDay: cfg.ContactMaxPerIPPerDay,
			NotifyEmail:    cfg.ContactNotifyEmail,
		}, d.Log)
	adminController := controllers.NewAdminController(researchRepo, pageRepo, d.Router, d.Batcher, d.Log)

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok", "cache_strategy": d.Router.Strategy().String()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	api.Use(middleware.PageViewRecorder(analytics, d.Log, "/api/v1/pages", "/api/v1/research"))
	api.Use(middleware.RateLimitMiddleware(cfg.RateLimitPerMinute))

	api.GET("/home", statsController.Home)
	api.GET("/stats", statsController.GetStats)
	api.GET("/stats/top", statsController.TopPaths)

	api.GET("/menu", pageController.Menu)
	api.GET("/pages", pageController.List)
	api.GET("/pages/:slug", pageController.Show)

	research := api.Group("/research")
	research.GET("", researchController.List)
	research.GET("/categories", researchController.Categories)
	research.GET("/featured", researchController.Featured())
	research.GET("/popular", researchController.Popular())
	research.GET("/latest", researchController.Latest())
	research.GET("/most-downloaded", researchController.MostDownloaded())
	research.GET("/:slug", researchController.Show)
	research.GET("/:slug/download", researchController.Download)

	// Contact gets its own tighter bucket on top of the API-wide one.
	api.POST("/contact", middleware.RateLimitMiddleware(5), contactController.Submit)

	admin := api.Group("/admin")
	admin.Use(middleware.AuthRequired(cfg.AdminRoles...))
	admin.GET("/research", adminController.ListResearch)
	admin.GET("/research/:id", adminController.GetResearch)
	admin.POST("/research", adminController.CreateResearch)
	admin.PUT("/research/:id", adminController.UpdateResearch)
	admin.DELETE("/research/:id", adminController.DeleteResearch)
	admin.POST("/categories", adminController.CreateCategory)
	admin.POST("/tags", adminController.CreateTag)
	admin.GET("/pages", adminController.ListPages)
	admin.POST("/pages", adminController.CreatePage)
	admin.PUT("/pages/:id", adminController.UpdatePage)
	admin.DELETE("/pages/:id", adminController.DeletePage)
	admin.GET("/contact", contactController.List)
	admin.GET("/contact/:id", contactController.Show)
	admin.PATCH("/contact/:id/status", contactController.UpdateStatus)
	admin.POST("/counters/flush", adminController.FlushCounters)
	admin.GET("/cache", adminController.CacheInfo)

	r.NoRoute(func(ctx *gin.Context) {
		utils.Error(ctx, http.StatusNotFound, 40400, "route not found")
	})

	return r
}
