package routes

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cppla/sitecore/cache"
	"github.com/cppla/sitecore/cachekeys"
	"github.com/cppla/sitecore/config"
	"github.com/cppla/sitecore/counter"
	"github.com/cppla/sitecore/invalidation"
	"github.com/cppla/sitecore/models"
	"github.com/cppla/sitecore/repository"
	"github.com/cppla/sitecore/utils"
)

func newEngine(t *testing.T) http.Handler {
	t.Helper()
	config.Set(config.AppConfig{JWTSecret: "routes-secret", GinMode: "test", GinPath: filepath.Join(t.TempDir(), "gin.log")})

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "site.db")), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatal(err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := config.Migrate(db, models.All()...); err != nil {
		t.Fatal(err)
	}

	store := cache.NewMemoryStore(100, time.Hour)
	router := invalidation.NewRouter(store, nil)
	router.DependOn(repository.HomeSummaryKey, cachekeys.Page, cachekeys.Research)
	research := repository.NewResearchRepository(db, store, time.Hour, nil)
	batcher := counter.NewBatcher(counter.NewMemoryPendingStore(nil), research, nil)

	return SetupRouter(Deps{DB: db, Store: store, Router: router, Batcher: batcher})
}

func call(h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestAdminRequiresStaffRole(t *testing.T) {
	h := newEngine(t)
	body := `{"title_en":"Governance","status":"published","show_in_menu":true}`
	if w := call(h, http.MethodPost, "/api/v1/admin/pages", "", body); w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous: %d", w.Code)
	}
	visitor, _ := utils.GenerateToken(9, "guest", "member", time.Hour)
	if w := call(h, http.MethodPost, "/api/v1/admin/pages", visitor, body); w.Code != http.StatusForbidden {
		t.Fatalf("member: %d", w.Code)
	}
	editor, _ := utils.GenerateToken(1, "huda", "editor", time.Hour)
	if w := call(h, http.MethodPost, "/api/v1/admin/pages", editor, body); w.Code != http.StatusCreated {
		t.Fatalf("editor: %d %s", w.Code, w.Body.String())
	}
}

func TestHomeReflectsAdminWrites(t *testing.T) {
	h := newEngine(t)
	admin, _ := utils.GenerateToken(1, "root", "admin", time.Hour)

	var home struct {
		Data repository.HomeSummary `json:"data"`
	}
	w := call(h, http.MethodGet, "/api/v1/home", "", "")
	if err := json.Unmarshal(w.Body.Bytes(), &home); err != nil || len(home.Data.Menu) != 0 {
		t.Fatalf("empty home: %v %s", err, w.Body.String())
	}

	call(h, http.MethodPost, "/api/v1/admin/pages", admin, `{"title_en":"About","title_ar":"من نحن","status":"published","show_in_menu":true}`)
	call(h, http.MethodPost, "/api/v1/admin/research", admin, `{"title_en":"Outlook","status":"published","is_featured":true}`)

	w = call(h, http.MethodGet, "/api/v1/home", "", "")
	if err := json.Unmarshal(w.Body.Bytes(), &home); err != nil {
		t.Fatal(err)
	}
	if len(home.Data.Menu) != 1 || len(home.Data.Featured) != 1 || home.Data.Research.Published != 1 {
		t.Fatalf("home not refreshed: %+v", home.Data)
	}

	w = call(h, http.MethodGet, "/api/v1/menu?lang=ar", "", "")
	if !strings.Contains(w.Body.String(), "من نحن") {
		t.Fatalf("arabic menu: %s", w.Body.String())
	}
}

func TestOperationalEndpoints(t *testing.T) {
	h := newEngine(t)
	if w := call(h, http.MethodGet, "/health", "", ""); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"cache_strategy":"tag"`) {
		t.Fatalf("health: %d %s", w.Code, w.Body.String())
	}
	if w := call(h, http.MethodGet, "/metrics", "", ""); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "sitecore_cache_hits_total") {
		t.Fatalf("metrics: %d", w.Code)
	}
	if w := call(h, http.MethodGet, "/nope", "", ""); w.Code != http.StatusNotFound {
		t.Fatalf("no route: %d", w.Code)
	}
}
