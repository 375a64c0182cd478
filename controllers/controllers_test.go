package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cppla/sitecore/cache"
	"github.com/cppla/sitecore/cachekeys"
	"github.com/cppla/sitecore/config"
	"github.com/cppla/sitecore/counter"
	"github.com/cppla/sitecore/invalidation"
	"github.com/cppla/sitecore/models"
	"github.com/cppla/sitecore/repository"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type app struct {
	engine   *gin.Engine
	db       *gorm.DB
	research *repository.ResearchRepository
	batcher  *counter.Batcher
	mail     *fakeMailer
	mr       *miniredis.Miniredis
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []string
}

func (m *fakeMailer) Send(to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, subject)
	return nil
}

func newApp(t *testing.T) *app {
	t.Helper()
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

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := cache.NewRedisStore(rdb, "cache:", nil)
	router := invalidation.NewRouter(store, nil)
	router.DependOn(repository.HomeSummaryKey, cachekeys.Page, cachekeys.Research)

	research := repository.NewResearchRepository(db, store, time.Hour, nil)
	pages := repository.NewPageRepository(db, store, time.Hour, nil)
	batcher := counter.NewBatcher(counter.NewRedisPendingStore(rdb, "research"), research, nil)
	mail := &fakeMailer{}

	rc := NewResearchController(research, batcher)
	pc := NewPageController(pages)
	cc := NewContactController(repository.NewContactRepository(db), rdb, mail,
		ContactOptions{Cooldown: time.Minute, MaxPerIPPerDay: 5, NotifyEmail: "staff@example.org"}, nil)
	ac := NewAdminController(research, pages, router, batcher, nil)

	r := gin.New()
	api := r.Group("/api/v1")
	api.GET("/research", rc.List)
	api.GET("/research/popular", rc.Popular())
	api.GET("/research/:slug", rc.Show)
	api.GET("/research/:slug/download", rc.Download)
	api.GET("/pages/:slug", pc.Show)
	api.POST("/contact", cc.Submit)
	admin := api.Group("/admin")
	admin.POST("/research", ac.CreateResearch)
	admin.PUT("/research/:id", ac.UpdateResearch)
	admin.DELETE("/research/:id", ac.DeleteResearch)
	admin.POST("/counters/flush", ac.FlushCounters)
	admin.GET("/contact", cc.List)
	admin.PATCH("/contact/:id/status", cc.UpdateStatus)

	return &app{engine: r, db: db, research: research, batcher: batcher, mail: mail, mr: mr}
}

func (a *app) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.7:4000"
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Code int             `json:"code"`
	Data json.RawMessage `json:"data"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("bad envelope %q: %v", w.Body.String(), err)
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			t.Fatal(err)
		}
	}
}

func (a *app) create(t *testing.T, body gin.H) models.Research {
	t.Helper()
	w := a.do(http.MethodPost, "/api/v1/admin/research", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	var item models.Research
	decode(t, w, &item)
	return item
}

func (a *app) stored(t *testing.T, id uint) models.Research {
	t.Helper()
	item, err := a.research.Get(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	return *item
}

func TestShowCountsViewsInBatches(t *testing.T) {
	a := newApp(t)
	item := a.create(t, gin.H{"title_en": "Sukuk 2024", "status": "published"})

	for i := 0; i < 6; i++ {
		if w := a.do(http.MethodGet, "/api/v1/research/"+item.Slug, nil); w.Code != http.StatusOK {
			t.Fatalf("show: %d", w.Code)
		}
	}
	if got := a.stored(t, item.ID).ViewsCount; got != 5 {
		t.Fatalf("views persisted %d, want 5", got)
	}

	w := a.do(http.MethodPost, "/api/v1/admin/counters/flush", nil)
	var res counter.SweepResult
	decode(t, w, &res)
	if res.Amount != 1 {
		t.Fatalf("flush result %+v", res)
	}
	if got := a.stored(t, item.ID).ViewsCount; got != 6 {
		t.Fatalf("views after flush %d", got)
	}
}

func TestDownloadRedirectsAndCounts(t *testing.T) {
	a := newApp(t)
	item := a.create(t, gin.H{"title_en": "Zakat Guide", "status": "published", "file_url": "https://files.example.org/zakat.pdf"})
	bare := a.create(t, gin.H{"title_en": "No File", "status": "published"})

	for i := 0; i < 3; i++ {
		w := a.do(http.MethodGet, "/api/v1/research/"+item.Slug+"/download", nil)
		if w.Code != http.StatusFound || w.Header().Get("Location") != "https://files.example.org/zakat.pdf" {
			t.Fatalf("download: %d %s", w.Code, w.Header().Get("Location"))
		}
	}
	if got := a.stored(t, item.ID).DownloadsCount; got != 3 {
		t.Fatalf("downloads %d", got)
	}
	if w := a.do(http.MethodGet, "/api/v1/research/"+bare.Slug+"/download", nil); w.Code != http.StatusNotFound {
		t.Fatalf("missing file: %d", w.Code)
	}
}

func TestDraftsAreNotPublic(t *testing.T) {
	a := newApp(t)
	item := a.create(t, gin.H{"title_ar": "ورقة عمل"})
	if w := a.do(http.MethodGet, "/api/v1/research/"+item.Slug, nil); w.Code != http.StatusNotFound {
		t.Fatalf("draft visible: %d", w.Code)
	}
	if w := a.do(http.MethodPost, "/api/v1/admin/research", gin.H{"title_en": ""}); w.Code != http.StatusBadRequest {
		t.Fatalf("empty title accepted: %d", w.Code)
	}
	if w := a.do(http.MethodPost, "/api/v1/admin/research", gin.H{"title_en": "x", "status": "live"}); w.Code != http.StatusBadRequest {
		t.Fatalf("bad status accepted: %d", w.Code)
	}
}

func TestSlugChangeEvictsOldAndNew(t *testing.T) {
	a := newApp(t)
	item := a.create(t, gin.H{"title_en": "Original", "status": "published"})

	if w := a.do(http.MethodGet, "/api/v1/research/original", nil); w.Code != http.StatusOK {
		t.Fatalf("warm: %d", w.Code)
	}

	w := a.do(http.MethodPut, "/api/v1/admin/research/"+itoa(item.ID), gin.H{"title_en": "Renamed", "slug": "renamed", "status": "published"})
	if w.Code != http.StatusOK {
		t.Fatalf("update: %d %s", w.Code, w.Body.String())
	}
	if w := a.do(http.MethodGet, "/api/v1/research/original", nil); w.Code != http.StatusNotFound {
		t.Fatalf("old slug still served: %d", w.Code)
	}
	w = a.do(http.MethodGet, "/api/v1/research/renamed", nil)
	var body struct {
		Research models.Research `json:"research"`
	}
	decode(t, w, &body)
	if w.Code != http.StatusOK || body.Research.TitleEn != "Renamed" {
		t.Fatalf("new slug: %d %+v", w.Code, body.Research)
	}
}

func TestPopularListRefreshesAfterEdit(t *testing.T) {
	a := newApp(t)
	item := a.create(t, gin.H{"title_en": "Listed", "status": "published"})
	var list struct {
		Items []models.Research `json:"items"`
	}
	decode(t, a.do(http.MethodGet, "/api/v1/research/popular", nil), &list)
	if len(list.Items) != 1 {
		t.Fatalf("items %d", len(list.Items))
	}

	a.do(http.MethodPut, "/api/v1/admin/research/"+itoa(item.ID), gin.H{"title_en": "Listed", "status": "archived"})
	decode(t, a.do(http.MethodGet, "/api/v1/research/popular", nil), &list)
	if len(list.Items) != 0 {
		t.Fatal("archived item still listed")
	}
}

func TestDeleteDiscardsPendingCounters(t *testing.T) {
	a := newApp(t)
	item := a.create(t, gin.H{"title_en": "Short Lived", "status": "published"})
	for i := 0; i < 3; i++ {
		a.do(http.MethodGet, "/api/v1/research/"+item.Slug, nil)
	}
	if w := a.do(http.MethodDelete, "/api/v1/admin/research/"+itoa(item.ID), nil); w.Code != http.StatusOK {
		t.Fatalf("delete: %d", w.Code)
	}
	res, err := a.batcher.Drain(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Amount != 0 {
		t.Fatalf("pending counts of deleted item flushed: %+v", res)
	}
	if w := a.do(http.MethodGet, "/api/v1/research/"+item.Slug, nil); w.Code != http.StatusNotFound {
		t.Fatalf("deleted item served: %d", w.Code)
	}
	if w := a.do(http.MethodDelete, "/api/v1/admin/research/"+itoa(item.ID), nil); w.Code != http.StatusNotFound {
		t.Fatalf("second delete: %d", w.Code)
	}
}

func TestContactSubmit(t *testing.T) {
	a := newApp(t)
	msg := gin.H{"name": "Amal", "email": "amal@example.org", "subject": "Partnership", "message": "<b>Hello</b> there", "locale": "ar"}

	w := a.do(http.MethodPost, "/api/v1/contact", msg)
	if w.Code != http.StatusCreated {
		t.Fatalf("submit: %d %s", w.Code, w.Body.String())
	}
	if w := a.do(http.MethodPost, "/api/v1/contact", msg); w.Code != http.StatusTooManyRequests {
		t.Fatalf("cooldown not enforced: %d", w.Code)
	}

	var stored []models.ContactInquiry
	a.db.Find(&stored)
	if len(stored) != 1 || stored[0].Message != "Hello there" || stored[0].Locale != models.LocaleAR {
		t.Fatalf("stored %+v", stored)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		a.mail.mu.Lock()
		n := len(a.mail.sent)
		a.mail.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("notification not sent")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestContactHoneypot(t *testing.T) {
	a := newApp(t)
	w := a.do(http.MethodPost, "/api/v1/contact", gin.H{"name": "bot", "email": "bot@example.org", "message": "spam", "website": "http://spam.example"})
	if w.Code != http.StatusCreated {
		t.Fatalf("honeypot must look like success: %d", w.Code)
	}
	var n int64
	a.db.Model(&models.ContactInquiry{}).Count(&n)
	if n != 0 {
		t.Fatal("honeypot submission stored")
	}
	if w := a.do(http.MethodPost, "/api/v1/contact", gin.H{"name": "x", "email": "not-an-email", "message": "m"}); w.Code != http.StatusBadRequest {
		t.Fatalf("invalid email accepted: %d", w.Code)
	}
}

func TestContactStatusFlow(t *testing.T) {
	a := newApp(t)
	a.do(http.MethodPost, "/api/v1/contact", gin.H{"name": "Omar", "email": "omar@example.org", "message": "question"})
	var in models.ContactInquiry
	a.db.First(&in)

	path := "/api/v1/admin/contact/" + itoa(in.ID) + "/status"
	if w := a.do(http.MethodPatch, path, gin.H{"status": "resolved", "notes": "answered by phone"}); w.Code != http.StatusOK {
		t.Fatalf("resolve: %d %s", w.Code, w.Body.String())
	}
	if w := a.do(http.MethodPatch, path, gin.H{"status": "new"}); w.Code != http.StatusConflict {
		t.Fatalf("reopen as new: %d", w.Code)
	}
	var page repository.InquiryPage
	decode(t, a.do(http.MethodGet, "/api/v1/admin/contact?status=resolved", nil), &page)
	if page.Total != 1 || page.Items[0].Notes != "answered by phone" {
		t.Fatalf("list %+v", page)
	}
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

func TestContactDailyLimit(t *testing.T) {
	a := newApp(t)
	msg := gin.H{"name": "Amal", "email": "amal@example.org", "subject": "Follow-up", "message": "again"}

	for i := 0; i < 5; i++ {
		if w := a.do(http.MethodPost, "/api/v1/contact", msg); w.Code != http.StatusCreated {
			t.Fatalf("submission %d: %d %s", i, w.Code, w.Body.String())
		}
		a.mr.FastForward(time.Minute + time.Second)
	}
	w := a.do(http.MethodPost, "/api/v1/contact", msg)
	if w.Code != http.StatusTooManyRequests || !strings.Contains(w.Body.String(), "42911") {
		t.Fatalf("sixth submission: %d %s", w.Code, w.Body.String())
	}
	var n int64
	a.db.Model(&models.ContactInquiry{}).Count(&n)
	if n != 5 {
		t.Fatalf("stored %d inquiries, want 5", n)
	}
}

func TestMixedCaseSlugNotServed(t *testing.T) {
	a := newApp(t)
	item := a.create(t, gin.H{"title_en": "Sukuk 2024", "status": "published"})

	for _, path := range []string{"/api/v1/research/Sukuk-2024", "/api/v1/research/SUKUK-2024/download"} {
		if w := a.do(http.MethodGet, path, nil); w.Code != http.StatusNotFound {
			t.Errorf("%s: %d", path, w.Code)
		}
	}
	for _, k := range a.mr.Keys() {
		if strings.Contains(k, "Sukuk") || strings.Contains(k, "SUKUK") {
			t.Fatalf("cached under non-canonical slug: %s", k)
		}
	}
	if w := a.do(http.MethodGet, "/api/v1/research/"+item.Slug, nil); w.Code != http.StatusOK {
		t.Fatalf("canonical slug: %d", w.Code)
	}
}
