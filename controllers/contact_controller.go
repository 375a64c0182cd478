package controllers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cppla/sitecore/models"
	"github.com/cppla/sitecore/repository"
	"github.com/cppla/sitecore/utils"
)

// ContactOptions tunes abuse protection and notification of the contact form.
type ContactOptions struct {
	Cooldown       time.Duration
	MaxPerIPPerDay int
	NotifyEmail    string
}

// ContactController accepts public inquiries and lets staff triage them.
type ContactController struct {
	repo   *repository.ContactRepository
	redis  *redis.Client
	mailer utils.Mailer
	opts   ContactOptions
	log    *zap.Logger
}

func NewContactController(repo *repository.ContactRepository, rdb *redis.Client, mailer utils.Mailer, opts ContactOptions, log *zap.Logger) *ContactController {
	if log == nil {
		log = zap.NewNop()
	}
	return &ContactController{repo: repo, redis: rdb, mailer: mailer, opts: opts, log: log}
}

// Submit stores an inquiry. The "website" field is a honeypot: humans never see
// it, so a filled value is answered like a success and dropped.
func (c *ContactController) Submit(ctx *gin.Context) {
	var req struct {
		Name    string `json:"name" binding:"required,max=128"`
		Email   string `json:"email" binding:"required,email,max=255"`
		Subject string `json:"subject" binding:"max=255"`
		Message string `json:"message" binding:"required,max=5000"`
		Locale  string `json:"locale"`
		Website string `json:"website"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40030, "invalid request payload")
		return
	}

	ip := ctx.ClientIP()
	if strings.TrimSpace(req.Website) != "" {
		c.log.Info("contact honeypot triggered", zap.String("ip", ip))
		utils.Created(ctx, gin.H{"reference": uuid.NewString()})
		return
	}

	inquiry := &models.ContactInquiry{
		Name:    utils.PlainText(req.Name),
		Email:   strings.TrimSpace(req.Email),
		Subject: utils.PlainText(req.Subject),
		Message: utils.PlainText(req.Message),
		Locale:  models.ParseLocale(req.Locale),
		IP:      ip,
	}
	if inquiry.Name == "" || inquiry.Message == "" {
		utils.Error(ctx, http.StatusBadRequest, 40031, "name and message cannot be empty")
		return
	}

	rc := ctx.Request.Context()
	if !utils.ContactCooldownTry(rc, c.redis, ip, c.opts.Cooldown) {
		utils.Error(ctx, http.StatusTooManyRequests, 42910, "please wait before sending another message")
		return
	}
	if !utils.ContactDailyReserve(rc, c.redis, ip, c.opts.MaxPerIPPerDay) {
		utils.Error(ctx, http.StatusTooManyRequests, 42911, "daily contact limit reached")
		return
	}

	if err := c.repo.Create(rc, inquiry); err != nil {
		utils.ContactDailyRelease(context.WithoutCancel(rc), c.redis, ip)
		c.log.Error("contact inquiry not stored", zap.Error(err))
		utils.Error(ctx, http.StatusInternalServerError, 50030, "failed to submit inquiry")
		return
	}
	c.notify(*inquiry)

	utils.Created(ctx, gin.H{"reference": inquiry.Reference})
}

func (c *ContactController) notify(in models.ContactInquiry) {
	if c.mailer == nil || c.opts.NotifyEmail == "" {
		return
	}
	go func() {
		subject := fmt.Sprintf("New inquiry %s: %s", in.Reference[:8], in.Subject)
		body := fmt.Sprintf("From: %s <%s>\nLocale: %s\nReference: %s\n\n%s\n", in.Name, in.Email, in.Locale, in.Reference, in.Message)
		if err := c.mailer.Send(c.opts.NotifyEmail, subject, body); err != nil {
			c.log.Warn("contact notification failed", zap.String("reference", in.Reference), zap.Error(err))
		}
	}()
}

// List pages through inquiries for staff, optionally filtered by ?status=.
func (c *ContactController) List(ctx *gin.Context) {
	page, size := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	out, err := c.repo.List(ctx.Request.Context(), models.InquiryStatus(ctx.Query("status")), page, size)
	if err != nil {
		repoError(ctx, err, "inquiries")
		return
	}
	utils.Success(ctx, out)
}

func (c *ContactController) Show(ctx *gin.Context) {
	id, ok := parseID(ctx)
	if !ok {
		return
	}
	in, err := c.repo.Get(ctx.Request.Context(), id)
	if err != nil {
		repoError(ctx, err, "inquiry")
		return
	}
	utils.Success(ctx, in)
}

// UpdateStatus moves an inquiry along new -> in_progress -> resolved -> closed.
func (c *ContactController) UpdateStatus(ctx *gin.Context) {
	id, ok := parseID(ctx)
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status" binding:"required"`
		Notes  string `json:"notes" binding:"max=5000"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40032, "invalid request payload")
		return
	}
	in, err := c.repo.Transition(context.WithoutCancel(ctx.Request.Context()), id, models.InquiryStatus(req.Status), utils.PlainText(req.Notes))
	if err != nil {
		repoError(ctx, err, "inquiry")
		return
	}
	c.log.Info("contact inquiry status changed", zap.Uint("id", id), zap.String("status", req.Status), zap.String("by", getUsername(ctx)))
	utils.Success(ctx, in)
}
