package models

import "time"

// Status is the editorial state of publishable content.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
)

// Valid reports whether s is a known editorial state.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPublished, StatusArchived:
		return true
	}
	return false
}

// Locale selects which language variant of bilingual fields to present.
type Locale string

const (
	LocaleEN Locale = "en"
	LocaleAR Locale = "ar"
)

// ParseLocale falls back to English for anything it does not recognise.
func ParseLocale(s string) Locale {
	if Locale(s) == LocaleAR {
		return LocaleAR
	}
	return LocaleEN
}

// Pick returns the variant for l, falling back to the other language when empty.
func (l Locale) Pick(en, ar string) string {
	if l == LocaleAR && ar != "" {
		return ar
	}
	if en == "" {
		return ar
	}
	return en
}

// PublishedStamp returns the publication time to store for content entering
// status s, keeping the first one once set.
func PublishedStamp(s Status, at *time.Time) *time.Time {
	if s == StatusPublished && at == nil {
		now := time.Now()
		return &now
	}
	return at
}
