package utils

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	sanitizer = bluemonday.UGCPolicy()
	stripper  = bluemonday.StrictPolicy()
)

// Sanitize cleans rich HTML content such as page bodies and abstracts.
func Sanitize(input string) string {
	return sanitizer.Sanitize(input)
}

// PlainText strips all markup, for fields that are never rendered as HTML.
func PlainText(input string) string {
	return strings.TrimSpace(stripper.Sanitize(input))
}
