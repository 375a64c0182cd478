package utils

import (
	"errors"
	"strings"
	"testing"

	"github.com/cppla/sitecore/config"
)

func TestBuildMessageEncodesArabicSubject(t *testing.T) {
	msg := string(buildMessage("Site <noreply@example.org>", "staff@example.org", "استفسار جديد", "body"))
	if !strings.Contains(msg, "Subject: =?UTF-8?b?") {
		t.Fatalf("subject not encoded: %q", msg)
	}
	if !strings.HasSuffix(msg, "\r\n\r\nbody") {
		t.Fatalf("body separator missing: %q", msg)
	}
}

func TestBuildMessageKeepsASCIISubject(t *testing.T) {
	msg := string(buildMessage("a@b", "c@d", "New inquiry", "x"))
	if !strings.Contains(msg, "Subject: New inquiry\r\n") {
		t.Fatalf("ascii subject should be left alone: %q", msg)
	}
}

func TestSMTPMailerDisabled(t *testing.T) {
	m := NewSMTPMailer(config.AppConfig{SiteName: "Institute"})
	if m.FromName != "Institute" {
		t.Fatalf("from name = %q", m.FromName)
	}
	if err := m.Send("staff@example.org", "x", "y"); !errors.Is(err, ErrMailDisabled) {
		t.Fatalf("err = %v", err)
	}
}
