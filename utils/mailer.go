package utils

import (
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/cppla/sitecore/config"
)

// ErrMailDisabled is returned when no SMTP relay is configured.
var ErrMailDisabled = errors.New("smtp not configured")

// Mailer delivers plain text notifications.
type Mailer interface {
	Send(to, subject, body string) error
}

// SMTPMailer sends through one SMTP relay, upgrading with STARTTLS when TLS is set.
type SMTPMailer struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	TLS      bool
	Timeout  time.Duration
}

// NewSMTPMailer reads the relay settings. The sender name falls back to the site name.
func NewSMTPMailer(cfg config.AppConfig) *SMTPMailer {
	name := cfg.SMTPFromName
	if name == "" {
		name = cfg.SiteName
	}
	return &SMTPMailer{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: name,
		TLS:      cfg.SMTPTLS,
		Timeout:  15 * time.Second,
	}
}

// Send implements Mailer.
func (m *SMTPMailer) Send(to, subject, body string) error {
	if m.Host == "" || m.From == "" {
		return ErrMailDisabled
	}
	from := m.From
	if m.FromName != "" {
		from = fmt.Sprintf("%s <%s>", mime.BEncoding.Encode("UTF-8", m.FromName), m.From)
	}
	msg := buildMessage(from, to, subject, body)
	addr := net.JoinHostPort(m.Host, strconv.Itoa(m.Port))

	var auth smtp.Auth
	if m.Username != "" {
		auth = smtp.PlainAuth("", m.Username, m.Password, m.Host)
	}
	if !m.TLS {
		return smtp.SendMail(addr, auth, m.From, []string{to}, msg)
	}
	return m.sendStartTLS(addr, auth, to, msg)
}

func (m *SMTPMailer) sendStartTLS(addr string, auth smtp.Auth, to string, msg []byte) error {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return fmt.Errorf("smtp dial %s: %w", addr, err)
	}
	_ = conn.SetDeadline(time.Now().Add(m.Timeout))
	c, err := smtp.NewClient(conn, m.Host)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); !ok {
		return fmt.Errorf("smtp %s: STARTTLS not offered", addr)
	}
	if err := c.StartTLS(&tls.Config{ServerName: m.Host, MinVersion: tls.VersionTLS12}); err != nil {
		return err
	}
	if auth != nil {
		if err := c.Auth(auth); err != nil {
			return err
		}
	}
	if err := c.Mail(m.From); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

// buildMessage renders RFC 5322 headers; non-ASCII subjects are B-encoded.
func buildMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	header := func(k, v string) { b.WriteString(k + ": " + v + "\r\n") }
	header("From", from)
	header("To", to)
	header("Subject", mime.BEncoding.Encode("UTF-8", subject))
	header("Date", time.Now().UTC().Format(time.RFC1123Z))
	header("MIME-Version", "1.0")
	header("Content-Type", "text/plain; charset=UTF-8")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}
