package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rajivgeraev/flippy-swap/internal/config"
	"github.com/rajivgeraev/flippy-swap/internal/models"
	"github.com/rajivgeraev/flippy-swap/internal/storage"
)

// Mailer отправляет одно письмо
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// UserLookup находит контактные данные пользователя
type UserLookup interface {
	GetUser(ctx context.Context, id uuid.UUID) (models.User, error)
}

// EmailSink дублирует уведомления на почту пользователя
type EmailSink struct {
	users  UserLookup
	mailer Mailer
	log    *zap.Logger
}

func NewEmailSink(users UserLookup, mailer Mailer, log *zap.Logger) *EmailSink {
	return &EmailSink{users: users, mailer: mailer, log: log}
}

func (s *EmailSink) Emit(ctx context.Context, n Notification) error {
	user, err := s.users.GetUser(ctx, n.UserID)
	if errors.Is(err, storage.ErrUserNotFound) {
		s.log.Debug("письмо не отправлено: пользователь не найден", zap.String("user_id", n.UserID.String()))
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup recipient: %w", err)
	}
	if user.Email == "" {
		return nil
	}

	body := n.Message
	if n.Link != "" {
		body += "\n\n" + n.Link
	}
	return s.mailer.Send(ctx, user.Email, n.Title, body)
}

// SMTPMailer отправляет письма через SMTP-сервер
type SMTPMailer struct {
	host string
	addr string
	from string
	auth smtp.Auth
}

// NewSMTPMailer создаёт почтовый клиент. Без имени пользователя авторизация не выполняется.
func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	m := &SMTPMailer{
		host: cfg.Host,
		addr: net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		from: cfg.From,
	}
	if cfg.Username != "" {
		m.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return m
}

func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", m.addr)
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, m.host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: m.host}); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}
	if m.auth != nil {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(m.auth); err != nil {
				return fmt.Errorf("smtp auth: %w", err)
			}
		}
	}

	if err := c.Mail(m.from); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write([]byte(buildMessage(m.from, to, subject, body))); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	return c.Quit()
}

func buildMessage(from, to, subject, body string) string {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return b.String()
}
