// Package mail delivers service-desk requests and replies through the service desk's mail intake.
package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"time"

	gomail "github.com/emersion/go-message/mail"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-relay/internal/config"
	"github.com/spec-kit/helpdesk-relay/internal/domain"
	"github.com/spec-kit/helpdesk-relay/internal/markup"
	"github.com/spec-kit/helpdesk-relay/pkg/util/errorutil"
)

// System labels errors produced by this transport.
const System = "smtp"

// Envelope is one message ready for submission.
type Envelope struct {
	From string
	To   []string
	Data []byte
}

// Sender submits an envelope to the mail server.
type Sender interface {
	Send(ctx context.Context, env Envelope) error
}

// Transport composes MIME messages and hands them to a Sender.
type Transport struct {
	cfg    config.SMTPConfig
	sender Sender
	logger *zap.Logger
	now    func() time.Time
}

// NewTransport builds a Transport. A nil sender submits over SMTP using cfg.
func NewTransport(cfg config.SMTPConfig, sender Sender, logger *zap.Logger) *Transport {
	if sender == nil {
		sender = NewSMTPSender(cfg)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transport{cfg: cfg, sender: sender, logger: logger, now: time.Now}
}

// CreateRequest mails a new request to the intake mailbox. The service desk assigns the id, so the
// returned record only carries the subject.
func (t *Transport) CreateRequest(ctx context.Context, p domain.RequestCreatePayload) (domain.RequestRecord, error) {
	if err := t.send(ctx, "create request", p.Subject, p.Description, []string{t.cfg.IntakeTo}); err != nil {
		return domain.RequestRecord{}, err
	}
	return domain.RequestRecord{Subject: p.Subject, Description: p.Description}, nil
}

// AddNotification mails a reply to the intake address. The "[Request ID : id]" subject threads it onto the
// request, and the service desk notifies n.To from there.
func (t *Transport) AddNotification(ctx context.Context, _ string, n domain.NotificationPayload) error {
	to := []string{t.cfg.IntakeTo}
	return t.send(ctx, "add notification", n.Subject, n.Description, to)
}

func (t *Transport) send(ctx context.Context, op, subject, body string, to []string) error {
	data, err := t.compose(subject, body, to)
	if err != nil {
		return errorutil.NewInternalError(err)
	}
	if err := t.sender.Send(ctx, Envelope{From: t.cfg.From, To: to, Data: data}); err != nil {
		return errorutil.NewUpstreamError(System, op, 0, "", err)
	}
	t.logger.Info("mail sent", zap.String("operation", op), zap.String("subject", subject), zap.Strings("to", to))
	return nil
}

func (t *Transport) compose(subject, body string, to []string) ([]byte, error) {
	html, err := markup.ToHTML(body)
	if err != nil {
		return nil, err
	}

	var h gomail.Header
	h.SetDate(t.now())
	h.SetSubject(subject)
	h.SetAddressList("From", []*gomail.Address{{Address: t.cfg.From}})
	rcpts := make([]*gomail.Address, 0, len(to))
	for _, addr := range to {
		rcpts = append(rcpts, &gomail.Address{Address: addr})
	}
	h.SetAddressList("To", rcpts)
	if err := h.GenerateMessageID(); err != nil {
		return nil, err
	}
	h.SetContentType("text/html", map[string]string{"charset": "utf-8"})
	h.Set("Content-Transfer-Encoding", "quoted-printable")

	var buf bytes.Buffer
	w, err := gomail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(w, html); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SMTPSender submits envelopes with net/smtp.
type SMTPSender struct {
	cfg config.SMTPConfig
}

// NewSMTPSender builds an SMTPSender.
func NewSMTPSender(cfg config.SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

// Send dials the server, upgrades with STARTTLS when configured, authenticates and submits env.
func (s *SMTPSender) Send(ctx context.Context, env Envelope) error {
	if len(env.To) == 0 {
		return fmt.Errorf("no recipients specified")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	timeout := s.cfg.Timeout()
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("connect to SMTP server: %w", err)
	}
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return fmt.Errorf("set SMTP deadline: %w", err)
	}
	// Cancellation without a deadline still has to unblock the conversation.
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("read SMTP greeting: %w", err)
	}
	defer client.Close()

	if s.cfg.StartTLS {
		if err := client.StartTLS(&tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12}); err != nil {
			return fmt.Errorf("start TLS: %w", err)
		}
	}
	if s.cfg.User != "" && s.cfg.Password != "" {
		if err := client.Auth(smtp.PlainAuth("", s.cfg.User, s.cfg.Password, s.cfg.Host)); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}
	if err := client.Mail(env.From); err != nil {
		return fmt.Errorf("set sender: %w", err)
	}
	for _, to := range env.To {
		if err := client.Rcpt(to); err != nil {
			return fmt.Errorf("set recipient %s: %w", to, err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("initiate data transfer: %w", err)
	}
	if _, err := w.Write(env.Data); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close data transfer: %w", err)
	}
	return client.Quit()
}
