// Package mail sends transactional email.
package mail

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/Noctocode/worken-ai/internal/config"
)

// Invitation is a pending team invitation addressed to To.
type Invitation struct {
	To          string
	TeamName    string
	InviterName string
	Role        string
	Token       string
}

// Sender delivers invitation mail.
type Sender interface {
	SendTeamInvitation(ctx context.Context, inv Invitation) error
}

// Message is a rendered mail.
type Message struct {
	Subject   string
	HTML      string
	AcceptURL string
}

var invitationTemplate = template.Must(template.New("invitation").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #111;">
  <h2>You're invited to {{.TeamName}}</h2>
  <p>{{.InviterName}} invited you to join <strong>{{.TeamName}}</strong> on WorkenAI as a <strong>{{.Role}}</strong> member.</p>
  <p><a href="{{.AcceptURL}}" style="display:inline-block;padding:10px 16px;background:#111;color:#fff;text-decoration:none;border-radius:6px;">Accept invitation</a></p>
  <p style="font-size: 12px; color: #666;">Or open this link: {{.AcceptURL}}</p>
</body>
</html>`))

// RenderInvitation builds the invitation subject, accept link and body.
func RenderInvitation(inv Invitation, frontendURL string) (Message, error) {
	inviter := strings.TrimSpace(inv.InviterName)
	if inviter == "" {
		inviter = "A team member"
	}
	acceptURL := strings.TrimRight(frontendURL, "/") + "/invite?token=" + url.QueryEscape(inv.Token)

	var buf bytes.Buffer
	err := invitationTemplate.Execute(&buf, struct {
		TeamName    string
		InviterName string
		Role        string
		AcceptURL   string
	}{inv.TeamName, inviter, inv.Role, acceptURL})
	if err != nil {
		return Message{}, fmt.Errorf("rendering invitation: %w", err)
	}

	return Message{
		Subject:   fmt.Sprintf("%s invited you to join %s on WorkenAI", inviter, inv.TeamName),
		HTML:      buf.String(),
		AcceptURL: acceptURL,
	}, nil
}

// SMTPSender sends through an SMTP relay.
type SMTPSender struct {
	dialer      *gomail.Dialer
	from        string
	frontendURL string
	logger      *zap.Logger
}

func NewSMTPSender(cfg config.MailConfig, frontendURL string, logger *zap.Logger) *SMTPSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SMTPSender{
		dialer:      gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password.Value()),
		from:        cfg.From,
		frontendURL: frontendURL,
		logger:      logger,
	}
}

func (s *SMTPSender) SendTeamInvitation(ctx context.Context, inv Invitation) error {
	msg, err := RenderInvitation(inv, s.frontendURL)
	if err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", inv.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTML)

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	// gomail has no context support; abandon the send on timeout.
	errCh := make(chan error, 1)
	go func() { errCh <- s.dialer.DialAndSend(m) }()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("sending invitation mail: %w", err)
		}
		s.logger.Info("invitation mail sent", zap.String("team", inv.TeamName))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("sending invitation mail: %w", ctx.Err())
	}
}

// LogSender logs mail instead of sending it. Used when no SMTP host is configured.
type LogSender struct {
	frontendURL string
	logger      *zap.Logger
}

func NewLogSender(frontendURL string, logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{frontendURL: frontendURL, logger: logger}
}

func (s *LogSender) SendTeamInvitation(_ context.Context, inv Invitation) error {
	msg, err := RenderInvitation(inv, s.frontendURL)
	if err != nil {
		return err
	}
	s.logger.Info("mail transport disabled, invitation not sent",
		zap.String("subject", msg.Subject),
		zap.String("team", inv.TeamName),
		zap.String("role", inv.Role))
	return nil
}

// New picks SMTP when a host is configured.
func New(cfg config.MailConfig, frontendURL string, logger *zap.Logger) Sender {
	if cfg.Host == "" {
		return NewLogSender(frontendURL, logger)
	}
	return NewSMTPSender(cfg, frontendURL, logger)
}
