package notify

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/wolfman30/defense-intake/pkg/logging"
)

// Categories attached to staff alerts so providers can report on them.
const (
	CategoryLeadAlert   = "lead-alert"
	CategoryUrgentAlert = "urgent-lead-alert"
)

// EmailSender delivers one staff alert.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage is a staff alert addressed to one recipient. ReplyTo is
// usually the prospective client's address.
type EmailMessage struct {
	To       string
	ToName   string
	ReplyTo  string
	Subject  string
	Body     string
	HTML     string
	Category string
	LeadID   string
}

const defaultFromName = "Website Intake"

// SendGridConfig holds the SendGrid key and the alert sender identity.
type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// SendGridSender delivers alerts through the SendGrid v3 API.
type SendGridSender struct {
	client *sendgrid.Client
	from   *mail.Email
	logger *logging.Logger
}

// NewSendGridSender returns nil when no API key is configured.
func NewSendGridSender(cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if cfg.APIKey == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = defaultFromName
	}
	return &SendGridSender{
		client: sendgrid.NewSendClient(cfg.APIKey),
		from:   mail.NewEmail(cfg.FromName, cfg.FromEmail),
		logger: logger,
	}
}

// buildSendGridMail tags the message with its category and lead id so
// bounces and opens can be traced back to the lead.
func buildSendGridMail(from *mail.Email, msg EmailMessage) *mail.SGMailV3 {
	m := mail.NewV3Mail()
	m.SetFrom(from)
	m.Subject = msg.Subject

	p := mail.NewPersonalization()
	p.AddTos(mail.NewEmail(msg.ToName, msg.To))
	if msg.LeadID != "" {
		p.SetCustomArg("lead_id", msg.LeadID)
	}
	m.AddPersonalizations(p)

	text := msg.Body
	if text == "" {
		text = msg.Subject
	}
	m.AddContent(mail.NewContent("text/plain", text))
	if msg.HTML != "" {
		m.AddContent(mail.NewContent("text/html", msg.HTML))
	}
	if msg.Category != "" {
		m.AddCategories(msg.Category)
	}
	if msg.ReplyTo != "" {
		m.SetReplyTo(mail.NewEmail("", msg.ReplyTo))
	}
	return m
}

// Send delivers msg. Any 4xx/5xx from SendGrid is an error.
func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("notify: sendgrid client not configured")
	}

	resp, err := s.client.SendWithContext(ctx, buildSendGridMail(s.from, msg))
	if err != nil {
		s.logger.Error("notify: sendgrid request failed", "error", err, "lead_id", msg.LeadID)
		return fmt.Errorf("notify: sendgrid send failed: %w", err)
	}
	if resp.StatusCode >= 400 {
		s.logger.Error("notify: sendgrid rejected alert", "status", resp.StatusCode, "lead_id", msg.LeadID, "category", msg.Category)
		return fmt.Errorf("notify: sendgrid returned status %d", resp.StatusCode)
	}

	s.logger.Info("notify: lead alert emailed", "provider", "sendgrid", "lead_id", msg.LeadID, "category", msg.Category)
	return nil
}

// StubEmailSender only logs. cmd/api falls back to it without a provider.
type StubEmailSender struct {
	logger *logging.Logger
}

func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubEmailSender{logger: logger}
}

func (s *StubEmailSender) Send(_ context.Context, msg EmailMessage) error {
	s.logger.Info("notify: email provider not configured, alert logged only",
		"lead_id", msg.LeadID, "category", msg.Category, "subject", msg.Subject)
	return nil
}

var (
	_ EmailSender = (*SendGridSender)(nil)
	_ EmailSender = (*StubEmailSender)(nil)
)
