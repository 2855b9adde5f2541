package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/wolfman30/defense-intake/internal/intake"
	"github.com/wolfman30/defense-intake/internal/leads"
	"github.com/wolfman30/defense-intake/pkg/logging"
)

// LeadNotifierConfig says who hears about new leads.
type LeadNotifierConfig struct {
	FirmName        string
	EmailRecipients []string
	// UrgentSMSTo receives a text for leads marked urgent.
	UrgentSMSTo string
	Location    *time.Location
}

// LeadNotifier emails staff about every new lead and texts them about urgent ones.
type LeadNotifier struct {
	email  EmailSender
	sms    SMSSender
	cfg    LeadNotifierConfig
	logger *logging.Logger
}

// NewLeadNotifier creates a notifier. Either sender may be nil.
func NewLeadNotifier(email EmailSender, sms SMSSender, cfg LeadNotifierConfig, logger *logging.Logger) *LeadNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &LeadNotifier{email: email, sms: sms, cfg: cfg, logger: logger}
}

// NotifyNewLead sends every configured alert and joins their errors.
func (n *LeadNotifier) NotifyNewLead(ctx context.Context, lead *leads.Lead) error {
	if lead == nil {
		return errors.New("notify: lead required")
	}
	var errs []error

	if n.email != nil && len(n.cfg.EmailRecipients) > 0 {
		msg := n.leadEmail(lead)
		for _, recipient := range n.cfg.EmailRecipients {
			msg.To = recipient
			if err := n.email.Send(ctx, msg); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if lead.Urgent() && n.sms != nil && n.cfg.UrgentSMSTo != "" {
		if err := n.sms.SendSMS(ctx, n.cfg.UrgentSMSTo, n.urgentSMS(lead)); err != nil {
			errs = append(errs, err)
		}
	} else if lead.Urgent() {
		n.logger.Debug("notify: urgent lead but SMS alert not configured", "lead_id", lead.ID)
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d notification(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

func (n *LeadNotifier) leadEmail(lead *leads.Lead) EmailMessage {
	prefix, category := "New Lead", CategoryLeadAlert
	if lead.Urgent() {
		prefix, category = "URGENT Lead", CategoryUrgentAlert
	}
	subject := fmt.Sprintf("%s - %s (%s)", prefix, lead.Name, lead.CaseTypeLabel())

	rows := n.leadRows(lead)
	var text, htmlRows strings.Builder
	for _, row := range rows {
		fmt.Fprintf(&text, "%s: %s\n", row[0], row[1])
		fmt.Fprintf(&htmlRows, "<tr><td style=\"padding:4px 12px 4px 0;\"><strong>%s</strong></td><td>%s</td></tr>",
			html.EscapeString(row[0]), html.EscapeString(row[1]))
	}
	fmt.Fprintf(&text, "\nMessage:\n%s\n", lead.Message)
	if n.cfg.FirmName != "" {
		fmt.Fprintf(&text, "\n- %s website intake", n.cfg.FirmName)
	}

	body := fmt.Sprintf(`<div style="font-family: sans-serif; max-width: 600px;">
<h2>%s</h2>
<table style="border-collapse: collapse; margin: 16px 0;">%s</table>
<p style="white-space: pre-wrap;">%s</p>
</div>`, html.EscapeString(subject), htmlRows.String(), html.EscapeString(lead.Message))

	return EmailMessage{
		ReplyTo:  lead.Email,
		Subject:  subject,
		Body:     text.String(),
		HTML:     body,
		Category: category,
		LeadID:   lead.ID,
	}
}

func (n *LeadNotifier) leadRows(lead *leads.Lead) [][2]string {
	rows := [][2]string{
		{"Name", lead.Name},
		{"Phone", intake.FormatUSPhone(lead.Phone)},
		{"Email", orDash(lead.Email)},
		{"Case type", lead.CaseTypeLabel()},
		{"County", orDash(intake.Label(intake.CountyOptions(), lead.County))},
		{"Urgency", intake.Label(intake.UrgencyOptions(), lead.Urgency)},
		{"Found us via", orDash(intake.Label(intake.ReferralOptions(), lead.HowFound))},
	}
	if lead.HowFoundDetail != nil {
		rows = append(rows, [2]string{"Referral detail", *lead.HowFoundDetail})
	}
	rows = append(rows, [2]string{"Source", lead.LeadSource})
	if lead.CheckpointID != nil {
		rows = append(rows, [2]string{"Checkpoint", *lead.CheckpointID})
	}
	if !lead.CreatedAt.IsZero() {
		rows = append(rows, [2]string{"Received", lead.CreatedAt.In(n.cfg.Location).Format("Jan 2, 2006 3:04 PM MST")})
	}
	return rows
}

func (n *LeadNotifier) urgentSMS(lead *leads.Lead) string {
	return truncate(fmt.Sprintf("URGENT lead: %s %s - %s. %s",
		lead.Name, intake.FormatUSPhone(lead.Phone), lead.CaseTypeLabel(), lead.Message), 300)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

var _ leads.Notifier = (*LeadNotifier)(nil)
