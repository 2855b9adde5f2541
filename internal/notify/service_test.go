package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/defense-intake/internal/leads"
	"github.com/wolfman30/defense-intake/pkg/logging"
)

type mockEmailSender struct {
	mu   sync.Mutex
	sent []EmailMessage
	err  error
}

func (m *mockEmailSender) Send(ctx context.Context, msg EmailMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return m.err
}

type mockSMSSender struct {
	to   []string
	body []string
	err  error
}

func (m *mockSMSSender) SendSMS(ctx context.Context, to, body string) error {
	m.to = append(m.to, to)
	m.body = append(m.body, body)
	return m.err
}

func sampleLead(urgency string) *leads.Lead {
	detail := "my cousin <Bob>"
	return &leads.Lead{
		ID:             "lead-1",
		Name:           "Jane Doe",
		Email:          "jane@example.com",
		Phone:          "7402011444",
		CaseType:       "ovi_dui",
		Urgency:        urgency,
		HowFound:       "referral",
		HowFoundDetail: &detail,
		Message:        "I was pulled over last night",
		LeadSource:     "chat",
		CreatedAt:      time.Date(2026, 3, 14, 22, 0, 0, 0, time.UTC),
	}
}

func TestLeadNotifier_EmailsEveryRecipient(t *testing.T) {
	email := &mockEmailSender{}
	sms := &mockSMSSender{}
	n := NewLeadNotifier(email, sms, LeadNotifierConfig{
		FirmName:        "Defense Law Group",
		EmailRecipients: []string{"a@firm.example", "b@firm.example"},
		UrgentSMSTo:     "+17405550199",
	}, logging.New("error"))

	require.NoError(t, n.NotifyNewLead(context.Background(), sampleLead("soon")))
	require.Len(t, email.sent, 2)
	assert.Equal(t, "a@firm.example", email.sent[0].To)
	assert.Equal(t, "b@firm.example", email.sent[1].To)

	msg := email.sent[0]
	assert.True(t, strings.HasPrefix(msg.Subject, "New Lead - Jane Doe"))
	assert.Equal(t, "jane@example.com", msg.ReplyTo)
	assert.Contains(t, msg.Body, "Phone: (740) 201-1444")
	assert.Contains(t, msg.Body, "Referral detail: my cousin <Bob>")
	assert.Contains(t, msg.HTML, "my cousin &lt;Bob&gt;")
	assert.Equal(t, CategoryLeadAlert, msg.Category)
	assert.Equal(t, "lead-1", msg.LeadID)
	assert.Empty(t, sms.to, "non-urgent leads do not text")
}

func TestLeadNotifier_UrgentSendsSMS(t *testing.T) {
	email := &mockEmailSender{}
	sms := &mockSMSSender{}
	n := NewLeadNotifier(email, sms, LeadNotifierConfig{
		EmailRecipients: []string{"a@firm.example"},
		UrgentSMSTo:     "+17405550199",
	}, nil)

	require.NoError(t, n.NotifyNewLead(context.Background(), sampleLead("urgent")))
	require.Len(t, sms.to, 1)
	assert.Equal(t, "+17405550199", sms.to[0])
	assert.Contains(t, sms.body[0], "URGENT lead: Jane Doe (740) 201-1444")
	assert.True(t, strings.HasPrefix(email.sent[0].Subject, "URGENT Lead"))
	assert.Equal(t, CategoryUrgentAlert, email.sent[0].Category)
}

func TestLeadNotifier_JoinsFailures(t *testing.T) {
	email := &mockEmailSender{err: errors.New("sendgrid 500")}
	sms := &mockSMSSender{err: errors.New("twilio down")}
	n := NewLeadNotifier(email, sms, LeadNotifierConfig{
		EmailRecipients: []string{"a@firm.example"},
		UrgentSMSTo:     "+17405550199",
	}, nil)

	err := n.NotifyNewLead(context.Background(), sampleLead("urgent"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 notification(s) failed")
	assert.ErrorIs(t, err, sms.err)
}

func TestLeadNotifier_NothingConfigured(t *testing.T) {
	n := NewLeadNotifier(nil, nil, LeadNotifierConfig{}, nil)
	assert.NoError(t, n.NotifyNewLead(context.Background(), sampleLead("urgent")))
	assert.Error(t, n.NotifyNewLead(context.Background(), nil))
}
