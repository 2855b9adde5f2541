package notify

import (
	"context"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"github.com/wolfman30/defense-intake/internal/intake"
	"github.com/wolfman30/defense-intake/pkg/logging"
)

// SMSSender sends text alerts to firm staff.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioConfig holds Twilio credentials and the sending number.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

// TwilioSMSSender sends SMS through the Twilio REST API.
type TwilioSMSSender struct {
	api    messageCreator
	from   string
	logger *logging.Logger
}

// NewTwilioSMSSender returns nil when credentials are missing.
func NewTwilioSMSSender(cfg TwilioConfig, logger *logging.Logger) *TwilioSMSSender {
	if cfg.AccountSID == "" || cfg.AuthToken == "" || cfg.FromNumber == "" {
		return nil
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return newTwilioSMSSender(client.Api, cfg.FromNumber, logger)
}

func newTwilioSMSSender(api messageCreator, from string, logger *logging.Logger) *TwilioSMSSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &TwilioSMSSender{api: api, from: toE164(from), logger: logger}
}

// SendSMS sends body to a US or E.164 number.
func (s *TwilioSMSSender) SendSMS(ctx context.Context, to, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(toE164(to))
	params.SetFrom(s.from)
	params.SetBody(body)

	resp, err := s.api.CreateMessage(params)
	if err != nil {
		s.logger.Error("twilio send failed", "error", err, "to", to)
		return fmt.Errorf("notify: twilio send failed: %w", err)
	}
	sid := ""
	if resp != nil && resp.Sid != nil {
		sid = *resp.Sid
	}
	s.logger.Info("sms sent via twilio", "to", to, "sid", sid)
	return nil
}

// StubSMSSender logs but doesn't send.
type StubSMSSender struct {
	logger *logging.Logger
}

// NewStubSMSSender creates a stub SMS sender.
func NewStubSMSSender(logger *logging.Logger) *StubSMSSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubSMSSender{logger: logger}
}

// SendSMS logs but doesn't send.
func (s *StubSMSSender) SendSMS(ctx context.Context, to, body string) error {
	s.logger.Info("stub SMS sender: would send", "to", to, "body_preview", truncate(body, 50))
	return nil
}

func toE164(number string) string {
	digits := intake.NormalizePhoneDigits(number)
	if digits == "" {
		return number
	}
	if len(digits) == 10 {
		return "+1" + digits
	}
	return "+" + digits
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}

var (
	_ SMSSender = (*TwilioSMSSender)(nil)
	_ SMSSender = (*StubSMSSender)(nil)
)
