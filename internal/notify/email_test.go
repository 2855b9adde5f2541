package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

func TestNewSendGridSender_NilWithoutAPIKey(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{
		APIKey:    "",
		FromEmail: "intake@example.com",
	}, nil)

	if sender != nil {
		t.Error("expected nil sender when API key is empty")
	}
}

func TestNewSendGridSender_DefaultFromName(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{
		APIKey:    "test-key",
		FromEmail: "intake@example.com",
	}, nil)

	if sender == nil {
		t.Fatal("expected non-nil sender")
	}
	if sender.from.Name != defaultFromName {
		t.Errorf("expected default from name %q, got %q", defaultFromName, sender.from.Name)
	}
}

func TestBuildSendGridMail_TagsLead(t *testing.T) {
	m := buildSendGridMail(mail.NewEmail("Intake", "intake@example.com"), EmailMessage{
		To:       "staff@example.com",
		ReplyTo:  "jane@example.com",
		Subject:  "URGENT Lead - Jane Doe",
		Body:     "plain",
		HTML:     "<p>html</p>",
		Category: CategoryUrgentAlert,
		LeadID:   "lead-1",
	})

	if len(m.Personalizations) != 1 || len(m.Personalizations[0].To) != 1 || m.Personalizations[0].To[0].Address != "staff@example.com" {
		t.Fatalf("unexpected personalizations %+v", m.Personalizations)
	}
	if got := m.Personalizations[0].CustomArgs["lead_id"]; got != "lead-1" {
		t.Errorf("expected lead_id custom arg, got %q", got)
	}
	if len(m.Categories) != 1 || m.Categories[0] != CategoryUrgentAlert {
		t.Errorf("unexpected categories %v", m.Categories)
	}
	if len(m.Content) != 2 || m.Content[0].Type != "text/plain" || m.Content[1].Value != "<p>html</p>" {
		t.Errorf("unexpected content %+v", m.Content)
	}
	if m.ReplyTo == nil || m.ReplyTo.Address != "jane@example.com" {
		t.Errorf("unexpected reply-to %+v", m.ReplyTo)
	}
}

func TestBuildSendGridMail_PlainOnly(t *testing.T) {
	m := buildSendGridMail(mail.NewEmail("", "intake@example.com"), EmailMessage{To: "staff@example.com", Subject: "New Lead"})
	if len(m.Content) != 1 || m.Content[0].Value != "New Lead" {
		t.Errorf("unexpected content %+v", m.Content)
	}
	if len(m.Categories) != 0 || m.ReplyTo != nil {
		t.Errorf("expected no categories or reply-to, got %v %+v", m.Categories, m.ReplyTo)
	}
}

func TestSendGridSender_Send_NilClient(t *testing.T) {
	var sender *SendGridSender
	err := sender.Send(context.Background(), EmailMessage{To: "staff@example.com", Subject: "Test"})
	if err == nil {
		t.Error("expected error when sender is nil")
	}
}

func TestStubEmailSender_Send(t *testing.T) {
	sender := NewStubEmailSender(nil)
	if err := sender.Send(context.Background(), EmailMessage{To: "staff@example.com", Subject: "Test"}); err != nil {
		t.Errorf("stub sender should not return error, got: %v", err)
	}
}

type mockSES struct {
	input *sesv2.SendEmailInput
	err   error
}

func (m *mockSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	m.input = in
	if m.err != nil {
		return nil, m.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSESSender_Send(t *testing.T) {
	mock := &mockSES{}
	sender := NewSESSender(mock, SESConfig{FromEmail: "intake@example.com", FromName: "Defense Law Group"}, nil)

	err := sender.Send(context.Background(), EmailMessage{
		To:       "staff@example.com",
		ReplyTo:  "jane@example.com",
		Subject:  "New Lead",
		Body:     "plain",
		HTML:     "<p>html</p>",
		Category: CategoryLeadAlert,
		LeadID:   "lead-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mock.input.EmailTags) != 2 || aws.ToString(mock.input.EmailTags[0].Value) != CategoryLeadAlert ||
		aws.ToString(mock.input.EmailTags[1].Value) != "lead-1" {
		t.Errorf("unexpected tags %+v", mock.input.EmailTags)
	}
	if got := aws.ToString(mock.input.FromEmailAddress); got != "Defense Law Group <intake@example.com>" {
		t.Errorf("unexpected from %q", got)
	}
	if len(mock.input.ReplyToAddresses) != 1 || mock.input.ReplyToAddresses[0] != "jane@example.com" {
		t.Errorf("unexpected reply-to %v", mock.input.ReplyToAddresses)
	}
	body := mock.input.Content.Simple.Body
	if aws.ToString(body.Text.Data) != "plain" || aws.ToString(body.Html.Data) != "<p>html</p>" {
		t.Errorf("unexpected body %+v", body)
	}
}

func TestSESSender_SendError(t *testing.T) {
	sender := NewSESSender(&mockSES{err: errors.New("throttled")}, SESConfig{FromEmail: "intake@example.com"}, nil)
	if err := sender.Send(context.Background(), EmailMessage{To: "staff@example.com"}); err == nil {
		t.Fatal("expected error")
	}
	if NewSESSender(nil, SESConfig{}, nil) != nil {
		t.Error("expected nil sender without client")
	}
}
