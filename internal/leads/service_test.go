package leads

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/defense-intake/internal/intake"
	"github.com/wolfman30/defense-intake/pkg/logging"
)

type stubVerifier struct {
	err error
}

func (s stubVerifier) Verify(context.Context, string, string) error { return s.err }

type ipVerifier struct {
	remoteIPs []string
}

func (v *ipVerifier) Verify(_ context.Context, _ string, remoteIP string) error {
	v.remoteIPs = append(v.remoteIPs, remoteIP)
	return nil
}

type recordingFanout struct {
	published []*Lead
	notified  []*Lead
	outcomes  []string
	pubErr    error
}

func (r *recordingFanout) PublishLeadCreated(_ context.Context, l *Lead) error {
	r.published = append(r.published, l)
	return r.pubErr
}

func (r *recordingFanout) NotifyNewLead(_ context.Context, l *Lead) error {
	r.notified = append(r.notified, l)
	return errors.New("smtp down")
}

func (r *recordingFanout) ObserveSubmission(source, outcome string) {
	r.outcomes = append(r.outcomes, source+"/"+outcome)
}

func newService(deps ServiceDeps) *Service {
	if deps.Repo == nil {
		deps.Repo = NewInMemoryRepository()
	}
	deps.Logger = logging.New("error")
	return NewService(deps)
}

func TestService_SubmitFansOutBestEffort(t *testing.T) {
	fan := &recordingFanout{pubErr: errors.New("queue unavailable")}
	svc := newService(ServiceDeps{Publisher: fan, Notifier: fan, Recorder: fan})

	lead, err := svc.Submit(context.Background(), &CreateLeadRequest{Payload: janePayload(), IPAddress: "203.0.113.9"})
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.9", lead.IPAddress)
	require.Len(t, fan.published, 1)
	require.Len(t, fan.notified, 1)
	assert.Equal(t, lead.ID, fan.notified[0].ID)
	assert.Equal(t, []string{"chat/accepted"}, fan.outcomes)
}

func TestService_SubmitOutcomes(t *testing.T) {
	fan := &recordingFanout{}
	svc := newService(ServiceDeps{Recorder: fan, Publisher: fan})
	ctx := context.Background()

	spam := janePayload()
	spam.Honeypot = "x"
	_, err := svc.Submit(ctx, &CreateLeadRequest{Payload: spam})
	assert.ErrorIs(t, err, ErrHoneypot)

	bad := janePayload()
	bad.Message = "short"
	_, err = svc.Submit(ctx, &CreateLeadRequest{Payload: bad})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, intake.ErrMessageTooShort.Error(), vErr.Message())

	unknown := janePayload()
	unknown.LeadSource = "billboard"
	_, err = svc.Submit(ctx, &CreateLeadRequest{Payload: unknown})
	assert.ErrorAs(t, err, &vErr)

	assert.Equal(t, []string{"chat/spam", "chat/invalid", "billboard/invalid"}, fan.outcomes)
	assert.Empty(t, fan.published)
}

func TestService_CanonicalizesLabels(t *testing.T) {
	svc := newService(ServiceDeps{})
	p := janePayload()
	p.LeadSource = "quick_form"
	p.CaseType = "OVI / DUI"
	p.Urgency = ""
	p.Email = "Jane@Example.com"
	lead, err := svc.Submit(context.Background(), &CreateLeadRequest{Payload: p})
	require.NoError(t, err)
	assert.Equal(t, "ovi_dui", lead.CaseType)
	assert.Equal(t, "exploring", lead.Urgency)
	assert.Equal(t, "jane@example.com", lead.Email)
}

func TestLocalSubmitter(t *testing.T) {
	var events []intake.Event
	tracker := intake.TrackerFunc(func(_ context.Context, e intake.Event) { events = append(events, e) })

	repo := NewInMemoryRepository()
	verifier := &ipVerifier{}
	svc := newService(ServiceDeps{Repo: repo, Verifier: verifier})
	sub := NewLocalSubmitter(svc, "(740) 201-1444", tracker)

	ctx := intake.WithRequestMeta(context.Background(), intake.RequestMeta{RemoteIP: "198.51.100.4", UserAgent: "widget/1.0"})
	res := sub.Submit(ctx, janePayload())
	assert.True(t, res.OK())
	require.Len(t, events, 1)
	assert.Equal(t, intake.EventGenerateLead, events[0].Name)
	assert.Equal(t, []string{"198.51.100.4"}, verifier.remoteIPs)

	stored, err := repo.List(context.Background(), ListFilter{})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "198.51.100.4", stored[0].IPAddress)
	assert.Equal(t, "widget/1.0", stored[0].UserAgent)

	bad := janePayload()
	bad.Phone = "12"
	res = sub.Submit(context.Background(), bad)
	assert.Equal(t, intake.ResultValidation, res.Kind)
	assert.Equal(t, intake.ErrPhoneInvalid.Error(), res.Message)

	rejecting := NewLocalSubmitter(newService(ServiceDeps{Verifier: stubVerifier{err: errors.New("nope")}}), "(740) 201-1444", nil)
	res = rejecting.Submit(context.Background(), janePayload())
	assert.Equal(t, intake.ResultRejected, res.Kind)
	assert.Equal(t, ErrVerificationFailed.Error(), res.Message)
}

type mockSQS struct {
	inputs []*sqs.SendMessageInput
}

func (m *mockSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.inputs = append(m.inputs, in)
	return &sqs.SendMessageOutput{}, nil
}

func TestSQSPublisher(t *testing.T) {
	mock := &mockSQS{}
	pub := NewSQSPublisher(mock, "https://sqs.us-east-2.amazonaws.com/123/leads")

	lead := &Lead{ID: "lead-1", LeadSource: "chat", CaseType: "ovi_dui", Urgency: "urgent"}
	require.NoError(t, pub.PublishLeadCreated(context.Background(), lead))
	require.Len(t, mock.inputs, 1)
	in := mock.inputs[0]
	assert.Equal(t, "https://sqs.us-east-2.amazonaws.com/123/leads", *in.QueueUrl)

	var evt LeadCreatedEvent
	require.NoError(t, json.Unmarshal([]byte(*in.MessageBody), &evt))
	assert.Equal(t, EventLeadCreated, evt.Type)
	assert.Equal(t, "lead-1", evt.LeadID)
	assert.Equal(t, "urgent", *in.MessageAttributes["urgency"].StringValue)

	assert.Panics(t, func() { NewSQSPublisher(mock, "") })
}
