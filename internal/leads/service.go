package leads

import (
	"context"
	"errors"
	"strings"

	"github.com/wolfman30/defense-intake/internal/intake"
	"github.com/wolfman30/defense-intake/pkg/logging"
)

// ErrHoneypot marks a submission that filled the hidden field. Callers answer
// it like a success so bots learn nothing.
var ErrHoneypot = errors.New("leads: honeypot field set")

// Verifier checks an anti-automation token.
type Verifier interface {
	Verify(ctx context.Context, token, remoteIP string) error
}

// Publisher fans a stored lead out to downstream consumers.
type Publisher interface {
	PublishLeadCreated(ctx context.Context, lead *Lead) error
}

// Notifier alerts firm staff about a new lead.
type Notifier interface {
	NotifyNewLead(ctx context.Context, lead *Lead) error
}

// Recorder counts submissions by lead source and outcome.
type Recorder interface {
	ObserveSubmission(source, outcome string)
}

// Submission outcomes reported to the Recorder.
const (
	OutcomeAccepted     = "accepted"
	OutcomeInvalid      = "invalid"
	OutcomeUnverified   = "unverified"
	OutcomeSpam         = "spam"
	OutcomeStorageError = "error"
)

// ServiceDeps wires the intake pipeline. Only Repo is required.
type ServiceDeps struct {
	Repo      Repository
	Verifier  Verifier
	Publisher Publisher
	Notifier  Notifier
	Recorder  Recorder
	Logger    *logging.Logger
}

// Service runs the server side of a lead submission.
type Service struct {
	repo      Repository
	verifier  Verifier
	publisher Publisher
	notifier  Notifier
	recorder  Recorder
	logger    *logging.Logger
}

// NewService builds the intake pipeline.
func NewService(deps ServiceDeps) *Service {
	if deps.Repo == nil {
		panic("leads: repository required")
	}
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	return &Service{
		repo:      deps.Repo,
		verifier:  deps.Verifier,
		publisher: deps.Publisher,
		notifier:  deps.Notifier,
		recorder:  deps.Recorder,
		logger:    deps.Logger,
	}
}

// Submit validates, verifies, stores and announces a lead. Downstream fan-out
// failures are logged and never fail the submission.
func (s *Service) Submit(ctx context.Context, req *CreateLeadRequest) (*Lead, error) {
	source := req.Payload.LeadSource

	if strings.TrimSpace(req.Payload.Honeypot) != "" {
		s.observe(source, OutcomeSpam)
		s.logger.Warn("leads: honeypot triggered, dropping submission", "lead_source", source, "ip", req.IPAddress)
		return nil, ErrHoneypot
	}
	if err := req.Validate(); err != nil {
		s.observe(source, OutcomeInvalid)
		return nil, err
	}
	if s.verifier != nil {
		if err := s.verifier.Verify(ctx, req.Payload.TurnstileToken, req.IPAddress); err != nil {
			s.observe(source, OutcomeUnverified)
			s.logger.Warn("leads: verification failed", "lead_source", source, "error", err)
			return nil, ErrVerificationFailed
		}
	}

	lead, err := s.repo.Create(ctx, req)
	if err != nil {
		s.observe(source, OutcomeStorageError)
		s.logger.Error("leads: failed to store lead", "error", err, "lead_source", source)
		return nil, err
	}
	s.observe(source, OutcomeAccepted)
	s.logger.Info("leads: lead created", "lead_id", lead.ID, "lead_source", lead.LeadSource,
		"case_type", lead.CaseType, "urgency", lead.Urgency)

	if s.publisher != nil {
		if err := s.publisher.PublishLeadCreated(ctx, lead); err != nil {
			s.logger.Error("leads: failed to publish lead event", "error", err, "lead_id", lead.ID)
		}
	}
	if s.notifier != nil {
		if err := s.notifier.NotifyNewLead(ctx, lead); err != nil {
			s.logger.Error("leads: failed to notify staff", "error", err, "lead_id", lead.ID)
		}
	}
	return lead, nil
}

// Get returns one lead.
func (s *Service) Get(ctx context.Context, id string) (*Lead, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns leads for the admin view.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Lead, error) {
	return s.repo.List(ctx, filter)
}

// UpdateStatus records staff follow-up progress.
func (s *Service) UpdateStatus(ctx context.Context, id string, status Status) (*Lead, error) {
	lead, err := s.repo.UpdateStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	s.logger.Info("leads: status updated", "lead_id", id, "status", status)
	return lead, nil
}

func (s *Service) observe(source, outcome string) {
	if s.recorder != nil {
		s.recorder.ObserveSubmission(source, outcome)
	}
}

// LocalSubmitter lets server-driven chat sessions submit straight into the
// service instead of over HTTP.
type LocalSubmitter struct {
	service     *Service
	officePhone string
	tracker     intake.Tracker
}

// NewLocalSubmitter adapts svc to intake.Submitter.
func NewLocalSubmitter(svc *Service, officePhone string, tracker intake.Tracker) *LocalSubmitter {
	if tracker == nil {
		tracker = intake.NopTracker{}
	}
	return &LocalSubmitter{service: svc, officePhone: officePhone, tracker: tracker}
}

// Submit implements intake.Submitter. Client details attached with
// intake.WithRequestMeta are stored on the lead and passed to the verifier.
func (l *LocalSubmitter) Submit(ctx context.Context, p intake.Payload) intake.Result {
	meta := intake.RequestMetaFrom(ctx)
	_, err := l.service.Submit(ctx, &CreateLeadRequest{Payload: p, IPAddress: meta.RemoteIP, UserAgent: meta.UserAgent})
	var vErr *ValidationError
	switch {
	case err == nil, errors.Is(err, ErrHoneypot):
		l.tracker.Track(ctx, intake.Event{Name: intake.EventGenerateLead, LeadSource: intake.LeadSource(p.LeadSource), CaseType: p.CaseType})
		return intake.Result{Kind: intake.ResultOK}
	case ctx.Err() != nil:
		return intake.Result{Kind: intake.ResultCanceled}
	case errors.As(err, &vErr):
		return intake.Result{Kind: intake.ResultValidation, Message: vErr.Message(), Fields: vErr.Fields}
	case errors.Is(err, ErrVerificationFailed):
		return intake.Result{Kind: intake.ResultRejected, Message: ErrVerificationFailed.Error()}
	default:
		return intake.Result{Kind: intake.ResultRejected, Message: intake.GenericFailureMessage(l.officePhone)}
	}
}
