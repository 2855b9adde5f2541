package intake

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/wolfman30/defense-intake/pkg/logging"
)

// RequestMeta describes the client behind a submission made on its behalf.
type RequestMeta struct {
	RemoteIP  string
	UserAgent string
}

type requestMetaKey struct{}

// WithRequestMeta attaches client details for submitters that record or verify them.
func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

// RequestMetaFrom returns the client details attached to ctx, if any.
func RequestMetaFrom(ctx context.Context) RequestMeta {
	meta, _ := ctx.Value(requestMetaKey{}).(RequestMeta)
	return meta
}

// ResultKind classifies a submission outcome.
type ResultKind string

const (
	ResultOK           ResultKind = "ok"
	ResultValidation   ResultKind = "validation"
	ResultVerification ResultKind = "verification"
	ResultRejected     ResultKind = "rejected"
	ResultNetwork      ResultKind = "network"
	ResultCanceled     ResultKind = "canceled"
)

// VerificationRequiredMessage is shown when the anti-automation challenge has
// not produced a token yet.
const VerificationRequiredMessage = "Please complete the verification check before submitting."

// Result is the outcome of one submission attempt.
type Result struct {
	Kind    ResultKind  `json:"kind"`
	Message string      `json:"message,omitempty"`
	Fields  FieldErrors `json:"fields,omitempty"`
}

// OK reports whether the submission was accepted.
func (r Result) OK() bool { return r.Kind == ResultOK }

// Payload is the JSON body accepted by the intake endpoint.
type Payload struct {
	Name           string  `json:"name"`
	Email          string  `json:"email"`
	Phone          string  `json:"phone"`
	CaseType       string  `json:"case_type"`
	County         string  `json:"county"`
	Urgency        string  `json:"urgency"`
	HowFound       string  `json:"how_found"`
	HowFoundDetail *string `json:"how_found_detail"`
	Message        string  `json:"message"`
	LeadSource     string  `json:"lead_source"`
	CheckpointID   *string `json:"checkpoint_id"`
	Honeypot       string  `json:"honeypot"`
	TurnstileToken string  `json:"turnstile_token"`
}

// NewPayload packages a draft for submission from the given surface.
func NewPayload(d Draft, source LeadSource) Payload {
	p := Payload{
		Name:           strings.TrimSpace(d.Name),
		Email:          strings.TrimSpace(d.Email),
		Phone:          NormalizePhoneDigits(d.Phone),
		CaseType:       string(d.CaseType),
		County:         string(d.County),
		Urgency:        string(d.Urgency),
		HowFound:       string(d.HowFound),
		Message:        strings.TrimSpace(d.Message),
		LeadSource:     string(source),
		Honeypot:       d.Honeypot,
		TurnstileToken: d.VerificationToken,
	}
	if p.Urgency == "" {
		p.Urgency = string(UrgencyExploring)
	}
	if d.HowFound.RequiresDetail() {
		if detail := strings.TrimSpace(d.HowFoundDetail); detail != "" {
			p.HowFoundDetail = &detail
		}
	}
	if id := strings.TrimSpace(d.CheckpointID); id != "" {
		p.CheckpointID = &id
	}
	return p
}

// Draft converts a payload back into draft form for validation.
func (p Payload) Draft() Draft {
	d := Draft{
		Name:              p.Name,
		Email:             p.Email,
		CaseType:          CaseType(p.CaseType),
		County:            County(p.County),
		Urgency:           Urgency(p.Urgency),
		HowFound:          ReferralSource(p.HowFound),
		Message:           p.Message,
		Honeypot:          p.Honeypot,
		VerificationToken: p.TurnstileToken,
	}
	d.SetPhone(p.Phone)
	if p.HowFoundDetail != nil {
		d.HowFoundDetail = *p.HowFoundDetail
	}
	if p.CheckpointID != nil {
		d.CheckpointID = *p.CheckpointID
	}
	return d
}

// Rules returns the validation rules for the payload's lead source.
func (p Payload) Rules() FormRules {
	switch LeadSource(p.LeadSource) {
	case SourceChat:
		return ChatRules
	case SourceQuickForm:
		return QuickFormRules
	default:
		return ModalRules
	}
}

// Precheck enforces the client-side preconditions. It returns nil when the
// payload may be sent.
func Precheck(p Payload, requireVerification bool) *Result {
	if err := p.Draft().Validate(p.Rules()); err != nil {
		var fe FieldErrors
		if errors.As(err, &fe) {
			return &Result{Kind: ResultValidation, Message: "Please fix the highlighted fields.", Fields: fe}
		}
		return &Result{Kind: ResultValidation, Message: err.Error()}
	}
	if requireVerification && strings.TrimSpace(p.TurnstileToken) == "" {
		return &Result{Kind: ResultVerification, Message: VerificationRequiredMessage}
	}
	return nil
}

// Submitter delivers a payload to the intake backend.
type Submitter interface {
	Submit(ctx context.Context, p Payload) Result
}

// SubmitterFunc adapts a function to Submitter.
type SubmitterFunc func(ctx context.Context, p Payload) Result

func (f SubmitterFunc) Submit(ctx context.Context, p Payload) Result { return f(ctx, p) }

// ClientConfig configures the HTTP submission client.
type ClientConfig struct {
	Endpoint            string
	OfficePhone         string
	RequireVerification bool
	HTTPClient          *http.Client
	Tracker             Tracker
	Logger              *logging.Logger
}

// Client posts payloads to the remote intake endpoint. It never retries.
type Client struct {
	endpoint            string
	officePhone         string
	requireVerification bool
	http                *http.Client
	tracker             Tracker
	logger              *logging.Logger
}

// NewClient builds a submission client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if cfg.Tracker == nil {
		cfg.Tracker = NopTracker{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Client{
		endpoint:            cfg.Endpoint,
		officePhone:         cfg.OfficePhone,
		requireVerification: cfg.RequireVerification,
		http:                cfg.HTTPClient,
		tracker:             cfg.Tracker,
		logger:              cfg.Logger,
	}
}

// GenericFailureMessage is the fallback shown when no server message is usable.
func GenericFailureMessage(officePhone string) string {
	if officePhone == "" {
		return "Something went wrong sending your information. Please call our office directly."
	}
	return fmt.Sprintf("Something went wrong sending your information. Please call us directly at %s.", officePhone)
}

type errorBody struct {
	Error string `json:"error"`
}

// Submit sends the payload once and classifies the response.
func (c *Client) Submit(ctx context.Context, p Payload) Result {
	if res := Precheck(p, c.requireVerification); res != nil {
		return *res
	}

	body, err := json.Marshal(p)
	if err != nil {
		c.logger.Error("intake: marshal payload", "error", err)
		return Result{Kind: ResultNetwork, Message: GenericFailureMessage(c.officePhone)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		c.logger.Error("intake: build request", "error", err)
		return Result{Kind: ResultNetwork, Message: GenericFailureMessage(c.officePhone)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Result{Kind: ResultCanceled}
		}
		c.logger.Warn("intake: submission transport failure", "error", err, "lead_source", p.LeadSource)
		return Result{Kind: ResultNetwork, Message: GenericFailureMessage(c.officePhone)}
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := GenericFailureMessage(c.officePhone)
		var eb errorBody
		if json.Unmarshal(raw, &eb) == nil && strings.TrimSpace(eb.Error) != "" {
			msg = strings.TrimSpace(eb.Error)
		}
		c.logger.Warn("intake: submission rejected", "status", resp.StatusCode, "lead_source", p.LeadSource)
		return Result{Kind: ResultRejected, Message: msg}
	}

	c.tracker.Track(ctx, Event{Name: EventGenerateLead, LeadSource: LeadSource(p.LeadSource), CaseType: p.CaseType})
	return Result{Kind: ResultOK}
}
