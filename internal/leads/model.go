package leads

import (
	"strings"
	"time"

	"github.com/wolfman30/defense-intake/internal/intake"
)

// Status tracks where a lead is in the firm's follow-up.
type Status string

const (
	StatusNew       Status = "new"
	StatusContacted Status = "contacted"
	StatusRetained  Status = "retained"
	StatusDeclined  Status = "declined"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusContacted, StatusRetained, StatusDeclined:
		return true
	}
	return false
}

// Lead represents an intake submission from one of the site's surfaces
type Lead struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Phone          string    `json:"phone"`
	CaseType       string    `json:"case_type"`
	County         string    `json:"county"`
	Urgency        string    `json:"urgency"`
	HowFound       string    `json:"how_found"`
	HowFoundDetail *string   `json:"how_found_detail"`
	Message        string    `json:"message"`
	LeadSource     string    `json:"lead_source"`
	CheckpointID   *string   `json:"checkpoint_id"`
	Status         Status    `json:"status"`
	IPAddress      string    `json:"ip_address,omitempty"`
	UserAgent      string    `json:"user_agent,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Urgent reports whether the caller asked for immediate help.
func (l *Lead) Urgent() bool {
	return l != nil && l.Urgency == string(intake.UrgencyUrgent)
}

// CaseTypeLabel is the human label for the case type.
func (l *Lead) CaseTypeLabel() string {
	return intake.Label(intake.CaseTypeOptions(), l.CaseType)
}

// CreateLeadRequest is a validated submission plus request metadata.
type CreateLeadRequest struct {
	Payload   intake.Payload
	IPAddress string
	UserAgent string
}

// Validate runs the same field rules the intake surfaces use.
func (r *CreateLeadRequest) Validate() error {
	if !intake.LeadSource(r.Payload.LeadSource).Valid() {
		return &ValidationError{Fields: intake.FieldErrors{"lead_source": "Unknown lead source."}}
	}
	if err := r.Payload.Draft().Validate(r.Payload.Rules()); err != nil {
		if fe, ok := err.(intake.FieldErrors); ok {
			return &ValidationError{Fields: fe}
		}
		return err
	}
	return nil
}

func (r *CreateLeadRequest) toLead(id string, now time.Time) *Lead {
	d := r.Payload.Draft()
	if ct, ok := intake.ParseCaseType(string(d.CaseType)); ok {
		d.CaseType = ct
	}
	if c, ok := intake.ParseCounty(string(d.County)); ok {
		d.County = c
	}
	if u, ok := intake.ParseUrgency(string(d.Urgency)); ok {
		d.Urgency = u
	}
	if src, ok := intake.ParseReferralSource(string(d.HowFound)); ok {
		d.HowFound = src
	}
	p := intake.NewPayload(d, intake.LeadSource(r.Payload.LeadSource))
	return &Lead{
		ID:             id,
		Name:           p.Name,
		Email:          strings.ToLower(p.Email),
		Phone:          p.Phone,
		CaseType:       p.CaseType,
		County:         p.County,
		Urgency:        p.Urgency,
		HowFound:       p.HowFound,
		HowFoundDetail: p.HowFoundDetail,
		Message:        p.Message,
		LeadSource:     p.LeadSource,
		CheckpointID:   p.CheckpointID,
		Status:         StatusNew,
		IPAddress:      r.IPAddress,
		UserAgent:      r.UserAgent,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// ListFilter narrows admin listings.
type ListFilter struct {
	Limit      int
	Offset     int
	LeadSource string
	CaseType   string
}

func (f ListFilter) normalized() ListFilter {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

func (f ListFilter) matches(l *Lead) bool {
	if f.LeadSource != "" && l.LeadSource != f.LeadSource {
		return false
	}
	if f.CaseType != "" && l.CaseType != f.CaseType {
		return false
	}
	return true
}
