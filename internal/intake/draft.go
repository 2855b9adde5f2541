package intake

import (
	"errors"
	"sort"
	"strings"
	"time"
)

// Field names shared by the payload, form errors, and the chat steps.
const (
	FieldName           = "name"
	FieldPhone          = "phone"
	FieldEmail          = "email"
	FieldCaseType       = "case_type"
	FieldCounty         = "county"
	FieldUrgency        = "urgency"
	FieldHowFound       = "how_found"
	FieldHowFoundDetail = "how_found_detail"
	FieldMessage        = "message"
)

// ChatMessageMinLength is the shortest free-text message the chat flow accepts.
const ChatMessageMinLength = 10

var (
	ErrNameRequired     = errors.New("Please enter your name.")
	ErrPhoneInvalid     = errors.New("Please enter a valid phone number.")
	ErrEmailInvalid     = errors.New("Please enter a valid email address.")
	ErrCaseTypeRequired = errors.New("Please choose the type of case.")
	ErrCountyInvalid    = errors.New("Please choose a county from the list, or skip.")
	ErrUrgencyInvalid   = errors.New("Please choose how soon you need help.")
	ErrHowFoundRequired = errors.New("Please tell us how you found us.")
	ErrDetailRequired   = errors.New("Please add a few words about how you found us.")
	ErrMessageRequired  = errors.New("Please tell us a little about your situation.")
	ErrMessageTooShort  = errors.New("Please share a bit more detail (at least 10 characters).")
)

// Draft is the in-progress set of answers for one intake attempt.
type Draft struct {
	Name              string         `json:"name"`
	Phone             string         `json:"phone"`
	PhoneDigits       string         `json:"phone_digits"`
	Email             string         `json:"email"`
	CaseType          CaseType       `json:"case_type"`
	County            County         `json:"county"`
	Urgency           Urgency        `json:"urgency"`
	HowFound          ReferralSource `json:"how_found"`
	HowFoundDetail    string         `json:"how_found_detail"`
	Message           string         `json:"message"`
	Honeypot          string         `json:"honeypot"`
	VerificationToken string         `json:"-" dynamodbav:"-"`
	CheckpointID      string         `json:"checkpoint_id"`
}

// NewDraft returns an empty draft with the default urgency.
func NewDraft() Draft {
	return Draft{Urgency: UrgencyExploring}
}

// SetPhone stores the raw input and its normalized digits.
func (d *Draft) SetPhone(raw string) {
	d.Phone = strings.TrimSpace(raw)
	d.PhoneDigits = NormalizePhoneDigits(raw)
}

// Turn is one bot prompt and the user's rendered answer to it.
type Turn struct {
	BotMessage   string    `json:"bot_message"`
	UserResponse string    `json:"user_response,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Session is the persisted state of one chat widget instance.
type Session struct {
	Draft        Draft     `json:"draft"`
	Transcript   []Turn    `json:"transcript"`
	Step         StepID    `json:"step"`
	LastActivity time.Time `json:"last_activity"`
}

// FieldErrors maps field names to user-facing messages.
type FieldErrors map[string]string

func (fe FieldErrors) Error() string {
	keys := make([]string, 0, len(fe))
	for k := range fe {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+fe[k])
	}
	return "intake: invalid fields: " + strings.Join(parts, "; ")
}

// FormRules selects which fields a surface requires.
type FormRules struct {
	RequireEmail    bool
	RequireHowFound bool
	MinMessageLen   int
}

var (
	// ModalRules apply to the full consultation modal.
	ModalRules = FormRules{RequireEmail: true, RequireHowFound: false, MinMessageLen: 1}
	// QuickFormRules apply to the short inline intake form.
	QuickFormRules = FormRules{RequireEmail: false, RequireHowFound: false, MinMessageLen: 1}
	// ChatRules apply to a draft completed through the chat sequencer.
	ChatRules = FormRules{RequireEmail: true, RequireHowFound: true, MinMessageLen: ChatMessageMinLength}
)

// Validate checks every field at once and returns nil or FieldErrors.
func (d Draft) Validate(rules FormRules) error {
	errs := FieldErrors{}
	if strings.TrimSpace(d.Name) == "" {
		errs[FieldName] = ErrNameRequired.Error()
	}
	if !IsLikelyValidPhone(d.Phone) {
		errs[FieldPhone] = ErrPhoneInvalid.Error()
	}
	email := strings.TrimSpace(d.Email)
	if (rules.RequireEmail || email != "") && !IsValidEmail(email) {
		errs[FieldEmail] = ErrEmailInvalid.Error()
	}
	if _, ok := ParseCaseType(string(d.CaseType)); !ok {
		errs[FieldCaseType] = ErrCaseTypeRequired.Error()
	}
	if d.County != "" {
		if _, ok := ParseCounty(string(d.County)); !ok {
			errs[FieldCounty] = ErrCountyInvalid.Error()
		}
	}
	if d.Urgency != "" {
		if _, ok := ParseUrgency(string(d.Urgency)); !ok {
			errs[FieldUrgency] = ErrUrgencyInvalid.Error()
		}
	}
	if d.HowFound == "" {
		if rules.RequireHowFound {
			errs[FieldHowFound] = ErrHowFoundRequired.Error()
		}
	} else if src, ok := ParseReferralSource(string(d.HowFound)); !ok {
		errs[FieldHowFound] = ErrHowFoundRequired.Error()
	} else if src.RequiresDetail() && strings.TrimSpace(d.HowFoundDetail) == "" {
		errs[FieldHowFoundDetail] = ErrDetailRequired.Error()
	}
	msg := strings.TrimSpace(d.Message)
	switch {
	case msg == "":
		errs[FieldMessage] = ErrMessageRequired.Error()
	case rules.MinMessageLen > 1 && len([]rune(msg)) < rules.MinMessageLen:
		errs[FieldMessage] = ErrMessageTooShort.Error()
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}
