package intake

import (
	"fmt"
	"strings"
)

// StepID names a position in the chat intake sequence.
type StepID string

const (
	StepName           StepID = "name"
	StepPhone          StepID = "phone"
	StepEmail          StepID = "email"
	StepCaseType       StepID = "case_type"
	StepCounty         StepID = "county"
	StepUrgency        StepID = "urgency"
	StepHowFound       StepID = "how_found"
	StepHowFoundDetail StepID = "how_found_detail"
	StepMessage        StepID = "message"
	StepConfirmation   StepID = "confirmation"
	StepFollowup       StepID = "followup"
)

// Terminal reports whether the step accepts no further answers.
func (s StepID) Terminal() bool {
	return s == StepConfirmation || s == StepFollowup
}

// skipWords let the caller pass on the optional county question.
var skipWords = map[string]struct{}{"": {}, "skip": {}, "not sure": {}, "none": {}, "n/a": {}}

// Step describes one question: its prompt, how an answer is applied to the
// draft, and which step follows a given answer.
type Step struct {
	ID     StepID
	Prompt func(d Draft) string
	// Apply validates answer and writes it into d. The returned string is the
	// user's answer as rendered in the transcript.
	Apply func(d *Draft, answer string) (string, error)
	// Next is a pure mapping from the raw answer to the following step.
	Next func(answer string) StepID
}

func always(id StepID) func(string) StepID {
	return func(string) StepID { return id }
}

func staticPrompt(text string) func(Draft) string {
	return func(Draft) string { return text }
}

// NextAfterHowFound sends referral/other answers to the detail question and
// everything else straight to the message.
func NextAfterHowFound(answer string) StepID {
	if src, ok := ParseReferralSource(answer); ok && src.RequiresDetail() {
		return StepHowFoundDetail
	}
	return StepMessage
}

// Steps returns the chat sequence keyed by step id. firmName and officePhone
// are interpolated into the closing copy.
func Steps(firmName, officePhone string) map[StepID]Step {
	return map[StepID]Step{
		StepName: {
			ID:     StepName,
			Prompt: staticPrompt("To get started, what is your name?"),
			Apply: func(d *Draft, answer string) (string, error) {
				name := strings.TrimSpace(answer)
				if name == "" {
					return "", ErrNameRequired
				}
				d.Name = name
				return name, nil
			},
			Next: always(StepPhone),
		},
		StepPhone: {
			ID: StepPhone,
			Prompt: func(d Draft) string {
				return fmt.Sprintf("Thanks, %s. What is the best phone number to reach you?", firstName(d.Name))
			},
			Apply: func(d *Draft, answer string) (string, error) {
				if !IsLikelyValidPhone(answer) {
					return "", ErrPhoneInvalid
				}
				d.SetPhone(answer)
				if len(d.PhoneDigits) == 10 {
					return FormatUSPhone(d.PhoneDigits), nil
				}
				return d.Phone, nil
			},
			Next: always(StepEmail),
		},
		StepEmail: {
			ID:     StepEmail,
			Prompt: staticPrompt("And your email address?"),
			Apply: func(d *Draft, answer string) (string, error) {
				email := strings.TrimSpace(answer)
				if !IsValidEmail(email) {
					return "", ErrEmailInvalid
				}
				d.Email = email
				return email, nil
			},
			Next: always(StepCaseType),
		},
		StepCaseType: {
			ID:     StepCaseType,
			Prompt: staticPrompt("What type of case is this about?" + menu(caseTypeOptions)),
			Apply: func(d *Draft, answer string) (string, error) {
				ct, ok := ParseCaseType(answer)
				if !ok {
					return "", ErrCaseTypeRequired
				}
				d.CaseType = ct
				return Label(caseTypeOptions, string(ct)), nil
			},
			Next: always(StepCounty),
		},
		StepCounty: {
			ID:     StepCounty,
			Prompt: staticPrompt("Which county is the case in? You can also type \"skip\"." + menu(countyOptions)),
			Apply: func(d *Draft, answer string) (string, error) {
				if _, skip := skipWords[strings.ToLower(strings.TrimSpace(answer))]; skip {
					d.County = ""
					return "Skipped", nil
				}
				county, ok := ParseCounty(answer)
				if !ok {
					return "", ErrCountyInvalid
				}
				d.County = county
				return Label(countyOptions, string(county)), nil
			},
			Next: always(StepUrgency),
		},
		StepUrgency: {
			ID:     StepUrgency,
			Prompt: staticPrompt("How soon do you need help?" + menu(urgencyOptions)),
			Apply: func(d *Draft, answer string) (string, error) {
				if strings.TrimSpace(answer) == "" {
					d.Urgency = UrgencyExploring
					return Label(urgencyOptions, string(UrgencyExploring)), nil
				}
				u, ok := ParseUrgency(answer)
				if !ok {
					return "", ErrUrgencyInvalid
				}
				d.Urgency = u
				return Label(urgencyOptions, string(u)), nil
			},
			Next: always(StepHowFound),
		},
		StepHowFound: {
			ID:     StepHowFound,
			Prompt: staticPrompt("How did you hear about us?" + menu(referralOptions)),
			Apply: func(d *Draft, answer string) (string, error) {
				src, ok := ParseReferralSource(answer)
				if !ok {
					return "", ErrHowFoundRequired
				}
				d.HowFound = src
				if !src.RequiresDetail() {
					d.HowFoundDetail = ""
				}
				return Label(referralOptions, string(src)), nil
			},
			Next: NextAfterHowFound,
		},
		StepHowFoundDetail: {
			ID: StepHowFoundDetail,
			Prompt: func(d Draft) string {
				if d.HowFound == ReferralReferral {
					return "Who referred you to us?"
				}
				return "Could you tell us where you heard about us?"
			},
			Apply: func(d *Draft, answer string) (string, error) {
				detail := strings.TrimSpace(answer)
				if detail == "" {
					return "", ErrDetailRequired
				}
				d.HowFoundDetail = detail
				return detail, nil
			},
			Next: always(StepMessage),
		},
		StepMessage: {
			ID:     StepMessage,
			Prompt: staticPrompt("Briefly, what happened? Anything you share is confidential."),
			Apply: func(d *Draft, answer string) (string, error) {
				msg := strings.TrimSpace(answer)
				if msg == "" {
					return "", ErrMessageRequired
				}
				if len([]rune(msg)) < ChatMessageMinLength {
					return "", ErrMessageTooShort
				}
				d.Message = msg
				return msg, nil
			},
			Next: always(StepConfirmation),
		},
		StepConfirmation: {
			ID: StepConfirmation,
			Prompt: func(d Draft) string {
				return fmt.Sprintf("Thank you, %s. An attorney from %s will reach out shortly. If this is an emergency, call us now at %s.",
					firstName(d.Name), firmName, officePhone)
			},
			Next: always(StepFollowup),
		},
		StepFollowup: {
			ID: StepFollowup,
			Prompt: staticPrompt("While you wait: do not discuss your case with anyone, including police, " +
				"and write down everything you remember while it is fresh."),
			Next: always(StepFollowup),
		},
	}
}

func firstName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return "there"
	}
	return fields[0]
}
