package leads

import (
	"errors"

	"github.com/wolfman30/defense-intake/internal/intake"
)

var (
	// ErrLeadNotFound is returned when a lead is not found
	ErrLeadNotFound = errors.New("lead not found")

	// ErrInvalidStatus is returned for an unknown follow-up status
	ErrInvalidStatus = errors.New("invalid lead status")

	// ErrVerificationFailed is returned when the anti-automation check rejects a submission
	ErrVerificationFailed = errors.New("Verification failed. Please refresh and try again.")
)

// ValidationError carries per-field messages for a rejected submission.
type ValidationError struct {
	Fields intake.FieldErrors
}

func (e *ValidationError) Error() string {
	return e.Fields.Error()
}

// Message picks a single user-facing message, preferring name then phone.
func (e *ValidationError) Message() string {
	for _, f := range []string{intake.FieldName, intake.FieldPhone, intake.FieldEmail, intake.FieldCaseType,
		intake.FieldCounty, intake.FieldUrgency, intake.FieldHowFound, intake.FieldHowFoundDetail, intake.FieldMessage} {
		if msg, ok := e.Fields[f]; ok {
			return msg
		}
	}
	for _, msg := range e.Fields {
		return msg
	}
	return "Please check your information and try again."
}
