package intake

import "context"

// Analytics event names.
const (
	EventGenerateLead = "generate_lead"
	EventPhoneCall    = "phone_call"
)

// Event is a single analytics hit.
type Event struct {
	Name        string
	LeadSource  LeadSource
	CaseType    string
	PhoneNumber string
}

// Tracker records analytics events. Implementations must not block.
type Tracker interface {
	Track(ctx context.Context, evt Event)
}

// NopTracker discards every event.
type NopTracker struct{}

func (NopTracker) Track(context.Context, Event) {}

// TrackerFunc adapts a function to Tracker.
type TrackerFunc func(ctx context.Context, evt Event)

func (f TrackerFunc) Track(ctx context.Context, evt Event) { f(ctx, evt) }
