package intake

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/wolfman30/defense-intake/pkg/logging"
)

// ShellConfig carries the collaborators shared by every intake surface.
type ShellConfig struct {
	Submitter           Submitter
	Tracker             Tracker
	OfficePhone         string
	RequireVerification bool
	Logger              *logging.Logger
}

func (c ShellConfig) withDefaults() ShellConfig {
	if c.Tracker == nil {
		c.Tracker = NopTracker{}
	}
	if c.Logger == nil {
		c.Logger = logging.Default()
	}
	return c
}

// visibility is the open/closed state and lifetime owned by a shell.
type visibility struct {
	mu     sync.Mutex
	open   bool
	life   context.Context
	cancel context.CancelFunc
}

func (v *visibility) openLocked() {
	if v.open {
		return
	}
	v.open = true
	v.life, v.cancel = context.WithCancel(context.Background())
}

func (v *visibility) closeLocked() {
	if !v.open {
		return
	}
	v.open = false
	v.cancel()
}

func (v *visibility) IsOpen() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.open
}

func (v *visibility) lifetime() (context.Context, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.life, v.open
}

// TelHref renders a dialable tel: link for a display number.
func TelHref(number string) string {
	digits := NormalizePhoneDigits(number)
	if len(digits) == 10 {
		return "tel:+1" + digits
	}
	return "tel:+" + digits
}

func callButton(ctx context.Context, tracker Tracker, source LeadSource, number string) string {
	tracker.Track(ctx, Event{Name: EventPhoneCall, LeadSource: source, PhoneNumber: number})
	return TelHref(number)
}

// flatForm validates every field at once and submits through the shared client.
type flatForm struct {
	visibility
	cfg          ShellConfig
	source       LeadSource
	rules        FormRules
	checkpointID string
	submitted    bool
}

// Open shows the form and starts a new lifetime.
func (f *flatForm) Open() {
	f.mu.Lock()
	f.openLocked()
	f.submitted = false
	f.mu.Unlock()
}

// Close hides the form. A submission still in flight is discarded.
func (f *flatForm) Close() {
	f.mu.Lock()
	f.closeLocked()
	f.mu.Unlock()
}

// Submitted reports whether the current opening ended in an accepted lead.
func (f *flatForm) Submitted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitted
}

// CallButton records a click-to-call and returns the tel: link.
func (f *flatForm) CallButton(ctx context.Context, number string) string {
	return callButton(ctx, f.cfg.Tracker, f.source, number)
}

// Submit validates d and, when valid, sends it once.
func (f *flatForm) Submit(ctx context.Context, d Draft) Result {
	life, open := f.lifetime()
	if !open {
		return Result{Kind: ResultCanceled}
	}
	if f.checkpointID != "" && strings.TrimSpace(d.CheckpointID) == "" {
		d.CheckpointID = f.checkpointID
	}
	if err := d.Validate(f.rules); err != nil {
		var fe FieldErrors
		if errors.As(err, &fe) {
			return Result{Kind: ResultValidation, Message: "Please fix the highlighted fields.", Fields: fe}
		}
		return Result{Kind: ResultValidation, Message: err.Error()}
	}
	p := NewPayload(d, f.source)
	if res := Precheck(p, f.cfg.RequireVerification); res != nil {
		return *res
	}

	callCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(life, cancel)
	res := f.cfg.Submitter.Submit(callCtx, p)
	stop()
	cancel()

	if life.Err() != nil {
		f.cfg.Logger.Debug("intake: form closed before submission resolved", "lead_source", f.source)
		return Result{Kind: ResultCanceled}
	}
	if res.OK() {
		f.mu.Lock()
		f.submitted = true
		f.mu.Unlock()
	}
	return res
}

// FormModal is the full consultation form shown in a dialog.
type FormModal struct {
	flatForm
}

// NewFormModal builds the consultation modal. A non-empty checkpointID tags
// submissions as coming from a checkpoint call to action.
func NewFormModal(cfg ShellConfig, checkpointID string) (*FormModal, error) {
	if cfg.Submitter == nil {
		return nil, errors.New("intake: submitter required")
	}
	source := SourceModal
	if checkpointID != "" {
		source = SourceCheckpointCTA
	}
	return &FormModal{flatForm{
		cfg:          cfg.withDefaults(),
		source:       source,
		rules:        ModalRules,
		checkpointID: checkpointID,
	}}, nil
}

// QuickForm is the short inline form; email is optional.
type QuickForm struct {
	flatForm
}

// NewQuickForm builds the inline form. It starts open.
func NewQuickForm(cfg ShellConfig) (*QuickForm, error) {
	if cfg.Submitter == nil {
		return nil, errors.New("intake: submitter required")
	}
	q := &QuickForm{flatForm{
		cfg:    cfg.withDefaults(),
		source: SourceQuickForm,
		rules:  QuickFormRules,
	}}
	q.Open()
	return q, nil
}

// ChatWidget is the floating launcher around a Sequencer.
type ChatWidget struct {
	visibility
	seq     *Sequencer
	tracker Tracker
}

// NewChatWidget builds a launcher whose sequencer mounts when opened.
func NewChatWidget(seqCfg SequencerConfig, tracker Tracker) (*ChatWidget, error) {
	seqCfg.Source = SourceChat
	seq, err := NewSequencer(seqCfg)
	if err != nil {
		return nil, err
	}
	if tracker == nil {
		tracker = NopTracker{}
	}
	return &ChatWidget{seq: seq, tracker: tracker}, nil
}

// Open shows the chat panel and mounts the sequencer.
func (w *ChatWidget) Open(ctx context.Context) error {
	w.mu.Lock()
	w.openLocked()
	w.mu.Unlock()
	return w.seq.Mount(ctx)
}

// Close hides the panel and unmounts the sequencer.
func (w *ChatWidget) Close() {
	w.mu.Lock()
	w.closeLocked()
	w.mu.Unlock()
	w.seq.Unmount()
}

// Sequencer exposes the conversation driven by this widget.
func (w *ChatWidget) Sequencer() *Sequencer { return w.seq }

// CallButton records a click-to-call and returns the tel: link.
func (w *ChatWidget) CallButton(ctx context.Context, number string) string {
	return callButton(ctx, w.tracker, SourceChat, number)
}
