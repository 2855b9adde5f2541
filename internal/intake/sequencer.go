package intake

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wolfman30/defense-intake/pkg/logging"
)

// DefaultInactivityWindow is how long a stored chat session stays resumable.
const DefaultInactivityWindow = 30 * time.Minute

var (
	// ErrBusy means a previous answer is still being processed.
	ErrBusy = errors.New("intake: answer already in progress")
	// ErrFinished means the conversation reached confirmation.
	ErrFinished = errors.New("intake: conversation finished")
	// ErrNotMounted means the sequencer was never mounted or has been unmounted.
	ErrNotMounted = errors.New("intake: sequencer not mounted")
)

// StepError is a local validation failure for one step.
type StepError struct {
	Step StepID
	Err  error
}

func (e *StepError) Error() string { return fmt.Sprintf("intake: step %s: %v", e.Step, e.Err) }
func (e *StepError) Unwrap() error { return e.Err }

// SubmitError wraps a failed submission result.
type SubmitError struct {
	Result Result
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("intake: submission %s: %s", e.Result.Kind, e.Result.Message)
}

// Snapshot is a read-only view of the sequencer for rendering.
type Snapshot struct {
	Step       StepID `json:"step"`
	Prompt     string `json:"prompt"`
	Error      string `json:"error,omitempty"`
	Transcript []Turn `json:"transcript"`
	Typing     bool   `json:"typing"`
	Submitting bool   `json:"submitting"`
	Completed  bool   `json:"completed"`
}

// SequencerConfig wires a Sequencer. Store, Submitter and Key are required.
type SequencerConfig struct {
	Key                 string
	Store               SessionStore
	Submitter           Submitter
	Source              LeadSource
	CheckpointID        string
	FirmName            string
	OfficePhone         string
	RequireVerification bool

	TypingDelay      time.Duration
	FollowupDelay    time.Duration
	ClearDelay       time.Duration
	InactivityWindow time.Duration

	Scheduler Scheduler
	Now       func() time.Time
	Sleep     func(ctx context.Context, d time.Duration) error
	Logger    *logging.Logger
	OnChange  func(Snapshot)
}

// Sequencer drives the chat intake one question at a time.
type Sequencer struct {
	cfg   SequencerConfig
	steps map[StepID]Step

	mu         sync.Mutex
	session    Session
	errMsg     string
	mounted    bool
	busy       bool
	typing     bool
	submitting bool
	completed  bool

	life       context.Context
	cancelLife context.CancelFunc

	inactivity Timer
	clearTimer Timer
	followup   Timer
}

// NewSequencer validates cfg and fills defaults.
func NewSequencer(cfg SequencerConfig) (*Sequencer, error) {
	if cfg.Key == "" {
		return nil, errors.New("intake: sequencer key required")
	}
	if cfg.Store == nil {
		return nil, errors.New("intake: session store required")
	}
	if cfg.Submitter == nil {
		return nil, errors.New("intake: submitter required")
	}
	if cfg.Source == "" {
		cfg.Source = SourceChat
	}
	if cfg.InactivityWindow <= 0 {
		cfg.InactivityWindow = DefaultInactivityWindow
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = RealScheduler{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepContext
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Sequencer{
		cfg:   cfg,
		steps: Steps(cfg.FirmName, cfg.OfficePhone),
	}, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Mount restores a session younger than the inactivity window or starts fresh.
func (s *Sequencer) Mount(ctx context.Context) error {
	s.mu.Lock()
	if s.mounted {
		s.mu.Unlock()
		return nil
	}
	s.life, s.cancelLife = context.WithCancel(context.Background())
	s.mounted = true

	stored, err := s.cfg.Store.Load(ctx, s.cfg.Key)
	switch {
	case err == nil && s.resumable(stored):
		s.session = *stored
		s.ensurePromptLocked()
		s.cfg.Logger.Debug("intake: session restored", "key", s.cfg.Key, "step", s.session.Step)
	default:
		if err != nil && !errors.Is(err, ErrSessionNotFound) {
			s.cfg.Logger.Warn("intake: load session failed", "key", s.cfg.Key, "error", err)
		}
		if err == nil {
			s.cfg.Logger.Debug("intake: discarding stale session", "key", s.cfg.Key)
		}
		if clearErr := s.cfg.Store.Clear(ctx, s.cfg.Key); clearErr != nil {
			s.cfg.Logger.Warn("intake: clear session failed", "key", s.cfg.Key, "error", clearErr)
		}
		s.startFreshLocked()
	}
	s.armInactivityLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	return nil
}

func (s *Sequencer) resumable(stored *Session) bool {
	if stored == nil || stored.LastActivity.IsZero() {
		return false
	}
	if _, ok := s.steps[stored.Step]; !ok || stored.Step.Terminal() {
		return false
	}
	return s.cfg.Now().Sub(stored.LastActivity) < s.cfg.InactivityWindow
}

func (s *Sequencer) startFreshLocked() {
	draft := NewDraft()
	draft.CheckpointID = s.cfg.CheckpointID
	greeting := "Hi! I can help connect you with a defense attorney. This only takes a minute."
	if s.cfg.FirmName != "" {
		greeting = fmt.Sprintf("Hi! You've reached %s. I can help connect you with a defense attorney. This only takes a minute.", s.cfg.FirmName)
	}
	s.session = Session{
		Draft: draft,
		Step:  StepName,
		Transcript: []Turn{
			{BotMessage: greeting, Timestamp: s.cfg.Now().UTC()},
			{BotMessage: s.steps[StepName].Prompt(draft), Timestamp: s.cfg.Now().UTC()},
		},
	}
	s.errMsg = ""
	s.completed = false
}

// ensurePromptLocked appends the current step's prompt when the transcript
// ends in an answered turn, e.g. after an unmount during the typing delay.
func (s *Sequencer) ensurePromptLocked() {
	n := len(s.session.Transcript)
	if n > 0 && s.session.Transcript[n-1].UserResponse == "" {
		return
	}
	step := s.steps[s.session.Step]
	s.session.Transcript = append(s.session.Transcript, Turn{
		BotMessage: step.Prompt(s.session.Draft),
		Timestamp:  s.cfg.Now().UTC(),
	})
}

// Unmount cancels in-flight work and stops timers. A submission that resolves
// afterwards is discarded.
func (s *Sequencer) Unmount() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.mounted {
		return
	}
	s.mounted = false
	if s.cancelLife != nil {
		s.cancelLife()
	}
	stopTimer(s.inactivity)
	stopTimer(s.followup)
	if s.clearTimer != nil && stopTimer(s.clearTimer) {
		if err := s.cfg.Store.Clear(context.Background(), s.cfg.Key); err != nil {
			s.cfg.Logger.Warn("intake: clear session on unmount failed", "key", s.cfg.Key, "error", err)
		}
	}
	s.inactivity, s.followup, s.clearTimer = nil, nil, nil
}

func stopTimer(t Timer) bool {
	if t == nil {
		return false
	}
	return t.Stop()
}

// Reset discards the stored session and starts over.
func (s *Sequencer) Reset(ctx context.Context) error {
	s.mu.Lock()
	if !s.mounted {
		s.mu.Unlock()
		return ErrNotMounted
	}
	if s.busy {
		s.mu.Unlock()
		return ErrBusy
	}
	stopTimer(s.followup)
	stopTimer(s.clearTimer)
	s.followup, s.clearTimer = nil, nil
	err := s.cfg.Store.Clear(ctx, s.cfg.Key)
	s.startFreshLocked()
	s.armInactivityLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	return err
}

// SetVerificationToken records the anti-automation token for the submission.
func (s *Sequencer) SetVerificationToken(token string) {
	s.mu.Lock()
	s.session.Draft.VerificationToken = token
	s.mu.Unlock()
}

// SetHoneypot records the hidden honeypot field value.
func (s *Sequencer) SetHoneypot(value string) {
	s.mu.Lock()
	s.session.Draft.Honeypot = value
	s.mu.Unlock()
}

// Answer applies the user's input to the current step.
func (s *Sequencer) Answer(ctx context.Context, text string) error {
	s.mu.Lock()
	if !s.mounted {
		s.mu.Unlock()
		return ErrNotMounted
	}
	if s.busy {
		s.mu.Unlock()
		return ErrBusy
	}
	current := s.session.Step
	if current.Terminal() {
		s.mu.Unlock()
		return ErrFinished
	}
	step := s.steps[current]
	draft := s.session.Draft
	rendered, err := step.Apply(&draft, text)
	if err != nil {
		s.errMsg = err.Error()
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.notify(snap)
		return &StepError{Step: current, Err: err}
	}
	s.errMsg = ""
	s.session.Draft = draft
	s.busy = true
	s.touchLocked()

	if current == StepMessage {
		return s.submitLocked(ctx, rendered)
	}

	s.answerLastTurnLocked(rendered)
	s.session.Step = step.Next(text)
	s.typing = true
	s.persistLocked(ctx)
	life := s.life
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)

	return s.finishTyping(ctx, life)
}

// finishTyping waits out the typing delay, then posts the next prompt.
func (s *Sequencer) finishTyping(ctx context.Context, life context.Context) error {
	sleepErr := s.cfg.Sleep(life, s.cfg.TypingDelay)

	s.mu.Lock()
	s.typing = false
	s.busy = false
	if sleepErr != nil || life.Err() != nil {
		s.mu.Unlock()
		return ErrNotMounted
	}
	s.ensurePromptLocked()
	s.persistLocked(ctx)
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)
	return nil
}

// submitLocked is entered with s.mu held and releases it.
func (s *Sequencer) submitLocked(ctx context.Context, rendered string) error {
	s.persistLocked(ctx)
	s.submitting = true
	payload := NewPayload(s.session.Draft, s.cfg.Source)
	life := s.life
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)

	var res Result
	if pre := Precheck(payload, s.cfg.RequireVerification); pre != nil {
		res = *pre
	} else {
		callCtx, cancel := context.WithCancel(ctx)
		stop := context.AfterFunc(life, cancel)
		res = s.cfg.Submitter.Submit(callCtx, payload)
		stop()
		cancel()
	}

	s.mu.Lock()
	s.submitting = false
	if life.Err() != nil {
		s.busy = false
		s.mu.Unlock()
		s.cfg.Logger.Debug("intake: discarding submission result after unmount", "key", s.cfg.Key)
		return ErrNotMounted
	}
	if res.Kind == ResultCanceled {
		s.busy = false
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.notify(snap)
		if err := ctx.Err(); err != nil {
			return err
		}
		return context.Canceled
	}
	if !res.OK() {
		s.busy = false
		s.errMsg = res.Message
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.notify(snap)
		s.cfg.Logger.Info("intake: submission failed", "key", s.cfg.Key, "kind", res.Kind)
		return &SubmitError{Result: res}
	}

	s.completed = true
	s.answerLastTurnLocked(rendered)
	s.session.Step = StepConfirmation
	s.typing = true
	stopTimer(s.inactivity)
	s.inactivity = nil
	s.clearTimer = s.cfg.Scheduler.AfterFunc(s.cfg.ClearDelay, s.clearAfterSuccess)
	snap = s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)
	s.cfg.Logger.Info("intake: chat lead submitted", "key", s.cfg.Key, "case_type", payload.CaseType, "urgency", payload.Urgency)

	sleepErr := s.cfg.Sleep(life, s.cfg.TypingDelay)

	s.mu.Lock()
	s.typing = false
	s.busy = false
	if sleepErr == nil && life.Err() == nil {
		s.ensurePromptLocked()
		s.followup = s.cfg.Scheduler.AfterFunc(s.cfg.FollowupDelay, s.sendFollowup)
	}
	snap = s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)
	return nil
}

func (s *Sequencer) clearAfterSuccess() {
	s.mu.Lock()
	s.clearTimer = nil
	s.mu.Unlock()
	if err := s.cfg.Store.Clear(context.Background(), s.cfg.Key); err != nil {
		s.cfg.Logger.Warn("intake: clear session after submit failed", "key", s.cfg.Key, "error", err)
	}
}

func (s *Sequencer) sendFollowup() {
	s.mu.Lock()
	if !s.mounted || s.session.Step != StepConfirmation {
		s.mu.Unlock()
		return
	}
	s.followup = nil
	s.session.Step = StepFollowup
	s.session.Transcript = append(s.session.Transcript, Turn{
		BotMessage: s.steps[StepFollowup].Prompt(s.session.Draft),
		Timestamp:  s.cfg.Now().UTC(),
	})
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)
}

func (s *Sequencer) expireInactive() {
	s.mu.Lock()
	s.inactivity = nil
	s.mu.Unlock()
	if err := s.cfg.Store.Clear(context.Background(), s.cfg.Key); err != nil {
		s.cfg.Logger.Warn("intake: clear inactive session failed", "key", s.cfg.Key, "error", err)
		return
	}
	s.cfg.Logger.Debug("intake: inactive session cleared", "key", s.cfg.Key)
}

func (s *Sequencer) armInactivityLocked() {
	stopTimer(s.inactivity)
	s.inactivity = s.cfg.Scheduler.AfterFunc(s.cfg.InactivityWindow, s.expireInactive)
}

func (s *Sequencer) touchLocked() {
	s.session.LastActivity = s.cfg.Now().UTC()
	if !s.completed {
		s.armInactivityLocked()
	}
}

func (s *Sequencer) answerLastTurnLocked(rendered string) {
	n := len(s.session.Transcript)
	if n == 0 || s.session.Transcript[n-1].UserResponse != "" {
		s.session.Transcript = append(s.session.Transcript, Turn{Timestamp: s.cfg.Now().UTC()})
		n++
	}
	s.session.Transcript[n-1].UserResponse = rendered
	s.session.Transcript[n-1].Timestamp = s.cfg.Now().UTC()
}

func (s *Sequencer) persistLocked(ctx context.Context) {
	if s.completed {
		return
	}
	snapshot := s.session
	snapshot.Transcript = append([]Turn(nil), s.session.Transcript...)
	if err := s.cfg.Store.Save(ctx, s.cfg.Key, &snapshot); err != nil {
		s.cfg.Logger.Warn("intake: persist session failed", "key", s.cfg.Key, "error", err)
	}
}

// Snapshot returns the current view.
func (s *Sequencer) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Step returns the current step id.
func (s *Sequencer) Step() StepID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Step
}

// Error returns the current step-local error message.
func (s *Sequencer) Error() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg
}

// Draft returns a copy of the collected answers.
func (s *Sequencer) Draft() Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Draft
}

func (s *Sequencer) snapshotLocked() Snapshot {
	snap := Snapshot{
		Step:       s.session.Step,
		Error:      s.errMsg,
		Transcript: append([]Turn(nil), s.session.Transcript...),
		Typing:     s.typing,
		Submitting: s.submitting,
		Completed:  s.completed,
	}
	if n := len(snap.Transcript); n > 0 && snap.Transcript[n-1].UserResponse == "" {
		snap.Prompt = snap.Transcript[n-1].BotMessage
	}
	return snap
}

func (s *Sequencer) notify(snap Snapshot) {
	if s.cfg.OnChange != nil {
		s.cfg.OnChange(snap)
	}
}
