package webchat

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	httpmiddleware "github.com/wolfman30/defense-intake/internal/http/middleware"
	"github.com/wolfman30/defense-intake/internal/intake"
	"github.com/wolfman30/defense-intake/pkg/logging"
)

// SequencerFactory builds an unmounted sequencer for one chat session.
type SequencerFactory func(sessionID string, onChange func(intake.Snapshot)) (*intake.Sequencer, error)

// NewSequencerFactory derives per-session sequencers from base. Each session
// is stored under "chat:<session id>".
func NewSequencerFactory(base intake.SequencerConfig) SequencerFactory {
	return func(sessionID string, onChange func(intake.Snapshot)) (*intake.Sequencer, error) {
		cfg := base
		cfg.Key = SessionKey(sessionID)
		cfg.Source = intake.SourceChat
		cfg.OnChange = onChange
		return intake.NewSequencer(cfg)
	}
}

// SessionKey is the storage key for a chat session.
func SessionKey(sessionID string) string {
	return "chat:" + sessionID
}

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9-]{8,64}$`)

// Limiter gates chat answers per client key.
type Limiter interface {
	Allow(key string) bool
}

// Option customizes a Handler.
type Option func(*Handler)

// WithIdleTimeout keeps a session mounted for d after its last connection or
// request ends. Zero unmounts as soon as the last user releases it.
func WithIdleTimeout(d time.Duration) Option {
	return func(h *Handler) { h.idleTimeout = d }
}

// WithLimiter applies l to every answer and reset, keyed by client IP.
func WithLimiter(l Limiter) Option {
	return func(h *Handler) { h.limiter = l }
}

const rateLimitedMessage = "Too many requests. Please wait a moment and try again."

var errRateLimited = errors.New(rateLimitedMessage)

// Handler serves the chat widget over WebSocket with an HTTP fallback.
type Handler struct {
	factory     SequencerFactory
	logger      *logging.Logger
	upgrader    websocket.Upgrader
	idleTimeout time.Duration
	limiter     Limiter

	mu       sync.Mutex
	sessions map[string]*liveSession
}

// liveSession is a mounted sequencer shared by every connection and request
// on one session id. It stays mounted for the idle timeout after the last
// user releases it.
type liveSession struct {
	id    string
	seq   *intake.Sequencer
	refs  int
	idle  *time.Timer
	ready chan struct{}
	err   error

	mu    sync.Mutex
	conns map[*wsConn]struct{}
}

type wsConn struct {
	conn *websocket.Conn
	wmu  sync.Mutex
}

func (c *wsConn) send(msg OutboundMessage) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(msg)
}

// InboundMessage is what the widget sends.
type InboundMessage struct {
	Type           string `json:"type"` // "answer", "reset", "ping"
	Text           string `json:"text"`
	TurnstileToken string `json:"turnstile_token,omitempty"`
	Honeypot       string `json:"honeypot,omitempty"`
}

// OutboundMessage is what we send to the widget.
type OutboundMessage struct {
	Type      string           `json:"type"` // "session", "state", "typing", "error", "pong"
	SessionID string           `json:"session_id,omitempty"`
	Text      string           `json:"text,omitempty"`
	State     *intake.Snapshot `json:"state,omitempty"`
}

// NewHandler creates a chat handler. An empty allowedOrigins accepts any origin.
// Sessions linger for intake.DefaultInactivityWindow unless WithIdleTimeout says otherwise.
func NewHandler(factory SequencerFactory, allowedOrigins []string, logger *logging.Logger, opts ...Option) *Handler {
	if factory == nil {
		panic("webchat: sequencer factory required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	allow := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allow[strings.TrimRight(strings.TrimSpace(o), "/")] = struct{}{}
	}
	h := &Handler{
		factory:     factory,
		logger:      logger,
		idleTimeout: intake.DefaultInactivityWindow,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if len(allow) == 0 || origin == "" {
					return true
				}
				_, ok := allow[strings.TrimRight(origin, "/")]
				return ok
			},
		},
		sessions: make(map[string]*liveSession),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// generateSessionID creates a random session identifier.
func generateSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return uuid.New().String()
	}
	return hex.EncodeToString(b)
}

// acquire returns the live session for id, mounting it on first use. The
// store round trip in Mount runs outside h.mu.
func (h *Handler) acquire(ctx context.Context, id string) (*liveSession, error) {
	h.mu.Lock()
	if ls, ok := h.sessions[id]; ok {
		ls.refs++
		if ls.idle != nil {
			ls.idle.Stop()
			ls.idle = nil
		}
		h.mu.Unlock()
		<-ls.ready
		if ls.err != nil {
			h.mu.Lock()
			ls.refs--
			h.mu.Unlock()
			return nil, ls.err
		}
		return ls, nil
	}
	ls := &liveSession{id: id, refs: 1, ready: make(chan struct{}), conns: make(map[*wsConn]struct{})}
	h.sessions[id] = ls
	h.mu.Unlock()

	ls.err = h.mount(ctx, ls)
	if ls.err != nil {
		h.mu.Lock()
		if h.sessions[id] == ls {
			delete(h.sessions, id)
		}
		h.mu.Unlock()
	}
	close(ls.ready)
	if ls.err != nil {
		return nil, ls.err
	}
	return ls, nil
}

func (h *Handler) mount(ctx context.Context, ls *liveSession) error {
	seq, err := h.factory(ls.id, ls.broadcast)
	if err != nil {
		return err
	}
	ls.seq = seq
	return seq.Mount(ctx)
}

// release drops one user of ls. The last user either unmounts it or starts
// the idle timer.
func (h *Handler) release(ls *liveSession) {
	h.mu.Lock()
	ls.refs--
	if ls.refs > 0 || h.sessions[ls.id] != ls {
		h.mu.Unlock()
		return
	}
	if h.idleTimeout > 0 {
		ls.idle = time.AfterFunc(h.idleTimeout, func() { h.evict(ls) })
		h.mu.Unlock()
		return
	}
	delete(h.sessions, ls.id)
	h.mu.Unlock()
	ls.seq.Unmount()
}

func (h *Handler) evict(ls *liveSession) {
	h.mu.Lock()
	if ls.refs > 0 || h.sessions[ls.id] != ls {
		h.mu.Unlock()
		return
	}
	delete(h.sessions, ls.id)
	h.mu.Unlock()
	ls.seq.Unmount()
	h.logger.Debug("webchat: idle session unmounted", "session_id", ls.id)
}

// Close unmounts every session, e.g. on shutdown.
func (h *Handler) Close() {
	h.mu.Lock()
	var idle []*liveSession
	for id, ls := range h.sessions {
		if ls.idle != nil {
			ls.idle.Stop()
			ls.idle = nil
		}
		select {
		case <-ls.ready:
			if ls.err == nil {
				idle = append(idle, ls)
			}
		default:
		}
		delete(h.sessions, id)
	}
	h.mu.Unlock()
	for _, ls := range idle {
		ls.seq.Unmount()
	}
}

// ActiveSessions reports how many sessions are mounted.
func (h *Handler) ActiveSessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

func (ls *liveSession) attach(c *wsConn) {
	ls.mu.Lock()
	ls.conns[c] = struct{}{}
	ls.mu.Unlock()
}

func (ls *liveSession) detach(c *wsConn) {
	ls.mu.Lock()
	delete(ls.conns, c)
	ls.mu.Unlock()
}

func (ls *liveSession) broadcast(snap intake.Snapshot) {
	ls.mu.Lock()
	conns := make([]*wsConn, 0, len(ls.conns))
	for c := range ls.conns {
		conns = append(conns, c)
	}
	ls.mu.Unlock()
	for _, c := range conns {
		if snap.Typing {
			_ = c.send(OutboundMessage{Type: "typing"})
		}
		s := snap
		_ = c.send(OutboundMessage{Type: "state", State: &s})
	}
}

// HandleWebSocket upgrades to WebSocket and drives the session's sequencer.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		sessionID = generateSessionID()
	}
	if !sessionIDPattern.MatchString(sessionID) {
		http.Error(w, "invalid session parameter", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("webchat: upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(16 << 10)
	wsc := &wsConn{conn: conn}

	ls, err := h.acquire(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("webchat: failed to start session", "error", err, "session_id", sessionID)
		_ = wsc.send(OutboundMessage{Type: "error", Text: "Chat is unavailable right now. Please call our office."})
		return
	}
	defer h.release(ls)
	ls.attach(wsc)
	defer ls.detach(wsc)

	_ = wsc.send(OutboundMessage{Type: "session", SessionID: sessionID})
	snap := ls.seq.Snapshot()
	_ = wsc.send(OutboundMessage{Type: "state", State: &snap})

	h.logger.Info("webchat: connection opened", "session_id", sessionID)

	clientIP := httpmiddleware.ClientIP(r)
	ctx := requestContext(r)
	for {
		var msg InboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			h.logger.Debug("webchat: connection closed", "session_id", sessionID, "error", err)
			return
		}
		switch msg.Type {
		case "ping":
			_ = wsc.send(OutboundMessage{Type: "pong"})
		case "reset", "answer":
			if !h.allow(clientIP) {
				h.logger.Warn("webchat: rate limited", "session_id", sessionID, "ip", clientIP)
				_ = wsc.send(OutboundMessage{Type: "error", Text: rateLimitedMessage})
				continue
			}
			var err error
			if msg.Type == "reset" {
				err = ls.seq.Reset(ctx)
			} else {
				err = h.answer(ctx, ls, msg)
			}
			if err != nil {
				_ = wsc.send(OutboundMessage{Type: "error", Text: userMessage(err)})
			}
		}
	}
}

func (h *Handler) allow(clientIP string) bool {
	return h.limiter == nil || h.limiter.Allow(clientIP)
}

// requestContext carries the caller's address and user agent to the submitter.
func requestContext(r *http.Request) context.Context {
	return intake.WithRequestMeta(r.Context(), intake.RequestMeta{
		RemoteIP:  httpmiddleware.ClientIP(r),
		UserAgent: r.UserAgent(),
	})
}

func (h *Handler) answer(ctx context.Context, ls *liveSession, msg InboundMessage) error {
	if msg.TurnstileToken != "" {
		ls.seq.SetVerificationToken(msg.TurnstileToken)
	}
	if msg.Honeypot != "" {
		ls.seq.SetHoneypot(msg.Honeypot)
	}
	err := ls.seq.Answer(ctx, msg.Text)
	if err != nil && !errors.Is(err, intake.ErrNotMounted) {
		var stepErr *intake.StepError
		if !errors.As(err, &stepErr) {
			h.logger.Info("webchat: answer not applied", "session_id", ls.id, "error", err)
		}
	}
	return err
}

func userMessage(err error) string {
	var stepErr *intake.StepError
	var subErr *intake.SubmitError
	switch {
	case errors.As(err, &stepErr):
		return stepErr.Err.Error()
	case errors.As(err, &subErr):
		return subErr.Result.Message
	case errors.Is(err, intake.ErrBusy):
		return "One moment, still working on your last answer."
	case errors.Is(err, intake.ErrFinished):
		return "Thanks, we already have your information. An attorney will reach out shortly."
	case errors.Is(err, errRateLimited):
		return rateLimitedMessage
	default:
		return "Sorry, something went wrong. Please try again."
	}
}

type sessionResponse struct {
	SessionID string          `json:"session_id"`
	State     intake.Snapshot `json:"state"`
	Error     string          `json:"error,omitempty"`
}

// CreateSession handles POST /chat/sessions.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, generateSessionID(), func(ls *liveSession) (int, error) {
		return http.StatusCreated, nil
	})
}

// GetSession handles GET /chat/sessions/{sessionID}.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, chi.URLParam(r, "sessionID"), func(ls *liveSession) (int, error) {
		return http.StatusOK, nil
	})
}

// AnswerSession handles POST /chat/sessions/{sessionID}/answer.
func (h *Handler) AnswerSession(w http.ResponseWriter, r *http.Request) {
	if !h.allow(httpmiddleware.ClientIP(r)) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": rateLimitedMessage})
		return
	}
	var msg InboundMessage
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 16<<10)).Decode(&msg); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	h.withSession(w, r, chi.URLParam(r, "sessionID"), func(ls *liveSession) (int, error) {
		err := h.answer(requestContext(r), ls, msg)
		var stepErr *intake.StepError
		var subErr *intake.SubmitError
		switch {
		case err == nil:
			return http.StatusOK, nil
		case errors.As(err, &stepErr), errors.As(err, &subErr):
			return http.StatusUnprocessableEntity, err
		case errors.Is(err, intake.ErrBusy), errors.Is(err, intake.ErrFinished):
			return http.StatusConflict, err
		default:
			return http.StatusInternalServerError, err
		}
	})
}

// ResetSession handles DELETE /chat/sessions/{sessionID}.
func (h *Handler) ResetSession(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, chi.URLParam(r, "sessionID"), func(ls *liveSession) (int, error) {
		if !h.allow(httpmiddleware.ClientIP(r)) {
			return http.StatusTooManyRequests, errRateLimited
		}
		if err := ls.seq.Reset(r.Context()); err != nil {
			if errors.Is(err, intake.ErrBusy) {
				return http.StatusConflict, err
			}
			h.logger.Warn("webchat: reset failed", "session_id", ls.id, "error", err)
		}
		return http.StatusOK, nil
	})
}

func (h *Handler) withSession(w http.ResponseWriter, r *http.Request, sessionID string, fn func(*liveSession) (int, error)) {
	if !sessionIDPattern.MatchString(sessionID) {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}
	ls, err := h.acquire(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("webchat: failed to start session", "error", err, "session_id", sessionID)
		http.Error(w, "chat unavailable", http.StatusServiceUnavailable)
		return
	}
	defer h.release(ls)

	status, err := fn(ls)
	resp := sessionResponse{SessionID: sessionID, State: ls.seq.Snapshot()}
	if err != nil {
		resp.Error = userMessage(err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
