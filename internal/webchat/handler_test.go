package webchat

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/defense-intake/internal/intake"
	"github.com/wolfman30/defense-intake/pkg/logging"
)

var chatAnswers = []string{
	"Jane Doe",
	"7402011444",
	"jane@example.com",
	"ovi_dui",
	"skip",
	"urgent",
	"google_search",
	"I was pulled over last night",
}

func testFactory(store intake.SessionStore, sub intake.Submitter) SequencerFactory {
	if sub == nil {
		sub = intake.SubmitterFunc(func(context.Context, intake.Payload) intake.Result { return intake.Result{Kind: intake.ResultOK} })
	}
	return NewSequencerFactory(intake.SequencerConfig{
		Store:         store,
		Submitter:     sub,
		FirmName:      "Test Law",
		OfficePhone:   "(740) 201-1444",
		FollowupDelay: time.Hour,
		ClearDelay:    time.Hour,
		Sleep:         func(ctx context.Context, _ time.Duration) error { return ctx.Err() },
	})
}

func newTestHandler(t *testing.T, origins ...string) (*Handler, *intake.MemorySessionStore) {
	t.Helper()
	store := intake.NewMemorySessionStore()
	h := NewHandler(testFactory(store, nil), origins, logging.New("error"))
	t.Cleanup(h.Close)
	return h, store
}

// budgetLimiter allows a fixed number of calls and records the keys it saw.
type budgetLimiter struct {
	mu        sync.Mutex
	remaining int
	keys      []string
}

func (l *budgetLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keys = append(l.keys, key)
	if l.remaining <= 0 {
		return false
	}
	l.remaining--
	return true
}

func newTestServer(h *Handler) *httptest.Server {
	r := chi.NewRouter()
	r.Get("/chat/ws", h.HandleWebSocket)
	r.Post("/chat/sessions", h.CreateSession)
	r.Get("/chat/sessions/{sessionID}", h.GetSession)
	r.Post("/chat/sessions/{sessionID}/answer", h.AnswerSession)
	r.Delete("/chat/sessions/{sessionID}", h.ResetSession)
	return httptest.NewServer(r)
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func readUntil(t *testing.T, conn *websocket.Conn, match func(OutboundMessage) bool) OutboundMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var msg OutboundMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if match(msg) {
			return msg
		}
	}
}

func stateAt(step intake.StepID) func(OutboundMessage) bool {
	return func(m OutboundMessage) bool {
		return m.Type == "state" && m.State != nil && m.State.Step == step && !m.State.Typing
	}
}

func TestSessionKey(t *testing.T) {
	assert.Equal(t, "chat:abc12345", SessionKey("abc12345"))
}

func TestWebSocket_AnswerAdvances(t *testing.T) {
	h, store := newTestHandler(t)
	srv := newTestServer(h)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/chat/ws?session=session-0001"), nil)
	require.NoError(t, err)
	defer conn.Close()

	hello := readUntil(t, conn, func(m OutboundMessage) bool { return m.Type == "session" })
	assert.Equal(t, "session-0001", hello.SessionID)
	first := readUntil(t, conn, stateAt(intake.StepName))
	assert.NotEmpty(t, first.State.Prompt)

	require.NoError(t, conn.WriteJSON(InboundMessage{Type: "answer", Text: "Jane Doe"}))
	next := readUntil(t, conn, stateAt(intake.StepPhone))
	assert.Contains(t, next.State.Prompt, "Jane")

	sess, err := store.Load(context.Background(), SessionKey("session-0001"))
	require.NoError(t, err)
	assert.Equal(t, intake.StepPhone, sess.Step)
	assert.Equal(t, 1, h.ActiveSessions())
}

func TestWebSocket_InvalidAnswerSendsError(t *testing.T) {
	h, _ := newTestHandler(t)
	srv := newTestServer(h)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/chat/ws?session=session-0002"), nil)
	require.NoError(t, err)
	defer conn.Close()
	readUntil(t, conn, stateAt(intake.StepName))

	require.NoError(t, conn.WriteJSON(InboundMessage{Type: "answer", Text: "   "}))
	msg := readUntil(t, conn, func(m OutboundMessage) bool { return m.Type == "error" })
	assert.NotEmpty(t, msg.Text)
}

func TestWebSocket_Ping(t *testing.T) {
	h, _ := newTestHandler(t)
	srv := newTestServer(h)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/chat/ws"), nil)
	require.NoError(t, err)
	defer conn.Close()

	hello := readUntil(t, conn, func(m OutboundMessage) bool { return m.Type == "session" })
	assert.Regexp(t, `^[0-9a-f]{32}$`, hello.SessionID)

	require.NoError(t, conn.WriteJSON(InboundMessage{Type: "ping"}))
	readUntil(t, conn, func(m OutboundMessage) bool { return m.Type == "pong" })
}

func TestWebSocket_RejectsUnknownOrigin(t *testing.T) {
	h, _ := newTestHandler(t, "https://defense.example")
	srv := newTestServer(h)
	defer srv.Close()

	header := http.Header{}
	header.Set("Origin", "https://evil.example")
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "/chat/ws?session=session-0003"), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "https://defense.example/")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/chat/ws?session=session-0003"), header)
	require.NoError(t, err)
	conn.Close()
}

func TestWebSocket_InvalidSessionID(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := httptest.NewRecorder()
	h.HandleWebSocket(rec, httptest.NewRequest(http.MethodGet, "/chat/ws?session=bad!", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func decodeSession(t *testing.T, resp *http.Response) sessionResponse {
	t.Helper()
	defer resp.Body.Close()
	var out sessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func postAnswer(t *testing.T, srv *httptest.Server, id, text string) *http.Response {
	t.Helper()
	body, _ := json.Marshal(InboundMessage{Type: "answer", Text: text})
	resp, err := http.Post(srv.URL+"/chat/sessions/"+id+"/answer", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	return resp
}

func TestHTTPFallback_Flow(t *testing.T) {
	h, store := newTestHandler(t)
	srv := newTestServer(h)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/chat/sessions", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeSession(t, resp)
	require.NotEmpty(t, created.SessionID)
	assert.Equal(t, intake.StepName, created.State.Step)

	resp = postAnswer(t, srv, created.SessionID, "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	bad := decodeSession(t, resp)
	assert.NotEmpty(t, bad.Error)
	assert.Equal(t, intake.StepName, bad.State.Step)

	resp = postAnswer(t, srv, created.SessionID, "Jane Doe")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, intake.StepPhone, decodeSession(t, resp).State.Step)

	// the next request restores from storage
	resp, err = http.Get(srv.URL + "/chat/sessions/" + created.SessionID)
	require.NoError(t, err)
	assert.Equal(t, intake.StepPhone, decodeSession(t, resp).State.Step)

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/chat/sessions/"+created.SessionID, nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, intake.StepName, decodeSession(t, resp).State.Step)

	_, err = store.Load(context.Background(), SessionKey(created.SessionID))
	assert.ErrorIs(t, err, intake.ErrSessionNotFound)
	assert.Equal(t, 1, h.ActiveSessions())
}

func TestHTTPFallback_ConfirmationVisibleAfterSubmit(t *testing.T) {
	var (
		mu   sync.Mutex
		meta []intake.RequestMeta
	)
	sub := intake.SubmitterFunc(func(ctx context.Context, _ intake.Payload) intake.Result {
		mu.Lock()
		meta = append(meta, intake.RequestMetaFrom(ctx))
		mu.Unlock()
		return intake.Result{Kind: intake.ResultOK}
	})
	h := NewHandler(testFactory(intake.NewMemorySessionStore(), sub), nil, logging.New("error"))
	t.Cleanup(h.Close)
	srv := newTestServer(h)
	defer srv.Close()

	const id = "session-0101"
	var last sessionResponse
	for _, answer := range chatAnswers {
		body, _ := json.Marshal(InboundMessage{Type: "answer", Text: answer})
		req, _ := http.NewRequest(http.MethodPost, srv.URL+"/chat/sessions/"+id+"/answer", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Real-Ip", "198.51.100.7")
		req.Header.Set("User-Agent", "widget-test/1.0")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode, answer)
		last = decodeSession(t, resp)
	}
	assert.Equal(t, intake.StepConfirmation, last.State.Step)
	assert.True(t, last.State.Completed)

	resp, err := http.Get(srv.URL + "/chat/sessions/" + id)
	require.NoError(t, err)
	got := decodeSession(t, resp)
	assert.Equal(t, intake.StepConfirmation, got.State.Step)
	assert.True(t, got.State.Completed)
	assert.Equal(t, len(last.State.Transcript), len(got.State.Transcript))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, meta, 1)
	assert.Equal(t, "198.51.100.7", meta[0].RemoteIP)
	assert.Equal(t, "widget-test/1.0", meta[0].UserAgent)
}

func TestHandler_IdleSessionUnmounted(t *testing.T) {
	store := intake.NewMemorySessionStore()
	h := NewHandler(testFactory(store, nil), nil, logging.New("error"), WithIdleTimeout(20*time.Millisecond))
	t.Cleanup(h.Close)
	srv := newTestServer(h)
	defer srv.Close()

	resp := postAnswer(t, srv, "session-0102", "Jane Doe")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	require.Eventually(t, func() bool { return h.ActiveSessions() == 0 }, 2*time.Second, 10*time.Millisecond)

	// the stored conversation resumes on the next request
	resp, err := http.Get(srv.URL + "/chat/sessions/session-0102")
	require.NoError(t, err)
	assert.Equal(t, intake.StepPhone, decodeSession(t, resp).State.Step)
}

func TestHandler_NoIdleTimeoutUnmountsOnRelease(t *testing.T) {
	h := NewHandler(testFactory(intake.NewMemorySessionStore(), nil), nil, logging.New("error"), WithIdleTimeout(0))
	srv := newTestServer(h)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/chat/sessions/session-0103")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, 0, h.ActiveSessions())
}

// gatedStore blocks Load for one key until released.
type gatedStore struct {
	*intake.MemorySessionStore
	key     string
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) Load(ctx context.Context, key string) (*intake.Session, error) {
	if key == g.key {
		close(g.entered)
		<-g.release
	}
	return g.MemorySessionStore.Load(ctx, key)
}

func TestHandler_SlowMountDoesNotBlockOtherSessions(t *testing.T) {
	store := &gatedStore{
		MemorySessionStore: intake.NewMemorySessionStore(),
		key:                SessionKey("session-slow1"),
		entered:            make(chan struct{}),
		release:            make(chan struct{}),
	}
	h := NewHandler(testFactory(store, nil), nil, logging.New("error"))
	t.Cleanup(h.Close)

	slow := make(chan error, 1)
	go func() {
		ls, err := h.acquire(context.Background(), "session-slow1")
		if err == nil {
			h.release(ls)
		}
		slow <- err
	}()
	<-store.entered

	fast := make(chan error, 1)
	go func() {
		ls, err := h.acquire(context.Background(), "session-fast1")
		if err == nil {
			h.release(ls)
		}
		fast <- err
	}()
	select {
	case err := <-fast:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("mounting one session blocked another")
	}

	close(store.release)
	require.NoError(t, <-slow)
	assert.Equal(t, 2, h.ActiveSessions())
}

func TestWebSocket_AnswersAreRateLimited(t *testing.T) {
	limiter := &budgetLimiter{remaining: 1}
	h := NewHandler(testFactory(intake.NewMemorySessionStore(), nil), nil, logging.New("error"), WithLimiter(limiter))
	t.Cleanup(h.Close)
	srv := newTestServer(h)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/chat/ws?session=session-0104"), nil)
	require.NoError(t, err)
	defer conn.Close()
	readUntil(t, conn, stateAt(intake.StepName))

	require.NoError(t, conn.WriteJSON(InboundMessage{Type: "answer", Text: "Jane Doe"}))
	readUntil(t, conn, stateAt(intake.StepPhone))

	require.NoError(t, conn.WriteJSON(InboundMessage{Type: "reset"}))
	msg := readUntil(t, conn, func(m OutboundMessage) bool { return m.Type == "error" })
	assert.Equal(t, rateLimitedMessage, msg.Text)

	require.NoError(t, conn.WriteJSON(InboundMessage{Type: "answer", Text: "7402011444"}))
	msg = readUntil(t, conn, func(m OutboundMessage) bool { return m.Type == "error" })
	assert.Equal(t, rateLimitedMessage, msg.Text)

	// pings are not limited
	require.NoError(t, conn.WriteJSON(InboundMessage{Type: "ping"}))
	readUntil(t, conn, func(m OutboundMessage) bool { return m.Type == "pong" })

	limiter.mu.Lock()
	assert.Equal(t, []string{"127.0.0.1", "127.0.0.1", "127.0.0.1"}, limiter.keys)
	limiter.mu.Unlock()
}

func TestHTTPFallback_AnswerRateLimited(t *testing.T) {
	h := NewHandler(testFactory(intake.NewMemorySessionStore(), nil), nil, logging.New("error"), WithLimiter(&budgetLimiter{remaining: 1}))
	t.Cleanup(h.Close)
	srv := newTestServer(h)
	defer srv.Close()

	resp := postAnswer(t, srv, "session-0105", "Jane Doe")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = postAnswer(t, srv, "session-0105", "7402011444")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))
}

func TestHTTPFallback_BadBody(t *testing.T) {
	h, _ := newTestHandler(t)
	srv := newTestServer(h)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/chat/sessions/session-0004/answer", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
