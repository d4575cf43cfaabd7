package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/seawire/vela/internal/adapter/claude"
	"github.com/seawire/vela/internal/adapter/cookie"
	"github.com/seawire/vela/internal/adapter/prompt"
	"github.com/seawire/vela/internal/config"
	"github.com/seawire/vela/internal/core/domain"
	"github.com/seawire/vela/internal/logger"
	"github.com/seawire/vela/theme"
)

// fakeUpstream stands in for claude.ai: org discovery, the conversation
// triad and a switchable completion response.
type fakeUpstream struct {
	mu             sync.Mutex
	orgCalls       int
	creates        int
	completes      int
	deletes        int
	completeStatus int
	completeBody   string
}

func (f *fakeUpstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/api/organizations":
		f.orgCalls++
		_, _ = w.Write([]byte(`[{"uuid":"org-1","name":"acct","capabilities":["claude_pro"]}]`))
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/completion"):
		f.completes++
		if f.completeStatus >= 400 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(f.completeStatus)
			_, _ = w.Write([]byte(f.completeBody))
			return
		}
		_, _ = w.Write([]byte(f.completeBody))
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/chat_conversations"):
		f.creates++
		_, _ = w.Write([]byte(`{}`))
	case r.Method == http.MethodDelete:
		f.deletes++
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeUpstream) counts() (orgCalls, creates, completes, deletes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orgCalls, f.creates, f.completes, f.deletes
}

func newTestManager(t *testing.T, upstream *fakeUpstream, mutate func(*config.Config)) (*Manager, *cookie.Pool) {
	t.Helper()
	srv := httptest.NewServer(upstream)
	t.Cleanup(srv.Close)

	cfg := config.DefaultConfig()
	cfg.Upstream.Endpoint = srv.URL
	cfg.Cookies = []string{"sessionKey=test-cookie"}
	if mutate != nil {
		mutate(cfg)
	}

	log := logger.NewStyledLogger(slog.New(slog.NewTextHandler(io.Discard, nil)), theme.Default())
	pool := cookie.NewPool(cfg.Cookies, log)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go pool.Run(ctx)

	client := claude.NewClient(&cfg.Upstream, log)
	transformer := prompt.NewTransformer(cfg.Settings.MaxTokens, cfg.Upstream.Timezone)
	return NewManager(cfg, client, transformer, pool, log), pool
}

func waitForPool(t *testing.T, p *cookie.Pool, ok func(cookie.Status) bool) cookie.Status {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	var last cookie.Status
	for time.Now().Before(deadline) {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		s, err := p.Status(ctx)
		cancel()
		if err == nil {
			last = s
			if ok(s) {
				return s
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for pool status, last %+v", last)
	return last
}

func userTurn(content string) []domain.Message {
	return []domain.Message{{Role: domain.RoleUser, Content: content}}
}

func TestSession_NonStreamingRoundTrip(t *testing.T) {
	upstream := &fakeUpstream{completeBody: `{"completion":"Hello there"}`}
	m, pool := newTestManager(t, upstream, nil)

	s, err := m.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	out, err := s.Execute(context.Background(), Request{
		Messages:  userTurn("Hello"),
		Model:     "claude-3-5-sonnet-20241022",
		MaxTokens: 100,
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !strings.Contains(string(out.Body), "Hello there") {
		t.Errorf("Expected upstream completion in body, got %q", out.Body)
	}

	s.Close(nil)
	waitForPool(t, pool, func(st cookie.Status) bool { return st.Available == 1 })

	orgCalls, creates, completes, deletes := upstream.counts()
	if orgCalls != 1 || creates != 1 || completes != 1 {
		t.Errorf("Expected one org, create and completion call, got %d/%d/%d", orgCalls, creates, completes)
	}
	if deletes != 1 {
		t.Errorf("Expected conversation deleted on close, got %d deletes", deletes)
	}
}

func TestSession_EmptyMessagesReturnsCookieHealthy(t *testing.T) {
	upstream := &fakeUpstream{completeBody: `{}`}
	m, pool := newTestManager(t, upstream, nil)

	s, err := m.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	_, err = s.Execute(context.Background(), Request{Model: "claude-3-5-sonnet-20241022"})
	if !errors.Is(err, domain.ErrWrongCompletionFormat) {
		t.Fatalf("Expected wrong completion format error, got %v", err)
	}
	s.Close(err)

	st := waitForPool(t, pool, func(st cookie.Status) bool { return st.Available == 1 })
	if st.Evicted != 0 || st.Cooling != 0 {
		t.Errorf("Expected validation error to leave the cookie healthy, got %+v", st)
	}
	_, _, completes, _ := upstream.counts()
	if completes != 0 {
		t.Errorf("Expected no upstream completion call, got %d", completes)
	}
}

func TestSession_InvalidModelRejected(t *testing.T) {
	upstream := &fakeUpstream{completeBody: `{}`}
	m, _ := newTestManager(t, upstream, nil)

	s, err := m.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	defer s.Close(nil)

	_, err = s.Execute(context.Background(), Request{
		Messages: userTurn("hi"),
		Model:    "gpt-4",
	})
	var invalid *domain.InvalidModelError
	if !errors.As(err, &invalid) {
		t.Fatalf("Expected invalid model error, got %v", err)
	}
	_, creates, _, _ := upstream.counts()
	if creates != 0 {
		t.Errorf("Expected no conversation created for a rejected model, got %d", creates)
	}
}

func TestSession_ExhaustedUpstreamCoolsCookie(t *testing.T) {
	resetsAt := time.Now().Add(time.Hour).Unix()
	upstream := &fakeUpstream{
		completeStatus: http.StatusTooManyRequests,
		completeBody:   `{"error":{"type":"exceeded_limit","message":"{\"resetsAt\":` + itoa(resetsAt) + `}"}}`,
	}
	m, pool := newTestManager(t, upstream, nil)

	s, err := m.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	_, err = s.Execute(context.Background(), Request{
		Messages: userTurn("hello"),
		Model:    "claude-3-5-sonnet-20241022",
	})
	var exhausted *domain.ExhaustedCookieError
	if !errors.As(err, &exhausted) {
		t.Fatalf("Expected exhausted cookie error, got %v", err)
	}

	s.Close(err)

	st := waitForPool(t, pool, func(st cookie.Status) bool { return st.Cooling == 1 })
	if st.Available != 0 {
		t.Errorf("Expected no available cookies while cooling, got %+v", st)
	}
	_, _, _, deletes := upstream.counts()
	if deletes != 1 {
		t.Errorf("Expected conversation delete attempted before surfacing the error, got %d", deletes)
	}
}

func TestSession_CloseRunsExactlyOnce(t *testing.T) {
	upstream := &fakeUpstream{completeBody: `{"completion":"ok"}`}
	m, pool := newTestManager(t, upstream, nil)

	s, err := m.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if _, err := s.Execute(context.Background(), Request{
		Messages: userTurn("hello"),
		Model:    "claude-3-5-sonnet-20241022",
	}); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	s.Close(nil)
	s.Close(nil)
	s.CloseAsync(nil)

	waitForPool(t, pool, func(st cookie.Status) bool { return st.Available == 1 })
	_, _, _, deletes := upstream.counts()
	if deletes != 1 {
		t.Errorf("Expected exactly one conversation delete, got %d", deletes)
	}
}

func TestSession_StreamingDeliversEvents(t *testing.T) {
	upstream := &fakeUpstream{
		completeBody: "data: {\"type\":\"completion\",\"completion\":\"Hi\"}\n\ndata: {\"type\":\"done\"}\n\n",
	}
	m, pool := newTestManager(t, upstream, nil)

	s, err := m.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	out, err := s.Execute(context.Background(), Request{
		Messages: userTurn("hello"),
		Model:    "claude-3-5-sonnet-20241022",
		Stream:   true,
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if out.Stream == nil {
		t.Fatal("Expected a live stream transformer")
	}

	var events [][]byte
	for chunk := range out.Stream.Events() {
		events = append(events, chunk)
	}
	if len(events) != 2 {
		t.Fatalf("Expected both upstream events forwarded, got %d", len(events))
	}
	if !strings.Contains(string(events[0]), "Hi") {
		t.Errorf("Expected first event to carry the delta, got %q", events[0])
	}

	s.CloseAsync(nil)
	waitForPool(t, pool, func(st cookie.Status) bool { return st.Available == 1 })
}

func TestSession_PreserveChatsCarriesConversation(t *testing.T) {
	upstream := &fakeUpstream{completeBody: `{"completion":"ok"}`}
	m, pool := newTestManager(t, upstream, func(c *config.Config) {
		c.Settings.PreserveChats = true
	})

	s, err := m.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if _, err := s.Execute(context.Background(), Request{
		Messages: userTurn("hello"),
		Model:    "claude-3-5-sonnet-20241022",
	}); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	s.Close(nil)
	waitForPool(t, pool, func(st cookie.Status) bool { return st.Available == 1 })

	if _, _, _, deletes := upstream.counts(); deletes != 0 {
		t.Fatalf("Expected preserved conversation to survive close, got %d deletes", deletes)
	}

	s2, err := m.Begin(context.Background())
	if err != nil {
		t.Fatalf("Second Begin failed: %v", err)
	}
	defer s2.Close(nil)
	if s2.convUUID == nil {
		t.Error("Expected the carried conversation to be adopted by the next session")
	}
}

func TestBegin_EmptyPool(t *testing.T) {
	upstream := &fakeUpstream{}
	m, _ := newTestManager(t, upstream, func(c *config.Config) {
		c.Cookies = nil
	})
	if _, err := m.Begin(context.Background()); !errors.Is(err, domain.ErrNoValidKey) {
		t.Fatalf("Expected no valid key from an empty pool, got %v", err)
	}
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
