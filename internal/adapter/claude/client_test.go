package claude

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/seawire/vela/internal/config"
	"github.com/seawire/vela/internal/core/domain"
	"github.com/seawire/vela/internal/logger"
)

func testClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := &config.UpstreamConfig{
		Endpoint:        server.URL,
		UserAgent:       "test-agent",
		Timezone:        "America/New_York",
		ResponseTimeout: 5 * time.Second,
	}
	log := logger.NewStyledLogger(discardLogger(), nil)
	return NewClient(cfg, log), server
}

func TestCreateConversation_SendsImpersonationHeaders(t *testing.T) {
	var gotCookie, gotOrigin, gotUA string
	client, server := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotCookie = r.Header.Get("Cookie")
		gotOrigin = r.Header.Get("Origin")
		gotUA = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{}`))
	})

	cred := &Credential{Cookie: "sessionKey=abc", OrgUUID: "org-1"}
	err := client.CreateConversation(context.Background(), cred, uuid.New(), "claude-3-5-sonnet-20241022", false)
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	if gotCookie != "sessionKey=abc" {
		t.Errorf("Expected cookie header, got %q", gotCookie)
	}
	if gotOrigin != server.URL {
		t.Errorf("Expected origin %q, got %q", server.URL, gotOrigin)
	}
	if gotUA != "test-agent" {
		t.Errorf("Expected configured user agent, got %q", gotUA)
	}
}

func TestCreateConversation_ThinkingAddsPaprikaMode(t *testing.T) {
	var body []byte
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{}`))
	})

	cred := &Credential{Cookie: "sessionKey=abc", OrgUUID: "org-1"}
	err := client.CreateConversation(context.Background(), cred, uuid.New(), "claude-3-7-sonnet-20250219", true)
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	if !containsJSON(body, `"paprika_mode":"extended"`) {
		t.Errorf("Expected extended paprika mode in body, got %s", body)
	}
	if !containsJSON(body, `"model":"claude-3-7-sonnet-20250219"`) {
		t.Errorf("Expected explicit model in body, got %s", body)
	}
}

func TestDo_RefreshesCookieFromResponse(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "sessionKey", Value: "rotated"})
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{}`))
	})

	cred := &Credential{Cookie: "sessionKey=abc", OrgUUID: "org-1"}
	if err := client.CreateConversation(context.Background(), cred, uuid.New(), "m", false); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	if cred.Cookie != "sessionKey=rotated" {
		t.Errorf("Expected rotated cookie, got %q", cred.Cookie)
	}
}

func TestDo_RefreshesCookieBeforeClassification(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "sessionKey", Value: "rotated"})
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{}`))
	})

	cred := &Credential{Cookie: "sessionKey=abc", OrgUUID: "org-1"}
	err := client.CreateConversation(context.Background(), cred, uuid.New(), "m", false)

	var tooMany *domain.TooManyRequestError
	if !errors.As(err, &tooMany) {
		t.Fatalf("Expected TooManyRequestError, got %v", err)
	}
	// even on a classified failure the rotated cookie must be kept
	if cred.Cookie != "sessionKey=rotated" {
		t.Errorf("Expected rotated cookie despite error, got %q", cred.Cookie)
	}
}

func TestDeleteConversation_NotFoundIsIdempotent(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	cred := &Credential{Cookie: "sessionKey=abc", OrgUUID: "org-1"}
	if err := client.DeleteConversation(context.Background(), cred, uuid.New()); err != nil {
		t.Errorf("Expected 404 delete to succeed, got %v", err)
	}
}

func TestResolveOrg(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/organizations" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`[{"uuid":"org-42","name":"Personal","capabilities":["chat","claude_pro"]}]`))
	})

	cred := &Credential{Cookie: "sessionKey=abc"}
	info, err := client.ResolveOrg(context.Background(), cred)
	if err != nil {
		t.Fatalf("ResolveOrg failed: %v", err)
	}
	if info.UUID != "org-42" {
		t.Errorf("Expected org-42, got %s", info.UUID)
	}
	if !info.IsPro() {
		t.Error("Expected pro capability to be detected")
	}
}

func TestResolveOrg_EmptyList(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})

	cred := &Credential{Cookie: "sessionKey=abc"}
	if _, err := client.ResolveOrg(context.Background(), cred); !errors.Is(err, domain.ErrNoValidKey) {
		t.Errorf("Expected ErrNoValidKey, got %v", err)
	}
}

func TestComplete_StreamBodyStaysLive(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "text/event-stream" {
			t.Errorf("Expected event-stream accept header, got %q", r.Header.Get("Accept"))
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("event: completion\ndata: {\"completion\":\"hi\"}\n\n"))
	})

	cred := &Credential{Cookie: "sessionKey=abc", OrgUUID: "org-1"}
	res, err := client.Complete(context.Background(), cred, uuid.New(), &domain.RequestBody{Prompt: "p"}, true)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	defer res.Body.Close()

	body, _ := io.ReadAll(res.Body)
	if len(body) == 0 {
		t.Error("Expected live stream body")
	}
}

func containsJSON(body []byte, fragment string) bool {
	return strings.Contains(string(body), fragment)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
