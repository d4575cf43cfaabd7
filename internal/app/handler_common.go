package app

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/seawire/vela/internal/adapter/prompt"
	"github.com/seawire/vela/internal/adapter/stream"
	"github.com/seawire/vela/internal/core/constants"
	"github.com/seawire/vela/internal/core/domain"
	"github.com/seawire/vela/internal/version"
)

// cannedIdentity answers the single-"Hi" probe some frontends send to name
// the backend, without burning an upstream conversation on it.
var cannedIdentity = "vela " + version.Version

// classifierPromptPrefix marks the outfit/emotion classification prompt some
// frontends fire alongside every chat turn; it always gets "neutral" back.
const classifierPromptPrefix = "From the list below, choose a word that best represents a character's outfit description, action, or emotion in their dialogue"

// streamWriteWindow is how long a single streamed chunk write may take
const streamWriteWindow = time.Minute

func (a *Application) authenticate(r *http.Request) bool {
	key := r.Header.Get(constants.HeaderAPIKey)
	if key == "" {
		if bearer := r.Header.Get("Authorization"); strings.HasPrefix(bearer, "Bearer ") {
			key = strings.TrimPrefix(bearer, "Bearer ")
		}
	}
	return a.getConfig().Auth.Authenticate(key)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set(ContentTypeHeader, ContentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func errorBody(message string) map[string]any {
	return map[string]any{
		"error": map[string]any{
			"type":    "invalid_request_error",
			"message": message,
		},
	}
}

// isTestMessage matches the exact single-user-"Hi" probe
func isTestMessage(msgs []domain.Message) bool {
	return len(msgs) == 1 &&
		msgs[0].Role == domain.RoleUser &&
		msgs[0].Content == "Hi"
}

// collectCompletion folds a fully-buffered upstream event stream into the
// plain completion text, picking up thinking deltas in fusion mode.
func collectCompletion(body []byte, signals prompt.Signals) string {
	var b strings.Builder
	for _, line := range strings.Split(string(body), "\n") {
		data, ok := strings.CutPrefix(strings.TrimSpace(line), "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "" || data == "[DONE]" {
			continue
		}
		if text := gjson.Get(data, "completion").String(); text != "" {
			b.WriteString(text)
			continue
		}
		if signals.Fusion {
			if text := gjson.Get(data, "thinking").String(); text != "" {
				b.WriteString(text)
			}
		}
	}
	if b.Len() == 0 {
		// some upstream fronts answer non-streaming calls with plain JSON
		if text := gjson.GetBytes(body, "completion").String(); text != "" {
			return text
		}
	}
	return b.String()
}

// streamResponse forwards transformer output as the SSE response body. The
// write deadline is pushed forward per chunk so long generations survive the
// server's write timeout.
func (a *Application) streamResponse(w http.ResponseWriter, tr *stream.Transformer) {
	w.Header().Set(ContentTypeHeader, ContentTypeEventStream)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	for chunk := range tr.Events() {
		extendWriteDeadline(w, streamWriteWindow)
		if _, err := w.Write(chunk); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// renderStreamError opens an event stream whose only payload is the error,
// framed the way the client is already parsing.
func (a *Application) renderStreamError(w http.ResponseWriter, signals prompt.Signals, err error) {
	w.Header().Set(ContentTypeHeader, ContentTypeEventStream)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(stream.ErrorEvent(signals, err))
}

func errorText(err error) string {
	return fmt.Sprintf("vela error: %v", err)
}
