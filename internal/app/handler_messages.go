package app

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/seawire/vela/internal/adapter/prompt"
	"github.com/seawire/vela/internal/core/domain"
	"github.com/seawire/vela/internal/session"
)

// messagesHandler relays Anthropic Messages shaped requests. Pipeline errors
// are rendered into the response the client is already parsing: a synthetic
// assistant message for non-streaming calls, a final error event for streams.
func (a *Application) messagesHandler(w http.ResponseWriter, r *http.Request) {
	log := GetLogger(r.Context())

	if !a.authenticate(r) {
		writeJSON(w, http.StatusUnauthorized, errorBody("invalid x-api-key"))
		return
	}

	var req domain.ClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("malformed request body"))
		return
	}
	req.Sanitize()

	msgs := req.Messages
	if sys := systemText(req.System); sys != "" {
		msgs = append([]domain.Message{{Role: domain.RoleSystem, Content: sys}}, msgs...)
	}

	if !req.Stream && isTestMessage(msgs) {
		writeJSON(w, http.StatusOK, assistantMessage(cannedIdentity))
		return
	}

	thinking := req.Thinking != nil && req.Thinking.Type == "enabled"

	sess, err := a.sessions.Begin(r.Context())
	if err != nil {
		log.Warn("Session bootstrap failed", "error", err)
		a.renderMessagesError(w, req.Stream, err)
		return
	}

	out, err := sess.Execute(r.Context(), session.Request{
		Messages:  msgs,
		Model:     req.Model,
		Stop:      req.StopSequences,
		MaxTokens: req.MaxTokens,
		Stream:    req.Stream,
		Thinking:  thinking,
	})
	if err != nil {
		sess.Close(err)
		log.Warn("Relay failed", "model", req.Model, "error", err)
		a.renderMessagesError(w, req.Stream, err)
		return
	}

	if req.Stream {
		a.streamResponse(w, out.Stream)
		sess.CloseAsync(nil)
		return
	}

	writeJSON(w, http.StatusOK, assistantMessage(collectCompletion(out.Body, out.Signals)))
	sess.CloseAsync(nil)
}

func (a *Application) renderMessagesError(w http.ResponseWriter, streaming bool, err error) {
	if streaming {
		a.renderStreamError(w, prompt.Signals{MessagesAPI: true}, err)
		return
	}
	writeJSON(w, http.StatusOK, assistantMessage(errorText(err)))
}

func assistantMessage(content string) map[string]any {
	return map[string]any{
		"role":    "assistant",
		"content": content,
	}
}

// systemText flattens the Anthropic system field, which is either a plain
// string or an array of text blocks.
func systemText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	v := gjson.ParseBytes(raw)
	if v.Type == gjson.String {
		return v.String()
	}
	if v.IsArray() {
		var parts []string
		for _, item := range v.Array() {
			if t := item.Get("text").String(); t != "" {
				parts = append(parts, t)
			}
		}
		return strings.Join(parts, "\n")
	}
	return ""
}
