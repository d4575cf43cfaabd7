package app

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/seawire/vela/internal/adapter/prompt"
	"github.com/seawire/vela/internal/core/domain"
	"github.com/seawire/vela/internal/session"
)

// completionsHandler relays OpenAI chat-completion shaped requests. Two probe
// requests are answered locally: the single-"Hi" identity check and the
// outfit/emotion classifier prompt.
func (a *Application) completionsHandler(w http.ResponseWriter, r *http.Request) {
	log := GetLogger(r.Context())

	if !a.authenticate(r) {
		writeJSON(w, http.StatusUnauthorized, errorBody("invalid api key"))
		return
	}

	var req domain.CompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("malformed request body"))
		return
	}
	req.Sanitize()

	if !req.Stream {
		if isTestMessage(req.Messages) {
			writeJSON(w, http.StatusOK, choicesMessage(cannedIdentity))
			return
		}
		if len(req.Messages) > 0 && strings.HasPrefix(req.Messages[0].Content, classifierPromptPrefix) {
			writeJSON(w, http.StatusOK, choicesMessage("neutral"))
			return
		}
	}

	var maxTokens int64
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	sess, err := a.sessions.Begin(r.Context())
	if err != nil {
		log.Warn("Session bootstrap failed", "error", err)
		a.renderCompletionsError(w, req.Stream, err)
		return
	}

	out, err := sess.Execute(r.Context(), session.Request{
		Messages:  req.Messages,
		Model:     req.Model,
		Stop:      req.Stop,
		MaxTokens: maxTokens,
		Stream:    req.Stream,
	})
	if err != nil {
		sess.Close(err)
		log.Warn("Relay failed", "model", req.Model, "error", err)
		a.renderCompletionsError(w, req.Stream, err)
		return
	}

	if req.Stream {
		a.streamResponse(w, out.Stream)
		sess.CloseAsync(nil)
		return
	}

	writeJSON(w, http.StatusOK, choicesMessage(collectCompletion(out.Body, out.Signals)))
	sess.CloseAsync(nil)
}

func (a *Application) renderCompletionsError(w http.ResponseWriter, streaming bool, err error) {
	if streaming {
		a.renderStreamError(w, prompt.Signals{}, err)
		return
	}
	writeJSON(w, http.StatusOK, choicesMessage(errorText(err)))
}

func choicesMessage(content string) map[string]any {
	return map[string]any{
		"choices": []map[string]any{
			{
				"message": map[string]any{
					"content": content,
				},
			},
		},
	}
}
