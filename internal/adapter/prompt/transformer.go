package prompt

import (
	"strings"

	"github.com/seawire/vela/internal/core/constants"
	"github.com/seawire/vela/internal/core/domain"
)

const (
	humanPrefix     = "Human: "
	assistantPrefix = "Assistant: "

	// wedge joins merged same-role segments without opening a new turn
	wedge = "\r"

	// prompts above this size ride as a paste.txt attachment instead of the
	// prompt field, matching what the web client does with big pastes
	attachmentThreshold = 8000
)

// Transformer converts a client message array plus sampling parameters into
// the upstream conversation payload.
type Transformer struct {
	defaultMaxTokens int64
	timezone         string
}

func NewTransformer(defaultMaxTokens int64, timezone string) *Transformer {
	if timezone == "" {
		timezone = constants.DefaultTimezone
	}
	return &Transformer{
		defaultMaxTokens: defaultMaxTokens,
		timezone:         timezone,
	}
}

// Input is the handler-neutral slice of a client request the transformer
// needs; both the Messages-shaped and the legacy completion-shaped handlers
// map onto it.
type Input struct {
	Messages  []domain.Message
	Model     string
	Stop      []string
	MaxTokens int64
}

// Output carries the upstream body plus the control state extracted from the
// assembled prompt text.
type Output struct {
	Body    *domain.RequestBody
	Signals Signals
	Stops   []string
}

// Transform renders the prompt, scans it for control markers and assembles
// the upstream request body.
func (t *Transformer) Transform(in Input) Output {
	prompt := RenderPrompt(in.Messages)
	signals := ExtractSignals(prompt, in.Model)
	stops := AssembleStopSequences(signals, in.Stop)

	maxTokens := in.MaxTokens
	if maxTokens <= 0 {
		maxTokens = t.defaultMaxTokens
	}

	body := &domain.RequestBody{
		MaxTokensToSample: maxTokens,
		Model:             in.Model,
		RenderingMode:     constants.RenderingModeMessages,
		Timezone:          t.timezone,
		Attachments:       []domain.Attachment{},
		Files:             []string{},
	}

	if len(prompt) > attachmentThreshold {
		body.Attachments = append(body.Attachments, domain.NewAttachment(prompt))
	} else {
		body.Prompt = prompt
	}

	return Output{Body: body, Signals: signals, Stops: stops}
}

// RenderPrompt assembles the role-tagged prompt text. Template conventions
// carried by the message flags:
//   - strip: content is trimmed before rendering
//   - discard: message is dropped entirely
//   - merged: content continues the previous turn, joined by the wedge
//   - customname + name: the name replaces the role prefix
func RenderPrompt(messages []domain.Message) string {
	var b strings.Builder
	first := true

	for _, m := range messages {
		if m.Discard != nil && *m.Discard {
			continue
		}

		content := m.Content
		if m.Strip != nil && *m.Strip {
			content = strings.TrimSpace(content)
		}

		if m.Merged != nil && *m.Merged && !first {
			b.WriteString(wedge)
			b.WriteString(content)
			continue
		}

		if !first {
			b.WriteString("\n\n")
		}
		first = false

		switch {
		case m.Customname != nil && *m.Customname && m.Name != nil && *m.Name != "":
			b.WriteString(*m.Name)
			b.WriteString(": ")
		case m.Role == domain.RoleUser:
			b.WriteString(humanPrefix)
		case m.Role == domain.RoleAssistant:
			b.WriteString(assistantPrefix)
		}
		b.WriteString(content)
	}

	return b.String()
}
