package domain

import "encoding/json"

// ClientRequest is the Anthropic Messages shaped inbound body
type ClientRequest struct {
	Model         string          `json:"model"`
	Messages      []Message       `json:"messages"`
	Stream        bool            `json:"stream,omitempty"`
	MaxTokens     int64           `json:"max_tokens,omitempty"`
	StopSequences []string        `json:"stop_sequences,omitempty"`
	Temperature   *float64        `json:"temperature,omitempty"`
	TopP          *float64        `json:"top_p,omitempty"`
	TopK          *int64          `json:"top_k,omitempty"`
	Thinking      *Thinking       `json:"thinking,omitempty"`
	System        json.RawMessage `json:"system,omitempty"`
}

// Sanitize clamps sampling parameters to the ranges the upstream accepts
func (r *ClientRequest) Sanitize() {
	clampTemperature(r.Temperature)
}

// CompletionRequest is the legacy OpenAI chat-completion shaped inbound body
type CompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream,omitempty"`
	MaxTokens   *int64    `json:"max_tokens,omitempty"`
	Stop        []string  `json:"stop,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
	TopK        *int64    `json:"top_k,omitempty"`
}

func (r *CompletionRequest) Sanitize() {
	clampTemperature(r.Temperature)
}

func clampTemperature(t *float64) {
	if t == nil {
		return
	}
	if *t < 0 {
		*t = 0
	} else if *t > 1 {
		*t = 1
	}
}

// Thinking mirrors the Anthropic extended-thinking request block
type Thinking struct {
	BudgetTokens int64  `json:"budget_tokens"`
	Type         string `json:"type"`
}

// Attachment is a claude.ai pasted-text attachment
type Attachment struct {
	ExtractedContent string `json:"extracted_content"`
	FileName         string `json:"file_name"`
	FileType         string `json:"file_type"`
	FileSize         int64  `json:"file_size"`
}

// NewAttachment wraps raw prompt text as a paste.txt attachment
func NewAttachment(content string) Attachment {
	return Attachment{
		ExtractedContent: content,
		FileName:         "paste.txt",
		FileType:         "txt",
		FileSize:         int64(len(content)),
	}
}

// ImageSource is an inline image carried by a client message; it is stripped
// from the serialised upstream body and uploaded out of band.
type ImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// RequestBody is the body posted to the claude.ai completion endpoint
type RequestBody struct {
	MaxTokensToSample int64         `json:"max_tokens_to_sample"`
	Attachments       []Attachment  `json:"attachments"`
	Files             []string      `json:"files"`
	Model             string        `json:"model"`
	RenderingMode     string        `json:"rendering_mode"`
	Prompt            string        `json:"prompt"`
	Timezone          string        `json:"timezone"`
	Images            []ImageSource `json:"-"`
}
