package stream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/tidwall/gjson"

	"github.com/seawire/vela/internal/adapter/prompt"
	"github.com/seawire/vela/internal/logger"
)

// State is the transformer lifecycle: Idle until Run starts pulling, then a
// single terminal state depending on how the stream ended.
type State int32

const (
	StateIdle State = iota
	StateStreaming
	StateCompleted
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ChannelCapacity allows modest read-ahead between the upstream reader and
// the response writer without buffering whole responses.
const ChannelCapacity = 32

// maxEventSize bounds a single upstream SSE event
const maxEventSize = 1 << 20

// Transformer pulls upstream event-stream bytes and re-emits client-facing
// chunks over a bounded channel. The consumer side signals disconnect via
// the context passed to Run; on a failed push the transformer stops pulling
// and cancels the upstream request.
type Transformer struct {
	signals        prompt.Signals
	out            chan []byte
	state          atomic.Int32
	cancelUpstream context.CancelFunc
	logger         *logger.StyledLogger
}

func NewTransformer(signals prompt.Signals, cancelUpstream context.CancelFunc, log *logger.StyledLogger) *Transformer {
	return &Transformer{
		signals:        signals,
		out:            make(chan []byte, ChannelCapacity),
		cancelUpstream: cancelUpstream,
		logger:         log,
	}
}

// Events is the bounded output channel; closed when the transformer reaches
// a terminal state.
func (t *Transformer) Events() <-chan []byte {
	return t.out
}

func (t *Transformer) State() State {
	return State(t.state.Load())
}

// Run consumes the upstream body until EOF, error or consumer disconnect.
// It always closes the output channel exactly once on exit.
func (t *Transformer) Run(ctx context.Context, body io.Reader) {
	t.state.Store(int32(StateStreaming))
	defer close(t.out)

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), maxEventSize)
	scanner.Split(splitEvents)

	for scanner.Scan() {
		event := scanner.Bytes()
		chunk := t.reframe(event)
		if chunk == nil {
			continue
		}
		if !t.push(ctx, chunk) {
			t.state.Store(int32(StateCancelled))
			if t.cancelUpstream != nil {
				t.cancelUpstream()
			}
			if t.logger != nil {
				t.logger.Debug("client disconnected, stopped forwarding")
			}
			return
		}
	}

	if err := scanner.Err(); err != nil {
		t.state.Store(int32(StateFailed))
		t.push(ctx, ErrorEvent(t.signals, err))
		return
	}

	if tail := t.finalChunk(); tail != nil {
		t.push(ctx, tail)
	}
	t.state.Store(int32(StateCompleted))
}

// push attempts a bounded-channel send; false means the consumer is gone
func (t *Transformer) push(ctx context.Context, chunk []byte) bool {
	select {
	case t.out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

// reframe converts one upstream SSE event into the client representation.
// Under the messages API the upstream framing is already what the client
// expects; in completion mode deltas are re-framed as OpenAI-style chunks.
func (t *Transformer) reframe(event []byte) []byte {
	if len(bytes.TrimSpace(event)) == 0 {
		return nil
	}

	if t.signals.MessagesAPI {
		// pass-through, restoring the event separator the splitter consumed
		out := make([]byte, 0, len(event)+2)
		out = append(out, event...)
		out = append(out, '\n', '\n')
		return out
	}

	data := eventData(event)
	if data == nil {
		return nil
	}

	text := gjson.GetBytes(data, "completion").String()
	if text == "" && t.signals.Fusion {
		text = gjson.GetBytes(data, "thinking").String()
	}
	if text == "" {
		return nil
	}
	return completionChunk(text)
}

func (t *Transformer) finalChunk() []byte {
	if t.signals.MessagesAPI {
		return nil
	}
	return []byte("data: [DONE]\n\n")
}

// eventData extracts the payload of the data: line(s) of an SSE event
func eventData(event []byte) []byte {
	var data []byte
	for _, line := range bytes.Split(event, []byte("\n")) {
		if rest, ok := bytes.CutPrefix(line, []byte("data:")); ok {
			data = append(data, bytes.TrimSpace(rest)...)
		}
	}
	return data
}

func completionChunk(text string) []byte {
	payload, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"delta": map[string]any{"content": text}},
		},
	})
	return []byte(fmt.Sprintf("data: %s\n\n", payload))
}

// ErrorEvent renders an error as a final stream event in the framing the
// client is consuming.
func ErrorEvent(signals prompt.Signals, err error) []byte {
	if signals.MessagesAPI {
		payload, _ := json.Marshal(map[string]any{
			"type": "error",
			"error": map[string]any{
				"type":    "upstream_error",
				"message": err.Error(),
			},
		})
		return []byte(fmt.Sprintf("event: error\ndata: %s\n\n", payload))
	}
	return completionChunk(fmt.Sprintf("Error: %v", err))
}

// splitEvents is a bufio.SplitFunc cutting the stream on SSE event
// boundaries (blank line)
func splitEvents(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.Index(data, []byte("\n\n")); i >= 0 {
		return i + 2, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
