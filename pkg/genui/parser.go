// Package genui is the streaming generative-UI client: it dispatches chat
// requests to a Claude endpoint, parses the streamed response into typed
// surface mutations and text, and wraps every request in a resilience
// envelope of rate limiting, deduplication, retries, and a circuit breaker.
package genui

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/unfazed-dev/genui/pkg/models"
)

// Framing event types recognized by the parser.
const (
	frameContentBlockStart = "content_block_start"
	frameContentBlockDelta = "content_block_delta"
	frameContentBlockStop  = "content_block_stop"
	frameMessageStop       = "message_stop"
	frameError             = "error"
)

// ToolUseFunc observes every completed non-control tool_use block, with
// the block's tool-use id, tool name, and decoded input JSON.
type ToolUseFunc func(id, name string, input json.RawMessage)

// Parser converts the framing-event sequence of one response into typed
// stream events. State is scoped to a single Parse call; nothing carries
// across streams.
type Parser struct {
	// Logger receives swallowed per-block decode failures. Defaults to
	// slog.Default.
	Logger *slog.Logger

	// OnToolUse, when set, receives completed tool_use blocks whose tool
	// is not one of the four control tools.
	OnToolUse ToolUseFunc
}

// parserState is the per-stream block bookkeeping.
type parserState struct {
	toolNames      map[int]string
	toolIDs        map[int]string
	toolBuffers    map[int]*strings.Builder
	thinkingBlocks map[int]struct{}
	sawToolUse     bool
}

func newParserState() *parserState {
	return &parserState{
		toolNames:      make(map[int]string),
		toolIDs:        make(map[int]string),
		toolBuffers:    make(map[int]*strings.Builder),
		thinkingBlocks: make(map[int]struct{}),
	}
}

// Parse consumes framing events and emits stream events in arrival order.
// The returned channel closes when frames closes or ctx is done.
func (p *Parser) Parse(ctx context.Context, frames <-chan map[string]any) <-chan models.StreamEvent {
	out := make(chan models.StreamEvent)
	go func() {
		defer close(out)
		state := newParserState()
		for {
			select {
			case <-ctx.Done():
				return
			case frame, ok := <-frames:
				if !ok {
					return
				}
				for _, event := range p.handleFrame(state, frame) {
					select {
					case <-ctx.Done():
						return
					case out <- event:
					}
				}
			}
		}
	}()
	return out
}

// ParseAll runs a recorded framing sequence through the parser and folds
// the output into a ParseResult.
func (p *Parser) ParseAll(frames []map[string]any) models.ParseResult {
	state := newParserState()
	var result models.ParseResult
	var text strings.Builder

	for _, frame := range frames {
		for _, event := range p.handleFrame(state, frame) {
			switch e := event.(type) {
			case models.TextDelta:
				text.WriteString(e.Text)
			case models.WidgetMessageEvent:
				result.Messages = append(result.Messages, e.Message)
			}
		}
	}
	result.HasToolUse = state.sawToolUse
	result.Text = text.String()
	return result
}

func (p *Parser) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// handleFrame applies one framing event to the stream state and returns
// the events it produces.
func (p *Parser) handleFrame(state *parserState, frame map[string]any) []models.StreamEvent {
	frameType, _ := frame["type"].(string)
	switch frameType {
	case frameContentBlockStart:
		p.handleBlockStart(state, frame)
		return nil
	case frameContentBlockDelta:
		return p.handleBlockDelta(state, frame)
	case frameContentBlockStop:
		return p.handleBlockStop(state, frame)
	case frameMessageStop:
		return []models.StreamEvent{models.Complete{}}
	case frameError:
		return []models.StreamEvent{models.ErrorEvent{Err: frameToError(frame)}}
	default:
		// message_start, message_delta, ping, and anything newer pass
		// through raw.
		return []models.StreamEvent{models.RawDelta{Raw: frame}}
	}
}

func (p *Parser) handleBlockStart(state *parserState, frame map[string]any) {
	index, ok := frameIndex(frame)
	if !ok {
		return
	}
	block, _ := frame["content_block"].(map[string]any)
	blockType, _ := block["type"].(string)

	switch blockType {
	case "tool_use":
		// A duplicate start for the same index resets the block:
		// last-write-wins on the name, fresh buffer.
		name, _ := block["name"].(string)
		id, _ := block["id"].(string)
		state.sawToolUse = true
		state.toolNames[index] = name
		state.toolIDs[index] = id
		state.toolBuffers[index] = &strings.Builder{}
	case "thinking":
		state.thinkingBlocks[index] = struct{}{}
	}
}

func (p *Parser) handleBlockDelta(state *parserState, frame map[string]any) []models.StreamEvent {
	delta, _ := frame["delta"].(map[string]any)
	deltaType, _ := delta["type"].(string)
	raw := models.RawDelta{Raw: delta}

	switch deltaType {
	case "text_delta":
		text, _ := delta["text"].(string)
		return []models.StreamEvent{models.TextDelta{Text: text}, raw}

	case "input_json_delta":
		if index, ok := frameIndex(frame); ok {
			if buf, ok := state.toolBuffers[index]; ok {
				partial, _ := delta["partial_json"].(string)
				buf.WriteString(partial)
			}
		}
		return []models.StreamEvent{raw}

	case "thinking_delta":
		content, _ := delta["thinking"].(string)
		return []models.StreamEvent{models.Thinking{Content: content}, raw}

	default:
		return []models.StreamEvent{raw}
	}
}

func (p *Parser) handleBlockStop(state *parserState, frame map[string]any) []models.StreamEvent {
	index, ok := frameIndex(frame)
	if !ok {
		return nil
	}

	if _, thinking := state.thinkingBlocks[index]; thinking {
		delete(state.thinkingBlocks, index)
		return []models.StreamEvent{models.Thinking{IsComplete: true}}
	}

	name, isTool := state.toolNames[index]
	if !isTool {
		// Stop for an unknown index is a no-op.
		return nil
	}

	buf := state.toolBuffers[index]
	id := state.toolIDs[index]
	delete(state.toolNames, index)
	delete(state.toolIDs, index)
	delete(state.toolBuffers, index)

	if buf == nil || buf.Len() == 0 {
		return nil
	}

	payload := buf.String()
	message, err := decodeWidgetMessage(name, payload)
	if err != nil {
		p.logger().Warn("discarding undecodable tool input",
			"tool", name, "block_index", index, "error", err)
		return nil
	}
	if message != nil {
		return []models.StreamEvent{models.WidgetMessageEvent{Message: message}}
	}

	// Not a control tool: hand to the interceptor, or ignore.
	if p.OnToolUse != nil {
		p.OnToolUse(id, name, json.RawMessage(payload))
	}
	return nil
}

// decodeWidgetMessage decodes a completed control-tool input. A non-control
// tool name yields (nil, nil). Malformed JSON yields an error for any tool.
func decodeWidgetMessage(name, payload string) (models.WidgetMessage, error) {
	switch name {
	case models.ToolBeginRendering:
		var msg models.BeginRendering
		if err := json.Unmarshal([]byte(payload), &msg); err != nil {
			return nil, err
		}
		if msg.RootID == "" {
			msg.RootID = models.DefaultRootID
		}
		return msg, nil

	case models.ToolSurfaceUpdate:
		var msg models.SurfaceUpdate
		if err := json.Unmarshal([]byte(payload), &msg); err != nil {
			return nil, err
		}
		if msg.Widgets == nil {
			msg.Widgets = []models.WidgetNode{}
		}
		return msg, nil

	case models.ToolDataModelUpdate:
		var msg models.DataModelUpdate
		if err := json.Unmarshal([]byte(payload), &msg); err != nil {
			return nil, err
		}
		return msg, nil

	case models.ToolDeleteSurface:
		var aux struct {
			SurfaceID string `json:"surfaceId"`
			Cascade   *bool  `json:"cascade"`
		}
		if err := json.Unmarshal([]byte(payload), &aux); err != nil {
			return nil, err
		}
		msg := models.DeleteSurface{SurfaceID: aux.SurfaceID, Cascade: true}
		if aux.Cascade != nil {
			msg.Cascade = *aux.Cascade
		}
		return msg, nil

	default:
		// Validate the JSON even for non-control tools so malformed
		// buffers are swallowed uniformly.
		var probe any
		if err := json.Unmarshal([]byte(payload), &probe); err != nil {
			return nil, err
		}
		return nil, nil
	}
}

// frameIndex extracts the content-block index from a framing event. JSON
// decoding yields float64; direct SDK conversion may carry int forms.
func frameIndex(frame map[string]any) (int, bool) {
	switch v := frame["index"].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case int64:
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}

// retryableStreamErrors are the error classes the upstream reports that
// warrant a retry.
var retryableStreamErrors = map[string]bool{
	"overloaded_error": true,
	"rate_limit_error": true,
	"api_error":        true,
	"timeout_error":    true,
	"network_error":    true,
}

// frameToError converts an error framing event into a typed error. The
// verdict defaults to non-retryable unless the body names a known
// retryable class.
func frameToError(frame map[string]any) *models.GenUIError {
	body, _ := frame["error"].(map[string]any)
	errType, _ := body["type"].(string)
	message, _ := body["message"].(string)
	if message == "" {
		message = "stream error"
	}

	kind := models.ErrorStream
	switch errType {
	case "rate_limit_error":
		kind = models.ErrorRateLimit
	case "overloaded_error", "api_error":
		kind = models.ErrorServer
	case "timeout_error":
		kind = models.ErrorTimeout
	case "network_error":
		kind = models.ErrorNetwork
	case "authentication_error", "permission_error":
		kind = models.ErrorAuthentication
	case "invalid_request_error":
		kind = models.ErrorValidation
	}

	e := models.NewError(kind, message)
	e.Retryable = retryableStreamErrors[errType]
	if secs, ok := body["retry_after"].(float64); ok && secs > 0 {
		e.RetryAfter = time.Duration(secs * float64(time.Second))
	}
	if status, ok := body["status"].(float64); ok {
		e.HTTPStatus = int(status)
	}
	return e
}
