package genui

import (
	"context"
	"encoding/json"
	"reflect"
	"testing"

	"github.com/unfazed-dev/genui/pkg/models"
)

func collect(t *testing.T, frames []map[string]any) []models.StreamEvent {
	t.Helper()
	p := &Parser{}
	in := make(chan map[string]any, len(frames))
	for _, f := range frames {
		in <- f
	}
	close(in)

	var events []models.StreamEvent
	for event := range p.Parse(context.Background(), in) {
		events = append(events, event)
	}
	return events
}

// widgetEvents filters out RawDelta noise for assertions on the typed
// sequence.
func widgetEvents(events []models.StreamEvent) []models.StreamEvent {
	var out []models.StreamEvent
	for _, e := range events {
		if _, ok := e.(models.RawDelta); !ok {
			out = append(out, e)
		}
	}
	return out
}

func blockStart(index int, blockType, name string) map[string]any {
	block := map[string]any{"type": blockType}
	if name != "" {
		block["name"] = name
		block["id"] = "toolu_" + name
	}
	return map[string]any{"type": "content_block_start", "index": float64(index), "content_block": block}
}

func jsonDelta(index int, partial string) map[string]any {
	return map[string]any{
		"type":  "content_block_delta",
		"index": float64(index),
		"delta": map[string]any{"type": "input_json_delta", "partial_json": partial},
	}
}

func textDelta(text string) map[string]any {
	return map[string]any{
		"type":  "content_block_delta",
		"index": float64(0),
		"delta": map[string]any{"type": "text_delta", "text": text},
	}
}

func blockStop(index int) map[string]any {
	return map[string]any{"type": "content_block_stop", "index": float64(index)}
}

func messageStop() map[string]any {
	return map[string]any{"type": "message_stop"}
}

func TestParser_BeginRenderingRoundTrip(t *testing.T) {
	events := widgetEvents(collect(t, []map[string]any{
		blockStart(1, "tool_use", "begin_rendering"),
		jsonDelta(1, `{"surfaceId":"s"}`),
		blockStop(1),
		messageStop(),
	}))

	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d: %#v", len(events), events)
	}
	wme, ok := events[0].(models.WidgetMessageEvent)
	if !ok {
		t.Fatalf("expected WidgetMessageEvent, got %T", events[0])
	}
	begin, ok := wme.Message.(models.BeginRendering)
	if !ok {
		t.Fatalf("expected BeginRendering, got %T", wme.Message)
	}
	if begin.SurfaceID != "s" {
		t.Errorf("surfaceId = %q, want s", begin.SurfaceID)
	}
	if begin.RootID != "root" {
		t.Errorf("root = %q, want default root", begin.RootID)
	}
	if _, ok := events[1].(models.Complete); !ok {
		t.Errorf("expected Complete, got %T", events[1])
	}
}

func TestParser_TextInterleave(t *testing.T) {
	events := widgetEvents(collect(t, []map[string]any{
		textDelta("Hi "),
		textDelta("there"),
		messageStop(),
	}))

	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	var text string
	for _, e := range events[:2] {
		td, ok := e.(models.TextDelta)
		if !ok {
			t.Fatalf("expected TextDelta, got %T", e)
		}
		text += td.Text
	}
	if text != "Hi there" {
		t.Errorf("concatenation = %q, want \"Hi there\"", text)
	}
	if _, ok := events[2].(models.Complete); !ok {
		t.Errorf("expected Complete terminal, got %T", events[2])
	}
}

func TestParser_FragmentedToolJSON(t *testing.T) {
	events := widgetEvents(collect(t, []map[string]any{
		blockStart(2, "tool_use", "surface_update"),
		jsonDelta(2, `{"surfaceId":`),
		jsonDelta(2, `"x","widgets":[]}`),
		blockStop(2),
		messageStop(),
	}))

	wme, ok := events[0].(models.WidgetMessageEvent)
	if !ok {
		t.Fatalf("expected WidgetMessageEvent, got %T", events[0])
	}
	update, ok := wme.Message.(models.SurfaceUpdate)
	if !ok {
		t.Fatalf("expected SurfaceUpdate, got %T", wme.Message)
	}
	if update.SurfaceID != "x" {
		t.Errorf("surfaceId = %q, want x", update.SurfaceID)
	}
	if update.Widgets == nil || len(update.Widgets) != 0 {
		t.Errorf("widgets = %#v, want empty list", update.Widgets)
	}
}

func TestParser_RawDeltasFollowTypedEvents(t *testing.T) {
	events := collect(t, []map[string]any{textDelta("hi")})
	if len(events) != 2 {
		t.Fatalf("expected TextDelta then RawDelta, got %d events", len(events))
	}
	if _, ok := events[0].(models.TextDelta); !ok {
		t.Errorf("expected TextDelta first, got %T", events[0])
	}
	raw, ok := events[1].(models.RawDelta)
	if !ok {
		t.Fatalf("expected RawDelta second, got %T", events[1])
	}
	if raw.Raw["type"] != "text_delta" {
		t.Errorf("raw delta payload wrong: %v", raw.Raw)
	}
}

func TestParser_ThinkingBlocks(t *testing.T) {
	events := widgetEvents(collect(t, []map[string]any{
		blockStart(0, "thinking", ""),
		{
			"type":  "content_block_delta",
			"index": float64(0),
			"delta": map[string]any{"type": "thinking_delta", "thinking": "hmm"},
		},
		blockStop(0),
		messageStop(),
	}))

	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	th, ok := events[0].(models.Thinking)
	if !ok || th.Content != "hmm" || th.IsComplete {
		t.Errorf("expected in-progress thinking, got %#v", events[0])
	}
	end, ok := events[1].(models.Thinking)
	if !ok || !end.IsComplete || end.Content != "" {
		t.Errorf("expected thinking completion, got %#v", events[1])
	}
}

func TestParser_MalformedToolJSONIsSwallowed(t *testing.T) {
	events := widgetEvents(collect(t, []map[string]any{
		blockStart(1, "tool_use", "surface_update"),
		jsonDelta(1, `{"surfaceId": not json`),
		blockStop(1),
		textDelta("still here"),
		messageStop(),
	}))

	// No widget message, but the stream continues to completion.
	for _, e := range events {
		if _, ok := e.(models.WidgetMessageEvent); ok {
			t.Error("malformed block must not produce a widget message")
		}
	}
	if _, ok := events[len(events)-1].(models.Complete); !ok {
		t.Error("stream should complete after a malformed block")
	}
	found := false
	for _, e := range events {
		if td, ok := e.(models.TextDelta); ok && td.Text == "still here" {
			found = true
		}
	}
	if !found {
		t.Error("text after the malformed block should still flow")
	}
}

func TestParser_StopWithoutDeltaYieldsNothing(t *testing.T) {
	events := widgetEvents(collect(t, []map[string]any{
		blockStart(1, "tool_use", "begin_rendering"),
		blockStop(1),
		messageStop(),
	}))
	if len(events) != 1 {
		t.Fatalf("expected only Complete, got %#v", events)
	}
}

func TestParser_StopForUnknownIndexIsNoOp(t *testing.T) {
	events := widgetEvents(collect(t, []map[string]any{
		blockStop(7),
		messageStop(),
	}))
	if len(events) != 1 {
		t.Fatalf("expected only Complete, got %#v", events)
	}
}

func TestParser_DuplicateStartResetsBlock(t *testing.T) {
	events := widgetEvents(collect(t, []map[string]any{
		blockStart(1, "tool_use", "begin_rendering"),
		jsonDelta(1, `{"surfaceId":"old"`),
		blockStart(1, "tool_use", "delete_surface"),
		jsonDelta(1, `{"surfaceId":"new"}`),
		blockStop(1),
		messageStop(),
	}))

	wme, ok := events[0].(models.WidgetMessageEvent)
	if !ok {
		t.Fatalf("expected WidgetMessageEvent, got %T", events[0])
	}
	del, ok := wme.Message.(models.DeleteSurface)
	if !ok {
		t.Fatalf("expected DeleteSurface after reset, got %T", wme.Message)
	}
	if del.SurfaceID != "new" {
		t.Errorf("surfaceId = %q, want new", del.SurfaceID)
	}
	if !del.Cascade {
		t.Error("cascade should default to true")
	}
}

func TestParser_NonControlToolGoesToInterceptorHook(t *testing.T) {
	var gotID, gotName string
	var gotInput json.RawMessage
	p := &Parser{OnToolUse: func(id, name string, input json.RawMessage) {
		gotID, gotName, gotInput = id, name, input
	}}

	in := make(chan map[string]any, 4)
	in <- blockStart(1, "tool_use", "search_catalog")
	in <- jsonDelta(1, `{"query":"date"}`)
	in <- blockStop(1)
	in <- messageStop()
	close(in)

	for range p.Parse(context.Background(), in) {
	}

	if gotName != "search_catalog" {
		t.Fatalf("expected search_catalog hook, got %q", gotName)
	}
	if gotID != "toolu_search_catalog" {
		t.Errorf("unexpected tool-use id %q", gotID)
	}
	var input map[string]any
	if err := json.Unmarshal(gotInput, &input); err != nil || input["query"] != "date" {
		t.Errorf("unexpected input %s", gotInput)
	}
}

func TestParser_UnrecognizedFrameTypesForwardRaw(t *testing.T) {
	events := collect(t, []map[string]any{
		{"type": "message_start", "message": map[string]any{"id": "m1"}},
		{"type": "ping"},
		messageStop(),
	})
	if len(events) != 3 {
		t.Fatalf("expected 2 raw frames + Complete, got %d", len(events))
	}
	for i, want := range []string{"message_start", "ping"} {
		raw, ok := events[i].(models.RawDelta)
		if !ok {
			t.Fatalf("event %d: expected RawDelta, got %T", i, events[i])
		}
		if raw.Raw["type"] != want {
			t.Errorf("event %d: type = %v, want %s", i, raw.Raw["type"], want)
		}
	}
}

func TestParser_ErrorFrame(t *testing.T) {
	events := widgetEvents(collect(t, []map[string]any{
		{
			"type":  "error",
			"error": map[string]any{"type": "overloaded_error", "message": "overloaded"},
		},
	}))

	ee, ok := events[0].(models.ErrorEvent)
	if !ok {
		t.Fatalf("expected ErrorEvent, got %T", events[0])
	}
	if !ee.Err.Retryable {
		t.Error("overloaded_error should be retryable")
	}

	events = widgetEvents(collect(t, []map[string]any{
		{
			"type":  "error",
			"error": map[string]any{"type": "invalid_request_error", "message": "bad"},
		},
	}))
	ee = events[0].(models.ErrorEvent)
	if ee.Err.Retryable {
		t.Error("invalid_request_error must not be retryable")
	}
}

// Stream replay: the same recorded framing list yields the same widget
// message sequence regardless of how the tool JSON was chunked.
func TestParser_ReplayIndependentOfChunking(t *testing.T) {
	coarse := []map[string]any{
		blockStart(1, "tool_use", "surface_update"),
		jsonDelta(1, `{"surfaceId":"x","widgets":[{"type":"text"}]}`),
		blockStop(1),
		messageStop(),
	}
	fine := []map[string]any{
		blockStart(1, "tool_use", "surface_update"),
		jsonDelta(1, `{"surfa`),
		jsonDelta(1, `ceId":"x","wid`),
		jsonDelta(1, `gets":[{"ty`),
		jsonDelta(1, `pe":"text"}]}`),
		blockStop(1),
		messageStop(),
	}

	p := &Parser{}
	a := p.ParseAll(coarse)
	b := p.ParseAll(fine)

	if !reflect.DeepEqual(a.Messages, b.Messages) {
		t.Errorf("chunking changed the message sequence:\n%#v\n%#v", a.Messages, b.Messages)
	}
	if !a.HasToolUse || !b.HasToolUse {
		t.Error("expected hasToolUse on both")
	}
}

func TestParser_ParseAllFoldsText(t *testing.T) {
	p := &Parser{}
	result := p.ParseAll([]map[string]any{
		textDelta("Hi "),
		textDelta("there"),
		messageStop(),
	})
	if result.Text != "Hi there" {
		t.Errorf("text = %q", result.Text)
	}
	if result.HasToolUse {
		t.Error("no tool use expected")
	}
	if result.IsEmpty() {
		t.Error("result with text is not empty")
	}
}
