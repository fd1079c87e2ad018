package genui

import (
	"encoding/json"
	"testing"

	"github.com/unfazed-dev/genui/pkg/models"
)

func TestToWireMessages(t *testing.T) {
	t.Run("text-only messages keep string content", func(t *testing.T) {
		wire, err := ToWireMessages([]models.ChatMessage{
			{Role: models.RoleUser, Content: "hello"},
			{Role: models.RoleAssistant, Content: "hi"},
		})
		if err != nil {
			t.Fatal(err)
		}
		if len(wire) != 2 {
			t.Fatalf("expected 2 messages, got %d", len(wire))
		}
		if wire[0].Content != "hello" || wire[0].Role != "user" {
			t.Errorf("unexpected first message %+v", wire[0])
		}
		if _, ok := wire[1].Content.(string); !ok {
			t.Error("assistant text message should keep string content")
		}
	})

	t.Run("tool calls become content blocks", func(t *testing.T) {
		wire, err := ToWireMessages([]models.ChatMessage{
			{
				Role:    models.RoleAssistant,
				Content: "let me check",
				ToolCalls: []models.ToolCall{
					{ID: "t1", Name: "search_catalog", Input: json.RawMessage(`{"query":"x"}`)},
				},
			},
		})
		if err != nil {
			t.Fatal(err)
		}
		blocks, ok := wire[0].Content.([]map[string]any)
		if !ok {
			t.Fatalf("expected block list, got %T", wire[0].Content)
		}
		if len(blocks) != 2 {
			t.Fatalf("expected text + tool_use blocks, got %d", len(blocks))
		}
		if blocks[0]["type"] != "text" || blocks[1]["type"] != "tool_use" {
			t.Errorf("unexpected block ordering: %v", blocks)
		}
		if blocks[1]["name"] != "search_catalog" {
			t.Errorf("tool name lost: %v", blocks[1])
		}
	})

	t.Run("tool results always land on the user role", func(t *testing.T) {
		wire, err := ToWireMessages([]models.ChatMessage{
			{
				Role: models.RoleAssistant,
				ToolResults: []models.ToolResult{
					{ToolCallID: "t1", Content: "ok"},
				},
			},
		})
		if err != nil {
			t.Fatal(err)
		}
		if wire[0].Role != "user" {
			t.Errorf("tool results must be user role, got %s", wire[0].Role)
		}
	})

	t.Run("internal and system messages are skipped", func(t *testing.T) {
		wire, err := ToWireMessages([]models.ChatMessage{
			{Role: models.RoleSystem, Content: "be nice"},
			{Role: models.RoleUser, Content: "hi", Internal: true},
			{Role: models.RoleUser, Content: "hello"},
		})
		if err != nil {
			t.Fatal(err)
		}
		if len(wire) != 1 {
			t.Fatalf("expected 1 message, got %d", len(wire))
		}
	})

	t.Run("invalid tool input is a conversion error", func(t *testing.T) {
		_, err := ToWireMessages([]models.ChatMessage{
			{
				Role:      models.RoleAssistant,
				ToolCalls: []models.ToolCall{{ID: "t1", Name: "x", Input: json.RawMessage(`{bad`)}},
			},
		})
		if err == nil {
			t.Fatal("expected error")
		}
		ge, ok := err.(*models.GenUIError)
		if !ok || ge.Kind != models.ErrorToolConversion {
			t.Errorf("expected tool_conversion error, got %v", err)
		}
	})

	t.Run("images become image blocks", func(t *testing.T) {
		wire, err := ToWireMessages([]models.ChatMessage{
			{
				Role:    models.RoleUser,
				Content: "look",
				Images:  []models.ImageSource{{MediaType: "image/png", Data: "aGk="}},
			},
		})
		if err != nil {
			t.Fatal(err)
		}
		blocks := wire[0].Content.([]map[string]any)
		if blocks[1]["type"] != "image" {
			t.Errorf("expected image block, got %v", blocks[1])
		}
	})
}

func TestExtractSystemContext(t *testing.T) {
	got := ExtractSystemContext([]models.ChatMessage{
		{Role: models.RoleSystem, Content: "one"},
		{Role: models.RoleUser, Content: "skip me"},
		{Role: models.RoleUser, Content: "two", Internal: true},
	})
	if got != "one\n\ntwo" {
		t.Errorf("system context = %q", got)
	}
}

func TestPruneHistory(t *testing.T) {
	history := []models.ChatMessage{
		{Role: models.RoleUser, Content: "u1"},
		{Role: models.RoleAssistant, Content: "a1"},
		{Role: models.RoleUser, Content: "u2"},
		{Role: models.RoleAssistant, Content: "a2"},
		{Role: models.RoleUser, Content: "u3"},
		{Role: models.RoleAssistant, Content: "a3"},
	}

	t.Run("keeps everything when under the bound", func(t *testing.T) {
		if got := PruneHistory(history, 10); len(got) != 6 {
			t.Errorf("expected all 6 messages, got %d", len(got))
		}
		if got := PruneHistory(history, 0); len(got) != 6 {
			t.Errorf("zero bound keeps everything, got %d", len(got))
		}
	})

	t.Run("suffix starts on a user message", func(t *testing.T) {
		got := PruneHistory(history, 3)
		if len(got) != 2 {
			t.Fatalf("expected 2 messages after user-start adjustment, got %d", len(got))
		}
		if got[0].Role != models.RoleUser || got[0].Content != "u3" {
			t.Errorf("expected slice to start at u3, got %+v", got[0])
		}
	})
}

func TestToSurfaceMessage(t *testing.T) {
	t.Run("begin rendering", func(t *testing.T) {
		got := ToSurfaceMessage(models.BeginRendering{SurfaceID: "s", RootID: "main"})
		if got.Kind != models.SurfaceBegin || got.SurfaceID != "s" || got.RootID != "main" {
			t.Errorf("unexpected surface message %+v", got)
		}
	})

	t.Run("surface update maps nodes to components", func(t *testing.T) {
		got := ToSurfaceMessage(models.SurfaceUpdate{
			SurfaceID: "s",
			Widgets: []models.WidgetNode{
				{Type: "text", ID: "t1", Properties: map[string]any{"value": "hi"}},
				{Type: "button"},
			},
			Append: true,
		})
		if got.Kind != models.SurfaceRender || !got.Append {
			t.Errorf("unexpected message %+v", got)
		}
		if len(got.Components) != 2 {
			t.Fatalf("expected 2 components, got %d", len(got.Components))
		}
		if got.Components[0].ID != "t1" {
			t.Errorf("node id should be preserved, got %s", got.Components[0].ID)
		}
		if got.Components[1].ID == "" {
			t.Error("missing node id should be freshly generated")
		}
		props, ok := got.Components[0].Properties["text"]
		if !ok || props["value"] != "hi" {
			t.Errorf("properties should be keyed by node type: %v", got.Components[0].Properties)
		}
	})

	t.Run("unscoped data model update maps to global scope", func(t *testing.T) {
		got := ToSurfaceMessage(models.DataModelUpdate{Updates: map[string]any{"a": 1}})
		if got.Kind != models.SurfaceData || got.Scope != models.GlobalScope {
			t.Errorf("unexpected message %+v", got)
		}
	})

	t.Run("delete surface", func(t *testing.T) {
		got := ToSurfaceMessage(models.DeleteSurface{SurfaceID: "s", Cascade: true})
		if got.Kind != models.SurfaceDelete || !got.Cascade {
			t.Errorf("unexpected message %+v", got)
		}
	})
}
