package genui

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/unfazed-dev/genui/pkg/models"
)

// ToWireMessages converts application chat history into upstream wire
// messages. Text-only user and assistant messages keep a plain string
// content; anything carrying tool calls, tool results, or images becomes
// a content-block list. Tool-result messages always land on the user
// role. Internal messages are skipped; use ExtractSystemContext for them.
func ToWireMessages(history []models.ChatMessage) ([]models.WireMessage, error) {
	var result []models.WireMessage

	for _, msg := range history {
		if msg.Internal || msg.Role == models.RoleSystem {
			continue
		}

		if len(msg.ToolCalls) == 0 && len(msg.ToolResults) == 0 && len(msg.Images) == 0 {
			result = append(result, models.WireMessage{
				Role:    string(msg.Role),
				Content: msg.Content,
			})
			continue
		}

		var blocks []map[string]any

		if msg.Content != "" {
			blocks = append(blocks, map[string]any{"type": "text", "text": msg.Content})
		}

		for _, img := range msg.Images {
			blocks = append(blocks, imageBlock(img))
		}

		for _, tr := range msg.ToolResults {
			blocks = append(blocks, map[string]any{
				"type":        "tool_result",
				"tool_use_id": tr.ToolCallID,
				"content":     tr.Content,
				"is_error":    tr.IsError,
			})
		}

		for _, call := range msg.ToolCalls {
			var input map[string]any
			if err := json.Unmarshal(call.Input, &input); err != nil {
				return nil, models.WrapError(models.ErrorToolConversion,
					"invalid tool call input for "+call.Name, err)
			}
			blocks = append(blocks, map[string]any{
				"type":  "tool_use",
				"id":    call.ID,
				"name":  call.Name,
				"input": input,
			})
		}

		role := string(msg.Role)
		if len(msg.ToolResults) > 0 {
			role = string(models.RoleUser)
		}
		result = append(result, models.WireMessage{Role: role, Content: blocks})
	}

	return result, nil
}

func imageBlock(img models.ImageSource) map[string]any {
	if img.URL != "" {
		return map[string]any{
			"type":   "image",
			"source": map[string]any{"type": "url", "url": img.URL},
		}
	}
	return map[string]any{
		"type": "image",
		"source": map[string]any{
			"type":       "base64",
			"media_type": img.MediaType,
			"data":       img.Data,
		},
	}
}

// ExtractSystemContext joins the content of internal and system messages
// into the system instruction.
func ExtractSystemContext(history []models.ChatMessage) string {
	var parts []string
	for _, msg := range history {
		if (msg.Internal || msg.Role == models.RoleSystem) && msg.Content != "" {
			parts = append(parts, msg.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}

// PruneHistory keeps the most recent maxMessages suffix, then advances the
// start so the kept slice begins on a user-role message, preserving
// call/result pairing. maxMessages <= 0 keeps everything.
func PruneHistory(history []models.ChatMessage, maxMessages int) []models.ChatMessage {
	if maxMessages <= 0 || len(history) <= maxMessages {
		return history
	}

	kept := history[len(history)-maxMessages:]
	for i, msg := range kept {
		if msg.Role == models.RoleUser {
			return kept[i:]
		}
	}
	return kept[:0]
}

// ToSurfaceMessage converts a parsed widget message into the
// application's surface representation.
func ToSurfaceMessage(message models.WidgetMessage) models.SurfaceMessage {
	switch m := message.(type) {
	case models.BeginRendering:
		rootID := m.RootID
		if rootID == "" {
			rootID = models.DefaultRootID
		}
		return models.SurfaceMessage{
			Kind:            models.SurfaceBegin,
			SurfaceID:       m.SurfaceID,
			ParentSurfaceID: m.ParentSurfaceID,
			RootID:          rootID,
			Metadata:        m.Metadata,
		}

	case models.SurfaceUpdate:
		components := make([]models.Component, 0, len(m.Widgets))
		for _, node := range m.Widgets {
			components = append(components, toComponent(node))
		}
		return models.SurfaceMessage{
			Kind:       models.SurfaceRender,
			SurfaceID:  m.SurfaceID,
			Components: components,
			Append:     m.Append,
		}

	case models.DataModelUpdate:
		scope := m.Scope
		if scope == "" {
			scope = models.GlobalScope
		}
		return models.SurfaceMessage{
			Kind:    models.SurfaceData,
			Updates: m.Updates,
			Scope:   scope,
		}

	case models.DeleteSurface:
		return models.SurfaceMessage{
			Kind:      models.SurfaceDelete,
			SurfaceID: m.SurfaceID,
			Cascade:   m.Cascade,
		}

	default:
		return models.SurfaceMessage{}
	}
}

// toComponent maps a widget node to a component whose identity is the
// node id or a freshly generated one, and whose property map is keyed by
// the node type.
func toComponent(node models.WidgetNode) models.Component {
	id := node.ID
	if id == "" {
		id = uuid.NewString()
	}
	props := node.Properties
	if props == nil {
		props = map[string]any{}
	}
	return models.Component{
		ID:         id,
		Properties: map[string]map[string]any{node.Type: props},
	}
}
