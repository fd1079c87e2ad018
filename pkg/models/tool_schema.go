package models

// ToolSchema describes one tool exposed to the model: a unique name, a
// human-readable description, and a JSON-shaped input schema. Values are
// immutable once built into a catalog.
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
	Required    []string       `json:"required,omitempty"`
}

// Control tool names. The model mutates surfaces exclusively through
// these four tools.
const (
	ToolBeginRendering  = "begin_rendering"
	ToolSurfaceUpdate   = "surface_update"
	ToolDataModelUpdate = "data_model_update"
	ToolDeleteSurface   = "delete_surface"
)

// Search tool names, advertised only in search mode.
const (
	ToolSearchCatalog = "search_catalog"
	ToolLoadTools     = "load_tools"
)

// widgetNodeSchema is the schema for a widget inside surface_update.widgets.
// Children accept nested widget objects or bare string id references.
func widgetNodeSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"type":       map[string]any{"type": "string", "description": "Widget kind identifier"},
			"id":         map[string]any{"type": "string", "description": "Optional stable instance id"},
			"properties": map[string]any{"type": "object", "description": "Widget properties"},
			"children": map[string]any{
				"type":        "array",
				"description": "Nested widgets or string references to previously declared ids",
				"items": map[string]any{
					"anyOf": []any{
						map[string]any{"type": "object"},
						map[string]any{"type": "string"},
					},
				},
			},
			"dataBinding": map[string]any{
				"anyOf": []any{
					map[string]any{"type": "string"},
					map[string]any{"type": "object"},
				},
				"description": "Data-model path or per-property binding map",
			},
		},
		"required": []string{"type"},
	}
}

// ControlTools returns the four fixed surface-mutation tool schemas.
func ControlTools() []ToolSchema {
	return []ToolSchema{
		{
			Name:        ToolBeginRendering,
			Description: "Begin rendering a new UI surface. Call before the first surface_update for a surface.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"surfaceId":       map[string]any{"type": "string", "description": "Identifier of the surface to render"},
					"parentSurfaceId": map[string]any{"type": "string", "description": "Optional parent surface"},
					"root":            map[string]any{"type": "string", "description": "Root widget id, defaults to \"root\""},
				},
				"required": []string{"surfaceId"},
			},
			Required: []string{"surfaceId"},
		},
		{
			Name:        ToolSurfaceUpdate,
			Description: "Replace or append the widget tree of a surface.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"surfaceId": map[string]any{"type": "string", "description": "Target surface"},
					"widgets": map[string]any{
						"type":        "array",
						"description": "Ordered widget trees",
						"items":       widgetNodeSchema(),
					},
					"append": map[string]any{"type": "boolean", "description": "Append instead of replacing"},
				},
				"required": []string{"surfaceId", "widgets"},
			},
			Required: []string{"surfaceId", "widgets"},
		},
		{
			Name:        ToolDataModelUpdate,
			Description: "Write values into the shared data model that widgets bind against.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"updates": map[string]any{"type": "object", "description": "Path to value updates"},
					"scope":   map[string]any{"type": "string", "description": "Optional surface scope"},
				},
				"required": []string{"updates"},
			},
			Required: []string{"updates"},
		},
		{
			Name:        ToolDeleteSurface,
			Description: "Delete a surface and, by default, its child surfaces.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"surfaceId": map[string]any{"type": "string", "description": "Surface to delete"},
					"cascade":   map[string]any{"type": "boolean", "description": "Also delete child surfaces, defaults to true"},
				},
				"required": []string{"surfaceId"},
			},
			Required: []string{"surfaceId"},
		},
	}
}

// SearchTools returns the two catalog-search tool schemas used in
// search mode.
func SearchTools() []ToolSchema {
	return []ToolSchema{
		{
			Name:        ToolSearchCatalog,
			Description: "Search the widget tool catalog by keyword before loading tools.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query":       map[string]any{"type": "string", "description": "Search keywords"},
					"categories":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Optional category filter"},
					"max_results": map[string]any{"type": "integer", "description": "Maximum results, defaults to 10"},
				},
				"required": []string{"query"},
			},
			Required: []string{"query"},
		},
		{
			Name:        ToolLoadTools,
			Description: "Load widget tools by name so they become callable in following turns.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"tool_names": map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Names returned by search_catalog"},
				},
				"required": []string{"tool_names"},
			},
			Required: []string{"tool_names"},
		},
	}
}
