package models

// WidgetMessageKind discriminates the four surface-mutation message variants.
type WidgetMessageKind string

const (
	KindBeginRendering  WidgetMessageKind = "begin_rendering"
	KindSurfaceUpdate   WidgetMessageKind = "surface_update"
	KindDataModelUpdate WidgetMessageKind = "data_model_update"
	KindDeleteSurface   WidgetMessageKind = "delete_surface"
)

// DefaultRootID is the root widget id assumed when begin_rendering omits one.
const DefaultRootID = "root"

// GlobalScope is the reserved scope for data-model updates that carry no
// explicit scope.
const GlobalScope = "__global__"

// WidgetMessage is one surface mutation emitted by the model. The four
// variants below are the only implementations.
type WidgetMessage interface {
	Kind() WidgetMessageKind
}

// BeginRendering announces a new surface before its first update.
type BeginRendering struct {
	SurfaceID       string         `json:"surfaceId"`
	ParentSurfaceID string         `json:"parentSurfaceId,omitempty"`
	RootID          string         `json:"root,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

func (BeginRendering) Kind() WidgetMessageKind { return KindBeginRendering }

// SurfaceUpdate replaces or appends the widget tree of a surface.
type SurfaceUpdate struct {
	SurfaceID string       `json:"surfaceId"`
	Widgets   []WidgetNode `json:"widgets"`
	Append    bool         `json:"append,omitempty"`
}

func (SurfaceUpdate) Kind() WidgetMessageKind { return KindSurfaceUpdate }

// DataModelUpdate writes values into the shared data model.
type DataModelUpdate struct {
	Updates map[string]any `json:"updates"`
	Scope   string         `json:"scope,omitempty"`
}

func (DataModelUpdate) Kind() WidgetMessageKind { return KindDataModelUpdate }

// DeleteSurface removes a surface and, when Cascade is set, its children.
type DeleteSurface struct {
	SurfaceID string `json:"surfaceId"`
	Cascade   bool   `json:"cascade"`
}

func (DeleteSurface) Kind() WidgetMessageKind { return KindDeleteSurface }

// ParseResult is the accumulated output of parsing one model response.
type ParseResult struct {
	Messages   []WidgetMessage
	Text       string
	HasToolUse bool
}

// IsEmpty reports whether the result carries neither widget messages
// nor text.
func (r ParseResult) IsEmpty() bool {
	return len(r.Messages) == 0 && r.Text == ""
}
