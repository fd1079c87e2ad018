package models

import (
	"encoding/json"
	"fmt"
)

// RefType is the reserved node type for string id references inside a
// children array. A ref node carries only the id of a previously-declared
// node and is resolved at render time by the UI layer.
const RefType = "_ref"

// BindingMode controls how a data-bound property syncs with the data model.
type BindingMode string

const (
	BindingOneWay  BindingMode = "oneWay"
	BindingTwoWay  BindingMode = "twoWay"
	BindingOneTime BindingMode = "oneTime"
)

// PropertyBinding binds a single widget property to a data-model path.
type PropertyBinding struct {
	Path string      `json:"path"`
	Mode BindingMode `json:"mode,omitempty"`
}

// DataBinding is either a simple path string or a map from property name
// to a path/mode record. Exactly one of Path or Bindings is set.
type DataBinding struct {
	Path     string
	Bindings map[string]PropertyBinding
}

// IsSimple reports whether the binding is the plain path form.
func (b *DataBinding) IsSimple() bool {
	return b != nil && b.Path != ""
}

// MarshalJSON encodes the simple form as a bare string and the map form
// as an object.
func (b DataBinding) MarshalJSON() ([]byte, error) {
	if b.Path != "" {
		return json.Marshal(b.Path)
	}
	return json.Marshal(b.Bindings)
}

// UnmarshalJSON accepts either a string or a property-binding object.
func (b *DataBinding) UnmarshalJSON(data []byte) error {
	var path string
	if err := json.Unmarshal(data, &path); err == nil {
		b.Path = path
		b.Bindings = nil
		return nil
	}
	var bindings map[string]PropertyBinding
	if err := json.Unmarshal(data, &bindings); err != nil {
		return fmt.Errorf("dataBinding must be a string or an object: %w", err)
	}
	b.Path = ""
	b.Bindings = bindings
	return nil
}

// WidgetNode is one node in a widget tree. Children are owned exclusively
// by their parent; a child may also be a reference to a previously-declared
// node id, modeled as a node of type RefType.
type WidgetNode struct {
	Type        string         `json:"type"`
	ID          string         `json:"id,omitempty"`
	Properties  map[string]any `json:"properties,omitempty"`
	Children    []WidgetNode   `json:"children,omitempty"`
	DataBinding *DataBinding   `json:"dataBinding,omitempty"`
}

// widgetNodeAlias avoids UnmarshalJSON recursion on the outer struct.
type widgetNodeAlias struct {
	Type        string            `json:"type"`
	ID          string            `json:"id,omitempty"`
	Properties  map[string]any    `json:"properties,omitempty"`
	Children    []json.RawMessage `json:"children,omitempty"`
	DataBinding *DataBinding      `json:"dataBinding,omitempty"`
}

// UnmarshalJSON decodes a widget node, accepting children that are either
// nested node objects or bare string id references.
func (n *WidgetNode) UnmarshalJSON(data []byte) error {
	var alias widgetNodeAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}

	n.Type = alias.Type
	n.ID = alias.ID
	n.Properties = alias.Properties
	n.DataBinding = alias.DataBinding
	n.Children = nil

	for i, raw := range alias.Children {
		child, err := decodeChild(raw)
		if err != nil {
			return fmt.Errorf("children[%d]: %w", i, err)
		}
		n.Children = append(n.Children, child)
	}
	return nil
}

func decodeChild(raw json.RawMessage) (WidgetNode, error) {
	switch firstNonSpace(raw) {
	case '"':
		var id string
		if err := json.Unmarshal(raw, &id); err != nil {
			return WidgetNode{}, err
		}
		return WidgetNode{Type: RefType, ID: id}, nil
	case '{':
		var child WidgetNode
		if err := json.Unmarshal(raw, &child); err != nil {
			return WidgetNode{}, err
		}
		return child, nil
	default:
		return WidgetNode{}, fmt.Errorf("child must be a widget object or an id string, got %s", raw)
	}
}

func firstNonSpace(raw []byte) byte {
	for _, c := range raw {
		switch c {
		case ' ', '\t', '\n', '\r':
			continue
		}
		return c
	}
	return 0
}

// IsRef reports whether the node is a reference placeholder.
func (n *WidgetNode) IsRef() bool {
	return n.Type == RefType
}
