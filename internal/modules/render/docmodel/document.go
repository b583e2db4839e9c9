package docmodel

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/yungbote/docforge-backend/internal/modules/styles"
)

type NodeType string

const (
	NodeRoot        NodeType = "root"
	NodeContainer   NodeType = "container"
	NodeText        NodeType = "text"
	NodeConditional NodeType = "conditional"
	NodeLoop        NodeType = "loop"
	NodeColumns     NodeType = "columns"
	NodeTable       NodeType = "table"
	NodeDataTable   NodeType = "datatable"
	NodePageBreak   NodeType = "pagebreak"
	NodePageHeader  NodeType = "pageheader"
	NodePageFooter  NodeType = "pagefooter"
	NodeSpacer      NodeType = "spacer"
)

// Document is the node/slot graph stored in a template version.
type Document struct {
	Root           string           `json:"root"`
	Nodes          map[string]*Node `json:"nodes"`
	Slots          map[string]*Slot `json:"slots"`
	ThemeRef       *ThemeRef        `json:"themeRef,omitempty"`
	DocumentStyles styles.Style     `json:"documentStyles"`
	// PageSettingsOverride is accepted for compatibility and ignored; page
	// settings come from the theme.
	PageSettingsOverride json.RawMessage `json:"pageSettingsOverride,omitempty"`
}

// Node is a content or layout element. Slots are the ids of the named child
// lists it exposes, in display order.
type Node struct {
	ID          string         `json:"id"`
	Type        NodeType       `json:"type"`
	Slots       []string       `json:"slots,omitempty"`
	Props       map[string]any `json:"props,omitempty"`
	Styles      styles.Style   `json:"styles"`
	StylePreset string         `json:"stylePreset,omitempty"`
}

type Slot struct {
	ID       string   `json:"id"`
	NodeID   string   `json:"nodeId"`
	Name     string   `json:"name"`
	Children []string `json:"children"`
}

type ThemeRefType string

const (
	ThemeInherit  ThemeRefType = "inherit"
	ThemeOverride ThemeRefType = "override"
)

type ThemeRef struct {
	Type    ThemeRefType `json:"type"`
	ThemeID *uuid.UUID   `json:"themeId,omitempty"`
}

// Parse decodes and structurally checks a stored graph. It does not look
// for cycles; the renderer does that while walking.
func Parse(raw []byte) (*Document, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, fmt.Errorf("document graph is empty")
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode document graph: %w", err)
	}
	if doc.Root == "" {
		return nil, fmt.Errorf("document graph has no root")
	}
	if _, ok := doc.Nodes[doc.Root]; !ok {
		return nil, fmt.Errorf("root node %q not found", doc.Root)
	}
	for id, n := range doc.Nodes {
		if n == nil {
			return nil, fmt.Errorf("node %q is null", id)
		}
		if n.ID == "" {
			n.ID = id
		}
	}
	for id, s := range doc.Slots {
		if s == nil {
			return nil, fmt.Errorf("slot %q is null", id)
		}
		if s.ID == "" {
			s.ID = id
		}
	}
	return &doc, nil
}

// ThemeOverride is the version-level theme, if the graph overrides one.
func (d *Document) ThemeOverride() *uuid.UUID {
	if d == nil || d.ThemeRef == nil || d.ThemeRef.Type != ThemeOverride {
		return nil
	}
	if d.ThemeRef.ThemeID == nil || *d.ThemeRef.ThemeID == uuid.Nil {
		return nil
	}
	id := *d.ThemeRef.ThemeID
	return &id
}

// SlotsOf returns a node's slots in order. Unknown slot ids are reported.
func (d *Document) SlotsOf(n *Node) ([]*Slot, error) {
	out := make([]*Slot, 0, len(n.Slots))
	for _, id := range n.Slots {
		s, ok := d.Slots[id]
		if !ok {
			return nil, fmt.Errorf("node %q references missing slot %q", n.ID, id)
		}
		out = append(out, s)
	}
	return out, nil
}

// Node looks up a node by id.
func (d *Document) Node(id string) (*Node, bool) {
	n, ok := d.Nodes[id]
	return n, ok
}
