package docmodel

import (
	"encoding/json"
	"strconv"
	"strings"
)

func (n *Node) Prop(key string) string {
	switch v := n.Props[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		raw, _ := json.Marshal(v)
		return string(raw)
	}
}

func (n *Node) PropBool(key string) bool {
	switch v := n.Props[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(v))
		return b
	case float64:
		return v != 0
	default:
		return false
	}
}

// PropInt returns a numeric prop, or def when absent or not a number.
func (n *Node) PropInt(key string, def int) int {
	switch v := n.Props[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i
		}
	}
	return def
}

// DecodeProp re-encodes a prop into a typed value.
func (n *Node) DecodeProp(key string, into any) error {
	v, ok := n.Props[key]
	if !ok || v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, into)
}

// RichNode is a rich-text tree as produced by the editor: doc, paragraph,
// heading, bulletList, orderedList, listItem, hardBreak, text, expression.
type RichNode struct {
	Type    string         `json:"type"`
	Text    string         `json:"text,omitempty"`
	Attrs   map[string]any `json:"attrs,omitempty"`
	Marks   []Mark         `json:"marks,omitempty"`
	Content []RichNode     `json:"content,omitempty"`
}

type Mark struct {
	Type  string         `json:"type"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

func (r RichNode) Attr(key string) string {
	if s, ok := r.Attrs[key].(string); ok {
		return s
	}
	return ""
}

func (r RichNode) AttrInt(key string, def int) int {
	if f, ok := r.Attrs[key].(float64); ok {
		return int(f)
	}
	return def
}

func (r RichNode) AttrBool(key string) bool {
	b, _ := r.Attrs[key].(bool)
	return b
}

// TableColumn configures one column of a datatable node.
type TableColumn struct {
	Header     string  `json:"header"`
	Expression string  `json:"expression"`
	Width      float64 `json:"width,omitempty"`
	Align      string  `json:"align,omitempty"`
}
