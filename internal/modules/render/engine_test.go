package render

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/docforge-backend/internal/modules/expression"
	"github.com/yungbote/docforge-backend/internal/modules/render/docmodel"
	"github.com/yungbote/docforge-backend/internal/modules/styles"
)

type graph struct {
	doc *docmodel.Document
	seq int
}

func newGraph() *graph {
	g := &graph{doc: &docmodel.Document{
		Root:  "root",
		Nodes: map[string]*docmodel.Node{},
		Slots: map[string]*docmodel.Slot{},
	}}
	g.doc.Nodes["root"] = &docmodel.Node{ID: "root", Type: docmodel.NodeRoot}
	return g
}

// slot returns the named slot of parent, creating it on first use.
func (g *graph) slot(parent, name string) string {
	id := parent + "." + name
	if _, ok := g.doc.Slots[id]; !ok {
		g.doc.Slots[id] = &docmodel.Slot{ID: id, NodeID: parent, Name: name}
		p := g.doc.Nodes[parent]
		p.Slots = append(p.Slots, id)
	}
	return id
}

func (g *graph) add(parent string, typ docmodel.NodeType, props map[string]any) string {
	return g.addTo(g.slot(parent, "children"), typ, props)
}

func (g *graph) addTo(slotID string, typ docmodel.NodeType, props map[string]any) string {
	g.seq++
	id := fmt.Sprintf("n%d", g.seq)
	g.doc.Nodes[id] = &docmodel.Node{ID: id, Type: typ, Props: props}
	s := g.doc.Slots[slotID]
	s.Children = append(s.Children, id)
	return id
}

func plain(text string) map[string]any {
	return map[string]any{"text": text}
}

func render(t *testing.T, g *graph, data map[string]any) *Output {
	t.Helper()
	out, err := NewEngine(nil).Render(g.doc, data, styles.Resolved{})
	require.NoError(t, err)
	return out
}

func TestRenderTextInterpolationAndMarks(t *testing.T) {
	g := newGraph()
	var content map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{
		"type": "doc",
		"content": [
			{"type": "heading", "attrs": {"level": 2}, "content": [{"type": "text", "text": "Invoice {{ invoice.number }}"}]},
			{"type": "paragraph", "content": [
				{"type": "text", "text": "Dear "},
				{"type": "text", "text": "{{customer.name}}", "marks": [{"type": "bold"}, {"type": "textColor", "attrs": {"color": "#c00"}}]},
				{"type": "hardBreak"},
				{"type": "expression", "attrs": {"expression": "$sum(lines.amount)"}}
			]},
			{"type": "bulletList", "content": [
				{"type": "listItem", "content": [{"type": "paragraph", "content": [{"type": "text", "text": "one"}]}]},
				{"type": "listItem", "content": [{"type": "paragraph", "content": [{"type": "text", "text": "two"}]}]}
			]}
		]
	}`), &content))
	g.add("root", docmodel.NodeText, map[string]any{"content": content})

	out := render(t, g, map[string]any{
		"invoice":  map[string]any{"number": "F-7"},
		"customer": map[string]any{"name": "Ada"},
		"lines":    []any{map[string]any{"amount": float64(2)}, map[string]any{"amount": float64(5)}},
	})

	require.Len(t, out.Body, 4)
	assert.Equal(t, KindHeading, out.Body[0].Kind)
	assert.Equal(t, 2, out.Body[0].Level)
	assert.Equal(t, "Invoice F-7", out.Body[0].Runs[0].Text)

	runs := out.Body[1].Runs
	require.Len(t, runs, 4)
	assert.Equal(t, Run{Text: "Ada", Bold: true, Color: "#c00"}, runs[1])
	assert.True(t, runs[2].Break)
	assert.Equal(t, "7", runs[3].Text)

	assert.Equal(t, KindListItem, out.Body[2].Kind)
	assert.Equal(t, "•", out.Body[2].Marker)
	assert.Equal(t, 1, out.Body[3].Indent)
	assert.Empty(t, out.Warnings)
}

func TestRenderConditional(t *testing.T) {
	for _, tc := range []struct {
		name    string
		vip     any
		inverse bool
		want    string
	}{
		{"true", true, false, "vip\n"},
		{"false", false, false, ""},
		{"inverse", false, true, "vip\n"},
		{"missing counts as false", nil, false, ""},
	} {
		t.Run(tc.name, func(t *testing.T) {
			g := newGraph()
			cond := g.add("root", docmodel.NodeConditional, map[string]any{"condition": "customer.vip", "inverse": tc.inverse})
			g.add(cond, docmodel.NodeText, plain("vip"))

			customer := map[string]any{}
			if tc.vip != nil {
				customer["vip"] = tc.vip
			}
			out := render(t, g, map[string]any{"customer": customer})
			assert.Equal(t, tc.want, PlainText(out.Body))
		})
	}
}

func TestRenderNestedLoopsShadow(t *testing.T) {
	g := newGraph()
	outer := g.add("root", docmodel.NodeLoop, map[string]any{"expression": "groups", "itemAlias": "item", "indexAlias": "i"})
	g.add(outer, docmodel.NodeText, plain("{{i}}:{{item.name}}"))
	inner := g.add(outer, docmodel.NodeLoop, map[string]any{"expression": "item.entries", "itemAlias": "item"})
	g.add(inner, docmodel.NodeText, plain("- {{item}}"))
	g.add(outer, docmodel.NodeText, plain("end {{item.name}}"))

	out := render(t, g, map[string]any{
		"groups": []any{
			map[string]any{"name": "a", "entries": []any{"x", "y"}},
			map[string]any{"name": "b", "entries": []any{}},
		},
	})
	assert.Equal(t, "0:a\n- x\n- y\nend a\n1:b\nend b\n", PlainText(out.Body))
}

func TestRenderLoopSources(t *testing.T) {
	g := newGraph()
	loop := g.add("root", docmodel.NodeLoop, map[string]any{"expression": "rows"})
	g.add(loop, docmodel.NodeText, plain("row"))

	out := render(t, g, map[string]any{})
	assert.Empty(t, out.Body)

	_, err := NewEngine(nil).Render(g.doc, map[string]any{"rows": "nope"}, styles.Resolved{})
	assert.ErrorIs(t, err, expression.ErrNotIterable)

	g.doc.Nodes[loop].Props["required"] = true
	_, err = NewEngine(nil).Render(g.doc, map[string]any{}, styles.Resolved{})
	assert.ErrorIs(t, err, ErrRequiredValue)
}

func TestRenderBadExpressionWarnsAndContinues(t *testing.T) {
	g := newGraph()
	g.add("root", docmodel.NodeText, plain("total {{ $sum( }} done"))
	g.add("root", docmodel.NodeText, plain("after"))

	out := render(t, g, map[string]any{})
	assert.Equal(t, "total  done\nafter\n", PlainText(out.Body))
	require.Len(t, out.Warnings, 1)
	assert.Equal(t, "$sum(", out.Warnings[0].Expression)
	assert.Equal(t, "n1", out.Warnings[0].NodeID)
}

func TestRenderRejectsUnknownNodeAndCycles(t *testing.T) {
	g := newGraph()
	g.add("root", docmodel.NodeType("video"), nil)
	_, err := NewEngine(nil).Render(g.doc, nil, styles.Resolved{})
	assert.ErrorIs(t, err, ErrUnsupportedNode)

	g = newGraph()
	c := g.add("root", docmodel.NodeContainer, nil)
	s := g.slot(c, "children")
	g.doc.Slots[s].Children = append(g.doc.Slots[s].Children, c)
	_, err = NewEngine(nil).Render(g.doc, nil, styles.Resolved{})
	assert.ErrorIs(t, err, ErrCycle)

	g = newGraph()
	s = g.slot("root", "children")
	g.doc.Slots[s].Children = []string{"ghost"}
	_, err = NewEngine(nil).Render(g.doc, nil, styles.Resolved{})
	assert.ErrorIs(t, err, ErrMissingNode)
}

func TestRenderSharedChildIsNotACycle(t *testing.T) {
	g := newGraph()
	shared := g.add("root", docmodel.NodeText, plain("same"))
	s := g.slot("root", "children")
	g.doc.Slots[s].Children = append(g.doc.Slots[s].Children, shared)

	out := render(t, g, nil)
	assert.Equal(t, "same\nsame\n", PlainText(out.Body))
}

func TestRenderHeaderFooterAndPage(t *testing.T) {
	g := newGraph()
	h := g.add("root", docmodel.NodePageHeader, nil)
	g.add(h, docmodel.NodeText, plain("ACME"))
	f := g.add("root", docmodel.NodePageFooter, nil)
	g.add(f, docmodel.NodeText, plain("confidential"))
	g.add("root", docmodel.NodeText, plain("body"))
	g.add("root", docmodel.NodePageBreak, nil)
	g.add("root", docmodel.NodeSpacer, map[string]any{"height": "1cm"})

	out := render(t, g, nil)
	assert.Equal(t, "ACME\n", PlainText(out.Header))
	assert.Equal(t, "confidential\n", PlainText(out.Footer))
	require.Len(t, out.Body, 3)
	assert.Equal(t, KindPageBreak, out.Body[1].Kind)
	assert.InDelta(t, 10, out.Body[2].Height, 0.001)
	assert.Equal(t, styles.DefaultPageSettings(), out.Page)
}

func TestRenderTablesAndColumns(t *testing.T) {
	g := newGraph()
	cols := g.add("root", docmodel.NodeColumns, map[string]any{"widths": []any{float64(1), float64(3)}})
	g.addTo(g.slot(cols, "left"), docmodel.NodeText, plain("L"))
	g.addTo(g.slot(cols, "right"), docmodel.NodeText, plain("R"))

	tbl := g.add("root", docmodel.NodeTable, map[string]any{"columns": float64(2), "headerRows": float64(1)})
	for _, cell := range []string{"h1", "h2", "a"} {
		g.addTo(g.slot(tbl, cell), docmodel.NodeText, plain(cell))
	}

	g.add("root", docmodel.NodeDataTable, map[string]any{
		"expression": "lines",
		"itemAlias":  "line",
		"columns": []any{
			map[string]any{"header": "SKU", "expression": "line.sku"},
			map[string]any{"header": "Total", "expression": "line.qty * line.price", "align": "right", "width": float64(2)},
		},
	})

	out := render(t, g, map[string]any{"lines": []any{
		map[string]any{"sku": "A", "qty": float64(2), "price": 1.5},
	}})
	require.Len(t, out.Body, 3)

	c := out.Body[0]
	assert.Equal(t, KindColumns, c.Kind)
	assert.InDeltaSlice(t, []float64{0.25, 0.75}, c.Widths, 0.0001)
	assert.Equal(t, "L\n", PlainText(c.Columns[0]))

	table := out.Body[1].Table
	require.Len(t, table.Rows, 2)
	assert.Len(t, table.Rows[1], 2)
	assert.Empty(t, table.Rows[1][1].Elements)

	data := out.Body[2].Table
	require.Len(t, data.Rows, 2)
	assert.Equal(t, "SKU\nTotal\nA\n3\n", PlainText(out.Body[2:]))
	assert.Equal(t, "right", data.Rows[1][1].Align)
	assert.True(t, styles.IsBold(data.Rows[0][0].Elements[0].Style.FontWeight))
}

func TestRenderTableColumnsClampedToCells(t *testing.T) {
	g := newGraph()
	tbl := g.add("root", docmodel.NodeTable, map[string]any{"columns": float64(1e9)})
	for _, cell := range []string{"a", "b"} {
		g.addTo(g.slot(tbl, cell), docmodel.NodeText, plain(cell))
	}
	g.add("root", docmodel.NodeTable, map[string]any{"columns": float64(1e9)})

	out := render(t, g, nil)
	require.Len(t, out.Body, 2)

	table := out.Body[0].Table
	require.Len(t, table.Rows, 1)
	assert.Len(t, table.Rows[0], 2)
	assert.Len(t, table.Widths, 2)

	empty := out.Body[1].Table
	assert.Empty(t, empty.Rows)
	assert.Len(t, empty.Widths, 1)
}

func TestRenderStyleCascade(t *testing.T) {
	g := newGraph()
	c := g.add("root", docmodel.NodeContainer, nil)
	g.doc.Nodes[c].StylePreset = "callout"
	g.doc.Nodes[c].Styles = styles.Style{MarginTop: "4mm", TextTransform: "uppercase"}
	txt := g.add(c, docmodel.NodeText, plain("cafe\u0301"))
	g.doc.Nodes[txt].Styles = styles.Style{Color: "#00f"}

	resolved := styles.Cascade(&styles.Theme{
		DocumentStyles: styles.Style{FontFamily: "Georgia", Color: "#111"},
		Presets:        map[string]styles.Style{"callout": {BackgroundColor: "#eee", FontStyle: "italic"}},
	}, styles.Style{FontFamily: "Arial"})

	out, err := NewEngine(nil).Render(g.doc, nil, resolved)
	require.NoError(t, err)

	group := out.Body[0]
	assert.Equal(t, "#eee", group.Style.BackgroundColor)
	assert.Equal(t, "4mm", group.Style.MarginTop)

	p := group.Children[0]
	assert.Equal(t, "Arial", p.Style.FontFamily)
	assert.Equal(t, "italic", p.Style.FontStyle)
	assert.Equal(t, "#00f", p.Style.Color)
	assert.Empty(t, p.Style.BackgroundColor)
	assert.Empty(t, p.Style.MarginTop)
	assert.Equal(t, "CAF\u00c9", p.Runs[0].Text)
}

func TestRenderIsDeterministic(t *testing.T) {
	g := newGraph()
	loop := g.add("root", docmodel.NodeLoop, map[string]any{"expression": "xs", "itemAlias": "x"})
	g.add(loop, docmodel.NodeText, plain("{{x.a}} {{ x.missing.deep }} {{ $uppercase(x.b) }} {{ x.b + }}"))
	data := map[string]any{"xs": []any{
		map[string]any{"a": float64(1), "b": "p"},
		map[string]any{"a": float64(2), "b": "q"},
	}}

	first, err := NewEngine(nil).Render(g.doc, data, styles.Resolved{})
	require.NoError(t, err)
	second, err := NewEngine(nil).Render(g.doc, data, styles.Resolved{})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, first.Warnings, 2)
}

func TestParseDocument(t *testing.T) {
	raw := []byte(`{
		"root": "r",
		"nodes": {"r": {"type": "root", "slots": ["r.c"]}, "t": {"type": "text", "props": {"text": "hi"}}},
		"slots": {"r.c": {"nodeId": "r", "name": "children", "children": ["t"]}},
		"themeRef": {"type": "override", "themeId": "6f1c1c36-2c1e-4a44-8d5b-2b8a1c1f0e11"},
		"documentStyles": {"fontFamily": "Georgia"}
	}`)
	doc, err := docmodel.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "t", doc.Nodes["t"].ID)
	require.NotNil(t, doc.ThemeOverride())
	assert.Equal(t, "Georgia", doc.DocumentStyles.FontFamily)

	out, err := NewEngine(nil).Render(doc, nil, styles.Resolved{})
	require.NoError(t, err)
	assert.Equal(t, "hi\n", PlainText(out.Body))

	_, err = docmodel.Parse([]byte(`{"root": "missing", "nodes": {}}`))
	assert.Error(t, err)
}
