package render

import (
	"errors"
	"fmt"

	"github.com/yungbote/docforge-backend/internal/modules/expression"
	"github.com/yungbote/docforge-backend/internal/modules/render/docmodel"
	"github.com/yungbote/docforge-backend/internal/modules/styles"
)

var (
	ErrUnsupportedNode = errors.New("unsupported node type")
	ErrCycle           = errors.New("document graph contains a cycle")
	ErrMissingNode     = errors.New("document graph references a missing node")
	ErrRequiredValue   = errors.New("required value is missing")
)

const defaultItemAlias = "item"

// Engine turns a document graph plus input data into page elements. It holds
// no per-render state and is safe for concurrent use.
type Engine struct {
	eval *expression.Evaluator
}

func NewEngine(eval *expression.Evaluator) *Engine {
	if eval == nil {
		eval = expression.NewEvaluator()
	}
	return &Engine{eval: eval}
}

// Render walks doc from its root. Expression failures become warnings; graph
// defects, non-iterable loop sources and missing required values are errors.
func (e *Engine) Render(doc *docmodel.Document, data map[string]any, resolved styles.Resolved) (*Output, error) {
	if doc == nil {
		return nil, fmt.Errorf("render: nil document")
	}
	page := styles.DefaultPageSettings()
	if resolved.Page != nil {
		page = *resolved.Page
	}
	r := &renderer{
		eval:     e.eval,
		doc:      doc,
		resolved: resolved,
		onPath:   map[string]bool{},
		out: &Output{
			Page:          page,
			DocumentStyle: resolved.Document,
		},
	}
	root, ok := doc.Node(doc.Root)
	if !ok {
		return nil, fmt.Errorf("%w: root %q", ErrMissingNode, doc.Root)
	}
	body, err := r.node(root, expression.NewScope(data), resolved.Document)
	if err != nil {
		return nil, err
	}
	r.out.Body = body
	return r.out, nil
}

type renderer struct {
	eval     *expression.Evaluator
	doc      *docmodel.Document
	resolved styles.Resolved
	onPath   map[string]bool
	out      *Output
}

func (r *renderer) warn(nodeID, expr string, err error) {
	r.out.Warnings = append(r.out.Warnings, Warning{NodeID: nodeID, Expression: expr, Message: err.Error()})
}

// evaluate never fails: errors are recorded and yield nil.
func (r *renderer) evaluate(nodeID, expr string, lang expression.Language, scope *expression.Scope) any {
	v, err := r.eval.Evaluate(expr, lang, scope)
	if err != nil {
		r.warn(nodeID, expr, err)
		return nil
	}
	return v
}

func (r *renderer) styleFor(n *docmodel.Node, parent styles.Style) styles.Style {
	return styles.Merge(parent.Inheritable(), r.resolved.Block(n.StylePreset, n.Styles))
}

func (r *renderer) node(n *docmodel.Node, scope *expression.Scope, parent styles.Style) ([]Element, error) {
	if r.onPath[n.ID] {
		return nil, fmt.Errorf("%w at node %q", ErrCycle, n.ID)
	}
	r.onPath[n.ID] = true
	defer delete(r.onPath, n.ID)

	var style styles.Style
	if n.Type == docmodel.NodeRoot {
		style = styles.Merge(parent, r.resolved.Block(n.StylePreset, n.Styles))
	} else {
		style = r.styleFor(n, parent)
	}

	switch n.Type {
	case docmodel.NodeRoot:
		return r.children(n, scope, style)
	case docmodel.NodeContainer:
		kids, err := r.children(n, scope, style)
		if err != nil {
			return nil, err
		}
		return []Element{{Kind: KindGroup, NodeID: n.ID, Style: style, Children: kids}}, nil
	case docmodel.NodeText:
		return r.text(n, scope, style)
	case docmodel.NodeConditional:
		return r.conditional(n, scope, style)
	case docmodel.NodeLoop:
		return r.loop(n, scope, style)
	case docmodel.NodeColumns:
		return r.columns(n, scope, style)
	case docmodel.NodeTable:
		return r.table(n, scope, style)
	case docmodel.NodeDataTable:
		return r.dataTable(n, scope, style)
	case docmodel.NodePageBreak:
		return []Element{{Kind: KindPageBreak, NodeID: n.ID}}, nil
	case docmodel.NodeSpacer:
		return []Element{{Kind: KindSpacer, NodeID: n.ID, Height: styles.LengthMM(n.Prop("height"), 5)}}, nil
	case docmodel.NodePageHeader, docmodel.NodePageFooter:
		kids, err := r.children(n, scope, style)
		if err != nil {
			return nil, err
		}
		if n.Type == docmodel.NodePageHeader {
			r.out.Header = append(r.out.Header, kids...)
		} else {
			r.out.Footer = append(r.out.Footer, kids...)
		}
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %q (node %q)", ErrUnsupportedNode, n.Type, n.ID)
	}
}

// children renders every slot of n in order.
func (r *renderer) children(n *docmodel.Node, scope *expression.Scope, style styles.Style) ([]Element, error) {
	slots, err := r.doc.SlotsOf(n)
	if err != nil {
		return nil, err
	}
	var out []Element
	for _, s := range slots {
		elems, err := r.slot(s, scope, style)
		if err != nil {
			return nil, err
		}
		out = append(out, elems...)
	}
	return out, nil
}

func (r *renderer) slot(s *docmodel.Slot, scope *expression.Scope, style styles.Style) ([]Element, error) {
	var out []Element
	for _, id := range s.Children {
		child, ok := r.doc.Node(id)
		if !ok {
			return nil, fmt.Errorf("%w: %q in slot %q", ErrMissingNode, id, s.ID)
		}
		elems, err := r.node(child, scope, style)
		if err != nil {
			return nil, err
		}
		out = append(out, elems...)
	}
	return out, nil
}

func (r *renderer) conditional(n *docmodel.Node, scope *expression.Scope, style styles.Style) ([]Element, error) {
	expr := n.Prop("condition")
	ok := expression.Truthy(r.evaluate(n.ID, expr, expression.ParseLanguage(n.Prop("language")), scope))
	if n.PropBool("inverse") {
		ok = !ok
	}
	if !ok {
		return nil, nil
	}
	return r.children(n, scope, style)
}

func (r *renderer) loop(n *docmodel.Node, scope *expression.Scope, style styles.Style) ([]Element, error) {
	items, err := r.iterate(n, scope)
	if err != nil {
		return nil, err
	}
	alias := n.Prop("itemAlias")
	if alias == "" {
		alias = defaultItemAlias
	}
	indexAlias := n.Prop("indexAlias")

	var out []Element
	for i, item := range items {
		bindings := map[string]any{alias: item}
		if indexAlias != "" {
			bindings[indexAlias] = float64(i)
		}
		elems, err := r.children(n, scope.With(bindings), style)
		if err != nil {
			return nil, err
		}
		out = append(out, elems...)
	}
	return out, nil
}

// iterate evaluates a loop source. An undefined source has no elements unless
// the node marks it required; a defined non-array source is an error.
func (r *renderer) iterate(n *docmodel.Node, scope *expression.Scope) ([]any, error) {
	expr := n.Prop("expression")
	v := r.evaluate(n.ID, expr, expression.ParseLanguage(n.Prop("language")), scope)
	if v == nil && n.PropBool("required") {
		return nil, fmt.Errorf("%w: %q (node %q)", ErrRequiredValue, expr, n.ID)
	}
	items, err := expression.Iterate(v)
	if err != nil {
		return nil, fmt.Errorf("loop %q over %q: %w", n.ID, expr, err)
	}
	return items, nil
}

func (r *renderer) columns(n *docmodel.Node, scope *expression.Scope, style styles.Style) ([]Element, error) {
	slots, err := r.doc.SlotsOf(n)
	if err != nil {
		return nil, err
	}
	var widths []float64
	if err := n.DecodeProp("widths", &widths); err != nil {
		r.warn(n.ID, "", fmt.Errorf("widths: %w", err))
		widths = nil
	}
	el := Element{Kind: KindColumns, NodeID: n.ID, Style: style}
	for _, s := range slots {
		elems, err := r.slot(s, scope, style)
		if err != nil {
			return nil, err
		}
		el.Columns = append(el.Columns, elems)
	}
	el.Widths = normaliseWidths(widths, len(el.Columns))
	return []Element{el}, nil
}

// table lays its slots out row-major: each slot is one cell.
func (r *renderer) table(n *docmodel.Node, scope *expression.Scope, style styles.Style) ([]Element, error) {
	slots, err := r.doc.SlotsOf(n)
	if err != nil {
		return nil, err
	}
	// A row never has more columns than the table has cells.
	cols := min(n.PropInt("columns", 1), max(len(slots), 1))
	if cols < 1 {
		cols = 1
	}
	var widths []float64
	if err := n.DecodeProp("widths", &widths); err != nil {
		r.warn(n.ID, "", fmt.Errorf("widths: %w", err))
		widths = nil
	}
	t := &Table{HeaderRows: n.PropInt("headerRows", 0), Widths: normaliseWidths(widths, cols)}
	var row []Cell
	for _, s := range slots {
		elems, err := r.slot(s, scope, style)
		if err != nil {
			return nil, err
		}
		row = append(row, Cell{Elements: elems})
		if len(row) == cols {
			t.Rows = append(t.Rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		for len(row) < cols {
			row = append(row, Cell{})
		}
		t.Rows = append(t.Rows, row)
	}
	return []Element{{Kind: KindTable, NodeID: n.ID, Style: style, Table: t}}, nil
}

// dataTable renders a header row plus one row per element of its source.
func (r *renderer) dataTable(n *docmodel.Node, scope *expression.Scope, style styles.Style) ([]Element, error) {
	var columns []docmodel.TableColumn
	if err := n.DecodeProp("columns", &columns); err != nil {
		return nil, fmt.Errorf("datatable %q columns: %w", n.ID, err)
	}
	if len(columns) == 0 {
		return nil, nil
	}
	items, err := r.iterate(n, scope)
	if err != nil {
		return nil, err
	}
	alias := n.Prop("itemAlias")
	if alias == "" {
		alias = defaultItemAlias
	}
	indexAlias := n.Prop("indexAlias")
	lang := expression.ParseLanguage(n.Prop("language"))

	widths := make([]float64, len(columns))
	header := make([]Cell, len(columns))
	headStyle := styles.Merge(style, styles.Style{FontWeight: "bold"})
	for i, c := range columns {
		widths[i] = c.Width
		header[i] = Cell{Align: c.Align, Elements: []Element{textElement(n.ID, headStyle, []Run{{Text: r.transform(c.Header, headStyle)}})}}
	}
	t := &Table{HeaderRows: 1, Widths: normaliseWidths(widths, len(columns)), Rows: [][]Cell{header}}
	for i, item := range items {
		bindings := map[string]any{alias: item}
		if indexAlias != "" {
			bindings[indexAlias] = float64(i)
		}
		rowScope := scope.With(bindings)
		row := make([]Cell, len(columns))
		for j, c := range columns {
			text := expression.Stringify(r.evaluate(n.ID, c.Expression, lang, rowScope))
			row[j] = Cell{Align: c.Align, Elements: []Element{textElement(n.ID, style, []Run{{Text: r.transform(text, style)}})}}
		}
		t.Rows = append(t.Rows, row)
	}
	return []Element{{Kind: KindTable, NodeID: n.ID, Style: style, Table: t}}, nil
}

func textElement(nodeID string, style styles.Style, runs []Run) Element {
	return Element{Kind: KindParagraph, NodeID: nodeID, Style: style, Runs: runs}
}

// normaliseWidths returns n relative widths summing to 1. Missing or
// non-positive entries share the remainder equally.
func normaliseWidths(in []float64, n int) []float64 {
	if n == 0 {
		return nil
	}
	out := make([]float64, n)
	var total float64
	missing := 0
	for i := range out {
		if i < len(in) && in[i] > 0 {
			out[i] = in[i]
			total += in[i]
		} else {
			missing++
		}
	}
	if missing > 0 {
		fill := 1.0
		if total > 0 {
			fill = total / float64(n-missing)
		}
		for i := range out {
			if out[i] == 0 {
				out[i] = fill
			}
		}
		total += fill * float64(missing)
	}
	for i := range out {
		out[i] /= total
	}
	return out
}
