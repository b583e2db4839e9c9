package render

import (
	"github.com/yungbote/docforge-backend/internal/modules/styles"
)

type ElementKind string

const (
	KindParagraph ElementKind = "paragraph"
	KindHeading   ElementKind = "heading"
	KindListItem  ElementKind = "list_item"
	KindGroup     ElementKind = "group"
	KindColumns   ElementKind = "columns"
	KindTable     ElementKind = "table"
	KindPageBreak ElementKind = "page_break"
	KindSpacer    ElementKind = "spacer"
)

// Element is one laid-out unit of page content. Style is fully cascaded:
// document styles, inherited parent styles, block preset, inline styles.
type Element struct {
	Kind   ElementKind
	NodeID string
	Style  styles.Style

	// paragraph, heading, list item
	Runs   []Run
	Level  int
	Marker string
	Indent int

	// group
	Children []Element

	// columns
	Columns [][]Element
	Widths  []float64

	// table
	Table *Table

	// spacer, in millimetres
	Height float64
}

// Run is a span of text sharing the same inline marks.
type Run struct {
	Text      string
	Bold      bool
	Italic    bool
	Underline bool
	Strike    bool
	Color     string
	Break     bool
}

type Table struct {
	HeaderRows int
	Widths     []float64
	Rows       [][]Cell
}

type Cell struct {
	Elements []Element
	Align    string
}

// Warning records a best-effort substitution made while rendering.
type Warning struct {
	NodeID     string
	Expression string
	Message    string
}

// Output is the result of a render. Header and Footer repeat on every page.
type Output struct {
	Page          styles.PageSettings
	DocumentStyle styles.Style
	Header        []Element
	Body          []Element
	Footer        []Element
	Warnings      []Warning
}

// PlainText concatenates the text of a sequence of elements, one line per
// block. Used for logging and tests.
func PlainText(elems []Element) string {
	var out []byte
	var walk func([]Element)
	walk = func(es []Element) {
		for _, e := range es {
			switch e.Kind {
			case KindParagraph, KindHeading, KindListItem:
				if e.Marker != "" {
					out = append(out, e.Marker...)
					out = append(out, ' ')
				}
				for _, r := range e.Runs {
					if r.Break {
						out = append(out, '\n')
						continue
					}
					out = append(out, r.Text...)
				}
				out = append(out, '\n')
			case KindGroup:
				walk(e.Children)
			case KindColumns:
				for _, col := range e.Columns {
					walk(col)
				}
			case KindTable:
				for _, row := range e.Table.Rows {
					for _, c := range row {
						walk(c.Elements)
					}
				}
			}
		}
	}
	walk(elems)
	return string(out)
}
