package render

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/yungbote/docforge-backend/internal/modules/expression"
	"github.com/yungbote/docforge-backend/internal/modules/render/docmodel"
	"github.com/yungbote/docforge-backend/internal/modules/styles"
)

var placeholder = regexp.MustCompile(`\{\{\s*(.*?)\s*\}\}`)

const bullet = "•"

// text renders a text node. Rich content lives in props.content; a plain
// props.text string is treated as one paragraph.
func (r *renderer) text(n *docmodel.Node, scope *expression.Scope, style styles.Style) ([]Element, error) {
	var content docmodel.RichNode
	if err := n.DecodeProp("content", &content); err != nil {
		return nil, fmt.Errorf("text node %q content: %w", n.ID, err)
	}
	if content.Type == "" {
		plain := n.Prop("text")
		if plain == "" {
			return nil, nil
		}
		content = docmodel.RichNode{Type: "doc", Content: []docmodel.RichNode{
			{Type: "paragraph", Content: []docmodel.RichNode{{Type: "text", Text: plain}}},
		}}
	}

	tr := &textRenderer{r: r, node: n, scope: scope, style: style, lang: expression.ParseLanguage(n.Prop("language"))}
	if err := tr.block(content, 0); err != nil {
		return nil, err
	}
	return tr.out, nil
}

type textRenderer struct {
	r     *renderer
	node  *docmodel.Node
	scope *expression.Scope
	style styles.Style
	lang  expression.Language
	out   []Element
}

func (t *textRenderer) block(b docmodel.RichNode, depth int) error {
	switch b.Type {
	case "doc":
		for _, c := range b.Content {
			if err := t.block(c, depth); err != nil {
				return err
			}
		}
	case "paragraph":
		runs, err := t.inline(b.Content)
		if err != nil {
			return err
		}
		t.out = append(t.out, Element{Kind: KindParagraph, NodeID: t.node.ID, Style: t.blockStyle(b), Runs: runs})
	case "heading":
		runs, err := t.inline(b.Content)
		if err != nil {
			return err
		}
		level := b.AttrInt("level", 1)
		if level < 1 || level > 6 {
			level = 1
		}
		t.out = append(t.out, Element{Kind: KindHeading, NodeID: t.node.ID, Style: t.blockStyle(b), Runs: runs, Level: level})
	case "bulletList", "orderedList":
		start := b.AttrInt("start", 1)
		for i, item := range b.Content {
			marker := bullet
			if b.Type == "orderedList" {
				marker = strconv.Itoa(start+i) + "."
			}
			if err := t.listItem(item, marker, depth+1); err != nil {
				return err
			}
		}
	case "hardBreak":
		t.out = append(t.out, Element{Kind: KindParagraph, NodeID: t.node.ID, Style: t.style})
	default:
		return fmt.Errorf("%w: rich text %q (node %q)", ErrUnsupportedNode, b.Type, t.node.ID)
	}
	return nil
}

// listItem emits one element per paragraph; only the first carries the
// marker. Nested lists indent one level deeper.
func (t *textRenderer) listItem(item docmodel.RichNode, marker string, depth int) error {
	first := true
	for _, c := range item.Content {
		switch c.Type {
		case "paragraph":
			runs, err := t.inline(c.Content)
			if err != nil {
				return err
			}
			m := ""
			if first {
				m = marker
				first = false
			}
			t.out = append(t.out, Element{Kind: KindListItem, NodeID: t.node.ID, Style: t.blockStyle(c), Runs: runs, Marker: m, Indent: depth})
		default:
			if err := t.block(c, depth); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *textRenderer) blockStyle(b docmodel.RichNode) styles.Style {
	if align := b.Attr("textAlign"); align != "" {
		return styles.Merge(t.style, styles.Style{TextAlign: align})
	}
	return t.style
}

func (t *textRenderer) inline(nodes []docmodel.RichNode) ([]Run, error) {
	var runs []Run
	for _, in := range nodes {
		switch in.Type {
		case "text":
			run := marksToRun(in.Marks)
			run.Text = t.r.transform(t.interpolate(in.Text), t.style)
			if run.Text != "" {
				runs = append(runs, run)
			}
		case "expression":
			expr := in.Attr("expression")
			v := t.r.evaluate(t.node.ID, expr, t.lang, t.scope)
			if v == nil && in.AttrBool("required") {
				return nil, fmt.Errorf("%w: %q (node %q)", ErrRequiredValue, expr, t.node.ID)
			}
			text := expression.Stringify(v)
			if text == "" {
				text = in.Attr("fallback")
			}
			run := marksToRun(in.Marks)
			run.Text = t.r.transform(text, t.style)
			if run.Text != "" {
				runs = append(runs, run)
			}
		case "hardBreak":
			runs = append(runs, Run{Break: true})
		default:
			return nil, fmt.Errorf("%w: inline %q (node %q)", ErrUnsupportedNode, in.Type, t.node.ID)
		}
	}
	return runs, nil
}

// interpolate substitutes {{expr}} placeholders. A failed or undefined
// expression becomes the empty string.
func (t *textRenderer) interpolate(s string) string {
	if !strings.Contains(s, "{{") {
		return s
	}
	var b strings.Builder
	last := 0
	for _, m := range placeholder.FindAllStringSubmatchIndex(s, -1) {
		b.WriteString(s[last:m[0]])
		expr := s[m[2]:m[3]]
		b.WriteString(expression.Stringify(t.r.evaluate(t.node.ID, expr, t.lang, t.scope)))
		last = m[1]
	}
	b.WriteString(s[last:])
	return b.String()
}

func marksToRun(marks []docmodel.Mark) Run {
	var run Run
	for _, m := range marks {
		switch m.Type {
		case "bold", "strong":
			run.Bold = true
		case "italic", "em":
			run.Italic = true
		case "underline":
			run.Underline = true
		case "strike", "strikethrough":
			run.Strike = true
		case "textColor", "textStyle", "color":
			if c, ok := m.Attrs["color"].(string); ok {
				run.Color = c
			}
		}
	}
	return run
}

// transform NFC-normalises s and applies the style's textTransform.
func (r *renderer) transform(s string, style styles.Style) string {
	s = norm.NFC.String(s)
	switch strings.ToLower(style.TextTransform) {
	case "uppercase":
		return cases.Upper(language.Und).String(s)
	case "lowercase":
		return cases.Lower(language.Und).String(s)
	case "capitalize":
		return cases.Title(language.Und, cases.NoLower).String(s)
	}
	return s
}
