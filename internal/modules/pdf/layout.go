package pdf

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/go-pdf/fpdf"

	"github.com/yungbote/docforge-backend/internal/modules/render"
	"github.com/yungbote/docforge-backend/internal/modules/styles"
)

// layout is the state of one Write call. Positions are millimetres from the
// top-left corner of the page.
type layout struct {
	pdf        *fpdf.Fpdf
	fonts      *FontCache
	measure    *measurer
	registered map[string]bool
	out        *render.Output
	baseSize   float64

	pageW, pageH float64
	margins      styles.Margins
	headerH      float64
	footerH      float64

	y         float64
	dry       bool
	noBreak   int
	pageEmpty bool
	err       error
}

type region struct {
	x, w float64
}

type segment struct {
	text  string
	run   render.Run
	style FontStyle
	w     float64
}

type line struct {
	segs []segment
	w    float64
}

func (l *layout) run() error {
	full := l.fullWidth()
	l.headerH = l.height(l.out.Header, full)
	l.footerH = l.height(l.out.Footer, full)
	if l.headerH > 0 {
		l.headerH += headerGapMM
	}
	if l.footerH > 0 {
		l.footerH += headerGapMM
	}
	if l.top() >= l.bottom() {
		return fmt.Errorf("page header and footer leave no room for content")
	}
	l.newPage()
	l.blocks(l.out.Body, full)
	return l.err
}

func (l *layout) fullWidth() region {
	return region{x: l.margins.Left, w: l.pageW - l.margins.Left - l.margins.Right}
}

func (l *layout) top() float64    { return l.margins.Top + l.headerH }
func (l *layout) bottom() float64 { return l.pageH - l.margins.Bottom - l.footerH }

// newPage starts a page and draws the repeating header and footer.
func (l *layout) newPage() {
	l.pdf.AddPage()
	full := l.fullWidth()
	l.noBreak++
	if len(l.out.Header) > 0 {
		l.y = l.margins.Top
		l.blocks(l.out.Header, full)
	}
	if len(l.out.Footer) > 0 {
		l.y = l.pageH - l.margins.Bottom - (l.footerH - headerGapMM)
		l.blocks(l.out.Footer, full)
	}
	l.noBreak--
	l.y = l.top()
	l.pageEmpty = true
}

// height measures elems without drawing or breaking pages.
func (l *layout) height(elems []render.Element, r region) float64 {
	return l.measureFn(func() { l.blocks(elems, r) })
}

func (l *layout) measureFn(fn func()) float64 {
	saveY, saveDry := l.y, l.dry
	l.dry = true
	start := l.y
	fn()
	h := l.y - start
	l.y, l.dry = saveY, saveDry
	return h
}

// ensure starts a new page when h does not fit below the cursor. Content
// taller than a whole page is placed anyway.
func (l *layout) ensure(h float64) {
	if l.dry || l.noBreak > 0 {
		return
	}
	if l.y+h > l.bottom() && !l.pageEmpty {
		l.newPage()
	}
}

func (l *layout) blocks(elems []render.Element, r region) {
	for _, e := range elems {
		switch e.Kind {
		case render.KindParagraph, render.KindHeading, render.KindListItem:
			l.text(e, r)
		case render.KindGroup:
			l.group(e, r)
		case render.KindColumns:
			l.columns(e, r)
		case render.KindTable:
			l.table(e, r)
		case render.KindSpacer:
			l.ensure(e.Height)
			l.y += e.Height
		case render.KindPageBreak:
			if !l.dry && l.noBreak == 0 && !l.pageEmpty {
				l.newPage()
			}
		}
	}
}

func (l *layout) fontSize(e render.Element) float64 {
	size := styles.FontSizePt(e.Style.FontSize, l.baseSize, l.baseSize)
	if e.Kind == render.KindHeading {
		size *= headingScale[e.Level]
	}
	return size
}

func (l *layout) family(name string) *Family {
	f, err := l.fonts.Family(name)
	if err != nil {
		if l.err == nil {
			l.err = err
		}
		f, _ = l.fonts.Family(DefaultFamily)
	}
	return f
}

func (l *layout) text(e render.Element, r region) {
	st := e.Style
	size := l.fontSize(e)
	lh := size * mmPerPt * styles.LineHeightFactor(st.LineHeight, baseLineHeight)
	indent := styles.LengthMM(st.PaddingLeft, 0) + float64(e.Indent)*listIndentMM
	width := r.w - indent - styles.LengthMM(st.PaddingRight, 0)
	if width < 1 {
		width = 1
	}
	fam := l.family(st.FontFamily)
	bold := styles.IsBold(st.FontWeight) || e.Kind == render.KindHeading
	italic := styles.IsItalic(st.FontStyle)
	lines := l.wrap(e.Runs, fam, bold, italic, size, width)

	l.y += styles.LengthMM(st.MarginTop, 0)
	bgR, bgG, bgB, hasBg := styles.ParseColor(st.BackgroundColor)
	for i, ln := range lines {
		l.ensure(lh)
		if !l.dry {
			if hasBg {
				l.pdf.SetFillColor(bgR, bgG, bgB)
				l.pdf.Rect(r.x, l.y, r.w, lh, "F")
			}
			if i == 0 && e.Marker != "" {
				l.useFont(fam, styleOf(bold, italic), false, false, size)
				l.setTextColor("", st.Color)
				l.pdf.SetXY(r.x+indent-listIndentMM, l.y)
				l.pdf.CellFormat(listIndentMM-1.5, lh, e.Marker, "", 0, "RM", false, 0, "")
			}
			x := r.x + indent + alignOffset(st.TextAlign, width, ln.w)
			for _, seg := range ln.segs {
				l.useFont(fam, seg.style, seg.run.Underline, seg.run.Strike, size)
				l.setTextColor(seg.run.Color, st.Color)
				l.pdf.SetXY(x, l.y)
				l.pdf.CellFormat(seg.w, lh, seg.text, "", 0, "LM", false, 0, "")
				x += seg.w
			}
			l.pageEmpty = false
		}
		l.y += lh
	}
	l.y += styles.LengthMM(st.MarginBottom, paragraphGapMM)
}

func alignOffset(align string, width, used float64) float64 {
	switch strings.ToLower(align) {
	case "center":
		return (width - used) / 2
	case "right", "end":
		return width - used
	default:
		return 0
	}
}

// wrap breaks runs into lines no wider than width. Words longer than a line
// are split between characters.
func (l *layout) wrap(runs []render.Run, fam *Family, bold, italic bool, size, width float64) []line {
	var (
		lines []line
		cur   line
	)
	flush := func() {
		if n := len(cur.segs); n > 0 {
			last := &cur.segs[n-1]
			trimmed := strings.TrimRightFunc(last.text, unicode.IsSpace)
			if trimmed != last.text {
				w := l.measure.width(fam, last.style, size, trimmed)
				cur.w -= last.w - w
				last.text, last.w = trimmed, w
			}
		}
		lines = append(lines, cur)
		cur = line{}
	}
	add := func(text string, run render.Run, style FontStyle, w float64) {
		run.Text = ""
		if n := len(cur.segs); n > 0 && cur.segs[n-1].run == run && cur.segs[n-1].style == style {
			cur.segs[n-1].text += text
			cur.segs[n-1].w += w
		} else {
			cur.segs = append(cur.segs, segment{text: text, run: run, style: style, w: w})
		}
		cur.w += w
	}

	for _, run := range runs {
		if run.Break {
			flush()
			continue
		}
		style := styleOf(bold || run.Bold, italic || run.Italic)
		for _, word := range splitWords(run.Text) {
			w := l.measure.width(fam, style, size, word)
			visible := l.measure.width(fam, style, size, strings.TrimRightFunc(word, unicode.IsSpace))
			if cur.w+visible > width && len(cur.segs) > 0 {
				flush()
			}
			if visible <= width {
				add(word, run, style, w)
				continue
			}
			for _, r := range word {
				ch := string(r)
				cw := l.measure.width(fam, style, size, ch)
				if cur.w+cw > width && len(cur.segs) > 0 && !unicode.IsSpace(r) {
					flush()
				}
				add(ch, run, style, cw)
			}
		}
	}
	if len(cur.segs) > 0 || len(lines) == 0 {
		flush()
	}
	return lines
}

// splitWords cuts s into words that each keep their trailing whitespace.
func splitWords(s string) []string {
	var out []string
	start := 0
	inSpace := false
	for i, r := range s {
		space := unicode.IsSpace(r)
		if inSpace && !space {
			out = append(out, s[start:i])
			start = i
		}
		inSpace = space
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

func (l *layout) useFont(fam *Family, style FontStyle, underline, strike bool, size float64) {
	if !l.registered[fam.Name] {
		for _, s := range []FontStyle{Regular, Bold, Italic, BoldItalic} {
			l.pdf.AddUTF8FontFromBytes(fam.Name, string(s), fam.TTF(s))
		}
		l.registered[fam.Name] = true
	}
	flags := string(style)
	if underline {
		flags += "U"
	}
	if strike {
		flags += "S"
	}
	l.pdf.SetFont(fam.Name, flags, size)
}

func (l *layout) setTextColor(preferred, fallback string) {
	for _, c := range []string{preferred, fallback} {
		if r, g, b, ok := styles.ParseColor(c); ok {
			l.pdf.SetTextColor(r, g, b)
			return
		}
	}
	l.pdf.SetTextColor(0, 0, 0)
}

func (l *layout) group(e render.Element, r region) {
	st := e.Style
	ml, mr := styles.LengthMM(st.MarginLeft, 0), styles.LengthMM(st.MarginRight, 0)
	pt, pb := styles.LengthMM(st.PaddingTop, 0), styles.LengthMM(st.PaddingBottom, 0)
	pl, pr := styles.LengthMM(st.PaddingLeft, 0), styles.LengthMM(st.PaddingRight, 0)
	bw := styles.LengthMM(st.BorderWidth, 0)
	box := region{x: r.x + ml, w: r.w - ml - mr}
	inner := region{x: box.x + pl + bw, w: box.w - pl - pr - 2*bw}
	body := func() {
		l.y += pt + bw
		l.blocks(e.Children, inner)
		l.y += pb + bw
	}

	l.y += styles.LengthMM(st.MarginTop, 0)
	bgR, bgG, bgB, hasBg := styles.ParseColor(st.BackgroundColor)
	if hasBg || bw > 0 {
		h := l.measureFn(body)
		l.ensure(h)
		if !l.dry && l.y+h <= l.bottom() {
			mode := ""
			if hasBg {
				l.pdf.SetFillColor(bgR, bgG, bgB)
				mode += "F"
			}
			if bw > 0 {
				br, bg, bb, ok := styles.ParseColor(st.BorderColor)
				if !ok {
					br, bg, bb = 0, 0, 0
				}
				l.pdf.SetDrawColor(br, bg, bb)
				l.pdf.SetLineWidth(bw)
				mode += "D"
			}
			l.pdf.Rect(box.x, l.y, box.w, h, mode)
			l.pageEmpty = false
		}
	}
	body()
	l.y += styles.LengthMM(st.MarginBottom, 0)
}

// columns keeps side-by-side content together on one page.
func (l *layout) columns(e render.Element, r region) {
	n := len(e.Columns)
	if n == 0 {
		return
	}
	avail := r.w - columnGapMM*float64(n-1)
	regions := make([]region, n)
	x := r.x
	for i := range regions {
		w := avail / float64(n)
		if i < len(e.Widths) {
			w = avail * e.Widths[i]
		}
		regions[i] = region{x: x, w: w}
		x += w + columnGapMM
	}
	var h float64
	for i, col := range e.Columns {
		if ch := l.height(col, regions[i]); ch > h {
			h = ch
		}
	}
	l.ensure(h)
	start := l.y
	l.noBreak++
	for i, col := range e.Columns {
		l.y = start
		l.blocks(col, regions[i])
	}
	l.noBreak--
	l.y = start + h
}

// table breaks between rows and repeats header rows on each new page.
func (l *layout) table(e render.Element, r region) {
	t := e.Table
	if t == nil || len(t.Rows) == 0 {
		return
	}
	cols := len(t.Widths)
	if cols == 0 {
		cols = len(t.Rows[0])
	}
	widths := make([]float64, cols)
	for i := range widths {
		if i < len(t.Widths) {
			widths[i] = t.Widths[i] * r.w
		} else {
			widths[i] = r.w / float64(cols)
		}
	}

	heights := make([]float64, len(t.Rows))
	for i, row := range t.Rows {
		heights[i] = l.rowHeight(row, widths, r.x)
	}
	for i, row := range t.Rows {
		if !l.dry && l.noBreak == 0 && l.y+heights[i] > l.bottom() && !l.pageEmpty {
			l.newPage()
			if i >= t.HeaderRows {
				for j := 0; j < t.HeaderRows && j < len(t.Rows); j++ {
					l.row(t.Rows[j], widths, r.x, heights[j], true)
				}
			}
		}
		l.row(row, widths, r.x, heights[i], i < t.HeaderRows)
	}
	l.y += paragraphGapMM
}

func cellElements(c render.Cell) []render.Element {
	out := make([]render.Element, len(c.Elements))
	for i, el := range c.Elements {
		if el.Style.MarginBottom == "" {
			el.Style.MarginBottom = "0"
		}
		if c.Align != "" {
			el.Style.TextAlign = c.Align
		}
		out[i] = el
	}
	return out
}

func (l *layout) cellRegion(x float64, widths []float64, i int) region {
	for j := 0; j < i; j++ {
		x += widths[j]
	}
	return region{x: x + cellPaddingMM, w: widths[i] - 2*cellPaddingMM}
}

func (l *layout) rowHeight(row []render.Cell, widths []float64, x float64) float64 {
	var h float64
	for i, c := range row {
		if i >= len(widths) {
			break
		}
		if ch := l.height(cellElements(c), l.cellRegion(x, widths, i)); ch > h {
			h = ch
		}
	}
	return h + 2*cellPaddingMM
}

func (l *layout) row(row []render.Cell, widths []float64, x, h float64, header bool) {
	if l.dry {
		l.y += h
		return
	}
	start := l.y
	l.pdf.SetLineWidth(tableBorderMM)
	l.pdf.SetDrawColor(153, 153, 153)
	cx := x
	for i := range widths {
		mode := "D"
		if header {
			l.pdf.SetFillColor(240, 240, 240)
			mode = "FD"
		}
		l.pdf.Rect(cx, start, widths[i], h, mode)
		cx += widths[i]
	}
	l.noBreak++
	for i, c := range row {
		if i >= len(widths) {
			break
		}
		l.y = start + cellPaddingMM
		l.blocks(cellElements(c), l.cellRegion(x, widths, i))
	}
	l.noBreak--
	l.y = start + h
	l.pageEmpty = false
}
