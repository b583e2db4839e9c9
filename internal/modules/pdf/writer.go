package pdf

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/yungbote/docforge-backend/internal/modules/render"
	"github.com/yungbote/docforge-backend/internal/modules/styles"
)

const (
	mmPerPt        = 25.4 / 72.0
	baseFontSizePt = 11.0
	baseLineHeight = 1.3
	paragraphGapMM = 2.0
	listIndentMM   = 6.0
	columnGapMM    = 4.0
	cellPaddingMM  = 1.5
	headerGapMM    = 3.0
	tableBorderMM  = 0.2
	creator        = "docforge"
)

var headingScale = map[int]float64{1: 2.0, 2: 1.6, 3: 1.3, 4: 1.15, 5: 1.05, 6: 1.0}

// Meta is document-level metadata. CreatedAt fixes the creation and
// modification dates so identical input yields identical metadata.
type Meta struct {
	Title     string
	Author    string
	CreatedAt time.Time
}

// Writer lays rendered elements out as PDF pages.
type Writer struct {
	fonts *FontCache
}

func NewWriter(fonts *FontCache) *Writer {
	if fonts == nil {
		fonts = NewFontCache("", nil)
	}
	return &Writer{fonts: fonts}
}

// Write produces the PDF bytes for out.
func (w *Writer) Write(out *render.Output, meta Meta) ([]byte, error) {
	if out == nil {
		return nil, fmt.Errorf("pdf: nil render output")
	}
	orientation, size := pageFormat(out.Page)
	doc := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: orientation,
		UnitStr:        "mm",
		Size:           size,
	})
	m := out.Page.Margins
	doc.SetMargins(m.Left, m.Top, m.Right)
	doc.SetAutoPageBreak(false, m.Bottom)
	doc.SetCellMargin(0)
	doc.SetCatalogSort(true)
	created := meta.CreatedAt.UTC()
	if created.IsZero() {
		created = time.Unix(0, 0).UTC()
	}
	doc.SetCreationDate(created)
	doc.SetModificationDate(created)
	doc.SetCreator(creator, true)
	if meta.Title != "" {
		doc.SetTitle(meta.Title, true)
	}
	if meta.Author != "" {
		doc.SetAuthor(meta.Author, true)
	}

	l := &layout{
		pdf:        doc,
		fonts:      w.fonts,
		measure:    newMeasurer(),
		registered: map[string]bool{},
		out:        out,
		baseSize:   styles.FontSizePt(out.DocumentStyle.FontSize, baseFontSizePt, baseFontSizePt),
	}
	defer l.measure.close()
	l.pageW, l.pageH = doc.GetPageSize()
	l.margins = m

	if err := l.run(); err != nil {
		return nil, err
	}
	if doc.Err() {
		return nil, fmt.Errorf("pdf layout: %w", doc.Error())
	}
	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("pdf output: %w", err)
	}
	return buf.Bytes(), nil
}

var pageSizes = map[string]fpdf.SizeType{
	"a3":     {Wd: 297, Ht: 420},
	"a4":     {Wd: 210, Ht: 297},
	"a5":     {Wd: 148, Ht: 210},
	"letter": {Wd: 215.9, Ht: 279.4},
	"legal":  {Wd: 215.9, Ht: 355.6},
}

func pageFormat(ps styles.PageSettings) (string, fpdf.SizeType) {
	size, ok := pageSizes[strings.ToLower(strings.TrimSpace(ps.Format))]
	if !ok {
		size = pageSizes["a4"]
	}
	if strings.EqualFold(ps.Orientation, "landscape") {
		return "L", size
	}
	return "P", size
}
