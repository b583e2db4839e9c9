package pdf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/math/fixed"
	"golang.org/x/sync/singleflight"

	"github.com/yungbote/docforge-backend/internal/platform/logger"
)

// DefaultFamily is the bundled Go font family, used whenever a requested
// family has no files on disk.
const DefaultFamily = "go"

type FontStyle string

const (
	Regular    FontStyle = ""
	Bold       FontStyle = "B"
	Italic     FontStyle = "I"
	BoldItalic FontStyle = "BI"
)

func styleOf(bold, italic bool) FontStyle {
	switch {
	case bold && italic:
		return BoldItalic
	case bold:
		return Bold
	case italic:
		return Italic
	default:
		return Regular
	}
}

// Family holds the raw TTF bytes (for embedding) and the parsed fonts (for
// measuring) of one font family. It is immutable once loaded.
type Family struct {
	Name  string
	raw   map[FontStyle][]byte
	fonts map[FontStyle]*truetype.Font
}

// TTF returns the bytes for a style, falling back to regular.
func (f *Family) TTF(s FontStyle) []byte {
	if b, ok := f.raw[s]; ok {
		return b
	}
	return f.raw[Regular]
}

func (f *Family) font(s FontStyle) *truetype.Font {
	if ft, ok := f.fonts[s]; ok {
		return ft
	}
	return f.fonts[Regular]
}

// FontCache is the process-wide font store. Each family is loaded at most
// once; concurrent first requests share one load.
type FontCache struct {
	dir   string
	log   *logger.Logger
	group singleflight.Group

	mu       sync.RWMutex
	families map[string]*Family
}

// NewFontCache looks for "<Family>-Regular.ttf", "<Family>-Bold.ttf",
// "<Family>-Italic.ttf" and "<Family>-BoldItalic.ttf" under dir.
func NewFontCache(dir string, log *logger.Logger) *FontCache {
	if log == nil {
		log = logger.Nop()
	}
	return &FontCache{dir: dir, log: log.With("component", "FontCache"), families: map[string]*Family{}}
}

func familyKey(name string) string {
	k := strings.ToLower(strings.TrimSpace(name))
	if i := strings.IndexByte(k, ','); i >= 0 {
		k = strings.TrimSpace(k[:i])
	}
	return strings.Trim(k, `"'`)
}

// Family resolves a CSS-ish font-family value. Unknown families resolve to
// the bundled default.
func (c *FontCache) Family(name string) (*Family, error) {
	key := familyKey(name)
	if key == "" {
		key = DefaultFamily
	}
	c.mu.RLock()
	f, ok := c.families[key]
	c.mu.RUnlock()
	if ok {
		return f, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		c.mu.RLock()
		f, ok := c.families[key]
		c.mu.RUnlock()
		if ok {
			return f, nil
		}
		f, err := c.load(key, name)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.families[key] = f
		c.mu.Unlock()
		return f, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Family), nil
}

func (c *FontCache) load(key, requested string) (*Family, error) {
	if key != DefaultFamily && c.dir != "" {
		f, found, err := c.loadDir(key, requested)
		if err != nil {
			return nil, err
		}
		if found {
			c.log.Debug("Loaded font family", "family", f.Name)
			return f, nil
		}
	}
	if key != DefaultFamily {
		c.log.Debug("Font family not available, using default", "requested", requested)
		return c.Family(DefaultFamily)
	}
	return parseFamily(DefaultFamily, map[FontStyle][]byte{
		Regular:    goregular.TTF,
		Bold:       gobold.TTF,
		Italic:     goitalic.TTF,
		BoldItalic: gobolditalic.TTF,
	})
}

func (c *FontCache) loadDir(key, requested string) (*Family, bool, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, false, fmt.Errorf("read font dir: %w", err)
	}
	suffixes := map[string]FontStyle{
		"-regular.ttf":    Regular,
		"-bold.ttf":       Bold,
		"-italic.ttf":     Italic,
		"-bolditalic.ttf": BoldItalic,
	}
	compact := strings.ReplaceAll(key, " ", "")
	raw := map[FontStyle][]byte{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		lower := strings.ToLower(e.Name())
		for suffix, style := range suffixes {
			base, ok := strings.CutSuffix(lower, suffix)
			if !ok || strings.ReplaceAll(base, " ", "") != compact {
				continue
			}
			b, err := os.ReadFile(filepath.Join(c.dir, e.Name()))
			if err != nil {
				return nil, false, fmt.Errorf("read font %s: %w", e.Name(), err)
			}
			raw[style] = b
		}
	}
	if _, ok := raw[Regular]; !ok {
		return nil, false, nil
	}
	f, err := parseFamily(key, raw)
	if err != nil {
		return nil, false, fmt.Errorf("font family %q: %w", requested, err)
	}
	return f, true, nil
}

func parseFamily(name string, raw map[FontStyle][]byte) (*Family, error) {
	f := &Family{Name: name, raw: raw, fonts: map[FontStyle]*truetype.Font{}}
	for style, b := range raw {
		parsed, err := truetype.Parse(b)
		if err != nil {
			return nil, fmt.Errorf("failed to parse TTF (%q): %w", style, err)
		}
		f.fonts[style] = parsed
	}
	return f, nil
}

// measurer caches font faces for one layout pass. Faces keep glyph buffers
// and must not be shared between goroutines.
type measurer struct {
	faces map[faceKey]font.Face
}

type faceKey struct {
	family string
	style  FontStyle
	size   float64
}

func newMeasurer() *measurer {
	return &measurer{faces: map[faceKey]font.Face{}}
}

// width returns the advance width of s in millimetres, without kerning.
func (m *measurer) width(f *Family, style FontStyle, sizePt float64, s string) float64 {
	k := faceKey{family: f.Name, style: style, size: sizePt}
	face, ok := m.faces[k]
	if !ok {
		face = truetype.NewFace(f.font(style), &truetype.Options{
			Size:    sizePt,
			DPI:     72,
			Hinting: font.HintingNone,
		})
		m.faces[k] = face
	}
	var total fixed.Int26_6
	for _, r := range s {
		adv, ok := face.GlyphAdvance(r)
		if !ok {
			adv, _ = face.GlyphAdvance('?')
		}
		total += adv
	}
	return float64(total) / 64 * mmPerPt
}

func (m *measurer) close() {
	for _, f := range m.faces {
		_ = f.Close()
	}
}
