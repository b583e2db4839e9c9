package styles

import (
	"strconv"
	"strings"
)

const (
	mmPerPt = 25.4 / 72.0
	ptPerPx = 0.75
)

// FontSizePt parses a font size ("11pt", "14px", "1.5em", "12") into points.
// em is relative to parentPt; unparseable input yields def.
func FontSizePt(raw string, parentPt, def float64) float64 {
	num, unit, ok := splitUnit(raw)
	if !ok || num <= 0 {
		return def
	}
	switch unit {
	case "", "pt":
		return num
	case "px":
		return num * ptPerPx
	case "em", "rem":
		return num * parentPt
	case "mm":
		return num / mmPerPt
	default:
		return def
	}
}

// LengthMM parses a length ("4mm", "1cm", "12pt", "16px", "0.5in") into
// millimetres. Bare numbers are millimetres.
func LengthMM(raw string, def float64) float64 {
	num, unit, ok := splitUnit(raw)
	if !ok {
		return def
	}
	switch unit {
	case "", "mm":
		return num
	case "cm":
		return num * 10
	case "in":
		return num * 25.4
	case "pt":
		return num * mmPerPt
	case "px":
		return num * ptPerPx * mmPerPt
	default:
		return def
	}
}

// LineHeightFactor parses a unitless or percentage line height.
func LineHeightFactor(raw string, def float64) float64 {
	num, unit, ok := splitUnit(raw)
	if !ok || num <= 0 {
		return def
	}
	switch unit {
	case "":
		return num
	case "%":
		return num / 100
	default:
		return def
	}
}

// IsBold reports whether a fontWeight value means bold.
func IsBold(weight string) bool {
	w := strings.ToLower(strings.TrimSpace(weight))
	if w == "bold" || w == "bolder" {
		return true
	}
	n, err := strconv.Atoi(w)
	return err == nil && n >= 600
}

func IsItalic(fontStyle string) bool {
	s := strings.ToLower(strings.TrimSpace(fontStyle))
	return s == "italic" || s == "oblique"
}

// ParseColor accepts #rgb and #rrggbb. ok is false for anything else.
func ParseColor(raw string) (r, g, b int, ok bool) {
	s := strings.TrimPrefix(strings.TrimSpace(raw), "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return 0, 0, 0, false
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, 0, 0, false
	}
	return int(v >> 16 & 0xff), int(v >> 8 & 0xff), int(v & 0xff), true
}

func splitUnit(raw string) (float64, string, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return 0, "", false
	}
	i := len(s)
	for i > 0 {
		c := s[i-1]
		if (c >= '0' && c <= '9') || c == '.' {
			break
		}
		i--
	}
	num, err := strconv.ParseFloat(strings.TrimSpace(s[:i]), 64)
	if err != nil {
		return 0, "", false
	}
	return num, strings.TrimSpace(s[i:]), true
}
