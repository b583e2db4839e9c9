package styles

// Style is the set of presentational properties shared by documents and
// blocks. An empty string means "not set" and lets the next layer of the
// cascade show through.
type Style struct {
	FontFamily      string `json:"fontFamily,omitempty"`
	FontSize        string `json:"fontSize,omitempty"`
	FontWeight      string `json:"fontWeight,omitempty"`
	FontStyle       string `json:"fontStyle,omitempty"`
	Color           string `json:"color,omitempty"`
	BackgroundColor string `json:"backgroundColor,omitempty"`
	TextAlign       string `json:"textAlign,omitempty"`
	LineHeight      string `json:"lineHeight,omitempty"`
	LetterSpacing   string `json:"letterSpacing,omitempty"`
	TextTransform   string `json:"textTransform,omitempty"`

	MarginTop    string `json:"marginTop,omitempty"`
	MarginRight  string `json:"marginRight,omitempty"`
	MarginBottom string `json:"marginBottom,omitempty"`
	MarginLeft   string `json:"marginLeft,omitempty"`

	PaddingTop    string `json:"paddingTop,omitempty"`
	PaddingRight  string `json:"paddingRight,omitempty"`
	PaddingBottom string `json:"paddingBottom,omitempty"`
	PaddingLeft   string `json:"paddingLeft,omitempty"`

	BorderWidth string `json:"borderWidth,omitempty"`
	BorderColor string `json:"borderColor,omitempty"`
}

// Merge returns base with every field set in override replacing it.
func Merge(base, override Style) Style {
	return Style{
		FontFamily:      pick(base.FontFamily, override.FontFamily),
		FontSize:        pick(base.FontSize, override.FontSize),
		FontWeight:      pick(base.FontWeight, override.FontWeight),
		FontStyle:       pick(base.FontStyle, override.FontStyle),
		Color:           pick(base.Color, override.Color),
		BackgroundColor: pick(base.BackgroundColor, override.BackgroundColor),
		TextAlign:       pick(base.TextAlign, override.TextAlign),
		LineHeight:      pick(base.LineHeight, override.LineHeight),
		LetterSpacing:   pick(base.LetterSpacing, override.LetterSpacing),
		TextTransform:   pick(base.TextTransform, override.TextTransform),
		MarginTop:       pick(base.MarginTop, override.MarginTop),
		MarginRight:     pick(base.MarginRight, override.MarginRight),
		MarginBottom:    pick(base.MarginBottom, override.MarginBottom),
		MarginLeft:      pick(base.MarginLeft, override.MarginLeft),
		PaddingTop:      pick(base.PaddingTop, override.PaddingTop),
		PaddingRight:    pick(base.PaddingRight, override.PaddingRight),
		PaddingBottom:   pick(base.PaddingBottom, override.PaddingBottom),
		PaddingLeft:     pick(base.PaddingLeft, override.PaddingLeft),
		BorderWidth:     pick(base.BorderWidth, override.BorderWidth),
		BorderColor:     pick(base.BorderColor, override.BorderColor),
	}
}

// Inheritable keeps only the text properties a child block inherits from
// its parent; box properties (margins, padding, borders, background) do not
// cascade.
func (s Style) Inheritable() Style {
	return Style{
		FontFamily:    s.FontFamily,
		FontSize:      s.FontSize,
		FontWeight:    s.FontWeight,
		FontStyle:     s.FontStyle,
		Color:         s.Color,
		TextAlign:     s.TextAlign,
		LineHeight:    s.LineHeight,
		LetterSpacing: s.LetterSpacing,
		TextTransform: s.TextTransform,
	}
}

func (s Style) IsZero() bool {
	return s == Style{}
}

func pick(base, override string) string {
	if override != "" {
		return override
	}
	return base
}

// Margins are in millimetres.
type Margins struct {
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
	Left   float64 `json:"left"`
}

type PageSettings struct {
	Format      string  `json:"format,omitempty"`
	Orientation string  `json:"orientation,omitempty"`
	Margins     Margins `json:"margins"`
}

// DefaultPageSettings is used by the writer when no theme supplies any.
func DefaultPageSettings() PageSettings {
	return PageSettings{
		Format:      "A4",
		Orientation: "portrait",
		Margins:     Margins{Top: 20, Right: 20, Bottom: 20, Left: 20},
	}
}
