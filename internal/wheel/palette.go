package wheel

// Color is a CSS hex color used as a segment background.
type Color string

const (
	ColorGray   Color = "#4B5563"
	ColorGreen  Color = "#22C55E"
	ColorYellow Color = "#EAB308"
	ColorPurple Color = "#7C3AED"
	ColorOrange Color = "#F97316"
)

// NeutralColor is reserved for zero-multiplier segments.
const NeutralColor = ColorGray

var accentColors = [...]Color{ColorGreen, ColorYellow, ColorPurple, ColorOrange}

// Accents returns the colors assignable to multiplier segments.
func Accents() []Color {
	out := make([]Color, len(accentColors))
	copy(out, accentColors[:])
	return out
}

// IsAccent reports whether c belongs to the accent palette.
func (c Color) IsAccent() bool {
	for _, a := range accentColors {
		if a == c {
			return true
		}
	}
	return false
}

// Name returns the human readable name of a palette color.
func (c Color) Name() string {
	switch c {
	case ColorGray:
		return "Gray"
	case ColorGreen:
		return "Green"
	case ColorYellow:
		return "Yellow"
	case ColorPurple:
		return "Purple"
	case ColorOrange:
		return "Orange"
	default:
		return string(c)
	}
}

// LegendEntry pairs a palette color with the multiplier it is usually shown with.
type LegendEntry struct {
	Color      Color   `json:"color"`
	Name       string  `json:"name"`
	Multiplier float64 `json:"multiplier"`
	Label      string  `json:"label"`
}

// Legend mirrors the caption shown under the wheel. Accent colors are drawn
// independently of multipliers, so this is a display convention only.
func Legend() []LegendEntry {
	entries := []struct {
		c Color
		m float64
	}{
		{ColorGray, 0},
		{ColorGreen, 1.5},
		{ColorYellow, 2},
		{ColorPurple, 3},
		{ColorOrange, 1.7},
	}
	out := make([]LegendEntry, len(entries))
	for i, e := range entries {
		out[i] = LegendEntry{Color: e.c, Name: e.c.Name(), Multiplier: e.m, Label: FormatLabel(e.m)}
	}
	return out
}
