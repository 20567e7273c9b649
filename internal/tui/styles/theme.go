package styles

import (
	"image/color"
	"sort"
	"strings"

	"github.com/charmbracelet/glamour/v2/ansi"
	"github.com/charmbracelet/lipgloss/v2"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/rivo/uniseg"
)

// Theme holds the semantic colors of the interface.
type Theme struct {
	Name   string
	IsDark bool

	Primary   color.Color
	Secondary color.Color
	Accent    color.Color

	BgBase      color.Color
	BgSubtle    color.Color
	BgHighlight color.Color

	FgBase     color.Color
	FgMuted    color.Color
	FgSubtle   color.Color
	FgInverted color.Color

	Border      color.Color
	BorderFocus color.Color

	Success color.Color
	Error   color.Color
	Warning color.Color
	Info    color.Color

	styles *Styles
}

// Styles are the lipgloss styles derived from a theme.
type Styles struct {
	Base   lipgloss.Style
	Title  lipgloss.Style
	Text   lipgloss.Style
	Muted  lipgloss.Style
	Subtle lipgloss.Style
	Bold   lipgloss.Style

	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style

	Border        lipgloss.Style
	BorderFocused lipgloss.Style
	Badge         lipgloss.Style

	// Editor
	Gutter       lipgloss.Style
	GutterMarked lipgloss.Style
	CursorLine   lipgloss.Style
	Cursor       lipgloss.Style
	Marked       lipgloss.Style

	Markdown ansi.StyleConfig
}

// S returns the theme's styles, building them on first use.
func (t *Theme) S() *Styles {
	if t.styles == nil {
		t.styles = t.buildStyles()
	}
	return t.styles
}

func (t *Theme) buildStyles() *Styles {
	base := lipgloss.NewStyle().
		Foreground(t.FgBase)

	return &Styles{
		Base: base,

		Title: base.
			Foreground(t.Accent).
			Bold(true),

		Text:   base,
		Muted:  base.Foreground(t.FgMuted),
		Subtle: base.Foreground(t.FgSubtle),
		Bold:   base.Bold(true),

		Success: base.Foreground(t.Success),
		Error:   base.Foreground(t.Error),
		Warning: base.Foreground(t.Warning),
		Info:    base.Foreground(t.Info),

		Border: base.
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(t.Border),

		BorderFocused: base.
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(t.BorderFocus),

		Badge: base.
			Background(t.BgSubtle).
			Foreground(t.FgBase).
			Padding(0, 1),

		Gutter: lipgloss.NewStyle().
			Foreground(t.FgSubtle),

		GutterMarked: lipgloss.NewStyle().
			Foreground(t.Accent).
			Bold(true),

		CursorLine: base.
			Background(t.BgHighlight),

		Cursor: lipgloss.NewStyle().
			Background(t.FgBase).
			Foreground(t.FgInverted),

		Marked: base.
			Underline(true),

		Markdown: t.buildMarkdownStyles(),
	}
}

func boolPtr(b bool) *bool       { return &b }
func stringPtr(s string) *string { return &s }
func uintPtr(u uint) *uint       { return &u }

func (t *Theme) buildMarkdownStyles() ansi.StyleConfig {
	return ansi.StyleConfig{
		Document: ansi.StyleBlock{
			StylePrimitive: ansi.StylePrimitive{
				Color: stringPtr(colorToHex(t.FgBase)),
			},
		},
		BlockQuote: ansi.StyleBlock{
			StylePrimitive: ansi.StylePrimitive{
				Color:  stringPtr(colorToHex(t.FgMuted)),
				Italic: boolPtr(true),
			},
			Indent: uintPtr(1),
		},
		Paragraph: ansi.StyleBlock{
			StylePrimitive: ansi.StylePrimitive{
				Color: stringPtr(colorToHex(t.FgBase)),
			},
		},
		Heading: ansi.StyleBlock{
			StylePrimitive: ansi.StylePrimitive{
				Color: stringPtr(colorToHex(t.Accent)),
				Bold:  boolPtr(true),
			},
		},
		Emph: ansi.StylePrimitive{
			Italic: boolPtr(true),
		},
		Strong: ansi.StylePrimitive{
			Bold: boolPtr(true),
		},
		Code: ansi.StyleBlock{
			StylePrimitive: ansi.StylePrimitive{
				Color:           stringPtr(colorToHex(t.Accent)),
				BackgroundColor: stringPtr(colorToHex(t.BgSubtle)),
			},
		},
		CodeBlock: ansi.StyleCodeBlock{
			StyleBlock: ansi.StyleBlock{
				StylePrimitive: ansi.StylePrimitive{
					Color: stringPtr(colorToHex(t.FgBase)),
				},
				Margin: uintPtr(1),
			},
		},
		Link: ansi.StylePrimitive{
			Color:     stringPtr(colorToHex(t.Info)),
			Underline: boolPtr(true),
		},
		Item: ansi.StylePrimitive{
			BlockPrefix: "• ",
		},
		Enumeration: ansi.StylePrimitive{
			BlockPrefix: ". ",
		},
	}
}

// NewMarginTheme is the default dark theme.
func NewMarginTheme() *Theme {
	return &Theme{
		Name:   "margin",
		IsDark: true,

		Primary:   ParseHex("#5B8DEF"),
		Secondary: ParseHex("#A78BFA"),
		Accent:    ParseHex("#F5B841"),

		BgBase:      ParseHex("#1E2230"),
		BgSubtle:    ParseHex("#2A3042"),
		BgHighlight: ParseHex("#323A50"),

		FgBase:     ParseHex("#E6E9F2"),
		FgMuted:    ParseHex("#A0A6B8"),
		FgSubtle:   ParseHex("#6B7287"),
		FgInverted: ParseHex("#1E2230"),

		Border:      ParseHex("#3E4660"),
		BorderFocus: ParseHex("#F5B841"),

		Success: ParseHex("#4CC38A"),
		Error:   ParseHex("#EF5B5B"),
		Warning: ParseHex("#F5B841"),
		Info:    ParseHex("#5BB8EF"),
	}
}

// NewLightTheme is a light variant for bright terminals.
func NewLightTheme() *Theme {
	return &Theme{
		Name:   "light",
		IsDark: false,

		Primary:   ParseHex("#2F5FD0"),
		Secondary: ParseHex("#7048C8"),
		Accent:    ParseHex("#B7791F"),

		BgBase:      ParseHex("#FAFAF7"),
		BgSubtle:    ParseHex("#EDEDE8"),
		BgHighlight: ParseHex("#E2E6F0"),

		FgBase:     ParseHex("#1F2330"),
		FgMuted:    ParseHex("#5A6072"),
		FgSubtle:   ParseHex("#8D93A5"),
		FgInverted: ParseHex("#FAFAF7"),

		Border:      ParseHex("#C9CCD6"),
		BorderFocus: ParseHex("#B7791F"),

		Success: ParseHex("#23824F"),
		Error:   ParseHex("#C53030"),
		Warning: ParseHex("#B7791F"),
		Info:    ParseHex("#2B6CB0"),
	}
}

// Manager handles theme switching and registration
type Manager struct {
	themes  map[string]*Theme
	current *Theme
}

var defaultManager *Manager

// SetDefaultManager replaces the process-wide manager.
func SetDefaultManager(m *Manager) {
	defaultManager = m
}

// CurrentTheme returns the active theme of the default manager.
func CurrentTheme() *Theme {
	if defaultManager == nil {
		defaultManager = NewManager("margin")
	}
	return defaultManager.Current()
}

// NewManager registers the built-in themes and selects defaultTheme,
// falling back to "margin".
func NewManager(defaultTheme string) *Manager {
	m := &Manager{
		themes: make(map[string]*Theme),
	}
	m.Register(NewMarginTheme())
	m.Register(NewLightTheme())

	m.current = m.themes[defaultTheme]
	if m.current == nil {
		m.current = m.themes["margin"]
	}
	return m
}

func (m *Manager) Register(theme *Theme) {
	m.themes[theme.Name] = theme
}

func (m *Manager) Current() *Theme {
	return m.current
}

// List returns the registered theme names.
func (m *Manager) List() []string {
	names := make([]string, 0, len(m.themes))
	for name := range m.themes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseHex converts a #rrggbb string to a color. Malformed input is black.
func ParseHex(hex string) color.Color {
	c, err := colorful.Hex(hex)
	if err != nil {
		return color.Black
	}
	return c
}

// ApplyGradient renders text with a horizontal gradient, one color per
// grapheme cluster.
func ApplyGradient(text string, from, to color.Color, bold bool) string {
	if text == "" {
		return ""
	}

	var clusters []string
	gr := uniseg.NewGraphemes(text)
	for gr.Next() {
		clusters = append(clusters, gr.Str())
	}

	var output strings.Builder
	colors := blendColors(len(clusters), from, to)
	for i, cluster := range clusters {
		style := lipgloss.NewStyle().Foreground(colors[i]).Bold(bold)
		output.WriteString(style.Render(cluster))
	}
	return output.String()
}

func blendColors(steps int, from, to color.Color) []color.Color {
	if steps <= 0 {
		return nil
	}
	if steps == 1 {
		return []color.Color{from}
	}

	c1, _ := colorful.MakeColor(from)
	c2, _ := colorful.MakeColor(to)

	colors := make([]color.Color, steps)
	for i := 0; i < steps; i++ {
		colors[i] = c1.BlendHcl(c2, float64(i)/float64(steps-1)).Clamped()
	}
	return colors
}

func colorToHex(c color.Color) string {
	cf, ok := colorful.MakeColor(c)
	if !ok {
		return "#000000"
	}
	return cf.Hex()
}
