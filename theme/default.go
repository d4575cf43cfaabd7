package theme

import (
	"fmt"

	"github.com/pterm/pterm"
)

// Theme defines the colour scheme and styling for the application
type Theme struct {
	// Log level colours
	Debug *pterm.Style
	Info  *pterm.Style
	Warn  *pterm.Style
	Error *pterm.Style
	Fatal *pterm.Style

	// Component colours
	Success   *pterm.Style
	Highlight *pterm.Style
	Muted     *pterm.Style
	Accent    *pterm.Style

	// Attribute colours used by the styled logger
	Counts   pterm.Color
	Cookie   pterm.Color
	Upstream pterm.Color
	Numbers  pterm.Color

	// Functional colours
	Primary   pterm.Color
	Secondary pterm.Color
	Danger    pterm.Color
	Warning   pterm.Color
	Good      pterm.Color
}

// Default returns the default application theme
func Default() *Theme {
	return &Theme{
		Debug: pterm.NewStyle(pterm.FgLightBlue),
		Info:  pterm.NewStyle(pterm.FgGreen),
		Warn:  pterm.NewStyle(pterm.FgYellow, pterm.Bold),
		Error: pterm.NewStyle(pterm.FgRed, pterm.Bold),
		Fatal: pterm.NewStyle(pterm.FgWhite, pterm.BgRed, pterm.Bold),

		Success:   pterm.NewStyle(pterm.FgGreen, pterm.Bold),
		Highlight: pterm.NewStyle(pterm.FgCyan, pterm.Bold),
		Muted:     pterm.NewStyle(pterm.FgGray),
		Accent:    pterm.NewStyle(pterm.FgMagenta),

		Counts:   pterm.FgLightCyan,
		Cookie:   pterm.FgLightMagenta,
		Upstream: pterm.FgLightBlue,
		Numbers:  pterm.FgLightYellow,

		Primary:   pterm.FgBlue,
		Secondary: pterm.FgCyan,
		Danger:    pterm.FgRed,
		Warning:   pterm.FgYellow,
		Good:      pterm.FgGreen,
	}
}

// Dark returns a dark theme variant
func Dark() *Theme {
	t := Default()
	t.Info = pterm.NewStyle(pterm.FgLightGreen)
	t.Muted = pterm.NewStyle(pterm.FgDarkGray)
	t.Highlight = pterm.NewStyle(pterm.FgLightCyan, pterm.Bold)
	return t
}

// Light returns a light-background theme variant
func Light() *Theme {
	t := Default()
	t.Debug = pterm.NewStyle(pterm.FgBlue)
	t.Muted = pterm.NewStyle(pterm.FgDefault)
	t.Counts = pterm.FgCyan
	t.Numbers = pterm.FgYellow
	return t
}

// GetTheme resolves a theme by name, falling back to the default
func GetTheme(name string) *Theme {
	switch name {
	case "dark":
		return Dark()
	case "light":
		return Light()
	default:
		return Default()
	}
}

func ColourSplash(message ...any) string {
	return pterm.NewStyle(pterm.FgLightMagenta).Sprint(message...)
}

func ColourVersion(message ...any) string {
	return pterm.NewStyle(pterm.FgLightGreen).Sprint(message...)
}

func StyleUrl(message ...any) string {
	return pterm.NewStyle(pterm.FgCyan, pterm.Underscore).Sprint(message...)
}

// Hyperlink emits an OSC-8 terminal hyperlink
func Hyperlink(uri string, text string) string {
	return fmt.Sprintf("\x1b]8;;%s\x07%s\x1b]8;;\x07", uri, text)
}
