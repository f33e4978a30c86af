package viz

import "github.com/charmbracelet/lipgloss"

// Theme colors the matrix views. Positive and Negative are the saturated
// ends of the heat scale; Zero is the color of an exactly zero entry.
type Theme struct {
	Name     string
	Primary  lipgloss.Color
	Muted    lipgloss.Color
	Zero     lipgloss.Color
	Positive lipgloss.Color
	Negative lipgloss.Color
	Error    lipgloss.Color
}

var (
	ThemeCyberpunk = Theme{
		Name:     "cyberpunk",
		Primary:  lipgloss.Color("#00ffff"),
		Muted:    lipgloss.Color("#666666"),
		Zero:     lipgloss.Color("#444444"),
		Positive: lipgloss.Color("#ff00ff"),
		Negative: lipgloss.Color("#00ffff"),
		Error:    lipgloss.Color("#ff0000"),
	}

	ThemeRetroGreen = Theme{
		Name:     "retro",
		Primary:  lipgloss.Color("#00ff00"),
		Muted:    lipgloss.Color("#005500"),
		Zero:     lipgloss.Color("#003300"),
		Positive: lipgloss.Color("#88ff88"),
		Negative: lipgloss.Color("#ffff00"),
		Error:    lipgloss.Color("#ff0000"),
	}

	ThemeOcean = Theme{
		Name:     "ocean",
		Primary:  lipgloss.Color("#00a8cc"),
		Muted:    lipgloss.Color("#4488aa"),
		Zero:     lipgloss.Color("#223344"),
		Positive: lipgloss.Color("#ffd700"),
		Negative: lipgloss.Color("#0077be"),
		Error:    lipgloss.Color("#ff4444"),
	}

	Themes = []Theme{ThemeCyberpunk, ThemeRetroGreen, ThemeOcean}
)

// GetTheme returns a theme by name, falling back to cyberpunk.
func GetTheme(name string) Theme {
	for _, t := range Themes {
		if t.Name == name {
			return t
		}
	}
	return ThemeCyberpunk
}

func ThemeNames() []string {
	names := make([]string, len(Themes))
	for i, t := range Themes {
		names[i] = t.Name
	}
	return names
}

// next returns the theme after t in Themes, wrapping around.
func (t Theme) next() Theme {
	for i, th := range Themes {
		if th.Name == t.Name {
			return Themes[(i+1)%len(Themes)]
		}
	}
	return Themes[0]
}
