// Package style provides shared UI styling primitives including brand colors
// and icons for consistent visual presentation across the CLI.
package style

import "github.com/charmbracelet/lipgloss"

// Brand Colors.
var (
	Harbor = lipgloss.Color("#0E7490")
	Slate  = lipgloss.Color("#667085")
	Green  = lipgloss.Color("#22A06B")
	Red    = lipgloss.Color("#D93025")
	Yellow = lipgloss.Color("#F59E0B")
)

// Icons.
const (
	Check   = "✓"
	Cross   = "✗"
	Warning = "!"
	Dot     = "●"
	Circle  = "○"
)

// Set holds the styles used by command output, bound to one renderer.
type Set struct {
	Hit  lipgloss.Style
	Miss lipgloss.Style
	Fail lipgloss.Style
	Dim  lipgloss.Style
	Name lipgloss.Style
}

// New builds the style set for r. A nil r uses the default renderer.
func New(r *lipgloss.Renderer) Set {
	if r == nil {
		r = lipgloss.DefaultRenderer()
	}
	return Set{
		Hit:  r.NewStyle().Foreground(Green),
		Miss: r.NewStyle().Foreground(Yellow),
		Fail: r.NewStyle().Foreground(Red),
		Dim:  r.NewStyle().Foreground(Slate),
		Name: r.NewStyle().Foreground(Harbor).Bold(true),
	}
}
