package terminal

import (
	"io"

	"github.com/charmbracelet/lipgloss"
)

var (
	SuccessColor = lipgloss.Color("42")  // Green
	ErrorColor   = lipgloss.Color("196") // Red
	WarningColor = lipgloss.Color("214") // Orange
	MutedColor   = lipgloss.Color("243") // Gray
)

// Styles renders user-facing notices. Colors are dropped automatically
// when the writer is not a color-capable terminal.
type Styles struct {
	Error   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Muted   lipgloss.Style
}

// NewStyles builds the notice styles for output written to w
func NewStyles(w io.Writer) Styles {
	r := lipgloss.NewRenderer(w)
	return Styles{
		Error:   r.NewStyle().Foreground(ErrorColor),
		Success: r.NewStyle().Foreground(SuccessColor).Bold(true),
		Warning: r.NewStyle().Foreground(WarningColor),
		Muted:   r.NewStyle().Foreground(MutedColor),
	}
}
