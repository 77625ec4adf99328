package game

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/reflow/wordwrap"
)

var (
	narrativeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#E0E0E0"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
	mutedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	promptStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#7C3AED")).Bold(true)
	titleStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true)
)

// Renderer prints game text, word-wrapped, and styled when out is a terminal.
type Renderer struct {
	out    io.Writer
	styled bool
}

// NewRenderer creates a renderer. Styling is enabled only for terminals.
func NewRenderer(out io.Writer) *Renderer {
	styled := false
	if f, ok := out.(*os.File); ok {
		styled = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &Renderer{out: out, styled: styled}
}

func (r *Renderer) render(style lipgloss.Style, text string) string {
	if !r.styled {
		return text
	}
	return style.Render(text)
}

// Title prints the welcome banner.
func (r *Renderer) Title(text string) {
	fmt.Fprintf(r.out, "\n%s\n", r.render(titleStyle, text))
}

// Info prints a muted status line.
func (r *Renderer) Info(text string) {
	fmt.Fprintln(r.out, r.render(mutedStyle, text))
}

// Narrate prints a narrator reply wrapped at width.
func (r *Renderer) Narrate(text string, width int) {
	if width > 0 {
		text = wordwrap.String(text, width)
	}
	fmt.Fprintf(r.out, "\n%s\n", r.render(narrativeStyle, text))
}

// Error prints an inline error reply.
func (r *Renderer) Error(text string) {
	fmt.Fprintf(r.out, "\n%s\n", r.render(errorStyle, text))
}

// Prompt asks for the next action.
func (r *Renderer) Prompt() {
	fmt.Fprintf(r.out, "\n%s ", r.render(promptStyle, "What do you do? >"))
}
