package batch

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))             // green
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))             // red
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))            // yellow
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))            // cyan
	detailStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))           // light grey
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("69")) // purple
)

var symbols = map[string]string{
	"pass":    "✓",
	"fail":    "✗",
	"warning": "!",
	"arrow":   "→",
}

// Console prints the human-readable progress of a run.
type Console struct {
	w io.Writer
}

// NewConsole writes progress to w. A nil writer discards it.
func NewConsole(w io.Writer) *Console {
	if w == nil {
		w = io.Discard
	}
	return &Console{w: w}
}

func (c *Console) println(style lipgloss.Style, text string) {
	fmt.Fprintln(c.w, style.Render(text))
}

// Header prints a section title.
func (c *Console) Header(format string, args ...any) {
	c.println(headerStyle, fmt.Sprintf("=== "+format+" ===", args...))
}

// Channel announces the channel about to be processed.
func (c *Console) Channel(index, total int, name, url string) {
	c.println(infoStyle, fmt.Sprintf("[%d/%d] Processing: %s", index, total, name))
	c.println(detailStyle, fmt.Sprintf("  URL: %s", url))
}

// Detail prints an indented secondary line.
func (c *Console) Detail(format string, args ...any) {
	c.println(detailStyle, "  "+fmt.Sprintf(format, args...))
}

// Success reports a channel written successfully.
func (c *Console) Success(format string, args ...any) {
	c.println(successStyle, fmt.Sprintf("  %s %s", symbols["pass"], fmt.Sprintf(format, args...)))
}

// Warning reports a channel that produced no playlist.
func (c *Console) Warning(format string, args ...any) {
	c.println(warningStyle, fmt.Sprintf("  %s %s", symbols["warning"], fmt.Sprintf(format, args...)))
}

// Error reports a channel that failed with an error.
func (c *Console) Error(format string, args ...any) {
	c.println(errorStyle, fmt.Sprintf("  %s %s", symbols["fail"], fmt.Sprintf(format, args...)))
}

// Summary prints the final counters.
func (c *Console) Summary(s Summary) {
	fmt.Fprintln(c.w)
	c.Header("Summary")
	c.println(successStyle, fmt.Sprintf("%s Successful: %d", symbols["pass"], s.Success))
	c.println(errorStyle, fmt.Sprintf("%s Failed: %d", symbols["fail"], s.Failed))
	if s.Skipped > 0 {
		c.println(warningStyle, fmt.Sprintf("%s Skipped: %d", symbols["arrow"], s.Skipped))
	}
	c.println(infoStyle, fmt.Sprintf("Total: %d", s.Total))
}
