// Package output renders postctl results for the terminal.
package output

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	// Color styles for terminal output
	colorSuccess = lipgloss.Color("#10B981")
	colorError   = lipgloss.Color("#EF4444")
	colorInfo    = lipgloss.Color("#3B82F6")
	colorMuted   = lipgloss.Color("#6B7280")
	colorPrimary = lipgloss.Color("#7C3AED")

	successStyle = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	infoStyle    = lipgloss.NewStyle().Foreground(colorInfo)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	primaryStyle = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	headerStyle  = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true).PaddingRight(2)
	cellStyle    = lipgloss.NewStyle().PaddingRight(2)
)

// Success prints a success message
func Success(w io.Writer, format string, args ...any) {
	fmt.Fprint(w, successStyle.Render("✓ "))
	fmt.Fprintf(w, format+"\n", args...)
}

// Error prints an error message
func Error(w io.Writer, format string, args ...any) {
	fmt.Fprint(w, errorStyle.Render("✗ "))
	fmt.Fprintf(w, format+"\n", args...)
}

// Info prints an info message
func Info(w io.Writer, format string, args ...any) {
	fmt.Fprint(w, infoStyle.Render("ℹ "))
	fmt.Fprintf(w, format+"\n", args...)
}

// Muted prints a muted message
func Muted(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf(format, args...)))
}

// Field prints a "label: value" line, muting empty values.
func Field(w io.Writer, label, value string) {
	if value == "" {
		value = mutedStyle.Render("(none)")
	}
	fmt.Fprintf(w, "%s %s\n", primaryStyle.Render(label+":"), value)
}

// Table prints rows under a header with columns padded to the widest cell.
func Table(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], lipgloss.Width(cell))
			}
		}
	}

	render := func(style lipgloss.Style, cells []string) string {
		parts := make([]string, len(cells))
		for i, cell := range cells {
			// Width includes the right padding.
			parts[i] = style.Width(widths[i] + 2).Render(cell)
		}
		return strings.TrimRight(lipgloss.JoinHorizontal(lipgloss.Top, parts...), " ")
	}

	fmt.Fprintln(w, render(headerStyle, headers))
	for _, row := range rows {
		fmt.Fprintln(w, render(cellStyle, row))
	}
}

// ID formats a post id for display.
func ID(id int64) string {
	return "#" + strconv.FormatInt(id, 10)
}
