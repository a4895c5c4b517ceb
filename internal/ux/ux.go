// Package ux renders operator-facing warnings.
package ux

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	colorWarning = lipgloss.Color("#F4D03F")

	warningTitle = lipgloss.NewStyle().Foreground(colorWarning).Bold(true)
	warningBox   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorWarning).
			Padding(0, 1)
)

// WarningBox writes title and body inside a rounded warning box. With plain
// set (no terminal, or --log-json) it writes "WARNING: title" followed by
// the body instead.
func WarningBox(w io.Writer, plain bool, title, body string) {
	body = strings.TrimRight(body, "\n")
	if plain {
		fmt.Fprintf(w, "WARNING: %s\n", title)
		if body != "" {
			fmt.Fprintln(w, body)
		}
		return
	}
	content := warningTitle.Render(title)
	if body != "" {
		content += "\n" + body
	}
	fmt.Fprintln(w, warningBox.Render(content))
}

// Bullets formats items as an indented dash list.
func Bullets(items []string) string {
	var b strings.Builder
	for i, it := range items {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("  - ")
		b.WriteString(it)
	}
	return b.String()
}
