package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/kalambet/notebook/internal/model"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(os.Stderr, "  %s %s\n", l, val)
}

func printStep(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorCyan, "→ "+msg))
}

// renderMarkdown renders a note body for the terminal.
func renderMarkdown(src string, width int) (string, error) {
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(width)}
	if noColor {
		opts = append(opts, glamour.WithStandardStyle("notty"))
	} else {
		opts = append(opts, glamour.WithAutoStyle())
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return "", fmt.Errorf("creating markdown renderer: %w", err)
	}
	return r.Render(src)
}

func ago(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}

func priorityMark(p model.Priority) string {
	switch p {
	case model.PriorityHigh:
		return colorize(colorRed, "!!")
	case model.PriorityMedium:
		return colorize(colorYellow, "! ")
	}
	return "  "
}

const boardColumnWidth = 28

// renderBoard lays the kanban columns out side by side.
func renderBoard(cols []model.KanbanColumn) string {
	if len(cols) == 0 {
		return "No columns.\n"
	}
	rendered := make([]string, 0, len(cols))
	for _, col := range cols {
		header := lipgloss.NewStyle().Bold(true)
		border := lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Width(boardColumnWidth).
			Padding(0, 1)
		if !noColor {
			header = header.Foreground(lipgloss.Color(col.Color))
			border = border.BorderForeground(lipgloss.Color(col.Color))
		}

		lines := []string{header.Render(fmt.Sprintf("%s (%d)", col.Title, len(col.Tasks)))}
		for _, card := range col.Tasks {
			line := "• " + card.Title
			if card.Assignee != "" {
				line += " @" + card.Assignee
			}
			lines = append(lines, line)
			if len(card.Tags) > 0 {
				lines = append(lines, "  #"+strings.Join(card.Tags, " #"))
			}
		}
		rendered = append(rendered, border.Render(lipgloss.JoinVertical(lipgloss.Left, lines...)))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, rendered...) + "\n"
}
