package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"karolbroda.com/resonance/internal/queue"
)

// formatTime renders seconds as m:ss, or h:mm:ss past an hour.
func formatTime(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	h, m, s := seconds/3600, (seconds%3600)/60, seconds%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// truncate cuts s to at most width cells, ending with an ellipsis when cut.
func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if lipgloss.Width(s) <= width {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && lipgloss.Width(string(runes))+1 > width {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "…"
}

// padRight pads s with spaces to width cells.
func padRight(s string, width int) string {
	if gap := width - lipgloss.Width(s); gap > 0 {
		return s + strings.Repeat(" ", gap)
	}
	return s
}

func centerText(text string, screenWidth int) string {
	padding := (screenWidth - lipgloss.Width(text)) / 2
	if padding < 0 {
		padding = 0
	}
	return strings.Repeat(" ", padding) + text
}

func loopLabel(mode queue.LoopMode) string {
	switch mode {
	case queue.LoopRepeatAll:
		return "repeat"
	case queue.LoopRepeatOne:
		return "repeat once"
	default:
		return "loop off"
	}
}

// queueLine is one selectable line of the queue pane: a group header or a row.
type queueLine struct {
	block  int
	header bool
	row    queue.Row
}

// flattenQueue turns the projected view into the lines the queue pane draws.
// Rows of collapsed groups are left out.
func flattenQueue(v queue.View) []queueLine {
	var lines []queueLine
	for i, b := range v.Blocks {
		if b.IsGroup() {
			lines = append(lines, queueLine{block: i, header: true})
		}
		for _, row := range b.Visible() {
			lines = append(lines, queueLine{block: i, row: row})
		}
	}
	return lines
}

// currentLine finds the line of the playing entry, or the header of the
// collapsed group hiding it.
func currentLine(v queue.View, lines []queueLine) int {
	for i, l := range lines {
		if !l.header && l.row.Current {
			return i
		}
	}
	for i, l := range lines {
		if l.header && v.Blocks[l.block].HasCurrent {
			return i
		}
	}
	return -1
}

// window returns the [start, end) range of a list of n items that keeps
// cursor visible in height rows.
func window(n, cursor, height int) (int, int) {
	if height <= 0 || n == 0 {
		return 0, 0
	}
	if n <= height {
		return 0, n
	}
	start := cursor - height/2
	start = max(0, min(start, n-height))
	return start, start + height
}
