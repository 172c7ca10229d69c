package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"karolbroda.com/resonance/internal/artwork"
)

const errorColor = "#FF6B6B"

func (m Model) View() string {
	width := m.width
	height := m.height
	if width == 0 {
		width = 80
	}
	if height == 0 {
		height = 24
	}

	if m.quitting {
		return ""
	}

	palette := m.display.Palette
	if palette == nil {
		palette = artwork.DefaultPalette()
	}

	var lines []string
	if !m.hideHeader {
		lines = append(lines, m.renderCompactHeader(palette, width)...)
	}
	lines = append(lines, m.renderTabs(palette))

	footer := m.renderFooter(palette, width)
	bodyHeight := max(0, height-len(lines)-1)

	switch m.pane {
	case PaneLibrary:
		lines = append(lines, m.renderLibrary(palette, bodyHeight, width)...)
	case PaneQueue:
		lines = append(lines, m.renderQueue(palette, bodyHeight, width)...)
	default:
		lines = append(lines, m.renderLyricsPane(palette, bodyHeight, width)...)
	}

	for len(lines) < height-1 {
		lines = append(lines, "")
	}
	if len(lines) > height-1 {
		lines = lines[:height-1]
	}
	lines = append(lines, footer)

	return strings.Join(lines, "\n")
}

func (m Model) renderCompactHeader(palette *artwork.Palette, width int) []string {
	lines := []string{""}

	artWidth, artHeight := headerArtSize(width)
	if width < 50 || m.height < 25 || m.display.Image == nil {
		artWidth = 0
		artHeight = 0
	}

	var artworkLines []string
	if m.kitty && artWidth > 0 {
		artworkLines = m.kittyArtLines(artWidth, artHeight)
	} else {
		artworkLines = artwork.RenderHalfBlock(m.display.Image, artWidth, artHeight)
	}
	infoLines := m.renderTrackInfo(palette, width-artWidth-4)

	rows := max(len(infoLines), len(artworkLines))
	for i := 0; i < rows; i++ {
		var line strings.Builder
		if artWidth > 0 {
			line.WriteString("  ")
			if i < len(artworkLines) {
				line.WriteString(artworkLines[i])
			} else {
				line.WriteString(strings.Repeat(" ", artWidth))
			}
			line.WriteString("  ")
		} else {
			line.WriteString("  ")
		}
		if i < len(infoLines) {
			line.WriteString(infoLines[i])
		}
		lines = append(lines, line.String())
	}

	lines = append(lines, "")
	if m.status.Duration > 0 {
		lines = append(lines, m.renderMinimalProgress(palette, width), "")
	}

	return lines
}

func (m Model) renderTrackInfo(palette *artwork.Palette, width int) []string {
	maxWidth := max(20, width-4)
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color(palette.Dim))

	trk := m.display.Track
	if trk == nil {
		return []string{
			dim.Italic(true).Render("nothing playing"),
			m.renderStatusLine(palette),
		}
	}

	titleStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color(palette.Primary)).
		Bold(true)
	artistStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color(palette.Secondary))

	lines := []string{
		titleStyle.Render(truncate(trk.Title, maxWidth)),
		artistStyle.Render(truncate(trk.Artist, maxWidth)),
	}
	if trk.Album != "" {
		lines = append(lines, dim.Render(truncate(trk.Album, maxWidth)))
	}
	return append(lines, m.renderStatusLine(palette))
}

// renderStatusLine shows state, volume, speed, loop mode and normalization.
func (m Model) renderStatusLine(palette *artwork.Palette) string {
	st := m.status
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color(palette.Dim))
	accent := lipgloss.NewStyle().Foreground(lipgloss.Color(palette.Accent))

	volume := fmt.Sprintf("vol %d%%", int(st.Volume*100+0.5))
	if st.Muted {
		volume = "muted"
	}

	parts := []string{accent.Render(st.State), dim.Render(volume)}
	if st.Speed != 0 && st.Speed != 1 {
		parts = append(parts, dim.Render(fmt.Sprintf("%.2gx", st.Speed)))
	}
	parts = append(parts, dim.Render(loopLabel(st.Loop)))
	if st.Normalization {
		parts = append(parts, accent.Render(fmt.Sprintf("norm %.2f", st.Gain)))
	}
	if st.QueueLength > 0 && st.Cursor >= 0 {
		parts = append(parts, dim.Render(fmt.Sprintf("%d/%d", st.Cursor+1, st.QueueLength)))
	}
	return strings.Join(parts, dim.Render(" · "))
}

func (m Model) renderMinimalProgress(palette *artwork.Palette, width int) string {
	duration := m.status.Duration
	if duration <= 0 {
		return ""
	}

	barWidth := max(20, width-20)
	progress := max(0, min(1, m.status.Position/duration))
	filledWidth := int(float64(barWidth) * progress)

	var bar strings.Builder

	filledStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(palette.Primary))
	emptyStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(palette.Dim)).Faint(true)

	for i := 0; i < barWidth; i++ {
		switch {
		case i < filledWidth:
			bar.WriteString(filledStyle.Render("━"))
		case i == filledWidth:
			bar.WriteString(filledStyle.Render("●"))
		default:
			bar.WriteString(emptyStyle.Render("─"))
		}
	}

	timeStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(palette.Dim))

	return fmt.Sprintf("  %s  %s  %s",
		timeStyle.Render(formatTime(int64(m.status.Position))),
		bar.String(),
		timeStyle.Render(formatTime(int64(duration))))
}

func (m Model) renderTabs(palette *artwork.Palette) string {
	active := lipgloss.NewStyle().Foreground(lipgloss.Color(palette.Primary)).Bold(true).Underline(true)
	inactive := lipgloss.NewStyle().Foreground(lipgloss.Color(palette.Dim))

	tabs := make([]string, len(paneNames))
	for i, name := range paneNames {
		label := fmt.Sprintf("%d %s", i+1, name)
		if Pane(i) == m.pane {
			tabs[i] = active.Render(label)
		} else {
			tabs[i] = inactive.Render(label)
		}
	}
	return "  " + strings.Join(tabs, "   ")
}

func (m Model) renderFooter(palette *artwork.Palette, width int) string {
	if m.flash != "" {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(palette.Accent))
		return "  " + style.Render(truncate(m.flash, width-2))
	}

	var hints string
	switch m.pane {
	case PaneLibrary:
		hints = "enter queue · P play now · S shuffle · o open · t songs/playlists"
	case PaneQueue:
		hints = "enter play · c collapse · d remove · J/K move · C clear"
	default:
		hints = "[ ] sync · { } sync ×5 · 0 reset"
	}
	hints += " · space pause · n/p skip · r loop · N normalize · q quit"

	style := lipgloss.NewStyle().Foreground(lipgloss.Color(palette.Dim)).Faint(true)
	return "  " + style.Render(truncate(hints, width-2))
}

func (m Model) renderLibrary(palette *artwork.Palette, height int, width int) []string {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color(palette.Dim))
	selected := lipgloss.NewStyle().Foreground(lipgloss.Color(palette.Primary)).Bold(true)
	normal := lipgloss.NewStyle().Foreground(lipgloss.Color(palette.Secondary))

	var title string
	var items []string
	switch {
	case m.openList != "":
		title = "playlist " + m.openList + "  (backspace to return)"
		for _, s := range m.openSongs {
			items = append(items, libraryRow(s.Display(), s.DurationSecs, width))
		}
	case m.tab == TabPlaylists:
		title = "songs  [playlists]"
		for _, pl := range m.playlists {
			items = append(items, padRight(truncate(pl.Name, width-16), width-16)+fmt.Sprintf("%4d tracks", pl.Tracks))
		}
	default:
		title = "[songs]  playlists"
		for _, s := range m.songs {
			items = append(items, libraryRow(s.Display(), s.DurationSecs, width))
		}
	}

	lines := []string{"  " + dim.Render(title), ""}
	if len(items) == 0 {
		return append(lines, "  "+dim.Italic(true).Render("empty"))
	}

	start, end := window(len(items), m.libCursor, max(1, height-len(lines)))
	for i := start; i < end; i++ {
		if i == m.libCursor {
			lines = append(lines, selected.Render("▸ "+items[i]))
		} else {
			lines = append(lines, "  "+normal.Render(items[i]))
		}
	}
	return lines
}

func libraryRow(label string, durationSecs int64, width int) string {
	nameWidth := max(10, width-12)
	row := padRight(truncate(label, nameWidth), nameWidth)
	if durationSecs > 0 {
		row += " " + formatTime(durationSecs)
	}
	return row
}

func (m Model) renderQueue(palette *artwork.Palette, height int, width int) []string {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color(palette.Dim))
	v := m.queueView

	summary := fmt.Sprintf("%d tracks · %s · %s", v.TotalTracks, formatTime(v.TotalDurationSecs), loopLabel(v.Loop))
	lines := []string{"  " + dim.Render(summary), ""}

	flat := flattenQueue(v)
	if len(flat) == 0 {
		return append(lines, "  "+dim.Italic(true).Render("queue is empty"))
	}

	start, end := window(len(flat), m.queueCursor, max(1, height-len(lines)))
	for i := start; i < end; i++ {
		lines = append(lines, m.renderQueueLine(palette, flat[i], i == m.queueCursor, width))
	}
	return lines
}

func (m Model) renderQueueLine(palette *artwork.Palette, line queueLine, selected bool, width int) string {
	block := m.queueView.Blocks[line.block]

	cursor := "  "
	if selected {
		cursor = "▸ "
	}

	if line.header {
		marker := "▾"
		if block.Collapsed {
			marker = "▸"
		}
		label := fmt.Sprintf("%s %s  %d tracks · %s", marker, block.Label, len(block.Rows), formatTime(block.DurationSecs))
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(palette.Accent)).Bold(true)
		if block.HasCurrent && block.Collapsed {
			label += "  ♪"
		}
		return cursor + style.Render(truncate(label, width-4))
	}

	indent := ""
	if block.IsGroup() {
		indent = "  "
	}
	playing := "  "
	if line.row.Current {
		playing = "♪ "
	}

	text := fmt.Sprintf("%s%s%3d  ", indent, playing, line.row.Index+1)
	text += libraryRow(line.row.Entry.Track.Display(), line.row.Entry.Track.DurationSecs, width-lipgloss.Width(text)-4)

	style := lipgloss.NewStyle().Foreground(lipgloss.Color(palette.Secondary))
	switch {
	case line.row.Current:
		style = lipgloss.NewStyle().Foreground(lipgloss.Color(palette.Primary)).Bold(true)
	case selected:
		style = lipgloss.NewStyle().Foreground(lipgloss.Color(palette.Primary))
	}
	return cursor + style.Render(text)
}

func (m Model) renderLyricsPane(palette *artwork.Palette, height int, width int) []string {
	switch {
	case m.display.Track == nil:
		return m.renderWaiting(palette, height, width)
	case m.err != nil:
		return m.renderErrorSection(height, width)
	case m.display.CurrentIndex >= 0 && m.display.CurrentIndex < len(m.display.Lines):
		return m.renderSlidingLyrics(palette, height, width)
	case len(m.display.Plain) > 0:
		return m.renderPlainLyrics(palette, height, width)
	default:
		return m.renderWaitingForLyrics(palette, height, width)
	}
}

func (m Model) renderWaiting(palette *artwork.Palette, height int, width int) []string {
	lines := make([]string, max(0, height/2-1))

	style := lipgloss.NewStyle().
		Foreground(lipgloss.Color(palette.Dim)).
		Italic(true)
	lines = append(lines, centerText(style.Render("awaiting music"), width))

	pulseChars := []string{"·", "•", "●", "•"}
	pulseIdx := (m.tickCount / 4) % len(pulseChars)
	pulse := lipgloss.NewStyle().Foreground(lipgloss.Color(palette.Secondary))
	return append(lines, centerText(pulse.Render(pulseChars[pulseIdx]), width))
}

func (m Model) renderSlidingLyrics(palette *artwork.Palette, height int, width int) []string {
	renderer := NewTextRenderer(palette, &m.animState, width)

	slideT := m.animState.SlideOffset()

	output := make([]string, height)

	contextCount := 2
	if height < 20 {
		contextCount = 1
	}

	type renderedLyric struct {
		lines   []string
		offset  int
		isFocus bool
	}

	var allLyrics []renderedLyric

	for offset := -contextCount - 1; offset <= contextCount+1; offset++ {
		idx := m.display.CurrentIndex + offset
		if idx < 0 || idx >= len(m.display.Lines) {
			continue
		}

		text := m.display.Lines[idx].Text
		if text == "" {
			text = "···"
		}

		if offset == 0 {
			allLyrics = append(allLyrics, renderedLyric{
				lines:   renderer.RenderFocusLyric(text),
				isFocus: true,
			})
			continue
		}

		allLyrics = append(allLyrics, renderedLyric{
			lines:  renderer.RenderContextLyric(text, contextBrightness(offset, slideT)),
			offset: offset,
		})
	}

	currentLyricIdx := 0
	currentLyricHeight := 0
	for i, rl := range allLyrics {
		if rl.isFocus {
			currentLyricIdx = i
			currentLyricHeight = len(rl.lines)
			break
		}
	}

	centerY := max(0, (height-currentLyricHeight)/2)

	spacing := 2
	slideAmount := float64(currentLyricHeight + spacing)

	positions := make([]int, len(allLyrics))
	positions[currentLyricIdx] = centerY

	y := centerY
	for i := currentLyricIdx - 1; i >= 0; i-- {
		y -= len(allLyrics[i].lines) + spacing
		positions[i] = y
	}

	y = centerY + currentLyricHeight + spacing
	for i := currentLyricIdx + 1; i < len(allLyrics); i++ {
		positions[i] = y
		y += len(allLyrics[i].lines) + spacing
	}

	// the new line slides up from below until the transition settles
	slideOffset := int((1 - slideT) * slideAmount)

	for pass := 0; pass < 2; pass++ {
		for i, rl := range allLyrics {
			if (pass == 0) == rl.isFocus {
				continue
			}

			finalY := positions[i] + slideOffset
			for j, line := range rl.lines {
				row := finalY + j
				if row >= 0 && row < height && (output[row] == "" || rl.isFocus) {
					output[row] = line
				}
			}
		}
	}

	if m.syncOffset != 0 && height > 0 {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(palette.Dim)).Faint(true)
		output[height-1] = centerText(style.Render(fmt.Sprintf("sync %+.1fs", m.syncOffset)), width)
	}

	return output
}

func contextBrightness(offset int, slideT float64) float64 {
	switch {
	case offset == -1 && slideT < 1.0:
		return lerp(0.7, 0.4, slideT)
	case offset == 1 && slideT < 1.0:
		return lerp(0.35, 0.5, slideT)
	}
	dist := max(offset, -offset)
	return max(0.3, 0.5-float64(dist-1)*0.1)
}

func (m Model) renderPlainLyrics(palette *artwork.Palette, height int, width int) []string {
	style := lipgloss.NewStyle().Foreground(lipgloss.Color(palette.Secondary))
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color(palette.Dim)).Italic(true)

	lines := []string{centerText(dim.Render("unsynced lyrics"), width), ""}

	// scroll with playback since there are no timestamps to follow
	total := len(m.display.Plain)
	start := 0
	if m.status.Duration > 0 {
		start = int(float64(total) * m.status.Position / m.status.Duration)
	}
	start, end := window(total, start, max(1, height-len(lines)))
	for _, text := range m.display.Plain[start:end] {
		lines = append(lines, centerText(style.Render(truncate(text, width-4)), width))
	}
	return lines
}

func (m Model) renderErrorSection(height int, width int) []string {
	lines := make([]string, max(0, height/2-1))

	errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(errorColor))
	return append(lines, centerText(errStyle.Render(m.err.Error()), width))
}

func (m Model) renderWaitingForLyrics(palette *artwork.Palette, height int, width int) []string {
	lines := make([]string, max(0, height/2-1))

	style := lipgloss.NewStyle().Foreground(lipgloss.Color(palette.Dim))

	switch {
	case m.loadingState.IsLoadingLyrics():
		frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
		idx := m.tickCount % len(frames)
		spinnerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(palette.Secondary))
		lines = append(lines, centerText(spinnerStyle.Render(frames[idx])+style.Render(" loading"), width))
	case len(m.display.Lines) > 0:
		lines = append(lines, centerText(style.Render("·"), width))
	default:
		lines = append(lines, centerText(style.Render("♪"), width))
	}

	return lines
}

// kittyArtLines places the kitty image on the first row and blank cells
// under it, so the track info beside it keeps its column.
func (m Model) kittyArtLines(width, height int) []string {
	img := m.display.kittyArt
	if img == "" || m.display.kittySize != [2]int{width, height} {
		img = artwork.RenderKitty(m.display.Image, width, height)
	}
	if img == "" {
		return artwork.RenderHalfBlock(m.display.Image, width, height)
	}

	blank := strings.Repeat(" ", width)
	lines := make([]string, height)
	for i := range lines {
		lines[i] = blank
	}
	lines[0] = img + blank
	return lines
}

func headerArtSize(width int) (int, int) {
	if width < 80 {
		return 8, 4
	}
	return 12, 6
}
