package ui

import (
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"karolbroda.com/resonance/internal/artwork"
)

// pixelFont holds 5x5 glyphs, one byte per row, most significant of the low
// five bits on the left. Missing runes render as a space.
var pixelFont = map[rune][5]uint8{
	'A': {0b01110, 0b10001, 0b11111, 0b10001, 0b10001},
	'B': {0b11110, 0b10001, 0b11110, 0b10001, 0b11110},
	'C': {0b01111, 0b10000, 0b10000, 0b10000, 0b01111},
	'D': {0b11110, 0b10001, 0b10001, 0b10001, 0b11110},
	'E': {0b11111, 0b10000, 0b11110, 0b10000, 0b11111},
	'F': {0b11111, 0b10000, 0b11110, 0b10000, 0b10000},
	'G': {0b01111, 0b10000, 0b10011, 0b10001, 0b01110},
	'H': {0b10001, 0b10001, 0b11111, 0b10001, 0b10001},
	'I': {0b11111, 0b00100, 0b00100, 0b00100, 0b11111},
	'J': {0b00111, 0b00001, 0b00001, 0b10001, 0b01110},
	'K': {0b10001, 0b10010, 0b11100, 0b10010, 0b10001},
	'L': {0b10000, 0b10000, 0b10000, 0b10000, 0b11111},
	'M': {0b10001, 0b11011, 0b10101, 0b10001, 0b10001},
	'N': {0b10001, 0b11001, 0b10101, 0b10011, 0b10001},
	'O': {0b01110, 0b10001, 0b10001, 0b10001, 0b01110},
	'P': {0b11110, 0b10001, 0b11110, 0b10000, 0b10000},
	'Q': {0b01110, 0b10001, 0b10101, 0b10010, 0b01101},
	'R': {0b11110, 0b10001, 0b11110, 0b10010, 0b10001},
	'S': {0b01111, 0b10000, 0b01110, 0b00001, 0b11110},
	'T': {0b11111, 0b00100, 0b00100, 0b00100, 0b00100},
	'U': {0b10001, 0b10001, 0b10001, 0b10001, 0b01110},
	'V': {0b10001, 0b10001, 0b10001, 0b01010, 0b00100},
	'W': {0b10001, 0b10001, 0b10101, 0b11011, 0b10001},
	'X': {0b10001, 0b01010, 0b00100, 0b01010, 0b10001},
	'Y': {0b10001, 0b01010, 0b00100, 0b00100, 0b00100},
	'Z': {0b11111, 0b00010, 0b00100, 0b01000, 0b11111},

	'a': {0b00000, 0b01110, 0b00001, 0b01111, 0b01111},
	'b': {0b10000, 0b10000, 0b11110, 0b10001, 0b11110},
	'c': {0b00000, 0b01110, 0b10000, 0b10000, 0b01110},
	'd': {0b00001, 0b00001, 0b01111, 0b10001, 0b01111},
	'e': {0b01110, 0b10001, 0b11111, 0b10000, 0b01110},
	'f': {0b00110, 0b01000, 0b11110, 0b01000, 0b01000},
	'g': {0b01111, 0b10001, 0b01111, 0b00001, 0b01110},
	'h': {0b10000, 0b10000, 0b11110, 0b10001, 0b10001},
	'i': {0b00100, 0b00000, 0b00100, 0b00100, 0b00100},
	'j': {0b00010, 0b00000, 0b00010, 0b00010, 0b01100},
	'k': {0b10000, 0b10010, 0b11100, 0b10010, 0b10001},
	'l': {0b01100, 0b00100, 0b00100, 0b00100, 0b01110},
	'm': {0b00000, 0b11010, 0b10101, 0b10101, 0b10001},
	'n': {0b00000, 0b11110, 0b10001, 0b10001, 0b10001},
	'o': {0b00000, 0b01110, 0b10001, 0b10001, 0b01110},
	'p': {0b00000, 0b11110, 0b10001, 0b11110, 0b10000},
	'q': {0b00000, 0b01111, 0b10001, 0b01111, 0b00001},
	'r': {0b00000, 0b10110, 0b11000, 0b10000, 0b10000},
	's': {0b00000, 0b01110, 0b11000, 0b00110, 0b11100},
	't': {0b01000, 0b11110, 0b01000, 0b01000, 0b00110},
	'u': {0b00000, 0b10001, 0b10001, 0b10001, 0b01110},
	'v': {0b00000, 0b10001, 0b10001, 0b01010, 0b00100},
	'w': {0b00000, 0b10001, 0b10101, 0b10101, 0b01010},
	'x': {0b00000, 0b10001, 0b01010, 0b01010, 0b10001},
	'y': {0b00000, 0b10001, 0b01111, 0b00001, 0b01110},
	'z': {0b00000, 0b11111, 0b00110, 0b01100, 0b11111},

	'0': {0b01110, 0b10011, 0b10101, 0b11001, 0b01110},
	'1': {0b00100, 0b01100, 0b00100, 0b00100, 0b01110},
	'2': {0b01110, 0b10001, 0b00110, 0b01000, 0b11111},
	'3': {0b11110, 0b00001, 0b00110, 0b00001, 0b11110},
	'4': {0b10001, 0b10001, 0b11111, 0b00001, 0b00001},
	'5': {0b11111, 0b10000, 0b11110, 0b00001, 0b11110},
	'6': {0b01110, 0b10000, 0b11110, 0b10001, 0b01110},
	'7': {0b11111, 0b00001, 0b00010, 0b00100, 0b00100},
	'8': {0b01110, 0b10001, 0b01110, 0b10001, 0b01110},
	'9': {0b01110, 0b10001, 0b01111, 0b00001, 0b01110},

	' ':  {0b00000, 0b00000, 0b00000, 0b00000, 0b00000},
	'.':  {0b00000, 0b00000, 0b00000, 0b00000, 0b00100},
	',':  {0b00000, 0b00000, 0b00000, 0b00100, 0b01000},
	'!':  {0b00100, 0b00100, 0b00100, 0b00000, 0b00100},
	'?':  {0b01110, 0b10001, 0b00110, 0b00000, 0b00100},
	'\'': {0b00100, 0b00100, 0b00000, 0b00000, 0b00000},
	'"':  {0b01010, 0b01010, 0b00000, 0b00000, 0b00000},
	'-':  {0b00000, 0b00000, 0b11111, 0b00000, 0b00000},
	':':  {0b00000, 0b00100, 0b00000, 0b00100, 0b00000},
	';':  {0b00000, 0b00100, 0b00000, 0b00100, 0b01000},
	'(':  {0b00010, 0b00100, 0b00100, 0b00100, 0b00010},
	')':  {0b01000, 0b00100, 0b00100, 0b00100, 0b01000},
	'·':  {0b00000, 0b00000, 0b00100, 0b00000, 0b00000},

	// german letters
	'Ä': {0b01010, 0b01110, 0b10001, 0b11111, 0b10001},
	'Ö': {0b01010, 0b01110, 0b10001, 0b10001, 0b01110},
	'Ü': {0b01010, 0b10001, 0b10001, 0b10001, 0b01110},
	'ä': {0b01010, 0b01110, 0b00001, 0b01111, 0b01111},
	'ö': {0b01010, 0b00000, 0b01110, 0b10001, 0b01110},
	'ü': {0b01010, 0b00000, 0b10001, 0b10001, 0b01110},
	'ß': {0b01110, 0b10001, 0b11110, 0b10001, 0b11110},

	// polish letters
	'Ą': {0b01110, 0b10001, 0b11111, 0b10001, 0b10011},
	'Ć': {0b00010, 0b01111, 0b10000, 0b10000, 0b01111},
	'Ę': {0b11111, 0b10000, 0b11110, 0b10000, 0b11011},
	'Ł': {0b10000, 0b10000, 0b11100, 0b10000, 0b11111},
	'Ń': {0b00100, 0b10001, 0b11001, 0b10101, 0b10011},
	'Ó': {0b00100, 0b01110, 0b10001, 0b10001, 0b01110},
	'Ś': {0b00010, 0b01111, 0b10000, 0b01110, 0b11110},
	'Ź': {0b00010, 0b11111, 0b00010, 0b01000, 0b11111},
	'Ż': {0b00100, 0b11111, 0b00010, 0b01000, 0b11111},
	'ą': {0b00000, 0b01110, 0b00001, 0b01111, 0b01011},
	'ć': {0b00010, 0b01110, 0b10000, 0b10000, 0b01110},
	'ę': {0b01110, 0b10001, 0b11111, 0b10000, 0b01011},
	'ł': {0b01100, 0b00100, 0b01110, 0b00100, 0b01110},
	'ń': {0b00100, 0b00000, 0b11110, 0b10001, 0b10001},
	'ó': {0b00100, 0b00000, 0b01110, 0b10001, 0b01110},
	'ś': {0b00010, 0b00000, 0b01110, 0b11000, 0b01110},
	'ź': {0b00010, 0b00000, 0b11111, 0b00110, 0b11111},
	'ż': {0b00100, 0b00000, 0b11111, 0b00110, 0b11111},

	// french letters
	'À': {0b01000, 0b01110, 0b10001, 0b11111, 0b10001},
	'Â': {0b00100, 0b01110, 0b10001, 0b11111, 0b10001},
	'Ç': {0b01110, 0b10000, 0b10000, 0b01110, 0b00100},
	'È': {0b01000, 0b11111, 0b10000, 0b11110, 0b11111},
	'É': {0b00010, 0b11111, 0b10000, 0b11110, 0b11111},
	'Ê': {0b00100, 0b11111, 0b10000, 0b11110, 0b11111},
	'Ë': {0b01010, 0b11111, 0b10000, 0b11110, 0b11111},
	'Î': {0b00100, 0b01010, 0b00100, 0b00100, 0b11111},
	'Ï': {0b01010, 0b11111, 0b00100, 0b00100, 0b11111},
	'Ô': {0b00100, 0b01110, 0b10001, 0b10001, 0b01110},
	'Ù': {0b01000, 0b10001, 0b10001, 0b10001, 0b01110},
	'Û': {0b00100, 0b10001, 0b10001, 0b10001, 0b01110},
	'Ÿ': {0b01010, 0b10001, 0b01010, 0b00100, 0b00100},
	'Œ': {0b01111, 0b10101, 0b10111, 0b10101, 0b01111},
	'à': {0b01000, 0b01110, 0b00001, 0b01111, 0b01111},
	'â': {0b00100, 0b01110, 0b00001, 0b01111, 0b01111},
	'ç': {0b00000, 0b01110, 0b10000, 0b01110, 0b00100},
	'è': {0b01000, 0b01110, 0b11111, 0b10000, 0b01110},
	'é': {0b00010, 0b01110, 0b11111, 0b10000, 0b01110},
	'ê': {0b00100, 0b01110, 0b11111, 0b10000, 0b01110},
	'ë': {0b01010, 0b01110, 0b11111, 0b10000, 0b01110},
	'î': {0b00100, 0b01010, 0b00100, 0b00100, 0b00100},
	'ï': {0b01010, 0b00000, 0b00100, 0b00100, 0b00100},
	'ô': {0b00100, 0b00000, 0b01110, 0b10001, 0b01110},
	'ù': {0b01000, 0b00000, 0b10001, 0b10001, 0b01110},
	'û': {0b00100, 0b01010, 0b10001, 0b10001, 0b01110},
	'ÿ': {0b01010, 0b10001, 0b01111, 0b00001, 0b01110},
	'œ': {0b00000, 0b01111, 0b10101, 0b10100, 0b01111},
}

const (
	charWidth     = 5
	charHeight    = 5
	charGap       = 1
	minFocusLevel = 15
)

// TextRenderer draws lyric lines in the pixel font, two pixel rows per
// terminal row.
type TextRenderer struct {
	palette     *artwork.Palette
	animState   *AnimState
	screenWidth int
}

func NewTextRenderer(palette *artwork.Palette, animState *AnimState, screenWidth int) *TextRenderer {
	return &TextRenderer{
		palette:     palette,
		animState:   animState,
		screenWidth: screenWidth,
	}
}

type pixel struct {
	filled    bool
	charIndex int
	x         int
}

// glyphGrid lays runes out left to right with a gap column between them.
type glyphGrid struct {
	rows  [charHeight][]pixel
	chars int
	width int
}

func buildGrid(text string) glyphGrid {
	runes := []rune(strings.ToUpper(text))
	g := glyphGrid{chars: len(runes)}
	if len(runes) > 0 {
		g.width = len(runes)*charWidth + (len(runes)-1)*charGap
	}

	x := 0
	for i, char := range runes {
		glyph, ok := pixelFont[char]
		if !ok {
			glyph = pixelFont[' ']
		}
		for row := 0; row < charHeight; row++ {
			for col := 0; col < charWidth; col++ {
				bit := (glyph[row] >> (charWidth - 1 - col)) & 1
				g.rows[row] = append(g.rows[row], pixel{filled: bit == 1, charIndex: i, x: x + col})
			}
			if i < len(runes)-1 {
				for gap := 0; gap < charGap; gap++ {
					g.rows[row] = append(g.rows[row], pixel{charIndex: i, x: x + charWidth + gap})
				}
			}
		}
		x += charWidth + charGap
	}
	return g
}

// RenderFocusLyric draws the current line with the palette gradient and the
// reveal animation.
func (r *TextRenderer) RenderFocusLyric(text string) []string {
	var result []string
	for _, line := range r.wrapText(text) {
		g := buildGrid(line)
		result = append(result, r.renderGrid(g, func(p pixel) string {
			return r.focusColor(p, g.chars, g.width)
		})...)
	}
	return result
}

// RenderContextLyric draws a neighbouring line in grey. brightness is in [0, 1].
func (r *TextRenderer) RenderContextLyric(text string, brightness float64) []string {
	grey := contextColor(brightness)
	var result []string
	for _, line := range r.wrapText(text) {
		result = append(result, r.renderGrid(buildGrid(line), func(pixel) string { return grey })...)
	}
	return result
}

// wrapText splits text into lines that fit the screen in the pixel font.
func (r *TextRenderer) wrapText(text string) []string {
	maxChars := (r.screenWidth - 8) / (charWidth + charGap)
	if maxChars < 5 {
		maxChars = 5
	}
	return wrapWords(text, maxChars)
}

func wrapWords(text string, maxChars int) []string {
	var lines []string
	var current []rune

	for _, word := range strings.Fields(text) {
		w := []rune(word)
		if len(current) > 0 && len(current)+1+len(w) <= maxChars {
			current = append(append(current, ' '), w...)
			continue
		}
		if len(current) > 0 {
			lines = append(lines, string(current))
		}
		if len(w) > maxChars {
			w = w[:maxChars]
		}
		current = w
	}
	if len(current) > 0 {
		lines = append(lines, string(current))
	}
	return lines
}

func (r *TextRenderer) renderGrid(g glyphGrid, colorOf func(pixel) string) []string {
	termRows := (charHeight + 1) / 2
	result := make([]string, termRows)

	pad := (r.screenWidth - g.width) / 2
	if pad < 0 {
		pad = 0
	}
	padding := strings.Repeat(" ", pad)

	for termRow := 0; termRow < termRows; termRow++ {
		top := g.rows[termRow*2]
		var bottom []pixel
		if termRow*2+1 < charHeight {
			bottom = g.rows[termRow*2+1]
		}

		var line strings.Builder
		line.WriteString(padding)
		for col := range top {
			topFilled := top[col].filled
			bottomFilled := bottom != nil && bottom[col].filled
			if !topFilled && !bottomFilled {
				line.WriteString(" ")
				continue
			}

			style := lipgloss.NewStyle().Foreground(lipgloss.Color(colorOf(top[col])))
			switch {
			case topFilled && bottomFilled:
				line.WriteString(style.Render("█"))
			case topFilled:
				line.WriteString(style.Render("▀"))
			default:
				line.WriteString(style.Render("▄"))
			}
		}
		result[termRow] = line.String()
	}
	return result
}

func (r *TextRenderer) focusColor(p pixel, totalChars int, totalWidth int) string {
	reveal := 1.0
	if r.animState.CharReveal < 1.0 {
		waveSpeed := 0.03
		if totalChars > 20 {
			waveSpeed = 0.8 / float64(totalChars)
		}
		reveal = math.Max(0, math.Min(1, easeOutQuart(r.animState.CharReveal)-float64(p.charIndex)*waveSpeed))
	}

	gradientPos := 0.0
	if totalWidth > 1 {
		gradientPos = float64(p.x) / float64(totalWidth-1)
	}
	color := artwork.Blend(r.palette.Primary, r.palette.Accent, gradientPos)

	if r.animState.GlowIntensity > 0.05 {
		color = artwork.Glow(color, r.animState.GlowIntensity*0.5)
	}
	if shimmer := math.Sin(r.animState.ShimmerPhase+float64(p.x)*0.05)*0.5 + 0.5; shimmer > 0.5 {
		color = artwork.Glow(color, (shimmer-0.5)*0.25)
	}

	red, green, blue := artwork.HexToRGB(color)
	fade := easeOutCubic(reveal)
	level := func(v int) int {
		return max(int(float64(v)*fade), minFocusLevel)
	}
	return artwork.RGBToHex(level(red), level(green), level(blue))
}

func contextColor(brightness float64) string {
	grey := min(max(int(80*brightness), 25), 80)
	return artwork.RGBToHex(grey, grey, grey)
}
