package artwork

import (
	"image"
	"image/color"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/nfnt/resize"
)

// RenderHalfBlock draws img as width x height terminal cells, two pixels per
// cell stacked with the upper half block glyph.
func RenderHalfBlock(img image.Image, width, height int) []string {
	if img == nil || width < 4 || height < 2 {
		return nil
	}

	scaled := resize.Resize(uint(width), uint(height*2), img, resize.Lanczos3)
	bounds := scaled.Bounds()

	rows := make([]string, height)
	for y := range rows {
		var line strings.Builder
		for x := 0; x < bounds.Dx(); x++ {
			top := scaled.At(bounds.Min.X+x, bounds.Min.Y+y*2)
			bottom := top
			if y*2+1 < bounds.Dy() {
				bottom = scaled.At(bounds.Min.X+x, bounds.Min.Y+y*2+1)
			}

			topHex, topOpaque := cellColor(top)
			bottomHex, bottomOpaque := cellColor(bottom)
			if !topOpaque && !bottomOpaque {
				line.WriteByte(' ')
				continue
			}

			line.WriteString(lipgloss.NewStyle().
				Foreground(lipgloss.Color(topHex)).
				Background(lipgloss.Color(bottomHex)).
				Render("▀"))
		}
		rows[y] = line.String()
	}
	return rows
}

func cellColor(c color.Color) (string, bool) {
	r, g, b, a := c.RGBA()
	return RGBToHex(int(r>>8), int(g>>8), int(b>>8)), a>>8 >= 128
}

// GradientText colors each rune of text along the gradient.
func GradientText(text string, gradient []string, bold bool) string {
	runes := []rune(text)
	if len(runes) == 0 || len(gradient) == 0 {
		return text
	}

	var out strings.Builder
	for i, r := range runes {
		idx := 0
		if len(runes) > 1 {
			idx = i * (len(gradient) - 1) / (len(runes) - 1)
		}
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(gradient[min(idx, len(gradient)-1)])).Bold(bold)
		out.WriteString(style.Render(string(r)))
	}
	return out.String()
}
