package artwork

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/nfnt/resize"
)

const (
	kittyChunkSize = 4096
	// approximate pixel size of one terminal cell
	cellPixelsX = 10
	cellPixelsY = 20
)

// RenderKitty encodes img for the kitty graphics protocol, scaled to fit
// cols x rows cells with its aspect ratio kept. It returns "" when img cannot
// be encoded, so callers can fall back to RenderHalfBlock. The cursor stays
// where the image starts.
func RenderKitty(img image.Image, cols, rows int) string {
	if img == nil || cols <= 0 || rows <= 0 {
		return ""
	}

	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return ""
	}

	w, h := fitWithin(bounds.Dx(), bounds.Dy(), cols*cellPixelsX, rows*cellPixelsY)
	scaled := resize.Resize(uint(w), uint(h), img, resize.Lanczos3)

	var buf bytes.Buffer
	if err := png.Encode(&buf, scaled); err != nil {
		return ""
	}
	encoded := base64.StdEncoding.EncodeToString(buf.Bytes())

	var out strings.Builder
	for i := 0; i < len(encoded); i += kittyChunkSize {
		end := min(i+kittyChunkSize, len(encoded))
		more := 1
		if end == len(encoded) {
			more = 0
		}

		if i == 0 {
			fmt.Fprintf(&out, "\x1b_Ga=T,f=100,C=1,c=%d,r=%d,m=%d;%s\x1b\\", cols, rows, more, encoded[i:end])
		} else {
			fmt.Fprintf(&out, "\x1b_Gm=%d;%s\x1b\\", more, encoded[i:end])
		}
	}
	return out.String()
}

// fitWithin scales width x height down or up to fit maxW x maxH, never
// below 10 pixels on a side.
func fitWithin(width, height, maxW, maxH int) (int, int) {
	aspect := float64(width) / float64(height)
	w, h := maxW, maxH
	if aspect > float64(maxW)/float64(maxH) {
		h = int(float64(maxW) / aspect)
	} else {
		w = int(float64(maxH) * aspect)
	}
	return max(10, w), max(10, h)
}
