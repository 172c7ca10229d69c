package artwork

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nfnt/resize"
)

const fetchTimeout = 5 * time.Second

var ErrNoArtwork = errors.New("no artwork for track")

// maxDimension caps the size of decoded covers.
const maxDimension = 512

var sidecarExts = []string{".jpg", ".jpeg", ".png"}

// Locate finds a cover for a song file. A thumbnail reference wins, then an
// image named like the song, then a folder cover.
func Locate(songPath, thumbnail string) (string, error) {
	if thumbnail != "" {
		return thumbnail, nil
	}
	if songPath == "" {
		return "", ErrNoArtwork
	}

	base := strings.TrimSuffix(songPath, filepath.Ext(songPath))
	for _, ext := range sidecarExts {
		if fileExists(base + ext) {
			return base + ext, nil
		}
	}

	dir := filepath.Dir(songPath)
	for _, name := range []string{"cover", "folder"} {
		for _, ext := range sidecarExts {
			candidate := filepath.Join(dir, name+ext)
			if fileExists(candidate) {
				return candidate, nil
			}
		}
	}
	return "", ErrNoArtwork
}

// Load reads an image from a local path, a file:// url or an http(s) url.
func Load(ctx context.Context, ref string) (image.Image, error) {
	if ref == "" {
		return nil, ErrNoArtwork
	}

	var (
		body io.ReadCloser
		err  error
	)
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		body, err = fetchRemote(ctx, ref)
	} else {
		body, err = os.Open(strings.TrimPrefix(ref, "file://"))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open artwork: %w", err)
	}
	defer body.Close()

	img, _, err := image.Decode(body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode artwork: %w", err)
	}
	return shrink(img), nil
}

func fetchRemote(ctx context.Context, url string) (io.ReadCloser, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		return nil, err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("artwork fetch returned status %d", resp.StatusCode)
	}
	return &cancelBody{ReadCloser: resp.Body, cancel: cancel}, nil
}

type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelBody) Close() error {
	defer b.cancel()
	return b.ReadCloser.Close()
}

func shrink(img image.Image) image.Image {
	bounds := img.Bounds()
	if bounds.Dx() <= maxDimension && bounds.Dy() <= maxDimension {
		return img
	}
	return resize.Thumbnail(maxDimension, maxDimension, img, resize.Bilinear)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
