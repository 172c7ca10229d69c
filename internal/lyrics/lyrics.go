package lyrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"karolbroda.com/resonance/internal/config"
	"karolbroda.com/resonance/internal/track"
)

var (
	ErrNotFound = errors.New("no lyrics found")
	ErrTimeout  = errors.New("lyrics server took too long to respond")
)

// Lyrics is what lrclib returns for a track and what the cache stores.
type Lyrics struct {
	TrackName    string  `json:"trackName"`
	ArtistName   string  `json:"artistName"`
	AlbumName    string  `json:"albumName"`
	Duration     float64 `json:"duration"`
	Instrumental bool    `json:"instrumental"`
	PlainLyrics  string  `json:"plainLyrics"`
	SyncedLyrics string  `json:"syncedLyrics"`
}

func (l *Lyrics) HasContent() bool {
	return l.PlainLyrics != "" || l.SyncedLyrics != "" || l.Instrumental
}

func (l *Lyrics) IsSynced() bool {
	return l.SyncedLyrics != ""
}

type Cache interface {
	Get(key string) (Lyrics, error)
	Set(key string, value Lyrics) error
}

type Client struct {
	baseURL string
	http    *http.Client
	cache   Cache
	log     *slog.Logger
	// pause between lookup attempts so lrclib is not hammered
	backoff time.Duration
}

func NewClient(baseURL string, cache Cache, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   2 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 5,
		IdleConnTimeout:     60 * time.Second,
		TLSHandshakeTimeout: 2 * time.Second,
	}
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(config.HTTPTimeoutSeconds) * time.Second,
		},
		cache:   cache,
		log:     logger.With("component", "lyrics"),
		backoff: 100 * time.Millisecond,
	}
}

// CacheKey identifies a track's lyrics independent of letter case.
func CacheKey(artist, title string) string {
	return strings.ToLower(artist) + "|" + strings.ToLower(title)
}

type strategy struct {
	artist   string
	title    string
	album    string
	duration int64
}

func (s strategy) key() string {
	return fmt.Sprintf("%s|%s|%s|%d", s.artist, s.title, s.album, s.duration)
}

// strategies lists lookups from most to least specific, without duplicates.
func strategies(info track.Info) []strategy {
	artist := normalizeString(info.Artist)
	title := normalizeString(info.Title)

	all := []strategy{
		{artist, title, info.Album, info.DurationSecs},
		{artist, title, "", info.DurationSecs},
		{artist, title, "", 0},
		{stripVersionInfo(artist), stripVersionInfo(title), "", 0},
		{artist, CleanTitle(title), "", 0},
		{strings.ToUpper(artist), strings.ToUpper(title), "", 0},
		{strings.ToLower(artist), strings.ToLower(title), "", 0},
		{toTitleCase(artist), toTitleCase(title), "", 0},
		{info.Artist, info.Title, "", 0},
	}

	seen := make(map[string]bool)
	var unique []strategy
	for _, s := range all {
		if s.artist == "" || s.title == "" || seen[s.key()] {
			continue
		}
		seen[s.key()] = true
		unique = append(unique, s)
	}
	return unique
}

// Fetch looks up lyrics for info, trying exact lookups first and a title
// search last. Tracks with an unknown artist go straight to the search.
func (c *Client) Fetch(ctx context.Context, info track.Info) (*Lyrics, error) {
	if info.Title == "" {
		return nil, errors.New("track title is empty")
	}
	if c.baseURL == "" {
		return nil, errors.New("lrclib base url is empty")
	}

	key := CacheKey(info.Artist, info.Title)
	if c.cache != nil {
		if cached, err := c.cache.Get(key); err == nil {
			return &cached, nil
		}
	}

	found, err := c.lookup(ctx, info)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.Set(key, *found); err != nil {
			c.log.Warn("failed to cache lyrics", "track", info.ID, "error", err)
		}
	}
	return found, nil
}

func (c *Client) lookup(ctx context.Context, info track.Info) (*Lyrics, error) {
	parsedURL, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid lrclib url %q: %w", c.baseURL, err)
	}

	var lastErr error
	attempt := 0
	wait := func() error {
		attempt++
		if attempt == 1 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.backoff):
			return nil
		}
	}

	if info.HasLyricsKey() {
		for _, s := range strategies(info) {
			if err := wait(); err != nil {
				return nil, err
			}

			query := url.Values{}
			query.Set("artist_name", s.artist)
			query.Set("track_name", s.title)
			if s.album != "" {
				query.Set("album_name", s.album)
			}
			if s.duration > 0 {
				query.Set("duration", fmt.Sprintf("%d", s.duration))
			}
			parsedURL.RawQuery = query.Encode()

			var payload Lyrics
			err := c.getJSON(ctx, parsedURL.String(), &payload)
			if err == nil && payload.HasContent() {
				return &payload, nil
			}
			if err == nil {
				err = errors.New("no lyrics in response")
			}
			lastErr = err
			if isTimeoutError(err) {
				return nil, ErrTimeout
			}
		}
	}

	if err := wait(); err != nil {
		return nil, err
	}
	found, err := c.search(ctx, parsedURL, info.Title)
	if err == nil {
		return found, nil
	}
	if isTimeoutError(err) {
		return nil, ErrTimeout
	}
	if lastErr == nil {
		lastErr = err
	}
	return nil, fmt.Errorf("%w for %s: %w", ErrNotFound, info.Display(), lastErr)
}

// search queries lrclib's free text endpoint with a cleaned title and picks
// the first synced result, or the first result with any lyrics.
func (c *Client) search(ctx context.Context, getURL *url.URL, title string) (*Lyrics, error) {
	cleaned := CleanTitle(title)
	if cleaned == "" {
		return nil, errors.New("nothing to search for")
	}

	searchURL := *getURL
	searchURL.Path = strings.TrimSuffix(searchURL.Path, "/get") + "/search"
	searchURL.RawQuery = url.Values{"q": {cleaned}}.Encode()

	var results []Lyrics
	if err := c.getJSON(ctx, searchURL.String(), &results); err != nil {
		return nil, err
	}

	for i := range results {
		if results[i].IsSynced() {
			return &results[i], nil
		}
	}
	if len(results) > 0 && results[0].PlainLyrics != "" {
		return &results[0], nil
	}
	return nil, errors.New("no lyrics in search results")
}

func (c *Client) getJSON(parentCtx context.Context, requestURL string, out any) error {
	timeout := time.Duration(config.HTTPTimeoutSeconds) * time.Second
	ctx, cancel := context.WithTimeout(parentCtx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build http request: %w", err)
	}
	req.Header.Set("User-Agent", "resonance/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("status 404: lyrics not found")
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("lrclib returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode lrclib json: %w", err)
	}
	return nil
}

func isTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// normalizeString trims and collapses whitespace.
func normalizeString(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var (
	bracketed = regexp.MustCompile(`\s*[(\[][^)\]]*[)\]]`)

	noiseInBrackets = regexp.MustCompile(`(?i)\s*[(\[][^)\]]*(official|audio|video|lyric|music|mv|hd|4k|remaster|remix|version|feat\.?|ft\.?)[^)\]]*[)\]]`)
	emptyBrackets   = regexp.MustCompile(`\s*[(\[][)\]]`)
	noiseSuffix     = regexp.MustCompile(`(?i)\s*[-–—|]\s*(official|audio|video|lyric|music|mv|hd|4k|remaster).*$`)
)

// stripVersionInfo removes everything in parentheses and brackets.
func stripVersionInfo(s string) string {
	return normalizeString(bracketed.ReplaceAllString(s, " "))
}

// CleanTitle drops the upload noise downloaded titles carry, like
// "(Official Video)" or "- Lyrics".
func CleanTitle(title string) string {
	cleaned := noiseInBrackets.ReplaceAllString(title, "")
	cleaned = emptyBrackets.ReplaceAllString(cleaned, "")
	cleaned = noiseSuffix.ReplaceAllString(cleaned, "")
	return normalizeString(cleaned)
}

// toTitleCase capitalizes the first letter of each word.
func toTitleCase(s string) string {
	words := strings.Fields(s)
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + strings.ToLower(word[1:])
	}
	return strings.Join(words, " ")
}
