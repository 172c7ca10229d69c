package lyrics

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

type TimedLine struct {
	TimeSeconds float64
	Text        string
}

// ParseSynced reads LRC text. Lines carrying several timestamps are repeated
// at each of them, and the result is sorted by time.
func ParseSynced(raw string) []TimedLine {
	if raw == "" {
		return nil
	}

	lines := strings.Split(raw, "\n")
	result := make([]TimedLine, 0, len(lines))

	for _, line := range lines {
		stamps, text := splitLrcLine(strings.TrimSpace(line))
		if len(stamps) == 0 || text == "" {
			continue
		}

		for _, stamp := range stamps {
			seconds, err := parseLrcTimeToSeconds(stamp)
			if err != nil {
				continue
			}
			result = append(result, TimedLine{TimeSeconds: seconds, Text: text})
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].TimeSeconds < result[j].TimeSeconds
	})
	return result
}

// ParsePlain splits unsynced lyrics into their non-empty lines.
func ParsePlain(raw string) []string {
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// FindCurrentLineIndex returns the last line at or before positionSeconds,
// or -1 before the first line.
func FindCurrentLineIndex(lines []TimedLine, positionSeconds float64) int {
	index := -1
	for i, line := range lines {
		if line.TimeSeconds > positionSeconds {
			break
		}
		index = i
	}
	return index
}

// LineAt is FindCurrentLineIndex with a per-song sync offset applied.
func LineAt(lines []TimedLine, positionSeconds, offsetSeconds float64) int {
	return FindCurrentLineIndex(lines, positionSeconds+offsetSeconds)
}

// splitLrcLine returns every leading [mm:ss.xx] stamp and the text after them.
// Metadata tags like [ar:...] are skipped by the time parser.
func splitLrcLine(line string) ([]string, string) {
	var stamps []string
	for strings.HasPrefix(line, "[") {
		end := strings.Index(line, "]")
		if end <= 1 {
			return nil, ""
		}
		stamps = append(stamps, line[1:end])
		line = line[end+1:]
	}
	return stamps, strings.TrimSpace(line)
}

func parseLrcTimeToSeconds(raw string) (float64, error) {
	if raw == "" {
		return 0, errors.New("empty time value")
	}

	parts := strings.Split(raw, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time format: %s", raw)
	}

	var total float64
	for _, part := range parts {
		value, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return 0, fmt.Errorf("failed to parse float %q: %w", part, err)
		}
		total = total*60 + value
	}

	if total < 0 {
		return 0, errors.New("negative time not allowed")
	}
	return total, nil
}
