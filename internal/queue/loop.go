package queue

import (
	"fmt"
	"strings"
)

// LoopMode is the policy applied when the current track finishes on its own.
type LoopMode int

const (
	LoopOff LoopMode = iota
	// LoopRepeatAll replays the current track until the mode changes.
	LoopRepeatAll
	// LoopRepeatOne replays the current track once, then falls back to LoopOff.
	LoopRepeatOne
)

func (m LoopMode) String() string {
	switch m {
	case LoopOff:
		return "off"
	case LoopRepeatAll:
		return "repeat-all"
	case LoopRepeatOne:
		return "repeat-one"
	default:
		return fmt.Sprintf("LoopMode(%d)", int(m))
	}
}

// Next returns the mode that follows m in the toggle cycle.
func (m LoopMode) Next() LoopMode {
	switch m {
	case LoopOff:
		return LoopRepeatAll
	case LoopRepeatAll:
		return LoopRepeatOne
	default:
		return LoopOff
	}
}

func ParseLoopMode(s string) (LoopMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "none", "":
		return LoopOff, nil
	case "repeat-all", "all":
		return LoopRepeatAll, nil
	case "repeat-one", "one":
		return LoopRepeatOne, nil
	default:
		return LoopOff, fmt.Errorf("unknown loop mode %q", s)
	}
}

func (m LoopMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *LoopMode) UnmarshalText(text []byte) error {
	parsed, err := ParseLoopMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
