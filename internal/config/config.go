package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultMprisService = "org.mpris.MediaPlayer2.resonance"
	DefaultLrclibGetURL = "https://lrclib.net/api/get"
	DefaultServeListen  = "127.0.0.1:7878"
	DefaultSampleRate   = 44100
	DefaultLogLevel     = "info"
	HTTPTimeoutSeconds  = 10
	PollInterval        = 100 * time.Millisecond

	appDirName = "resonance"
)

type Config struct {
	LibraryDir string
	DataDir    string
	Listen     string
	LrclibURL  string
	LogFile    string
	LogLevel   string
	SampleRate int
	Mpris      bool
	NoAudio    bool
	SyncOffset float64
	HideHeader bool
	// KittyGraphics draws artwork with the kitty graphics protocol instead
	// of half blocks. opt-in, since most terminals ignore it.
	KittyGraphics bool
}

func Load() *Config {
	sampleRate, err := strconv.Atoi(getEnvOrDefault("RESONANCE_SAMPLE_RATE", strconv.Itoa(DefaultSampleRate)))
	if err != nil || sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}

	syncOffset, err := strconv.ParseFloat(getEnvOrDefault("SYNC_OFFSET", "0"), 64)
	if err != nil {
		syncOffset = 0
	}

	return &Config{
		LibraryDir: getEnvOrDefault("RESONANCE_LIBRARY", defaultLibraryDir()),
		DataDir:    getEnvOrDefault("RESONANCE_DATA_DIR", xdgDir("XDG_DATA_HOME", ".local/share")),
		Listen:     getEnvOrDefault("RESONANCE_LISTEN", ""),
		LrclibURL:  getEnvOrDefault("LRCLIB_GET_URL", DefaultLrclibGetURL),
		LogFile:    getEnvOrDefault("RESONANCE_LOG_FILE", filepath.Join(xdgDir("XDG_STATE_HOME", ".local/state"), "resonance.log")),
		LogLevel:   getEnvOrDefault("RESONANCE_LOG_LEVEL", DefaultLogLevel),
		SampleRate: sampleRate,
		Mpris:      parseBool(getEnvOrDefault("RESONANCE_MPRIS", "true")),
		NoAudio:    parseBool(getEnvOrDefault("RESONANCE_NO_AUDIO", "false")),
		SyncOffset: syncOffset,
		HideHeader: parseBool(getEnvOrDefault("HIDE_HEADER", "false")),

		KittyGraphics: parseBool(getEnvOrDefault("RESONANCE_KITTY_GRAPHICS", "false")),
	}
}

func getEnvOrDefault(key string, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "1" || s == "true" || s == "yes"
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

func defaultLibraryDir() string {
	return filepath.Join(homeDir(), "Downloads", "Resonance")
}

// xdgDir resolves an XDG base directory for this app, falling back to the
// conventional location under the home directory.
func xdgDir(env, fallback string) string {
	if base := os.Getenv(env); base != "" {
		return filepath.Join(base, appDirName)
	}
	return filepath.Join(homeDir(), fallback, appDirName)
}
