package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"RESONANCE_LIBRARY", "RESONANCE_DATA_DIR", "RESONANCE_LISTEN", "LRCLIB_GET_URL",
		"RESONANCE_LOG_FILE", "RESONANCE_LOG_LEVEL", "RESONANCE_SAMPLE_RATE",
		"RESONANCE_MPRIS", "RESONANCE_NO_AUDIO", "SYNC_OFFSET", "HIDE_HEADER",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("HOME", "/home/listener")
	t.Setenv("XDG_DATA_HOME", "")
	t.Setenv("XDG_STATE_HOME", "/state")

	cfg := Load()

	assert.Equal(t, filepath.Join("/home/listener", "Downloads", "Resonance"), cfg.LibraryDir)
	assert.Equal(t, "/home/listener/.local/share/resonance", cfg.DataDir)
	assert.Equal(t, "/state/resonance/resonance.log", cfg.LogFile)
	assert.Empty(t, cfg.Listen)
	assert.Equal(t, DefaultLrclibGetURL, cfg.LrclibURL)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, DefaultSampleRate, cfg.SampleRate)
	assert.True(t, cfg.Mpris)
	assert.False(t, cfg.NoAudio)
	assert.Zero(t, cfg.SyncOffset)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("RESONANCE_LIBRARY", "/music")
	t.Setenv("RESONANCE_LISTEN", ":9000")
	t.Setenv("RESONANCE_SAMPLE_RATE", "48000")
	t.Setenv("RESONANCE_MPRIS", "no")
	t.Setenv("RESONANCE_NO_AUDIO", "YES")
	t.Setenv("SYNC_OFFSET", "-0.5")

	cfg := Load()

	assert.Equal(t, "/music", cfg.LibraryDir)
	assert.Equal(t, ":9000", cfg.Listen)
	assert.Equal(t, 48000, cfg.SampleRate)
	assert.False(t, cfg.Mpris)
	assert.True(t, cfg.NoAudio)
	assert.Equal(t, -0.5, cfg.SyncOffset)
}

func TestLoadIgnoresBadNumbers(t *testing.T) {
	t.Setenv("RESONANCE_SAMPLE_RATE", "fast")
	t.Setenv("SYNC_OFFSET", "soon")

	cfg := Load()

	assert.Equal(t, DefaultSampleRate, cfg.SampleRate)
	assert.Zero(t, cfg.SyncOffset)
}

func TestParseBool(t *testing.T) {
	for _, s := range []string{"1", "true", "yes", " TRUE "} {
		assert.True(t, parseBool(s), s)
	}
	for _, s := range []string{"0", "false", "no", "", "on"} {
		assert.False(t, parseBool(s), s)
	}
}
