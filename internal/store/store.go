package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	_ "modernc.org/sqlite"

	"karolbroda.com/resonance/internal/track"
)

const dbFileName = "resonance.db"

const (
	keyNormalization = "normalization_enabled"
	keyVolume        = "volume"
	keySpeed         = "speed"
)

// Preferences are the user toggles that survive a restart. The queue and its
// loop mode are deliberately not among them.
type Preferences struct {
	Normalization bool
	Volume        float64
	Speed         float64
}

func DefaultPreferences() Preferences {
	return Preferences{
		Normalization: false,
		Volume:        0.7,
		Speed:         1,
	}
}

// DB wraps the SQLite file holding preferences and track metadata.
type DB struct {
	db   *sql.DB
	path string
	mu   sync.RWMutex
}

// Open opens or creates the database in dir.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	dbPath := filepath.Join(dir, dbFileName)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS preferences (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create preferences table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS tracks (
			id            TEXT PRIMARY KEY,
			title         TEXT NOT NULL,
			artist        TEXT NOT NULL,
			album         TEXT DEFAULT '',
			duration_secs INTEGER DEFAULT 0,
			thumbnail     TEXT DEFAULT '',
			sync_offset   REAL DEFAULT 0,
			updated_at    DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tracks table: %w", err)
	}

	return &DB{db: db, path: dbPath}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) Path() string {
	return d.path
}

func (d *DB) setPreference(key, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.db.Exec(`
		INSERT INTO preferences (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("save preference %s: %w", key, err)
	}
	return nil
}

// Preferences returns the saved preferences, filling gaps with defaults.
func (d *DB) Preferences() (Preferences, error) {
	prefs := DefaultPreferences()

	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, err := d.db.Query(`SELECT key, value FROM preferences`)
	if err != nil {
		return prefs, fmt.Errorf("load preferences: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return prefs, fmt.Errorf("load preferences: %w", err)
		}
		switch key {
		case keyNormalization:
			if b, err := strconv.ParseBool(value); err == nil {
				prefs.Normalization = b
			}
		case keyVolume:
			if f, err := strconv.ParseFloat(value, 64); err == nil {
				prefs.Volume = f
			}
		case keySpeed:
			if f, err := strconv.ParseFloat(value, 64); err == nil {
				prefs.Speed = f
			}
		}
	}
	return prefs, rows.Err()
}

func (d *DB) SetNormalization(enabled bool) error {
	return d.setPreference(keyNormalization, strconv.FormatBool(enabled))
}

func (d *DB) SetVolume(level float64) error {
	return d.setPreference(keyVolume, strconv.FormatFloat(level, 'f', -1, 64))
}

func (d *DB) SetSpeed(ratio float64) error {
	return d.setPreference(keySpeed, strconv.FormatFloat(ratio, 'f', -1, 64))
}

// UpsertTrack stores metadata for info.ID, replacing anything known before.
func (d *DB) UpsertTrack(info track.Info) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.db.Exec(`
		INSERT INTO tracks (id, title, artist, album, duration_secs, thumbnail, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			title         = excluded.title,
			artist        = excluded.artist,
			album         = excluded.album,
			duration_secs = CASE WHEN excluded.duration_secs > 0 THEN excluded.duration_secs ELSE tracks.duration_secs END,
			thumbnail     = excluded.thumbnail,
			updated_at    = CURRENT_TIMESTAMP`,
		info.ID, info.Title, info.Artist, info.Album, info.DurationSecs, info.Thumbnail,
	)
	if err != nil {
		return fmt.Errorf("save track %s: %w", info.ID, err)
	}
	return nil
}

// Track returns stored metadata, or false when the track was never saved.
func (d *DB) Track(id string) (track.Info, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var info track.Info
	err := d.db.QueryRow(`
		SELECT id, title, artist, album, duration_secs, thumbnail
		FROM tracks WHERE id = ?`, id).
		Scan(&info.ID, &info.Title, &info.Artist, &info.Album, &info.DurationSecs, &info.Thumbnail)
	if err != nil {
		return track.Info{}, false
	}
	return info, true
}

func (d *DB) DeleteTrack(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.db.Exec(`DELETE FROM tracks WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete track %s: %w", id, err)
	}
	return nil
}

func (d *DB) Tracks() ([]track.Info, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, err := d.db.Query(`
		SELECT id, title, artist, album, duration_secs, thumbnail
		FROM tracks ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list tracks: %w", err)
	}
	defer rows.Close()

	var out []track.Info
	for rows.Next() {
		var info track.Info
		if err := rows.Scan(&info.ID, &info.Title, &info.Artist, &info.Album, &info.DurationSecs, &info.Thumbnail); err != nil {
			return nil, fmt.Errorf("list tracks: %w", err)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// SetSyncOffset stores the lyrics offset in seconds for a track. The track
// row is created with default metadata if it does not exist yet.
func (d *DB) SetSyncOffset(id string, seconds float64) error {
	defaults := track.FromFilename(id)

	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.db.Exec(`
		INSERT INTO tracks (id, title, artist, sync_offset) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET sync_offset = excluded.sync_offset`,
		id, defaults.Title, defaults.Artist, seconds,
	)
	if err != nil {
		return fmt.Errorf("save sync offset for %s: %w", id, err)
	}
	return nil
}

func (d *DB) SyncOffset(id string) float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var offset float64
	err := d.db.QueryRow(`SELECT sync_offset FROM tracks WHERE id = ?`, id).Scan(&offset)
	if err != nil {
		return 0
	}
	return offset
}
