package cache

import (
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	cacheVersion = 2
	cacheDirName = "resonance"
	fileExt      = ".bin"

	NamespaceLyrics   = "lyrics"
	NamespaceLoudness = "loudness"

	// LyricsTTL keeps fetched lyrics for a month. Loudness never expires.
	LyricsTTL = 30 * 24 * time.Hour
)

var (
	ErrCacheMiss    = errors.New("cache miss")
	ErrCacheExpired = errors.New("cache expired")
	ErrCacheCorrupt = errors.New("cache corrupt")
	ErrInvalidKey   = errors.New("invalid cache key")
)

// Record is one persisted value with its bookkeeping.
type Record[T any] struct {
	Version   uint8
	Key       string
	Value     T
	CreatedAt int64
	// ExpiresAt is a unix time, zero means the record never expires.
	ExpiresAt int64
}

func (r *Record[T]) expired(now int64) bool {
	return r.ExpiresAt != 0 && r.ExpiresAt <= now
}

// DiskCache is a gob file per key under one namespace directory, fronted by
// an in-memory map. An empty base path keeps everything in memory.
type DiskCache[T any] struct {
	basePath string
	ttl      time.Duration
	mu       sync.RWMutex
	memCache map[string]*Record[T]
}

// New opens the namespace under the user cache directory.
func New[T any](namespace string, ttl time.Duration) (*DiskCache[T], error) {
	cacheDir, err := Dir()
	if err != nil {
		return nil, err
	}
	return NewAt[T](filepath.Join(cacheDir, namespace), ttl)
}

func NewAt[T any](dir string, ttl time.Duration) (*DiskCache[T], error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &DiskCache[T]{
		basePath: dir,
		ttl:      ttl,
		memCache: make(map[string]*Record[T]),
	}, nil
}

// Memory returns a cache that is never written to disk.
func Memory[T any](ttl time.Duration) *DiskCache[T] {
	return &DiskCache[T]{
		ttl:      ttl,
		memCache: make(map[string]*Record[T]),
	}
}

// Dir is the root of every namespace.
func Dir() (string, error) {
	// xdg cache home takes priority
	xdgCache := os.Getenv("XDG_CACHE_HOME")
	if xdgCache != "" {
		return filepath.Join(xdgCache, cacheDirName), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	return filepath.Join(homeDir, ".cache", cacheDirName), nil
}

func (c *DiskCache[T]) Path() string {
	return c.basePath
}

func generateKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:12])
}

func (c *DiskCache[T]) getFilePath(key string) string {
	if c.basePath == "" {
		return ""
	}
	return filepath.Join(c.basePath, generateKey(key)+fileExt)
}

func (c *DiskCache[T]) Get(key string) (T, error) {
	var zero T
	if key == "" {
		return zero, ErrCacheMiss
	}
	now := time.Now().Unix()

	// check memory cache first
	c.mu.RLock()
	record, exists := c.memCache[key]
	c.mu.RUnlock()

	if exists {
		if !record.expired(now) {
			return record.Value, nil
		}
		// expired in memory, remove it
		c.mu.Lock()
		delete(c.memCache, key)
		c.mu.Unlock()
	}

	// fall back to disk cache
	if c.basePath == "" {
		return zero, ErrCacheMiss
	}

	filePath := c.getFilePath(key)
	record, err := c.readFromDisk(filePath)
	if err != nil {
		return zero, err
	}

	if record.expired(now) {
		_ = os.Remove(filePath)
		return zero, ErrCacheExpired
	}

	c.mu.Lock()
	c.memCache[key] = record
	c.mu.Unlock()

	return record.Value, nil
}

func (c *DiskCache[T]) Set(key string, value T) error {
	if key == "" {
		return ErrInvalidKey
	}

	now := time.Now()
	record := &Record[T]{
		Version:   cacheVersion,
		Key:       key,
		Value:     value,
		CreatedAt: now.Unix(),
	}
	if c.ttl > 0 {
		record.ExpiresAt = now.Add(c.ttl).Unix()
	}

	c.mu.Lock()
	c.memCache[key] = record
	c.mu.Unlock()

	if c.basePath == "" {
		return nil
	}

	return c.writeToDisk(c.getFilePath(key), record)
}

func (c *DiskCache[T]) readFromDisk(filePath string) (*Record[T], error) {
	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrCacheMiss
		}
		return nil, err
	}
	defer file.Close()

	var record Record[T]
	decoder := gob.NewDecoder(file)
	err = decoder.Decode(&record)
	if err != nil {
		return nil, ErrCacheCorrupt
	}

	// version mismatch means stale format
	if record.Version != cacheVersion {
		_ = os.Remove(filePath)
		return nil, ErrCacheCorrupt
	}

	return &record, nil
}

func (c *DiskCache[T]) writeToDisk(filePath string, record *Record[T]) error {
	// write to temp file first, then rename for atomicity
	tmpPath := filePath + ".tmp"

	file, err := os.Create(tmpPath)
	if err != nil {
		return err
	}

	encoder := gob.NewEncoder(file)
	err = encoder.Encode(record)
	if err != nil {
		file.Close()
		_ = os.Remove(tmpPath)
		return err
	}

	err = file.Sync()
	if err != nil {
		file.Close()
		_ = os.Remove(tmpPath)
		return err
	}

	err = file.Close()
	if err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	return os.Rename(tmpPath, filePath)
}

func (c *DiskCache[T]) Clear() error {
	c.mu.Lock()
	c.memCache = make(map[string]*Record[T])
	c.mu.Unlock()

	if c.basePath == "" {
		return nil
	}

	entries, err := os.ReadDir(c.basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), fileExt) {
			_ = os.Remove(filepath.Join(c.basePath, entry.Name()))
		}
	}

	return nil
}

// Prune removes expired and unreadable files and returns how many went.
func (c *DiskCache[T]) Prune() (int, error) {
	if c.basePath == "" {
		return 0, nil
	}

	entries, err := os.ReadDir(c.basePath)
	if err != nil {
		return 0, err
	}

	pruned := 0
	now := time.Now().Unix()

	for _, dirEntry := range entries {
		if dirEntry.IsDir() || !strings.HasSuffix(dirEntry.Name(), fileExt) {
			continue
		}

		filePath := filepath.Join(c.basePath, dirEntry.Name())
		record, err := c.readFromDisk(filePath)
		if err != nil {
			_ = os.Remove(filePath)
			pruned++
			continue
		}

		if record.expired(now) {
			_ = os.Remove(filePath)
			pruned++
		}
	}

	return pruned, nil
}

func (c *DiskCache[T]) Stats() (count int, sizeBytes int64, err error) {
	if c.basePath == "" {
		c.mu.RLock()
		defer c.mu.RUnlock()
		return len(c.memCache), 0, nil
	}

	entries, err := os.ReadDir(c.basePath)
	if err != nil {
		return 0, 0, err
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileExt) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		count++
		sizeBytes += info.Size()
	}

	return count, sizeBytes, nil
}

func (c *DiskCache[T]) ListAll() ([]*Record[T], error) {
	if c.basePath == "" {
		c.mu.RLock()
		defer c.mu.RUnlock()
		result := make([]*Record[T], 0, len(c.memCache))
		for _, record := range c.memCache {
			result = append(result, record)
		}
		return result, nil
	}

	entries, err := os.ReadDir(c.basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var result []*Record[T]

	for _, dirEntry := range entries {
		if dirEntry.IsDir() || !strings.HasSuffix(dirEntry.Name(), fileExt) {
			continue
		}

		record, err := c.readFromDisk(filepath.Join(c.basePath, dirEntry.Name()))
		if err != nil {
			continue
		}

		result = append(result, record)
	}

	return result, nil
}

func (c *DiskCache[T]) Delete(key string) error {
	if key == "" {
		return ErrInvalidKey
	}

	c.mu.Lock()
	delete(c.memCache, key)
	c.mu.Unlock()

	if c.basePath == "" {
		return nil
	}

	err := os.Remove(c.getFilePath(key))
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	return nil
}
