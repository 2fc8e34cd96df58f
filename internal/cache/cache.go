// Package cache keeps per-account JSON snapshots of the last successful
// harvest so repeat runs inside the freshness window skip the browser
// entirely.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rookeryhq/rookery/internal/types"
)

// Snapshot is the on-disk shape of one cached harvest.
type Snapshot struct {
	Handle      string       `json:"handle"`
	WindowHours int          `json:"window_hours"`
	HarvestedAt time.Time    `json:"harvested_at"`
	Posts       []types.Post `json:"posts"`
}

// Cache reads and writes snapshots under one directory. A disabled cache
// never hits and never writes.
type Cache struct {
	dir     string
	ttl     time.Duration
	enabled bool
	logger  *zap.Logger
}

func New(dir string, ttlHours int, enabled bool, logger *zap.Logger) *Cache {
	return &Cache{
		dir:     dir,
		ttl:     time.Duration(ttlHours) * time.Hour,
		enabled: enabled,
		logger:  logger,
	}
}

// path keys the snapshot on handle AND hours window, so callers with
// different windows never see each other's truncated views.
func (c *Cache) path(handle string, windowHours int) string {
	name := fmt.Sprintf("%s.%dh.json", strings.ToLower(handle), windowHours)
	return filepath.Join(c.dir, name)
}

// Read returns the cached posts for handle when the snapshot exists and its
// mtime is within the TTL. forceRefresh bypasses the cache entirely.
func (c *Cache) Read(handle string, windowHours int, forceRefresh bool) ([]types.Post, bool) {
	if !c.enabled || forceRefresh {
		return nil, false
	}

	path := c.path(handle, windowHours)
	info, err := os.Stat(path)
	if err != nil {
		return nil, false
	}
	if time.Since(info.ModTime()) > c.ttl {
		return nil, false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		c.logger.Warn("cache snapshot unreadable", zap.String("path", path), zap.Error(err))
		return nil, false
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		c.logger.Warn("cache snapshot corrupt", zap.String("path", path), zap.Error(err))
		return nil, false
	}

	c.logger.Info("cache hit",
		zap.String("handle", handle),
		zap.Int("posts", len(snap.Posts)),
		zap.Time("harvested_at", snap.HarvestedAt))
	return snap.Posts, true
}

// Write stores the harvest result. Always called after a successful
// harvest; failures are logged, never fatal.
func (c *Cache) Write(handle string, windowHours int, posts []types.Post) error {
	if !c.enabled {
		return nil
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	snap := Snapshot{
		Handle:      handle,
		WindowHours: windowHours,
		HarvestedAt: time.Now().UTC(),
		Posts:       posts,
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := os.WriteFile(c.path(handle, windowHours), data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}
