// SPDX-License-Identifier: GPL-3.0-only

// Package cache manages the generated profile files in the per-user cache
// directory: fresh, collision-free output paths and best-effort pruning of
// superseded profiles.
package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// FilePrefix and FileExt form the generated profile naming pattern
	// vibranced_<ms-timestamp>.icc. A fresh name per apply prevents the
	// color management stack from serving a cached profile for the
	// same display.
	FilePrefix = "vibranced_"
	FileExt    = ".icc"

	// DefaultKeep is the number of most recent generated profiles
	// retained by Prune.
	DefaultKeep = 2
)

// Manager names and prunes generated profile files. It holds no state
// about the files between calls; the directory is the source of truth.
type Manager struct {
	dir  string
	keep int
	now  func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithKeep overrides the retention count.
func WithKeep(keep int) Option {
	return func(m *Manager) {
		m.keep = keep
	}
}

// WithClock sets a custom time source for testing.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a manager rooted at dir.
func NewManager(dir string, opts ...Option) *Manager {
	m := &Manager{
		dir:  dir,
		keep: DefaultKeep,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Dir returns the managed directory.
func (m *Manager) Dir() string {
	return m.dir
}

// NextPath allocates a fresh output path, creating the cache directory if
// needed. The returned token is the millisecond timestamp embedded in the
// filename; the editor reuses it in the profile description.
func (m *Manager) NextPath() (string, int64, error) {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("failed to create cache directory: %w", err)
	}

	token := m.now().UnixMilli()
	name := fmt.Sprintf("%s%d%s", FilePrefix, token, FileExt)
	return filepath.Join(m.dir, name), token, nil
}

// Prune deletes generated profiles beyond the retention count, oldest
// first by modification time. Failures are logged and skipped; the applier
// may still hold a file being removed and losing that race is fine.
func (m *Manager) Prune() {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		log.Warn().Err(err).Str("dir", m.dir).Msg("Failed to list cache directory for pruning")
		return
	}

	type candidate struct {
		path    string
		modTime time.Time
	}

	var generated []candidate
	for _, entry := range entries {
		if entry.IsDir() || !isGeneratedName(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			log.Warn().Err(err).Str("file", entry.Name()).Msg("Failed to stat generated profile")
			continue
		}
		generated = append(generated, candidate{
			path:    filepath.Join(m.dir, entry.Name()),
			modTime: info.ModTime(),
		})
	}

	if len(generated) <= m.keep {
		return
	}

	sort.Slice(generated, func(i, j int) bool {
		return generated[i].modTime.Before(generated[j].modTime)
	})

	stale := generated[:len(generated)-m.keep]
	for _, c := range stale {
		if err := os.Remove(c.path); err != nil {
			log.Warn().Err(err).Str("path", c.path).Msg("Failed to remove stale profile")
			continue
		}
		log.Debug().Str("path", c.path).Msg("Removed stale profile")
	}
}

// isGeneratedName reports whether a filename matches the generated
// profile pattern, including a numeric token.
func isGeneratedName(name string) bool {
	if !strings.HasPrefix(name, FilePrefix) || !strings.HasSuffix(name, FileExt) {
		return false
	}
	token := strings.TrimSuffix(strings.TrimPrefix(name, FilePrefix), FileExt)
	if token == "" {
		return false
	}
	for _, r := range token {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
