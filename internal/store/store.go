// Package store is the persistence bridge for playback preferences. It is a
// thin key-value wrapper over a single JSON file with fixed, namespaced keys.
// Every write lands on disk immediately — the host page can terminate the
// agent's execution context at any moment, so there is no write coalescing.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"
)

// Fixed key names. Per-path entries append the page path to the prefix.
const (
	keyVolume        = "volume"
	keyMuted         = "muted"
	keySubsEnabled   = "subtitles.enabled"
	keySubsLabel     = "subtitles.label"
	keyAutoplay      = "autoplay.pending"
	keyAutoplaySince = "autoplay.since"
	prefixPosition   = "position."
	prefixWatched    = "watched."
)

// Store is a file-backed preference store. All methods are safe for
// concurrent use, though the agent itself is single-threaded.
type Store struct {
	path string

	mu   sync.Mutex
	data map[string]json.RawMessage
}

// Open loads the store from path, creating parent directories as needed.
// A missing or unreadable file yields an empty store, not an error: lost
// preferences degrade to defaults, they never block a takeover.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	s := &Store{path: path, data: make(map[string]json.RawMessage)}

	raw, err := os.ReadFile(path)
	if err != nil {
		return s, nil
	}
	if err := json.Unmarshal(raw, &s.data); err != nil {
		// Corrupt file: start fresh rather than fail.
		s.data = make(map[string]json.RawMessage)
	}
	return s, nil
}

// flush writes the full map to disk via temp file + rename. Callers hold mu.
func (s *Store) flush() error {
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling store: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("writing store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing store: %w", err)
	}
	return nil
}

func (s *Store) set(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = raw
	return s.flush()
}

func (s *Store) delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; !ok {
		return nil
	}
	delete(s.data, key)
	return s.flush()
}

// get unmarshals key into out, reporting whether a usable value was present.
// Malformed entries are treated as absent.
func (s *Store) get(key string, out any) bool {
	s.mu.Lock()
	raw, ok := s.data[key]
	s.mu.Unlock()
	if !ok {
		return false
	}
	return json.Unmarshal(raw, out) == nil
}

// Volume returns the stored volume and mute flag, with found=false when no
// volume has ever been stored.
func (s *Store) Volume() (volume float64, muted bool, found bool) {
	found = s.get(keyVolume, &volume)
	s.get(keyMuted, &muted)
	return volume, muted, found
}

// SetVolume persists the volume and mute flag.
func (s *Store) SetVolume(volume float64, muted bool) error {
	if err := s.set(keyVolume, volume); err != nil {
		return err
	}
	return s.set(keyMuted, muted)
}

// SubtitlePref returns whether subtitles were enabled and the preferred
// track label (empty when none was stored).
func (s *Store) SubtitlePref() (enabled bool, label string) {
	s.get(keySubsEnabled, &enabled)
	s.get(keySubsLabel, &label)
	return enabled, label
}

// SetSubtitlePref persists the subtitle preference.
func (s *Store) SetSubtitlePref(enabled bool, label string) error {
	if err := s.set(keySubsEnabled, enabled); err != nil {
		return err
	}
	return s.set(keySubsLabel, label)
}

// Position returns the stored playback position for a page path.
func (s *Store) Position(pagePath string) (seconds float64, found bool) {
	found = s.get(prefixPosition+pagePath, &seconds)
	return seconds, found
}

// SetPosition persists the playback position for a page path.
func (s *Store) SetPosition(pagePath string, seconds float64) error {
	return s.set(prefixPosition+pagePath, seconds)
}

// ClearPosition removes the stored position for a page path.
func (s *Store) ClearPosition(pagePath string) error {
	return s.delete(prefixPosition + pagePath)
}

// Watched returns the watched-episode labels for a page path, in the order
// they were marked.
func (s *Store) Watched(pagePath string) []string {
	var labels []string
	s.get(prefixWatched+pagePath, &labels)
	return labels
}

// MarkWatched appends an episode label to the watched list for a page path.
// Marking an already-watched label is a no-op.
func (s *Store) MarkWatched(pagePath, label string) error {
	labels := s.Watched(pagePath)
	if slices.Contains(labels, label) {
		return nil
	}
	return s.set(prefixWatched+pagePath, append(labels, label))
}

// ArmAutoplay sets the pending-autoplay flag with the current time, bridging
// the reload the host performs after an episode advance.
func (s *Store) ArmAutoplay(now time.Time) error {
	if err := s.set(keyAutoplay, true); err != nil {
		return err
	}
	return s.set(keyAutoplaySince, now.UnixMilli())
}

// PendingAutoplay reports whether autoplay is armed and since when.
func (s *Store) PendingAutoplay() (pending bool, since time.Time) {
	s.get(keyAutoplay, &pending)
	var ms int64
	if s.get(keyAutoplaySince, &ms) {
		since = time.UnixMilli(ms)
	}
	return pending, since
}

// ClearAutoplay disarms the pending-autoplay flag.
func (s *Store) ClearAutoplay() error {
	if err := s.delete(keyAutoplay); err != nil {
		return err
	}
	return s.delete(keyAutoplaySince)
}

// Clear wipes every stored entry.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string]json.RawMessage)
	return s.flush()
}

// Keys returns all stored key names, sorted.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
