package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "prefs.json"))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestVolumeRoundTrip(t *testing.T) {
	s := openTemp(t)

	if _, _, found := s.Volume(); found {
		t.Fatal("empty store reported a stored volume")
	}

	if err := s.SetVolume(0.35, true); err != nil {
		t.Fatal(err)
	}

	// Reopen from disk: writes must be immediate, not buffered.
	reopened, err := Open(s.path)
	if err != nil {
		t.Fatal(err)
	}
	volume, muted, found := reopened.Volume()
	if !found {
		t.Fatal("volume not found after reopen")
	}
	if volume != 0.35 || !muted {
		t.Fatalf("want 0.35/muted, got %g/%t", volume, muted)
	}
}

func TestCorruptFileStartsFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("corrupt file must not fail open: %v", err)
	}
	if keys := s.Keys(); len(keys) != 0 {
		t.Fatalf("want empty store, got keys %v", keys)
	}
	if err := s.SetVolume(0.5, false); err != nil {
		t.Fatalf("store unusable after corrupt open: %v", err)
	}
}

func TestMissingFileYieldsEmptyStore(t *testing.T) {
	s := openTemp(t)
	if keys := s.Keys(); len(keys) != 0 {
		t.Fatalf("want no keys, got %v", keys)
	}
}

func TestPositionPerPath(t *testing.T) {
	s := openTemp(t)

	if err := s.SetPosition("/watch/ep1", 300); err != nil {
		t.Fatal(err)
	}
	if err := s.SetPosition("/watch/ep2", 42); err != nil {
		t.Fatal(err)
	}

	pos, found := s.Position("/watch/ep1")
	if !found || pos != 300 {
		t.Fatalf("want 300, got %g found=%t", pos, found)
	}

	if err := s.ClearPosition("/watch/ep1"); err != nil {
		t.Fatal(err)
	}
	if _, found := s.Position("/watch/ep1"); found {
		t.Fatal("position survived clear")
	}
	if _, found := s.Position("/watch/ep2"); !found {
		t.Fatal("clearing one path removed another")
	}
}

func TestMarkWatchedDeduplicates(t *testing.T) {
	s := openTemp(t)

	for _, label := range []string{"Episode 1", "Episode 2", "Episode 1"} {
		if err := s.MarkWatched("/watch/show", label); err != nil {
			t.Fatal(err)
		}
	}

	got := s.Watched("/watch/show")
	if len(got) != 2 || got[0] != "Episode 1" || got[1] != "Episode 2" {
		t.Fatalf("want [Episode 1 Episode 2], got %v", got)
	}
}

func TestAutoplayArmAndClear(t *testing.T) {
	s := openTemp(t)

	if pending, _ := s.PendingAutoplay(); pending {
		t.Fatal("autoplay pending on empty store")
	}

	armed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := s.ArmAutoplay(armed); err != nil {
		t.Fatal(err)
	}

	pending, since := s.PendingAutoplay()
	if !pending {
		t.Fatal("autoplay not pending after arm")
	}
	if since.UnixMilli() != armed.UnixMilli() {
		t.Fatalf("want since %v, got %v", armed, since)
	}

	if err := s.ClearAutoplay(); err != nil {
		t.Fatal(err)
	}
	if pending, _ := s.PendingAutoplay(); pending {
		t.Fatal("autoplay still pending after clear")
	}
}

func TestSubtitlePrefRoundTrip(t *testing.T) {
	s := openTemp(t)

	if err := s.SetSubtitlePref(true, "Русские"); err != nil {
		t.Fatal(err)
	}
	enabled, label := s.SubtitlePref()
	if !enabled || label != "Русские" {
		t.Fatalf("want enabled/Русские, got %t/%q", enabled, label)
	}
}

func TestClearWipesEverything(t *testing.T) {
	s := openTemp(t)

	if err := s.SetVolume(0.8, false); err != nil {
		t.Fatal(err)
	}
	if err := s.SetPosition("/watch/x", 10); err != nil {
		t.Fatal(err)
	}
	if err := s.Clear(); err != nil {
		t.Fatal(err)
	}
	if keys := s.Keys(); len(keys) != 0 {
		t.Fatalf("keys survived clear: %v", keys)
	}
}
