package surface

import (
	"strings"
	"testing"

	"github.com/merov/graft/internal/player"
	"github.com/merov/graft/internal/scan"
)

func TestMenuQualityPlaceholderWhenNothingFound(t *testing.T) {
	entries := menuEntries(MenuQuality, &scan.Result{}, player.Model{})
	if len(entries) != 1 {
		t.Fatalf("want single placeholder row, got %d", len(entries))
	}
	if !entries[0].Disabled || entries[0].Label != "Unavailable" {
		t.Fatalf("placeholder wrong: %+v", entries[0])
	}
}

func TestMenuQualityFallsBackToManifestLabels(t *testing.T) {
	m := player.Model{QualityLabels: []string{"1080p", "720p"}}
	entries := menuEntries(MenuQuality, &scan.Result{}, m)
	if len(entries) != 2 || entries[0].Label != "1080p" {
		t.Fatalf("manifest fallback wrong: %+v", entries)
	}
	if entries[0].NodeID != "" {
		t.Fatal("manifest entries must not carry host node ids")
	}
}

func TestMenuQualityPrefersHostOptions(t *testing.T) {
	res := &scan.Result{
		Qualities: []scan.Option{
			{Label: "1080p", NodeID: "g1", Active: true},
			{Label: "480p", NodeID: "g2"},
		},
	}
	m := player.Model{QualityLabels: []string{"720p"}}

	entries := menuEntries(MenuQuality, res, m)
	if len(entries) != 2 || entries[0].NodeID != "g1" {
		t.Fatalf("host options not preferred: %+v", entries)
	}
	if !entries[0].Active {
		t.Fatal("host active flag lost")
	}
}

func TestMenuSpeedMarksCurrentRate(t *testing.T) {
	m := player.Model{Handle: player.MediaHandle{Rate: 1.25}}
	entries := menuEntries(MenuSpeed, nil, m)

	var active string
	for _, e := range entries {
		if e.Active {
			active = e.Label
		}
	}
	if active != "1.25x" {
		t.Fatalf("want 1.25x active, got %q", active)
	}
}

func TestMenuSubtitlesReflectsIntent(t *testing.T) {
	entries := menuEntries(MenuSubtitles, nil, player.Model{SubtitlesEnabled: true})
	if !entries[0].Active || entries[1].Active {
		t.Fatalf("subtitle rows wrong: %+v", entries)
	}
}

func TestMenuRegeneratedFresh(t *testing.T) {
	// The same view over changed results must reflect the change: nothing
	// is cached across opens.
	first := menuEntries(MenuVoiceover, &scan.Result{
		Voiceovers: []scan.Option{{Label: "Original", NodeID: "g1"}},
	}, player.Model{})
	second := menuEntries(MenuVoiceover, &scan.Result{
		Voiceovers: []scan.Option{{Label: "Dubbing", NodeID: "g7"}},
	}, player.Model{})

	if first[0].Label != "Original" || second[0].Label != "Dubbing" {
		t.Fatalf("stale entries: %+v / %+v", first, second)
	}
}

func TestParseRate(t *testing.T) {
	if rate, ok := parseRate("1.25x"); !ok || rate != 1.25 {
		t.Fatalf("want 1.25, got %g ok=%t", rate, ok)
	}
	if _, ok := parseRate("fast"); ok {
		t.Fatal("non-rate label parsed")
	}
	if _, ok := parseRate("x"); ok {
		t.Fatal("bare suffix parsed")
	}
}

func TestMenuHTMLEscapesLabels(t *testing.T) {
	html := menuHTML(MenuVoiceover, []MenuEntry{{Label: `<img src=x onerror=alert(1)>`}})
	if strings.Contains(html, "<img") {
		t.Fatal("host-controlled label not escaped")
	}
}

func TestMenuHTMLBackRowOnSubViewsOnly(t *testing.T) {
	main := menuHTML(MenuMain, menuEntries(MenuMain, nil, player.Model{}))
	if strings.Contains(main, `data-view="back"`) {
		t.Fatal("main view must not carry a back row")
	}
	sub := menuHTML(MenuSpeed, menuEntries(MenuSpeed, nil, player.Model{}))
	if !strings.Contains(sub, `data-view="back"`) {
		t.Fatal("sub view missing back row")
	}
}
