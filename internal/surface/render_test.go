package surface

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/merov/graft/internal/app"
	"github.com/merov/graft/internal/player"
	"github.com/merov/graft/internal/scan"
)

// fakeSurfacePage records scripts and simulates the overlay-exists check.
type fakeSurfacePage struct {
	mu      sync.Mutex
	scripts []string
	built   bool
}

func (f *fakeSurfacePage) Eval(_ context.Context, js string, out any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts = append(f.scripts, js)
	if b, ok := out.(*bool); ok {
		*b = !f.built
		f.built = true
	}
	return nil
}

func (f *fakeSurfacePage) Exec(ctx context.Context, js string) error {
	return f.Eval(ctx, js, nil)
}

func (f *fakeSurfacePage) count(substr string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.scripts {
		if strings.Contains(s, substr) {
			n++
		}
	}
	return n
}

func (f *fakeSurfacePage) last(substr string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.scripts) - 1; i >= 0; i-- {
		if strings.Contains(f.scripts[i], substr) {
			return f.scripts[i]
		}
	}
	return ""
}

// fakePlayback records controller operations without a page behind them.
type fakePlayback struct {
	model    player.Model
	watched  []string
	rate     float64
	volume   float64
	muted    bool
	toggles  int
	seeks    []float64
	selected []string
	nodes    []string
}

func (f *fakePlayback) Model() player.Model                             { return f.model }
func (f *fakePlayback) Progress(context.Context) (float64, float64)     { return 30, 60 }
func (f *fakePlayback) TogglePlay(context.Context)                      { f.toggles++ }
func (f *fakePlayback) SeekToFraction(_ context.Context, frac float64)  { f.seeks = append(f.seeks, frac) }
func (f *fakePlayback) SeekRelative(_ context.Context, delta float64)   {}
func (f *fakePlayback) SetPlaybackRate(_ context.Context, rate float64) { f.rate = rate }
func (f *fakePlayback) ToggleSubtitles(context.Context)                 {}
func (f *fakePlayback) WatchedLabels() []string                         { return f.watched }

func (f *fakePlayback) SetVolume(_ context.Context, volume float64, muted bool) {
	f.volume, f.muted = volume, muted
}

func (f *fakePlayback) SelectEpisode(_ context.Context, nodeID, label string, _ player.Resolver) error {
	f.selected = append(f.selected, label)
	f.nodes = append(f.nodes, nodeID)
	return nil
}

func (f *fakePlayback) SelectOption(_ context.Context, nodeID, label string, _ player.Resolver) error {
	f.selected = append(f.selected, label)
	f.nodes = append(f.nodes, nodeID)
	return nil
}

func testSurfaceConfig() app.Surface {
	return app.Surface{
		HideDelay:          3 * time.Second,
		ScrollRampDuration: 2 * time.Second,
		ScrollMaxFactor:    6,
		ScrollTapDistance:  240,
	}
}

func newTestRenderer() (*Renderer, *fakeSurfacePage, *fakePlayback) {
	page := &fakeSurfacePage{}
	ctrl := &fakePlayback{}
	return NewRenderer(testSurfaceConfig(), page, ctrl), page, ctrl
}

func TestBuildIsIdempotent(t *testing.T) {
	r, page, _ := newTestRenderer()
	ctx := context.Background()

	if err := r.Build(ctx, "g1"); err != nil {
		t.Fatal(err)
	}
	if err := r.Build(ctx, "g1"); err != nil {
		t.Fatal(err)
	}

	// The second build found the existing overlay and stopped: exactly one
	// carousel render and one state application. The needles match the
	// invocation scripts, not the overlay source that defines the hooks.
	if got := page.count("__graftSetCarousel && "); got != 1 {
		t.Fatalf("want 1 carousel render, got %d", got)
	}
	if got := page.count("__graftApply && "); got != 1 {
		t.Fatalf("want 1 state application, got %d", got)
	}
}

func TestCarouselGraysWatchedEpisodes(t *testing.T) {
	r, page, ctrl := newTestRenderer()
	ctrl.watched = []string{"Episode 1"}

	r.UpdateScan(context.Background(), &scan.Result{
		Series: scan.SeriesResult{
			Episodes: []scan.Option{
				{Label: "Episode 1", NodeID: "e1"},
				{Label: "Episode 2", NodeID: "e2", Active: true},
			},
		},
	})

	script := page.last("__graftSetCarousel")
	if !strings.Contains(script, `graft-card graft-watched\" data-episode=\"Episode 1`) {
		t.Fatalf("watched episode not grayed: %s", script)
	}
	if !strings.Contains(script, `graft-card graft-active\" data-episode=\"Episode 2`) {
		t.Fatalf("active episode not outlined: %s", script)
	}
}

func TestNextAdvancesToNeighbor(t *testing.T) {
	r, _, ctrl := newTestRenderer()
	ctx := context.Background()

	r.UpdateScan(ctx, &scan.Result{
		Series: scan.SeriesResult{
			Episodes: []scan.Option{
				{Label: "Episode 1", NodeID: "e1", Active: true},
				{Label: "Episode 2", NodeID: "e2"},
			},
		},
	})

	r.HandleUIEvent(ctx, UIEvent{Action: "next"})
	if len(ctrl.selected) != 1 || ctrl.selected[0] != "Episode 2" {
		t.Fatalf("want Episode 2 selected, got %v", ctrl.selected)
	}

	// No previous episode exists; prev must do nothing.
	r.HandleUIEvent(ctx, UIEvent{Action: "prev"})
	if len(ctrl.selected) != 1 {
		t.Fatalf("prev selected something: %v", ctrl.selected)
	}
}

func TestMuteTogglesFromCurrentModel(t *testing.T) {
	r, _, ctrl := newTestRenderer()
	ctrl.model = player.Model{Handle: player.MediaHandle{Volume: 0.4, Muted: false}}

	r.HandleUIEvent(context.Background(), UIEvent{Action: "mute"})
	if ctrl.volume != 0.4 || !ctrl.muted {
		t.Fatalf("want 0.4/muted, got %g/%t", ctrl.volume, ctrl.muted)
	}
}

func TestSpeedMenuItemSetsRate(t *testing.T) {
	r, _, ctrl := newTestRenderer()
	ctx := context.Background()

	r.HandleUIEvent(ctx, UIEvent{Action: "menu", Label: "speed"})
	r.HandleUIEvent(ctx, UIEvent{Action: "menuitem", Label: "1.5x"})

	if ctrl.rate != 1.5 {
		t.Fatalf("want rate 1.5, got %g", ctrl.rate)
	}
}

func TestMenuItemClosesMenu(t *testing.T) {
	r, page, _ := newTestRenderer()
	ctx := context.Background()

	r.HandleUIEvent(ctx, UIEvent{Action: "menu", Label: "speed"})
	r.HandleUIEvent(ctx, UIEvent{Action: "menuitem", Label: "2x"})

	if !strings.Contains(page.last("__graftSetMenu"), "false") {
		t.Fatal("menu not closed after selection")
	}
}

func TestVoiceoverSelectionActivatesChosenOption(t *testing.T) {
	r, _, ctrl := newTestRenderer()
	ctx := context.Background()

	// Host list with no active class of its own: the scan defaulted the
	// first option to active.
	res := &scan.Result{
		Voiceovers: []scan.Option{
			{Label: "Original", NodeID: "v1", Active: true},
			{Label: "Dubbing", NodeID: "v2"},
		},
	}
	r.UpdateScan(ctx, res)

	r.HandleUIEvent(ctx, UIEvent{Action: "menu", Label: "voiceover"})
	r.HandleUIEvent(ctx, UIEvent{Action: "menuitem", Label: "Dubbing"})

	if len(ctrl.selected) != 1 || ctrl.selected[0] != "Dubbing" || ctrl.nodes[0] != "v2" {
		t.Fatalf("want click dispatched on Dubbing/v2, got %v/%v", ctrl.selected, ctrl.nodes)
	}
	if !res.Voiceovers[1].Active {
		t.Fatal("Dubbing not marked active after selection")
	}
	if res.Voiceovers[0].Active {
		t.Fatal("Original still marked active after selection")
	}
}

func TestSeekForwardsFraction(t *testing.T) {
	r, _, ctrl := newTestRenderer()

	r.HandleUIEvent(context.Background(), UIEvent{Action: "seek", Value: 0.25})
	if len(ctrl.seeks) != 1 || ctrl.seeks[0] != 0.25 {
		t.Fatalf("seek not forwarded: %v", ctrl.seeks)
	}
}
