package surface

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"html"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/merov/graft/internal/app"
	"github.com/merov/graft/internal/player"
	"github.com/merov/graft/internal/scan"
)

//go:embed js/ui.js
var uiJS string

// UIBinding is the in-page function name overlay widgets report through.
const UIBinding = "__graftUI__"

// pageExec is the slice of the page session the renderer needs.
type pageExec interface {
	Eval(ctx context.Context, js string, out any) error
	Exec(ctx context.Context, js string) error
}

// playback is the slice of the player controller the renderer drives.
// Everything the surface does funnels into these operations; the renderer
// never mutates the media element itself.
type playback interface {
	Model() player.Model
	Progress(ctx context.Context) (position, duration float64)
	TogglePlay(ctx context.Context)
	SeekToFraction(ctx context.Context, fraction float64)
	SeekRelative(ctx context.Context, delta float64)
	SetVolume(ctx context.Context, volume float64, muted bool)
	SetPlaybackRate(ctx context.Context, rate float64)
	ToggleSubtitles(ctx context.Context)
	SelectEpisode(ctx context.Context, nodeID, label string, resolve player.Resolver) error
	SelectOption(ctx context.Context, nodeID, label string, resolve player.Resolver) error
	WatchedLabels() []string
}

// UIEvent is one user intent forwarded from the overlay.
type UIEvent struct {
	Action string  `json:"action"`
	Label  string  `json:"label"`
	Value  float64 `json:"value"`
	// Held is the elapsed press-and-hold time in milliseconds, reported on
	// carousel hold ticks.
	Held int64 `json:"held"`
}

// Renderer owns the injected overlay. Widgets are fully re-derived and
// re-applied on every refresh; the renderer keeps no widget state of its
// own beyond which menu view is open.
type Renderer struct {
	cfg  app.Surface
	page pageExec
	ctrl playback
	now  func() time.Time

	mu      sync.Mutex
	vis     VisibilityMachine
	res     *scan.Result
	menu    MenuView
	resolve player.Resolver
}

// NewRenderer creates a Renderer for an already-open page session.
func NewRenderer(cfg app.Surface, page pageExec, ctrl playback) *Renderer {
	return &Renderer{
		cfg:  cfg,
		page: page,
		ctrl: ctrl,
		now:  time.Now,
	}
}

// SetResolver installs the label re-resolution hook used when a clicked
// host option turns out stale.
func (r *Renderer) SetResolver(fn player.Resolver) {
	r.mu.Lock()
	r.resolve = fn
	r.mu.Unlock()
}

// Build injects the overlay around the owned media element. Idempotent: a
// second call finds the existing container and changes nothing, so the
// overlay count stays at one across rescans.
func (r *Renderer) Build(ctx context.Context, mediaNodeID string) error {
	js := strings.ReplaceAll(uiJS, "__MEDIA_NODE__", mediaNodeID)

	var created bool
	if err := r.page.Eval(ctx, js, &created); err != nil {
		return fmt.Errorf("building overlay: %w", err)
	}
	if !created {
		slog.DebugContext(ctx, "overlay already present, skipping build")
		return nil
	}

	r.mu.Lock()
	r.vis.OnActivity(r.now())
	r.mu.Unlock()

	slog.InfoContext(ctx, "overlay built", "media", mediaNodeID)
	r.renderCarousel(ctx)
	r.Refresh(ctx)
	return nil
}

// UpdateScan swaps in fresh extractor results and re-renders everything
// derived from them.
func (r *Renderer) UpdateScan(ctx context.Context, res *scan.Result) {
	r.mu.Lock()
	r.res = res
	menu := r.menu
	r.mu.Unlock()

	r.renderCarousel(ctx)
	// An open menu is regenerated from the new results, not left stale.
	if menu != MenuClosed {
		r.renderMenu(ctx, menu)
	}
	r.Refresh(ctx)
}

// Refresh re-derives the full widget state and applies it in one pass.
func (r *Renderer) Refresh(ctx context.Context) {
	m := r.ctrl.Model()
	position, duration := r.ctrl.Progress(ctx)

	r.mu.Lock()
	nav := r.navState()
	st := Derive(m, &r.vis, position, duration, nav)
	r.mu.Unlock()

	payload, err := json.Marshal(st)
	if err != nil {
		return
	}
	js := fmt.Sprintf(`window.__graftApply && window.__graftApply(%s);`, payload)
	if err := r.page.Exec(ctx, js); err != nil {
		slog.DebugContext(ctx, "applying widget state failed", "error", err)
	}
}

// Tick advances the visibility machine; refreshes only when the state
// actually changed.
func (r *Renderer) Tick(ctx context.Context) {
	playing := r.ctrl.Model().Playing

	r.mu.Lock()
	changed := r.vis.Tick(r.now(), playing, r.cfg.HideDelay)
	r.mu.Unlock()

	if changed {
		r.Refresh(ctx)
	}
}

// HandleUIEvent routes a user intent to the controller operation behind it.
func (r *Renderer) HandleUIEvent(ctx context.Context, ev UIEvent) {
	switch ev.Action {
	case "pointer":
		r.mu.Lock()
		r.vis.OnActivity(r.now())
		r.mu.Unlock()
		r.Refresh(ctx)

	case "toggleplay":
		r.ctrl.TogglePlay(ctx)

	case "seek":
		r.ctrl.SeekToFraction(ctx, ev.Value)

	case "seekrel":
		r.ctrl.SeekRelative(ctx, ev.Value)

	case "volume":
		r.ctrl.SetVolume(ctx, ev.Value, false)

	case "mute":
		m := r.ctrl.Model()
		r.ctrl.SetVolume(ctx, m.Handle.Volume, !m.Handle.Muted)

	case "prev":
		r.advanceEpisode(ctx, -1)

	case "next":
		r.advanceEpisode(ctx, +1)

	case "episode":
		r.selectEpisode(ctx, ev.Label)

	case "menu":
		view, ok := menuViewByName[ev.Label]
		if !ok {
			slog.DebugContext(ctx, "unknown menu view", "label", ev.Label)
			return
		}
		r.renderMenu(ctx, view)

	case "menuitem":
		r.selectMenuItem(ctx, ev.Label)

	case "scrolltap":
		r.scrollCarousel(ctx, float64(r.cfg.ScrollTapDistance)*sign(ev.Value))

	case "scrollhold":
		held := time.Duration(ev.Held) * time.Millisecond
		step := ScrollStep(holdBaseStep, held, r.cfg.ScrollRampDuration, r.cfg.ScrollMaxFactor)
		r.scrollCarousel(ctx, step*sign(ev.Value))

	default:
		slog.DebugContext(ctx, "unknown UI action", "action", ev.Action)
	}
}

// OnPause feeds the visibility machine: paused controls never auto-hide.
func (r *Renderer) OnPause(ctx context.Context) {
	r.mu.Lock()
	r.vis.OnPause()
	r.mu.Unlock()
	r.Refresh(ctx)
}

// OnPlay re-arms the inactivity timer from the resume moment.
func (r *Renderer) OnPlay(ctx context.Context) {
	r.mu.Lock()
	r.vis.OnPlay(r.now())
	r.mu.Unlock()
	r.Refresh(ctx)
}

// holdBaseStep is the per-tick scroll distance at the start of a hold, in
// pixels. Hold ticks arrive roughly every 100ms.
const holdBaseStep = 60

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

// navState derives prev/next availability from the active episode's
// position in the list. Callers hold mu.
func (r *Renderer) navState() NavState {
	if r.res == nil {
		return NavState{}
	}
	episodes := r.res.Series.Episodes
	idx := activeIndex(episodes)
	return NavState{
		PrevEnabled: idx > 0,
		NextEnabled: idx >= 0 && idx < len(episodes)-1,
	}
}

func activeIndex(opts []scan.Option) int {
	for i, o := range opts {
		if o.Active {
			return i
		}
	}
	return -1
}

// advanceEpisode selects the neighbor of the currently active episode.
func (r *Renderer) advanceEpisode(ctx context.Context, dir int) {
	r.mu.Lock()
	resolve := r.resolve
	var target *scan.Option
	if r.res != nil {
		episodes := r.res.Series.Episodes
		if idx := activeIndex(episodes); idx >= 0 {
			if next := idx + dir; next >= 0 && next < len(episodes) {
				target = &episodes[next]
			}
		}
	}
	r.mu.Unlock()

	if target == nil {
		return
	}
	if err := r.ctrl.SelectEpisode(ctx, target.NodeID, target.Label, resolve); err != nil {
		slog.WarnContext(ctx, "episode advance failed", "episode", target.Label, "error", err)
	}
}

// selectEpisode dispatches a carousel card click by label.
func (r *Renderer) selectEpisode(ctx context.Context, label string) {
	r.mu.Lock()
	resolve := r.resolve
	var target *scan.Option
	if r.res != nil {
		for i, o := range r.res.Series.Episodes {
			if o.Label == label {
				target = &r.res.Series.Episodes[i]
				break
			}
		}
	}
	r.mu.Unlock()

	if target == nil {
		slog.DebugContext(ctx, "episode not in current scan", "label", label)
		return
	}
	if err := r.ctrl.SelectEpisode(ctx, target.NodeID, target.Label, resolve); err != nil {
		slog.WarnContext(ctx, "episode select failed", "episode", label, "error", err)
		return
	}
	// The card grays out immediately; the host reload follows behind.
	r.renderCarousel(ctx)
}

// selectMenuItem dispatches a leaf row of the open menu view.
func (r *Renderer) selectMenuItem(ctx context.Context, label string) {
	r.mu.Lock()
	view := r.menu
	res := r.res
	resolve := r.resolve
	r.mu.Unlock()

	m := r.ctrl.Model()

	switch view {
	case MenuMain:
		if v, ok := menuViewByName[strings.ToLower(label)]; ok {
			r.renderMenu(ctx, v)
		}
		return

	case MenuSpeed:
		if rate, ok := parseRate(label); ok {
			r.ctrl.SetPlaybackRate(ctx, rate)
		}

	case MenuSubtitles:
		want := label == "On"
		if want != m.SubtitlesEnabled {
			r.ctrl.ToggleSubtitles(ctx)
		}

	case MenuQuality, MenuVoiceover:
		for _, e := range menuEntries(view, res, m) {
			if e.Label != label || e.Disabled {
				continue
			}
			if e.NodeID == "" {
				// Manifest-derived labels have no host element behind them.
				slog.DebugContext(ctx, "no host element for option", "label", label)
				break
			}
			if err := r.ctrl.SelectOption(ctx, e.NodeID, e.Label, resolve); err != nil {
				slog.WarnContext(ctx, "option select failed", "option", label, "error", err)
				break
			}
			// Hosts that carry no active class on their rows would snap
			// the default back on the next render; reflect the selection
			// locally until a scan reports otherwise.
			r.markSelected(view, label)
			break
		}
	}

	r.renderMenu(ctx, MenuClosed)
	r.Refresh(ctx)
}

// markSelected flips the Active flags of a view's option list to the
// chosen label, so the dispatched selection shows immediately and
// siblings drop their active mark.
func (r *Renderer) markSelected(view MenuView, label string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.res == nil {
		return
	}

	var opts []scan.Option
	switch view {
	case MenuQuality:
		opts = r.res.Qualities
	case MenuVoiceover:
		opts = r.res.Voiceovers
	}
	for i := range opts {
		opts[i].Active = opts[i].Label == label
	}
}

// renderMenu regenerates and applies a menu view. Views are built fresh on
// every open; nothing is cached across opens.
func (r *Renderer) renderMenu(ctx context.Context, view MenuView) {
	r.mu.Lock()
	r.menu = view
	res := r.res
	r.mu.Unlock()

	if view == MenuClosed {
		if err := r.page.Exec(ctx, `window.__graftSetMenu && window.__graftSetMenu('', false);`); err != nil {
			slog.DebugContext(ctx, "closing menu failed", "error", err)
		}
		return
	}

	entries := menuEntries(view, res, r.ctrl.Model())
	js := fmt.Sprintf(`window.__graftSetMenu && window.__graftSetMenu(%s, true);`,
		strconv.Quote(menuHTML(view, entries)))
	if err := r.page.Exec(ctx, js); err != nil {
		slog.DebugContext(ctx, "rendering menu failed", "error", err)
	}
}

// menuHTML renders a menu view's rows. Main-view rows navigate by view
// name; sub-views get a Back row and label-dispatched leaf rows.
func menuHTML(view MenuView, entries []MenuEntry) string {
	var b strings.Builder

	if view != MenuMain {
		b.WriteString(`<div class="graft-menu-item" data-view="back">&#8249; Back</div>`)
	}

	for _, e := range entries {
		classes := "graft-menu-item"
		if e.Active {
			classes += " graft-active"
		}
		if e.Disabled {
			classes += " graft-disabled"
		}
		label := html.EscapeString(e.Label)
		if view == MenuMain {
			fmt.Fprintf(&b, `<div class="%s" data-view="%s">%s</div>`,
				classes, strings.ToLower(e.Label), label)
			continue
		}
		fmt.Fprintf(&b, `<div class="%s" data-label="%s">%s</div>`, classes, label, label)
	}

	return b.String()
}

// renderCarousel regenerates the episode card strip, graying out watched
// labels and outlining the active one.
func (r *Renderer) renderCarousel(ctx context.Context) {
	r.mu.Lock()
	var episodes []scan.Option
	if r.res != nil {
		episodes = r.res.Series.Episodes
	}
	r.mu.Unlock()

	watched := make(map[string]bool)
	for _, l := range r.ctrl.WatchedLabels() {
		watched[l] = true
	}

	var b strings.Builder
	for _, e := range episodes {
		classes := "graft-card"
		if watched[e.Label] {
			classes += " graft-watched"
		}
		if e.Active {
			classes += " graft-active"
		}
		label := html.EscapeString(e.Label)
		fmt.Fprintf(&b, `<div class="%s" data-episode="%s">%s</div>`, classes, label, label)
	}

	js := fmt.Sprintf(`window.__graftSetCarousel && window.__graftSetCarousel(%s);`,
		strconv.Quote(b.String()))
	if err := r.page.Exec(ctx, js); err != nil {
		slog.DebugContext(ctx, "rendering carousel failed", "error", err)
	}
}

// scrollCarousel shifts the card strip by px pixels.
func (r *Renderer) scrollCarousel(ctx context.Context, px float64) {
	js := fmt.Sprintf(`window.__graftScrollCarousel && window.__graftScrollCarousel(%g);`, px)
	if err := r.page.Exec(ctx, js); err != nil {
		slog.DebugContext(ctx, "carousel scroll failed", "error", err)
	}
}
