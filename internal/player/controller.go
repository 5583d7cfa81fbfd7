// Package player is the single owner of what is true about playback. Every
// mutation of the real media element goes through the Controller; the
// control surface only reads derived state and forwards user intents back.
// This single-writer discipline is what keeps volume enforcement and
// subtitle restoration correct despite many UI entry points.
package player

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/merov/graft/internal/app"
	"github.com/merov/graft/internal/hls"
	"github.com/merov/graft/internal/store"
)

// PageExecutor is the slice of the page session the controller drives the
// media element through.
type PageExecutor interface {
	Eval(ctx context.Context, js string, out any) error
	Exec(ctx context.Context, js string) error
	ClickNode(ctx context.Context, nodeID string) (bool, error)
	RemoveNode(ctx context.Context, nodeID string) error
	Path() string
}

// RefreshFunc asks the control surface to re-derive its widgets. The
// controller never touches the surface's DOM itself.
type RefreshFunc func()

// Controller mediates every mutation of the owned media element.
type Controller struct {
	cfg   app.Player
	page  PageExecutor
	store *store.Store
	now   func() time.Time

	mu      sync.Mutex
	handle  *MediaHandle
	playing bool
	loading bool
	failed  bool
	// subtitlesEnabled is the intent; handle.SubtitleLabel is what stuck.
	subtitlesEnabled bool
	qualityLabels    []string

	// lastVolumeWrite opens the self-caused window: a volumechange
	// observed inside it is attributed to the controller's own write.
	lastVolumeWrite time.Time

	refresh RefreshFunc

	// streamHeaders supplies the request headers the page sent for a
	// stream URL, so manifest refetches pass the CDN's referer checks.
	streamHeaders func(rawURL string) map[string]string
}

// New creates a Controller. refresh may be nil until the surface exists;
// SetRefresh installs it later.
func New(cfg app.Player, page PageExecutor, st *store.Store) *Controller {
	return &Controller{
		cfg:   cfg,
		page:  page,
		store: st,
		now:   time.Now,
	}
}

// SetRefresh installs the surface refresh hook.
func (c *Controller) SetRefresh(fn RefreshFunc) {
	c.mu.Lock()
	c.refresh = fn
	c.mu.Unlock()
}

// SetHeaderSource installs the per-URL request header lookup used when
// refetching stream manifests.
func (c *Controller) SetHeaderSource(fn func(rawURL string) map[string]string) {
	c.mu.Lock()
	c.streamHeaders = fn
	c.mu.Unlock()
}

// OwnedNode returns the node id of the owned element, or empty when none.
// Safe from any goroutine; the observer calls this when classifying batches.
func (c *Controller) OwnedNode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handle == nil {
		return ""
	}
	return c.handle.NodeID
}

// Model returns a copy of the current playback model for rendering.
func (c *Controller) Model() Model {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := Model{
		Owned:            c.handle != nil,
		Playing:          c.playing,
		Loading:          c.loading,
		Failed:           c.failed,
		SubtitlesEnabled: c.subtitlesEnabled,
		QualityLabels:    append([]string(nil), c.qualityLabels...),
	}
	if c.handle != nil {
		m.Handle = *c.handle
	}
	return m
}

// requestRefresh re-derives the surface. Callers must not hold mu.
func (c *Controller) requestRefresh() {
	c.mu.Lock()
	fn := c.refresh
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// mediaJS wraps a statement list so it runs against the owned element,
// evaluating to null when the element is gone. The element is bound to `m`.
func (c *Controller) mediaJS(body string) string {
	c.mu.Lock()
	id := ""
	if c.handle != nil {
		id = c.handle.NodeID
	}
	c.mu.Unlock()
	return fmt.Sprintf(`(() => {
		const m = document.querySelector('[data-graft-id=%q]');
		if (!m) return null;
		%s
	})()`, id, body)
}

// AdoptInitialElement takes ownership of the host's existing media element
// in place. The element is configured, never recreated: ephemeral blob
// sources are tied to the element instance and cannot be copied to a new
// one.
func (c *Controller) AdoptInitialElement(ctx context.Context, nodeID, source string) error {
	volume, muted, found := c.store.Volume()
	if !found {
		volume, muted = 1, false
	}
	subsEnabled, subsLabel := c.store.SubtitlePref()

	c.mu.Lock()
	c.handle = &MediaHandle{
		NodeID: nodeID,
		Source: source,
		Volume: volume,
		Muted:  muted,
		Rate:   1,
	}
	c.subtitlesEnabled = subsEnabled
	c.failed = false
	c.mu.Unlock()

	slog.InfoContext(ctx, "adopting media element", "node", nodeID, "src", source)

	if err := c.configureElement(ctx); err != nil {
		return fmt.Errorf("configuring element: %w", err)
	}
	c.applyIntents(ctx)
	c.bindMediaEvents(ctx)

	if subsEnabled {
		go c.restoreSubtitles(ctx, subsLabel)
	}
	go c.resumePosition(ctx)

	if pending, since := c.store.PendingAutoplay(); pending {
		go c.autoplayWhenReady(ctx, since)
	}

	c.requestRefresh()
	return nil
}

// AdoptNewSource handles a host-initiated swap: the host inserted a
// genuinely new element for an episode or segment change. The agent removes
// the host's element and the controller re-points its one persistent
// element at the new source; from the outside it looks like the same player
// continued.
func (c *Controller) AdoptNewSource(ctx context.Context, source string, autoplay bool) error {
	c.mu.Lock()
	if c.handle == nil {
		c.mu.Unlock()
		return fmt.Errorf("no owned element to adopt source into")
	}
	c.handle.Source = source
	c.handle.Readiness = NotReady
	c.loading = true
	c.failed = false
	c.mu.Unlock()

	slog.InfoContext(ctx, "adopting new source", "src", source)

	if hls.IsManifestURL(source) {
		go c.loadManifestVariants(ctx, source)
	}

	js := c.mediaJS(fmt.Sprintf(`
		m.src = %q;
		m.load();
		return true;`, source))
	if err := c.page.Exec(ctx, js); err != nil {
		return fmt.Errorf("assigning source: %w", err)
	}

	c.applyIntents(ctx)

	if enabled, label := c.store.SubtitlePref(); enabled {
		go c.restoreSubtitles(ctx, label)
	}

	pending, since := c.store.PendingAutoplay()
	if autoplay || pending {
		go c.autoplayWhenReady(ctx, since)
	}

	c.requestRefresh()
	return nil
}

// SwapElementInPlace handles the host replacing the media node itself. The
// handle re-points to the new node, intents are copied over, listeners are
// re-bound, and a pending autoplay fires against the new element.
func (c *Controller) SwapElementInPlace(ctx context.Context, newNodeID, source string) error {
	c.mu.Lock()
	if c.handle == nil {
		c.mu.Unlock()
		return c.AdoptInitialElement(ctx, newNodeID, source)
	}
	c.handle.NodeID = newNodeID
	if source != "" {
		c.handle.Source = source
	}
	c.handle.Readiness = NotReady
	c.loading = true
	c.mu.Unlock()

	slog.InfoContext(ctx, "media element swapped in place", "node", newNodeID, "src", source)

	if err := c.configureElement(ctx); err != nil {
		return fmt.Errorf("configuring swapped element: %w", err)
	}
	c.applyIntents(ctx)
	c.bindMediaEvents(ctx)

	if enabled, label := c.store.SubtitlePref(); enabled {
		go c.restoreSubtitles(ctx, label)
	}
	if pending, since := c.store.PendingAutoplay(); pending {
		go c.autoplayWhenReady(ctx, since)
	}

	c.requestRefresh()
	return nil
}

// configureElement strips native controls and sizes the owned element to
// its container without recreating it.
func (c *Controller) configureElement(ctx context.Context) error {
	return c.page.Exec(ctx, c.mediaJS(`
		m.removeAttribute('controls');
		m.setAttribute('playsinline', '');
		m.setAttribute('autoplay', '');
		m.style.width = '100%';
		m.style.height = '100%';
		m.style.objectFit = 'contain';
		return true;`))
}

// applyIntents reasserts volume, mute and rate onto the element, opening
// the self-caused window first so the resulting volumechange is not
// mistaken for a foreign one.
func (c *Controller) applyIntents(ctx context.Context) {
	c.mu.Lock()
	if c.handle == nil {
		c.mu.Unlock()
		return
	}
	volume, muted, rate := c.handle.Volume, c.handle.Muted, c.handle.Rate
	c.lastVolumeWrite = c.now()
	c.mu.Unlock()

	js := c.mediaJS(fmt.Sprintf(`
		m.volume = %g;
		m.muted = %t;
		m.playbackRate = %g;
		return true;`, volume, muted, rate))
	if err := c.page.Exec(ctx, js); err != nil {
		slog.DebugContext(ctx, "applying intents failed", "error", err)
	}
}

// SetVolume validates and applies a volume intent, persisting immediately.
func (c *Controller) SetVolume(ctx context.Context, volume float64, muted bool) {
	c.mu.Lock()
	if c.handle == nil {
		c.mu.Unlock()
		return
	}
	c.handle.Volume = clampVolume(volume, c.handle.Volume)
	c.handle.Muted = muted
	c.mu.Unlock()

	c.applyIntents(ctx)
	if err := c.store.SetVolume(volume, muted); err != nil {
		slog.DebugContext(ctx, "persisting volume failed", "error", err)
	}
	c.requestRefresh()
}

// SetPlaybackRate validates and applies a playback rate intent.
func (c *Controller) SetPlaybackRate(ctx context.Context, rate float64) {
	c.mu.Lock()
	if c.handle == nil {
		c.mu.Unlock()
		return
	}
	c.handle.Rate = clampRate(rate)
	c.mu.Unlock()

	c.applyIntents(ctx)
	c.requestRefresh()
}

// SeekToFraction seeks to a fraction of the stream's duration, clamped to
// [0,1].
func (c *Controller) SeekToFraction(ctx context.Context, fraction float64) {
	f := clampFraction(fraction)
	js := c.mediaJS(fmt.Sprintf(`
		if (isFinite(m.duration) && m.duration > 0) m.currentTime = m.duration * %g;
		return true;`, f))
	if err := c.page.Exec(ctx, js); err != nil {
		slog.DebugContext(ctx, "seek failed", "error", err)
	}
	c.requestRefresh()
}

// SeekRelative shifts the playback position by delta seconds, clamped to
// the stream bounds.
func (c *Controller) SeekRelative(ctx context.Context, delta float64) {
	js := c.mediaJS(fmt.Sprintf(`
		const d = isFinite(m.duration) ? m.duration : Infinity;
		m.currentTime = Math.min(d, Math.max(0, m.currentTime + %g));
		return true;`, delta))
	if err := c.page.Exec(ctx, js); err != nil {
		slog.DebugContext(ctx, "relative seek failed", "error", err)
	}
	c.requestRefresh()
}

// TogglePlay plays or pauses the owned element. A rejected play() promise
// (autoplay policy) is swallowed in-page; the UI simply stays paused.
func (c *Controller) TogglePlay(ctx context.Context) {
	js := c.mediaJS(`
		if (m.paused) { const p = m.play(); if (p && p.catch) p.catch(() => {}); }
		else { m.pause(); }
		return true;`)
	if err := c.page.Exec(ctx, js); err != nil {
		slog.DebugContext(ctx, "toggle play failed", "error", err)
	}
}

// ToggleSubtitles flips the subtitle intent, restoring or disabling tracks,
// and persists the preference.
func (c *Controller) ToggleSubtitles(ctx context.Context) {
	c.mu.Lock()
	c.subtitlesEnabled = !c.subtitlesEnabled
	enabled := c.subtitlesEnabled
	var label string
	if c.handle != nil {
		label = c.handle.SubtitleLabel
	}
	c.mu.Unlock()

	if enabled {
		go c.restoreSubtitles(ctx, label)
	} else {
		c.mu.Lock()
		if c.handle != nil {
			c.handle.SubtitleLabel = ""
		}
		c.mu.Unlock()
		js := c.mediaJS(`
			for (const t of m.textTracks) t.mode = 'disabled';
			return true;`)
		if err := c.page.Exec(ctx, js); err != nil {
			slog.DebugContext(ctx, "disabling subtitles failed", "error", err)
		}
	}

	if err := c.store.SetSubtitlePref(enabled, label); err != nil {
		slog.DebugContext(ctx, "persisting subtitle pref failed", "error", err)
	}
	c.requestRefresh()
}

// loadManifestVariants lists HLS variants for the quality menu. Failures
// degrade to no variant list, extraction-miss style.
func (c *Controller) loadManifestVariants(ctx context.Context, source string) {
	fetchCtx, cancel := context.WithTimeout(ctx, c.cfg.ManifestTimeout)
	defer cancel()

	c.mu.Lock()
	headerSource := c.streamHeaders
	c.mu.Unlock()
	var headers map[string]string
	if headerSource != nil {
		headers = headerSource(source)
	}

	variants, err := hls.Variants(fetchCtx, c.cfg.ManifestTimeout, source, headers)
	if err != nil {
		slog.DebugContext(ctx, "manifest variant listing failed", "src", source, "error", err)
		return
	}

	labels := make([]string, 0, len(variants))
	for _, v := range variants {
		labels = append(labels, hls.Label(v))
	}

	c.mu.Lock()
	c.qualityLabels = labels
	c.mu.Unlock()

	slog.DebugContext(ctx, "manifest variants listed", "count", len(labels))
	c.requestRefresh()
}

// MarkFailed surfaces a full stream failure to the control surface as a
// persistent loader/error signal rather than an exception.
func (c *Controller) MarkFailed(ctx context.Context) {
	c.mu.Lock()
	c.failed = true
	c.loading = false
	c.playing = false
	c.mu.Unlock()
	slog.WarnContext(ctx, "stream failed, surfacing error state")
	c.requestRefresh()
}
