package player

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"
)

// MediaBinding is the in-page function name the media listener reports
// through.
const MediaBinding = "__graftMedia__"

// MediaEvent is one report from the owned element's event listeners.
type MediaEvent struct {
	Event    string  `json:"event"`
	Volume   float64 `json:"volume"`
	Muted    bool    `json:"muted"`
	Time     float64 `json:"time"`
	Duration float64 `json:"duration"`
}

// bindMediaEvents attaches the reporting listeners to the owned element.
// Idempotent: an element that is already bound is left alone, so redundant
// invocations from interleaved re-scans are harmless.
func (c *Controller) bindMediaEvents(ctx context.Context) {
	js := c.mediaJS(`
		if (m.__graftBound) return true;
		m.__graftBound = true;
		const report = (ev) => {
			if (typeof window.__graftMedia__ !== 'function') return;
			try {
				window.__graftMedia__(JSON.stringify({
					event: ev.type,
					volume: m.volume,
					muted: m.muted,
					time: m.currentTime || 0,
					duration: isFinite(m.duration) ? m.duration : 0,
				}));
			} catch (e) {}
		};
		for (const t of ['volumechange', 'play', 'pause', 'ended', 'waiting', 'loadeddata', 'canplay', 'error']) {
			m.addEventListener(t, report);
		}
		return true;`)
	if err := c.page.Exec(ctx, js); err != nil {
		slog.DebugContext(ctx, "binding media events failed", "error", err)
	}
}

// HandleMediaEvent updates the model from an element event and runs the
// policies that key off element events.
func (c *Controller) HandleMediaEvent(ctx context.Context, ev MediaEvent) {
	switch ev.Event {
	case "volumechange":
		c.enforceVolume(ctx, ev)

	case "play":
		c.mu.Lock()
		c.playing = true
		c.failed = false
		c.mu.Unlock()

	case "pause":
		c.mu.Lock()
		c.playing = false
		c.mu.Unlock()
		c.savePosition(ctx, ev.Time, ev.Duration)

	case "ended":
		c.mu.Lock()
		c.playing = false
		c.mu.Unlock()
		if err := c.store.ClearPosition(c.page.Path()); err != nil {
			slog.DebugContext(ctx, "clearing position failed", "error", err)
		}

	case "waiting":
		c.mu.Lock()
		c.loading = true
		c.mu.Unlock()

	case "loadeddata":
		c.mu.Lock()
		c.loading = false
		if c.handle != nil && c.handle.Readiness < HasData {
			c.handle.Readiness = HasData
		}
		c.mu.Unlock()

	case "canplay":
		c.mu.Lock()
		c.loading = false
		if c.handle != nil {
			c.handle.Readiness = CanPlay
		}
		c.mu.Unlock()

	case "error":
		c.MarkFailed(ctx)
		return
	}

	c.requestRefresh()
}

// enforceVolume defeats host scripts that reset volume on the element. A
// volumechange disagreeing with intent by more than epsilon, arriving
// outside the self-caused window, is forcibly corrected back. Corrections
// stamp the window themselves, so the echo of a correction never loops.
func (c *Controller) enforceVolume(ctx context.Context, ev MediaEvent) {
	c.mu.Lock()
	if c.handle == nil {
		c.mu.Unlock()
		return
	}
	intendedVolume, intendedMuted := c.handle.Volume, c.handle.Muted
	selfCaused := c.now().Sub(c.lastVolumeWrite) < c.cfg.SelfCausedWindow
	c.mu.Unlock()

	if selfCaused {
		return
	}
	if math.Abs(ev.Volume-intendedVolume) <= volumeEpsilon && ev.Muted == intendedMuted {
		return
	}

	slog.DebugContext(ctx, "foreign volume change corrected",
		"observed", ev.Volume, "intended", intendedVolume)
	c.applyIntents(ctx)
}

// Progress reports the element's current time and duration in seconds.
// Zero values when no element is owned or the element is gone.
func (c *Controller) Progress(ctx context.Context) (position, duration float64) {
	var state struct {
		Time     float64 `json:"time"`
		Duration float64 `json:"duration"`
	}
	js := c.mediaJS(`
		return {
			time: m.currentTime || 0,
			duration: isFinite(m.duration) ? m.duration : 0,
		};`)
	if err := c.page.Eval(ctx, js, &state); err != nil {
		return 0, 0
	}
	return state.Time, state.Duration
}

// SavePosition records the current playback position, invoked periodically
// by the agent loop and on pause/unload.
func (c *Controller) SavePosition(ctx context.Context) {
	var state struct {
		Time     float64 `json:"time"`
		Duration float64 `json:"duration"`
		Paused   bool    `json:"paused"`
	}
	js := c.mediaJS(`
		return {
			time: m.currentTime || 0,
			duration: isFinite(m.duration) ? m.duration : 0,
			paused: m.paused,
		};`)
	if err := c.page.Eval(ctx, js, &state); err != nil {
		return
	}
	c.savePosition(ctx, state.Time, state.Duration)
}

func (c *Controller) savePosition(ctx context.Context, pos, duration float64) {
	if pos <= 0 {
		return
	}
	path := c.page.Path()
	if ShouldClearOnSave(pos, duration, c.cfg.EndWindow.Seconds()) {
		if err := c.store.ClearPosition(path); err != nil {
			slog.DebugContext(ctx, "clearing position failed", "error", err)
		}
		return
	}
	if err := c.store.SetPosition(path, pos); err != nil {
		slog.DebugContext(ctx, "saving position failed", "error", err)
	}
}

// resumePosition seeks to the stored position per the resume policy once
// the element knows its duration.
func (c *Controller) resumePosition(ctx context.Context) {
	saved, found := c.store.Position(c.page.Path())
	if !found {
		return
	}

	// Duration is often unknown at adoption; poll briefly for metadata.
	deadline := c.now().Add(c.cfg.AutoplayTimeout)
	var duration float64
	for c.now().Before(deadline) {
		js := c.mediaJS(`return isFinite(m.duration) ? m.duration : 0;`)
		if err := c.page.Eval(ctx, js, &duration); err != nil {
			return
		}
		if duration > 0 {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.cfg.AutoplayInterval):
		}
	}

	target, ok := ResumeTarget(saved, duration, c.cfg.EndWindow.Seconds(), c.cfg.ResumeRewind.Seconds())
	if !ok {
		if err := c.store.ClearPosition(c.page.Path()); err != nil {
			slog.DebugContext(ctx, "clearing finished position failed", "error", err)
		}
		return
	}

	slog.InfoContext(ctx, "resuming playback position", "saved", saved, "target", target)
	js := c.mediaJS(fmt.Sprintf(`m.currentTime = %g; return true;`, target))
	if err := c.page.Exec(ctx, js); err != nil {
		slog.DebugContext(ctx, "resume seek failed", "error", err)
	}
}

// restoreSubtitles polls for text tracks (they often attach asynchronously)
// and selects the preferred one, disabling all others. The poll is bounded:
// success predicate plus a hard attempt cap.
func (c *Controller) restoreSubtitles(ctx context.Context, preferred string) {
	var labels []string
	for attempt := 0; attempt < c.cfg.SubtitleAttempts; attempt++ {
		js := c.mediaJS(`
			const out = [];
			for (const t of m.textTracks) out.push(t.label || t.language || '');
			return out;`)
		labels = nil
		if err := c.page.Eval(ctx, js, &labels); err != nil {
			return
		}
		if len(labels) > 0 {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.cfg.SubtitleInterval):
		}
	}

	idx := PickSubtitleTrack(labels, preferred)
	if idx < 0 {
		slog.DebugContext(ctx, "no text tracks appeared", "attempts", c.cfg.SubtitleAttempts)
		return
	}

	c.mu.Lock()
	if c.handle != nil {
		c.handle.SubtitleLabel = labels[idx]
	}
	c.subtitlesEnabled = true
	c.mu.Unlock()

	js := c.mediaJS(fmt.Sprintf(`
		let i = 0;
		for (const t of m.textTracks) {
			t.mode = (i === %d) ? 'showing' : 'disabled';
			i++;
		}
		return true;`, idx))
	if err := c.page.Exec(ctx, js); err != nil {
		slog.DebugContext(ctx, "selecting text track failed", "error", err)
		return
	}

	if err := c.store.SetSubtitlePref(true, labels[idx]); err != nil {
		slog.DebugContext(ctx, "persisting subtitle label failed", "error", err)
	}
	slog.DebugContext(ctx, "subtitles restored", "label", labels[idx])
	c.requestRefresh()
}

// autoplayWhenReady aggressively polls for buffered readiness — metadata
// alone is not enough to avoid an immediate stall — then starts playback,
// clears the pending flag and logs the elapsed episode-advance latency.
func (c *Controller) autoplayWhenReady(ctx context.Context, since time.Time) {
	deadline := c.now().Add(c.cfg.AutoplayTimeout)

	for c.now().Before(deadline) {
		var ready bool
		js := c.mediaJS(`return m.readyState >= 3;`)
		if err := c.page.Eval(ctx, js, &ready); err != nil {
			return
		}
		if ready {
			js := c.mediaJS(`
				const p = m.play();
				if (p && p.catch) p.catch(() => {});
				return true;`)
			if err := c.page.Exec(ctx, js); err != nil {
				slog.DebugContext(ctx, "autoplay start failed", "error", err)
			}
			if err := c.store.ClearAutoplay(); err != nil {
				slog.DebugContext(ctx, "clearing autoplay flag failed", "error", err)
			}
			if !since.IsZero() {
				slog.InfoContext(ctx, "autoplay started", "latency", c.now().Sub(since))
			}
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.cfg.AutoplayInterval):
		}
	}

	// Deadline hit: give up, the user starts playback manually.
	if err := c.store.ClearAutoplay(); err != nil {
		slog.DebugContext(ctx, "clearing autoplay flag failed", "error", err)
	}
	slog.DebugContext(ctx, "autoplay readiness poll timed out")
}
