// Package surface builds and maintains the replacement player UI. It is
// purely reactive: widgets are re-derived from the player model on every
// refresh, never mutated piecemeal, and it never decides playback facts
// itself.
package surface

import (
	"math"
	"strconv"
	"time"

	"github.com/merov/graft/internal/player"
)

// Visibility is the controls-visibility state machine.
type Visibility int

const (
	Hidden Visibility = iota
	VisibleInteracting
	VisiblePaused
)

// VisibilityMachine tracks pointer/key activity and demotes visible
// controls to hidden after inactivity while playing. Fullscreen transitions
// do not feed the machine.
type VisibilityMachine struct {
	state        Visibility
	lastActivity time.Time
}

// OnActivity promotes to VisibleInteracting on pointer movement or keydown.
func (v *VisibilityMachine) OnActivity(now time.Time) {
	v.state = VisibleInteracting
	v.lastActivity = now
}

// OnPause forces the paused-visible state; paused controls never hide.
func (v *VisibilityMachine) OnPause() {
	v.state = VisiblePaused
}

// OnPlay re-arms the inactivity timer from the moment playback resumes.
func (v *VisibilityMachine) OnPlay(now time.Time) {
	v.state = VisibleInteracting
	v.lastActivity = now
}

// Tick demotes VisibleInteracting to Hidden once the pointer has been idle
// for hideDelay while playing. Returns true when the state changed.
func (v *VisibilityMachine) Tick(now time.Time, playing bool, hideDelay time.Duration) bool {
	if v.state != VisibleInteracting || !playing {
		return false
	}
	if now.Sub(v.lastActivity) < hideDelay {
		return false
	}
	v.state = Hidden
	return true
}

// Visible reports whether controls are currently shown.
func (v *VisibilityMachine) Visible() bool {
	return v.state != Hidden
}

// State reports the current machine state.
func (v *VisibilityMachine) State() Visibility {
	return v.state
}

// NavState holds prev/next episode availability.
type NavState struct {
	PrevEnabled bool
	NextEnabled bool
}

// State is the fully derived widget state applied to the overlay in one
// pass. It is recomputed from the player model plus UI flags on every
// relevant event and never stored.
type State struct {
	PlayIcon        string  `json:"playIcon"` // "play" or "pause"
	LoaderVisible   bool    `json:"loaderVisible"`
	ErrorVisible    bool    `json:"errorVisible"`
	ControlsVisible bool    `json:"controlsVisible"`
	ProgressPct     float64 `json:"progressPct"`
	VolumePct       float64 `json:"volumePct"`
	Muted           bool    `json:"muted"`
	PrevEnabled     bool    `json:"prevEnabled"`
	NextEnabled     bool    `json:"nextEnabled"`
	TimeLabel       string  `json:"timeLabel"`
	DurationSec     float64 `json:"durationSec"`
}

// Derive computes widget state from the playback model. position/duration
// are seconds; a zero duration yields zero progress.
func Derive(m player.Model, vis *VisibilityMachine, position, duration float64, nav NavState) State {
	icon := "play"
	if m.Playing {
		icon = "pause"
	}

	progress := 0.0
	if duration > 0 {
		progress = math.Min(100, math.Max(0, position/duration*100))
	}

	volume := math.Min(100, math.Max(0, m.Handle.Volume*100))

	return State{
		PlayIcon:        icon,
		LoaderVisible:   m.Loading && !m.Failed,
		ErrorVisible:    m.Failed,
		ControlsVisible: vis.Visible(),
		ProgressPct:     progress,
		VolumePct:       volume,
		Muted:           m.Handle.Muted,
		PrevEnabled:     nav.PrevEnabled,
		NextEnabled:     nav.NextEnabled,
		TimeLabel:       FormatTime(position) + " / " + FormatTime(duration),
		DurationSec:     duration,
	}
}

// ScrollStep returns the carousel scroll distance for one held-arrow tick.
// Speed ramps linearly from base to base*maxFactor over rampDuration: plain
// per-click scrolling is too slow for long episode lists, while instant
// full speed is unusable for precise selection.
func ScrollStep(base float64, held, rampDuration time.Duration, maxFactor float64) float64 {
	if base <= 0 {
		return 0
	}
	if maxFactor < 1 {
		maxFactor = 1
	}
	frac := 1.0
	if rampDuration > 0 {
		frac = math.Min(1, float64(held)/float64(rampDuration))
	}
	return base * (1 + (maxFactor-1)*frac)
}

// FormatTime renders seconds as m:ss or h:mm:ss for the hover tooltip.
func FormatTime(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	h := total / 3600
	m := total % 3600 / 60
	s := total % 60
	if h > 0 {
		return strconv.Itoa(h) + ":" + pad(m) + ":" + pad(s)
	}
	return strconv.Itoa(m) + ":" + pad(s)
}

func pad(v int) string {
	if v < 10 {
		return "0" + strconv.Itoa(v)
	}
	return strconv.Itoa(v)
}
