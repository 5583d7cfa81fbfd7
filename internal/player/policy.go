package player

import (
	"math"
	"strings"
)

// volumeEpsilon is the largest intent/actual disagreement treated as noise
// rather than a foreign volume change.
const volumeEpsilon = 0.01

// ResumeTarget applies the position resume policy: a stored position inside
// the trailing end window counts as finished and is discarded (resuming into
// credits helps nobody); otherwise resume a small fixed rewind before it for
// context. All values are seconds.
func ResumeTarget(saved, duration, endWindow, rewind float64) (float64, bool) {
	if saved <= 0 || duration <= 0 {
		return 0, false
	}
	if duration-saved <= endWindow {
		return 0, false
	}
	return math.Max(0, saved-rewind), true
}

// ShouldClearOnSave reports whether a periodic position save should clear
// the stored entry instead: the viewer is inside the trailing end window.
func ShouldClearOnSave(pos, duration, endWindow float64) bool {
	return duration > 0 && duration-pos <= endWindow
}

// clampVolume forces a volume intent into [0,1], mapping non-finite input
// to the current value.
func clampVolume(v, current float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return current
	}
	return math.Min(1, math.Max(0, v))
}

// clampRate forces a playback rate into the range media elements accept,
// mapping non-finite input to 1.
func clampRate(r float64) float64 {
	if math.IsNaN(r) || math.IsInf(r, 0) || r <= 0 {
		return 1
	}
	return math.Min(4, math.Max(0.25, r))
}

// clampFraction forces a seek fraction into [0,1].
func clampFraction(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return math.Min(1, math.Max(0, f))
}

// subtitleLanguageKeywords match track labels for the target language when
// no exact stored label is present.
var subtitleLanguageKeywords = []string{"русск", "russian", "rus", "ru"}

// PickSubtitleTrack chooses a text track index: exact preferred label first,
// then a language keyword match, then the first track. Returns -1 when no
// tracks exist.
func PickSubtitleTrack(labels []string, preferred string) int {
	if len(labels) == 0 {
		return -1
	}
	if preferred != "" {
		for i, l := range labels {
			if l == preferred {
				return i
			}
		}
	}
	for i, l := range labels {
		if matchesLanguage(l) {
			return i
		}
	}
	return 0
}

func matchesLanguage(label string) bool {
	lower := strings.ToLower(label)
	for _, kw := range subtitleLanguageKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
