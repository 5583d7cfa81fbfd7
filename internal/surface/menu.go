package surface

import (
	"strconv"

	"github.com/merov/graft/internal/player"
	"github.com/merov/graft/internal/scan"
)

// MenuView identifies the settings drill-down view currently shown.
type MenuView int

const (
	MenuClosed MenuView = iota
	MenuMain
	MenuQuality
	MenuVoiceover
	MenuSpeed
	MenuSubtitles
)

// menuViewByName maps UI event labels to views.
var menuViewByName = map[string]MenuView{
	"main":      MenuMain,
	"quality":   MenuQuality,
	"voiceover": MenuVoiceover,
	"speed":     MenuSpeed,
	"subtitles": MenuSubtitles,
	"back":      MenuMain,
	"close":     MenuClosed,
}

// MenuEntry is one row of a settings sub-view.
type MenuEntry struct {
	Label    string
	NodeID   string // host back-reference for quality/voiceover rows
	Active   bool
	Disabled bool
}

// playbackRates are the fixed speed menu steps.
var playbackRates = []float64{0.5, 0.75, 1, 1.25, 1.5, 2}

// placeholder is the single disabled row shown when a scan found nothing,
// preserving menu layout instead of omitting the item.
var placeholder = []MenuEntry{{Label: "Unavailable", Disabled: true}}

// menuEntries generates a sub-view's rows fresh from the current extractor
// results. Views are never cached across opens: host lists can change
// between episodes.
func menuEntries(view MenuView, res *scan.Result, m player.Model) []MenuEntry {
	switch view {
	case MenuMain:
		return []MenuEntry{
			{Label: "Quality"},
			{Label: "Voiceover"},
			{Label: "Speed"},
			{Label: "Subtitles"},
		}

	case MenuQuality:
		if res != nil && len(res.Qualities) > 0 {
			return optionEntries(res.Qualities)
		}
		// No host quality list; fall back to manifest-derived labels.
		if len(m.QualityLabels) > 0 {
			entries := make([]MenuEntry, len(m.QualityLabels))
			for i, l := range m.QualityLabels {
				entries[i] = MenuEntry{Label: l, Active: i == 0}
			}
			return entries
		}
		return placeholder

	case MenuVoiceover:
		if res != nil && len(res.Voiceovers) > 0 {
			return optionEntries(res.Voiceovers)
		}
		return placeholder

	case MenuSpeed:
		entries := make([]MenuEntry, len(playbackRates))
		for i, rate := range playbackRates {
			entries[i] = MenuEntry{
				Label:  strconv.FormatFloat(rate, 'g', -1, 64) + "x",
				Active: rate == m.Handle.Rate,
			}
		}
		return entries

	case MenuSubtitles:
		return []MenuEntry{
			{Label: "On", Active: m.SubtitlesEnabled},
			{Label: "Off", Active: !m.SubtitlesEnabled},
		}
	}

	return nil
}

func optionEntries(opts []scan.Option) []MenuEntry {
	entries := make([]MenuEntry, len(opts))
	for i, o := range opts {
		entries[i] = MenuEntry{Label: o.Label, NodeID: o.NodeID, Active: o.Active}
	}
	return entries
}

// parseRate recovers a playback rate from a speed menu label ("1.25x").
func parseRate(label string) (float64, bool) {
	if len(label) < 2 || label[len(label)-1] != 'x' {
		return 0, false
	}
	rate, err := strconv.ParseFloat(label[:len(label)-1], 64)
	if err != nil {
		return 0, false
	}
	return rate, true
}
