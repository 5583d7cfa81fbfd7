package scan

import "strings"

const (
	// itemClassToken is the generic class fragment option rows tend to
	// carry even on obfuscated players (item_abc, menu-item, …).
	itemClassToken = "item"

	// maxLabelLen rejects container elements whose text is a whole
	// paragraph rather than an option label.
	maxLabelLen = 48

	minQualityGroup = 2
	minSeriesGroup  = 2
)

// activeTokens mark an option as currently selected in the host's own UI.
var activeTokens = []string{"active", "selected", "current", "checked"}

// voiceoverKeywords is a curated, multilingual list of known voiceover
// studios and generic audio-track labels. Matching is substring,
// case-insensitive.
var voiceoverKeywords = []string{
	"original", "dubbing", "дубляж", "оригинал", "субтитры",
	"многоголос", "одноголос", "закадров",
	"lostfilm", "newstudio", "alexfilm", "kubik", "кубик в кубе",
	"кураж", "amedia", "hdrezka", "jaskier", "tvshows",
}

// qualityKeywords are resolution labels used by quality menus.
var qualityKeywords = []string{
	"2160p", "1440p", "1080p", "720p", "480p", "360p", "240p", "auto", "4k",
}

// seasonKeywords and episodeKeywords classify series-structure groups.
var seasonKeywords = []string{"season", "сезон", "saison", "temporada"}

var episodeKeywords = []string{
	"episode", "серия", "эпизод", "episodio", "épisode", "часть",
}

func matchesVoiceover(label string) bool {
	return matchesAny(label, voiceoverKeywords)
}

func matchesQuality(label string) bool {
	return matchesAny(label, qualityKeywords)
}

func matchesAny(label string, keywords []string) bool {
	lower := strings.ToLower(label)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

type seriesClass int

const (
	seriesNone seriesClass = iota
	seriesSeason
	seriesEpisode
)

// classifySeriesLabel decides whether a label names a season or an episode.
// Season keywords win when both appear ("Season 2, Episode 1" headers are
// season links in every layout observed).
func classifySeriesLabel(label string) seriesClass {
	switch {
	case matchesAny(label, seasonKeywords):
		return seriesSeason
	case matchesAny(label, episodeKeywords):
		return seriesEpisode
	default:
		return seriesNone
	}
}
