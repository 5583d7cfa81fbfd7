package player

// Readiness mirrors the media element's load progress, coarsened to the
// three states the surface cares about.
type Readiness int

const (
	NotReady Readiness = iota
	HasData
	CanPlay
)

// MediaHandle wraps exactly one live media element at a time. The node id is
// exclusively owned by the Controller; other components query playback facts
// through it and never retain the id themselves. At most one handle is
// current; swapping is atomic from the surface's point of view.
type MediaHandle struct {
	NodeID    string
	Source    string
	Readiness Readiness

	// Intent fields: what should be true about the element. The element is
	// reasserted towards these whenever the host disagrees.
	Volume        float64
	Muted         bool
	Rate          float64
	SubtitleLabel string // empty when subtitles are off
}

// Model is the read-only view of playback state the surface derives its UI
// from.
type Model struct {
	Handle  MediaHandle
	Owned   bool // false until a media element has been adopted
	Playing bool
	Loading bool
	Failed  bool

	SubtitlesEnabled bool
	QualityLabels    []string // manifest-derived, may be empty
}
