// Package scan turns an arbitrary, unversioned host DOM into typed option
// lists and the current media source. Every scan is a pure read over a
// snapshot document, assumes no stable selectors, excludes the agent's own
// overlay subtree, and tolerates zero results.
package scan

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"
)

// OverlayID is the id of the agent's injected overlay container. Scans never
// consider anything inside it, so the agent cannot trigger on its own UI.
const OverlayID = "graft-root"

// NodeAttr is the attribute carrying the per-element id the page session
// assigns before each snapshot. Options keep only this id plus their label;
// the id is re-validated at click time.
const NodeAttr = "data-graft-id"

// Option is a discovered host control. NodeID is a weak back-reference into
// a DOM the host may destroy at any time; consumers must verify liveness
// before dispatching to it and re-resolve by Label on failure.
type Option struct {
	Label  string
	NodeID string
	Active bool
}

// MediaElement is the discovered playable element and its source.
type MediaElement struct {
	NodeID string
	Tag    string
	Source string
}

// SeriesResult holds season and episode option lists, either possibly empty.
type SeriesResult struct {
	Seasons  []Option
	Episodes []Option
}

// Result bundles the output of all four scans.
type Result struct {
	Media      *MediaElement
	Series     SeriesResult
	Voiceovers []Option
	Qualities  []Option
}

// All runs the four scans concurrently over one snapshot document.
func All(ctx context.Context, doc *goquery.Document) (*Result, error) {
	res := &Result{}

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		if m, ok := MediaSource(doc); ok {
			res.Media = &m
		}
		return nil
	})
	g.Go(func() error {
		res.Series = Series(doc)
		return nil
	})
	g.Go(func() error {
		res.Voiceovers = Voiceovers(doc)
		return nil
	})
	g.Go(func() error {
		res.Qualities = Qualities(doc)
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return res, nil
}

// MediaSource finds the first visible media-capable element carrying a
// non-empty source, directly or through a child source tag.
func MediaSource(doc *goquery.Document) (MediaElement, bool) {
	var found MediaElement
	var ok bool

	doc.Find("video, audio").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if insideOverlay(s) || hiddenByStyle(s) {
			return true
		}
		src := elementSource(s)
		if src == "" {
			return true
		}
		found = MediaElement{
			NodeID: s.AttrOr(NodeAttr, ""),
			Tag:    goquery.NodeName(s),
			Source: src,
		}
		ok = true
		return false
	})

	return found, ok
}

// elementSource resolves an element's source from src, data-src, or the
// first child <source> tag.
func elementSource(s *goquery.Selection) string {
	if src := strings.TrimSpace(s.AttrOr("src", "")); src != "" {
		return src
	}
	if src := strings.TrimSpace(s.AttrOr("data-src", "")); src != "" {
		return src
	}
	return strings.TrimSpace(s.Find("source").AttrOr("src", ""))
}

// insideOverlay reports whether the selection sits inside the agent's own UI.
func insideOverlay(s *goquery.Selection) bool {
	return s.Closest("#"+OverlayID).Length() > 0
}

// hiddenByStyle is a cheap visibility heuristic for snapshot documents,
// where computed styles are unavailable.
func hiddenByStyle(s *goquery.Selection) bool {
	if _, hidden := s.Attr("hidden"); hidden {
		return true
	}
	style := strings.ReplaceAll(s.AttrOr("style", ""), " ", "")
	return strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden")
}

// normalizeLabel collapses whitespace in an element's text.
func normalizeLabel(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// isActive reports whether an element's class list carries an active-like
// token.
func isActive(s *goquery.Selection) bool {
	classes := strings.ToLower(s.AttrOr("class", ""))
	for _, tok := range activeTokens {
		if strings.Contains(classes, tok) {
			return true
		}
	}
	return false
}

// defaultFirstActive marks the first option active when no scan result
// carried an active-like class.
func defaultFirstActive(opts []Option) []Option {
	for _, o := range opts {
		if o.Active {
			return opts
		}
	}
	if len(opts) > 0 {
		opts[0].Active = true
	}
	return opts
}

// group is a set of sibling candidates sharing one parent node.
type group struct {
	parent  *html.Node
	options []Option
	matches int
}

// groupByParent buckets candidate selections by their parent node, keeping
// per-group counts of how many members matched the keyword predicate.
func groupByParent(sel *goquery.Selection, matched func(label string) bool) []group {
	index := make(map[*html.Node]int)
	var groups []group

	sel.Each(func(_ int, s *goquery.Selection) {
		if insideOverlay(s) || hiddenByStyle(s) {
			return
		}
		label := normalizeLabel(s.Text())
		if label == "" || len(label) > maxLabelLen {
			return
		}
		parents := s.Parent()
		if parents.Length() == 0 {
			return
		}
		parent := parents.Get(0)

		i, ok := index[parent]
		if !ok {
			i = len(groups)
			index[parent] = i
			groups = append(groups, group{parent: parent})
		}
		groups[i].options = append(groups[i].options, Option{
			Label:  label,
			NodeID: s.AttrOr(NodeAttr, ""),
			Active: isActive(s),
		})
		if matched(label) {
			groups[i].matches++
		}
	})

	return groups
}

// bestGroup returns the group with the most keyword matches, requiring at
// least minMatches and at least minSize members. The first such group wins
// ties, keeping scans deterministic across identical snapshots.
func bestGroup(groups []group, minMatches, minSize int) (group, bool) {
	var best group
	var ok bool
	for _, g := range groups {
		if g.matches < minMatches || len(g.options) < minSize {
			continue
		}
		if !ok || g.matches > best.matches {
			best = g
			ok = true
		}
	}
	return best, ok
}

// keywordOptions is the shared two-tier heuristic: prefer item-classed
// elements grouped by parent and filtered by keyword presence, fall back to
// a page-wide keyword text search grouped by parent.
func keywordOptions(doc *goquery.Document, matched func(string) bool, minSize int) []Option {
	// Tier one: generic "item"-like class token.
	groups := groupByParent(doc.Find("[class*='"+itemClassToken+"']"), matched)
	if g, ok := bestGroup(groups, 1, minSize); ok {
		return defaultFirstActive(g.options)
	}

	// Tier two: page-wide text search. Only keyword-matching members count
	// as options here, so unrelated siblings don't leak in.
	groups = groupByParent(doc.Find("*"), matched)
	var filtered []group
	for _, g := range groups {
		kept := g
		kept.options = nil
		for _, o := range g.options {
			if matched(o.Label) {
				kept.options = append(kept.options, o)
			}
		}
		if len(kept.options) > 0 {
			filtered = append(filtered, kept)
		}
	}
	if g, ok := bestGroup(filtered, minSize, minSize); ok {
		return defaultFirstActive(g.options)
	}
	return nil
}

// Voiceovers scans for the host's audio-track option list, keyed on a
// curated set of voiceover-studio names.
func Voiceovers(doc *goquery.Document) []Option {
	return keywordOptions(doc, matchesVoiceover, 1)
}

// Qualities scans for the host's quality option list. A minimum group size
// of two rejects accidental single-element matches such as a "1080p" badge
// in a page title.
func Qualities(doc *goquery.Document) []Option {
	return keywordOptions(doc, matchesQuality, minQualityGroup)
}

// Series scans for season and episode list structures: leaf-ish short-text
// elements grouped by parent, each group classified season vs episode by
// keyword majority.
func Series(doc *goquery.Document) SeriesResult {
	groups := groupByParent(doc.Find("*"), func(string) bool { return false })

	var res SeriesResult
	var seasonBest, episodeBest int

	for _, g := range groups {
		if len(g.options) < minSeriesGroup {
			continue
		}
		seasons, episodes := 0, 0
		for _, o := range g.options {
			switch classifySeriesLabel(o.Label) {
			case seriesSeason:
				seasons++
			case seriesEpisode:
				episodes++
			}
		}
		// Majority of the group must classify the same way.
		switch {
		case seasons*2 > len(g.options) && seasons > seasonBest:
			res.Seasons = defaultFirstActive(g.options)
			seasonBest = seasons
		case episodes*2 > len(g.options) && episodes > episodeBest:
			res.Episodes = defaultFirstActive(g.options)
			episodeBest = episodes
		}
	}

	return res
}
