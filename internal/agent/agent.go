// Package agent runs the takeover lifecycle: snapshot the host page, find
// the media element and option lists, seize the player, and keep reacting
// to host mutation until the session ends. All state transitions flow
// through one event loop, so observer batches, media events, UI intents
// and timers never race each other.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/runtime"

	"github.com/merov/graft/internal/app"
	"github.com/merov/graft/internal/observer"
	"github.com/merov/graft/internal/page"
	"github.com/merov/graft/internal/player"
	"github.com/merov/graft/internal/scan"
	"github.com/merov/graft/internal/store"
	"github.com/merov/graft/internal/surface"
)

// visibilityTickInterval drives the controls auto-hide clock. It only
// needs to be finer than the configured hide delay, not configurable
// itself.
const visibilityTickInterval = 500 * time.Millisecond

// bindingMsg is one in-page binding call forwarded into the loop.
type bindingMsg struct {
	name    string
	payload string
}

// bridgeMsg mirrors the cross-frame bridge's forwarded message.
type bridgeMsg struct {
	Type    string   `json:"type"`
	Sources []string `json:"sources"`
}

// Agent owns one attached page and drives it until the context ends.
type Agent struct {
	cfg      *app.Config
	sess     *page.Session
	ctrl     *player.Controller
	obs      *observer.Observer
	renderer *surface.Renderer

	// bindings funnels CDP binding calls from the listener goroutine into
	// the loop. Media events are frequent; the buffer absorbs bursts.
	bindings chan bindingMsg
	// refreshes coalesces surface refresh requests from worker goroutines.
	refreshes chan struct{}
	// rescans carries delayed post-click rescan requests.
	rescans chan struct{}

	announced bool
}

// New wires an Agent over an open session and store.
func New(cfg *app.Config, sess *page.Session, st *store.Store) *Agent {
	a := &Agent{
		cfg:       cfg,
		sess:      sess,
		bindings:  make(chan bindingMsg, 128),
		refreshes: make(chan struct{}, 1),
		rescans:   make(chan struct{}, 1),
	}

	a.ctrl = player.New(cfg.Player, sess, st)
	a.ctrl.SetHeaderSource(sess.StreamHeaders)
	a.obs = observer.New(sess, a.ctrl.OwnedNode)
	a.renderer = surface.NewRenderer(cfg.Surface, sess, a.ctrl)
	a.renderer.SetResolver(a.resolveByLabel)

	// Controller workers may request refreshes from their own goroutines;
	// the channel re-serializes them onto the loop.
	a.ctrl.SetRefresh(func() {
		select {
		case a.refreshes <- struct{}{}:
		default:
		}
	})

	return a
}

// Run starts observation, performs the initial takeover scan and then
// loops until ctx is done. The final position save is best-effort.
func (a *Agent) Run(ctx context.Context) error {
	for _, name := range []string{surface.UIBinding, player.MediaBinding, page.MessageBinding} {
		if err := a.sess.AddBinding(name); err != nil {
			return fmt.Errorf("registering binding %s: %w", name, err)
		}
	}

	a.sess.Listen(func(ev any) {
		e, ok := ev.(*runtime.EventBindingCalled)
		if !ok {
			return
		}
		switch e.Name {
		case surface.UIBinding, player.MediaBinding, page.MessageBinding:
			select {
			case a.bindings <- bindingMsg{name: e.Name, payload: e.Payload}:
			default:
				slog.DebugContext(ctx, "binding call dropped, agent busy", "binding", e.Name)
			}
		}
	})

	if err := a.obs.Start(ctx); err != nil {
		return fmt.Errorf("starting mutation observer: %w", err)
	}

	a.rescan(ctx)

	saveTicker := time.NewTicker(a.cfg.Player.PositionSaveInterval)
	defer saveTicker.Stop()
	visTicker := time.NewTicker(visibilityTickInterval)
	defer visTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.finalSave()
			return ctx.Err()

		case ev := <-a.obs.Events():
			a.handleObserverEvent(ctx, ev)

		case msg := <-a.bindings:
			a.handleBinding(ctx, msg)

		case <-a.refreshes:
			a.renderer.Refresh(ctx)

		case <-a.rescans:
			a.rescan(ctx)

		case <-saveTicker.C:
			if a.ctrl.Model().Playing {
				a.ctrl.SavePosition(ctx)
			}

		case <-visTicker.C:
			a.renderer.Tick(ctx)
		}
	}
}

// handleObserverEvent reacts to one classified mutation.
func (a *Agent) handleObserverEvent(ctx context.Context, ev observer.Event) {
	switch ev.Kind {
	case observer.HostSwap:
		// The host inserted its own replacement element. Keep ours: strip
		// the new element out and re-point the persistent element at its
		// source, then verify the page with a delayed rescan.
		if err := a.sess.RemoveNode(ctx, ev.NodeID); err != nil {
			slog.DebugContext(ctx, "removing host element failed", "node", ev.NodeID, "error", err)
		}
		if err := a.ctrl.AdoptNewSource(ctx, ev.Source, false); err != nil {
			slog.WarnContext(ctx, "adopting swapped source failed", "error", err)
			a.rescan(ctx)
			return
		}
		a.scheduleRescan()

	case observer.Rescan:
		a.rescan(ctx)
	}
}

// handleBinding routes one in-page binding call.
func (a *Agent) handleBinding(ctx context.Context, msg bindingMsg) {
	switch msg.name {
	case player.MediaBinding:
		var ev player.MediaEvent
		if err := json.Unmarshal([]byte(msg.payload), &ev); err != nil {
			slog.DebugContext(ctx, "bad media event payload", "error", err)
			return
		}
		a.ctrl.HandleMediaEvent(ctx, ev)
		switch ev.Event {
		case "pause":
			a.renderer.OnPause(ctx)
		case "play":
			a.renderer.OnPlay(ctx)
		}

	case surface.UIBinding:
		var ev surface.UIEvent
		if err := json.Unmarshal([]byte(msg.payload), &ev); err != nil {
			slog.DebugContext(ctx, "bad UI event payload", "error", err)
			return
		}
		a.renderer.HandleUIEvent(ctx, ev)
		// Click-through actions poke the host DOM; the host never
		// acknowledges, so a fixed-delay rescan verifies the outcome.
		switch ev.Action {
		case "episode", "prev", "next", "menuitem":
			a.scheduleRescan()
		}

	case page.MessageBinding:
		a.handleBridgeMessage(ctx, msg.payload)
	}
}

// handleBridgeMessage reacts to a source handoff from the embedding page.
func (a *Agent) handleBridgeMessage(ctx context.Context, payload string) {
	var msg bridgeMsg
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		slog.DebugContext(ctx, "bad bridge message", "error", err)
		return
	}
	if msg.Type != "graft:sources" || len(msg.Sources) == 0 {
		return
	}

	slog.InfoContext(ctx, "source handoff from embedding page", "count", len(msg.Sources))
	if a.ctrl.OwnedNode() == "" {
		// No element yet; the next scan adopts one and the handed source
		// arrives through it.
		a.scheduleRescan()
		return
	}
	if err := a.ctrl.AdoptNewSource(ctx, msg.Sources[0], false); err != nil {
		slog.WarnContext(ctx, "adopting handed source failed", "error", err)
	}
}

// rescan runs the idempotent re-initialization pass: snapshot, scan,
// adopt or re-point the media element if needed, refresh the surface.
// Results overwrite the previous scan's wholesale.
func (a *Agent) rescan(ctx context.Context) {
	doc, err := a.snapshotDoc(ctx)
	if err != nil {
		slog.DebugContext(ctx, "rescan failed", "error", err)
		return
	}
	res, err := scan.All(ctx, doc)
	if err != nil {
		slog.DebugContext(ctx, "rescan failed", "error", err)
		return
	}

	owned := a.ctrl.OwnedNode()
	switch {
	case owned == "" && res.Media != nil:
		a.takeover(ctx, res.Media)

	case owned != "" && res.Media != nil && res.Media.NodeID != owned && !nodePresent(doc, owned):
		// Our element vanished from the document and a different one took
		// its place: the host swapped the node itself.
		if err := a.ctrl.SwapElementInPlace(ctx, res.Media.NodeID, res.Media.Source); err != nil {
			slog.WarnContext(ctx, "in-place element swap failed", "error", err)
		} else if err := a.renderer.Build(ctx, res.Media.NodeID); err != nil {
			slog.WarnContext(ctx, "overlay rebuild failed", "error", err)
		}
	}

	a.renderer.UpdateScan(ctx, res)
}

// takeover performs the initial seizure of a discovered media element.
func (a *Agent) takeover(ctx context.Context, media *scan.MediaElement) {
	slog.InfoContext(ctx, "taking over host player", "node", media.NodeID, "tag", media.Tag)

	if err := a.ctrl.AdoptInitialElement(ctx, media.NodeID, media.Source); err != nil {
		slog.WarnContext(ctx, "adopting media element failed", "error", err)
		return
	}
	if err := a.renderer.Build(ctx, media.NodeID); err != nil {
		slog.WarnContext(ctx, "building overlay failed", "error", err)
		return
	}

	if !a.announced {
		a.announced = true
		if err := a.sess.AnnounceReady(ctx); err != nil {
			slog.DebugContext(ctx, "ready announcement failed", "error", err)
		}
	}
}

// snapshotDoc captures the tagged document as a parsed tree.
func (a *Agent) snapshotDoc(ctx context.Context) (*goquery.Document, error) {
	snapshot, err := a.sess.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshotting page: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(snapshot))
	if err != nil {
		return nil, fmt.Errorf("parsing snapshot: %w", err)
	}
	return doc, nil
}

// scanPage snapshots the document and runs the extractors over it.
func (a *Agent) scanPage(ctx context.Context) (*scan.Result, error) {
	doc, err := a.snapshotDoc(ctx)
	if err != nil {
		return nil, err
	}
	return scan.All(ctx, doc)
}

// nodePresent reports whether the given node id is still in the document.
func nodePresent(doc *goquery.Document, nodeID string) bool {
	return doc.Find("["+scan.NodeAttr+"='"+nodeID+"']").Length() > 0
}

// resolveByLabel re-resolves a stale host option against a fresh scan.
// Searches every option list; labels are unique enough in practice that
// the first hit wins.
func (a *Agent) resolveByLabel(ctx context.Context, label string) (string, bool) {
	res, err := a.scanPage(ctx)
	if err != nil {
		slog.DebugContext(ctx, "re-resolution scan failed", "error", err)
		return "", false
	}

	lists := [][]scan.Option{
		res.Series.Episodes,
		res.Series.Seasons,
		res.Voiceovers,
		res.Qualities,
	}
	for _, opts := range lists {
		for _, o := range opts {
			if o.Label == label && o.NodeID != "" {
				return o.NodeID, true
			}
		}
	}
	return "", false
}

// scheduleRescan queues a rescan after the configured post-click delay.
func (a *Agent) scheduleRescan() {
	time.AfterFunc(a.cfg.Player.RescanDelay, func() {
		select {
		case a.rescans <- struct{}{}:
		default:
		}
	})
}

// finalSave persists the position one last time on shutdown. The page may
// already be tearing down; failures are acceptable here.
func (a *Agent) finalSave() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	a.ctrl.SavePosition(ctx)
}
