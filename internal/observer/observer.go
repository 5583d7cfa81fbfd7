// Package observer is the sole detector of host-page mutation. It injects a
// MutationObserver bridge into the page and turns its batches into swap or
// rescan events for the agent loop. It keeps observing for the lifetime of
// the document: the host may re-render indefinitely (ads, multi-part
// episodes), so there is deliberately no disconnect path.
package observer

import (
	"context"
	_ "embed"
	"encoding/json"
	"log/slog"

	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
)

//go:embed js/observer.js
var observerJS string

// Binding is the in-page function name the mutation bridge reports through.
const Binding = "__graftMutated__"

// EventKind classifies what a mutation batch means for the agent.
type EventKind int

const (
	// Rescan: something changed; run the idempotent re-initialization scan.
	Rescan EventKind = iota
	// HostSwap: the host inserted a new media element carrying a source —
	// an episode or segment change performed by the host's own code.
	HostSwap
)

// Event is one classified mutation outcome.
type Event struct {
	Kind EventKind
	// NodeID and Source identify the host's new media element on HostSwap.
	NodeID string
	Source string
}

// addedMedia mirrors the bridge's per-element report.
type addedMedia struct {
	ID  string `json:"id"`
	Tag string `json:"tag"`
	Src string `json:"src"`
}

// batch mirrors the bridge's payload.
type batch struct {
	Added   []addedMedia `json:"added"`
	Removed int          `json:"removed"`
	Touched int          `json:"touched"`
}

// session is the slice of the page session the observer needs.
type session interface {
	AddBinding(name string) error
	Listen(fn func(ev any))
	Exec(ctx context.Context, js string) error
}

// Observer converts raw mutation batches into agent events.
type Observer struct {
	sess session
	// ownedNode reports the node id of the media element the controller
	// currently owns; additions of that element never count as a swap.
	ownedNode func() string
	events    chan Event
}

// New creates an Observer. ownedNode must be safe to call from the CDP
// listener goroutine.
func New(sess session, ownedNode func() string) *Observer {
	return &Observer{
		sess:      sess,
		ownedNode: ownedNode,
		events:    make(chan Event, 64),
	}
}

// Events returns the classified event stream.
func (o *Observer) Events() <-chan Event {
	return o.events
}

// Start registers the binding, injects the bridge into the current document
// and wires re-injection after navigations. It returns once observation is
// live; events flow until ctx is done.
func (o *Observer) Start(ctx context.Context) error {
	if err := o.sess.AddBinding(Binding); err != nil {
		return err
	}

	o.sess.Listen(func(ev any) {
		switch e := ev.(type) {
		case *runtime.EventBindingCalled:
			if e.Name != Binding {
				return
			}
			o.handlePayload(ctx, e.Payload)

		case *cdppage.EventFrameNavigated:
			// The document was replaced; the bridge must be re-injected
			// and the agent told to rescan from scratch.
			go func() {
				if err := o.sess.Exec(ctx, observerJS); err != nil {
					slog.DebugContext(ctx, "observer: re-injection failed", "error", err)
				}
				o.emit(ctx, Event{Kind: Rescan})
			}()
		}
	})

	if err := o.sess.Exec(ctx, observerJS); err != nil {
		return err
	}

	slog.InfoContext(ctx, "mutation observer injected")
	return nil
}

// handlePayload decodes and classifies one batch. Errors are logged and the
// batch dropped; a failure here must never take the listener down.
func (o *Observer) handlePayload(ctx context.Context, payload string) {
	var b batch
	if err := json.Unmarshal([]byte(payload), &b); err != nil {
		slog.DebugContext(ctx, "observer: bad batch payload", "error", err)
		return
	}

	// A new media element with a source that is not the owned handle is a
	// host-initiated swap. At most one event per batch: a swap suppresses
	// the rescan for this cycle. Before anything is owned there is nothing
	// to swap against — the first media element must flow through the full
	// initialization scan, not the swap path (which discards the host's
	// element in favor of the owned one).
	owned := o.ownedNode()
	if owned != "" {
		for _, m := range b.Added {
			if m.ID != "" && m.ID != owned && m.Src != "" {
				slog.DebugContext(ctx, "observer: host-initiated swap detected",
					"node", m.ID, "tag", m.Tag, "src", m.Src)
				o.emit(ctx, Event{Kind: HostSwap, NodeID: m.ID, Source: m.Src})
				return
			}
		}
	}

	if b.Touched > 0 || b.Removed > 0 || len(b.Added) > 0 {
		o.emit(ctx, Event{Kind: Rescan})
	}
}

// emit delivers an event without ever blocking the CDP listener. When the
// agent loop is behind, rescans coalesce by dropping — the next batch will
// trigger another.
func (o *Observer) emit(ctx context.Context, ev Event) {
	select {
	case o.events <- ev:
	default:
		slog.DebugContext(ctx, "observer: event dropped, agent busy", "kind", ev.Kind)
	}
}
