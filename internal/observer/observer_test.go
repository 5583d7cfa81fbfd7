package observer

import (
	"context"
	"testing"
)

// fakeObserverSession satisfies the session slice without a browser.
type fakeObserverSession struct {
	scripts []string
}

func (f *fakeObserverSession) AddBinding(string) error { return nil }
func (f *fakeObserverSession) Listen(func(ev any))     {}

func (f *fakeObserverSession) Exec(_ context.Context, js string) error {
	f.scripts = append(f.scripts, js)
	return nil
}

func newTestObserver(owned string) *Observer {
	return New(&fakeObserverSession{}, func() string { return owned })
}

func drain(t *testing.T, o *Observer) (Event, bool) {
	t.Helper()
	select {
	case ev := <-o.Events():
		return ev, true
	default:
		return Event{}, false
	}
}

func TestFirstMediaElementTriggersRescanNotSwap(t *testing.T) {
	// Nothing owned yet: the host's first media element must go through
	// the full initialization scan. A swap here would have the agent
	// delete the page's only video before anything could adopt it.
	o := newTestObserver("")

	o.handlePayload(context.Background(), `{"added":[{"id":"g7","tag":"video","src":"blob:xyz"}]}`)

	ev, ok := drain(t, o)
	if !ok {
		t.Fatal("no event emitted")
	}
	if ev.Kind != Rescan {
		t.Fatalf("want Rescan for pre-adoption media element, got kind %d (node %s)", ev.Kind, ev.NodeID)
	}
}

func TestForeignSourcedElementIsSwapWhileOwned(t *testing.T) {
	o := newTestObserver("g1")

	o.handlePayload(context.Background(), `{"added":[{"id":"g7","tag":"video","src":"https://cdn.example/next.m3u8"}]}`)

	ev, ok := drain(t, o)
	if !ok {
		t.Fatal("no event emitted")
	}
	if ev.Kind != HostSwap || ev.NodeID != "g7" || ev.Source != "https://cdn.example/next.m3u8" {
		t.Fatalf("want HostSwap for g7, got %+v", ev)
	}

	// A swap suppresses the rescan for its batch.
	if extra, ok := drain(t, o); ok {
		t.Fatalf("unexpected second event: %+v", extra)
	}
}

func TestOwnedElementAdditionIsNotASwap(t *testing.T) {
	// The owned element re-appearing in a batch (e.g. after the overlay
	// re-parented it) must not be treated as a host swap.
	o := newTestObserver("g1")

	o.handlePayload(context.Background(), `{"added":[{"id":"g1","tag":"video","src":"blob:mine"}]}`)

	ev, ok := drain(t, o)
	if !ok {
		t.Fatal("no event emitted")
	}
	if ev.Kind != Rescan {
		t.Fatalf("want Rescan, got %+v", ev)
	}
}

func TestSourcelessAdditionIsRescan(t *testing.T) {
	o := newTestObserver("g1")

	o.handlePayload(context.Background(), `{"added":[{"id":"g7","tag":"video","src":""}],"touched":2}`)

	ev, ok := drain(t, o)
	if !ok {
		t.Fatal("no event emitted")
	}
	if ev.Kind != Rescan {
		t.Fatalf("want Rescan for sourceless element, got %+v", ev)
	}
}

func TestQuietBatchEmitsNothing(t *testing.T) {
	o := newTestObserver("g1")

	o.handlePayload(context.Background(), `{"added":[],"removed":0,"touched":0}`)
	if ev, ok := drain(t, o); ok {
		t.Fatalf("unexpected event for quiet batch: %+v", ev)
	}

	o.handlePayload(context.Background(), `not json`)
	if ev, ok := drain(t, o); ok {
		t.Fatalf("unexpected event for malformed batch: %+v", ev)
	}
}
