package player

import (
	"context"
	"fmt"
	"log/slog"
)

// Resolver re-resolves a host option by label against a fresh scan. It is
// supplied by the agent, which owns scanning.
type Resolver func(ctx context.Context, label string) (nodeID string, ok bool)

// ProxyClick dispatches a synthetic click on a host option's backing
// element. The node id is a weak reference into a DOM the host may have
// destroyed; when the element is gone the option is re-resolved by label
// and retried once. A second failure abandons the action — never an
// indefinite retry.
func (c *Controller) ProxyClick(ctx context.Context, nodeID, label string, resolve Resolver) error {
	clicked, err := c.page.ClickNode(ctx, nodeID)
	if err != nil {
		return fmt.Errorf("clicking %q: %w", label, err)
	}
	if clicked {
		return nil
	}

	slog.DebugContext(ctx, "option element stale, re-resolving by label", "label", label)

	if resolve == nil {
		return fmt.Errorf("option %q vanished and no resolver available", label)
	}
	freshID, ok := resolve(ctx, label)
	if !ok {
		return fmt.Errorf("option %q no longer present in host DOM", label)
	}

	clicked, err = c.page.ClickNode(ctx, freshID)
	if err != nil {
		return fmt.Errorf("clicking re-resolved %q: %w", label, err)
	}
	if !clicked {
		return fmt.Errorf("re-resolved option %q vanished before click", label)
	}
	return nil
}

// SelectEpisode runs the episode-advance protocol: mark the episode
// watched, arm the pending-autoplay flag, then trigger the host's own click
// handler. The resulting host-driven reload arrives through the observer as
// a host-initiated swap; adoption honors the armed flag. The host never
// acknowledges the click — the agent always re-scans after a fixed delay
// instead of awaiting a signal.
func (c *Controller) SelectEpisode(ctx context.Context, nodeID, label string, resolve Resolver) error {
	path := c.page.Path()
	if err := c.store.MarkWatched(path, label); err != nil {
		slog.DebugContext(ctx, "marking episode watched failed", "error", err)
	}
	if err := c.store.ArmAutoplay(c.now()); err != nil {
		slog.DebugContext(ctx, "arming autoplay failed", "error", err)
	}

	if err := c.ProxyClick(ctx, nodeID, label, resolve); err != nil {
		// The advance never happened; leaving autoplay armed would make
		// an unrelated later reload start playing on its own.
		if clearErr := c.store.ClearAutoplay(); clearErr != nil {
			slog.DebugContext(ctx, "clearing autoplay flag failed", "error", clearErr)
		}
		return err
	}

	slog.InfoContext(ctx, "episode advance dispatched", "episode", label)
	return nil
}

// SelectOption proxies a click for voiceover/quality/season options. These
// do not arm autoplay: the host handles them as in-place source changes.
func (c *Controller) SelectOption(ctx context.Context, nodeID, label string, resolve Resolver) error {
	if err := c.ProxyClick(ctx, nodeID, label, resolve); err != nil {
		return err
	}
	slog.InfoContext(ctx, "host option selected", "option", label)
	return nil
}

// WatchedLabels returns the persisted watched-episode labels for the
// current page path, for graying out cards.
func (c *Controller) WatchedLabels() []string {
	return c.store.Watched(c.page.Path())
}
