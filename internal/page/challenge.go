package page

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/chromedp"
)

// Cloudflare Turnstile handling. Streaming hosts often front their player
// pages with an interstitial; until it clears there is no player DOM to
// scan, so the session deals with it before the agent starts.

// challengePresentJS reports whether a Turnstile container is in the DOM.
const challengePresentJS = `document.querySelector('.cf-turnstile') !== null`

// challengeGoneJS polls true once the container has disappeared, covering
// both token auto-fill and the full page reload some sites perform.
const challengeGoneJS = `document.querySelector('.cf-turnstile') === null`

// challengeBoxJS evaluates to the checkbox iframe's center coordinates, or
// null while the interactive widget is not yet visible.
const challengeBoxJS = `(() => {
	const host = document.querySelector('.cf-turnstile iframe');
	if (!host) return null;
	const r = host.getBoundingClientRect();
	if (r.width === 0 || r.height === 0) return null;
	return { x: r.left + r.width / 2, y: r.top + r.height / 2 };
})()`

// PassChallenge waits out a Turnstile interstitial when one is present. Two
// paths race: clicking the interactive checkbox once it renders, and
// passively waiting for the widget to clear on its own. A no-challenge page
// returns immediately.
func (s *Session) PassChallenge(ctx context.Context, solveTimeout time.Duration) error {
	var present bool
	if err := s.Eval(ctx, challengePresentJS, &present); err != nil || !present {
		return nil
	}

	slog.InfoContext(ctx, "challenge interstitial detected, waiting it out")

	solveCtx, cancel := context.WithTimeout(s.ctx, solveTimeout)
	defer cancel()

	done := make(chan struct{}, 2)

	go func() {
		var box map[string]any
		if err := chromedp.Run(solveCtx,
			chromedp.Poll(challengeBoxJS, &box, chromedp.WithPollingTimeout(0)),
		); err != nil {
			return
		}
		x, _ := box["x"].(float64)
		y, _ := box["y"].(float64)

		var gone bool
		if err := chromedp.Run(solveCtx,
			chromedp.MouseClickXY(x, y, chromedp.ButtonLeft),
			chromedp.Poll(challengeGoneJS, &gone, chromedp.WithPollingTimeout(0)),
			chromedp.WaitReady("body"),
		); err != nil {
			slog.DebugContext(ctx, "challenge click path failed", "error", err)
			return
		}
		done <- struct{}{}
	}()

	go func() {
		var gone bool
		if err := chromedp.Run(solveCtx,
			chromedp.Poll(challengeGoneJS, &gone, chromedp.WithPollingTimeout(0)),
			chromedp.WaitReady("body"),
		); err != nil {
			return
		}
		done <- struct{}{}
	}()

	select {
	case <-done:
		slog.InfoContext(ctx, "challenge cleared")
		return nil
	case <-solveCtx.Done():
		return fmt.Errorf("challenge not cleared within %s", solveTimeout)
	}
}
