// Package page owns the browser session the agent attaches to: allocator
// and task context lifecycle, script injection, JS evaluation, element
// tagging, snapshots, and synthetic clicks into the host DOM.
package page

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/merov/graft/internal/app"
)

//go:embed js/companion.js
var companionJS string

//go:embed js/bridge.js
var bridgeJS string

//go:embed js/tagger.js
var taggerJS string

// MessageBinding is the in-page binding name the cross-frame bridge calls
// when the embedding page posts a message to the agent.
const MessageBinding = "__graftMessage__"

// Session is a live attachment to the host player page.
type Session struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	pageURL     *url.URL
	sniffer     Sniffer
}

// Open launches the browser, installs the companion and bridge scripts so
// they run before any host script on every new document, and navigates to
// the player page.
func Open(ctx context.Context, cfg app.Browser, targetURL string) (*Session, error) {
	u, err := url.Parse(targetURL)
	if err != nil {
		return nil, fmt.Errorf("parsing target URL: %w", err)
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocatorOpts(cfg)...)

	taskCtx, taskCancel := chromedp.NewContext(allocCtx)

	s := &Session{
		ctx:         taskCtx,
		cancel:      taskCancel,
		allocCancel: allocCancel,
		pageURL:     u,
	}

	chromedp.ListenTarget(taskCtx, s.sniffer.listen)

	err = chromedp.Run(taskCtx,
		runtime.Enable(),
		network.Enable(),
		cdpMask(),
		installScript(maskChromeJS),
		installScript(maskPermissionsJS),
		installScript(companionJS),
		installScript(bridgeJS),
		chromedp.Navigate(targetURL),
		chromedp.WaitReady("body"),
	)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("navigating to %s: %w", targetURL, err)
	}

	if err := s.PassChallenge(ctx, cfg.Timeout); err != nil {
		s.Close()
		return nil, fmt.Errorf("clearing interstitial: %w", err)
	}

	slog.InfoContext(ctx, "attached to player page", "url", targetURL)
	return s, nil
}

// StreamHeaders returns the request headers the page sent for a stream URL,
// for refetching manifests the CDN gates behind referer or cookie checks.
func (s *Session) StreamHeaders(rawURL string) map[string]string {
	return s.sniffer.Headers(rawURL)
}

// installScript schedules a script to run on every new document, before any
// host script. The host re-renders and navigates without notice, so
// one-shot injection is never enough.
func installScript(src string) chromedp.ActionFunc {
	return func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(src).Do(ctx)
		return err
	}
}

// Context exposes the chromedp task context for event listeners.
func (s *Session) Context() context.Context {
	return s.ctx
}

// Path returns the page path used to key per-path persisted state.
func (s *Session) Path() string {
	return s.pageURL.Path
}

// Close tears down the browser and allocator.
func (s *Session) Close() {
	s.cancel()
	s.allocCancel()
}

// Listen registers a raw CDP event handler on the session.
func (s *Session) Listen(fn func(ev any)) {
	chromedp.ListenTarget(s.ctx, fn)
}

// AddBinding exposes a named in-page function that forwards its string
// argument as a Runtime.bindingCalled event.
func (s *Session) AddBinding(name string) error {
	return chromedp.Run(s.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return runtime.AddBinding(name).Do(ctx)
	}))
}

// Eval evaluates JS in the page. A nil out discards the result.
func (s *Session) Eval(ctx context.Context, js string, out any) error {
	return chromedp.Run(s.ctx, chromedp.Evaluate(js, out))
}

// Exec evaluates JS and discards the result.
func (s *Session) Exec(ctx context.Context, js string) error {
	return s.Eval(ctx, js, nil)
}

// Snapshot tags every untagged element with a node id, then returns the
// document's outer HTML for heuristic scanning.
func (s *Session) Snapshot(ctx context.Context) (string, error) {
	var tagged int
	if err := s.Eval(ctx, taggerJS, &tagged); err != nil {
		return "", fmt.Errorf("tagging elements: %w", err)
	}

	var html string
	if err := chromedp.Run(s.ctx, chromedp.OuterHTML("html", &html)); err != nil {
		return "", fmt.Errorf("capturing document: %w", err)
	}

	slog.DebugContext(ctx, "snapshot captured", "tagged", tagged, "bytes", len(html))
	return html, nil
}

// ClickNode dispatches a click on the element carrying the given node id.
// Returns false when the element is no longer attached to the document —
// the caller is expected to re-resolve by label and retry once.
func (s *Session) ClickNode(ctx context.Context, nodeID string) (bool, error) {
	js := fmt.Sprintf(`(() => {
		const el = document.querySelector('[data-graft-id=%q]');
		if (!el || !el.isConnected) return false;
		el.click();
		return true;
	})()`, nodeID)

	var clicked bool
	if err := s.Eval(ctx, js, &clicked); err != nil {
		return false, fmt.Errorf("dispatching click on %s: %w", nodeID, err)
	}
	return clicked, nil
}

// RemoveNode detaches the element carrying the given node id from the
// document. Used when the host injects a replacement media element: the
// agent keeps its one persistent element and discards the host's.
func (s *Session) RemoveNode(ctx context.Context, nodeID string) error {
	js := fmt.Sprintf(`(() => {
		const el = document.querySelector('[data-graft-id=%q]');
		if (el && el.isConnected) el.remove();
	})()`, nodeID)
	return s.Exec(ctx, js)
}

// AnnounceReady posts the player-ready notification to the embedding page.
func (s *Session) AnnounceReady(ctx context.Context) error {
	return s.Exec(ctx, `(() => {
		try { window.top.postMessage({ type: 'graft:ready' }, '*'); } catch (e) {}
	})()`)
}

func allocatorOpts(cfg app.Browser) []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.ExecPath(cfg.ChromePath),

		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,

		chromedp.Flag("no-sandbox", cfg.NoSandbox),

		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("disable-background-timer-throttling", true),
		chromedp.Flag("disable-backgrounding-occluded-windows", true),
		chromedp.Flag("disable-renderer-backgrounding", true),

		// Playback must be able to start without a user gesture after an
		// episode advance.
		chromedp.Flag("autoplay-policy", "no-user-gesture-required"),

		chromedp.WindowSize(1920, 1080),
	}
	if cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	}
	return opts
}
