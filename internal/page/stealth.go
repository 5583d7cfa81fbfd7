package page

import (
	"context"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
)

// Headless-fingerprint masking. Hosts that detect automation refuse to load
// their player at all, which leaves nothing to take over. The scripts run
// before any host script on every new document.
//
// navigator.webdriver and document.hasFocus() are handled at CDP level in
// cdpMask; only gaps that need in-page patching live here.

// maskChromeJS fills in the window.chrome object headless builds omit.
const maskChromeJS = `
if (!window.chrome) {
  window.chrome = {
    runtime: {
      onMessage: { addListener: () => {}, removeListener: () => {} },
      sendMessage: () => {},
      connect: () => ({ onMessage: { addListener: () => {} }, postMessage: () => {} })
    },
    loadTimes: () => ({}),
    csi: () => ({})
  };
}`

// maskPermissionsJS makes the notifications permission report 'prompt'.
// Headless Chrome answers 'denied' without ever asking, a common probe.
const maskPermissionsJS = `
(() => {
  const orig = window.Permissions && Permissions.prototype.query;
  if (!orig) return;
  const patched = function query(params) {
    if (params && params.name === 'notifications') {
      return Promise.resolve({ state: 'prompt', onchange: null });
    }
    return orig.call(this, params);
  };
  const origToString = Function.prototype.toString;
  Function.prototype.toString = function toString() {
    if (this === patched) return 'function query() { [native code] }';
    return origToString.call(this);
  };
  Permissions.prototype.query = patched;
})();`

// cdpMask applies the automation overrides that JS injection cannot cover.
func cdpMask() chromedp.ActionFunc {
	return func(ctx context.Context) error {
		if err := emulation.SetAutomationOverride(false).Do(ctx); err != nil {
			return err
		}
		// document.hasFocus() must hold even when the window is occluded.
		return emulation.SetFocusEmulationEnabled(true).Do(ctx)
	}
}
