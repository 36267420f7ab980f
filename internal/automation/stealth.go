package automation

import (
	"context"
)

// stealthScript hides the usual automation tells from page scripts.
const stealthScript = `(() => {
  if (window.__brPatched) return;
  Object.defineProperty(window, "__brPatched", {value: true, enumerable: false});

  try { document.hasFocus = () => true; } catch (e) {}

  try {
    const desc = Object.getOwnPropertyDescriptor(Error.prototype, "stack");
    const clean = (s) => typeof s === "string"
      ? s.split("\n").filter((l) => !/puppeteer|devtools|__puppeteer_evaluation_script__|pptr:/i.test(l)).join("\n")
      : s;
    if (!desc || desc.configurable) {
      const prepare = Error.prepareStackTrace;
      Error.prepareStackTrace = (err, frames) => clean(prepare ? prepare(err, frames) : String(err) + "\n" + frames.map((f) => "    at " + f).join("\n"));
    }
  } catch (e) {}

  try {
    const now = performance.now.bind(performance);
    performance.now = () => Math.round((now() + Math.random() * 0.1) * 10) / 10;
  } catch (e) {}

  try {
    window.chrome = window.chrome || {};
    if (!window.chrome.runtime) {
      window.chrome.runtime = {
        connect: () => ({onMessage: {addListener() {}}, postMessage() {}, disconnect() {}}),
        sendMessage: () => {},
        id: undefined,
      };
    }
  } catch (e) {}

  try {
    if (window.Notification && Notification.permission === "denied") {
      Object.defineProperty(Notification, "permission", {get: () => "default"});
    }
  } catch (e) {}
})();`

// injectStealth installs the patch for future documents and the current one.
// Errors are returned for logging only.
func (p *page) injectStealth(ctx context.Context) error {
	params := map[string]any{"source": stealthScript}
	if _, err := p.browser.SendCommand(ctx, p.session, "Page.addScriptToEvaluateOnNewDocument", params); err != nil {
		return err
	}
	_, err := p.evaluate(ctx, stealthScript, false)
	return err
}
