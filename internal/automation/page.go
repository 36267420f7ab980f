package automation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/drksbr/browserrelay/internal/humanize"
)

// ErrElementNotFound is returned when no candidate selector matches.
var ErrElementNotFound = errors.New("no element matches selector")

// JSException is an exception thrown by evaluated page script.
type JSException struct {
	Text   string
	Line   int
	Column int
}

func (e *JSException) Error() string {
	return fmt.Sprintf("javascript exception at %d:%d: %s", e.Line, e.Column, e.Text)
}

// page drives one CDP session. It is used by a single task goroutine.
type page struct {
	browser Commander
	session string
	human   *humanize.Humanizer
	poll    time.Duration
	settle  time.Duration
	warn    func(msg string)
	pointer humanize.Point
}

func jsString(s string) string {
	raw, _ := json.Marshal(s)
	return string(raw)
}

// evaluate runs expr in the page and returns result.value.
func (p *page) evaluate(ctx context.Context, expr string, await bool) (gjson.Result, error) {
	params := map[string]any{
		"expression":    expr,
		"returnByValue": true,
		"awaitPromise":  await,
	}
	raw, err := p.browser.SendCommand(ctx, p.session, "Runtime.evaluate", params)
	if err != nil {
		return gjson.Result{}, err
	}
	res := gjson.ParseBytes(raw)
	if ex := res.Get("exceptionDetails"); ex.Exists() {
		text := ex.Get("exception.description").String()
		if text == "" {
			text = ex.Get("text").String()
		}
		return gjson.Result{}, &JSException{
			Text:   text,
			Line:   int(ex.Get("lineNumber").Int()),
			Column: int(ex.Get("columnNumber").Int()),
		}
	}
	return res.Get("result.value"), nil
}

func (p *page) selectorExists(ctx context.Context, selector string) (bool, error) {
	expr := fmt.Sprintf(`(() => { try { return !!document.querySelector(%s); } catch (e) { return false; } })()`, jsString(selector))
	v, err := p.evaluate(ctx, expr, false)
	if err != nil {
		return false, err
	}
	return v.Bool(), nil
}

// resolveSelector returns the first of primary and fallbacks that matches an element.
func (p *page) resolveSelector(ctx context.Context, primary string, fallbacks []string) (string, error) {
	candidates := make([]string, 0, 1+len(fallbacks))
	for _, s := range append([]string{primary}, fallbacks...) {
		if strings.TrimSpace(s) != "" {
			candidates = append(candidates, s)
		}
	}
	for _, sel := range candidates {
		ok, err := p.selectorExists(ctx, sel)
		if err != nil {
			return "", err
		}
		if ok {
			return sel, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrElementNotFound, strings.Join(candidates, ", "))
}

func (p *page) elementRect(ctx context.Context, selector string) (humanize.Rect, bool, error) {
	expr := fmt.Sprintf(`(() => {
  const el = document.querySelector(%s);
  if (!el) return null;
  el.scrollIntoView({block: "center", inline: "center"});
  const r = el.getBoundingClientRect();
  return {x: r.x, y: r.y, width: r.width, height: r.height};
})()`, jsString(selector))
	v, err := p.evaluate(ctx, expr, false)
	if err != nil {
		return humanize.Rect{}, false, err
	}
	if !v.IsObject() {
		return humanize.Rect{}, false, nil
	}
	r := humanize.Rect{
		X:      v.Get("x").Float(),
		Y:      v.Get("y").Float(),
		Width:  v.Get("width").Float(),
		Height: v.Get("height").Float(),
	}
	return r, !r.Empty(), nil
}

func (p *page) mouse(ctx context.Context, typ string, at humanize.Point, pressed bool) error {
	params := map[string]any{
		"type": typ,
		"x":    at.X,
		"y":    at.Y,
	}
	if typ == "mouseMoved" {
		params["button"] = "none"
	} else {
		params["button"] = "left"
		params["clickCount"] = 1
	}
	if pressed {
		params["buttons"] = 1
	}
	_, err := p.browser.SendCommand(ctx, p.session, "Input.dispatchMouseEvent", params)
	return err
}

// click moves the pointer to the element in a few jittered hops and presses
// it. Without a usable bounding box it falls back to element.click().
func (p *page) click(ctx context.Context, selector string) error {
	rect, ok, err := p.elementRect(ctx, selector)
	if err != nil {
		return err
	}
	if !ok {
		_, err := p.evaluate(ctx, fmt.Sprintf(`(() => { const el = document.querySelector(%s); if (el) el.click(); return !!el; })()`, jsString(selector)), false)
		return err
	}

	target := p.human.ClickPoint(rect)
	for _, hop := range p.human.Approach(p.pointer, target) {
		if err := p.mouse(ctx, "mouseMoved", hop, false); err != nil {
			return err
		}
		if err := p.human.Sleep(ctx, p.human.DelayMs(8, 30)); err != nil {
			return err
		}
	}
	if err := p.mouse(ctx, "mouseMoved", target, false); err != nil {
		return err
	}
	if err := p.mouse(ctx, "mousePressed", target, true); err != nil {
		return err
	}
	if err := p.human.Sleep(ctx, p.human.PressHold()); err != nil {
		return err
	}
	if err := p.mouse(ctx, "mouseReleased", target, false); err != nil {
		return err
	}
	p.pointer = target
	return nil
}

type keyEvent struct {
	key  string
	code string
	vk   int
	text string
}

var (
	keyBackspace = keyEvent{key: "Backspace", code: "Backspace", vk: 8}
	keyEnter     = keyEvent{key: "Enter", code: "Enter", vk: 13, text: "\r"}
)

func (p *page) dispatchKey(ctx context.Context, typ string, k keyEvent) error {
	params := map[string]any{"type": typ, "key": k.key}
	if k.code != "" {
		params["code"] = k.code
	}
	if k.vk != 0 {
		params["windowsVirtualKeyCode"] = k.vk
		params["nativeVirtualKeyCode"] = k.vk
	}
	if typ == "char" {
		params["text"] = k.text
	}
	_, err := p.browser.SendCommand(ctx, p.session, "Input.dispatchKeyEvent", params)
	return err
}

// press sends keyDown, char (when the key produces text) and keyUp.
func (p *page) press(ctx context.Context, k keyEvent) error {
	if err := p.dispatchKey(ctx, "keyDown", k); err != nil {
		return err
	}
	if k.text != "" {
		if err := p.dispatchKey(ctx, "char", k); err != nil {
			return err
		}
	}
	return p.dispatchKey(ctx, "keyUp", k)
}

func charKey(ch rune) keyEvent {
	s := string(ch)
	return keyEvent{key: s, text: s}
}

// typeText types value one character at a time, sometimes hitting a wrong
// letter first and correcting it with Backspace.
func (p *page) typeText(ctx context.Context, value string) error {
	for _, ch := range value {
		if wrong, ok := p.human.Typo(ch); ok {
			if err := p.press(ctx, charKey(wrong)); err != nil {
				return err
			}
			if err := p.human.Sleep(ctx, p.human.DelayMs(120, 350)); err != nil {
				return err
			}
			if err := p.press(ctx, keyBackspace); err != nil {
				return err
			}
			if err := p.human.Sleep(ctx, p.human.DelayMs(60, 180)); err != nil {
				return err
			}
		}
		if err := p.press(ctx, charKey(ch)); err != nil {
			return err
		}
		if err := p.human.Sleep(ctx, p.human.Keystroke()); err != nil {
			return err
		}
	}
	return nil
}

// waitForSelector polls until any selector in the comma separated list
// matches. It reports false when the timeout runs out.
func (p *page) waitForSelector(ctx context.Context, selectors string, timeout time.Duration) (bool, error) {
	var list []string
	for _, s := range strings.Split(selectors, ",") {
		if s = strings.TrimSpace(s); s != "" {
			list = append(list, s)
		}
	}
	if len(list) == 0 {
		return true, nil
	}
	raw, _ := json.Marshal(list)
	expr := fmt.Sprintf(`(() => %s.some((s) => { try { return !!document.querySelector(s); } catch (e) { return false; } }))()`, raw)

	attempts := 1
	if p.poll > 0 {
		attempts = max(1, int(timeout/p.poll))
	}
	for i := 0; i < attempts; i++ {
		v, err := p.evaluate(ctx, expr, false)
		var jsErr *JSException
		switch {
		case errors.As(err, &jsErr):
		case err != nil:
			return false, err
		case v.Bool():
			return true, nil
		}
		if i < attempts-1 {
			if err := p.human.Sleep(ctx, p.poll); err != nil {
				return false, err
			}
		}
	}
	return false, nil
}

func (p *page) navigate(ctx context.Context, a Navigate) error {
	if _, err := p.evaluate(ctx, "window.location.href = "+jsString(a.URL), false); err != nil {
		return fmt.Errorf("navigate to %s: %w", a.URL, err)
	}
	if err := p.human.Sleep(ctx, p.settle); err != nil {
		return err
	}
	if a.WaitForSelector == "" {
		return nil
	}
	found, err := p.waitForSelector(ctx, a.WaitForSelector, a.Timeout)
	if err != nil {
		return err
	}
	if !found {
		p.warn(fmt.Sprintf("waitForSelector timed out after %s: %s", a.Timeout, a.WaitForSelector))
	}
	return nil
}

func (p *page) clickAction(ctx context.Context, a Click) error {
	if a.JSExpression != "" {
		_, err := p.evaluate(ctx, a.JSExpression, true)
		return err
	}
	sel, err := p.resolveSelector(ctx, a.Selector, a.FallbackSelectors)
	if err != nil {
		return err
	}
	return p.click(ctx, sel)
}

func (p *page) typeAction(ctx context.Context, a Type) error {
	sel, err := p.resolveSelector(ctx, a.Selector, a.FallbackSelectors)
	if err != nil {
		return err
	}
	if err := p.click(ctx, sel); err != nil {
		return err
	}
	clearExpr := fmt.Sprintf(`(() => {
  const el = document.querySelector(%s);
  if (!el) return false;
  el.focus();
  if ("value" in el) {
    el.value = "";
    el.dispatchEvent(new Event("input", {bubbles: true}));
  }
  return true;
})()`, jsString(sel))
	if _, err := p.evaluate(ctx, clearExpr, false); err != nil {
		return err
	}
	if err := p.typeText(ctx, a.Value); err != nil {
		return err
	}
	if err := p.human.Sleep(ctx, p.human.DelayMs(200, 600)); err != nil {
		return err
	}
	return p.press(ctx, keyEnter)
}

func (p *page) scrollAction(ctx context.Context, a Scroll) error {
	if a.JSExpression != "" {
		_, err := p.evaluate(ctx, a.JSExpression, true)
		return err
	}
	vh, err := p.evaluate(ctx, "window.innerHeight", false)
	if err != nil {
		return err
	}
	for _, move := range p.human.ScrollPlan(a.Iterations, vh.Float()) {
		if move.Up > 0 {
			if err := p.scrollBy(ctx, -move.Up); err != nil {
				return err
			}
			if err := p.human.Sleep(ctx, p.human.DelayMs(150, 400)); err != nil {
				return err
			}
		}
		if err := p.scrollBy(ctx, move.Down); err != nil {
			return err
		}
		if move.Pause > 0 {
			if err := p.human.Sleep(ctx, move.Pause); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *page) scrollBy(ctx context.Context, dy float64) error {
	_, err := p.evaluate(ctx, fmt.Sprintf(`window.scrollBy({top: %d, behavior: "smooth"})`, int(dy)), false)
	return err
}

// run executes one action.
func (p *page) run(ctx context.Context, action Action) error {
	switch a := action.(type) {
	case Navigate:
		return p.navigate(ctx, a)
	case Click:
		return p.clickAction(ctx, a)
	case Type:
		return p.typeAction(ctx, a)
	case Scroll:
		return p.scrollAction(ctx, a)
	case Wait:
		return p.human.Sleep(ctx, a.Duration)
	case Evaluate:
		_, err := p.evaluate(ctx, a.JSExpression, true)
		return err
	default:
		return fmt.Errorf("unsupported action %T", action)
	}
}
