package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hazyhaar/tabtail/internal/browser"
)

// ErrElementNotFound is returned when a selector (raw or resolved from
// a ref) does not locate an element in the live page.
var ErrElementNotFound = errors.New("snapshot: element not found")

// ActionResult reports what an interaction touched.
type ActionResult struct {
	Tag  string `json:"tag"`
	Text string `json:"text"`
}

// locateJS finds an element by selector, crossing one >>> shadow
// boundary when present. Shared by click and fill so both paths funnel
// into the same lookup.
const locateJS = `
	const locate = (selector) => {
		const idx = selector.indexOf('>>>');
		if (idx === -1) return document.querySelector(selector);
		const host = document.querySelector(selector.slice(0, idx).trim());
		if (!host || !host.shadowRoot) return null;
		return host.shadowRoot.querySelector(selector.slice(idx + 3).trim());
	};
`

const clickJS = `(selector) => {` + locateJS + `
	const el = locate(selector);
	if (!el) return { found: false };
	el.click();
	const text = (el.innerText || el.textContent || el.value || '').trim().slice(0, 60);
	return { found: true, tag: el.tagName.toLowerCase(), text: text };
}`

// fillJS writes through the DOM's native property setter so frameworks
// that instrument the value property still observe the change, then
// dispatches input and change.
const fillJS = `(selector, value) => {` + locateJS + `
	const el = locate(selector);
	if (!el) return { found: false };
	const proto = el.tagName === 'TEXTAREA' ? window.HTMLTextAreaElement.prototype
		: el.tagName === 'SELECT' ? window.HTMLSelectElement.prototype
		: window.HTMLInputElement.prototype;
	const desc = Object.getOwnPropertyDescriptor(proto, 'value');
	if (desc && desc.set) {
		desc.set.call(el, value);
	} else if ('value' in el) {
		el.value = value;
	} else {
		el.textContent = value;
	}
	el.dispatchEvent(new Event('input', { bubbles: true }));
	el.dispatchEvent(new Event('change', { bubbles: true }));
	const name = el.getAttribute('name') || '';
	return { found: true, tag: el.tagName.toLowerCase(), text: name };
}`

// ResolveTarget turns a ref-or-selector pair into a concrete selector.
// A raw selector bypasses the table entirely.
func (b *Builder) ResolveTarget(ref int, selector string) (string, error) {
	if selector != "" {
		return selector, nil
	}
	if ref <= 0 {
		return "", fmt.Errorf("snapshot: need ref or selector")
	}
	return b.table.Resolve(ref)
}

// Click resolves the target and clicks it in-page.
func (b *Builder) Click(ctx context.Context, sess *browser.Session, ref int, selector string) (*ActionResult, error) {
	sel, err := b.ResolveTarget(ref, selector)
	if err != nil {
		return nil, err
	}
	return runAction(ctx, sess, clickJS, sel)
}

// Fill resolves the target and sets its value in-page.
func (b *Builder) Fill(ctx context.Context, sess *browser.Session, ref int, selector, value string) (*ActionResult, error) {
	sel, err := b.ResolveTarget(ref, selector)
	if err != nil {
		return nil, err
	}
	return runAction(ctx, sess, fillJS, sel, value)
}

func runAction(ctx context.Context, sess *browser.Session, fn string, args ...interface{}) (*ActionResult, error) {
	val, err := sess.EvalFunc(ctx, fn, args...)
	if err != nil {
		return nil, fmt.Errorf("snapshot: action: %w", err)
	}

	var out struct {
		Found bool   `json:"found"`
		Tag   string `json:"tag"`
		Text  string `json:"text"`
	}
	data, err := json.Marshal(val.Val())
	if err != nil {
		return nil, fmt.Errorf("snapshot: action result: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("snapshot: action result: %w", err)
	}

	if !out.Found {
		sel := ""
		if len(args) > 0 {
			sel, _ = args[0].(string)
		}
		return nil, fmt.Errorf("%w: %s", ErrElementNotFound, strings.TrimSpace(sel))
	}
	return &ActionResult{Tag: out.Tag, Text: out.Text}, nil
}
