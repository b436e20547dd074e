// Package browser owns the debugging-protocol side of tabtail: one live
// session to one Chrome tab, and the supervisor that keeps it alive
// across disconnects.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"
)

// ErrNoMatchingTarget is returned when tab selection finds nothing.
// Fatal to the requested operation, not to the daemon.
var ErrNoMatchingTarget = errors.New("browser: no matching target")

// ErrNotConnected rejects operations issued while no session is live.
var ErrNotConnected = errors.New("browser: not connected")

// EvalException reports a browser-side evaluation that threw. It is
// distinct from a successful evaluation returning null/undefined.
type EvalException struct {
	Text string
}

func (e *EvalException) Error() string {
	return "browser: evaluation threw: " + e.Text
}

// Session wraps one connection to one tab. It issues protocol commands
// and is the sole producer of raw events for the normalizer. Created
// and torn down only by the Supervisor.
type Session struct {
	browser   *rod.Browser
	page      *rod.Page
	targetURL string
	cancel    context.CancelFunc
}

// TargetURL reports the URL the session attached to.
func (s *Session) TargetURL() string { return s.targetURL }

// Page exposes the underlying Rod page for callers that need direct
// protocol access (snapshots, element screenshots).
func (s *Session) Page() *rod.Page { return s.page }

// Browser exposes the underlying connection for collaborators that need
// a different target, such as the privileged extensions page.
func (s *Session) Browser() *rod.Browser { return s.browser }

// Eval evaluates a raw expression in the page, awaiting promises and
// returning the value by value. A thrown/rejected evaluation surfaces
// as *EvalException; a successful null/undefined result does not.
func (s *Session) Eval(ctx context.Context, expression string) (gson.JSON, error) {
	res, err := proto.RuntimeEvaluate{
		Expression:    expression,
		ReturnByValue: true,
		AwaitPromise:  true,
	}.Call(s.page.Context(ctx))
	if err != nil {
		return gson.New(nil), fmt.Errorf("browser: evaluate: %w", err)
	}
	if res.ExceptionDetails != nil {
		return gson.New(nil), &EvalException{Text: exceptionText(res.ExceptionDetails)}
	}
	if res.Result == nil {
		return gson.New(nil), nil
	}
	return res.Result.Value, nil
}

// EvalFunc evaluates a JS function string with arguments, by value.
// Used for the generated in-page routines (snapshot, click, fill).
func (s *Session) EvalFunc(ctx context.Context, fn string, args ...interface{}) (gson.JSON, error) {
	res, err := s.page.Context(ctx).Eval(fn, args...)
	if err != nil {
		return gson.New(nil), err
	}
	return res.Value, nil
}

// Navigate drives the tab to url and waits for load, bounded by the
// context. A load-wait timeout is logged by callers, not fatal.
func (s *Session) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := s.page.Context(navCtx).Navigate(url); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	// Best effort: SPAs may never fire load.
	_ = s.page.Context(navCtx).WaitLoad()
	return nil
}

// Reload reloads the tab and waits for load, bounded by the context.
func (s *Session) Reload(ctx context.Context) error {
	relCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := (proto.PageReload{}).Call(s.page.Context(relCtx)); err != nil {
		return fmt.Errorf("browser: reload: %w", err)
	}
	_ = s.page.Context(relCtx).WaitLoad()
	return nil
}

// Screenshot captures the viewport as PNG, or a single element when a
// selector is given.
func (s *Session) Screenshot(ctx context.Context, selector string) ([]byte, error) {
	p := s.page.Context(ctx)

	if selector != "" {
		el, err := p.Element(selector)
		if err != nil {
			return nil, fmt.Errorf("browser: screenshot element %q: %w", selector, err)
		}
		data, err := el.Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
		if err != nil {
			return nil, fmt.Errorf("browser: screenshot element %q: %w", selector, err)
		}
		return data, nil
	}

	data, err := p.Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, fmt.Errorf("browser: screenshot: %w", err)
	}
	return data, nil
}

// WaitFor polls for a selector on a fixed 500 ms interval, racing the
// timeout. Both arms tear down deterministically: the ticker stops and
// the context bound below expires, so repeated calls leak nothing.
func (s *Session) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	probe := `(sel) => document.querySelector(sel) !== null`
	for {
		res, err := s.page.Context(waitCtx).Eval(probe, selector)
		if err == nil && res.Value.Bool() {
			return nil
		}
		select {
		case <-waitCtx.Done():
			return fmt.Errorf("browser: wait for %q: %w", selector, waitCtx.Err())
		case <-ticker.C:
		}
	}
}

// URL returns the tab's current URL.
func (s *Session) URL() string {
	info, err := s.page.Info()
	if err != nil {
		return s.targetURL
	}
	return info.URL
}

func (s *Session) close() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.browser != nil {
		_ = s.browser.Close()
	}
}

func exceptionText(d *proto.RuntimeExceptionDetails) string {
	if d.Exception != nil && d.Exception.Description != "" {
		return d.Exception.Description
	}
	if d.Text != "" {
		return d.Text
	}
	return "Unknown exception"
}

// matchTarget reports whether a page URL satisfies the tab selector.
// An empty selector matches any http(s) page.
func matchTarget(url, selector string) bool {
	if selector == "" {
		return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
	}
	return strings.Contains(url, selector)
}
