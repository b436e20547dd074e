package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// State is the supervisor's connection state. Exactly one of connected
// and reconnecting is meaningfully active at a time; idle only before
// the first connect and after a clean shutdown.
type State string

const (
	StateIdle         State = "idle"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

// Reconnection backoff: first retry after 1 s, doubling, capped at 10 s.
const (
	backoffInitial = time.Second
	backoffMax     = 10 * time.Second
)

// Bring-up is retried a small fixed number of times with linear backoff
// before surfacing failure to the caller.
const (
	bringupAttempts = 3
	bringupStep     = 500 * time.Millisecond
)

// Hooks are the raw-event callbacks the supervisor subscribes on every
// session it opens. Wired to the event normalizer by the daemon.
type Hooks struct {
	Console       func(*proto.RuntimeConsoleAPICalled)
	Exception     func(*proto.RuntimeExceptionThrown)
	Request       func(*proto.NetworkRequestWillBeSent)
	Response      func(*proto.NetworkResponseReceived)
	LoadingFailed func(*proto.NetworkLoadingFailed)
}

// Config configures the Supervisor.
type Config struct {
	// Addr is the remote-debugging endpoint, "host:port" or a full
	// ws:// control URL.
	Addr string

	// TabFilter selects the first tab whose URL contains it. Empty
	// selects the first http(s) tab.
	TabFilter string

	// CreateMissing opens a fresh page at CreateURL when no tab matches
	// instead of failing with ErrNoMatchingTarget.
	CreateMissing bool
	CreateURL     string

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.CreateURL == "" {
		c.CreateURL = "about:blank"
	}
}

// Status is a point-in-time snapshot of connectivity, safe to hand to
// the HTTP layer.
type Status struct {
	State             State     `json:"state"`
	Connected         bool      `json:"connected"`
	Reconnecting      bool      `json:"reconnecting"`
	TargetURL         string    `json:"targetUrl,omitempty"`
	ConnectedAt       time.Time `json:"connectedAt,omitzero"`
	ReconnectAttempts int       `json:"reconnectAttempts"`
}

// Supervisor keeps exactly one live session to the chosen tab, or is
// actively retrying. All state transitions happen under mu; the
// reconnecting flag forbids overlapping reconnect attempts.
type Supervisor struct {
	cfg   Config
	hooks Hooks

	mu           sync.Mutex
	state        State
	sess         *Session
	gen          int // session generation, guards stale disconnect signals
	reconnecting bool
	attempts     int
	connectedAt  time.Time
	closed       bool

	ctx    context.Context
	cancel context.CancelFunc

	// dial performs one connection attempt. Defaults to connectOnce;
	// swapped in tests to exercise the retry machinery without a browser.
	dial func(context.Context) error
}

// NewSupervisor creates a Supervisor. Call Connect to bring up the
// first session.
func NewSupervisor(cfg Config, hooks Hooks) *Supervisor {
	cfg.defaults()
	ctx, cancel := context.WithCancel(context.Background())
	sv := &Supervisor{
		cfg:    cfg,
		hooks:  hooks,
		state:  StateIdle,
		ctx:    ctx,
		cancel: cancel,
	}
	sv.dial = sv.connectOnce
	return sv
}

// Connect brings up the first session, retrying a bounded number of
// times before surfacing the failure. Never blocks indefinitely.
func (sv *Supervisor) Connect(ctx context.Context) error {
	var err error
	for attempt := 1; attempt <= bringupAttempts; attempt++ {
		if err = sv.dial(ctx); err == nil {
			return nil
		}
		sv.cfg.Logger.Warn("supervisor: connect attempt failed",
			"attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * bringupStep):
		}
	}
	return fmt.Errorf("supervisor: connect after %d attempts: %w", bringupAttempts, err)
}

// Session returns the live session or ErrNotConnected.
func (sv *Supervisor) Session() (*Session, error) {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	if sv.state != StateConnected || sv.sess == nil {
		return nil, ErrNotConnected
	}
	return sv.sess, nil
}

// Status reports current connectivity.
func (sv *Supervisor) Status() Status {
	sv.mu.Lock()
	defer sv.mu.Unlock()

	st := Status{
		State:             sv.state,
		Connected:         sv.state == StateConnected,
		Reconnecting:      sv.state == StateReconnecting,
		ReconnectAttempts: sv.attempts,
	}
	if sv.sess != nil {
		st.TargetURL = sv.sess.URL()
		st.ConnectedAt = sv.connectedAt
	}
	return st
}

// Close shuts the supervisor down cleanly: state returns to idle and no
// reconnection is attempted for the closing session.
func (sv *Supervisor) Close() {
	sv.mu.Lock()
	sv.closed = true
	sv.state = StateIdle
	sess := sv.sess
	sv.sess = nil
	sv.mu.Unlock()

	sv.cancel()
	if sess != nil {
		sess.close()
	}
}

// connectOnce opens a browser connection, selects the target tab,
// enables the event domains, and installs the session.
func (sv *Supervisor) connectOnce(ctx context.Context) error {
	controlURL, err := launcher.ResolveURL(sv.cfg.Addr)
	if err != nil {
		return fmt.Errorf("supervisor: resolve %s: %w", sv.cfg.Addr, err)
	}

	b := rod.New().ControlURL(controlURL).Context(sv.ctx)
	if err := b.Connect(); err != nil {
		return fmt.Errorf("supervisor: connect %s: %w", sv.cfg.Addr, err)
	}

	page, targetURL, err := sv.selectTarget(b)
	if err != nil {
		_ = b.Close()
		return err
	}

	sessCtx, sessCancel := context.WithCancel(sv.ctx)
	sess := &Session{
		browser:   b,
		page:      page,
		targetURL: targetURL,
		cancel:    sessCancel,
	}

	if err := sv.enableDomains(page); err != nil {
		sess.close()
		return err
	}

	sv.mu.Lock()
	if sv.closed {
		sv.mu.Unlock()
		sess.close()
		return fmt.Errorf("supervisor: closed")
	}
	sv.gen++
	gen := sv.gen
	sv.sess = sess
	sv.state = StateConnected
	sv.connectedAt = time.Now()
	sv.mu.Unlock()

	go sv.pumpEvents(sessCtx, sess, gen)

	sv.cfg.Logger.Info("supervisor: connected", "target", targetURL)
	return nil
}

// selectTarget picks the first tab whose URL contains the filter, or
// opens a fresh stealth page when configured to.
func (sv *Supervisor) selectTarget(b *rod.Browser) (*rod.Page, string, error) {
	pages, err := b.Pages()
	if err != nil {
		return nil, "", fmt.Errorf("supervisor: list targets: %w", err)
	}

	for _, p := range pages {
		info, err := p.Info()
		if err != nil {
			continue
		}
		if matchTarget(info.URL, sv.cfg.TabFilter) {
			return p, info.URL, nil
		}
	}

	if sv.cfg.CreateMissing {
		p, err := stealth.Page(b)
		if err != nil {
			return nil, "", fmt.Errorf("supervisor: create page: %w", err)
		}
		if err := p.Navigate(sv.cfg.CreateURL); err != nil {
			_ = p.Close()
			return nil, "", fmt.Errorf("supervisor: navigate new page: %w", err)
		}
		sv.cfg.Logger.Info("supervisor: no matching tab, opened fresh page",
			"url", sv.cfg.CreateURL)
		return p, sv.cfg.CreateURL, nil
	}

	return nil, "", fmt.Errorf("%w: filter %q", ErrNoMatchingTarget, sv.cfg.TabFilter)
}

func (sv *Supervisor) enableDomains(page *rod.Page) error {
	if err := (proto.RuntimeEnable{}).Call(page); err != nil {
		return fmt.Errorf("supervisor: Runtime.enable: %w", err)
	}
	if err := (proto.NetworkEnable{}).Call(page); err != nil {
		return fmt.Errorf("supervisor: Network.enable: %w", err)
	}
	if err := (proto.PageEnable{}).Call(page); err != nil {
		return fmt.Errorf("supervisor: Page.enable: %w", err)
	}
	return nil
}

// pumpEvents delivers raw events to the hooks until the session dies.
// EachEvent's wait function returns when the connection drops or the
// session context is cancelled; only the former triggers reconnection.
func (sv *Supervisor) pumpEvents(ctx context.Context, sess *Session, gen int) {
	wait := sess.page.Context(ctx).EachEvent(
		func(e *proto.RuntimeConsoleAPICalled) {
			if sv.hooks.Console != nil {
				sv.hooks.Console(e)
			}
		},
		func(e *proto.RuntimeExceptionThrown) {
			if sv.hooks.Exception != nil {
				sv.hooks.Exception(e)
			}
		},
		func(e *proto.NetworkRequestWillBeSent) {
			if sv.hooks.Request != nil {
				sv.hooks.Request(e)
			}
		},
		func(e *proto.NetworkResponseReceived) {
			if sv.hooks.Response != nil {
				sv.hooks.Response(e)
			}
		},
		func(e *proto.NetworkLoadingFailed) {
			if sv.hooks.LoadingFailed != nil {
				sv.hooks.LoadingFailed(e)
			}
		},
	)
	wait()

	sv.onDisconnect(gen)
}

// onDisconnect transitions to reconnecting and starts the retry loop,
// unless one is already in flight or the supervisor is closing. The gen
// check drops stale signals from sessions already replaced.
func (sv *Supervisor) onDisconnect(gen int) {
	sv.mu.Lock()
	if sv.closed || gen != sv.gen {
		sv.mu.Unlock()
		return
	}

	sv.cfg.Logger.Warn("supervisor: connection lost")
	if sv.sess != nil {
		sv.sess.close()
		sv.sess = nil
	}
	sv.state = StateReconnecting

	if sv.reconnecting {
		sv.mu.Unlock()
		return
	}
	sv.reconnecting = true
	sv.mu.Unlock()

	go sv.reconnectLoop()
}

// reconnectLoop is the single logical retry loop: wait, attempt, double
// the delay on failure up to the cap. Overlapping loops are forbidden
// by the reconnecting guard.
func (sv *Supervisor) reconnectLoop() {
	delay := backoffInitial
	for {
		select {
		case <-sv.ctx.Done():
			sv.mu.Lock()
			sv.reconnecting = false
			sv.mu.Unlock()
			return
		case <-time.After(delay):
		}

		sv.mu.Lock()
		sv.attempts++
		attempt := sv.attempts
		sv.mu.Unlock()

		err := sv.dial(sv.ctx)
		if err == nil {
			sv.mu.Lock()
			sv.reconnecting = false
			sv.mu.Unlock()
			sv.cfg.Logger.Info("supervisor: reconnected", "attempts", attempt)
			return
		}

		delay = NextDelay(delay)
		sv.cfg.Logger.Warn("supervisor: reconnect failed",
			"attempt", attempt, "next_delay", delay, "error", err)
	}
}

// NextDelay returns the backoff delay following the given one. Pure;
// split out so the doubling-with-cap schedule is testable without a
// browser.
func NextDelay(current time.Duration) time.Duration {
	if current <= 0 {
		return backoffInitial
	}
	next := current * 2
	if next > backoffMax {
		return backoffMax
	}
	return next
}
