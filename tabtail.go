// Package tabtail is a tab-tail daemon: it holds a persistent
// remote-debugging session to one browser tab, normalizes and buffers
// everything the tab reports (console output, uncaught exceptions,
// network lifecycle), survives disconnects, and answers synchronous
// queries over the buffer plus DOM snapshot/interaction commands.
//
// tabtail observes and pokes, it does not interpret. Consumers (humans
// or agents) read the HTTP surface in internal/server.
package tabtail

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/tabtail/internal/browser"
	"github.com/hazyhaar/tabtail/internal/config"
	"github.com/hazyhaar/tabtail/internal/event"
	"github.com/hazyhaar/tabtail/internal/extensions"
	"github.com/hazyhaar/tabtail/internal/journal"
	"github.com/hazyhaar/tabtail/internal/shots"
	"github.com/hazyhaar/tabtail/internal/snapshot"
)

// Config is the top-level configuration. Re-exported from internal.
type Config = config.Config

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}

// DiscoverConfig returns the path of a tabtail.yaml found in the usual
// places, or "".
func DiscoverConfig() string { return config.Discover() }

// DefaultConfig returns a configuration with defaults applied.
func DefaultConfig() *Config { return config.Default() }

// Daemon owns all daemon state: the connection supervisor, the event
// ring, the ref table, and the collaborators. Created once per run,
// torn down on signal. Nothing here is ambient or global.
type Daemon struct {
	cfg    *Config
	logger *slog.Logger

	ring *event.Ring[event.Event]
	norm *event.Normalizer
	sup  *browser.Supervisor
	snap *snapshot.Builder
	shot *shots.Store
	jrnl *journal.Store // nil when disabled
	ext  *extensions.Client

	startedAt time.Time
}

// New wires a Daemon from configuration. Call Start to connect.
func New(cfg *Config, logger *slog.Logger) *Daemon {
	if logger == nil {
		logger = slog.Default()
	}

	d := &Daemon{
		cfg:    cfg,
		logger: logger,
		ring:   event.NewRing[event.Event](cfg.Buffer.Capacity),
		snap:   snapshot.NewBuilder(cfg.Watch, logger),
		shot:   shots.New(cfg.Screenshots.Dir, time.Duration(cfg.Screenshots.TTL), logger),
		ext:    extensions.NewClient(logger),
	}

	d.norm = event.NewNormalizer(d.Record)

	d.sup = browser.NewSupervisor(browser.Config{
		Addr:          cfg.Browser.Remote,
		TabFilter:     cfg.Browser.Tab,
		CreateMissing: cfg.Browser.CreateMissing,
		CreateURL:     cfg.Browser.CreateURL,
		Logger:        logger,
	}, browser.Hooks{
		Console:       d.norm.Console,
		Exception:     d.norm.Exception,
		Request:       d.norm.Request,
		Response:      d.norm.Response,
		LoadingFailed: d.norm.LoadingFailed,
	})

	return d
}

// Record stores an event as if the session reported it: into the ring,
// and into the journal when one is open. The normalizer is the usual
// caller.
func (d *Daemon) Record(e event.Event) {
	d.ring.Push(e)
	if d.jrnl != nil {
		d.jrnl.Record(e)
	}
}

// Start opens the journal (if configured) and brings up the first
// session. A connect failure is fatal here; later disconnects are not.
func (d *Daemon) Start(ctx context.Context) error {
	d.startedAt = time.Now()

	if d.cfg.Journal.Path != "" {
		j, err := journal.Open(d.cfg.Journal.Path, d.logger)
		if err != nil {
			return fmt.Errorf("tabtail: open journal: %w", err)
		}
		d.jrnl = j
	}

	if err := d.sup.Connect(ctx); err != nil {
		return fmt.Errorf("tabtail: connect: %w", err)
	}

	d.logger.Info("tabtail: started",
		"browser", d.cfg.Browser.Remote, "tab", d.cfg.Browser.Tab,
		"capacity", d.cfg.Buffer.Capacity)
	return nil
}

// Stop shuts everything down cleanly.
func (d *Daemon) Stop() {
	d.sup.Close()
	if d.jrnl != nil {
		if err := d.jrnl.Close(); err != nil {
			d.logger.Warn("tabtail: close journal", "error", err)
		}
	}
	d.logger.Info("tabtail: stopped")
}

// StatusReport is the /status payload.
type StatusReport struct {
	browser.Status
	Uptime      string         `json:"uptime"`
	BufferSize  int            `json:"bufferSize"`
	EventCounts map[string]int `json:"eventCounts"`
	ExtensionID string         `json:"extensionId,omitempty"`
}

// Status reports connectivity and buffer health.
func (d *Daemon) Status() StatusReport {
	return StatusReport{
		Status:      d.sup.Status(),
		Uptime:      time.Since(d.startedAt).Round(time.Second).String(),
		BufferSize:  d.ring.Len(),
		EventCounts: event.Counts(d.ring.Query(nil, 0)),
		ExtensionID: d.cfg.Extension.ID,
	}
}

// Query returns buffered events matching the filter, oldest first; with
// limit > 0 the most recent limit matches. Repeated recent errors are
// annotated on the returned copies. Annotation runs over the whole
// filtered set before the limit so a lone surviving entry still carries
// its repeat note.
func (d *Daemon) Query(f event.Filter, limit int) []event.Event {
	events := event.AnnotateRepeats(d.ring.Query(f, 0), time.Now())
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events
}

// Clear empties the event buffer. The ref table is left alone: refs
// stay valid until the next snapshot, not the next clear.
func (d *Daemon) Clear() {
	d.ring.Clear()
}

// Session returns the live session or browser.ErrNotConnected.
func (d *Daemon) Session() (*browser.Session, error) {
	return d.sup.Session()
}

// Snapshot captures the DOM, replacing the ref table.
func (d *Daemon) Snapshot(ctx context.Context) (*snapshot.Result, error) {
	sess, err := d.Session()
	if err != nil {
		return nil, err
	}
	return d.snap.Capture(ctx, sess)
}

// Navigate drives the tab to url.
func (d *Daemon) Navigate(ctx context.Context, url string) error {
	sess, err := d.Session()
	if err != nil {
		return err
	}
	return sess.Navigate(ctx, url)
}

// Reload reloads the tab.
func (d *Daemon) Reload(ctx context.Context) error {
	sess, err := d.Session()
	if err != nil {
		return err
	}
	return sess.Reload(ctx)
}

// Eval evaluates a raw expression in the page and returns its value as
// a JSON-compatible Go value. A thrown evaluation is an error; a null
// or undefined result is not.
func (d *Daemon) Eval(ctx context.Context, expression string) (interface{}, error) {
	sess, err := d.Session()
	if err != nil {
		return nil, err
	}
	val, err := sess.Eval(ctx, expression)
	if err != nil {
		return nil, err
	}
	return val.Val(), nil
}

// Click resolves a ref or raw selector and clicks the element.
func (d *Daemon) Click(ctx context.Context, ref int, selector string) (*snapshot.ActionResult, error) {
	sess, err := d.Session()
	if err != nil {
		return nil, err
	}
	return d.snap.Click(ctx, sess, ref, selector)
}

// Fill resolves a ref or raw selector and sets the element's value.
func (d *Daemon) Fill(ctx context.Context, ref int, selector, value string) (*snapshot.ActionResult, error) {
	sess, err := d.Session()
	if err != nil {
		return nil, err
	}
	return d.snap.Fill(ctx, sess, ref, selector, value)
}

// Screenshot captures the viewport (or one element) and persists it,
// returning the file path.
func (d *Daemon) Screenshot(ctx context.Context, selector string) (string, error) {
	sess, err := d.Session()
	if err != nil {
		return "", err
	}
	data, err := sess.Screenshot(ctx, selector)
	if err != nil {
		return "", err
	}
	return d.shot.Save(data)
}

// Extensions lists installed extensions via the privileged collaborator.
func (d *Daemon) Extensions(ctx context.Context) ([]extensions.Info, error) {
	sess, err := d.Session()
	if err != nil {
		return nil, err
	}
	return d.ext.List(ctx, sess.Browser())
}

// ExtensionErrors returns the error messages reported for one extension.
func (d *Daemon) ExtensionErrors(ctx context.Context, id string) ([]string, error) {
	sess, err := d.Session()
	if err != nil {
		return nil, err
	}
	return d.ext.Errors(ctx, sess.Browser(), id)
}

// ReloadExtension reloads an extension and returns the before/after
// error-message diff.
func (d *Daemon) ReloadExtension(ctx context.Context, id string) (*extensions.Diff, error) {
	sess, err := d.Session()
	if err != nil {
		return nil, err
	}
	return d.ext.Reload(ctx, sess.Browser(), id)
}

// WaitForBody polls until the document body exists, used before
// snapshotting a freshly navigated page.
func (d *Daemon) WaitForBody(ctx context.Context) error {
	sess, err := d.Session()
	if err != nil {
		return err
	}
	return sess.WaitFor(ctx, "body", 10*time.Second)
}
