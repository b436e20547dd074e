// Package extensions is the privileged-page collaborator: it answers
// extension metadata queries by evaluating against chrome://extensions,
// which is the only context where the management APIs are exposed. The
// call shape is fixed; everything here is request/response glue plus
// the before/after error diff.
package extensions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// ErrExtensionNotFound is returned when the queried extension ID is not
// installed.
var ErrExtensionNotFound = errors.New("extensions: extension not found")

// Info is the fixed metadata shape for one installed extension.
type Info struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Version string `json:"version"`
	Enabled bool   `json:"enabled"`
}

// Diff compares the error messages reported before and after a reload.
type Diff struct {
	Added     []string `json:"added"`
	Resolved  []string `json:"resolved"`
	Unchanged int      `json:"unchanged"`
}

const listJS = `() => new Promise((resolve, reject) => {
	if (!window.chrome || !chrome.management || !chrome.management.getAll) {
		reject(new Error('management API unavailable'));
		return;
	}
	chrome.management.getAll((items) => resolve(items
		.filter((i) => i.type === 'extension')
		.map((i) => ({ id: i.id, name: i.name, version: i.version, enabled: i.enabled }))));
})`

const errorsJS = `(id) => new Promise((resolve, reject) => {
	if (!window.chrome || !chrome.developerPrivate || !chrome.developerPrivate.getExtensionsInfo) {
		reject(new Error('developerPrivate API unavailable'));
		return;
	}
	chrome.developerPrivate.getExtensionsInfo((infos) => {
		const info = (infos || []).find((i) => i.id === id);
		if (!info) { resolve(null); return; }
		const msgs = [];
		for (const e of (info.manifestErrors || [])) msgs.push(e.message);
		for (const e of (info.runtimeErrors || [])) msgs.push(e.message);
		resolve(msgs);
	});
})`

const reloadJS = `(id) => new Promise((resolve, reject) => {
	if (!window.chrome || !chrome.developerPrivate || !chrome.developerPrivate.reload) {
		reject(new Error('developerPrivate API unavailable'));
		return;
	}
	chrome.developerPrivate.reload(id, { failQuietly: true }, () => resolve(true));
})`

// Client evaluates the fixed queries on a chrome://extensions page.
type Client struct {
	logger *slog.Logger
}

// NewClient creates the collaborator.
func NewClient(logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{logger: logger}
}

// List returns the installed extensions.
func (c *Client) List(ctx context.Context, b *rod.Browser) ([]Info, error) {
	var out []Info
	err := c.withPrivilegedPage(ctx, b, func(p *rod.Page) error {
		res, err := p.Context(ctx).Eval(listJS)
		if err != nil {
			return fmt.Errorf("extensions: list: %w", err)
		}
		return decode(res.Value.Val(), &out)
	})
	return out, err
}

// Errors returns the error messages currently reported for one
// extension, or ErrExtensionNotFound.
func (c *Client) Errors(ctx context.Context, b *rod.Browser, id string) ([]string, error) {
	var msgs []string
	found := false
	err := c.withPrivilegedPage(ctx, b, func(p *rod.Page) error {
		res, err := p.Context(ctx).Eval(errorsJS, id)
		if err != nil {
			return fmt.Errorf("extensions: errors for %s: %w", id, err)
		}
		if res.Value.Nil() {
			return nil
		}
		found = true
		return decode(res.Value.Val(), &msgs)
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrExtensionNotFound, id)
	}
	if msgs == nil {
		msgs = []string{}
	}
	return msgs, nil
}

// Reload reloads the extension and returns the before/after error diff.
func (c *Client) Reload(ctx context.Context, b *rod.Browser, id string) (*Diff, error) {
	before, err := c.Errors(ctx, b, id)
	if err != nil {
		return nil, err
	}

	err = c.withPrivilegedPage(ctx, b, func(p *rod.Page) error {
		if _, err := p.Context(ctx).Eval(reloadJS, id); err != nil {
			return fmt.Errorf("extensions: reload %s: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Give the extension a moment to boot and re-report.
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(time.Second):
	}

	after, err := c.Errors(ctx, b, id)
	if err != nil {
		return nil, err
	}

	d := DiffMessages(before, after)
	return &d, nil
}

// DiffMessages computes newly appearing messages, messages that
// disappeared, and the count of unchanged ones.
func DiffMessages(before, after []string) Diff {
	beforeSet := make(map[string]bool, len(before))
	for _, m := range before {
		beforeSet[m] = true
	}
	afterSet := make(map[string]bool, len(after))
	for _, m := range after {
		afterSet[m] = true
	}

	d := Diff{Added: []string{}, Resolved: []string{}}
	for _, m := range after {
		if beforeSet[m] {
			d.Unchanged++
		} else {
			d.Added = append(d.Added, m)
		}
	}
	for _, m := range before {
		if !afterSet[m] {
			d.Resolved = append(d.Resolved, m)
		}
	}
	return d
}

// withPrivilegedPage finds an existing chrome://extensions tab or opens
// a throwaway one, runs fn, and closes the page if it was ours.
func (c *Client) withPrivilegedPage(ctx context.Context, b *rod.Browser, fn func(*rod.Page) error) error {
	pages, err := b.Pages()
	if err != nil {
		return fmt.Errorf("extensions: list targets: %w", err)
	}
	for _, p := range pages {
		info, err := p.Info()
		if err != nil {
			continue
		}
		if strings.HasPrefix(info.URL, "chrome://extensions") {
			return fn(p)
		}
	}

	p, err := b.Page(proto.TargetCreateTarget{URL: "chrome://extensions/"})
	if err != nil {
		return fmt.Errorf("extensions: open privileged page: %w", err)
	}
	defer func() { _ = p.Close() }()

	loadCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_ = p.Context(loadCtx).WaitLoad()

	return fn(p)
}

func decode(val interface{}, out interface{}) error {
	data, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("extensions: marshal: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("extensions: decode: %w", err)
	}
	return nil
}
