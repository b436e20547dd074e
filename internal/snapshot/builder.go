// Package snapshot produces ref-numbered DOM snapshots and resolves the
// resulting handles back to selectors for interaction commands. The
// traversal itself runs inside the page as a generated routine; this
// package owns its output contract, the ref table, and the in-page
// click/fill actions.
package snapshot

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/tabtail/internal/browser"
)

//go:embed enumerate.js
var enumerateJS string

// Result is one snapshot: the configured watchlist presence map plus
// the ordered, deduplicated, ref-numbered interactive elements.
type Result struct {
	URL       string          `json:"url"`
	Title     string          `json:"title"`
	Watchlist map[string]bool `json:"watchlist"`
	Refs      []Ref           `json:"refs"`
}

// Builder runs snapshots and maintains the ref table between them.
type Builder struct {
	table  *RefTable
	watch  map[string]string
	logger *slog.Logger
}

// NewBuilder creates a Builder with the given named watchlist selectors.
func NewBuilder(watch map[string]string, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	if watch == nil {
		watch = map[string]string{}
	}
	return &Builder{table: NewRefTable(), watch: watch, logger: logger}
}

// Table exposes the ref table for interaction resolution.
func (b *Builder) Table() *RefTable { return b.table }

// Capture runs the in-page enumeration and atomically replaces the ref
// table. Ref numbers restart at 1 on every call; older refs become
// stale immediately.
func (b *Builder) Capture(ctx context.Context, sess *browser.Session) (*Result, error) {
	val, err := sess.EvalFunc(ctx, enumerateJS, b.watch)
	if err != nil {
		return nil, fmt.Errorf("snapshot: enumerate: %w", err)
	}

	var raw struct {
		URL       string          `json:"url"`
		Title     string          `json:"title"`
		Watchlist map[string]bool `json:"watchlist"`
		Elements  []Ref           `json:"elements"`
	}
	data, err := json.Marshal(val.Val())
	if err != nil {
		return nil, fmt.Errorf("snapshot: marshal result: %w", err)
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("snapshot: decode result: %w", err)
	}

	refs := AssignRefs(raw.Elements)
	b.table.Replace(refs)

	b.logger.Debug("snapshot: captured",
		"url", raw.URL, "refs", len(refs), "watchlist", len(raw.Watchlist))

	return &Result{
		URL:       raw.URL,
		Title:     raw.Title,
		Watchlist: raw.Watchlist,
		Refs:      refs,
	}, nil
}

// AssignRefs numbers elements sequentially starting at 1, preserving
// the enumeration order.
func AssignRefs(elements []Ref) []Ref {
	out := make([]Ref, len(elements))
	copy(out, elements)
	for i := range out {
		out[i].Ref = i + 1
	}
	return out
}
