// Package event defines the canonical event model for tabtail: normalized
// console, exception, and network lifecycle events, the fixed-capacity ring
// they live in, and the query helpers layered on top.
package event

import "time"

// Kind discriminates the canonical event union.
type Kind string

const (
	KindConsole      Kind = "console"
	KindException    Kind = "exception"
	KindRequest      Kind = "request"
	KindResponse     Kind = "response"
	KindNetworkError Kind = "network_error"
)

// Source classifies where an event originated, inferred from the call
// stack the browser attached to it. "unknown" is a legitimate outcome:
// CDP does not always ship stack traces.
type Source string

const (
	SourcePage      Source = "page"
	SourceExtension Source = "extension"
	SourceUnknown   Source = "unknown"
)

// Event is a buffered canonical event. Fields not used by a given Kind
// are zero and omitted from JSON. Events are immutable once pushed; the
// query layer annotates copies, never the stored value.
type Event struct {
	Kind      Kind      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Source    Source    `json:"source"`
	Label     string    `json:"label,omitempty"` // reserved for filter tagging

	// console
	Level string `json:"level,omitempty"`
	// console + exception
	Text string `json:"text,omitempty"`
	// request + response + network_error
	URL string `json:"url,omitempty"`
	// request
	Method string `json:"method,omitempty"`
	// response
	Status int `json:"status,omitempty"`
	// network_error
	Error        string `json:"error,omitempty"`
	ResourceType string `json:"resourceType,omitempty"`

	// Note carries the frequency annotation ("repeated Nx in 30s").
	// Only ever set on query-result copies.
	Note string `json:"note,omitempty"`
}

// IsError reports whether the event counts as an error: exceptions,
// network failures, console errors, and responses with status >= 400.
func (e Event) IsError() bool {
	switch e.Kind {
	case KindException, KindNetworkError:
		return true
	case KindConsole:
		return e.Level == "error"
	case KindResponse:
		return e.Status >= 400
	}
	return false
}

// SearchText returns the event's textual field, or "" for events that
// have none. Events without text never match a pattern filter; URLs are
// deliberately not searchable.
func (e Event) SearchText() string {
	switch e.Kind {
	case KindConsole, KindException:
		return e.Text
	}
	return ""
}
