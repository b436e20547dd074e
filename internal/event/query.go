package event

import (
	"strconv"
	"strings"
	"time"
)

// Filter is a composable event predicate. Filters combine with And; a
// nil Filter matches everything.
type Filter func(Event) bool

// And combines filters conjunctively, skipping nil entries. Returns nil
// when every input is nil so Ring.Query can fast-path.
func And(filters ...Filter) Filter {
	active := make([]Filter, 0, len(filters))
	for _, f := range filters {
		if f != nil {
			active = append(active, f)
		}
	}
	if len(active) == 0 {
		return nil
	}
	return func(e Event) bool {
		for _, f := range active {
			if !f(e) {
				return false
			}
		}
		return true
	}
}

// Errors matches the error classification: exceptions, network failures,
// console errors, responses with status >= 400.
func Errors() Filter {
	return Event.IsError
}

// Kinds matches any of the given kinds.
func Kinds(kinds ...Kind) Filter {
	return func(e Event) bool {
		for _, k := range kinds {
			if e.Kind == k {
				return true
			}
		}
		return false
	}
}

// FromSource matches events classified with the given source.
func FromSource(src Source) Filter {
	return func(e Event) bool { return e.Source == src }
}

// Since matches events with timestamps at or after now minus the window.
func Since(now time.Time, window time.Duration) Filter {
	cutoff := now.Add(-window)
	return func(e Event) bool { return !e.Timestamp.Before(cutoff) }
}

// TextContains substring-matches the event's textual field. Events with
// no textual field (network lifecycle) never match.
func TextContains(pattern string) Filter {
	return func(e Event) bool {
		txt := e.SearchText()
		return txt != "" && strings.Contains(txt, pattern)
	}
}

// StatusFilter parses a comma-separated status token list ("404",
// "4xx,5xx") into a filter over network events. An exact token matches
// that status; an "Nxx" wildcard matches every status whose leading
// digit is N. network_error events always match an active status filter
// since they carry no status. Non-network events never match.
func StatusFilter(tokens string) Filter {
	type rng struct{ lo, hi int }
	var ranges []rng
	for _, tok := range strings.Split(tokens, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if len(tok) == 3 && strings.HasSuffix(tok, "xx") {
			if d := int(tok[0] - '0'); d >= 1 && d <= 5 {
				ranges = append(ranges, rng{d * 100, d*100 + 99})
			}
			continue
		}
		if n, err := strconv.Atoi(tok); err == nil {
			ranges = append(ranges, rng{n, n})
		}
	}
	if len(ranges) == 0 {
		return nil
	}
	return func(e Event) bool {
		switch e.Kind {
		case KindNetworkError:
			return true
		case KindResponse:
			for _, r := range ranges {
				if e.Status >= r.lo && e.Status <= r.hi {
					return true
				}
			}
		}
		return false
	}
}

// repeatWindow and repeatThreshold govern the frequency annotation:
// console-error and exception events sharing exact text, occurring at
// least repeatThreshold times within repeatWindow of now, get tagged.
const (
	repeatWindow    = 30 * time.Second
	repeatThreshold = 3
)

// AnnotateRepeats tags repeated recent errors with "repeated <n>x in 30s".
// Purely additive: input events are copied, never suppressed or mutated
// in place, and only the copies carry the note.
func AnnotateRepeats(events []Event, now time.Time) []Event {
	cutoff := now.Add(-repeatWindow)
	counts := make(map[string]int)
	for _, e := range events {
		if repeatable(e) && !e.Timestamp.Before(cutoff) {
			counts[e.Text]++
		}
	}

	out := make([]Event, len(events))
	copy(out, events)
	for i, e := range out {
		if !repeatable(e) || e.Timestamp.Before(cutoff) {
			continue
		}
		if n := counts[e.Text]; n >= repeatThreshold {
			out[i].Note = "repeated " + strconv.Itoa(n) + "x in 30s"
		}
	}
	return out
}

func repeatable(e Event) bool {
	return e.Kind == KindException || (e.Kind == KindConsole && e.Level == "error")
}

// Counts tallies held events per kind plus the error total. Used by the
// status endpoint.
func Counts(events []Event) map[string]int {
	c := map[string]int{
		string(KindConsole):      0,
		string(KindException):    0,
		string(KindRequest):      0,
		string(KindResponse):     0,
		string(KindNetworkError): 0,
	}
	errs := 0
	for _, e := range events {
		c[string(e.Kind)]++
		if e.IsError() {
			errs++
		}
	}
	c["errors"] = errs
	return c
}
