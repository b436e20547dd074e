package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/tabtail"
	"github.com/hazyhaar/tabtail/internal/event"
)

// newTestServer builds a server around a daemon that never connected:
// history endpoints still work from the buffer, live-page operations
// must be rejected uniformly.
func newTestServer(t *testing.T) (*Server, *tabtail.Daemon) {
	t.Helper()
	d := tabtail.New(tabtail.DefaultConfig(), nil)
	return New(d, "127.0.0.1:0", nil), d
}

func doJSON(t *testing.T, h http.Handler, method, target, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	out := map[string]interface{}{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("%s %s: non-JSON body %q", method, target, rec.Body.String())
	}
	return rec, out
}

func TestStatus_Disconnected(t *testing.T) {
	s, _ := newTestServer(t)
	rec, out := doJSON(t, s.Handler(), "GET", "/status", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status code: got %d", rec.Code)
	}
	if out["connected"] != false {
		t.Errorf("connected: got %v, want false", out["connected"])
	}
	if _, ok := out["eventCounts"]; !ok {
		t.Error("status should include eventCounts")
	}
}

func TestErrors_FilteredFromBuffer(t *testing.T) {
	s, d := newTestServer(t)
	now := time.Now()

	d.Record(event.Event{Kind: event.KindConsole, Level: "log", Text: "fine", Timestamp: now, Source: event.SourcePage})
	d.Record(event.Event{Kind: event.KindConsole, Level: "error", Text: "bad page", Timestamp: now, Source: event.SourcePage})
	d.Record(event.Event{Kind: event.KindException, Text: "boom", Timestamp: now, Source: event.SourceExtension})
	d.Record(event.Event{Kind: event.KindResponse, Status: 500, URL: "https://x/", Timestamp: now, Source: event.SourceUnknown})

	rec, out := doJSON(t, s.Handler(), "GET", "/errors", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("code: %d", rec.Code)
	}
	if out["total"].(float64) != 3 {
		t.Errorf("total errors: got %v, want 3", out["total"])
	}

	_, out = doJSON(t, s.Handler(), "GET", "/errors?source=extension", "")
	if out["total"].(float64) != 1 {
		t.Errorf("extension errors: got %v, want 1", out["total"])
	}

	_, out = doJSON(t, s.Handler(), "GET", "/errors?last=1", "")
	events := out["events"].([]interface{})
	if len(events) != 1 {
		t.Fatalf("last=1: got %d events", len(events))
	}
	// The last matching error is the 500 response, not the first error.
	last := events[0].(map[string]interface{})
	if last["type"] != "response" {
		t.Errorf("last error: got type %v, want response", last["type"])
	}
}

func TestErrors_LimitKeepsRepeatNote(t *testing.T) {
	s, d := newTestServer(t)
	now := time.Now()

	for i := 0; i < 3; i++ {
		d.Record(event.Event{
			Kind: event.KindConsole, Level: "error", Text: "boom",
			Timestamp: now.Add(time.Duration(i-3) * time.Second), Source: event.SourcePage,
		})
	}

	// Truncating to the newest entry must not strip the repeat note its
	// dropped siblings earned it.
	_, out := doJSON(t, s.Handler(), "GET", "/errors?last=1", "")
	events := out["events"].([]interface{})
	if len(events) != 1 {
		t.Fatalf("last=1: got %d events", len(events))
	}
	last := events[0].(map[string]interface{})
	if last["note"] != "repeated 3x in 30s" {
		t.Errorf("note: got %v, want %q", last["note"], "repeated 3x in 30s")
	}
}

func TestErrorsSummary(t *testing.T) {
	s, d := newTestServer(t)
	d.Record(event.Event{Kind: event.KindException, Text: "boom", Timestamp: time.Now(), Source: event.SourcePage})

	_, out := doJSON(t, s.Handler(), "GET", "/errors/summary", "")
	if out["total"].(float64) != 1 {
		t.Errorf("total: got %v", out["total"])
	}
	if !strings.Contains(out["summary"].(string), "boom") {
		t.Errorf("summary: got %q", out["summary"])
	}
}

func TestConsole_TextQuery(t *testing.T) {
	s, d := newTestServer(t)
	now := time.Now()
	d.Record(event.Event{Kind: event.KindConsole, Level: "log", Text: "hello world", Timestamp: now, Source: event.SourcePage})
	d.Record(event.Event{Kind: event.KindConsole, Level: "log", Text: "other", Timestamp: now, Source: event.SourcePage})
	d.Record(event.Event{Kind: event.KindRequest, Method: "GET", URL: "https://hello/", Timestamp: now, Source: event.SourcePage})

	_, out := doJSON(t, s.Handler(), "GET", "/console?q=hello", "")
	if out["total"].(float64) != 1 {
		t.Errorf("q=hello: got %v matches, want 1 (URLs are not searchable)", out["total"])
	}
}

func TestNetwork_StatusFilter(t *testing.T) {
	s, d := newTestServer(t)
	now := time.Now()
	d.Record(event.Event{Kind: event.KindResponse, Status: 200, URL: "https://x/ok", Timestamp: now, Source: event.SourceUnknown})
	d.Record(event.Event{Kind: event.KindResponse, Status: 404, URL: "https://x/miss", Timestamp: now, Source: event.SourceUnknown})
	d.Record(event.Event{Kind: event.KindNetworkError, Error: "net::ERR_FAILED", URL: "https://x/dead", Timestamp: now, Source: event.SourceUnknown})

	_, out := doJSON(t, s.Handler(), "GET", "/network?status=4xx,5xx", "")
	if out["total"].(float64) != 2 {
		t.Errorf("4xx,5xx: got %v, want 2 (404 + network_error)", out["total"])
	}

	_, out = doJSON(t, s.Handler(), "GET", "/network", "")
	if out["total"].(float64) != 3 {
		t.Errorf("unfiltered: got %v, want 3", out["total"])
	}
}

func TestClear(t *testing.T) {
	s, d := newTestServer(t)
	d.Record(event.Event{Kind: event.KindConsole, Level: "log", Text: "x", Timestamp: time.Now(), Source: event.SourcePage})

	rec, _ := doJSON(t, s.Handler(), "POST", "/clear", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("clear: %d", rec.Code)
	}

	_, out := doJSON(t, s.Handler(), "GET", "/console", "")
	if out["total"].(float64) != 0 {
		t.Errorf("after clear: got %v events", out["total"])
	}
}

func TestLiveOperations_RejectedWhileDisconnected(t *testing.T) {
	s, _ := newTestServer(t)

	cases := []struct {
		method, target, body string
	}{
		{"POST", "/eval", `{"expression":"1+1"}`},
		{"POST", "/navigate", `{"url":"https://example.com"}`},
		{"POST", "/reload-page", ""},
		{"POST", "/click", `{"selector":"#go"}`},
		{"POST", "/fill", `{"selector":"#q","value":"x"}`},
		{"GET", "/snapshot", ""},
		{"GET", "/screenshot", ""},
		{"GET", "/extensions", ""},
		{"GET", "/extension/abc/errors", ""},
		{"POST", "/reload-ext/abc", ""},
	}

	for _, tc := range cases {
		rec, out := doJSON(t, s.Handler(), tc.method, tc.target, tc.body)
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s %s: got %d, want 503", tc.method, tc.target, rec.Code)
		}
		if out["error"] != "not connected" {
			t.Errorf("%s %s: error=%v, want \"not connected\"", tc.method, tc.target, out["error"])
		}
	}
}

func TestBadRequests(t *testing.T) {
	s, _ := newTestServer(t)

	rec, _ := doJSON(t, s.Handler(), "POST", "/eval", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("eval without expression: got %d, want 400", rec.Code)
	}

	rec, _ = doJSON(t, s.Handler(), "POST", "/navigate", `{"inspect":true}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("navigate without url: got %d, want 400", rec.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	s, _ := newTestServer(t)

	rec, out := doJSON(t, s.Handler(), "GET", "/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown route: got %d, want 404", rec.Code)
	}
	if _, ok := out["error"]; !ok {
		t.Error("not-found response should carry an error field")
	}

	rec, _ = doJSON(t, s.Handler(), "DELETE", "/status", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("wrong method: got %d, want 404", rec.Code)
	}
}
