package event

import (
	"testing"

	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"
)

func collectorSink() (*[]Event, func(Event)) {
	var out []Event
	return &out, func(e Event) { out = append(out, e) }
}

func TestFormatRemoteObject(t *testing.T) {
	cases := []struct {
		name string
		obj  *proto.RuntimeRemoteObject
		want string
	}{
		{
			"string passthrough",
			&proto.RuntimeRemoteObject{Type: proto.RuntimeRemoteObjectTypeString, Value: gson.New("hello")},
			"hello",
		},
		{
			"number",
			&proto.RuntimeRemoteObject{Type: proto.RuntimeRemoteObjectTypeNumber, Value: gson.New(42)},
			"42",
		},
		{
			"boolean",
			&proto.RuntimeRemoteObject{Type: proto.RuntimeRemoteObjectTypeBoolean, Value: gson.New(true)},
			"true",
		},
		{
			"undefined literal",
			&proto.RuntimeRemoteObject{Type: proto.RuntimeRemoteObjectTypeUndefined},
			"undefined",
		},
		{
			"null",
			&proto.RuntimeRemoteObject{
				Type:    proto.RuntimeRemoteObjectTypeObject,
				Subtype: proto.RuntimeRemoteObjectSubtypeNull,
			},
			"null",
		},
		{
			"object with preview",
			&proto.RuntimeRemoteObject{
				Type: proto.RuntimeRemoteObjectTypeObject,
				Preview: &proto.RuntimeObjectPreview{
					Properties: []*proto.RuntimePropertyPreview{
						{Name: "a", Value: "1"},
						{Name: "b", Value: "x"},
					},
				},
			},
			"{a: 1, b: x}",
		},
		{
			"object description fallback",
			&proto.RuntimeRemoteObject{
				Type:        proto.RuntimeRemoteObjectTypeObject,
				Description: "Window",
			},
			"Window",
		},
	}

	for _, tc := range cases {
		if got := FormatRemoteObject(tc.obj); got != tc.want {
			t.Errorf("%s: got %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestConsole_JoinsArgsAndMapsWarn(t *testing.T) {
	out, sink := collectorSink()
	n := NewNormalizer(sink)

	n.Console(&proto.RuntimeConsoleAPICalled{
		Type: proto.RuntimeConsoleAPICalledTypeWarning,
		Args: []*proto.RuntimeRemoteObject{
			{Type: proto.RuntimeRemoteObjectTypeString, Value: gson.New("count:")},
			{Type: proto.RuntimeRemoteObjectTypeNumber, Value: gson.New(3)},
		},
	})

	if len(*out) != 1 {
		t.Fatalf("got %d events, want 1", len(*out))
	}
	e := (*out)[0]
	if e.Kind != KindConsole || e.Level != "warn" {
		t.Errorf("got kind=%s level=%s, want console/warn", e.Kind, e.Level)
	}
	if e.Text != "count: 3" {
		t.Errorf("text: got %q, want %q", e.Text, "count: 3")
	}
}

func TestConsole_SourceClassification(t *testing.T) {
	cases := []struct {
		name  string
		stack *proto.RuntimeStackTrace
		want  Source
	}{
		{"no stack", nil, SourceUnknown},
		{
			"page frame",
			&proto.RuntimeStackTrace{CallFrames: []*proto.RuntimeCallFrame{
				{URL: "https://example.com/app.js"},
			}},
			SourcePage,
		},
		{
			"extension frame anywhere",
			&proto.RuntimeStackTrace{CallFrames: []*proto.RuntimeCallFrame{
				{URL: "https://example.com/app.js"},
				{URL: "chrome-extension://abcdef/content.js"},
			}},
			SourceExtension,
		},
	}

	for _, tc := range cases {
		out, sink := collectorSink()
		n := NewNormalizer(sink)
		n.Console(&proto.RuntimeConsoleAPICalled{
			Type:       proto.RuntimeConsoleAPICalledTypeLog,
			StackTrace: tc.stack,
		})
		if got := (*out)[0].Source; got != tc.want {
			t.Errorf("%s: source=%s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestException_FallbackChain(t *testing.T) {
	cases := []struct {
		name    string
		details *proto.RuntimeExceptionDetails
		want    string
	}{
		{
			"description preferred",
			&proto.RuntimeExceptionDetails{
				Text:      "Uncaught",
				Exception: &proto.RuntimeRemoteObject{Description: "TypeError: x is not a function"},
			},
			"TypeError: x is not a function",
		},
		{
			"text fallback",
			&proto.RuntimeExceptionDetails{Text: "Uncaught something"},
			"Uncaught something",
		},
		{
			"fixed fallback",
			&proto.RuntimeExceptionDetails{},
			"Unknown exception",
		},
	}

	for _, tc := range cases {
		out, sink := collectorSink()
		n := NewNormalizer(sink)
		n.Exception(&proto.RuntimeExceptionThrown{ExceptionDetails: tc.details})
		if got := (*out)[0].Text; got != tc.want {
			t.Errorf("%s: text=%q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestNetworkCorrelation(t *testing.T) {
	out, sink := collectorSink()
	n := NewNormalizer(sink)

	n.Request(&proto.NetworkRequestWillBeSent{
		RequestID: "r1",
		Request:   &proto.NetworkRequest{URL: "https://example.com/a.js", Method: "GET"},
	})
	if n.InFlight() != 1 {
		t.Fatalf("in-flight after request: got %d, want 1", n.InFlight())
	}

	n.LoadingFailed(&proto.NetworkLoadingFailed{
		RequestID: "r1",
		ErrorText: "net::ERR_CONNECTION_REFUSED",
		Type:      proto.NetworkResourceTypeScript,
	})

	if n.InFlight() != 0 {
		t.Errorf("in-flight after consume: got %d, want 0", n.InFlight())
	}

	e := (*out)[1]
	if e.Kind != KindNetworkError {
		t.Fatalf("kind: got %s, want network_error", e.Kind)
	}
	if e.URL != "https://example.com/a.js" {
		t.Errorf("failure URL not recovered from correlation: got %q", e.URL)
	}
	if e.Error != "net::ERR_CONNECTION_REFUSED" || e.ResourceType != "Script" {
		t.Errorf("got error=%q resourceType=%q", e.Error, e.ResourceType)
	}
}

func TestNetworkCorrelation_ResponseConsumes(t *testing.T) {
	out, sink := collectorSink()
	n := NewNormalizer(sink)

	n.Request(&proto.NetworkRequestWillBeSent{
		RequestID: "r2",
		Request:   &proto.NetworkRequest{URL: "https://example.com/", Method: "GET"},
	})
	n.Response(&proto.NetworkResponseReceived{
		RequestID: "r2",
		Response:  &proto.NetworkResponse{Status: 404, URL: "https://example.com/"},
	})

	if n.InFlight() != 0 {
		t.Errorf("in-flight after response: got %d, want 0", n.InFlight())
	}
	e := (*out)[1]
	if e.Kind != KindResponse || e.Status != 404 {
		t.Errorf("got kind=%s status=%d, want response/404", e.Kind, e.Status)
	}
	if !e.IsError() {
		t.Error("404 response should classify as error")
	}
}
