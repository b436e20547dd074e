package event

import (
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod/lib/proto"
)

// Normalizer converts raw CDP payloads into canonical events and hands
// them to a sink (the ring, plus the optional journal). One Normalizer
// serves one protocol session; it survives reconnects because the new
// session just keeps calling the same methods.
type Normalizer struct {
	mu       sync.Mutex
	inflight map[proto.NetworkRequestID]inflightRequest
	sink     func(Event)
}

// inflightRequest correlates requestWillBeSent with the later response
// or failure. Entries are deleted once consumed, so the map stays
// bounded to requests actually in flight.
type inflightRequest struct {
	url    string
	source Source
}

// NewNormalizer creates a Normalizer emitting to sink.
func NewNormalizer(sink func(Event)) *Normalizer {
	return &Normalizer{
		inflight: make(map[proto.NetworkRequestID]inflightRequest),
		sink:     sink,
	}
}

// Console normalizes a Runtime.consoleAPICalled event. Arguments are
// serialized per runtime type and joined with single spaces; the
// protocol's "warning" level becomes "warn".
func (n *Normalizer) Console(e *proto.RuntimeConsoleAPICalled) {
	parts := make([]string, 0, len(e.Args))
	for _, arg := range e.Args {
		parts = append(parts, FormatRemoteObject(arg))
	}

	level := string(e.Type)
	if level == "warning" {
		level = "warn"
	}

	n.sink(Event{
		Kind:      KindConsole,
		Timestamp: time.Now(),
		Source:    classifyStack(e.StackTrace),
		Level:     level,
		Text:      strings.Join(parts, " "),
	})
}

// Exception normalizes a Runtime.exceptionThrown event, preferring the
// thrown value's description, then the raw exception text, then a fixed
// fallback.
func (n *Normalizer) Exception(e *proto.RuntimeExceptionThrown) {
	text := ""
	var stack *proto.RuntimeStackTrace
	if d := e.ExceptionDetails; d != nil {
		stack = d.StackTrace
		if d.Exception != nil && d.Exception.Description != "" {
			text = d.Exception.Description
		} else if d.Text != "" {
			text = d.Text
		}
	}
	if text == "" {
		text = "Unknown exception"
	}

	n.sink(Event{
		Kind:      KindException,
		Timestamp: time.Now(),
		Source:    classifyStack(stack),
		Text:      text,
	})
}

// Request normalizes Network.requestWillBeSent and records the request
// ID so the later response or failure can recover the URL and source.
func (n *Normalizer) Request(e *proto.NetworkRequestWillBeSent) {
	if e.Request == nil {
		return
	}

	src := SourceUnknown
	if e.Initiator != nil {
		src = classifyStack(e.Initiator.Stack)
	}

	n.mu.Lock()
	n.inflight[e.RequestID] = inflightRequest{url: e.Request.URL, source: src}
	n.mu.Unlock()

	n.sink(Event{
		Kind:      KindRequest,
		Timestamp: time.Now(),
		Source:    src,
		Method:    e.Request.Method,
		URL:       e.Request.URL,
	})
}

// Response normalizes Network.responseReceived, consuming the in-flight
// correlation entry.
func (n *Normalizer) Response(e *proto.NetworkResponseReceived) {
	if e.Response == nil {
		return
	}
	src := n.consume(e.RequestID).source

	n.sink(Event{
		Kind:      KindResponse,
		Timestamp: time.Now(),
		Source:    src,
		Status:    e.Response.Status,
		URL:       e.Response.URL,
	})
}

// LoadingFailed normalizes Network.loadingFailed. The URL comes from the
// correlation map since the failure payload does not carry one.
func (n *Normalizer) LoadingFailed(e *proto.NetworkLoadingFailed) {
	req := n.consume(e.RequestID)

	n.sink(Event{
		Kind:         KindNetworkError,
		Timestamp:    time.Now(),
		Source:       req.source,
		Error:        e.ErrorText,
		ResourceType: string(e.Type),
		URL:          req.url,
	})
}

// InFlight returns the number of uncorrelated requests. Exposed for the
// status endpoint and tests.
func (n *Normalizer) InFlight() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.inflight)
}

func (n *Normalizer) consume(id proto.NetworkRequestID) inflightRequest {
	n.mu.Lock()
	defer n.mu.Unlock()
	req, ok := n.inflight[id]
	if ok {
		delete(n.inflight, id)
		return req
	}
	return inflightRequest{source: SourceUnknown}
}

// classifyStack inspects call-frame URLs: any extension-scheme frame
// makes the event extension-originated, any stack at all means page,
// and no stack information means unknown.
func classifyStack(stack *proto.RuntimeStackTrace) Source {
	if stack == nil || len(stack.CallFrames) == 0 {
		return SourceUnknown
	}
	for _, frame := range stack.CallFrames {
		if strings.HasPrefix(frame.URL, "chrome-extension://") {
			return SourceExtension
		}
	}
	return SourcePage
}

// FormatRemoteObject renders one console argument: strings pass through,
// primitives stringify, undefined stays literal, objects get a shallow
// brace-delimited preview when the protocol shipped one, else their
// description.
func FormatRemoteObject(o *proto.RuntimeRemoteObject) string {
	if o == nil {
		return ""
	}

	switch o.Type {
	case proto.RuntimeRemoteObjectTypeString:
		return o.Value.Str()

	case proto.RuntimeRemoteObjectTypeUndefined:
		return "undefined"

	case proto.RuntimeRemoteObjectTypeNumber,
		proto.RuntimeRemoteObjectTypeBoolean,
		proto.RuntimeRemoteObjectTypeBigint:
		if o.UnserializableValue != "" {
			return string(o.UnserializableValue)
		}
		return o.Value.String()

	case proto.RuntimeRemoteObjectTypeObject:
		if o.Subtype == proto.RuntimeRemoteObjectSubtypeNull {
			return "null"
		}
		if o.Preview != nil && len(o.Preview.Properties) > 0 {
			parts := make([]string, 0, len(o.Preview.Properties))
			for _, p := range o.Preview.Properties {
				parts = append(parts, p.Name+": "+p.Value)
			}
			return "{" + strings.Join(parts, ", ") + "}"
		}
		if o.Description != "" {
			return o.Description
		}
		return o.Value.String()

	default:
		if o.Description != "" {
			return o.Description
		}
		return o.Value.String()
	}
}
