package capture

import (
	"strings"

	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/repro/event"
	"github.com/hazyhaar/repro/vdom"
)

// jsInput is one record posted by interaction.js.
type jsInput struct {
	Type   string  `json:"type"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	PX     float64 `json:"px"`
	PY     float64 `json:"py"`
	Dt     uint32  `json:"dt"`
	Button uint8   `json:"button"`
	Key    string  `json:"key"`
	From   string  `json:"from"`
	To     string  `json:"to"`
}

// interaction converts a record. Window scrolls are attributed to the
// document node.
func (in jsInput) interaction(doc vdom.SyntheticID) (event.Interaction, bool) {
	at := event.Point{X: in.X, Y: in.Y}
	sample := event.Sample[event.Point]{From: event.Point{X: in.PX, Y: in.PY}, To: at, Duration: in.Dt}
	switch in.Type {
	case "pointermove":
		return event.PointerMove{Position: sample}, true
	case "pointerdown":
		return event.PointerDown{At: at, Button: in.Button}, true
	case "pointerup":
		return event.PointerUp{At: at, Button: in.Button}, true
	case "click":
		return event.Click{At: at, Button: in.Button}, true
	case "dblclick":
		return event.DoubleClick{At: at, Button: in.Button}, true
	case "scroll":
		return event.Scroll{Target: doc, Offset: sample}, true
	case "resize":
		return event.ViewportResize{Size: sample}, true
	case "keydown":
		return event.KeyDown{Key: in.Key}, true
	case "keyup":
		return event.KeyUp{Key: in.Key}, true
	case "navigate":
		return event.PageTransition{From: in.From, To: in.To}, true
	}
	return nil, false
}

func headers(h proto.NetworkHeaders) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[strings.ToLower(k)] = v.Str()
	}
	return out
}

func requestMessage(e *proto.NetworkRequestWillBeSent) event.Request {
	r := event.Request{CorrelationID: string(e.RequestID)}
	if e.Request != nil {
		r.Method, r.URL, r.Headers = e.Request.Method, e.Request.URL, headers(e.Request.Headers)
	}
	return r
}

func responseMessage(e *proto.NetworkResponseReceived) event.Response {
	r := event.Response{CorrelationID: string(e.RequestID)}
	if e.Response != nil {
		r.Status = uint16(e.Response.Status)
		r.Headers = headers(e.Response.Headers)
		r.BodySize = uint64(max(e.Response.EncodedDataLength, 0))
	}
	return r
}

func failureMessage(e *proto.NetworkLoadingFailed) event.Failure {
	return event.Failure{CorrelationID: string(e.RequestID), Reason: e.ErrorText}
}

func consoleMessage(e *proto.RuntimeConsoleAPICalled) event.ConsoleMessage {
	m := event.ConsoleMessage{Level: event.ParseConsoleLevel(string(e.Type))}
	for _, a := range e.Args {
		switch {
		case a == nil:
		case a.Type == proto.RuntimeRemoteObjectTypeString:
			m.Parts = append(m.Parts, a.Value.Str())
		case a.Description != "":
			m.Parts = append(m.Parts, a.Description)
		case a.UnserializableValue != "":
			m.Parts = append(m.Parts, string(a.UnserializableValue))
		default:
			m.Parts = append(m.Parts, a.Value.JSON("", ""))
		}
	}
	return m
}
