package capture

import (
	"encoding/json"
	"testing"

	"github.com/go-playground/assert/v2"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"github.com/hazyhaar/repro/event"
)

func TestInput_Interaction(t *testing.T) {
	tests := []struct {
		raw  string
		want event.Interaction
	}{
		{`{"type":"pointermove","x":10,"y":20,"px":4,"py":8,"dt":16}`,
			event.PointerMove{Position: event.Sample[event.Point]{From: event.Point{X: 4, Y: 8}, To: event.Point{X: 10, Y: 20}, Duration: 16}}},
		{`{"type":"pointerdown","x":1,"y":2,"button":0}`, event.PointerDown{At: event.Point{X: 1, Y: 2}}},
		{`{"type":"click","x":1,"y":2,"button":2}`, event.Click{At: event.Point{X: 1, Y: 2}, Button: 2}},
		{`{"type":"scroll","x":0,"y":300,"px":0,"py":100,"dt":50}`,
			event.Scroll{Target: "doc", Offset: event.Sample[event.Point]{From: event.Point{Y: 100}, To: event.Point{Y: 300}, Duration: 50}}},
		{`{"type":"keydown","key":"Enter"}`, event.KeyDown{Key: "Enter"}},
		{`{"type":"navigate","from":"https://a/","to":"https://a/#x"}`, event.PageTransition{From: "https://a/", To: "https://a/#x"}},
	}
	for _, tt := range tests {
		var in jsInput
		if err := json.Unmarshal([]byte(tt.raw), &in); err != nil {
			t.Fatalf("unmarshal %s: %v", tt.raw, err)
		}
		got, ok := in.interaction("doc")
		if !ok {
			t.Fatalf("%s: not converted", in.Type)
		}
		assert.Equal(t, got, tt.want)
	}

	if _, ok := (jsInput{Type: "wheel"}).interaction("doc"); ok {
		t.Error("unknown record type converted")
	}
}

func TestInput_Network(t *testing.T) {
	req := requestMessage(&proto.NetworkRequestWillBeSent{
		RequestID: "r1",
		Request: &proto.NetworkRequest{
			Method:  "POST",
			URL:     "https://example.com/api",
			Headers: proto.NetworkHeaders{"Content-Type": gson.New("application/json")},
		},
	})
	assert.Equal(t, req, event.Request{
		CorrelationID: "r1",
		Method:        "POST",
		URL:           "https://example.com/api",
		Headers:       map[string]string{"content-type": "application/json"},
	})

	resp := responseMessage(&proto.NetworkResponseReceived{
		RequestID: "r1",
		Response:  &proto.NetworkResponse{Status: 201, EncodedDataLength: 512},
	})
	assert.Equal(t, resp, event.Response{CorrelationID: "r1", Status: 201, BodySize: 512})

	fail := failureMessage(&proto.NetworkLoadingFailed{RequestID: "r2", ErrorText: "net::ERR_ABORTED"})
	assert.Equal(t, fail, event.Failure{CorrelationID: "r2", Reason: "net::ERR_ABORTED"})
}

func TestInput_Console(t *testing.T) {
	m := consoleMessage(&proto.RuntimeConsoleAPICalled{
		Type: proto.RuntimeConsoleAPICalledTypeWarning,
		Args: []*proto.RuntimeRemoteObject{
			{Type: proto.RuntimeRemoteObjectTypeString, Value: gson.New("slow")},
			{Type: proto.RuntimeRemoteObjectTypeNumber, Value: gson.New(42)},
			{Type: proto.RuntimeRemoteObjectTypeObject, Description: "Object"},
			{Type: proto.RuntimeRemoteObjectTypeNumber, UnserializableValue: "NaN"},
		},
	})
	assert.Equal(t, m.Level, event.ConsoleWarn)
	assert.Equal(t, m.Parts, []string{"slow", "42", "Object", "NaN"})
}
