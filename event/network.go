package event

// NetworkKind discriminates NetworkMessage variants. Values are stable wire
// tags.
type NetworkKind uint16

const (
	KindUnknownNetwork NetworkKind = iota
	KindRequest
	KindResponse
	KindFailure
)

// NetworkMessage is one of Request, Response, Failure or UnknownNetwork.
// Messages of one exchange share a CorrelationID.
type NetworkMessage interface {
	NetworkKind() NetworkKind
	network()
}

type Request struct {
	CorrelationID string            `json:"correlationId"`
	Method        string            `json:"method"`
	URL           string            `json:"url"`
	Headers       map[string]string `json:"headers,omitempty"`
}

type Response struct {
	CorrelationID string            `json:"correlationId"`
	Status        uint16            `json:"status"`
	Headers       map[string]string `json:"headers,omitempty"`
	BodySize      uint64            `json:"bodySize"`
}

type Failure struct {
	CorrelationID string `json:"correlationId"`
	Reason        string `json:"reason"`
}

type UnknownNetwork struct {
	Tag uint16 `json:"tag"`
	Raw []byte `json:"raw"`
}

func (Request) NetworkKind() NetworkKind        { return KindRequest }
func (Response) NetworkKind() NetworkKind       { return KindResponse }
func (Failure) NetworkKind() NetworkKind        { return KindFailure }
func (UnknownNetwork) NetworkKind() NetworkKind { return KindUnknownNetwork }

func (Request) network()        {}
func (Response) network()       {}
func (Failure) network()        {}
func (UnknownNetwork) network() {}

// NetworkSnapshot lists the requests still waiting for a response.
type NetworkSnapshot struct {
	InFlight []Request `json:"inFlight,omitempty"`
}

// ConsoleLevel is the severity of a console entry.
type ConsoleLevel uint8

const (
	ConsoleUnknown ConsoleLevel = iota
	ConsoleDebug
	ConsoleLog
	ConsoleInfo
	ConsoleWarn
	ConsoleError
)

var consoleLevels = map[string]ConsoleLevel{
	"debug":   ConsoleDebug,
	"log":     ConsoleLog,
	"info":    ConsoleInfo,
	"warning": ConsoleWarn,
	"warn":    ConsoleWarn,
	"error":   ConsoleError,
}

// ParseConsoleLevel maps a CDP console type name to a level.
func ParseConsoleLevel(s string) ConsoleLevel {
	return consoleLevels[s]
}

func (l ConsoleLevel) String() string {
	switch l {
	case ConsoleDebug:
		return "debug"
	case ConsoleLog:
		return "log"
	case ConsoleInfo:
		return "info"
	case ConsoleWarn:
		return "warn"
	case ConsoleError:
		return "error"
	}
	return "unknown"
}

// ConsoleMessage is one console call with its arguments rendered as text.
type ConsoleMessage struct {
	Level ConsoleLevel `json:"level"`
	Parts []string     `json:"parts"`
}
