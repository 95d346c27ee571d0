// Package events names the events the chat core publishes to the surrounding
// application and the ones it consumes from it.
package events

//go:generate go run go.uber.org/mock/mockgen -source=events.go -destination=../../mocks/mock_event_sink.go -package=mocks -mock_names=Sink=MockEventSink

import "log/slog"

// Outbound event names.
const (
	NewMessage = "new-message"
	Join       = "join"
	Error      = "error"
	Shutdown   = "shutdown"
	ClientExit = "client_exit"
)

// Inbound event names.
const (
	HostMessage   = "host-message"
	ShutdownLocal = "shutdown"
)

type Event struct {
	Name    string
	Payload any
}

// Sink receives published events. Implementations must not block.
type Sink interface {
	Emit(name string, payload any)
}

type ClientExitPayload struct {
	Username string `json:"username"`
}

type ErrorPayload struct {
	ErrorMsg string `json:"errorMsg"`
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(name string, payload any)

func (f SinkFunc) Emit(name string, payload any) { f(name, payload) }

var Discard Sink = SinkFunc(func(string, any) {})

// Channel is a Sink backed by a buffered channel. Events are dropped, with a
// warning, when the reader falls behind.
type Channel struct {
	log *slog.Logger
	ch  chan Event
}

func NewChannel(log *slog.Logger, size int) *Channel {
	return &Channel{log: log, ch: make(chan Event, size)}
}

func (c *Channel) Emit(name string, payload any) {
	select {
	case c.ch <- Event{Name: name, Payload: payload}:
	default:
		c.log.Warn("event dropped, subscriber too slow", "event", name)
	}
}

func (c *Channel) Events() <-chan Event {
	return c.ch
}
