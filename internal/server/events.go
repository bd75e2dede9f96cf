package server

import "sync"

// Output names.
const (
	OutputConnection = "connection"
	OutputError      = "error"
	OutputListening  = "listening"
	OutputReceived   = "received"
)

// OutputHandler receives every value emitted on an output.
type OutputHandler func(v any)

// EventSink keeps the latest value of each output and forwards emitted
// values to the registered handler. It is safe for concurrent use.
type EventSink struct {
	mu       sync.Mutex
	latest   map[string]any
	handlers map[string]OutputHandler
}

// NewEventSink returns an empty sink.
func NewEventSink() *EventSink {
	return &EventSink{
		latest:   make(map[string]any),
		handlers: make(map[string]OutputHandler),
	}
}

// Emit records v as the latest value of name and calls its handler.
func (s *EventSink) Emit(name string, v any) {
	s.mu.Lock()
	s.latest[name] = v
	h := s.handlers[name]
	s.mu.Unlock()

	if h != nil {
		h(v)
	}
}

// Latest returns the last value emitted on name.
func (s *EventSink) Latest(name string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.latest[name]
	return v, ok
}

// SetHandler registers h for name, replacing any previous handler. A nil h
// removes it.
func (s *EventSink) SetHandler(name string, h OutputHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h == nil {
		delete(s.handlers, name)
		return
	}
	s.handlers[name] = h
}

// Reset forgets the latest values. Handlers are kept.
func (s *EventSink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = make(map[string]any)
}
