package application

import (
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

// PinHandler receives the value sent to a virtual pin by the dashboard.
// Handlers run on the transport's delivery goroutine.
type PinHandler func(value string)

// CommandRouter turns inbound command messages into pin-cache updates and
// handler dispatch. Malformed topics and payloads are dropped and logged;
// nothing here propagates back into the delivery goroutine.
type CommandRouter struct {
	mu       sync.Mutex
	values   map[string]string
	handlers map[int]PinHandler

	log zerolog.Logger
}

func NewCommandRouter(log zerolog.Logger) *CommandRouter {
	return &CommandRouter{
		values:   make(map[string]string),
		handlers: make(map[int]PinHandler),
		log:      log,
	}
}

// Register attaches a handler for a virtual pin. Registering twice for the
// same pin replaces the previous handler.
func (r *CommandRouter) Register(pin int, handler PinHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[pin] = handler
}

// PinValue returns the last value received for a pin, if any.
func (r *CommandRouter) PinValue(pin int) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.values[pinName(pin)]
	return v, ok
}

// HandleMessage routes one inbound message. Topics have the shape
// vwire/<device-id>/cmd/<pin-selector>; a purely numeric selector is
// normalized to its V<n> form.
func (r *CommandRouter) HandleMessage(topic string, payload []byte) {
	parts := strings.Split(topic, "/")
	if len(parts) < 4 || parts[2] != "cmd" {
		r.log.Warn().Str("topic", topic).Msg("dropping message with malformed topic")
		return
	}

	pin, err := ParsePin(parts[3])
	if err != nil {
		r.log.Warn().Str("topic", topic).Err(err).Msg("dropping message with invalid pin selector")
		return
	}

	if !utf8.Valid(payload) {
		r.log.Warn().Str("topic", topic).Msg("dropping message with non-UTF8 payload")
		return
	}
	value := string(payload)

	r.mu.Lock()
	r.values[pinName(pin)] = value
	handler := r.handlers[pin]
	r.mu.Unlock()

	if handler != nil {
		r.dispatch(pin, handler, value)
	}
}

func (r *CommandRouter) dispatch(pin int, handler PinHandler, value string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().Int("pin", pin).Interface("panic", rec).Msg("pin handler panicked")
		}
	}()
	handler(value)
}
