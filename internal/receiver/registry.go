package receiver

import (
	"context"
	"sync"

	"github.com/Real-Craft-Tech/stampwire/pkg/standardwebhooks"
)

// HandlerFunc processes one verified event. Returning an error makes the
// receiver answer 5xx so the sender retries the delivery; redeliveries
// reuse the same delivery ID and are deduplicated by the receipt store, so
// handlers that succeeded are not run twice.
type HandlerFunc func(ctx context.Context, event *standardwebhooks.Event) error

// Registry routes verified events to handlers by event type. Event types
// without a handler are acknowledged and dropped: the platform may
// introduce new types at any time and they must not bounce.
type Registry struct {
	mu       sync.RWMutex
	handlers map[standardwebhooks.EventType]HandlerFunc
}

func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[standardwebhooks.EventType]HandlerFunc),
	}
}

// Register sets the handler for an event type, replacing any previous one.
func (r *Registry) Register(eventType standardwebhooks.EventType, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[eventType] = handler
}

// Dispatch invokes the handler for the event's type. It reports whether a
// handler was registered; an unhandled event is not an error.
func (r *Registry) Dispatch(ctx context.Context, event *standardwebhooks.Event) (handled bool, err error) {
	r.mu.RLock()
	handler, ok := r.handlers[event.Type]
	r.mu.RUnlock()

	if !ok {
		return false, nil
	}

	return true, handler(ctx, event)
}
