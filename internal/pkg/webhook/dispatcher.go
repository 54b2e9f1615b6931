package webhook

import (
	"context"
	"sort"

	"github.com/stripe/stripe-go/v79"
)

// HandlerFunc applies the side effects of one event.
type HandlerFunc func(ctx context.Context, ev stripe.Event) error

// Dispatcher routes events by type. Unknown types are not an error.
type Dispatcher struct {
	handlers map[stripe.EventType]HandlerFunc
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: map[stripe.EventType]HandlerFunc{}}
}

func (d *Dispatcher) Register(eventType stripe.EventType, h HandlerFunc) {
	d.handlers[eventType] = h
}

// Dispatch runs the handler of ev's type. handled is false when no
// handler is registered.
func (d *Dispatcher) Dispatch(ctx context.Context, ev stripe.Event) (handled bool, err error) {
	h, ok := d.handlers[ev.Type]
	if !ok {
		return false, nil
	}
	return true, h(ctx, ev)
}

// Types lists the registered event types.
func (d *Dispatcher) Types() []string {
	out := make([]string, 0, len(d.handlers))
	for t := range d.handlers {
		out = append(out, string(t))
	}
	sort.Strings(out)
	return out
}
