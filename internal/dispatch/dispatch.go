// Package dispatch fans a finished detection result out to independent
// result handlers.
package dispatch

import (
	"context"

	"github.com/tendant/simple-detection-pipeline/internal/detection"
)

// ResultHandler consumes a final result. Handlers must treat the result
// as read-only.
type ResultHandler interface {
	Name() string
	Handle(ctx context.Context, res *detection.Result) error
}

// Fanout calls every handler in registration order
type Fanout struct {
	handlers []ResultHandler
}

// New builds a Fanout, skipping nil handlers
func New(handlers ...ResultHandler) *Fanout {
	f := &Fanout{}
	for _, h := range handlers {
		f.Add(h)
	}
	return f
}

// Add appends h
func (f *Fanout) Add(h ResultHandler) {
	if h != nil {
		f.handlers = append(f.handlers, h)
	}
}

// Len returns the number of handlers
func (f *Fanout) Len() int {
	if f == nil {
		return 0
	}
	return len(f.handlers)
}

// Names lists the handlers in dispatch order
func (f *Fanout) Names() []string {
	if f == nil {
		return nil
	}
	names := make([]string, len(f.handlers))
	for i, h := range f.handlers {
		names[i] = h.Name()
	}
	return names
}

// Dispatch invokes each handler exactly once through guard and returns the
// number that failed.
func (f *Fanout) Dispatch(ctx context.Context, res *detection.Result, guard detection.Guard) int {
	if f == nil {
		return 0
	}
	if guard == nil {
		guard = func(_, _ string, fn func() error) error { return fn() }
	}

	failed := 0
	for _, h := range f.handlers {
		if err := guard("handler", h.Name(), func() error { return h.Handle(ctx, res) }); err != nil {
			failed++
		}
	}
	return failed
}
