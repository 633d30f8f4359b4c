package results

import (
	"context"
	"fmt"
	"sync"
)

// State is the observable lifecycle of a deferred handle.
type State string

const (
	StatePending  State = "pending"
	StateResolved State = "resolved"
	StateErrored  State = "errored"
	StateCanceled State = "canceled"
)

// View is a type-erased snapshot of a handle, used by streaming transports.
type View struct {
	Label string       `json:"indicator"`
	State State        `json:"state"`
	Data  any          `json:"data,omitempty"`
	Error *ErrorResult `json:"error,omitempty"`
}

// Handle is the non-generic face of a Deferred.
type Handle interface {
	Label() string
	Done() <-chan struct{}
	State() State
	View() View
}

// Call is the unit of work behind a Deferred.
type Call[T any] func(ctx context.Context) (T, *ErrorResult)

// Deferred is a pending remote result. It settles exactly once, either with
// the call's outcome or with a canceled ErrorResult when its context is
// canceled first. Once settled it never changes.
type Deferred[T any] struct {
	label  string
	done   chan struct{}
	once   sync.Once
	result Result[T]
}

// Start launches call in the background and returns its handle immediately.
func Start[T any](ctx context.Context, label string, call Call[T]) *Deferred[T] {
	d := &Deferred[T]{
		label: label,
		done:  make(chan struct{}),
	}

	out := make(chan Result[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				out <- Fail[T](NewUnknown(fmt.Errorf("%s: panic: %v", label, r)))
			}
		}()
		value, errResult := call(ctx)
		if errResult != nil {
			out <- Fail[T](errResult)
			return
		}
		out <- Ok(value)
	}()

	go func() {
		select {
		case r := <-out:
			if ctx.Err() != nil {
				d.settle(Fail[T](NewCanceled(label + " canceled")))
				return
			}
			d.settle(r)
		case <-ctx.Done():
			d.settle(Fail[T](NewCanceled(label + " canceled")))
		}
	}()

	return d
}

// Settled returns a handle that is already resolved, for callers that need a
// handle without issuing a call.
func Settled[T any](label string, r Result[T]) *Deferred[T] {
	d := &Deferred[T]{label: label, done: make(chan struct{})}
	d.settle(r)
	return d
}

func (d *Deferred[T]) settle(r Result[T]) {
	d.once.Do(func() {
		d.result = r
		close(d.done)
	})
}

// Label names the indicator this handle computes.
func (d *Deferred[T]) Label() string { return d.label }

// Done is closed once the handle has settled.
func (d *Deferred[T]) Done() <-chan struct{} { return d.done }

// Wait blocks until the handle settles or ctx ends. The boolean is false when
// ctx ended first; the handle itself is unaffected.
func (d *Deferred[T]) Wait(ctx context.Context) (Result[T], bool) {
	select {
	case <-d.done:
		return d.result, true
	case <-ctx.Done():
		return Result[T]{}, false
	}
}

// Peek returns the settled result without blocking.
func (d *Deferred[T]) Peek() (Result[T], bool) {
	select {
	case <-d.done:
		return d.result, true
	default:
		return Result[T]{}, false
	}
}

// State reports where the handle is in its lifecycle.
func (d *Deferred[T]) State() State {
	r, ok := d.Peek()
	switch {
	case !ok:
		return StatePending
	case r.Err().IsCanceled():
		return StateCanceled
	case r.IsError():
		return StateErrored
	default:
		return StateResolved
	}
}

// View snapshots the handle for transport.
func (d *Deferred[T]) View() View {
	v := View{Label: d.label, State: d.State()}
	if r, ok := d.Peek(); ok {
		if value, ok := r.Value(); ok {
			v.Data = value
		} else {
			v.Error = r.Err()
		}
	}
	return v
}
