// Package promise provides single-assignment deferred values.
//
// Infrastructure attributes such as a load balancer's DNS name are not known
// when a service is planned. Planning code receives an Output for them and
// derives new Outputs with Map, Then and All without ever blocking. Whoever
// realizes the resources later settles the root Outputs and every derived
// value follows in registration order.
//
//	addr := promise.New[Address]()
//	url := promise.Map(addr, func(a Address) string { return a.URL() })
//	_ = addr.Resolve(Address{Host: "lb.example.com", Port: 80})
//	v, _ := url.Await(ctx) // "http://lb.example.com:80"
package promise

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrAlreadySettled is returned when resolving or rejecting an Output twice.
	ErrAlreadySettled = errors.New("output already settled")

	// ErrNilRejection is returned when Reject is called with a nil error.
	ErrNilRejection = errors.New("reject requires a non-nil error")
)

// Output is a value of type T that becomes available at most once.
// The zero value is not usable; create Outputs with New, Resolved or Rejected.
type Output[T any] struct {
	mu       sync.Mutex
	done     chan struct{}
	settled  bool
	value    T
	err      error
	handlers []func(T, error)
}

// New returns an unsettled Output.
func New[T any]() *Output[T] {
	return &Output[T]{done: make(chan struct{})}
}

// Resolved returns an Output already holding v.
func Resolved[T any](v T) *Output[T] {
	o := New[T]()
	_ = o.Resolve(v)
	return o
}

// Rejected returns an Output already failed with err.
func Rejected[T any](err error) *Output[T] {
	o := New[T]()
	_ = o.Reject(err)
	return o
}

// Resolve settles the Output with v.
func (o *Output[T]) Resolve(v T) error {
	return o.settle(v, nil)
}

// Reject settles the Output with err.
func (o *Output[T]) Reject(err error) error {
	if err == nil {
		return ErrNilRejection
	}
	var zero T
	return o.settle(zero, err)
}

func (o *Output[T]) settle(v T, err error) error {
	o.mu.Lock()
	if o.settled {
		o.mu.Unlock()
		return ErrAlreadySettled
	}
	o.settled = true
	o.value = v
	o.err = err
	handlers := o.handlers
	o.handlers = nil
	close(o.done)
	o.mu.Unlock()

	for _, h := range handlers {
		h(v, err)
	}
	return nil
}

// onSettled runs h once the Output settles, immediately if it already has.
func (o *Output[T]) onSettled(h func(T, error)) {
	o.mu.Lock()
	if !o.settled {
		o.handlers = append(o.handlers, h)
		o.mu.Unlock()
		return
	}
	v, err := o.value, o.err
	o.mu.Unlock()
	h(v, err)
}

// Settled reports whether the Output has a value or an error.
func (o *Output[T]) Settled() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.settled
}

// Done returns a channel closed when the Output settles.
func (o *Output[T]) Done() <-chan struct{} {
	return o.done
}

// Poll returns the current state without blocking.
// settled is false while the value is still pending.
func (o *Output[T]) Poll() (value T, settled bool, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.value, o.settled, o.err
}

// Await blocks until the Output settles or ctx is done.
// Only consumers of a finished plan should call it; planning code chains
// with Map instead.
func (o *Output[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-o.done:
		o.mu.Lock()
		defer o.mu.Unlock()
		return o.value, o.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Map derives an Output by applying fn to the value of o.
// A rejection of o propagates unchanged.
func Map[T, U any](o *Output[T], fn func(T) U) *Output[U] {
	out := New[U]()
	o.onSettled(func(v T, err error) {
		if err != nil {
			_ = out.Reject(err)
			return
		}
		_ = out.Resolve(fn(v))
	})
	return out
}

// Then is Map for transformations that can fail.
func Then[T, U any](o *Output[T], fn func(T) (U, error)) *Output[U] {
	out := New[U]()
	o.onSettled(func(v T, err error) {
		if err != nil {
			_ = out.Reject(err)
			return
		}
		u, err := fn(v)
		if err != nil {
			_ = out.Reject(err)
			return
		}
		_ = out.Resolve(u)
	})
	return out
}

// All combines outs into one Output holding their values in the same order.
// It rejects with the first error observed.
func All[T any](outs []*Output[T]) *Output[[]T] {
	result := New[[]T]()
	if len(outs) == 0 {
		_ = result.Resolve([]T{})
		return result
	}

	var (
		mu        sync.Mutex
		values    = make([]T, len(outs))
		remaining = len(outs)
		failed    bool
	)
	for i, o := range outs {
		o.onSettled(func(v T, err error) {
			mu.Lock()
			if failed {
				mu.Unlock()
				return
			}
			if err != nil {
				failed = true
				mu.Unlock()
				_ = result.Reject(err)
				return
			}
			values[i] = v
			remaining--
			last := remaining == 0
			mu.Unlock()
			if last {
				_ = result.Resolve(values)
			}
		})
	}
	return result
}
