// Package compute runs the producers of one suggestion request
// concurrently and hands their output back to the foreground.
//
// Every producer gets its own task goroutine and its own cancellable
// context. Tasks never touch session state: they send Messages on one
// bounded channel that the foreground drains with Await or Drain. Producers
// advance only as far as the foreground asks, unless the engine is switched
// to unbounded pacing.
package compute

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"

	"github.com/dshills/ghostline/internal/inline/variant"
)

// Producer computes the elements of one variant, one per call. Next returns
// ErrExhausted when the variant is complete. Next is never called
// concurrently for the same producer.
type Producer interface {
	Next(ctx context.Context) (variant.Element, error)
}

// ProducerFunc adapts a function to Producer.
type ProducerFunc func(ctx context.Context) (variant.Element, error)

// Next implements Producer.
func (f ProducerFunc) Next(ctx context.Context) (variant.Element, error) {
	return f(ctx)
}

// Elements returns a producer that yields els in order.
func Elements(els ...variant.Element) Producer {
	i := 0
	return ProducerFunc(func(ctx context.Context) (variant.Element, error) {
		if err := ctx.Err(); err != nil {
			return variant.Element{}, err
		}
		if i >= len(els) {
			return variant.Element{}, ErrExhausted
		}
		el := els[i]
		i++
		return el, nil
	})
}

// Texts returns a producer that yields one insertable element per text.
func Texts(texts ...string) Producer {
	els := make([]variant.Element, len(texts))
	for i, t := range texts {
		els[i] = variant.Insertable(t)
	}
	return Elements(els...)
}

// Failing returns a producer that yields els and then fails with err.
func Failing(err error, els ...variant.Element) Producer {
	inner := Elements(els...)
	return ProducerFunc(func(ctx context.Context) (variant.Element, error) {
		el, e := inner.Next(ctx)
		if errors.Is(e, ErrExhausted) {
			return variant.Element{}, err
		}
		return el, e
	})
}

// EmitFunc hands one element to the consumer of a generator. It returns an
// error once the consumer is gone; the generator should then return.
type EmitFunc func(el variant.Element) error

// Generate turns a push-style function into a Producer. fn runs on its own
// goroutine, started by the first call to Next, and is paused inside emit
// until the next element is requested. Returning nil ends the variant; a
// panic in fn becomes a PanicError.
func Generate(fn func(ctx context.Context, emit EmitFunc) error) Producer {
	return &generator{
		fn:   fn,
		out:  make(chan variant.Element),
		req:  make(chan struct{}),
		done: make(chan struct{}),
	}
}

type generator struct {
	fn   func(ctx context.Context, emit EmitFunc) error
	once sync.Once
	out  chan variant.Element
	req  chan struct{}
	done chan struct{}
	err  error
}

func (g *generator) Next(ctx context.Context) (variant.Element, error) {
	started := false
	g.once.Do(func() {
		started = true
		go g.run(ctx)
	})

	if !started {
		select {
		case g.req <- struct{}{}:
		case <-g.done:
			return variant.Element{}, g.result()
		case <-ctx.Done():
			return variant.Element{}, ctx.Err()
		}
	}

	select {
	case el := <-g.out:
		return el, nil
	case <-g.done:
		return variant.Element{}, g.result()
	case <-ctx.Done():
		return variant.Element{}, ctx.Err()
	}
}

func (g *generator) result() error {
	if g.err != nil {
		return g.err
	}
	return ErrExhausted
}

func (g *generator) run(ctx context.Context) {
	defer close(g.done)
	defer func() {
		if r := recover(); r != nil {
			g.err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()

	emit := func(el variant.Element) error {
		select {
		case g.out <- el:
		case <-ctx.Done():
			return ctx.Err()
		}
		select {
		case <-g.req:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	g.err = g.fn(ctx, emit)
}
