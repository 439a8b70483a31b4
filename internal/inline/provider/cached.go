package provider

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dshills/ghostline/internal/inline/compute"
	"github.com/dshills/ghostline/internal/inline/update"
	"github.com/dshills/ghostline/internal/inline/variant"
)

// DefaultCacheTTL is how long Cached keeps a computed suggestion.
const DefaultCacheTTL = 30 * time.Second

// Cached wraps a provider so that one computation per request prefix runs
// at a time. Concurrent requests for the same prefix share the result, and
// the result, success or failure, is kept for later requests until it
// expires. Every caller receives a fresh source replaying the computed
// variants with the wrapped source's reconciler, which is then shared by
// every replay.
type Cached struct {
	inner Provider
	group singleflight.Group
	cache *Cache[string, *computed]
}

type computed struct {
	variants   []computedVariant
	reconciler update.Reconciler
	err        error
}

type computedVariant struct {
	elements []variant.Element
	err      error
}

// NewCached wraps inner with a cache whose entries live for ttl.
func NewCached(inner Provider, ttl time.Duration, opts ...CacheOption) *Cached {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cached{
		inner: inner,
		cache: NewCache[string, *computed](ttl, opts...),
	}
}

// ID implements Provider.
func (c *Cached) ID() string {
	return c.inner.ID() + "+cache"
}

// IsEnabled implements Provider.
func (c *Cached) IsEnabled(req Request) bool {
	return c.inner.IsEnabled(req)
}

// Suggest implements Provider. It blocks until the wrapped provider's
// variants are fully computed.
func (c *Cached) Suggest(ctx context.Context, req Request) (*compute.Source, error) {
	key := req.Prefix()
	if res, ok := c.cache.Get(key); ok {
		return res.source()
	}

	v, _, _ := c.group.Do(key, func() (any, error) {
		res := c.compute(ctx, req)
		if !errors.Is(res.err, context.Canceled) && !errors.Is(res.err, context.DeadlineExceeded) {
			c.cache.Set(key, res)
		}
		return res, nil
	})
	return v.(*computed).source()
}

// Invalidate drops all cached results.
func (c *Cached) Invalidate() {
	c.cache.Clear()
}

func (c *Cached) compute(ctx context.Context, req Request) *computed {
	src, err := c.inner.Suggest(ctx, req)
	if err != nil {
		return &computed{err: err}
	}

	e := compute.New(src)
	if err := e.Start(ctx); err != nil {
		return &computed{err: err}
	}
	defer e.Close()
	e.Unbounded()

	batch, err := e.Await(ctx)
	if err != nil {
		return &computed{err: err}
	}

	res := &computed{variants: make([]computedVariant, e.Len()), reconciler: src.Reconciler()}
	for _, m := range batch {
		switch m.Kind {
		case compute.MessageElement:
			res.variants[m.Variant].elements = append(res.variants[m.Variant].elements, m.Element)
		case compute.MessageFailed:
			res.variants[m.Variant].err = m.Err
		case compute.MessageMisuse:
			return &computed{err: m.Err}
		}
	}
	return res
}

func (r *computed) source() (*compute.Source, error) {
	if r.err != nil {
		return nil, r.err
	}
	src := compute.NewSource().SetReconciler(r.reconciler)
	for _, v := range r.variants {
		p := compute.Elements(v.elements...)
		if v.err != nil {
			p = compute.Failing(v.err, v.elements...)
		}
		if err := src.Add(p); err != nil {
			return nil, err
		}
	}
	return src, nil
}
