package provider

import (
	"context"

	"github.com/dshills/ghostline/internal/inline/compute"
	"github.com/dshills/ghostline/internal/inline/variant"
)

// Static suggests the same variants for every request. Each variant is a
// list of insertable element texts.
type Static struct {
	Name     string
	Variants [][]string
	Enabled  func(req Request) bool
}

// NewStatic creates a static provider.
func NewStatic(name string, variants ...[]string) *Static {
	return &Static{Name: name, Variants: variants}
}

// ID implements Provider.
func (s *Static) ID() string {
	return s.Name
}

// IsEnabled implements Provider.
func (s *Static) IsEnabled(req Request) bool {
	if s.Enabled == nil {
		return true
	}
	return s.Enabled(req)
}

// Suggest implements Provider.
func (s *Static) Suggest(ctx context.Context, req Request) (*compute.Source, error) {
	src := compute.NewSource()
	for _, texts := range s.Variants {
		els := make([]variant.Element, len(texts))
		for i, t := range texts {
			els[i] = variant.Insertable(t)
		}
		if err := src.Add(compute.Elements(els...)); err != nil {
			return nil, err
		}
	}
	return src, nil
}

// Func adapts a function to Provider.
type Func struct {
	Name string
	Fn   func(ctx context.Context, req Request) (*compute.Source, error)
}

// ID implements Provider.
func (f Func) ID() string { return f.Name }

// IsEnabled implements Provider.
func (f Func) IsEnabled(Request) bool { return true }

// Suggest implements Provider.
func (f Func) Suggest(ctx context.Context, req Request) (*compute.Source, error) {
	return f.Fn(ctx, req)
}
