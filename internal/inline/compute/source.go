package compute

import (
	"context"
	"sync"

	"github.com/dshills/ghostline/internal/inline/update"
)

// Source is the set of producers a provider returns for one request, plus an
// optional reconciler for events that reach the variants. A source is built
// before it is handed to an engine; once computation starts it is sealed.
type Source struct {
	mu         sync.Mutex
	producers  []Producer
	reconciler update.Reconciler
	sealed     bool
	misuse     error
	onMisuse   func(error)
}

// NewSource creates a source with the given producers, in declaration order.
func NewSource(producers ...Producer) *Source {
	return &Source{producers: append([]Producer(nil), producers...)}
}

// Add declares another variant. It fails with ErrNestedVariant once the
// source is being computed, which makes the whole request fail.
func (s *Source) Add(p Producer) error {
	s.mu.Lock()
	if !s.sealed {
		s.producers = append(s.producers, p)
		s.mu.Unlock()
		return nil
	}

	err := &MisuseError{Op: "add variant", Err: ErrNestedVariant}
	first := s.misuse == nil
	if first {
		s.misuse = err
	}
	notify := s.onMisuse
	s.mu.Unlock()

	if first && notify != nil {
		notify(err)
	}
	return err
}

// AddFunc declares a variant computed by a generator function.
func (s *Source) AddFunc(fn func(ctx context.Context, emit EmitFunc) error) error {
	return s.Add(Generate(fn))
}

// SetReconciler installs a reconciler for this source's variants. A nil
// reconciler selects the default over-typing behavior.
func (s *Source) SetReconciler(r update.Reconciler) *Source {
	s.mu.Lock()
	s.reconciler = r
	s.mu.Unlock()
	return s
}

// Reconciler returns the source's reconciler, or nil for the default.
func (s *Source) Reconciler() update.Reconciler {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconciler
}

// Len returns the number of declared variants.
func (s *Source) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.producers)
}

// Misuse returns the first contract violation recorded on the source.
func (s *Source) Misuse() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.misuse
}

// seal freezes the producer list and installs the misuse callback.
func (s *Source) seal(onMisuse func(error)) []Producer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sealed = true
	s.onMisuse = onMisuse
	return append([]Producer(nil), s.producers...)
}
