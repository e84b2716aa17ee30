package strategy

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MetricSource supplies the metric view a predicate is evaluated
// against.
type MetricSource interface {
	Metrics(ctx context.Context, symbol string, day time.Time) (View, error)
}

// Engine evaluates predicate sources for a symbol and day. Compiled
// predicates are cached by source text.
type Engine struct {
	source MetricSource

	mu       sync.Mutex
	compiled map[string]*Predicate
}

func NewEngine(source MetricSource) *Engine {
	return &Engine{
		source:   source,
		compiled: map[string]*Predicate{},
	}
}

// Evaluate compiles (or reuses) the predicate and resolves it against
// the symbol's metrics for the given day. Any failure makes the result
// unknown, returned as a non-nil error.
func (e *Engine) Evaluate(ctx context.Context, source, symbol string, day time.Time) (bool, error) {
	predicate, err := e.predicate(source)
	if err != nil {
		return false, err
	}

	view, err := e.source.Metrics(ctx, symbol, day)
	if err != nil {
		return false, fmt.Errorf("metrics for %s on %s: %w", symbol, day.Format("2006-01-02"), err)
	}

	result, err := predicate.Evaluate(view)
	if err != nil {
		return false, fmt.Errorf("predicate %q: %w", predicate.Source(), err)
	}
	return result, nil
}

func (e *Engine) predicate(source string) (*Predicate, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if p, ok := e.compiled[source]; ok {
		return p, nil
	}
	p, err := Compile(source)
	if err != nil {
		return nil, err
	}
	e.compiled[source] = p
	return p, nil
}
