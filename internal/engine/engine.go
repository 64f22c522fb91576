package engine

import (
	"log/slog"

	"github.com/openvital/vitalstore/internal/metrics"
	"github.com/openvital/vitalstore/internal/record"
	"github.com/openvital/vitalstore/internal/store"
)

// Operation types recorded in change logs and access logs.
const (
	OpUpsert = 0
	OpDelete = 1
	OpRead   = 2
)

// DefaultPageSize bounds read pages and change-log uuid batches when
// the caller does not specify a size.
const DefaultPageSize = 1000

// MaxPageSize caps caller-supplied page sizes.
const MaxPageSize = 5000

// Engine composes the upsert, delete and read flows on top of the
// transaction manager. Stateless apart from its collaborators; safe
// for concurrent use, with writes serialized by the store.
type Engine struct {
	store    *store.Store
	registry *record.Registry
	clock    Clock
	log      *slog.Logger
	metrics  *metrics.Metrics
	pageSize int
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the wall clock, for tests.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l.With("component", "engine") }
}

// WithMetrics attaches operation counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithPageSize overrides the default page size.
func WithPageSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.pageSize = n
		}
	}
}

// New builds an Engine over the store and registry.
func New(s *store.Store, reg *record.Registry, opts ...Option) *Engine {
	e := &Engine{
		store:    s,
		registry: reg,
		clock:    SystemClock(),
		log:      slog.Default().With("component", "engine"),
		pageSize: DefaultPageSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry exposes the record type registry to the composition root.
func (e *Engine) Registry() *record.Registry {
	return e.registry
}

func clampPageSize(n, fallback int) int {
	if n <= 0 {
		return fallback
	}
	if n > MaxPageSize {
		return MaxPageSize
	}
	return n
}
