// Package matcher dispatches match sets of registered profiles to a worker pool
// and reports positive matches to a listener.
package matcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/spigell/profile-matcher/internal/logger"
	"github.com/spigell/profile-matcher/internal/metrics"
	"github.com/spigell/profile-matcher/internal/pool"
	"github.com/spigell/profile-matcher/internal/profile"
)

const tracerName = "profile-matcher"

// ErrPassStarted is returned when FindMatches is called a second time on the same Matcher.
// A Matcher owns exactly one pool and the pool cannot be reopened.
var ErrPassStarted = errors.New("matching pass already started")

// ProcessFunc handles a single match set. It runs on a pool worker and must be
// safe to call concurrently for different sets.
type ProcessFunc func(ctx context.Context, listener Listener, set *profile.MatchSet) error

type Options struct {
	PoolSize int
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	Tracer   trace.Tracer
}

// Matcher finds profiles matching criteria. It supports a single matching pass.
type Matcher struct {
	registry *Registry
	pool     *pool.Pool
	logger   *zap.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer

	mu      sync.Mutex
	started bool
}

func New(opts Options) *Matcher {
	log := logger.WithFields(opts.Logger)

	m := opts.Metrics
	if m == nil {
		m = metrics.New("")
	}

	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}

	return &Matcher{
		registry: NewRegistry(),
		pool:     pool.New(pool.Options{Size: opts.PoolSize, Logger: log, Metrics: m}),
		logger:   log,
		metrics:  m,
		tracer:   tracer,
	}
}

// Add registers the profile. It must not be called while a pass is running.
func (m *Matcher) Add(p *profile.Profile) {
	m.registry.Add(p)
}

func (m *Matcher) Registry() *Registry { return m.registry }

// Pool exposes the worker pool, callers poll IsTerminated or Wait on it.
func (m *Matcher) Pool() *pool.Pool { return m.pool }

// CollectMatchSets returns one match set per registered profile, in no particular order.
func (m *Matcher) CollectMatchSets(criteria *profile.Criteria) []*profile.MatchSet {
	sets := make([]*profile.MatchSet, 0, m.registry.Len())
	m.registry.each(func(p *profile.Profile) {
		sets = append(sets, p.MatchSet(criteria))
	})
	return sets
}

// FindMatches evaluates every registered profile against criteria using Process.
// It returns as soon as the work is queued.
func (m *Matcher) FindMatches(ctx context.Context, criteria *profile.Criteria, listener Listener) error {
	return m.FindMatchesWith(ctx, criteria, listener, m.CollectMatchSets(criteria), m.Process)
}

// FindMatchesWith submits one task per set, each calling process with the listener,
// and closes the pool to further submissions. It does not wait for the tasks.
// Cancelling ctx does not cancel queued tasks.
func (m *Matcher) FindMatchesWith(ctx context.Context, criteria *profile.Criteria, listener Listener, sets []*profile.MatchSet, process ProcessFunc) error {
	if listener == nil {
		return fmt.Errorf("listener is required")
	}
	if process == nil {
		return fmt.Errorf("process function is required")
	}

	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrPassStarted
	}
	m.started = true
	m.mu.Unlock()

	passID := uuid.NewString()
	log := logger.ForPass(m.logger, passID)

	ctx, span := m.tracer.Start(ctx, "matcher.FindMatches", trace.WithAttributes(
		attribute.String("pass.id", passID),
		attribute.Int("pass.sets", len(sets)),
		attribute.Int("pass.criteria", criteria.Len()),
	))
	defer span.End()

	m.metrics.Passes.Inc()
	log.Info("starting matching pass",
		zap.Int("sets", len(sets)),
		zap.Int("criteria", criteria.Len()),
		zap.Int("workers", m.pool.Size()),
	)

	passCtx := context.WithoutCancel(ctx)

	for _, set := range sets {
		if set == nil {
			continue
		}
		task := func() error {
			return m.runTask(passCtx, log, listener, set, process)
		}
		if err := m.pool.Submit(set.ProfileID(), task); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "submit failed")
			// already queued sets still run, the pool must be able to terminate
			if closeErr := m.pool.CloseSubmissions(); closeErr != nil && !errors.Is(closeErr, pool.ErrClosed) {
				log.Warn("closing submissions after failed dispatch", zap.Error(closeErr))
			}
			return fmt.Errorf("dispatching match set: %w", err)
		}
	}

	if err := m.pool.CloseSubmissions(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("closing submissions: %w", err)
	}

	log.Debug("matching pass dispatched")
	return nil
}

func (m *Matcher) runTask(ctx context.Context, log *zap.Logger, listener Listener, set *profile.MatchSet, process ProcessFunc) error {
	ctx, span := m.tracer.Start(ctx, "matcher.process",
		trace.WithAttributes(attribute.String("profile.id", set.ProfileID())),
	)
	defer span.End()

	log.Debug("processing match set",
		logger.ProfileField(set.ProfileID()),
		zap.Int64("score", set.Score()),
	)

	if err := process(ctx, listener, set); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "process failed")
		return err
	}
	return nil
}

// Process is the default ProcessFunc: a matching set is reported to the listener
// together with its profile, other sets are ignored.
func (m *Matcher) Process(_ context.Context, listener Listener, set *profile.MatchSet) error {
	if !set.Matches() {
		return nil
	}
	return m.notify(listener, set)
}

func (m *Matcher) notify(listener Listener, set *profile.MatchSet) error {
	p, err := m.registry.Resolve(set.ProfileID())
	if err != nil {
		return fmt.Errorf("reporting match: %w", err)
	}

	listener.FoundMatch(p, set)
	m.metrics.MatchesFound.Inc()
	return nil
}
