package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

type ErrorClassification struct {
	Retryable     bool
	RecordFailure bool
}

type ErrorClassifier func(err error) ErrorClassification

// Observer receives breaker transitions and scheduled retries, typically to
// export them as metrics. States are "closed", "half-open" and "open".
type Observer interface {
	BreakerStateChanged(dependency, operation, from, to string)
	RetryScheduled(dependency, operation string)
}

type Option func(*Executor)

// WithPolicy overrides the base config for a dependency ("legislation") or
// a single operation ("qdrant.upsert"). Operation policies win.
func WithPolicy(name string, cfg Config) Option {
	return func(e *Executor) {
		e.policies[strings.TrimSpace(name)] = cfg.normalize()
	}
}

func WithObserver(observer Observer) Option {
	return func(e *Executor) {
		e.observer = observer
	}
}

// Executor runs outbound calls of every adapter behind one circuit breaker
// per operation, each with the retry policy of its dependency.
type Executor struct {
	base     Config
	policies map[string]Config
	observer Observer

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[any]
}

func NewExecutor(cfg Config, opts ...Option) *Executor {
	e := &Executor{
		base:     cfg.normalize(),
		policies: make(map[string]Config),
		breakers: make(map[string]*gobreaker.CircuitBreaker[any]),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy resolves the settings applied to operation.
func (e *Executor) Policy(operation string) Config {
	if cfg, ok := e.policies[operation]; ok {
		return cfg
	}
	if cfg, ok := e.policies[DependencyOf(operation)]; ok {
		return cfg
	}
	return e.base
}

// BreakerState reports the breaker of operation; operations that never ran
// are closed.
func (e *Executor) BreakerState(operation string) string {
	e.mu.Lock()
	breaker, ok := e.breakers[operation]
	e.mu.Unlock()
	if !ok {
		return gobreaker.StateClosed.String()
	}
	return breaker.State().String()
}

func (e *Executor) Execute(
	ctx context.Context,
	operation string,
	fn func(context.Context) error,
	classifier ErrorClassifier,
) error {
	if fn == nil {
		return fmt.Errorf("resilience: operation callback is nil")
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	if classifier == nil {
		classifier = defaultClassifier
	}

	cfg := e.Policy(op)
	if !cfg.BreakerEnabled {
		return e.retry(ctx, op, cfg, fn, classifier)
	}

	_, err := e.circuitBreaker(op, cfg, classifier).Execute(func() (any, error) {
		return nil, e.retry(ctx, op, cfg, fn, classifier)
	})
	return err
}

func (e *Executor) retry(
	ctx context.Context,
	operation string,
	cfg Config,
	fn func(context.Context) error,
	classifier ErrorClassifier,
) error {
	var err error
	for attempt := 1; attempt <= cfg.RetryMaxAttempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !classifier(err).Retryable || attempt == cfg.RetryMaxAttempts {
			return err
		}

		wait := cfg.backoff(attempt)
		slog.Warn("retry_attempt",
			"dependency", DependencyOf(operation),
			"operation", operation,
			"attempt", attempt,
			"max_attempts", cfg.RetryMaxAttempts,
			"backoff_ms", wait.Milliseconds(),
			"error", err.Error(),
		)
		if e.observer != nil {
			e.observer.RetryScheduled(DependencyOf(operation), operation)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
	return err
}

func (e *Executor) circuitBreaker(operation string, cfg Config, classifier ErrorClassifier) *gobreaker.CircuitBreaker[any] {
	e.mu.Lock()
	defer e.mu.Unlock()

	if breaker, ok := e.breakers[operation]; ok {
		return breaker
	}

	dependency := DependencyOf(operation)
	breaker := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        operation,
		MaxRequests: cfg.BreakerHalfOpenMaxCalls,
		Timeout:     cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.BreakerMinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.BreakerFailureRatio
		},
		// Caller mistakes such as a 404 or cancellation never trip the breaker.
		IsSuccessful: func(err error) bool {
			return err == nil || !classifier(err).RecordFailure
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit_breaker_state_change",
				"dependency", dependency,
				"operation", name,
				"from", from.String(),
				"to", to.String(),
			)
			if e.observer != nil {
				e.observer.BreakerStateChanged(dependency, name, from.String(), to.String())
			}
		},
	})
	e.breakers[operation] = breaker
	return breaker
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func defaultClassifier(error) ErrorClassification {
	return ErrorClassification{
		Retryable:     false,
		RecordFailure: true,
	}
}
