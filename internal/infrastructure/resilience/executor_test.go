package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/uk-legal-assistant/internal/core/domain"
)

func TestExecuteRetriesTemporaryFailure(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 1 * time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
		BreakerEnabled:      false,
	})

	attempts := 0
	errTemp := errors.New("temporary")
	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errTemp
		}
		return nil
	}, func(err error) ErrorClassification {
		return ErrorClassification{
			Retryable:     errors.Is(err, errTemp),
			RecordFailure: true,
		}
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestExecuteDoesNotRetryPermanentFailure(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 1 * time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
		BreakerEnabled:      false,
	})

	attempts := 0
	errPermanent := errors.New("permanent")
	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		return errPermanent
	}, func(error) ErrorClassification {
		return ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	})
	if !errors.Is(err, errPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestExecuteOpensCircuitAfterFailures(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:        1,
		RetryInitialBackoff:     1 * time.Millisecond,
		RetryMaxBackoff:         1 * time.Millisecond,
		RetryMultiplier:         2,
		BreakerEnabled:          true,
		BreakerMinRequests:      2,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      50 * time.Millisecond,
		BreakerHalfOpenMaxCalls: 1,
	})

	errTemp := errors.New("temporary")
	classifier := func(error) ErrorClassification {
		return ErrorClassification{
			Retryable:     false,
			RecordFailure: true,
		}
	}

	for i := 0; i < 2; i++ {
		err := exec.Execute(context.Background(), "op", func(context.Context) error {
			return errTemp
		}, classifier)
		if !errors.Is(err, errTemp) {
			t.Fatalf("expected temporary error on iteration %d, got %v", i, err)
		}
	}

	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		t.Fatalf("circuit should be open and must not call operation")
		return nil
	}, classifier)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open state error, got %v", err)
	}
}

func TestClassifyHTTPError(t *testing.T) {
	unavailable := &HTTPStatusError{Service: "ollama", Operation: "embed", StatusCode: 503, Status: "503 Service Unavailable"}
	if class := ClassifyHTTPError(unavailable); !class.Retryable || !class.RecordFailure {
		t.Fatalf("503 should be retryable and recorded, got %+v", class)
	}

	badRequest := &HTTPStatusError{Service: "qdrant", Operation: "search", StatusCode: 400, Status: "400 Bad Request"}
	if class := ClassifyHTTPError(badRequest); class.Retryable || class.RecordFailure {
		t.Fatalf("400 should be neither retried nor recorded, got %+v", class)
	}

	if class := ClassifyHTTPError(context.Canceled); class.Retryable || class.RecordFailure {
		t.Fatalf("cancellation should be ignored, got %+v", class)
	}

	wrapped := WrapTemporary("embed", unavailable)
	if !domain.IsKind(wrapped, domain.ErrTemporary) {
		t.Fatalf("expected temporary kind, got %v", wrapped)
	}
	if domain.IsKind(WrapTemporary("search", badRequest), domain.ErrTemporary) {
		t.Fatalf("permanent status must not be marked temporary")
	}
}

func TestDefaultConfigMakesSingleAttempt(t *testing.T) {
	exec := NewExecutor(Config{})
	attempts := 0
	errTemp := errors.New("temporary")
	_ = exec.Execute(context.Background(), "single", func(context.Context) error {
		attempts++
		return errTemp
	}, func(error) ErrorClassification {
		return ErrorClassification{Retryable: true, RecordFailure: true}
	})
	if attempts != 1 {
		t.Fatalf("expected a single attempt by default, got %d", attempts)
	}
}

type observerFake struct {
	transitions []string
	retries     []string
}

func (o *observerFake) BreakerStateChanged(dependency, operation, from, to string) {
	o.transitions = append(o.transitions, dependency+"|"+operation+"|"+from+"->"+to)
}

func (o *observerFake) RetryScheduled(dependency, operation string) {
	o.retries = append(o.retries, dependency+"|"+operation)
}

func TestOperationPolicyOverridesDependencyPolicy(t *testing.T) {
	fast := Config{RetryMaxAttempts: 4, RetryInitialBackoff: time.Millisecond, RetryMaxBackoff: time.Millisecond}
	exec := NewExecutor(Config{RetryMaxAttempts: 1},
		WithPolicy(DependencyQdrant, Config{RetryMaxAttempts: 2, RetryInitialBackoff: time.Millisecond, RetryMaxBackoff: time.Millisecond}),
		WithPolicy("qdrant.upsert", fast),
	)

	retryable := func(error) ErrorClassification {
		return ErrorClassification{Retryable: true, RecordFailure: false}
	}
	attempts := map[string]int{}
	for _, op := range []string{"qdrant.upsert", "qdrant.search", "ollama.embed"} {
		_ = exec.Execute(context.Background(), op, func(context.Context) error {
			attempts[op]++
			return errors.New("unavailable")
		}, retryable)
	}

	if attempts["qdrant.upsert"] != 4 {
		t.Fatalf("expected operation policy to allow 4 attempts, got %d", attempts["qdrant.upsert"])
	}
	if attempts["qdrant.search"] != 2 {
		t.Fatalf("expected dependency policy to allow 2 attempts, got %d", attempts["qdrant.search"])
	}
	if attempts["ollama.embed"] != 1 {
		t.Fatalf("expected base policy single attempt, got %d", attempts["ollama.embed"])
	}
	if got := exec.Policy("legislation.fetch").RetryMaxAttempts; got != 1 {
		t.Fatalf("unconfigured dependency should use base policy, got %d attempts", got)
	}
}

func TestObserverReceivesBreakerTransitionsAndRetries(t *testing.T) {
	observer := &observerFake{}
	exec := NewExecutor(DefaultConfig(),
		WithObserver(observer),
		WithPolicy(DependencyLegislation, Config{
			RetryMaxAttempts:        2,
			RetryInitialBackoff:     time.Millisecond,
			RetryMaxBackoff:         time.Millisecond,
			BreakerEnabled:          true,
			BreakerMinRequests:      1,
			BreakerFailureRatio:     1,
			BreakerOpenTimeout:      time.Minute,
			BreakerHalfOpenMaxCalls: 1,
		}),
	)

	err := exec.Execute(context.Background(), "legislation.fetch", func(context.Context) error {
		return errors.New("connection reset")
	}, func(error) ErrorClassification {
		return ErrorClassification{Retryable: true, RecordFailure: true}
	})
	if err == nil {
		t.Fatalf("expected fetch failure")
	}

	if len(observer.retries) != 1 || observer.retries[0] != "legislation|legislation.fetch" {
		t.Fatalf("unexpected retries: %v", observer.retries)
	}
	if len(observer.transitions) != 1 || observer.transitions[0] != "legislation|legislation.fetch|closed->open" {
		t.Fatalf("unexpected transitions: %v", observer.transitions)
	}
	if state := exec.BreakerState("legislation.fetch"); state != "open" {
		t.Fatalf("expected open fetch breaker, got %q", state)
	}
	if state := exec.BreakerState("ollama.embed"); state != "closed" {
		t.Fatalf("other dependencies must stay closed, got %q", state)
	}

	err = exec.Execute(context.Background(), "legislation.fetch", func(context.Context) error {
		t.Fatalf("open breaker must short-circuit the fetch")
		return nil
	}, nil)
	if !IsCircuitOpen(err) {
		t.Fatalf("expected open circuit error, got %v", err)
	}
}

func TestBackoffGrowsUpToMax(t *testing.T) {
	cfg := Config{RetryInitialBackoff: 10 * time.Millisecond, RetryMaxBackoff: 35 * time.Millisecond, RetryMultiplier: 2}
	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 35 * time.Millisecond, 35 * time.Millisecond}
	for i, w := range want {
		if got := cfg.backoff(i + 1); got != w {
			t.Fatalf("backoff(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestDependencyOf(t *testing.T) {
	cases := map[string]string{
		"qdrant.create_payload_index": "qdrant",
		"nats.publish":                "nats",
		"standalone":                  "standalone",
	}
	for op, want := range cases {
		if got := DependencyOf(op); got != want {
			t.Fatalf("DependencyOf(%q) = %q, want %q", op, got, want)
		}
	}
}
