package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
)

var errSubjectDown = errors.New("snapshot subject unreachable")

func publishClassifier(err error) ErrorClassification {
	return ErrorClassification{
		Retryable:     errors.Is(err, errSubjectDown),
		RecordFailure: true,
	}
}

func fastRetryConfig() Config {
	return Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 1 * time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
		BreakerEnabled:      false,
	}
}

func TestExecuteRetriesTransientPublishFailure(t *testing.T) {
	exec := NewExecutor(fastRetryConfig())

	publishes := 0
	err := exec.Execute(context.Background(), "snapshot.publish", func(context.Context) error {
		publishes++
		if publishes < 3 {
			return errSubjectDown
		}
		return nil
	}, publishClassifier)
	if err != nil {
		t.Fatalf("expected the publish to land after retries, got %v", err)
	}
	if publishes != 3 {
		t.Fatalf("expected 3 publish attempts, got %d", publishes)
	}
}

func TestExecuteGivesUpOnPermanentFailure(t *testing.T) {
	exec := NewExecutor(fastRetryConfig())

	errBadPayload := errors.New("invalid snapshot payload")
	publishes := 0
	err := exec.Execute(context.Background(), "snapshot.publish", func(context.Context) error {
		publishes++
		return errBadPayload
	}, publishClassifier)
	if !errors.Is(err, errBadPayload) {
		t.Fatalf("expected the payload error back, got %v", err)
	}
	if publishes != 1 {
		t.Fatalf("a permanent failure must not be retried, got %d attempts", publishes)
	}
}

func TestExecuteOpensBreakerForFailingSubject(t *testing.T) {
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

	classifier := func(error) ErrorClassification {
		return ErrorClassification{RecordFailure: true}
	}
	for i := 0; i < 2; i++ {
		err := exec.Execute(context.Background(), "snapshot.publish", func(context.Context) error {
			return errSubjectDown
		}, classifier)
		if !errors.Is(err, errSubjectDown) {
			t.Fatalf("publish %d: expected the subject error, got %v", i, err)
		}
	}

	err := exec.Execute(context.Background(), "snapshot.publish", func(context.Context) error {
		t.Fatalf("open breaker must not reach the publisher")
		return nil
	}, classifier)
	if !IsCircuitOpen(err) || !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected an open-circuit error, got %v", err)
	}
}

func TestExecuteUnrecordedFailuresLeaveBreakerClosed(t *testing.T) {
	cfg := fastRetryConfig()
	cfg.RetryMaxAttempts = 1
	cfg.BreakerEnabled = true
	cfg.BreakerMinRequests = 2
	cfg.BreakerFailureRatio = 0.5
	cfg.BreakerOpenTimeout = 50 * time.Millisecond
	cfg.BreakerHalfOpenMaxCalls = 1
	exec := NewExecutor(cfg)

	errRejected := errors.New("snapshot rejected")
	// Failures the classifier declines to record never trip the breaker.
	classifier := func(error) ErrorClassification {
		return ErrorClassification{}
	}
	for i := 0; i < 5; i++ {
		err := exec.Execute(context.Background(), "snapshot.publish", func(context.Context) error {
			return errRejected
		}, classifier)
		if !errors.Is(err, errRejected) {
			t.Fatalf("publish %d: expected the rejection back, got %v", i, err)
		}
	}
}
