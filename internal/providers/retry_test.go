package providers

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryDo_SucceedsAfterTransientErrors(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}
	attempts := 0

	got, err := RetryDo(context.Background(), cfg, func() (string, error) {
		attempts++
		if attempts < 3 {
			return "", &HTTPError{Status: 503, Body: "unavailable"}
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if got != "ok" || attempts != 3 {
		t.Fatalf("expected 3 attempts ending in ok, got %q after %d attempts", got, attempts)
	}
}

func TestRetryDo_NonRetryableErrorStopsImmediately(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}
	attempts := 0

	_, err := RetryDo(context.Background(), cfg, func() (string, error) {
		attempts++
		return "", &HTTPError{Status: 400, Body: "bad request"}
	})
	if err == nil {
		t.Fatalf("expected an error")
	}
	if attempts != 1 {
		t.Fatalf("expected a 400 to never be retried, got %d attempts", attempts)
	}
}

func TestRetryDo_GenericErrorIsNotRetried(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}
	attempts := 0

	_, err := RetryDo(context.Background(), cfg, func() (string, error) {
		attempts++
		return "", errors.New("boom")
	})
	if err == nil || attempts != 1 {
		t.Fatalf("expected a plain error to stop after one attempt, got err=%v attempts=%d", err, attempts)
	}
}

func TestRetryDo_ExhaustsMaxAttempts(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}
	attempts := 0

	_, err := RetryDo(context.Background(), cfg, func() (string, error) {
		attempts++
		return "", &HTTPError{Status: 429, Body: "rate limited"}
	})
	if err == nil {
		t.Fatalf("expected an error after exhausting attempts")
	}
	if attempts != 2 {
		t.Fatalf("expected exactly MaxAttempts calls, got %d", attempts)
	}
}

func TestRetryDo_RespectsContextCancellation(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: 10 * time.Second}
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := RetryDo(ctx, cfg, func() (string, error) {
		attempts++
		return "", &HTTPError{Status: 500, Body: "err"}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestParseRetryAfter(t *testing.T) {
	if got := ParseRetryAfter(""); got != 0 {
		t.Fatalf("expected 0 for empty header, got %v", got)
	}
	if got := ParseRetryAfter("not-a-number"); got != 0 {
		t.Fatalf("expected 0 for malformed header, got %v", got)
	}
	if got := ParseRetryAfter("5"); got != 5*time.Second {
		t.Fatalf("expected 5s, got %v", got)
	}
}
