package retry

import (
	"context"
	"errors"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/renderq/renderq/pkg/domain"
)

func captureSleeps(t *testing.T) *[]time.Duration {
	t.Helper()
	var slept []time.Duration
	orig := sleepFn
	sleepFn = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	t.Cleanup(func() { sleepFn = orig })
	return &slept
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	slept := captureSleeps(t)

	calls := 0
	got, err := Do(context.Background(), Policy{MaxAttempts: 5, BaseDelay: time.Second}, func(context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if got != "ok" || calls != 1 {
		t.Errorf("got %q after %d calls, want \"ok\" after 1", got, calls)
	}
	if len(*slept) != 0 {
		t.Errorf("slept %v, want no sleeps", *slept)
	}
}

func TestDoRetriesThenSucceeds(t *testing.T) {
	slept := captureSleeps(t)

	base := 100 * time.Millisecond
	calls := 0
	got, err := Do(context.Background(), Policy{MaxAttempts: 5, BaseDelay: base}, func(context.Context) (int, error) {
		calls++
		if calls <= 3 {
			return 0, &domain.TransportError{Err: errors.New("connection reset")}
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if got != 42 || calls != 4 {
		t.Errorf("got %d after %d calls, want 42 after 4", got, calls)
	}
	want := []time.Duration{base, 2 * base, 4 * base}
	if len(*slept) != len(want) {
		t.Fatalf("slept %v, want %v", *slept, want)
	}
	for i, d := range want {
		if (*slept)[i] != d {
			t.Errorf("delay[%d] = %v, want %v", i, (*slept)[i], d)
		}
	}
}

func TestDoNonRetryableStatusInvokedOnce(t *testing.T) {
	slept := captureSleeps(t)

	calls := 0
	_, err := Do(context.Background(), Policy{MaxAttempts: 5, BaseDelay: time.Second}, func(context.Context) (int, error) {
		calls++
		return 0, &domain.StatusError{Code: 404}
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	var statusErr *domain.StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != 404 {
		t.Errorf("Do() error = %v, want StatusError 404", err)
	}
	if len(*slept) != 0 {
		t.Errorf("slept %v, want no sleeps", *slept)
	}
}

func TestDoExhaustionNamesAttemptCount(t *testing.T) {
	captureSleeps(t)

	calls := 0
	_, err := Do(context.Background(), Policy{MaxAttempts: 3, BaseDelay: time.Second}, func(context.Context) (int, error) {
		calls++
		return 0, &domain.StatusError{Code: 503}
	})
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("Do() error = %v, want ExhaustedError", err)
	}
	if exhausted.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", exhausted.Attempts)
	}
	var statusErr *domain.StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != 503 {
		t.Errorf("last error = %v, want StatusError 503", exhausted.Last)
	}
}

func TestDoContentErrorNeverRetries(t *testing.T) {
	captureSleeps(t)

	calls := 0
	_, err := Do(context.Background(), Policy{MaxAttempts: 5, BaseDelay: time.Second}, func(context.Context) (int, error) {
		calls++
		return 0, &domain.ContentError{Reason: "not a PDF"}
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	var contentErr *domain.ContentError
	if !errors.As(err, &contentErr) {
		t.Errorf("Do() error = %v, want ContentError", err)
	}
}

func TestDoResourceExhaustedAbortsImmediately(t *testing.T) {
	captureSleeps(t)

	calls := 0
	_, err := Do(context.Background(), Policy{MaxAttempts: 5, BaseDelay: time.Second}, func(context.Context) (int, error) {
		calls++
		return 0, domain.ErrResourceExhausted
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if !errors.Is(err, domain.ErrResourceExhausted) {
		t.Errorf("Do() error = %v", err)
	}
}

func TestDoContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := Do(ctx, Policy{MaxAttempts: 3, BaseDelay: time.Hour}, func(context.Context) (int, error) {
		calls++
		return 0, &domain.StatusError{Code: 502}
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() error = %v, want context.Canceled", err)
	}
}

func TestRetryableClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transport", &domain.TransportError{Err: errors.New("boom")}, true},
		{"dns", &net.DNSError{Err: "no such host", Name: "example.com"}, true},
		{"connection refused", syscall.ECONNREFUSED, true},
		{"connection reset", syscall.ECONNRESET, true},
		{"status 500", &domain.StatusError{Code: 500}, true},
		{"status 502", &domain.StatusError{Code: 502}, true},
		{"status 503", &domain.StatusError{Code: 503}, true},
		{"status 504", &domain.StatusError{Code: 504}, true},
		{"status 404", &domain.StatusError{Code: 404}, false},
		{"status 403", &domain.StatusError{Code: 403}, false},
		{"status 429", &domain.StatusError{Code: 429}, false},
		{"status 501", &domain.StatusError{Code: 501}, false},
		{"content", &domain.ContentError{Reason: "oversize"}, false},
		{"resource exhausted", domain.ErrResourceExhausted, false},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Retryable(tt.err); got != tt.want {
				t.Errorf("Retryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestDoCustomClassifier(t *testing.T) {
	captureSleeps(t)

	calls := 0
	_, err := Do(context.Background(), Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Classify:    func(error) bool { return false },
	}, func(context.Context) (int, error) {
		calls++
		return 0, &domain.StatusError{Code: 503}
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if err == nil {
		t.Error("expected error")
	}
}
