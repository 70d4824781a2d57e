// Package retry is the single backoff primitive shared by the fetcher,
// uploader and notifier. Whether an error is retryable is a data
// classification, not an exception hierarchy: transport failures and a fixed
// allow-list of HTTP statuses retry, everything else propagates immediately.
package retry

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/url"
	"syscall"
	"time"

	"github.com/renderq/renderq/pkg/domain"
)

// Policy is an immutable retry configuration.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration

	// Classify overrides the default retryability rule when non-nil.
	Classify func(error) bool
}

// ExhaustedError aggregates a run of failed attempts.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("giving up after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

var retryableStatuses = map[int]bool{
	500: true,
	502: true,
	503: true,
	504: true,
}

// Retryable is the default classification. Resource exhaustion and content
// errors are fatal; transport-level failures retry; an embedded HTTP status
// retries only for 500, 502, 503 and 504.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, domain.ErrResourceExhausted) {
		return false
	}
	var contentErr *domain.ContentError
	if errors.As(err, &contentErr) {
		return false
	}
	var statusErr *domain.StatusError
	if errors.As(err, &statusErr) {
		return retryableStatuses[statusErr.Code]
	}
	var transportErr *domain.TransportError
	if errors.As(err, &transportErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var tlsErr *tls.CertificateVerificationError
	if errors.As(err, &tlsErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		// url.Error wraps every transport failure the http client produces.
		return true
	}
	return false
}

// sleepFn is replaced in tests to observe computed delays.
var sleepFn = sleepCtx

// Do runs op up to policy.MaxAttempts times, sleeping
// BaseDelay * 2^(attempt-1) between retryable failures. A non-retryable error
// propagates as-is after a single attempt; exhaustion collapses into one
// ExhaustedError naming the attempt count.
func Do[T any](ctx context.Context, policy Policy, op func(context.Context) (T, error)) (T, error) {
	var zero T
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 3
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = time.Second
	}
	classify := policy.Classify
	if classify == nil {
		classify = Retryable
	}

	var last error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		last = err
		if !classify(err) {
			return zero, err
		}
		if attempt == policy.MaxAttempts {
			break
		}
		delay := policy.BaseDelay << uint(attempt-1)
		if err := sleepFn(ctx, delay); err != nil {
			return zero, err
		}
	}
	return zero, &ExhaustedError{Attempts: policy.MaxAttempts, Last: last}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
