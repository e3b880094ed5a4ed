// Package retry runs an operation with exponential backoff, waiting exactly
// as long as an upstream asks when it signals a rate limit.
package retry

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/mylife-as-miles/Jobraker-sub002/internal/domain"
	"github.com/mylife-as-miles/Jobraker-sub002/pkg/logger"
)

// rateLimitBuffer is added on top of a signalled retry-after.
const rateLimitBuffer = 500 * time.Millisecond

var retryAfterRe = regexp.MustCompile(`(?i)retry after (\d+)s`)

type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying. Do returns the wrapped error
// as soon as it sees one.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Classify marks errors another attempt cannot fix as permanent: context
// cancellation and upstream 4xx answers other than 408 and 429.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Permanent(err)
	}
	if ue, ok := domain.AsUpstream(err); ok && ue.Kind == domain.UpstreamHTTP &&
		ue.Status >= 400 && ue.Status < 500 && ue.Status != http.StatusRequestTimeout {
		return Permanent(err)
	}
	return err
}

// Do calls fn up to attempts times, sleeping Delay between failures. Attempts
// never overlap. The last error is returned once attempts are exhausted or
// ctx is done.
func Do[T any](ctx context.Context, attempts int, base time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return zero, perm.err
		}
		lastErr = err

		if i == attempts-1 {
			break
		}

		wait := Delay(err, i, base)
		logger.Debug("Retrying after failure",
			zap.Int("attempt", i+1),
			zap.Int("attempts", attempts),
			zap.Duration("wait", wait),
			zap.Error(err),
		)

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return zero, lastErr
		case <-t.C:
		}
	}
	return zero, lastErr
}

// Delay is the wait before attempt attemptIndex+1. A rate-limit signal on err
// replaces the exponential value with retry-after seconds plus a 500ms buffer.
func Delay(err error, attemptIndex int, base time.Duration) time.Duration {
	if secs, ok := RetryAfter(err); ok {
		return time.Duration(secs)*time.Second + rateLimitBuffer
	}
	return base * time.Duration(1<<uint(attemptIndex))
}

// RetryAfter extracts a signalled wait in seconds from err, either from a
// rate-limited UpstreamError or from a "retry after Ns" message.
func RetryAfter(err error) (int, bool) {
	if err == nil {
		return 0, false
	}
	if ue, ok := domain.AsUpstream(err); ok && ue.Kind == domain.UpstreamRateLimited && ue.RetryAfterSeconds > 0 {
		return ue.RetryAfterSeconds, true
	}
	if m := retryAfterRe.FindStringSubmatch(err.Error()); m != nil {
		if n, convErr := strconv.Atoi(m[1]); convErr == nil {
			return n, true
		}
	}
	return 0, false
}
