package flow

import (
	"math/rand"
	"time"
)

// ErrInvalidRetryPolicy is returned by RetryPolicy.Validate when the policy's
// fields are mutually inconsistent.
var ErrInvalidRetryPolicy = &ConstructionError{Code: "INVALID_RETRY_POLICY", Message: "invalid retry policy"}

// RetryPolicy configures automatic retry of a node's process step on
// transient failure. It attaches to a node alongside its ProcessorKind and
// is consulted by the Executor and BatchRunner whenever Process returns an
// error.
//
// Retries never re-run Init: a node's internal state survives across
// retried process attempts, and is only discarded by Release.
type RetryPolicy struct {
	// MaxAttempts is the maximum number of process attempts, including the
	// first. Must be >= 1. A value of 1 means no retries.
	MaxAttempts int

	// BaseDelay is the base delay for exponential backoff between attempts.
	BaseDelay time.Duration

	// MaxDelay caps the computed backoff delay.
	MaxDelay time.Duration

	// Retryable decides whether a given process error should trigger a
	// retry. If nil, no error is considered retryable and MaxAttempts is
	// effectively 1.
	Retryable func(error) bool
}

// Validate reports whether rp's fields are internally consistent.
func (rp *RetryPolicy) Validate() error {
	if rp.MaxAttempts < 1 {
		return ErrInvalidRetryPolicy
	}
	if rp.MaxDelay > 0 && rp.BaseDelay > 0 && rp.MaxDelay < rp.BaseDelay {
		return ErrInvalidRetryPolicy
	}
	return nil
}

func (rp *RetryPolicy) shouldRetry(attempt int, err error) bool {
	if rp == nil || rp.Retryable == nil {
		return false
	}
	if attempt+1 >= rp.MaxAttempts {
		return false
	}
	return rp.Retryable(err)
}

// computeBackoff returns the delay before the next attempt, using
// exponential backoff with jitter: min(base*2^attempt, maxDelay) + jitter(0,base).
func computeBackoff(attempt int, base, maxDelay time.Duration, rng *rand.Rand) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base * (1 << attempt)
	if maxDelay > 0 && delay > maxDelay {
		delay = maxDelay
	}
	var jitter time.Duration
	if rng != nil {
		jitter = time.Duration(rng.Int63n(int64(base)))
	} else {
		jitter = time.Duration(rand.Int63n(int64(base))) // #nosec G404 -- jitter for retry timing, not security
	}
	return delay + jitter
}
