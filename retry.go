package conveyor

import "github.com/mhersta/conveyor/pkg/api"

// DefaultRetryPolicy returns the policy applied when a workflow definition
// carries none: 3 attempts, 5s initial delay, 300s cap, multiplier 2,
// retrying timeouts, network errors, rate limits, and server errors.
func DefaultRetryPolicy() RetryPolicy {
	return api.DefaultRetryPolicy()
}

// RetryBuilder provides a fluent way to construct RetryPolicy values for
// WorkflowBuilder.WithRetry.
type RetryBuilder struct {
	policy RetryPolicy
}

// Retry creates a RetryBuilder with the given maxAttempts.
//
// maxAttempts <= 0 is treated as 1 (no retries).
func Retry(maxAttempts int) RetryBuilder {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return RetryBuilder{
		policy: RetryPolicy{
			MaxAttempts: maxAttempts,
		},
	}
}

// WithExponentialBackoff configures exponential backoff:
//
//   - initialSeconds is the delay before the first retry.
//   - multiplier > 1 grows the delay each attempt (default 2.0 if <= 0).
//   - maxSeconds caps the delay.
//
// Example:
//
//	Retry(3).WithExponentialBackoff(5, 2.0, 300)
func (r RetryBuilder) WithExponentialBackoff(initialSeconds int, multiplier float64, maxSeconds int) RetryBuilder {
	p := r.policy
	p.InitialDelaySeconds = initialSeconds
	p.MaxDelaySeconds = maxSeconds
	if multiplier <= 0 {
		multiplier = 2.0
	}
	p.BackoffMultiplier = multiplier
	return RetryBuilder{policy: p}
}

// WithConstantBackoff configures a constant delay between retries.
//
// This is equivalent to an exponential backoff with multiplier 1.0.
func (r RetryBuilder) WithConstantBackoff(delaySeconds int) RetryBuilder {
	p := r.policy
	p.InitialDelaySeconds = delaySeconds
	p.MaxDelaySeconds = delaySeconds
	p.BackoffMultiplier = 1.0
	return RetryBuilder{policy: p}
}

// RetryOn replaces the set of error kinds considered retryable.
func (r RetryBuilder) RetryOn(kinds ...ErrorKind) RetryBuilder {
	p := r.policy
	p.RetryOnErrors = kinds
	return RetryBuilder{policy: p}
}

// Policy returns the underlying RetryPolicy to be passed to
// WorkflowBuilder.WithRetry.
func (r RetryBuilder) Policy() RetryPolicy {
	return r.policy
}
