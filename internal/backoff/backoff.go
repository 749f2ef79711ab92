// Package backoff computes retry delays from a workflow's retry policy.
package backoff

import (
	"math"
	"time"

	"github.com/mhersta/conveyor/pkg/api"
)

// NextDelay returns the delay before the retryCount-th retry under the given
// policy:
//
//	min(MaxDelaySeconds, InitialDelaySeconds * BackoffMultiplier^(retryCount-1))
//
// rounded to a whole number of seconds and floored at InitialDelaySeconds.
// retryCount is 1-indexed: the first retry uses exponent 0. Values below 1
// are treated as 1, so the function is total.
func NextDelay(retryCount int, policy api.RetryPolicy) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}
	p := policy.Normalized()

	raw := float64(p.InitialDelaySeconds) * math.Pow(p.BackoffMultiplier, float64(retryCount-1))
	secs := math.Round(raw)

	// Guard against overflow from large exponents before comparing.
	if secs > float64(p.MaxDelaySeconds) || math.IsInf(raw, 1) || math.IsNaN(raw) {
		secs = float64(p.MaxDelaySeconds)
	}
	if secs < float64(p.InitialDelaySeconds) {
		secs = float64(p.InitialDelaySeconds)
	}

	return time.Duration(secs) * time.Second
}
