package wps

import (
	"math"
	"net/http"
	"strconv"
	"time"
)

// OutcomeClass classifies the result of one send attempt
type OutcomeClass int

const (
	OutcomeSuccess OutcomeClass = iota
	OutcomeTransient
	OutcomePermanent
)

func (c OutcomeClass) String() string {
	switch c {
	case OutcomeSuccess:
		return "success"
	case OutcomeTransient:
		return "transient"
	case OutcomePermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Outcome is what one attempt produced
type Outcome struct {
	Class OutcomeClass
	// RetryAfter is the server-requested minimum wait, zero when absent
	RetryAfter time.Duration
}

// Decision tells the dispatcher whether and how long to wait before the next attempt
type Decision struct {
	Retry bool
	Wait  time.Duration
}

// RetryPolicy bounds delivery retries
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Jitter is the relative spread applied to each backoff, 0.2 means ±20%
	Jitter float64
}

// DefaultRetryPolicy returns the delivery retry defaults
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 4,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    8 * time.Second,
		Jitter:      0.2,
	}
}

// Decide returns what to do after the given 1-based attempt. jitter is a
// sample in [-1, 1] scaled by the policy's Jitter. Retry-After raises the
// wait up to MaxDelay; a longer Retry-After stops retrying. It performs no I/O.
func (p RetryPolicy) Decide(attempt int, outcome Outcome, jitter float64) Decision {
	if outcome.Class != OutcomeTransient || attempt >= p.MaxAttempts {
		return Decision{}
	}
	// a server asking for more than MaxDelay is not waited for
	if p.MaxDelay > 0 && outcome.RetryAfter > p.MaxDelay {
		return Decision{}
	}

	backoff := float64(p.BaseDelay) * math.Pow(2, float64(attempt-1))
	if p.MaxDelay > 0 && backoff > float64(p.MaxDelay) {
		backoff = float64(p.MaxDelay)
	}

	jitter = math.Max(-1, math.Min(1, jitter))
	wait := time.Duration(backoff * (1 + p.Jitter*jitter))
	if wait < 0 {
		wait = 0
	}
	if outcome.RetryAfter > wait {
		wait = outcome.RetryAfter
	}

	return Decision{Retry: true, Wait: wait}
}

// classifyStatus maps an HTTP status onto an outcome class
func classifyStatus(status int) OutcomeClass {
	switch {
	case status >= 200 && status < 300:
		return OutcomeSuccess
	case status == http.StatusTooManyRequests, status >= 500:
		return OutcomeTransient
	default:
		return OutcomePermanent
	}
}

// parseRetryAfter accepts delay-seconds or an HTTP date
func parseRetryAfter(value string, now time.Time) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
