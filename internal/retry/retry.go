// Package retry is the one retry policy shared by every outbound network
// call: a bounded attempt count plus a backoff function.
package retry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds how often and how patiently an operation is retried.
// Multiplier <= 1 gives a constant delay.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
}

// Exponential doubles the delay after every failed attempt.
func Exponential(attempts int, initial time.Duration) Policy {
	return Policy{MaxAttempts: attempts, InitialDelay: initial, Multiplier: 2}
}

// Constant waits the same delay between attempts.
func Constant(attempts int, delay time.Duration) Policy {
	return Policy{MaxAttempts: attempts, InitialDelay: delay, Multiplier: 1}
}

// None runs the operation exactly once.
func None() Policy {
	return Policy{MaxAttempts: 1}
}

func (p Policy) attempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	var b backoff.BackOff
	if p.Multiplier <= 1 {
		b = backoff.NewConstantBackOff(p.InitialDelay)
	} else {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = p.InitialDelay
		eb.Multiplier = p.Multiplier
		eb.RandomizationFactor = 0
		eb.MaxElapsedTime = 0
		if p.MaxDelay > 0 {
			eb.MaxInterval = p.MaxDelay
		} else {
			eb.MaxInterval = time.Hour
		}
		b = eb
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.attempts()-1)), ctx)
}

// Notify is called after a failed attempt that will be retried.
type Notify func(err error, attempt int, next time.Duration)

// Do runs op until it succeeds, returns a Permanent error, the attempt
// ceiling is reached, or ctx is done. The last error is returned.
func (p Policy) Do(ctx context.Context, op func() error, notify Notify) error {
	attempt := 0
	wrapped := func() error {
		attempt++
		return op()
	}
	var n backoff.Notify
	if notify != nil {
		n = func(err error, next time.Duration) { notify(err, attempt, next) }
	}
	return backoff.RetryNotify(wrapped, p.backOff(ctx), n)
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 300 {
		body = body[:300] + "..."
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, body)
}

// CheckStatus turns a response status into nil, a retryable StatusError or a
// permanent one. Only 408, 429 and 5xx are retried.
func CheckStatus(code int, body []byte) error {
	if code >= 200 && code < 300 {
		return nil
	}
	err := &StatusError{StatusCode: code, Body: string(body)}
	if code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500 {
		return err
	}
	return Permanent(err)
}

// IsStatus reports whether err carries the given HTTP status.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}
