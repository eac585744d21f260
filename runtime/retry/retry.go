// Package retry repeats an operation with capped, jittered exponential
// backoff.
//
//	for l := retry.Default.Start(); l.Next(ctx); {
//		if err := dial(); err == nil {
//			break
//		}
//	}
package retry

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/kanengo/rigging/runtime/urandom"
)

// jitter is the fraction by which a delay is randomized.
const jitter = 0.4

// Policy describes the delays between attempts.
type Policy struct {
	Initial time.Duration
	Max     time.Duration // zero for no cap
	Factor  float64
	// Attempts stops the loop after that many attempts, zero for no limit.
	Attempts int
}

var Default = Policy{Initial: 10 * time.Millisecond, Max: 2 * time.Second, Factor: 1.3}

// Delay returns the un-jittered wait before attempt n+1.
func (p Policy) Delay(n int) time.Duration {
	d := float64(p.Initial) * math.Pow(p.Factor, float64(n))
	if p.Max > 0 && d > float64(p.Max) {
		return p.Max
	}
	return time.Duration(d)
}

func (p Policy) Start() *Loop { return &Loop{policy: p} }

type Loop struct {
	policy  Policy
	attempt int
}

// Next waits before every attempt but the first one and reports whether the
// caller should try again.
func (l *Loop) Next(ctx context.Context) bool {
	if l.policy.Attempts > 0 && l.attempt >= l.policy.Attempts {
		return false
	}
	if l.attempt > 0 {
		wait(ctx, urandom.Jitter(l.policy.Delay(l.attempt), jitter))
	}
	l.attempt++
	return ctx.Err() == nil
}

// Attempt is the number of attempts started so far.
func (l *Loop) Attempt() int { return l.attempt }

type permanent struct{ err error }

func (p permanent) Error() string { return p.err.Error() }
func (p permanent) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanent{err}
}

// Do calls fn until it succeeds or returns a Permanent error, the attempts
// run out or ctx is done. It returns the last error of fn.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	var last error
	for l := p.Start(); l.Next(ctx); {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		var perm permanent
		if errors.As(err, &perm) {
			return perm.err
		}
		last = err
	}
	if last == nil {
		last = ctx.Err()
	}
	return last
}

func wait(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
