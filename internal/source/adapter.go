package source

import (
	"context"
	"fmt"
	"time"

	"sensorpipe/internal/model"
)

// FailurePolicy declares what a failed poll means for the cycle.
type FailurePolicy int

const (
	// FailClosed drops the adapter's output for the cycle and reports the error.
	FailClosed FailurePolicy = iota
	// FailOpenOffline replaces the failed output with synthetic offline readings.
	// The adapter must implement OfflineFallback.
	FailOpenOffline
)

func (p FailurePolicy) String() string {
	switch p {
	case FailClosed:
		return "fail_closed"
	case FailOpenOffline:
		return "fail_open_offline"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// Adapter converts one upstream API into canonical readings.
type Adapter interface {
	Name() string
	Policy() FailurePolicy
	Poll(ctx context.Context) ([]model.Reading, error)
}

// OfflineFallback builds the readings emitted in place of a failed poll.
type OfflineFallback interface {
	Fallback(now time.Time) []model.Reading
}

// UpstreamError is a recoverable, per-adapter failure.
type UpstreamError struct {
	Source string
	Op     string
	Err    error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Source, e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Outcome is the policy-applied result of polling one adapter.
type Outcome struct {
	Source   string
	Readings []model.Reading
	// Err is set when a fail-closed adapter failed; it belongs in the error log.
	Err error
	// Absorbed is set when a fail-open adapter failed and Readings hold its fallback.
	Absorbed error
	Elapsed  time.Duration
}

// Failed reports whether the adapter contributed nothing because of an error.
func (o Outcome) Failed() bool { return o.Err != nil }

// Run polls a bounded by timeout (0 disables it) and applies the adapter's failure policy.
// It never panics and never returns a fail-open adapter's error as Err.
func Run(ctx context.Context, a Adapter, timeout time.Duration, now func() time.Time) (out Outcome) {
	if now == nil {
		now = time.Now
	}
	out.Source = a.Name()
	start := time.Now()

	pollCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	readings, err := poll(pollCtx, a)
	out.Elapsed = time.Since(start)
	if err == nil {
		out.Readings = readings
		return out
	}

	if fb, ok := a.(OfflineFallback); ok && a.Policy() == FailOpenOffline {
		out.Readings = fb.Fallback(now())
		out.Absorbed = err
		return out
	}

	out.Err = err
	return out
}

func poll(ctx context.Context, a Adapter) (readings []model.Reading, err error) {
	defer func() {
		if r := recover(); r != nil {
			readings = nil
			err = &UpstreamError{Source: a.Name(), Op: "poll", Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	readings, err = a.Poll(ctx)
	if err == nil && ctx.Err() != nil {
		return nil, &UpstreamError{Source: a.Name(), Op: "poll", Err: ctx.Err()}
	}
	return readings, err
}
