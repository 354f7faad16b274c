// Package clock centralises time lookups so that tests can pin them.
package clock

import "time"

// NowFunc returns current time. Override in tests for determinism.
var NowFunc = func() time.Time { return time.Now().UTC() }

// Now returns the current UTC time.
func Now() time.Time { return NowFunc() }

// NowPtr returns a pointer to the current time, handy for optional timestamps.
func NowPtr() *time.Time {
	t := Now()
	return &t
}

// Since reports the elapsed time since t using NowFunc.
func Since(t time.Time) time.Duration { return Now().Sub(t) }
