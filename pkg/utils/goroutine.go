// Package utils holds test helpers shared across packages.
package utils

import (
	"runtime"
	"testing"
	"time"
)

// GoroutineLeakDetector compares goroutine counts before and after a block
// of work. Periodic-message tests use it to prove that stopping a message or
// closing a channel reaps its goroutines.
type GoroutineLeakDetector struct {
	tb             testing.TB
	report         func(format string, args ...interface{})
	initialCount   int
	allowedGrowth  int
	checkInterval  time.Duration
	stabilizeDelay time.Duration
}

// NewGoroutineLeakDetector creates a detector reporting leaks through tb.Errorf
func NewGoroutineLeakDetector(tb testing.TB) *GoroutineLeakDetector {
	return &GoroutineLeakDetector{
		tb:             tb,
		report:         tb.Errorf,
		checkInterval:  50 * time.Millisecond,
		stabilizeDelay: 100 * time.Millisecond,
	}
}

// Start records the initial goroutine count
func (d *GoroutineLeakDetector) Start() *GoroutineLeakDetector {
	time.Sleep(d.stabilizeDelay)
	d.initialCount = runtime.NumGoroutine()
	return d
}

// Check reports a leak when the goroutine count grew past the allowance and
// returns the growth observed.
func (d *GoroutineLeakDetector) Check() int {
	time.Sleep(d.stabilizeDelay)

	// goroutines still unwinding may inflate one sample; keep the lowest
	finalCount := runtime.NumGoroutine()
	for i := 0; i < 2; i++ {
		time.Sleep(d.checkInterval)
		if n := runtime.NumGoroutine(); n < finalCount {
			finalCount = n
		}
	}

	leaked := finalCount - d.initialCount
	if leaked > d.allowedGrowth {
		buf := make([]byte, 1<<20)
		stackLen := runtime.Stack(buf, true)
		d.report("goroutine leak: started with %d, ended with %d (allowed growth %d)\n%s",
			d.initialCount, finalCount, d.allowedGrowth, buf[:stackLen])
	}
	return leaked
}

// SetAllowedGrowth sets the number of goroutines allowed to grow
func (d *GoroutineLeakDetector) SetAllowedGrowth(n int) *GoroutineLeakDetector {
	d.allowedGrowth = n
	return d
}

// SetStabilizeDelay sets the delay to allow goroutines to stabilize
func (d *GoroutineLeakDetector) SetStabilizeDelay(delay time.Duration) *GoroutineLeakDetector {
	d.stabilizeDelay = delay
	return d
}

// SetReporter replaces tb.Errorf as the leak reporter
func (d *GoroutineLeakDetector) SetReporter(report func(format string, args ...interface{})) *GoroutineLeakDetector {
	d.report = report
	return d
}
