package utils

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGoroutineLeakDetector(t *testing.T) {
	t.Run("NoLeak", func(t *testing.T) {
		detector := NewGoroutineLeakDetector(t).Start()

		ch := make(chan struct{})
		go func() {
			ch <- struct{}{}
		}()
		<-ch

		assert.LessOrEqual(t, detector.Check(), 0)
	})

	t.Run("DetectsLeak", func(t *testing.T) {
		var reports []string
		detector := NewGoroutineLeakDetector(t).
			SetReporter(func(format string, args ...interface{}) {
				reports = append(reports, fmt.Sprintf(format, args...))
			}).
			Start()

		stop := make(chan struct{})
		go func() { <-stop }()

		leaked := detector.Check()
		close(stop)

		assert.GreaterOrEqual(t, leaked, 1)
		assert.Len(t, reports, 1)
		assert.Contains(t, reports[0], "goroutine leak")
	})
}
