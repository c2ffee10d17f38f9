package resilience

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain verifies no test leaks goroutines: pool sweepers, drain timers,
// and abandoned waiters must all be reclaimed.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
