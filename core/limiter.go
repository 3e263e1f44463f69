package core

import (
	"fmt"
	"sync"
)

// StepLimiter bounds the number of scoring steps a single turn may take.
type StepLimiter struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewStepLimiter creates a limiter allowing max steps. A max below one
// allows a single step.
func NewStepLimiter(max int) *StepLimiter {
	if max < 1 {
		max = 1
	}

	return &StepLimiter{max: max}
}

// Increment counts one step and returns ErrStepLimit once the limit is exceeded.
func (sl *StepLimiter) Increment() error {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	sl.count++
	if sl.count > sl.max {
		return fmt.Errorf("%w: %d", ErrStepLimit, sl.max)
	}

	return nil
}

// Count returns the number of steps taken.
func (sl *StepLimiter) Count() int {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	return sl.count
}
