package governance

import "context"

// Semaphore is a counting semaphore used to bound concurrent work across the
// whole process. Acquisition order is best-effort FIFO: goroutines block on a
// buffered channel and the runtime wakes them roughly in arrival order.
type Semaphore struct {
	slots chan struct{}
}

// NewSemaphore creates a semaphore admitting up to limit concurrent holders.
func NewSemaphore(limit int) *Semaphore {
	if limit < 1 {
		limit = 1
	}
	return &Semaphore{slots: make(chan struct{}, limit)}
}

// Acquire blocks until a slot is free or ctx is done. Callers must Release
// exactly once per successful Acquire.
func (s *Semaphore) Acquire(ctx context.Context) error {
	select {
	case s.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a previously acquired slot.
func (s *Semaphore) Release() {
	select {
	case <-s.slots:
	default:
		panic("governance: release of unacquired semaphore slot")
	}
}

// InFlight reports the number of currently held slots.
func (s *Semaphore) InFlight() int {
	return len(s.slots)
}
