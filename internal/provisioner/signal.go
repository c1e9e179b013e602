package provisioner

import (
	"context"
	"time"
)

// slot is a single-value mailbox. A post replaces any value not yet
// taken, so the waiter always sees the most recent event.
type slot[T any] struct {
	ch chan T
}

func newSlot[T any]() *slot[T] {
	return &slot[T]{ch: make(chan T, 1)}
}

// post stores v, discarding an untaken value. It never blocks.
func (s *slot[T]) post(v T) {
	for {
		select {
		case s.ch <- v:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

// reset discards an untaken value.
func (s *slot[T]) reset() {
	select {
	case <-s.ch:
	default:
	}
}

// wait takes the value, giving up after timeout. ok is false on timeout
// or when ctx is done.
func (s *slot[T]) wait(ctx context.Context, timeout time.Duration) (v T, ok bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case v = <-s.ch:
		return v, true
	case <-timer.C:
		return v, false
	case <-ctx.Done():
		return v, false
	}
}
