package eventbus

import (
	"context"
	"fmt"
)

// semaphore bounds how many Kafka sends the dispatcher's workers may
// have in flight at once. Adapted from
// collab-service/backend/internal/collab/semaphore_control.go.
type semaphore struct {
	ch chan struct{}
}

func newSemaphore(max int) *semaphore {
	if max <= 0 {
		max = 100
	}
	return &semaphore{ch: make(chan struct{}, max)}
}

func (s *semaphore) Acquire(ctx context.Context) error {
	select {
	case s.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("acquire semaphore: %w", ctx.Err())
	}
}

func (s *semaphore) Release() {
	select {
	case <-s.ch:
	default:
	}
}
