package pipeline

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Supervisor tracks background pipeline runs so shutdown can wait for them
// and panics in a run never take the process down.
type Supervisor struct {
	logger zerolog.Logger
	wg     sync.WaitGroup
	active atomic.Int64
}

// NewSupervisor creates an idle supervisor.
func NewSupervisor(logger zerolog.Logger) *Supervisor {
	return &Supervisor{logger: logger}
}

// Go runs fn on its own goroutine, tracked until it returns.
func (s *Supervisor) Go(ctx context.Context, name string, fn func(ctx context.Context)) {
	s.wg.Add(1)
	s.active.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.active.Add(-1)
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error().
					Str("task", name).
					Interface("panic", r).
					Msg("pipeline: background task panicked")
			}
		}()
		fn(ctx)
	}()
}

// Active reports how many tracked tasks are still running.
func (s *Supervisor) Active() int {
	return int(s.active.Load())
}

// Wait blocks until every tracked task has returned.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}
