// Package jobs runs background maintenance for the booking service.
package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Completer closes confirmed reservations whose end has passed.
type Completer interface {
	CompleteDue(ctx context.Context) (int, error)
}

// Sweeper periodically asks a Completer to close finished reservations.
type Sweeper struct {
	completer Completer
	interval  time.Duration
	logger    *slog.Logger

	mu      sync.Mutex
	running bool
}

// NewSweeper builds a sweeper ticking every interval.
func NewSweeper(completer Completer, interval time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		completer: completer,
		interval:  interval,
		logger:    logger.With(slog.String("component", "completion_sweeper")),
	}
}

// Run sweeps once immediately and then on every tick until ctx is done. A
// non-positive interval disables the sweeper and Run returns nil at once.
func (s *Sweeper) Run(ctx context.Context) error {
	if s.interval <= 0 {
		s.logger.Info("completion sweeper disabled")
		return nil
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("jobs: sweeper already running")
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	t := time.NewTicker(s.interval)
	defer t.Stop()

	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			s.tick(ctx)
		}
	}
}

// Start runs the sweeper in a goroutine. The returned function cancels it
// and waits for the loop to exit.
func (s *Sweeper) Start(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := s.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("completion sweeper stopped", slog.Any("error", err))
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// SweepOnce performs a single pass.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	return s.completer.CompleteDue(ctx)
}

func (s *Sweeper) tick(ctx context.Context) {
	completed, err := s.completer.CompleteDue(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Error("completion sweep failed", slog.Any("error", err))
		return
	}
	if completed > 0 {
		s.logger.Info("completed reservations", slog.Int("count", completed))
	}
}
