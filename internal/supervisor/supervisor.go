// Package supervisor implements the Supervisor (spec §4.I): owns the four
// tasks, installs the process's termination/interrupt signal handlers,
// recovers panics so the remaining tasks can still drain, and reports the
// exit code spec §6 defines.
//
// The graceful-shutdown wiring — signal.NotifyContext bound to a context
// threaded through every task, cancellation checked at the top of each
// task's loop — is the same pattern the teacher's replication worker uses
// to fix its own previously-signal-less shutdown path.
package supervisor

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/pjatk21/sigma-api/internal/bus"
	"github.com/pjatk21/sigma-api/internal/model"
)

// ExitCode mirrors spec §6.
type ExitCode int

const (
	ExitClean ExitCode = 0
	ExitFatal ExitCode = 1
	ExitPanic ExitCode = 2
)

// Task is one of the four top-level components the Supervisor owns.
type Task struct {
	Name string
	// Run executes the task. It must return promptly once ctx is done or
	// a Quit has been observed on the bus, whichever the task listens for.
	Run func(ctx context.Context) error
}

// Supervisor owns task lifecycles and the process-level signal handlers.
type Supervisor struct {
	bus    *bus.Bus
	logger *zap.Logger
}

// New builds a Supervisor bound to b.
func New(b *bus.Bus, logger *zap.Logger) *Supervisor {
	return &Supervisor{bus: b, logger: logger}
}

// Run starts every task, installs SIGTERM/SIGINT handling, waits for all
// tasks to finish, and returns the process exit code (spec §4.I, §6, §7).
func (s *Supervisor) Run(parent context.Context, tasks []Task) ExitCode {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var fatalErr error
	panicked := false

	for _, t := range tasks {
		wg.Add(1)
		go func(t Task) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("task panicked, publishing quit to drain remaining tasks",
						zap.String("task", t.Name), zap.Any("recover", r))
					mu.Lock()
					panicked = true
					mu.Unlock()
					s.bus.Publish(model.BusMessage{Kind: model.KindQuit})
				}
			}()
			if err := t.Run(ctx); err != nil {
				s.logger.Error("task returned fatal error", zap.String("task", t.Name), zap.Error(err))
				mu.Lock()
				if fatalErr == nil {
					fatalErr = err
				}
				mu.Unlock()
				s.bus.Publish(model.BusMessage{Kind: model.KindQuit})
			}
		}(t)
	}

	// Watch for the process signal independently of the tasks: as soon as
	// ctx is cancelled by SIGTERM/SIGINT, publish Quit so every task that
	// subscribes to the bus observes it (spec §4.I).
	go func() {
		<-ctx.Done()
		s.logger.Info("shutdown signal received, publishing quit")
		s.bus.Publish(model.BusMessage{Kind: model.KindQuit})
	}()

	wg.Wait()
	s.bus.Close()

	mu.Lock()
	defer mu.Unlock()
	switch {
	case panicked:
		return ExitPanic
	case fatalErr != nil:
		return ExitFatal
	default:
		return ExitClean
	}
}
