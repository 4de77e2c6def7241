// Package worker runs the background loops: hold sweeper, pending-payment
// reconciler, outbox relay and the Redis expiry listener.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Task runs every Every. Run returns how many items it handled.
type Task struct {
	Name  string
	Every time.Duration
	Run   func(ctx context.Context) (int, error)
}

// Listener blocks until ctx is done.
type Listener struct {
	Name string
	Run  func(ctx context.Context) error
}

type Runner struct {
	tasks     []Task
	listeners []Listener

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRunner(tasks []Task, listeners []Listener) *Runner {
	return &Runner{tasks: tasks, listeners: listeners}
}

func (r *Runner) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	for _, task := range r.tasks {
		if task.Every <= 0 {
			slog.Warn("worker disabled, no interval", slog.String("worker", task.Name))
			continue
		}
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.loop(ctx, task)
		}()
	}
	for _, l := range r.listeners {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.listen(ctx, l)
		}()
	}
}

// Stop cancels every loop and waits for them until ctx expires.
func (r *Runner) Stop(ctx context.Context) error {
	if r.cancel == nil {
		return nil
	}
	r.cancel()
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) loop(ctx context.Context, task Task) {
	ticker := time.NewTicker(task.Every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			RunOnce(ctx, task)
		}
	}
}

// RunOnce runs one iteration of task and logs the result.
func RunOnce(ctx context.Context, task Task) {
	n, err := task.Run(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Error("worker iteration failed",
			slog.String("worker", task.Name),
			slog.String("error", err.Error()))
		return
	}
	if n > 0 {
		slog.Info("worker iteration done",
			slog.String("worker", task.Name),
			slog.Int("handled", n))
	}
}

// listen restarts l after a failure, waiting a second between attempts.
func (r *Runner) listen(ctx context.Context, l Listener) {
	for {
		err := l.Run(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			slog.Warn("listener stopped, restarting",
				slog.String("listener", l.Name),
				slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}
