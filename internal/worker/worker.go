package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Task is a maintenance job run on a fixed interval.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

type Config struct {
	// RunTimeout bounds a single task execution.
	RunTimeout time.Duration
	Backoff    func(attempt int) time.Duration
}

type Worker struct {
	cfg   Config
	tasks []Task
	log   *slog.Logger

	readyMu sync.RWMutex
	ready   bool
}

func New(cfg Config, log *slog.Logger, tasks ...Task) *Worker {
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 30 * time.Second
	}
	if cfg.Backoff == nil {
		cfg.Backoff = ExponentialBackoff
	}
	if log == nil {
		log = slog.Default()
	}
	return &Worker{cfg: cfg, tasks: tasks, log: log}
}

// Run blocks until ctx is cancelled, running every task on its own schedule.
func (w *Worker) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	for _, t := range w.tasks {
		if t.Interval <= 0 || t.Run == nil {
			w.log.Warn("worker task skipped", "task", t.Name)
			continue
		}
		wg.Add(1)
		go func(t Task) {
			defer wg.Done()
			w.loop(ctx, t)
		}(t)
	}

	w.setReady(true)
	w.log.Info("worker started", "tasks", len(w.tasks))

	<-ctx.Done()
	w.setReady(false)
	w.log.Info("worker received shutdown signal")

	wg.Wait()
	return nil
}

func (w *Worker) loop(ctx context.Context, t Task) {
	failures := 0
	timer := time.NewTimer(t.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		next := t.Interval
		if err := w.step(ctx, t); err != nil {
			next = w.cfg.Backoff(failures)
			failures++
			w.log.Warn("worker task failed",
				"task", t.Name,
				"err", err,
				"attempt", failures,
				"retry_in", next,
			)
		} else {
			failures = 0
		}

		timer.Reset(next)
	}
}

func (w *Worker) step(ctx context.Context, t Task) error {
	runCtx, cancel := context.WithTimeout(ctx, w.cfg.RunTimeout)
	defer cancel()

	return t.Run(runCtx)
}

func (w *Worker) setReady(v bool) {
	w.readyMu.Lock()
	w.ready = v
	w.readyMu.Unlock()
}

func (w *Worker) Ready() bool {
	w.readyMu.RLock()
	defer w.readyMu.RUnlock()
	return w.ready
}
