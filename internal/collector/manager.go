package collector

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Task is one independently scheduled periodic job
type Task struct {
	Name     string
	Interval time.Duration
	Tick     func(ctx context.Context) error
}

// TaskError reports a tick that failed
type TaskError struct {
	Task string
	Err  error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %s: %v", e.Task, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// Manager runs every task on its own ticker. Ticks of one task never
// overlap; ticks of different tasks interleave freely.
type Manager struct {
	tasks       []Task
	haltOnError bool
	tracer      trace.Tracer

	errs   chan error
	cancel context.CancelFunc
	wg     sync.WaitGroup // track goroutine completion for graceful shutdown
}

// NewManager creates a manager. With haltOnError a failing tick stops its
// task and is reported on Errors; otherwise it is logged and the task
// carries on at the next interval.
func NewManager(haltOnError bool, tasks ...Task) *Manager {
	return &Manager{
		tasks:       tasks,
		haltOnError: haltOnError,
		tracer:      otel.Tracer("github.com/craftlink/craftlink/internal/collector"),
		errs:        make(chan error, len(tasks)),
	}
}

// Errors delivers failures of halted tasks
func (m *Manager) Errors() <-chan error {
	return m.errs
}

// Start launches all tasks. They stop when ctx is cancelled or Stop is called.
func (m *Manager) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	for _, t := range m.tasks {
		slog.Info("Starting task", "task", t.Name, "interval", t.Interval)
		m.wg.Add(1)
		go m.loop(ctx, t)
	}
}

// Stop cancels every task and waits for in-flight ticks to finish
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	slog.Info("Task manager stopped")
}

// loop runs one task until cancelled
func (m *Manager) loop(ctx context.Context, t Task) {
	defer m.wg.Done()
	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	// Initial tick
	if !m.run(ctx, t) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !m.run(ctx, t) {
				return
			}
		}
	}
}

// run executes a single tick and reports whether the task should continue
func (m *Manager) run(ctx context.Context, t Task) bool {
	ctx, span := m.tracer.Start(ctx, "tick "+t.Name,
		trace.WithAttributes(attribute.String("task", t.Name)))
	defer span.End()

	err := t.Tick(ctx)
	if err == nil {
		return true
	}
	if ctx.Err() != nil {
		// Shutting down; the error is a consequence of cancellation
		return false
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	if !m.haltOnError {
		slog.Error("Task tick failed", "task", t.Name, "error", err)
		return true
	}

	slog.Error("Task tick failed, halting task", "task", t.Name, "error", err)
	select {
	case m.errs <- &TaskError{Task: t.Name, Err: err}:
	default:
	}
	return false
}
