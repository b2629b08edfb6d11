// Package dispatcher is the C7 component. Grounded in the idiom of
// internal/scheduler/executor.go for the per-call timeout/logging shape,
// generalized from "send an HTTP request" to "run a registered in-process
// function, or hand the run off to an external queue".
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adelabdelgawad/meal-request-backend/internal/domain"
)

// TaskFunc is a registered unit of work. Its return values become the
// execution's result_summary / error fields.
type TaskFunc func(ctx context.Context) (summary string, err error)

// Queue is the external task-queue collaborator. No concrete broker client
// is wired (see DESIGN.md) — this interface exists so a Celery/SQS/etc.
// client can be plugged in without touching the Dispatcher itself.
type Queue interface {
	Enqueue(ctx context.Context, jobKey, executionID string, triggeredBy *string) (taskID string, err error)
}

// Result is the tagged union Dispatch returns: either the run completed
// in-process, or it was handed off to a queue and remains running.
type Result struct {
	HandedOff bool
	TaskID    string

	Status  domain.ExecutionStatus
	Summary *string
	ErrMsg  *string
}

type Dispatcher struct {
	logger          *slog.Logger
	queue           Queue
	useQueue        map[string]bool // per-TaskFunction opt-in to the external route
	useQueueDefault bool
	registry        map[string]TaskFunc
}

func New(logger *slog.Logger, queue Queue, useQueueDefault bool) *Dispatcher {
	return &Dispatcher{
		logger:          logger.With("component", "dispatcher"),
		queue:           queue,
		useQueue:        make(map[string]bool),
		useQueueDefault: useQueueDefault,
		registry:        make(map[string]TaskFunc),
	}
}

// Register binds a job key to the in-process function run when the queue
// route is unavailable or not selected for that key.
func (d *Dispatcher) Register(key string, fn TaskFunc) {
	d.registry[key] = fn
}

// SetQueueRoute opts a specific job key in or out of the external-queue
// route, overriding useQueueDefault.
func (d *Dispatcher) SetQueueRoute(key string, useQueue bool) {
	d.useQueue[key] = useQueue
}

// Dispatch runs the job, routing to the external queue when configured and
// reachable; any queue failure transparently falls back to in-process
// execution with a logged warning so the execution always
// completes or fails deterministically.
func (d *Dispatcher) Dispatch(ctx context.Context, jobKey, executionID string, triggeredBy *string, timeout time.Duration) Result {
	if d.wantsQueue(jobKey) && d.queue != nil {
		taskID, err := d.queue.Enqueue(ctx, jobKey, executionID, triggeredBy)
		if err == nil {
			return Result{HandedOff: true, TaskID: taskID}
		}
		d.logger.WarnContext(ctx, "queue dispatch failed, falling back to in-process",
			"job_key", jobKey, "execution_id", executionID, "error", err)
	}
	return d.runInProcess(ctx, jobKey, timeout)
}

func (d *Dispatcher) wantsQueue(jobKey string) bool {
	if v, ok := d.useQueue[jobKey]; ok {
		return v
	}
	return d.useQueueDefault
}

func (d *Dispatcher) runInProcess(ctx context.Context, jobKey string, timeout time.Duration) Result {
	fn, ok := d.registry[jobKey]
	if !ok {
		msg := fmt.Sprintf("no registered function for job key %q", jobKey)
		d.logger.Error(msg)
		return Result{Status: domain.ExecutionFailed, ErrMsg: &msg}
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type outcome struct {
		summary string
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		summary, err := fn(runCtx)
		done <- outcome{summary: summary, err: err}
	}()

	select {
	case <-runCtx.Done():
		msg := fmt.Sprintf("timed out after %s", timeout)
		return Result{Status: domain.ExecutionFailed, ErrMsg: &msg}
	case o := <-done:
		if o.err != nil {
			msg := o.err.Error()
			return Result{Status: domain.ExecutionFailed, ErrMsg: &msg}
		}
		summary := o.summary
		return Result{Status: domain.ExecutionSuccess, Summary: &summary}
	}
}
