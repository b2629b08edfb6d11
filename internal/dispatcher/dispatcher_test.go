package dispatcher_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/adelabdelgawad/meal-request-backend/internal/dispatcher"
	"github.com/adelabdelgawad/meal-request-backend/internal/domain"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeQueue struct {
	enqueue func(ctx context.Context, jobKey, executionID string, triggeredBy *string) (string, error)
}

func (q *fakeQueue) Enqueue(ctx context.Context, jobKey, executionID string, triggeredBy *string) (string, error) {
	return q.enqueue(ctx, jobKey, executionID, triggeredBy)
}

func TestDispatch_UnregisteredKey_ReturnsFailed(t *testing.T) {
	d := dispatcher.New(newTestLogger(), nil, false)

	res := d.Dispatch(context.Background(), "unknown", "exec-1", nil, 0)
	if res.Status != domain.ExecutionFailed {
		t.Errorf("Status = %v, want ExecutionFailed", res.Status)
	}
	if res.ErrMsg == nil {
		t.Fatal("ErrMsg is nil")
	}
}

func TestDispatch_InProcessSuccess(t *testing.T) {
	d := dispatcher.New(newTestLogger(), nil, false)
	d.Register("my_task", func(ctx context.Context) (string, error) {
		return "did the thing", nil
	})

	res := d.Dispatch(context.Background(), "my_task", "exec-1", nil, 0)
	if res.Status != domain.ExecutionSuccess {
		t.Errorf("Status = %v, want ExecutionSuccess", res.Status)
	}
	if res.Summary == nil || *res.Summary != "did the thing" {
		t.Errorf("Summary = %v", res.Summary)
	}
}

func TestDispatch_InProcessFailure_CapturesErrMsg(t *testing.T) {
	d := dispatcher.New(newTestLogger(), nil, false)
	wantErr := errors.New("boom")
	d.Register("my_task", func(ctx context.Context) (string, error) {
		return "", wantErr
	})

	res := d.Dispatch(context.Background(), "my_task", "exec-1", nil, 0)
	if res.Status != domain.ExecutionFailed {
		t.Errorf("Status = %v, want ExecutionFailed", res.Status)
	}
	if res.ErrMsg == nil || *res.ErrMsg != wantErr.Error() {
		t.Errorf("ErrMsg = %v, want %q", res.ErrMsg, wantErr.Error())
	}
}

func TestDispatch_InProcessTimeout_ReturnsFailed(t *testing.T) {
	d := dispatcher.New(newTestLogger(), nil, false)
	d.Register("slow_task", func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})

	res := d.Dispatch(context.Background(), "slow_task", "exec-1", nil, 10*time.Millisecond)
	if res.Status != domain.ExecutionFailed {
		t.Errorf("Status = %v, want ExecutionFailed", res.Status)
	}
}

func TestDispatch_QueueRoute_HandsOff(t *testing.T) {
	q := &fakeQueue{
		enqueue: func(ctx context.Context, jobKey, executionID string, triggeredBy *string) (string, error) {
			return "task-123", nil
		},
	}
	d := dispatcher.New(newTestLogger(), q, true)

	res := d.Dispatch(context.Background(), "queued_task", "exec-1", nil, 0)
	if !res.HandedOff {
		t.Fatal("expected HandedOff=true")
	}
	if res.TaskID != "task-123" {
		t.Errorf("TaskID = %q", res.TaskID)
	}
}

func TestDispatch_QueueFailure_FallsBackToInProcess(t *testing.T) {
	q := &fakeQueue{
		enqueue: func(ctx context.Context, jobKey, executionID string, triggeredBy *string) (string, error) {
			return "", errors.New("queue unreachable")
		},
	}
	d := dispatcher.New(newTestLogger(), q, true)
	d.Register("queued_task", func(ctx context.Context) (string, error) {
		return "ran locally instead", nil
	})

	res := d.Dispatch(context.Background(), "queued_task", "exec-1", nil, 0)
	if res.HandedOff {
		t.Fatal("expected HandedOff=false after queue failure")
	}
	if res.Status != domain.ExecutionSuccess || res.Summary == nil || *res.Summary != "ran locally instead" {
		t.Errorf("result = %+v", res)
	}
}

func TestSetQueueRoute_OverridesDefault(t *testing.T) {
	called := false
	q := &fakeQueue{
		enqueue: func(ctx context.Context, jobKey, executionID string, triggeredBy *string) (string, error) {
			called = true
			return "task-1", nil
		},
	}
	d := dispatcher.New(newTestLogger(), q, false)
	d.Register("opted_in", func(ctx context.Context) (string, error) { return "", nil })
	d.SetQueueRoute("opted_in", true)

	d.Dispatch(context.Background(), "opted_in", "exec-1", nil, 0)
	if !called {
		t.Error("SetQueueRoute(key, true) did not route to the queue despite useQueueDefault=false")
	}
}
