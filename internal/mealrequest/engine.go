// Package mealrequest is the C10 component: the meal-request lifecycle
// (create, transition, copy, soft-delete, visibility-filtered listing).
// Grounded on the usecase package's job.go
// for the "validate, write, commit, then kick off async follow-up work"
// shape — generalized here from "enqueue a webhook job" to "create a meal
// request and its lines, then fetch attendance for them in the background."
package mealrequest

import (
	"context"
	"log/slog"
	"time"

	"github.com/adelabdelgawad/meal-request-backend/internal/attendance"
	"github.com/adelabdelgawad/meal-request-backend/internal/clock"
	"github.com/adelabdelgawad/meal-request-backend/internal/domain"
	"github.com/adelabdelgawad/meal-request-backend/internal/store"
)

// AttendanceFetcher is the narrow seam Engine needs from the C9 component —
// only the single-request, explicit-line-set entrypoint, never the
// sliding-window sweep (that stays a Scheduler-driven job).
type AttendanceFetcher interface {
	Run(ctx context.Context, q store.Querier, lines []store.LineForAttendance) (attendance.Summary, error)
}

type Engine struct {
	db       store.Store
	requests store.MealRequestRepository
	hris     store.HRISRepository
	fetcher  AttendanceFetcher
	clk      clock.Clock
	logger   *slog.Logger

	attendanceTimeout time.Duration
}

type Config struct {
	// AttendanceTimeout bounds the background attendance-fetch goroutine
	// kicked off by Create; it has no effect on Create's own return.
	AttendanceTimeout time.Duration
}

func New(db store.Store, requests store.MealRequestRepository, hris store.HRISRepository, fetcher AttendanceFetcher, clk clock.Clock, logger *slog.Logger, cfg Config) *Engine {
	if cfg.AttendanceTimeout <= 0 {
		cfg.AttendanceTimeout = 2 * time.Minute
	}
	return &Engine{
		db: db, requests: requests, hris: hris, fetcher: fetcher, clk: clk,
		logger: logger.With("component", "mealrequest"), attendanceTimeout: cfg.AttendanceTimeout,
	}
}

type LineInput struct {
	EmployeeID string
	Notes      *string
}

type CreateInput struct {
	RequesterID string
	MealTypeID  string
	Notes       *string
	Lines       []LineInput
}

type CreateResult struct {
	Request       domain.MealRequest
	LinesCreated  int
	LinesRejected []string // employee ids rejected for missing Employee row
}

// Create inserts the request at OnProgress together with every line whose
// employee resolves, then — after commit — kicks off an async attendance
// fetch whose completion moves the request to Pending regardless of
// per-line sub-failures.
func (e *Engine) Create(ctx context.Context, in CreateInput) (CreateResult, error) {
	now := e.clk.Now()
	req := domain.MealRequest{
		ID: clock.NewID(), RequesterID: in.RequesterID, StatusID: domain.MealRequestOnProgress,
		MealTypeID: in.MealTypeID, RequestTime: now, Notes: in.Notes, CreatedAt: now, UpdatedAt: now,
	}

	tx, err := e.db.Begin(ctx)
	if err != nil {
		return CreateResult{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	if err := e.requests.Create(ctx, tx, &req); err != nil {
		return CreateResult{}, err
	}

	var lines []store.LineForAttendance
	var rejected []string
	for _, li := range in.Lines {
		emp, err := e.hris.GetEmployeeByID(ctx, tx, li.EmployeeID)
		if err != nil {
			e.logger.Warn("rejecting meal request line: employee not found", "employee_id", li.EmployeeID)
			rejected = append(rejected, li.EmployeeID)
			continue
		}
		line := domain.MealRequestLine{
			ID: clock.NewID(), MealRequestID: req.ID, EmployeeID: emp.ID, EmployeeCode: emp.Code,
			Notes: li.Notes, IsAccepted: false, CreatedAt: now, UpdatedAt: now,
		}
		if err := e.requests.CreateLine(ctx, tx, &line); err != nil {
			return CreateResult{}, err
		}
		lines = append(lines, store.LineForAttendance{MealRequestLine: line, RequestTime: req.RequestTime})
	}

	if err := tx.Commit(ctx); err != nil {
		return CreateResult{}, err
	}
	committed = true

	go e.finishCreate(req.ID, lines)

	return CreateResult{Request: req, LinesCreated: len(lines), LinesRejected: rejected}, nil
}

// finishCreate runs the attendance fetch for the lines just created and
// transitions the request to Pending on completion — success or failure,
// since a partial attendance fetch must never leave a request stuck at
// OnProgress.
func (e *Engine) finishCreate(requestID string, lines []store.LineForAttendance) {
	ctx, cancel := context.WithTimeout(context.Background(), e.attendanceTimeout)
	defer cancel()

	if len(lines) > 0 {
		if _, err := e.fetcher.Run(ctx, e.db, lines); err != nil {
			e.logger.Error("attendance fetch failed for new request", "request_id", requestID, "error", err)
		}
	}

	now := e.clk.Now()
	ok, err := e.requests.UpdateStatus(ctx, e.db, requestID, domain.MealRequestOnProgress, domain.MealRequestPending, nil, now)
	if err != nil {
		e.logger.Error("transition to pending failed", "request_id", requestID, "error", err)
		return
	}
	if !ok {
		e.logger.Warn("request no longer at on_progress, skipping transition to pending", "request_id", requestID)
	}
}

// UpdateStatus applies the optimistic-concurrency status transition,
// cascading the accept/reject flag onto every line on Approved/Rejected.
func (e *Engine) UpdateStatus(ctx context.Context, id string, expected *domain.MealRequestStatus, next domain.MealRequestStatus, actorID string) error {
	tx, err := e.db.Begin(ctx)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	req, err := e.requests.GetForUpdate(ctx, tx, id)
	if err != nil {
		return err
	}
	if expected != nil && req.StatusID != *expected {
		return domain.ErrStatusAlreadyChanged
	}

	now := e.clk.Now()
	ok, err := e.requests.UpdateStatus(ctx, tx, id, req.StatusID, next, &actorID, now)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrStatusAlreadyChanged
	}

	if next == domain.MealRequestApproved || next == domain.MealRequestRejected {
		lines, err := e.requests.ListLines(ctx, tx, id)
		if err != nil {
			return err
		}
		accepted := next == domain.MealRequestApproved
		for _, l := range lines {
			if err := e.requests.SetLineAccepted(ctx, tx, l.ID, accepted); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	committed = true
	return nil
}

type CopyResult struct {
	Request     domain.MealRequest
	LinesCopied int
}

// Copy starts the new request at Pending directly (not OnProgress — it
// carries over attendance-cleared lines rather than re-fetching), chained
// to the same root as its source.
func (e *Engine) Copy(ctx context.Context, sourceID, requesterID string) (CopyResult, error) {
	tx, err := e.db.Begin(ctx)
	if err != nil {
		return CopyResult{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	source, err := e.requests.GetByID(ctx, tx, sourceID)
	if err != nil {
		return CopyResult{}, err
	}
	if source.RequesterID != requesterID {
		return CopyResult{}, domain.Wrap(domain.KindAuthorization, "cannot copy another requester's meal request", nil)
	}
	if source.StatusID == domain.MealRequestPending {
		return CopyResult{}, domain.Wrap(domain.KindValidation, "source request is still pending", nil)
	}

	chainRoot := source.ChainRoot()
	if _, err := e.requests.FindPendingByChainRoot(ctx, tx, requesterID, chainRoot); err == nil {
		return CopyResult{}, domain.Wrap(domain.KindConflict, "a pending request already exists for this chain", nil)
	} else if domain.KindOf(err) != domain.KindNotFound {
		return CopyResult{}, err
	}

	now := e.clk.Now()
	newReq := domain.MealRequest{
		ID: clock.NewID(), RequesterID: requesterID, StatusID: domain.MealRequestPending,
		MealTypeID: source.MealTypeID, RequestTime: now, Notes: source.Notes,
		OriginalRequestID: &chainRoot, CreatedAt: now, UpdatedAt: now,
	}
	if err := e.requests.Create(ctx, tx, &newReq); err != nil {
		return CopyResult{}, err
	}

	sourceLines, err := e.requests.ListLines(ctx, tx, sourceID)
	if err != nil {
		return CopyResult{}, err
	}
	copied := 0
	for _, sl := range sourceLines {
		line := domain.MealRequestLine{
			ID: clock.NewID(), MealRequestID: newReq.ID, EmployeeID: sl.EmployeeID, EmployeeCode: sl.EmployeeCode,
			Notes: sl.Notes, IsAccepted: true, CreatedAt: now, UpdatedAt: now,
		}
		if err := e.requests.CreateLine(ctx, tx, &line); err != nil {
			return CopyResult{}, err
		}
		copied++
	}

	if err := tx.Commit(ctx); err != nil {
		return CopyResult{}, err
	}
	committed = true
	return CopyResult{Request: newReq, LinesCopied: copied}, nil
}

// Delete performs the soft-delete under a row lock: the request must
// exist, be owned by the caller, be Pending, and not already deleted.
func (e *Engine) Delete(ctx context.Context, id, requesterID string) error {
	tx, err := e.db.Begin(ctx)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	req, err := e.requests.GetForUpdate(ctx, tx, id)
	if err != nil {
		return err
	}
	if req.IsDeleted {
		return domain.ErrNotFound
	}
	if req.RequesterID != requesterID {
		return domain.Wrap(domain.KindAuthorization, "cannot delete another requester's meal request", nil)
	}
	if req.StatusID != domain.MealRequestPending {
		return domain.Wrap(domain.KindValidation, "only a pending request may be deleted", nil)
	}

	if err := e.requests.SoftDelete(ctx, tx, id); err != nil {
		return err
	}
	if err := e.requests.SoftDeleteLines(ctx, tx, id); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	committed = true
	return nil
}

// List applies the bilingual, visibility-filtered listing: callers with a
// restricted department set see only requests with at least one line in
// one of those departments; a nil department set (admin) sees everything,
// while an explicitly empty one sees nothing. OnProgress requests are hidden unless the caller explicitly
// filters for them.
func (e *Engine) List(ctx context.Context, f store.MealRequestFilter, includeOnProgress bool) ([]domain.MealRequestSummary, error) {
	requests, err := e.requests.ListSummaries(ctx, e.db, f)
	if err != nil {
		return nil, err
	}
	if includeOnProgress || f.Status != nil {
		return requests, nil
	}
	out := requests[:0]
	for _, r := range requests {
		if r.StatusID != domain.MealRequestOnProgress {
			out = append(out, r)
		}
	}
	return out, nil
}
