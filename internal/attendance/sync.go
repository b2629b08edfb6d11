// Package attendance is the C9 component: line-scoped attendance
// synchronisation against an external time-tracking source. Following the scheduler package's batch-and-summarize
// shape, generalized from "run one job and mark it complete" to "group
// lines by date, batch-resolve per date, write only what changed."
package attendance

import (
	"context"
	"log/slog"
	"time"

	"github.com/adelabdelgawad/meal-request-backend/internal/clock"
	"github.com/adelabdelgawad/meal-request-backend/internal/domain"
	"github.com/adelabdelgawad/meal-request-backend/internal/store"
)

// Record is one attendance punch resolved from the external source.
type Record struct {
	In  *time.Time
	Out *time.Time
	// WorkingHours, when set by the source, takes precedence over the
	// (out - in) computation.
	WorkingHours *float64
}

// Source resolves a batch of external employee ids for a single attendance
// date to their punch records, keyed by external employee id. The external
// time-tracking system only understands its own employee id, never the
// denormalised employee_code a meal request line carries — callers must
// resolve codes to ids first (see EmployeeResolver).
type Source interface {
	FetchAttendance(ctx context.Context, date time.Time, employeeIDs []string) (map[string]Record, error)
}

// EmployeeResolver turns the Employee.code values snapshotted onto meal
// request lines into the local Employee rows carrying the external HRIS id
// the time-tracking source keys its records by.
type EmployeeResolver interface {
	ListEmployeesByCodes(ctx context.Context, q store.Querier, codes []string) ([]domain.Employee, error)
}

type Summary struct {
	Total     int
	Synced    int
	Unchanged int
	NotFound  int
	Errors    int
}

type Syncer struct {
	source     Source
	repo       store.MealRequestRepository
	employees  EmployeeResolver
	clk        clock.Clock
	logger     *slog.Logger
	monthsBack int
}

func New(source Source, repo store.MealRequestRepository, employees EmployeeResolver, clk clock.Clock, logger *slog.Logger, monthsBack int) *Syncer {
	if monthsBack <= 0 {
		monthsBack = 3
	}
	return &Syncer{source: source, repo: repo, employees: employees, clk: clk, logger: logger.With("component", "attendance"), monthsBack: monthsBack}
}

// Run resolves the sliding-window target set and syncs it. Run(ctx, q, nil)
// covers the window; a non-nil explicit line set restricts the run to
// those lines.
func (s *Syncer) Run(ctx context.Context, q store.Querier, explicit []store.LineForAttendance) (Summary, error) {
	var lines []store.LineForAttendance
	var err error
	if explicit != nil {
		lines = explicit
	} else {
		since := s.clk.Now().AddDate(0, -s.monthsBack, 0)
		lines, err = s.repo.ListLinesMissingAttendance(ctx, q, since)
		if err != nil {
			return Summary{}, err
		}
	}

	byDate := s.groupByAttendanceDate(lines)

	var summary Summary
	for date, group := range byDate {
		codes := distinctCodes(group)
		employees, err := s.employees.ListEmployeesByCodes(ctx, q, codes)
		if err != nil {
			s.logger.Error("resolve employee codes failed", "date", date, "error", err)
			summary.Errors += len(group)
			continue
		}
		codeToEmployeeID := make(map[string]string, len(employees))
		for _, e := range employees {
			codeToEmployeeID[e.Code] = e.ID
		}
		employeeIDs := make([]string, 0, len(codeToEmployeeID))
		for _, id := range codeToEmployeeID {
			employeeIDs = append(employeeIDs, id)
		}

		records, err := s.source.FetchAttendance(ctx, date, employeeIDs)
		if err != nil {
			s.logger.Error("fetch attendance failed", "date", date, "error", err)
			summary.Errors += len(group)
			continue
		}
		for _, line := range group {
			summary.Total++
			employeeID, ok := codeToEmployeeID[line.EmployeeCode]
			if !ok {
				summary.NotFound++
				continue
			}
			rec, ok := records[employeeID]
			if !ok {
				summary.NotFound++
				continue
			}
			hours := s.computeWorkingHours(rec)
			changed, err := s.repo.UpsertLineAttendance(ctx, q, &domain.MealRequestLineAttendance{
				ID: clock.NewID(), MealRequestLineID: line.ID, EmployeeCode: line.EmployeeCode,
				AttendanceDate: date, AttendanceIn: rec.In, AttendanceOut: rec.Out, WorkingHours: hours,
			})
			if err != nil {
				s.logger.Error("upsert line attendance failed", "line_id", line.ID, "error", err)
				summary.Errors++
				continue
			}
			if changed {
				summary.Synced++
			} else {
				summary.Unchanged++
			}
		}
	}
	return summary, nil
}

// groupByAttendanceDate buckets by the PARENT MealRequest's request_time
// date, not the line's created_at — this is the contract with the
// external time-tracking source.
func (s *Syncer) groupByAttendanceDate(lines []store.LineForAttendance) map[time.Time][]store.LineForAttendance {
	out := make(map[time.Time][]store.LineForAttendance)
	for _, l := range lines {
		key := clock.CoerceUTC(l.RequestTime).Truncate(24 * time.Hour)
		out[key] = append(out[key], l)
	}
	return out
}

func distinctCodes(lines []store.LineForAttendance) []string {
	seen := make(map[string]bool, len(lines))
	var codes []string
	for _, l := range lines {
		if !seen[l.EmployeeCode] {
			seen[l.EmployeeCode] = true
			codes = append(codes, l.EmployeeCode)
		}
	}
	return codes
}

// computeWorkingHours prefers the external value; otherwise derives
// (out-in) in hours rounded to 2 decimals, clamping a negative span to
// zero with a warning.
func (s *Syncer) computeWorkingHours(rec Record) *float64 {
	if rec.WorkingHours != nil {
		return rec.WorkingHours
	}
	if rec.In == nil || rec.Out == nil {
		return nil
	}
	hours := rec.Out.Sub(*rec.In).Hours()
	if hours < 0 {
		s.logger.Warn("negative working hours span clamped to zero", "in", rec.In, "out", rec.Out)
		hours = 0
	}
	rounded := roundTo2(hours)
	return &rounded
}

func roundTo2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
