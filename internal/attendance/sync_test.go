package attendance_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/adelabdelgawad/meal-request-backend/internal/attendance"
	"github.com/adelabdelgawad/meal-request-backend/internal/domain"
	"github.com/adelabdelgawad/meal-request-backend/internal/store"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type fakeSource struct {
	fetch func(ctx context.Context, date time.Time, employeeCodes []string) (map[string]attendance.Record, error)
}

func (s *fakeSource) FetchAttendance(ctx context.Context, date time.Time, employeeCodes []string) (map[string]attendance.Record, error) {
	return s.fetch(ctx, date, employeeCodes)
}

type fakeRepo struct {
	store.MealRequestRepository
	missingLines []store.LineForAttendance
	upserted     []*domain.MealRequestLineAttendance
	upsertChanged bool
}

func (r *fakeRepo) ListLinesMissingAttendance(ctx context.Context, q store.Querier, since time.Time) ([]store.LineForAttendance, error) {
	return r.missingLines, nil
}

func (r *fakeRepo) UpsertLineAttendance(ctx context.Context, q store.Querier, a *domain.MealRequestLineAttendance) (bool, error) {
	r.upserted = append(r.upserted, a)
	return r.upsertChanged, nil
}

// fakeResolver maps an employee code to an Employee whose id is the same
// string, so existing assertions keyed on employee code keep working
// unchanged once Run resolves codes to ids before querying the source.
type fakeResolver struct{}

func (fakeResolver) ListEmployeesByCodes(ctx context.Context, q store.Querier, codes []string) ([]domain.Employee, error) {
	out := make([]domain.Employee, len(codes))
	for i, c := range codes {
		out[i] = domain.Employee{ID: c, Code: c}
	}
	return out, nil
}

func newTestSyncer(source attendance.Source, repo store.MealRequestRepository, now time.Time) *attendance.Syncer {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return attendance.New(source, repo, fakeResolver{}, fixedClock{now: now}, logger, 0)
}

func TestRun_ExplicitLines_GroupsByRequestDate(t *testing.T) {
	now := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	requestTime := time.Date(2026, 1, 10, 14, 30, 0, 0, time.UTC)

	var gotDate time.Time
	var gotCodes []string
	source := &fakeSource{
		fetch: func(ctx context.Context, date time.Time, codes []string) (map[string]attendance.Record, error) {
			gotDate = date
			gotCodes = codes
			return map[string]attendance.Record{
				"E001": {In: timePtr(requestTime), Out: timePtr(requestTime.Add(8 * time.Hour))},
			}, nil
		},
	}
	repo := &fakeRepo{upsertChanged: true}
	s := newTestSyncer(source, repo, now)

	lines := []store.LineForAttendance{
		{MealRequestLine: domain.MealRequestLine{ID: "line-1", EmployeeCode: "E001"}, RequestTime: requestTime},
	}

	summary, err := s.Run(context.Background(), nil, lines)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Total != 1 || summary.Synced != 1 {
		t.Errorf("summary = %+v", summary)
	}
	wantDate := requestTime.Truncate(24 * time.Hour)
	if !gotDate.Equal(wantDate) {
		t.Errorf("FetchAttendance date = %v, want %v", gotDate, wantDate)
	}
	if len(gotCodes) != 1 || gotCodes[0] != "E001" {
		t.Errorf("FetchAttendance codes = %v", gotCodes)
	}
	if len(repo.upserted) != 1 || repo.upserted[0].WorkingHours == nil || *repo.upserted[0].WorkingHours != 8 {
		t.Errorf("upserted = %+v", repo.upserted)
	}
}

func TestRun_NilExplicit_UsesSlidingWindowFromRepo(t *testing.T) {
	now := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	repo := &fakeRepo{
		missingLines: []store.LineForAttendance{
			{MealRequestLine: domain.MealRequestLine{ID: "line-1", EmployeeCode: "E001"}, RequestTime: now},
		},
		upsertChanged: true,
	}
	source := &fakeSource{
		fetch: func(ctx context.Context, date time.Time, codes []string) (map[string]attendance.Record, error) {
			return map[string]attendance.Record{"E001": {}}, nil
		},
	}
	s := newTestSyncer(source, repo, now)

	summary, err := s.Run(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Total != 1 {
		t.Errorf("summary.Total = %d, want 1", summary.Total)
	}
}

func TestRun_EmployeeNotInFeed_CountsNotFound(t *testing.T) {
	now := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	source := &fakeSource{
		fetch: func(ctx context.Context, date time.Time, codes []string) (map[string]attendance.Record, error) {
			return map[string]attendance.Record{}, nil
		},
	}
	repo := &fakeRepo{}
	s := newTestSyncer(source, repo, now)

	lines := []store.LineForAttendance{
		{MealRequestLine: domain.MealRequestLine{ID: "line-1", EmployeeCode: "E001"}, RequestTime: now},
	}

	summary, err := s.Run(context.Background(), nil, lines)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.NotFound != 1 || summary.Synced != 0 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestRun_SourceError_CountsErrorsAndContinues(t *testing.T) {
	now := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	source := &fakeSource{
		fetch: func(ctx context.Context, date time.Time, codes []string) (map[string]attendance.Record, error) {
			return nil, errors.New("external system down")
		},
	}
	repo := &fakeRepo{}
	s := newTestSyncer(source, repo, now)

	lines := []store.LineForAttendance{
		{MealRequestLine: domain.MealRequestLine{ID: "line-1", EmployeeCode: "E001"}, RequestTime: now},
	}

	summary, err := s.Run(context.Background(), nil, lines)
	if err != nil {
		t.Fatalf("Run should not propagate a per-date fetch error: %v", err)
	}
	if summary.Errors != 1 {
		t.Errorf("summary.Errors = %d, want 1", summary.Errors)
	}
}

func TestRun_NegativeWorkingHoursSpan_ClampsToZero(t *testing.T) {
	now := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	in := now
	out := now.Add(-time.Hour) // out before in: malformed punch pair
	source := &fakeSource{
		fetch: func(ctx context.Context, date time.Time, codes []string) (map[string]attendance.Record, error) {
			return map[string]attendance.Record{"E001": {In: &in, Out: &out}}, nil
		},
	}
	repo := &fakeRepo{upsertChanged: true}
	s := newTestSyncer(source, repo, now)

	lines := []store.LineForAttendance{
		{MealRequestLine: domain.MealRequestLine{ID: "line-1", EmployeeCode: "E001"}, RequestTime: now},
	}

	if _, err := s.Run(context.Background(), nil, lines); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(repo.upserted) != 1 || repo.upserted[0].WorkingHours == nil || *repo.upserted[0].WorkingHours != 0 {
		t.Errorf("upserted = %+v, want WorkingHours clamped to 0", repo.upserted)
	}
}

func timePtr(t time.Time) *time.Time { return &t }
