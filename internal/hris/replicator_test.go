package hris_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/adelabdelgawad/meal-request-backend/internal/domain"
	"github.com/adelabdelgawad/meal-request-backend/internal/hris"
	"github.com/adelabdelgawad/meal-request-backend/internal/store"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type fakeTx struct{}

func (t *fakeTx) Exec(ctx context.Context, sql string, args ...any) (store.CommandTag, error) {
	panic("not used by these fakes")
}
func (t *fakeTx) Query(ctx context.Context, sql string, args ...any) (store.Rows, error) {
	panic("not used by these fakes")
}
func (t *fakeTx) QueryRow(ctx context.Context, sql string, args ...any) store.Row {
	panic("not used by these fakes")
}
func (t *fakeTx) Commit(ctx context.Context) error   { return nil }
func (t *fakeTx) Rollback(ctx context.Context) error { return nil }

type fakeStore struct{}

func (s *fakeStore) Begin(ctx context.Context) (store.Tx, error) { return &fakeTx{}, nil }
func (s *fakeStore) Exec(ctx context.Context, sql string, args ...any) (store.CommandTag, error) {
	panic("not used by these fakes")
}
func (s *fakeStore) Query(ctx context.Context, sql string, args ...any) (store.Rows, error) {
	panic("not used by these fakes")
}
func (s *fakeStore) QueryRow(ctx context.Context, sql string, args ...any) store.Row {
	panic("not used by these fakes")
}

type fakeSource struct {
	snapshot *domain.HRISSnapshot
	err      error
}

func (s *fakeSource) FetchSnapshot(ctx context.Context) (*domain.HRISSnapshot, error) {
	return s.snapshot, s.err
}

type fakeHRISRepo struct {
	store.HRISRepository
	departments   []domain.Department
	securityUsers []domain.SecurityUser
	assignments   map[string][]domain.DepartmentAssignment
	summaries     []*domain.ReplicationSummary
}

func (r *fakeHRISRepo) UpsertDepartments(ctx context.Context, q store.Querier, departments []domain.Department) (int, int, error) {
	r.departments = append(r.departments, departments...)
	return len(departments), 0, nil
}

func (r *fakeHRISRepo) UpsertEmployees(ctx context.Context, q store.Querier, employees []domain.Employee) (int, int, error) {
	return len(employees), 0, nil
}

func (r *fakeHRISRepo) DeactivateEmployeesNotIn(ctx context.Context, q store.Querier, liveIDs []string) (int64, error) {
	return 0, nil
}

func (r *fakeHRISRepo) UpsertSecurityUsers(ctx context.Context, q store.Querier, users []domain.SecurityUser) (int, int, error) {
	r.securityUsers = append(r.securityUsers, users...)
	return len(users), 0, nil
}

func (r *fakeHRISRepo) DeactivateSecurityUsersNotIn(ctx context.Context, q store.Querier, liveExternalIDs []string) (int64, error) {
	return 0, nil
}

func (r *fakeHRISRepo) ListSecurityUsers(ctx context.Context, q store.Querier) ([]domain.SecurityUser, error) {
	return r.securityUsers, nil
}

func (r *fakeHRISRepo) ListAssignments(ctx context.Context, q store.Querier, userID string) ([]domain.DepartmentAssignment, error) {
	if r.assignments == nil {
		return nil, nil
	}
	return r.assignments[userID], nil
}

func (r *fakeHRISRepo) UpsertAssignment(ctx context.Context, q store.Querier, a *domain.DepartmentAssignment) error {
	if r.assignments == nil {
		r.assignments = map[string][]domain.DepartmentAssignment{}
	}
	r.assignments[a.UserID] = append(r.assignments[a.UserID], *a)
	return nil
}

func (r *fakeHRISRepo) DeactivateHRISAssignmentsNotIn(ctx context.Context, q store.Querier, userID string, liveDeptIDs []string) (int64, error) {
	return 0, nil
}

func (r *fakeHRISRepo) DeactivateAllHRISAssignments(ctx context.Context, q store.Querier) (int64, error) {
	return 0, nil
}

func (r *fakeHRISRepo) RecordReplicationSummary(ctx context.Context, q store.Querier, s *domain.ReplicationSummary) error {
	r.summaries = append(r.summaries, s)
	return nil
}

type fakeUserRepo struct {
	store.UserRepository
	byUsername   map[string]*domain.User
	byEmployeeID map[string]*domain.User
	updated      []*domain.User
	created      []*domain.User
}

func (r *fakeUserRepo) GetByUsername(ctx context.Context, q store.Querier, username string) (*domain.User, error) {
	if u, ok := r.byUsername[username]; ok {
		return u, nil
	}
	return nil, domain.ErrNotFound
}

func (r *fakeUserRepo) GetByEmployeeID(ctx context.Context, q store.Querier, employeeID string) (*domain.User, error) {
	if u, ok := r.byEmployeeID[employeeID]; ok {
		return u, nil
	}
	return nil, domain.ErrNotFound
}

func (r *fakeUserRepo) Create(ctx context.Context, q store.Querier, u *domain.User) error {
	r.created = append(r.created, u)
	if r.byUsername == nil {
		r.byUsername = map[string]*domain.User{}
	}
	r.byUsername[u.Username] = u
	if u.EmployeeID != nil {
		if r.byEmployeeID == nil {
			r.byEmployeeID = map[string]*domain.User{}
		}
		r.byEmployeeID[*u.EmployeeID] = u
	}
	return nil
}

func (r *fakeUserRepo) Update(ctx context.Context, q store.Querier, u *domain.User) error {
	r.updated = append(r.updated, u)
	return nil
}

func (r *fakeUserRepo) SetActive(ctx context.Context, q store.Querier, id string, active bool) error {
	return nil
}

func newTestReplicator(source hris.Source, repo store.HRISRepository, users store.UserRepository, now time.Time) *hris.Replicator {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return hris.New(source, repo, users, &fakeStore{}, fixedClock{now: now}, logger)
}

func TestRun_NilSnapshot_ReturnsExternalUnavailable(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	source := &fakeSource{snapshot: nil}
	r := newTestReplicator(source, &fakeHRISRepo{}, &fakeUserRepo{}, now)

	_, err := r.Run(context.Background())
	if domain.KindOf(err) != domain.KindExternalUnavailable {
		t.Errorf("Kind = %v, want KindExternalUnavailable", domain.KindOf(err))
	}
}

func TestRun_SourceError_ReturnsExternalUnavailable(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	source := &fakeSource{err: errors.New("hris down")}
	r := newTestReplicator(source, &fakeHRISRepo{}, &fakeUserRepo{}, now)

	_, err := r.Run(context.Background())
	if domain.KindOf(err) != domain.KindExternalUnavailable {
		t.Errorf("Kind = %v, want KindExternalUnavailable", domain.KindOf(err))
	}
}

func TestRun_FullPass_CreatesStubUserAndLinksAssignment(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snapshot := &domain.HRISSnapshot{
		Employees:             []domain.Employee{{ID: "emp-1", Code: "E001"}},
		Departments:           []domain.Department{{ID: "dept-1", NameEN: "Kitchen"}},
		DepartmentParentLinks: map[string]string{},
		SecurityUsers:         []domain.SecurityUser{{ExternalID: "su-1", Username: "jdoe", EmployeeID: "emp-1"}},
		Assignments:           []domain.HRISAssignment{{ExternalEmployeeID: "emp-1", ExternalDepartmentID: "dept-1"}},
	}
	source := &fakeSource{snapshot: snapshot}
	repo := &fakeHRISRepo{}
	users := &fakeUserRepo{byUsername: map[string]*domain.User{}, byEmployeeID: map[string]*domain.User{}}
	r := newTestReplicator(source, repo, users, now)

	summary, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Phase != "full_replication" {
		t.Errorf("Phase = %q", summary.Phase)
	}
	if len(users.created) != 1 || users.created[0].Username != "jdoe" {
		t.Fatalf("expected one stub user created for jdoe, got %+v", users.created)
	}
	if users.created[0].UserSource != domain.UserSourceHRIS || users.created[0].IsActive {
		t.Errorf("stub user = %+v, want UserSourceHRIS and IsActive=false", users.created[0])
	}

	if len(repo.departments) == 0 {
		t.Error("expected department upserts to have been recorded")
	}

	assignments := repo.assignments[users.created[0].ID]
	if len(assignments) != 1 || assignments[0].DepartmentID != "dept-1" || !assignments[0].IsSyncedFromHRIS {
		t.Errorf("assignments = %+v, want one hris-synced assignment of the stub user to dept-1", assignments)
	}
}

func TestRun_AssignmentPhase_LinksExistingUserToDepartment(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snapshot := &domain.HRISSnapshot{
		Employees:             []domain.Employee{},
		Departments:           []domain.Department{{ID: "dept-1", NameEN: "Kitchen"}},
		DepartmentParentLinks: map[string]string{},
		SecurityUsers:         []domain.SecurityUser{},
		Assignments:           []domain.HRISAssignment{{ExternalEmployeeID: "emp-1", ExternalDepartmentID: "dept-1"}},
	}
	source := &fakeSource{snapshot: snapshot}
	repo := &fakeHRISRepo{}
	existingUser := &domain.User{ID: "user-1", Username: "jdoe"}
	users := &fakeUserRepo{
		byUsername:   map[string]*domain.User{},
		byEmployeeID: map[string]*domain.User{"emp-1": existingUser},
	}
	r := newTestReplicator(source, repo, users, now)

	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	assignments := repo.assignments["user-1"]
	if len(assignments) != 1 || assignments[0].DepartmentID != "dept-1" || !assignments[0].IsSyncedFromHRIS {
		t.Errorf("assignments = %+v, want one hris-synced assignment to dept-1", assignments)
	}
}

func TestRun_AssignmentPhase_UnresolvableDepartment_IsSkipped(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snapshot := &domain.HRISSnapshot{
		Employees:             []domain.Employee{},
		Departments:           []domain.Department{},
		DepartmentParentLinks: map[string]string{},
		SecurityUsers:         []domain.SecurityUser{},
		Assignments:           []domain.HRISAssignment{{ExternalEmployeeID: "emp-1", ExternalDepartmentID: "unknown-dept"}},
	}
	source := &fakeSource{snapshot: snapshot}
	repo := &fakeHRISRepo{}
	users := &fakeUserRepo{byUsername: map[string]*domain.User{}, byEmployeeID: map[string]*domain.User{}}
	r := newTestReplicator(source, repo, users, now)

	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(repo.assignments) != 0 {
		t.Errorf("assignments = %+v, want none (department never resolved)", repo.assignments)
	}
}

func TestRun_StatusSync_NeverClobbersManualOverride(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snapshot := &domain.HRISSnapshot{
		Employees:             []domain.Employee{},
		Departments:           []domain.Department{},
		DepartmentParentLinks: map[string]string{},
		SecurityUsers:         []domain.SecurityUser{{ExternalID: "su-1", Username: "jdoe", EmployeeID: "emp-1", IsDeleted: true}},
		Assignments:           []domain.HRISAssignment{},
	}
	source := &fakeSource{snapshot: snapshot}
	repo := &fakeHRISRepo{}
	overriddenUser := &domain.User{
		ID: "user-1", Username: "jdoe", UserSource: domain.UserSourceHRIS,
		StatusOverride: true, IsActive: true,
	}
	users := &fakeUserRepo{byUsername: map[string]*domain.User{"jdoe": overriddenUser}, byEmployeeID: map[string]*domain.User{}}
	r := newTestReplicator(source, repo, users, now)

	// statusSyncPhase reads ListSecurityUsers from the repo, not the
	// snapshot directly; the fake repo's mirror holds jdoe after the
	// security-user upsert, so the pass visits jdoe (IsDeleted would make
	// it inactive) and skips it because of StatusOverride.
	// fakeUserRepo.SetActive has no observable effect, so the assertion is
	// that Run completes and the user's IsActive flag is unchanged.
	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if overriddenUser.IsActive != true {
		t.Error("manually overridden user's IsActive flag should not be mutated by statusSyncPhase")
	}
}
