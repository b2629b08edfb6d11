package store

import (
	"context"
	"time"

	"github.com/adelabdelgawad/meal-request-backend/internal/domain"
)

// SessionRepository is grounded on internal/repository/user.go
// and attempt.go interface shape — one narrow interface per aggregate, each
// method taking a Querier so it can run inside or outside a Tx.
type SessionRepository interface {
	Create(ctx context.Context, q Querier, s *domain.Session) error
	GetByID(ctx context.Context, q Querier, id string) (*domain.Session, error)
	GetForUpdate(ctx context.Context, q Querier, id string) (*domain.Session, error) // SELECT ... FOR UPDATE
	ListActiveByUser(ctx context.Context, q Querier, userID string) ([]domain.Session, error)
	CountActiveByUser(ctx context.Context, q Querier, userID string) (int, error)
	Revoke(ctx context.Context, q Querier, id string) error
	RevokeAllForUser(ctx context.Context, q Querier, userID string) error
	Touch(ctx context.Context, q Querier, id string, lastSeenAt time.Time) error

	AddRevokedToken(ctx context.Context, q Querier, rt *domain.RevokedToken) error
	IsTokenRevoked(ctx context.Context, q Querier, jti string) (bool, error)
	PurgeExpiredRevocations(ctx context.Context, q Querier, before time.Time) (int64, error)
}

// UserRepository covers User, Role, and Page aggregates — grounded on
// internal/repository/user.go.
type UserRepository interface {
	GetByID(ctx context.Context, q Querier, id string) (*domain.User, error)
	GetByUsername(ctx context.Context, q Querier, username string) (*domain.User, error)
	GetByEmployeeID(ctx context.Context, q Querier, employeeID string) (*domain.User, error)
	Create(ctx context.Context, q Querier, u *domain.User) error
	Update(ctx context.Context, q Querier, u *domain.User) error
	SetActive(ctx context.Context, q Querier, id string, active bool) error

	ListRolesForUser(ctx context.Context, q Querier, userID string) ([]domain.Role, error)
	ListPermissionsForRole(ctx context.Context, q Querier, roleID string) ([]domain.PagePermission, error)
}

// HRISRepository backs the C8 replicator: bulk reads of the local mirror
// plus chunked bulk upserts, grounded on the batching in
// infrastructure/postgres/job_repo.go (ClaimAndFire uses a single
// transaction per batch the same way replication phases do here).
type HRISRepository interface {
	GetEmployeeByID(ctx context.Context, q Querier, id string) (*domain.Employee, error)
	ListEmployees(ctx context.Context, q Querier) ([]domain.Employee, error)
	// ListEmployeesByCodes resolves a batch of Employee.code values to
	// their rows — the lookup the Attendance Sync component uses to turn
	// a MealRequestLine's denormalised employee_code into the external
	// HRIS employee id the time-tracking source expects.
	ListEmployeesByCodes(ctx context.Context, q Querier, codes []string) ([]domain.Employee, error)
	UpsertEmployees(ctx context.Context, q Querier, employees []domain.Employee) (created, updated int, err error)
	DeactivateEmployeesNotIn(ctx context.Context, q Querier, liveIDs []string) (int64, error)

	ListDepartments(ctx context.Context, q Querier) ([]domain.Department, error)
	UpsertDepartments(ctx context.Context, q Querier, departments []domain.Department) (created, updated int, err error)

	ListSecurityUsers(ctx context.Context, q Querier) ([]domain.SecurityUser, error)
	UpsertSecurityUsers(ctx context.Context, q Querier, users []domain.SecurityUser) (created, updated int, err error)
	DeactivateSecurityUsersNotIn(ctx context.Context, q Querier, liveExternalIDs []string) (int64, error)

	ListAssignments(ctx context.Context, q Querier, userID string) ([]domain.DepartmentAssignment, error)
	UpsertAssignment(ctx context.Context, q Querier, a *domain.DepartmentAssignment) error
	DeactivateHRISAssignmentsNotIn(ctx context.Context, q Querier, userID string, liveDeptIDs []string) (int64, error)
	DeactivateAllHRISAssignments(ctx context.Context, q Querier) (int64, error)

	RecordReplicationSummary(ctx context.Context, q Querier, s *domain.ReplicationSummary) error
}

// MealRequestRepository is grounded on internal/repository/job.go.
type MealRequestRepository interface {
	Create(ctx context.Context, q Querier, m *domain.MealRequest) error
	GetByID(ctx context.Context, q Querier, id string) (*domain.MealRequest, error)
	GetForUpdate(ctx context.Context, q Querier, id string) (*domain.MealRequest, error)
	UpdateStatus(ctx context.Context, q Querier, id string, expected, next domain.MealRequestStatus, closedByID *string, closedAt time.Time) (bool, error)
	SoftDelete(ctx context.Context, q Querier, id string) error
	// ListSummaries backs the bilingual Listing operation: a joined
	// requester/meal-type/line-count summary per request, excluding any
	// request left with zero active lines.
	ListSummaries(ctx context.Context, q Querier, f MealRequestFilter) ([]domain.MealRequestSummary, error)
	// FindPendingByChainRoot backs the Copy duplicate guard:
	// at most one Pending request per (requester, chain root) may exist.
	FindPendingByChainRoot(ctx context.Context, q Querier, requesterID, chainRootID string) (*domain.MealRequest, error)

	CreateLine(ctx context.Context, q Querier, l *domain.MealRequestLine) error
	ListLines(ctx context.Context, q Querier, mealRequestID string) ([]domain.MealRequestLine, error)
	SoftDeleteLines(ctx context.Context, q Querier, mealRequestID string) error
	SetLineAccepted(ctx context.Context, q Querier, lineID string, accepted bool) error

	UpsertLineAttendance(ctx context.Context, q Querier, a *domain.MealRequestLineAttendance) (changed bool, err error)
	ListLinesMissingAttendance(ctx context.Context, q Querier, since time.Time) ([]LineForAttendance, error)
}

// LineForAttendance pairs a MealRequestLine with its parent request's
// RequestTime, since attendance grouping keys off the request's date, not
// the line's own timestamps.
type LineForAttendance struct {
	domain.MealRequestLine
	RequestTime time.Time
}

// MealRequestFilter is the bilingual, visibility-scoped listing filter.
type MealRequestFilter struct {
	// RequesterFilter is either a requester id or a free-text search term,
	// per spec.md §4.9: a UUID matches exactly against requester_id;
	// anything else is matched as a case-insensitive substring against the
	// requester's username.
	RequesterFilter    *string
	VisibleDepartments []string // nil means unrestricted (admin)
	Status             *domain.MealRequestStatus
	From, To           *time.Time
	Limit, Offset      int
}

// SchedulerRepository is grounded directly on the
// internal/repository/schedule.go and attempt.go, extended with lock and
// instance-heartbeat operations.
type SchedulerRepository interface {
	ListEnabledJobs(ctx context.Context, q Querier) ([]domain.ScheduledJob, error)
	GetJob(ctx context.Context, q Querier, id string) (*domain.ScheduledJob, error)
	GetJobForUpdate(ctx context.Context, q Querier, id string) (*domain.ScheduledJob, error)
	UpdateLastRun(ctx context.Context, q Querier, id string, at time.Time) error

	CreateExecution(ctx context.Context, q Querier, e *domain.ScheduledJobExecution) error
	MarkExecutionStarted(ctx context.Context, q Querier, id string, startedAt time.Time) error
	CompleteExecution(ctx context.Context, q Querier, id string, status domain.ExecutionStatus, summary *string, errMsg *string, durationMS int64) error
	AppendExecutionSummary(ctx context.Context, q Querier, id string, note string) error
	GetActiveExecutionForJob(ctx context.Context, q Querier, jobID string) (*domain.ScheduledJobExecution, error)
	ListExecutions(ctx context.Context, q Querier, jobID string, limit int) ([]domain.ScheduledJobExecution, error)
	PurgeOldExecutions(ctx context.Context, q Querier, before time.Time) (int64, error)

	// AcquireLock attempts SELECT ... FOR UPDATE SKIP LOCKED over the job's
	// lock row and inserts a fresh lock if none is held or the held one has
	// expired. ok is false if another executor currently holds it.
	AcquireLock(ctx context.Context, q Querier, jobID, executionID, executorID, hostName string, ttl time.Duration) (ok bool, err error)
	ReleaseLock(ctx context.Context, q Querier, jobID, executorID string) error
	ReapExpiredLocks(ctx context.Context, q Querier, now time.Time) (int64, error)

	UpsertInstance(ctx context.Context, q Querier, inst *domain.SchedulerInstance) error
	Heartbeat(ctx context.Context, q Querier, instanceID string, at time.Time) error
	ListStaleInstances(ctx context.Context, q Querier, staleBefore time.Time) ([]domain.SchedulerInstance, error)
	MarkInstanceStopped(ctx context.Context, q Querier, instanceID string, at time.Time) error

	ListTaskFunctions(ctx context.Context, q Querier) ([]domain.TaskFunction, error)
}
