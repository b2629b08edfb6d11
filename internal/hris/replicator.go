// Package hris is the C8 component: the multi-pass reconciliation engine
// that keeps local employee/department/user records in sync with an
// external HRIS feed. Grounded on the scheduler package's worker.go
// batch-processing shape (claim a batch, process, log a summary) adapted
// from job execution to HRIS record reconciliation, and on
// original_source/src/backend/api/services for the phase ordering and the
// HRIS-vs-manual department-assignment conflict rule.
package hris

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/adelabdelgawad/meal-request-backend/internal/clock"
	"github.com/adelabdelgawad/meal-request-backend/internal/domain"
	"github.com/adelabdelgawad/meal-request-backend/internal/store"
)

// Source is the external HRIS read side. HTTPSource in client.go is the
// shipped implementation; callers may plug in any other client.
type Source interface {
	FetchSnapshot(ctx context.Context) (*domain.HRISSnapshot, error)
}

type Replicator struct {
	source Source
	repo   store.HRISRepository
	users  store.UserRepository
	st     store.Store
	clk    clock.Clock
	logger *slog.Logger
}

func New(source Source, repo store.HRISRepository, users store.UserRepository, st store.Store, clk clock.Clock, logger *slog.Logger) *Replicator {
	return &Replicator{source: source, repo: repo, users: users, st: st, clk: clk, logger: logger.With("component", "hris")}
}

// Run executes one full reconciliation pass inside a single transaction,
// so a failure partway through never leaves a half-reconciled state.
func (r *Replicator) Run(ctx context.Context) (*domain.ReplicationSummary, error) {
	snapshot, err := r.source.FetchSnapshot(ctx)
	if err != nil {
		return nil, domain.Wrap(domain.KindExternalUnavailable, "fetch hris snapshot", err)
	}
	if snapshot == nil || snapshot.Employees == nil || snapshot.Departments == nil || snapshot.SecurityUsers == nil {
		return nil, domain.Wrap(domain.KindExternalUnavailable, "partial hris read, aborting without committing", nil)
	}

	tx, err := r.st.Begin(ctx)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	start := r.clk.Now()
	overall := &domain.ReplicationSummary{Phase: "full_replication"}

	if err := r.deactivatePhase(ctx, tx, overall); err != nil {
		return nil, err
	}

	deptMap, err := r.departmentPhase(ctx, tx, snapshot, overall)
	if err != nil {
		return nil, err
	}

	if err := r.employeePhase(ctx, tx, snapshot, deptMap, overall); err != nil {
		return nil, err
	}

	if err := r.securityUserPhase(ctx, tx, snapshot, overall); err != nil {
		return nil, err
	}

	if err := r.userLinkingPhase(ctx, tx, overall); err != nil {
		return nil, err
	}

	if err := r.precreateUserPhase(ctx, tx, overall); err != nil {
		return nil, err
	}

	if err := r.statusSyncPhase(ctx, tx, overall); err != nil {
		return nil, err
	}

	if err := r.assignmentPhase(ctx, tx, snapshot, deptMap, overall); err != nil {
		return nil, err
	}

	overall.DurationMS = r.clk.Now().Sub(start).Milliseconds()
	if err := r.repo.RecordReplicationSummary(ctx, tx, overall); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, domain.Wrap(domain.KindDatabase, "commit replication", err)
	}
	committed = true
	return overall, nil
}

// deactivatePhase is the scoped deactivate pass: every
// employee and security user is marked inactive/deleted up front (the
// upsert passes below reactivate anything still present in the feed), but
// department assignments are only deactivated where is_synced_from_hris —
// a manually granted assignment is never touched here.
func (r *Replicator) deactivatePhase(ctx context.Context, tx store.Tx, overall *domain.ReplicationSummary) error {
	if _, err := r.repo.DeactivateEmployeesNotIn(ctx, tx, nil); err != nil {
		return err
	}
	if _, err := r.repo.DeactivateSecurityUsersNotIn(ctx, tx, nil); err != nil {
		return err
	}
	if _, err := r.repo.DeactivateAllHRISAssignments(ctx, tx); err != nil {
		return err
	}
	return nil
}

func (r *Replicator) departmentPhase(ctx context.Context, tx store.Tx, snap *domain.HRISSnapshot, overall *domain.ReplicationSummary) (map[string]string, error) {
	start := r.clk.Now()
	pass1 := make([]domain.Department, len(snap.Departments))
	for i, d := range snap.Departments {
		pass1[i] = d
		pass1[i].ParentID = nil
	}
	created, updated, err := r.repo.UpsertDepartments(ctx, tx, pass1)
	if err != nil {
		return nil, err
	}

	deptMap := make(map[string]string, len(snap.Departments))
	for _, d := range snap.Departments {
		deptMap[d.ID] = d.ID // local id equals hris id for departments, per domain.Department
	}

	pass2 := make([]domain.Department, 0, len(snap.Departments))
	for _, d := range snap.Departments {
		if parentHRISID, ok := snap.DepartmentParentLinks[d.ID]; ok {
			if localParent, ok := deptMap[parentHRISID]; ok {
				d.ParentID = &localParent
			}
		}
		pass2 = append(pass2, d)
	}
	if _, _, err := r.repo.UpsertDepartments(ctx, tx, pass2); err != nil {
		return nil, err
	}

	r.recordSubPhase(ctx, tx, "departments", len(snap.Departments), created, updated, 0, 0, start)
	return deptMap, nil
}

func (r *Replicator) employeePhase(ctx context.Context, tx store.Tx, snap *domain.HRISSnapshot, deptMap map[string]string, overall *domain.ReplicationSummary) error {
	start := r.clk.Now()
	var toUpsert []domain.Employee
	var skipped int
	for _, e := range snap.Employees {
		if e.DepartmentID != nil {
			if local, ok := deptMap[*e.DepartmentID]; ok {
				e.DepartmentID = &local
			} else {
				skipped++
				continue
			}
		}
		toUpsert = append(toUpsert, e)
	}
	created, updated, err := r.repo.UpsertEmployees(ctx, tx, toUpsert)
	if err != nil {
		return err
	}
	r.recordSubPhase(ctx, tx, "employees", len(snap.Employees), created, updated, skipped, 0, start)
	return nil
}

// securityUserPhase inserts/updates the local
// SecurityUser mirror, then in a linking sub-pass sets employee_id on any
// User whose username already matches. Linking failures log but never
// abort the phase.
func (r *Replicator) securityUserPhase(ctx context.Context, tx store.Tx, snap *domain.HRISSnapshot, overall *domain.ReplicationSummary) error {
	start := r.clk.Now()
	created, updated, err := r.repo.UpsertSecurityUsers(ctx, tx, snap.SecurityUsers)
	if err != nil {
		return err
	}

	var failed int
	for _, su := range snap.SecurityUsers {
		u, err := r.users.GetByUsername(ctx, tx, su.Username)
		if err != nil {
			continue // no local user with this username yet; precreateUserPhase handles that
		}
		if u.EmployeeID == nil {
			u.EmployeeID = &su.EmployeeID
			if err := r.users.Update(ctx, tx, u); err != nil {
				failed++
			}
		}
	}
	r.recordSubPhase(ctx, tx, "security_users", len(snap.SecurityUsers), created, updated, 0, failed, start)
	return nil
}

// userLinkingPhase runs over the full set of
// security users now mirrored locally: case-insensitive username match
// against any User still missing an employee_id. securityUserPhase above
// already covers the common case inline; this pass catches users whose
// SecurityUser row predates this run and whose casing differs.
func (r *Replicator) userLinkingPhase(ctx context.Context, tx store.Tx, overall *domain.ReplicationSummary) error {
	start := r.clk.Now()
	securityUsers, err := r.repo.ListSecurityUsers(ctx, tx)
	if err != nil {
		return err
	}
	var linked int
	for _, su := range securityUsers {
		u, err := r.users.GetByUsername(ctx, tx, su.Username)
		if err != nil || u.EmployeeID != nil {
			continue
		}
		if !lowerEqual(u.Username, su.Username) {
			continue
		}
		u.EmployeeID = &su.EmployeeID
		if err := r.users.Update(ctx, tx, u); err == nil {
			linked++
		}
	}
	r.recordSubPhase(ctx, tx, "user_employee_linking", len(securityUsers), 0, linked, 0, 0, start)
	return nil
}

func (r *Replicator) precreateUserPhase(ctx context.Context, tx store.Tx, overall *domain.ReplicationSummary) error {
	start := r.clk.Now()
	securityUsers, err := r.repo.ListSecurityUsers(ctx, tx)
	if err != nil {
		return err
	}
	var created int
	for _, su := range securityUsers {
		if _, err := r.users.GetByUsername(ctx, tx, su.Username); err == nil {
			continue // already exists
		} else if domain.KindOf(err) != domain.KindNotFound {
			continue
		}
		if _, err := r.users.GetByEmployeeID(ctx, tx, su.EmployeeID); err == nil {
			continue // employee already linked to a different user
		}
		now := r.clk.Now()
		stub := &domain.User{
			ID: clock.NewID(), Username: su.Username, IsSuperAdmin: false, IsActive: false,
			IsBlocked: false, UserSource: domain.UserSourceHRIS, EmployeeID: &su.EmployeeID,
			CreatedAt: now, UpdatedAt: now,
		}
		if err := r.users.Create(ctx, tx, stub); err != nil {
			continue
		}
		created++
	}
	r.recordSubPhase(ctx, tx, "precreate_users", len(securityUsers), created, 0, len(securityUsers)-created, 0, start)
	return nil
}

// statusSyncPhase only touches HRIS-sourced users without a manual
// override — a manually overridden status is never clobbered by the feed.
func (r *Replicator) statusSyncPhase(ctx context.Context, tx store.Tx, overall *domain.ReplicationSummary) error {
	start := r.clk.Now()
	securityUsers, err := r.repo.ListSecurityUsers(ctx, tx)
	if err != nil {
		return err
	}
	var updated int
	for _, su := range securityUsers {
		u, err := r.users.GetByUsername(ctx, tx, su.Username)
		if err != nil {
			continue
		}
		if u.UserSource != domain.UserSourceHRIS || u.StatusOverride {
			continue
		}
		wantActive := !(su.IsDeleted || su.IsLocked)
		if u.IsActive != wantActive {
			if err := r.users.SetActive(ctx, tx, u.ID, wantActive); err == nil {
				updated++
			}
		}
	}
	r.recordSubPhase(ctx, tx, "status_sync", len(securityUsers), 0, updated, 0, 0, start)
	return nil
}

// assignmentPhase applies the HRIS-vs-manual conflict rule: a manual
// assignment is promoted to
// HRIS-managed (logged), never silently overwritten or dropped.
func (r *Replicator) assignmentPhase(ctx context.Context, tx store.Tx, snap *domain.HRISSnapshot, deptMap map[string]string, overall *domain.ReplicationSummary) error {
	start := r.clk.Now()
	var created, updated, skipped int
	now := r.clk.Now()

	liveByUser := map[string][]string{}
	for _, a := range snap.Assignments {
		localDeptID, ok := deptMap[a.ExternalDepartmentID]
		if !ok {
			skipped++
			continue
		}
		u, err := r.users.GetByEmployeeID(ctx, tx, a.ExternalEmployeeID)
		if err != nil {
			skipped++
			continue
		}

		existing, err := r.repo.ListAssignments(ctx, tx, u.ID)
		if err != nil {
			return err
		}
		var found *domain.DepartmentAssignment
		for i := range existing {
			if existing[i].DepartmentID == localDeptID {
				found = &existing[i]
				break
			}
		}

		if found != nil {
			if found.IsSyncedFromHRIS {
				found.IsActive = true
			} else {
				r.logger.Info("promoting manual department assignment to hris-managed",
					"user_id", u.ID, "department_id", localDeptID)
				found.IsSyncedFromHRIS = true
				found.IsActive = true
			}
			found.UpdatedAt = now
			if err := r.repo.UpsertAssignment(ctx, tx, found); err != nil {
				return err
			}
			updated++
		} else {
			if err := r.repo.UpsertAssignment(ctx, tx, &domain.DepartmentAssignment{
				ID: clock.NewID(), DepartmentID: localDeptID, UserID: u.ID,
				IsSyncedFromHRIS: true, IsActive: true, CreatedAt: now, UpdatedAt: now,
			}); err != nil {
				return err
			}
			created++
		}
		liveByUser[u.ID] = append(liveByUser[u.ID], localDeptID)
	}

	for userID, liveDepts := range liveByUser {
		if _, err := r.repo.DeactivateHRISAssignmentsNotIn(ctx, tx, userID, liveDepts); err != nil {
			return err
		}
	}

	r.recordSubPhase(ctx, tx, "department_assignments", len(snap.Assignments), created, updated, skipped, 0, start)
	return nil
}

func (r *Replicator) recordSubPhase(ctx context.Context, tx store.Tx, phase string, processed, created, updated, skipped, failed int, start time.Time) {
	s := &domain.ReplicationSummary{
		Phase: phase, RecordsProcessed: processed, RecordsCreated: created,
		RecordsUpdated: updated, RecordsSkipped: skipped, RecordsFailed: failed,
		DurationMS: r.clk.Now().Sub(start).Milliseconds(),
	}
	if err := r.repo.RecordReplicationSummary(ctx, tx, s); err != nil {
		r.logger.Error("record replication sub-phase failed", "phase", phase, "error", err)
	}
}

func lowerEqual(a, b string) bool { return strings.EqualFold(a, b) }
