package domain

import "time"

// Employee's ID equals the external HRIS id — there is no local surrogate
// key.
type Employee struct {
	ID           string
	Code         string
	NameEN       string
	NameAR       string
	Title        *string
	IsActive     bool
	DepartmentID *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Department struct {
	ID        string
	NameEN    string
	NameAR    string
	ParentID  *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DepartmentAssignment links a user to a department. IsSyncedFromHRIS
// gates what the replicator is allowed to deactivate.
type DepartmentAssignment struct {
	ID               string
	DepartmentID     string
	UserID           string
	IsSyncedFromHRIS bool
	IsActive         bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// SecurityUser mirrors the external HRIS's own user/account record — it is
// the bridge between an Employee and a local User during replication.
type SecurityUser struct {
	ExternalID   string
	Username     string
	EmployeeID   string
	IsDeleted    bool
	IsLocked     bool
}

// HRISSnapshot is the external read the Replicator consumes in one pass.
type HRISSnapshot struct {
	Employees             []Employee
	Departments           []Department
	DepartmentParentLinks map[string]string // hris department id -> parent hris department id
	SecurityUsers         []SecurityUser
	Assignments           []HRISAssignment
}

// HRISAssignment is one (employee, department) pair read from the external
// department-assignment feed.
type HRISAssignment struct {
	ExternalEmployeeID   string
	ExternalDepartmentID string
}

// ReplicationSummary is what gets written to LogReplication per phase.
type ReplicationSummary struct {
	Phase             string
	RecordsProcessed  int
	RecordsCreated    int
	RecordsUpdated    int
	RecordsSkipped    int
	RecordsFailed     int
	DurationMS        int64
}
