package domain

import "time"

// UserSource tracks whether a User row is owned by the HRIS replicator or
// by a local administrator. Only manual rows — or HRIS rows with
// StatusOverride set — may have IsActive changed outside of replication.
type UserSource string

const (
	UserSourceHRIS   UserSource = "hris"
	UserSourceManual UserSource = "manual"
)

type User struct {
	ID             string
	Username       string
	PasswordHash   *string
	IsSuperAdmin   bool
	IsActive       bool
	IsBlocked      bool
	UserSource     UserSource
	StatusOverride bool
	OverrideReason *string
	OverrideSetBy  *string
	OverrideSetAt  *time.Time
	EmployeeID     *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Role struct {
	ID          string
	NameEN      string
	NameAR      string
	DescEN      *string
	DescAR      *string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type RolePermission struct {
	ID     string
	RoleID string
	UserID string
}

// NavType distinguishes top-level navigation entries from nested pages.
type NavType string

type Page struct {
	ID          string
	NameEN      string
	NameAR      string
	DescEN      *string
	DescAR      *string
	Key         string
	ParentID    *string
	NavType     NavType
	Order       int
	ShowInNav   bool
	IsMenuGroup bool
	Icon        *string
	VisibleWhen map[string]any
}

type PagePermission struct {
	ID        string
	RoleID    string
	PageID    string
	CreatedBy string
}
