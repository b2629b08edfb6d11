package domain

import "time"

// MealRequestStatus codes are stable and wire-visible.
type MealRequestStatus int

const (
	MealRequestPending    MealRequestStatus = 1
	MealRequestApproved   MealRequestStatus = 2
	MealRequestRejected   MealRequestStatus = 3
	MealRequestOnProgress MealRequestStatus = 4
)

func (s MealRequestStatus) String() string {
	switch s {
	case MealRequestPending:
		return "pending"
	case MealRequestApproved:
		return "approved"
	case MealRequestRejected:
		return "rejected"
	case MealRequestOnProgress:
		return "on_progress"
	default:
		return "unknown"
	}
}

// NameEN and NameAR are the bilingual display names the listing summary
// join surfaces alongside the stable status code, mirroring the bilingual
// name_en/name_ar pairing used throughout the rest of the data model
// (Role, Page, Department, ...).
func (s MealRequestStatus) NameEN() string {
	switch s {
	case MealRequestPending:
		return "Pending"
	case MealRequestApproved:
		return "Approved"
	case MealRequestRejected:
		return "Rejected"
	case MealRequestOnProgress:
		return "On Progress"
	default:
		return "Unknown"
	}
}

func (s MealRequestStatus) NameAR() string {
	switch s {
	case MealRequestPending:
		return "قيد الانتظار"
	case MealRequestApproved:
		return "موافق عليه"
	case MealRequestRejected:
		return "مرفوض"
	case MealRequestOnProgress:
		return "قيد التنفيذ"
	default:
		return "غير معروف"
	}
}

type MealRequest struct {
	ID                string
	RequesterID       string
	StatusID          MealRequestStatus
	MealTypeID        string
	RequestTime       time.Time
	Notes             *string
	ClosedByID        *string
	ClosedTime        *time.Time
	IsDeleted         bool
	OriginalRequestID *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ChainRoot returns the id of the original request this one traces back
// to — itself, if it is not a copy.
func (m *MealRequest) ChainRoot() string {
	if m.OriginalRequestID != nil && *m.OriginalRequestID != "" {
		return *m.OriginalRequestID
	}
	return m.ID
}

type MealRequestLine struct {
	ID              string
	MealRequestID   string
	EmployeeID      string
	EmployeeCode    string // snapshot of Employee.Code at creation time
	AttendanceTime  *time.Time
	ShiftHours      *float64
	Notes           *string
	IsAccepted      bool
	IsDeleted       bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// MealRequestSummary is the bilingual listing row: one joined summary per
// meal request, with the requester's username, the meal type's bilingual
// name, and the line counts a caller needs without fetching every line.
type MealRequestSummary struct {
	MealRequestID  string
	StatusID       MealRequestStatus
	RequesterID    string
	RequesterName  string
	MealTypeID     string
	MealTypeNameEN string
	MealTypeNameAR string
	RequestTime    time.Time
	Notes          *string
	ClosedTime     *time.Time
	TotalLines     int64
	AcceptedLines  int64
}

type MealRequestLineAttendance struct {
	ID                 string
	MealRequestLineID  string
	EmployeeCode       string
	AttendanceDate     time.Time
	AttendanceIn       *time.Time
	AttendanceOut      *time.Time
	WorkingHours       *float64 // decimal(4,2)
	AttendanceSyncedAt *time.Time
}
