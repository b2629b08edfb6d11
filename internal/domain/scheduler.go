package domain

import "time"

type SchedulerJobType string

const (
	JobTypeInterval SchedulerJobType = "interval"
	JobTypeCron     SchedulerJobType = "cron"
)

type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionSuccess   ExecutionStatus = "success"
	ExecutionFailed    ExecutionStatus = "failed"
)

type TaskFunction struct {
	ID           string
	Key          string
	FunctionPath string
	NameEN       string
	NameAR       string
	DescEN       *string
	DescAR       *string
	IsActive     bool
}

// Interval is the set of interval fields a ScheduledJob may populate.
// Exactly one of Interval/CronExpr is non-nil on any given job.
type Interval struct {
	Seconds int
	Minutes int
	Hours   int
	Days    int
}

func (i Interval) Duration() time.Duration {
	return time.Duration(i.Seconds)*time.Second +
		time.Duration(i.Minutes)*time.Minute +
		time.Duration(i.Hours)*time.Hour +
		time.Duration(i.Days)*24*time.Hour
}

type ScheduledJob struct {
	ID                string
	TaskFunctionID    string
	JobTypeID         SchedulerJobType
	Interval          *Interval
	CronExpr          *string
	Priority          int
	MaxInstances      int
	MisfireGraceTime  int // seconds
	Coalesce          bool
	IsEnabled         bool
	IsActive          bool
	IsPrimary         bool
	LastRunAt         *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type ScheduledJobExecution struct {
	ID              string
	JobID           string
	ExecutionID     string // business-unique execution handle
	ScheduledAt     time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
	DurationMS      *int64
	StatusID        ExecutionStatus
	ErrorMessage    *string
	ErrorTraceback  *string
	ResultSummary   *string
	ExecutorID      string
	HostName        string
	TriggeredBy     *string // nil for periodic firings
}

type ScheduledJobLock struct {
	ID          string
	JobID       string
	ExecutionID string
	ExecutorID  string
	HostName    string
	AcquiredAt  time.Time
	ExpiresAt   time.Time
	ReleasedAt  *time.Time
}

type InstanceMode string

const (
	InstanceModeEmbedded   InstanceMode = "embedded"
	InstanceModeStandalone InstanceMode = "standalone"
)

type InstanceStatus string

const (
	InstanceStarting InstanceStatus = "starting"
	InstanceRunning  InstanceStatus = "running"
	InstancePaused   InstanceStatus = "paused"
	InstanceStopped  InstanceStatus = "stopped"
)

type SchedulerInstance struct {
	ID            string
	InstanceName  string
	HostName      string
	ProcessID     int
	Mode          InstanceMode
	Status        InstanceStatus
	LastHeartbeat time.Time
	StartedAt     time.Time
	StoppedAt     *time.Time
}
