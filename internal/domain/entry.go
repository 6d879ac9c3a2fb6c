package domain

import (
	"context"
	"time"
)

// Status is the lifecycle state of a time entry.
type Status string

const (
	StatusRunning Status = "running"
	StatusPaused  Status = "paused"
	StatusStopped Status = "stopped"
)

// Operation is a lifecycle transition requested by a caller.
type Operation string

const (
	OpStart  Operation = "start"
	OpPause  Operation = "pause"
	OpResume Operation = "resume"
	OpStop   Operation = "stop"
)

// MaxDescriptionLen bounds the free-text description on an entry.
const MaxDescriptionLen = 500

// TimeEntry represents a tracked block of work time.
//
// DurationSeconds holds accrued running time only; paused intervals never
// count. For a running entry the live total is DurationSeconds plus the
// wall-clock time since LastResumedAt, computed at read time and never
// persisted until the next transition.
type TimeEntry struct {
	ID              string
	TenantID        string
	UserID          string
	ProjectID       *string
	Description     string
	Status          Status
	StartedAt       time.Time
	EndedAt         *time.Time // set exactly once, on stop
	LastResumedAt   time.Time  // start of the current running interval
	DurationSeconds int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Active reports whether the entry still occupies the user's single
// active-entry slot.
func (e *TimeEntry) Active() bool {
	return e.Status == StatusRunning || e.Status == StatusPaused
}

// Activity is an append-only audit record of one lifecycle transition.
type Activity struct {
	ID         string
	TenantID   string
	UserID     string
	EntryID    string
	Kind       Operation
	OccurredAt time.Time
}

// DashboardStats is derived from entries at read time; it is never stored.
type DashboardStats struct {
	TotalSeconds   int64 `json:"totalSeconds"`
	RunningUsers   int   `json:"runningUsers"`
	ActiveProjects int   `json:"activeProjects"`
	TodaySeconds   int64 `json:"todaySeconds"`
}

// EntryFilter narrows entry listings; zero values mean no filter.
type EntryFilter struct {
	UserID    string
	ProjectID string
	Limit     int
}

// EntryRepository is the durable, tenant-scoped store for time entries.
//
// TryStart and Transition are the only write paths and each must be atomic
// with respect to concurrent calls for the same user: TryStart's existence
// check and insert are indivisible, and no two Transitions for one entry may
// commit concurrently.
type EntryRepository interface {
	// TryStart persists a new running entry if the user has no active one.
	// On a conflict it returns a ConflictError carrying the active entry id.
	TryStart(ctx context.Context, entry *TimeEntry, act *Activity) error

	// Transition loads the entry for update, applies fn to a copy, persists
	// the result and appends act in the same atomic unit. fn runs at most
	// once; any error from fn aborts without side effects.
	Transition(ctx context.Context, tenantID, entryID string, fn func(*TimeEntry) (*Activity, error)) (*TimeEntry, error)

	GetByID(ctx context.Context, tenantID, entryID string) (*TimeEntry, error)
	GetActive(ctx context.Context, tenantID, userID string) (*TimeEntry, error)
	List(ctx context.Context, tenantID string, filter EntryFilter) ([]*TimeEntry, error)

	// Correct rewrites duration/project/description on a stopped entry.
	Correct(ctx context.Context, tenantID string, entry *TimeEntry) error
}

// ActivityRepository reads the append-only transition feed. Writes happen
// inside EntryRepository transactions so the feed can never disagree with
// the entries table.
type ActivityRepository interface {
	ListByTenant(ctx context.Context, tenantID string, limit int) ([]*Activity, error)
	ListByEntry(ctx context.Context, tenantID, entryID string) ([]*Activity, error)
}

// Project is a grouping target for entries.
type Project struct {
	ID        string
	TenantID  string
	Name      string
	Archived  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProjectRepository defines data access for projects.
type ProjectRepository interface {
	Create(ctx context.Context, project *Project) error
	GetByID(ctx context.Context, tenantID, id string) (*Project, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*Project, error)
}
