package timesheet

import (
	"time"

	"github.com/tverlabs/timekeep/internal"
)

// Status is the lifecycle state of a weekly timesheet.
//
// open → submitted → approved → locked, with reject (submitted|approved →
// open) and reopen (locked → open). Transitions live in Service; status is
// never compared or advanced outside a row lock.
type Status string

const (
	StatusOpen      Status = "open"
	StatusSubmitted Status = "submitted"
	StatusApproved  Status = "approved"
	StatusLocked    Status = "locked"
)

// Timesheet is one week of work for one user on one project. Unique per
// (tenant, project, user, week_start); never physically deleted.
type Timesheet struct {
	ID          string     `json:"id" gorm:"primaryKey"`
	TenantID    string     `json:"tenant_id" gorm:"column:tenant_id;not null;index"`
	ProjectID   string     `json:"project_id" gorm:"column:project_id;not null;index"`
	UserID      string     `json:"user_id" gorm:"column:user_id;not null;index"`
	WeekStart   time.Time  `json:"week_start" gorm:"column:week_start;type:date;not null"`
	WeekEnd     time.Time  `json:"week_end" gorm:"column:week_end;type:date;not null"`
	Status      Status     `json:"status" gorm:"not null;default:open"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	SubmittedBy *string    `json:"submitted_by,omitempty"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
	ApprovedBy  *string    `json:"approved_by,omitempty"`
	LockedAt    *time.Time `json:"locked_at,omitempty"`
	LockedBy    *string    `json:"locked_by,omitempty"`
	ReopenedAt  *time.Time `json:"reopened_at,omitempty"`
	ReopenedBy  *string    `json:"reopened_by,omitempty"`
	IsDeleted   bool       `json:"-" gorm:"column:is_deleted;default:false"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (Timesheet) TableName() string {
	return "timesheets"
}

// Editable reports whether entries under this sheet may be mutated.
func (t *Timesheet) Editable() bool {
	return t.Status == StatusOpen
}

// WeekEndFor derives the inclusive week end from a week start.
func WeekEndFor(weekStart time.Time) time.Time {
	return weekStart.AddDate(0, 0, 6)
}

var (
	ErrNotFound      = internal.NewNotFoundError("timesheet not found", internal.ErrCodeTimesheetNotFound)
	ErrWeekNotMonday = internal.NewValidationError("week_start must be a Monday", internal.ErrCodeInvalidWeekStart)
	ErrDuplicateWeek = internal.NewIntegrityConflictError(
		"a timesheet already exists for this user, project and week",
		internal.ErrCodeDuplicateWeek, nil)
)
