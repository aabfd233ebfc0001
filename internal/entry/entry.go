package entry

import (
	"time"

	"github.com/tverlabs/timekeep/internal"
)

const (
	StatusActive   = "active"
	StatusRejected = "rejected"
)

// Entry is a single block of worked time inside a timesheet. An adjustment
// entry is an immutable post-lock correction: it references the original
// entry and carries a signed delta in minutes instead of a real window.
type Entry struct {
	ID              string     `json:"id" gorm:"primaryKey"`
	TenantID        string     `json:"tenant_id" gorm:"column:tenant_id;not null;index"`
	TimesheetID     string     `json:"timesheet_id" gorm:"column:timesheet_id;not null;index"`
	UserID          string     `json:"user_id" gorm:"column:user_id;not null;index"`
	ProjectID       string     `json:"project_id" gorm:"column:project_id;not null"`
	WorkDate        time.Time  `json:"work_date" gorm:"column:work_date;type:date;not null"`
	StartTime       time.Time  `json:"start_time" gorm:"column:start_time;not null"`
	EndTime         time.Time  `json:"end_time" gorm:"column:end_time;not null"`
	BreakMinutes    int        `json:"break_minutes" gorm:"column:break_minutes;default:0"`
	NetMinutes      int        `json:"net_minutes" gorm:"column:net_minutes;default:0"`
	Description     *string    `json:"description,omitempty"`
	Status          string     `json:"status" gorm:"not null;default:active"`
	IsAdjustment    bool       `json:"is_adjustment" gorm:"column:is_adjustment;default:false"`
	OriginalEntryID *string    `json:"original_entry_id,omitempty" gorm:"column:original_entry_id"`
	DeltaMinutes    *int       `json:"delta_minutes,omitempty" gorm:"column:delta_minutes"`
	IsDeleted       bool       `json:"-" gorm:"column:is_deleted;default:false"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (Entry) TableName() string {
	return "time_entries"
}

// Countable reports whether the entry participates in overlap checks and
// per-day aggregation.
func (e *Entry) Countable() bool {
	return !e.IsAdjustment && e.Status != StatusRejected && !e.IsDeleted
}

var (
	ErrNotFound         = internal.NewNotFoundError("time entry not found", internal.ErrCodeEntryNotFound)
	ErrOriginalNotFound = internal.NewNotFoundError("original entry not found", internal.ErrCodeEntryNotFound)
)
