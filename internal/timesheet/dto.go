package timesheet

import (
	"errors"
	"time"
)

// CreateTimesheetDTO is the request payload for opening a new weekly timesheet.
type CreateTimesheetDTO struct {
	ProjectID string    `json:"project_id"`
	WeekStart time.Time `json:"week_start"`
}

func (dto CreateTimesheetDTO) Validate() error {
	if dto.ProjectID == "" {
		return errors.New("project_id is required")
	}
	if dto.WeekStart.IsZero() {
		return errors.New("week_start is required")
	}
	return nil
}

// ReasonDTO carries the mandatory free-text reason for reject and reopen.
type ReasonDTO struct {
	Reason string `json:"reason"`
}

func (dto ReasonDTO) Validate() error {
	if dto.Reason == "" {
		return errors.New("reason is required")
	}
	return nil
}

// ListFilter narrows a tenant's timesheet listing.
type ListFilter struct {
	ProjectID string
	UserID    string
	Status    string
}
