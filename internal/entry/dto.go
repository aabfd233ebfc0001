package entry

import (
	"errors"
	"time"
)

// CreateEntryDTO is the request payload for adding an entry to a timesheet.
type CreateEntryDTO struct {
	WorkDate     time.Time `json:"work_date"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	BreakMinutes int       `json:"break_minutes"`
	Description  *string   `json:"description,omitempty"`
}

func (dto CreateEntryDTO) Validate() error {
	if dto.WorkDate.IsZero() {
		return errors.New("work_date is required")
	}
	if dto.StartTime.IsZero() || dto.EndTime.IsZero() {
		return errors.New("start_time and end_time are required")
	}
	if !dto.EndTime.After(dto.StartTime) {
		return errors.New("end_time must be after start_time")
	}
	if dto.BreakMinutes < 0 {
		return errors.New("break_minutes must be >= 0")
	}
	return nil
}

// UpdateEntryDTO carries partial updates; nil fields keep current values.
type UpdateEntryDTO struct {
	StartTime    *time.Time `json:"start_time,omitempty"`
	EndTime      *time.Time `json:"end_time,omitempty"`
	BreakMinutes *int       `json:"break_minutes,omitempty"`
	Description  *string    `json:"description,omitempty"`
}

func (dto UpdateEntryDTO) Validate() error {
	if dto.StartTime != nil && dto.EndTime != nil && !dto.EndTime.After(*dto.StartTime) {
		return errors.New("end_time must be after start_time")
	}
	if dto.BreakMinutes != nil && *dto.BreakMinutes < 0 {
		return errors.New("break_minutes must be >= 0")
	}
	return nil
}

// CreateAdjustmentDTO records a signed correction against an existing entry.
type CreateAdjustmentDTO struct {
	OriginalEntryID string  `json:"original_entry_id"`
	DeltaMinutes    int     `json:"delta_minutes"`
	Description     *string `json:"description,omitempty"`
}

func (dto CreateAdjustmentDTO) Validate() error {
	if dto.OriginalEntryID == "" {
		return errors.New("original_entry_id is required")
	}
	if dto.DeltaMinutes == 0 {
		return errors.New("delta_minutes must be non-zero")
	}
	return nil
}
