package entry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tverlabs/timekeep/internal"
	"github.com/tverlabs/timekeep/internal/audit"
	"github.com/tverlabs/timekeep/internal/interval"
	"github.com/tverlabs/timekeep/internal/timesheet"
	"github.com/tverlabs/timekeep/pkg/database"
)

// Repository is the storage contract for time entries.
type Repository interface {
	Create(ctx context.Context, e *Entry) error
	GetByID(ctx context.Context, tenantID, id string) (*Entry, error)
	Save(ctx context.Context, e *Entry) error
	ListByTimesheet(ctx context.Context, timesheetID string) ([]*Entry, error)
	ListActiveRegular(ctx context.Context, timesheetID string) ([]*Entry, error)
	ListForUserBetween(ctx context.Context, tenantID, userID string, from, to time.Time) ([]*Entry, error)
	FindOverlapping(ctx context.Context, tenantID, userID string, workDate, start, end time.Time, excludeID string) (*Entry, error)
	HasAdjustment(ctx context.Context, tenantID, originalEntryID string) (bool, error)
}

// Service owns entry mutation. The parent timesheet gates every write: only
// open sheets accept create/update/delete, only locked sheets accept
// adjustments. Status is validated inside the same transaction as the write.
type Service struct {
	tx     database.TxManager
	repo   Repository
	sheets timesheet.Repository
	audit  audit.Recorder
	logger *slog.Logger
}

func NewService(tx database.TxManager, repo Repository, sheets timesheet.Repository, recorder audit.Recorder, logger *slog.Logger) *Service {
	return &Service{
		tx:     tx,
		repo:   repo,
		sheets: sheets,
		audit:  recorder,
		logger: logger,
	}
}

func (s *Service) Create(ctx context.Context, actor *internal.Actor, timesheetID string, dto CreateEntryDTO) (*Entry, error) {
	if err := dto.Validate(); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeInvalidWindow)
	}

	workDate := dateOnly(dto.WorkDate)

	var created *Entry
	err := s.tx.Do(ctx, func(ctx context.Context) error {
		sheet, err := s.sheets.GetByID(ctx, actor.TenantID, timesheetID)
		if err != nil {
			return err
		}
		if !sheet.Editable() {
			return internal.NewStateConflictError(
				fmt.Sprintf("cannot add entries to timesheet with status '%s'", sheet.Status), string(sheet.Status))
		}
		if actor.UserID != sheet.UserID {
			return internal.NewForbiddenError("entry user must match timesheet user", internal.ErrCodeOwnerMismatch)
		}
		if err := s.checkWindow(sheet, workDate); err != nil {
			return err
		}
		if err := s.checkOverlap(ctx, actor.TenantID, sheet.UserID, workDate, dto.StartTime, dto.EndTime, ""); err != nil {
			return err
		}

		net := interval.NetMinutes(dto.StartTime, dto.EndTime, dto.BreakMinutes)
		created = &Entry{
			ID:           uuid.NewString(),
			TenantID:     actor.TenantID,
			TimesheetID:  sheet.ID,
			UserID:       sheet.UserID,
			ProjectID:    sheet.ProjectID,
			WorkDate:     workDate,
			StartTime:    dto.StartTime,
			EndTime:      dto.EndTime,
			BreakMinutes: dto.BreakMinutes,
			NetMinutes:   net,
			Description:  dto.Description,
			Status:       StatusActive,
		}
		if err := s.repo.Create(ctx, created); err != nil {
			return err
		}
		return s.audit.Record(ctx, audit.Event{
			TenantID:     actor.TenantID,
			ActorID:      actor.UserID,
			Action:       "timeentry.create",
			ResourceType: "time_entry",
			ResourceID:   created.ID,
			Detail: map[string]interface{}{
				"work_date":   workDate.Format("2006-01-02"),
				"net_minutes": net,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("time entry created",
		"entry_id", created.ID, "timesheet_id", timesheetID, "net_minutes", created.NetMinutes)
	return created, nil
}

func (s *Service) Update(ctx context.Context, actor *internal.Actor, entryID string, dto UpdateEntryDTO) (*Entry, error) {
	if err := dto.Validate(); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeInvalidWindow)
	}

	var updated *Entry
	err := s.tx.Do(ctx, func(ctx context.Context) error {
		e, err := s.repo.GetByID(ctx, actor.TenantID, entryID)
		if err != nil {
			return err
		}
		sheet, err := s.sheets.GetByID(ctx, actor.TenantID, e.TimesheetID)
		if err != nil {
			return err
		}
		if !sheet.Editable() {
			return internal.NewStateConflictError(
				fmt.Sprintf("cannot edit entries on timesheet with status '%s'", sheet.Status), string(sheet.Status))
		}
		if e.IsAdjustment {
			return internal.NewValidationError("adjustment entries cannot be edited", internal.ErrCodeEntryNotAdjustable)
		}

		newStart := e.StartTime
		newEnd := e.EndTime
		newBreak := e.BreakMinutes
		if dto.StartTime != nil {
			newStart = *dto.StartTime
		}
		if dto.EndTime != nil {
			newEnd = *dto.EndTime
		}
		if dto.BreakMinutes != nil {
			newBreak = *dto.BreakMinutes
		}
		if !newEnd.After(newStart) {
			return internal.NewValidationError("end_time must be after start_time", internal.ErrCodeInvalidWindow)
		}
		if err := s.checkOverlap(ctx, actor.TenantID, e.UserID, e.WorkDate, newStart, newEnd, e.ID); err != nil {
			return err
		}

		e.StartTime = newStart
		e.EndTime = newEnd
		e.BreakMinutes = newBreak
		e.NetMinutes = interval.NetMinutes(newStart, newEnd, newBreak)
		if dto.Description != nil {
			e.Description = dto.Description
		}
		if err := s.repo.Save(ctx, e); err != nil {
			return err
		}
		updated = e
		return s.audit.Record(ctx, audit.Event{
			TenantID:     actor.TenantID,
			ActorID:      actor.UserID,
			Action:       "timeentry.update",
			ResourceType: "time_entry",
			ResourceID:   e.ID,
			Detail:       map[string]interface{}{"net_minutes": e.NetMinutes},
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("time entry updated", "entry_id", entryID, "net_minutes", updated.NetMinutes)
	return updated, nil
}

// Delete soft-deletes an entry. Adjustments and entries that already carry an
// adjustment stay: removing either would orphan the correction trail.
func (s *Service) Delete(ctx context.Context, actor *internal.Actor, entryID string) error {
	err := s.tx.Do(ctx, func(ctx context.Context) error {
		e, err := s.repo.GetByID(ctx, actor.TenantID, entryID)
		if err != nil {
			return err
		}
		sheet, err := s.sheets.GetByID(ctx, actor.TenantID, e.TimesheetID)
		if err != nil {
			return err
		}
		if !sheet.Editable() {
			return internal.NewStateConflictError(
				fmt.Sprintf("cannot delete entries on timesheet with status '%s'", sheet.Status), string(sheet.Status))
		}
		if e.IsAdjustment {
			return internal.NewValidationError("adjustment entries cannot be deleted", internal.ErrCodeEntryNotAdjustable)
		}
		adjusted, err := s.repo.HasAdjustment(ctx, actor.TenantID, e.ID)
		if err != nil {
			return err
		}
		if adjusted {
			return internal.NewValidationError("entries with adjustments cannot be deleted", internal.ErrCodeEntryNotAdjustable)
		}

		e.IsDeleted = true
		if err := s.repo.Save(ctx, e); err != nil {
			return err
		}
		return s.audit.Record(ctx, audit.Event{
			TenantID:     actor.TenantID,
			ActorID:      actor.UserID,
			Action:       "timeentry.delete",
			ResourceType: "time_entry",
			ResourceID:   e.ID,
			Detail:       map[string]interface{}{},
		})
	})
	if err != nil {
		return err
	}

	s.logger.Info("time entry deleted", "entry_id", entryID)
	return nil
}

// CreateAdjustment records a signed post-lock correction. No owner, window or
// overlap check applies: the adjustment inherits the original's window purely
// as a reference and contributes only its delta.
func (s *Service) CreateAdjustment(ctx context.Context, actor *internal.Actor, timesheetID string, dto CreateAdjustmentDTO) (*Entry, error) {
	if err := dto.Validate(); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed)
	}

	var adj *Entry
	err := s.tx.Do(ctx, func(ctx context.Context) error {
		sheet, err := s.sheets.GetByID(ctx, actor.TenantID, timesheetID)
		if err != nil {
			return err
		}
		if sheet.Status != timesheet.StatusLocked {
			return internal.NewStateConflictError(
				"adjustments can only be added to locked timesheets", string(sheet.Status))
		}

		original, err := s.repo.GetByID(ctx, actor.TenantID, dto.OriginalEntryID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrOriginalNotFound
			}
			return err
		}

		description := dto.Description
		if description == nil {
			d := fmt.Sprintf("Adjustment on entry %s", dto.OriginalEntryID)
			description = &d
		}
		delta := dto.DeltaMinutes
		adj = &Entry{
			ID:              uuid.NewString(),
			TenantID:        actor.TenantID,
			TimesheetID:     sheet.ID,
			UserID:          sheet.UserID,
			ProjectID:       sheet.ProjectID,
			WorkDate:        original.WorkDate,
			StartTime:       original.StartTime,
			EndTime:         original.EndTime,
			BreakMinutes:    0,
			NetMinutes:      delta,
			Description:     description,
			Status:          StatusActive,
			IsAdjustment:    true,
			OriginalEntryID: &original.ID,
			DeltaMinutes:    &delta,
		}
		if err := s.repo.Create(ctx, adj); err != nil {
			return err
		}
		return s.audit.Record(ctx, audit.Event{
			TenantID:     actor.TenantID,
			ActorID:      actor.UserID,
			Action:       "timeentry.adjustment",
			ResourceType: "time_entry",
			ResourceID:   adj.ID,
			Detail: map[string]interface{}{
				"original_entry_id": dto.OriginalEntryID,
				"delta_minutes":     dto.DeltaMinutes,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("adjustment created",
		"entry_id", adj.ID, "original_entry_id", dto.OriginalEntryID, "delta_minutes", dto.DeltaMinutes)
	return adj, nil
}

func (s *Service) Get(ctx context.Context, actor *internal.Actor, entryID string) (*Entry, error) {
	return s.repo.GetByID(ctx, actor.TenantID, entryID)
}

func (s *Service) ListByTimesheet(ctx context.Context, actor *internal.Actor, timesheetID string) ([]*Entry, error) {
	// Tenant isolation runs through the sheet lookup.
	if _, err := s.sheets.GetByID(ctx, actor.TenantID, timesheetID); err != nil {
		return nil, err
	}
	return s.repo.ListByTimesheet(ctx, timesheetID)
}

// dateOnly strips any time-of-day a client sent on work_date; the column and
// every comparison against it are whole days.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (s *Service) checkWindow(sheet *timesheet.Timesheet, workDate time.Time) error {
	if workDate.Before(sheet.WeekStart) || workDate.After(sheet.WeekEnd) {
		return internal.NewValidationError(
			fmt.Sprintf("work_date %s is outside timesheet week %s to %s",
				workDate.Format("2006-01-02"),
				sheet.WeekStart.Format("2006-01-02"),
				sheet.WeekEnd.Format("2006-01-02")),
			internal.ErrCodeOutsideWeek)
	}
	return nil
}

func (s *Service) checkOverlap(ctx context.Context, tenantID, userID string, workDate, start, end time.Time, excludeID string) error {
	existing, err := s.repo.FindOverlapping(ctx, tenantID, userID, workDate, start, end, excludeID)
	if err != nil {
		return err
	}
	if existing != nil {
		return internal.NewOverlapConflictError(internal.OverlapDetails{
			ExistingEntryID: existing.ID,
			ExistingStart:   existing.StartTime.Format(time.RFC3339),
			ExistingEnd:     existing.EndTime.Format(time.RFC3339),
		})
	}
	return nil
}
