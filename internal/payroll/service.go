package payroll

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tverlabs/timekeep/internal"
	"github.com/tverlabs/timekeep/internal/audit"
	"github.com/tverlabs/timekeep/internal/entry"
	"github.com/tverlabs/timekeep/internal/timesheet"
	"github.com/tverlabs/timekeep/pkg/database"
)

type Repository interface {
	Create(ctx context.Context, export *Export, lines []*ExportLine) error
	GetByID(ctx context.Context, tenantID, id string) (*Export, error)
	GetForUpdate(ctx context.Context, tenantID, id string) (*Export, error)
	List(ctx context.Context, tenantID string) ([]*Export, error)
	Save(ctx context.Context, export *Export) error
	// FindExportedTimesheetIDs returns the subset of ids already carried by
	// a non-voided batch.
	FindExportedTimesheetIDs(ctx context.Context, tenantID string, timesheetIDs []string) ([]string, error)
}

// EntrySource lists the entries a line aggregates over.
type EntrySource interface {
	ListByTimesheet(ctx context.Context, timesheetID string) ([]*entry.Entry, error)
}

// Service owns payroll batches. Generation, send and void are each one
// transaction; send additionally locks the exported sheets so post-export
// edits can only happen through adjustments.
type Service struct {
	tx      database.TxManager
	repo    Repository
	sheets  timesheet.Repository
	entries EntrySource
	audit   audit.Recorder
	logger  *slog.Logger
}

func NewService(tx database.TxManager, repo Repository, sheets timesheet.Repository, entries EntrySource, recorder audit.Recorder, logger *slog.Logger) *Service {
	return &Service{
		tx:      tx,
		repo:    repo,
		sheets:  sheets,
		entries: entries,
		audit:   recorder,
		logger:  logger,
	}
}

// Generate builds a batch from every approved sheet in the period. Sheets
// already carried by a live batch abort the whole run; the caller is told
// which ones so it can void or narrow the period.
func (s *Service) Generate(ctx context.Context, actor *internal.Actor, dto GenerateDTO) (*Export, error) {
	if err := dto.Validate(); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed)
	}

	var export *Export
	err := s.tx.Do(ctx, func(ctx context.Context) error {
		projectID := ""
		if dto.ProjectID != nil {
			projectID = *dto.ProjectID
		}

		listed, err := s.sheets.ListApprovedInPeriod(ctx, actor.TenantID, projectID, dto.periodStart, dto.periodEnd)
		if err != nil {
			return fmt.Errorf("list approved timesheets: %w", err)
		}

		// Row-lock each candidate so two concurrent generates over
		// overlapping periods serialize on the shared sheets, and drop
		// any sheet that left approved between listing and locking.
		sheets := make([]*timesheet.Timesheet, 0, len(listed))
		for _, sh := range listed {
			locked, err := s.sheets.GetForUpdate(ctx, actor.TenantID, sh.ID)
			if err != nil {
				return fmt.Errorf("lock timesheet %s: %w", sh.ID, err)
			}
			if locked.Status != timesheet.StatusApproved {
				s.logger.Warn("timesheet left approved during export generation, skipping",
					"timesheet_id", locked.ID, "status", locked.Status)
				continue
			}
			sheets = append(sheets, locked)
		}
		if len(sheets) == 0 {
			return ErrEmptyExport
		}

		ids := make([]string, len(sheets))
		for i, sh := range sheets {
			ids[i] = sh.ID
		}
		taken, err := s.repo.FindExportedTimesheetIDs(ctx, actor.TenantID, ids)
		if err != nil {
			return fmt.Errorf("check exported timesheets: %w", err)
		}
		if len(taken) > 0 {
			return internal.NewIntegrityConflictError(
				"timesheets already belong to a non-voided export",
				internal.ErrCodeAlreadyExported,
				map[string]interface{}{"timesheet_ids": taken})
		}

		export = &Export{
			ID:          uuid.New().String(),
			TenantID:    actor.TenantID,
			ProjectID:   dto.ProjectID,
			PeriodStart: dto.periodStart,
			PeriodEnd:   dto.periodEnd,
			Status:      StatusGenerated,
			GeneratedAt: time.Now().UTC(),
			GeneratedBy: actor.UserID,
		}

		lines := make([]*ExportLine, 0, len(sheets))
		for _, sh := range sheets {
			line, err := s.buildLine(ctx, export.ID, sh)
			if err != nil {
				return err
			}
			lines = append(lines, line)
		}

		if err := s.repo.Create(ctx, export, lines); err != nil {
			return fmt.Errorf("create export: %w", err)
		}
		export.Lines = lines

		return s.audit.Record(ctx, audit.Event{
			TenantID:     actor.TenantID,
			ActorID:      actor.UserID,
			Action:       "payroll_export.generate",
			ResourceType: "payroll_export",
			ResourceID:   export.ID,
			Detail: map[string]interface{}{
				"period_start": dto.PeriodStart,
				"period_end":   dto.PeriodEnd,
				"line_count":   len(lines),
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return export, nil
}

func (s *Service) buildLine(ctx context.Context, exportID string, sh *timesheet.Timesheet) (*ExportLine, error) {
	entries, err := s.entries.ListByTimesheet(ctx, sh.ID)
	if err != nil {
		return nil, fmt.Errorf("list entries for timesheet %s: %w", sh.ID, err)
	}

	var regular, adjustments int
	var sourceIDs []string
	for _, e := range entries {
		if e.IsDeleted {
			continue
		}
		if e.IsAdjustment {
			if e.DeltaMinutes != nil {
				adjustments += *e.DeltaMinutes
			}
			continue
		}
		if e.Status == entry.StatusRejected {
			continue
		}
		regular += e.NetMinutes
		sourceIDs = append(sourceIDs, e.ID)
	}

	raw, err := json.Marshal(sourceIDs)
	if err != nil {
		return nil, fmt.Errorf("marshal source entry ids: %w", err)
	}

	net := regular + adjustments
	return &ExportLine{
		ID:                 uuid.New().String(),
		ExportID:           exportID,
		TimesheetID:        sh.ID,
		UserID:             sh.UserID,
		ProjectID:          sh.ProjectID,
		WeekStart:          sh.WeekStart,
		RegularMinutes:     regular,
		AdjustmentMinutes:  adjustments,
		NetMinutes:         net,
		Hours:              HoursFromMinutes(net),
		SourceEntryIDsJSON: string(raw),
	}, nil
}

func (s *Service) Get(ctx context.Context, actor *internal.Actor, id string) (*Export, error) {
	return s.repo.GetByID(ctx, actor.TenantID, id)
}

// ListLines returns just the per-timesheet lines of a batch.
func (s *Service) ListLines(ctx context.Context, actor *internal.Actor, id string) ([]*ExportLine, error) {
	export, err := s.repo.GetByID(ctx, actor.TenantID, id)
	if err != nil {
		return nil, err
	}
	return export.Lines, nil
}

func (s *Service) List(ctx context.Context, actor *internal.Actor) ([]*Export, error) {
	return s.repo.List(ctx, actor.TenantID)
}

// MarkSent finalizes a batch and locks its still-approved sheets. Sheets
// that left approved between generation and send are skipped, not failed;
// the batch reflects what was approved at generation time either way.
func (s *Service) MarkSent(ctx context.Context, actor *internal.Actor, id string) (*Export, error) {
	var export *Export
	err := s.tx.Do(ctx, func(ctx context.Context) error {
		var err error
		export, err = s.repo.GetForUpdate(ctx, actor.TenantID, id)
		if err != nil {
			return err
		}
		if export.Status == StatusSent {
			return nil
		}
		if export.Status == StatusVoided {
			return internal.NewStateConflictError(
				"voided exports cannot be sent", string(export.Status))
		}

		now := time.Now().UTC()
		export.Status = StatusSent
		export.SentAt = &now
		export.SentBy = &actor.UserID
		if err := s.repo.Save(ctx, export); err != nil {
			return fmt.Errorf("save export: %w", err)
		}

		var locked int
		for _, line := range export.Lines {
			sh, err := s.sheets.GetForUpdate(ctx, actor.TenantID, line.TimesheetID)
			if err != nil {
				return fmt.Errorf("lock timesheet %s: %w", line.TimesheetID, err)
			}
			if sh.Status != timesheet.StatusApproved {
				s.logger.Warn("skipping lock of exported timesheet",
					"timesheet_id", sh.ID, "status", sh.Status)
				continue
			}
			sh.Status = timesheet.StatusLocked
			sh.LockedAt = &now
			sh.LockedBy = &actor.UserID
			if err := s.sheets.Save(ctx, sh); err != nil {
				return fmt.Errorf("save timesheet %s: %w", sh.ID, err)
			}
			locked++
		}

		return s.audit.Record(ctx, audit.Event{
			TenantID:     actor.TenantID,
			ActorID:      actor.UserID,
			Action:       "payroll_export.sent",
			ResourceType: "payroll_export",
			ResourceID:   export.ID,
			Detail:       map[string]interface{}{"locked_timesheets": locked},
		})
	})
	if err != nil {
		return nil, err
	}
	return export, nil
}

// Void releases the batch's sheets for a later re-export. Sent batches are
// final and cannot be voided.
func (s *Service) Void(ctx context.Context, actor *internal.Actor, id string, dto VoidDTO) (*Export, error) {
	if err := dto.Validate(); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed)
	}

	var export *Export
	err := s.tx.Do(ctx, func(ctx context.Context) error {
		var err error
		export, err = s.repo.GetForUpdate(ctx, actor.TenantID, id)
		if err != nil {
			return err
		}
		if export.Status == StatusVoided {
			return nil
		}
		if export.Status == StatusSent {
			return internal.NewStateConflictError(
				"sent exports cannot be voided", string(export.Status))
		}

		now := time.Now().UTC()
		export.Status = StatusVoided
		export.VoidedAt = &now
		export.VoidedBy = &actor.UserID
		export.VoidReason = &dto.Reason
		if err := s.repo.Save(ctx, export); err != nil {
			return fmt.Errorf("save export: %w", err)
		}

		return s.audit.Record(ctx, audit.Event{
			TenantID:     actor.TenantID,
			ActorID:      actor.UserID,
			Action:       "payroll_export.void",
			ResourceType: "payroll_export",
			ResourceID:   export.ID,
			Detail:       map[string]interface{}{"reason": dto.Reason},
		})
	})
	if err != nil {
		return nil, err
	}
	return export, nil
}
