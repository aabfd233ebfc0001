package timesheet

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tverlabs/timekeep/internal"
	"github.com/tverlabs/timekeep/internal/audit"
	"github.com/tverlabs/timekeep/pkg/database"
)

// Repository is the storage contract for timesheets. GetForUpdate must
// acquire an exclusive row lock so concurrent transitions serialize.
type Repository interface {
	Create(ctx context.Context, sheet *Timesheet) error
	GetByID(ctx context.Context, tenantID, id string) (*Timesheet, error)
	GetForUpdate(ctx context.Context, tenantID, id string) (*Timesheet, error)
	List(ctx context.Context, tenantID string, filter ListFilter) ([]*Timesheet, error)
	Save(ctx context.Context, sheet *Timesheet) error
	ExistsForWeek(ctx context.Context, tenantID, projectID, userID string, weekStart time.Time) (bool, error)
	ListApprovedInPeriod(ctx context.Context, tenantID, projectID string, periodStart, periodEnd time.Time) ([]*Timesheet, error)
}

// ComplianceEvaluator re-runs the tenant's rules against a sheet inside the
// caller's transaction and reports the violations that gate the transition.
type ComplianceEvaluator interface {
	BlockingViolations(ctx context.Context, sheet *Timesheet) ([]internal.BlockedRule, error)
}

// Service owns the timesheet lifecycle. Every transition runs in one
// transaction: row lock, status compare, compliance evaluation, status write
// and audit either all commit or none do.
type Service struct {
	tx         database.TxManager
	repo       Repository
	compliance ComplianceEvaluator
	audit      audit.Recorder
	logger     *slog.Logger
}

func NewService(tx database.TxManager, repo Repository, compliance ComplianceEvaluator, recorder audit.Recorder, logger *slog.Logger) *Service {
	return &Service{
		tx:         tx,
		repo:       repo,
		compliance: compliance,
		audit:      recorder,
		logger:     logger,
	}
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Create opens a new timesheet for the actor's own week.
func (s *Service) Create(ctx context.Context, actor *internal.Actor, dto CreateTimesheetDTO) (*Timesheet, error) {
	if err := dto.Validate(); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed)
	}

	weekStart := dateOnly(dto.WeekStart)
	if weekStart.Weekday() != time.Monday {
		return nil, ErrWeekNotMonday
	}

	sheet := &Timesheet{
		ID:        uuid.NewString(),
		TenantID:  actor.TenantID,
		ProjectID: dto.ProjectID,
		UserID:    actor.UserID,
		WeekStart: weekStart,
		WeekEnd:   WeekEndFor(weekStart),
		Status:    StatusOpen,
	}

	err := s.tx.Do(ctx, func(ctx context.Context) error {
		exists, err := s.repo.ExistsForWeek(ctx, actor.TenantID, dto.ProjectID, actor.UserID, weekStart)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateWeek
		}
		if err := s.repo.Create(ctx, sheet); err != nil {
			return err
		}
		return s.audit.Record(ctx, audit.Event{
			TenantID:     actor.TenantID,
			ActorID:      actor.UserID,
			Action:       "timesheet.create",
			ResourceType: "timesheet",
			ResourceID:   sheet.ID,
			Detail: map[string]interface{}{
				"week_start": weekStart.Format("2006-01-02"),
				"project_id": dto.ProjectID,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("timesheet created",
		"timesheet_id", sheet.ID,
		"user_id", actor.UserID,
		"week_start", weekStart.Format("2006-01-02"))
	return sheet, nil
}

func (s *Service) Get(ctx context.Context, actor *internal.Actor, id string) (*Timesheet, error) {
	return s.repo.GetByID(ctx, actor.TenantID, id)
}

func (s *Service) List(ctx context.Context, actor *internal.Actor, filter ListFilter) ([]*Timesheet, error) {
	return s.repo.List(ctx, actor.TenantID, filter)
}

// Submit moves open → submitted after a clean compliance run. Re-submitting
// an already submitted sheet returns it unchanged.
func (s *Service) Submit(ctx context.Context, actor *internal.Actor, id string) (*Timesheet, error) {
	return s.transition(ctx, actor, id, "timesheet.submit", nil, func(ctx context.Context, sheet *Timesheet) (bool, error) {
		if sheet.Status == StatusSubmitted {
			return false, nil
		}
		if sheet.Status != StatusOpen {
			return false, internal.NewStateConflictError(
				fmt.Sprintf("cannot submit timesheet with status '%s'", sheet.Status), string(sheet.Status))
		}
		if err := s.requireCleanCompliance(ctx, sheet, "submission"); err != nil {
			return false, err
		}
		now := time.Now().UTC()
		sheet.Status = StatusSubmitted
		sheet.SubmittedAt = &now
		sheet.SubmittedBy = &actor.UserID
		return true, nil
	})
}

// Approve moves submitted → approved after re-running compliance.
// Re-approving an already approved sheet returns it unchanged.
func (s *Service) Approve(ctx context.Context, actor *internal.Actor, id string) (*Timesheet, error) {
	return s.transition(ctx, actor, id, "timesheet.approve", nil, func(ctx context.Context, sheet *Timesheet) (bool, error) {
		if sheet.Status == StatusApproved {
			return false, nil
		}
		if sheet.Status != StatusSubmitted {
			return false, internal.NewStateConflictError(
				fmt.Sprintf("cannot approve timesheet with status '%s'", sheet.Status), string(sheet.Status))
		}
		if err := s.requireCleanCompliance(ctx, sheet, "approval"); err != nil {
			return false, err
		}
		now := time.Now().UTC()
		sheet.Status = StatusApproved
		sheet.ApprovedAt = &now
		sheet.ApprovedBy = &actor.UserID
		return true, nil
	})
}

// Reject returns a submitted or approved sheet to open. Not idempotent;
// rejecting a locked sheet is a state conflict.
func (s *Service) Reject(ctx context.Context, actor *internal.Actor, id string, dto ReasonDTO) (*Timesheet, error) {
	if err := dto.Validate(); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed)
	}
	detail := map[string]interface{}{"reason": dto.Reason}
	return s.transition(ctx, actor, id, "timesheet.reject", detail, func(ctx context.Context, sheet *Timesheet) (bool, error) {
		if sheet.Status == StatusLocked {
			return false, internal.NewStateConflictError("cannot reject a locked timesheet", string(sheet.Status))
		}
		if sheet.Status != StatusSubmitted && sheet.Status != StatusApproved {
			return false, internal.NewStateConflictError(
				fmt.Sprintf("cannot reject timesheet with status '%s'", sheet.Status), string(sheet.Status))
		}
		sheet.Status = StatusOpen
		sheet.ApprovedAt = nil
		sheet.ApprovedBy = nil
		return true, nil
	})
}

// Lock moves approved → locked. Re-locking is a no-op.
func (s *Service) Lock(ctx context.Context, actor *internal.Actor, id string) (*Timesheet, error) {
	return s.transition(ctx, actor, id, "timesheet.lock", nil, func(ctx context.Context, sheet *Timesheet) (bool, error) {
		if sheet.Status == StatusLocked {
			return false, nil
		}
		if sheet.Status != StatusApproved {
			return false, internal.NewStateConflictError(
				fmt.Sprintf("cannot lock timesheet with status '%s'", sheet.Status), string(sheet.Status))
		}
		now := time.Now().UTC()
		sheet.Status = StatusLocked
		sheet.LockedAt = &now
		sheet.LockedBy = &actor.UserID
		return true, nil
	})
}

// Reopen moves locked → open with a mandatory reason, then re-runs compliance
// so stale pass results get refreshed against the now-editable sheet.
func (s *Service) Reopen(ctx context.Context, actor *internal.Actor, id string, dto ReasonDTO) (*Timesheet, error) {
	if err := dto.Validate(); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed)
	}

	var out *Timesheet
	err := s.tx.Do(ctx, func(ctx context.Context) error {
		sheet, err := s.repo.GetForUpdate(ctx, actor.TenantID, id)
		if err != nil {
			return err
		}
		if sheet.Status != StatusLocked {
			return internal.NewStateConflictError(
				fmt.Sprintf("only locked timesheets can be reopened, current status '%s'", sheet.Status),
				string(sheet.Status))
		}

		now := time.Now().UTC()
		sheet.Status = StatusOpen
		sheet.ReopenedAt = &now
		sheet.ReopenedBy = &actor.UserID
		if err := s.repo.Save(ctx, sheet); err != nil {
			return err
		}
		if err := s.audit.Record(ctx, audit.Event{
			TenantID:     actor.TenantID,
			ActorID:      actor.UserID,
			Action:       "timesheet.reopen",
			ResourceType: "timesheet",
			ResourceID:   sheet.ID,
			Detail:       map[string]interface{}{"reason": dto.Reason},
		}); err != nil {
			return err
		}

		// Re-evaluate; violations do not block a reopen.
		if _, err := s.compliance.BlockingViolations(ctx, sheet); err != nil {
			return err
		}
		out = sheet
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("timesheet reopened", "timesheet_id", id, "actor_id", actor.UserID)
	return out, nil
}

// transition runs one serialized state change: lock the row, apply fn, and,
// when fn reports a change, persist and audit it. fn returning (false, nil)
// is the idempotent fast path.
func (s *Service) transition(
	ctx context.Context,
	actor *internal.Actor,
	id, action string,
	detail map[string]interface{},
	fn func(ctx context.Context, sheet *Timesheet) (changed bool, err error),
) (*Timesheet, error) {
	var out *Timesheet
	err := s.tx.Do(ctx, func(ctx context.Context) error {
		sheet, err := s.repo.GetForUpdate(ctx, actor.TenantID, id)
		if err != nil {
			return err
		}

		changed, err := fn(ctx, sheet)
		if err != nil {
			return err
		}
		out = sheet
		if !changed {
			return nil
		}

		if err := s.repo.Save(ctx, sheet); err != nil {
			return err
		}
		if detail == nil {
			detail = map[string]interface{}{}
		}
		return s.audit.Record(ctx, audit.Event{
			TenantID:     actor.TenantID,
			ActorID:      actor.UserID,
			Action:       action,
			ResourceType: "timesheet",
			ResourceID:   sheet.ID,
			Detail:       detail,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("timesheet transition", "action", action, "timesheet_id", id, "status", out.Status)
	return out, nil
}

func (s *Service) requireCleanCompliance(ctx context.Context, sheet *Timesheet, phase string) error {
	blocking, err := s.compliance.BlockingViolations(ctx, sheet)
	if err != nil {
		return err
	}
	if len(blocking) > 0 {
		return internal.NewComplianceBlockError(
			fmt.Sprintf("compliance violations block %s", phase), blocking)
	}
	return nil
}
