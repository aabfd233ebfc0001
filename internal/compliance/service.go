package compliance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tverlabs/timekeep/internal"
	"github.com/tverlabs/timekeep/internal/audit"
	"github.com/tverlabs/timekeep/internal/timesheet"
	"github.com/tverlabs/timekeep/pkg/database"
)

// Evaluator runs the rule set against one timesheet. Engine satisfies it.
type Evaluator interface {
	Evaluate(ctx context.Context, sheet *timesheet.Timesheet) ([]*Result, error)
}

// SheetSource is the slice of the timesheet repository on-demand evaluation
// needs.
type SheetSource interface {
	GetByID(ctx context.Context, tenantID, id string) (*timesheet.Timesheet, error)
}

// Service owns rule administration, result review and on-demand evaluation.
// The lifecycle transitions call Engine directly inside their own
// transactions.
type Service struct {
	tx        database.TxManager
	rules     RuleRepository
	results   ResultRepository
	evaluator Evaluator
	sheets    SheetSource
	audit     audit.Recorder
	logger    *slog.Logger
}

func NewService(tx database.TxManager, rules RuleRepository, results ResultRepository, evaluator Evaluator, sheets SheetSource, recorder audit.Recorder, logger *slog.Logger) *Service {
	return &Service{
		tx:        tx,
		rules:     rules,
		results:   results,
		evaluator: evaluator,
		sheets:    sheets,
		audit:     recorder,
		logger:    logger,
	}
}

// EvaluateTimesheet re-runs every active rule against the sheet on demand,
// the retry path after entries were corrected. The run and its result rows
// commit as one transaction.
func (s *Service) EvaluateTimesheet(ctx context.Context, actor *internal.Actor, timesheetID string) ([]*Result, error) {
	var results []*Result
	err := s.tx.Do(ctx, func(ctx context.Context) error {
		sheet, err := s.sheets.GetByID(ctx, actor.TenantID, timesheetID)
		if err != nil {
			return err
		}
		results, err = s.evaluator.Evaluate(ctx, sheet)
		if err != nil {
			return fmt.Errorf("evaluate timesheet: %w", err)
		}
		return s.audit.Record(ctx, audit.Event{
			TenantID:     actor.TenantID,
			ActorID:      actor.UserID,
			Action:       "compliance.evaluate",
			ResourceType: "timesheet",
			ResourceID:   timesheetID,
			Detail:       map[string]interface{}{"result_count": len(results)},
		})
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) CreateRule(ctx context.Context, actor *internal.Actor, dto CreateRuleDTO) (*Rule, error) {
	if err := dto.Validate(); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed)
	}

	rule := &Rule{
		ID:          uuid.New().String(),
		TenantID:    actor.TenantID,
		RuleCode:    dto.RuleCode,
		Title:       dto.Title,
		Description: dto.Description,
		Severity:    dto.Severity,
		Action:      dto.Action,
		IsActive:    true,
	}
	if len(dto.Parameters) > 0 {
		raw := string(dto.Parameters)
		rule.ParametersJSON = &raw
	}

	err := s.tx.Do(ctx, func(ctx context.Context) error {
		exists, err := s.rules.ExistsCode(ctx, actor.TenantID, dto.RuleCode)
		if err != nil {
			return fmt.Errorf("check rule code: %w", err)
		}
		if exists {
			return ErrRuleExists
		}
		if err := s.rules.Create(ctx, rule); err != nil {
			return fmt.Errorf("create rule: %w", err)
		}
		return s.audit.Record(ctx, audit.Event{
			TenantID:     actor.TenantID,
			ActorID:      actor.UserID,
			Action:       "compliance.rule_create",
			ResourceType: "compliance_rule",
			ResourceID:   rule.ID,
			Detail:       map[string]interface{}{"rule_code": rule.RuleCode, "severity": rule.Severity},
		})
	})
	if err != nil {
		return nil, err
	}
	return rule, nil
}

func (s *Service) UpdateRule(ctx context.Context, actor *internal.Actor, id string, dto UpdateRuleDTO) (*Rule, error) {
	if err := dto.Validate(); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed)
	}

	var rule *Rule
	err := s.tx.Do(ctx, func(ctx context.Context) error {
		var err error
		rule, err = s.rules.GetByID(ctx, actor.TenantID, id)
		if err != nil {
			return err
		}

		if dto.Title != nil {
			rule.Title = *dto.Title
		}
		if dto.Description != nil {
			rule.Description = dto.Description
		}
		if dto.Severity != nil {
			rule.Severity = *dto.Severity
		}
		if dto.Action != nil {
			rule.Action = *dto.Action
		}
		if len(dto.Parameters) > 0 {
			raw := string(dto.Parameters)
			rule.ParametersJSON = &raw
		}
		if dto.IsActive != nil {
			rule.IsActive = *dto.IsActive
		}

		if err := s.rules.Save(ctx, rule); err != nil {
			return fmt.Errorf("save rule: %w", err)
		}
		return s.audit.Record(ctx, audit.Event{
			TenantID:     actor.TenantID,
			ActorID:      actor.UserID,
			Action:       "compliance.rule_update",
			ResourceType: "compliance_rule",
			ResourceID:   rule.ID,
			Detail:       map[string]interface{}{"rule_code": rule.RuleCode},
		})
	})
	if err != nil {
		return nil, err
	}
	return rule, nil
}

func (s *Service) GetRule(ctx context.Context, actor *internal.Actor, id string) (*Rule, error) {
	return s.rules.GetByID(ctx, actor.TenantID, id)
}

func (s *Service) ListRules(ctx context.Context, actor *internal.Actor) ([]*Rule, error) {
	return s.rules.List(ctx, actor.TenantID)
}

func (s *Service) ListResults(ctx context.Context, actor *internal.Actor, timesheetID string) ([]*Result, error) {
	return s.results.ListByTimesheet(ctx, actor.TenantID, timesheetID)
}

// ResolveViolation marks a violation as reviewed. The row keeps its snapshot
// and details; only a pass is untouchable because there is nothing to
// resolve.
func (s *Service) ResolveViolation(ctx context.Context, actor *internal.Actor, id string, dto ResolveDTO) (*Result, error) {
	if err := dto.Validate(); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed)
	}

	var result *Result
	err := s.tx.Do(ctx, func(ctx context.Context) error {
		var err error
		result, err = s.results.GetByID(ctx, actor.TenantID, id)
		if err != nil {
			return err
		}
		if result.Status == ResultResolved {
			return nil
		}
		if result.Status != ResultViolation {
			return internal.NewStateConflictError(
				"only violations can be resolved", string(result.Status))
		}

		now := time.Now().UTC()
		result.Status = ResultResolved
		result.ResolvedAt = &now
		result.ResolvedBy = &actor.UserID
		result.ResolutionNote = &dto.ResolutionNote

		if err := s.results.Save(ctx, result); err != nil {
			return fmt.Errorf("save result: %w", err)
		}
		return s.audit.Record(ctx, audit.Event{
			TenantID:     actor.TenantID,
			ActorID:      actor.UserID,
			Action:       "compliance.resolve",
			ResourceType: "compliance_result",
			ResourceID:   result.ID,
			Detail:       map[string]interface{}{"rule_code": result.Snapshot().RuleCode},
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
