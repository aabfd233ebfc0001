package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tverlabs/timekeep/internal/compliance"
	"github.com/tverlabs/timekeep/pkg/database"
)

type RuleRepository struct {
	db *gorm.DB
}

func NewRuleRepository(db *gorm.DB) *RuleRepository {
	return &RuleRepository{db: db}
}

func (r *RuleRepository) conn(ctx context.Context) *gorm.DB {
	return database.Resolve(ctx, r.db).WithContext(ctx)
}

func (r *RuleRepository) Create(ctx context.Context, rule *compliance.Rule) error {
	return r.conn(ctx).Create(rule).Error
}

func (r *RuleRepository) GetByID(ctx context.Context, tenantID, id string) (*compliance.Rule, error) {
	var rule compliance.Rule
	err := r.conn(ctx).
		Where("id = ? AND tenant_id = ? AND is_deleted = ?", id, tenantID, false).
		First(&rule).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, compliance.ErrRuleNotFound
		}
		return nil, err
	}
	return &rule, nil
}

func (r *RuleRepository) ListActive(ctx context.Context, tenantID string) ([]*compliance.Rule, error) {
	var rules []*compliance.Rule
	err := r.conn(ctx).
		Where("tenant_id = ? AND is_active = ? AND is_deleted = ?", tenantID, true, false).
		Order("rule_code ASC").
		Find(&rules).Error
	return rules, err
}

func (r *RuleRepository) List(ctx context.Context, tenantID string) ([]*compliance.Rule, error) {
	var rules []*compliance.Rule
	err := r.conn(ctx).
		Where("tenant_id = ? AND is_deleted = ?", tenantID, false).
		Order("rule_code ASC").
		Find(&rules).Error
	return rules, err
}

func (r *RuleRepository) ExistsCode(ctx context.Context, tenantID, ruleCode string) (bool, error) {
	var count int64
	err := r.conn(ctx).
		Model(&compliance.Rule{}).
		Where("tenant_id = ? AND rule_code = ? AND is_deleted = ?", tenantID, ruleCode, false).
		Count(&count).Error
	return count > 0, err
}

func (r *RuleRepository) Save(ctx context.Context, rule *compliance.Rule) error {
	return r.conn(ctx).Save(rule).Error
}

type ResultRepository struct {
	db *gorm.DB
}

func NewResultRepository(db *gorm.DB) *ResultRepository {
	return &ResultRepository{db: db}
}

func (r *ResultRepository) conn(ctx context.Context) *gorm.DB {
	return database.Resolve(ctx, r.db).WithContext(ctx)
}

func (r *ResultRepository) Create(ctx context.Context, result *compliance.Result) error {
	return r.conn(ctx).Create(result).Error
}

func (r *ResultRepository) GetByID(ctx context.Context, tenantID, id string) (*compliance.Result, error) {
	var result compliance.Result
	err := r.conn(ctx).
		Where("id = ? AND tenant_id = ? AND is_deleted = ?", id, tenantID, false).
		First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, compliance.ErrResultNotFound
		}
		return nil, err
	}
	return &result, nil
}

func (r *ResultRepository) ListByTimesheet(ctx context.Context, tenantID, timesheetID string) ([]*compliance.Result, error) {
	var results []*compliance.Result
	err := r.conn(ctx).
		Where("tenant_id = ? AND timesheet_id = ? AND is_deleted = ?", tenantID, timesheetID, false).
		Order("created_at ASC").
		Find(&results).Error
	return results, err
}

// FindOpenViolation matches on the (timesheet, rule, occurred_on) identity
// the engine uses for idempotent re-runs. Only unresolved violations match:
// once a reviewer resolves a row, a breach still present on the next run is
// recorded fresh and blocks again.
func (r *ResultRepository) FindOpenViolation(ctx context.Context, timesheetID, ruleID string, occurredOn *time.Time) (*compliance.Result, error) {
	q := r.conn(ctx).
		Where("timesheet_id = ? AND rule_id = ? AND status = ? AND is_deleted = ?",
			timesheetID, ruleID, compliance.ResultViolation, false)
	if occurredOn == nil {
		q = q.Where("occurred_on IS NULL")
	} else {
		q = q.Where("occurred_on = ?", occurredOn.Format("2006-01-02"))
	}

	var result compliance.Result
	if err := q.First(&result).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

func (r *ResultRepository) FindPass(ctx context.Context, timesheetID, ruleID string) (*compliance.Result, error) {
	var result compliance.Result
	err := r.conn(ctx).
		Where("timesheet_id = ? AND rule_id = ? AND status = ? AND is_deleted = ?",
			timesheetID, ruleID, compliance.ResultPass, false).
		First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

func (r *ResultRepository) Save(ctx context.Context, result *compliance.Result) error {
	return r.conn(ctx).Save(result).Error
}
