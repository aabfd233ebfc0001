package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tverlabs/timekeep/internal/payroll"
	"github.com/tverlabs/timekeep/pkg/database"
)

type ExportRepository struct {
	db *gorm.DB
}

func NewExportRepository(db *gorm.DB) *ExportRepository {
	return &ExportRepository{db: db}
}

func (r *ExportRepository) conn(ctx context.Context) *gorm.DB {
	return database.Resolve(ctx, r.db).WithContext(ctx)
}

func (r *ExportRepository) Create(ctx context.Context, export *payroll.Export, lines []*payroll.ExportLine) error {
	if err := r.conn(ctx).Create(export).Error; err != nil {
		return err
	}
	if len(lines) == 0 {
		return nil
	}
	return r.conn(ctx).Create(lines).Error
}

func (r *ExportRepository) GetByID(ctx context.Context, tenantID, id string) (*payroll.Export, error) {
	var export payroll.Export
	err := r.conn(ctx).
		Where("id = ? AND tenant_id = ? AND is_deleted = ?", id, tenantID, false).
		First(&export).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, payroll.ErrNotFound
		}
		return nil, err
	}
	if err := r.loadLines(ctx, &export); err != nil {
		return nil, err
	}
	return &export, nil
}

func (r *ExportRepository) GetForUpdate(ctx context.Context, tenantID, id string) (*payroll.Export, error) {
	var export payroll.Export
	err := r.conn(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND tenant_id = ? AND is_deleted = ?", id, tenantID, false).
		First(&export).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, payroll.ErrNotFound
		}
		return nil, err
	}
	if err := r.loadLines(ctx, &export); err != nil {
		return nil, err
	}
	return &export, nil
}

func (r *ExportRepository) loadLines(ctx context.Context, export *payroll.Export) error {
	return r.conn(ctx).
		Where("export_id = ?", export.ID).
		Order("week_start ASC, user_id ASC").
		Find(&export.Lines).Error
}

func (r *ExportRepository) List(ctx context.Context, tenantID string) ([]*payroll.Export, error) {
	var exports []*payroll.Export
	err := r.conn(ctx).
		Where("tenant_id = ? AND is_deleted = ?", tenantID, false).
		Order("generated_at DESC").
		Find(&exports).Error
	return exports, err
}

func (r *ExportRepository) Save(ctx context.Context, export *payroll.Export) error {
	return r.conn(ctx).Omit("Lines").Save(export).Error
}

func (r *ExportRepository) FindExportedTimesheetIDs(ctx context.Context, tenantID string, timesheetIDs []string) ([]string, error) {
	if len(timesheetIDs) == 0 {
		return nil, nil
	}
	var ids []string
	err := r.conn(ctx).
		Model(&payroll.ExportLine{}).
		Joins("JOIN payroll_exports ON payroll_exports.id = payroll_export_lines.export_id").
		Where("payroll_exports.tenant_id = ? AND payroll_exports.status <> ? AND payroll_exports.is_deleted = ?",
			tenantID, payroll.StatusVoided, false).
		Where("payroll_export_lines.timesheet_id IN ?", timesheetIDs).
		Pluck("payroll_export_lines.timesheet_id", &ids).Error
	return ids, err
}
