package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tverlabs/timekeep/internal/timesheet"
	"github.com/tverlabs/timekeep/pkg/database"
)

// TimesheetRepository implements timesheet.Repository using GORM.
type TimesheetRepository struct {
	db *gorm.DB
}

func NewTimesheetRepository(db *gorm.DB) timesheet.Repository {
	return &TimesheetRepository{db: db}
}

func (r *TimesheetRepository) conn(ctx context.Context) *gorm.DB {
	return database.Resolve(ctx, r.db)
}

func (r *TimesheetRepository) Create(ctx context.Context, sheet *timesheet.Timesheet) error {
	return r.conn(ctx).Create(sheet).Error
}

func (r *TimesheetRepository) GetByID(ctx context.Context, tenantID, id string) (*timesheet.Timesheet, error) {
	var sheet timesheet.Timesheet
	err := r.conn(ctx).
		Where("id = ? AND tenant_id = ? AND is_deleted = ?", id, tenantID, false).
		First(&sheet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, timesheet.ErrNotFound
		}
		return nil, err
	}
	return &sheet, nil
}

// GetForUpdate acquires a row-level exclusive lock before returning the
// sheet, serializing concurrent state transitions on the same row.
func (r *TimesheetRepository) GetForUpdate(ctx context.Context, tenantID, id string) (*timesheet.Timesheet, error) {
	var sheet timesheet.Timesheet
	err := r.conn(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND tenant_id = ? AND is_deleted = ?", id, tenantID, false).
		First(&sheet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, timesheet.ErrNotFound
		}
		return nil, err
	}
	return &sheet, nil
}

func (r *TimesheetRepository) List(ctx context.Context, tenantID string, filter timesheet.ListFilter) ([]*timesheet.Timesheet, error) {
	q := r.conn(ctx).
		Where("tenant_id = ? AND is_deleted = ?", tenantID, false)
	if filter.ProjectID != "" {
		q = q.Where("project_id = ?", filter.ProjectID)
	}
	if filter.UserID != "" {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}

	var sheets []*timesheet.Timesheet
	err := q.Order("week_start DESC").Find(&sheets).Error
	return sheets, err
}

func (r *TimesheetRepository) Save(ctx context.Context, sheet *timesheet.Timesheet) error {
	sheet.UpdatedAt = time.Now().UTC()
	return r.conn(ctx).Save(sheet).Error
}

func (r *TimesheetRepository) ExistsForWeek(ctx context.Context, tenantID, projectID, userID string, weekStart time.Time) (bool, error) {
	var count int64
	err := r.conn(ctx).Model(&timesheet.Timesheet{}).
		Where("tenant_id = ? AND project_id = ? AND user_id = ? AND week_start = ? AND is_deleted = ?",
			tenantID, projectID, userID, weekStart, false).
		Count(&count).Error
	return count > 0, err
}

func (r *TimesheetRepository) ListApprovedInPeriod(ctx context.Context, tenantID, projectID string, periodStart, periodEnd time.Time) ([]*timesheet.Timesheet, error) {
	q := r.conn(ctx).
		Where("tenant_id = ? AND status = ? AND week_start >= ? AND week_end <= ? AND is_deleted = ?",
			tenantID, timesheet.StatusApproved, periodStart, periodEnd, false)
	if projectID != "" {
		q = q.Where("project_id = ?", projectID)
	}

	var sheets []*timesheet.Timesheet
	err := q.Order("week_start ASC").Find(&sheets).Error
	return sheets, err
}
