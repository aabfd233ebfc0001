package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tverlabs/timekeep/internal/entry"
	"github.com/tverlabs/timekeep/pkg/database"
)

// EntryRepository implements entry.Repository using GORM.
type EntryRepository struct {
	db *gorm.DB
}

func NewEntryRepository(db *gorm.DB) entry.Repository {
	return &EntryRepository{db: db}
}

func (r *EntryRepository) conn(ctx context.Context) *gorm.DB {
	return database.Resolve(ctx, r.db)
}

func (r *EntryRepository) Create(ctx context.Context, e *entry.Entry) error {
	return r.conn(ctx).Create(e).Error
}

func (r *EntryRepository) GetByID(ctx context.Context, tenantID, id string) (*entry.Entry, error) {
	var e entry.Entry
	err := r.conn(ctx).
		Where("id = ? AND tenant_id = ? AND is_deleted = ?", id, tenantID, false).
		First(&e).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, entry.ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

func (r *EntryRepository) Save(ctx context.Context, e *entry.Entry) error {
	e.UpdatedAt = time.Now().UTC()
	return r.conn(ctx).Save(e).Error
}

func (r *EntryRepository) ListByTimesheet(ctx context.Context, timesheetID string) ([]*entry.Entry, error) {
	var entries []*entry.Entry
	err := r.conn(ctx).
		Where("timesheet_id = ? AND is_deleted = ?", timesheetID, false).
		Order("work_date, start_time").
		Find(&entries).Error
	return entries, err
}

// ListActiveRegular returns the entries that count toward aggregates:
// non-deleted, non-rejected, non-adjustment.
func (r *EntryRepository) ListActiveRegular(ctx context.Context, timesheetID string) ([]*entry.Entry, error) {
	var entries []*entry.Entry
	err := r.conn(ctx).
		Where("timesheet_id = ? AND is_deleted = ? AND status <> ? AND is_adjustment = ?",
			timesheetID, false, entry.StatusRejected, false).
		Order("work_date, start_time").
		Find(&entries).Error
	return entries, err
}

func (r *EntryRepository) ListForUserBetween(ctx context.Context, tenantID, userID string, from, to time.Time) ([]*entry.Entry, error) {
	var entries []*entry.Entry
	err := r.conn(ctx).
		Where("tenant_id = ? AND user_id = ? AND work_date >= ? AND work_date < ? AND is_deleted = ? AND status <> ? AND is_adjustment = ?",
			tenantID, userID, from, to, false, entry.StatusRejected, false).
		Order("start_time").
		Find(&entries).Error
	return entries, err
}

// FindOverlapping returns the first non-rejected, non-adjustment entry of the
// same user and date whose half-open window intersects [start, end), or nil.
func (r *EntryRepository) FindOverlapping(ctx context.Context, tenantID, userID string, workDate, start, end time.Time, excludeID string) (*entry.Entry, error) {
	q := r.conn(ctx).
		Where("tenant_id = ? AND user_id = ? AND work_date = ? AND is_deleted = ? AND status <> ? AND is_adjustment = ?",
			tenantID, userID, workDate, false, entry.StatusRejected, false).
		Where("start_time < ? AND end_time > ?", end, start)
	if excludeID != "" {
		q = q.Where("id <> ?", excludeID)
	}

	var e entry.Entry
	err := q.First(&e).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

func (r *EntryRepository) HasAdjustment(ctx context.Context, tenantID, originalEntryID string) (bool, error) {
	var count int64
	err := r.conn(ctx).Model(&entry.Entry{}).
		Where("tenant_id = ? AND original_entry_id = ? AND is_adjustment = ? AND is_deleted = ?",
			tenantID, originalEntryID, true, false).
		Count(&count).Error
	return count > 0, err
}
