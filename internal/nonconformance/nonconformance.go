package nonconformance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tverlabs/timekeep/pkg/database"
)

// Ticket is a request to open a nonconformance. SourceKey is a stable
// composite key; CreateIfAbsent is idempotent over it.
type Ticket struct {
	TenantID    string
	ProjectID   string
	SourceType  string
	SourceID    string
	SourceKey   string
	Title       string
	Description string
	Severity    string
}

// Creator opens nonconformance tickets from automated findings.
type Creator interface {
	CreateIfAbsent(ctx context.Context, t Ticket) error
}

type Nonconformance struct {
	ID          string    `json:"id" gorm:"primaryKey"`
	TenantID    string    `json:"tenant_id" gorm:"index"`
	ProjectID   string    `json:"project_id"`
	NCNo        string    `json:"nc_no" gorm:"column:nc_no"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Severity    string    `json:"severity"`
	Status      string    `json:"status"`
	SourceType  string    `json:"source_type" gorm:"column:source_type"`
	SourceID    string    `json:"source_id" gorm:"column:source_id"`
	SourceKey   string    `json:"source_key" gorm:"column:source_key;index"`
	IsDeleted   bool      `json:"-" gorm:"column:is_deleted"`
	CreatedAt   time.Time `json:"created_at"`
}

func (Nonconformance) TableName() string {
	return "nonconformances"
}

type gormCreator struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewCreator(db *gorm.DB, logger *slog.Logger) Creator {
	return &gormCreator{db: db, logger: logger}
}

func (c *gormCreator) CreateIfAbsent(ctx context.Context, t Ticket) error {
	db := database.Resolve(ctx, c.db)

	var count int64
	err := db.Model(&Nonconformance{}).
		Where("tenant_id = ? AND source_type = ? AND source_id = ? AND source_key = ? AND is_deleted = ?",
			t.TenantID, t.SourceType, t.SourceID, t.SourceKey, false).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	ncNo, err := c.nextNumber(db, t.TenantID, t.ProjectID)
	if err != nil {
		return err
	}

	nc := &Nonconformance{
		ID:          uuid.NewString(),
		TenantID:    t.TenantID,
		ProjectID:   t.ProjectID,
		NCNo:        ncNo,
		Title:       t.Title,
		Description: t.Description,
		Severity:    t.Severity,
		Status:      "open",
		SourceType:  t.SourceType,
		SourceID:    t.SourceID,
		SourceKey:   t.SourceKey,
		CreatedAt:   time.Now().UTC(),
	}
	if err := db.Create(nc).Error; err != nil {
		return err
	}
	c.logger.Info("nonconformance created", "nc_no", ncNo, "source_key", t.SourceKey)
	return nil
}

func (c *gormCreator) nextNumber(db *gorm.DB, tenantID, projectID string) (string, error) {
	var count int64
	err := db.Model(&Nonconformance{}).
		Where("tenant_id = ? AND project_id = ?", tenantID, projectID).
		Count(&count).Error
	if err != nil {
		return "", err
	}
	yy := time.Now().UTC().Format("06")
	return fmt.Sprintf("NC-%s-%04d", yy, count+1), nil
}
