package tenant

import (
	"context"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/tverlabs/timekeep/pkg/database"
)

type Tenant struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"not null"`
	Timezone  string    `json:"timezone" gorm:"default:UTC"`
	CreatedAt time.Time `json:"created_at"`
}

func (Tenant) TableName() string {
	return "tenants"
}

// TimezoneResolver maps a tenant to its configured location. Lookup failures
// of any kind fall back to UTC; compliance evaluation never fails on a
// missing timezone.
type TimezoneResolver interface {
	Resolve(ctx context.Context, tenantID string) *time.Location
}

type gormResolver struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewTimezoneResolver(db *gorm.DB, logger *slog.Logger) TimezoneResolver {
	return &gormResolver{db: db, logger: logger}
}

func (r *gormResolver) Resolve(ctx context.Context, tenantID string) *time.Location {
	var t Tenant
	err := database.Resolve(ctx, r.db).Where("id = ?", tenantID).First(&t).Error
	if err != nil {
		r.logger.Warn("tenant timezone lookup failed, falling back to UTC",
			"tenant_id", tenantID, "error", err)
		return time.UTC
	}
	if t.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(t.Timezone)
	if err != nil {
		r.logger.Warn("invalid tenant timezone, falling back to UTC",
			"tenant_id", tenantID, "timezone", t.Timezone)
		return time.UTC
	}
	return loc
}
