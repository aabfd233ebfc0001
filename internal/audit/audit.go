package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tverlabs/timekeep/pkg/database"
)

// Event is one auditable action. Detail is free-form structured context.
type Event struct {
	TenantID     string
	ActorID      string
	Action       string
	ResourceType string
	ResourceID   string
	Detail       map[string]interface{}
}

// Recorder appends audit events. Implementations must write inside the
// caller's transaction: a transition that cannot record its trail must not
// commit.
type Recorder interface {
	Record(ctx context.Context, e Event) error
}

type Log struct {
	ID           string    `json:"id" gorm:"primaryKey"`
	TenantID     string    `json:"tenant_id" gorm:"column:tenant_id;index"`
	ActorID      string    `json:"actor_id" gorm:"column:actor_id"`
	Action       string    `json:"action" gorm:"not null"`
	ResourceType string    `json:"resource_type" gorm:"column:resource_type"`
	ResourceID   string    `json:"resource_id" gorm:"column:resource_id;index"`
	DetailJSON   *string   `json:"detail,omitempty" gorm:"column:detail_json"`
	CreatedAt    time.Time `json:"created_at"`
}

func (Log) TableName() string {
	return "audit_logs"
}

type gormRecorder struct {
	db *gorm.DB
}

func NewRecorder(db *gorm.DB) Recorder {
	return &gormRecorder{db: db}
}

func (r *gormRecorder) Record(ctx context.Context, e Event) error {
	var detail *string
	if len(e.Detail) > 0 {
		raw, err := json.Marshal(e.Detail)
		if err != nil {
			return err
		}
		s := string(raw)
		detail = &s
	}

	row := &Log{
		ID:           uuid.NewString(),
		TenantID:     e.TenantID,
		ActorID:      e.ActorID,
		Action:       e.Action,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		DetailJSON:   detail,
		CreatedAt:    time.Now().UTC(),
	}
	return database.Resolve(ctx, r.db).Create(row).Error
}
