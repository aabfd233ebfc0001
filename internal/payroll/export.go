package payroll

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/tverlabs/timekeep/internal"
)

type ExportStatus string

const (
	StatusGenerated ExportStatus = "generated"
	StatusSent      ExportStatus = "sent"
	StatusVoided    ExportStatus = "voided"
)

// Export is one payroll batch over a period. A timesheet may appear in at
// most one non-voided batch; voiding releases its sheets for a re-export.
type Export struct {
	ID          string       `json:"id" gorm:"primaryKey"`
	TenantID    string       `json:"tenant_id" gorm:"column:tenant_id;not null;index"`
	ProjectID   *string      `json:"project_id,omitempty" gorm:"column:project_id"`
	PeriodStart time.Time    `json:"period_start" gorm:"column:period_start;type:date;not null"`
	PeriodEnd   time.Time    `json:"period_end" gorm:"column:period_end;type:date;not null"`
	Status      ExportStatus `json:"status" gorm:"not null;default:generated"`
	GeneratedAt time.Time    `json:"generated_at" gorm:"column:generated_at"`
	GeneratedBy string       `json:"generated_by" gorm:"column:generated_by"`
	SentAt      *time.Time   `json:"sent_at,omitempty"`
	SentBy      *string      `json:"sent_by,omitempty"`
	VoidedAt    *time.Time   `json:"voided_at,omitempty"`
	VoidedBy    *string      `json:"voided_by,omitempty"`
	VoidReason  *string      `json:"void_reason,omitempty"`
	IsDeleted   bool         `json:"-" gorm:"column:is_deleted;default:false"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`

	Lines []*ExportLine `json:"lines,omitempty" gorm:"-"`
}

func (Export) TableName() string {
	return "payroll_exports"
}

// ExportLine is the payable total for one timesheet inside a batch: net
// minutes from active regular entries plus signed adjustment deltas.
type ExportLine struct {
	ID                 string          `json:"id" gorm:"primaryKey"`
	ExportID           string          `json:"export_id" gorm:"column:export_id;not null;index"`
	TimesheetID        string          `json:"timesheet_id" gorm:"column:timesheet_id;not null"`
	UserID             string          `json:"user_id" gorm:"column:user_id;not null"`
	ProjectID          string          `json:"project_id" gorm:"column:project_id;not null"`
	WeekStart          time.Time       `json:"week_start" gorm:"column:week_start;type:date;not null"`
	RegularMinutes     int             `json:"regular_minutes" gorm:"column:regular_minutes"`
	AdjustmentMinutes  int             `json:"adjustment_minutes" gorm:"column:adjustment_minutes"`
	NetMinutes         int             `json:"net_minutes" gorm:"column:net_minutes"`
	Hours              decimal.Decimal `json:"hours" gorm:"column:hours;type:numeric(10,2)"`
	SourceEntryIDsJSON string          `json:"-" gorm:"column:source_entry_ids_json"`
	CreatedAt          time.Time       `json:"created_at"`
}

func (ExportLine) TableName() string {
	return "payroll_export_lines"
}

// HoursFromMinutes converts payable minutes into decimal hours, two places.
func HoursFromMinutes(minutes int) decimal.Decimal {
	return decimal.NewFromInt(int64(minutes)).Div(decimal.NewFromInt(60)).Round(2)
}

var (
	ErrNotFound    = internal.NewNotFoundError("payroll export not found", internal.ErrCodeExportNotFound)
	ErrEmptyExport = internal.NewValidationError(
		"no approved timesheets in the requested period", internal.ErrCodeEmptyExport)
)
