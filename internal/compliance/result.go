package compliance

import (
	"encoding/json"
	"time"
)

type ResultStatus string

const (
	ResultPass      ResultStatus = "pass"
	ResultViolation ResultStatus = "violation"
	ResultResolved  ResultStatus = "resolved"
)

// Result is one evaluation outcome for a (timesheet, rule) pair. Violations
// additionally carry the local day they occurred on; weekly aggregates do not.
type Result struct {
	ID               string       `json:"id" gorm:"primaryKey"`
	TenantID         string       `json:"tenant_id" gorm:"column:tenant_id;not null;index"`
	TimesheetID      string       `json:"timesheet_id" gorm:"column:timesheet_id;not null;index"`
	RuleID           string       `json:"rule_id" gorm:"column:rule_id;not null"`
	Status           ResultStatus `json:"status" gorm:"not null"`
	OccurredOn       *time.Time   `json:"occurred_on,omitempty" gorm:"column:occurred_on;type:date"`
	RuleSnapshotJSON string       `json:"-" gorm:"column:rule_snapshot_json;not null"`
	PerDayJSON       *string      `json:"-" gorm:"column:per_day_json"`
	DetailsJSON      *string      `json:"-" gorm:"column:details_json"`
	ResolvedAt       *time.Time   `json:"resolved_at,omitempty"`
	ResolvedBy       *string      `json:"resolved_by,omitempty"`
	ResolutionNote   *string      `json:"resolution_note,omitempty"`
	IsDeleted        bool         `json:"-" gorm:"column:is_deleted;default:false"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

func (Result) TableName() string {
	return "compliance_results"
}

// Snapshot decodes the frozen rule configuration this result was produced
// under. A result is always read through its snapshot, never the live rule.
func (r *Result) Snapshot() Snapshot {
	var s Snapshot
	_ = json.Unmarshal([]byte(r.RuleSnapshotJSON), &s)
	return s
}

func (r *Result) MarshalJSON() ([]byte, error) {
	type alias Result
	out := struct {
		*alias
		RuleSnapshot json.RawMessage `json:"rule_snapshot"`
		PerDay       json.RawMessage `json:"per_day,omitempty"`
		Details      json.RawMessage `json:"details,omitempty"`
	}{alias: (*alias)(r)}

	out.RuleSnapshot = json.RawMessage(r.RuleSnapshotJSON)
	if r.PerDayJSON != nil {
		out.PerDay = json.RawMessage(*r.PerDayJSON)
	}
	if r.DetailsJSON != nil {
		out.Details = json.RawMessage(*r.DetailsJSON)
	}
	return json.Marshal(out)
}
