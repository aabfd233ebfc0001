package compliance

import (
	"encoding/json"
	"time"

	"github.com/tverlabs/timekeep/internal"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarn     Severity = "warn"
	SeverityBlock    Severity = "block"
	SeverityCritical Severity = "critical"
)

// Blocking reports whether a violation at this severity gates lifecycle
// transitions.
func (s Severity) Blocking() bool {
	return s == SeverityBlock || s == SeverityCritical
}

func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarn, SeverityBlock, SeverityCritical:
		return true
	}
	return false
}

type Action string

const (
	ActionLog    Action = "log"
	ActionAutoNC Action = "auto_nc"
)

func (a Action) Valid() bool {
	return a == ActionLog || a == ActionAutoNC
}

// Kind is the closed set of rule algorithms the engine evaluates. Rules are
// stored with a free-form code, but evaluation dispatches through this enum:
// a code outside the set simply never produces violations.
type Kind string

const (
	KindMaxDailyHours  Kind = "MAX_DAILY_HOURS"
	KindMaxWeeklyHours Kind = "MAX_WEEKLY_HOURS"
	KindMinRestPeriod  Kind = "MIN_REST_PERIOD"
)

// KindOf maps a stored rule code onto the evaluation kind.
func KindOf(code string) (Kind, bool) {
	switch Kind(code) {
	case KindMaxDailyHours, KindMaxWeeklyHours, KindMinRestPeriod:
		return Kind(code), true
	}
	return "", false
}

// Typed parameters per kind; decoded from the stored parameters JSON with
// defaults filled in where the tenant left them unset.

type MaxDailyHoursParams struct {
	MaxMinutes int `json:"max_minutes"`
}

type MaxWeeklyHoursParams struct {
	MaxMinutes int `json:"max_minutes"`
}

type MinRestPeriodParams struct {
	MinRestMinutes int `json:"min_rest_minutes"`
}

const (
	defaultMaxDailyMinutes  = 600
	defaultMaxWeeklyMinutes = 2400
	defaultMinRestMinutes   = 660 // 11 hours
)

// Rule is one tenant-configured compliance check. The row may be edited after
// evaluation; historical results stay truthful through their snapshots.
type Rule struct {
	ID             string    `json:"id" gorm:"primaryKey"`
	TenantID       string    `json:"tenant_id" gorm:"column:tenant_id;not null;index"`
	RuleCode       string    `json:"rule_code" gorm:"column:rule_code;not null"`
	Title          string    `json:"title" gorm:"not null"`
	Description    *string   `json:"description,omitempty"`
	Severity       Severity  `json:"severity" gorm:"not null;default:warn"`
	Action         Action    `json:"action" gorm:"not null;default:log"`
	ParametersJSON *string   `json:"parameters_json,omitempty" gorm:"column:parameters_json"`
	IsActive       bool      `json:"is_active" gorm:"column:is_active;default:true"`
	IsDeleted      bool      `json:"-" gorm:"column:is_deleted;default:false"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (Rule) TableName() string {
	return "compliance_rules"
}

func (r *Rule) rawParams() json.RawMessage {
	if r.ParametersJSON == nil || *r.ParametersJSON == "" {
		return json.RawMessage("{}")
	}
	return json.RawMessage(*r.ParametersJSON)
}

func (r *Rule) maxDailyParams() MaxDailyHoursParams {
	p := MaxDailyHoursParams{MaxMinutes: defaultMaxDailyMinutes}
	var decoded MaxDailyHoursParams
	if err := json.Unmarshal(r.rawParams(), &decoded); err == nil && decoded.MaxMinutes > 0 {
		p.MaxMinutes = decoded.MaxMinutes
	}
	return p
}

func (r *Rule) maxWeeklyParams() MaxWeeklyHoursParams {
	p := MaxWeeklyHoursParams{MaxMinutes: defaultMaxWeeklyMinutes}
	var decoded MaxWeeklyHoursParams
	if err := json.Unmarshal(r.rawParams(), &decoded); err == nil && decoded.MaxMinutes > 0 {
		p.MaxMinutes = decoded.MaxMinutes
	}
	return p
}

func (r *Rule) minRestParams() MinRestPeriodParams {
	p := MinRestPeriodParams{MinRestMinutes: defaultMinRestMinutes}
	var decoded MinRestPeriodParams
	if err := json.Unmarshal(r.rawParams(), &decoded); err == nil && decoded.MinRestMinutes > 0 {
		p.MinRestMinutes = decoded.MinRestMinutes
	}
	return p
}

// Snapshot is the frozen copy of a rule's configuration stored on each
// result, so later rule edits never rewrite history.
type Snapshot struct {
	RuleCode   string          `json:"rule_code"`
	Severity   Severity        `json:"severity"`
	Action     Action          `json:"action"`
	Parameters json.RawMessage `json:"parameters"`
}

func (r *Rule) snapshot() Snapshot {
	return Snapshot{
		RuleCode:   r.RuleCode,
		Severity:   r.Severity,
		Action:     r.Action,
		Parameters: r.rawParams(),
	}
}

var (
	ErrRuleNotFound   = internal.NewNotFoundError("compliance rule not found", internal.ErrCodeRuleNotFound)
	ErrResultNotFound = internal.NewNotFoundError("compliance result not found", internal.ErrCodeResultNotFound)
	ErrRuleExists     = internal.NewIntegrityConflictError(
		"a rule with this code already exists for the tenant",
		internal.ErrCodeIntegrityConflict, nil)
)
