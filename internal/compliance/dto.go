package compliance

import (
	"encoding/json"
	"fmt"
	"strings"
)

type CreateRuleDTO struct {
	RuleCode    string          `json:"rule_code"`
	Title       string          `json:"title"`
	Description *string         `json:"description,omitempty"`
	Severity    Severity        `json:"severity"`
	Action      Action          `json:"action"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

func (d *CreateRuleDTO) Validate() error {
	d.RuleCode = strings.TrimSpace(d.RuleCode)
	if d.RuleCode == "" {
		return fmt.Errorf("rule_code is required")
	}
	if _, known := KindOf(d.RuleCode); !known {
		return fmt.Errorf("unknown rule_code %q", d.RuleCode)
	}
	if strings.TrimSpace(d.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if d.Severity == "" {
		d.Severity = SeverityWarn
	}
	if !d.Severity.Valid() {
		return fmt.Errorf("invalid severity %q", d.Severity)
	}
	if d.Action == "" {
		d.Action = ActionLog
	}
	if !d.Action.Valid() {
		return fmt.Errorf("invalid action %q", d.Action)
	}
	if len(d.Parameters) > 0 && !json.Valid(d.Parameters) {
		return fmt.Errorf("parameters must be a JSON object")
	}
	return nil
}

type UpdateRuleDTO struct {
	Title       *string         `json:"title,omitempty"`
	Description *string         `json:"description,omitempty"`
	Severity    *Severity       `json:"severity,omitempty"`
	Action      *Action         `json:"action,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	IsActive    *bool           `json:"is_active,omitempty"`
}

func (d *UpdateRuleDTO) Validate() error {
	if d.Severity != nil && !d.Severity.Valid() {
		return fmt.Errorf("invalid severity %q", *d.Severity)
	}
	if d.Action != nil && !d.Action.Valid() {
		return fmt.Errorf("invalid action %q", *d.Action)
	}
	if len(d.Parameters) > 0 && !json.Valid(d.Parameters) {
		return fmt.Errorf("parameters must be a JSON object")
	}
	return nil
}

type ResolveDTO struct {
	ResolutionNote string `json:"resolution_note"`
}

func (d *ResolveDTO) Validate() error {
	if strings.TrimSpace(d.ResolutionNote) == "" {
		return fmt.Errorf("resolution_note is required")
	}
	return nil
}
