package payroll

import (
	"fmt"
	"strings"
	"time"
)

type GenerateDTO struct {
	ProjectID   *string `json:"project_id,omitempty"`
	PeriodStart string  `json:"period_start"`
	PeriodEnd   string  `json:"period_end"`

	periodStart time.Time
	periodEnd   time.Time
}

func (d *GenerateDTO) Validate() error {
	var err error
	if d.periodStart, err = time.Parse("2006-01-02", d.PeriodStart); err != nil {
		return fmt.Errorf("period_start must be YYYY-MM-DD")
	}
	if d.periodEnd, err = time.Parse("2006-01-02", d.PeriodEnd); err != nil {
		return fmt.Errorf("period_end must be YYYY-MM-DD")
	}
	if d.periodEnd.Before(d.periodStart) {
		return fmt.Errorf("period_end must not precede period_start")
	}
	return nil
}

type VoidDTO struct {
	Reason string `json:"reason"`
}

func (d *VoidDTO) Validate() error {
	if strings.TrimSpace(d.Reason) == "" {
		return fmt.Errorf("reason is required")
	}
	return nil
}
