package compliance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/tverlabs/timekeep/internal"
	"github.com/tverlabs/timekeep/internal/entry"
	"github.com/tverlabs/timekeep/internal/interval"
	"github.com/tverlabs/timekeep/internal/nonconformance"
	"github.com/tverlabs/timekeep/internal/tenant"
	"github.com/tverlabs/timekeep/internal/timesheet"
)

type RuleRepository interface {
	Create(ctx context.Context, rule *Rule) error
	GetByID(ctx context.Context, tenantID, id string) (*Rule, error)
	ListActive(ctx context.Context, tenantID string) ([]*Rule, error)
	List(ctx context.Context, tenantID string) ([]*Rule, error)
	ExistsCode(ctx context.Context, tenantID, ruleCode string) (bool, error)
	Save(ctx context.Context, rule *Rule) error
}

type ResultRepository interface {
	Create(ctx context.Context, result *Result) error
	GetByID(ctx context.Context, tenantID, id string) (*Result, error)
	ListByTimesheet(ctx context.Context, tenantID, timesheetID string) ([]*Result, error)
	FindOpenViolation(ctx context.Context, timesheetID, ruleID string, occurredOn *time.Time) (*Result, error)
	FindPass(ctx context.Context, timesheetID, ruleID string) (*Result, error)
	Save(ctx context.Context, result *Result) error
}

// EntrySource is the slice of the entry repository the engine needs. The
// lookback query reaches across timesheets, so it is keyed by user and range
// rather than by sheet.
type EntrySource interface {
	ListActiveRegular(ctx context.Context, timesheetID string) ([]*entry.Entry, error)
	ListForUserBetween(ctx context.Context, tenantID, userID string, from, to time.Time) ([]*entry.Entry, error)
}

// Engine evaluates every active rule for a tenant against one timesheet. It
// never opens its own transaction; callers decide whether it runs inside the
// transition that depends on it.
type Engine struct {
	rules   RuleRepository
	results ResultRepository
	entries EntrySource
	tz      tenant.TimezoneResolver
	nc      nonconformance.Creator
	logger  *slog.Logger
}

func NewEngine(rules RuleRepository, results ResultRepository, entries EntrySource, tz tenant.TimezoneResolver, nc nonconformance.Creator, logger *slog.Logger) *Engine {
	return &Engine{
		rules:   rules,
		results: results,
		entries: entries,
		tz:      tz,
		nc:      nc,
		logger:  logger,
	}
}

// occurrence is one detected breach of a rule, before it is reconciled
// against existing result rows.
type occurrence struct {
	day     interval.Date // empty for week-level rules
	details map[string]interface{}
}

// Evaluate runs all active rules against the sheet and returns every result
// row the run touched, pre-existing rows included. Re-running against
// unchanged data creates nothing new.
func (e *Engine) Evaluate(ctx context.Context, sheet *timesheet.Timesheet) ([]*Result, error) {
	loc := e.tz.Resolve(ctx, sheet.TenantID)

	entries, err := e.entries.ListActiveRegular(ctx, sheet.ID)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}

	perDay := map[interval.Date]int{}
	for _, en := range entries {
		interval.MergeDays(perDay, interval.SplitByLocalDay(en.StartTime, en.EndTime, en.BreakMinutes, loc))
	}

	// Rest checks look back seven days before the week so a gap spanning
	// the Sunday/Monday boundary is still measured.
	lookback, err := e.entries.ListForUserBetween(ctx, sheet.TenantID, sheet.UserID,
		sheet.WeekStart.AddDate(0, 0, -7), sheet.WeekStart)
	if err != nil {
		return nil, fmt.Errorf("list lookback entries: %w", err)
	}

	rules, err := e.rules.ListActive(ctx, sheet.TenantID)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}

	var out []*Result
	for _, rule := range rules {
		kind, known := KindOf(rule.RuleCode)
		if !known {
			e.logger.Warn("skipping rule with unknown code",
				"rule_id", rule.ID, "rule_code", rule.RuleCode)
			continue
		}

		occurrences := evaluateKind(kind, rule, perDay, entries, lookback)

		if len(occurrences) == 0 {
			res, err := e.recordPass(ctx, sheet, rule, perDay)
			if err != nil {
				return nil, err
			}
			out = append(out, res)
			continue
		}

		for _, occ := range occurrences {
			res, err := e.recordViolation(ctx, sheet, rule, perDay, occ)
			if err != nil {
				return nil, err
			}
			out = append(out, res)
		}
	}
	return out, nil
}

// BlockingViolations implements the evaluator hook the timesheet lifecycle
// calls before submit and approve.
func (e *Engine) BlockingViolations(ctx context.Context, sheet *timesheet.Timesheet) ([]internal.BlockedRule, error) {
	results, err := e.Evaluate(ctx, sheet)
	if err != nil {
		return nil, err
	}

	var blocked []internal.BlockedRule
	for _, res := range results {
		if res.Status != ResultViolation {
			continue
		}
		snap := res.Snapshot()
		if snap.Severity.Blocking() {
			blocked = append(blocked, internal.BlockedRule{
				RuleCode: snap.RuleCode,
				Severity: string(snap.Severity),
			})
		}
	}
	return blocked, nil
}

func evaluateKind(kind Kind, rule *Rule, perDay map[interval.Date]int, entries, lookback []*entry.Entry) []occurrence {
	switch kind {
	case KindMaxDailyHours:
		return evaluateMaxDaily(rule.maxDailyParams(), perDay)
	case KindMaxWeeklyHours:
		return evaluateMaxWeekly(rule.maxWeeklyParams(), perDay)
	case KindMinRestPeriod:
		return evaluateMinRest(rule.minRestParams(), entries, lookback)
	}
	return nil
}

func evaluateMaxDaily(p MaxDailyHoursParams, perDay map[interval.Date]int) []occurrence {
	days := make([]interval.Date, 0, len(perDay))
	for d := range perDay {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })

	var out []occurrence
	for _, day := range days {
		total := perDay[day]
		if total <= p.MaxMinutes {
			continue
		}
		out = append(out, occurrence{
			day: day,
			details: map[string]interface{}{
				"day":            day.String(),
				"total_minutes":  total,
				"max_minutes":    p.MaxMinutes,
				"excess_minutes": total - p.MaxMinutes,
			},
		})
	}
	return out
}

func evaluateMaxWeekly(p MaxWeeklyHoursParams, perDay map[interval.Date]int) []occurrence {
	total := interval.SumDays(perDay)
	if total <= p.MaxMinutes {
		return nil
	}
	return []occurrence{{
		details: map[string]interface{}{
			"total_minutes":  total,
			"max_minutes":    p.MaxMinutes,
			"excess_minutes": total - p.MaxMinutes,
		},
	}}
}

// evaluateMinRest measures the gap between consecutive work windows over the
// lookback entries plus the sheet's own, ordered by start time. A violation
// lands on the work date of the later entry.
func evaluateMinRest(p MinRestPeriodParams, entries, lookback []*entry.Entry) []occurrence {
	all := make([]*entry.Entry, 0, len(entries)+len(lookback))
	all = append(all, lookback...)
	all = append(all, entries...)
	sort.Slice(all, func(i, j int) bool { return all[i].StartTime.Before(all[j].StartTime) })

	var out []occurrence
	for i := 1; i < len(all); i++ {
		prev, curr := all[i-1], all[i]
		gap := int(curr.StartTime.Sub(prev.EndTime).Minutes())
		if gap >= p.MinRestMinutes {
			continue
		}
		out = append(out, occurrence{
			day: interval.DateOf(curr.WorkDate),
			details: map[string]interface{}{
				"day":               interval.DateOf(curr.WorkDate).String(),
				"rest_minutes":      gap,
				"min_rest_minutes":  p.MinRestMinutes,
				"previous_entry_id": prev.ID,
				"entry_id":          curr.ID,
			},
		})
	}
	return out
}

func (e *Engine) recordPass(ctx context.Context, sheet *timesheet.Timesheet, rule *Rule, perDay map[interval.Date]int) (*Result, error) {
	existing, err := e.results.FindPass(ctx, sheet.ID, rule.ID)
	if err != nil {
		return nil, fmt.Errorf("find pass result: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	res, err := newResult(sheet, rule, ResultPass, nil, perDay, nil)
	if err != nil {
		return nil, err
	}
	if err := e.results.Create(ctx, res); err != nil {
		return nil, fmt.Errorf("create pass result: %w", err)
	}
	return res, nil
}

func (e *Engine) recordViolation(ctx context.Context, sheet *timesheet.Timesheet, rule *Rule, perDay map[interval.Date]int, occ occurrence) (*Result, error) {
	var occurredOn *time.Time
	if occ.day != "" {
		d, err := time.Parse("2006-01-02", occ.day.String())
		if err != nil {
			return nil, fmt.Errorf("parse occurrence day: %w", err)
		}
		occurredOn = &d
	}

	existing, err := e.results.FindOpenViolation(ctx, sheet.ID, rule.ID, occurredOn)
	if err != nil {
		return nil, fmt.Errorf("find violation: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	res, err := newResult(sheet, rule, ResultViolation, occurredOn, perDay, occ.details)
	if err != nil {
		return nil, err
	}
	if err := e.results.Create(ctx, res); err != nil {
		return nil, fmt.Errorf("create violation: %w", err)
	}

	e.logger.Info("compliance violation recorded",
		"timesheet_id", sheet.ID, "rule_code", rule.RuleCode,
		"severity", rule.Severity, "occurred_on", occ.day.String())

	if rule.Severity == SeverityCritical && rule.Action == ActionAutoNC {
		if err := e.raiseNonconformance(ctx, sheet, rule, occ); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (e *Engine) raiseNonconformance(ctx context.Context, sheet *timesheet.Timesheet, rule *Rule, occ occurrence) error {
	desc := fmt.Sprintf("Automatic nonconformance raised by rule %s on timesheet %s.", rule.RuleCode, sheet.ID)
	if detail, err := json.Marshal(occ.details); err == nil {
		desc = fmt.Sprintf("%s Details: %s", desc, detail)
	}

	return e.nc.CreateIfAbsent(ctx, nonconformance.Ticket{
		TenantID:    sheet.TenantID,
		ProjectID:   sheet.ProjectID,
		SourceType:  "compliance",
		SourceID:    sheet.ID,
		SourceKey:   fmt.Sprintf("%s:%s:%s", sheet.ID, rule.RuleCode, occ.day.String()),
		Title:       fmt.Sprintf("Compliance breach: %s", rule.Title),
		Description: desc,
		Severity:    string(rule.Severity),
	})
}

func newResult(sheet *timesheet.Timesheet, rule *Rule, status ResultStatus, occurredOn *time.Time, perDay map[interval.Date]int, details map[string]interface{}) (*Result, error) {
	snap, err := json.Marshal(rule.snapshot())
	if err != nil {
		return nil, fmt.Errorf("marshal rule snapshot: %w", err)
	}

	res := &Result{
		ID:               uuid.New().String(),
		TenantID:         sheet.TenantID,
		TimesheetID:      sheet.ID,
		RuleID:           rule.ID,
		Status:           status,
		OccurredOn:       occurredOn,
		RuleSnapshotJSON: string(snap),
	}

	if len(perDay) > 0 {
		raw, err := json.Marshal(perDay)
		if err != nil {
			return nil, fmt.Errorf("marshal per-day totals: %w", err)
		}
		s := string(raw)
		res.PerDayJSON = &s
	}
	if len(details) > 0 {
		raw, err := json.Marshal(details)
		if err != nil {
			return nil, fmt.Errorf("marshal violation details: %w", err)
		}
		s := string(raw)
		res.DetailsJSON = &s
	}
	return res, nil
}
