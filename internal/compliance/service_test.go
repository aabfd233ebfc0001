package compliance_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tverlabs/timekeep/internal"
	"github.com/tverlabs/timekeep/internal/audit"
	"github.com/tverlabs/timekeep/internal/compliance"
	"github.com/tverlabs/timekeep/internal/entry"
	"github.com/tverlabs/timekeep/internal/timesheet"
)

type passthroughTx struct{}

func (passthroughTx) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type mockSheets struct {
	sheets map[string]*timesheet.Timesheet
}

func (m *mockSheets) GetByID(_ context.Context, tenantID, id string) (*timesheet.Timesheet, error) {
	if sh, ok := m.sheets[id]; ok && sh.TenantID == tenantID {
		return sh, nil
	}
	return nil, timesheet.ErrNotFound
}

type recordingAudit struct {
	events []audit.Event
}

func (r *recordingAudit) Record(_ context.Context, e audit.Event) error {
	r.events = append(r.events, e)
	return nil
}

var _ = Describe("Service.EvaluateTimesheet", func() {
	var (
		ruleRepo   *mockRuleRepo
		resultRepo *mockResultRepo
		entries    *mockEntrySource
		sheets     *mockSheets
		recorder   *recordingAudit
		service    *compliance.Service
		actor      *internal.Actor
		ctx        context.Context
	)

	monday := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	BeforeEach(func() {
		ctx = context.Background()
		ruleRepo = &mockRuleRepo{}
		resultRepo = &mockResultRepo{}
		entries = &mockEntrySource{bySheet: map[string][]*entry.Entry{}}
		recorder = &recordingAudit{}
		actor = &internal.Actor{UserID: "manager-1", TenantID: "tenant-1"}

		engine := compliance.NewEngine(ruleRepo, resultRepo, entries,
			&fixedTimezone{loc: time.UTC}, &mockNCCreator{}, testLogger())

		sheets = &mockSheets{sheets: map[string]*timesheet.Timesheet{
			"sheet-1": {
				ID:        "sheet-1",
				TenantID:  "tenant-1",
				ProjectID: "project-1",
				UserID:    "user-1",
				WeekStart: monday,
				WeekEnd:   timesheet.WeekEndFor(monday),
				Status:    timesheet.StatusOpen,
			},
		}}

		service = compliance.NewService(passthroughTx{}, ruleRepo, resultRepo,
			engine, sheets, recorder, testLogger())

		ruleRepo.rules = append(ruleRepo.rules, &compliance.Rule{
			ID:             "rule-MAX_DAILY_HOURS",
			TenantID:       "tenant-1",
			RuleCode:       "MAX_DAILY_HOURS",
			Title:          "MAX_DAILY_HOURS",
			Severity:       compliance.SeverityBlock,
			Action:         compliance.ActionLog,
			ParametersJSON: strPtr(`{"max_minutes": 480}`),
			IsActive:       true,
		})
	})

	It("persists and returns the results of an on-demand run", func() {
		day := monday
		start := day.Add(8 * time.Hour)
		end := day.Add(18 * time.Hour)
		entries.bySheet["sheet-1"] = []*entry.Entry{{
			ID:          "e1",
			TenantID:    "tenant-1",
			TimesheetID: "sheet-1",
			UserID:      "user-1",
			WorkDate:    day,
			StartTime:   start,
			EndTime:     end,
			NetMinutes:  600,
			Status:      entry.StatusActive,
		}}

		results, err := service.EvaluateTimesheet(ctx, actor, "sheet-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(1))
		Expect(results[0].Status).To(Equal(compliance.ResultViolation))
		Expect(resultRepo.violations()).To(HaveLen(1))

		Expect(recorder.events).To(HaveLen(1))
		Expect(recorder.events[0].Action).To(Equal("compliance.evaluate"))
	})

	It("returns not-found for an unknown timesheet", func() {
		results, err := service.EvaluateTimesheet(ctx, actor, "missing")
		Expect(err).To(MatchError(timesheet.ErrNotFound))
		Expect(results).To(BeNil())
	})
})
