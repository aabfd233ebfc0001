package timesheet_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tverlabs/timekeep/internal"
	"github.com/tverlabs/timekeep/internal/audit"
	"github.com/tverlabs/timekeep/internal/timesheet"
)

func TestTimesheet(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Timesheet Suite")
}

type passthroughTx struct{}

func (passthroughTx) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type mockRepo struct {
	sheets map[string]*timesheet.Timesheet
}

func newMockRepo() *mockRepo {
	return &mockRepo{sheets: map[string]*timesheet.Timesheet{}}
}

func (m *mockRepo) Create(_ context.Context, sh *timesheet.Timesheet) error {
	m.sheets[sh.ID] = sh
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, tenantID, id string) (*timesheet.Timesheet, error) {
	sh, ok := m.sheets[id]
	if !ok || sh.TenantID != tenantID {
		return nil, timesheet.ErrNotFound
	}
	return sh, nil
}

func (m *mockRepo) GetForUpdate(ctx context.Context, tenantID, id string) (*timesheet.Timesheet, error) {
	return m.GetByID(ctx, tenantID, id)
}

func (m *mockRepo) List(_ context.Context, tenantID string, filter timesheet.ListFilter) ([]*timesheet.Timesheet, error) {
	var out []*timesheet.Timesheet
	for _, sh := range m.sheets {
		if sh.TenantID != tenantID {
			continue
		}
		if filter.Status != "" && sh.Status != timesheet.Status(filter.Status) {
			continue
		}
		out = append(out, sh)
	}
	return out, nil
}

func (m *mockRepo) Save(_ context.Context, sh *timesheet.Timesheet) error {
	m.sheets[sh.ID] = sh
	return nil
}

func (m *mockRepo) ExistsForWeek(_ context.Context, tenantID, projectID, userID string, weekStart time.Time) (bool, error) {
	for _, sh := range m.sheets {
		if sh.TenantID == tenantID && sh.ProjectID == projectID &&
			sh.UserID == userID && sh.WeekStart.Equal(weekStart) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRepo) ListApprovedInPeriod(_ context.Context, _, _ string, _, _ time.Time) ([]*timesheet.Timesheet, error) {
	return nil, nil
}

type mockEvaluator struct {
	blocked []internal.BlockedRule
	runs    int
}

func (m *mockEvaluator) BlockingViolations(_ context.Context, _ *timesheet.Timesheet) ([]internal.BlockedRule, error) {
	m.runs++
	return m.blocked, nil
}

type recordingAudit struct {
	events []audit.Event
}

func (r *recordingAudit) Record(_ context.Context, e audit.Event) error {
	r.events = append(r.events, e)
	return nil
}

func (r *recordingAudit) actions() []string {
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Action
	}
	return out
}

var _ = Describe("TimesheetService", func() {
	var (
		repo      *mockRepo
		evaluator *mockEvaluator
		recorder  *recordingAudit
		service   *timesheet.Service
		actor     *internal.Actor
		manager   *internal.Actor
		ctx       context.Context
	)

	monday := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	BeforeEach(func() {
		ctx = context.Background()
		repo = newMockRepo()
		evaluator = &mockEvaluator{}
		recorder = &recordingAudit{}
		service = timesheet.NewService(passthroughTx{}, repo, evaluator, recorder, logger)
		actor = &internal.Actor{UserID: "user-1", TenantID: "tenant-1"}
		manager = &internal.Actor{UserID: "manager-1", TenantID: "tenant-1",
			Permissions: []string{"approve_timesheets"}}
	})

	create := func() *timesheet.Timesheet {
		sh, err := service.Create(ctx, actor, timesheet.CreateTimesheetDTO{
			ProjectID: "project-1",
			WeekStart: monday,
		})
		Expect(err).NotTo(HaveOccurred())
		return sh
	}

	Describe("Create", func() {
		It("opens a sheet for a Monday week start", func() {
			sh := create()
			Expect(sh.Status).To(Equal(timesheet.StatusOpen))
			Expect(sh.WeekEnd).To(Equal(monday.AddDate(0, 0, 6)))
			Expect(recorder.actions()).To(ContainElement("timesheet.create"))
		})

		It("rejects a week start that is not a Monday", func() {
			_, err := service.Create(ctx, actor, timesheet.CreateTimesheetDTO{
				ProjectID: "project-1",
				WeekStart: monday.AddDate(0, 0, 2),
			})
			Expect(err).To(MatchError(timesheet.ErrWeekNotMonday))
		})

		It("rejects a duplicate week for the same user and project", func() {
			create()
			_, err := service.Create(ctx, actor, timesheet.CreateTimesheetDTO{
				ProjectID: "project-1",
				WeekStart: monday,
			})
			Expect(err).To(MatchError(timesheet.ErrDuplicateWeek))
		})
	})

	Describe("Submit", func() {
		It("moves an open sheet to submitted after a clean compliance run", func() {
			sh := create()

			out, err := service.Submit(ctx, actor, sh.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Status).To(Equal(timesheet.StatusSubmitted))
			Expect(out.SubmittedBy).To(HaveValue(Equal("user-1")))
			Expect(evaluator.runs).To(Equal(1))
		})

		It("is idempotent on an already submitted sheet", func() {
			sh := create()
			_, err := service.Submit(ctx, actor, sh.ID)
			Expect(err).NotTo(HaveOccurred())
			firstSubmittedAt := repo.sheets[sh.ID].SubmittedAt

			out, err := service.Submit(ctx, actor, sh.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(out.SubmittedAt).To(Equal(firstSubmittedAt))
			// No second audit row for the no-op.
			Expect(recorder.actions()).To(Equal([]string{"timesheet.create", "timesheet.submit"}))
		})

		It("blocks submission when compliance reports blocking violations", func() {
			sh := create()
			evaluator.blocked = []internal.BlockedRule{{RuleCode: "MAX_DAILY_HOURS", Severity: "block"}}

			_, err := service.Submit(ctx, actor, sh.ID)
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeComplianceBlocked))
			Expect(appErr.StatusCode).To(Equal(422))
			Expect(repo.sheets[sh.ID].Status).To(Equal(timesheet.StatusOpen))
		})

		It("refuses to submit an approved sheet", func() {
			sh := create()
			_, err := service.Submit(ctx, actor, sh.ID)
			Expect(err).NotTo(HaveOccurred())
			_, err = service.Approve(ctx, manager, sh.ID)
			Expect(err).NotTo(HaveOccurred())

			// Approved is not re-submittable; only reject returns it to open.
			_, submitErr := service.Submit(ctx, actor, sh.ID)
			appErr, ok := internal.IsAppError(submitErr)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeStateConflict))
		})
	})

	Describe("Reject", func() {
		It("returns an approved sheet to open and clears the approval stamps", func() {
			sh := create()
			_, err := service.Submit(ctx, actor, sh.ID)
			Expect(err).NotTo(HaveOccurred())
			_, err = service.Approve(ctx, manager, sh.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(repo.sheets[sh.ID].ApprovedAt).NotTo(BeNil())

			out, err := service.Reject(ctx, manager, sh.ID, timesheet.ReasonDTO{Reason: "missing entries"})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Status).To(Equal(timesheet.StatusOpen))
			Expect(out.ApprovedAt).To(BeNil())
			Expect(out.ApprovedBy).To(BeNil())
		})

		It("refuses to reject an open sheet", func() {
			sh := create()
			_, err := service.Reject(ctx, manager, sh.ID, timesheet.ReasonDTO{Reason: "nope"})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeStateConflict))
		})

		It("refuses to reject a locked sheet", func() {
			sh := create()
			_, err := service.Submit(ctx, actor, sh.ID)
			Expect(err).NotTo(HaveOccurred())
			_, err = service.Approve(ctx, manager, sh.ID)
			Expect(err).NotTo(HaveOccurred())
			_, err = service.Lock(ctx, manager, sh.ID)
			Expect(err).NotTo(HaveOccurred())

			_, err = service.Reject(ctx, manager, sh.ID, timesheet.ReasonDTO{Reason: "too late"})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeStateConflict))
		})
	})

	Describe("Lock and Reopen", func() {
		It("walks the full lifecycle and reopen re-runs compliance", func() {
			sh := create()
			_, err := service.Submit(ctx, actor, sh.ID)
			Expect(err).NotTo(HaveOccurred())
			_, err = service.Approve(ctx, manager, sh.ID)
			Expect(err).NotTo(HaveOccurred())
			_, err = service.Lock(ctx, manager, sh.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(repo.sheets[sh.ID].Status).To(Equal(timesheet.StatusLocked))

			runsBefore := evaluator.runs
			out, err := service.Reopen(ctx, manager, sh.ID, timesheet.ReasonDTO{Reason: "correction needed"})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Status).To(Equal(timesheet.StatusOpen))
			Expect(out.ReopenedBy).To(HaveValue(Equal("manager-1")))
			Expect(evaluator.runs).To(Equal(runsBefore + 1))
		})

		It("reopen succeeds even with standing blocking violations", func() {
			sh := create()
			_, err := service.Submit(ctx, actor, sh.ID)
			Expect(err).NotTo(HaveOccurred())
			_, err = service.Approve(ctx, manager, sh.ID)
			Expect(err).NotTo(HaveOccurred())
			_, err = service.Lock(ctx, manager, sh.ID)
			Expect(err).NotTo(HaveOccurred())

			evaluator.blocked = []internal.BlockedRule{{RuleCode: "MAX_WEEKLY_HOURS", Severity: "critical"}}
			out, err := service.Reopen(ctx, manager, sh.ID, timesheet.ReasonDTO{Reason: "audit finding"})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Status).To(Equal(timesheet.StatusOpen))
		})

		It("refuses to reopen a sheet that is not locked", func() {
			sh := create()
			_, err := service.Reopen(ctx, manager, sh.ID, timesheet.ReasonDTO{Reason: "why not"})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeStateConflict))
		})

		It("requires a reason to reopen", func() {
			sh := create()
			_, err := service.Reopen(ctx, manager, sh.ID, timesheet.ReasonDTO{})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeValidationFailed))
		})
	})
})
