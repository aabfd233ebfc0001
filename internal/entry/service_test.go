package entry_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tverlabs/timekeep/internal"
	"github.com/tverlabs/timekeep/internal/audit"
	"github.com/tverlabs/timekeep/internal/entry"
	"github.com/tverlabs/timekeep/internal/interval"
	"github.com/tverlabs/timekeep/internal/timesheet"
)

func TestEntry(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Entry Suite")
}

type passthroughTx struct{}

func (passthroughTx) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type mockEntryRepo struct {
	entries map[string]*entry.Entry
	getErr  error
}

func newMockEntryRepo() *mockEntryRepo {
	return &mockEntryRepo{entries: map[string]*entry.Entry{}}
}

func (m *mockEntryRepo) Create(_ context.Context, e *entry.Entry) error {
	m.entries[e.ID] = e
	return nil
}

func (m *mockEntryRepo) GetByID(_ context.Context, tenantID, id string) (*entry.Entry, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	e, ok := m.entries[id]
	if !ok || e.TenantID != tenantID || e.IsDeleted {
		return nil, entry.ErrNotFound
	}
	return e, nil
}

func (m *mockEntryRepo) Save(_ context.Context, e *entry.Entry) error {
	m.entries[e.ID] = e
	return nil
}

func (m *mockEntryRepo) ListByTimesheet(_ context.Context, timesheetID string) ([]*entry.Entry, error) {
	var out []*entry.Entry
	for _, e := range m.entries {
		if e.TimesheetID == timesheetID && !e.IsDeleted {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockEntryRepo) ListActiveRegular(_ context.Context, timesheetID string) ([]*entry.Entry, error) {
	var out []*entry.Entry
	for _, e := range m.entries {
		if e.TimesheetID == timesheetID && e.Countable() {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockEntryRepo) ListForUserBetween(_ context.Context, tenantID, userID string, from, to time.Time) ([]*entry.Entry, error) {
	var out []*entry.Entry
	for _, e := range m.entries {
		if e.TenantID == tenantID && e.UserID == userID && e.Countable() &&
			!e.WorkDate.Before(from) && e.WorkDate.Before(to) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockEntryRepo) FindOverlapping(_ context.Context, tenantID, userID string, _, start, end time.Time, excludeID string) (*entry.Entry, error) {
	for _, e := range m.entries {
		if e.TenantID != tenantID || e.UserID != userID || !e.Countable() || e.ID == excludeID {
			continue
		}
		if interval.Overlaps(start, end, e.StartTime, e.EndTime) {
			return e, nil
		}
	}
	return nil, nil
}

func (m *mockEntryRepo) HasAdjustment(_ context.Context, tenantID, originalEntryID string) (bool, error) {
	for _, e := range m.entries {
		if e.TenantID == tenantID && e.IsAdjustment &&
			e.OriginalEntryID != nil && *e.OriginalEntryID == originalEntryID {
			return true, nil
		}
	}
	return false, nil
}

type mockSheetRepo struct {
	sheets map[string]*timesheet.Timesheet
}

func (m *mockSheetRepo) Create(_ context.Context, sh *timesheet.Timesheet) error {
	m.sheets[sh.ID] = sh
	return nil
}

func (m *mockSheetRepo) GetByID(_ context.Context, tenantID, id string) (*timesheet.Timesheet, error) {
	sh, ok := m.sheets[id]
	if !ok || sh.TenantID != tenantID {
		return nil, timesheet.ErrNotFound
	}
	return sh, nil
}

func (m *mockSheetRepo) GetForUpdate(ctx context.Context, tenantID, id string) (*timesheet.Timesheet, error) {
	return m.GetByID(ctx, tenantID, id)
}

func (m *mockSheetRepo) List(_ context.Context, _ string, _ timesheet.ListFilter) ([]*timesheet.Timesheet, error) {
	return nil, nil
}

func (m *mockSheetRepo) Save(_ context.Context, sh *timesheet.Timesheet) error {
	m.sheets[sh.ID] = sh
	return nil
}

func (m *mockSheetRepo) ExistsForWeek(_ context.Context, _, _, _ string, _ time.Time) (bool, error) {
	return false, nil
}

func (m *mockSheetRepo) ListApprovedInPeriod(_ context.Context, _, _ string, _, _ time.Time) ([]*timesheet.Timesheet, error) {
	return nil, nil
}

type nopRecorder struct{}

func (nopRecorder) Record(_ context.Context, _ audit.Event) error { return nil }

var _ = Describe("EntryService", func() {
	var (
		repo    *mockEntryRepo
		sheets  *mockSheetRepo
		service *entry.Service
		actor   *internal.Actor
		ctx     context.Context
	)

	monday := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	window := func(day time.Time, startHour, endHour int) (time.Time, time.Time) {
		return day.Add(time.Duration(startHour) * time.Hour), day.Add(time.Duration(endHour) * time.Hour)
	}

	BeforeEach(func() {
		ctx = context.Background()
		repo = newMockEntryRepo()
		sheets = &mockSheetRepo{sheets: map[string]*timesheet.Timesheet{}}
		service = entry.NewService(passthroughTx{}, repo, sheets, nopRecorder{}, logger)
		actor = &internal.Actor{UserID: "user-1", TenantID: "tenant-1"}

		sheets.sheets["sheet-1"] = &timesheet.Timesheet{
			ID:        "sheet-1",
			TenantID:  "tenant-1",
			ProjectID: "project-1",
			UserID:    "user-1",
			WeekStart: monday,
			WeekEnd:   timesheet.WeekEndFor(monday),
			Status:    timesheet.StatusOpen,
		}
	})

	Describe("Create", func() {
		It("computes net minutes from the window minus break", func() {
			start, end := window(monday, 9, 17)
			e, err := service.Create(ctx, actor, "sheet-1", entry.CreateEntryDTO{
				WorkDate:     monday,
				StartTime:    start,
				EndTime:      end,
				BreakMinutes: 30,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(e.NetMinutes).To(Equal(450))
			Expect(e.Status).To(Equal(entry.StatusActive))
		})

		It("rejects overlapping windows for the same user", func() {
			start, end := window(monday, 9, 12)
			_, err := service.Create(ctx, actor, "sheet-1", entry.CreateEntryDTO{
				WorkDate: monday, StartTime: start, EndTime: end,
			})
			Expect(err).NotTo(HaveOccurred())

			start2, end2 := window(monday, 11, 14)
			_, err = service.Create(ctx, actor, "sheet-1", entry.CreateEntryDTO{
				WorkDate: monday, StartTime: start2, EndTime: end2,
			})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeOverlapConflict))
		})

		It("allows adjacent windows", func() {
			start, end := window(monday, 9, 12)
			_, err := service.Create(ctx, actor, "sheet-1", entry.CreateEntryDTO{
				WorkDate: monday, StartTime: start, EndTime: end,
			})
			Expect(err).NotTo(HaveOccurred())

			start2, end2 := window(monday, 12, 15)
			_, err = service.Create(ctx, actor, "sheet-1", entry.CreateEntryDTO{
				WorkDate: monday, StartTime: start2, EndTime: end2,
			})
			Expect(err).NotTo(HaveOccurred())
		})

		It("rejects a work date outside the timesheet week", func() {
			outside := monday.AddDate(0, 0, 7)
			start, end := window(outside, 9, 12)
			_, err := service.Create(ctx, actor, "sheet-1", entry.CreateEntryDTO{
				WorkDate: outside, StartTime: start, EndTime: end,
			})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeOutsideWeek))
		})

		It("accepts a work date on the last day of the week regardless of time-of-day", func() {
			sunday := monday.AddDate(0, 0, 6)
			start, end := window(sunday, 9, 12)
			e, err := service.Create(ctx, actor, "sheet-1", entry.CreateEntryDTO{
				WorkDate: sunday.Add(10 * time.Hour), StartTime: start, EndTime: end,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(e.WorkDate).To(Equal(sunday))
		})

		It("rejects entries on a submitted timesheet", func() {
			sheets.sheets["sheet-1"].Status = timesheet.StatusSubmitted
			start, end := window(monday, 9, 12)
			_, err := service.Create(ctx, actor, "sheet-1", entry.CreateEntryDTO{
				WorkDate: monday, StartTime: start, EndTime: end,
			})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeStateConflict))
		})

		It("rejects entries by someone other than the sheet owner", func() {
			other := &internal.Actor{UserID: "user-2", TenantID: "tenant-1"}
			start, end := window(monday, 9, 12)
			_, err := service.Create(ctx, other, "sheet-1", entry.CreateEntryDTO{
				WorkDate: monday, StartTime: start, EndTime: end,
			})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeOwnerMismatch))
		})
	})

	Describe("Update", func() {
		It("recomputes net minutes and allows shrinking into its own slot", func() {
			start, end := window(monday, 9, 17)
			e, err := service.Create(ctx, actor, "sheet-1", entry.CreateEntryDTO{
				WorkDate: monday, StartTime: start, EndTime: end, BreakMinutes: 60,
			})
			Expect(err).NotTo(HaveOccurred())

			newEnd := monday.Add(16 * time.Hour)
			updated, err := service.Update(ctx, actor, e.ID, entry.UpdateEntryDTO{EndTime: &newEnd})
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.NetMinutes).To(Equal(360))
		})

		It("rejects an update that collides with another entry", func() {
			s1, e1 := window(monday, 9, 12)
			first, err := service.Create(ctx, actor, "sheet-1", entry.CreateEntryDTO{
				WorkDate: monday, StartTime: s1, EndTime: e1,
			})
			Expect(err).NotTo(HaveOccurred())
			s2, e2 := window(monday, 13, 15)
			_, err = service.Create(ctx, actor, "sheet-1", entry.CreateEntryDTO{
				WorkDate: monday, StartTime: s2, EndTime: e2,
			})
			Expect(err).NotTo(HaveOccurred())

			newEnd := monday.Add(14 * time.Hour)
			_, err = service.Update(ctx, actor, first.ID, entry.UpdateEntryDTO{EndTime: &newEnd})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeOverlapConflict))
		})
	})

	Describe("Delete", func() {
		It("soft-deletes an entry on an open sheet", func() {
			start, end := window(monday, 9, 12)
			e, err := service.Create(ctx, actor, "sheet-1", entry.CreateEntryDTO{
				WorkDate: monday, StartTime: start, EndTime: end,
			})
			Expect(err).NotTo(HaveOccurred())

			Expect(service.Delete(ctx, actor, e.ID)).To(Succeed())
			_, err = service.Get(ctx, actor, e.ID)
			Expect(err).To(MatchError(entry.ErrNotFound))
		})

		It("refuses to delete an entry that has an adjustment", func() {
			start, end := window(monday, 9, 12)
			e, err := service.Create(ctx, actor, "sheet-1", entry.CreateEntryDTO{
				WorkDate: monday, StartTime: start, EndTime: end,
			})
			Expect(err).NotTo(HaveOccurred())

			sheets.sheets["sheet-1"].Status = timesheet.StatusLocked
			_, err = service.CreateAdjustment(ctx, actor, "sheet-1", entry.CreateAdjustmentDTO{
				OriginalEntryID: e.ID,
				DeltaMinutes:    -15,
			})
			Expect(err).NotTo(HaveOccurred())

			sheets.sheets["sheet-1"].Status = timesheet.StatusOpen
			err = service.Delete(ctx, actor, e.ID)
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeEntryNotAdjustable))
		})
	})

	Describe("CreateAdjustment", func() {
		var original *entry.Entry

		BeforeEach(func() {
			start, end := window(monday, 9, 17)
			var err error
			original, err = service.Create(ctx, actor, "sheet-1", entry.CreateEntryDTO{
				WorkDate: monday, StartTime: start, EndTime: end, BreakMinutes: 60,
			})
			Expect(err).NotTo(HaveOccurred())
			sheets.sheets["sheet-1"].Status = timesheet.StatusLocked
		})

		It("records a signed delta against the original entry", func() {
			adj, err := service.CreateAdjustment(ctx, actor, "sheet-1", entry.CreateAdjustmentDTO{
				OriginalEntryID: original.ID,
				DeltaMinutes:    -30,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(adj.IsAdjustment).To(BeTrue())
			Expect(adj.NetMinutes).To(Equal(-30))
			Expect(adj.DeltaMinutes).To(HaveValue(Equal(-30)))
			Expect(adj.OriginalEntryID).To(HaveValue(Equal(original.ID)))
			Expect(adj.Description).To(HaveValue(ContainSubstring(original.ID)))
		})

		It("requires the timesheet to be locked", func() {
			sheets.sheets["sheet-1"].Status = timesheet.StatusApproved
			_, err := service.CreateAdjustment(ctx, actor, "sheet-1", entry.CreateAdjustmentDTO{
				OriginalEntryID: original.ID,
				DeltaMinutes:    30,
			})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeStateConflict))
		})

		It("requires an existing original entry", func() {
			_, err := service.CreateAdjustment(ctx, actor, "sheet-1", entry.CreateAdjustmentDTO{
				OriginalEntryID: "missing",
				DeltaMinutes:    30,
			})
			Expect(err).To(MatchError(entry.ErrOriginalNotFound))
		})

		It("surfaces repository failures when looking up the original", func() {
			repo.getErr = errors.New("connection reset")
			_, err := service.CreateAdjustment(ctx, actor, "sheet-1", entry.CreateAdjustmentDTO{
				OriginalEntryID: original.ID,
				DeltaMinutes:    30,
			})
			Expect(err).To(MatchError(repo.getErr))
			Expect(err).NotTo(MatchError(entry.ErrOriginalNotFound))
		})

		It("rejects a zero delta", func() {
			_, err := service.CreateAdjustment(ctx, actor, "sheet-1", entry.CreateAdjustmentDTO{
				OriginalEntryID: original.ID,
				DeltaMinutes:    0,
			})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeValidationFailed))
		})

		It("skips the overlap check against the original window", func() {
			adj, err := service.CreateAdjustment(ctx, actor, "sheet-1", entry.CreateAdjustmentDTO{
				OriginalEntryID: original.ID,
				DeltaMinutes:    45,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(adj.StartTime).To(Equal(original.StartTime))
			Expect(adj.EndTime).To(Equal(original.EndTime))
		})
	})
})
