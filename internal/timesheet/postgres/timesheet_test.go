package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tverlabs/timekeep/internal/timesheet"
)

func TestTimesheetRepository(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "TimesheetRepository Suite")
}

type SQLiteTimesheet struct {
	ID          string     `gorm:"primaryKey"`
	TenantID    string     `gorm:"column:tenant_id;not null"`
	ProjectID   string     `gorm:"column:project_id;not null"`
	UserID      string     `gorm:"column:user_id;not null"`
	WeekStart   time.Time  `gorm:"column:week_start;not null"`
	WeekEnd     time.Time  `gorm:"column:week_end;not null"`
	Status      string     `gorm:"column:status;default:'open'"`
	SubmittedAt *time.Time `gorm:"column:submitted_at"`
	SubmittedBy *string    `gorm:"column:submitted_by"`
	ApprovedAt  *time.Time `gorm:"column:approved_at"`
	ApprovedBy  *string    `gorm:"column:approved_by"`
	LockedAt    *time.Time `gorm:"column:locked_at"`
	LockedBy    *string    `gorm:"column:locked_by"`
	ReopenedAt  *time.Time `gorm:"column:reopened_at"`
	ReopenedBy  *string    `gorm:"column:reopened_by"`
	IsDeleted   bool       `gorm:"column:is_deleted;default:false"`
	CreatedAt   time.Time  `gorm:"column:created_at"`
	UpdatedAt   time.Time  `gorm:"column:updated_at"`
}

func (SQLiteTimesheet) TableName() string {
	return "timesheets"
}

var _ = Describe("TimesheetRepository", func() {
	var (
		db   *gorm.DB
		repo timesheet.Repository
		ctx  context.Context

		monday time.Time
		sunday time.Time
	)

	newSheet := func(projectID, userID string) *timesheet.Timesheet {
		return &timesheet.Timesheet{
			ID:        uuid.NewString(),
			TenantID:  "tenant-1",
			ProjectID: projectID,
			UserID:    userID,
			WeekStart: monday,
			WeekEnd:   sunday,
			Status:    timesheet.StatusOpen,
		}
	}

	BeforeEach(func() {
		var err error

		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
		Expect(err).NotTo(HaveOccurred())

		err = db.AutoMigrate(&SQLiteTimesheet{})
		Expect(err).NotTo(HaveOccurred())

		repo = NewTimesheetRepository(db)
		ctx = context.Background()

		monday = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
		sunday = monday.AddDate(0, 0, 6)
	})

	AfterEach(func() {
		sqlDB, err := db.DB()
		Expect(err).NotTo(HaveOccurred())
		err = sqlDB.Close()
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Create and GetByID", func() {
		It("should round-trip a timesheet", func() {
			sheet := newSheet("proj-1", "user-1")
			err := repo.Create(ctx, sheet)
			Expect(err).NotTo(HaveOccurred())

			retrieved, err := repo.GetByID(ctx, "tenant-1", sheet.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(retrieved.ProjectID).To(Equal("proj-1"))
			Expect(retrieved.UserID).To(Equal("user-1"))
			Expect(retrieved.Status).To(Equal(timesheet.StatusOpen))
			Expect(retrieved.WeekStart.Format("2006-01-02")).To(Equal("2026-03-02"))
		})

		It("should not leak sheets across tenants", func() {
			sheet := newSheet("proj-1", "user-1")
			Expect(repo.Create(ctx, sheet)).To(Succeed())

			retrieved, err := repo.GetByID(ctx, "other-tenant", sheet.ID)
			Expect(err).To(Equal(timesheet.ErrNotFound))
			Expect(retrieved).To(BeNil())
		})

		It("should return ErrNotFound for unknown id", func() {
			retrieved, err := repo.GetByID(ctx, "tenant-1", "missing")
			Expect(err).To(Equal(timesheet.ErrNotFound))
			Expect(retrieved).To(BeNil())
		})
	})

	Describe("Save", func() {
		It("should persist state transitions", func() {
			sheet := newSheet("proj-1", "user-1")
			Expect(repo.Create(ctx, sheet)).To(Succeed())

			now := time.Now().UTC()
			by := "user-1"
			sheet.Status = timesheet.StatusSubmitted
			sheet.SubmittedAt = &now
			sheet.SubmittedBy = &by
			Expect(repo.Save(ctx, sheet)).To(Succeed())

			retrieved, err := repo.GetByID(ctx, "tenant-1", sheet.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(retrieved.Status).To(Equal(timesheet.StatusSubmitted))
			Expect(retrieved.SubmittedAt).NotTo(BeNil())
			Expect(retrieved.SubmittedBy).To(Equal(&by))
		})
	})

	Describe("ExistsForWeek", func() {
		It("should detect an existing sheet for the same week", func() {
			Expect(repo.Create(ctx, newSheet("proj-1", "user-1"))).To(Succeed())

			exists, err := repo.ExistsForWeek(ctx, "tenant-1", "proj-1", "user-1", monday)
			Expect(err).NotTo(HaveOccurred())
			Expect(exists).To(BeTrue())
		})

		It("should report false for a different week", func() {
			Expect(repo.Create(ctx, newSheet("proj-1", "user-1"))).To(Succeed())

			exists, err := repo.ExistsForWeek(ctx, "tenant-1", "proj-1", "user-1", monday.AddDate(0, 0, 7))
			Expect(err).NotTo(HaveOccurred())
			Expect(exists).To(BeFalse())
		})
	})

	Describe("List", func() {
		BeforeEach(func() {
			s1 := newSheet("proj-1", "user-1")
			s2 := newSheet("proj-1", "user-2")
			s2.Status = timesheet.StatusApproved
			s3 := newSheet("proj-2", "user-1")
			for _, s := range []*timesheet.Timesheet{s1, s2, s3} {
				Expect(repo.Create(ctx, s)).To(Succeed())
			}
		})

		It("should filter by project", func() {
			sheets, err := repo.List(ctx, "tenant-1", timesheet.ListFilter{ProjectID: "proj-1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(sheets).To(HaveLen(2))
		})

		It("should filter by user and status", func() {
			sheets, err := repo.List(ctx, "tenant-1", timesheet.ListFilter{
				UserID: "user-2",
				Status: string(timesheet.StatusApproved),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(sheets).To(HaveLen(1))
			Expect(sheets[0].UserID).To(Equal("user-2"))
		})
	})

	Describe("ListApprovedInPeriod", func() {
		It("should return only approved sheets fully inside the period", func() {
			approved := newSheet("proj-1", "user-1")
			approved.Status = timesheet.StatusApproved
			open := newSheet("proj-1", "user-2")
			outside := newSheet("proj-1", "user-3")
			outside.Status = timesheet.StatusApproved
			outside.WeekStart = monday.AddDate(0, 0, 14)
			outside.WeekEnd = outside.WeekStart.AddDate(0, 0, 6)
			for _, s := range []*timesheet.Timesheet{approved, open, outside} {
				Expect(repo.Create(ctx, s)).To(Succeed())
			}

			sheets, err := repo.ListApprovedInPeriod(ctx, "tenant-1", "proj-1", monday, sunday)
			Expect(err).NotTo(HaveOccurred())
			Expect(sheets).To(HaveLen(1))
			Expect(sheets[0].ID).To(Equal(approved.ID))
		})
	})
})
