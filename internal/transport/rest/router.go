package rest

import (
	"crypto/rsa"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"
	"github.com/jmoiron/sqlx"

	"github.com/tverlabs/timekeep/internal/compliance"
	"github.com/tverlabs/timekeep/internal/entry"
	"github.com/tverlabs/timekeep/internal/payroll"
	"github.com/tverlabs/timekeep/internal/timesheet"
	"github.com/tverlabs/timekeep/internal/transport/middleware"
	"github.com/tverlabs/timekeep/internal/transport/swagger"
)

type Handlers struct {
	Timesheet  *timesheet.Handler
	Entry      *entry.Handler
	Compliance *compliance.Handler
	Payroll    *payroll.Handler
}

// RegisterAllRoutes wires the full API surface. Everything under /api/v1
// except health requires a valid bearer token; manager-only routes stack a
// permission check on top.
func RegisterAllRoutes(router *chi.Mux, db *sqlx.DB, publicKey *rsa.PublicKey, h Handlers, logger *slog.Logger) {
	healthHandler := NewHealthHandler(db)

	router.Use(middleware.CORS)
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))

	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yml")
	})
	router.Handle("/swagger/*", swagger.Handler())

	approver := middleware.RequireAnyPermission("approve_timesheets", "admin")
	payrollManager := middleware.RequireAnyPermission("manage_payroll", "admin")

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		r.Group(func(r chi.Router) {
			r.Use(middleware.BearerAuth(publicKey, logger))

			r.Route("/timesheets", func(sr chi.Router) {
				sr.Post("/", h.Timesheet.CreateTimesheet)
				sr.Get("/", h.Timesheet.ListTimesheets)
				sr.Get("/{id}", h.Timesheet.GetTimesheet)
				sr.Post("/{id}/submit", h.Timesheet.SubmitTimesheet)

				sr.With(approver).Post("/{id}/approve", h.Timesheet.ApproveTimesheet)
				sr.With(approver).Post("/{id}/reject", h.Timesheet.RejectTimesheet)
				sr.With(approver).Post("/{id}/lock", h.Timesheet.LockTimesheet)
				sr.With(approver).Post("/{id}/reopen", h.Timesheet.ReopenTimesheet)

				sr.Post("/{id}/entries", h.Entry.CreateEntry)
				sr.Get("/{id}/entries", h.Entry.ListEntries)
				sr.With(approver).Post("/{id}/adjustments", h.Entry.CreateAdjustment)

				sr.Get("/{id}/compliance", h.Compliance.ListTimesheetResults)
				sr.Post("/{id}/compliance/evaluate", h.Compliance.EvaluateTimesheet)
			})

			r.Route("/entries", func(sr chi.Router) {
				sr.Get("/{id}", h.Entry.GetEntry)
				sr.Patch("/{id}", h.Entry.UpdateEntry)
				sr.Delete("/{id}", h.Entry.DeleteEntry)
			})

			r.Route("/compliance", func(sr chi.Router) {
				sr.Get("/rules", h.Compliance.ListRules)
				sr.Get("/rules/{id}", h.Compliance.GetRule)
				sr.With(approver).Post("/rules", h.Compliance.CreateRule)
				sr.With(approver).Patch("/rules/{id}", h.Compliance.UpdateRule)
				sr.With(approver).Post("/results/{id}/resolve", h.Compliance.ResolveViolation)
			})

			r.Route("/payroll/exports", func(sr chi.Router) {
				sr.Use(payrollManager)
				sr.Post("/", h.Payroll.GenerateExport)
				sr.Get("/", h.Payroll.ListExports)
				sr.Get("/{id}", h.Payroll.GetExport)
				sr.Get("/{id}/lines", h.Payroll.ListExportLines)
				sr.Post("/{id}/send", h.Payroll.SendExport)
				sr.Post("/{id}/void", h.Payroll.VoidExport)
			})
		})
	})
}
