package timesheet

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"

	"github.com/tverlabs/timekeep/internal"
	"github.com/tverlabs/timekeep/internal/transport"
	"github.com/tverlabs/timekeep/pkg/logger"
)

type ServiceAPI interface {
	Create(ctx context.Context, actor *internal.Actor, dto CreateTimesheetDTO) (*Timesheet, error)
	Get(ctx context.Context, actor *internal.Actor, id string) (*Timesheet, error)
	List(ctx context.Context, actor *internal.Actor, filter ListFilter) ([]*Timesheet, error)
	Submit(ctx context.Context, actor *internal.Actor, id string) (*Timesheet, error)
	Approve(ctx context.Context, actor *internal.Actor, id string) (*Timesheet, error)
	Reject(ctx context.Context, actor *internal.Actor, id string, dto ReasonDTO) (*Timesheet, error)
	Lock(ctx context.Context, actor *internal.Actor, id string) (*Timesheet, error)
	Reopen(ctx context.Context, actor *internal.Actor, id string, dto ReasonDTO) (*Timesheet, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(service ServiceAPI) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     service,
	}
}

func (h *Handler) CreateTimesheet(w http.ResponseWriter, r *http.Request) {
	actor, ok := internal.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var dto CreateTimesheetDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("CreateTimesheet: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sheet, err := h.Service.Create(r.Context(), actor, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, sheet)
}

func (h *Handler) GetTimesheet(w http.ResponseWriter, r *http.Request) {
	actor, ok := internal.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	sheet, err := h.Service.Get(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, sheet)
}

func (h *Handler) ListTimesheets(w http.ResponseWriter, r *http.Request) {
	actor, ok := internal.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	filter := ListFilter{
		ProjectID: r.URL.Query().Get("project_id"),
		UserID:    r.URL.Query().Get("user_id"),
		Status:    r.URL.Query().Get("status"),
	}
	// Non-managers only see their own sheets.
	if !actor.IsManager() {
		filter.UserID = actor.UserID
	}

	sheets, err := h.Service.List(r.Context(), actor, filter)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"timesheets": sheets})
}

func (h *Handler) SubmitTimesheet(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, h.Service.Submit)
}

func (h *Handler) ApproveTimesheet(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, h.Service.Approve)
}

func (h *Handler) LockTimesheet(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, h.Service.Lock)
}

func (h *Handler) RejectTimesheet(w http.ResponseWriter, r *http.Request) {
	h.runReasonTransition(w, r, h.Service.Reject)
}

func (h *Handler) ReopenTimesheet(w http.ResponseWriter, r *http.Request) {
	h.runReasonTransition(w, r, h.Service.Reopen)
}

func (h *Handler) runTransition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, actor *internal.Actor, id string) (*Timesheet, error)) {
	actor, ok := internal.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	sheet, err := fn(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, sheet)
}

func (h *Handler) runReasonTransition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, actor *internal.Actor, id string, dto ReasonDTO) (*Timesheet, error)) {
	actor, ok := internal.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var dto ReasonDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sheet, err := fn(r.Context(), actor, chi.URLParam(r, "id"), dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, sheet)
}
