package handler

import (
	"net/http"
	"time"

	"medislot/internal/bookings/export"
	"medislot/internal/bookings/service"
	"medislot/pkg/auth"
	httputil "medislot/pkg/http"
	"medislot/pkg/logger"
	"medislot/pkg/middleware"
	"medislot/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type BookingHandler struct {
	engine service.ReservationEngine
	ledger service.BookingLedger
	guard  *middleware.Guard
	loc    *time.Location
	log    *logger.Logger
}

// NewBookingHandler serves the booking endpoints. loc is the zone used for
// exported spreadsheets; JSON times are always UTC.
func NewBookingHandler(
	engine service.ReservationEngine,
	ledger service.BookingLedger,
	guard *middleware.Guard,
	loc *time.Location,
	log *logger.Logger,
) *BookingHandler {
	return &BookingHandler{
		engine: engine,
		ledger: ledger,
		guard:  guard,
		loc:    loc,
		log:    log,
	}
}

func (h *BookingHandler) Reserve(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req model.ReserveRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Reserve", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	booking, err := h.engine.Reserve(r.Context(), &req)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Reserve", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteCreated(w, booking); err != nil {
		h.log.Error("failed to write created response", "handler", "Reserve", "operation", "WriteCreated", "error", err)
	}
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	booking, err := h.engine.Cancel(r.Context(), ps.ByName("id"))
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Cancel", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, booking); err != nil {
		h.log.Error("failed to write success response", "handler", "Cancel", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) ListMine(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	views, err := h.ledger.ListForActor(r.Context())
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "ListMine", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, nonNil(views)); err != nil {
		h.log.Error("failed to write success response", "handler", "ListMine", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) ListAll(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	views, err := h.ledger.ListAll(r.Context())
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "ListAll", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, nonNil(views)); err != nil {
		h.log.Error("failed to write success response", "handler", "ListAll", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) ExportAll(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	views, err := h.ledger.ListAll(r.Context())
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "ExportAll", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="bookings.xlsx"`)
	if err := export.WriteLedger(w, views, h.loc); err != nil {
		h.log.Error("failed to write bookings export", "handler", "ExportAll", "operation", "WriteLedger", "error", err)
	}
}

// nonNil keeps empty listings encoded as [] rather than null.
func nonNil(views []*model.BookingView) []*model.BookingView {
	if views == nil {
		return []*model.BookingView{}
	}
	return views
}

func (h *BookingHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/book", h.guard.RequireRole(auth.RolePatient, h.Reserve))
	router.POST("/api/bookings/:id/cancel", h.guard.Authenticated(h.Cancel))
	router.GET("/api/my-bookings", h.guard.Authenticated(h.ListMine))
	router.GET("/api/all-bookings", h.guard.RequireRole(auth.RoleAdmin, h.ListAll))
	router.GET("/api/all-bookings/export", h.guard.RequireRole(auth.RoleAdmin, h.ExportAll))
}
