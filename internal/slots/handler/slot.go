package handler

import (
	"net/http"

	"medislot/internal/slots/service"
	"medislot/pkg/auth"
	httputil "medislot/pkg/http"
	"medislot/pkg/logger"
	"medislot/pkg/middleware"
	"medislot/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type SlotHandler struct {
	service service.SlotService
	guard   *middleware.Guard
	log     *logger.Logger
}

func NewSlotHandler(service service.SlotService, guard *middleware.Guard, log *logger.Logger) *SlotHandler {
	return &SlotHandler{
		service: service,
		guard:   guard,
		log:     log,
	}
}

func (h *SlotHandler) ListAvailable(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	query := r.URL.Query()

	tr, err := service.ParseRange(query.Get("from"), query.Get("to"))
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "ListAvailable", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	slots, err := h.service.ListAvailable(r.Context(), tr)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "ListAvailable", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	available := make([]model.AvailableSlot, 0, len(slots))
	for _, s := range slots {
		available = append(available, s.Available())
	}

	if err := httputil.WriteSuccess(w, available); err != nil {
		h.log.Error("failed to write success response", "handler", "ListAvailable", "operation", "WriteSuccess", "error", err)
	}
}

func (h *SlotHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	slot, err := h.service.Get(r.Context(), ps.ByName("id"))
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "GetByID", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, slot); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByID", "operation", "WriteSuccess", "error", err)
	}
}

func (h *SlotHandler) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var input model.SlotInput
	if err := httputil.DecodeJSON(r, &input); err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Create", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	slot, err := h.service.Create(r.Context(), &input)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Create", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteCreated(w, slot); err != nil {
		h.log.Error("failed to write created response", "handler", "Create", "operation", "WriteCreated", "error", err)
	}
}

func (h *SlotHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/slots", h.guard.Authenticated(h.ListAvailable))
	router.GET("/api/slots/:id", h.guard.Authenticated(h.GetByID))
	router.POST("/api/slots", h.guard.RequireRole(auth.RoleAdmin, h.Create))
}
