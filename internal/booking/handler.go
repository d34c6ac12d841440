package booking

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/flowbill/flowbill/internal/platform/httpx"
	"github.com/flowbill/flowbill/internal/shared"
)

// Handler manages booking endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers booking routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/stores", h.provisionStore)
	r.Post("/managers/{id}/activate", h.activateManager)
	r.Post("/managers/{id}/deactivate", h.deactivateManager)
	r.Post("/managers/{id}/verify-passcode", h.verifyPasscode)
	r.Get("/service-categories", h.listServiceCategories)
	r.Post("/service-categories", h.createServiceCategory)
	r.Get("/offerings", h.listOfferings)
	r.Post("/offerings", h.createOffering)
	r.Get("/slots", h.listTimeSlots)
	r.Post("/slots", h.createTimeSlot)
	r.Get("/", h.search)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Get("/{id}/history", h.history)
	r.Patch("/{id}/status", h.updateStatus)
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrStatusTransition):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrPasscode):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "passcode rejected")
	default:
		h.logger.Error("booking request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func bookingID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "id"))
}

func (h *Handler) provisionStore(w http.ResponseWriter, r *http.Request) {
	var input ProvisionInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	store, manager, err := h.service.ProvisionStore(r.Context(), input)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"store": store, "manager": manager})
}

func (h *Handler) setManagerActive(w http.ResponseWriter, r *http.Request, active bool) {
	id, err := bookingID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "manager id must be a UUID")
		return
	}
	if err := h.service.SetManagerActive(r.Context(), id, active); err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"is_active": active})
}

func (h *Handler) activateManager(w http.ResponseWriter, r *http.Request) {
	h.setManagerActive(w, r, true)
}

func (h *Handler) deactivateManager(w http.ResponseWriter, r *http.Request) {
	h.setManagerActive(w, r, false)
}

func (h *Handler) verifyPasscode(w http.ResponseWriter, r *http.Request) {
	id, err := bookingID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "manager id must be a UUID")
		return
	}
	var payload struct {
		Passcode string `json:"passcode"`
	}
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.service.VerifyManagerPasscode(r.Context(), id, payload.Passcode); err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"verified": true})
}

func (h *Handler) createServiceCategory(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name string `json:"name"`
	}
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	created, err := h.service.CreateServiceCategory(r.Context(), payload.Name)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) listServiceCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.ListServiceCategories(r.Context())
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"categories": categories})
}

func (h *Handler) createOffering(w http.ResponseWriter, r *http.Request) {
	var input OfferingInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	created, err := h.service.CreateOffering(r.Context(), input)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) listOfferings(w http.ResponseWriter, r *http.Request) {
	var categoryID int64
	if v := r.URL.Query().Get("category_id"); v != "" {
		categoryID, _ = strconv.ParseInt(v, 10, 64)
	}
	offerings, err := h.service.ListOfferings(r.Context(), categoryID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"offerings": offerings})
}

func (h *Handler) createTimeSlot(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Label string `json:"label"`
	}
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	created, err := h.service.CreateTimeSlot(r.Context(), payload.Label)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) listTimeSlots(w http.ResponseWriter, r *http.Request) {
	slots, err := h.service.ListTimeSlots(r.Context())
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"slots": slots})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var input CreateInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	created, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := bookingID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "booking id must be a UUID")
		return
	}
	b, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, b)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	id, err := bookingID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "booking id must be a UUID")
		return
	}
	entries, err := h.service.StatusHistory(r.Context(), id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"history": entries})
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := SearchFilter{CustomerName: q.Get("customer")}
	if v := q.Get("store_id"); v != "" {
		if id, err := uuid.Parse(v); err == nil {
			filter.StoreID = &id
		}
	}
	if v := q.Get("status"); v != "" {
		status, err := ParseStatus(v)
		if err != nil {
			h.respondErr(w, err)
			return
		}
		filter.Status = status
	}
	if v := q.Get("service_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			filter.ServiceID = &id
		}
	}
	if v := q.Get("from"); v != "" {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			filter.DateFrom = &t
		}
	}
	if v := q.Get("to"); v != "" {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			filter.DateTo = &t
		}
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))

	bookings, total, err := h.service.Search(r.Context(), filter)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	page := shared.NewPagination(filter.Offset/maxInt(filter.Limit, 1)+1, filter.Limit, total)
	httpx.JSON(w, http.StatusOK, map[string]any{"bookings": bookings, "total": total, "pagination": page})
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := bookingID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "booking id must be a UUID")
		return
	}
	var payload struct {
		Status string `json:"status"`
	}
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	status, err := ParseStatus(payload.Status)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	updated, err := h.service.UpdateStatus(r.Context(), id, status, shared.Actor(r))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}
