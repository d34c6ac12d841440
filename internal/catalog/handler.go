package catalog

import (
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/flowbill/flowbill/internal/platform/httpx"
	"github.com/flowbill/flowbill/internal/shared"
)

// Handler manages catalog endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/items", h.list)
	r.Post("/items", h.create)
	r.Get("/items/{kind}/{id}", h.get)
	r.Put("/items/{kind}/{id}", h.update)
	r.Delete("/items/{kind}/{id}", h.remove)
	r.Post("/items/{kind}/{id}/adjust-stock", h.adjustStock)
	r.Post("/bulk", h.bulkUpload)
}

func refFromURL(r *http.Request) (ItemRef, error) {
	kind, err := ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		return ItemRef{}, err
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return ItemRef{}, ErrValidation
	}
	return ItemRef{Kind: kind, ID: id}, nil
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		var batch *BatchError
		if errors.As(err, &batch) {
			httpx.ProblemWithErrors(w, http.StatusBadRequest, "Validation Failed", batch.Error(), batch.Rows)
			return
		}
		h.logger.Error("catalog request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		BrandName: q.Get("brand_name"),
		Molecule:  q.Get("molecule"),
		UOM:       q.Get("uom"),
		Color:     q.Get("color"),
	}
	if v := q.Get("kind"); v != "" {
		kind, err := ParseKind(v)
		if err != nil {
			h.respondErr(w, err)
			return
		}
		filter.Kind = kind
	}
	if v := q.Get("category_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			filter.CategoryID = &id
		}
	}
	if v := q.Get("is_active"); v != "" {
		active := v == "true"
		filter.IsActive = &active
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))

	items, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items, "total": total})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	ref, err := refFromURL(r)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	item, err := h.service.Get(r.Context(), ref)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var item Item
	if err := httpx.DecodeJSON(r, &item); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	created, err := h.service.Create(r.Context(), item)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	ref, err := refFromURL(r)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	var item Item
	if err := httpx.DecodeJSON(r, &item); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.service.Update(r.Context(), ref, item); err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"updated": true})
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	ref, err := refFromURL(r)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), ref); err != nil {
		h.respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) adjustStock(w http.ResponseWriter, r *http.Request) {
	ref, err := refFromURL(r)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	var payload struct {
		Delta int64 `json:"delta"`
	}
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	stock, err := h.service.AdjustStock(r.Context(), ref, payload.Delta)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"stock": stock})
}

// bulkUpload accepts either a JSON array of rows or a CSV file under the
// "file" form field.
func (h *Handler) bulkUpload(w http.ResponseWriter, r *http.Request) {
	requestID := r.URL.Query().Get("request_id")
	var rows []BulkRow

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := httpx.DecodeJSON(r, &rows); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "provide a JSON array or CSV file")
			return
		}
	} else {
		if err := r.ParseMultipartForm(8 << 20); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "provide a JSON array or CSV file")
			return
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "provide a JSON array or CSV file")
			return
		}
		defer file.Close()
		if requestID == "" {
			requestID = r.FormValue("request_id")
		}
		rows, err = ParseBulkCSV(file)
		if err != nil {
			h.respondErr(w, err)
			return
		}
	}

	result, err := h.service.BulkIngest(r.Context(), rows, requestID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}
