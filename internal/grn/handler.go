package grn

import (
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/flowbill/flowbill/internal/platform/httpx"
)

// Handler wires HTTP endpoints for receipt creation.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers receipt routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/warehouse", h.createWarehouse)
	r.Post("/branch", h.createBranch)
	r.Post("/warehouse/upload-csv", h.uploadWarehouseCSV)
	r.Post("/branch/upload-csv", h.uploadBranchCSV)
	r.Get("/{id}", h.get)
}

type warehouseRequest struct {
	PurchaseOrderID int64  `json:"purchase_order_id" validate:"required,gt=0"`
	RequestID       string `json:"request_id" validate:"required"`
	Rows            []Row  `json:"rows" validate:"required,min=1"`
}

type branchRequest struct {
	DispatchID int64       `json:"dispatch_id" validate:"required,gt=0"`
	RequestID  string      `json:"request_id" validate:"required"`
	Rows       []BranchRow `json:"rows" validate:"required,min=1"`
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrPONotFound), errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrPOCancelled):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrValidation), errors.Is(err, ErrLineNotFound), errors.Is(err, ErrItemKindMismatch):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		var batch *BatchError
		if errors.As(err, &batch) {
			httpx.ProblemWithErrors(w, http.StatusBadRequest, "Validation Failed", batch.Error(), batch.Rows)
			return
		}
		h.logger.Error("grn request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func (h *Handler) respondResult(w http.ResponseWriter, result Result) {
	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	httpx.JSON(w, status, result)
}

func (h *Handler) createWarehouse(w http.ResponseWriter, r *http.Request) {
	var req warehouseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := h.service.CreateWarehouseGRN(r.Context(), req.PurchaseOrderID, req.Rows, req.RequestID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	h.respondResult(w, result)
}

func (h *Handler) createBranch(w http.ResponseWriter, r *http.Request) {
	var req branchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := h.service.CreateBranchGRN(r.Context(), req.DispatchID, req.Rows, req.RequestID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	h.respondResult(w, result)
}

// uploadForm extracts the shared multipart fields of the CSV endpoints.
func (h *Handler) uploadForm(w http.ResponseWriter, r *http.Request, idField string) (int64, string, multipart.File, bool) {
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "multipart form with a file field required")
		return 0, "", nil, false
	}
	id, err := strconv.ParseInt(r.FormValue(idField), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", idField+" is required")
		return 0, "", nil, false
	}
	requestID := r.FormValue("request_id")
	if requestID == "" {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "request_id is required")
		return 0, "", nil, false
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "file field is required")
		return 0, "", nil, false
	}
	return id, requestID, file, true
}

func (h *Handler) uploadWarehouseCSV(w http.ResponseWriter, r *http.Request) {
	poID, requestID, file, ok := h.uploadForm(w, r, "purchase_order_id")
	if !ok {
		return
	}
	defer file.Close()

	rows, err := ParseWarehouseCSV(file)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	result, err := h.service.CreateWarehouseGRN(r.Context(), poID, rows, requestID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	h.respondResult(w, result)
}

func (h *Handler) uploadBranchCSV(w http.ResponseWriter, r *http.Request) {
	dispatchID, requestID, file, ok := h.uploadForm(w, r, "dispatch_id")
	if !ok {
		return
	}
	defer file.Close()

	rows, err := ParseBranchCSV(file)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	result, err := h.service.CreateBranchGRN(r.Context(), dispatchID, rows, requestID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	h.respondResult(w, result)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "grn id must be numeric")
		return
	}
	g, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, g)
}
