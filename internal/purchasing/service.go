package purchasing

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/flowbill/flowbill/internal/catalog"
	"github.com/flowbill/flowbill/internal/shared"
)

// AuditPort records state transitions for traceability.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	Create(ctx context.Context, po PurchaseOrder) (PurchaseOrder, error)
	Get(ctx context.Context, id int64) (Detail, error)
	List(ctx context.Context, filter ListFilter) ([]Detail, int, error)
	UpdateStatus(ctx context.Context, id int64, status Status) error
	RecomputeTotal(ctx context.Context, id int64) error
	VendorExists(ctx context.Context, vendorID int64) (bool, error)
	ItemExists(ctx context.Context, ref catalog.ItemRef) (bool, error)
}

// Service coordinates purchase order operations.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	logger *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, logger: logger}
}

// CreateInput is the write shape for new purchase orders.
type CreateInput struct {
	VendorID  int64               `json:"vendor_id" validate:"required,gt=0"`
	OrderDate time.Time           `json:"order_date"`
	Items     []PurchaseOrderItem `json:"items" validate:"required,min=1"`
}

// Create validates each line against the catalog, derives subtotals and the
// order total, and persists everything in one transaction.
func (s *Service) Create(ctx context.Context, input CreateInput) (PurchaseOrder, error) {
	if input.VendorID <= 0 {
		return PurchaseOrder{}, fmt.Errorf("%w: vendor is required", ErrValidation)
	}
	if len(input.Items) == 0 {
		return PurchaseOrder{}, fmt.Errorf("%w: at least one item required", ErrValidation)
	}
	ok, err := s.repo.VendorExists(ctx, input.VendorID)
	if err != nil {
		return PurchaseOrder{}, err
	}
	if !ok {
		return PurchaseOrder{}, fmt.Errorf("%w: vendor %d not found or inactive", ErrValidation, input.VendorID)
	}

	total := decimal.Zero
	for i := range input.Items {
		item := &input.Items[i]
		if err := item.Validate(); err != nil {
			return PurchaseOrder{}, err
		}
		exists, err := s.repo.ItemExists(ctx, item.Item)
		if err != nil {
			return PurchaseOrder{}, err
		}
		if !exists {
			return PurchaseOrder{}, fmt.Errorf("%w: item %s not found", ErrValidation, item.Item)
		}
		item.Subtotal = item.ComputeSubtotal()
		total = total.Add(item.Subtotal)
	}

	orderDate := input.OrderDate
	if orderDate.IsZero() {
		orderDate = time.Now().UTC()
	}
	created, err := s.repo.Create(ctx, PurchaseOrder{
		VendorID:    input.VendorID,
		OrderDate:   orderDate,
		Status:      StatusCreated,
		TotalAmount: total,
		Items:       input.Items,
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	if s.logger != nil {
		s.logger.Info("purchase order created",
			slog.String("number", created.Number),
			slog.Int64("vendor_id", created.VendorID),
			slog.Int("items", len(created.Items)))
	}
	return created, nil
}

// Get returns one order with lines and vendor metadata.
func (s *Service) Get(ctx context.Context, id int64) (Detail, error) {
	if id <= 0 {
		return Detail{}, fmt.Errorf("%w: order id required", ErrValidation)
	}
	return s.repo.Get(ctx, id)
}

// List returns orders matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Detail, int, error) {
	return s.repo.List(ctx, filter)
}

// UpdateStatus applies a lifecycle transition. Cancelled is terminal and
// received cannot be undone.
func (s *Service) UpdateStatus(ctx context.Context, id int64, next Status, actor string) error {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if current.Status == next {
		return nil
	}
	switch current.Status {
	case StatusCancelled:
		return fmt.Errorf("%w: order is cancelled", ErrStatusTransition)
	case StatusReceived:
		return fmt.Errorf("%w: order is already received", ErrStatusTransition)
	}
	if err := s.repo.UpdateStatus(ctx, id, next); err != nil {
		return err
	}
	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			Actor:    actor,
			Action:   "status_change",
			Entity:   "purchase_order",
			EntityID: strconv.FormatInt(id, 10),
			Meta:     map[string]any{"from": string(current.Status), "to": string(next)},
		}); err != nil && s.logger != nil {
			s.logger.Warn("audit record failed", slog.Any("error", err))
		}
	}
	if s.logger != nil {
		s.logger.Info("purchase order status changed",
			slog.Int64("id", id),
			slog.String("from", string(current.Status)),
			slog.String("to", string(next)))
	}
	return nil
}
