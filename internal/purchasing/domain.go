package purchasing

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/flowbill/flowbill/internal/catalog"
)

// Status is the purchase order lifecycle state.
type Status string

const (
	StatusCreated   Status = "created"
	StatusReceived  Status = "received"
	StatusCancelled Status = "cancelled"
)

// ParseStatus validates a status received from the edge.
func ParseStatus(value string) (Status, error) {
	switch Status(value) {
	case StatusCreated, StatusReceived, StatusCancelled:
		return Status(value), nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrValidation, value)
}

// PurchaseOrder is the header of an order placed with a vendor.
type PurchaseOrder struct {
	ID          int64               `json:"id"`
	Number      string              `json:"number"`
	VendorID    int64               `json:"vendor_id"`
	OrderDate   time.Time           `json:"order_date"`
	Status      Status              `json:"status"`
	TotalAmount decimal.Decimal     `json:"total_amount"`
	Items       []PurchaseOrderItem `json:"items,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// PurchaseOrderItem is one expected line of a purchase order.
type PurchaseOrderItem struct {
	ID        int64           `json:"id"`
	OrderID   int64           `json:"order_id"`
	Item      catalog.ItemRef `json:"item"`
	Qty       int64           `json:"qty"`
	UOM       string          `json:"uom,omitempty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// Detail is a purchase order enriched for read endpoints.
type Detail struct {
	PurchaseOrder
	VendorCode      string `json:"vendor_code"`
	VendorName      string `json:"vendor_name"`
	CategorySummary string `json:"category_summary,omitempty"`
}

// ListFilter narrows purchase order listings.
type ListFilter struct {
	Status   Status
	VendorID *int64
	Limit    int
	Offset   int
}

var (
	// ErrNotFound indicates a missing purchase order.
	ErrNotFound = errors.New("purchasing: purchase order not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("purchasing: invalid input")
	// ErrStatusTransition indicates a forbidden lifecycle move.
	ErrStatusTransition = errors.New("purchasing: invalid status transition")
)

// Validate checks a line before persisting.
func (i PurchaseOrderItem) Validate() error {
	if err := i.Item.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if i.Qty <= 0 {
		return fmt.Errorf("%w: qty must be > 0", ErrValidation)
	}
	if i.UnitPrice.IsNegative() {
		return fmt.Errorf("%w: unit price must be >= 0", ErrValidation)
	}
	return nil
}

// ComputeSubtotal derives subtotal as qty x unit price.
func (i PurchaseOrderItem) ComputeSubtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(i.Qty))
}

// CategorySummary folds distinct category names into the display form the
// listing endpoints use.
func CategorySummary(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	}
	return "Mixed"
}
