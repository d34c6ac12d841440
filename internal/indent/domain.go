package indent

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the indent lifecycle state. Requisitions start as drafts until
// procurement turns them into purchase orders.
type Status string

const StatusDraft Status = "draft"

// Indent is an internal stock requisition from a store to the warehouse.
type Indent struct {
	ID               int64        `json:"id"`
	Number           string       `json:"number"`
	StoreID          uuid.UUID    `json:"store_id"`
	Status           Status       `json:"status"`
	SuggestedVendors []int64      `json:"suggested_vendor_ids,omitempty"`
	Items            []IndentItem `json:"items,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
}

// IndentItem is one requested line. Requisitions always reference products;
// medicine categories are indented through their product listing as well.
type IndentItem struct {
	ID        int64 `json:"id"`
	IndentID  int64 `json:"indent_id"`
	ProductID int64 `json:"product_id"`
	Qty       int64 `json:"qty"`
}

var (
	// ErrNotFound indicates a missing indent.
	ErrNotFound = errors.New("indent: not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("indent: invalid input")
)

// Validate checks a line before persisting.
func (i IndentItem) Validate() error {
	if i.ProductID <= 0 {
		return fmt.Errorf("%w: product_id is required", ErrValidation)
	}
	if i.Qty <= 0 {
		return fmt.Errorf("%w: qty must be > 0", ErrValidation)
	}
	return nil
}
