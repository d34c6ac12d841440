package grn

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/flowbill/flowbill/internal/catalog"
)

// Type distinguishes warehouse receipts reconciled against a purchase order
// from branch receipts acknowledging a dispatch.
type Type string

const (
	TypeWarehouse Type = "warehouse"
	TypeBranch    Type = "branch"
)

// Status is the receipt completion state.
type Status string

const (
	StatusPartial Status = "Partial"
	StatusFull    Status = "Full"
)

// GRN is a goods receipt note header. Headers and their items are write-once;
// corrections require a new GRN.
type GRN struct {
	ID          int64      `json:"id"`
	Number      string     `json:"number"`
	Type        Type       `json:"type"`
	POID        *int64     `json:"purchase_order_id,omitempty"`
	DispatchID  *int64     `json:"dispatch_id,omitempty"`
	Status      Status     `json:"status"`
	RequestID   string     `json:"request_id"`
	CreatedAt   time.Time  `json:"created_at"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	Items       []GRNItem  `json:"items,omitempty"`
}

// GRNItem is one dispositioned batch line of a receipt.
type GRNItem struct {
	ID          int64           `json:"id"`
	GRNID       int64           `json:"grn_id"`
	POItemID    *int64          `json:"purchase_order_item_id,omitempty"`
	Item        catalog.ItemRef `json:"item"`
	BatchNo     string          `json:"batch_no"`
	ExpiryDate  *time.Time      `json:"expiry_date,omitempty"`
	AcceptedQty int64           `json:"accepted_qty"`
	RejectedQty int64           `json:"rejected_qty"`
	UOM         string          `json:"uom,omitempty"`
	Reason      string          `json:"reason,omitempty"`
}

// Row is one warehouse receipt line as submitted by the caller. Exactly one
// of ProductID/MedicineID must be set.
type Row struct {
	POItemID    int64  `json:"purchase_order_item_id"`
	ProductID   *int64 `json:"product_id,omitempty"`
	MedicineID  *int64 `json:"medicine_id,omitempty"`
	UOM         string `json:"uom,omitempty"`
	AcceptedQty int64  `json:"accepted_qty"`
	RejectedQty int64  `json:"rejected_qty"`
	BatchNo     string `json:"batch_no"`
	ExpiryDate  string `json:"expiry_date,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// BranchRow is one branch receipt line. The four quantities fold into the
// uniform item shape as accepted=received and rejected=missing+damaged+expired.
type BranchRow struct {
	ProductID   *int64 `json:"product_id,omitempty"`
	MedicineID  *int64 `json:"medicine_id,omitempty"`
	UOM         string `json:"uom,omitempty"`
	BatchNo     string `json:"batch_no"`
	ExpiryDate  string `json:"expiry_date,omitempty"`
	ReceivedQty int64  `json:"received_qty"`
	MissingQty  int64  `json:"missing_qty"`
	DamagedQty  int64  `json:"damaged_qty"`
	ExpiredQty  int64  `json:"expired_qty"`
}

// Result is the outcome returned to the edge.
type Result struct {
	GRNNumber string `json:"grn_number"`
	GRNID     int64  `json:"grn_id"`
	Status    Status `json:"status"`
	Replayed  bool   `json:"-"`
}

// POLine is the purchase order line view the engine reconciles against.
type POLine struct {
	ID   int64
	Item catalog.ItemRef
	Qty  int64
}

// POSnapshot is the locked purchase order state inside the engine transaction.
type POSnapshot struct {
	ID     int64
	Status string
	Lines  []POLine
}

var (
	// ErrValidation indicates malformed caller input.
	ErrValidation = errors.New("grn: invalid input")
	// ErrPONotFound indicates the target purchase order does not exist.
	ErrPONotFound = errors.New("grn: purchase order not found")
	// ErrPOCancelled indicates the purchase order is cancelled.
	ErrPOCancelled = errors.New("grn: purchase order is cancelled")
	// ErrLineNotFound indicates a row names a line absent from the PO.
	ErrLineNotFound = errors.New("grn: purchase order line not found")
	// ErrItemKindMismatch indicates a row supplies the wrong entity kind for
	// its PO line.
	ErrItemKindMismatch = errors.New("grn: item kind does not match purchase order line")
	// ErrNotFound indicates a missing GRN.
	ErrNotFound = errors.New("grn: not found")

	// errDuplicateRequest signals the request_id unique index fired; the
	// caller re-reads the winner.
	errDuplicateRequest = errors.New("grn: duplicate request id")
)

const dateLayout = "2006-01-02"

func parseExpiry(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// itemRef resolves the exclusive product/medicine identity of a row.
func itemRef(productID, medicineID *int64) (catalog.ItemRef, error) {
	switch {
	case productID != nil && medicineID != nil:
		return catalog.ItemRef{}, fmt.Errorf("product_id and medicine_id are mutually exclusive")
	case productID != nil:
		return catalog.ProductRef(*productID), nil
	case medicineID != nil:
		return catalog.MedicineRef(*medicineID), nil
	}
	return catalog.ItemRef{}, fmt.Errorf("one of product_id or medicine_id is required")
}
