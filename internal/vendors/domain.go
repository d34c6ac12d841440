package vendors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// PaymentTerms enumerates the settlement modes a vendor trades under.
type PaymentTerms string

const (
	PaymentCredit  PaymentTerms = "CREDIT"
	PaymentAdvance PaymentTerms = "ADVANCE"
	PaymentCOD     PaymentTerms = "COD"
)

// Vendor is a supplier record. Categories carries the catalog category names
// the vendor services; suggestion queries match against it.
type Vendor struct {
	ID           int64        `json:"id"`
	Code         string       `json:"code"`
	Name         string       `json:"name"`
	Address      string       `json:"address,omitempty"`
	Mobile       string       `json:"mobile,omitempty"`
	Email        string       `json:"email,omitempty"`
	GST          string       `json:"gst,omitempty"`
	Categories   []string     `json:"categories"`
	PaymentTerms PaymentTerms `json:"payment_terms"`
	CreditDays   int          `json:"credit_days"`
	IsActive     bool         `json:"is_active"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// VendorRef is the slim shape suggestion queries return.
type VendorRef struct {
	ID   int64  `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

// ListFilter narrows vendor listings.
type ListFilter struct {
	Category string
	IsActive *bool
	Limit    int
	Offset   int
}

var (
	// ErrNotFound indicates a missing vendor.
	ErrNotFound = errors.New("vendors: vendor not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("vendors: invalid input")
)

// Validate checks fields supplied by the edge.
func (v Vendor) Validate() error {
	if strings.TrimSpace(v.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	switch v.PaymentTerms {
	case "", PaymentCredit, PaymentAdvance, PaymentCOD:
	default:
		return fmt.Errorf("%w: unknown payment terms %q", ErrValidation, v.PaymentTerms)
	}
	if v.CreditDays < 0 {
		return fmt.Errorf("%w: credit days must be >= 0", ErrValidation)
	}
	return nil
}
