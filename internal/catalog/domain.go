package catalog

import (
	"errors"
	"fmt"
	"time"
)

// Kind distinguishes the two catalog entities.
type Kind string

const (
	KindProduct  Kind = "product"
	KindMedicine Kind = "medicine"
)

// ParseKind validates a kind received from the edge.
func ParseKind(value string) (Kind, error) {
	switch Kind(value) {
	case KindProduct:
		return KindProduct, nil
	case KindMedicine:
		return KindMedicine, nil
	}
	return "", fmt.Errorf("%w: unknown kind %q", ErrValidation, value)
}

// ItemRef names exactly one catalog entity. It replaces the nullable
// product/medicine foreign-key pair: a zero ID or empty kind is invalid, and
// a ref can never point at both tables.
type ItemRef struct {
	Kind Kind  `json:"kind"`
	ID   int64 `json:"id"`
}

// ProductRef builds a reference to a product.
func ProductRef(id int64) ItemRef { return ItemRef{Kind: KindProduct, ID: id} }

// MedicineRef builds a reference to a medicine.
func MedicineRef(id int64) ItemRef { return ItemRef{Kind: KindMedicine, ID: id} }

// Validate reports whether the reference names a single entity.
func (r ItemRef) Validate() error {
	if r.ID <= 0 {
		return fmt.Errorf("%w: item id required", ErrValidation)
	}
	if r.Kind != KindProduct && r.Kind != KindMedicine {
		return fmt.Errorf("%w: unknown kind %q", ErrValidation, r.Kind)
	}
	return nil
}

func (r ItemRef) String() string {
	return fmt.Sprintf("%s:%d", r.Kind, r.ID)
}

// Item is a catalog record. Products and medicines share the shape; medicines
// simply never use the optical fields.
type Item struct {
	ID          int64     `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CategoryID  int64     `json:"category_id"`
	PackQty     int64     `json:"pack_qty"`
	BrandName   string    `json:"brand_name,omitempty"`
	Molecule    string    `json:"molecule,omitempty"`
	UOM         string    `json:"uom,omitempty"`
	Shape       string    `json:"shape,omitempty"`
	Material    string    `json:"material,omitempty"`
	Color       string    `json:"color,omitempty"`
	Size        string    `json:"size,omitempty"`
	Stock       int64     `json:"stock"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Category groups catalog items and carries the entity kind its members
// belong to, replacing inline "category 9 means medicine" checks.
type Category struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Kind     Kind   `json:"kind"`
	IsActive bool   `json:"is_active"`
}

// KindMap resolves a category to the catalog entity kind it stores.
type KindMap map[int64]Kind

// KindFor returns the kind for a category, defaulting to product.
func (m KindMap) KindFor(categoryID int64) Kind {
	if kind, ok := m[categoryID]; ok {
		return kind
	}
	return KindProduct
}

// ListFilter narrows catalog listings.
type ListFilter struct {
	Kind       Kind
	CategoryID *int64
	BrandName  string
	Molecule   string
	UOM        string
	Color      string
	IsActive   *bool
	Limit      int
	Offset     int
}

var (
	// ErrNotFound indicates a missing catalog record.
	ErrNotFound = errors.New("catalog: item not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("catalog: invalid input")
)
