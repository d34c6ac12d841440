package indent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/flowbill/flowbill/internal/vendors"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	Create(ctx context.Context, in Indent) (Indent, error)
	Get(ctx context.Context, id int64) (Indent, error)
	StoreExists(ctx context.Context, storeID uuid.UUID) (bool, error)
	MissingProducts(ctx context.Context, ids []int64) ([]int64, error)
	CategoriesForProducts(ctx context.Context, ids []int64) ([]string, error)
}

// VendorSuggester resolves vendors servicing a set of category names.
type VendorSuggester interface {
	SuggestByCategory(ctx context.Context, names []string) ([]vendors.VendorRef, error)
}

// Service coordinates indent operations.
type Service struct {
	repo      RepositoryPort
	suggester VendorSuggester
	logger    *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, suggester VendorSuggester, logger *slog.Logger) *Service {
	return &Service{repo: repo, suggester: suggester, logger: logger}
}

func newIndentNumber() string {
	return "IND-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// CreateInput is the write shape for new indents.
type CreateInput struct {
	StoreID uuid.UUID    `json:"store_id" validate:"required"`
	Items   []IndentItem `json:"items" validate:"required,min=1"`
}

// Create validates the store and every product, resolves suggested vendors
// from the items' categories, and persists header plus lines in one
// transaction.
func (s *Service) Create(ctx context.Context, input CreateInput) (Indent, error) {
	if input.StoreID == uuid.Nil {
		return Indent{}, fmt.Errorf("%w: store_id is required", ErrValidation)
	}
	if len(input.Items) == 0 {
		return Indent{}, fmt.Errorf("%w: at least one item required", ErrValidation)
	}
	productIDs := make([]int64, 0, len(input.Items))
	for i, item := range input.Items {
		if err := item.Validate(); err != nil {
			return Indent{}, fmt.Errorf("row %d: %w", i+1, err)
		}
		productIDs = append(productIDs, item.ProductID)
	}

	ok, err := s.repo.StoreExists(ctx, input.StoreID)
	if err != nil {
		return Indent{}, err
	}
	if !ok {
		return Indent{}, fmt.Errorf("%w: store %s", ErrNotFound, input.StoreID)
	}
	missing, err := s.repo.MissingProducts(ctx, productIDs)
	if err != nil {
		return Indent{}, err
	}
	if len(missing) > 0 {
		return Indent{}, fmt.Errorf("%w: unknown products %v", ErrValidation, missing)
	}

	suggested, err := s.suggestForProducts(ctx, productIDs)
	if err != nil {
		return Indent{}, err
	}

	created, err := s.repo.Create(ctx, Indent{
		Number:           newIndentNumber(),
		StoreID:          input.StoreID,
		Status:           StatusDraft,
		SuggestedVendors: suggested,
		Items:            input.Items,
	})
	if err != nil {
		return Indent{}, err
	}
	if s.logger != nil {
		s.logger.Info("indent created",
			slog.String("number", created.Number),
			slog.String("store_id", created.StoreID.String()),
			slog.Int("items", len(created.Items)))
	}
	return created, nil
}

// Get returns an indent with its lines.
func (s *Service) Get(ctx context.Context, id int64) (Indent, error) {
	if id <= 0 {
		return Indent{}, fmt.Errorf("%w: indent id required", ErrValidation)
	}
	return s.repo.Get(ctx, id)
}

// SuggestVendors re-runs the vendor suggestion for a stored indent.
func (s *Service) SuggestVendors(ctx context.Context, id int64) ([]vendors.VendorRef, error) {
	in, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	productIDs := make([]int64, 0, len(in.Items))
	for _, item := range in.Items {
		productIDs = append(productIDs, item.ProductID)
	}
	names, err := s.repo.CategoriesForProducts(ctx, productIDs)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, nil
	}
	return s.suggester.SuggestByCategory(ctx, names)
}

func (s *Service) suggestForProducts(ctx context.Context, productIDs []int64) ([]int64, error) {
	if s.suggester == nil {
		return nil, nil
	}
	names, err := s.repo.CategoriesForProducts(ctx, productIDs)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, nil
	}
	refs, err := s.suggester.SuggestByCategory(ctx, names)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(refs))
	for _, ref := range refs {
		ids = append(ids, ref.ID)
	}
	return ids, nil
}
