package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, ref ItemRef) (Item, error)
	GetByCode(ctx context.Context, kind Kind, code string) (Item, error)
	List(ctx context.Context, filter ListFilter) ([]Item, int, error)
	Create(ctx context.Context, kind Kind, item Item) (Item, error)
	Update(ctx context.Context, ref ItemRef, item Item) error
	Delete(ctx context.Context, ref ItemRef) error
	IncrementStock(ctx context.Context, ref ItemRef, delta int64) (int64, error)
	CategoryKinds(ctx context.Context) (KindMap, error)
	GetCategory(ctx context.Context, id int64) (Category, error)
	GetCategoryByName(ctx context.Context, name string) (Category, error)
}

// IdempotencyPort guards request replays. Satisfied by
// *shared.IdempotencyStore; duplicates surface as
// shared.ErrIdempotencyConflict.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Service coordinates catalog operations.
type Service struct {
	repo        RepositoryPort
	idempotency IdempotencyPort
	logger      *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, idem IdempotencyPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, idempotency: idem, logger: logger}
}

func (s *Service) validate(item Item) error {
	if strings.TrimSpace(item.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if item.CategoryID <= 0 {
		return fmt.Errorf("%w: category is required", ErrValidation)
	}
	if item.Stock < 0 {
		return fmt.Errorf("%w: stock must be >= 0", ErrValidation)
	}
	return nil
}

// Create inserts an item under the kind its category maps to.
func (s *Service) Create(ctx context.Context, item Item) (Item, error) {
	if err := s.validate(item); err != nil {
		return Item{}, err
	}
	category, err := s.repo.GetCategory(ctx, item.CategoryID)
	if err != nil {
		return Item{}, err
	}
	if item.PackQty <= 0 {
		item.PackQty = 1
	}
	return s.repo.Create(ctx, category.Kind, item)
}

// Get returns one item.
func (s *Service) Get(ctx context.Context, ref ItemRef) (Item, error) {
	if err := ref.Validate(); err != nil {
		return Item{}, err
	}
	return s.repo.Get(ctx, ref)
}

// GetByCode resolves a public item code.
func (s *Service) GetByCode(ctx context.Context, kind Kind, code string) (Item, error) {
	if strings.TrimSpace(code) == "" {
		return Item{}, fmt.Errorf("%w: code is required", ErrValidation)
	}
	return s.repo.GetByCode(ctx, kind, code)
}

// List returns items matching the filter. The kind is resolved from the
// category when a category filter is present.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Item, int, error) {
	if filter.Kind == "" {
		filter.Kind = KindProduct
		if filter.CategoryID != nil {
			kinds, err := s.repo.CategoryKinds(ctx)
			if err != nil {
				return nil, 0, err
			}
			filter.Kind = kinds.KindFor(*filter.CategoryID)
		}
	}
	return s.repo.List(ctx, filter)
}

// Update rewrites an item.
func (s *Service) Update(ctx context.Context, ref ItemRef, item Item) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	if err := s.validate(item); err != nil {
		return err
	}
	return s.repo.Update(ctx, ref, item)
}

// Delete removes an item.
func (s *Service) Delete(ctx context.Context, ref ItemRef) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	return s.repo.Delete(ctx, ref)
}

// AdjustStock applies a manual stock delta through the atomic increment path.
func (s *Service) AdjustStock(ctx context.Context, ref ItemRef, delta int64) (int64, error) {
	if delta == 0 {
		return 0, fmt.Errorf("%w: delta must be non zero", ErrValidation)
	}
	stock, err := s.repo.IncrementStock(ctx, ref, delta)
	if err != nil {
		return 0, err
	}
	if s.logger != nil {
		s.logger.Info("stock adjusted", slog.String("item", ref.String()), slog.Int64("delta", delta), slog.Int64("stock", stock))
	}
	return stock, nil
}
