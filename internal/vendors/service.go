package vendors

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	Create(ctx context.Context, v Vendor) (Vendor, error)
	Get(ctx context.Context, id int64) (Vendor, error)
	GetByCode(ctx context.Context, code string) (Vendor, error)
	List(ctx context.Context, filter ListFilter) ([]Vendor, int, error)
	Update(ctx context.Context, id int64, v Vendor) error
	SuggestByCategory(ctx context.Context, names []string) ([]VendorRef, error)
}

// Service coordinates vendor operations.
type Service struct {
	repo   RepositoryPort
	cache  *Cache
	logger *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, cache *Cache, logger *slog.Logger) *Service {
	return &Service{repo: repo, cache: cache, logger: logger}
}

func newVendorCode() string {
	return "VND-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Create registers a vendor, assigning its public code.
func (s *Service) Create(ctx context.Context, v Vendor) (Vendor, error) {
	if err := v.Validate(); err != nil {
		return Vendor{}, err
	}
	if v.PaymentTerms == "" {
		v.PaymentTerms = PaymentCredit
	}
	if v.Categories == nil {
		v.Categories = []string{}
	}
	v.Code = newVendorCode()
	v.IsActive = true

	created, err := s.repo.Create(ctx, v)
	if err != nil {
		return Vendor{}, err
	}
	if err := s.cache.Invalidate(ctx); err != nil && s.logger != nil {
		s.logger.Warn("vendor suggestion cache invalidation failed", slog.Any("error", err))
	}
	return created, nil
}

// Get returns one vendor by id.
func (s *Service) Get(ctx context.Context, id int64) (Vendor, error) {
	if id <= 0 {
		return Vendor{}, fmt.Errorf("%w: vendor id required", ErrValidation)
	}
	return s.repo.Get(ctx, id)
}

// GetByCode returns one vendor by public code.
func (s *Service) GetByCode(ctx context.Context, code string) (Vendor, error) {
	if strings.TrimSpace(code) == "" {
		return Vendor{}, fmt.Errorf("%w: code is required", ErrValidation)
	}
	return s.repo.GetByCode(ctx, code)
}

// List returns vendors matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Vendor, int, error) {
	return s.repo.List(ctx, filter)
}

// Update rewrites a vendor.
func (s *Service) Update(ctx context.Context, id int64, v Vendor) error {
	if id <= 0 {
		return fmt.Errorf("%w: vendor id required", ErrValidation)
	}
	if err := v.Validate(); err != nil {
		return err
	}
	if v.PaymentTerms == "" {
		v.PaymentTerms = PaymentCredit
	}
	if err := s.repo.Update(ctx, id, v); err != nil {
		return err
	}
	if err := s.cache.Invalidate(ctx); err != nil && s.logger != nil {
		s.logger.Warn("vendor suggestion cache invalidation failed", slog.Any("error", err))
	}
	return nil
}

// SuggestByCategory returns active vendors servicing any of the given
// category names, deduplicated across categories.
func (s *Service) SuggestByCategory(ctx context.Context, names []string) ([]VendorRef, error) {
	cleaned := make([]string, 0, len(names))
	seen := map[string]bool{}
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		cleaned = append(cleaned, name)
	}
	if len(cleaned) == 0 {
		return nil, fmt.Errorf("%w: at least one category name required", ErrValidation)
	}
	return s.cache.FetchSuggestions(ctx, cleaned, func(ctx context.Context) ([]VendorRef, error) {
		return s.repo.SuggestByCategory(ctx, cleaned)
	})
}
