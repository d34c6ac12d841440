package vendors

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type memoryVendorRepo struct {
	vendors      map[int64]Vendor
	nextID       int64
	suggestCalls int
}

func newMemoryVendorRepo() *memoryVendorRepo {
	return &memoryVendorRepo{vendors: map[int64]Vendor{}}
}

func (m *memoryVendorRepo) Create(ctx context.Context, v Vendor) (Vendor, error) {
	m.nextID++
	v.ID = m.nextID
	m.vendors[v.ID] = v
	return v, nil
}

func (m *memoryVendorRepo) Get(ctx context.Context, id int64) (Vendor, error) {
	v, ok := m.vendors[id]
	if !ok {
		return Vendor{}, ErrNotFound
	}
	return v, nil
}

func (m *memoryVendorRepo) GetByCode(ctx context.Context, code string) (Vendor, error) {
	for _, v := range m.vendors {
		if v.Code == code {
			return v, nil
		}
	}
	return Vendor{}, ErrNotFound
}

func (m *memoryVendorRepo) List(ctx context.Context, filter ListFilter) ([]Vendor, int, error) {
	var out []Vendor
	for _, v := range m.vendors {
		out = append(out, v)
	}
	return out, len(out), nil
}

func (m *memoryVendorRepo) Update(ctx context.Context, id int64, v Vendor) error {
	if _, ok := m.vendors[id]; !ok {
		return ErrNotFound
	}
	v.ID = id
	m.vendors[id] = v
	return nil
}

func (m *memoryVendorRepo) SuggestByCategory(ctx context.Context, names []string) ([]VendorRef, error) {
	m.suggestCalls++
	wanted := map[string]bool{}
	for _, name := range names {
		wanted[name] = true
	}
	byID := map[int64]VendorRef{}
	for _, v := range m.vendors {
		if !v.IsActive {
			continue
		}
		for _, category := range v.Categories {
			if wanted[category] {
				byID[v.ID] = VendorRef{ID: v.ID, Code: v.Code, Name: v.Name}
			}
		}
	}
	var out []VendorRef
	for _, ref := range byID {
		out = append(out, ref)
	}
	return out, nil
}

func TestServiceCreateAssignsCodeAndDefaults(t *testing.T) {
	repo := newMemoryVendorRepo()
	svc := NewService(repo, nil, nil)

	created, err := svc.Create(context.Background(), Vendor{Name: "Acme Optics"})
	require.NoError(t, err)
	require.Regexp(t, `^VND-[0-9a-f]{8}$`, created.Code)
	require.Equal(t, PaymentCredit, created.PaymentTerms)
	require.True(t, created.IsActive)
}

func TestServiceCreateRejectsInvalidVendor(t *testing.T) {
	svc := NewService(newMemoryVendorRepo(), nil, nil)

	_, err := svc.Create(context.Background(), Vendor{Name: "   "})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Create(context.Background(), Vendor{Name: "Acme", PaymentTerms: "BARTER"})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Create(context.Background(), Vendor{Name: "Acme", CreditDays: -1})
	require.ErrorIs(t, err, ErrValidation)
}

func TestSuggestByCategoryDeduplicates(t *testing.T) {
	repo := newMemoryVendorRepo()
	svc := NewService(repo, nil, nil)

	_, err := svc.Create(context.Background(), Vendor{Name: "Acme", Categories: []string{"Frames", "Lenses"}})
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), Vendor{Name: "Medico", Categories: []string{"Medicine"}})
	require.NoError(t, err)

	refs, err := svc.SuggestByCategory(context.Background(), []string{"Frames", "Lenses", "Frames", " "})
	require.NoError(t, err)
	require.Len(t, refs, 1)
	require.Equal(t, "Acme", refs[0].Name)

	_, err = svc.SuggestByCategory(context.Background(), []string{"  "})
	require.ErrorIs(t, err, ErrValidation)
}

func TestSuggestByCategoryUsesCache(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := newMemoryVendorRepo()
	svc := NewService(repo, NewCache(client, time.Minute), nil)

	_, err := svc.Create(context.Background(), Vendor{Name: "Acme", Categories: []string{"Frames"}})
	require.NoError(t, err)

	first, err := svc.SuggestByCategory(context.Background(), []string{"Frames"})
	require.NoError(t, err)
	second, err := svc.SuggestByCategory(context.Background(), []string{"Frames"})
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, repo.suggestCalls)

	// A vendor write invalidates the cached suggestion set.
	_, err = svc.Create(context.Background(), Vendor{Name: "Framed", Categories: []string{"Frames"}})
	require.NoError(t, err)
	third, err := svc.SuggestByCategory(context.Background(), []string{"Frames"})
	require.NoError(t, err)
	require.Len(t, third, 2)
	require.Equal(t, 2, repo.suggestCalls)
}
