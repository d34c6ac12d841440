package indent

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/flowbill/flowbill/internal/vendors"
)

type memoryIndentRepo struct {
	indents    map[int64]Indent
	nextID     int64
	stores     map[uuid.UUID]bool
	products   map[int64]string
	categories map[string][]string
}

func newMemoryIndentRepo(storeID uuid.UUID) *memoryIndentRepo {
	return &memoryIndentRepo{
		indents: map[int64]Indent{},
		stores:  map[uuid.UUID]bool{storeID: true},
		products: map[int64]string{
			10: "Frames",
			11: "Frames",
			20: "Medicine",
		},
	}
}

func (m *memoryIndentRepo) Create(ctx context.Context, in Indent) (Indent, error) {
	m.nextID++
	in.ID = m.nextID
	for i := range in.Items {
		in.Items[i].ID = int64(i + 1)
		in.Items[i].IndentID = in.ID
	}
	m.indents[in.ID] = in
	return in, nil
}

func (m *memoryIndentRepo) Get(ctx context.Context, id int64) (Indent, error) {
	in, ok := m.indents[id]
	if !ok {
		return Indent{}, ErrNotFound
	}
	return in, nil
}

func (m *memoryIndentRepo) StoreExists(ctx context.Context, storeID uuid.UUID) (bool, error) {
	return m.stores[storeID], nil
}

func (m *memoryIndentRepo) MissingProducts(ctx context.Context, ids []int64) ([]int64, error) {
	var missing []int64
	for _, id := range ids {
		if _, ok := m.products[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func (m *memoryIndentRepo) CategoriesForProducts(ctx context.Context, ids []int64) ([]string, error) {
	seen := map[string]bool{}
	var names []string
	for _, id := range ids {
		name, ok := m.products[id]
		if !ok || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names, nil
}

type staticSuggester struct {
	refs  []vendors.VendorRef
	calls [][]string
}

func (s *staticSuggester) SuggestByCategory(ctx context.Context, names []string) ([]vendors.VendorRef, error) {
	s.calls = append(s.calls, names)
	return s.refs, nil
}

func TestCreateIndent(t *testing.T) {
	storeID := uuid.New()
	repo := newMemoryIndentRepo(storeID)
	suggester := &staticSuggester{refs: []vendors.VendorRef{{ID: 5, Name: "Acme"}}}
	svc := NewService(repo, suggester, nil)

	created, err := svc.Create(context.Background(), CreateInput{
		StoreID: storeID,
		Items: []IndentItem{
			{ProductID: 10, Qty: 5},
			{ProductID: 20, Qty: 2},
		},
	})
	require.NoError(t, err)
	require.Regexp(t, `^IND-[0-9a-f]{8}$`, created.Number)
	require.Equal(t, StatusDraft, created.Status)
	require.Equal(t, []int64{5}, created.SuggestedVendors)
	require.Len(t, created.Items, 2)
	require.Len(t, suggester.calls, 1)
	require.ElementsMatch(t, []string{"Frames", "Medicine"}, suggester.calls[0])
}

func TestCreateIndentValidation(t *testing.T) {
	storeID := uuid.New()
	repo := newMemoryIndentRepo(storeID)
	svc := NewService(repo, &staticSuggester{}, nil)

	_, err := svc.Create(context.Background(), CreateInput{StoreID: uuid.Nil, Items: []IndentItem{{ProductID: 10, Qty: 1}}})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Create(context.Background(), CreateInput{StoreID: storeID})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Create(context.Background(), CreateInput{StoreID: storeID, Items: []IndentItem{{ProductID: 10, Qty: 0}}})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Create(context.Background(), CreateInput{StoreID: uuid.New(), Items: []IndentItem{{ProductID: 10, Qty: 1}}})
	require.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Create(context.Background(), CreateInput{StoreID: storeID, Items: []IndentItem{{ProductID: 404, Qty: 1}}})
	require.ErrorIs(t, err, ErrValidation)
}

func TestSuggestVendorsForStoredIndent(t *testing.T) {
	storeID := uuid.New()
	repo := newMemoryIndentRepo(storeID)
	suggester := &staticSuggester{refs: []vendors.VendorRef{{ID: 5, Name: "Acme"}, {ID: 6, Name: "Medico"}}}
	svc := NewService(repo, suggester, nil)

	created, err := svc.Create(context.Background(), CreateInput{
		StoreID: storeID,
		Items:   []IndentItem{{ProductID: 10, Qty: 1}},
	})
	require.NoError(t, err)

	refs, err := svc.SuggestVendors(context.Background(), created.ID)
	require.NoError(t, err)
	require.Len(t, refs, 2)
}
