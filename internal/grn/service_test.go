package grn

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flowbill/flowbill/internal/catalog"
)

// memoryEngineRepo mimics the transactional repository. WithTx runs against
// a staged copy of the state and commits it only when fn succeeds, so failed
// calls leave no partial effects, like a rolled back transaction.
type memoryEngineRepo struct {
	grns    map[int64]GRN
	byReq   map[string]int64
	items   map[int64][]GRNItem
	pos     map[int64]*POSnapshot
	stock   map[catalog.ItemRef]int64
	nextGRN int64
}

func newMemoryEngineRepo() *memoryEngineRepo {
	return &memoryEngineRepo{
		grns:  map[int64]GRN{},
		byReq: map[string]int64{},
		items: map[int64][]GRNItem{},
		pos:   map[int64]*POSnapshot{},
		stock: map[catalog.ItemRef]int64{},
	}
}

func (m *memoryEngineRepo) clone() *memoryEngineRepo {
	out := newMemoryEngineRepo()
	out.nextGRN = m.nextGRN
	for id, g := range m.grns {
		out.grns[id] = g
	}
	for req, id := range m.byReq {
		out.byReq[req] = id
	}
	for id, items := range m.items {
		out.items[id] = append([]GRNItem(nil), items...)
	}
	for id, po := range m.pos {
		snap := *po
		snap.Lines = append([]POLine(nil), po.Lines...)
		out.pos[id] = &snap
	}
	for ref, qty := range m.stock {
		out.stock[ref] = qty
	}
	return out
}

func (m *memoryEngineRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	staged := m.clone()
	if err := fn(ctx, staged); err != nil {
		return err
	}
	*m = *staged
	return nil
}

func (m *memoryEngineRepo) FindByRequestID(ctx context.Context, requestID string) (GRN, error) {
	id, ok := m.byReq[requestID]
	if !ok {
		return GRN{}, ErrNotFound
	}
	return m.grns[id], nil
}

func (m *memoryEngineRepo) Get(ctx context.Context, id int64) (GRN, error) {
	g, ok := m.grns[id]
	if !ok {
		return GRN{}, ErrNotFound
	}
	g.Items = append([]GRNItem(nil), m.items[id]...)
	return g, nil
}

func (m *memoryEngineRepo) GetPOForUpdate(ctx context.Context, poID int64) (POSnapshot, error) {
	po, ok := m.pos[poID]
	if !ok {
		return POSnapshot{}, ErrPONotFound
	}
	snap := *po
	snap.Lines = append([]POLine(nil), po.Lines...)
	return snap, nil
}

func (m *memoryEngineRepo) InsertGRN(ctx context.Context, g GRN) (GRN, error) {
	if _, exists := m.byReq[g.RequestID]; exists {
		return GRN{}, errDuplicateRequest
	}
	m.nextGRN++
	g.ID = m.nextGRN
	g.CreatedAt = time.Now()
	m.grns[g.ID] = g
	m.byReq[g.RequestID] = g.ID
	return g, nil
}

func (m *memoryEngineRepo) InsertItems(ctx context.Context, grnID int64, items []GRNItem) error {
	for i := range items {
		items[i].GRNID = grnID
	}
	m.items[grnID] = append(m.items[grnID], items...)
	return nil
}

func (m *memoryEngineRepo) AcceptedTotalsByItem(ctx context.Context, poID int64) (map[catalog.ItemRef]int64, error) {
	totals := map[catalog.ItemRef]int64{}
	for grnID, g := range m.grns {
		if g.POID == nil || *g.POID != poID {
			continue
		}
		for _, item := range m.items[grnID] {
			totals[item.Item] += item.AcceptedQty
		}
	}
	return totals, nil
}

func (m *memoryEngineRepo) IncrementStock(ctx context.Context, ref catalog.ItemRef, delta int64) (int64, error) {
	m.stock[ref] += delta
	return m.stock[ref], nil
}

func (m *memoryEngineRepo) UpdatePOStatus(ctx context.Context, poID int64, status string) error {
	po, ok := m.pos[poID]
	if !ok {
		return ErrPONotFound
	}
	po.Status = status
	return nil
}

func (m *memoryEngineRepo) Finalize(ctx context.Context, grnID int64, status Status, confirmedAt time.Time) error {
	g, ok := m.grns[grnID]
	if !ok {
		return ErrNotFound
	}
	g.Status = status
	g.ConfirmedAt = &confirmedAt
	m.grns[grnID] = g
	return nil
}

type capturedEvents struct {
	events []GRNCreatedEvent
}

func (c *capturedEvents) GRNCreated(ctx context.Context, event GRNCreatedEvent) error {
	c.events = append(c.events, event)
	return nil
}

func newEngine(repo *memoryEngineRepo) (*Service, *capturedEvents) {
	events := &capturedEvents{}
	svc := NewService(repo, events, nil)
	return svc, events
}

// seedPO installs a purchase order with one product line expecting qty.
func seedPO(repo *memoryEngineRepo, poID int64, lines ...POLine) {
	repo.pos[poID] = &POSnapshot{ID: poID, Status: "created", Lines: lines}
	for _, line := range lines {
		if _, ok := repo.stock[line.Item]; !ok {
			repo.stock[line.Item] = 0
		}
	}
}

func productRow(poItemID, productID, accepted int64) Row {
	return Row{
		POItemID:    poItemID,
		ProductID:   &productID,
		AcceptedQty: accepted,
		BatchNo:     fmt.Sprintf("B-%d", poItemID),
	}
}

func TestWarehouseGRNIdempotentReplay(t *testing.T) {
	repo := newMemoryEngineRepo()
	seedPO(repo, 1, POLine{ID: 11, Item: catalog.ProductRef(100), Qty: 100})
	svc, events := newEngine(repo)

	first, err := svc.CreateWarehouseGRN(context.Background(), 1, []Row{productRow(11, 100, 60)}, "req-1")
	require.NoError(t, err)
	require.False(t, first.Replayed)

	// The retry may even carry different rows; the original wins.
	second, err := svc.CreateWarehouseGRN(context.Background(), 1, []Row{productRow(11, 100, 999)}, "req-1")
	require.NoError(t, err)
	require.True(t, second.Replayed)
	require.Equal(t, first.GRNID, second.GRNID)
	require.Equal(t, first.GRNNumber, second.GRNNumber)

	require.Equal(t, int64(60), repo.stock[catalog.ProductRef(100)])
	require.Len(t, events.events, 1)
	require.Equal(t, int64(60), events.events[0].AcceptedUnits)
}

func TestWarehouseGRNRequestIDRace(t *testing.T) {
	repo := newMemoryEngineRepo()
	seedPO(repo, 1, POLine{ID: 11, Item: catalog.ProductRef(100), Qty: 100})
	svc, _ := newEngine(repo)

	winner, err := svc.CreateWarehouseGRN(context.Background(), 1, []Row{productRow(11, 100, 10)}, "req-race")
	require.NoError(t, err)

	// Simulate the loser of an insert race: the in-tx lookup misses but the
	// unique index fires on insert.
	_, err = repo.FindByRequestID(context.Background(), "req-race")
	require.NoError(t, err)
	result, err := svc.replayWinner(context.Background(), "req-race")
	require.NoError(t, err)
	require.True(t, result.Replayed)
	require.Equal(t, winner.GRNID, result.GRNID)
}

func TestWarehouseGRNExpiryReclassification(t *testing.T) {
	repo := newMemoryEngineRepo()
	seedPO(repo, 1, POLine{ID: 11, Item: catalog.ProductRef(100), Qty: 100})
	svc, _ := newEngine(repo)
	svc.now = func() time.Time { return time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC) }

	row := productRow(11, 100, 50)
	row.RejectedQty = 5
	row.ExpiryDate = "2025-06-14"

	result, err := svc.CreateWarehouseGRN(context.Background(), 1, []Row{row}, "req-exp")
	require.NoError(t, err)
	require.Equal(t, StatusPartial, result.Status)

	g, err := svc.Get(context.Background(), result.GRNID)
	require.NoError(t, err)
	require.Len(t, g.Items, 1)
	require.Equal(t, int64(0), g.Items[0].AcceptedQty)
	require.Equal(t, int64(55), g.Items[0].RejectedQty)
	require.Equal(t, int64(0), repo.stock[catalog.ProductRef(100)])
}

func TestWarehouseGRNExpiryTodayIsNotExpired(t *testing.T) {
	repo := newMemoryEngineRepo()
	seedPO(repo, 1, POLine{ID: 11, Item: catalog.ProductRef(100), Qty: 100})
	svc, _ := newEngine(repo)
	svc.now = func() time.Time { return time.Date(2025, 6, 15, 23, 59, 0, 0, time.UTC) }

	row := productRow(11, 100, 50)
	row.ExpiryDate = "2025-06-15"

	result, err := svc.CreateWarehouseGRN(context.Background(), 1, []Row{row}, "req-today")
	require.NoError(t, err)
	g, err := svc.Get(context.Background(), result.GRNID)
	require.NoError(t, err)
	require.Equal(t, int64(50), g.Items[0].AcceptedQty)
	require.Equal(t, int64(50), repo.stock[catalog.ProductRef(100)])
}

func TestWarehouseGRNAtomicityOnRowFailure(t *testing.T) {
	repo := newMemoryEngineRepo()
	seedPO(repo, 1,
		POLine{ID: 11, Item: catalog.ProductRef(100), Qty: 10},
		POLine{ID: 12, Item: catalog.MedicineRef(200), Qty: 10},
	)
	svc, events := newEngine(repo)

	medicineID := int64(200)
	rows := []Row{
		productRow(11, 100, 5),
		{POItemID: 12, MedicineID: &medicineID, AcceptedQty: 5, BatchNo: "B-12"},
		// Row 3 supplies a product against the medicine line.
		productRow(12, 100, 5),
	}
	_, err := svc.CreateWarehouseGRN(context.Background(), 1, rows, "req-atomic")
	require.ErrorIs(t, err, ErrItemKindMismatch)
	require.Contains(t, err.Error(), "row 3")

	require.Equal(t, int64(0), repo.stock[catalog.ProductRef(100)])
	require.Equal(t, int64(0), repo.stock[catalog.MedicineRef(200)])
	require.Empty(t, repo.grns)
	_, err = repo.FindByRequestID(context.Background(), "req-atomic")
	require.ErrorIs(t, err, ErrNotFound)
	require.Empty(t, events.events)
}

func TestWarehouseGRNLineNotFound(t *testing.T) {
	repo := newMemoryEngineRepo()
	seedPO(repo, 1, POLine{ID: 11, Item: catalog.ProductRef(100), Qty: 10})
	svc, _ := newEngine(repo)

	_, err := svc.CreateWarehouseGRN(context.Background(), 1, []Row{productRow(99, 100, 5)}, "req-line")
	require.ErrorIs(t, err, ErrLineNotFound)
	require.Contains(t, err.Error(), "row 1")
}

func TestWarehouseGRNCancelledPOBlocked(t *testing.T) {
	repo := newMemoryEngineRepo()
	seedPO(repo, 1, POLine{ID: 11, Item: catalog.ProductRef(100), Qty: 10})
	repo.pos[1].Status = "cancelled"
	svc, _ := newEngine(repo)

	_, err := svc.CreateWarehouseGRN(context.Background(), 1, []Row{productRow(11, 100, 5)}, "req-cancel")
	require.ErrorIs(t, err, ErrPOCancelled)
	require.Empty(t, repo.grns)
}

func TestWarehouseGRNStockAccumulationAndFullReceipt(t *testing.T) {
	repo := newMemoryEngineRepo()
	seedPO(repo, 1, POLine{ID: 11, Item: catalog.ProductRef(100), Qty: 100})
	svc, _ := newEngine(repo)

	first, err := svc.CreateWarehouseGRN(context.Background(), 1, []Row{productRow(11, 100, 60)}, "req-a")
	require.NoError(t, err)
	require.Equal(t, StatusPartial, first.Status)
	require.Equal(t, "created", repo.pos[1].Status)

	second, err := svc.CreateWarehouseGRN(context.Background(), 1, []Row{productRow(11, 100, 60)}, "req-b")
	require.NoError(t, err)
	require.Equal(t, StatusFull, second.Status)
	require.Equal(t, "received", repo.pos[1].Status)
	require.Equal(t, int64(120), repo.stock[catalog.ProductRef(100)])
}

func TestWarehouseGRNAgainstReceivedPOIsPermitted(t *testing.T) {
	repo := newMemoryEngineRepo()
	seedPO(repo, 1, POLine{ID: 11, Item: catalog.ProductRef(100), Qty: 50})
	svc, _ := newEngine(repo)

	full, err := svc.CreateWarehouseGRN(context.Background(), 1, []Row{productRow(11, 100, 50)}, "req-full")
	require.NoError(t, err)
	require.Equal(t, StatusFull, full.Status)
	require.Equal(t, "received", repo.pos[1].Status)

	// Only cancelled blocks further receipts; over-receipt stays allowed and
	// the aggregate never drops back below the threshold.
	over, err := svc.CreateWarehouseGRN(context.Background(), 1, []Row{productRow(11, 100, 10)}, "req-over")
	require.NoError(t, err)
	require.Equal(t, StatusFull, over.Status)
	require.Equal(t, "received", repo.pos[1].Status)
	require.Equal(t, int64(60), repo.stock[catalog.ProductRef(100)])
}

func TestWarehouseGRNRejectsOnlyRowsDoNotTouchStock(t *testing.T) {
	repo := newMemoryEngineRepo()
	seedPO(repo, 1, POLine{ID: 11, Item: catalog.ProductRef(100), Qty: 10})
	svc, _ := newEngine(repo)

	row := productRow(11, 100, 0)
	row.RejectedQty = 10
	row.Reason = "damaged crates"

	result, err := svc.CreateWarehouseGRN(context.Background(), 1, []Row{row}, "req-rej")
	require.NoError(t, err)
	require.Equal(t, StatusPartial, result.Status)
	require.Equal(t, int64(0), repo.stock[catalog.ProductRef(100)])
}

func TestBranchGRNFoldsQuantitiesAndLocalFullness(t *testing.T) {
	repo := newMemoryEngineRepo()
	svc, events := newEngine(repo)

	productID := int64(100)
	medicineID := int64(200)
	result, err := svc.CreateBranchGRN(context.Background(), 7, []BranchRow{
		{ProductID: &productID, BatchNo: "B1", ReceivedQty: 10, MissingQty: 2, DamagedQty: 1, ExpiredQty: 3},
		{MedicineID: &medicineID, BatchNo: "B2", ReceivedQty: 4},
	}, "req-br")
	require.NoError(t, err)
	require.Equal(t, StatusFull, result.Status)
	require.Contains(t, result.GRNNumber, "GRN-BR-7-")

	g, err := svc.Get(context.Background(), result.GRNID)
	require.NoError(t, err)
	require.Nil(t, g.POID)
	require.Equal(t, int64(10), g.Items[0].AcceptedQty)
	require.Equal(t, int64(6), g.Items[0].RejectedQty)
	require.Equal(t, int64(10), repo.stock[catalog.ProductRef(100)])
	require.Equal(t, int64(4), repo.stock[catalog.MedicineRef(200)])
	require.Len(t, events.events, 1)
	require.Equal(t, TypeBranch, events.events[0].Type)
}

func TestBranchGRNPartialWhenARowAcceptsNothing(t *testing.T) {
	repo := newMemoryEngineRepo()
	svc, _ := newEngine(repo)

	productID := int64(100)
	result, err := svc.CreateBranchGRN(context.Background(), 7, []BranchRow{
		{ProductID: &productID, BatchNo: "B1", ReceivedQty: 10},
		{ProductID: &productID, BatchNo: "B2", MissingQty: 5},
	}, "req-br2")
	require.NoError(t, err)
	require.Equal(t, StatusPartial, result.Status)
}

func TestBranchGRNIdempotentReplay(t *testing.T) {
	repo := newMemoryEngineRepo()
	svc, _ := newEngine(repo)

	productID := int64(100)
	rows := []BranchRow{{ProductID: &productID, BatchNo: "B1", ReceivedQty: 10}}
	first, err := svc.CreateBranchGRN(context.Background(), 7, rows, "req-br3")
	require.NoError(t, err)
	second, err := svc.CreateBranchGRN(context.Background(), 7, rows, "req-br3")
	require.NoError(t, err)
	require.True(t, second.Replayed)
	require.Equal(t, first.GRNID, second.GRNID)
	require.Equal(t, int64(10), repo.stock[catalog.ProductRef(100)])
}

func TestRowValidation(t *testing.T) {
	repo := newMemoryEngineRepo()
	seedPO(repo, 1, POLine{ID: 11, Item: catalog.ProductRef(100), Qty: 10})
	svc, _ := newEngine(repo)

	productID := int64(100)
	medicineID := int64(200)
	cases := []struct {
		name string
		row  Row
	}{
		{"missing batch", Row{POItemID: 11, ProductID: &productID, AcceptedQty: 1}},
		{"both identities", Row{POItemID: 11, ProductID: &productID, MedicineID: &medicineID, AcceptedQty: 1, BatchNo: "B"}},
		{"no identity", Row{POItemID: 11, AcceptedQty: 1, BatchNo: "B"}},
		{"negative qty", Row{POItemID: 11, ProductID: &productID, AcceptedQty: -1, BatchNo: "B"}},
		{"bad expiry", Row{POItemID: 11, ProductID: &productID, AcceptedQty: 1, BatchNo: "B", ExpiryDate: "15-06-2025"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateWarehouseGRN(context.Background(), 1, []Row{tc.row}, "req-"+tc.name)
			require.ErrorIs(t, err, ErrValidation)
			require.Contains(t, err.Error(), "row 1")
		})
	}

	_, err := svc.CreateWarehouseGRN(context.Background(), 1, []Row{productRow(11, 100, 1)}, "")
	require.ErrorIs(t, err, ErrValidation)
	_, err = svc.CreateWarehouseGRN(context.Background(), 1, nil, "req-empty")
	require.ErrorIs(t, err, ErrValidation)
}
