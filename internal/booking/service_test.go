package booking

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type memoryBookingRepo struct {
	stores     map[uuid.UUID]Store
	managers   map[uuid.UUID]StoreManager
	customers  map[string]Customer
	categories map[int64]ServiceCategory
	offerings  map[int64]Offering
	slots      map[int64]TimeSlot
	bookings   map[uuid.UUID]Booking
	logs       []StatusLog
	nextID     int64
}

func newMemoryBookingRepo() *memoryBookingRepo {
	return &memoryBookingRepo{
		stores:    map[uuid.UUID]Store{},
		managers:  map[uuid.UUID]StoreManager{},
		customers: map[string]Customer{},
		categories: map[int64]ServiceCategory{
			3: {ID: 3, Name: "Optometry", IsActive: true},
		},
		offerings: map[int64]Offering{
			1: {ID: 1, CategoryID: 3, Name: "Eye Test", DurationMins: 30, IsActive: true},
			2: {ID: 2, CategoryID: 3, Name: "Frame Fitting", DurationMins: 15, IsActive: false},
		},
		slots:    map[int64]TimeSlot{1: {ID: 1, Label: "10:00-10:30", IsActive: true}},
		bookings: map[uuid.UUID]Booking{},
		nextID:   100,
	}
}

func (m *memoryBookingRepo) ProvisionStore(ctx context.Context, store Store, manager StoreManager) (Store, StoreManager, error) {
	store.CreatedAt = time.Now()
	manager.CreatedAt = time.Now()
	m.stores[store.ID] = store
	m.managers[manager.ID] = manager
	return store, manager, nil
}

func (m *memoryBookingRepo) GetStore(ctx context.Context, id uuid.UUID) (Store, error) {
	store, ok := m.stores[id]
	if !ok {
		return Store{}, ErrNotFound
	}
	return store, nil
}

func (m *memoryBookingRepo) GetManager(ctx context.Context, id uuid.UUID) (StoreManager, error) {
	manager, ok := m.managers[id]
	if !ok {
		return StoreManager{}, ErrNotFound
	}
	return manager, nil
}

func (m *memoryBookingRepo) SetManagerActive(ctx context.Context, id uuid.UUID, active bool) error {
	manager, ok := m.managers[id]
	if !ok {
		return ErrNotFound
	}
	manager.IsActive = active
	m.managers[id] = manager
	return nil
}

func (m *memoryBookingRepo) UpsertCustomer(ctx context.Context, c Customer) (Customer, error) {
	if existing, ok := m.customers[c.Phone]; ok {
		existing.Name = c.Name
		existing.Email = c.Email
		m.customers[c.Phone] = existing
		return existing, nil
	}
	c.CreatedAt = time.Now()
	m.customers[c.Phone] = c
	return c, nil
}

func (m *memoryBookingRepo) CreateServiceCategory(ctx context.Context, c ServiceCategory) (ServiceCategory, error) {
	m.nextID++
	c.ID = m.nextID
	m.categories[c.ID] = c
	return c, nil
}

func (m *memoryBookingRepo) ListServiceCategories(ctx context.Context) ([]ServiceCategory, error) {
	out := make([]ServiceCategory, 0, len(m.categories))
	for _, c := range m.categories {
		out = append(out, c)
	}
	return out, nil
}

func (m *memoryBookingRepo) CreateOffering(ctx context.Context, o Offering) (Offering, error) {
	m.nextID++
	o.ID = m.nextID
	m.offerings[o.ID] = o
	return o, nil
}

func (m *memoryBookingRepo) ListOfferings(ctx context.Context, categoryID int64) ([]Offering, error) {
	var out []Offering
	for _, o := range m.offerings {
		if categoryID > 0 && o.CategoryID != categoryID {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func (m *memoryBookingRepo) CreateTimeSlot(ctx context.Context, s TimeSlot) (TimeSlot, error) {
	m.nextID++
	s.ID = m.nextID
	m.slots[s.ID] = s
	return s, nil
}

func (m *memoryBookingRepo) ListTimeSlots(ctx context.Context) ([]TimeSlot, error) {
	out := make([]TimeSlot, 0, len(m.slots))
	for _, s := range m.slots {
		out = append(out, s)
	}
	return out, nil
}

func (m *memoryBookingRepo) GetOffering(ctx context.Context, id int64) (Offering, error) {
	o, ok := m.offerings[id]
	if !ok {
		return Offering{}, ErrNotFound
	}
	return o, nil
}

func (m *memoryBookingRepo) SlotExists(ctx context.Context, id int64) (bool, error) {
	s, ok := m.slots[id]
	return ok && s.IsActive, nil
}

func (m *memoryBookingRepo) CreateBooking(ctx context.Context, b Booking) (Booking, error) {
	b.CreatedAt = time.Now()
	b.UpdatedAt = b.CreatedAt
	m.bookings[b.ID] = b
	return b, nil
}

func (m *memoryBookingRepo) GetBooking(ctx context.Context, id uuid.UUID) (Booking, error) {
	b, ok := m.bookings[id]
	if !ok {
		return Booking{}, ErrNotFound
	}
	return b, nil
}

func (m *memoryBookingRepo) Search(ctx context.Context, filter SearchFilter) ([]Booking, int, error) {
	var out []Booking
	for _, b := range m.bookings {
		if filter.Status != "" && b.Status != filter.Status {
			continue
		}
		out = append(out, b)
	}
	return out, len(out), nil
}

func (m *memoryBookingRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to BookingStatus, actor string) error {
	b, ok := m.bookings[id]
	if !ok || b.Status != from {
		return ErrStatusTransition
	}
	b.Status = to
	b.UpdatedAt = time.Now()
	m.bookings[id] = b
	m.logs = append(m.logs, StatusLog{
		ID: int64(len(m.logs) + 1), BookingID: id, From: from, To: to, Actor: actor, At: time.Now(),
	})
	return nil
}

func (m *memoryBookingRepo) StatusHistory(ctx context.Context, id uuid.UUID) ([]StatusLog, error) {
	var out []StatusLog
	for _, entry := range m.logs {
		if entry.BookingID == id {
			out = append(out, entry)
		}
	}
	return out, nil
}

type capturedAlerts struct {
	alerts []Booking
}

func (c *capturedAlerts) BookingAlert(ctx context.Context, b Booking) error {
	c.alerts = append(c.alerts, b)
	return nil
}

func provision(t *testing.T, svc *Service) (Store, StoreManager) {
	t.Helper()
	store, manager, err := svc.ProvisionStore(context.Background(), ProvisionInput{
		StoreName:   "Downtown",
		ManagerName: "Pat",
		Passcode:    "4312",
		CategoryIDs: []int64{3},
		ServiceIDs:  []int64{1},
	})
	require.NoError(t, err)
	return store, manager
}

func TestProvisionStoreHashesPasscode(t *testing.T) {
	repo := newMemoryBookingRepo()
	svc := NewService(repo, nil, nil)

	_, manager := provision(t, svc)
	require.NotEmpty(t, repo.managers[manager.ID].PasscodeHash)
	require.NotContains(t, repo.managers[manager.ID].PasscodeHash, "4312")

	require.NoError(t, svc.VerifyManagerPasscode(context.Background(), manager.ID, "4312"))
	require.ErrorIs(t, svc.VerifyManagerPasscode(context.Background(), manager.ID, "0000"), ErrPasscode)
}

func TestInactiveManagerFailsPasscodeCheck(t *testing.T) {
	repo := newMemoryBookingRepo()
	svc := NewService(repo, nil, nil)

	_, manager := provision(t, svc)
	require.NoError(t, svc.SetManagerActive(context.Background(), manager.ID, false))
	require.ErrorIs(t, svc.VerifyManagerPasscode(context.Background(), manager.ID, "4312"), ErrPasscode)
}

func TestProvisionValidation(t *testing.T) {
	svc := NewService(newMemoryBookingRepo(), nil, nil)

	_, _, err := svc.ProvisionStore(context.Background(), ProvisionInput{ManagerName: "Pat", Passcode: "4312"})
	require.ErrorIs(t, err, ErrValidation)

	_, _, err = svc.ProvisionStore(context.Background(), ProvisionInput{StoreName: "Downtown", ManagerName: "Pat", Passcode: "12"})
	require.ErrorIs(t, err, ErrValidation)
}

func validBookingInput(storeID uuid.UUID) CreateInput {
	return CreateInput{
		CustomerName:  "Sam",
		CustomerPhone: "555-0101",
		StoreID:       storeID,
		ServiceID:     1,
		Type:          AppointmentInStore,
		Date:          time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		SlotID:        1,
		AlertType:     AlertSMS,
	}
}

func TestCreateBooking(t *testing.T) {
	repo := newMemoryBookingRepo()
	alerts := &capturedAlerts{}
	svc := NewService(repo, alerts, nil)
	store, _ := provision(t, svc)

	created, err := svc.Create(context.Background(), validBookingInput(store.ID))
	require.NoError(t, err)
	require.Equal(t, StatusRequested, created.Status)
	require.Equal(t, int64(3), created.CategoryID)
	require.Len(t, alerts.alerts, 1)

	// Same phone reuses the customer record.
	second, err := svc.Create(context.Background(), validBookingInput(store.ID))
	require.NoError(t, err)
	require.Equal(t, created.CustomerID, second.CustomerID)
}

func TestCreateBookingValidation(t *testing.T) {
	repo := newMemoryBookingRepo()
	svc := NewService(repo, nil, nil)
	store, _ := provision(t, svc)

	input := validBookingInput(store.ID)
	input.StoreID = uuid.New()
	_, err := svc.Create(context.Background(), input)
	require.ErrorIs(t, err, ErrNotFound)

	input = validBookingInput(store.ID)
	input.ServiceID = 2
	_, err = svc.Create(context.Background(), input)
	require.ErrorIs(t, err, ErrValidation)

	input = validBookingInput(store.ID)
	input.SlotID = 42
	_, err = svc.Create(context.Background(), input)
	require.ErrorIs(t, err, ErrNotFound)

	input = validBookingInput(store.ID)
	input.Type = "teleport"
	_, err = svc.Create(context.Background(), input)
	require.ErrorIs(t, err, ErrValidation)
}

func TestNoAlertWhenChannelIsNone(t *testing.T) {
	repo := newMemoryBookingRepo()
	alerts := &capturedAlerts{}
	svc := NewService(repo, alerts, nil)
	store, _ := provision(t, svc)

	input := validBookingInput(store.ID)
	input.AlertType = AlertNone
	_, err := svc.Create(context.Background(), input)
	require.NoError(t, err)
	require.Empty(t, alerts.alerts)
}

func TestStatusFunnelWithLog(t *testing.T) {
	repo := newMemoryBookingRepo()
	alerts := &capturedAlerts{}
	svc := NewService(repo, alerts, nil)
	store, _ := provision(t, svc)

	created, err := svc.Create(context.Background(), validBookingInput(store.ID))
	require.NoError(t, err)

	confirmed, err := svc.UpdateStatus(context.Background(), created.ID, StatusConfirmed, "manager:pat")
	require.NoError(t, err)
	require.Equal(t, StatusConfirmed, confirmed.Status)

	completed, err := svc.UpdateStatus(context.Background(), created.ID, StatusCompleted, "manager:pat")
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, completed.Status)

	// Completed is terminal.
	_, err = svc.UpdateStatus(context.Background(), created.ID, StatusCancelled, "manager:pat")
	require.ErrorIs(t, err, ErrStatusTransition)

	history, err := svc.StatusHistory(context.Background(), created.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, StatusRequested, history[0].From)
	require.Equal(t, StatusConfirmed, history[0].To)
	require.Equal(t, "manager:pat", history[0].Actor)
	require.Equal(t, StatusCompleted, history[1].To)
}

func TestRequestedCannotComplete(t *testing.T) {
	repo := newMemoryBookingRepo()
	svc := NewService(repo, nil, nil)
	store, _ := provision(t, svc)

	created, err := svc.Create(context.Background(), validBookingInput(store.ID))
	require.NoError(t, err)

	_, err = svc.UpdateStatus(context.Background(), created.ID, StatusCompleted, "system")
	require.ErrorIs(t, err, ErrStatusTransition)
}

func TestServiceCatalogCRUD(t *testing.T) {
	svc := NewService(newMemoryBookingRepo(), nil, nil)

	_, err := svc.CreateServiceCategory(context.Background(), "  ")
	require.ErrorIs(t, err, ErrValidation)

	category, err := svc.CreateServiceCategory(context.Background(), "Lens Care")
	require.NoError(t, err)
	require.True(t, category.IsActive)

	// Offerings need an existing category and default to a 30 minute slot.
	_, err = svc.CreateOffering(context.Background(), OfferingInput{CategoryID: 999, Name: "Cleaning"})
	require.ErrorIs(t, err, ErrNotFound)

	offering, err := svc.CreateOffering(context.Background(), OfferingInput{CategoryID: category.ID, Name: "Cleaning"})
	require.NoError(t, err)
	require.Equal(t, 30, offering.DurationMins)

	byCategory, err := svc.ListOfferings(context.Background(), category.ID)
	require.NoError(t, err)
	require.Len(t, byCategory, 1)
	require.Equal(t, offering.ID, byCategory[0].ID)

	all, err := svc.ListOfferings(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, all, 3)

	slot, err := svc.CreateTimeSlot(context.Background(), "17:00-17:30")
	require.NoError(t, err)
	require.NotZero(t, slot.ID)

	slots, err := svc.ListTimeSlots(context.Background())
	require.NoError(t, err)
	require.Len(t, slots, 2)
}
