package booking

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	ProvisionStore(ctx context.Context, store Store, manager StoreManager) (Store, StoreManager, error)
	GetStore(ctx context.Context, id uuid.UUID) (Store, error)
	GetManager(ctx context.Context, id uuid.UUID) (StoreManager, error)
	SetManagerActive(ctx context.Context, id uuid.UUID, active bool) error
	UpsertCustomer(ctx context.Context, c Customer) (Customer, error)
	CreateServiceCategory(ctx context.Context, c ServiceCategory) (ServiceCategory, error)
	ListServiceCategories(ctx context.Context) ([]ServiceCategory, error)
	CreateOffering(ctx context.Context, o Offering) (Offering, error)
	ListOfferings(ctx context.Context, categoryID int64) ([]Offering, error)
	CreateTimeSlot(ctx context.Context, s TimeSlot) (TimeSlot, error)
	ListTimeSlots(ctx context.Context) ([]TimeSlot, error)
	GetOffering(ctx context.Context, id int64) (Offering, error)
	SlotExists(ctx context.Context, id int64) (bool, error)
	CreateBooking(ctx context.Context, b Booking) (Booking, error)
	GetBooking(ctx context.Context, id uuid.UUID) (Booking, error)
	Search(ctx context.Context, filter SearchFilter) ([]Booking, int, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to BookingStatus, actor string) error
	StatusHistory(ctx context.Context, id uuid.UUID) ([]StatusLog, error)
}

// Notifier dispatches booking alerts out of band. Delivery is best effort;
// a failed enqueue never fails the booking write.
type Notifier interface {
	BookingAlert(ctx context.Context, b Booking) error
}

// Service coordinates booking operations.
type Service struct {
	repo     RepositoryPort
	notifier Notifier
	logger   *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, notifier Notifier, logger *slog.Logger) *Service {
	return &Service{repo: repo, notifier: notifier, logger: logger}
}

// ProvisionInput creates a store together with its first manager.
type ProvisionInput struct {
	StoreName    string  `json:"store_name" validate:"required"`
	Address      string  `json:"address"`
	Phone        string  `json:"phone"`
	ManagerName  string  `json:"manager_name" validate:"required"`
	ManagerPhone string  `json:"manager_phone"`
	Passcode     string  `json:"passcode" validate:"required,min=4"`
	CategoryIDs  []int64 `json:"category_ids"`
	ServiceIDs   []int64 `json:"service_ids"`
}

// ProvisionStore creates the store and manager atomically. The manager
// passcode is hashed before it reaches the repository.
func (s *Service) ProvisionStore(ctx context.Context, input ProvisionInput) (Store, StoreManager, error) {
	if strings.TrimSpace(input.StoreName) == "" || strings.TrimSpace(input.ManagerName) == "" {
		return Store{}, StoreManager{}, fmt.Errorf("%w: store and manager names are required", ErrValidation)
	}
	if len(input.Passcode) < 4 {
		return Store{}, StoreManager{}, fmt.Errorf("%w: passcode must be at least 4 characters", ErrValidation)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Passcode), bcrypt.DefaultCost)
	if err != nil {
		return Store{}, StoreManager{}, err
	}

	store := Store{
		ID:       uuid.New(),
		Name:     strings.TrimSpace(input.StoreName),
		Address:  input.Address,
		Phone:    input.Phone,
		IsActive: true,
	}
	manager := StoreManager{
		ID:           uuid.New(),
		Name:         strings.TrimSpace(input.ManagerName),
		Phone:        input.ManagerPhone,
		PasscodeHash: string(hash),
		CategoryIDs:  input.CategoryIDs,
		ServiceIDs:   input.ServiceIDs,
		IsActive:     true,
	}
	store, manager, err = s.repo.ProvisionStore(ctx, store, manager)
	if err != nil {
		return Store{}, StoreManager{}, err
	}
	if s.logger != nil {
		s.logger.Info("store provisioned",
			slog.String("store_id", store.ID.String()),
			slog.String("manager_id", manager.ID.String()))
	}
	return store, manager, nil
}

// SetManagerActive toggles a manager's active flag.
func (s *Service) SetManagerActive(ctx context.Context, id uuid.UUID, active bool) error {
	if id == uuid.Nil {
		return fmt.Errorf("%w: manager id required", ErrValidation)
	}
	return s.repo.SetManagerActive(ctx, id, active)
}

// VerifyManagerPasscode checks a manager's passcode. Inactive managers fail
// the check regardless of the passcode.
func (s *Service) VerifyManagerPasscode(ctx context.Context, id uuid.UUID, passcode string) error {
	manager, err := s.repo.GetManager(ctx, id)
	if err != nil {
		return err
	}
	if !manager.IsActive {
		return ErrPasscode
	}
	if bcrypt.CompareHashAndPassword([]byte(manager.PasscodeHash), []byte(passcode)) != nil {
		return ErrPasscode
	}
	return nil
}

// CreateServiceCategory registers a category bookable services hang off.
func (s *Service) CreateServiceCategory(ctx context.Context, name string) (ServiceCategory, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return ServiceCategory{}, fmt.Errorf("%w: category name is required", ErrValidation)
	}
	return s.repo.CreateServiceCategory(ctx, ServiceCategory{Name: name, IsActive: true})
}

// ListServiceCategories returns every category.
func (s *Service) ListServiceCategories(ctx context.Context) ([]ServiceCategory, error) {
	return s.repo.ListServiceCategories(ctx)
}

// OfferingInput is the write shape for new offerings.
type OfferingInput struct {
	CategoryID   int64  `json:"category_id" validate:"required,gt=0"`
	Name         string `json:"name" validate:"required"`
	DurationMins int    `json:"duration_mins" validate:"gte=0"`
}

// CreateOffering registers a bookable service under an existing category.
// Duration defaults to 30 minutes when omitted.
func (s *Service) CreateOffering(ctx context.Context, input OfferingInput) (Offering, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Offering{}, fmt.Errorf("%w: offering name is required", ErrValidation)
	}
	if input.CategoryID <= 0 {
		return Offering{}, fmt.Errorf("%w: category_id is required", ErrValidation)
	}
	categories, err := s.repo.ListServiceCategories(ctx)
	if err != nil {
		return Offering{}, err
	}
	found := false
	for _, c := range categories {
		if c.ID == input.CategoryID {
			found = true
			break
		}
	}
	if !found {
		return Offering{}, fmt.Errorf("%w: category %d", ErrNotFound, input.CategoryID)
	}
	duration := input.DurationMins
	if duration <= 0 {
		duration = 30
	}
	return s.repo.CreateOffering(ctx, Offering{
		CategoryID:   input.CategoryID,
		Name:         name,
		DurationMins: duration,
		IsActive:     true,
	})
}

// ListOfferings returns offerings, filtered by category when categoryID > 0.
func (s *Service) ListOfferings(ctx context.Context, categoryID int64) ([]Offering, error) {
	return s.repo.ListOfferings(ctx, categoryID)
}

// CreateTimeSlot registers a named booking window.
func (s *Service) CreateTimeSlot(ctx context.Context, label string) (TimeSlot, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return TimeSlot{}, fmt.Errorf("%w: slot label is required", ErrValidation)
	}
	return s.repo.CreateTimeSlot(ctx, TimeSlot{Label: label, IsActive: true})
}

// ListTimeSlots returns every slot.
func (s *Service) ListTimeSlots(ctx context.Context) ([]TimeSlot, error) {
	return s.repo.ListTimeSlots(ctx)
}

// CreateInput is the write shape for new bookings.
type CreateInput struct {
	CustomerName  string          `json:"customer_name" validate:"required"`
	CustomerPhone string          `json:"customer_phone" validate:"required"`
	CustomerEmail string          `json:"customer_email"`
	StoreID       uuid.UUID       `json:"store_id" validate:"required"`
	ServiceID     int64           `json:"service_id" validate:"required,gt=0"`
	Type          AppointmentType `json:"type" validate:"required,oneof=home instore"`
	Date          time.Time       `json:"date" validate:"required"`
	SlotID        int64           `json:"slot_id" validate:"required,gt=0"`
	AlertType     AlertType       `json:"alert_type"`
	Notes         string          `json:"notes"`
}

// Create validates the referenced store, offering and slot, upserts the
// customer by phone, and records the booking as requested.
func (s *Service) Create(ctx context.Context, input CreateInput) (Booking, error) {
	if strings.TrimSpace(input.CustomerName) == "" || strings.TrimSpace(input.CustomerPhone) == "" {
		return Booking{}, fmt.Errorf("%w: customer name and phone are required", ErrValidation)
	}
	if input.Type != AppointmentHome && input.Type != AppointmentInStore {
		return Booking{}, fmt.Errorf("%w: type must be home or instore", ErrValidation)
	}
	if input.Date.IsZero() {
		return Booking{}, fmt.Errorf("%w: date is required", ErrValidation)
	}

	store, err := s.repo.GetStore(ctx, input.StoreID)
	if err != nil {
		return Booking{}, err
	}
	if !store.IsActive {
		return Booking{}, fmt.Errorf("%w: store %s is inactive", ErrValidation, store.ID)
	}
	offering, err := s.repo.GetOffering(ctx, input.ServiceID)
	if err != nil {
		return Booking{}, err
	}
	if !offering.IsActive {
		return Booking{}, fmt.Errorf("%w: service %d is inactive", ErrValidation, offering.ID)
	}
	ok, err := s.repo.SlotExists(ctx, input.SlotID)
	if err != nil {
		return Booking{}, err
	}
	if !ok {
		return Booking{}, fmt.Errorf("%w: slot %d", ErrNotFound, input.SlotID)
	}

	customer, err := s.repo.UpsertCustomer(ctx, Customer{
		ID:    uuid.New(),
		Name:  strings.TrimSpace(input.CustomerName),
		Phone: strings.TrimSpace(input.CustomerPhone),
		Email: input.CustomerEmail,
	})
	if err != nil {
		return Booking{}, err
	}

	alert := input.AlertType
	if alert == "" {
		alert = AlertNone
	}
	created, err := s.repo.CreateBooking(ctx, Booking{
		ID:         uuid.New(),
		CustomerID: customer.ID,
		StoreID:    store.ID,
		CategoryID: offering.CategoryID,
		ServiceID:  offering.ID,
		Type:       input.Type,
		Date:       input.Date,
		SlotID:     input.SlotID,
		Status:     StatusRequested,
		AlertType:  alert,
		Notes:      input.Notes,
	})
	if err != nil {
		return Booking{}, err
	}
	s.notify(ctx, created)
	return created, nil
}

// Get returns one booking.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Booking, error) {
	if id == uuid.Nil {
		return Booking{}, fmt.Errorf("%w: booking id required", ErrValidation)
	}
	return s.repo.GetBooking(ctx, id)
}

// Search returns bookings matching the filter.
func (s *Service) Search(ctx context.Context, filter SearchFilter) ([]Booking, int, error) {
	return s.repo.Search(ctx, filter)
}

// UpdateStatus moves a booking through the funnel and logs the transition.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, to BookingStatus, actor string) (Booking, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return Booking{}, err
	}
	if !CanTransition(current.Status, to) {
		return Booking{}, fmt.Errorf("%w: %s -> %s", ErrStatusTransition, current.Status, to)
	}
	if err := s.repo.UpdateStatus(ctx, id, current.Status, to, actor); err != nil {
		return Booking{}, err
	}
	updated, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return Booking{}, err
	}
	s.notify(ctx, updated)
	return updated, nil
}

// StatusHistory returns the booking's status trail.
func (s *Service) StatusHistory(ctx context.Context, id uuid.UUID) ([]StatusLog, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("%w: booking id required", ErrValidation)
	}
	return s.repo.StatusHistory(ctx, id)
}

func (s *Service) notify(ctx context.Context, b Booking) {
	if s.notifier == nil || b.AlertType == AlertNone || b.AlertType == "" {
		return
	}
	if err := s.notifier.BookingAlert(ctx, b); err != nil && s.logger != nil {
		s.logger.Warn("booking alert enqueue failed",
			slog.String("booking_id", b.ID.String()),
			slog.Any("error", err))
	}
}
