package booking

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Store is a branch location customers book appointments at.
type Store struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// StoreManager handles appointments at one store. The passcode is stored as
// a bcrypt hash and never leaves the service.
type StoreManager struct {
	ID           uuid.UUID `json:"id"`
	StoreID      uuid.UUID `json:"store_id"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone,omitempty"`
	PasscodeHash string    `json:"-"`
	CategoryIDs  []int64   `json:"category_ids"`
	ServiceIDs   []int64   `json:"service_ids"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

// Customer is a booking party.
type Customer struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ServiceCategory groups offerings (eye test, dental, grooming).
type ServiceCategory struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}

// Offering is a bookable service under a category.
type Offering struct {
	ID           int64  `json:"id"`
	CategoryID   int64  `json:"category_id"`
	Name         string `json:"name"`
	DurationMins int    `json:"duration_mins"`
	IsActive     bool   `json:"is_active"`
}

// TimeSlot is a named window bookings land in.
type TimeSlot struct {
	ID       int64  `json:"id"`
	Label    string `json:"label"`
	IsActive bool   `json:"is_active"`
}

// AppointmentType says where the service is rendered.
type AppointmentType string

const (
	AppointmentHome    AppointmentType = "home"
	AppointmentInStore AppointmentType = "instore"
)

// BookingStatus is the appointment funnel state.
type BookingStatus string

const (
	StatusRequested BookingStatus = "requested"
	StatusConfirmed BookingStatus = "confirmed"
	StatusCompleted BookingStatus = "completed"
	StatusCancelled BookingStatus = "cancelled"
	StatusNoShow    BookingStatus = "no_show"
)

// transitions maps each state to its allowed successors. Completed,
// cancelled and no-show are terminal.
var transitions = map[BookingStatus][]BookingStatus{
	StatusRequested: {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled, StatusNoShow},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to BookingStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ParseStatus validates a status received from the edge.
func ParseStatus(value string) (BookingStatus, error) {
	switch BookingStatus(value) {
	case StatusRequested, StatusConfirmed, StatusCompleted, StatusCancelled, StatusNoShow:
		return BookingStatus(value), nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrValidation, value)
}

// AlertType selects the notification channel for booking updates.
type AlertType string

const (
	AlertNone     AlertType = "none"
	AlertSMS      AlertType = "sms"
	AlertWhatsApp AlertType = "whatsapp"
)

// Booking is one appointment.
type Booking struct {
	ID         uuid.UUID       `json:"id"`
	CustomerID uuid.UUID       `json:"customer_id"`
	StoreID    uuid.UUID       `json:"store_id"`
	CategoryID int64           `json:"category_id"`
	ServiceID  int64           `json:"service_id"`
	Type       AppointmentType `json:"type"`
	Date       time.Time       `json:"date"`
	SlotID     int64           `json:"slot_id"`
	Status     BookingStatus   `json:"status"`
	AlertType  AlertType       `json:"alert_type"`
	Notes      string          `json:"notes,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// StatusLog is one append-only entry of the booking's status history.
type StatusLog struct {
	ID        int64         `json:"id"`
	BookingID uuid.UUID     `json:"booking_id"`
	From      BookingStatus `json:"from"`
	To        BookingStatus `json:"to"`
	Actor     string        `json:"actor"`
	At        time.Time     `json:"at"`
}

// SearchFilter narrows booking listings.
type SearchFilter struct {
	CustomerName string
	StoreID      *uuid.UUID
	Status       BookingStatus
	ServiceID    *int64
	DateFrom     *time.Time
	DateTo       *time.Time
	Limit        int
	Offset       int
}

var (
	// ErrNotFound indicates a missing booking entity.
	ErrNotFound = errors.New("booking: not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("booking: invalid input")
	// ErrStatusTransition indicates a forbidden funnel move.
	ErrStatusTransition = errors.New("booking: invalid status transition")
	// ErrPasscode indicates a failed manager passcode check.
	ErrPasscode = errors.New("booking: passcode mismatch")
)
