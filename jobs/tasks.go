package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flowbill/flowbill/internal/booking"
	"github.com/flowbill/flowbill/internal/grn"
	"github.com/flowbill/flowbill/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeBookingAlert notifies a customer about a booking change.
	TaskTypeBookingAlert = "booking:alert"
	// TaskTypeGRNCreated fans out a committed goods receipt to integrations.
	TaskTypeGRNCreated = "grn:created"
	// TaskTypeIdempotencyCleanup prunes aged idempotency keys.
	TaskTypeIdempotencyCleanup = "idempotency:cleanup"
)

// BookingAlertPayload carries the booking state a notification renders from.
type BookingAlertPayload struct {
	BookingID  string                `json:"booking_id"`
	CustomerID string                `json:"customer_id"`
	Status     booking.BookingStatus `json:"status"`
	AlertType  booking.AlertType     `json:"alert_type"`
	Date       time.Time             `json:"date"`
}

// NewBookingAlertTask constructs an Asynq task.
func NewBookingAlertTask(payload BookingAlertPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeBookingAlert, data), nil
}

// HandleBookingAlertTask processes TaskTypeBookingAlert tasks. Delivery to
// the SMS/WhatsApp gateway is out of scope; the worker records the dispatch.
func HandleBookingAlertTask(logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload BookingAlertPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		logger.Info("booking alert dispatched",
			slog.String("booking_id", payload.BookingID),
			slog.String("status", string(payload.Status)),
			slog.String("channel", string(payload.AlertType)))
		return nil
	}
}

// NewGRNCreatedTask constructs an Asynq task from a receipt event.
func NewGRNCreatedTask(event grn.GRNCreatedEvent) (*asynq.Task, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeGRNCreated, data), nil
}

// HandleGRNCreatedTask processes TaskTypeGRNCreated tasks.
func HandleGRNCreatedTask(logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var event grn.GRNCreatedEvent
		if err := json.Unmarshal(t.Payload(), &event); err != nil {
			return asynq.SkipRetry
		}
		logger.Info("grn integration fanout",
			slog.String("number", event.Number),
			slog.String("type", string(event.Type)),
			slog.String("status", string(event.Status)))
		return nil
	}
}

// NewIdempotencyCleanupTask constructs the nightly cleanup task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskTypeIdempotencyCleanup, nil)
}

// idempotencyRetention is how long consumed request keys are kept for replay.
const idempotencyRetention = 7 * 24 * time.Hour

// HandleIdempotencyCleanupTask prunes idempotency keys past retention.
func HandleIdempotencyCleanupTask(pool *pgxpool.Pool, logger *slog.Logger) asynq.HandlerFunc {
	store := shared.NewIdempotencyStore(pool)
	return func(ctx context.Context, t *asynq.Task) error {
		if err := store.Cleanup(ctx, idempotencyRetention); err != nil {
			return err
		}
		logger.Info("idempotency cleanup done")
		return nil
	}
}
