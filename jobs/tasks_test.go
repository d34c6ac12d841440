package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/flowbill/flowbill/internal/booking"
	"github.com/flowbill/flowbill/internal/grn"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBookingAlertTaskRoundTrip(t *testing.T) {
	task, err := NewBookingAlertTask(BookingAlertPayload{
		BookingID: "b-1",
		Status:    booking.StatusConfirmed,
		AlertType: booking.AlertSMS,
		Date:      time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Equal(t, TaskTypeBookingAlert, task.Type())

	handler := HandleBookingAlertTask(discardLogger())
	require.NoError(t, handler(context.Background(), task))
}

func TestBookingAlertHandlerSkipsBadPayload(t *testing.T) {
	handler := HandleBookingAlertTask(discardLogger())
	task := asynq.NewTask(TaskTypeBookingAlert, []byte("{"))
	err := handler(context.Background(), task)
	require.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestGRNCreatedTaskRoundTrip(t *testing.T) {
	poID := int64(4)
	task, err := NewGRNCreatedTask(grn.GRNCreatedEvent{
		GRNID:  9,
		Number: "GRN-WH-4-abcd1234",
		Type:   grn.TypeWarehouse,
		Status: grn.StatusFull,
		POID:   &poID,
	})
	require.NoError(t, err)
	require.Equal(t, TaskTypeGRNCreated, task.Type())

	handler := HandleGRNCreatedTask(discardLogger())
	require.NoError(t, handler(context.Background(), task))
}
