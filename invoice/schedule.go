package invoice

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ldg-erp/duework/errors"
	"github.com/ldg-erp/duework/job"
)

// ScheduleReminder books a payment reminder for an invoice at remindAt.
// A remindAt in the past fires on the next poll.
func ScheduleReminder(ctx context.Context, scheduler Scheduler, invoiceID, customerEmail, companyName string, remindAt time.Time) (*job.Job, error) {
	payload, err := json.Marshal(ReminderPayload{
		InvoiceID:     invoiceID,
		CustomerEmail: customerEmail,
		CompanyName:   companyName,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode reminder payload")
	}

	return scheduler.EnqueueAt(ctx, KindReminder, payload, remindAt)
}

// ScheduleRecurring books the first generation run of a recurring
// series at generateAt. Subsequent runs re-enqueue themselves.
func ScheduleRecurring(ctx context.Context, scheduler Scheduler, invoiceID string, generateAt time.Time) (*job.Job, error) {
	payload, err := json.Marshal(RecurringPayload{InvoiceID: invoiceID})
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode recurring payload")
	}

	return scheduler.EnqueueAt(ctx, KindRecurringGenerate, payload, generateAt)
}
