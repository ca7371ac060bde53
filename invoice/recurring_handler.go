package invoice

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ldg-erp/duework/errors"
	"github.com/ldg-erp/duework/job"
	"github.com/ldg-erp/duework/logger"
	"github.com/ldg-erp/duework/recur"
)

// KindRecurringGenerate is the job kind that creates the next invoice
// in a recurring series.
const KindRecurringGenerate = "invoice.recurring-generate"

// RecurringPayload identifies the template invoice to generate from
type RecurringPayload struct {
	InvoiceID string `json:"invoiceId"`
}

// Scheduler is the slice of the job queue the generator needs to
// schedule the next run of a series.
type Scheduler interface {
	EnqueueAt(ctx context.Context, kind string, payload json.RawMessage, runAt time.Time) (*job.Job, error)
}

// RecurringHandler generates the next invoice in a recurring series:
// a draft copy of the template with a fresh number, then re-enqueues
// itself for the following occurrence.
type RecurringHandler struct {
	store     *Store
	scheduler Scheduler
	clock     recur.Clock
	log       *zap.SugaredLogger
}

// NewRecurringHandler creates the recurring invoice generator.
// clock may be nil to use the system clock.
func NewRecurringHandler(store *Store, scheduler Scheduler, clock recur.Clock) *RecurringHandler {
	if clock == nil {
		clock = recur.SystemClock{}
	}
	return &RecurringHandler{
		store:     store,
		scheduler: scheduler,
		clock:     clock,
		log:       logger.ComponentLogger("invoice.recurring"),
	}
}

func (h *RecurringHandler) Kind() string { return KindRecurringGenerate }

// ValidatePayload rejects generation jobs without an invoice reference
func (h *RecurringHandler) ValidatePayload(payload json.RawMessage) error {
	var p RecurringPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return errors.Wrap(err, "malformed recurring payload")
	}
	if p.InvoiceID == "" {
		return errors.New("invoiceId is required")
	}
	return nil
}

func (h *RecurringHandler) Execute(ctx context.Context, j *job.Job) (json.RawMessage, error) {
	var p RecurringPayload
	if err := json.Unmarshal(j.Payload, &p); err != nil {
		return nil, job.NonRetryable(errors.Wrap(err, "malformed recurring payload"))
	}

	template, err := h.store.GetInvoice(p.InvoiceID)
	if errors.IsNotFoundError(err) {
		return nil, job.NonRetryable(err)
	}
	if err != nil {
		return nil, err
	}

	if !template.IsRecurring {
		return nil, job.NonRetryable(
			errors.Newf("invoice %s is not recurring", template.Number))
	}
	if !template.RecurringInterval.IsValid() {
		return nil, job.NonRetryable(
			errors.Newf("invoice %s has invalid interval %q",
				template.Number, template.RecurringInterval))
	}

	now := h.clock.Now()

	// The series may have ended since this run was scheduled
	if template.RecurringEndDate != nil && !template.RecurringEndDate.After(now) {
		if err := h.store.UpdateNextInvoiceDate(template.ID, nil); err != nil {
			return nil, err
		}
		h.log.Infow("Recurring series ended",
			logger.FieldInvoiceID, template.ID,
			"invoice_number", template.Number,
			"end_date", template.RecurringEndDate,
		)
		return skippedResult("series_ended"), nil
	}

	number, err := h.store.AllocateInvoiceNumber(template.CompanyID)
	if err != nil {
		return nil, err
	}

	dueDate, err := recur.Next(template.RecurringInterval, now)
	if err != nil {
		return nil, job.NonRetryable(err)
	}

	generated := h.copyFromTemplate(template, number, now, dueDate)
	if err := h.store.CreateInvoice(generated); err != nil {
		return nil, err
	}

	// Advance the schedule and book the next run
	next, err := recur.Next(template.RecurringInterval, h.occurrenceDate(template, now))
	if err != nil {
		return nil, job.NonRetryable(err)
	}
	if err := h.store.UpdateNextInvoiceDate(template.ID, &next); err != nil {
		return nil, err
	}

	if _, err := h.scheduler.EnqueueAt(ctx, KindRecurringGenerate, j.Payload, next); err != nil {
		return nil, errors.Wrapf(err, "failed to schedule next run for invoice %s", template.Number)
	}

	activity := &Activity{
		CompanyID:   template.CompanyID,
		Type:        ActivityInvoiceCreated,
		Title:       fmt.Sprintf("Invoice %s generated from recurring series %s", number, template.Number),
		Description: fmt.Sprintf("Amount %s, due %s", formatCents(generated.TotalAmount), formatDate(generated.DueDate)),
		EntityType:  "invoice",
		EntityID:    generated.ID,
	}
	if err := h.store.RecordActivity(activity); err != nil {
		h.log.Warnw("Failed to record generation activity",
			logger.FieldInvoiceID, generated.ID,
			logger.FieldError, err,
		)
	}

	h.log.Infow("Recurring invoice generated",
		logger.FieldInvoiceID, generated.ID,
		"invoice_number", number,
		"template_id", template.ID,
		"next_run", next,
	)

	return json.RawMessage(fmt.Sprintf(
		`{"generated":true,"invoiceId":%q,"invoiceNumber":%q}`,
		generated.ID, number,
	)), nil
}

// occurrenceDate picks the base for the next occurrence. The recorded
// next_invoice_date keeps the cadence anchored even when the job runs
// late; a series without one falls back to the current run.
func (h *RecurringHandler) occurrenceDate(template *Invoice, now time.Time) time.Time {
	if template.NextInvoiceDate != nil {
		return *template.NextInvoiceDate
	}
	return now
}

// copyFromTemplate builds the generated invoice. Amounts, notes, terms,
// and line items carry over; the due date falls one series interval
// after issue, with the same calendar clamping the schedule uses.
func (h *RecurringHandler) copyFromTemplate(template *Invoice, number string, now, dueDate time.Time) *Invoice {
	generated := &Invoice{
		CompanyID:       template.CompanyID,
		CustomerID:      template.CustomerID,
		Number:          number,
		Status:          StatusDraft,
		IssueDate:       now,
		DueDate:         dueDate,
		Subtotal:        template.Subtotal,
		TaxRate:         template.TaxRate,
		TaxAmount:       template.TaxAmount,
		DiscountAmount:  template.DiscountAmount,
		TotalAmount:     template.TotalAmount,
		Notes:           template.Notes,
		Terms:           template.Terms,
		ParentInvoiceID: template.ID,
	}

	for _, item := range template.Items {
		generated.Items = append(generated.Items, Item{
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Amount:      item.Amount,
			SortOrder:   item.SortOrder,
		})
	}

	return generated
}
