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
	"github.com/ldg-erp/duework/mail"
)

// KindReminder is the job kind for payment reminder emails
const KindReminder = "invoice.reminder"

// ReminderPayload identifies the invoice to remind about. CompanyName
// is carried for the email body; invoices only store the company id.
type ReminderPayload struct {
	InvoiceID     string `json:"invoiceId"`
	CustomerEmail string `json:"customerEmail"`
	CompanyName   string `json:"companyName,omitempty"`
}

// ReminderHandler sends a payment reminder for an unpaid invoice.
// Invoices paid before the reminder fires are skipped, not failed.
type ReminderHandler struct {
	store   *Store
	sender  mail.Sender
	limiter *mail.Limiter
	baseURL string
	log     *zap.SugaredLogger
}

// NewReminderHandler creates the reminder handler. limiter may be nil
// to send unthrottled.
func NewReminderHandler(store *Store, sender mail.Sender, limiter *mail.Limiter, baseURL string) *ReminderHandler {
	return &ReminderHandler{
		store:   store,
		sender:  sender,
		limiter: limiter,
		baseURL: baseURL,
		log:     logger.ComponentLogger("invoice.reminder"),
	}
}

func (h *ReminderHandler) Kind() string { return KindReminder }

// ValidatePayload rejects reminder jobs without an invoice reference
func (h *ReminderHandler) ValidatePayload(payload json.RawMessage) error {
	var p ReminderPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return errors.Wrap(err, "malformed reminder payload")
	}
	if p.InvoiceID == "" {
		return errors.New("invoiceId is required")
	}
	if p.CustomerEmail == "" {
		return errors.New("customerEmail is required")
	}
	return nil
}

func (h *ReminderHandler) Execute(ctx context.Context, j *job.Job) (json.RawMessage, error) {
	var p ReminderPayload
	if err := json.Unmarshal(j.Payload, &p); err != nil {
		return nil, job.NonRetryable(errors.Wrap(err, "malformed reminder payload"))
	}

	inv, err := h.store.GetInvoice(p.InvoiceID)
	if errors.IsNotFoundError(err) {
		// The invoice was deleted after scheduling. Retrying cannot help.
		return nil, job.NonRetryable(err)
	}
	if err != nil {
		return nil, err
	}

	if inv.Status == StatusPaid {
		h.log.Infow("Skipping reminder for paid invoice",
			logger.FieldInvoiceID, inv.ID,
			"invoice_number", inv.Number,
		)
		return skippedResult("already_paid"), nil
	}

	if h.limiter != nil {
		if err := h.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	msg := &mail.Message{
		To:      p.CustomerEmail,
		Subject: fmt.Sprintf("Payment reminder: invoice %s", inv.Number),
		Body:    h.reminderBody(inv, p.CompanyName),
	}
	if err := h.sender.Send(ctx, msg); err != nil {
		return nil, errors.Wrapf(err, "failed to send reminder for invoice %s", inv.Number)
	}

	now := time.Now()
	if err := h.store.MarkReminderSent(inv.ID, now); err != nil {
		return nil, err
	}

	activity := &Activity{
		CompanyID:   inv.CompanyID,
		Type:        ActivityInvoiceSent,
		Title:       fmt.Sprintf("Payment reminder sent for invoice %s", inv.Number),
		Description: fmt.Sprintf("Reminder emailed to %s", p.CustomerEmail),
		EntityType:  "invoice",
		EntityID:    inv.ID,
	}
	if err := h.store.RecordActivity(activity); err != nil {
		// The reminder went out. A missing feed entry is not worth a resend.
		h.log.Warnw("Failed to record reminder activity",
			logger.FieldInvoiceID, inv.ID,
			logger.FieldError, err,
		)
	}

	h.log.Infow("Payment reminder sent",
		logger.FieldInvoiceID, inv.ID,
		"invoice_number", inv.Number,
		"to", p.CustomerEmail,
	)

	return json.RawMessage(fmt.Sprintf(`{"sent":true,"invoiceId":%q}`, inv.ID)), nil
}

func (h *ReminderHandler) reminderBody(inv *Invoice, companyName string) string {
	from := ""
	if companyName != "" {
		from = fmt.Sprintf(" from %s", companyName)
	}
	return fmt.Sprintf(
		"Invoice %s%s for %s is due on %s.\n\nView it at %s/invoices/%s\n",
		inv.Number,
		from,
		formatCents(inv.TotalAmount),
		formatDate(inv.DueDate),
		h.baseURL,
		inv.ID,
	)
}

func skippedResult(reason string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"skipped":true,"reason":%q}`, reason))
}
