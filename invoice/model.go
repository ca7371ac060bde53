// Package invoice provides invoice persistence and the scheduled jobs
// that operate on invoices: payment reminders and recurring generation.
package invoice

import (
	"time"

	"github.com/ldg-erp/duework/recur"
)

// InvoiceStatus tracks an invoice through its billing lifecycle
type InvoiceStatus string

const (
	StatusDraft     InvoiceStatus = "DRAFT"
	StatusSent      InvoiceStatus = "SENT"
	StatusPaid      InvoiceStatus = "PAID"
	StatusOverdue   InvoiceStatus = "OVERDUE"
	StatusCancelled InvoiceStatus = "CANCELLED"
)

// Invoice is a customer invoice. All monetary amounts are cents.
type Invoice struct {
	ID         string        `json:"id"`
	CompanyID  string        `json:"companyId"`
	CustomerID string        `json:"customerId"`
	Number     string        `json:"invoiceNumber"`
	Status     InvoiceStatus `json:"status"`
	IssueDate  time.Time     `json:"issueDate"`
	DueDate    time.Time     `json:"dueDate"`

	Subtotal       int64   `json:"subtotal"`
	TaxRate        float64 `json:"taxRate"`
	TaxAmount      int64   `json:"taxAmount"`
	DiscountAmount int64   `json:"discountAmount"`
	TotalAmount    int64   `json:"totalAmount"`

	Notes string `json:"notes,omitempty"`
	Terms string `json:"terms,omitempty"`

	ReminderSent   bool       `json:"reminderSent"`
	ReminderSentAt *time.Time `json:"reminderSentAt,omitempty"`

	IsRecurring       bool           `json:"isRecurring"`
	RecurringInterval recur.Interval `json:"recurringInterval,omitempty"`
	RecurringEndDate  *time.Time     `json:"recurringEndDate,omitempty"`
	NextInvoiceDate   *time.Time     `json:"nextInvoiceDate,omitempty"`
	ParentInvoiceID   string         `json:"parentInvoiceId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Items []Item `json:"items,omitempty"`
}

// Item is a single invoice line. UnitPrice and Amount are cents.
type Item struct {
	ID          string  `json:"id"`
	InvoiceID   string  `json:"invoiceId"`
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   int64   `json:"unitPrice"`
	Amount      int64   `json:"amount"`
	SortOrder   int     `json:"sortOrder"`
}

// Activity types recorded by the invoice jobs
const (
	ActivityInvoiceSent    = "INVOICE_SENT"
	ActivityInvoiceCreated = "INVOICE_CREATED"
)

// Activity is an entry in the company activity feed
type Activity struct {
	ID          string    `json:"id"`
	CompanyID   string    `json:"companyId"`
	Type        string    `json:"type"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	EntityType  string    `json:"entityType,omitempty"`
	EntityID    string    `json:"entityId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}
