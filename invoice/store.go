package invoice

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ldg-erp/duework/errors"
	"github.com/ldg-erp/duework/recur"
)

// Store handles persistence of invoices, line items, and activities
type Store struct {
	db *sql.DB
}

// NewStore creates a new invoice store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const invoiceColumns = `id, company_id, customer_id, invoice_number, status,
	issue_date, due_date, subtotal, tax_rate, tax_amount, discount_amount,
	total_amount, notes, terms, reminder_sent, reminder_sent_at, is_recurring,
	recurring_interval, recurring_end_date, next_invoice_date,
	parent_invoice_id, created_at, updated_at`

// CreateInvoice inserts an invoice and its line items in one transaction.
// Missing IDs and timestamps are filled in.
func (s *Store) CreateInvoice(inv *Invoice) error {
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	now := time.Now()
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = now
	}
	inv.UpdatedAt = now

	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "failed to begin invoice transaction")
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO invoices (
			id, company_id, customer_id, invoice_number, status,
			issue_date, due_date, subtotal, tax_rate, tax_amount,
			discount_amount, total_amount, notes, terms,
			is_recurring, recurring_interval, recurring_end_date,
			next_invoice_date, parent_invoice_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID,
		inv.CompanyID,
		inv.CustomerID,
		inv.Number,
		inv.Status,
		inv.IssueDate.UTC(),
		inv.DueDate.UTC(),
		inv.Subtotal,
		inv.TaxRate,
		inv.TaxAmount,
		inv.DiscountAmount,
		inv.TotalAmount,
		nullString(inv.Notes),
		nullString(inv.Terms),
		inv.IsRecurring,
		nullString(string(inv.RecurringInterval)),
		nullTime(inv.RecurringEndDate),
		nullTime(inv.NextInvoiceDate),
		nullString(inv.ParentInvoiceID),
		inv.CreatedAt.UTC(),
		inv.UpdatedAt.UTC(),
	)
	if err != nil {
		return errors.Wrapf(err, "failed to create invoice %s", inv.Number)
	}

	for i := range inv.Items {
		item := &inv.Items[i]
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		item.InvoiceID = inv.ID
		if item.SortOrder == 0 {
			item.SortOrder = i
		}

		_, err = tx.Exec(`
			INSERT INTO invoice_items (
				id, invoice_id, description, quantity, unit_price, amount, sort_order
			) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			item.ID, item.InvoiceID, item.Description,
			item.Quantity, item.UnitPrice, item.Amount, item.SortOrder,
		)
		if err != nil {
			return errors.Wrapf(err, "failed to create invoice item %q", item.Description)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit invoice")
	}

	return nil
}

// GetInvoice retrieves an invoice with its line items
func (s *Store) GetInvoice(id string) (*Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = ?`

	inv, err := scanInvoice(s.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("invoice %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get invoice")
	}

	rows, err := s.db.Query(`
		SELECT id, invoice_id, description, quantity, unit_price, amount, sort_order
		FROM invoice_items
		WHERE invoice_id = ?
		ORDER BY sort_order ASC`, id)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get invoice items")
	}
	defer rows.Close()

	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.InvoiceID, &item.Description,
			&item.Quantity, &item.UnitPrice, &item.Amount, &item.SortOrder); err != nil {
			return nil, errors.Wrap(err, "failed to scan invoice item")
		}
		inv.Items = append(inv.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating invoice items")
	}

	return inv, nil
}

// MarkReminderSent records that a payment reminder went out
func (s *Store) MarkReminderSent(id string, at time.Time) error {
	res, err := s.db.Exec(`
		UPDATE invoices
		SET reminder_sent = 1, reminder_sent_at = ?, updated_at = ?
		WHERE id = ?`,
		at.UTC(), time.Now().UTC(), id,
	)
	if err != nil {
		return errors.Wrap(err, "failed to mark reminder sent")
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.NewNotFoundError("invoice %s", id)
	}

	return nil
}

// UpdateNextInvoiceDate advances the recurring schedule on an invoice.
// A nil next date ends the series.
func (s *Store) UpdateNextInvoiceDate(id string, next *time.Time) error {
	res, err := s.db.Exec(`
		UPDATE invoices
		SET next_invoice_date = ?, updated_at = ?
		WHERE id = ?`,
		nullTime(next), time.Now().UTC(), id,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update next invoice date")
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.NewNotFoundError("invoice %s", id)
	}

	return nil
}

// AllocateInvoiceNumber hands out the next invoice number for a company.
// The counter row is bumped inside a transaction so two concurrent
// generators can never receive the same number.
func (s *Store) AllocateInvoiceNumber(companyID string) (string, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return "", errors.Wrap(err, "failed to begin counter transaction")
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO invoice_counters (company_id, next_number) VALUES (?, 2)
		ON CONFLICT(company_id) DO UPDATE SET next_number = next_number + 1`,
		companyID,
	)
	if err != nil {
		return "", errors.Wrap(err, "failed to bump invoice counter")
	}

	// The counter now points past the number we just took
	var next int64
	err = tx.QueryRow(
		`SELECT next_number FROM invoice_counters WHERE company_id = ?`,
		companyID,
	).Scan(&next)
	if err != nil {
		return "", errors.Wrap(err, "failed to read invoice counter")
	}

	if err := tx.Commit(); err != nil {
		return "", errors.Wrap(err, "failed to commit invoice counter")
	}

	return fmt.Sprintf("INV-%06d", next-1), nil
}

// RecordActivity appends an entry to the company activity feed
func (s *Store) RecordActivity(a *Activity) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}

	_, err := s.db.Exec(`
		INSERT INTO activities (
			id, company_id, type, title, description, entity_type, entity_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.CompanyID, a.Type, a.Title,
		nullString(a.Description), nullString(a.EntityType), nullString(a.EntityID),
		a.CreatedAt.UTC(),
	)
	if err != nil {
		return errors.Wrap(err, "failed to record activity")
	}

	return nil
}

// ListActivities returns a company's activity feed, newest first
func (s *Store) ListActivities(companyID string, limit int) ([]*Activity, error) {
	rows, err := s.db.Query(`
		SELECT id, company_id, type, title, description, entity_type, entity_id, created_at
		FROM activities
		WHERE company_id = ?
		ORDER BY created_at DESC
		LIMIT ?`, companyID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list activities")
	}
	defer rows.Close()

	var activities []*Activity
	for rows.Next() {
		var a Activity
		var description, entityType, entityID sql.NullString
		if err := rows.Scan(&a.ID, &a.CompanyID, &a.Type, &a.Title,
			&description, &entityType, &entityID, &a.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan activity")
		}
		a.Description = description.String
		a.EntityType = entityType.String
		a.EntityID = entityID.String
		activities = append(activities, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating activities")
	}

	return activities, nil
}

func scanInvoice(r interface{ Scan(...interface{}) error }) (*Invoice, error) {
	var inv Invoice
	var notes, terms, interval, parentID sql.NullString
	var reminderSentAt, endDate, nextDate sql.NullTime

	err := r.Scan(
		&inv.ID,
		&inv.CompanyID,
		&inv.CustomerID,
		&inv.Number,
		&inv.Status,
		&inv.IssueDate,
		&inv.DueDate,
		&inv.Subtotal,
		&inv.TaxRate,
		&inv.TaxAmount,
		&inv.DiscountAmount,
		&inv.TotalAmount,
		&notes,
		&terms,
		&inv.ReminderSent,
		&reminderSentAt,
		&inv.IsRecurring,
		&interval,
		&endDate,
		&nextDate,
		&parentID,
		&inv.CreatedAt,
		&inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	inv.Notes = notes.String
	inv.Terms = terms.String
	inv.RecurringInterval = recur.Interval(interval.String)
	inv.ParentInvoiceID = parentID.String
	if reminderSentAt.Valid {
		t := reminderSentAt.Time
		inv.ReminderSentAt = &t
	}
	if endDate.Valid {
		t := endDate.Time
		inv.RecurringEndDate = &t
	}
	if nextDate.Valid {
		t := nextDate.Time
		inv.NextInvoiceDate = &t
	}

	return &inv, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
