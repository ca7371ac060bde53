package invoice

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbtest "github.com/ldg-erp/duework/internal/testing"
	"github.com/ldg-erp/duework/job"
	"github.com/ldg-erp/duework/recur"
)

type recurringFixture struct {
	store *Store
	queue *job.Queue
	h     *RecurringHandler
	now   time.Time
}

func newRecurringFixture(t *testing.T) *recurringFixture {
	t.Helper()
	// Slightly in the future so booked successor runs come out delayed
	return newRecurringFixtureAt(t, time.Now().UTC().Truncate(time.Second).Add(time.Hour))
}

func newRecurringFixtureAt(t *testing.T, now time.Time) *recurringFixture {
	t.Helper()

	conn := dbtest.CreateTestDB(t)
	store := NewStore(conn)

	registry := job.NewRegistry()
	queue := job.NewQueue(conn, registry, job.Options{}, nil)
	h := NewRecurringHandler(store, queue, recur.FixedClock{T: now})
	registry.Register(h)

	return &recurringFixture{store: store, queue: queue, h: h, now: now}
}

func (f *recurringFixture) template(t *testing.T, mutate func(*Invoice)) *Invoice {
	t.Helper()

	next := f.now
	end := f.now.AddDate(1, 0, 0)
	inv := testInvoice("INV-000099")
	inv.IsRecurring = true
	inv.RecurringInterval = recur.Monthly
	inv.RecurringEndDate = &end
	inv.NextInvoiceDate = &next
	if mutate != nil {
		mutate(inv)
	}
	require.NoError(t, f.store.CreateInvoice(inv))
	return inv
}

func recurringJob(t *testing.T, invoiceID string) *job.Job {
	t.Helper()
	raw, err := json.Marshal(RecurringPayload{InvoiceID: invoiceID})
	require.NoError(t, err)
	j, err := job.NewJob(KindRecurringGenerate, raw, time.Now(), job.Options{})
	require.NoError(t, err)
	return j
}

func TestRecurringHandlerGenerates(t *testing.T) {
	f := newRecurringFixture(t)
	template := f.template(t, nil)

	result, err := f.h.Execute(context.Background(), recurringJob(t, template.ID))
	require.NoError(t, err)

	var res struct {
		Generated     bool   `json:"generated"`
		InvoiceID     string `json:"invoiceId"`
		InvoiceNumber string `json:"invoiceNumber"`
	}
	require.NoError(t, json.Unmarshal(result, &res))
	assert.True(t, res.Generated)
	assert.Equal(t, "INV-000001", res.InvoiceNumber)

	t.Run("generated invoice copies the template", func(t *testing.T) {
		generated, err := f.store.GetInvoice(res.InvoiceID)
		require.NoError(t, err)

		assert.Equal(t, StatusDraft, generated.Status)
		assert.Equal(t, template.ID, generated.ParentInvoiceID)
		assert.Equal(t, template.CustomerID, generated.CustomerID)
		assert.Equal(t, template.TotalAmount, generated.TotalAmount)
		assert.Equal(t, template.Notes, generated.Notes)
		assert.Equal(t, template.Terms, generated.Terms)
		assert.False(t, generated.IsRecurring, "copies are plain invoices")
		assert.True(t, f.now.Equal(generated.IssueDate))

		// Due one series interval after issue, not the template's term
		wantDue, err := recur.Next(recur.Monthly, f.now)
		require.NoError(t, err)
		assert.True(t, wantDue.Equal(generated.DueDate))

		require.Len(t, generated.Items, 1)
		assert.Equal(t, "Consulting", generated.Items[0].Description)
		assert.Equal(t, int64(100000), generated.Items[0].Amount)
	})

	t.Run("schedule advances one month", func(t *testing.T) {
		wantNext, err := recur.Next(recur.Monthly, f.now)
		require.NoError(t, err)

		got, err := f.store.GetInvoice(template.ID)
		require.NoError(t, err)
		require.NotNil(t, got.NextInvoiceDate)
		assert.True(t, wantNext.Equal(*got.NextInvoiceDate))
	})

	t.Run("next run is booked", func(t *testing.T) {
		wantNext, err := recur.Next(recur.Monthly, f.now)
		require.NoError(t, err)

		status := job.StatusDelayed
		jobs, err := f.queue.ListJobs(&status, 10)
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, KindRecurringGenerate, jobs[0].Kind)
		assert.True(t, wantNext.Equal(jobs[0].RunAt))
	})

	t.Run("activity recorded", func(t *testing.T) {
		activities, err := f.store.ListActivities(template.CompanyID, 10)
		require.NoError(t, err)
		require.Len(t, activities, 1)
		assert.Equal(t, ActivityInvoiceCreated, activities[0].Type)
		assert.Equal(t, res.InvoiceID, activities[0].EntityID)
	})
}

func TestRecurringHandlerEndedSeries(t *testing.T) {
	f := newRecurringFixture(t)
	template := f.template(t, func(inv *Invoice) {
		end := f.now.AddDate(0, 0, -1)
		inv.RecurringEndDate = &end
	})

	result, err := f.h.Execute(context.Background(), recurringJob(t, template.ID))
	require.NoError(t, err)
	assert.JSONEq(t, `{"skipped":true,"reason":"series_ended"}`, string(result))

	got, err := f.store.GetInvoice(template.ID)
	require.NoError(t, err)
	assert.Nil(t, got.NextInvoiceDate, "ended series stops scheduling")

	jobs, err := f.queue.ListJobs(nil, 10)
	require.NoError(t, err)
	assert.Empty(t, jobs, "no successor run for an ended series")
}

func TestRecurringHandlerRejects(t *testing.T) {
	f := newRecurringFixture(t)

	t.Run("missing invoice", func(t *testing.T) {
		_, err := f.h.Execute(context.Background(), recurringJob(t, "no-such-id"))
		require.Error(t, err)
		assert.False(t, job.IsRetryable(err))
	})

	t.Run("non-recurring invoice", func(t *testing.T) {
		inv := testInvoice("INV-000050")
		require.NoError(t, f.store.CreateInvoice(inv))

		_, err := f.h.Execute(context.Background(), recurringJob(t, inv.ID))
		require.Error(t, err)
		assert.False(t, job.IsRetryable(err))
	})

	t.Run("invalid interval", func(t *testing.T) {
		template := f.template(t, func(inv *Invoice) {
			inv.Number = "INV-000051"
			inv.RecurringInterval = recur.Interval("FORTNIGHTLY")
		})

		_, err := f.h.Execute(context.Background(), recurringJob(t, template.ID))
		require.Error(t, err)
		assert.False(t, job.IsRetryable(err))
	})
}

func TestRecurringHandlerLateRunKeepsCadence(t *testing.T) {
	f := newRecurringFixture(t)

	// The run fires two days late; the cadence stays anchored to the
	// recorded next date, not the execution time
	anchor := f.now.AddDate(0, 0, -2)
	template := f.template(t, func(inv *Invoice) {
		inv.NextInvoiceDate = &anchor
	})

	_, err := f.h.Execute(context.Background(), recurringJob(t, template.ID))
	require.NoError(t, err)

	wantNext, err := recur.Next(recur.Monthly, anchor)
	require.NoError(t, err)

	got, err := f.store.GetInvoice(template.ID)
	require.NoError(t, err)
	require.NotNil(t, got.NextInvoiceDate)
	assert.True(t, wantNext.Equal(*got.NextInvoiceDate))
}

func TestRecurringHandlerMonthEndClamping(t *testing.T) {
	// A monthly series running on January 31st clamps into February,
	// for the generated due date as much as for the schedule. The
	// template's own payment term (14 days here) must not leak in.
	janEnd := time.Date(2027, time.January, 31, 9, 0, 0, 0, time.UTC)
	febEnd := time.Date(2027, time.February, 28, 9, 0, 0, 0, time.UTC)

	f := newRecurringFixtureAt(t, janEnd)
	template := f.template(t, func(inv *Invoice) {
		inv.IssueDate = janEnd.AddDate(0, -1, 0)
		inv.DueDate = inv.IssueDate.AddDate(0, 0, 14)
		inv.NextInvoiceDate = &janEnd
	})

	result, err := f.h.Execute(context.Background(), recurringJob(t, template.ID))
	require.NoError(t, err)

	var res struct {
		InvoiceID string `json:"invoiceId"`
	}
	require.NoError(t, json.Unmarshal(result, &res))

	generated, err := f.store.GetInvoice(res.InvoiceID)
	require.NoError(t, err)
	assert.True(t, janEnd.Equal(generated.IssueDate))
	assert.True(t, febEnd.Equal(generated.DueDate))

	got, err := f.store.GetInvoice(template.ID)
	require.NoError(t, err)
	require.NotNil(t, got.NextInvoiceDate)
	assert.True(t, febEnd.Equal(*got.NextInvoiceDate))

	status := job.StatusDelayed
	jobs, err := f.queue.ListJobs(&status, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.True(t, febEnd.Equal(jobs[0].RunAt))
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "$1082.50", formatCents(108250))
	assert.Equal(t, "$0.05", formatCents(5))
	assert.Equal(t, "-$12.00", formatCents(-1200))
	assert.Equal(t, "March 31, 2026", formatDate(time.Date(2026, time.March, 31, 0, 0, 0, 0, time.UTC)))
}

func TestRecurringValidatePayload(t *testing.T) {
	h := NewRecurringHandler(nil, nil, nil)

	assert.NoError(t, h.ValidatePayload(json.RawMessage(`{"invoiceId":"inv-1"}`)))
	assert.Error(t, h.ValidatePayload(json.RawMessage(`{}`)))
	assert.Error(t, h.ValidatePayload(json.RawMessage(`not json`)))
}
