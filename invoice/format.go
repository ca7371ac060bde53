package invoice

import (
	"fmt"
	"time"
)

// formatCents renders a cent amount as dollars for customer-facing text
func formatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}

// formatDate renders a date for customer-facing text
func formatDate(t time.Time) string {
	return t.Format("January 2, 2006")
}
