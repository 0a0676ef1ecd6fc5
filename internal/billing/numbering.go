package billing

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const numberPrefix = "FT"

// NextInvoiceNumber derives the next sequential number for the year of today:
// prefix FT<yyyy>, highest numeric suffix among existing invoices plus one,
// zero-padded to three digits. Suffixes that outgrow three digits are carried
// at their natural width. The function is pure; callers must re-derive it
// from current store contents inside the save critical section, never cache
// it across the session.
func NextInvoiceNumber(existing []Invoice, today time.Time) string {
	prefix := fmt.Sprintf("%s%04d", numberPrefix, today.Year())
	max := 0
	for _, inv := range existing {
		suffix, ok := strings.CutPrefix(inv.Number, prefix)
		if !ok || suffix == "" || !allDigits(suffix) {
			continue
		}
		n, err := strconv.Atoi(suffix)
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	return fmt.Sprintf("%s%03d", prefix, max+1)
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
