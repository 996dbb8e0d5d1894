package order

import (
	"fmt"
	"time"
)

// FormatNumber renders a human-readable order number: prefix, calendar day,
// and the zero-padded daily sequence, e.g. "ORD-20260828-0042". Sequence
// values are issued by Repository.NextSequence from a dedicated per-day
// counter record, so numbers stay unique under concurrent checkout.
func FormatNumber(prefix string, day time.Time, seq int64) string {
	return fmt.Sprintf("%s-%s-%04d", prefix, day.Format("20060102"), seq)
}
