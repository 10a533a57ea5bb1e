package metering

import (
	"time"

	"github.com/google/uuid"
)

// UsagePeriod is one user's consumption counter for one calendar month.
// Periods are keyed by (user, period start) so a new month naturally begins
// at zero without a reset job.
type UsagePeriod struct {
	UserID         uuid.UUID
	PeriodStart    time.Time
	CharactersUsed int64
	UpdatedAt      time.Time
}

// PeriodStartFor returns the canonical period key for a point in time: the
// first instant of that UTC calendar month.
func PeriodStartFor(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
