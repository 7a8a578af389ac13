package settlement

import (
	"time"

	"github.com/marketrelay/backend/internal/domain/shared"
)

// PeriodLength is the cadence of settlement periods
type PeriodLength string

const (
	PeriodDaily   PeriodLength = "DAILY"
	PeriodWeekly  PeriodLength = "WEEKLY"
	PeriodMonthly PeriodLength = "MONTHLY"
)

// IsValid returns true if the period length is valid
func (p PeriodLength) IsValid() bool {
	switch p {
	case PeriodDaily, PeriodWeekly, PeriodMonthly:
		return true
	default:
		return false
	}
}

// Period is the half-open interval [Start, End)
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewPeriod validates and builds a period
func NewPeriod(start, end time.Time) (Period, error) {
	if start.IsZero() || end.IsZero() {
		return Period{}, shared.NewDomainError("INVALID_PERIOD", "Period start and end are required")
	}
	if !end.After(start) {
		return Period{}, shared.NewDomainError("INVALID_PERIOD", "Period end must be after period start")
	}
	return Period{Start: start.UTC(), End: end.UTC()}, nil
}

// Contains reports whether t falls in [Start, End)
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// Covers reports whether t is before End. A batch settles its own period
// and whatever earlier commissions were confirmed after their batch closed.
func (p Period) Covers(t time.Time) bool {
	return t.Before(p.End)
}

// PreviousPeriod returns the last complete period before now, in loc
func PreviousPeriod(now time.Time, length PeriodLength, loc *time.Location) Period {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	var start, end time.Time
	switch length {
	case PeriodDaily:
		end = midnight
		start = end.AddDate(0, 0, -1)
	case PeriodWeekly:
		offset := (int(midnight.Weekday()) + 6) % 7
		end = midnight.AddDate(0, 0, -offset)
		start = end.AddDate(0, 0, -7)
	default:
		end = time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
		start = end.AddDate(0, -1, 0)
	}
	return Period{Start: start.UTC(), End: end.UTC()}
}
