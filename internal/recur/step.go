package recur

import (
	"fmt"
	"math"
	"time"

	"zoocal/internal/model"
)

// Fixed lengths of the non-calendar units.
const (
	hourLength = time.Hour
	dayLength  = 24 * time.Hour
	weekLength = 7 * dayLength
)

// Upper bounds of one calendar unit, used only to position the fast-forward.
// The extra hour absorbs a DST transition inside the stepped span.
const (
	maxMonthLength = 31*dayLength + time.Hour
	maxYearLength  = 366*dayLength + time.Hour
)

// StepTable advances timestamps by recurrence units. Hour, day and week are
// fixed-duration steps looked up in the table; month and year step the
// calendar fields.
//
// Month and year overflow follow Go's date normalization: a day-of-month
// that does not exist in the target month rolls into the next month
// (Jan 31 + 1 month = Mar 3 in a common year, Feb 29 + 1 year = Mar 1).
// Nothing is clamped to the end of the month.
//
// A StepTable is immutable once built and safe for concurrent use.
type StepTable struct {
	fixed map[model.Unit]time.Duration
}

// DefaultStepTable returns the standard hour/day/week lengths.
func DefaultStepTable() *StepTable {
	return &StepTable{
		fixed: map[model.Unit]time.Duration{
			model.UnitHour: hourLength,
			model.UnitDay:  dayLength,
			model.UnitWeek: weekLength,
		},
	}
}

// Step advances t by multiplier repetitions of unit. A non-positive
// multiplier or an unknown unit is an ErrConfiguration; Step never returns
// a time that is not after t.
func (s *StepTable) Step(t time.Time, unit model.Unit, multiplier int) (time.Time, error) {
	if multiplier <= 0 {
		return t, fmt.Errorf("%w: step multiplier %d must be positive", ErrConfiguration, multiplier)
	}
	var next time.Time
	switch unit {
	case model.UnitMonth:
		next = t.AddDate(0, multiplier, 0)
	case model.UnitYear:
		next = t.AddDate(multiplier, 0, 0)
	default:
		length, ok := s.fixed[unit]
		if !ok {
			return t, fmt.Errorf("%w: unknown unit %q", ErrConfiguration, unit)
		}
		var err error
		if next, err = addFixed(t, length, multiplier); err != nil {
			return t, err
		}
	}
	if !next.After(t) {
		return t, fmt.Errorf("%w: step of %d %s from %s leaves the representable range",
			ErrConfiguration, multiplier, unit, t.Format(time.RFC3339))
	}
	return next, nil
}

// addFixed adds multiplier*length. A time.Duration spans only ~292 years,
// so longer steps are taken in whole seconds.
func addFixed(t time.Time, length time.Duration, multiplier int) (time.Time, error) {
	if int64(multiplier) <= math.MaxInt64/int64(length) {
		return t.Add(time.Duration(multiplier) * length), nil
	}
	secs := int64(length / time.Second)
	if secs <= 0 || int64(multiplier) > math.MaxInt64/secs {
		return t, fmt.Errorf("%w: step of %d x %s overflows", ErrConfiguration, multiplier, length)
	}
	delta := int64(multiplier) * secs
	if t.Unix() > math.MaxInt64-delta {
		return t, fmt.Errorf("%w: step of %d x %s overflows", ErrConfiguration, multiplier, length)
	}
	return time.Unix(t.Unix()+delta, int64(t.Nanosecond())).In(t.Location()), nil
}

// maxLength returns an upper bound of one unit's real length.
func (s *StepTable) maxLength(unit model.Unit) (time.Duration, error) {
	switch unit {
	case model.UnitMonth:
		return maxMonthLength, nil
	case model.UnitYear:
		return maxYearLength, nil
	}
	length, ok := s.fixed[unit]
	if !ok {
		return 0, fmt.Errorf("%w: unknown unit %q", ErrConfiguration, unit)
	}
	return length, nil
}
