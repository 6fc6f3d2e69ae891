package recur

import (
	"fmt"
	"time"
)

// Overlaps reports whether [eventStart, eventEnd] intersects [from, to].
// Both intervals are closed: an event ending exactly at from, or starting
// exactly at to, overlaps.
//
// An inverted interval is a caller bug and yields ErrRange.
func Overlaps(eventStart, eventEnd, from, to time.Time) (bool, error) {
	if eventStart.After(eventEnd) {
		return false, fmt.Errorf("%w: event start %s after end %s",
			ErrRange, eventStart.Format(time.RFC3339Nano), eventEnd.Format(time.RFC3339Nano))
	}
	if from.After(to) {
		return false, fmt.Errorf("%w: window from %s after to %s",
			ErrRange, from.Format(time.RFC3339Nano), to.Format(time.RFC3339Nano))
	}
	return timeRangesOverlap(eventStart, eventEnd, from, to), nil
}

// timeRangesOverlap is max(aStart, bStart) <= min(aEnd, bEnd) for ordered
// intervals.
func timeRangesOverlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	if aEnd.Before(bStart) {
		return false
	}
	if bEnd.Before(aStart) {
		return false
	}
	return true
}
