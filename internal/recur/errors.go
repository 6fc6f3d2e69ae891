package recur

import "errors"

var (
	// ErrRange reports an inverted interval: start after end, or from after to.
	ErrRange = errors.New("recur: inverted range")

	// ErrConfiguration reports an unusable recurrence: a non-positive count or
	// multiplier, or an unrecognized unit.
	ErrConfiguration = errors.New("recur: invalid recurrence configuration")
)
