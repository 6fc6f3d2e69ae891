package recur

import (
	"fmt"
	"math"
	"time"

	"zoocal/internal/model"
)

// Expander turns event definitions into concrete instances. The zero value
// is not usable; use NewExpander.
type Expander struct {
	steps *StepTable

	// maxPerEvent caps instances per definition; 0 means unlimited.
	maxPerEvent int
}

// Option configures an Expander.
type Option func(*Expander)

// WithStepTable replaces the default unit table.
func WithStepTable(t *StepTable) Option {
	return func(e *Expander) {
		if t != nil {
			e.steps = t
		}
	}
}

// WithMaxInstancesPerEvent caps the number of instances a single definition
// may produce. Hitting the cap is reported, never silent.
func WithMaxInstancesPerEvent(n int) Option {
	return func(e *Expander) {
		if n > 0 {
			e.maxPerEvent = n
		}
	}
}

// NewExpander builds an Expander with the default step table and no cap.
func NewExpander(opts ...Option) *Expander {
	e := &Expander{steps: DefaultStepTable()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var defaultExpander = NewExpander()

// Expand returns every instance of def intersecting [from, to] using the
// default expander.
func Expand(def model.EventDefinition, from, to time.Time) ([]model.EventInstance, error) {
	out, _, err := defaultExpander.expand(def, from, to)
	return out, err
}

// Validate checks a definition before any expansion: inverted start/end is
// an ErrRange, an unknown unit or non-positive count an ErrConfiguration.
func (e *Expander) Validate(def model.EventDefinition) error {
	if def.StartDate.After(def.EndDate) {
		return fmt.Errorf("%w: definition %q starts %s after it ends %s", ErrRange, def.ID,
			def.StartDate.Format(time.RFC3339Nano), def.EndDate.Format(time.RFC3339Nano))
	}
	r := def.Recurrence
	if r == nil {
		return nil
	}
	if !r.Unit.Valid() {
		return fmt.Errorf("%w: definition %q: unknown recurrence unit %q", ErrConfiguration, def.ID, r.Unit)
	}
	if _, err := e.steps.maxLength(r.Unit); err != nil {
		return fmt.Errorf("definition %q: %w", def.ID, err)
	}
	if r.Count <= 0 {
		return fmt.Errorf("%w: definition %q: recurrence count %d must be positive", ErrConfiguration, def.ID, r.Count)
	}
	return nil
}

// Validate checks def with the default step table.
func Validate(def model.EventDefinition) error {
	return defaultExpander.Validate(def)
}

// Expand returns every instance of def intersecting the closed window
// [from, to], in generation order, with ids "<def.ID>:0", "<def.ID>:1", ...
func (e *Expander) Expand(def model.EventDefinition, from, to time.Time) ([]model.EventInstance, error) {
	out, _, err := e.expand(def, from, to)
	return out, err
}

// expand also reports whether the per-event cap cut the expansion short.
func (e *Expander) expand(def model.EventDefinition, from, to time.Time) ([]model.EventInstance, bool, error) {
	if err := e.Validate(def); err != nil {
		return nil, false, err
	}
	if from.After(to) {
		return nil, false, nil
	}

	start, end := def.StartDate, def.EndDate
	if def.AllDay {
		start, end = allDayBounds(start, end)
	}

	if start.After(to) {
		return nil, false, nil
	}

	alloc := newInstanceAllocator(&def)

	// Single non-recurring event.
	if def.Recurrence == nil {
		ok, err := Overlaps(start, end, from, to)
		if err != nil || !ok {
			return nil, false, err
		}
		return []model.EventInstance{alloc.allocate(start, end)}, false, nil
	}

	unit := def.Recurrence.Unit
	count := def.Recurrence.Count

	k, err := e.fastForward(end, unit, count, from)
	if err != nil {
		return nil, false, err
	}

	out := make([]model.EventInstance, 0)
	for ; ; k++ {
		cur := start
		if k > 0 {
			// Anchored at the definition start; overflow does not accumulate.
			if cur, err = e.steps.Step(start, unit, k*count); err != nil {
				return nil, false, err
			}
		}
		if cur.After(to) {
			break
		}
		curEnd := shiftSpan(cur, start, end)
		ok, err := Overlaps(cur, curEnd, from, to)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			continue
		}
		if e.maxPerEvent > 0 && alloc.allocated() >= e.maxPerEvent {
			return out, true, nil
		}
		out = append(out, alloc.allocate(cur, curEnd))
	}
	return out, false, nil
}

// fastForward returns the index of the first occurrence worth visiting.
// Each skipped occurrence starts at most maxLength*count after the previous
// one, so every occurrence before the returned index ends before from; the
// estimate may undershoot but never skips an overlapping occurrence. The
// arithmetic is in whole seconds since a time.Duration saturates after ~292
// years.
func (e *Expander) fastForward(end time.Time, unit model.Unit, count int, from time.Time) (int, error) {
	// Unix() truncates to the second; the two spare seconds keep the
	// estimate below the real from - end.
	elapsed := from.Unix() - end.Unix() - 2
	if elapsed <= 0 {
		return 0, nil
	}
	length, err := e.steps.maxLength(unit)
	if err != nil {
		return 0, err
	}
	k := elapsed / int64(length/time.Second) / int64(count)
	if k > math.MaxInt32 {
		k = math.MaxInt32
	}
	return int(k), nil
}

// shiftSpan returns t + (end - start) without saturating on spans longer
// than a time.Duration can hold.
func shiftSpan(t, start, end time.Time) time.Time {
	if d := end.Sub(start); d < math.MaxInt64 {
		return t.Add(d)
	}
	secs := end.Unix() - start.Unix()
	nsec := int64(end.Nanosecond() - start.Nanosecond())
	return time.Unix(t.Unix()+secs, int64(t.Nanosecond())+nsec).In(t.Location())
}

// allDayBounds widens [start, end] to whole local days: midnight of the
// first day through 23:59:59.999 of the last.
func allDayBounds(start, end time.Time) (time.Time, time.Time) {
	s := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	e := time.Date(end.Year(), end.Month(), end.Day(), 23, 59, 59, int(999*time.Millisecond), end.Location())
	return s, e
}
