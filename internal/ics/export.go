package ics

import (
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"zoocal/internal/model"
)

const defaultProductID = "-//zoocal//events//EN"

// unitFreqs is the inverse of freqUnits.
var unitFreqs = map[model.Unit]rrule.Frequency{
	model.UnitHour:  rrule.HOURLY,
	model.UnitDay:   rrule.DAILY,
	model.UnitWeek:  rrule.WEEKLY,
	model.UnitMonth: rrule.MONTHLY,
	model.UnitYear:  rrule.YEARLY,
}

// EncodeOptions controls calendar-level properties of an exported feed.
type EncodeOptions struct {
	// ProductID defaults to "-//zoocal//events//EN".
	ProductID string
	// Name is written as X-WR-CALNAME when set.
	Name string
	// Stamp is the DTSTAMP of every VEVENT; zero means time.Now().
	Stamp time.Time
}

// EncodeInstances serializes expanded instances as individual VEVENTs.
func EncodeInstances(instances []model.EventInstance, opts EncodeOptions) string {
	cal := newCalendar(opts)
	for _, inst := range instances {
		ev := cal.AddEvent(inst.ID)
		setCommon(ev, opts, inst.StartDate, inst.EndDate, inst.AllDay, inst.Attribute)
	}
	return cal.Serialize()
}

// EncodeDefinitions serializes definitions, recurring ones with an RRULE, so
// that calendar clients expand them on their own.
func EncodeDefinitions(defs []model.EventDefinition, opts EncodeOptions) string {
	cal := newCalendar(opts)
	for _, def := range defs {
		ev := cal.AddEvent(def.ID)
		setCommon(ev, opts, def.StartDate, def.EndDate, def.AllDay, def.Attribute)
		if rule := RuleFor(def.Recurrence); rule != "" {
			ev.AddProperty(ical.ComponentPropertyRrule, rule)
		}
	}
	return cal.Serialize()
}

// RuleFor renders a recurrence as an RRULE value such as
// "FREQ=WEEKLY;INTERVAL=2". It returns "" for nil or unknown units.
func RuleFor(r *model.Recurrence) string {
	if r == nil {
		return ""
	}
	freq, ok := unitFreqs[r.Unit]
	if !ok {
		return ""
	}
	opt := rrule.ROption{Freq: freq, Interval: r.Count}
	return opt.RRuleString()
}

func newCalendar(opts EncodeOptions) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	if opts.ProductID == "" {
		opts.ProductID = defaultProductID
	}
	cal.SetProductId(opts.ProductID)
	if opts.Name != "" {
		cal.SetXWRCalName(opts.Name)
	}
	return cal
}

func setCommon(ev *ical.VEvent, opts EncodeOptions, start, end time.Time, allDay bool, attr func(string) string) {
	stamp := opts.Stamp
	if stamp.IsZero() {
		stamp = time.Now()
	}
	ev.SetDtStampTime(stamp)

	if allDay {
		ev.SetAllDayStartAt(start)
		// DTEND is exclusive for dates.
		last := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, end.Location())
		ev.SetAllDayEndAt(last.AddDate(0, 0, 1))
	} else {
		ev.SetStartAt(start)
		ev.SetEndAt(end)
	}

	if v := attr(AttrTitle); v != "" {
		ev.SetSummary(v)
	} else if v := attr("name"); v != "" {
		ev.SetSummary(v)
	}
	if v := attr(AttrDescription); v != "" {
		ev.SetDescription(v)
	}
	if v := attr(AttrLocation); v != "" {
		ev.SetLocation(v)
	}
}
