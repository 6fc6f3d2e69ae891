package ics

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	appLog "zoocal/internal/log"
	"zoocal/internal/model"
)

// Attribute keys filled from VEVENT text properties.
const (
	AttrTitle       = "title"
	AttrDescription = "description"
	AttrLocation    = "location"
)

// ErrUnsupportedRule marks an RRULE that has no unit/count equivalent: a
// sub-hourly frequency or a series bounded by COUNT or UNTIL.
var ErrUnsupportedRule = errors.New("ics: unsupported recurrence rule")

// freqUnits maps RRULE frequencies onto recurrence units.
var freqUnits = map[rrule.Frequency]model.Unit{
	rrule.HOURLY:  model.UnitHour,
	rrule.DAILY:   model.UnitDay,
	rrule.WEEKLY:  model.UnitWeek,
	rrule.MONTHLY: model.UnitMonth,
	rrule.YEARLY:  model.UnitYear,
}

// ParseICS parses an iCalendar payload into event definitions.
//
//   - Timed DTSTART/DTEND are converted into loc (nil means time.Local).
//   - VALUE=DATE events become all-day definitions; the exclusive DTEND
//     date is turned into the inclusive last day.
//   - RRULE FREQ/INTERVAL become the recurrence. BYxxx parts and EXDATE
//     have no counterpart and are dropped with a warning. Rules bounded by
//     COUNT or UNTIL are rejected with ErrUnsupportedRule.
//
// A VEVENT that cannot be converted is logged and skipped; the others are
// still returned.
func ParseICS(sourceID string, body []byte, loc *time.Location) ([]model.EventDefinition, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}
	if loc == nil {
		loc = time.Local
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err, "source", sourceID)
		return nil, err
	}

	defs := make([]model.EventDefinition, 0)
	for _, comp := range cal.Events() {
		def, perr := parseVEvent(comp, loc)
		if perr != nil {
			appLog.Error("ics vevent skipped", perr, "source", sourceID)
			continue
		}
		defs = append(defs, def)
	}

	appLog.Info("ics parse completed", "source", sourceID, "event_count", len(defs))
	return defs, nil
}

func parseVEvent(ve *ical.VEvent, loc *time.Location) (model.EventDefinition, error) {
	var out model.EventDefinition

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("missing UID")
	}
	out.ID = uidProp.Value

	out.AllDay = isAllDay(ve.GetProperty(ical.ComponentPropertyDtStart))

	if out.AllDay {
		start, err := ve.GetAllDayStartAt()
		if err != nil {
			return out, fmt.Errorf("uid %q: DTSTART: %w", out.ID, err)
		}
		out.StartDate = localDate(start, loc)
		out.EndDate = out.StartDate
		if end, err := ve.GetAllDayEndAt(); err == nil {
			// DTEND is exclusive for dates; keep the last covered day.
			if last := localDate(end, loc).AddDate(0, 0, -1); last.After(out.StartDate) {
				out.EndDate = last
			}
		}
	} else {
		start, err := ve.GetStartAt()
		if err != nil {
			return out, fmt.Errorf("uid %q: DTSTART: %w", out.ID, err)
		}
		out.StartDate = start.In(loc)
		out.EndDate = out.StartDate
		if end, err := ve.GetEndAt(); err == nil && !end.Before(start) {
			out.EndDate = end.In(loc)
		}
	}

	for key, prop := range map[string]ical.ComponentProperty{
		AttrTitle:       ical.ComponentPropertySummary,
		AttrDescription: ical.ComponentPropertyDescription,
		AttrLocation:    ical.ComponentPropertyLocation,
	} {
		p := ve.GetProperty(prop)
		if p == nil || p.Value == "" {
			continue
		}
		raw, err := json.Marshal(p.Value)
		if err != nil {
			continue
		}
		if out.Attributes == nil {
			out.Attributes = make(map[string]json.RawMessage)
		}
		out.Attributes[key] = raw
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil && p.Value != "" {
		rec, err := recurrenceFromRule(p.Value)
		if err != nil {
			return out, fmt.Errorf("uid %q: %w", out.ID, err)
		}
		out.Recurrence = rec
	}

	if len(ve.GetProperties(ical.ComponentPropertyExdate)) > 0 {
		appLog.Warn("ics EXDATE ignored; recurrence exceptions are not supported", "uid", out.ID)
	}

	return out, nil
}

// recurrenceFromRule maps an RRULE value onto a unit/count recurrence.
func recurrenceFromRule(value string) (*model.Recurrence, error) {
	opt, err := rrule.StrToROption(value)
	if err != nil {
		return nil, fmt.Errorf("parse RRULE %q: %w", value, err)
	}
	unit, ok := freqUnits[opt.Freq]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedRule, value)
	}
	if opt.Count > 0 || !opt.Until.IsZero() {
		// A bounded series expanded as an open-ended one would invent
		// occurrences past its last one.
		return nil, fmt.Errorf("%w: COUNT/UNTIL in %q", ErrUnsupportedRule, value)
	}
	count := opt.Interval
	if count <= 0 {
		count = 1
	}
	if dropped := droppedRuleParts(opt); len(dropped) > 0 {
		appLog.Warn("ics RRULE parts ignored", "rrule", value, "parts", strings.Join(dropped, ","))
	}
	return &model.Recurrence{Unit: unit, Count: count}, nil
}

func droppedRuleParts(opt *rrule.ROption) []string {
	var parts []string
	add := func(name string, set bool) {
		if set {
			parts = append(parts, name)
		}
	}
	add("BYSETPOS", len(opt.Bysetpos) > 0)
	add("BYMONTH", len(opt.Bymonth) > 0)
	add("BYMONTHDAY", len(opt.Bymonthday) > 0)
	add("BYYEARDAY", len(opt.Byyearday) > 0)
	add("BYWEEKNO", len(opt.Byweekno) > 0)
	add("BYDAY", len(opt.Byweekday) > 0)
	add("BYHOUR", len(opt.Byhour) > 0)
	add("BYMINUTE", len(opt.Byminute) > 0)
	add("BYSECOND", len(opt.Bysecond) > 0)
	add("BYEASTER", len(opt.Byeaster) > 0)
	return parts
}

// isAllDay reports VALUE=DATE or a date-only DTSTART value.
func isAllDay(dtStart *ical.IANAProperty) bool {
	if dtStart == nil {
		return false
	}
	if vs, ok := dtStart.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(dtStart.Value, "T")
}

// localDate re-anchors a calendar date at midnight in loc.
func localDate(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
