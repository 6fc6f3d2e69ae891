package model

import (
	"encoding/json"
	"time"
)

// Unit is the granularity of a recurrence.
type Unit string

const (
	UnitHour  Unit = "hour"
	UnitDay   Unit = "day"
	UnitWeek  Unit = "week"
	UnitMonth Unit = "month"
	UnitYear  Unit = "year"
)

// Units lists every recognized recurrence unit, shortest first.
var Units = []Unit{UnitHour, UnitDay, UnitWeek, UnitMonth, UnitYear}

// Valid reports whether u is one of the recognized units.
func (u Unit) Valid() bool {
	switch u {
	case UnitHour, UnitDay, UnitWeek, UnitMonth, UnitYear:
		return true
	}
	return false
}

// CalendarVariable reports whether u has no fixed length (month, year).
func (u Unit) CalendarVariable() bool {
	return u == UnitMonth || u == UnitYear
}

// Recurrence repeats an event every Count units.
type Recurrence struct {
	Unit  Unit `json:"unit" yaml:"unit"`
	Count int  `json:"count" yaml:"count"`
}

// EventDefinition is a caller-supplied, possibly recurring event as found in
// the dataset. It is treated as read-only by the expansion code.
type EventDefinition struct {
	ID        string
	StartDate time.Time
	EndDate   time.Time
	AllDay    bool

	// Recurrence is nil for single, non-repeating events.
	Recurrence *Recurrence

	// Attributes holds every other dataset field (title, description, place,
	// image, ...) verbatim so instances can carry them through.
	Attributes map[string]json.RawMessage
}

// Duration is EndDate - StartDate.
func (d EventDefinition) Duration() time.Duration {
	return d.EndDate.Sub(d.StartDate)
}

// EventInstance is one concrete occurrence of a definition.
type EventInstance struct {
	// ID is "<ParentID>:<sequence>".
	ID       string
	ParentID string

	StartDate time.Time
	EndDate   time.Time
	AllDay    bool

	Recurrence *Recurrence
	Attributes map[string]json.RawMessage
}

// Attribute returns the string value of a carried-through attribute, or ""
// if it is missing or not a JSON string.
func (i EventInstance) Attribute(key string) string {
	return stringAttribute(i.Attributes, key)
}

// Attribute returns the string value of a dataset attribute, or "".
func (d EventDefinition) Attribute(key string) string {
	return stringAttribute(d.Attributes, key)
}

func stringAttribute(attrs map[string]json.RawMessage, key string) string {
	raw, ok := attrs[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
