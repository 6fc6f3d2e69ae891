package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Keys owned by the model; everything else is an attribute.
const (
	keyID         = "id"
	keyStartDate  = "start_date"
	keyEndDate    = "end_date"
	keyAllDay     = "all_day"
	keyRecurrence = "recurrence"
)

// Accepted string layouts for start_date / end_date besides epoch millis.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// DecodeDefinitions decodes a JSON array of event definitions. Timestamps
// given as epoch milliseconds are placed in loc; string timestamps without an
// offset are interpreted in loc. A nil loc means time.Local.
func DecodeDefinitions(data []byte, loc *time.Location) ([]EventDefinition, error) {
	if loc == nil {
		loc = time.Local
	}
	var raws []map[string]json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("decode definitions: %w", err)
	}
	defs := make([]EventDefinition, 0, len(raws))
	for i, raw := range raws {
		def, err := decodeDefinition(raw, loc)
		if err != nil {
			return nil, fmt.Errorf("decode definitions: entry %d: %w", i, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// UnmarshalJSON decodes a single definition in time.Local.
func (d *EventDefinition) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	def, err := decodeDefinition(raw, time.Local)
	if err != nil {
		return err
	}
	*d = def
	return nil
}

func decodeDefinition(raw map[string]json.RawMessage, loc *time.Location) (EventDefinition, error) {
	var def EventDefinition

	idRaw, ok := raw[keyID]
	if !ok {
		return def, errors.New("missing id")
	}
	id, err := decodeID(idRaw)
	if err != nil {
		return def, err
	}
	def.ID = id

	if def.StartDate, err = decodeTimestamp(raw[keyStartDate], loc); err != nil {
		return def, fmt.Errorf("%s %q: start_date: %w", keyID, id, err)
	}
	if def.EndDate, err = decodeTimestamp(raw[keyEndDate], loc); err != nil {
		return def, fmt.Errorf("%s %q: end_date: %w", keyID, id, err)
	}

	if v, ok := raw[keyAllDay]; ok && !isNull(v) {
		if err := json.Unmarshal(v, &def.AllDay); err != nil {
			return def, fmt.Errorf("%s %q: all_day: %w", keyID, id, err)
		}
	}

	if v, ok := raw[keyRecurrence]; ok && !isNull(v) {
		var r Recurrence
		if err := json.Unmarshal(v, &r); err != nil {
			return def, fmt.Errorf("%s %q: recurrence: %w", keyID, id, err)
		}
		def.Recurrence = &r
	}

	for k, v := range raw {
		switch k {
		case keyID, keyStartDate, keyEndDate, keyAllDay, keyRecurrence:
			continue
		}
		if def.Attributes == nil {
			def.Attributes = make(map[string]json.RawMessage)
		}
		def.Attributes[k] = v
	}
	return def, nil
}

// decodeID accepts string or numeric ids; numeric ids are kept in their
// textual form.
func decodeID(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return "", errors.New("empty id")
		}
		return s, nil
	}
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		return "", fmt.Errorf("id: %w", err)
	}
	return n.String(), nil
}

func decodeTimestamp(raw json.RawMessage, loc *time.Location) (time.Time, error) {
	if len(raw) == 0 || isNull(raw) {
		return time.Time{}, errors.New("missing timestamp")
	}
	var ms int64
	if err := json.Unmarshal(raw, &ms); err == nil {
		return time.UnixMilli(ms).In(loc), nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, fmt.Errorf("timestamp must be epoch milliseconds or a string: %s", raw)
	}
	return ParseTimestamp(s, loc)
}

// ParseTimestamp parses epoch milliseconds, RFC3339, or a local date/date-time
// (interpreted in loc).
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).In(loc), nil
	}
	for _, layout := range timestampLayouts {
		if layout == time.RFC3339Nano {
			if t, err := time.Parse(layout, s); err == nil {
				return t.In(loc), nil
			}
			continue
		}
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}

// MarshalJSON emits the definition in dataset form with epoch-millisecond
// timestamps.
func (d EventDefinition) MarshalJSON() ([]byte, error) {
	return marshalEvent(d.Attributes, d.ID, d.StartDate, d.EndDate, d.AllDay, d.Recurrence)
}

// MarshalJSON emits the instance in the same shape as its definition, with
// the instance id and concrete times.
func (i EventInstance) MarshalJSON() ([]byte, error) {
	return marshalEvent(i.Attributes, i.ID, i.StartDate, i.EndDate, i.AllDay, i.Recurrence)
}

func marshalEvent(attrs map[string]json.RawMessage, id string, start, end time.Time, allDay bool, rec *Recurrence) ([]byte, error) {
	out := make(map[string]any, len(attrs)+5)
	for k, v := range attrs {
		out[k] = v
	}
	out[keyID] = id
	out[keyStartDate] = start.UnixMilli()
	out[keyEndDate] = end.UnixMilli()
	if allDay {
		out[keyAllDay] = true
	}
	if rec != nil {
		out[keyRecurrence] = rec
	}
	return json.Marshal(out)
}
