package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeDefinitions(t *testing.T) {
	cet := time.FixedZone("CET", 3600)
	body := []byte(`[
		{
			"id": "e1",
			"start_date": 1672531200000,
			"end_date": 1672534800000,
			"recurrence": {"unit": "week", "count": 1},
			"title": "Feeding",
			"place": {"lat": 50.1, "lng": 14.4}
		},
		{
			"id": 42,
			"start_date": "2023-03-10T09:30",
			"end_date": "2023-03-10T18:00",
			"all_day": true,
			"recurrence": null
		}
	]`)

	defs, err := DecodeDefinitions(body, cet)
	require.NoError(t, err)
	require.Len(t, defs, 2)

	e1 := defs[0]
	assert.Equal(t, "e1", e1.ID)
	assert.Equal(t, int64(1672531200000), e1.StartDate.UnixMilli())
	assert.Equal(t, time.Hour, e1.Duration())
	assert.Equal(t, cet, e1.StartDate.Location())
	require.NotNil(t, e1.Recurrence)
	assert.Equal(t, Recurrence{Unit: UnitWeek, Count: 1}, *e1.Recurrence)
	assert.Equal(t, "Feeding", e1.Attribute("title"))
	assert.JSONEq(t, `{"lat": 50.1, "lng": 14.4}`, string(e1.Attributes["place"]))

	second := defs[1]
	assert.Equal(t, "42", second.ID)
	assert.True(t, second.AllDay)
	assert.Nil(t, second.Recurrence)
	assert.True(t, time.Date(2023, 3, 10, 9, 30, 0, 0, cet).Equal(second.StartDate))
	assert.NotContains(t, second.Attributes, "recurrence")
}

func TestDecodeDefinitionsErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not an array", `{"id": "x"}`},
		{"missing id", `[{"start_date": 0, "end_date": 0}]`},
		{"empty id", `[{"id": "", "start_date": 0, "end_date": 0}]`},
		{"missing start", `[{"id": "x", "end_date": 0}]`},
		{"bad end", `[{"id": "x", "start_date": 0, "end_date": "soon"}]`},
		{"bad recurrence", `[{"id": "x", "start_date": 0, "end_date": 0, "recurrence": "weekly"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeDefinitions([]byte(tt.body), time.UTC)
			assert.Error(t, err)
		})
	}
}

func TestInstanceMarshalJSON(t *testing.T) {
	inst := EventInstance{
		ID:         "e1:3",
		ParentID:   "e1",
		StartDate:  time.UnixMilli(1673740800000),
		EndDate:    time.UnixMilli(1673744400000),
		Recurrence: &Recurrence{Unit: UnitWeek, Count: 1},
		Attributes: map[string]json.RawMessage{
			"title": json.RawMessage(`"Feeding"`),
			// Model-owned keys win over stray attributes.
			"id": json.RawMessage(`"spoofed"`),
		},
	}

	out, err := json.Marshal(inst)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"id": "e1:3",
		"start_date": 1673740800000,
		"end_date": 1673744400000,
		"recurrence": {"unit": "week", "count": 1},
		"title": "Feeding"
	}`, string(out))
}

func TestDefinitionRoundTrip(t *testing.T) {
	def := EventDefinition{
		ID:        "open-day",
		StartDate: time.UnixMilli(1678406400000).UTC(),
		EndDate:   time.UnixMilli(1678492799999).UTC(),
		AllDay:    true,
	}

	out, err := json.Marshal(def)
	require.NoError(t, err)

	var back EventDefinition
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Equal(t, def.ID, back.ID)
	assert.True(t, def.StartDate.Equal(back.StartDate))
	assert.True(t, def.EndDate.Equal(back.EndDate))
	assert.True(t, back.AllDay)
}

func TestParseTimestamp(t *testing.T) {
	loc := time.FixedZone("X", -5*3600)

	tests := []struct {
		in   string
		want time.Time
	}{
		{"1672531200000", time.UnixMilli(1672531200000)},
		{"2023-01-01T00:00:00Z", time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"2023-01-01T10:00:00+02:00", time.Date(2023, 1, 1, 8, 0, 0, 0, time.UTC)},
		{"2023-01-01T10:00", time.Date(2023, 1, 1, 10, 0, 0, 0, loc)},
		{"2023-01-01", time.Date(2023, 1, 1, 0, 0, 0, 0, loc)},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimestamp(tt.in, loc)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
			assert.Equal(t, loc, got.Location())
		})
	}

	_, err := ParseTimestamp("next tuesday", loc)
	assert.Error(t, err)
}

func TestUnit(t *testing.T) {
	for _, u := range Units {
		assert.True(t, u.Valid(), u)
	}
	assert.False(t, Unit("minute").Valid())
	assert.True(t, UnitMonth.CalendarVariable())
	assert.True(t, UnitYear.CalendarVariable())
	assert.False(t, UnitWeek.CalendarVariable())
}
