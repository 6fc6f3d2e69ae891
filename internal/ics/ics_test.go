package ics

import (
	"encoding/json"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appLog "zoocal/internal/log"
	"zoocal/internal/model"
	"zoocal/internal/recur"
)

func TestMain(m *testing.M) {
	appLog.SetOutput(io.Discard)
	os.Exit(m.Run())
}

const sampleICS = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:feeding\r\n" +
	"DTSTAMP:20230101T000000Z\r\n" +
	"DTSTART:20230101T090000Z\r\n" +
	"DTEND:20230101T093000Z\r\n" +
	"SUMMARY:Penguin feeding\r\n" +
	"LOCATION:Penguin pool\r\n" +
	"RRULE:FREQ=WEEKLY;INTERVAL=2\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:open-day\r\n" +
	"DTSTAMP:20230101T000000Z\r\n" +
	"DTSTART;VALUE=DATE:20230310\r\n" +
	"DTEND;VALUE=DATE:20230312\r\n" +
	"SUMMARY:Open day\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:ticks\r\n" +
	"DTSTAMP:20230101T000000Z\r\n" +
	"DTSTART:20230101T090000Z\r\n" +
	"DTEND:20230101T090100Z\r\n" +
	"RRULE:FREQ=MINUTELY\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:monthly\r\n" +
	"DTSTAMP:20230101T000000Z\r\n" +
	"DTSTART:20230115T100000Z\r\n" +
	"DTEND:20230115T110000Z\r\n" +
	"RRULE:FREQ=MONTHLY;BYMONTHDAY=15\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:three-talks\r\n" +
	"DTSTAMP:20230101T000000Z\r\n" +
	"DTSTART:20230105T150000Z\r\n" +
	"DTEND:20230105T160000Z\r\n" +
	"RRULE:FREQ=WEEKLY;COUNT=3\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:summer-shows\r\n" +
	"DTSTAMP:20230101T000000Z\r\n" +
	"DTSTART:20230601T110000Z\r\n" +
	"DTEND:20230601T113000Z\r\n" +
	"RRULE:FREQ=DAILY;UNTIL=20230831T235959Z\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func TestParseICS(t *testing.T) {
	defs, err := ParseICS("test", []byte(sampleICS), time.UTC)
	require.NoError(t, err)

	byID := make(map[string]model.EventDefinition)
	for _, d := range defs {
		byID[d.ID] = d
	}
	require.Len(t, byID, 3, "MINUTELY and bounded series are skipped")
	assert.NotContains(t, byID, "three-talks")
	assert.NotContains(t, byID, "summer-shows")

	t.Run("timed recurring event", func(t *testing.T) {
		d := byID["feeding"]
		assert.True(t, time.Date(2023, 1, 1, 9, 0, 0, 0, time.UTC).Equal(d.StartDate))
		assert.Equal(t, 30*time.Minute, d.Duration())
		assert.False(t, d.AllDay)
		require.NotNil(t, d.Recurrence)
		assert.Equal(t, model.Recurrence{Unit: model.UnitWeek, Count: 2}, *d.Recurrence)
		assert.Equal(t, "Penguin feeding", d.Attribute(AttrTitle))
		assert.Equal(t, "Penguin pool", d.Attribute(AttrLocation))
	})

	t.Run("all-day event uses inclusive last day", func(t *testing.T) {
		d := byID["open-day"]
		assert.True(t, d.AllDay)
		assert.Nil(t, d.Recurrence)
		assert.True(t, time.Date(2023, 3, 10, 0, 0, 0, 0, time.UTC).Equal(d.StartDate))
		assert.True(t, time.Date(2023, 3, 11, 0, 0, 0, 0, time.UTC).Equal(d.EndDate))
	})

	t.Run("BYxxx parts fall back to FREQ/INTERVAL", func(t *testing.T) {
		d := byID["monthly"]
		require.NotNil(t, d.Recurrence)
		assert.Equal(t, model.Recurrence{Unit: model.UnitMonth, Count: 1}, *d.Recurrence)
	})
}

func TestParseICSRejectsEmptyBody(t *testing.T) {
	_, err := ParseICS("empty", nil, time.UTC)
	assert.Error(t, err)
}

func TestRecurrenceFromRule(t *testing.T) {
	tests := []struct {
		rule string
		want model.Recurrence
	}{
		{"FREQ=HOURLY", model.Recurrence{Unit: model.UnitHour, Count: 1}},
		{"FREQ=DAILY;INTERVAL=3", model.Recurrence{Unit: model.UnitDay, Count: 3}},
		{"FREQ=WEEKLY", model.Recurrence{Unit: model.UnitWeek, Count: 1}},
		{"FREQ=MONTHLY;INTERVAL=6", model.Recurrence{Unit: model.UnitMonth, Count: 6}},
		{"FREQ=YEARLY;BYMONTH=6", model.Recurrence{Unit: model.UnitYear, Count: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.rule, func(t *testing.T) {
			got, err := recurrenceFromRule(tt.rule)
			require.NoError(t, err)
			assert.Equal(t, tt.want, *got)
		})
	}

	for _, rule := range []string{
		"FREQ=SECONDLY",
		"FREQ=WEEKLY;COUNT=3",
		"FREQ=YEARLY;UNTIL=20300101T000000Z",
		"FREQ=DAILY;INTERVAL=2;COUNT=10;BYHOUR=9",
	} {
		_, err := recurrenceFromRule(rule)
		assert.ErrorIs(t, err, ErrUnsupportedRule, rule)
	}

	_, err := recurrenceFromRule("FREQ=SOMETIMES")
	assert.Error(t, err)
}

func TestRuleForRoundTrip(t *testing.T) {
	for _, unit := range model.Units {
		for _, count := range []int{1, 4} {
			in := &model.Recurrence{Unit: unit, Count: count}
			rule := RuleFor(in)
			require.NotEmpty(t, rule)
			out, err := recurrenceFromRule(rule)
			require.NoError(t, err, rule)
			assert.Equal(t, *in, *out, rule)
		}
	}
	assert.Empty(t, RuleFor(nil))
	assert.Empty(t, RuleFor(&model.Recurrence{Unit: "minute", Count: 1}))
}

func TestEncodeDefinitionsRoundTrip(t *testing.T) {
	title, _ := json.Marshal("Sea lion show")
	defs := []model.EventDefinition{
		{
			ID:         "show",
			StartDate:  time.Date(2023, 4, 1, 14, 0, 0, 0, time.UTC),
			EndDate:    time.Date(2023, 4, 1, 14, 45, 0, 0, time.UTC),
			Recurrence: &model.Recurrence{Unit: model.UnitDay, Count: 2},
			Attributes: map[string]json.RawMessage{AttrTitle: title},
		},
		{
			ID:        "festival",
			StartDate: time.Date(2023, 7, 1, 0, 0, 0, 0, time.UTC),
			EndDate:   time.Date(2023, 7, 3, 0, 0, 0, 0, time.UTC),
			AllDay:    true,
		},
	}

	body := EncodeDefinitions(defs, EncodeOptions{Name: "Zoo", Stamp: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)})
	assert.Contains(t, body, "BEGIN:VCALENDAR")
	assert.Contains(t, body, "X-WR-CALNAME:Zoo")

	back, err := ParseICS("roundtrip", []byte(body), time.UTC)
	require.NoError(t, err)
	require.Len(t, back, 2)

	byID := map[string]model.EventDefinition{back[0].ID: back[0], back[1].ID: back[1]}

	show := byID["show"]
	assert.True(t, defs[0].StartDate.Equal(show.StartDate))
	assert.True(t, defs[0].EndDate.Equal(show.EndDate))
	require.NotNil(t, show.Recurrence)
	assert.Equal(t, *defs[0].Recurrence, *show.Recurrence)
	assert.Equal(t, "Sea lion show", show.Attribute(AttrTitle))

	festival := byID["festival"]
	assert.True(t, festival.AllDay)
	assert.True(t, defs[1].StartDate.Equal(festival.StartDate))
	assert.True(t, defs[1].EndDate.Equal(festival.EndDate))
}

func TestEncodeInstancesFromExpansion(t *testing.T) {
	def := model.EventDefinition{
		ID:         "e1",
		StartDate:  time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:    time.Date(2023, 1, 1, 1, 0, 0, 0, time.UTC),
		Recurrence: &model.Recurrence{Unit: model.UnitWeek, Count: 1},
	}
	instances, err := recur.Expand(def, def.StartDate, def.StartDate.AddDate(0, 0, 21))
	require.NoError(t, err)

	body := EncodeInstances(instances, EncodeOptions{})
	assert.Equal(t, 4, strings.Count(body, "BEGIN:VEVENT"))
	assert.NotContains(t, body, "RRULE")

	back, err := ParseICS("instances", []byte(body), time.UTC)
	require.NoError(t, err)
	require.Len(t, back, 4)
	for i, d := range back {
		assert.Equal(t, instances[i].ID, d.ID)
		assert.True(t, instances[i].StartDate.Equal(d.StartDate))
	}
}
