package feed

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jakechorley/fairshare/pkg/core/capability"
	"github.com/jakechorley/fairshare/pkg/core/model"
	"github.com/jakechorley/fairshare/pkg/core/roster"
	"github.com/jakechorley/fairshare/pkg/core/schedule"
)

var date = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

type testRow struct {
	ID     string  `feed:"id,required"`
	Count  int     `feed:"count"`
	Weight float64 `feed:"weight|w"`
	Active bool    `feed:"active"`
	Note   string
}

func TestDecode(t *testing.T) {
	raw := [][]interface{}{
		{"ID", "Count", "W", "Active", "Ignored"},
		{"a", "3", "1,5", "true", "x"},
		{"", "", "", ""},
		{"b"},
		{"c", 4, 2.5, "false"},
	}

	rows, err := Decode[testRow](raw)
	require.NoError(t, err)
	assert.Equal(t, []testRow{
		{ID: "a", Count: 3, Weight: 1.5, Active: true},
		{ID: "b"},
		{ID: "c", Count: 4, Weight: 2.5},
	}, rows)
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode[testRow](nil)
	assert.ErrorContains(t, err, "no header row")

	_, err = Decode[testRow]([][]interface{}{{"count"}})
	assert.True(t, errors.Is(err, ErrMissingColumn))

	_, err = Decode[testRow]([][]interface{}{{"id", "count"}, {"a", "many"}})
	assert.ErrorContains(t, err, "row 2, column count")
}

func TestParseBatch(t *testing.T) {
	raw := [][]interface{}{
		{"Datum", "Name", "Tätigkeit", "Von", "Bis"},
		{"02.03.2026", "Anna (AN)", "CT Früh", "07:30", "16:00"},
		{"", "Bert (BE)", "Urlaub", "", ""},
		{"2026-03-03", "Carl", "Dienst", "8:00", "12:00"},
	}

	batch, err := ParseBatch(raw, date)
	require.NoError(t, err)
	assert.Equal(t, date, batch.Date)
	require.Len(t, batch.Records, 3)

	assert.Equal(t, schedule.Record{
		Date:        date,
		DisplayName: "Anna (AN)",
		Activity:    "CT Früh",
		StartText:   "07:30",
		EndText:     "16:00",
	}, batch.Records[0])
	assert.True(t, batch.Records[1].Date.IsZero())
	assert.Equal(t, date.AddDate(0, 0, 1), batch.Records[2].Date)
}

func TestParseBatch_Structural(t *testing.T) {
	_, err := ParseBatch([][]interface{}{{"Name", "Start"}}, date)
	assert.True(t, errors.Is(err, schedule.ErrInvalidBatch))
	assert.True(t, errors.Is(err, ErrMissingColumn))

	_, err = ParseBatch([][]interface{}{}, date)
	assert.True(t, errors.Is(err, schedule.ErrInvalidBatch))
}

func TestParseBatch_UnreadableDateIsRecordLevel(t *testing.T) {
	raw := [][]interface{}{
		{"Datum", "Name", "Tätigkeit", "Von", "Bis"},
		{"02.03.2026", "Anna (AN)", "Dienst", "07:30", "16:00"},
		{"32.13.2026", "Bert (BE)", "Dienst", "08:00", "12:00"},
	}

	batch, err := ParseBatch(raw, date)
	require.NoError(t, err)
	require.Len(t, batch.Records, 2)
	assert.Empty(t, batch.Records[0].DateText)
	assert.Equal(t, "32.13.2026", batch.Records[1].DateText)
	assert.True(t, batch.Records[1].Date.IsZero())

	catalog, err := model.NewCatalog([]model.Capability{{Name: "normal", Weight: 1}}, []string{"ct"})
	require.NoError(t, err)
	ids := model.NewIdentities()
	rules := []schedule.Rule{{
		Name:              "duty",
		Match:             []string{"dienst"},
		Kind:              schedule.KindShift,
		Overrides:         capability.Overrides{"all": capability.Active},
		CountsTowardHours: true,
	}}
	compiler := schedule.NewCompiler(catalog, roster.New(catalog), ids, rules, schedule.CompilerOptions{}, zap.NewNop())

	sched, err := compiler.Compile(batch, time.Time{})
	require.NoError(t, err)

	segments := sched.Segments("ct")
	require.Len(t, segments, 1)
	assert.Equal(t, model.WorkerID("AN"), segments[0].Worker)

	require.Len(t, sched.Issues, 1)
	assert.Equal(t, 1, sched.Issues[0].RecordIndex)
	assert.Equal(t, "Bert (BE)", sched.Issues[0].DisplayName)
	assert.Contains(t, sched.Issues[0].Reason, "32.13.2026")
}

func TestReadCSV(t *testing.T) {
	raw, err := ReadCSV(strings.NewReader("Name;Activity;Start;End\nAnna (AN);CT Früh;07:30;16:00\nBert;Urlaub\n"))
	require.NoError(t, err)
	require.Len(t, raw, 3)
	assert.Equal(t, []interface{}{"Anna (AN)", "CT Früh", "07:30", "16:00"}, raw[1])
	assert.Equal(t, []interface{}{"Bert", "Urlaub"}, raw[2])

	raw, err = ReadCSV(strings.NewReader("Name,Activity\n\"Doe, Jane\",Dienst\n"))
	require.NoError(t, err)
	assert.Equal(t, "Doe, Jane", raw[1][0])

	batch, err := ParseBatch(raw, date)
	require.NoError(t, err)
	assert.Equal(t, "Doe, Jane", batch.Records[0].DisplayName)
}
