package feed

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jakechorley/fairshare/pkg/core/schedule"
)

// Row is one line of the activity feed
type Row struct {
	Date     string `feed:"Date|Datum"`
	Name     string `feed:"Name|Worker,required"`
	Activity string `feed:"Activity|Description|Tätigkeit,required"`
	Start    string `feed:"Start|From|Von"`
	End      string `feed:"End|To|Bis"`
}

var dateLayouts = []string{
	"2006-01-02",
	"02.01.2006",
	"2.1.2006",
	"02/01/2006",
	time.RFC3339,
}

// ParseDate accepts the date formats found in feed exports
func ParseDate(text string, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(text)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", text)
}

// ParseBatch converts header-indexed rows into a batch for the date.
// Missing required columns make the whole batch invalid. An unreadable date
// is carried on its record and reported when the batch is compiled.
func ParseBatch(raw [][]interface{}, date time.Time) (schedule.Batch, error) {
	rows, err := Decode[Row](raw)
	if err != nil {
		return schedule.Batch{}, fmt.Errorf("%w: %w", schedule.ErrInvalidBatch, err)
	}

	records := make([]schedule.Record, 0, len(rows))
	for _, row := range rows {
		rec := schedule.Record{
			DisplayName: row.Name,
			Activity:    row.Activity,
			StartText:   row.Start,
			EndText:     row.End,
		}
		if strings.TrimSpace(row.Date) != "" {
			if rec.Date, err = ParseDate(row.Date, date.Location()); err != nil {
				rec.DateText = row.Date
			}
		}
		records = append(records, rec)
	}

	return schedule.Batch{Date: date, Records: records}, nil
}

// ReadCSV reads a CSV export into raw rows. Both comma and semicolon separators are accepted.
func ReadCSV(r io.Reader) ([][]interface{}, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}

	reader := csv.NewReader(strings.NewReader(string(data)))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	if firstLine, _, _ := strings.Cut(string(data), "\n"); strings.Count(firstLine, ";") > strings.Count(firstLine, ",") {
		reader.Comma = ';'
	}

	raw := make([][]interface{}, 0)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse csv: %w", err)
		}
		row := make([]interface{}, len(record))
		for i, cell := range record {
			row[i] = cell
		}
		raw = append(raw, row)
	}

	return raw, nil
}
