package render

import (
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/wikitab/wikitab/internal/engine"
)

// CSV export encoding: every field double-quoted with embedded quotes
// doubled, fields separated by ';', one record per line.

func csvField(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func writeCSVRecord(w io.Writer, fields []string) error {
	for i, f := range fields {
		fields[i] = csvField(f)
	}
	_, err := io.WriteString(w, strings.Join(fields, ";")+"\n")
	return err
}

// WriteCSV streams the listing as CSV: a header line of column labels,
// then one line per record.
func WriteCSV(w io.Writer, res *engine.BlockResult) error {
	list := res.List

	header := make([]string, 0, len(list.Columns))
	for _, col := range list.Columns {
		label := col.Label
		if label == "" {
			label = col.Name
		}
		header = append(header, label)
	}
	if err := writeCSVRecord(w, header); err != nil {
		return err
	}

	for _, row := range list.Rows {
		fields := make([]string, 0, len(list.Columns))
		for _, col := range list.Columns {
			fields = append(fields, ValueText(row.Record.Values[col.Name], col))
		}
		if err := writeCSVRecord(w, fields); err != nil {
			return err
		}
	}
	return nil
}

// WriteLogCSV streams change log entries as CSV, newest first as supplied.
func WriteLogCSV(w io.Writer, entries []engine.LogEntry) error {
	if err := writeCSVRecord(w, []string{"time", "table", "record", "action", "user"}); err != nil {
		return err
	}
	for _, e := range entries {
		record := ""
		if e.RowID != 0 {
			record = strconv.FormatInt(e.RowID, 10)
		}
		fields := []string{
			time.Unix(e.Time, 0).UTC().Format("2006-01-02 15:04:05"),
			e.Table,
			record,
			e.Action,
			e.User,
		}
		if err := writeCSVRecord(w, fields); err != nil {
			return err
		}
	}
	return nil
}
