package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Date inputs are accepted in several syntaxes. Two-digit years pivot at a
// configurable year: values at or below the pivot land in the 2000s, values
// above in the 1900s. The legacy default pivot is 40.

const DefaultYearPivot = 40

type dateParts struct {
	year, month, day int
}

type timeParts struct {
	hour, minute, second int
}

var dateFormats = []struct {
	pattern *regexp.Regexp
	order   [3]int // indexes of year, month, day within the match groups
}{
	{regexp.MustCompile(`^(\d{4})/(\d+)/(\d+)$`), [3]int{1, 2, 3}},  // YYYY/M/D
	{regexp.MustCompile(`^(\d+)/(\d+)/(\d+)$`), [3]int{3, 1, 2}},    // M/D/YYYY
	{regexp.MustCompile(`^(\d+)-(\d+)-(\d+)$`), [3]int{1, 2, 3}},    // YYYY-M-D
	{regexp.MustCompile(`^(\d+)\.(\d+)\.(\d+)$`), [3]int{3, 2, 1}},  // D.M.Y
}

var spaceCleaner = regexp.MustCompile(`\s+`)

// parseUserDate parses a free-form date input. The year pivot resolves
// two-digit years.
func parseUserDate(in string, pivot int) (dateParts, bool) {
	in = spaceCleaner.ReplaceAllString(in, "")

	for _, f := range dateFormats {
		m := f.pattern.FindStringSubmatch(in)
		if m == nil {
			continue
		}
		var out dateParts
		out.year, _ = strconv.Atoi(m[f.order[0]])
		out.month, _ = strconv.Atoi(m[f.order[1]])
		out.day, _ = strconv.Atoi(m[f.order[2]])

		if out.year < 100 {
			if out.year > pivot {
				out.year += 1900
			} else {
				out.year += 2000
			}
		}
		return out, true
	}
	return dateParts{}, false
}

var timePattern = regexp.MustCompile(`^(\d+):(\d+)(:(\d+))?$`)

// parseUserTime parses H:M or H:M:S input.
func parseUserTime(in string) (timeParts, bool) {
	in = spaceCleaner.ReplaceAllString(in, "")
	m := timePattern.FindStringSubmatch(in)
	if m == nil {
		return timeParts{}, false
	}
	var out timeParts
	out.hour, _ = strconv.Atoi(m[1])
	out.minute, _ = strconv.Atoi(m[2])
	if m[4] != "" {
		out.second, _ = strconv.Atoi(m[4])
	}
	return out, true
}

// formatClock renders time parts as HH:MM:SS.
func (t timeParts) formatClock() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.hour, t.minute, t.second)
}

// parseDBDateTime parses the SQL-side date/time representation into a unix
// timestamp. Zero dates map to 0. With skipTime set the clock is pinned to
// noon so timezone wobble cannot shift the date.
func parseDBDateTime(in string, skipTime bool) int64 {
	in = strings.TrimSpace(in)
	datePart, timePart, _ := strings.Cut(strings.NewReplacer("T", " ", "t", " ").Replace(in), " ")

	var year, month, day, hour, minute, second int
	d := strings.Split(strings.TrimSpace(datePart), "-")
	if len(d) >= 3 {
		year, _ = strconv.Atoi(d[0])
		month, _ = strconv.Atoi(d[1])
		day, _ = strconv.Atoi(d[2])
	}
	tp := strings.Split(strings.TrimSpace(timePart), ":")
	if len(tp) >= 2 {
		hour, _ = strconv.Atoi(tp[0])
		minute, _ = strconv.Atoi(tp[1])
		if len(tp) > 2 {
			second, _ = strconv.Atoi(tp[2])
		}
	}

	if year == 0 && month == 0 && day == 0 && hour == 0 && minute == 0 && second == 0 {
		return 0
	}

	if skipTime {
		hour, minute, second = 12, 0, 0
	}

	return time.Date(year, time.Month(month), day, hour, minute, second, 0, time.Local).Unix()
}

// dateToTimestamp builds the canonical noon timestamp of a date.
func dateToTimestamp(d dateParts) int64 {
	return time.Date(d.year, time.Month(d.month), d.day, 12, 0, 0, 0, time.Local).Unix()
}

// datetimeToTimestamp combines date and time parts into a timestamp.
func datetimeToTimestamp(d dateParts, t timeParts) int64 {
	return time.Date(d.year, time.Month(d.month), d.day, t.hour, t.minute, t.second, 0, time.Local).Unix()
}

// formatDBDate renders a timestamp as the stored DATE representation.
func formatDBDate(ts int64) string {
	return time.Unix(ts, 0).Local().Format("2006-01-02")
}

// formatDBDateTime renders a timestamp as the stored DATETIME representation.
func formatDBDateTime(ts int64) string {
	return time.Unix(ts, 0).Local().Format("2006-01-02T15:04:05")
}
