package cronexpr

import (
	"fmt"
	"strconv"
	"strings"
)

var monthNames = [...]string{
	"January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December",
}

var weekdayNames = [...]string{
	"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday",
}

// MonthName returns the English name of month m (1-12).
func MonthName(m int) string {
	if m < 1 || m > len(monthNames) {
		return strconv.Itoa(m)
	}
	return monthNames[m-1]
}

// WeekdayName returns the English name of weekday d (0 = Sunday).
func WeekdayName(d int) string {
	if d < 0 || d >= len(weekdayNames) {
		return strconv.Itoa(d)
	}
	return weekdayNames[d]
}

// HourLabel renders an hour as "9:00 (9AM)".
func HourLabel(h int) string {
	h12 := h % 12
	if h12 == 0 {
		h12 = 12
	}
	suffix := "AM"
	if h >= 12 {
		suffix = "PM"
	}
	return fmt.Sprintf("%d:00 (%d%s)", h, h12, suffix)
}

// Describe renders fields as a sentence. Only non-wildcard fields contribute
// a clause; clause order follows field order.
func Describe(fs Fields) string {
	var clauses []string
	if !fs.IsWildcard(Second) {
		clauses = append(clauses, "at second "+joinValues(fs.Second, strconv.Itoa))
	}
	if !fs.IsWildcard(Minute) {
		clauses = append(clauses, "at minute "+joinValues(fs.Minute, func(v int) string {
			return fmt.Sprintf("%02d", v)
		}))
	}
	if !fs.IsWildcard(Hour) {
		clauses = append(clauses, "at "+joinValues(fs.Hour, HourLabel))
	}
	if !fs.IsWildcard(DayOfMonth) {
		clauses = append(clauses, "on day(s) "+joinValues(fs.Days, strconv.Itoa))
	}
	if !fs.IsWildcard(Month) {
		clauses = append(clauses, "in "+joinValues(fs.Months, MonthName))
	}
	if !fs.IsWildcard(DayOfWeek) {
		clauses = append(clauses, "on "+joinValues(fs.Weekdays, WeekdayName))
	}

	if len(clauses) == 0 {
		return "Runs every second"
	}
	return "Runs " + strings.Join(clauses, " ")
}

// DescribeExpression parses expr and describes it.
func DescribeExpression(expr string) (string, error) {
	fs, err := Parse(expr)
	if err != nil {
		return "", err
	}
	return Describe(fs), nil
}

func joinValues(values []int, label func(int) string) string {
	vs := distinct(values)
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = label(v)
	}
	return strings.Join(out, ", ")
}
