// Package cronexpr models six-field cron expressions the way the schedule
// builder edits them: each field is either a wildcard or a sorted list of
// discrete values.
//
// Field order is second, minute, hour, day-of-month, month, day-of-week.
// Second, minute and hour are time fields: a wildcard means "no explicit
// value". Day, month and weekday are multi-select fields: a wildcard means
// "every value selected".
package cronexpr

import (
	"slices"
	"strconv"
	"strings"
)

// Field identifies one of the six expression fields.
type Field int

const (
	Second Field = iota
	Minute
	Hour
	DayOfMonth
	Month
	DayOfWeek
)

// FieldCount is the number of whitespace-separated fields in an expression.
const FieldCount = 6

// Wildcard is the textual wildcard.
const Wildcard = "*"

var fieldNames = [FieldCount]string{"second", "minute", "hour", "day-of-month", "month", "day-of-week"}

var fieldBounds = [FieldCount][2]int{
	Second:     {0, 59},
	Minute:     {0, 59},
	Hour:       {0, 23},
	DayOfMonth: {1, 31},
	Month:      {1, 12},
	DayOfWeek:  {0, 6},
}

func (f Field) String() string {
	if f < 0 || int(f) >= FieldCount {
		return "field(" + strconv.Itoa(int(f)) + ")"
	}
	return fieldNames[f]
}

// Min returns the smallest valid value of the field.
func (f Field) Min() int { return fieldBounds[f][0] }

// Max returns the largest valid value of the field.
func (f Field) Max() int { return fieldBounds[f][1] }

// Size returns the number of values in the field's domain.
func (f Field) Size() int { return f.Max() - f.Min() + 1 }

// MultiSelect reports whether the field is a multi-select field.
func (f Field) MultiSelect() bool { return f >= DayOfMonth }

// Valid reports whether v lies within the field's domain.
func (f Field) Valid(v int) bool { return v >= f.Min() && v <= f.Max() }

// All returns every value of the field's domain in ascending order.
func (f Field) All() []int {
	out := make([]int, 0, f.Size())
	for v := f.Min(); v <= f.Max(); v++ {
		out = append(out, v)
	}
	return out
}

// Fields is a parsed expression. A nil time field is a wildcard; multi-select
// fields hold their selected values, with the full domain meaning wildcard.
type Fields struct {
	Second   []int
	Minute   []int
	Hour     []int
	Days     []int
	Months   []int
	Weekdays []int
}

// Get returns the values of field f.
func (fs Fields) Get(f Field) []int {
	switch f {
	case Second:
		return fs.Second
	case Minute:
		return fs.Minute
	case Hour:
		return fs.Hour
	case DayOfMonth:
		return fs.Days
	case Month:
		return fs.Months
	default:
		return fs.Weekdays
	}
}

// set stores values for field f.
func (fs *Fields) set(f Field, values []int) {
	switch f {
	case Second:
		fs.Second = values
	case Minute:
		fs.Minute = values
	case Hour:
		fs.Hour = values
	case DayOfMonth:
		fs.Days = values
	case Month:
		fs.Months = values
	default:
		fs.Weekdays = values
	}
}

// IsWildcard reports whether field f serializes to "*".
func (fs Fields) IsWildcard(f Field) bool {
	n := len(distinct(fs.Get(f)))
	return n == 0 || n == f.Size()
}

// Equal reports whether both values serialize to the same expression.
func (fs Fields) Equal(other Fields) bool {
	return Serialize(fs) == Serialize(other)
}

// Serialize renders fields as an expression. Empty or full-domain fields
// become "*"; every other field becomes its ascending, deduplicated values
// joined by commas. Fields are rendered independently of each other.
func Serialize(fs Fields) string {
	parts := make([]string, FieldCount)
	for f := Second; f <= DayOfWeek; f++ {
		parts[f] = formatField(f, fs.Get(f))
	}
	return strings.Join(parts, " ")
}

func formatField(f Field, values []int) string {
	vs := distinct(values)
	if len(vs) == 0 || len(vs) == f.Size() {
		return Wildcard
	}
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = strconv.Itoa(v)
	}
	return strings.Join(out, ",")
}

// distinct returns the sorted, deduplicated copy of values.
func distinct(values []int) []int {
	if len(values) == 0 {
		return nil
	}
	out := slices.Clone(values)
	slices.Sort(out)
	return slices.Compact(out)
}
