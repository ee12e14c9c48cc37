package cronexpr

import (
	"fmt"
	"slices"
)

// DefaultExpression is the state of a fresh Builder: daily at midnight.
const DefaultExpression = "0 0 0 * * *"

// Builder edits an expression one field at a time. Each setter touches only
// its own field, so the serialization of untouched fields never changes.
type Builder struct {
	fields Fields
}

// NewBuilder returns a builder holding DefaultExpression.
func NewBuilder() *Builder {
	return &Builder{fields: MustParse(DefaultExpression)}
}

// FromExpression returns a builder initialized from expr.
func FromExpression(expr string) (*Builder, error) {
	fs, err := Parse(expr)
	if err != nil {
		return nil, err
	}
	return &Builder{fields: fs}, nil
}

// Reset restores DefaultExpression.
func (b *Builder) Reset() {
	b.fields = MustParse(DefaultExpression)
}

// SetSecond selects a single second.
func (b *Builder) SetSecond(v int) error { return b.setSingle(Second, v) }

// SetMinute selects a single minute.
func (b *Builder) SetMinute(v int) error { return b.setSingle(Minute, v) }

// SetHour selects a single hour.
func (b *Builder) SetHour(v int) error { return b.setSingle(Hour, v) }

// ClearSecond removes the explicit second.
func (b *Builder) ClearSecond() { b.fields.Second = nil }

// ClearMinute removes the explicit minute.
func (b *Builder) ClearMinute() { b.fields.Minute = nil }

// ClearHour removes the explicit hour.
func (b *Builder) ClearHour() { b.fields.Hour = nil }

// SetDays replaces the selected days of month.
func (b *Builder) SetDays(vs ...int) error { return b.setMulti(DayOfMonth, vs) }

// SetMonths replaces the selected months.
func (b *Builder) SetMonths(vs ...int) error { return b.setMulti(Month, vs) }

// SetWeekdays replaces the selected weekdays (0 = Sunday).
func (b *Builder) SetWeekdays(vs ...int) error { return b.setMulti(DayOfWeek, vs) }

// Toggle flips v in multi-select field f.
func (b *Builder) Toggle(f Field, v int) error {
	if !f.MultiSelect() {
		return fmt.Errorf("toggle %s: %w", f, ErrUnsupportedSyntax)
	}
	if !f.Valid(v) {
		return &FieldError{Field: f, Value: fmt.Sprint(v), Err: ErrOutOfRange}
	}
	cur := b.fields.Get(f)
	if i := slices.Index(cur, v); i >= 0 {
		b.fields.set(f, slices.Delete(slices.Clone(cur), i, i+1))
		return nil
	}
	b.fields.set(f, distinct(append(slices.Clone(cur), v)))
	return nil
}

// SelectAll selects every value of multi-select field f.
func (b *Builder) SelectAll(f Field) {
	if f.MultiSelect() {
		b.fields.set(f, f.All())
	}
}

// Fields returns a copy of the current selection.
func (b *Builder) Fields() Fields {
	return Fields{
		Second:   slices.Clone(b.fields.Second),
		Minute:   slices.Clone(b.fields.Minute),
		Hour:     slices.Clone(b.fields.Hour),
		Days:     slices.Clone(b.fields.Days),
		Months:   slices.Clone(b.fields.Months),
		Weekdays: slices.Clone(b.fields.Weekdays),
	}
}

// String serializes the current selection.
func (b *Builder) String() string { return Serialize(b.fields) }

// Describe returns the human-readable sentence for the current selection.
func (b *Builder) Describe() string { return Describe(b.fields) }

func (b *Builder) setSingle(f Field, v int) error {
	if !f.Valid(v) {
		return &FieldError{Field: f, Value: fmt.Sprint(v), Err: ErrOutOfRange}
	}
	b.fields.set(f, []int{v})
	return nil
}

func (b *Builder) setMulti(f Field, vs []int) error {
	for _, v := range vs {
		if !f.Valid(v) {
			return &FieldError{Field: f, Value: fmt.Sprint(v), Err: ErrOutOfRange}
		}
	}
	b.fields.set(f, distinct(vs))
	return nil
}
