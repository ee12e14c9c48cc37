package cronexpr

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"ordito/internal/domain"
)

// Parse errors. All of them wrap domain.ErrInvalidInput.
var (
	ErrFieldCount        = fmt.Errorf("cron expression must have %d fields: %w", FieldCount, domain.ErrInvalidInput)
	ErrUnsupportedSyntax = fmt.Errorf("unsupported cron syntax: %w", domain.ErrInvalidInput)
	ErrOutOfRange        = fmt.Errorf("cron value out of range: %w", domain.ErrInvalidInput)
)

// FieldError reports which field of an expression failed to parse.
type FieldError struct {
	Field Field
	Value string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s field %q: %v", e.Field, e.Value, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// CheckShape reports whether expr has exactly six whitespace-separated fields.
// It does not look at the field contents.
func CheckShape(expr string) error {
	if n := len(strings.Fields(expr)); n != FieldCount {
		return fmt.Errorf("got %d: %w", n, ErrFieldCount)
	}
	return nil
}

// Parse splits expr into its six fields. A "*" selects every value of a
// multi-select field and leaves a time field without an explicit value.
// Comma lists are validated, sorted and deduplicated. Range and step syntax
// is rejected with ErrUnsupportedSyntax.
func Parse(expr string) (Fields, error) {
	parts := strings.Fields(expr)
	if len(parts) != FieldCount {
		return Fields{}, fmt.Errorf("got %d: %w", len(parts), ErrFieldCount)
	}

	var fs Fields
	for f := Second; f <= DayOfWeek; f++ {
		values, err := parseField(f, parts[f])
		if err != nil {
			return Fields{}, &FieldError{Field: f, Value: parts[f], Err: err}
		}
		fs.set(f, values)
	}
	return fs, nil
}

// MustParse is like Parse but panics on error. Intended for constant expressions.
func MustParse(expr string) Fields {
	fs, err := Parse(expr)
	if err != nil {
		panic(err)
	}
	return fs
}

func parseField(f Field, text string) ([]int, error) {
	if text == Wildcard {
		if f.MultiSelect() {
			return f.All(), nil
		}
		return nil, nil
	}
	if strings.ContainsAny(text, "-/?LW#") {
		return nil, ErrUnsupportedSyntax
	}

	items := strings.Split(text, ",")
	values := make([]int, 0, len(items))
	for _, item := range items {
		v, err := strconv.Atoi(item)
		if err != nil {
			var numErr *strconv.NumError
			if errors.As(err, &numErr) && errors.Is(numErr.Err, strconv.ErrRange) {
				return nil, ErrOutOfRange
			}
			return nil, ErrUnsupportedSyntax
		}
		if !f.Valid(v) {
			return nil, fmt.Errorf("%d not in %d-%d: %w", v, f.Min(), f.Max(), ErrOutOfRange)
		}
		values = append(values, v)
	}

	values = distinct(values)
	if !f.MultiSelect() && len(values) == f.Size() {
		return nil, nil
	}
	return values, nil
}

// Normalize parses expr and serializes it back, yielding the canonical form.
func Normalize(expr string) (string, error) {
	fs, err := Parse(expr)
	if err != nil {
		return "", err
	}
	return Serialize(fs), nil
}
