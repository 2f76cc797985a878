package query

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind identifies a value variant.
type Kind int

// Value variants understood by the formula query grammar.
const (
	KindInvalid Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindDate
	KindDateTime
	KindList
)

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02T15:04:05Z"
	listSeparator  = "; "
)

// String returns the variant name.
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindDate:
		return "date"
	case KindDateTime:
		return "datetime"
	case KindList:
		return "list"
	default:
		return "invalid"
	}
}

// Value is a literal in a comparison. The zero Value is invalid.
type Value struct {
	kind Kind
	str  string
	num  int64
	flt  float64
	flag bool
	at   time.Time
	list []Value
}

// String returns a string value.
func String(s string) Value {
	return Value{kind: KindString, str: s}
}

// Int returns an integer value.
func Int(n int64) Value {
	return Value{kind: KindInt, num: n}
}

// Float returns a floating point value.
func Float(f float64) Value {
	return Value{kind: KindFloat, flt: f}
}

// Bool returns a boolean value.
func Bool(b bool) Value {
	return Value{kind: KindBool, flag: b}
}

// Date returns a calendar date value.
func Date(year int, month time.Month, day int) Value {
	return Value{kind: KindDate, at: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar date of t as seen in t's own location.
func DateOf(t time.Time) Value {
	return Date(t.Year(), t.Month(), t.Day())
}

// DateTime returns an instant. It is rendered in UTC.
func DateTime(t time.Time) Value {
	return Value{kind: KindDateTime, at: t.UTC()}
}

// List returns a list value for HAS/XHAS style comparisons.
func List(items ...Value) Value {
	return Value{kind: KindList, list: append([]Value(nil), items...)}
}

// ParseDate parses a YYYY-MM-DD literal.
func ParseDate(s string) (Value, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Value{}, &EncodingError{Value: s, Err: fmt.Errorf("%w: %q", ErrInvalidDate, s)}
	}

	return DateOf(t), nil
}

// ParseDateTime parses an RFC 3339 literal. Inputs without an explicit
// offset are rejected rather than guessed.
func ParseDateTime(s string) (Value, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err == nil {
		return DateTime(t), nil
	}

	if _, naiveErr := time.Parse("2006-01-02T15:04:05", s); naiveErr == nil {
		return Value{}, &EncodingError{Value: s, Err: ErrMissingTimezone}
	}

	return Value{}, &EncodingError{Value: s, Err: fmt.Errorf("%w: %q", ErrInvalidDate, s)}
}

// ValueOf converts a Go value into a Value. time.Time becomes a DateTime;
// use DateOf for calendar dates.
//
//nolint:cyclop // one case per supported Go type
func ValueOf(raw any) (Value, error) {
	var val Value

	switch typed := raw.(type) {
	case Value:
		val = typed
	case string:
		val = String(typed)
	case bool:
		val = Bool(typed)
	case int:
		val = Int(int64(typed))
	case int8:
		val = Int(int64(typed))
	case int16:
		val = Int(int64(typed))
	case int32:
		val = Int(int64(typed))
	case int64:
		val = Int(typed)
	case uint:
		return uintValue(raw, uint64(typed))
	case uint8:
		val = Int(int64(typed))
	case uint16:
		val = Int(int64(typed))
	case uint32:
		val = Int(int64(typed))
	case uint64:
		return uintValue(raw, typed)
	case float32:
		val = Float(float64(typed))
	case float64:
		val = Float(typed)
	case time.Time:
		val = DateTime(typed)
	case []Value:
		val = List(typed...)
	case []string:
		items := make([]Value, len(typed))
		for i, s := range typed {
			items[i] = String(s)
		}

		val = List(items...)
	case []int:
		items := make([]Value, len(typed))
		for i, n := range typed {
			items[i] = Int(int64(n))
		}

		val = List(items...)
	case []any:
		items := make([]Value, 0, len(typed))

		for _, item := range typed {
			converted, err := ValueOf(item)
			if err != nil {
				return Value{}, err
			}

			items = append(items, converted)
		}

		val = List(items...)
	default:
		return Value{}, &EncodingError{Value: raw, Err: fmt.Errorf("%w: %T", ErrUnsupportedType, raw)}
	}

	err := val.validate()
	if err != nil {
		return Value{}, err
	}

	return val, nil
}

func uintValue(raw any, n uint64) (Value, error) {
	if n > math.MaxInt64 {
		return Value{}, &EncodingError{Value: raw, Err: fmt.Errorf("%w: %d overflows int64", ErrUnsupportedType, n)}
	}

	return Int(int64(n)), nil
}

// Kind returns the variant of v.
func (v Value) Kind() Kind {
	return v.kind
}

// Items returns a copy of the elements of a list value.
func (v Value) Items() []Value {
	return append([]Value(nil), v.list...)
}

// Encode renders v as a formula query literal.
func (v Value) Encode() (string, error) {
	err := v.validate()
	if err != nil {
		return "", err
	}

	switch v.kind {
	case KindInt, KindFloat:
		return v.bare(), nil
	case KindList:
		parts := make([]string, len(v.list))
		for i, item := range v.list {
			parts[i] = item.bare()
		}

		return "'" + strings.Join(parts, listSeparator) + "'", nil
	default:
		return "'" + v.bare() + "'", nil
	}
}

// bare renders a validated scalar without surrounding quotes.
func (v Value) bare() string {
	switch v.kind {
	case KindString:
		return escape(v.str)
	case KindInt:
		return strconv.FormatInt(v.num, 10)
	case KindFloat:
		return strconv.FormatFloat(v.flt, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.flag)
	case KindDate:
		return v.at.Format(dateLayout)
	case KindDateTime:
		return v.at.UTC().Format(dateTimeLayout)
	default:
		return ""
	}
}

func (v Value) validate() error {
	switch v.kind {
	case KindInvalid:
		return &EncodingError{Value: v, Err: fmt.Errorf("%w: zero Value", ErrUnsupportedType)}
	case KindFloat:
		if math.IsNaN(v.flt) || math.IsInf(v.flt, 0) {
			return &EncodingError{Value: v.flt, Err: ErrNonFiniteNumber}
		}
	case KindList:
		return v.validateList()
	case KindString, KindInt, KindBool, KindDate, KindDateTime:
	}

	return nil
}

func (v Value) validateList() error {
	if len(v.list) == 0 {
		return &EncodingError{Value: v, Err: ErrEmptyList}
	}

	for _, item := range v.list {
		if item.kind == KindList {
			return &EncodingError{Value: v, Err: ErrNestedList}
		}

		if item.kind == KindString && strings.Contains(item.str, ";") {
			return &EncodingError{Value: item.str, Err: ErrListSeparator}
		}

		err := item.validate()
		if err != nil {
			return err
		}
	}

	return nil
}

// Encode converts raw with ValueOf and renders it as a literal.
func Encode(raw any) (string, error) {
	val, err := ValueOf(raw)
	if err != nil {
		return "", err
	}

	return val.Encode()
}

// escape applies the grammar's escaping: backslash first, then quotes.
func escape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)

	return strings.ReplaceAll(s, `'`, `\'`)
}

// Unescape reverses the encoding of a quoted string literal.
func Unescape(literal string) (string, error) {
	if len(literal) < 2 || literal[0] != '\'' || literal[len(literal)-1] != '\'' {
		return "", ErrUnterminatedString
	}

	body := literal[1 : len(literal)-1]

	var out strings.Builder

	out.Grow(len(body))

	for i := 0; i < len(body); i++ {
		if body[i] != '\\' {
			out.WriteByte(body[i])

			continue
		}

		if i+1 >= len(body) {
			return "", ErrDanglingEscape
		}

		i++
		out.WriteByte(body[i])
	}

	return out.String(), nil
}
