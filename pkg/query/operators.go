package query

import (
	"errors"
	"fmt"
	"sort"
)

// Operator is a formula query comparison code.
type Operator string

// Supported operators.
const (
	OpContains           Operator = "CT"
	OpNotContains        Operator = "XCT"
	OpHas                Operator = "HAS"
	OpNotHas             Operator = "XHAS"
	OpEquals             Operator = "EX"
	OpNotEquals          Operator = "XEX"
	OpTrue               Operator = "TV"
	OpNotTrue            Operator = "XTV"
	OpStartsWith         Operator = "SW"
	OpNotStartsWith      Operator = "XSW"
	OpBefore             Operator = "BF"
	OpOnOrBefore         Operator = "OBF"
	OpAfter              Operator = "AF"
	OpOnOrAfter          Operator = "OAF"
	OpInRange            Operator = "IR"
	OpNotInRange         Operator = "XIR"
	OpLessThan           Operator = "LT"
	OpLessThanOrEqual    Operator = "LTE"
	OpGreaterThan        Operator = "GT"
	OpGreaterThanOrEqual Operator = "GTE"
)

type operandClass int

const (
	classAny operandClass = iota
	classText
	classMembership
	classDate
	classOrdered
	classRange
)

var operatorClasses = map[Operator]operandClass{
	OpContains:           classText,
	OpNotContains:        classText,
	OpHas:                classMembership,
	OpNotHas:             classMembership,
	OpEquals:             classAny,
	OpNotEquals:          classAny,
	OpTrue:               classAny,
	OpNotTrue:            classAny,
	OpStartsWith:         classText,
	OpNotStartsWith:      classText,
	OpBefore:             classDate,
	OpOnOrBefore:         classDate,
	OpAfter:              classDate,
	OpOnOrAfter:          classDate,
	OpInRange:            classRange,
	OpNotInRange:         classRange,
	OpLessThan:           classOrdered,
	OpLessThanOrEqual:    classOrdered,
	OpGreaterThan:        classOrdered,
	OpGreaterThanOrEqual: classOrdered,
}

// Operators returns every supported operator, sorted.
func Operators() []Operator {
	ops := make([]Operator, 0, len(operatorClasses))
	for op := range operatorClasses {
		ops = append(ops, op)
	}

	sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })

	return ops
}

// Valid reports whether op is a supported operator.
func (op Operator) Valid() bool {
	_, ok := operatorClasses[op]

	return ok
}

// bind checks val against the operand class of op and returns the value to
// render. ISO date strings are coerced for date operators.
func (op Operator) bind(val Value) (Value, error) {
	class, ok := operatorClasses[op]
	if !ok {
		return Value{}, &EncodingError{Value: val, Operator: op, Err: fmt.Errorf("%w: %q", ErrUnsupportedOp, string(op))}
	}

	incompatible := func() (Value, error) {
		return Value{}, &EncodingError{
			Value:    val,
			Operator: op,
			Err:      fmt.Errorf("%w: %s", ErrIncompatibleValue, val.kind),
		}
	}

	if val.kind == KindList && class != classMembership {
		return incompatible()
	}

	switch class {
	case classDate:
		return bindDate(op, val)
	case classOrdered:
		if val.kind == KindBool {
			return incompatible()
		}
	case classRange:
		if val.kind != KindString {
			return incompatible()
		}
	case classAny, classText, classMembership:
	}

	return val, nil
}

func bindDate(op Operator, val Value) (Value, error) {
	switch val.kind {
	case KindDate, KindDateTime:
		return val, nil
	case KindString:
		if date, err := ParseDate(val.str); err == nil {
			return date, nil
		}

		instant, err := ParseDateTime(val.str)
		if err == nil {
			return instant, nil
		}

		if errors.Is(err, ErrMissingTimezone) {
			return Value{}, &EncodingError{Value: val.str, Operator: op, Err: ErrMissingTimezone}
		}
	case KindInvalid, KindInt, KindFloat, KindBool, KindList:
	}

	return Value{}, &EncodingError{
		Value:    val,
		Operator: op,
		Err:      fmt.Errorf("%w: %s operator requires a date", ErrIncompatibleValue, op),
	}
}
