package query

import (
	"fmt"
	"strings"
)

// AlwaysTrue is the predicate emitted for a tree that filters nothing. Every
// Quickbase table has a positive Record ID# in field 3.
const AlwaysTrue = "{3.GT.0}"

// FieldResolver maps a field label to its numeric field ID.
type FieldResolver interface {
	FieldID(label string) (int, error)
}

// FieldMap is a static FieldResolver keyed by exact label.
type FieldMap map[string]int

// FieldID implements FieldResolver.
func (m FieldMap) FieldID(label string) (int, error) {
	fid, ok := m[label]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownField, label)
	}

	return fid, nil
}

// Expr is an immutable node of a query expression tree.
type Expr interface {
	// Render compiles the tree to the formula query grammar.
	Render(resolver FieldResolver) (string, error)

	// Err returns the first build-time error recorded in the tree.
	Err() error

	// Labels returns the field labels referenced by the tree, in order.
	Labels() []string

	compile(resolver FieldResolver) (string, bool, error)
}

// Comparison is a leaf node: {field.OP.value}.
type Comparison struct {
	label string
	op    Operator
	value Value
	err   error
}

// Compare builds a comparison. raw may be a Value or any Go value accepted
// by ValueOf. Conversion and operator compatibility are checked here and any
// failure is reported by Err.
func Compare(label string, op Operator, raw any) Comparison {
	cmp := Comparison{label: label, op: op}

	val, err := ValueOf(raw)
	if err != nil {
		cmp.err = withOperator(err, op)

		return cmp
	}

	cmp.value, cmp.err = op.bind(val)

	return cmp
}

func withOperator(err error, op Operator) error {
	if encErr, ok := err.(*EncodingError); ok && encErr.Operator == "" { //nolint:errorlint // produced by ValueOf, never wrapped
		clone := *encErr
		clone.Operator = op

		return &clone
	}

	return err
}

// Label returns the field label.
func (c Comparison) Label() string { return c.label }

// Operator returns the comparison operator.
func (c Comparison) Operator() Operator { return c.op }

// Value returns the bound literal.
func (c Comparison) Value() Value { return c.value }

// Err implements Expr.
func (c Comparison) Err() error {
	if c.err == nil {
		return nil
	}

	return &RenderError{Label: c.label, Operator: c.op, Err: c.err}
}

// Labels implements Expr.
func (c Comparison) Labels() []string { return []string{c.label} }

// Render implements Expr.
func (c Comparison) Render(resolver FieldResolver) (string, error) {
	return render(c, resolver)
}

func (c Comparison) compile(resolver FieldResolver) (string, bool, error) {
	err := c.Err()
	if err != nil {
		return "", false, err
	}

	fid, err := resolver.FieldID(c.label)
	if err != nil {
		return "", false, &RenderError{Label: c.label, Operator: c.op, Err: err}
	}

	literal, err := c.value.Encode()
	if err != nil {
		return "", false, &RenderError{Label: c.label, Operator: c.op, Err: err}
	}

	return fmt.Sprintf("{%d.%s.%s}", fid, c.op, literal), false, nil
}

type combinator string

const (
	combineAnd combinator = "AND"
	combineOr  combinator = "OR"
)

// Group is an And or Or node.
type Group struct {
	kind     combinator
	children []Expr
}

// And combines children with AND. An empty And matches every record.
func And(children ...Expr) Group {
	return Group{kind: combineAnd, children: compact(children)}
}

// Or combines children with OR. An empty Or matches every record.
func Or(children ...Expr) Group {
	return Group{kind: combineOr, children: compact(children)}
}

func compact(children []Expr) []Expr {
	out := make([]Expr, 0, len(children))

	for _, child := range children {
		if child != nil {
			out = append(out, child)
		}
	}

	return out
}

// IsAnd reports whether g is an And node.
func (g Group) IsAnd() bool { return g.kind == combineAnd }

// Children returns a copy of the child nodes.
func (g Group) Children() []Expr { return append([]Expr(nil), g.children...) }

// Err implements Expr.
func (g Group) Err() error {
	for _, child := range g.children {
		err := child.Err()
		if err != nil {
			return err
		}
	}

	return nil
}

// Labels implements Expr.
func (g Group) Labels() []string {
	var labels []string
	for _, child := range g.children {
		labels = append(labels, child.Labels()...)
	}

	return labels
}

// Render implements Expr.
func (g Group) Render(resolver FieldResolver) (string, error) {
	return render(g, resolver)
}

// compile renders every child so that unresolved labels surface even when a
// sibling already makes the group trivially true.
func (g Group) compile(resolver FieldResolver) (string, bool, error) {
	parts := make([]string, 0, len(g.children))
	anyTrue := false

	for _, child := range g.children {
		text, always, err := child.compile(resolver)
		if err != nil {
			return "", false, err
		}

		if always {
			anyTrue = true

			continue
		}

		parts = append(parts, text)
	}

	if g.kind == combineOr && anyTrue {
		return "", true, nil
	}

	switch len(parts) {
	case 0:
		return "", true, nil
	case 1:
		return parts[0], false, nil
	default:
		return "(" + strings.Join(parts, string(g.kind)) + ")", false, nil
	}
}

func render(expr Expr, resolver FieldResolver) (string, error) {
	text, always, err := expr.compile(resolver)
	if err != nil {
		return "", err
	}

	if always {
		return AlwaysTrue, nil
	}

	return text, nil
}

// Render compiles expr. A nil expression renders AlwaysTrue.
func Render(expr Expr, resolver FieldResolver) (string, error) {
	if expr == nil {
		return AlwaysTrue, nil
	}

	return expr.Render(resolver)
}

// Equals matches field values equal to raw (EX).
func Equals(label string, raw any) Comparison { return Compare(label, OpEquals, raw) }

// NotEquals matches field values not equal to raw (XEX).
func NotEquals(label string, raw any) Comparison { return Compare(label, OpNotEquals, raw) }

// Contains matches field values containing raw (CT).
func Contains(label string, raw any) Comparison { return Compare(label, OpContains, raw) }

// NotContains matches field values not containing raw (XCT).
func NotContains(label string, raw any) Comparison { return Compare(label, OpNotContains, raw) }

// Has matches list-user or multi-select fields holding raw (HAS).
func Has(label string, raw any) Comparison { return Compare(label, OpHas, raw) }

// NotHas is the negation of Has (XHAS).
func NotHas(label string, raw any) Comparison { return Compare(label, OpNotHas, raw) }

// TrueValue matches field values that evaluate true against raw (TV).
func TrueValue(label string, raw any) Comparison { return Compare(label, OpTrue, raw) }

// NotTrueValue is the negation of TrueValue (XTV).
func NotTrueValue(label string, raw any) Comparison { return Compare(label, OpNotTrue, raw) }

// StartsWith matches field values starting with raw (SW).
func StartsWith(label string, raw any) Comparison { return Compare(label, OpStartsWith, raw) }

// NotStartsWith is the negation of StartsWith (XSW).
func NotStartsWith(label string, raw any) Comparison { return Compare(label, OpNotStartsWith, raw) }

// Before matches dates strictly before raw (BF).
func Before(label string, raw any) Comparison { return Compare(label, OpBefore, raw) }

// OnOrBefore matches dates on or before raw (OBF).
func OnOrBefore(label string, raw any) Comparison { return Compare(label, OpOnOrBefore, raw) }

// After matches dates strictly after raw (AF).
func After(label string, raw any) Comparison { return Compare(label, OpAfter, raw) }

// OnOrAfter matches dates on or after raw (OAF).
func OnOrAfter(label string, raw any) Comparison { return Compare(label, OpOnOrAfter, raw) }

// InRange matches dates inside a named range such as 'today' (IR).
func InRange(label string, raw any) Comparison { return Compare(label, OpInRange, raw) }

// NotInRange is the negation of InRange (XIR).
func NotInRange(label string, raw any) Comparison { return Compare(label, OpNotInRange, raw) }

// LessThan matches values below raw (LT).
func LessThan(label string, raw any) Comparison { return Compare(label, OpLessThan, raw) }

// LessThanOrEqual matches values at or below raw (LTE).
func LessThanOrEqual(label string, raw any) Comparison {
	return Compare(label, OpLessThanOrEqual, raw)
}

// GreaterThan matches values above raw (GT).
func GreaterThan(label string, raw any) Comparison { return Compare(label, OpGreaterThan, raw) }

// GreaterThanOrEqual matches values at or above raw (GTE).
func GreaterThanOrEqual(label string, raw any) Comparison {
	return Compare(label, OpGreaterThanOrEqual, raw)
}
