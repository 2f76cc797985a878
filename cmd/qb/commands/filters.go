package commands

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fivetwenty-io/qbclient/internal/constants"
	"github.com/fivetwenty-io/qbclient/pkg/query"
	"github.com/fivetwenty-io/qbclient/pkg/quickbase"
)

type filterFlag struct {
	name  string
	op    query.Operator
	usage string
}

// filterFlags are applied in this order, one comparison per occurrence.
var filterFlags = []filterFlag{
	{name: "eq", op: query.OpEquals, usage: "field equals value"},
	{name: "ne", op: query.OpNotEquals, usage: "field does not equal value"},
	{name: "contains", op: query.OpContains, usage: "field contains value"},
	{name: "not-contains", op: query.OpNotContains, usage: "field does not contain value"},
	{name: "starts-with", op: query.OpStartsWith, usage: "field starts with value"},
	{name: "has", op: query.OpHas, usage: "multi-select field has any of the comma separated values"},
	{name: "gt", op: query.OpGreaterThan, usage: "field is greater than value"},
	{name: "gte", op: query.OpGreaterThanOrEqual, usage: "field is greater than or equal to value"},
	{name: "lt", op: query.OpLessThan, usage: "field is less than value"},
	{name: "lte", op: query.OpLessThanOrEqual, usage: "field is less than or equal to value"},
	{name: "before", op: query.OpBefore, usage: "date field is before YYYY-MM-DD"},
	{name: "after", op: query.OpAfter, usage: "date field is after YYYY-MM-DD"},
	{name: "on-or-before", op: query.OpOnOrBefore, usage: "date field is on or before YYYY-MM-DD"},
	{name: "on-or-after", op: query.OpOnOrAfter, usage: "date field is on or after YYYY-MM-DD"},
}

func addFilterFlags(cmd *cobra.Command) {
	for _, f := range filterFlags {
		cmd.Flags().StringArray(f.name, nil, f.usage+" (label=value, repeatable)")
	}

	cmd.Flags().Bool("any", false, "match records satisfying any filter instead of all")
}

// buildFilter combines the filter flags of cmd. It returns nil when no
// filter was given.
func buildFilter(cmd *cobra.Command) (query.Expr, error) {
	var children []query.Expr

	for _, f := range filterFlags {
		values, err := cmd.Flags().GetStringArray(f.name)
		if err != nil {
			return nil, fmt.Errorf("reading --%s: %w", f.name, err)
		}

		for _, raw := range values {
			label, value, ok := strings.Cut(raw, "=")
			label = strings.TrimSpace(label)

			if !ok || label == "" {
				return nil, fmt.Errorf("%w: --%s %q", constants.ErrInvalidFilterFlag, f.name, raw)
			}

			cmp := query.Compare(label, f.op, filterValue(f.op, value))
			if cmpErr := cmp.Err(); cmpErr != nil {
				return nil, fmt.Errorf("--%s %q: %w", f.name, raw, cmpErr)
			}

			children = append(children, cmp)
		}
	}

	if len(children) == 0 {
		return nil, nil //nolint:nilnil // no filter selects every record
	}

	if len(children) == 1 {
		return children[0], nil
	}

	matchAny, _ := cmd.Flags().GetBool("any")
	if matchAny {
		return query.Or(children...), nil
	}

	return query.And(children...), nil
}

// filterValue types a command line value for op. Text and date operators
// keep the string; the rest accept booleans and numbers.
func filterValue(op query.Operator, raw string) any {
	switch op {
	case query.OpContains, query.OpNotContains, query.OpStartsWith, query.OpNotStartsWith,
		query.OpBefore, query.OpAfter, query.OpOnOrBefore, query.OpOnOrAfter:
		return raw
	case query.OpHas, query.OpNotHas:
		return strings.Split(raw, ",")
	default:
	}

	switch raw {
	case "true":
		return true
	case "false":
		return false
	}

	if !hasLeadingZero(raw) {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return n
		}

		if f, err := strconv.ParseFloat(raw, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
			return f
		}
	}

	return raw
}

// hasLeadingZero reports values such as zip codes whose leading zeros a
// numeric conversion would lose.
func hasLeadingZero(raw string) bool {
	digits := strings.TrimPrefix(raw, "-")

	return len(digits) > 1 && digits[0] == '0' && digits[1] >= '0' && digits[1] <= '9'
}

// parseSort turns label or label:desc values into sort keys.
func parseSort(values []string) ([]quickbase.SortBy, error) {
	sorts := make([]quickbase.SortBy, 0, len(values))

	for _, raw := range values {
		label, order, _ := strings.Cut(raw, ":")
		label = strings.TrimSpace(label)

		if label == "" {
			return nil, fmt.Errorf("%w: %q", constants.ErrInvalidSortFlag, raw)
		}

		switch strings.ToLower(order) {
		case "", "asc":
			sorts = append(sorts, quickbase.SortBy{Label: label})
		case "desc":
			sorts = append(sorts, quickbase.SortBy{Label: label, Descending: true})
		default:
			return nil, fmt.Errorf("%w: %q", constants.ErrInvalidSortFlag, raw)
		}
	}

	return sorts, nil
}
