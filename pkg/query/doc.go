// Package query builds Quickbase formula queries from field labels.
//
// An expression tree is built from comparisons and the And / Or combinators,
// then rendered against a FieldResolver that maps labels to field IDs:
//
//	expr := query.And(
//	  query.Equals("Status", "Active"),
//	  query.After("Date", "2025-05-13"),
//	)
//	if err := expr.Err(); err != nil {
//	  // a value could not be encoded for its operator
//	}
//
//	where, err := expr.Render(query.FieldMap{"Status": 3, "Date": 7})
//	// where == "({3.EX.'Active'}AND{7.AF.'2025-05-13'})"
//
// # Values
//
// Literals belong to a closed set of variants: string, int, float, bool,
// date, date-time and list. ValueOf converts plain Go values; anything else
// is rejected with an EncodingError instead of being stringified.
//
// Strings are single-quoted; backslashes and single quotes inside them are
// escaped with a backslash.
// Dates render as 'YYYY-MM-DD'. Date-times are converted to UTC and render as
// 'YYYY-MM-DDTHH:MM:SSZ'; parsing a date-time string without an offset is an
// error. Lists render as 'a; b; c' and are only accepted by HAS and XHAS.
//
// # Rendering
//
// Groups with more than one effective child are parenthesized, so mixed
// And / Or nesting never depends on operator precedence. Empty groups match
// everything: they are dropped from an And, make an enclosing Or trivially
// true, and a tree that reduces to nothing renders AlwaysTrue.
package query
