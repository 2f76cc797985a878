package query_test

import (
	"math"
	"testing"
	"time"

	"github.com/fivetwenty-io/qbclient/pkg/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

//nolint:funlen // Test functions can be longer for comprehensive testing
func TestEncode(t *testing.T) {
	t.Parallel()

	est := time.FixedZone("EST", -5*60*60)

	tests := []struct {
		name     string
		value    any
		expected string
	}{
		{name: "plain string", value: "Active", expected: "'Active'"},
		{name: "empty string", value: "", expected: "''"},
		{name: "embedded quote", value: "O'Brien", expected: `'O\'Brien'`},
		{name: "embedded backslash", value: `C:\temp`, expected: `'C:\\temp'`},
		{name: "int", value: 42, expected: "42"},
		{name: "negative int64", value: int64(-7), expected: "-7"},
		{name: "uint8", value: uint8(200), expected: "200"},
		{name: "float", value: 3.25, expected: "3.25"},
		{name: "large float has no exponent", value: 1e21, expected: "1000000000000000000000"},
		{name: "bool true", value: true, expected: "'true'"},
		{name: "bool false", value: false, expected: "'false'"},
		{name: "date", value: query.Date(2025, time.May, 13), expected: "'2025-05-13'"},
		{name: "date of keeps local calendar day", value: query.DateOf(time.Date(2025, 5, 13, 23, 0, 0, 0, est)), expected: "'2025-05-13'"},
		{name: "time normalized to UTC", value: time.Date(2025, 5, 13, 23, 30, 0, 0, est), expected: "'2025-05-14T04:30:00Z'"},
		{name: "string list", value: []string{"a", "b", "c"}, expected: "'a; b; c'"},
		{name: "int list", value: []int{1, 2}, expected: "'1; 2'"},
		{name: "mixed list", value: []any{"x", 3, true}, expected: "'x; 3; true'"},
		{name: "list escapes quotes", value: []string{"it's"}, expected: `'it\'s'`},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			encoded, err := query.Encode(testCase.value)
			require.NoError(t, err)
			assert.Equal(t, testCase.expected, encoded)
		})
	}
}

func TestEncode_Rejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value any
		cause error
	}{
		{name: "struct", value: struct{}{}, cause: query.ErrUnsupportedType},
		{name: "map", value: map[string]string{}, cause: query.ErrUnsupportedType},
		{name: "nil", value: nil, cause: query.ErrUnsupportedType},
		{name: "pointer", value: new(string), cause: query.ErrUnsupportedType},
		{name: "overflowing uint64", value: uint64(math.MaxUint64), cause: query.ErrUnsupportedType},
		{name: "NaN", value: math.NaN(), cause: query.ErrNonFiniteNumber},
		{name: "infinity", value: math.Inf(1), cause: query.ErrNonFiniteNumber},
		{name: "empty list", value: []string{}, cause: query.ErrEmptyList},
		{name: "nested list", value: []any{[]string{"a"}}, cause: query.ErrNestedList},
		{name: "separator in element", value: []string{"a;b"}, cause: query.ErrListSeparator},
		{name: "zero value", value: query.Value{}, cause: query.ErrUnsupportedType},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			_, err := query.Encode(testCase.value)
			require.Error(t, err)
			require.ErrorIs(t, err, testCase.cause)
			assert.True(t, query.IsEncodingError(err))
		})
	}
}

func TestEncode_StringRoundTrip(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"'",
		"''",
		`\'`,
		"it's a 'quoted' value",
		`trailing backslash \`,
		`\\'\\`,
		"{3.EX.'injected'}OR{3.GT.0}",
		"ünïcödé ' ✓",
	}

	for _, input := range inputs {
		encoded, err := query.Encode(input)
		require.NoError(t, err)

		decoded, err := query.Unescape(encoded)
		require.NoError(t, err)
		assert.Equal(t, input, decoded, "encoded as %s", encoded)
	}
}

func TestUnescape_Malformed(t *testing.T) {
	t.Parallel()

	_, err := query.Unescape("no quotes")
	require.ErrorIs(t, err, query.ErrUnterminatedString)

	_, err = query.Unescape(`'dangling\'`)
	require.ErrorIs(t, err, query.ErrDanglingEscape)
}

func TestParseDateTime(t *testing.T) {
	t.Parallel()

	t.Run("offset is normalized", func(t *testing.T) {
		t.Parallel()

		val, err := query.ParseDateTime("2025-05-13T10:00:00+02:00")
		require.NoError(t, err)
		assert.Equal(t, query.KindDateTime, val.Kind())

		encoded, err := val.Encode()
		require.NoError(t, err)
		assert.Equal(t, "'2025-05-13T08:00:00Z'", encoded)
	})

	t.Run("naive input is rejected", func(t *testing.T) {
		t.Parallel()

		_, err := query.ParseDateTime("2025-05-13T10:00:00")
		require.ErrorIs(t, err, query.ErrMissingTimezone)
	})

	t.Run("garbage is rejected", func(t *testing.T) {
		t.Parallel()

		_, err := query.ParseDateTime("next tuesday")
		require.ErrorIs(t, err, query.ErrInvalidDate)
	})
}

func TestParseDate(t *testing.T) {
	t.Parallel()

	val, err := query.ParseDate("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, query.KindDate, val.Kind())

	_, err = query.ParseDate("2023-02-29")
	require.ErrorIs(t, err, query.ErrInvalidDate)
}
