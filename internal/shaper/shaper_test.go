package shaper

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/nlq/internal/database"
	apperrors "github.com/JonMunkholm/nlq/internal/errors"
)

func TestParseSingleScalar(t *testing.T) {
	table, err := Parse("[(1,)]")
	require.NoError(t, err)
	require.Len(t, table.Rows, 1)
	require.Len(t, table.Rows[0], 1)
	assert.Equal(t, int64(1), table.Rows[0][0])

	_, ok := table.Chart()
	assert.False(t, ok)
}

func TestParseTwoColumnsIsChartable(t *testing.T) {
	table, err := Parse("[('Painting', 500), ('Print', 300)]")
	require.NoError(t, err)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, 2, table.Columns())
	assert.Equal(t, []any{"Painting", int64(500)}, table.Rows[0])
	assert.Equal(t, []any{"Print", int64(300)}, table.Rows[1])

	points, ok := table.Chart()
	require.True(t, ok)
	assert.Equal(t, []Point{{"Painting", 500}, {"Print", 300}}, points)
}

func TestParseScalarList(t *testing.T) {
	table, err := Parse("[1, 2.5, 'x']")
	require.NoError(t, err)
	assert.Equal(t, [][]any{{int64(1)}, {2.5}, {"x"}}, table.Rows)
}

func TestParseEmpty(t *testing.T) {
	for _, raw := range []string{"", "  ", "[]"} {
		table, err := Parse(raw)
		require.NoError(t, err, raw)
		assert.Empty(t, table.Rows)
		_, ok := table.Chart()
		assert.False(t, ok)
	}
}

func TestParseLiteralForms(t *testing.T) {
	table, err := Parse(`[(None, True, False, Decimal('12.50'), datetime.date(1968, 3, 7), "Frida's", 'a\nb', 'caf\xe9', -3, 1e-05)]`)
	require.NoError(t, err)
	assert.Equal(t, []any{
		nil, true, false, 12.5, "datetime.date(1968, 3, 7)", "Frida's", "a\nb", "café", int64(-3), 1e-05,
	}, table.Rows[0])
}

func TestParseMalformed(t *testing.T) {
	for _, raw := range []string{
		"There are 15000 artists.",
		"[(1,)",
		"[('open]",
		"[(1, 2)] trailing",
		"42",
		"[[(1,)]]",
		"[(1 2)]",
	} {
		_, err := Parse(raw)
		require.Error(t, err, raw)
		assert.True(t, apperrors.Is(err, apperrors.ResultUnparseable), raw)
	}
}

func TestChartRule(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want bool
	}{
		{"float metric", "[('Italian', 0.25), ('French', 0.5)]", true},
		{"decimal metric", "[('avg', Decimal('3.5'))]", true},
		{"string metric", "[('Painting', '500')]", false},
		{"null metric", "[('Painting', None)]", false},
		{"bool metric", "[('Painting', True)]", false},
		{"three columns", "[('a', 1, 2)]", false},
		{"ragged", "[('a', 1), ('b',)]", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			table, err := Parse(tc.raw)
			require.NoError(t, err)
			_, ok := table.Chart()
			assert.Equal(t, tc.want, ok)
		})
	}
}

func TestSortedByMetric(t *testing.T) {
	table, err := Parse("[('Print', 300), ('Photograph', 900), ('Painting', 500), ('Drawing', 500)]")
	require.NoError(t, err)

	points, ok := table.SortedByMetric()
	require.True(t, ok)
	assert.Equal(t, []Point{{"Photograph", 900}, {"Painting", 500}, {"Drawing", 500}, {"Print", 300}}, points)

	original, _ := table.Chart()
	assert.Equal(t, "Print", original[0].Category)
}

func TestText(t *testing.T) {
	assert.Equal(t, "", Text(nil))
	assert.Equal(t, "15000", Text(int64(15000)))
	assert.Equal(t, "0.25", Text(0.25))
	assert.Equal(t, "True", Text(true))
}

func TestParseReadsRenderedResults(t *testing.T) {
	rows := [][]any{
		{"Painting", int64(-3), -1.25, math.Inf(-1), math.Inf(1), math.NaN()},
		{nil, true, database.Decimal("-33.91"), database.Date{Time: time.Date(1968, 3, 7, 0, 0, 0, 0, time.UTC)},
			time.Date(2024, 1, 2, 3, 4, 0, 0, time.UTC), "Frida's"},
	}
	raw := database.Literal(rows, 300)

	table, err := Parse(raw)
	require.NoError(t, err, raw)
	require.Len(t, table.Rows, 2)

	first := table.Rows[0]
	assert.Equal(t, "Painting", first[0])
	assert.Equal(t, int64(-3), first[1])
	assert.Equal(t, -1.25, first[2])
	assert.True(t, math.IsInf(first[3].(float64), -1))
	assert.True(t, math.IsInf(first[4].(float64), 1))
	assert.True(t, math.IsNaN(first[5].(float64)))

	second := table.Rows[1]
	assert.Nil(t, second[0])
	assert.Equal(t, true, second[1])
	assert.Equal(t, -33.91, second[2])
	assert.Equal(t, "datetime.date(1968, 3, 7)", second[3])
	assert.Equal(t, "datetime.datetime(2024, 1, 2, 3, 4)", second[4])
	assert.Equal(t, "Frida's", second[5])
}

func TestParseSignedSpecials(t *testing.T) {
	table, err := Parse("[('x', -inf), ('y', +inf), ('z', -nan)]")
	require.NoError(t, err)
	assert.True(t, math.IsInf(table.Rows[0][1].(float64), -1))
	assert.True(t, math.IsInf(table.Rows[1][1].(float64), 1))
	assert.True(t, math.IsNaN(table.Rows[2][1].(float64)))

	_, err = Parse("[-info]")
	assert.Error(t, err)
}
