package shaper

import (
	"fmt"
	"sort"
	"strconv"
)

// Table is a parsed query result.
type Table struct {
	Rows [][]any
}

// Point is one (category, metric) pair of a two-column result.
type Point struct {
	Category string  `json:"category"`
	Metric   float64 `json:"metric"`
}

// Columns returns the widest row length.
func (t Table) Columns() int {
	n := 0
	for _, row := range t.Rows {
		if len(row) > n {
			n = len(row)
		}
	}
	return n
}

// Chart returns the (category, metric) projection. A table is chartable when it
// has at least one row, every row has exactly two values and every second value
// is an integer or float.
func (t Table) Chart() ([]Point, bool) {
	if len(t.Rows) == 0 {
		return nil, false
	}
	points := make([]Point, 0, len(t.Rows))
	for _, row := range t.Rows {
		if len(row) != 2 {
			return nil, false
		}
		metric, ok := numeric(row[1])
		if !ok {
			return nil, false
		}
		points = append(points, Point{Category: Text(row[0]), Metric: metric})
	}
	return points, true
}

// SortedByMetric returns the chart projection ordered by metric, largest first.
// Equal metrics keep row order.
func (t Table) SortedByMetric() ([]Point, bool) {
	points, ok := t.Chart()
	if !ok {
		return nil, false
	}
	sort.SliceStable(points, func(i, j int) bool { return points[i].Metric > points[j].Metric })
	return points, true
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// Text renders a parsed value for display.
func Text(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		if val {
			return "True"
		}
		return "False"
	default:
		return fmt.Sprint(val)
	}
}
