package database

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Decimal is an exact NUMERIC value kept in its textual form.
type Decimal string

// Date is a calendar date from a DATE column.
type Date struct{ time.Time }

// Literal renders rows as a list of tuples, e.g. [(15000,)] or
// [('Painting', 500), ('Print', 300)]. Strings longer than maxStringLength are
// cut at a word boundary and suffixed with "...". No rows render as "".
func Literal(rows [][]any, maxStringLength int) string {
	if len(rows) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteByte('[')
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j, v := range row {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(literalValue(v, maxStringLength))
		}
		if len(row) == 1 {
			b.WriteByte(',')
		}
		b.WriteByte(')')
	}
	b.WriteByte(']')
	return b.String()
}

func literalValue(v any, maxStringLength int) string {
	switch val := v.(type) {
	case nil:
		return "None"
	case bool:
		if val {
			return "True"
		}
		return "False"
	case int64:
		return strconv.FormatInt(val, 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int:
		return strconv.Itoa(val)
	case float64:
		return pyFloat(val)
	case float32:
		return pyFloat(float64(val))
	case Decimal:
		return "Decimal(" + pyString(string(val)) + ")"
	case Date:
		return fmt.Sprintf("datetime.date(%d, %d, %d)", val.Year(), int(val.Month()), val.Day())
	case time.Time:
		return pyDateTime(val)
	case string:
		return pyString(truncateWord(val, maxStringLength))
	default:
		return pyString(truncateWord(fmt.Sprint(val), maxStringLength))
	}
}

func pyFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	abs := math.Abs(f)
	if abs != 0 && (abs >= 1e16 || abs < 1e-4) {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

func pyDateTime(t time.Time) string {
	parts := []int{t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute()}
	micro := t.Nanosecond() / 1000
	if t.Second() != 0 || micro != 0 {
		parts = append(parts, t.Second())
	}
	if micro != 0 {
		parts = append(parts, micro)
	}
	strs := make([]string, len(parts))
	for i, p := range parts {
		strs[i] = strconv.Itoa(p)
	}
	return "datetime.datetime(" + strings.Join(strs, ", ") + ")"
}

// pyString quotes s with single quotes, or double quotes when s contains a
// single quote and no double quote.
func pyString(s string) string {
	quote := byte('\'')
	if strings.ContainsRune(s, '\'') && !strings.ContainsRune(s, '"') {
		quote = '"'
	}
	var b strings.Builder
	b.WriteByte(quote)
	for _, r := range s {
		switch {
		case r == '\\':
			b.WriteString(`\\`)
		case r == rune(quote):
			b.WriteByte('\\')
			b.WriteRune(r)
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\r':
			b.WriteString(`\r`)
		case r == '\t':
			b.WriteString(`\t`)
		case r < 0x20 || r == 0x7f:
			fmt.Fprintf(&b, `\x%02x`, r)
		case !unicode.IsPrint(r) && r > 0x7f:
			if r <= 0xffff {
				fmt.Fprintf(&b, `\u%04x`, r)
			} else {
				fmt.Fprintf(&b, `\U%08x`, r)
			}
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte(quote)
	return b.String()
}

// truncateWord shortens content to at most length runes, cutting at the last
// space and appending "...".
func truncateWord(content string, length int) string {
	const suffix = "..."
	runes := []rune(content)
	if length <= 0 || len(runes) <= length {
		return content
	}
	keep := length - len(suffix)
	if keep < 0 {
		keep = 0
	}
	head := string(runes[:keep])
	if i := strings.LastIndex(head, " "); i >= 0 {
		head = head[:i]
	}
	return head + suffix
}

// FormatValue renders a normalized value for display and CSV export.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case Decimal:
		return string(val)
	case Date:
		return val.Format("2006-01-02")
	case time.Time:
		return val.Format(time.RFC3339)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}
