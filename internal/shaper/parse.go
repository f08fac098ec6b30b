// Package shaper turns the textual result of a query back into rows for the
// detail view, and derives a chartable projection when the shape allows it.
package shaper

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	apperrors "github.com/JonMunkholm/nlq/internal/errors"
)

// Parse reads a list literal such as [(15000,)] or [('Painting', 500)] into a
// Table. Tuple or list elements become rows; bare scalars become one-column rows.
// Empty input yields a table with no rows.
//
// Values are int64, float64, string, bool or nil. Decimal('x') becomes a
// float64 when x is numeric. Other calls such as datetime.date(1968, 3, 7) are
// kept as their source text.
func Parse(raw string) (Table, error) {
	p := &parser{src: raw}
	p.skipSpace()
	if p.done() {
		return Table{}, nil
	}

	top, err := p.value()
	if err != nil {
		return Table{}, unparseable(err)
	}
	p.skipSpace()
	if !p.done() {
		return Table{}, unparseable(fmt.Errorf("unexpected %q at offset %d", p.peek(), p.pos))
	}

	seq, ok := top.(sequence)
	if !ok {
		return Table{}, unparseable(fmt.Errorf("result is not a list"))
	}

	rows := make([][]any, 0, len(seq))
	for _, item := range seq {
		if inner, ok := item.(sequence); ok {
			row := make([]any, len(inner))
			for i, v := range inner {
				if _, nested := v.(sequence); nested {
					return Table{}, unparseable(fmt.Errorf("nested sequence in row %d", len(rows)))
				}
				row[i] = v
			}
			rows = append(rows, row)
			continue
		}
		rows = append(rows, []any{item})
	}
	return Table{Rows: rows}, nil
}

func unparseable(err error) error {
	return apperrors.Wrap(apperrors.ResultUnparseable, "parse query result", err)
}

type sequence []any

type parser struct {
	src string
	pos int
}

func (p *parser) done() bool { return p.pos >= len(p.src) }

func (p *parser) peek() rune {
	r, _ := utf8.DecodeRuneInString(p.src[p.pos:])
	return r
}

func (p *parser) skipSpace() {
	for !p.done() {
		r, size := utf8.DecodeRuneInString(p.src[p.pos:])
		if !unicode.IsSpace(r) {
			return
		}
		p.pos += size
	}
}

func (p *parser) value() (any, error) {
	p.skipSpace()
	if p.done() {
		return nil, fmt.Errorf("unexpected end of input")
	}
	switch r := p.peek(); {
	case r == '[':
		return p.sequence('[', ']')
	case r == '(':
		return p.sequence('(', ')')
	case r == '\'' || r == '"':
		return p.str()
	case r == '-' || r == '+' || r == '.' || (r >= '0' && r <= '9'):
		return p.number()
	case unicode.IsLetter(r) || r == '_':
		return p.word()
	default:
		return nil, fmt.Errorf("unexpected %q at offset %d", r, p.pos)
	}
}

func (p *parser) sequence(open, close byte) (sequence, error) {
	p.pos++ // open
	out := sequence{}
	for {
		p.skipSpace()
		if p.done() {
			return nil, fmt.Errorf("unterminated %q", open)
		}
		if p.src[p.pos] == close {
			p.pos++
			return out, nil
		}
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		out = append(out, v)

		p.skipSpace()
		if p.done() {
			return nil, fmt.Errorf("unterminated %q", open)
		}
		switch p.src[p.pos] {
		case ',':
			p.pos++
		case close:
			p.pos++
			return out, nil
		default:
			return nil, fmt.Errorf("expected ',' or %q at offset %d", close, p.pos)
		}
	}
}

func (p *parser) str() (string, error) {
	quote := p.src[p.pos]
	p.pos++
	var b strings.Builder
	for !p.done() {
		c := p.src[p.pos]
		switch {
		case c == quote:
			p.pos++
			return b.String(), nil
		case c == '\\':
			if p.pos+1 >= len(p.src) {
				return "", fmt.Errorf("dangling escape")
			}
			if err := p.escape(&b); err != nil {
				return "", err
			}
		default:
			b.WriteByte(c)
			p.pos++
		}
	}
	return "", fmt.Errorf("unterminated string")
}

func (p *parser) escape(b *strings.Builder) error {
	c := p.src[p.pos+1]
	p.pos += 2
	switch c {
	case 'n':
		b.WriteByte('\n')
	case 't':
		b.WriteByte('\t')
	case 'r':
		b.WriteByte('\r')
	case '0':
		b.WriteByte(0)
	case '\\', '\'', '"':
		b.WriteByte(c)
	case 'x', 'u', 'U':
		width := map[byte]int{'x': 2, 'u': 4, 'U': 8}[c]
		if p.pos+width > len(p.src) {
			return fmt.Errorf("short \\%c escape", c)
		}
		n, err := strconv.ParseUint(p.src[p.pos:p.pos+width], 16, 32)
		if err != nil {
			return fmt.Errorf("bad \\%c escape: %w", c, err)
		}
		b.WriteRune(rune(n))
		p.pos += width
	default:
		b.WriteByte('\\')
		b.WriteByte(c)
	}
	return nil
}

func (p *parser) number() (any, error) {
	if f, ok := p.signedSpecial(); ok {
		return f, nil
	}
	start := p.pos
	for !p.done() {
		c := p.src[p.pos]
		if (c >= '0' && c <= '9') || c == '.' || c == 'e' || c == 'E' || c == '+' || c == '-' || c == '_' {
			p.pos++
			continue
		}
		break
	}
	text := strings.ReplaceAll(p.src[start:p.pos], "_", "")
	if i, err := strconv.ParseInt(text, 10, 64); err == nil {
		return i, nil
	}
	if f, err := strconv.ParseFloat(text, 64); err == nil {
		return f, nil
	}
	return nil, fmt.Errorf("bad number %q", text)
}

// signedSpecial reads -inf, +inf, -nan and +nan.
func (p *parser) signedSpecial() (float64, bool) {
	sign := p.src[p.pos]
	if sign != '-' && sign != '+' {
		return 0, false
	}
	rest := p.src[p.pos+1:]
	if len(rest) < 3 {
		return 0, false
	}
	name := rest[:3]
	if name != "inf" && name != "nan" {
		return 0, false
	}
	if len(rest) > 3 {
		if r, _ := utf8.DecodeRuneInString(rest[3:]); unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			return 0, false
		}
	}
	p.pos += 4
	if name == "nan" {
		return math.NaN(), true
	}
	if sign == '-' {
		return math.Inf(-1), true
	}
	return math.Inf(1), true
}

func (p *parser) word() (any, error) {
	start := p.pos
	for !p.done() {
		r, size := utf8.DecodeRuneInString(p.src[p.pos:])
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '.' {
			p.pos += size
			continue
		}
		break
	}
	name := p.src[start:p.pos]

	p.skipSpace()
	if !p.done() && p.src[p.pos] == '(' {
		return p.call(start, name)
	}

	switch name {
	case "None":
		return nil, nil
	case "True":
		return true, nil
	case "False":
		return false, nil
	case "nan", "inf":
		f, _ := strconv.ParseFloat(name, 64)
		return f, nil
	default:
		return nil, fmt.Errorf("unknown name %q", name)
	}
}

// call handles name(args...). Decimal('x') is read as a number; any other call
// is returned as its source text.
func (p *parser) call(start int, name string) (any, error) {
	args, err := p.sequence('(', ')')
	if err != nil {
		return nil, fmt.Errorf("%s(...): %w", name, err)
	}
	if name == "Decimal" && len(args) == 1 {
		if s, ok := args[0].(string); ok {
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return f, nil
			}
			return s, nil
		}
	}
	return p.src[start:p.pos], nil
}
