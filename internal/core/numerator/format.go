package numerator

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// DefaultPadWidth is the minimum number width when the template says just {number}.
const DefaultPadWidth = 4

// Template placeholders.
const (
	placeholderPrefix    = "{prefix}"
	placeholderSeparator = "{separator}"
	placeholderNumber    = "number"
)

type segmentKind int

const (
	segLiteral segmentKind = iota
	segPrefix
	segSeparator
	segNumber
)

type segment struct {
	kind  segmentKind
	text  string
	width int
}

// Template is a compiled number format such as "{prefix}{separator}{number:2}".
type Template struct {
	raw      string
	segments []segment
	width    int
}

// CompileTemplate parses a format string. Exactly one {number} placeholder is required.
func CompileTemplate(format string) (*Template, error) {
	t := &Template{raw: format}
	numbers := 0
	rest := format

	for rest != "" {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			t.segments = append(t.segments, segment{kind: segLiteral, text: rest})
			break
		}
		if open > 0 {
			t.segments = append(t.segments, segment{kind: segLiteral, text: rest[:open]})
		}
		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			return nil, fmt.Errorf("format %q: unterminated placeholder", format)
		}
		token := rest[open : open+end+1]
		rest = rest[open+end+1:]

		switch {
		case token == placeholderPrefix:
			t.segments = append(t.segments, segment{kind: segPrefix})
		case token == placeholderSeparator:
			t.segments = append(t.segments, segment{kind: segSeparator})
		case strings.HasPrefix(token, "{"+placeholderNumber):
			width, err := parseNumberWidth(token)
			if err != nil {
				return nil, fmt.Errorf("format %q: %w", format, err)
			}
			numbers++
			t.width = width
			t.segments = append(t.segments, segment{kind: segNumber, width: width})
		default:
			return nil, fmt.Errorf("format %q: unknown placeholder %s", format, token)
		}
	}

	if numbers != 1 {
		return nil, fmt.Errorf("format %q: exactly one {number} placeholder required, got %d", format, numbers)
	}
	return t, nil
}

// parseNumberWidth handles {number} and {number:N}.
func parseNumberWidth(token string) (int, error) {
	inner := strings.TrimSuffix(strings.TrimPrefix(token, "{"), "}")
	if inner == placeholderNumber {
		return DefaultPadWidth, nil
	}
	raw, ok := strings.CutPrefix(inner, placeholderNumber+":")
	if !ok {
		return 0, fmt.Errorf("unknown placeholder %s", token)
	}
	width, err := strconv.Atoi(raw)
	if err != nil || width < 1 || width > 18 {
		return 0, fmt.Errorf("invalid number width in %s", token)
	}
	return width, nil
}

// Width returns the configured minimum number width.
func (t *Template) Width() int {
	return t.width
}

// String returns the raw format.
func (t *Template) String() string {
	return t.raw
}

// Render substitutes prefix, separator and the zero-padded number.
// Numbers wider than the pad width are rendered in full.
func (t *Template) Render(prefix, separator string, n int64) string {
	var b strings.Builder
	for _, seg := range t.segments {
		switch seg.kind {
		case segLiteral:
			b.WriteString(seg.text)
		case segPrefix:
			b.WriteString(prefix)
		case segSeparator:
			b.WriteString(separator)
		case segNumber:
			fmt.Fprintf(&b, "%0*d", seg.width, n)
		}
	}
	return b.String()
}

// Matcher compiles the exact pattern produced by Render for the given prefix and separator.
func (t *Template) Matcher(prefix, separator string) *regexp.Regexp {
	var b strings.Builder
	b.WriteString("^")
	for _, seg := range t.segments {
		switch seg.kind {
		case segLiteral:
			b.WriteString(regexp.QuoteMeta(seg.text))
		case segPrefix:
			b.WriteString(regexp.QuoteMeta(prefix))
		case segSeparator:
			b.WriteString(regexp.QuoteMeta(separator))
		case segNumber:
			b.WriteString(`(\d+)`)
		}
	}
	b.WriteString("$")
	return regexp.MustCompile(b.String())
}

// Parse extracts the sequence value from a number rendered with this template.
func (t *Template) Parse(prefix, separator, s string) (int64, error) {
	return t.Parser(prefix, separator).Parse(s)
}

// Parser compiles the matcher once for parsing many numbers with the same metadata.
func (t *Template) Parser(prefix, separator string) *Parser {
	return &Parser{raw: t.raw, re: t.Matcher(prefix, separator)}
}

// Parser extracts sequence values from numbers rendered with one template.
// It is safe for concurrent use.
type Parser struct {
	raw string
	re  *regexp.Regexp
}

// NewParser compiles the record's template for repeated Parse calls.
func NewParser(r *Record) (*Parser, error) {
	t, err := CompileTemplate(r.Format)
	if err != nil {
		return nil, err
	}
	return t.Parser(r.Prefix, r.Separator), nil
}

// Parse returns the sequence value of s or ErrUnparseableNumber.
func (p *Parser) Parse(s string) (int64, error) {
	m := p.re.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, fmt.Errorf("%w: %q does not match %q", ErrUnparseableNumber, s, p.raw)
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrUnparseableNumber, s, err)
	}
	return n, nil
}

// Render renders n with the record's metadata.
func Render(r *Record, n int64) (string, error) {
	t, err := CompileTemplate(r.Format)
	if err != nil {
		return "", err
	}
	return t.Render(r.Prefix, r.Separator, n), nil
}

// Parse is the inverse of Render for the record's own template.
// Use NewParser when parsing more than one number.
func Parse(r *Record, s string) (int64, error) {
	p, err := NewParser(r)
	if err != nil {
		return 0, err
	}
	return p.Parse(s)
}
