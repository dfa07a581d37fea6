package dict

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

const fileBanner = `/*---------------------------------------------------------------------------*\
|                         Caelus input file                                   |
|   Generated by the Caelus case-management toolkit                           |
|   web: http://www.caelus-cml.com                                            |
\*---------------------------------------------------------------------------*/
`

const fileFooter = "\n// ************************************************************************* //\n"

const headerSeparator = "// * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * * //\n"

type printer struct {
	w      io.Writer
	indent int
	err    error
}

func newPrinter(w io.Writer) *printer {
	return &printer{w: w}
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func (p *printer) pad() string {
	return strings.Repeat("    ", p.indent)
}

// printDict writes the entries of d at the current indentation level.
func (p *printer) printDict(d *Dict) {
	width := 0
	for _, e := range d.Entries() {
		if _, ok := e.Value.(*Dict); ok {
			continue
		}
		if len(e.Key) > width {
			width = len(e.Key)
		}
	}
	for _, e := range d.Entries() {
		switch v := e.Value.(type) {
		case *Dict:
			p.printf("%s%s\n%s{\n", p.pad(), e.Key, p.pad())
			p.indent++
			p.printDict(v)
			p.indent--
			p.printf("%s}\n", p.pad())
		default:
			if isDirective(e.Key) {
				p.printf("%s%s %s\n", p.pad(), e.Key, formatValue(v))
				continue
			}
			val := formatValue(v)
			if val == "" {
				p.printf("%s%s;\n", p.pad(), e.Key)
				continue
			}
			p.printf("%s%-*s %s;\n", p.pad(), width, e.Key, val)
		}
	}
}

// Write emits a complete input file: banner, optional FoamFile header,
// body and footer.
func Write(w io.Writer, header, body *Dict) error {
	p := newPrinter(w)
	p.printf("%s", fileBanner)
	if header != nil {
		p.printf("FoamFile\n{\n")
		p.indent++
		p.printDict(header)
		p.indent--
		p.printf("}\n")
	}
	p.printf("%s\n", headerSeparator)
	p.printDict(body)
	p.printf("%s", fileFooter)
	return p.err
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case Literal:
		return `"` + string(t) + `"`
	case Macro:
		return "$" + string(t)
	case Code:
		return "#{ " + string(t) + " #}"
	case bool:
		if t {
			return "true"
		}
		return "false"
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return formatFloat(t)
	case List:
		return "( " + joinValues(t) + " )"
	case Dimensions:
		return "[" + joinValues(t) + "]"
	case Tokens:
		return joinValues(t)
	case *Dict:
		var sb strings.Builder
		sb.WriteString("{ ")
		for _, e := range t.Entries() {
			sb.WriteString(e.Key)
			sb.WriteString(" ")
			sb.WriteString(formatValue(e.Value))
			sb.WriteString("; ")
		}
		sb.WriteString("}")
		return sb.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}

// formatFloat keeps the lexical class of the value stable: a float always
// carries a decimal point or exponent so it re-parses as a float.
func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") && !strings.Contains(s, "Inf") && !strings.Contains(s, "NaN") {
		s += ".0"
	}
	return s
}

func joinValues(items []any) string {
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = formatValue(item)
	}
	return strings.Join(parts, " ")
}
