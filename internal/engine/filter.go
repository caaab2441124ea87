package engine

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/wikitab/wikitab/internal/session"
)

// FilterComponent is one condition of the session-persisted filter state.
// Operators: like, nlike, lt, le, eq, ne, ge, gt, isset, isclear.
type FilterComponent = session.FilterComponent

// filterComplete reports whether all parts of the component are present.
// The first component carries no join mode; later ones must.
func filterComplete(f FilterComponent, first bool) bool {
	if f.Column == "" || f.Op == "" {
		return false
	}
	if !first && f.Mode != "AND" && f.Mode != "OR" {
		return false
	}
	return true
}

var filterHeadPattern = regexp.MustCompile(`(?is)^(\w+)\s+(\w+)(.*)$`)

// ParseFilterCode parses textual filter code of the form
//
//	col op arg & col op "quoted arg" | ...
//
// Parsing stops at the first malformed element, keeping what was read.
func ParseFilterCode(in string) []FilterComponent {
	in = strings.TrimSpace(in)
	var out []FilterComponent
	prevMode := byte(0)

	for in != "" {
		m := filterHeadPattern.FindStringSubmatch(in)
		if m == nil {
			break
		}

		tail := strings.TrimSpace(m[3])
		var arg string
		var pos int
		if tail != "" && (tail[0] == '"' || tail[0] == '\'') {
			parsed, err := parseQuoted(tail, &pos)
			if err != nil {
				break
			}
			arg = parsed
		} else {
			pos = countNotSpan(tail, 0, " \r\n\t\f&|")
			arg = strings.TrimSpace(tail[:pos])
		}

		comp := FilterComponent{Column: m[1], Op: strings.ToLower(m[2]), Arg: arg}
		switch prevMode {
		case 0:
		case '&':
			comp.Mode = "AND"
		case '|':
			comp.Mode = "OR"
		default:
			return out
		}
		out = append(out, comp)

		in = strings.TrimLeft(tail[pos:], " \r\n\t\f")
		if in == "" {
			break
		}
		prevMode = in[0]
		in = strings.TrimSpace(in[1:])
	}

	return out
}

// filterTemplates maps operators to clause fragments. %[1]s is the joiner
// (WHERE/AND/OR), %[2]s the column name.
var filterTemplates = map[string]string{
	"like":    " %[1]s ( %[2]s like ? )",
	"nlike":   " %[1]s ( %[2]s not like ? )",
	"lt":      " %[1]s ( %[2]s < ? )",
	"le":      " %[1]s ( %[2]s <= ? )",
	"eq":      " %[1]s ( %[2]s = ? )",
	"ne":      " %[1]s ( %[2]s <> ? )",
	"ge":      " %[1]s ( %[2]s >= ? )",
	"gt":      " %[1]s ( %[2]s > ? )",
	"isset":   " %[1]s ( ( %[2]s = ? ) AND %[2]s IS NOT NULL )",
	"isclear": " %[1]s ( ( %[2]s <> ? ) OR %[2]s IS NULL )",
}

// CompileFilter builds a parameterized WHERE clause from filter components.
// Components referencing unknown columns, using unknown operators or
// carrying an empty argument are skipped. Filters on bool columns are
// coerced to isset/isclear against the column's sentinel value.
func CompileFilter(components []FilterComponent, meta *TableMeta) (string, []any) {
	var clause string
	var args []any

	for _, f := range components {
		col := meta.Column(f.Column)
		if col == nil {
			continue
		}

		op := f.Op
		arg := strings.TrimSpace(f.Arg)

		if col.Format == FormatBool {
			switch op {
			case "like", "eq", "le", "ge", "isset":
				op = "isset"
			default:
				op = "isclear"
			}
			switch col.Options.BoolType {
			case BoolXMark:
				arg = "x"
			case BoolInt:
				arg = "1"
			default:
				arg = "y"
			}
		}

		if arg == "" {
			continue
		}
		tmpl, ok := filterTemplates[op]
		if !ok {
			continue
		}

		if op == "like" || op == "nlike" {
			if !strings.Contains(arg, "%") {
				arg = "%" + arg + "%"
			}
		}

		mode := "WHERE"
		if clause != "" {
			mode = f.Mode
		}
		clause += fmt.Sprintf(tmpl, mode, col.Name)
		args = append(args, arg)
	}

	return clause, args
}

// CompileSort builds an ORDER BY clause from a sort specification: column
// names separated by commas or spaces, each optionally prefixed ! for
// descending order. Unknown columns are dropped.
func CompileSort(sort string, meta *TableMeta) string {
	var parts []string
	for _, tok := range strings.FieldsFunc(sort, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	}) {
		desc := strings.HasPrefix(tok, "!")
		name := strings.TrimPrefix(tok, "!")
		if meta.Column(name) == nil {
			continue
		}
		if desc {
			parts = append(parts, name+" DESC")
		} else {
			parts = append(parts, name+" ASC")
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return " ORDER BY " + strings.Join(parts, ", ")
}

// ClampPaging keeps paging state in range: the page size has a floor of 10
// and skip stays within [0, count-num] regardless of requested raw values.
func ClampPaging(skip, num, count int) (int, int) {
	if num < 10 {
		num = 10
	}
	if skip > count-num {
		skip = count - num
	}
	if skip < 0 {
		skip = 0
	}
	return skip, num
}
