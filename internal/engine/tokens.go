package engine

import (
	"errors"
	"strconv"
	"strings"
)

// Tokenizing of definition lines and filter code. Quoted segments use single
// or double quotes with backslash escaping and may appear in any of the three
// leading fields of a definition line as well as in option values.

var errUnterminatedString = errors.New("unterminated quoted string")

// parseQuoted reads a quoted string starting at in[*pos], which must be a
// quote character. It advances *pos past the closing quote and returns the
// unescaped content.
func parseQuoted(in string, pos *int) (string, error) {
	quote := in[*pos]
	var b strings.Builder
	i := *pos + 1
	for i < len(in) {
		c := in[i]
		switch c {
		case '\\':
			if i+1 >= len(in) {
				return "", errUnterminatedString
			}
			b.WriteByte(unescapeChar(in[i+1]))
			i += 2
		case quote:
			*pos = i + 1
			return b.String(), nil
		default:
			b.WriteByte(c)
			i++
		}
	}
	return "", errUnterminatedString
}

// unescapeChar maps a backslash escape to its character.
func unescapeChar(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 't':
		return '\t'
	case 'r':
		return '\r'
	default:
		return c
	}
}

// option is one trailing token of a definition line. A bare token carries
// value "1"; tokens of pure digits and @-shorthands are resolved by the
// definition parser, not here.
type option struct {
	name  string
	value string
	bare  bool
}

// parseAssignment reads the next `name[=value]` token starting at in[*pos].
// Returns ok=false once the line is exhausted.
func parseAssignment(in string, pos *int) (option, bool, error) {
	i := *pos
	i += countSpan(in, i, " \t")

	start := i
	i += countNotSpan(in, i, " \t=")
	name := in[start:i]
	if name == "" {
		return option{}, false, nil
	}

	i += countSpan(in, i, " \t")
	if i >= len(in) || in[i] != '=' {
		// no assignment operator, bare flag token
		*pos = i
		return option{name: name, value: "1", bare: true}, true, nil
	}

	i++
	i += countSpan(in, i, " \t")

	var value string
	if i < len(in) && (in[i] == '"' || in[i] == '\'') {
		v, err := parseQuoted(in, &i)
		if err != nil {
			return option{}, false, err
		}
		value = v
	} else {
		start = i
		i += countNotSpan(in, i, " \t")
		value = in[start:i]
	}

	*pos = i
	return option{name: name, value: value}, true, nil
}

// splitDefinitionLine splits one definition line into its up-to-three
// comma-separated leading fields (name, type, label) and the trailing
// options. Quoted segments are honored in all positions.
func splitDefinitionLine(line string) (fields [3]string, opts []option, err error) {
	line = strings.TrimSpace(line)

	var parts []string
	part := ""
	pos := 0

	for pos < len(line) && len(parts) < 3 {
		pos += countSpan(line, pos, " \t")
		if pos >= len(line) {
			break
		}
		switch line[pos] {
		case '"', '\'':
			seg, perr := parseQuoted(line, &pos)
			if perr != nil {
				return fields, nil, perr
			}
			if part != "" {
				part += " "
			}
			part += seg
		case ',':
			parts = append(parts, part)
			part = ""
			pos++
		default:
			end := pos + countNotSpan(line, pos, " \t,")
			if part != "" {
				part += " "
			}
			part += strings.TrimSpace(line[pos:end])
			pos = end
		}
	}
	if part != "" {
		parts = append(parts, part)
	}
	for i := 0; i < len(parts) && i < 3; i++ {
		fields[i] = parts[i]
	}

	for pos < len(line) {
		opt, ok, perr := parseAssignment(line, &pos)
		if perr != nil {
			return fields, nil, perr
		}
		if !ok {
			break
		}
		opts = append(opts, opt)
	}

	return fields, opts, nil
}

// countSpan returns the length of the prefix of in[from:] consisting only
// of characters in set.
func countSpan(in string, from int, set string) int {
	n := 0
	for from+n < len(in) && strings.IndexByte(set, in[from+n]) >= 0 {
		n++
	}
	return n
}

// countNotSpan returns the length of the prefix of in[from:] consisting
// only of characters not in set.
func countNotSpan(in string, from int, set string) int {
	n := 0
	for from+n < len(in) && strings.IndexByte(set, in[from+n]) < 0 {
		n++
	}
	return n
}

// isDigits reports whether s is a non-empty string of ASCII digits.
func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// atoiDefault parses s as int, returning def on failure.
func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return n
}
