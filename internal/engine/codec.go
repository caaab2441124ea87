package engine

import (
	"fmt"
	"net"
	"net/mail"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// The codec converts per column between three shapes: raw user input,
// the internal typed Value and the stored database representation.
//
// toInternal validates; toStorage may additionally report "omit" for fields
// that must not be written back (read-only columns, untouched files).

type codec struct {
	yearPivot        int
	checkMailDomains bool
	now              func() time.Time
}

func newCodec(cfg Config) *codec {
	return &codec{
		yearPivot:        cfg.YearPivot,
		checkMailDomains: cfg.CheckMailDomains,
		now:              time.Now,
	}
}

var (
	integerPattern = regexp.MustCompile(`^[+-]?\d+$`)
	realPattern    = regexp.MustCompile(`^[+-]?\d+([.,]\d+)?$`)
	moneyPattern   = regexp.MustCompile(`[+-]?\d+([.,]\d)?`)
	phonePattern   = regexp.MustCompile(`^\+?(\d+(([-/]|/-)\d+)*)+$`)
	mimePattern    = regexp.MustCompile(`(?i)^[a-z0-9-]+/[+a-z0-9-]+$`)
)

// fail builds the ValidationError for one column.
func fail(col *ColumnDef, reason string) *ValidationError {
	return &ValidationError{Column: col.Name, Reason: reason}
}

// toInternal validates raw user input and converts it to the internal
// representation. admin gates writes to acl-formatted columns: without the
// capability the value is silently nulled.
func (c *codec) toInternal(raw string, col *ColumnDef, admin bool) (Value, *ValidationError) {
	switch col.Format {

	case FormatInteger:
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return NullValue(), nil
		}
		if !integerPattern.MatchString(raw) {
			return Value{}, fail(col, "invalid integer value")
		}
		n, _ := strconv.ParseInt(raw, 10, 64)
		return IntValue(n), nil

	case FormatReal:
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return NullValue(), nil
		}
		if !realPattern.MatchString(raw) {
			return Value{}, fail(col, "invalid number")
		}
		f, _ := strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64)
		return FloatValue(f), nil

	case FormatMonetary:
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return NullValue(), nil
		}
		if !moneyPattern.MatchString(raw) {
			return Value{}, fail(col, "invalid monetary value")
		}
		// besides the amount at most one marker (currency) may remain,
		// either in front or behind: 0,34 / "USD 34" / "5 EUR"
		parts := moneyPattern.Split(raw, -1)
		rest := len(parts)
		if rest > 1 && strings.TrimSpace(parts[1]) == "" {
			rest--
		}
		if strings.TrimSpace(parts[0]) == "" {
			rest--
		}
		if rest > 1 {
			return Value{}, fail(col, "monetary value has trailing garbage")
		}
		return StrValue(raw), nil

	case FormatDate:
		raw = strings.ToLower(strings.TrimSpace(raw))
		if raw == "" {
			return NullValue(), nil
		}
		if raw == "today" || raw == "now" {
			return IntValue(c.now().Unix()), nil
		}
		d, ok := parseUserDate(raw, c.yearPivot)
		if !ok {
			return Value{}, fail(col, "invalid date")
		}
		return IntValue(dateToTimestamp(d)), nil

	case FormatTime:
		raw = strings.ToLower(strings.TrimSpace(raw))
		if raw == "" {
			return NullValue(), nil
		}
		if raw == "now" {
			return StrValue(c.now().Format("15:04:05")), nil
		}
		t, ok := parseUserTime(raw)
		if !ok {
			return Value{}, fail(col, "invalid time")
		}
		return StrValue(t.formatClock()), nil

	case FormatDatetime:
		raw = strings.ToLower(strings.TrimSpace(raw))
		if raw == "" {
			return NullValue(), nil
		}
		if raw == "now" {
			return IntValue(c.now().Unix()), nil
		}
		parts := regexp.MustCompile(`[\s,;]+`).Split(raw, -1)
		if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
			return Value{}, fail(col, "invalid date/time")
		}
		if len(parts) > 2 && strings.TrimSpace(parts[2]) != "" {
			return Value{}, fail(col, "date/time has trailing garbage")
		}
		var d dateParts
		if parts[0] == "today" {
			n := c.now()
			d = dateParts{year: n.Year(), month: int(n.Month()), day: n.Day()}
		} else {
			var ok bool
			if d, ok = parseUserDate(parts[0], c.yearPivot); !ok {
				return Value{}, fail(col, "invalid date")
			}
		}
		t, ok := parseUserTime(parts[1])
		if !ok {
			return Value{}, fail(col, "invalid time")
		}
		return IntValue(datetimeToTimestamp(d, t)), nil

	case FormatBool:
		return BoolValue(asBool(raw)), nil

	case FormatEnum, FormatRelated:
		return c.enumToInternal(raw, col)

	case FormatPhone, FormatFax:
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return NullValue(), nil
		}
		flat := spaceCleaner.ReplaceAllString(raw, "")
		flat = regexp.MustCompile(`\(([^)]+)\)`).ReplaceAllString(flat, "$1")
		if !phonePattern.MatchString(flat) {
			return Value{}, fail(col, "invalid phone/fax number")
		}
		return StrValue(raw), nil

	case FormatURL:
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return NullValue(), nil
		}
		u, err := url.Parse(raw)
		if err != nil {
			return Value{}, fail(col, "invalid URL")
		}
		if u.Scheme == "" {
			return Value{}, fail(col, "URL must be absolute")
		}
		return StrValue(raw), nil

	case FormatEmail:
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return NullValue(), nil
		}
		if _, err := mail.ParseAddress(raw); err != nil {
			return Value{}, fail(col, "invalid mail address")
		}
		if c.checkMailDomains {
			if err := checkMailDomain(raw); err != nil {
				return Value{}, fail(col, "unknown mail domain")
			}
		}
		return StrValue(raw), nil

	case FormatACL:
		if !admin {
			return NullValue(), nil
		}
		rules, err := parseACLRules(strings.TrimSpace(raw))
		if err != nil {
			return Value{}, fail(col, err.Error())
		}
		return StrValue(joinACLRules(rules)), nil

	case FormatFile, FormatImage:
		// file input arrives through the upload path, a bare text value
		// can only mean "no file"
		if strings.TrimSpace(raw) == "" {
			return NullValue(), nil
		}
		return NullValue(), nil

	default: // FormatText
		if strings.TrimSpace(raw) == "" {
			return NullValue(), nil
		}
		return StrValue(raw), nil
	}
}

// enumToInternal resolves enum/related selections. Enum accepts the
// case-sensitive label or a 1-based index; related accepts the label or the
// numeric foreign id.
func (c *codec) enumToInternal(raw string, col *ColumnDef) (Value, *ValidationError) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return NullValue(), nil
	}

	if !isDigits(raw) {
		// label match first
		if col.Format == FormatRelated {
			for _, choice := range col.Options.Related {
				if choice.Label == raw {
					return IntValue(choice.ID), nil
				}
			}
		} else {
			for i, label := range col.Options.Enum {
				if label == raw {
					return IntValue(int64(i)), nil
				}
			}
		}
		return Value{}, fail(col, "no such choice")
	}

	n, _ := strconv.ParseInt(raw, 10, 64)
	if col.Format == FormatRelated {
		for _, choice := range col.Options.Related {
			if choice.ID == n {
				return IntValue(n), nil
			}
		}
		return Value{}, fail(col, "no such choice")
	}
	if n < 1 || n > int64(len(col.Options.Enum)) {
		return Value{}, fail(col, "no such choice")
	}
	return IntValue(n - 1), nil
}

// toStorage converts an internal value to the stored representation.
// omit=true means the column must not appear in the written record at all.
func (c *codec) toStorage(v Value, col *ColumnDef) (stored any, omit bool) {
	if col.Options.ReadOnly {
		return nil, true
	}
	if v.Null && !col.Options.Required && col.Format != FormatBool {
		return nil, false
	}

	switch col.Format {

	case FormatFile, FormatImage:
		if v.Untouched {
			return nil, true
		}
		if v.Null || v.File == nil {
			return "", false
		}
		f := v.File
		return f.MIME + "|" + f.Name + "|" + string(f.Data), false

	case FormatDate:
		if v.Null || v.Int == 0 {
			if col.Options.UnixTS {
				return int64(0), false
			}
			if col.Options.Required {
				return "0000-00-00", false
			}
			return nil, false
		}
		if col.Options.UnixTS {
			return v.Int, false
		}
		return formatDBDate(v.Int), false

	case FormatTime:
		if t, ok := parseUserTime(v.Str); ok {
			return t.formatClock(), false
		}
		return "", false

	case FormatDatetime:
		if v.Null || v.Int == 0 {
			if col.Options.UnixTS {
				return int64(0), false
			}
			if col.Options.Required {
				return "0000-00-00T00:00:00", false
			}
			return nil, false
		}
		if col.Options.UnixTS {
			return v.Int, false
		}
		return formatDBDateTime(v.Int), false

	case FormatBool:
		switch col.Options.BoolType {
		case BoolXMark:
			if v.Bool {
				return "x", false
			}
			return " ", false
		case BoolInt:
			if v.Bool {
				return int64(1), false
			}
			return int64(0), false
		default:
			if v.Bool {
				return "y", false
			}
			return "n", false
		}

	case FormatEnum:
		if label, ok := col.Options.EnumLabel(FormatEnum, v.Int); ok {
			return label, false
		}
		return "", false

	case FormatMonetary:
		if v.Null {
			return "0.00", false
		}
		return v.Str, false

	case FormatReal:
		if v.Null {
			return "0.00", false
		}
		return v.Float, false

	case FormatRelated, FormatInteger:
		return v.Int, false

	default:
		// acl, url, email, phone, fax, text
		if v.Null {
			return "", false
		}
		return v.Str, false
	}
}

// fromStorage converts a scanned database value to the internal shape.
func (c *codec) fromStorage(raw any, col *ColumnDef) Value {
	if raw == nil {
		if col.Format == FormatBool {
			return BoolValue(false)
		}
		return NullValue()
	}

	switch col.Format {

	case FormatFile, FormatImage:
		return fileFromStorage(scanString(raw))

	case FormatDate:
		if col.Options.UnixTS {
			return IntValue(scanInt(raw))
		}
		s := strings.TrimSpace(scanString(raw))
		if s == "" || s == "0000-00-00" {
			return IntValue(0)
		}
		return IntValue(parseDBDateTime(s, true))

	case FormatTime:
		return StrValue(scanString(raw))

	case FormatDatetime:
		if col.Options.UnixTS {
			return IntValue(scanInt(raw))
		}
		s := scanString(raw)
		if len(s) > 19 {
			s = s[:19]
		}
		s = strings.TrimSpace(s)
		if s == "" || s == "0000-00-00T00:00:00" || s == "0000-00-00 00:00:00" {
			return IntValue(0)
		}
		return IntValue(parseDBDateTime(s, false))

	case FormatBool:
		s := strings.TrimSpace(scanString(raw))
		switch col.Options.BoolType {
		case BoolInt:
			return BoolValue(scanInt(raw) != 0)
		case BoolXMark:
			return BoolValue(s != "" && (s[0] == 'x' || s[0] == 'X'))
		default:
			return BoolValue(s != "" && (s[0] == 'y' || s[0] == 'Y'))
		}

	case FormatEnum:
		s := strings.TrimSpace(scanString(raw))
		for i, label := range col.Options.Enum {
			if label == s {
				return IntValue(int64(i))
			}
		}
		return NullValue()

	case FormatRelated, FormatInteger:
		return IntValue(scanInt(raw))

	case FormatReal:
		return FloatValue(scanFloat(raw))

	default:
		return StrValue(scanString(raw))
	}
}

// fileFromStorage parses the pipe-joined mime|name|bytes triple. Values not
// matching the serialization are externally provided files and must stay
// untouched.
func fileFromStorage(s string) Value {
	if s == "" {
		return NullValue()
	}
	if s == "||" {
		return NullValue()
	}
	a := strings.IndexByte(s, '|')
	if a <= 0 {
		return Value{Untouched: true}
	}
	b := strings.IndexByte(s[a+1:], '|')
	if b < 0 {
		return Value{Untouched: true}
	}
	b += a + 1

	f := &FileValue{MIME: s[:a], Name: s[a+1 : b], Data: []byte(s[b+1:])}
	if !mimePattern.MatchString(f.MIME) || strings.TrimSpace(f.Name) == "" {
		return Value{Untouched: true}
	}
	return Value{File: f}
}

// checkMailDomain resolves the domain of an address via MX, falling back to
// a host lookup.
func checkMailDomain(address string) error {
	_, domain, ok := strings.Cut(address, "@")
	if !ok {
		return fmt.Errorf("no domain in %q", address)
	}
	if mx, err := net.LookupMX(domain); err == nil && len(mx) > 0 {
		return nil
	}
	if addrs, err := net.LookupHost(domain); err == nil && len(addrs) > 0 {
		return nil
	}
	return fmt.Errorf("domain %q does not resolve", domain)
}

// scanString coerces a scanned driver value to string.
func scanString(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		if v {
			return "1"
		}
		return "0"
	case time.Time:
		return v.Format("2006-01-02T15:04:05")
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// scanInt coerces a scanned driver value to int64.
func scanInt(raw any) int64 {
	switch v := raw.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case []byte:
		n, _ := strconv.ParseInt(strings.TrimSpace(string(v)), 10, 64)
		return n
	case string:
		n, _ := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return n
	case bool:
		if v {
			return 1
		}
		return 0
	default:
		return 0
	}
}

// scanFloat coerces a scanned driver value to float64.
func scanFloat(raw any) float64 {
	switch v := raw.(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case []byte:
		f, _ := strconv.ParseFloat(strings.TrimSpace(string(v)), 64)
		return f
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f
	default:
		return 0
	}
}
