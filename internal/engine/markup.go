package engine

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Placeholder markup of the form %{keyword} is expanded inside option
// values (defaults, filter arguments, header links). Known keywords:
//
//	wiki.user    acting user name
//	wiki.groups  comma-joined group list
//	wiki.page    hosting page ID
//	date.<fmt>   current time rendered through fmt (see dateTokens)
//
// Anything else is looked up in vars, empty when absent.
var markupPattern = regexp.MustCompile(`%{([^}]+)}`)

func (e *Engine) replaceMarkup(in, page string, ident *Identity, vars map[string]string) string {
	if !strings.Contains(in, "%{") {
		return in
	}
	return markupPattern.ReplaceAllStringFunc(in, func(m string) string {
		keyword := m[2 : len(m)-1]
		switch strings.ToLower(keyword) {
		case "wiki.user":
			return ident.Name
		case "wiki.groups":
			return strings.Join(ident.Groups, ",")
		case "wiki.page":
			return page
		}

		group, arg, _ := strings.Cut(keyword, ".")
		if strings.EqualFold(strings.TrimSpace(group), "date") {
			return formatDateTokens(strings.TrimSpace(arg), e.now())
		}
		if v, ok := vars[strings.ToLower(keyword)]; ok {
			return v
		}
		return ""
	})
}

// dateTokens maps the legacy single-letter date format characters to their
// rendered value. Unknown characters pass through verbatim.
func formatDateTokens(format string, now time.Time) string {
	var b strings.Builder
	for _, r := range format {
		switch r {
		case 'Y':
			b.WriteString(now.Format("2006"))
		case 'y':
			b.WriteString(now.Format("06"))
		case 'm':
			b.WriteString(now.Format("01"))
		case 'n':
			b.WriteString(now.Format("1"))
		case 'd':
			b.WriteString(now.Format("02"))
		case 'j':
			b.WriteString(now.Format("2"))
		case 'H':
			b.WriteString(now.Format("15"))
		case 'i':
			b.WriteString(now.Format("04"))
		case 's':
			b.WriteString(now.Format("05"))
		case 'U':
			b.WriteString(strconv.FormatInt(now.Unix(), 10))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
