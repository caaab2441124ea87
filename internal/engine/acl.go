package engine

import (
	"errors"
	"regexp"
	"sort"
	"strings"
)

// Access rules are comma-separated subject lists. A subject is a username,
// a group with leading @, the wildcards @ALL / @NONE, and any of them may be
// negated with a leading !. Rule sets group rules per capability:
//
//	mayview=@user,!bob; mayedit=@staff
//
// Administrators pass every check unconditionally.

// Authorizer evaluates access rules for one identity.
type Authorizer struct {
	Identity Identity
}

// Authorized evaluates a single rule. The scan keeps a granted flag that
// starts true: a matching positive subject returns true immediately while
// granted holds, a matching negated subject clears granted for the rest of
// the scan. A negation matched before any positive subject therefore only
// has effect if granted was still true entering that step; this asymmetry
// is long-standing observable behavior and is kept as is.
func (a Authorizer) Authorized(rule string) bool {
	if a.Identity.Admin {
		return true
	}
	if strings.TrimSpace(rule) == "" {
		return false
	}

	granted := true

	for _, subject := range strings.Split(rule, ",") {
		subject = strings.TrimSpace(subject)
		if subject == "" {
			continue
		}

		if strings.EqualFold(subject, "@ALL") {
			return true
		}
		if strings.EqualFold(subject, "@NONE") {
			return false
		}

		// named subjects never match anonymous requests
		if !a.Identity.Authenticated {
			continue
		}

		positive := true
		if subject[0] == '!' {
			subject = subject[1:]
			positive = false
		}

		var match bool
		if strings.HasPrefix(subject, "@") {
			match = a.Identity.InGroup(subject[1:])
		} else {
			match = subject == a.Identity.Name
		}
		if !match {
			continue
		}

		if positive && granted {
			return true
		}
		if !positive {
			granted = false
		}
	}

	return false
}

// AuthorizedMulti resolves a capability against a row-level rule set first
// and the table-level set second, with an optional fallback capability in
// each. When neither set manages the capability, defaultGrant decides.
func (a Authorizer) AuthorizedMulti(rowACL, tableACL map[string]string, capability, fallback string, defaultGrant bool) bool {
	if rule := pickRule(rowACL, capability, fallback); rule != "" {
		return a.Authorized(rule)
	}
	if rule := pickRule(tableACL, capability, fallback); rule != "" {
		return a.Authorized(rule)
	}
	return defaultGrant || a.Identity.Admin
}

func pickRule(rules map[string]string, capability, fallback string) string {
	if rules == nil {
		return ""
	}
	if rule := rules[capability]; rule != "" {
		return rule
	}
	if fallback != "" {
		return rules[fallback]
	}
	return ""
}

var (
	aclRulePattern    = regexp.MustCompile(`(?i)^(may\S+)\s*=\s*(\S.*)$`)
	aclSubjectPattern = regexp.MustCompile(`^(!?)\s*(\S+)$`)
)

// parseACLRules parses a stored row ACL value into normalized per-capability
// rules.
func parseACLRules(in string) (map[string]string, error) {
	out := make(map[string]string)

	for _, rule := range regexp.MustCompile(`\s*;\s*`).Split(strings.TrimSpace(in), -1) {
		if strings.TrimSpace(rule) == "" {
			continue
		}
		m := aclRulePattern.FindStringSubmatch(rule)
		if m == nil {
			return nil, errors.New("malformed access rule")
		}

		var subjects []string
		for _, subject := range regexp.MustCompile(`\s*,\s*`).Split(strings.TrimSpace(m[2]), -1) {
			s := aclSubjectPattern.FindStringSubmatch(subject)
			if s == nil {
				return nil, errors.New("malformed access rule subject")
			}
			subjects = append(subjects, s[1]+s[2])
		}
		if len(subjects) > 0 {
			out[strings.ToLower(m[1])] = strings.Join(subjects, ",")
		}
	}

	return out, nil
}

// joinACLRules renders normalized rules back to the stored representation.
// Capabilities are emitted in stable order.
func joinACLRules(rules map[string]string) string {
	if len(rules) == 0 {
		return ""
	}
	keys := make([]string, 0, len(rules))
	for k := range rules {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + rules[k]
	}
	return strings.Join(parts, ";")
}
