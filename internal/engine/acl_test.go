package engine

import "testing"

func authz(name string, groups ...string) Authorizer {
	return Authorizer{Identity: Identity{Name: name, Groups: groups, Authenticated: name != ""}}
}

func TestAuthorized(t *testing.T) {
	tests := []struct {
		name string
		auth Authorizer
		rule string
		want bool
	}{
		{"empty rule denies", authz("alice"), "", false},
		{"blank rule denies", authz("alice"), "   ", false},
		{"all wildcard", authz("alice"), "@ALL", true},
		{"all wildcard anonymous", authz(""), "@ALL", true},
		{"none wildcard", authz("alice"), "@NONE", false},
		{"username match", authz("alice"), "alice", true},
		{"username mismatch", authz("alice"), "bob", false},
		{"group match", authz("alice", "staff"), "@staff", true},
		{"group mismatch", authz("alice", "staff"), "@admins", false},
		{"negation blocks named user", authz("bob"), "!bob,alice", false},
		{"negation spares others", authz("alice"), "!bob,alice", true},
		// @ALL short-circuits before the cleared grant flag is consulted
		{"negation then all still grants", authz("bob"), "!bob,@ALL", true},
		{"all before negation grants", authz("bob"), "@ALL,!bob", true},
		{"negated group", authz("carol", "guests"), "!@guests,@ALL", true},
		{"anonymous skips named subjects", authz(""), "bob,@staff", false},
		{"none beats later subjects", authz("alice"), "@NONE,alice", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.auth.Authorized(tt.rule); got != tt.want {
				t.Errorf("Authorized(%q) = %v, want %v", tt.rule, got, tt.want)
			}
		})
	}

	t.Run("admin passes everything", func(t *testing.T) {
		a := Authorizer{Identity: Identity{Name: "root", Admin: true, Authenticated: true}}
		for _, rule := range []string{"", "@NONE", "!root,@NONE"} {
			if !a.Authorized(rule) {
				t.Errorf("admin denied by %q", rule)
			}
		}
	})
}

func TestAuthorizedMulti(t *testing.T) {
	alice := authz("alice")

	t.Run("row rule wins over table rule", func(t *testing.T) {
		row := map[string]string{"mayview": "@NONE"}
		table := map[string]string{"mayview": "@ALL"}
		if alice.AuthorizedMulti(row, table, "mayview", "", true) {
			t.Error("row-level @NONE ignored")
		}
	})

	t.Run("table rule used when row silent", func(t *testing.T) {
		table := map[string]string{"mayedit": "alice"}
		if !alice.AuthorizedMulti(nil, table, "mayedit", "", false) {
			t.Error("table rule not applied")
		}
	})

	t.Run("fallback capability", func(t *testing.T) {
		table := map[string]string{"mayaccess": "alice"}
		if !alice.AuthorizedMulti(nil, table, "maydelete", "mayaccess", false) {
			t.Error("fallback rule not applied")
		}
	})

	t.Run("default grant when unmanaged", func(t *testing.T) {
		if !alice.AuthorizedMulti(nil, nil, "mayview", "", true) {
			t.Error("default grant not honored")
		}
		if alice.AuthorizedMulti(nil, nil, "mayview", "", false) {
			t.Error("default deny not honored")
		}
	})

	t.Run("admin overrides default deny", func(t *testing.T) {
		a := Authorizer{Identity: Identity{Name: "root", Admin: true, Authenticated: true}}
		if !a.AuthorizedMulti(nil, nil, "maydelete", "", false) {
			t.Error("admin denied")
		}
	})
}

func TestParseACLRules(t *testing.T) {
	t.Run("normalizes spacing and case", func(t *testing.T) {
		rules, err := parseACLRules("MayView = @staff , !bob ; mayedit=alice")
		if err != nil {
			t.Fatal(err)
		}
		if rules["mayview"] != "@staff,!bob" {
			t.Errorf("mayview = %q", rules["mayview"])
		}
		if rules["mayedit"] != "alice" {
			t.Errorf("mayedit = %q", rules["mayedit"])
		}
	})

	t.Run("empty input", func(t *testing.T) {
		rules, err := parseACLRules("  ")
		if err != nil || len(rules) != 0 {
			t.Errorf("rules = %v, err = %v", rules, err)
		}
	})

	t.Run("malformed rule", func(t *testing.T) {
		if _, err := parseACLRules("view for everybody"); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("roundtrip stable order", func(t *testing.T) {
		out := joinACLRules(map[string]string{"mayview": "@ALL", "maydelete": "@NONE"})
		if out != "maydelete=@NONE;mayview=@ALL" {
			t.Errorf("joined = %q", out)
		}
	})
}
