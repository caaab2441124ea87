package engine

import (
	"reflect"
	"testing"
)

func TestParseFilterCode(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []FilterComponent
	}{
		{
			name: "single condition",
			in:   "age gt 18",
			want: []FilterComponent{{Column: "age", Op: "gt", Arg: "18"}},
		},
		{
			name: "quoted argument",
			in:   `name like "Smith, J"`,
			want: []FilterComponent{{Column: "name", Op: "like", Arg: "Smith, J"}},
		},
		{
			name: "and joined",
			in:   "age gt 18 & name like A",
			want: []FilterComponent{
				{Column: "age", Op: "gt", Arg: "18"},
				{Column: "name", Op: "like", Arg: "A", Mode: "AND"},
			},
		},
		{
			name: "or joined",
			in:   "a eq 1 | b eq 2",
			want: []FilterComponent{
				{Column: "a", Op: "eq", Arg: "1"},
				{Column: "b", Op: "eq", Arg: "2", Mode: "OR"},
			},
		},
		{
			name: "operator lowercased",
			in:   "age GT 18",
			want: []FilterComponent{{Column: "age", Op: "gt", Arg: "18"}},
		},
		{
			name: "stops at malformed tail",
			in:   "age gt 18 & !!",
			want: []FilterComponent{{Column: "age", Op: "gt", Arg: "18"}},
		},
		{
			name: "empty",
			in:   "   ",
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseFilterCode(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestCompileFilter(t *testing.T) {
	meta := parseDef(t, "name, text\nage, integer\nactive, bool")

	t.Run("two conditions", func(t *testing.T) {
		clause, args := CompileFilter([]FilterComponent{
			{Column: "age", Op: "gt", Arg: "18"},
			{Column: "name", Op: "like", Arg: "A", Mode: "AND"},
		}, meta)
		if clause != " WHERE ( age > ? ) AND ( name like ? )" {
			t.Errorf("clause = %q", clause)
		}
		if !reflect.DeepEqual(args, []any{"18", "%A%"}) {
			t.Errorf("args = %v", args)
		}
	})

	t.Run("like keeps caller wildcards", func(t *testing.T) {
		_, args := CompileFilter([]FilterComponent{
			{Column: "name", Op: "like", Arg: "A%"},
		}, meta)
		if !reflect.DeepEqual(args, []any{"A%"}) {
			t.Errorf("args = %v", args)
		}
	})

	t.Run("unknown column skipped", func(t *testing.T) {
		clause, args := CompileFilter([]FilterComponent{
			{Column: "ghost", Op: "eq", Arg: "1"},
			{Column: "age", Op: "eq", Arg: "3", Mode: "AND"},
		}, meta)
		if clause != " WHERE ( age = ? )" {
			t.Errorf("clause = %q", clause)
		}
		if len(args) != 1 {
			t.Errorf("args = %v", args)
		}
	})

	t.Run("empty argument skipped", func(t *testing.T) {
		clause, _ := CompileFilter([]FilterComponent{
			{Column: "name", Op: "eq", Arg: "  "},
		}, meta)
		if clause != "" {
			t.Errorf("clause = %q", clause)
		}
	})

	t.Run("unknown operator skipped", func(t *testing.T) {
		clause, _ := CompileFilter([]FilterComponent{
			{Column: "age", Op: "between", Arg: "1"},
		}, meta)
		if clause != "" {
			t.Errorf("clause = %q", clause)
		}
	})

	t.Run("bool coerced to sentinel check", func(t *testing.T) {
		clause, args := CompileFilter([]FilterComponent{
			{Column: "active", Op: "eq", Arg: "whatever"},
		}, meta)
		if clause != " WHERE ( ( active = ? ) AND active IS NOT NULL )" {
			t.Errorf("clause = %q", clause)
		}
		if !reflect.DeepEqual(args, []any{"y"}) {
			t.Errorf("args = %v", args)
		}
	})

	t.Run("bool negative operator", func(t *testing.T) {
		clause, args := CompileFilter([]FilterComponent{
			{Column: "active", Op: "ne", Arg: "x"},
		}, meta)
		if clause != " WHERE ( ( active <> ? ) OR active IS NULL )" {
			t.Errorf("clause = %q", clause)
		}
		if !reflect.DeepEqual(args, []any{"y"}) {
			t.Errorf("args = %v", args)
		}
	})
}

func TestCompileSort(t *testing.T) {
	meta := parseDef(t, "name, text\nage, integer")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"single asc", "name", " ORDER BY name ASC"},
		{"descending", "!name", " ORDER BY name DESC"},
		{"mixed list", "!name,age", " ORDER BY name DESC, age ASC"},
		{"space separated", "name age", " ORDER BY name ASC, age ASC"},
		{"unknown dropped", "ghost,age", " ORDER BY age ASC"},
		{"all unknown", "ghost", ""},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CompileSort(tt.in, meta); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClampPaging(t *testing.T) {
	tests := []struct {
		name              string
		skip, num, count  int
		wantSkip, wantNum int
	}{
		{"in range", 20, 10, 100, 20, 10},
		{"floor on page size", 0, 3, 100, 0, 10},
		{"skip past end", 95, 10, 100, 90, 10},
		{"negative skip", -5, 10, 100, 0, 10},
		{"fewer rows than page", 10, 10, 5, 0, 10},
		{"empty table", 0, 10, 0, 0, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			skip, num := ClampPaging(tt.skip, tt.num, tt.count)
			if skip != tt.wantSkip || num != tt.wantNum {
				t.Errorf("got %d,%d want %d,%d", skip, num, tt.wantSkip, tt.wantNum)
			}
		})
	}
}
