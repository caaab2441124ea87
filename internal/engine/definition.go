package engine

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// The definition parser turns the line-oriented mini-language of a table
// block into TableMeta. One column per line:
//
//	name, type [args], label, option=value ...
//
// Comments start with # or //. Parsing continues past bad lines so all
// errors of a block surface together; no metadata is installed if any line
// failed.

var identCleaner = regexp.MustCompile(`\W`)

// reservedTables are the engine-owned tables user definitions must not name.
var reservedTables = map[string]bool{
	lockTable: true,
	keysTable: true,
	logTable:  true,
}

// NormalizeTableName validates a table name, replacing invalid characters
// and rejecting collisions with engine tables.
func NormalizeTableName(name string) (string, error) {
	name = identCleaner.ReplaceAllString(strings.TrimSpace(name), "_")
	if name == "" {
		return "", errors.New("empty table name")
	}
	if reservedTables[name] {
		return "", ErrReservedTable
	}
	return name, nil
}

type definitionParser struct {
	dialect Dialect
	db      DBTX // live connection, used to populate related columns

	// customViews enables the related column type, which executes a
	// SELECT from the definition text against the live connection.
	customViews bool

	// aliasing enables columns backed by SQL expressions. When disabled,
	// aliased columns are dropped from the metadata entirely.
	aliasing bool

	// forceReadOnly marks every column read-only (custom view mode).
	forceReadOnly bool
}

// parse builds TableMeta from definition text. The returned error is a
// *DefinitionError collecting all bad lines, or a plain error for failures
// not tied to one line.
func (p *definitionParser) parse(ctx context.Context, code string) (*TableMeta, error) {
	meta := &TableMeta{byName: make(map[string]*ColumnDef)}
	var failed []LineError
	var visibles, primaries []string
	uniques := make(map[string][]string)
	var uniqueOrder []string

	for index, line := range strings.Split(code, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line[0] == '#' || strings.HasPrefix(line, "//") {
			continue
		}

		col, err := p.parseLine(ctx, line, meta, uniques, &uniqueOrder)
		if err != nil {
			failed = append(failed, LineError{Line: index + 1, Err: err})
			continue
		}
		if col == nil {
			// aliased column with aliasing disabled
			continue
		}

		if col.Options.Visible == VisibleExplicit {
			visibles = append(visibles, col.Name)
		}
		if col.Options.Primary {
			primaries = append(primaries, col.Name)
		}
		if col.Format == FormatACL {
			meta.ACLColumn = col.Name
		}

		meta.Columns = append(meta.Columns, col)
		meta.byName[col.Name] = col
	}

	if len(failed) > 0 {
		return nil, &DefinitionError{Lines: failed}
	}
	if len(meta.Columns) == 0 {
		return nil, errors.New("definition does not declare any column")
	}

	p.applyVisibility(meta, visibles)
	p.applyPrimaryKey(meta, primaries)
	p.applyUniques(meta, uniques, uniqueOrder)

	return meta, nil
}

// parseLine handles a single definition line.
func (p *definitionParser) parseLine(ctx context.Context, line string, meta *TableMeta, uniques map[string][]string, uniqueOrder *[]string) (*ColumnDef, error) {
	fields, rawOpts, err := splitDefinitionLine(line)
	if err != nil {
		return nil, err
	}

	name := identCleaner.ReplaceAllString(strings.TrimSpace(fields[0]), "_")
	if name == "" {
		return nil, errors.New("missing column name")
	}
	if meta.byName[name] != nil {
		return nil, fmt.Errorf("duplicate column %s", name)
	}

	opts, err := p.parseOptions(name, rawOpts, uniques, uniqueOrder)
	if err != nil {
		return nil, err
	}
	if p.forceReadOnly {
		opts.ReadOnly = true
	}

	col := &ColumnDef{
		Name:    name,
		Label:   strings.TrimSpace(fields[2]),
		Options: *opts,
	}
	if err := p.applyType(ctx, col, strings.TrimSpace(fields[1]), meta); err != nil {
		return nil, err
	}
	if col.Options.Aliasing != "" && !p.aliasing {
		return nil, nil
	}

	col.Definition = p.deriveSQL(col)
	return col, nil
}

// parseOptions folds the trailing option tokens into ColumnOptions.
// Option keys are case-insensitive; unrecognized bare tokens are treated as
// boolean-true flags; `@<digits>` is tab order shorthand; pure digits set
// the field length; `unique[<group>]` joins uniqueness groups.
func (p *definitionParser) parseOptions(colName string, rawOpts []option, uniques map[string][]string, uniqueOrder *[]string) (*ColumnOptions, error) {
	opts := &ColumnOptions{BoolType: BoolYesNo}

	for _, o := range rawOpts {
		name := strings.ToLower(o.name)
		switch name {
		case "required", "req":
			opts.Required = asBool(o.value)
		case "visible":
			if asBool(o.value) {
				opts.Visible = VisibleExplicit
			}
		case "primary":
			if asBool(o.value) {
				opts.Primary = true
				opts.Required = true
			}
		case "tabindex":
			if isDigits(strings.TrimSpace(o.value)) {
				opts.TabIndex = atoiDefault(o.value, 0)
			}
		case "booltype":
			switch strings.ToLower(o.value) {
			case "yesno":
				opts.BoolType = BoolYesNo
			case "xmark":
				opts.BoolType = BoolXMark
			case "int":
				opts.BoolType = BoolInt
			default:
				return nil, fmt.Errorf("invalid booltype %q", o.value)
			}
		case "readonly":
			opts.ReadOnly = asBool(o.value)
		case "aliasing":
			if strings.TrimSpace(o.value) == "" || o.bare {
				return nil, errors.New("aliasing requires an SQL expression")
			}
			opts.Aliasing = o.value
			// changing an aliased term cannot work, imply read-only
			opts.ReadOnly = true
		case "default":
			opts.Default = o.value
		case "nodefault":
			opts.NoDefault = asBool(o.value)
		case "accept":
			re, err := regexp.Compile(o.value)
			if err != nil {
				return nil, fmt.Errorf("invalid accept pattern: %w", err)
			}
			opts.Accept = re
		case "unixts":
			opts.UnixTS = asBool(o.value)
		case "onclick":
			opts.OnClick = o.value
		case "headerlabel":
			opts.HeaderLabel = o.value
		case "headerlink":
			opts.HeaderLink = o.value
		case "print":
			opts.Print = asBool(o.value)
		case "noprint":
			opts.NoPrint = asBool(o.value)
		default:
			switch {
			case strings.HasPrefix(name, "may"):
				if opts.ACL == nil {
					opts.ACL = make(map[string]string)
				}
				opts.ACL[name] = o.value
			case len(name) > 1 && name[0] == '@' && isDigits(name[1:]):
				opts.TabIndex = atoiDefault(name[1:], 0)
			case strings.HasPrefix(name, "unique"):
				group := strings.TrimSpace(name[len("unique"):])
				bracketed := strings.HasPrefix(group, "[") && strings.HasSuffix(group, "]")
				if bracketed {
					group = strings.TrimSpace(group[1 : len(group)-1])
				}
				if group == "" || bracketed || isDigits(group) {
					if _, seen := uniques[group]; !seen {
						*uniqueOrder = append(*uniqueOrder, group)
					}
					uniques[group] = append(uniques[group], colName)
				}
			case isDigits(name):
				opts.Length = atoiDefault(name, 0)
			default:
				if opts.Extra == nil {
					opts.Extra = make(map[string]string)
				}
				opts.Extra[name] = o.value
			}
		}
	}

	return opts, nil
}

// applyType resolves the type field into storage class and format. The type
// keyword may carry arguments (enum choices, related SELECT).
func (p *definitionParser) applyType(ctx context.Context, col *ColumnDef, rawType string, meta *TableMeta) error {
	keyword, args, _ := strings.Cut(rawType, " ")
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	args = strings.TrimSpace(args)

	switch keyword {
	case "int", "integer":
		col.Class, col.Format = "integer", FormatInteger
	case "image":
		col.Class, col.Format = "data", FormatImage
	case "blob", "binary", "file", "data":
		col.Class, col.Format = "data", FormatFile
	case "real", "float", "double":
		col.Class, col.Format = "real", FormatReal
	case "money", "monetary":
		col.Class, col.Format = "decimal", FormatMonetary
	case "numeric", "decimal":
		col.Class, col.Format = "decimal", FormatReal
	case "time":
		col.Class, col.Format = "time", FormatTime
	case "date", "datetime":
		col.Class = keyword
		if col.Options.UnixTS {
			col.Class = "integer"
		}
		if keyword == "date" {
			col.Format = FormatDate
		} else {
			col.Format = FormatDatetime
		}
	case "url", "link", "href":
		col.Class, col.Format = "text", FormatURL
	case "email", "mail":
		col.Class, col.Format = "text", FormatEmail
	case "phone":
		col.Class, col.Format = "text", FormatPhone
	case "fax":
		col.Class, col.Format = "text", FormatFax
	case "", "string", "text", "name", "char":
		col.Class, col.Format = "text", FormatText
	case "acl":
		if meta.ACLColumn != "" {
			return errors.New("table already declares an acl column")
		}
		col.Class, col.Format = "text", FormatACL
	case "check", "mark", "boolean", "bool":
		col.Format = FormatBool
		if col.Options.BoolType == BoolInt {
			col.Class = "integer"
		} else {
			col.Class = "bool"
			col.Options.Length = 1
		}
	case "enum":
		labels := splitEnumChoices(args)
		maxLen := 0
		for _, l := range labels {
			if len(l) > maxLen {
				maxLen = len(l)
			}
		}
		if maxLen == 0 {
			return errors.New("enum declares no choices")
		}
		if col.Options.Length == 0 {
			col.Options.Length = maxLen
		}
		col.Class, col.Format = "enum", FormatEnum
		col.Options.Enum = labels
	case "related":
		choices, err := p.readRelated(ctx, args)
		if err != nil {
			return err
		}
		col.Class, col.Format = "related", FormatRelated
		col.Options.Related = choices
	default:
		return fmt.Errorf("unknown column type %q", keyword)
	}

	return nil
}

// splitEnumChoices splits the enum argument list on slashes or semicolons.
func splitEnumChoices(args string) []string {
	parts := regexp.MustCompile(`[/;]+`).Split(args, -1)
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// readRelated executes the SELECT of a related column, expecting (id, label)
// pairs with purely numeric ids. Gated behind the customviews setting since
// it runs free-text SQL from the definition.
func (p *definitionParser) readRelated(ctx context.Context, query string) ([]RelatedChoice, error) {
	if !p.customViews {
		return nil, errors.New("related columns are disabled (customviews)")
	}
	if !selectPattern.MatchString(query) {
		return nil, errors.New("related requires a SELECT statement")
	}

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, storagef("related query", err)
	}
	defer rows.Close()

	var choices []RelatedChoice
	for rows.Next() {
		var id, label string
		if err := rows.Scan(&id, &label); err != nil {
			return nil, storagef("related scan", err)
		}
		if !isDigits(strings.TrimSpace(id)) {
			return nil, errors.New("related SELECT must yield numeric ids")
		}
		choices = append(choices, RelatedChoice{
			ID:    int64(atoiDefault(id, 0)),
			Label: strings.TrimSpace(label),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, storagef("related rows", err)
	}
	if len(choices) == 0 {
		return nil, errors.New("related SELECT yields no choices")
	}
	return choices, nil
}

var selectPattern = regexp.MustCompile(`(?i)^SELECT\s`)

// deriveSQL builds the DDL fragment of one column.
func (p *definitionParser) deriveSQL(col *ColumnDef) string {
	var sqlType string
	switch col.Class {
	case "data":
		if col.Options.Length > 0 {
			sqlType = "VARBINARY"
		} else {
			sqlType = p.dialect.TypeBlob()
		}
	case "text", "enum":
		if col.Options.Length > 0 {
			if col.Options.Length == 1 {
				sqlType = "CHAR"
			} else {
				sqlType = "VARCHAR"
			}
		} else {
			sqlType = "TEXT"
		}
	case "decimal":
		sqlType = p.dialect.TypeDecimal()
	case "bool":
		sqlType = "CHAR"
	case "integer":
		if col.Format == FormatBool {
			sqlType = p.dialect.TypeTinyInt()
		} else {
			sqlType = "INTEGER"
		}
	case "related":
		sqlType = "INTEGER"
	default:
		sqlType = strings.ToUpper(col.Class)
	}

	def := col.Name + " " + sqlType
	if col.Options.Length > 0 {
		switch col.Class {
		case "text", "enum", "integer", "related", "bool", "data":
			def += fmt.Sprintf("(%d)", col.Options.Length)
		}
	}
	if col.Options.Required {
		def += " NOT NULL"
	} else {
		def += " NULL"
	}
	return def
}

// applyVisibility makes every column default-visible when none was marked
// visible explicitly. The acl column is flagged VisibleDefault so listings
// can use it for row rules without displaying it. Runs before the primary
// key step on purpose: a synthesized id column stays hidden and only shows
// up when a declared id column carries an explicit visible mark.
func (p *definitionParser) applyVisibility(meta *TableMeta, visibles []string) {
	if len(visibles) > 0 {
		return
	}
	for _, col := range meta.Columns {
		if col.Options.Visible == Hidden {
			if col.Format == FormatACL {
				col.Options.Visible = VisibleDefault
			} else {
				col.Options.Visible = VisibleExplicit
			}
		}
	}
}

// applyPrimaryKey installs the primary key: the declared composite key, an
// existing column named id promoted in place, or a synthesized leading
// auto-numbering integer id column.
func (p *definitionParser) applyPrimaryKey(meta *TableMeta, primaries []string) {
	if len(primaries) > 0 {
		meta.Constraints = append(meta.Constraints, Constraint{
			Kind:       "primary",
			Columns:    primaries,
			Definition: "PRIMARY KEY ( " + strings.Join(primaries, ", ") + " )",
		})
		return
	}

	if id := meta.byName["id"]; id != nil {
		if !id.Options.Required {
			id.Definition += " NOT NULL"
		}
		id.Definition += " PRIMARY KEY"
		id.Options.Primary = true
		return
	}

	id := &ColumnDef{
		Name:       "id",
		Class:      "integer",
		Format:     FormatInteger,
		Label:      "#",
		Definition: "id INTEGER NOT NULL PRIMARY KEY",
		AutoID:     true,
	}
	meta.Columns = append([]*ColumnDef{id}, meta.Columns...)
	meta.byName["id"] = id
}

// applyUniques turns uniqueness groups into inline UNIQUE modifiers for
// single columns and composite constraints for multi-column groups.
func (p *definitionParser) applyUniques(meta *TableMeta, uniques map[string][]string, order []string) {
	sort.SliceStable(order, func(i, j int) bool { return order[i] < order[j] })
	for _, group := range order {
		cols := uniques[group]
		if len(cols) == 1 {
			if col := meta.byName[cols[0]]; col != nil {
				col.Definition += " UNIQUE"
			}
			continue
		}
		meta.Constraints = append(meta.Constraints, Constraint{
			Kind:       "unique",
			Columns:    cols,
			Definition: "UNIQUE ( " + strings.Join(cols, ", ") + " )",
		})
	}
}

// asBool parses human-readable boolean spellings. Unparseable non-empty
// input counts as true since a bare option token asserts the flag.
func asBool(in string) bool {
	in = strings.ToLower(strings.TrimSpace(in))
	switch in {
	case "", "n", "no", "f", "false", "off":
		return false
	case "y", "yes", "t", "true", "on":
		return true
	}
	if isDigits(strings.TrimPrefix(in, "-")) {
		return atoiDefault(in, 0) != 0
	}
	return true
}
