// Package engine implements a declarative CRUD interface over SQL tables:
// a line-oriented column definition language is parsed into table metadata,
// which drives record listing, filtering, a single-record editor, per-column
// and per-row access rules and transactional persistence.
//
// The engine is host-agnostic. The embedding runtime owns the request
// lifecycle, session storage and page rendering; the engine receives an
// explicit Request carrying page identity, user identity and form input,
// and returns HTML components for the host to place.
package engine

import (
	"context"
	"database/sql"
	"regexp"
)

// DBTX is the interface for database operations.
// Satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Format is the display/validation sub-type of a column, orthogonal to the
// storage class. It selects codec, renderer and validation behavior.
type Format int

const (
	FormatText Format = iota
	FormatInteger
	FormatReal
	FormatMonetary
	FormatDate
	FormatDatetime
	FormatTime
	FormatBool
	FormatEnum
	FormatRelated
	FormatURL
	FormatEmail
	FormatPhone
	FormatFax
	FormatFile
	FormatImage
	FormatACL
)

// String returns the format keyword as it appears in CSS classes and logs.
func (f Format) String() string {
	switch f {
	case FormatText:
		return "text"
	case FormatInteger:
		return "integer"
	case FormatReal:
		return "real"
	case FormatMonetary:
		return "monetary"
	case FormatDate:
		return "date"
	case FormatDatetime:
		return "datetime"
	case FormatTime:
		return "time"
	case FormatBool:
		return "bool"
	case FormatEnum:
		return "enum"
	case FormatRelated:
		return "related"
	case FormatURL:
		return "url"
	case FormatEmail:
		return "email"
	case FormatPhone:
		return "phone"
	case FormatFax:
		return "fax"
	case FormatFile:
		return "file"
	case FormatImage:
		return "image"
	case FormatACL:
		return "acl"
	}
	return "na"
}

// IsData reports whether the format stores an attached file.
func (f Format) IsData() bool { return f == FormatFile || f == FormatImage }

// BoolType selects how a bool column is stored.
type BoolType int

const (
	BoolYesNo BoolType = iota // CHAR(1), 'y' or 'n'
	BoolXMark                 // CHAR(1), 'x' or ' '
	BoolInt                   // TINYINT, 1 or 0
)

// Visibility is a tri-state: a column may be explicitly visible, visible
// only because no column was marked visible at all, or hidden.
type Visibility int

const (
	Hidden Visibility = iota
	VisibleDefault
	VisibleExplicit
)

// Visible reports whether the column shows up in listings at all.
func (v Visibility) Visible() bool { return v != Hidden }

// RelatedChoice is one selectable option of a related column, read from the
// configured SELECT statement.
type RelatedChoice struct {
	ID    int64
	Label string
}

// ColumnOptions carries the per-column options parsed from the trailing
// option tokens of a definition line.
type ColumnOptions struct {
	Required    bool
	Visible     Visibility
	Primary     bool
	ReadOnly    bool
	TabIndex    int
	Length      int
	BoolType    BoolType
	Aliasing    string // SQL expression aliased as this column; implies ReadOnly
	Default     string
	NoDefault   bool
	Accept      *regexp.Regexp // matched against uploaded MIME types
	UnixTS      bool           // date/datetime stored as raw unix timestamp
	OnClick     string         // "edit", "inspect" or a link template
	HeaderLabel string
	HeaderLink  string
	Print       bool // include in print version even if not visible
	NoPrint     bool // exclude from print version
	Enum        []string        // enum labels, internal value is 0-based index
	Related     []RelatedChoice // related choices, internal value is row ID

	// ACL holds per-capability rule overrides, keyed by lowercase
	// capability name ("mayview", "mayedit", ...).
	ACL map[string]string

	// Extra collects unrecognized tokens; a bare token is recorded with
	// value "1" per the boolean-true convention.
	Extra map[string]string
}

// EnumLabel resolves an internal enum index or related ID to its label.
// ok is false when the value matches no defined choice.
func (o *ColumnOptions) EnumLabel(format Format, v int64) (string, bool) {
	if format == FormatRelated {
		for _, c := range o.Related {
			if c.ID == v {
				return c.Label, true
			}
		}
		return "", false
	}
	if v >= 0 && int(v) < len(o.Enum) {
		return o.Enum[v], true
	}
	return "", false
}

// ColumnDef is the parsed definition of a single table column.
type ColumnDef struct {
	Name       string // validated identifier
	Class      string // storage class: integer, real, decimal, text, bool, enum, related, data, date, datetime, time
	Format     Format
	Label      string
	Definition string // derived SQL DDL fragment, e.g. `age INTEGER NULL`
	Options    ColumnOptions
	AutoID     bool // synthesized auto-numbering primary key
}

// Constraint is a synthetic table-level entry derived from column options:
// a composite PRIMARY KEY or a multi-column UNIQUE group. Constraints are
// not columns and are excluded from iteration over real columns.
type Constraint struct {
	Kind       string // "primary" or "unique"
	Columns    []string
	Definition string
}

// TableMeta is the ordered column metadata of one table block, plus the
// synthetic constraints derived from the definition.
type TableMeta struct {
	Columns     []*ColumnDef
	Constraints []Constraint
	ACLColumn   string // name of the column with format acl, "" if none

	byName map[string]*ColumnDef
}

// Column looks a column up by name. Returns nil when the name is unknown.
// On duplicate names (possible through aliasing) the first match wins.
func (m *TableMeta) Column(name string) *ColumnDef {
	if m == nil {
		return nil
	}
	return m.byName[name]
}

// PrimaryKeys returns the names of all primary key columns, covering both
// the single-column and the composite constraint case.
func (m *TableMeta) PrimaryKeys() []string {
	for _, c := range m.Constraints {
		if c.Kind == "primary" {
			return c.Columns
		}
	}
	var keys []string
	for _, col := range m.Columns {
		if col.Options.Primary || col.AutoID {
			keys = append(keys, col.Name)
		}
	}
	return keys
}

// SingleNumericPrimaryKey returns the name of the table's primary key if it
// is exactly one column of integer class. The single-record editor, row
// locking and navigation all require this fast path; tables without it fall
// back to list-only behavior.
func (m *TableMeta) SingleNumericPrimaryKey() (string, bool) {
	keys := m.PrimaryKeys()
	if len(keys) != 1 {
		return "", false
	}
	col := m.Column(keys[0])
	if col == nil || col.Class != "integer" {
		return "", false
	}
	return col.Name, true
}

// Identity describes the acting user as provided by the host runtime.
type Identity struct {
	Name          string
	Groups        []string
	Admin         bool
	Authenticated bool
	SessionID     string // host session ID, used to identify guests
	RemoteAddr    string
}

// LockOwner is the name locks and log entries are recorded under. Guests
// are keyed by session ID with a reserved prefix no login name can carry.
func (id Identity) LockOwner() string {
	if id.Authenticated {
		return id.Name
	}
	return "|" + id.SessionID
}

// InGroup reports whether the identity is member of the named group.
func (id Identity) InGroup(group string) bool {
	for _, g := range id.Groups {
		if g == group {
			return true
		}
	}
	return false
}

// FileValue is the internal representation of a stored attachment.
type FileValue struct {
	MIME string
	Name string
	Data []byte
}

// Value is the internal typed representation of a single field. Exactly one
// interpretation applies, selected by the column format:
//
//	integer, related, enum:   Int
//	date, datetime:           Int (unix timestamp unless unixts)
//	real, monetary:           Float
//	bool:                     Bool
//	file, image:              File, or Untouched for an externally stored file
//	everything else:          Str
//
// Null marks an absent value regardless of format.
type Value struct {
	Null      bool
	Int       int64
	Float     float64
	Bool      bool
	Str       string
	File      *FileValue
	Untouched bool // file exists externally, do not rewrite on save
}

// NullValue returns the null marker.
func NullValue() Value { return Value{Null: true} }

// IntValue wraps an integer.
func IntValue(v int64) Value { return Value{Int: v} }

// FloatValue wraps a float.
func FloatValue(v float64) Value { return Value{Float: v} }

// BoolValue wraps a bool.
func BoolValue(v bool) Value { return Value{Bool: v} }

// StrValue wraps a string.
func StrValue(v string) Value { return Value{Str: v} }

// LogEntry is one row of the append-only change log.
type LogEntry struct {
	Table  string
	RowID  int64 // 0 for whole-table actions
	Action string
	User   string
	Time   int64
}

// TableOptions are the per-block options from the host markup, controlling
// capabilities, presentation and query behavior of one table instance.
type TableOptions struct {
	// Capability rules, comma-separated subject lists per capability.
	// Unset capabilities are denied except mayview/mayinspect which
	// default to @ALL.
	ACL map[string]string

	Sort        string // initial sort specification
	RowsPerPage int    // initial page size
	BaseFilter  string // filter code seeding the session filter state
	View        string // custom SELECT replacing the managed table (requires customviews)
	Width       int
	WikiStyle   bool
	SimpleNav   bool
	WikiMarkup  bool
	ReadOnly    bool // render everything read-only (e.g. custom views)
}

// Capability returns the rule configured for the named capability.
func (o TableOptions) Capability(name string) string {
	if o.ACL == nil {
		return ""
	}
	return o.ACL[name]
}
