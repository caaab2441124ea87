package engine

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/wikitab/wikitab/internal/session"
)

// Request is one table block invocation: the block's position on the host
// page, its markup, and the acting user.
type Request struct {
	Page       string
	Revision   string
	Index      int
	Table      string // raw table name from the block markup
	Definition string // block body, one column spec per line
	Options    TableOptions
	Identity   Identity
	Input      *Input
}

// Input holds the request fields addressed to one block, keyed by inner
// name with the transport prefix and block index already stripped. Field
// order is preserved since command dispatch follows submission order.
// Untrusted input (security token missing or stale) only admits command
// and option fields, never data.
type Input struct {
	names   []string
	values  map[string]string
	uploads map[string]*FileValue
	trusted bool
}

func NewInput(trusted bool) *Input {
	return &Input{
		values:  map[string]string{},
		uploads: map[string]*FileValue{},
		trusted: trusted,
	}
}

func (in *Input) Set(name, value string) {
	if !in.trusted {
		lower := strings.ToLower(name)
		if !strings.HasPrefix(lower, "cmd") && !strings.HasPrefix(lower, "opt") {
			return
		}
	}
	if _, dup := in.values[name]; !dup {
		in.names = append(in.names, name)
	}
	in.values[name] = value
}

func (in *Input) SetUpload(column string, f *FileValue) {
	if in.trusted {
		in.uploads[column] = f
	}
}

func (in *Input) Get(name string) string       { return in.values[name] }
func (in *Input) Upload(col string) *FileValue { return in.uploads[col] }
func (in *Input) Names() []string              { return in.names }

func (in *Input) Has(name string) bool {
	_, ok := in.values[name]
	return ok
}

func (in *Input) Int(name string) (int, bool) {
	v, ok := in.values[name]
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return n, true
}

// RowView is one listed row with its resolved per-row authorization.
type RowView struct {
	Record  Record
	ACL     map[string]string
	Actions []string          // permitted row commands in display order
	Clicks  map[string]string // column name to click action (edit/inspect)
}

// ListView is the record listing handed to the render layer.
type ListView struct {
	Columns     []*ColumnDef // visible columns in display order
	Rows        []RowView
	Count       int
	Skip        int
	Num         int
	Sort        string
	Filter      []FilterComponent
	ShowFilter  bool
	Actions     []string // permitted table commands
	PageSizes   []int
	PagerRadius int
	ListAll     bool
}

// Recovery describes the inline error boundary: the failure message plus a
// form offering a session reset.
type Recovery struct {
	Message string
}

// BlockResult is everything the render layer needs for one table block.
// Exactly one of Form, List or Failure drives the main output; Messages
// are inline notices rendered above it.
type BlockResult struct {
	Table    string
	Index    int
	Meta     *TableMeta
	Options  TableOptions
	Messages []string
	Form     *EditorForm
	List     *ListView
	Failure  *Recovery
}

// block carries the per-request state shared by the dispatch, editor and
// listing code of one table instance.
type block struct {
	e     *Engine
	req   *Request
	table string
	meta  *TableMeta
	opts  TableOptions
	state *session.ViewState
	auth  Authorizer
	res   *BlockResult
}

func (b *block) notice(msg string) {
	b.res.Messages = append(b.res.Messages, msg)
}

var (
	commandPattern = regexp.MustCompile(`^cmd([a-z]+)(\d*)(_[xy])?$`)
	viewPattern    = regexp.MustCompile(`(?i)^SELECT\s`)
	pagingPattern  = regexp.MustCompile(`(?i)^(skip|num|sort)(.+)$`)
	searchPattern  = regexp.MustCompile(`^search(col|op|arg|mode)(\d*)$`)
)

// Process runs one table block end to end: normalize options, install the
// column definitions, dispatch any commands found in the input, and
// produce the view to render. All failures surface through the result's
// error boundary instead of an opaque failure.
func (e *Engine) Process(ctx context.Context, req *Request) *BlockResult {
	res := &BlockResult{Table: req.Table, Index: req.Index, Options: req.Options}

	if err := e.process(ctx, req, res); err != nil {
		res.Form = nil
		res.List = nil
		res.Failure = &Recovery{Message: err.Error()}
	}
	return res
}

// List assembles the listing without dispatching any commands, serving the
// print and CSV export surfaces which address a block out of band.
func (e *Engine) List(ctx context.Context, req *Request, listAll, printVersion bool) (*BlockResult, error) {
	res := &BlockResult{Table: req.Table, Index: req.Index, Options: req.Options}
	b, err := e.newBlock(ctx, req, res)
	if err != nil {
		return nil, err
	}
	list, err := b.showTable(ctx, false, listAll, printVersion)
	if err != nil {
		return nil, err
	}
	res.List = list
	return res, nil
}

func (e *Engine) newBlock(ctx context.Context, req *Request, res *BlockResult) (*block, error) {
	table, err := NormalizeTableName(req.Table)
	if err != nil {
		return nil, err
	}
	res.Table = table

	opts := req.Options
	if opts.ACL == nil {
		opts.ACL = map[string]string{}
	}
	if strings.TrimSpace(opts.ACL["mayview"]) == "" {
		opts.ACL["mayview"] = "@ALL"
	}
	if strings.TrimSpace(opts.ACL["mayinspect"]) == "" {
		opts.ACL["mayinspect"] = "@ALL"
	}

	opts.View = strings.TrimSpace(opts.View)
	if !e.cfg.CustomViews || !viewPattern.MatchString(opts.View) {
		opts.View = ""
	}

	state := e.sessions.View(req.Identity.SessionID, req.Page, req.Revision, req.Index)
	if opts.RowsPerPage > 0 && state.Num == 0 {
		state.Num = opts.RowsPerPage
	}

	parser := &definitionParser{
		dialect:       e.dialect,
		db:            e.db,
		customViews:   e.cfg.CustomViews,
		aliasing:      e.cfg.Aliasing,
		forceReadOnly: opts.View != "",
	}
	meta, err := parser.parse(ctx, req.Definition)
	if err != nil {
		return nil, err
	}
	res.Meta = meta
	res.Options = opts

	return &block{
		e:     e,
		req:   req,
		table: table,
		meta:  meta,
		opts:  opts,
		state: state,
		auth:  Authorizer{Identity: req.Identity},
		res:   res,
	}, nil
}

func (e *Engine) process(ctx context.Context, req *Request, res *BlockResult) error {
	b, err := e.newBlock(ctx, req, res)
	if err != nil {
		return err
	}

	if err := b.dispatch(ctx); err != nil {
		return err
	}
	if res.Form != nil {
		// single-record editor replaces the list
		return nil
	}

	if b.opts.View == "" {
		if err := e.createTable(ctx, b.table, b.meta); err != nil {
			return err
		}
	}

	if b.auth.Authorized(b.opts.Capability("mayview")) {
		list, err := b.showTable(ctx, true, false, false)
		if err != nil {
			return err
		}
		res.List = list
	}
	return nil
}

// dispatch walks the submitted commands in order and performs each one the
// user is authorized for. Unauthorized commands leave an inline notice and
// are skipped, never a hard failure.
func (b *block) dispatch(ctx context.Context) error {
	_, hasPK := b.meta.SingleNumericPrimaryKey()

	for _, name := range b.req.Input.Names() {
		m := commandPattern.FindStringSubmatch(strings.ToLower(name))
		if m == nil {
			continue
		}
		action := m[1]
		rowID, _ := strconv.ParseInt(m[2], 10, 64)

		if action == "reset" {
			b.e.sessions.ResetPage(b.req.Identity.SessionID, b.req.Page)
			b.state = b.e.sessions.View(b.req.Identity.SessionID, b.req.Page, b.req.Revision, b.req.Index)
			continue
		}

		var rowACL map[string]string
		if rowID != 0 {
			var err error
			rowACL, err = b.rowACL(ctx, rowID)
			if err != nil {
				return err
			}
		}

		if !b.auth.AuthorizedMulti(rowACL, b.opts.ACL, "may"+action, "", false) {
			b.notice(fmt.Sprintf("you are not authorized to %s on table %s", action, b.table))
			continue
		}

		if !hasPK && action != "drop" {
			continue
		}

		switch action {
		case "inspect", "insert", "edit":
			duplicateOf := int64(0)
			if action == "insert" && rowID != 0 {
				// new record seeded from an existing one
				if !b.auth.AuthorizedMulti(rowACL, b.opts.ACL, "mayinspect", "", false) {
					b.notice(fmt.Sprintf("you are not authorized to %s on table %s", action, b.table))
					continue
				}
				duplicateOf = rowID
				rowID = 0
			}

			readOnly := action == "inspect" || b.opts.ReadOnly
			for {
				out, err := b.editRecord(ctx, rowID, readOnly, duplicateOf, rowACL)
				if err != nil {
					return err
				}
				if out.form != nil {
					b.res.Form = out.form
					return nil
				}
				if out.switchTo != 0 {
					rowID = out.switchTo
					duplicateOf = 0
					continue
				}
				break
			}

		case "delete":
			if err := b.deleteRecord(ctx, rowID); err != nil {
				return err
			}

		case "drop":
			if err := b.dropTable(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// rowACL resolves and caches the row-level ACL stored in the table's acl
// column, nil when the table has none.
func (b *block) rowACL(ctx context.Context, rowID int64) (map[string]string, error) {
	if b.meta.ACLColumn == "" {
		return nil, nil
	}
	idCol, ok := b.meta.SingleNumericPrimaryKey()
	if !ok {
		return nil, nil
	}

	if b.state.RowACL != nil {
		if cached, ok := b.state.RowACL[rowID]; ok {
			return cached, nil
		}
	}

	var raw string
	err := b.e.queryRow(ctx, b.e.db,
		"SELECT "+b.meta.ACLColumn+" FROM "+b.table+" WHERE "+idCol+" = ?", rowID).Scan(&raw)
	if err != nil {
		// row may be gone or the value NULL, both mean no row ACL
		return nil, nil
	}

	rules, err := parseACLRules(raw)
	if err != nil {
		return nil, nil
	}
	if b.state.RowACL == nil {
		b.state.RowACL = map[int64]map[string]string{}
	}
	b.state.RowACL[rowID] = rules
	return rules, nil
}

// updateViewState folds the paging, sort and filter fields of the input
// into the session, clamping paging to the current record count.
func (b *block) updateViewState(count int, expectInput bool) {
	if strings.TrimSpace(b.state.Sort) == "" {
		b.state.Sort = b.opts.Sort
	}

	skip, num, sortSpec := b.state.Skip, b.state.Num, strings.TrimSpace(b.state.Sort)

	if expectInput {
		for _, name := range b.req.Input.Names() {
			if m := pagingPattern.FindStringSubmatch(name); m != nil {
				switch strings.ToLower(m[1]) {
				case "skip":
					skip, _ = strconv.Atoi(m[2])
				case "num":
					num, _ = strconv.Atoi(m[2])
				case "sort":
					sortSpec = strings.TrimSpace(m[2])
				}
			}
		}
	}

	skip, num = ClampPaging(skip, num, count)
	b.state.Skip, b.state.Num, b.state.Sort = skip, num, sortSpec
}

// updateFilter folds filter form fields into the session filter,
// initializing it from the block's base filter on first use and dropping
// components that never got complete.
func (b *block) updateFilter() {
	input := b.req.Input

	if input.Has("searchdrop") {
		b.state.Filter = nil
		b.state.Initialized = true
		return
	}

	if !b.state.Initialized {
		b.state.Initialized = true
		if b.opts.BaseFilter != "" {
			code := b.e.replaceMarkup(b.opts.BaseFilter, b.req.Page, &b.req.Identity, nil)
			b.state.Filter = ParseFilterCode(code)
			return
		}
	}

	updated := map[int]*FilterComponent{}
	order := []int{}
	for i := range b.state.Filter {
		updated[i] = &b.state.Filter[i]
		order = append(order, i)
	}

	for _, name := range input.Names() {
		m := searchPattern.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		idx, _ := strconv.Atoi(m[2])
		comp, ok := updated[idx]
		if !ok {
			comp = &FilterComponent{}
			updated[idx] = comp
			order = append(order, idx)
		}
		value := input.Get(name)
		switch m[1] {
		case "col":
			comp.Column = value
		case "op":
			comp.Op = value
		case "arg":
			comp.Arg = b.e.replaceMarkup(value, b.req.Page, &b.req.Identity, nil)
		case "mode":
			comp.Mode = strings.ToUpper(strings.TrimSpace(value))
		}
	}

	var filter []FilterComponent
	for _, idx := range order {
		comp := updated[idx]
		if comp.Column == "" || comp.Op == "" {
			continue
		}
		if idx > 0 && comp.Mode != "AND" && comp.Mode != "OR" {
			continue
		}
		filter = append(filter, *comp)
	}
	b.state.Filter = filter
}

// rowActionOrder is the display order of per-row commands.
var rowActionOrder = []string{"inspect", "edit", "insert", "delete"}

// showTable assembles the record listing for the current view state.
func (b *block) showTable(ctx context.Context, expectInput, listAll, printVersion bool) (*ListView, error) {
	if expectInput {
		b.updateFilter()
	}

	count, err := b.e.recordsCount(ctx, b.table, b.meta, b.state, b.opts.View)
	if err != nil {
		return nil, err
	}

	b.updateViewState(count, expectInput)

	skip, num := b.state.Skip, b.state.Num
	if listAll {
		skip, num = 0, 0
	}

	records, err := b.e.recordsList(ctx, b.table, b.meta, b.state, skip, num, b.opts.View)
	if err != nil {
		return nil, err
	}

	idCol, hasPK := b.meta.SingleNumericPrimaryKey()

	list := &ListView{
		Columns:     b.visibleColumns(idCol, printVersion),
		Count:       count,
		Skip:        skip,
		Num:         num,
		Sort:        b.state.Sort,
		Filter:      b.state.Filter,
		ShowFilter:  expectInput && b.auth.Authorized(b.opts.Capability("mayfilter")),
		PageSizes:   b.e.cfg.PageSizes,
		PagerRadius: b.e.cfg.PagerRadius,
		ListAll:     listAll,
	}

	for _, name := range []string{"insert", "print", "csv", "log", "drop"} {
		if b.opts.View != "" && name != "print" && name != "csv" {
			continue
		}
		if b.auth.AuthorizedMulti(nil, b.opts.ACL, "may"+name, "", false) {
			list.Actions = append(list.Actions, name)
		}
	}

	for _, rec := range records {
		row := RowView{Record: rec, Clicks: map[string]string{}}

		if b.meta.ACLColumn != "" {
			if v, ok := rec.Values[b.meta.ACLColumn]; ok && !v.Null {
				if rules, err := parseACLRules(v.Str); err == nil {
					row.ACL = rules
				}
			}
		}

		if hasPK && rec.ID != 0 && !printVersion {
			for _, action := range rowActionOrder {
				if b.opts.View != "" && action != "inspect" {
					continue
				}
				if b.auth.AuthorizedMulti(row.ACL, b.opts.ACL, "may"+action, "", false) {
					row.Actions = append(row.Actions, action)
				}
			}
		}

		for _, col := range list.Columns {
			click := col.Options.OnClick
			if click == "" {
				continue
			}
			if click == "edit" && (b.opts.View != "" ||
				!b.auth.AuthorizedMulti(row.ACL, b.opts.ACL, "mayedit", "", false)) {
				click = "inspect"
			}
			if click == "edit" || click == "inspect" {
				if b.auth.AuthorizedMulti(row.ACL, b.opts.ACL, "may"+click, "", false) {
					row.Clicks[col.Name] = click
				}
			} else {
				// free-form link target, resolved by the renderer
				row.Clicks[col.Name] = click
			}
		}

		list.Rows = append(list.Rows, row)
	}
	return list, nil
}

// visibleColumns selects the columns shown in the listing. The primary key
// only appears when explicitly marked visible, and the acl column stays
// internal unless marked visible as well.
func (b *block) visibleColumns(idCol string, printVersion bool) []*ColumnDef {
	var out []*ColumnDef
	for _, col := range b.meta.Columns {
		switch {
		case col.Options.Visible == Hidden:
			continue
		case col.Name == idCol && col.Options.Visible != VisibleExplicit:
			continue
		case col.Name == b.meta.ACLColumn && col.Options.Visible != VisibleExplicit:
			continue
		case printVersion && col.Options.NoPrint:
			continue
		case printVersion && !col.Options.Print && col.Format.IsData():
			// binary content has no print rendition unless forced
			continue
		}
		out = append(out, col)
	}
	return out
}
