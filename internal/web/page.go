package web

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/a-h/templ"

	"github.com/wikitab/wikitab/internal/engine"
	"github.com/wikitab/wikitab/internal/logging"
	"github.com/wikitab/wikitab/internal/render"
)

// Pages are plain text files under the configured pages directory. A table
// block is delimited by a <database ...> tag pair:
//
//	<database staff mayedit=@users sort=name>
//	name, text, Name, visible
//	age, int, Age
//	</database>
//
// Everything outside block tags is shown as plain paragraphs. The block
// index counts blocks on the page top to bottom and scopes form fields and
// session state.

var pageNamePattern = regexp.MustCompile(`^[a-z0-9_:-]+(/[a-z0-9_:-]+)*$`)

// segment is one slice of a page: either text or a table block.
type segment struct {
	text  string
	block *pageBlock
}

type pageBlock struct {
	index      int
	table      string
	options    engine.TableOptions
	definition string
}

type page struct {
	name     string
	revision string
	segments []segment
	blocks   []*pageBlock
}

// pageStore loads and parses pages from disk on every request, so edits to
// the files show up without a restart. The revision is the content hash;
// it scopes all session state of the page.
type pageStore struct {
	dir string
}

func (ps *pageStore) load(name string) (*page, error) {
	if !pageNamePattern.MatchString(name) {
		return nil, os.ErrNotExist
	}

	raw, err := os.ReadFile(filepath.Join(ps.dir, filepath.FromSlash(name)+".txt"))
	if err != nil {
		return nil, err
	}

	sum := sha1.Sum(raw)
	p := &page{name: name, revision: hex.EncodeToString(sum[:])}

	var (
		text  []string
		block *pageBlock
		body  []string
	)
	flushText := func() {
		if len(text) > 0 {
			p.segments = append(p.segments, segment{text: strings.Join(text, "\n")})
			text = nil
		}
	}

	for _, line := range strings.Split(string(raw), "\n") {
		trimmed := strings.TrimSpace(line)

		switch {
		case block == nil && strings.HasPrefix(trimmed, "<database") && strings.HasSuffix(trimmed, ">"):
			header := strings.TrimSuffix(strings.TrimPrefix(trimmed, "<database"), ">")
			block = parseBlockHeader(header)
			block.index = len(p.blocks)
			flushText()

		case block != nil && trimmed == "</database>":
			block.definition = strings.Join(body, "\n")
			p.segments = append(p.segments, segment{block: block})
			p.blocks = append(p.blocks, block)
			block, body = nil, nil

		case block != nil:
			body = append(body, line)

		default:
			text = append(text, line)
		}
	}
	if block != nil {
		// unterminated block, treat the rest of the page as its body
		block.definition = strings.Join(body, "\n")
		p.segments = append(p.segments, segment{block: block})
		p.blocks = append(p.blocks, block)
	}
	flushText()

	return p, nil
}

// parseBlockHeader reads the tag content: the table name followed by
// option tokens. Option values may be quoted; a bare may* token grants the
// capability to everyone.
func parseBlockHeader(header string) *pageBlock {
	fields := splitHeaderFields(header)
	b := &pageBlock{options: engine.TableOptions{ACL: map[string]string{}}}
	if len(fields) > 0 {
		b.table = fields[0]
		fields = fields[1:]
	}

	for _, f := range fields {
		key, value, hasValue := strings.Cut(f, "=")
		key = strings.ToLower(strings.TrimSpace(key))

		if strings.HasPrefix(key, "may") {
			if !hasValue {
				value = "@ALL"
			}
			b.options.ACL[key] = value
			continue
		}

		switch key {
		case "sort":
			b.options.Sort = value
		case "rowsperpage":
			b.options.RowsPerPage, _ = strconv.Atoi(value)
		case "basefilter", "filter":
			b.options.BaseFilter = value
		case "view":
			b.options.View = value
		case "width":
			b.options.Width, _ = strconv.Atoi(value)
		case "wikistyle":
			b.options.WikiStyle = true
		case "simplenav":
			b.options.SimpleNav = true
		case "wikimarkup":
			b.options.WikiMarkup = true
		case "readonly":
			b.options.ReadOnly = true
		}
	}
	return b
}

// splitHeaderFields splits on whitespace outside quotes and strips the
// quotes from values.
func splitHeaderFields(header string) []string {
	var (
		fields  []string
		current strings.Builder
		quote   byte
		has     bool
	)
	flush := func() {
		if has {
			fields = append(fields, current.String())
			current.Reset()
			has = false
		}
	}

	for i := 0; i < len(header); i++ {
		c := header[i]
		switch {
		case quote != 0:
			if c == '\\' && i+1 < len(header) {
				i++
				current.WriteByte(header[i])
			} else if c == quote {
				quote = 0
			} else {
				current.WriteByte(c)
			}
		case c == '"' || c == '\'':
			quote = c
			has = true
		case c == ' ' || c == '\t':
			flush()
		default:
			current.WriteByte(c)
			has = true
		}
	}
	flush()
	return fields
}

// formField is one submitted field in submission order.
type formField struct {
	name   string
	value  string
	upload *engine.FileValue
}

var fieldPattern = regexp.MustCompile(`^db2do(.+)\[(\d+)\]$`)

// handlePage serves a page: renders its text, runs every table block
// through the engine and renders the results.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	name := strings.Trim(path.Clean("/"+pageParam(r)), "/")
	if name == "" || name == "." {
		name = s.cfg.Pages.Start
	}

	p, err := s.pages.load(name)
	if err != nil {
		s.respondError(w, r, fmt.Errorf("page %s: %w", name, err), http.StatusNotFound)
		return
	}

	sid := s.sessionID(w, r)
	token := s.securityToken(sid)
	ident := s.identity(r, sid)

	fields, err := s.readForm(r)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	inputs := groupInputs(fields, token)

	blocksEnabled := s.pageEnabled(name)

	link := &linker{store: s.engine.Sessions(), ident: ident, page: p.name, revision: p.revision}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	s.writePageHead(w, p.name, ident)

	for _, seg := range p.segments {
		if seg.block == nil {
			writeParagraphs(w, seg.text)
			continue
		}
		if !blocksEnabled {
			fmt.Fprintf(w, `<div class="error">%s</div>`,
				templ.EscapeString("table blocks are not enabled on this page"))
			continue
		}

		blk := seg.block
		req := &engine.Request{
			Page:       p.name,
			Revision:   p.revision,
			Index:      blk.index,
			Table:      blk.table,
			Definition: blk.definition,
			Options:    blk.options,
			Identity:   ident,
			Input:      inputAt(inputs, blk.index),
		}

		res := s.engine.Process(r.Context(), req)
		if res.Failure != nil {
			logging.FromContext(r.Context()).Warn("block failed",
				"page", p.name, "table", blk.table, "index", blk.index,
				"reason", res.Failure.Message)
		}

		rr := s.blockRenderer(link, res, p.name, token)
		if err := rr.Block(res).Render(r.Context(), w); err != nil {
			return
		}
	}

	s.writePageFoot(w)
}

// blockRenderer wires the media and export URLs of one processed block.
func (s *Server) blockRenderer(link *linker, res *engine.BlockResult, pageName, token string) render.Renderer {
	rr := render.Renderer{
		Action: "/wiki/" + pageName,
		Token:  token,
		Draft: func(column string) string {
			return link.draft(res.Index, column)
		},
		Export: func(kind, table string) string {
			return link.export(res.Index, kind, table)
		},
	}
	if res.Meta != nil {
		if idCol, ok := res.Meta.SingleNumericPrimaryKey(); ok {
			rr.Media = func(table, column string, rowID int64) string {
				return link.media(res.Index, table, column, idCol, rowID)
			}
		}
	}
	return rr
}

func inputAt(inputs map[int]*engine.Input, index int) *engine.Input {
	if in, ok := inputs[index]; ok {
		return in
	}
	return engine.NewInput(false)
}

func pageParam(r *http.Request) string {
	if strings.HasPrefix(r.URL.Path, "/wiki/") {
		return strings.TrimPrefix(r.URL.Path, "/wiki/")
	}
	return ""
}

// readForm collects the submitted fields in submission order. The parsed
// form of net/http is a map and loses the order, which command dispatch
// depends on, so the body is consumed directly.
func (s *Server) readForm(r *http.Request) ([]formField, error) {
	var fields []formField

	// command links arrive as query parameters
	fields = appendURLEncoded(fields, r.URL.RawQuery)

	if r.Method != http.MethodPost {
		return fields, nil
	}

	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch ct {
	case "multipart/form-data":
		mr, err := r.MultipartReader()
		if err != nil {
			return nil, err
		}
		maxUpload := s.cfg.Engine.MaxUploadSize
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, err
			}

			name := part.FormName()
			if name == "" {
				continue
			}

			if part.FileName() == "" {
				value, err := io.ReadAll(io.LimitReader(part, 1<<20))
				if err != nil {
					return nil, err
				}
				fields = append(fields, formField{name: name, value: string(value)})
				continue
			}

			data, err := io.ReadAll(io.LimitReader(part, maxUpload+1))
			if err != nil {
				return nil, err
			}
			if len(data) == 0 {
				fields = append(fields, formField{name: name, value: ""})
				continue
			}

			mimeType := part.Header.Get("Content-Type")
			if mimeType == "" || mimeType == "application/octet-stream" {
				mimeType = http.DetectContentType(data)
			}
			fields = append(fields, formField{
				name: name,
				upload: &engine.FileValue{
					MIME: mimeType,
					Name: filepath.Base(part.FileName()),
					Data: data,
				},
			})
		}

	default:
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			return nil, err
		}
		fields = appendURLEncoded(fields, string(body))
	}

	return fields, nil
}

func appendURLEncoded(fields []formField, body string) []formField {
	for _, pair := range strings.Split(body, "&") {
		if pair == "" {
			continue
		}
		rawName, rawValue, _ := strings.Cut(pair, "=")
		name, err := url.QueryUnescape(rawName)
		if err != nil {
			continue
		}
		value, err := url.QueryUnescape(rawValue)
		if err != nil {
			continue
		}
		fields = append(fields, formField{name: name, value: value})
	}
	return fields
}

// groupInputs distributes the submitted fields onto the block inputs they
// address. Fields are only trusted when the request carried the session's
// security token.
func groupInputs(fields []formField, token string) map[int]*engine.Input {
	trusted := false
	for _, f := range fields {
		if f.name == "sectok" && f.value == token {
			trusted = true
		}
	}

	inputs := map[int]*engine.Input{}
	for _, f := range fields {
		m := fieldPattern.FindStringSubmatch(f.name)
		if m == nil {
			continue
		}
		inner := m[1]
		index, _ := strconv.Atoi(m[2])

		in := inputs[index]
		if in == nil {
			in = engine.NewInput(trusted)
			inputs[index] = in
		}

		if f.upload != nil {
			if column, ok := strings.CutPrefix(inner, "data"); ok {
				in.SetUpload(column, f.upload)
			}
			continue
		}
		in.Set(inner, f.value)
	}
	return inputs
}

// pageEnabled reports whether table blocks are honored on the named page.
// Patterns are globs, or regular expressions when written /like this/.
func (s *Server) pageEnabled(name string) bool {
	if s.cfg.Pages.EnableAll {
		return true
	}
	for _, pattern := range s.cfg.Pages.Enabled {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		if len(pattern) > 1 && strings.HasPrefix(pattern, "/") && strings.HasSuffix(pattern, "/") {
			re, err := regexp.Compile(pattern[1 : len(pattern)-1])
			if err == nil && re.MatchString(name) {
				return true
			}
			continue
		}
		if ok, _ := path.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

func (s *Server) writePageHead(w io.Writer, name string, ident engine.Identity) {
	user := ident.Name
	if user == "" {
		user = "guest"
	}
	admin := ""
	if ident.Admin {
		admin = ` | <a href="/admin">admin</a>`
	}
	fmt.Fprintf(w, `<!DOCTYPE html>
<html><head><title>%s</title><link rel="stylesheet" href="/style.css" /></head>
<body><div class="topbar"><a href="/">home</a>%s<span class="user">%s</span></div>
<h1>%s</h1>
`, templ.EscapeString(name), admin, templ.EscapeString(user), templ.EscapeString(name))
}

func (s *Server) writePageFoot(w io.Writer) {
	io.WriteString(w, "</body></html>\n")
}

func writeParagraphs(w io.Writer, text string) {
	for _, para := range strings.Split(text, "\n\n") {
		if strings.TrimSpace(para) == "" {
			continue
		}
		fmt.Fprintf(w, "<p>%s</p>\n", templ.EscapeString(strings.TrimSpace(para)))
	}
}
